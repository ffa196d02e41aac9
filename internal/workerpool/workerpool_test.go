package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type recordingObserver struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *recordingObserver) ObserveTask(phase, status string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = map[string]int{}
	}
	r.counts[phase+"/"+status]++
}

func valueTask(name string, v int) Task[int] {
	return Task[int]{Name: name, Run: func(context.Context) (int, error) { return v, nil }}
}

func errTask(name string) Task[int] {
	return Task[int]{Name: name, Run: func(context.Context) (int, error) { return 0, errors.New("boom") }}
}

// blockingTask waits for cancellation, like a generator loop checking ctx.
func blockingTask(name string) Task[int] {
	return Task[int]{Name: name, Run: func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	}}
}

func TestRun_TaggedResultsInTaskOrder(t *testing.T) {
	obs := &recordingObserver{}
	tasks := []Task[int]{valueTask("a", 1), errTask("b"), valueTask("c", 3), blockingTask("d")}

	res, err := Run(context.Background(), Options{Phase: "test", Workers: 2, TaskTimeout: 50 * time.Millisecond, Observer: obs}, tasks)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	want := []Status{Succeeded, Failed, Succeeded, TimedOut}
	for i, s := range want {
		if res[i].Status != s {
			t.Fatalf("task %s: want %s got %s", res[i].Name, s, res[i].Status)
		}
		if res[i].Name != tasks[i].Name {
			t.Fatalf("result %d out of order: %s", i, res[i].Name)
		}
	}
	if got := Values(res); len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Fatalf("unexpected values %v", got)
	}
	if Count(res, TimedOut) != 1 || Count(res, Failed) != 1 {
		t.Fatalf("unexpected counts")
	}
	if obs.counts["test/succeeded"] != 2 || obs.counts["test/failed"] != 1 || obs.counts["test/timed_out"] != 1 {
		t.Fatalf("unexpected observer counts %v", obs.counts)
	}
}

func TestRun_BoundedConcurrency(t *testing.T) {
	var running, peak int32
	tasks := make([]Task[int], 20)
	for i := range tasks {
		tasks[i] = Task[int]{Name: fmt.Sprint(i), Run: func(context.Context) (int, error) {
			n := atomic.AddInt32(&running, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			return 0, nil
		}}
	}

	if _, err := Run(context.Background(), Options{Phase: "test", Workers: 3}, tasks); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if peak > 3 {
		t.Fatalf("more than 3 tasks ran at once: %d", peak)
	}
}

func TestRun_TimeoutPolicies(t *testing.T) {
	cases := []struct {
		name     string
		policy   TimeoutPolicy
		retries  int
		wantErr  error
		attempts int
	}{
		{name: "drop", policy: PolicyDrop, attempts: 1},
		{name: "retry", policy: PolicyRetry, retries: 2, attempts: 3},
		{name: "fail", policy: PolicyFail, wantErr: ErrTaskTimedOut, attempts: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			slow := Task[int]{Name: "slow", Run: func(ctx context.Context) (int, error) {
				<-ctx.Done()
				return 0, ctx.Err()
			}}
			res, err := Run(context.Background(), Options{
				Phase:         "test",
				TaskTimeout:   10 * time.Millisecond,
				TimeoutPolicy: tc.policy,
				Retries:       tc.retries,
			}, []Task[int]{slow, valueTask("fast", 7)})

			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("want %v got %v", tc.wantErr, err)
				}
			} else if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if res[0].Status != TimedOut || res[0].Attempts != tc.attempts {
				t.Fatalf("slow: status=%s attempts=%d", res[0].Status, res[0].Attempts)
			}
			if res[1].Status != Succeeded || res[1].Value != 7 {
				t.Fatalf("fast task affected by slow sibling: %+v", res[1])
			}
		})
	}
}

func TestRun_RetryRecoversFromTransientTimeout(t *testing.T) {
	var calls int32
	flaky := Task[int]{Name: "flaky", Run: func(ctx context.Context) (int, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			<-ctx.Done()
			return 0, ctx.Err()
		}
		return 42, nil
	}}
	res, err := Run(context.Background(), Options{Phase: "test", TaskTimeout: 50 * time.Millisecond, TimeoutPolicy: PolicyRetry}, []Task[int]{flaky})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res[0].Status != Succeeded || res[0].Value != 42 || res[0].Attempts != 2 {
		t.Fatalf("unexpected result %+v", res[0])
	}
}

func TestRun_ParentCancellationAbortsPhase(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	tasks := []Task[int]{blockingTask("a"), blockingTask("b"), blockingTask("c")}
	res, err := Run(ctx, Options{Phase: "test", Workers: 1, TaskTimeout: time.Minute}, tasks)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if len(Values(res)) != 0 {
		t.Fatalf("no task should succeed")
	}
}

func TestParseTimeoutPolicy(t *testing.T) {
	for in, want := range map[string]TimeoutPolicy{"": PolicyDrop, "DROP": PolicyDrop, "retry": PolicyRetry, " fail ": PolicyFail} {
		got, err := ParseTimeoutPolicy(in)
		if err != nil || got != want {
			t.Fatalf("ParseTimeoutPolicy(%q)=%q,%v want %q", in, got, err, want)
		}
	}
	if _, err := ParseTimeoutPolicy("ignore"); err == nil {
		t.Fatal("expected error for unknown policy")
	}
}

func TestRun_JoinsTimedOutTaskBeforeReturning(t *testing.T) {
	var finished atomic.Bool
	// Takes a while to unwind after cancellation, like a flush of buffered lines.
	slowUnwind := Task[int]{Name: "slow", Run: func(ctx context.Context) (int, error) {
		<-ctx.Done()
		time.Sleep(30 * time.Millisecond)
		finished.Store(true)
		return 0, ctx.Err()
	}}

	res, err := Run(context.Background(), Options{Phase: "test", TaskTimeout: 10 * time.Millisecond}, []Task[int]{slowUnwind})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !finished.Load() {
		t.Fatal("task code still running after Run returned")
	}
	if res[0].Status != TimedOut || res[0].Leaked {
		t.Fatalf("unexpected result %+v", res[0])
	}
}

func TestRun_RetriedAttemptsDoNotOverlap(t *testing.T) {
	var running, peak int32
	slow := Task[int]{Name: "slow", Run: func(ctx context.Context) (int, error) {
		n := atomic.AddInt32(&running, 1)
		defer atomic.AddInt32(&running, -1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		return 0, ctx.Err()
	}}

	res, err := Run(context.Background(), Options{
		Phase:         "test",
		TaskTimeout:   10 * time.Millisecond,
		TimeoutPolicy: PolicyRetry,
		Retries:       2,
	}, []Task[int]{slow})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res[0].Attempts != 3 {
		t.Fatalf("want 3 attempts got %d", res[0].Attempts)
	}
	if peak != 1 {
		t.Fatalf("attempts overlapped: peak %d", peak)
	}
}

func TestRun_ReportsTaskIgnoringCancellation(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	stuck := Task[int]{Name: "stuck", Run: func(context.Context) (int, error) {
		<-release
		return 0, nil
	}}

	res, err := Run(context.Background(), Options{
		Phase:         "test",
		TaskTimeout:   10 * time.Millisecond,
		Grace:         10 * time.Millisecond,
		TimeoutPolicy: PolicyRetry,
		Retries:       3,
	}, []Task[int]{stuck, valueTask("fast", 1)})
	if !errors.Is(err, ErrTaskLeaked) {
		t.Fatalf("expected ErrTaskLeaked, got %v", err)
	}
	if !res[0].Leaked || res[0].Status != TimedOut || res[0].Attempts != 1 {
		t.Fatalf("unexpected result %+v", res[0])
	}
	if res[1].Status != Succeeded {
		t.Fatalf("sibling affected: %+v", res[1])
	}
}
