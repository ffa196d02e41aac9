package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu     sync.RWMutex
	base   zerolog.Logger
	inited bool
)

// Options controls the global logger.
//
// Fields:
//   - Level: debug|info|warn|error (default: info).
//   - Pretty: human readable console output instead of JSON.
//   - Out: destination writer (default: os.Stdout).
type Options struct {
	Level  string
	Pretty bool
	Out    io.Writer
}

// Init configures the global JSON logger.
//
// When called with zero Options the level and format fall back to the
// LOG_LEVEL and LOG_PRETTY environment variables.
func Init(opts Options) {
	if opts.Level == "" {
		opts.Level = getenv("LOG_LEVEL", "info")
		opts.Pretty = opts.Pretty || strings.EqualFold(getenv("LOG_PRETTY", "false"), "true")
	}
	w := opts.Out
	if w == nil {
		w = os.Stdout
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	if opts.Pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	l := zerolog.New(w).With().Timestamp().Logger().Level(parseLevel(opts.Level))

	mu.Lock()
	base, inited = l, true
	mu.Unlock()
}

// L returns the global logger, initializing it from the environment if Init
// was never called.
func L() *zerolog.Logger {
	mu.RLock()
	ok := inited
	mu.RUnlock()
	if !ok {
		Init(Options{})
	}

	mu.RLock()
	defer mu.RUnlock()
	l := base
	return &l
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error", "err":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

type ctxKey struct{}

// NewContext returns a copy of ctx carrying a child of the logger already in
// ctx (or the global one) with the given string fields added. Concurrent
// runs each keep their own fields.
func NewContext(ctx context.Context, kv ...string) context.Context {
	lc := FromContext(ctx).With()
	for i := 0; i+1 < len(kv); i += 2 {
		lc = lc.Str(kv[i], kv[i+1])
	}
	return context.WithValue(ctx, ctxKey{}, lc.Logger())
}

// FromContext returns the logger stored by NewContext, or the global logger.
func FromContext(ctx context.Context) *zerolog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(zerolog.Logger); ok {
			return &l
		}
	}
	return L()
}
