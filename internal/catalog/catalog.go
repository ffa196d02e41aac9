// Package catalog builds the set of tradable instruments and their reference
// prices used by the tick generator.
package catalog

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/shopspring/decimal"
)

// DefaultSize is the number of instruments when none is configured.
const DefaultSize = 10

// CodeLength is the length of a generated instrument code.
const CodeLength = 9

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Instrument is a tradable identifier with its reference price.
type Instrument struct {
	Code      string
	BasePrice decimal.Decimal
}

// Catalog is an immutable list of instruments. It is safe for concurrent reads.
type Catalog struct {
	instruments []Instrument
}

// New builds a catalog of n unique instruments drawn from rng.
//
// Codes are 9 uppercase alphanumeric characters starting with two letters.
// Base prices have two fractional digits in [0.01, 999.99].
func New(n int, rng *rand.Rand) (*Catalog, error) {
	if n <= 0 {
		return nil, fmt.Errorf("catalog size must be positive, got %d", n)
	}

	seen := make(map[string]struct{}, n)
	out := make([]Instrument, 0, n)
	for len(out) < n {
		code := randomCode(rng)
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, Instrument{
			Code:      code,
			BasePrice: decimal.New(int64(1+rng.IntN(99999)), -2),
		})
	}
	return &Catalog{instruments: out}, nil
}

// FromInstruments builds a catalog from a fixed list, mostly for tests.
func FromInstruments(list []Instrument) *Catalog {
	return &Catalog{instruments: append([]Instrument(nil), list...)}
}

func randomCode(rng *rand.Rand) string {
	b := make([]byte, CodeLength)
	for i := range b {
		if i < 2 {
			b[i] = codeAlphabet[rng.IntN(26)]
			continue
		}
		b[i] = codeAlphabet[rng.IntN(len(codeAlphabet))]
	}
	return string(b)
}

// Len returns the number of instruments.
func (c *Catalog) Len() int { return len(c.instruments) }

// At returns the i-th instrument.
func (c *Catalog) At(i int) Instrument { return c.instruments[i] }

// Instruments returns a copy of the instrument codes, parallel to BasePrices.
func (c *Catalog) Instruments() []string {
	out := make([]string, len(c.instruments))
	for i, in := range c.instruments {
		out[i] = in.Code
	}
	return out
}

// BasePrices returns a copy of the base prices, parallel to Instruments.
func (c *Catalog) BasePrices() []decimal.Decimal {
	out := make([]decimal.Decimal, len(c.instruments))
	for i, in := range c.instruments {
		out[i] = in.BasePrice
	}
	return out
}

var (
	sharedOnce sync.Once
	shared     *Catalog
	sharedErr  error
)

// Shared returns the process-wide catalog, building it on the first call with
// n instruments (seed 0 means a random seed). Later calls return the same
// catalog whatever arguments they pass.
func Shared(n int, seed uint64) (*Catalog, error) {
	sharedOnce.Do(func() {
		if seed == 0 {
			seed = rand.Uint64()
		}
		shared, sharedErr = New(n, rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
	})
	return shared, sharedErr
}
