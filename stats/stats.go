// Package stats computes per-read scalar statistics over windowed signal
// segments, the numbers downstream plotting and divergence layers
// compare across conditions.
package stats

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Kind enumerates the built-in statistics.
type Kind int

const (
	Mean Kind = iota
	Median
	Std
	Variance
	Min
	Max
	// Duration is the dwell time of the segment, in samples.
	Duration
	Skewness
	Kurtosis
)

var kindNames = [...]string{
	Mean:     "mean",
	Median:   "median",
	Std:      "std",
	Variance: "variance",
	Min:      "min",
	Max:      "max",
	Duration: "duration",
	Skewness: "skewness",
	Kurtosis: "kurtosis",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Statistic is a named scalar function over a signal segment. The
// identifier is resolved once, at construction: either a built-in Kind
// or a caller-supplied function. Empty segments evaluate to NaN, except
// Duration which is 0.
type Statistic struct {
	name string
	fn   func([]float64) float64
}

// Name returns the statistic's identifier, used as the key in StatsMap
// and in TSV column headers.
func (s Statistic) Name() string { return s.name }

// Eval applies the statistic to one segment.
func (s Statistic) Eval(xs []float64) float64 { return s.fn(xs) }

// Custom wraps a caller-supplied function as a Statistic.
func Custom(name string, fn func([]float64) float64) Statistic {
	return Statistic{name: name, fn: fn}
}

// Named returns the built-in statistic of the given kind.
func Named(k Kind) Statistic {
	switch k {
	case Mean:
		return Statistic{name: kindNames[k], fn: nanOnEmpty(func(xs []float64) float64 {
			return stat.Mean(xs, nil)
		})}
	case Median:
		return Statistic{name: kindNames[k], fn: nanOnEmpty(median)}
	case Std:
		return Statistic{name: kindNames[k], fn: nanOnEmpty(func(xs []float64) float64 {
			return stat.StdDev(xs, nil)
		})}
	case Variance:
		return Statistic{name: kindNames[k], fn: nanOnEmpty(func(xs []float64) float64 {
			return stat.Variance(xs, nil)
		})}
	case Min:
		return Statistic{name: kindNames[k], fn: nanOnEmpty(floats.Min)}
	case Max:
		return Statistic{name: kindNames[k], fn: nanOnEmpty(floats.Max)}
	case Duration:
		return Statistic{name: kindNames[k], fn: func(xs []float64) float64 {
			return float64(len(xs))
		}}
	case Skewness:
		return Statistic{name: kindNames[k], fn: nanOnEmpty(func(xs []float64) float64 {
			return stat.Skew(xs, nil)
		})}
	case Kurtosis:
		return Statistic{name: kindNames[k], fn: nanOnEmpty(func(xs []float64) float64 {
			return stat.ExKurtosis(xs, nil)
		})}
	}
	panic(fmt.Sprintf("unknown statistic kind %d", k))
}

// Default returns the statistics computed when the caller specifies
// none.
func Default() []Statistic {
	return []Statistic{Named(Mean), Named(Median), Named(Std)}
}

// Parse resolves a comma-separated statistic list such as
// "median,std,duration" into Statistics.
func Parse(spec string) ([]Statistic, error) {
	var out []Statistic
	for _, name := range strings.Split(spec, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if name == "skew" {
			name = "skewness"
		}
		found := false
		for k, kn := range kindNames {
			if name == kn {
				out = append(out, Named(Kind(k)))
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown statistic %q (supported: %s)",
				name, strings.Join(kindNames[:], ", "))
		}
	}
	if len(out) == 0 {
		return Default(), nil
	}
	return out, nil
}

func nanOnEmpty(fn func([]float64) float64) func([]float64) float64 {
	return func(xs []float64) float64 {
		if len(xs) == 0 {
			return math.NaN()
		}
		return fn(xs)
	}
}

func median(xs []float64) float64 {
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
