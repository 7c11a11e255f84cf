package stats

import (
	"runtime"

	"github.com/exascience/pargo/parallel"
	"github.com/genometechlab/currentview/align"
	"github.com/genometechlab/currentview/condition"
	"github.com/grailbio/base/log"
)

// Positions in a window are independent, so a calculator fans the
// per-position columns out over a bounded pool. The cap keeps wide
// windows from oversubscribing machines whose cores are already busy
// decoding BAM blocks upstream.
const maxWorkerCap = 8

// Calculator evaluates a fixed set of statistics over condition reads.
type Calculator struct {
	statistics []Statistic

	// MaxWorkers bounds per-position parallelism. Zero or negative means
	// min(GOMAXPROCS, 8).
	MaxWorkers int
}

// NewCalculator builds a calculator. With no statistics given it
// computes the default set.
func NewCalculator(statistics ...Statistic) *Calculator {
	if len(statistics) == 0 {
		statistics = Default()
	}
	return &Calculator{statistics: statistics}
}

// Statistics returns the configured statistics in evaluation order.
func (c *Calculator) Statistics() []Statistic { return c.statistics }

func (c *Calculator) workers() int {
	n := c.MaxWorkers
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	if n > maxWorkerCap {
		n = maxWorkerCap
	}
	return n
}

// PerPosition evaluates every statistic at each of the k window
// positions centered on targetPos. The result maps position ->
// statistic name -> one value per read, in read order. Reads without an
// aligned, signal-bearing base at a position contribute NaN so the
// columns stay index-aligned with the read list.
func (c *Calculator) PerPosition(reads []*align.ReadAlignment, targetPos, k int) condition.StatsMap {
	if k%2 == 0 {
		k++
	}
	half := (k - 1) / 2

	// The per-position lookup table inside each read is built lazily on
	// first access. Touch it up front so the parallel columns only read.
	for _, ra := range reads {
		ra.BaseAt(targetPos)
	}

	out := make(condition.StatsMap, k)
	columns := make([]map[string][]float64, k)
	for i := 0; i < k; i++ {
		col := make(map[string][]float64, len(c.statistics))
		for _, s := range c.statistics {
			col[s.Name()] = make([]float64, len(reads))
		}
		columns[i] = col
		out[targetPos-half+i] = col
	}

	grain := (k + c.workers() - 1) / c.workers()
	parallel.Range(0, k, grain, func(low, high int) {
		for i := low; i < high; i++ {
			pos := targetPos - half + i
			col := columns[i]
			for j, ra := range reads {
				segment := positionSegment(ra, pos)
				for _, s := range c.statistics {
					col[s.Name()][j] = s.Eval(segment)
				}
			}
		}
	})
	return out
}

// PerRead evaluates every statistic over each read's full window signal,
// one value per read per statistic.
func (c *Calculator) PerRead(reads []*align.ReadAlignment, k int) map[string][]float64 {
	out := make(map[string][]float64, len(c.statistics))
	for _, s := range c.statistics {
		out[s.Name()] = make([]float64, len(reads))
	}
	for j, ra := range reads {
		window := toFloat64(ra.WindowSignal(k))
		for _, s := range c.statistics {
			out[s.Name()][j] = s.Eval(window)
		}
	}
	return out
}

// Apply computes per-position statistics for a condition and stores them
// on the condition itself.
func (c *Calculator) Apply(cond *condition.Condition) {
	if cond == nil || len(cond.Reads) == 0 {
		return
	}
	names := make([]string, len(c.statistics))
	for i, s := range c.statistics {
		names[i] = s.Name()
	}
	log.Debug.Printf("condition %q: computing %v over %d reads", cond.Label, names, cond.NReads())
	cond.Stats = c.PerPosition(cond.Reads, cond.TargetPos, len(cond.Positions))
}

// positionSegment returns the raw samples of the read's base at pos, or
// nil when the position is unaligned, deleted or signal-free.
func positionSegment(ra *align.ReadAlignment, pos int) []float64 {
	b := ra.BaseAt(pos)
	if b == nil || !b.HasSignal() {
		return nil
	}
	return toFloat64(b.Signal)
}

func toFloat64(xs []float32) []float64 {
	if len(xs) == 0 {
		return nil
	}
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = float64(x)
	}
	return out
}
