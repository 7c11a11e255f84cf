package stats

import (
	"math"
	"testing"

	"github.com/genometechlab/currentview/align"
	"github.com/genometechlab/currentview/condition"
	"github.com/genometechlab/currentview/signal"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

// windowedRead builds a read with matches at positions pos..pos+n-1, two
// samples per base starting at the given level.
func windowedRead(id string, pos, n int, level float32) *align.ReadAlignment {
	ra := &align.ReadAlignment{ID: id, TargetPos: pos + n/2, WindowSize: n}
	raw := make([]float32, 2*n)
	for i := range raw {
		raw[i] = level + float32(i)
	}
	for i := 0; i < n; i++ {
		ra.Bases = append(ra.Bases, align.AlignedBase{
			RefPos:    pos + i,
			QueryPos:  i,
			Type:      align.Match,
			QueryBase: 'A',
			SigRange:  signal.Range{Start: 2 * i, End: 2*i + 2},
		})
	}
	ra.AttachSignal(raw)
	return ra
}

func TestPerPosition(t *testing.T) {
	reads := []*align.ReadAlignment{
		windowedRead("r1", 98, 5, 0),
		windowedRead("r2", 98, 5, 100),
	}
	c := NewCalculator(Named(Mean), Named(Duration))
	got := c.PerPosition(reads, 100, 5)
	assert.EQ(t, len(got), 5)

	// Position 98 is segment {0,1} for r1 and {100,101} for r2.
	col := got[98]
	expect.EQ(t, col["mean"], []float64{0.5, 100.5})
	expect.EQ(t, col["duration"], []float64{2, 2})
	expect.EQ(t, got[102]["mean"], []float64{8.5, 108.5})
}

func TestPerPositionMissing(t *testing.T) {
	// r2 covers only 98..100, so the tail columns hold NaN for it.
	reads := []*align.ReadAlignment{
		windowedRead("r1", 98, 5, 0),
		windowedRead("r2", 98, 3, 0),
	}
	c := NewCalculator(Named(Mean))
	got := c.PerPosition(reads, 100, 5)
	expect.EQ(t, got[100]["mean"], []float64{4.5, 4.5})
	vals := got[102]["mean"]
	expect.EQ(t, vals[0], 8.5)
	expect.True(t, math.IsNaN(vals[1]))
}

func TestPerPositionEvenWindow(t *testing.T) {
	reads := []*align.ReadAlignment{windowedRead("r1", 98, 5, 0)}
	c := NewCalculator(Named(Mean))
	expect.EQ(t, len(c.PerPosition(reads, 100, 4)), 5)
}

func TestPerRead(t *testing.T) {
	reads := []*align.ReadAlignment{
		windowedRead("r1", 98, 5, 0),
		windowedRead("r2", 98, 5, 10),
	}
	c := NewCalculator(Named(Min), Named(Max), Named(Duration))
	got := c.PerRead(reads, 5)
	expect.EQ(t, got["min"], []float64{0, 10})
	expect.EQ(t, got["max"], []float64{9, 19})
	expect.EQ(t, got["duration"], []float64{10, 10})
}

func TestApply(t *testing.T) {
	cond := &condition.Condition{
		Label:     "wt",
		Reads:     []*align.ReadAlignment{windowedRead("r1", 98, 5, 0)},
		Positions: []int{98, 99, 100, 101, 102},
		TargetPos: 100,
	}
	NewCalculator(Named(Median)).Apply(cond)
	assert.EQ(t, len(cond.Stats), 5)
	expect.EQ(t, cond.Stats[100]["median"], []float64{4.5})

	// Empty conditions stay untouched.
	empty := &condition.Condition{Label: "none"}
	NewCalculator(Named(Median)).Apply(empty)
	expect.True(t, empty.Stats == nil)
}
