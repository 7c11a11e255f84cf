package align

import (
	"testing"

	"github.com/genometechlab/currentview/signal"
	"github.com/grailbio/testutil/expect"
)

// windowRead builds a read with matches at positions 100..104, two
// samples of signal per base starting at sample 10.
func windowRead() *ReadAlignment {
	ra := &ReadAlignment{ID: "read-1", TargetPos: 102, WindowSize: 5}
	for i := 0; i < 5; i++ {
		ra.Bases = append(ra.Bases, AlignedBase{
			RefPos:    100 + i,
			QueryPos:  20 + i,
			Type:      Match,
			QueryBase: "ACGTA"[i],
			SigRange:  signal.Range{Start: 10 + 2*i, End: 12 + 2*i},
		})
	}
	return ra
}

func TestBaseAt(t *testing.T) {
	ra := windowRead()
	b := ra.BaseAt(102)
	expect.NotNil(t, b)
	expect.EQ(t, b.QueryPos, 22)
	expect.EQ(t, b.QueryBase, byte('G'))
	expect.Nil(t, ra.BaseAt(99))
	expect.Nil(t, ra.BaseAt(105))
}

func TestIndelFree(t *testing.T) {
	ra := windowRead()
	expect.True(t, ra.IndelFree(5))
	expect.True(t, ra.IndelFree(3))

	// A deletion at 103 breaks the window.
	del := windowRead()
	del.Bases[3] = AlignedBase{RefPos: 103, QueryPos: -1, Type: Deletion}
	for i := 4; i < 5; i++ {
		del.Bases[i].QueryPos-- // bases after the deletion shift back
	}
	expect.False(t, del.IndelFree(5))
	// But a window that avoids the deletion is still clean.
	expect.True(t, del.IndelFree(1))

	// An insertion between 102 and 103 breaks the window even though all
	// five reference positions are present.
	ins := windowRead()
	ins.Bases = append(ins.Bases[:3:3],
		append([]AlignedBase{{RefPos: -1, QueryPos: 23, Type: Insertion, QueryBase: 'T'}},
			ins.Bases[3:]...)...)
	for i := 4; i < len(ins.Bases); i++ {
		ins.Bases[i].QueryPos++
	}
	expect.False(t, ins.IndelFree(5))
	expect.EQ(t, len(ins.InsertionsAfter(102)), 1)
	expect.Nil(t, ins.InsertionsAfter(101))
}

func TestAttachSignal(t *testing.T) {
	ra := windowRead()
	raw := make([]float32, 30)
	for i := range raw {
		raw[i] = float32(i)
	}
	ra.AttachSignal(raw)
	expect.EQ(t, ra.Signal, raw)
	for i, b := range ra.Bases {
		expect.EQ(t, len(b.Signal), 2)
		expect.EQ(t, b.Signal[0], float32(10+2*i))
	}
}

func TestAttachSignalTruncated(t *testing.T) {
	ra := windowRead()
	// Trace too short for the last two bases; they stay unattached.
	ra.AttachSignal(make([]float32, 15))
	expect.True(t, ra.Bases[0].HasSignal())
	expect.True(t, ra.Bases[2].HasSignal())
	expect.False(t, ra.Bases[3].HasSignal())
	expect.False(t, ra.Bases[4].HasSignal())
}

func TestWindowSignal(t *testing.T) {
	ra := windowRead()
	raw := make([]float32, 30)
	for i := range raw {
		raw[i] = float32(i)
	}
	ra.AttachSignal(raw)

	got := ra.WindowSignal(5)
	expect.EQ(t, got, []float32{10, 11, 12, 13, 14, 15, 16, 17, 18, 19})

	// k=3 keeps the center three bases only.
	expect.EQ(t, ra.WindowSignal(3), []float32{12, 13, 14, 15, 16, 17})

	// Reverse-strand segments are flipped sample-wise, position order kept.
	ra.Reversed = true
	expect.EQ(t, ra.WindowSignal(3), []float32{13, 12, 15, 14, 17, 16})
}

func TestWindowSignalMissingPositions(t *testing.T) {
	ra := windowRead()
	ra.AttachSignal(make([]float32, 30))
	// Window wider than the read: uncovered positions contribute nothing.
	expect.EQ(t, len(ra.WindowSignal(11)), 10)
}
