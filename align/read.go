package align

import (
	"github.com/genometechlab/currentview/signal"
)

// BaseType classifies one column of an alignment.
type BaseType int8

const (
	// Match is a reference-aligned base (match or mismatch).
	Match BaseType = iota
	// Insertion is a query base with no reference position.
	Insertion
	// Deletion is a reference position with no query base.
	Deletion
)

func (t BaseType) String() string {
	switch t {
	case Match:
		return "match"
	case Insertion:
		return "insertion"
	case Deletion:
		return "deletion"
	}
	return "unknown"
}

// AlignedBase is one column of a read's alignment. Positions use -1 for
// "none": RefPos is -1 for insertions, QueryPos is -1 for deletions.
// SigRange is the zero Range exactly when the base carries no query
// position (deletions) or when the read's move table could not be mapped.
// Signal is attached after extraction by ReadAlignment.AttachSignal.
type AlignedBase struct {
	RefPos    int
	QueryPos  int
	Type      BaseType
	SigRange  signal.Range
	RefBase   byte // 0 when the reference base is unknown
	QueryBase byte // 0 for deletions
	Signal    []float32
}

// HasSignal reports whether a raw-signal segment has been attached.
func (b *AlignedBase) HasSignal() bool { return b.Signal != nil }

// ReadAlignment is one sequencing read's alignment over the extraction
// region. It is created by the Extractor, enriched with raw signal by the
// signal-attachment step, and immutable afterwards. Not safe for
// concurrent use: the ref-pos lookup tables are built lazily.
type ReadAlignment struct {
	// ID is the read identifier (the BAM query name, UUID-like for
	// nanopore data). Unique key within a Condition.
	ID string
	// Bases in alignment order.
	Bases []AlignedBase
	// TargetPos is the reference position the window is centered on.
	TargetPos int
	// WindowSize is the (odd) window the read was extracted for.
	WindowSize int
	// Reversed reports whether the read aligned to the reverse strand.
	Reversed bool
	// Signal is the read's full raw current trace, set by AttachSignal.
	Signal []float32

	byRefPos        map[int]int
	insertionsAfter map[int][]int
}

// BaseAt returns the reference-aligned base at refPos, or nil if the read
// has no column there.
func (r *ReadAlignment) BaseAt(refPos int) *AlignedBase {
	if r.byRefPos == nil {
		r.byRefPos = make(map[int]int, len(r.Bases))
		for i := range r.Bases {
			if r.Bases[i].RefPos >= 0 {
				r.byRefPos[r.Bases[i].RefPos] = i
			}
		}
	}
	i, ok := r.byRefPos[refPos]
	if !ok {
		return nil
	}
	return &r.Bases[i]
}

// InsertionsAfter returns the inserted bases that follow the given
// reference position, in query order.
func (r *ReadAlignment) InsertionsAfter(refPos int) []*AlignedBase {
	if r.insertionsAfter == nil {
		r.insertionsAfter = make(map[int][]int)
		prev := -1
		for i := range r.Bases {
			if r.Bases[i].RefPos >= 0 {
				prev = r.Bases[i].RefPos
			} else if prev >= 0 {
				r.insertionsAfter[prev] = append(r.insertionsAfter[prev], i)
			}
		}
	}
	idx := r.insertionsAfter[refPos]
	if len(idx) == 0 {
		return nil
	}
	out := make([]*AlignedBase, len(idx))
	for i, j := range idx {
		out[i] = &r.Bases[j]
	}
	return out
}

// IndelFree reports whether every position in the odd window centered on
// the target is a contiguous match: query positions must advance by
// exactly one per reference step, and no insertion may sit between
// consecutive window positions.
func (r *ReadAlignment) IndelFree(windowSize int) bool {
	if windowSize%2 == 0 {
		windowSize++
	}
	center := r.BaseAt(r.TargetPos)
	if center == nil || center.QueryPos < 0 {
		return false
	}
	half := windowSize / 2
	for off := -half; off <= half; off++ {
		b := r.BaseAt(r.TargetPos + off)
		if b == nil || b.QueryPos != center.QueryPos+off {
			return false
		}
		if off < half && len(r.InsertionsAfter(r.TargetPos+off)) > 0 {
			return false
		}
	}
	return true
}

// AttachSignal stores the read's full raw trace and slices each
// query-bearing base's sample range out of it. Bases whose range falls
// outside the trace (truncated signal coverage) are left without a
// segment; deletions are skipped.
func (r *ReadAlignment) AttachSignal(raw []float32) {
	r.Signal = raw
	for i := range r.Bases {
		b := &r.Bases[i]
		if b.QueryPos < 0 || b.SigRange.IsZero() {
			continue
		}
		rg := b.SigRange
		if rg.Start < 0 || rg.End > len(raw) || rg.Len() <= 0 {
			continue
		}
		b.Signal = raw[rg.Start:rg.End]
	}
}

// WindowSignal concatenates the per-base signal segments across the odd
// window of size k centered on the target position, in reference order.
// Segments of reverse-strand reads are recorded back-to-front in the raw
// trace and are flipped so the result always runs 5'->3' of the
// reference. Positions the read does not cover contribute nothing.
func (r *ReadAlignment) WindowSignal(k int) []float32 {
	if k <= 0 {
		k = r.WindowSize
	}
	if k%2 == 0 {
		k++
	}
	half := k / 2
	var out []float32
	for pos := r.TargetPos - half; pos <= r.TargetPos+half; pos++ {
		b := r.BaseAt(pos)
		if b == nil || !b.HasSignal() {
			continue
		}
		if r.Reversed {
			for i := len(b.Signal) - 1; i >= 0; i-- {
				out = append(out, b.Signal[i])
			}
		} else {
			out = append(out, b.Signal...)
		}
	}
	return out
}
