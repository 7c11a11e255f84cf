// Package signal maps nanopore basecaller move tables onto raw-signal
// sample coordinates.
//
// A basecaller emits, alongside the called sequence, a move table: a flag
// array recorded every Stride raw samples in which a 1 marks the start of a
// new base call. Together with the ts tag (the sample index at which
// basecalling began) the move table determines, for every called base, the
// half-open range of raw samples that produced it. All functions here are
// pure; they do no I/O and never panic on degenerate inputs.
package signal

// Range is a half-open interval [Start, End) of sample indices into a
// read's raw signal array. A realized range satisfies 0 <= Start < End.
type Range struct {
	Start int
	End   int
}

// Len returns the number of samples covered by r.
func (r Range) Len() int { return r.End - r.Start }

// IsZero reports whether r is the zero Range. Deletions, and bases for
// which no move-table mapping could be computed, carry a zero Range.
func (r Range) IsZero() bool { return r.Start == 0 && r.End == 0 }

// MoveTable is the decoded mv aux tag of a basecalled read. The first
// element of the raw tag array (the stride) is stored separately from the
// per-element move flags.
type MoveTable struct {
	Stride int
	Moves  []uint8
}

// Boundaries converts a move table into the sample-index boundaries of the
// called bases. Move event i contributes the boundary
// eventIndex*Stride + startSample, and totalSamples is appended as the
// terminal boundary, so a read of N bases yields N+1 boundaries.
//
// An empty move array yields nil: reads with no basecalled samples have no
// usable coordinate mapping and callers are expected to treat that as an
// empty result, not an error.
func Boundaries(mt MoveTable, startSample, totalSamples int) []int {
	if len(mt.Moves) == 0 {
		return nil
	}
	bounds := make([]int, 0, len(mt.Moves)+1)
	for i, m := range mt.Moves {
		if m != 0 {
			bounds = append(bounds, i*mt.Stride+startSample)
		}
	}
	if len(bounds) == 0 {
		return nil
	}
	return append(bounds, totalSamples)
}

// BaseRanges assigns each base index (0-based, in query-sequence order) its
// sample range. For a forward read, base i covers [bounds[i], bounds[i+1]).
// Raw signal is recorded in sequencing order of the physical strand, so for
// a reverse-complemented read base i instead covers
// [bounds[L-i-1], bounds[L-i]) where L is the sequence length.
//
// Returns nil when seqLen is zero or bounds does not hold at least
// seqLen+1 boundaries (a truncated or absent move table).
func BaseRanges(bounds []int, seqLen int, reversed bool) []Range {
	if seqLen == 0 || len(bounds) < seqLen+1 {
		return nil
	}
	ranges := make([]Range, seqLen)
	for i := 0; i < seqLen; i++ {
		if reversed {
			ranges[i] = Range{Start: bounds[seqLen-i-1], End: bounds[seqLen-i]}
		} else {
			ranges[i] = Range{Start: bounds[i], End: bounds[i+1]}
		}
	}
	return ranges
}
