package align

import (
	"github.com/genometechlab/currentview/signal"
	"github.com/grailbio/hts/sam"
)

// Nanopore basecaller aux tags consumed by the extractor.
var (
	// tsTag is the sample index at which basecalling began.
	tsTag = sam.NewTag("ts")
	// mvTag is the move table: stride followed by per-element move flags.
	mvTag = sam.NewTag("mv")
	// nsTag is the total number of raw samples in the read.
	nsTag = sam.NewTag("ns")
)

// auxInt extracts an integer aux tag, accepting any of the SAM integer
// encodings.
func auxInt(rec *sam.Record, tag sam.Tag) (int, error) {
	aux := rec.AuxFields.Get(tag)
	if aux == nil {
		return 0, &MissingTagError{Read: rec.Name, Tag: tag.String()}
	}
	switch v := aux.Value().(type) {
	case int:
		return v, nil
	case int8:
		return int(v), nil
	case uint8:
		return int(v), nil
	case int16:
		return int(v), nil
	case uint16:
		return int(v), nil
	case int32:
		return int(v), nil
	case uint32:
		return int(v), nil
	}
	return 0, &MissingTagError{Read: rec.Name, Tag: tag.String()}
}

// moveTable decodes the mv tag. The tag is a byte-typed array whose first
// element is the stride and whose remainder are the move flags.
func moveTable(rec *sam.Record) (signal.MoveTable, error) {
	aux := rec.AuxFields.Get(mvTag)
	if aux == nil {
		return signal.MoveTable{}, &MissingTagError{Read: rec.Name, Tag: mvTag.String()}
	}
	var stride int
	var moves []uint8
	switch v := aux.Value().(type) {
	case []int8:
		if len(v) == 0 {
			return signal.MoveTable{}, &MissingTagError{Read: rec.Name, Tag: mvTag.String()}
		}
		stride = int(v[0])
		moves = make([]uint8, len(v)-1)
		for i, m := range v[1:] {
			moves[i] = uint8(m)
		}
	case []uint8:
		if len(v) == 0 {
			return signal.MoveTable{}, &MissingTagError{Read: rec.Name, Tag: mvTag.String()}
		}
		stride = int(v[0])
		moves = append(moves, v[1:]...)
	default:
		return signal.MoveTable{}, &MissingTagError{Read: rec.Name, Tag: mvTag.String()}
	}
	return signal.MoveTable{Stride: stride, Moves: moves}, nil
}
