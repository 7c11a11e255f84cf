package align

import (
	"fmt"

	"github.com/grailbio/hts/sam"
)

// Test helpers for building synthetic nanopore records. Exported so that
// downstream packages (condition, stats) can assemble fixtures without a
// real BAM on disk.

// NewRecordSeq builds a mapped record with the given CIGAR and sequence.
func NewRecordSeq(name string, ref *sam.Reference, pos int, flags sam.Flags, cigar sam.Cigar, seq string) *sam.Record {
	r := sam.GetFromFreePool()
	r.Name = name
	r.Ref = ref
	r.Pos = pos
	r.MapQ = 60
	r.Flags = flags
	r.Cigar = cigar
	r.Seq = sam.NewSeq([]byte(seq))
	r.Qual = make([]byte, len(seq))
	return r
}

// NewAux builds an aux field, panicking on invalid input.
func NewAux(name string, val interface{}) sam.Aux {
	aux, err := sam.NewAux(sam.NewTag(name), val)
	if err != nil {
		panic(fmt.Sprintf("error creating %s %v tag: %v", name, val, err))
	}
	return aux
}

// AddSignalTags attaches the ts/mv/ns aux tags that the extractor expects
// on a basecalled nanopore record. moves excludes the leading stride
// element of the raw mv tag.
func AddSignalTags(r *sam.Record, ts, stride int, moves []byte, numSamples int) *sam.Record {
	mv := make([]int8, 0, len(moves)+1)
	mv = append(mv, int8(stride))
	for _, m := range moves {
		mv = append(mv, int8(m))
	}
	r.AuxFields = append(r.AuxFields,
		NewAux("ts", ts),
		NewAux("mv", mv),
		NewAux("ns", numSamples),
	)
	return r
}

// UniformMoves returns a move array describing nBases bases of equal
// dwell: one move flag every movesPerBase elements.
func UniformMoves(nBases, movesPerBase int) []byte {
	moves := make([]byte, nBases*movesPerBase)
	for i := 0; i < nBases; i++ {
		moves[i*movesPerBase] = 1
	}
	return moves
}
