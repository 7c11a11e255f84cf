package align

import (
	"encoding/binary"
	"testing"

	"github.com/genometechlab/currentview/signal"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

// byteArrayAux builds a B,C (unsigned byte array) aux field from raw
// bytes, the encoding some basecallers use for the move table instead of
// the signed B,c form.
func byteArrayAux(name string, vals []uint8) sam.Aux {
	aux := []byte{name[0], name[1], 'B', 'C'}
	var count [4]byte
	binary.LittleEndian.PutUint32(count[:], uint32(len(vals)))
	aux = append(aux, count[:]...)
	return sam.Aux(append(aux, vals...))
}

func TestMoveTableByteArray(t *testing.T) {
	rec := NewRecordSeq("r1", testRef, 95, 0,
		sam.Cigar{sam.NewCigarOp(sam.CigarMatch, 3)}, "ACG")
	rec.AuxFields = append(rec.AuxFields,
		NewAux("ts", 0),
		NewAux("ns", 12),
		byteArrayAux("mv", []uint8{2, 1, 0, 1, 0, 1, 0}))

	mt, err := moveTable(rec)
	assert.NoError(t, err)
	expect.EQ(t, mt.Stride, 2)
	expect.EQ(t, mt.Moves, []uint8{1, 0, 1, 0, 1, 0})

	// The unsigned encoding flows through extraction like the signed one.
	reads, err := newTestExtractor(rec).Extract("chr1", 96, Opts{WindowSize: 1})
	assert.NoError(t, err)
	assert.EQ(t, len(reads), 1)
	b := reads[0].BaseAt(96)
	expect.NotNil(t, b)
	expect.EQ(t, b.SigRange, signal.Range{Start: 4, End: 8})
}

func TestMoveTableEmptyArray(t *testing.T) {
	rec := NewRecordSeq("r1", testRef, 95, 0,
		sam.Cigar{sam.NewCigarOp(sam.CigarMatch, 3)}, "ACG")
	rec.AuxFields = append(rec.AuxFields, byteArrayAux("mv", nil))
	_, err := moveTable(rec)
	expect.True(t, err != nil)
}
