package condition

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/genometechlab/currentview/align"
	"github.com/genometechlab/currentview/encoding/squiggle"
	"github.com/google/uuid"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

var (
	testRef, _    = sam.NewReference("chr1", "", "", 10000, nil, nil)
	testHeader, _ = sam.NewHeader(nil, []*sam.Reference{testRef})
)

// fixture builds an assembler whose extractor cache is primed with a fake
// record source for bamPath, plus a real signal archive holding traces
// for the given read IDs.
type fixture struct {
	assembler  *Assembler
	bamPath    string
	signalPath string
	cleanup    func()
}

func newFixture(t *testing.T, recs []*sam.Record, signals map[uuid.UUID][]float32) *fixture {
	tempDir, cleanup := testutil.TempDir(t, "", "condition")
	bamPath := filepath.Join(tempDir, "reads.bam")
	// The BAM itself is never opened: the extractor cache is primed with
	// a fake provider. The file just needs to exist for validation.
	assert.NoError(t, os.WriteFile(bamPath, []byte("stub"), 0600))

	signalPath := filepath.Join(tempDir, "reads.sqg")
	w, err := squiggle.NewWriter(signalPath)
	assert.NoError(t, err)
	for id, samples := range signals {
		w.Add(id, samples)
	}
	assert.NoError(t, w.Close())

	a := NewAssembler(5, align.DefaultSeed)
	a.extractors[bamPath] = align.NewExtractor(align.NewFakeProvider(testHeader, recs), align.DefaultSeed)
	return &fixture{assembler: a, bamPath: bamPath, signalPath: signalPath, cleanup: cleanup}
}

func nanoporeRead(id uuid.UUID, pos, n int) *sam.Record {
	seq := make([]byte, n)
	for i := range seq {
		seq[i] = "ACGT"[i%4]
	}
	r := align.NewRecordSeq(id.String(), testRef, pos, 0,
		sam.Cigar{sam.NewCigarOp(sam.CigarMatch, n)}, string(seq))
	return align.AddSignalTags(r, 0, 2, align.UniformMoves(n, 1), 2*n)
}

func trace(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i)
	}
	return out
}

func TestProcess(t *testing.T) {
	id1 := uuid.MustParse("11111111-1111-4111-8111-111111111111")
	id2 := uuid.MustParse("22222222-2222-4222-8222-222222222222")
	fx := newFixture(t,
		[]*sam.Record{nanoporeRead(id1, 95, 20), nanoporeRead(id2, 95, 20)},
		map[uuid.UUID][]float32{id1: trace(40), id2: trace(40)})
	defer fx.cleanup()

	cond, err := fx.assembler.Process(fx.bamPath, fx.signalPath, "wt", "chr1", 100, ProcessOpts{})
	assert.NoError(t, err)
	assert.NotNil(t, cond)
	expect.EQ(t, cond.Label, "wt")
	expect.EQ(t, cond.NReads(), 2)
	expect.EQ(t, cond.Positions, []int{98, 99, 100, 101, 102})
	expect.EQ(t, cond.GenomicLocation(), "chr1:100")

	// Signal attached through to the per-base segments.
	b := cond.Reads[0].BaseAt(100)
	assert.NotNil(t, b)
	expect.True(t, b.HasSignal())
	expect.EQ(t, b.Signal, []float32{10, 11})
}

func TestProcessIdempotent(t *testing.T) {
	id1 := uuid.MustParse("11111111-1111-4111-8111-111111111111")
	fx := newFixture(t,
		[]*sam.Record{nanoporeRead(id1, 95, 20)},
		map[uuid.UUID][]float32{id1: trace(40)})
	defer fx.cleanup()

	first, err := fx.assembler.Process(fx.bamPath, fx.signalPath, "a", "chr1", 100, ProcessOpts{})
	assert.NoError(t, err)
	second, err := fx.assembler.Process(fx.bamPath, fx.signalPath, "b", "chr1", 100, ProcessOpts{})
	assert.NoError(t, err)
	assert.EQ(t, first.NReads(), second.NReads())
	expect.EQ(t, first.Reads[0].ID, second.Reads[0].ID)
	expect.EQ(t, first.Reads[0].Signal, second.Reads[0].Signal)
	// The extractor cache holds a single entry for the shared path.
	expect.EQ(t, len(fx.assembler.extractors), 1)
	expect.EQ(t, len(fx.assembler.readers), 1)
}

func TestProcessNoSignalOverlap(t *testing.T) {
	id1 := uuid.MustParse("11111111-1111-4111-8111-111111111111")
	other := uuid.MustParse("99999999-9999-4999-8999-999999999999")
	fx := newFixture(t,
		[]*sam.Record{nanoporeRead(id1, 95, 20)},
		map[uuid.UUID][]float32{other: trace(40)})
	defer fx.cleanup()

	// Archive holds no trace for the aligned read: not an error, just an
	// empty condition.
	cond, err := fx.assembler.Process(fx.bamPath, fx.signalPath, "wt", "chr1", 100, ProcessOpts{})
	assert.NoError(t, err)
	expect.Nil(t, cond)
}

func TestProcessNoReads(t *testing.T) {
	id1 := uuid.MustParse("11111111-1111-4111-8111-111111111111")
	fx := newFixture(t,
		[]*sam.Record{nanoporeRead(id1, 95, 20)},
		map[uuid.UUID][]float32{id1: trace(40)})
	defer fx.cleanup()

	cond, err := fx.assembler.Process(fx.bamPath, fx.signalPath, "wt", "chr1", 5000, ProcessOpts{})
	assert.NoError(t, err)
	expect.Nil(t, cond)
}

func TestProcessMissingFile(t *testing.T) {
	id1 := uuid.MustParse("11111111-1111-4111-8111-111111111111")
	fx := newFixture(t,
		[]*sam.Record{nanoporeRead(id1, 95, 20)},
		map[uuid.UUID][]float32{id1: trace(40)})
	defer fx.cleanup()

	_, err := fx.assembler.Process(fx.bamPath+".missing", fx.signalPath, "wt", "chr1", 100, ProcessOpts{})
	expect.True(t, err != nil)
}

func TestProcessUnknownContig(t *testing.T) {
	id1 := uuid.MustParse("11111111-1111-4111-8111-111111111111")
	fx := newFixture(t,
		[]*sam.Record{nanoporeRead(id1, 95, 20)},
		map[uuid.UUID][]float32{id1: trace(40)})
	defer fx.cleanup()

	_, err := fx.assembler.Process(fx.bamPath, fx.signalPath, "wt", "chrNope", 100, ProcessOpts{})
	expect.True(t, err != nil)
}

func TestProcessTargetBaseFilter(t *testing.T) {
	id1 := uuid.MustParse("11111111-1111-4111-8111-111111111111")
	fx := newFixture(t,
		[]*sam.Record{nanoporeRead(id1, 95, 20)},
		map[uuid.UUID][]float32{id1: trace(40)})
	defer fx.cleanup()

	// Base at 100 is seq[5] == 'C' in the ACGT repeat.
	cond, err := fx.assembler.Process(fx.bamPath, fx.signalPath, "hit", "chr1", 100,
		ProcessOpts{TargetBases: []byte{'C'}})
	assert.NoError(t, err)
	assert.NotNil(t, cond)

	cond, err = fx.assembler.Process(fx.bamPath, fx.signalPath, "miss", "chr1", 100,
		ProcessOpts{TargetBases: []byte{'T'}})
	assert.NoError(t, err)
	expect.Nil(t, cond)
}
