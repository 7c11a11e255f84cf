package condition

import (
	"github.com/genometechlab/currentview/align"
	"github.com/genometechlab/currentview/encoding/squiggle"
	"github.com/google/uuid"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
)

// ProcessOpts selects and filters the reads of one condition.
type ProcessOpts struct {
	// TargetBases, when nonempty, keeps only reads whose query base at
	// the target position is in the set.
	TargetBases []byte
	// ReadIDs restricts extraction to the listed reads.
	ReadIDs []string
	// MaxReads caps the number of reads via candidate sampling; 0 means
	// unlimited. Ignored when ReadIDs is given.
	MaxReads int
	// ExcludeIndels keeps only reads whose window is indel-free.
	ExcludeIndels bool
}

// Assembler builds Conditions. It caches one alignment extractor and one
// signal-archive reader per distinct file path for its own lifetime, so
// conditions sharing a BAM/archive pair do not pay repeated file-handle
// setup. The caches are append-only and the assembler is not safe for
// concurrent use; guard it with a mutex if conditions must be processed
// in parallel.
type Assembler struct {
	k    int
	seed int64

	extractors map[string]*align.Extractor
	readers    map[string]*squiggle.Reader
}

// NewAssembler creates an assembler with window size k (normalized up to
// the nearest odd value) and the given sampling seed.
func NewAssembler(k int, seed int64) *Assembler {
	if k <= 0 {
		k = align.DefaultWindowSize
	}
	if k%2 == 0 {
		k++
		log.Debug.Printf("adjusted window size to %d (must be odd)", k)
	}
	return &Assembler{
		k:          k,
		seed:       seed,
		extractors: make(map[string]*align.Extractor),
		readers:    make(map[string]*squiggle.Reader),
	}
}

// WindowSize returns the normalized (odd) window size.
func (a *Assembler) WindowSize() int { return a.k }

// Close tears down every cached extractor. The assembler must not be
// used afterwards.
func (a *Assembler) Close() error {
	e := errors.Once{}
	for _, ext := range a.extractors {
		e.Set(ext.Close())
	}
	a.extractors = nil
	a.readers = nil
	return e.Err()
}

func (a *Assembler) extractor(bamPath string) *align.Extractor {
	ext, ok := a.extractors[bamPath]
	if !ok {
		log.Debug.Printf("creating new alignment extractor for %s", bamPath)
		ext = align.NewBAMExtractor(bamPath, a.seed)
		a.extractors[bamPath] = ext
	}
	return ext
}

func (a *Assembler) reader(signalPath string) (*squiggle.Reader, error) {
	r, ok := a.readers[signalPath]
	if !ok {
		log.Debug.Printf("creating new signal reader for %s", signalPath)
		var err error
		if r, err = squiggle.Open(signalPath); err != nil {
			return nil, err
		}
		a.readers[signalPath] = r
	}
	return r, nil
}

// Process extracts, signal-enriches and windows the reads of one
// condition. It returns (nil, nil), after logging a warning, when no
// reads survive alignment extraction or signal lookup: an empty
// condition is an expected outcome, not a fault. Structural problems
// (missing file, unknown contig, unreadable archive) are errors.
func (a *Assembler) Process(bamPath, signalPath, label, contig string, targetPos int, opts ProcessOpts) (*Condition, error) {
	ctx := vcontext.Background()
	for _, path := range []string{bamPath, signalPath} {
		if _, err := file.Stat(ctx, path); err != nil {
			return nil, errors.E(err, "input file not found:", path)
		}
	}

	log.Printf("condition %q: extracting reads at %s:%d from %s", label, contig, targetPos, bamPath)
	var ids map[string]bool
	if len(opts.ReadIDs) > 0 {
		ids = make(map[string]bool, len(opts.ReadIDs))
		for _, id := range opts.ReadIDs {
			ids[id] = true
		}
	}
	reads, err := a.extractor(bamPath).Extract(contig, targetPos, align.Opts{
		WindowSize:        a.k,
		MatchedQueryBases: opts.TargetBases,
		ExcludeIndels:     opts.ExcludeIndels,
		ReadIDs:           ids,
		MaxReads:          opts.MaxReads,
	})
	if err != nil {
		return nil, err
	}
	if len(reads) == 0 {
		log.Printf("condition %q: no reads found at %s:%d", label, contig, targetPos)
		return nil, nil
	}
	log.Printf("condition %q: found %d reads at %s:%d", label, len(reads), contig, targetPos)

	reads, err = a.attachSignals(signalPath, reads)
	if err != nil {
		return nil, err
	}
	if len(reads) == 0 {
		log.Printf("condition %q: no reads with signals found", label)
		return nil, nil
	}

	half := (a.k - 1) / 2
	positions := make([]int, a.k)
	for i := range positions {
		positions[i] = targetPos - half + i
	}
	return &Condition{
		Label:      label,
		Reads:      reads,
		Positions:  positions,
		Contig:     contig,
		TargetPos:  targetPos,
		BAMPath:    bamPath,
		SignalPath: signalPath,
	}, nil
}

// attachSignals fetches each read's raw trace from the archive and slices
// it onto the read's bases. Reads whose ID is absent from the archive, or
// is not a UUID at all, are dropped; the count discrepancy is logged.
func (a *Assembler) attachSignals(signalPath string, reads []*align.ReadAlignment) ([]*align.ReadAlignment, error) {
	reader, err := a.reader(signalPath)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(reads))
	for _, ra := range reads {
		id, err := uuid.Parse(ra.ID)
		if err != nil {
			log.Debug.Printf("read %s: not a signal-archive ID: %v", ra.ID, err)
			continue
		}
		ids = append(ids, id)
	}
	log.Printf("extracting signals for %d reads from %s", len(reads), signalPath)
	sigs, err := reader.Signals(ids)
	if err != nil {
		return nil, err
	}
	out := reads[:0]
	for _, ra := range reads {
		id, err := uuid.Parse(ra.ID)
		if err != nil {
			continue
		}
		raw, ok := sigs[id]
		if !ok {
			continue
		}
		ra.AttachSignal(raw)
		out = append(out, ra)
	}
	if len(out) != len(reads) {
		log.Printf("signal extraction incomplete: %d/%d reads have signals", len(out), len(reads))
	}
	return out, nil
}
