package align

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/genometechlab/currentview/signal"
	"github.com/grailbio/base/log"
	"github.com/grailbio/hts/sam"
)

const (
	// DefaultWindowSize is the window used when Opts.WindowSize is zero.
	DefaultWindowSize = 9
	// DefaultSeed seeds candidate sampling when the caller does not
	// choose a seed.
	DefaultSeed = 42
	// DefaultOversample is the candidate oversampling factor applied
	// before the base/indel filters get a chance to reject reads. A
	// tuned heuristic, not a derived constant; override via
	// Opts.Oversample.
	DefaultOversample = 1.5

	// regionPad extends the fetch region beyond the half-window so that
	// indels near the window edges cannot shift wanted bases out of the
	// fetched range.
	regionPad = 2

	// flagSkip excludes records that do not represent a read's primary
	// alignment.
	flagSkip = sam.Secondary | sam.Supplementary | sam.Unmapped
)

// Opts controls one Extract call.
type Opts struct {
	// WindowSize is the number of reference positions around the target.
	// Normalized up to the nearest odd value; 0 means DefaultWindowSize.
	WindowSize int
	// MatchedQueryBases, when nonempty, drops reads whose query base at
	// the target position is not in the set. Case-insensitive.
	MatchedQueryBases []byte
	// ExcludeIndels drops reads whose window is not a contiguous,
	// insertion-free run of matches.
	ExcludeIndels bool
	// ReadIDs, when non-nil, restricts extraction to the listed reads.
	ReadIDs map[string]bool
	// MaxReads caps the result size via two-phase candidate sampling;
	// 0 means unlimited. Ignored when ReadIDs is set.
	MaxReads int
	// Oversample overrides DefaultOversample when > 0.
	Oversample float64
}

// Extractor extracts windowed, signal-annotated read alignments around
// target positions of one alignment file.
type Extractor struct {
	provider Provider
	path     string
	seed     int64
}

// NewExtractor wraps an existing provider. The seed fixes all random
// sampling so that identical inputs reproduce identical read sets.
func NewExtractor(provider Provider, seed int64) *Extractor {
	return &Extractor{provider: provider, seed: seed}
}

// NewBAMExtractor opens the indexed BAM at path.
func NewBAMExtractor(path string, seed int64) *Extractor {
	return &Extractor{provider: NewBAMProvider(path), path: path, seed: seed}
}

// Close releases the underlying provider.
func (e *Extractor) Close() error {
	return e.provider.Close()
}

// Extract returns the reads covering targetPos on contig that survive the
// configured filters, each carrying its aligned bases with signal ranges.
//
// Per-read failures (missing basecaller tags, malformed CIGAR) are logged
// and skipped; they never abort the batch. An unknown contig returns
// *ContigNotFoundError.
func (e *Extractor) Extract(contig string, targetPos int, opts Opts) ([]*ReadAlignment, error) {
	header, err := e.provider.Header()
	if err != nil {
		return nil, err
	}
	var ref *sam.Reference
	for _, r := range header.Refs() {
		if r.Name() == contig {
			ref = r
			break
		}
	}
	if ref == nil {
		return nil, &ContigNotFoundError{Contig: contig, Path: e.path}
	}

	windowSize := opts.WindowSize
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	if windowSize%2 == 0 {
		windowSize++
	}
	half := (windowSize - 1) / 2
	searchStart := targetPos - half - regionPad
	if searchStart < 0 {
		searchStart = 0
	}
	searchEnd := targetPos + half + regionPad // inclusive

	maxReads := opts.MaxReads
	if opts.ReadIDs != nil && maxReads > 0 {
		log.Printf("extract %s:%d: both read IDs and max reads set; ignoring max reads", contig, targetPos)
		maxReads = 0
	}
	var baseSet map[byte]bool
	if len(opts.MatchedQueryBases) > 0 {
		baseSet = make(map[byte]bool, len(opts.MatchedQueryBases))
		for _, b := range opts.MatchedQueryBases {
			baseSet[upperBase(b)] = true
		}
	}
	rnd := rand.New(rand.NewSource(e.seed))

	if maxReads > 0 {
		// Phase 1: cheap column scan at the target position to reservoir-
		// sample candidate IDs, oversampled to absorb later rejections.
		over := opts.Oversample
		if over <= 0 {
			over = DefaultOversample
		}
		want := int(math.Ceil(float64(maxReads) * over))
		log.Printf("sampling up to %d candidate reads covering %s:%d", maxReads, contig, targetPos)
		candidates, err := e.sampleCandidates(ref, targetPos, baseSet, want, rnd)
		if err != nil {
			return nil, err
		}
		if len(candidates) == 0 {
			log.Printf("no candidate reads in %s:%d-%d", contig, searchStart, searchEnd)
			return nil, nil
		}
		idSet := make(map[string]bool, len(candidates))
		for _, id := range candidates {
			idSet[id] = true
		}
		// Phase 2: heavy extraction restricted to the candidate set.
		reads, err := e.collect(ref, searchStart, searchEnd, targetPos, windowSize, baseSet, opts.ExcludeIndels, idSet)
		if err != nil {
			return nil, err
		}
		// Phase 3: trim back down if the oversampled set over-survived.
		if len(reads) > maxReads {
			reads = subsample(reads, maxReads, rnd)
		} else if len(reads) < maxReads {
			log.Printf("extract %s:%d: only %d of %d requested reads passed filters", contig, targetPos, len(reads), maxReads)
		}
		return reads, nil
	}

	return e.collect(ref, searchStart, searchEnd, targetPos, windowSize, baseSet, opts.ExcludeIndels, opts.ReadIDs)
}

// collect runs full per-base extraction over the region [start, end]
// (inclusive), applying the per-read filters in order: base identity at
// the target, indel purity, read-ID restriction.
func (e *Extractor) collect(ref *sam.Reference, start, end, targetPos, windowSize int, baseSet map[byte]bool, excludeIndels bool, ids map[string]bool) ([]*ReadAlignment, error) {
	iter := e.provider.NewIterator(ref, start, end+1)
	var out []*ReadAlignment
	for iter.Scan() {
		rec := iter.Record()
		if rec.Flags&flagSkip != 0 {
			continue
		}
		if ids != nil && !ids[rec.Name] {
			continue
		}
		ra, err := e.buildRead(rec, start, end, targetPos, windowSize)
		if err != nil {
			log.Debug.Printf("skipping read %s: %v", rec.Name, err)
			continue
		}
		if ra == nil {
			continue
		}
		if baseSet != nil {
			b := ra.BaseAt(targetPos)
			if b == nil || b.QueryBase == 0 || !baseSet[upperBase(b.QueryBase)] {
				continue
			}
		}
		if excludeIndels && !ra.IndelFree(windowSize) {
			continue
		}
		out = append(out, ra)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

// buildRead turns one record into a ReadAlignment restricted to
// [start, end]. Returns (nil, nil) when the record has no aligned bases
// in the region.
func (e *Extractor) buildRead(rec *sam.Record, start, end, targetPos, windowSize int) (*ReadAlignment, error) {
	ts, err := auxInt(rec, tsTag)
	if err != nil {
		return nil, err
	}
	ns, err := auxInt(rec, nsTag)
	if err != nil {
		return nil, err
	}
	mt, err := moveTable(rec)
	if err != nil {
		return nil, err
	}
	seq := rec.Seq.Expand()
	reversed := rec.Flags&sam.Reverse != 0
	// Raw signal runs in sequencing order of the physical strand, so
	// reverse-strand reads index boundaries from the end.
	ranges := signal.BaseRanges(signal.Boundaries(mt, ts, ns), len(seq), reversed)

	bases, err := alignedBases(rec, start, end, ranges, seq)
	if err != nil {
		return nil, err
	}
	if len(bases) == 0 {
		return nil, nil
	}
	return &ReadAlignment{
		ID:         rec.Name,
		Bases:      bases,
		TargetPos:  targetPos,
		WindowSize: windowSize,
		Reversed:   reversed,
	}, nil
}

// alignedBases walks the CIGAR and emits one AlignedBase per alignment
// column with a reference position in [start, end], classifying each as
// match, insertion or deletion. Insertions are emitted only once the walk
// has entered the region, attached after the preceding reference
// position, mirroring how aligned-pair iteration treats them.
func alignedBases(rec *sam.Record, start, end int, ranges []signal.Range, seq []byte) ([]AlignedBase, error) {
	var out []AlignedBase
	pos := rec.Pos
	qpos := 0
	for _, co := range rec.Cigar {
		n := co.Len()
		switch co.Type() {
		case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch:
			for k := 0; k < n; k++ {
				rp := pos + k
				if rp < start {
					continue
				}
				if rp > end {
					break
				}
				qp := qpos + k
				b := AlignedBase{RefPos: rp, QueryPos: qp, Type: Match, QueryBase: seq[qp]}
				if qp < len(ranges) {
					b.SigRange = ranges[qp]
				}
				out = append(out, b)
			}
			pos += n
			qpos += n
		case sam.CigarInsertion:
			if pos > rec.Pos && pos-1 >= start && pos-1 <= end {
				for k := 0; k < n; k++ {
					qp := qpos + k
					b := AlignedBase{RefPos: -1, QueryPos: qp, Type: Insertion, QueryBase: seq[qp]}
					if qp < len(ranges) {
						b.SigRange = ranges[qp]
					}
					out = append(out, b)
				}
			}
			qpos += n
		case sam.CigarDeletion, sam.CigarSkipped:
			for k := 0; k < n; k++ {
				rp := pos + k
				if rp < start {
					continue
				}
				if rp > end {
					break
				}
				out = append(out, AlignedBase{RefPos: rp, QueryPos: -1, Type: Deletion})
			}
			pos += n
		case sam.CigarSoftClipped:
			qpos += n
		case sam.CigarHardClipped, sam.CigarPadded:
			// No bases consumed on either side.
		default:
			return nil, fmt.Errorf("read %s: unexpected CIGAR op %v", rec.Name, co)
		}
		if pos > end {
			break
		}
	}
	return out, nil
}

// sampleCandidates performs the phase-1 column scan: a single pass over
// the reads whose alignment covers the exact target column, reservoir-
// sampling (Algorithm R) up to max unique read IDs. Sampling at the one
// column, rather than taking the first N of the region fetch, avoids
// biasing toward reads entering the region first.
func (e *Extractor) sampleCandidates(ref *sam.Reference, targetPos int, baseSet map[byte]bool, max int, rnd *rand.Rand) ([]string, error) {
	iter := e.provider.NewIterator(ref, targetPos, targetPos+1)
	reservoir := make([]string, 0, max)
	seen := 0
	seenIDs := make(map[string]bool)
	for iter.Scan() {
		rec := iter.Record()
		if rec.Flags&flagSkip != 0 {
			continue
		}
		if seenIDs[rec.Name] {
			continue
		}
		qpos, ok := queryPosAt(rec, targetPos)
		if !ok {
			// Deletion spans the column; the read has no base here.
			continue
		}
		if baseSet != nil {
			seq := rec.Seq.Expand()
			if qpos >= len(seq) || !baseSet[upperBase(seq[qpos])] {
				continue
			}
		}
		seenIDs[rec.Name] = true
		seen++
		if len(reservoir) < max {
			reservoir = append(reservoir, rec.Name)
		} else if j := rnd.Intn(seen); j < max {
			reservoir[j] = rec.Name
		}
	}
	return reservoir, iter.Close()
}

// queryPosAt returns the query position aligned to refPos, or false when
// the read does not place a base there.
func queryPosAt(rec *sam.Record, refPos int) (int, bool) {
	pos := rec.Pos
	qpos := 0
	for _, co := range rec.Cigar {
		n := co.Len()
		switch co.Type() {
		case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch:
			if refPos >= pos && refPos < pos+n {
				return qpos + (refPos - pos), true
			}
			pos += n
			qpos += n
		case sam.CigarInsertion, sam.CigarSoftClipped:
			qpos += n
		case sam.CigarDeletion, sam.CigarSkipped:
			if refPos >= pos && refPos < pos+n {
				return 0, false
			}
			pos += n
		}
	}
	return 0, false
}

// subsample keeps exactly n reads, chosen uniformly without replacement,
// preserving the original order of the kept reads.
func subsample(reads []*ReadAlignment, n int, rnd *rand.Rand) []*ReadAlignment {
	idx := rnd.Perm(len(reads))[:n]
	sort.Ints(idx)
	out := make([]*ReadAlignment, 0, n)
	for _, i := range idx {
		out = append(out, reads[i])
	}
	return out
}

func upperBase(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - ('a' - 'A')
	}
	return b
}
