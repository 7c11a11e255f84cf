// Package squiggle reads and writes raw nanopore signal archives.
//
// An archive holds, per read, the full raw current trace as float32
// samples, keyed by the read's UUID. It fills the role a POD5 dataset
// plays for the extraction pipeline: an opaque container indexed by read
// identifier, queryable by a set of identifiers. The on-disk layout is a
// zstd-transformed recordio file with one record per read:
//
//	16 bytes  read UUID
//	 4 bytes  sample count (little endian uint32)
//	 n*4      float32 samples (little endian)
//
// Lookups scan the archive once per Signals call, collecting only the
// requested reads; archives are written once and never updated in place.
package squiggle

import (
	"encoding/binary"
	"math"

	"github.com/google/uuid"
	baseerrors "github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/recordio"
	"github.com/grailbio/base/recordio/recordiozstd"
	"github.com/grailbio/base/vcontext"
	"github.com/pkg/errors"
)

func init() {
	recordiozstd.Init()
}

const headerLen = 16 + 4

func marshalRead(id uuid.UUID, samples []float32) []byte {
	buf := make([]byte, headerLen+4*len(samples))
	copy(buf[:16], id[:])
	binary.LittleEndian.PutUint32(buf[16:], uint32(len(samples)))
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[headerLen+4*i:], math.Float32bits(s))
	}
	return buf
}

func unmarshalRead(buf []byte) (uuid.UUID, []float32, error) {
	if len(buf) < headerLen {
		return uuid.UUID{}, nil, errors.Errorf("truncated signal record: %d bytes", len(buf))
	}
	var id uuid.UUID
	copy(id[:], buf[:16])
	n := int(binary.LittleEndian.Uint32(buf[16:]))
	if len(buf) != headerLen+4*n {
		return uuid.UUID{}, nil, errors.Errorf("signal record for %v: want %d samples, have %d bytes of payload",
			id, n, len(buf)-headerLen)
	}
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[headerLen+4*i:]))
	}
	return id, samples, nil
}

// Writer appends reads to a signal archive. Not safe for concurrent use.
type Writer struct {
	out file.File
	rio recordio.Writer
	err baseerrors.Once
}

// NewWriter creates an archive at path, clobbering any existing file.
func NewWriter(path string) (*Writer, error) {
	ctx := vcontext.Background()
	out, err := file.Create(ctx, path)
	if err != nil {
		return nil, errors.Wrapf(err, "create signal archive %s", path)
	}
	w := &Writer{out: out}
	w.rio = recordio.NewWriter(out.Writer(ctx), recordio.WriterOpts{
		Transformers: []string{recordiozstd.Name},
	})
	w.rio.AddHeader(recordio.KeyTrailer, true)
	return w, nil
}

// Add appends one read's raw trace.
func (w *Writer) Add(id uuid.UUID, samples []float32) {
	w.rio.Append(marshalRead(id, samples))
}

// Close flushes and closes the archive. Must be called exactly once; it
// reports the first error encountered during writing.
func (w *Writer) Close() (err error) {
	w.err.Set(w.rio.Finish())
	ctx := vcontext.Background()
	w.err.Set(w.out.Close(ctx))
	return w.err.Err()
}

// Reader looks up raw traces in a signal archive by read ID.
type Reader struct {
	path string
}

// Open validates that the archive at path exists and is readable. The
// actual record scan happens per lookup.
func Open(path string) (*Reader, error) {
	ctx := vcontext.Background()
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.Wrapf(err, "open signal archive %s", path)
	}
	if err := in.Close(ctx); err != nil {
		return nil, err
	}
	return &Reader{path: path}, nil
}

// Path returns the archive path.
func (r *Reader) Path() string { return r.path }

// Signals returns the raw traces of the requested reads, keyed by ID.
// IDs absent from the archive are simply missing from the result; the
// caller decides whether that is worth reporting. A missing or corrupt
// archive is an error.
func (r *Reader) Signals(ids []uuid.UUID) (map[uuid.UUID][]float32, error) {
	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	out := make(map[uuid.UUID][]float32, len(ids))
	err := r.scan(func(id uuid.UUID, buf []byte) error {
		if !want[id] {
			return nil
		}
		_, samples, err := unmarshalRead(buf)
		if err != nil {
			return err
		}
		out[id] = samples
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReadIDs enumerates every read ID stored in the archive.
func (r *Reader) ReadIDs() ([]uuid.UUID, error) {
	var out []uuid.UUID
	err := r.scan(func(id uuid.UUID, _ []byte) error {
		out = append(out, id)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Reader) scan(fn func(id uuid.UUID, buf []byte) error) (err error) {
	ctx := vcontext.Background()
	in, err := file.Open(ctx, r.path)
	if err != nil {
		return errors.Wrapf(err, "open signal archive %s", r.path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	sc := recordio.NewScanner(in.Reader(ctx), recordio.ScannerOpts{})
	defer sc.Finish() // nolint: errcheck
	for sc.Scan() {
		buf := sc.Get().([]byte)
		if len(buf) < 16 {
			return errors.Errorf("%s: truncated signal record", r.path)
		}
		var id uuid.UUID
		copy(id[:], buf[:16])
		if err := fn(id, buf); err != nil {
			return err
		}
	}
	return sc.Err()
}
