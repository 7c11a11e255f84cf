package align

import (
	"fmt"
	"io"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/bgzf/index"
	"github.com/grailbio/hts/sam"
)

// Iterator yields the records of one region query. Close must be called
// exactly once.
type Iterator interface {
	// Scan advances to the next record, returning false at the end of the
	// region or on error.
	Scan() bool
	// Record returns the current record. Valid only after a true Scan.
	Record() *sam.Record
	// Err returns the error that terminated iteration, if any.
	Err() error
	// Close releases the iterator. It returns Err().
	Close() error
}

// Provider is a region-queryable source of alignment records. It is safe
// for concurrent NewIterator calls, though each Iterator must be confined
// to one goroutine.
type Provider interface {
	// Header returns the SAM header. The caller must not modify it.
	Header() (*sam.Header, error)
	// NewIterator returns an iterator over records overlapping
	// [start, end) on ref. Errors are reported through the iterator.
	NewIterator(ref *sam.Reference, start, end int) Iterator
	// Close releases all resources. All iterators must be closed first.
	Close() error
}

// BAMProvider implements Provider for an indexed BAM file. The BAM and
// index paths may be S3 URLs or local paths. Iterators are pooled: a
// closed iterator's open file handle and readers are reused by the next
// NewIterator call, so repeated region queries against the same file do
// not pay the open/index-load cost each time.
type BAMProvider struct {
	// Path of the *.bam file. Must be nonempty.
	Path string
	// Index is the pathname of the *.bam.bai file. If "", Path + ".bai".
	Index string
	err   errors.Once

	mu        sync.Mutex
	nActive   int
	freeIters []*bamIterator
	header    *sam.Header
}

var _ Provider = (*BAMProvider)(nil)

// NewBAMProvider returns a provider reading path with its adjacent .bai
// index.
func NewBAMProvider(path string) *BAMProvider {
	return &BAMProvider{Path: path}
}

func (b *BAMProvider) indexPath() string {
	if b.Index == "" {
		return b.Path + ".bai"
	}
	return b.Index
}

// Header implements the Provider interface.
func (b *BAMProvider) Header() (*sam.Header, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.header != nil {
		return b.header, nil
	}
	ctx := vcontext.Background()
	in, err := file.Open(ctx, b.Path)
	if err != nil {
		b.err.Set(err)
		return nil, err
	}
	defer in.Close(ctx) // nolint: errcheck
	reader, err := bam.NewReader(in.Reader(ctx), 1)
	if err != nil {
		b.err.Set(err)
		return nil, err
	}
	defer reader.Close() // nolint: errcheck
	b.header = reader.Header()
	return b.header, nil
}

// Close implements the Provider interface.
func (b *BAMProvider) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.nActive > 0 {
		return fmt.Errorf("bam %s: %d iterators still active at Close", b.Path, b.nActive)
	}
	for _, iter := range b.freeIters {
		iter.internalClose()
	}
	b.freeIters = nil
	return b.err.Err()
}

// NewIterator implements the Provider interface.
func (b *BAMProvider) NewIterator(ref *sam.Reference, start, end int) Iterator {
	iter := b.allocateIterator()
	if iter.err != nil {
		return iter
	}
	iter.reset(ref, start, end)
	return iter
}

// allocateIterator returns an unused iterator, either from the free list
// or by opening the BAM and its index afresh. On error the returned
// iterator has a non-nil err field.
func (b *BAMProvider) allocateIterator() *bamIterator {
	b.mu.Lock()
	b.nActive++
	if n := len(b.freeIters); n > 0 {
		iter := b.freeIters[n-1]
		b.freeIters = b.freeIters[:n-1]
		b.mu.Unlock()
		iter.active = true
		iter.err = nil
		iter.done = false
		iter.next = nil
		return iter
	}
	b.mu.Unlock()

	iter := bamIterator{provider: b, active: true}
	ctx := vcontext.Background()
	if iter.in, iter.err = file.Open(ctx, b.Path); iter.err != nil {
		return &iter
	}
	var indexIn file.File
	if indexIn, iter.err = file.Open(ctx, b.indexPath()); iter.err != nil {
		return &iter
	}
	defer indexIn.Close(ctx) // nolint: errcheck
	if iter.index, iter.err = bam.ReadIndex(indexIn.Reader(ctx)); iter.err != nil {
		return &iter
	}
	iter.reader, iter.err = bam.NewReader(iter.in.Reader(ctx), 1)
	return &iter
}

func (b *BAMProvider) freeIterator(i *bamIterator) {
	i.active = false
	if i.Err() != nil {
		// The underlying reader may be mid-stream. Don't reuse it.
		i.internalClose()
		i = nil
	}
	b.mu.Lock()
	if i != nil {
		b.freeIters = append(b.freeIters, i)
	}
	b.nActive--
	b.mu.Unlock()
}

type bamIterator struct {
	provider *BAMProvider
	in       file.File
	reader   *bam.Reader
	index    *bam.Index

	// Region being read.
	ref        *sam.Reference
	start, end int

	active bool
	err    error
	done   bool
	next   *sam.Record
}

// reset positions the iterator at the first chunk that may contain
// records overlapping [start, end) on ref.
func (i *bamIterator) reset(ref *sam.Reference, start, end int) {
	i.ref = ref
	if start < 0 {
		start = 0
	}
	if end > ref.Len() {
		end = ref.Len()
	}
	i.start, i.end = start, end
	if start >= end {
		i.done = true
		return
	}
	chunks, err := i.index.Chunks(ref, start, end)
	if err == index.ErrInvalid || len(chunks) == 0 {
		// No reads indexed for this region.
		i.done = true
		return
	}
	if err != nil {
		i.err = err
		return
	}
	i.err = i.reader.Seek(chunks[0].Begin)
}

// Scan implements the Iterator interface.
func (i *bamIterator) Scan() bool {
	for {
		if i.err != nil || i.done {
			return false
		}
		rec, err := i.reader.Read()
		if err != nil {
			if err != io.EOF {
				i.err = err
			}
			i.done = true
			return false
		}
		if rec.Ref == nil || rec.Ref.ID() != i.ref.ID() || rec.Start() >= i.end {
			i.done = true
			return false
		}
		if rec.End() <= i.start {
			continue
		}
		i.next = rec
		return true
	}
}

// Record implements the Iterator interface.
func (i *bamIterator) Record() *sam.Record { return i.next }

// Err implements the Iterator interface.
func (i *bamIterator) Err() error { return i.err }

// Close implements the Iterator interface.
func (i *bamIterator) Close() error {
	err := i.Err()
	i.provider.freeIterator(i)
	return err
}

func (i *bamIterator) internalClose() {
	if i.reader != nil {
		if err := i.reader.Close(); err != nil && i.err == nil {
			i.err = err
		}
		i.reader = nil
	}
	if i.in != nil {
		ctx := vcontext.Background()
		if err := i.in.Close(ctx); err != nil && i.err == nil {
			i.err = err
		}
		i.in = nil
	}
	if i.err != nil {
		i.provider.err.Set(i.err)
	}
}
