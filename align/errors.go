package align

import "fmt"

// ContigNotFoundError is returned by Extract when the requested contig is
// absent from the BAM header. An unknown contig is a structural input
// error, never a silent empty result.
type ContigNotFoundError struct {
	Contig string
	Path   string
}

func (e *ContigNotFoundError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("contig %q not found in alignment references", e.Contig)
	}
	return fmt.Sprintf("contig %q not found in references of %s", e.Contig, e.Path)
}

// MissingTagError reports a read record lacking one of the nanopore aux
// tags (ts, mv, ns) required for signal-coordinate mapping, or carrying it
// with an unusable type. It is a per-read condition: the extractor logs it
// and skips the read rather than aborting the batch.
type MissingTagError struct {
	Read string
	Tag  string
}

func (e *MissingTagError) Error() string {
	return fmt.Sprintf("read %s has no usable %s tag", e.Read, e.Tag)
}
