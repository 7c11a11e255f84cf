// Package condition assembles alignment extraction and signal lookup into
// per-condition comparison units, and keeps a session's conditions in a
// label-keyed store.
package condition

import (
	"fmt"

	"github.com/genometechlab/currentview/align"
)

// StatsMap holds computed per-position statistics: reference position ->
// statistic name -> one scalar per read (NaN where a read lacks the
// position). Populated by the stats package, consumed by plotting layers;
// the core only carries it.
type StatsMap map[int]map[string][]float64

// Style holds the visualization attributes of a condition. The core never
// interprets these; they ride along for the plotting layer.
type Style struct {
	Color     string
	Alpha     float64
	LineWidth float64
	LineStyle string
}

// Condition is one (alignment file, signal archive, locus, read
// selection) unit of comparison. It exclusively owns its reads.
type Condition struct {
	// Label is the unique key of this condition within a session.
	Label string
	// Reads in the order the extraction yielded them.
	Reads []*align.ReadAlignment
	// Positions is the window of reference positions, always of odd
	// length, centered on TargetPos.
	Positions []int
	Contig    string
	TargetPos int
	// Source file paths.
	BAMPath    string
	SignalPath string
	// Stats is attached by the statistics calculator; nil until then.
	Stats StatsMap
	Style Style
}

// NReads returns the number of reads in the condition.
func (c *Condition) NReads() int { return len(c.Reads) }

// GenomicLocation renders the target locus as contig:position.
func (c *Condition) GenomicLocation() string {
	return fmt.Sprintf("%s:%d", c.Contig, c.TargetPos)
}
