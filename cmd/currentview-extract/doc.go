// currentview-extract pulls the raw nanopore current aligned to a
// genomic window out of a BAM plus signal archive and reports
// per-position signal statistics, one condition per BAM/archive pair.
package main
