// Package align extracts per-base alignments, annotated with raw-signal
// sample ranges, for nanopore reads covering a target genomic position.
//
// The Extractor reads an indexed BAM through the Provider abstraction,
// reconciles each record's CIGAR with its basecaller metadata (ts, mv and
// ns aux tags) via package signal, and applies read-level filters:
// base identity at the target column, indel purity over the window,
// explicit read-ID restriction, and reservoir-sampled read caps.
package align
