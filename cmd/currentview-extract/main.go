package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/genometechlab/currentview/condition"
	"github.com/genometechlab/currentview/stats"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/base/vcontext"
)

var (
	bamPath       = flag.String("bam", "", "Input BAM path (index expected at <path>.bai); this xor -conditions-tsv required")
	signalsPath   = flag.String("signals", "", "Input signal archive path holding the raw traces of the BAM's reads")
	region        = flag.String("region", "", "Target locus, formatted as <contig>:<1-based pos>")
	label         = flag.String("label", "", "Condition label; defaults to condition-N")
	window        = flag.Int("window", 9, "Number of reference positions around the target; even values are widened by one")
	targetBases   = flag.String("target-base", "", "Keep only reads whose base at the target position is in this set, e.g. 'C' or 'CT'; case-insensitive")
	maxReads      = flag.Int("max-reads", 0, "Upper bound on reads per condition, sampled uniformly; 0 = unlimited")
	readIDs       = flag.String("read-ids", "", "Comma-separated read IDs to restrict extraction to; overrides -max-reads")
	excludeIndels = flag.Bool("exclude-indels", false, "Skip reads with an insertion or deletion inside the window")
	seed          = flag.Int64("seed", 42, "Seed for read sampling")
	statsSpec     = flag.String("stats", "median,std,duration", "Comma-separated per-position statistics to report")
	conditionsTSV = flag.String("conditions-tsv", "", "Batch mode: TSV with columns bam_path, signals_path, contig, pos, label, max_reads, target_base; this xor -bam required")
	outPath       = flag.String("out", "", "Output TSV path; empty or '-' writes to stdout")
)

// conditionRow is one line of the -conditions-tsv batch file. pos is
// 1-based, matching -region.
type conditionRow struct {
	BAMPath    string `tsv:"bam_path"`
	SignalPath string `tsv:"signals_path"`
	Contig     string `tsv:"contig"`
	Pos        int    `tsv:"pos"`
	Label      string `tsv:"label"`
	MaxReads   int    `tsv:"max_reads"`
	TargetBase string `tsv:"target_base"`
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "Options:\n")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	shutdown := grail.Init()
	defer shutdown()

	if (*bamPath == "") == (*conditionsTSV == "") {
		log.Fatalf("exactly one of -bam and -conditions-tsv is required")
	}
	statistics, err := stats.Parse(*statsSpec)
	if err != nil {
		log.Fatalf("-stats: %v", err)
	}

	store := condition.NewStore(condition.NewAssembler(*window, *seed))
	defer store.Close() // nolint: errcheck

	if *conditionsTSV != "" {
		if err := addBatch(store, *conditionsTSV); err != nil {
			log.Fatalf("%s: %v", *conditionsTSV, err)
		}
	} else {
		contig, pos, err := parseRegion(*region)
		if err != nil {
			log.Fatalf("-region: %v", err)
		}
		opts := condition.AddOpts{Label: *label}
		opts.TargetBases = []byte(*targetBases)
		opts.MaxReads = *maxReads
		opts.ExcludeIndels = *excludeIndels
		if *readIDs != "" {
			opts.ReadIDs = strings.Split(*readIDs, ",")
		}
		if _, err := store.Add(*bamPath, *signalsPath, contig, pos, opts); err != nil {
			log.Fatalf("%s: %v", *bamPath, err)
		}
	}
	if store.N() == 0 {
		log.Fatalf("no reads found for any condition")
	}

	calc := stats.NewCalculator(statistics...)
	for _, name := range store.Names() {
		cond, _ := store.Get(name)
		calc.Apply(cond)
	}
	if err := writeStats(store, calc, *outPath); err != nil {
		log.Fatalf("writing output: %v", err)
	}
}

// parseRegion splits "<contig>:<1-based pos>" and converts the position
// to the 0-based coordinates used internally.
func parseRegion(s string) (string, int, error) {
	i := strings.LastIndexByte(s, ':')
	if i <= 0 || i == len(s)-1 {
		return "", 0, fmt.Errorf("expected <contig>:<pos>, got %q", s)
	}
	pos, err := strconv.Atoi(strings.ReplaceAll(s[i+1:], ",", ""))
	if err != nil {
		return "", 0, fmt.Errorf("bad position in %q: %v", s, err)
	}
	if pos < 1 {
		return "", 0, fmt.Errorf("position must be >= 1 in %q", s)
	}
	return s[:i], pos - 1, nil
}

func addBatch(store *condition.Store, path string) error {
	ctx := vcontext.Background()
	in, err := file.Open(ctx, path)
	if err != nil {
		return err
	}
	defer in.Close(ctx) // nolint: errcheck

	r := tsv.NewReader(in.Reader(ctx))
	r.HasHeaderRow = true
	r.UseHeaderNames = true
	r.Comment = '#'
	nRow := 0
	for {
		var row conditionRow
		if err := r.Read(&row); err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
		nRow++
		if row.Pos < 1 {
			return fmt.Errorf("row %d: position must be >= 1, got %d", nRow, row.Pos)
		}
		opts := condition.AddOpts{Label: row.Label}
		opts.TargetBases = []byte(row.TargetBase)
		opts.MaxReads = row.MaxReads
		opts.ExcludeIndels = *excludeIndels
		if _, err := store.Add(row.BAMPath, row.SignalPath, row.Contig, row.Pos-1, opts); err != nil {
			return fmt.Errorf("row %d (%s): %v", nRow, row.Label, err)
		}
	}
	log.Printf("processed %d conditions from %s", nRow, path)
	return nil
}

// writeStats emits one row per condition, window position and read, with
// one column per statistic. Positions a read does not cover carry NaN.
func writeStats(store *condition.Store, calc *stats.Calculator, path string) error {
	ctx := vcontext.Background()
	var w io.Writer = os.Stdout
	if path != "" && path != "-" {
		out, err := file.Create(ctx, path)
		if err != nil {
			return err
		}
		defer out.Close(ctx) // nolint: errcheck
		w = out.Writer(ctx)
	}

	tw := tsv.NewWriter(w)
	header := "condition\tcontig\tpos\tread_id"
	for _, s := range calc.Statistics() {
		header += "\t" + s.Name()
	}
	tw.WriteString(header)
	if err := tw.EndLine(); err != nil {
		return err
	}
	for _, name := range store.Names() {
		cond, _ := store.Get(name)
		for _, pos := range cond.Positions {
			col := cond.Stats[pos]
			for j, ra := range cond.Reads {
				tw.WriteString(cond.Label)
				tw.WriteString(cond.Contig)
				tw.WriteString(strconv.Itoa(pos + 1))
				tw.WriteString(ra.ID)
				for _, s := range calc.Statistics() {
					tw.WriteString(strconv.FormatFloat(col[s.Name()][j], 'g', -1, 64))
				}
				if err := tw.EndLine(); err != nil {
					return err
				}
			}
		}
	}
	return tw.Flush()
}
