package main

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/524D/mzfeature/internal/ms1ft"
	"github.com/carbocation/pfx"
	"github.com/spf13/cobra"
)

func runSummarize(cmd *cobra.Command, args []string) error {
	minScore, maxScore, err := parseFloat64Range(par.scoreFilter, -math.MaxFloat64, math.MaxFloat64)
	if err != nil {
		return fmt.Errorf("scorefilter %q: %w", par.scoreFilter, err)
	}
	f, err := os.Open(args[0])
	if err != nil {
		return pfx.Err(err)
	}
	defer f.Close()
	records, err := ms1ft.Read(f)
	if err != nil {
		return err
	}
	return summarize(os.Stdout, records, minScore, maxScore)
}

// summarize prints statistics of the records with a score in
// [minScore, maxScore]
func summarize(w io.Writer, records []*ms1ft.ExtendedRecord, minScore, maxScore float64) error {
	var selected []*ms1ft.ExtendedRecord
	for _, r := range records {
		if r.LikelihoodRatio >= minScore && r.LikelihoodRatio <= maxScore {
			selected = append(selected, r)
		}
	}
	s, err := ms1ft.Summarize(selected)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Features:              %d of %d\n", s.Features, len(records))
	fmt.Fprintf(w, "Median mass:           %.4f\n", s.MedianMass)
	fmt.Fprintf(w, "Median score:          %.2f\n", s.MedianScore)
	fmt.Fprintf(w, "Score 10-90 percentile: %.2f:%.2f\n", s.ScoreP10, s.ScoreP90)
	fmt.Fprintf(w, "Median elution length: %.3f\n", s.MedianElutionLength)
	fmt.Fprintf(w, "Highest charge:        %d\n", s.MaxCharge)
	return nil
}
