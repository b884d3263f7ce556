// This file contains code to help debugging, and is
// separated in from the rest in order not to litter
// the main code with debugging stuff

package main

import (
	"fmt"
	"io"

	"github.com/524D/mzfeature/internal/finder"
)

// debugLogScans prints the deconvolution candidates of the scans in
// [debugMin, debugMax] and the features that elute in these scans
func debugLogScans(w io.Writer, res *finder.Result, debugMin, debugMax int) {
	scan := -1
	for _, c := range res.Candidates {
		if c.ScanNum < debugMin || c.ScanNum > debugMax {
			continue
		}
		if c.ScanNum != scan {
			scan = c.ScanNum
			fmt.Fprintf(w, "Scan:%d\n", scan)
		}
		fmt.Fprintf(w, "  mass:%f charge:%d(%d:%d) mz:%f abundance:%g ranksum:%0.2f poisson:%0.2f corr:%0.3f\n",
			c.Mass, c.Charge, c.MinCharge, c.MaxCharge, c.RepresentativeMz,
			c.Abundance, c.RankSumScore, c.PoissonScore, c.Correlation)
	}
	fmt.Fprintf(w, "Features in scans %d:%d\n", debugMin, debugMax)
	for _, f := range res.Features {
		if f.MaxScanNum < debugMin || f.MinScanNum > debugMax {
			continue
		}
		fmt.Fprintf(w, "  feature:%d mass:%f scans:%d:%d charges:%d:%d apex:%d score:%0.2f envelope:%s\n",
			f.ID, f.Mass, f.MinScanNum, f.MaxScanNum, f.MinCharge, f.MaxCharge,
			f.ApexScanNum, f.Score, f.EnvelopeString())
	}
}
