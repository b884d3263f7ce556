// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"time"

	"github.com/524D/mzfeature/internal/featuredb"
	"github.com/524D/mzfeature/internal/finder"
	"github.com/524D/mzfeature/internal/lcms"
	"github.com/524D/mzfeature/internal/ms1ft"
	"github.com/524D/mzfeature/internal/scoring"
	"github.com/carbocation/pfx"
	"github.com/spf13/cobra"
)

// Program name and version, stored with the results in the feature database
const progName = "mzFeature"

var progVersion = `Unknown`

// Highest charge that can be requested with --charge
const maxChargeLimit = 60

// Verbosity of progress messages
const (
	infoDefault = iota
	infoSilent
	infoVerbose
)

// ErrRangeSpec is returned for a range like "5:2"
var ErrRangeSpec = errors.New("invalid range specified")

type params struct {
	minMass       float64
	maxMass       float64
	charge        string // charge range
	ppm           float64
	minScore      float64
	elutionWindow float64
	threads       int
	outFilename   string
	dbFilename    string
	extended      bool
	acceptProfile bool
	debugScans    string // print debug output for this scan range
	verbose       bool
	quiet         bool
	scoreFilter   string // score range of the summarize command
}

var par params

var rootCmd = &cobra.Command{
	Use:   "mzfeature",
	Short: "Detect MS1 features in LC-MS data",
	Long: `mzFeature finds the features (molecules observed at one or more charge
states over a range of MS1 scans) in an mzML file. Each spectrum is
deconvoluted into candidate masses, candidates are grouped over mass and
elution time, and the groups are scored with a likelihood ratio.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var findCmd = &cobra.Command{
	Use:   "find [options] <mzMLfile>",
	Short: "Find features in an mzML file",
	Long: `Find features in the MS1 spectra of an mzML file. The features are written
to a tab separated .ms1ft file, and optionally stored in an SQLite database.`,
	Example: `  mzfeature find yeast.mzML
    Find features in yeast.mzML using default parameters and write them
    to yeast.ms1ft.

  mzfeature find --charge 2:30 --minmass 3000 --ppm 5 --db runs.db yeast.mzML
    Idem, but only consider charges 2 to 30 and masses above 3000 Da with
    a 5 ppm m/z tolerance, and also store the features in runs.db`,
	Args: cobra.ExactArgs(1),
	RunE: runFind,
}

var summarizeCmd = &cobra.Command{
	Use:   "summarize [options] <ms1ftfile>",
	Short: "Print statistics of an .ms1ft file",
	Example: `  mzfeature summarize --scorefilter 0: yeast.ms1ft
    Print statistics of the features in yeast.ms1ft with a non-negative score`,
	Args: cobra.ExactArgs(1),
	RunE: runSummarize,
}

func init() {
	d := finder.DefaultParams()
	rootCmd.Version = progVersion
	rootCmd.AddCommand(findCmd)
	rootCmd.AddCommand(summarizeCmd)

	rootCmd.PersistentFlags().BoolVar(&par.verbose, "verbose", false,
		`Print more verbose progress information`)
	rootCmd.PersistentFlags().BoolVar(&par.quiet, "quiet", false,
		`Don't print any output except for errors`)

	findCmd.Flags().Float64Var(&par.minMass, "minmass", d.MinMass,
		"minimum monoisotopic `mass` (Da)")
	findCmd.Flags().Float64Var(&par.maxMass, "maxmass", d.MaxMass,
		"maximum monoisotopic `mass` (Da)")
	findCmd.Flags().StringVar(&par.charge, "charge",
		fmt.Sprintf("%d:%d", d.MinCharge, d.MaxCharge),
		"charge `range`")
	findCmd.Flags().Float64Var(&par.ppm, "ppm", float64(d.Tolerance),
		`m/z tolerance (ppm) for matching isotope peaks`)
	findCmd.Flags().Float64Var(&par.minScore, "score", d.MinScore,
		`minimum likelihood ratio score of reported features`)
	findCmd.Flags().Float64Var(&par.elutionWindow, "elution-window", d.ElutionWindow,
		`maximum normalized elution time difference of candidates
in the same feature (0-1)`)
	findCmd.Flags().IntVar(&par.threads, "threads", runtime.NumCPU(),
		`number of worker threads`)
	findCmd.Flags().StringVarP(&par.outFilename, "out", "o", "",
		"`filename` of the feature list. Default is the name of the\nmzML file with extension .ms1ft")
	findCmd.Flags().StringVar(&par.dbFilename, "db", "",
		"SQLite database `filename` to add the features to")
	findCmd.Flags().BoolVar(&par.extended, "extended", false,
		`add the scoring metrics as extra columns to the feature list`)
	findCmd.Flags().BoolVar(&par.acceptProfile, "acceptprofile", false,
		`Accept non-peak picked (profile) input.`)
	findCmd.Flags().StringVar(&par.debugScans, "debug", "",
		"Print debug output for given scan `range` e.g. 300:320")

	summarizeCmd.Flags().StringVar(&par.scoreFilter, "scorefilter", "",
		"only include features with a score in `range` e.g. 0:")
}

// Parse string like "-12:6" into 2 values, -12 and 6
// Parameters min and max are the "default" min/max values,
// when a value is not specified (e.g. "-12:"), the default is assigned
func parseIntRange(r string, min int, max int) (int, int, error) {
	re := regexp.MustCompile(`\s*(\-?\d*):(\-?\d*)`)
	m := re.FindStringSubmatch(r)
	minOut := min
	maxOut := max
	if len(m) >= 2 && m[1] != "" {
		minOut, _ = strconv.Atoi(m[1])
		if minOut < min {
			minOut = min
		}
	}
	if len(m) >= 3 && m[2] != "" {
		maxOut, _ = strconv.Atoi(m[2])
		if maxOut > max {
			maxOut = max
		}
	}
	var err error
	if minOut > maxOut {
		err = ErrRangeSpec
		minOut = maxOut
	}
	return minOut, maxOut, err
}

// Parse string like "-12.01e1:+6" into 2 values, -120.1 and 6.0
// Parameters min and max are the "default" min/max values,
// when a value is not specified (e.g. "-12.01e1:"), the default is assigned
func parseFloat64Range(r string, min float64, max float64) (
	float64, float64, error) {
	re := regexp.MustCompile(`\s*([-+]?[0-9]*\.?[0-9]*([eE][-+]?[0-9]+)?):([-+]?[0-9]*\.?[0-9]*([eE][-+]?[0-9]+)?)`)
	m := re.FindStringSubmatch(r)
	minOut := min
	maxOut := max
	if len(m) >= 2 && m[1] != "" {
		minOut, _ = strconv.ParseFloat(m[1], 64)
		if minOut < min {
			minOut = min
		}
	}
	if len(m) >= 4 && m[3] != "" {
		maxOut, _ = strconv.ParseFloat(m[3], 64)
		if maxOut > max {
			maxOut = max
		}
	}
	var err error
	if minOut > maxOut {
		err = ErrRangeSpec
		minOut = maxOut
	}
	return minOut, maxOut, err
}

func (p params) verbosity() int {
	switch {
	case p.quiet:
		return infoSilent
	case p.verbose:
		return infoVerbose
	}
	return infoDefault
}

// finderParams converts the command line options into feature finding
// parameters
func (p params) finderParams() (finder.Params, error) {
	fp := finder.DefaultParams()
	var err error
	fp.MinCharge, fp.MaxCharge, err = parseIntRange(p.charge, 1, maxChargeLimit)
	if err != nil {
		return fp, fmt.Errorf("charge %q: %w", p.charge, err)
	}
	if p.minMass <= 0 || p.minMass > p.maxMass {
		return fp, fmt.Errorf("mass %g:%g: %w", p.minMass, p.maxMass, ErrRangeSpec)
	}
	if p.elutionWindow < 0 || p.elutionWindow > 1 {
		return fp, fmt.Errorf("elution window %g: %w", p.elutionWindow, ErrRangeSpec)
	}
	fp.MinMass, fp.MaxMass = p.minMass, p.maxMass
	fp.Tolerance = lcms.Tolerance(p.ppm)
	fp.MinScore = p.minScore
	fp.ElutionWindow = p.elutionWindow
	fp.Threads = max(p.threads, 1)
	return fp, nil
}

// outputName returns the name of the feature list written for mzMLFilename
func (p params) outputName(mzMLFilename string) string {
	if p.outFilename != "" {
		return p.outFilename
	}
	ext := filepath.Ext(mzMLFilename)
	return mzMLFilename[0:len(mzMLFilename)-len(ext)] + ".ms1ft"
}

func runFind(cmd *cobra.Command, args []string) error {
	fp, err := par.finderParams()
	if err != nil {
		return err
	}
	mzMLFilename := args[0]
	verbosity := par.verbosity()

	t := time.Now()
	if verbosity == infoVerbose {
		fmt.Fprintf(os.Stderr, "Reading %s: ", mzMLFilename)
	}
	mzFile, err := os.Open(mzMLFilename)
	if err != nil {
		return pfx.Err(err)
	}
	defer mzFile.Close()
	run, err := lcms.NewMzMLRun(mzFile, par.acceptProfile)
	if err != nil {
		return pfx.Err(err)
	}
	if verbosity == infoVerbose {
		fmt.Fprintf(os.Stderr, "%s\n", time.Since(t))
	}

	model, err := scoring.DefaultModel()
	if err != nil {
		return pfx.Err(err)
	}
	fd := finder.New(fp, model)
	if verbosity == infoVerbose {
		fd.Progress = os.Stderr
	}
	res, err := fd.Find(cmd.Context(), run)
	if err != nil {
		return pfx.Err(err)
	}
	if par.debugScans != `` {
		debugMin, debugMax, err := parseIntRange(par.debugScans, 0, lastScanNum(run))
		if err != nil {
			return fmt.Errorf("debug %q: %w", par.debugScans, err)
		}
		debugLogScans(os.Stdout, res, debugMin, debugMax)
	}

	outFilename := par.outputName(mzMLFilename)
	if err := writeFeatures(outFilename, res, par.extended); err != nil {
		return err
	}
	if par.dbFilename != "" {
		if err := storeFeatures(par.dbFilename, mzMLFilename, fp, res); err != nil {
			return err
		}
	}
	if verbosity != infoSilent {
		fmt.Fprintf(os.Stderr, "%d features written to %s\n", len(res.Features), outFilename)
	}
	return nil
}

func lastScanNum(run lcms.Run) int {
	scanNums := run.Ms1ScanNums()
	if len(scanNums) == 0 {
		return 0
	}
	return scanNums[len(scanNums)-1]
}

func writeFeatures(filename string, res *finder.Result, extended bool) error {
	f, err := os.Create(filename)
	if err != nil {
		return pfx.Err(err)
	}
	if err := ms1ft.Write(f, res.Features, extended); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return pfx.Err(err)
	}
	return nil
}

// storedParams are the parameters recorded with a run in the database
type storedParams struct {
	Program string `json:"program"`
	Version string `json:"version"`
	finder.Params
}

func storeFeatures(dbFilename, mzMLFilename string, fp finder.Params, res *finder.Result) error {
	db, err := featuredb.Open(dbFilename)
	if err != nil {
		return err
	}
	defer db.Close()
	sp := storedParams{Program: progName, Version: progVersion, Params: fp}
	if _, err := db.WriteRun(filepath.Base(mzMLFilename), sp, res.Features); err != nil {
		return err
	}
	return nil
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		log.Fatalf("%s: %v", progName, err)
	}
}
