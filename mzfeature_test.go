package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/524D/mzfeature/internal/deconv"
	"github.com/524D/mzfeature/internal/feature"
	"github.com/524D/mzfeature/internal/finder"
	"github.com/524D/mzfeature/internal/ms1ft"
)

func TestParseFloat64Range(t *testing.T) {
	// Test case 1: Valid input range
	min, max, err := parseFloat64Range("0.5:1.5", 0.0, 2.0)
	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if min != 0.5 {
		t.Errorf("Expected min to be 0.5, got: %f", min)
	}
	if max != 1.5 {
		t.Errorf("Expected max to be 1.5, got: %f", max)
	}

	// Test case 2: Empty input range
	min, max, err = parseFloat64Range("", 0.0, 2.0)
	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if min != 0.0 {
		t.Errorf("Expected min to be 0.0, got: %f", min)
	}
	if max != 2.0 {
		t.Errorf("Expected max to be 2.0, got: %f", max)
	}

	// Test case 3: Invalid input range
	min, max, err = parseFloat64Range("2.5:1.5", 0.0, 2.0)
	if err == nil {
		t.Errorf("Expected error, got nil")
	}
	if !errors.Is(err, ErrRangeSpec) {
		t.Errorf("Expected error: %v, got: %v", ErrRangeSpec, err)
	}
	if min != 1.5 {
		t.Errorf("Expected min to be 1.5, got: %f", min)
	}
	if max != 1.5 {
		t.Errorf("Expected max to be 1.5, got: %f", max)
	}

	// Test case 4: Only max specified
	min, max, err = parseFloat64Range(":1.5", 0.0, 2.0)
	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if min != 0.0 {
		t.Errorf("Expected min to be 0.0, got: %f", min)
	}
	if max != 1.5 {
		t.Errorf("Expected max to be 1.5, got: %f", max)
	}

	// Test case 5: Only min specified
	min, max, err = parseFloat64Range("0.5:", 0.0, 2.0)
	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if min != 0.5 {
		t.Errorf("Expected min to be 0.5, got: %f", min)
	}
	if max != 2.0 {
		t.Errorf("Expected max to be 2.0, got: %f", max)
	}

	// Test case 6: Only ":" specified
	min, max, err = parseFloat64Range(":", 0.0, 2.0)
	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if min != 0.0 {
		t.Errorf("Expected min to be 0.0, got: %f", min)
	}
	if max != 2.0 {
		t.Errorf("Expected max to be 2.0, got: %f", max)
	}

	// Test case 7: Exponents in numbers
	min, max, err = parseFloat64Range("-2.0e10:3.0e10", -1000000000000.0, 1000000000000.0)
	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if min != -2.0e10 {
		t.Errorf("Expected min to be -2.0e10, got: %f", min)
	}
	if max != 3.0e10 {
		t.Errorf("Expected max to be 3.0e10, got: %f", max)
	}

	// Test case 8: Out of range
	min, max, err = parseFloat64Range("-2.0:2.0", -1.0, 1.0)
	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if min != -1.0 {
		t.Errorf("Expected min to be -1.0, got: %f", min)
	}
	if max != 1.0 {
		t.Errorf("Expected max to be 1.0, got: %f", max)
	}
}


func TestParseIntRange(t *testing.T) {
	tests := []struct {
		r        string
		min, max int
		wantErr  bool
	}{
		{"2:30", 2, 30, false},
		{"", 1, 60, false},
		{":12", 1, 12, false},
		{"5:", 5, 60, false},
		{"0:100", 1, 60, false},
		{"30:2", 2, 2, true},
	}
	for _, tc := range tests {
		min, max, err := parseIntRange(tc.r, 1, 60)
		if (err != nil) != tc.wantErr {
			t.Errorf("%q: unexpected error return %v", tc.r, err)
		}
		if err != nil && !errors.Is(err, ErrRangeSpec) {
			t.Errorf("%q: expected error: %v, got: %v", tc.r, ErrRangeSpec, err)
		}
		if min != tc.min || max != tc.max {
			t.Errorf("%q: expected %d:%d, got: %d:%d", tc.r, tc.min, tc.max, min, max)
		}
	}
}

func TestFinderParams(t *testing.T) {
	p := params{
		minMass:       3000,
		maxMass:       20000,
		charge:        "2:30",
		ppm:           5,
		minScore:      0,
		elutionWindow: 0.2,
		threads:       0,
	}
	fp, err := p.finderParams()
	if err != nil {
		t.Fatalf("finderParams: error return %v", err)
	}
	want := finder.DefaultParams()
	want.MinCharge, want.MaxCharge = 2, 30
	want.MinMass, want.MaxMass = 3000, 20000
	want.Tolerance = 5
	want.MinScore = 0
	want.ElutionWindow = 0.2
	want.Threads = 1
	if fp != want {
		t.Errorf("Expected %+v, got: %+v", want, fp)
	}

	bad := []params{
		{minMass: 3000, maxMass: 20000, charge: "30:2", elutionWindow: 0.2},
		{minMass: 30000, maxMass: 20000, charge: "1:60", elutionWindow: 0.2},
		{minMass: 3000, maxMass: 20000, charge: "1:60", elutionWindow: 1.5},
	}
	for _, b := range bad {
		if _, err := b.finderParams(); !errors.Is(err, ErrRangeSpec) {
			t.Errorf("%+v: expected error: %v, got: %v", b, ErrRangeSpec, err)
		}
	}
}

func TestOutputName(t *testing.T) {
	p := params{}
	if got := p.outputName("data/yeast.mzML"); got != "data/yeast.ms1ft" {
		t.Errorf("Expected data/yeast.ms1ft, got: %s", got)
	}
	p.outFilename = "out.tsv"
	if got := p.outputName("data/yeast.mzML"); got != "out.tsv" {
		t.Errorf("Expected out.tsv, got: %s", got)
	}
}

func TestVerbosity(t *testing.T) {
	if v := (params{verbose: true, quiet: true}).verbosity(); v != infoSilent {
		t.Errorf("Expected quiet to win, got: %d", v)
	}
	if v := (params{verbose: true}).verbosity(); v != infoVerbose {
		t.Errorf("Expected infoVerbose, got: %d", v)
	}
	if v := (params{}).verbosity(); v != infoDefault {
		t.Errorf("Expected infoDefault, got: %d", v)
	}
}

func TestDebugLogScans(t *testing.T) {
	res := &finder.Result{
		Candidates: []deconv.Ms1Feature{
			{Mass: 5000.1, Charge: 5, MinCharge: 4, MaxCharge: 6, ScanNum: 9},
			{Mass: 5000.2, Charge: 5, MinCharge: 5, MaxCharge: 5, ScanNum: 10},
			{Mass: 7000.3, Charge: 7, MinCharge: 7, MaxCharge: 8, ScanNum: 10},
			{Mass: 5000.4, Charge: 5, MinCharge: 5, MaxCharge: 5, ScanNum: 13},
		},
		Features: []*feature.Feature{
			{ID: 1, Mass: 5000.2, MinScanNum: 8, MaxScanNum: 11},
			{ID: 2, Mass: 9000.5, MinScanNum: 20, MaxScanNum: 25},
		},
	}
	var buf bytes.Buffer
	debugLogScans(&buf, res, 10, 12)
	out := buf.String()
	if strings.Count(out, "Scan:") != 1 || !strings.Contains(out, "Scan:10\n") {
		t.Errorf("Expected only scan 10, got:\n%s", out)
	}
	if !strings.Contains(out, "mass:7000.300000 charge:7(7:8)") {
		t.Errorf("Expected candidate 7000.3, got:\n%s", out)
	}
	if strings.Contains(out, "5000.100000") || strings.Contains(out, "5000.400000") {
		t.Errorf("Unexpected candidate outside scan range:\n%s", out)
	}
	if !strings.Contains(out, "feature:1 ") || strings.Contains(out, "feature:2 ") {
		t.Errorf("Expected only feature 1, got:\n%s", out)
	}
}

func TestSummarize(t *testing.T) {
	var records []*ms1ft.ExtendedRecord
	for i := 1; i <= 10; i++ {
		r := &ms1ft.ExtendedRecord{}
		r.MonoMass = 1000 * float64(i)
		r.LikelihoodRatio = float64(i)
		r.MaxCharge = i
		records = append(records, r)
	}
	var buf bytes.Buffer
	if err := summarize(&buf, records, 5, 1e300); err != nil {
		t.Fatalf("summarize: error return %v", err)
	}
	out := buf.String()
	for _, want := range []string{"6 of 10", "Median score:          7.50", "Highest charge:        10"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in output, got:\n%s", want, out)
		}
	}
	if err := summarize(&buf, records, 20, 30); !errors.Is(err, ms1ft.ErrNoFeatures) {
		t.Errorf("Expected ErrNoFeatures, got: %v", err)
	}
}
