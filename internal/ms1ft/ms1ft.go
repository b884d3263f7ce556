// Package ms1ft reads and writes feature lists as tab separated .ms1ft
// files.
package ms1ft

import (
	"encoding/csv"
	"errors"
	"io"

	"github.com/524D/mzfeature/internal/feature"
	"github.com/carbocation/pfx"
	"github.com/gocarina/gocsv"
	"github.com/montanaflynn/stats"
)

// ErrNoFeatures is returned when statistics are requested for an empty list
var ErrNoFeatures = errors.New("no features")

// Record is one line of a .ms1ft file
type Record struct {
	FeatureID            int     `csv:"FeatureID"`
	MinScan              int     `csv:"MinScan"`
	MaxScan              int     `csv:"MaxScan"`
	MinCharge            int     `csv:"MinCharge"`
	MaxCharge            int     `csv:"MaxCharge"`
	MonoMass             float64 `csv:"MonoMass"`
	RepresentativeScan   int     `csv:"RepresentativeScan"`
	RepresentativeCharge int     `csv:"RepresentativeCharge"`
	RepresentativeMz     float64 `csv:"RepresentativeMz"`
	Abundance            float64 `csv:"Abundance"`
	ApexScanNum          int     `csv:"ApexScanNum"`
	ApexIntensity        float64 `csv:"ApexIntensity"`
	MinElutionTime       float64 `csv:"MinElutionTime"`
	MaxElutionTime       float64 `csv:"MaxElutionTime"`
	ElutionLength        float64 `csv:"ElutionLength"`
	Envelope             string  `csv:"Envelope"`
	LikelihoodRatio      float64 `csv:"LikelihoodRatio"`
}

// ExtendedRecord adds the scoring metrics to a Record. The extra columns
// are zero when a file without them is read.
type ExtendedRecord struct {
	Record
	BestCorrEven   float64 `csv:"BestCorrEven"`
	BestCorrOdd    float64 `csv:"BestCorrOdd"`
	SummedCorrEven float64 `csv:"SummedCorrEven"`
	SummedCorrOdd  float64 `csv:"SummedCorrOdd"`
	BestDistEven   float64 `csv:"BestDistEven"`
	BestDistOdd    float64 `csv:"BestDistOdd"`
	SummedDistEven float64 `csv:"SummedDistEven"`
	SummedDistOdd  float64 `csv:"SummedDistOdd"`
	BestIntEven    float64 `csv:"BestIntEven"`
	BestIntOdd     float64 `csv:"BestIntOdd"`
	SummedIntEven  float64 `csv:"SummedIntEven"`
	SummedIntOdd   float64 `csv:"SummedIntOdd"`
	AbuRatioEven   float64 `csv:"AbuRatioEven"`
	AbuRatioOdd    float64 `csv:"AbuRatioOdd"`
	XicCorrTop     float64 `csv:"XicCorrTop"`
	XicCorrParity  float64 `csv:"XicCorrParity"`
}

// NewRecord converts a feature
func NewRecord(f *feature.Feature) Record {
	return Record{
		FeatureID:            f.ID,
		MinScan:              f.MinScanNum,
		MaxScan:              f.MaxScanNum,
		MinCharge:            f.MinCharge,
		MaxCharge:            f.MaxCharge,
		MonoMass:             f.Mass,
		RepresentativeScan:   f.RepresentativeScanNum,
		RepresentativeCharge: f.RepresentativeCharge,
		RepresentativeMz:     f.RepresentativeMz,
		Abundance:            f.Abundance,
		ApexScanNum:          f.ApexScanNum,
		ApexIntensity:        f.ApexIntensity,
		MinElutionTime:       f.MinElutionTime,
		MaxElutionTime:       f.MaxElutionTime,
		ElutionLength:        f.ElutionLength(),
		Envelope:             f.EnvelopeString(),
		LikelihoodRatio:      f.Score,
	}
}

// NewExtendedRecord converts a feature including its metrics
func NewExtendedRecord(f *feature.Feature) ExtendedRecord {
	even, odd := f.Metrics.Parity[0], f.Metrics.Parity[1]
	return ExtendedRecord{
		Record:         NewRecord(f),
		BestCorrEven:   even.BestCorrelation,
		BestCorrOdd:    odd.BestCorrelation,
		SummedCorrEven: even.SummedCorrelation,
		SummedCorrOdd:  odd.SummedCorrelation,
		BestDistEven:   even.BestDistance,
		BestDistOdd:    odd.BestDistance,
		SummedDistEven: even.SummedDistance,
		SummedDistOdd:  odd.SummedDistance,
		BestIntEven:    even.BestIntensity,
		BestIntOdd:     odd.BestIntensity,
		SummedIntEven:  even.SummedIntensity,
		SummedIntOdd:   odd.SummedIntensity,
		AbuRatioEven:   even.AbundanceRatio,
		AbuRatioOdd:    odd.AbundanceRatio,
		XicCorrTop:     f.Metrics.XicCorrelation[0],
		XicCorrParity:  f.Metrics.XicCorrelation[1],
	}
}

func tabWriter(w io.Writer) *gocsv.SafeCSVWriter {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	return gocsv.NewSafeCSVWriter(cw)
}

// Write writes features in .ms1ft format. With extended set, the scoring
// metrics are added as extra columns.
func Write(w io.Writer, features []*feature.Feature, extended bool) error {
	var err error
	if extended {
		records := make([]*ExtendedRecord, len(features))
		for i, f := range features {
			r := NewExtendedRecord(f)
			records[i] = &r
		}
		err = gocsv.MarshalCSV(records, tabWriter(w))
	} else {
		records := make([]*Record, len(features))
		for i, f := range features {
			r := NewRecord(f)
			records[i] = &r
		}
		err = gocsv.MarshalCSV(records, tabWriter(w))
	}
	if err != nil {
		return pfx.Err(err)
	}
	return nil
}

// Read reads a .ms1ft file, with or without extended columns
func Read(r io.Reader) ([]*ExtendedRecord, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.LazyQuotes = true
	records := []*ExtendedRecord{}
	if err := gocsv.UnmarshalCSV(cr, &records); err != nil {
		return nil, pfx.Err(err)
	}
	return records, nil
}

// Summary holds distribution statistics of a feature list
type Summary struct {
	Features            int
	MedianMass          float64
	MedianScore         float64
	ScoreP10            float64
	ScoreP90            float64
	MedianElutionLength float64
	MaxCharge           int
}

// Summarize computes statistics of records
func Summarize(records []*ExtendedRecord) (Summary, error) {
	s := Summary{Features: len(records)}
	if len(records) == 0 {
		return s, ErrNoFeatures
	}
	mass := make(stats.Float64Data, len(records))
	score := make(stats.Float64Data, len(records))
	length := make(stats.Float64Data, len(records))
	for i, r := range records {
		mass[i] = r.MonoMass
		score[i] = r.LikelihoodRatio
		length[i] = r.ElutionLength
		s.MaxCharge = max(s.MaxCharge, r.MaxCharge)
	}
	var err error
	if s.MedianMass, err = stats.Median(mass); err != nil {
		return s, pfx.Err(err)
	}
	if s.MedianScore, err = stats.Median(score); err != nil {
		return s, pfx.Err(err)
	}
	if s.ScoreP10, err = stats.PercentileNearestRank(score, 10); err != nil {
		return s, pfx.Err(err)
	}
	if s.ScoreP90, err = stats.PercentileNearestRank(score, 90); err != nil {
		return s, pfx.Err(err)
	}
	if s.MedianElutionLength, err = stats.Median(length); err != nil {
		return s, pfx.Err(err)
	}
	return s, nil
}
