// Package feature assembles LC-MS features from per spectrum candidates,
// scores them and resolves features that share peaks.
package feature

import (
	"fmt"
	"math"
	"strings"

	"github.com/524D/mzfeature/internal/isotope"
	"github.com/524D/mzfeature/internal/scoring"
)

// MajorIsotopes is the number of most abundant theoretical isotopes whose
// peaks a feature claims as its own
const MajorIsotopes = 3

// Feature is a cluster of isotope envelopes of one species over a range of
// scans and charge states
type Feature struct {
	ID                    int
	Mass                  float64 // representative monoisotopic mass
	MinScanNum            int
	MaxScanNum            int
	MinCharge             int
	MaxCharge             int
	RepresentativeScanNum int
	RepresentativeCharge  int
	RepresentativeMz      float64
	Abundance             float64
	ApexScanNum           int
	ApexIntensity         float64
	MinElutionTime        float64 // minutes
	MaxElutionTime        float64
	MinNet                float64
	MaxNet                float64
	Score                 float64
	GoodEnough            bool
	Envelopes             []*isotope.ObservedEnvelope
	Metrics               scoring.Metrics
}

// ElutionLength returns the elution time span in minutes
func (f *Feature) ElutionLength() float64 {
	return f.MaxElutionTime - f.MinElutionTime
}

// ScanLength returns the number of scan numbers covered, bounds included
func (f *Feature) ScanLength() int {
	return f.MaxScanNum - f.MinScanNum + 1
}

// CoElution returns the overlap of the scan ranges of f and g as a fraction
// of the shorter of the two. It is 0 when the ranges are disjoint.
func (f *Feature) CoElution(g *Feature) float64 {
	ov := min(f.MaxScanNum, g.MaxScanNum) - max(f.MinScanNum, g.MinScanNum) + 1
	if ov <= 0 {
		return 0
	}
	return float64(ov) / float64(min(f.ScanLength(), g.ScanLength()))
}

// NetGap returns the NET distance between the elution ranges of f and g, 0
// when they overlap
func (f *Feature) NetGap(g *Feature) float64 {
	return math.Max(0, math.Max(g.MinNet-f.MaxNet, f.MinNet-g.MaxNet))
}

// PeakKeys returns the keys of all peaks bound to the envelopes of f
func (f *Feature) PeakKeys() []isotope.PeakKey {
	var keys []isotope.PeakKey
	for _, e := range f.Envelopes {
		keys = append(keys, e.PeakKeys()...)
	}
	return keys
}

// MajorPeakKeys returns the keys of the peaks bound to the major isotopes
func (f *Feature) MajorPeakKeys() []isotope.PeakKey {
	var keys []isotope.PeakKey
	for _, e := range f.Envelopes {
		keys = append(keys, e.MajorPeakKeys(MajorIsotopes)...)
	}
	return keys
}

// SummedEnvelope returns the intensities of all envelopes summed per isotope
// slot, and the isotope offsets of the slots
func (f *Feature) SummedEnvelope() ([]int, []float64) {
	if len(f.Envelopes) == 0 {
		return nil, nil
	}
	theo := f.Envelopes[0].Theoretical
	offsets := make([]int, theo.Size())
	for i, iso := range theo.Isotopes {
		offsets[i] = iso.Index
	}
	sum := make([]float64, theo.Size())
	for _, e := range f.Envelopes {
		for i, p := range e.Peaks {
			if p != nil && i < len(sum) {
				sum[i] += p.Intensity
			}
		}
	}
	return offsets, sum
}

// EnvelopeString formats the summed envelope as "offset,ratio" pairs
// separated by ";", ratios relative to the most intense isotope. Isotopes
// without intensity are left out.
func (f *Feature) EnvelopeString() string {
	offsets, sum := f.SummedEnvelope()
	maxInt := 0.0
	for _, v := range sum {
		maxInt = math.Max(maxInt, v)
	}
	if maxInt <= 0 {
		return ""
	}
	var sb strings.Builder
	for i, v := range sum {
		if v <= 0 {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte(';')
		}
		fmt.Fprintf(&sb, "%d,%.3f", offsets[i], v/maxInt)
	}
	return sb.String()
}
