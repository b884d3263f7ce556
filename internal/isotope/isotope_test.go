package isotope

import (
	"errors"
	"math"
	"testing"

	"github.com/524D/mzfeature/internal/lcms"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestTheoreticalEnvelopeInvariants(t *testing.T) {
	for mass := 300.0; mass <= 30000; mass += 497.3 {
		e, err := NewTheoreticalEnvelope(mass, 0, DefaultRelIntensityThreshold)
		if err != nil {
			t.Fatalf("NewTheoreticalEnvelope(%f): error return %v", mass, err)
		}
		var sum float64
		maxRatio := e.Isotopes[e.MostAbundantSlot()].Ratio
		for i, iso := range e.Isotopes {
			if iso.Ratio < 0 {
				t.Errorf("Mass %f: negative ratio %f", mass, iso.Ratio)
			}
			if iso.Ratio/maxRatio < DefaultRelIntensityThreshold {
				t.Errorf("Mass %f: isotope %d below threshold", mass, iso.Index)
			}
			if i > 0 && iso.Index <= e.Isotopes[i-1].Index {
				t.Errorf("Mass %f: isotopes not sorted by offset", mass)
			}
			sum += iso.Ratio
		}
		if sum > 1+1e-9 || math.Abs(sum-1) > 1e-9 {
			t.Errorf("Mass %f: expected ratio sum 1, got: %f", mass, sum)
		}
		if got, want := e.MostAbundantIsotope(), MostAbundantIsotopeIndex(mass); got != want {
			t.Errorf("Mass %f: expected most abundant isotope %d, got: %d", mass, want, got)
		}
	}
}

func TestMostAbundantIsotopeIndex(t *testing.T) {
	tests := []struct {
		mass float64
		want int
	}{
		{500, 0},
		{1000, 0},
		{2000, 1},
		{10000, 6},
		{30000, 18},
	}
	for _, tt := range tests {
		if got := MostAbundantIsotopeIndex(tt.mass); got != tt.want {
			t.Errorf("MostAbundantIsotopeIndex(%f): expected %d, got: %d", tt.mass, tt.want, got)
		}
	}
}

func TestTheoreticalEnvelopeRatios(t *testing.T) {
	e, err := NewTheoreticalEnvelope(1000, 0, DefaultRelIntensityThreshold)
	if err != nil {
		t.Fatalf("NewTheoreticalEnvelope: error return %v", err)
	}
	want := []Isotope{{0, 0.587}, {1, 0.314}, {2, 0.098}}
	opt := cmpopts.EquateApprox(0, 0.001)
	if diff := cmp.Diff(want, e.Isotopes, opt); diff != "" {
		t.Errorf("Isotopes mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{0, 1, 2}, e.Ranking); diff != "" {
		t.Errorf("Ranking mismatch (-want +got):\n%s", diff)
	}

	// The isotope count limit keeps the highest ranked isotopes
	e, err = NewTheoreticalEnvelope(10000, 3, DefaultRelIntensityThreshold)
	if err != nil {
		t.Fatalf("NewTheoreticalEnvelope: error return %v", err)
	}
	var offsets []int
	for _, iso := range e.Isotopes {
		offsets = append(offsets, iso.Index)
	}
	if diff := cmp.Diff([]int{5, 6, 7}, offsets); diff != "" {
		t.Errorf("Offsets mismatch (-want +got):\n%s", diff)
	}
}

func TestMalformedEnvelope(t *testing.T) {
	for _, mass := range []float64{0, -100, math.NaN(), math.Inf(1)} {
		_, err := NewTheoreticalEnvelope(mass, 0, DefaultRelIntensityThreshold)
		if !errors.Is(err, ErrMalformedEnvelope) {
			t.Errorf("Mass %f: expected error: %v, got: %v", mass, ErrMalformedEnvelope, err)
		}
	}
	// A threshold above 1 removes every isotope
	_, err := NewTheoreticalEnvelope(1000, 0, 1.5)
	if !errors.Is(err, ErrMalformedEnvelope) {
		t.Errorf("Expected error: %v, got: %v", ErrMalformedEnvelope, err)
	}
}

func TestEnvelopeCache(t *testing.T) {
	c := NewEnvelopeCache(0, DefaultRelIntensityThreshold)
	a, err := c.Get(2000.2)
	if err != nil {
		t.Fatalf("Get: error return %v", err)
	}
	b, err := c.Get(1999.9)
	if err != nil {
		t.Fatalf("Get: error return %v", err)
	}
	if a.MonoMass() != 2000.2 || b.MonoMass() != 1999.9 {
		t.Errorf("Expected exact mono masses, got: %f %f", a.MonoMass(), b.MonoMass())
	}
	if diff := cmp.Diff(a.Isotopes, b.Isotopes); diff != "" {
		t.Errorf("Same nominal mass must share the pattern (-a +b):\n%s", diff)
	}
	if got := c.MostAbundantIsotopeIndex(2000.2); got != 1 {
		t.Errorf("Expected most abundant isotope 1, got: %d", got)
	}
	if _, err := c.Get(-5); !errors.Is(err, ErrMalformedEnvelope) {
		t.Errorf("Expected error: %v, got: %v", ErrMalformedEnvelope, err)
	}
}

// envelopeSpectrum returns a spectrum holding the simulated envelope of
// mass at charge, plus one unrelated peak
func envelopeSpectrum(t *testing.T, mass float64, charge int) (*TheoreticalEnvelope, *lcms.Spectrum) {
	theo, err := NewTheoreticalEnvelope(mass, 0, DefaultRelIntensityThreshold)
	if err != nil {
		t.Fatalf("NewTheoreticalEnvelope: error return %v", err)
	}
	mz, intens := theo.Simulate(charge, 1e6)
	mz = append(mz, mz[0]-0.3)
	intens = append(intens, 5000)
	return theo, lcms.NewSpectrum(7, 10.0, mz, intens)
}

func anchorIndex(theo *TheoreticalEnvelope, charge int, s *lcms.Spectrum) int {
	return s.MaxPeakInMzWindow(theo.IsotopeMz(theo.MostAbundantSlot(), charge), 10)
}

func TestBind(t *testing.T) {
	theo, s := envelopeSpectrum(t, 2000, 2)
	e := Bind(theo, 2, s, 10, anchorIndex(theo, 2, s))

	if n := e.NumberOfPeaks(); n != theo.Size() {
		t.Errorf("Expected %d peaks, got: %d", theo.Size(), n)
	}
	if math.Abs(e.MonoMass()-2000) > 1e-6 {
		t.Errorf("Expected mono mass 2000, got: %f", e.MonoMass())
	}
	if math.Abs(e.Abundance()-1e6) > 1e-3 {
		t.Errorf("Expected abundance 1e6, got: %f", e.Abundance())
	}
	if c := e.PearsonCorrelation(); c < 0.9999 {
		t.Errorf("Expected correlation 1, got: %f", c)
	}
	if d := e.BhattacharyyaDistance(); d > 1e-9 {
		t.Errorf("Expected distance 0, got: %f", d)
	}
	if e.MostAbundantIsotope() != theo.MostAbundantIsotope() {
		t.Errorf("Expected most abundant isotope %d, got: %d", theo.MostAbundantIsotope(), e.MostAbundantIsotope())
	}
	if e.MinMzPeak().Mz >= e.MaxMzPeak().Mz {
		t.Errorf("Expected MinMzPeak < MaxMzPeak")
	}
	if e.RepresentativePeak() != e.Peaks[theo.MostAbundantSlot()] {
		t.Errorf("Expected the anchor as representative peak")
	}
}

func TestDeactivate(t *testing.T) {
	theo, s := envelopeSpectrum(t, 2000, 2)
	e := Bind(theo, 2, s, 10, anchorIndex(theo, 2, s))
	removed := e.Peaks[0]
	d := e.Deactivate(map[PeakKey]bool{{ScanNum: 7, Index: removed.Index}: true})

	if e.Peaks[0] == nil {
		t.Errorf("Deactivate must not modify the receiver")
	}
	if d.NumberOfPeaks() != e.NumberOfPeaks()-1 {
		t.Errorf("Expected %d peaks, got: %d", e.NumberOfPeaks()-1, d.NumberOfPeaks())
	}
	if math.Abs(d.Abundance()-(e.Abundance()-removed.Intensity)) > 1e-6 {
		t.Errorf("Abundance must equal the sum of the remaining peaks, got: %f", d.Abundance())
	}
	p := d.Probability()
	if p[0] != 0 {
		t.Errorf("Expected probability 0 for the cleared slot, got: %f", p[0])
	}
	var sum float64
	for _, v := range p {
		sum += v
	}
	if sum > 1+1e-12 {
		t.Errorf("Probability sum %f exceeds 1", sum)
	}
	if d.PearsonCorrelation() >= e.PearsonCorrelation() {
		t.Errorf("Expected lower correlation after losing a peak")
	}
}

func TestMajorPeakKeys(t *testing.T) {
	theo, s := envelopeSpectrum(t, 10000, 10)
	e := Bind(theo, 10, s, 10, anchorIndex(theo, 10, s))
	keys := e.MajorPeakKeys(3)
	if len(keys) != 3 {
		t.Fatalf("Expected 3 major peaks, got: %d", len(keys))
	}
	want := e.Peaks[theo.MostAbundantSlot()].Index
	if keys[0].Index != want || keys[0].ScanNum != 7 {
		t.Errorf("Expected first major peak %d in scan 7, got: %+v", want, keys[0])
	}
	if len(e.PeakKeys()) != e.NumberOfPeaks() {
		t.Errorf("Expected one key per bound peak")
	}
}

func TestBindMissingPeaks(t *testing.T) {
	theo, err := NewTheoreticalEnvelope(2000, 0, DefaultRelIntensityThreshold)
	if err != nil {
		t.Fatalf("NewTheoreticalEnvelope: error return %v", err)
	}
	mz, intens := theo.Simulate(1, 1000)
	// Only the two most abundant isotopes are present
	s := lcms.NewSpectrum(3, 1, mz[:2], intens[:2])
	e := Bind(theo, 1, s, 10, 1)
	if e.NumberOfPeaks() != 2 {
		t.Errorf("Expected 2 peaks, got: %d", e.NumberOfPeaks())
	}
	p := e.Probability()
	for slot := 2; slot < len(p); slot++ {
		if p[slot] != 0 {
			t.Errorf("Expected probability 0 for missing slot %d, got: %f", slot, p[slot])
		}
	}
	if math.Abs(e.Abundance()-(intens[0]+intens[1])) > 1e-9 {
		t.Errorf("Expected abundance %f, got: %f", intens[0]+intens[1], e.Abundance())
	}
}
