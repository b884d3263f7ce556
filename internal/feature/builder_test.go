package feature

import (
	"math"
	"math/rand"
	"testing"

	"github.com/524D/mzfeature/internal/deconv"
	"github.com/524D/mzfeature/internal/isotope"
	"github.com/524D/mzfeature/internal/lcms"
	"github.com/524D/mzfeature/internal/scoring"
)

var elutionProfile = []float64{0.1, 0.3, 0.7, 1, 0.6, 0.25, 0.1}

// chargeAbundance is the abundance at the apex of each simulated charge
var chargeAbundance = map[int]float64{10: 1e6, 11: 6e5}

// syntheticRun elutes mass 10000 at charges 10 and 11 over scans 1 to 7,
// with low intensity noise
func syntheticRun(t *testing.T) *lcms.MemRun {
	t.Helper()
	theo, err := isotope.NewTheoreticalEnvelope(10000, 0, isotope.DefaultRelIntensityThreshold)
	if err != nil {
		t.Fatalf("NewTheoreticalEnvelope: error return %v", err)
	}
	rng := rand.New(rand.NewSource(5))
	var spectra []*lcms.Spectrum
	for i, p := range elutionProfile {
		var mz, intensity []float64
		for _, z := range []int{10, 11} {
			m, in := theo.Simulate(z, p*chargeAbundance[z])
			mz = append(mz, m...)
			intensity = append(intensity, in...)
		}
		for k := 0; k < 30; k++ {
			mz = append(mz, 800+rng.Float64()*400)
			intensity = append(intensity, 10+rng.Float64()*90)
		}
		spectra = append(spectra, lcms.NewSpectrum(i+1, float64(i)*0.5, mz, intensity))
	}
	run, err := lcms.NewMemRun(spectra)
	if err != nil {
		t.Fatalf("NewMemRun: error return %v", err)
	}
	return run
}

func testBuilder(t *testing.T) (*ClusterBuilder, *scoring.Model) {
	t.Helper()
	model, err := scoring.DefaultModel()
	if err != nil {
		t.Fatalf("DefaultModel: error return %v", err)
	}
	b := NewClusterBuilder(DefaultBuildParams(),
		isotope.NewEnvelopeCache(0, isotope.DefaultRelIntensityThreshold),
		deconv.NewSpectrumCache(syntheticRun(t), 7), model)
	return b, model
}

func TestBuild(t *testing.T) {
	b, model := testBuilder(t)
	f := b.Build(10000, 1, 7, 10, 11)
	if f == nil {
		t.Fatalf("Expected a feature")
	}
	if f.MinScanNum != 1 || f.MaxScanNum != 7 || f.MinCharge != 10 || f.MaxCharge != 11 {
		t.Errorf("Expected scans 1-7 and charges 10-11, got: scans %d-%d, charges %d-%d",
			f.MinScanNum, f.MaxScanNum, f.MinCharge, f.MaxCharge)
	}
	if math.Abs(f.Mass-10000) > 1e-6 {
		t.Errorf("Expected mass 10000, got: %f", f.Mass)
	}
	if f.ApexScanNum != 4 || f.RepresentativeScanNum != 4 || f.RepresentativeCharge != 10 {
		t.Errorf("Expected apex and representative scan 4 at charge 10, got: apex %d, representative %d/%d",
			f.ApexScanNum, f.RepresentativeScanNum, f.RepresentativeCharge)
	}
	want := 0.0
	for _, p := range elutionProfile {
		want += p * (chargeAbundance[10] + chargeAbundance[11])
	}
	if math.Abs(f.Abundance-want)/want > 1e-9 {
		t.Errorf("Expected abundance %f, got: %f", want, f.Abundance)
	}
	if f.MinElutionTime != 0 || f.MaxElutionTime != 3 || f.ElutionLength() != 3 {
		t.Errorf("Expected elution 0-3 minutes, got: %f-%f", f.MinElutionTime, f.MaxElutionTime)
	}
	if f.MinNet != 0 || f.MaxNet != 1 {
		t.Errorf("Expected NET 0-1, got: %f-%f", f.MinNet, f.MaxNet)
	}

	for p, m := range f.Metrics.Parity {
		if !m.Valid {
			t.Fatalf("Expected parity %d to be valid", p)
		}
		if m.BestCorrelation < 0.999 || m.SummedCorrelation < 0.999 {
			t.Errorf("Parity %d: expected correlations near 1, got: %f, %f", p, m.BestCorrelation, m.SummedCorrelation)
		}
		if m.BestDistance > 1e-6 || m.SummedDistance > 1e-6 {
			t.Errorf("Parity %d: expected distances near 0, got: %f, %f", p, m.BestDistance, m.SummedDistance)
		}
	}
	if r := f.Metrics.Parity[0].AbundanceRatio; math.Abs(r-0.625) > 1e-9 {
		t.Errorf("Expected even charge abundance ratio 0.625, got: %f", r)
	}
	for i, xc := range f.Metrics.XicCorrelation {
		if xc < 0.999 {
			t.Errorf("Expected XIC correlation %d near 1, got: %f", i, xc)
		}
	}
	if !f.GoodEnough {
		t.Errorf("Expected feature to be good enough")
	}
	if f.Score != model.Score(f.Metrics, f.Mass) {
		t.Errorf("Expected score %f, got: %f", model.Score(f.Metrics, f.Mass), f.Score)
	}
	if f.EnvelopeString() == "" {
		t.Errorf("Expected an envelope string")
	}

	if f := b.Build(7777, 1, 7, 7, 8); f != nil {
		t.Errorf("Expected no feature at mass 7777, got: %+v", *f)
	}
}

func TestRescore(t *testing.T) {
	b, _ := testBuilder(t)
	f := b.Build(10000, 1, 7, 10, 11)
	if f == nil {
		t.Fatalf("Expected a feature")
	}
	f.ID = 42
	inactive := make(map[isotope.PeakKey]bool)
	for _, e := range f.Envelopes {
		if e.ScanNum == 4 {
			for _, k := range e.PeakKeys() {
				inactive[k] = true
			}
		}
	}
	r := b.Rescore(f, inactive)
	if r == nil {
		t.Fatalf("Expected a rescored feature")
	}
	if r.ID != 42 {
		t.Errorf("Expected id 42, got: %d", r.ID)
	}
	if r.Abundance >= f.Abundance {
		t.Errorf("Expected lower abundance, got: %f >= %f", r.Abundance, f.Abundance)
	}
	if r.ApexScanNum != 3 {
		t.Errorf("Expected apex scan 3, got: %d", r.ApexScanNum)
	}
	for _, e := range r.Envelopes {
		if e.ScanNum == 4 {
			t.Errorf("Expected no envelope in scan 4")
		}
	}
	// The original feature is not modified
	if f.ApexScanNum != 4 || len(f.Envelopes) != 14 {
		t.Errorf("Expected original feature unchanged, got apex %d with %d envelopes", f.ApexScanNum, len(f.Envelopes))
	}

	for _, k := range f.PeakKeys() {
		inactive[k] = true
	}
	if r := b.Rescore(f, inactive); r != nil {
		t.Errorf("Expected nil after deactivating all peaks")
	}
}
