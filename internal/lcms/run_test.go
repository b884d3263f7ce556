package lcms

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewSpectrumSortsPeaks(t *testing.T) {
	s := NewSpectrum(5, 1.0, []float64{500, 300, 400, 450}, []float64{10, 20, 0, 40})
	want := []Peak{{300, 20, 0}, {450, 40, 1}, {500, 10, 2}}
	if diff := cmp.Diff(want, s.Peaks); diff != "" {
		t.Errorf("Peaks mismatch (-want +got):\n%s", diff)
	}
	if s.MaxIntensity() != 40 {
		t.Errorf("Expected max intensity 40, got: %f", s.MaxIntensity())
	}
}

func TestMaxPeakInMzWindow(t *testing.T) {
	s := NewSpectrum(1, 0, []float64{999.99, 1000.0, 1000.005, 1000.5}, []float64{5, 10, 20, 100})
	// 10 ppm at 1000 is 0.01
	if i := s.MaxPeakInMzWindow(1000.0, 10); i != 2 {
		t.Errorf("Expected peak 2, got: %d", i)
	}
	if i := s.MaxPeakInMzWindow(1000.2, 10); i != -1 {
		t.Errorf("Expected no peak, got: %d", i)
	}
	if tol := Tolerance(10).Mz(1000); math.Abs(tol-0.01) > 1e-12 {
		t.Errorf("Expected tolerance 0.01, got: %f", tol)
	}
}

func testRun(t *testing.T) *MemRun {
	var spectra []*Spectrum
	for _, scan := range []int{30, 10, 20, 40} {
		spectra = append(spectra, NewSpectrum(scan, float64(scan)/10.0, nil, nil))
	}
	r, err := NewMemRun(spectra)
	if err != nil {
		t.Fatalf("NewMemRun: error return %v", err)
	}
	return r
}

func TestScanNavigationClamps(t *testing.T) {
	r := testRun(t)
	if diff := cmp.Diff([]int{10, 20, 30, 40}, r.Ms1ScanNums()); diff != "" {
		t.Errorf("Ms1ScanNums mismatch (-want +got):\n%s", diff)
	}
	tests := []struct {
		scan, prev, next int
	}{
		{10, 10, 20},
		{20, 10, 30},
		{25, 20, 30}, // not an MS1 scan
		{40, 30, 40},
		{1, 10, 10},
		{99, 40, 40},
	}
	for _, tt := range tests {
		if got := r.PrevScanNum(tt.scan); got != tt.prev {
			t.Errorf("PrevScanNum(%d): expected %d, got: %d", tt.scan, tt.prev, got)
		}
		if got := r.NextScanNum(tt.scan); got != tt.next {
			t.Errorf("NextScanNum(%d): expected %d, got: %d", tt.scan, tt.next, got)
		}
	}
	if r.Spectrum(25) != nil {
		t.Errorf("Expected nil spectrum for scan 25")
	}
	if et := r.ElutionTime(99); et != 4.0 {
		t.Errorf("Expected clamped elution time 4.0, got: %f", et)
	}
}

func TestNet(t *testing.T) {
	r := testRun(t)
	for scan, want := range map[int]float64{10: 0, 20: 1.0 / 3.0, 40: 1} {
		if got := r.Net(scan); math.Abs(got-want) > 1e-12 {
			t.Errorf("Net(%d): expected %f, got: %f", scan, want, got)
		}
	}
}

func TestNewMemRunEmpty(t *testing.T) {
	_, err := NewMemRun(nil)
	if !errors.Is(err, ErrNoMs1Spectra) {
		t.Errorf("Expected error: %v, got: %v", ErrNoMs1Spectra, err)
	}
}

func encode64(v []float64) string {
	var buf bytes.Buffer
	for _, x := range v {
		binary.Write(&buf, binary.LittleEndian, math.Float64bits(x))
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func spectrumXML(index, scan, msLevel int, centroid bool, rtSec float64, mz, intens []float64) string {
	c := ``
	if centroid {
		c = `<cvParam accession="MS:1000127"/>`
	}
	return fmt.Sprintf(`<spectrum index="%d" id="scan=%d" defaultArrayLength="%d">
<cvParam accession="MS:1000511" value="%d"/>%s
<scanList><scan><cvParam accession="MS:1000016" value="%f" unitAccession="UO:0000010"/></scan></scanList>
<binaryDataArrayList>
<binaryDataArray><cvParam accession="MS:1000523"/><cvParam accession="MS:1000514"/><binary>%s</binary></binaryDataArray>
<binaryDataArray><cvParam accession="MS:1000523"/><cvParam accession="MS:1000515"/><binary>%s</binary></binaryDataArray>
</binaryDataArrayList></spectrum>`, index, scan, len(mz), msLevel, c, rtSec, encode64(mz), encode64(intens))
}

func mzMLDoc(spectra ...string) string {
	return `<mzML xmlns="http://psi.hupo.org/ms/mzml"><run><spectrumList>` +
		strings.Join(spectra, "") + `</spectrumList></run></mzML>`
}

func TestMzMLRun(t *testing.T) {
	doc := mzMLDoc(
		spectrumXML(0, 1, 1, true, 60, []float64{500.2, 500.1}, []float64{3, 4}),
		spectrumXML(1, 2, 2, true, 61, []float64{200}, []float64{1}),
		spectrumXML(2, 3, 1, true, 120, []float64{600}, []float64{7}),
	)
	r, err := NewMzMLRun(strings.NewReader(doc), false)
	if err != nil {
		t.Fatalf("NewMzMLRun: error return %v", err)
	}
	if diff := cmp.Diff([]int{1, 3}, r.Ms1ScanNums()); diff != "" {
		t.Errorf("Ms1ScanNums mismatch (-want +got):\n%s", diff)
	}
	s := r.Spectrum(1)
	if s == nil {
		t.Fatalf("Expected spectrum for scan 1")
	}
	want := []Peak{{500.1, 4, 0}, {500.2, 3, 1}}
	if diff := cmp.Diff(want, s.Peaks); diff != "" {
		t.Errorf("Peaks mismatch (-want +got):\n%s", diff)
	}
	if r.ElutionTime(3) != 2.0 {
		t.Errorf("Expected elution time 2.0 minutes, got: %f", r.ElutionTime(3))
	}
	if r.Spectrum(2) != nil {
		t.Errorf("MS2 scan must not be part of the run")
	}
}

func TestMzMLRunProfile(t *testing.T) {
	doc := mzMLDoc(spectrumXML(0, 1, 1, false, 60, []float64{500}, []float64{3}))
	_, err := NewMzMLRun(strings.NewReader(doc), false)
	if !errors.Is(err, ErrProfileData) {
		t.Errorf("Expected error: %v, got: %v", ErrProfileData, err)
	}
	_, err = NewMzMLRun(strings.NewReader(doc), true)
	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
}
