// Package lcms holds the LC-MS run abstraction: MS1 spectra with their peaks,
// ordered by scan number and addressable by elution time.
package lcms

import (
	"sort"
)

const (
	// Proton is the mass of a proton
	Proton = float64(1.007276466879)
	// C13MinusC12 is the mass difference between neighbouring isotopes
	C13MinusC12 = float64(1.003354835)
)

// Peak contains the m/z and intensity of a centroided peak. Index is the
// position of the peak in the m/z sorted peak list of its spectrum.
type Peak struct {
	Mz        float64
	Intensity float64
	Index     int
}

// Spectrum is a single MS1 scan. Peaks are sorted by m/z and must not be
// modified after construction; spectra are shared between goroutines.
type Spectrum struct {
	ScanNum     int
	ElutionTime float64 // minutes
	Peaks       []Peak
}

// Tolerance is a mass tolerance in parts per million
type Tolerance float64

// Mz returns the tolerance as absolute m/z (or mass) width at value v
func (t Tolerance) Mz(v float64) float64 {
	return float64(t) * v / 1000000.0
}

// NewSpectrum creates a spectrum from parallel m/z and intensity slices.
// Peaks without intensity are dropped.
func NewSpectrum(scanNum int, elutionTime float64, mz, intensity []float64) *Spectrum {
	n := len(mz)
	if len(intensity) < n {
		n = len(intensity)
	}
	peaks := make([]Peak, 0, n)
	for i := 0; i < n; i++ {
		if intensity[i] > 0 {
			peaks = append(peaks, Peak{Mz: mz[i], Intensity: intensity[i]})
		}
	}
	// Peaks in mzml probably always are sorted by mass, but that is not
	// specified by the schema/mzML description.
	sort.SliceStable(peaks, func(i, j int) bool { return peaks[i].Mz < peaks[j].Mz })
	for i := range peaks {
		peaks[i].Index = i
	}
	return &Spectrum{ScanNum: scanNum, ElutionTime: elutionTime, Peaks: peaks}
}

// PeakRange returns the half open index range [i1, i2) of peaks
// with mzMin <= mz <= mzMax
func (s *Spectrum) PeakRange(mzMin, mzMax float64) (int, int) {
	i1 := sort.Search(len(s.Peaks), func(i int) bool { return s.Peaks[i].Mz >= mzMin })
	i2 := sort.Search(len(s.Peaks), func(i int) bool { return s.Peaks[i].Mz > mzMax })
	return i1, i2
}

// MaxPeakInMzWindow returns the index of the highest intensity peak in
// the window mz +/- tol, or -1 if there is no peak.
func (s *Spectrum) MaxPeakInMzWindow(mz float64, tol Tolerance) int {
	mzErr := tol.Mz(mz)
	i1, i2 := s.PeakRange(mz-mzErr, mz+mzErr)
	best := -1
	for i := i1; i < i2; i++ {
		if best < 0 || s.Peaks[i].Intensity > s.Peaks[best].Intensity {
			best = i
		}
	}
	return best
}

// MaxIntensity returns the intensity of the base peak
func (s *Spectrum) MaxIntensity() float64 {
	var m float64
	for _, p := range s.Peaks {
		if p.Intensity > m {
			m = p.Intensity
		}
	}
	return m
}
