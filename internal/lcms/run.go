package lcms

import (
	"errors"
	"sort"
)

// ErrNoMs1Spectra is returned when a run contains no MS1 spectra
var ErrNoMs1Spectra = errors.New("no MS1 spectra found")

// Run is an LC-MS run restricted to its MS1 scans.
// Lookups of scan numbers that are not part of the run are clamped to the
// nearest MS1 scan; only Spectrum returns nil for unknown scans.
type Run interface {
	Ms1ScanNums() []int
	Spectrum(scanNum int) *Spectrum
	ElutionTime(scanNum int) float64
	PrevScanNum(scanNum int) int
	NextScanNum(scanNum int) int
	// Net returns the normalized elution time in [0,1]
	Net(scanNum int) float64
}

// scanTable keeps the MS1 scan numbers and elution times in scan order
type scanTable struct {
	scanNums []int
	times    []float64
}

func newScanTable(scanNums []int, times []float64) scanTable {
	idx := make([]int, len(scanNums))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool { return scanNums[idx[i]] < scanNums[idx[j]] })
	t := scanTable{
		scanNums: make([]int, len(idx)),
		times:    make([]float64, len(idx)),
	}
	for k, i := range idx {
		t.scanNums[k] = scanNums[i]
		t.times[k] = times[i]
	}
	return t
}

func (t *scanTable) Ms1ScanNums() []int {
	return t.scanNums
}

// pos returns the position of scanNum, or of the first MS1 scan after it
func (t *scanTable) pos(scanNum int) (int, bool) {
	i := sort.SearchInts(t.scanNums, scanNum)
	return i, i < len(t.scanNums) && t.scanNums[i] == scanNum
}

func (t *scanTable) clamp(i int) int {
	if i < 0 {
		return 0
	}
	if i >= len(t.scanNums) {
		return len(t.scanNums) - 1
	}
	return i
}

func (t *scanTable) ElutionTime(scanNum int) float64 {
	if len(t.scanNums) == 0 {
		return 0
	}
	i, _ := t.pos(scanNum)
	return t.times[t.clamp(i)]
}

func (t *scanTable) PrevScanNum(scanNum int) int {
	if len(t.scanNums) == 0 {
		return scanNum
	}
	i, _ := t.pos(scanNum)
	return t.scanNums[t.clamp(i-1)]
}

func (t *scanTable) NextScanNum(scanNum int) int {
	if len(t.scanNums) == 0 {
		return scanNum
	}
	i, found := t.pos(scanNum)
	if found {
		i++
	}
	return t.scanNums[t.clamp(i)]
}

func (t *scanTable) Net(scanNum int) float64 {
	if len(t.scanNums) < 2 {
		return 0
	}
	first := t.times[0]
	last := t.times[len(t.times)-1]
	if last <= first {
		return 0
	}
	return (t.ElutionTime(scanNum) - first) / (last - first)
}

// MemRun is a run held completely in memory
type MemRun struct {
	scanTable
	spectra map[int]*Spectrum
}

// NewMemRun creates a run from already decoded MS1 spectra
func NewMemRun(spectra []*Spectrum) (*MemRun, error) {
	if len(spectra) == 0 {
		return nil, ErrNoMs1Spectra
	}
	scanNums := make([]int, len(spectra))
	times := make([]float64, len(spectra))
	m := make(map[int]*Spectrum, len(spectra))
	for i, s := range spectra {
		scanNums[i] = s.ScanNum
		times[i] = s.ElutionTime
		m[s.ScanNum] = s
	}
	return &MemRun{scanTable: newScanTable(scanNums, times), spectra: m}, nil
}

// Spectrum returns the spectrum with the given scan number, or nil
func (r *MemRun) Spectrum(scanNum int) *Spectrum {
	return r.spectra[scanNum]
}
