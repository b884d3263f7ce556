package lcms

import (
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/524D/mzfeature/internal/mzml"
	"github.com/carbocation/pfx"
)

// ErrProfileData is returned when MS1 spectra are not centroided
var ErrProfileData = errors.New(`input mzML file must contain centroid data, not profile data`)

// MzMLRun is a run backed by an mzML file. Spectra are decoded on request.
type MzMLRun struct {
	scanTable
	mzML      mzml.MzML
	scanIndex map[int]int // scan number to spectrum index in the mzML file
}

// NewMzMLRun reads an mzML file and indexes its MS1 spectra.
// Profile spectra are refused unless acceptProfile is set.
func NewMzMLRun(reader io.Reader, acceptProfile bool) (*MzMLRun, error) {
	mzML, err := mzml.Read(reader)
	if err != nil {
		return nil, pfx.Err(err)
	}
	r := &MzMLRun{
		mzML:      mzML,
		scanIndex: make(map[int]int),
	}
	var scanNums []int
	var times []float64
	warnProfile := true
	for i := 0; i < mzML.NumSpecs(); i++ {
		msLevel, err := mzML.MSLevel(i)
		if err != nil {
			return nil, pfx.Err(err)
		}
		if msLevel != 1 {
			continue
		}
		centroid, err := mzML.Centroid(i)
		if err != nil {
			return nil, pfx.Err(err)
		}
		if !centroid {
			if !acceptProfile {
				return nil, ErrProfileData
			}
			if warnProfile {
				log.Println(`Warning: input contains non-peak picked (profile) spectra.`)
				warnProfile = false
			}
		}
		scanNum, err := mzML.ScanNumber(i)
		if err != nil {
			return nil, pfx.Err(err)
		}
		if _, dup := r.scanIndex[scanNum]; dup {
			return nil, pfx.Err(fmt.Errorf("duplicate scan number %d", scanNum))
		}
		rt, err := mzML.RetentionTime(i)
		if err != nil {
			return nil, pfx.Err(err)
		}
		r.scanIndex[scanNum] = i
		scanNums = append(scanNums, scanNum)
		times = append(times, rt/60.0)
	}
	if len(scanNums) == 0 {
		return nil, ErrNoMs1Spectra
	}
	r.scanTable = newScanTable(scanNums, times)
	return r, nil
}

// Spectrum decodes the spectrum with the given scan number. It returns nil
// for unknown scans or undecodable data.
func (r *MzMLRun) Spectrum(scanNum int) *Spectrum {
	i, ok := r.scanIndex[scanNum]
	if !ok {
		return nil
	}
	peaks, err := r.mzML.ReadScan(i)
	if err != nil {
		log.Printf("ReadScan failed for scan %d: %v", scanNum, err)
		return nil
	}
	mz := make([]float64, len(peaks))
	intens := make([]float64, len(peaks))
	for k, p := range peaks {
		mz[k] = p.Mz
		intens[k] = p.Intens
	}
	return NewSpectrum(scanNum, r.ElutionTime(scanNum), mz, intens)
}
