// Package scoring computes the log likelihood ratio of a feature from
// lookup tables indexed by mass and metric value.
package scoring

import (
	"bufio"
	"embed"
	"fmt"
	"io/fs"
	"math"
	"strconv"
	"strings"
)

//go:embed tables/*.tsv
var embedded embed.FS

const (
	// NumMassBins is the number of mass bins of each table
	NumMassBins = 30
	// NumValueBins is the number of metric value bins of each table
	NumValueBins = 1001
	// MinMass is the lower bound of the first mass bin
	MinMass = 800.0
	// MassBinWidth is the width of the mass bins
	MassBinWidth = 1000.0
	// ValueStep is the width of the metric value bins
	ValueStep = 0.001
)

// Table identifies one of the lookup tables
type Table int

// The tables of the model. The parity tables are applied to even and odd
// charge metrics separately; the XIC tables once per feature.
const (
	BestDistance Table = iota
	SummedDistance
	BestCorrelation
	SummedCorrelation
	BestIntensity
	SummedIntensity
	AbundanceRatio
	XicCorrelation0
	XicCorrelation1
	NumTables
)

var tableFiles = [NumTables]string{
	BestDistance:      "distance_best.tsv",
	SummedDistance:    "distance_summed.tsv",
	BestCorrelation:   "correlation_best.tsv",
	SummedCorrelation: "correlation_summed.tsv",
	BestIntensity:     "intensity_best.tsv",
	SummedIntensity:   "intensity_summed.tsv",
	AbundanceRatio:    "abundance_ratio.tsv",
	XicCorrelation0:   "xic_correlation_0.tsv",
	XicCorrelation1:   "xic_correlation_1.tsv",
}

// Model holds the score tables. It is read only after loading and may be
// shared between goroutines.
type Model struct {
	tables [NumTables][NumMassBins][NumValueBins]float64
}

// ParityMetrics are the metrics of the envelopes of one charge parity
type ParityMetrics struct {
	Valid             bool // false if the feature has no envelope of this parity
	BestDistance      float64
	SummedDistance    float64
	BestCorrelation   float64
	SummedCorrelation float64
	BestIntensity     float64
	SummedIntensity   float64
	AbundanceRatio    float64
}

// Metrics are the feature properties that are scored. Parity 0 holds even
// charges, parity 1 odd charges. XicCorrelation[0] is the elution profile
// correlation between the two most abundant charges, XicCorrelation[1]
// between the most abundant even and odd charge.
type Metrics struct {
	Parity         [2]ParityMetrics
	XicCorrelation [2]float64
}

// DefaultModel loads the tables that are built into the program
func DefaultModel() (*Model, error) {
	return LoadModel(embedded, "tables")
}

// LoadModel reads all tables from directory dir of fsys. Every table must be
// present with NumMassBins rows of NumValueBins tab separated values.
func LoadModel(fsys fs.FS, dir string) (*Model, error) {
	m := &Model{}
	for t, name := range tableFiles {
		path := name
		if dir != "" {
			path = dir + "/" + name
		}
		if err := m.readTable(fsys, path, Table(t)); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Model) readTable(fsys fs.FS, path string, t Table) error {
	f, err := fsys.Open(path)
	if err != nil {
		return fmt.Errorf("score table %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	row := 0
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		if row >= NumMassBins {
			return fmt.Errorf("score table %s: more than %d rows", path, NumMassBins)
		}
		fields := strings.Split(line, "\t")
		if len(fields) != NumValueBins {
			return fmt.Errorf("score table %s: row %d has %d values, expected %d",
				path, row+1, len(fields), NumValueBins)
		}
		for i, s := range fields {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return fmt.Errorf("score table %s: row %d: %w", path, row+1, err)
			}
			m.tables[t][row][i] = v
		}
		row++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("score table %s: %w", path, err)
	}
	if row != NumMassBins {
		return fmt.Errorf("score table %s: %d rows, expected %d", path, row, NumMassBins)
	}
	return nil
}

// MassBin returns the table row of mass
func MassBin(mass float64) int {
	b := int(math.Floor((mass - MinMass) / MassBinWidth))
	if b < 0 {
		return 0
	}
	if b >= NumMassBins {
		return NumMassBins - 1
	}
	return b
}

// ValueBin returns the table column of a metric value
func ValueBin(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	b := int(math.Round(v / ValueStep))
	if b < 0 {
		return 0
	}
	if b >= NumValueBins {
		return NumValueBins - 1
	}
	return b
}

// Lookup returns the table entry for a metric value of a feature with the
// given mass
func (m *Model) Lookup(t Table, mass, value float64) float64 {
	return m.tables[t][MassBin(mass)][ValueBin(value)]
}

// ParityScore returns the summed table entries of the metrics of one charge
// parity. Distances are looked up as is; the distance tables score low
// distances high.
func (m *Model) ParityScore(p ParityMetrics, mass float64) float64 {
	if !p.Valid {
		return 0
	}
	s := m.Lookup(BestDistance, mass, p.BestDistance)
	s += m.Lookup(SummedDistance, mass, p.SummedDistance)
	s += m.Lookup(BestCorrelation, mass, p.BestCorrelation)
	s += m.Lookup(SummedCorrelation, mass, p.SummedCorrelation)
	s += m.Lookup(BestIntensity, mass, p.BestIntensity)
	s += m.Lookup(SummedIntensity, mass, p.SummedIntensity)
	s += m.Lookup(AbundanceRatio, mass, p.AbundanceRatio)
	return s
}

// Score returns the log likelihood ratio of a feature with the given
// metrics and mass
func (m *Model) Score(metrics Metrics, mass float64) float64 {
	s := m.ParityScore(metrics.Parity[0], mass) + m.ParityScore(metrics.Parity[1], mass)
	s += m.Lookup(XicCorrelation0, mass, metrics.XicCorrelation[0])
	s += m.Lookup(XicCorrelation1, mass, metrics.XicCorrelation[1])
	return s
}
