package isotope

import (
	"errors"
	"math"
	"sort"
	"sync"

	"github.com/524D/mzfeature/internal/lcms"
)

// DefaultRelIntensityThreshold is the minimum abundance of an isotope,
// relative to the most abundant one, to be part of a theoretical envelope
const DefaultRelIntensityThreshold = 0.1

// ErrMalformedEnvelope means that no usable isotope distribution exists for
// the requested mass
var ErrMalformedEnvelope = errors.New("malformed isotope envelope")

// Envelope is the data shared by theoretical and observed isotope envelopes.
// Probability has one element per isotope slot; MostAbundantIsotope returns
// the isotope offset (0 is the monoisotopic peak) with the highest
// probability.
type Envelope interface {
	MonoMass() float64
	Probability() []float64
	MostAbundantIsotope() int
}

// Isotope is one retained isotope of a theoretical envelope
type Isotope struct {
	Index int     // offset from the monoisotopic peak in units of C13MinusC12
	Ratio float64 // normalized abundance
}

// TheoreticalEnvelope is the averagine isotope envelope of a hypothetical
// monoisotopic mass. It is immutable after construction.
type TheoreticalEnvelope struct {
	monoMass float64
	// Isotopes sorted by offset
	Isotopes []Isotope
	// Ranking holds the positions in Isotopes in order of descending ratio
	Ranking []int
	prob    []float64
}

// NewTheoreticalEnvelope computes the envelope of monoMass. Isotopes are kept
// when their abundance rank is at most maxIsotopes (no limit if
// maxIsotopes <= 0) and their abundance relative to the most abundant isotope
// is at least relIntensityThreshold.
func NewTheoreticalEnvelope(monoMass float64, maxIsotopes int,
	relIntensityThreshold float64) (*TheoreticalEnvelope, error) {
	if !(monoMass > 0) || math.IsInf(monoMass, 0) {
		return nil, ErrMalformedEnvelope
	}
	return newFromDistribution(monoMass, isotopeDistribution(monoMass),
		maxIsotopes, relIntensityThreshold)
}

func newFromDistribution(monoMass float64, dist []float64, maxIsotopes int,
	relIntensityThreshold float64) (*TheoreticalEnvelope, error) {
	order := make([]int, len(dist))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool { return dist[order[i]] > dist[order[j]] })
	if len(order) == 0 || !(dist[order[0]] > 0) {
		return nil, ErrMalformedEnvelope
	}
	maxAbundance := dist[order[0]]

	var kept []int
	var sum float64
	for rank, offset := range order {
		if maxIsotopes > 0 && rank >= maxIsotopes {
			break
		}
		if dist[offset]/maxAbundance < relIntensityThreshold {
			break
		}
		kept = append(kept, offset)
		sum += dist[offset]
	}
	if !(sum > 0) {
		return nil, ErrMalformedEnvelope
	}
	sort.Ints(kept)

	e := &TheoreticalEnvelope{
		monoMass: monoMass,
		Isotopes: make([]Isotope, len(kept)),
		Ranking:  make([]int, len(kept)),
		prob:     make([]float64, len(kept)),
	}
	for i, offset := range kept {
		r := dist[offset] / sum
		e.Isotopes[i] = Isotope{Index: offset, Ratio: r}
		e.prob[i] = r
		e.Ranking[i] = i
	}
	sort.SliceStable(e.Ranking, func(i, j int) bool {
		return e.prob[e.Ranking[i]] > e.prob[e.Ranking[j]]
	})
	return e, nil
}

// MonoMass returns the monoisotopic mass of the envelope
func (e *TheoreticalEnvelope) MonoMass() float64 {
	return e.monoMass
}

// Probability returns the normalized isotope ratios. The slice is shared and
// must not be modified.
func (e *TheoreticalEnvelope) Probability() []float64 {
	return e.prob
}

// MostAbundantIsotope returns the offset of the most abundant isotope
func (e *TheoreticalEnvelope) MostAbundantIsotope() int {
	return e.Isotopes[e.Ranking[0]].Index
}

// MostAbundantSlot returns the position of the most abundant isotope in
// Isotopes
func (e *TheoreticalEnvelope) MostAbundantSlot() int {
	return e.Ranking[0]
}

// Size returns the number of isotopes of the envelope
func (e *TheoreticalEnvelope) Size() int {
	return len(e.Isotopes)
}

// IsotopeMz returns the m/z of the isotope in the given slot at charge
func (e *TheoreticalEnvelope) IsotopeMz(slot, charge int) float64 {
	m := e.monoMass + float64(e.Isotopes[slot].Index)*lcms.C13MinusC12
	return m/float64(charge) + lcms.Proton
}

// Simulate returns the m/z and intensity of the peaks that the envelope
// produces at charge with the given total abundance
func (e *TheoreticalEnvelope) Simulate(charge int, abundance float64) ([]float64, []float64) {
	mz := make([]float64, len(e.Isotopes))
	intensity := make([]float64, len(e.Isotopes))
	for i, iso := range e.Isotopes {
		mz[i] = e.IsotopeMz(i, charge)
		intensity[i] = iso.Ratio * abundance
	}
	return mz, intensity
}

// withMonoMass returns a copy of the envelope for another monoisotopic mass
// that shares the isotope pattern
func (e *TheoreticalEnvelope) withMonoMass(monoMass float64) *TheoreticalEnvelope {
	c := *e
	c.monoMass = monoMass
	return &c
}

// EnvelopeCache caches theoretical envelope patterns by nominal mass. It is
// safe for concurrent use.
type EnvelopeCache struct {
	maxIsotopes           int
	relIntensityThreshold float64

	mu       sync.RWMutex
	patterns map[int]*TheoreticalEnvelope
}

// NewEnvelopeCache creates a cache for envelopes computed with the given
// isotope count limit and relative intensity threshold
func NewEnvelopeCache(maxIsotopes int, relIntensityThreshold float64) *EnvelopeCache {
	return &EnvelopeCache{
		maxIsotopes:           maxIsotopes,
		relIntensityThreshold: relIntensityThreshold,
		patterns:              make(map[int]*TheoreticalEnvelope),
	}
}

// Get returns the theoretical envelope of monoMass, using the isotope
// pattern of its nominal mass
func (c *EnvelopeCache) Get(monoMass float64) (*TheoreticalEnvelope, error) {
	if !(monoMass > 0) || math.IsInf(monoMass, 0) {
		return nil, ErrMalformedEnvelope
	}
	nominal := int(math.Round(monoMass))
	c.mu.RLock()
	p, ok := c.patterns[nominal]
	c.mu.RUnlock()
	if !ok {
		var err error
		p, err = NewTheoreticalEnvelope(float64(nominal), c.maxIsotopes, c.relIntensityThreshold)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.patterns[nominal] = p
		c.mu.Unlock()
	}
	return p.withMonoMass(monoMass), nil
}

// MostAbundantIsotopeIndex returns the most abundant isotope offset of the
// pattern that Get uses for monoMass
func (c *EnvelopeCache) MostAbundantIsotopeIndex(monoMass float64) int {
	e, err := c.Get(monoMass)
	if err != nil {
		return 0
	}
	return e.MostAbundantIsotope()
}
