// Package isotope computes theoretical isotope envelopes from the averagine
// model and binds them to the peaks of observed spectra.
package isotope

import (
	"math"
)

// Number of isotope offsets that are computed for any mass. Distributions of
// masses that are relevant for MS1 features do not reach this far.
const maxOffsets = 64

// Monoisotopic mass of the averagine residue
const averagineMass = float64(111.0543052)

const (
	massC = float64(12.0)
	massH = float64(1.00782503207)
	massN = float64(14.0030740048)
	massO = float64(15.99491461956)
	massS = float64(31.97207100)
)

type element int

const (
	elemC element = iota
	elemH
	elemN
	elemO
	elemS
	numElements
)

// Natural abundance of the isotopes of each element, indexed by the nominal
// mass offset from the lightest isotope
var elementAbundance = [numElements][]float64{
	elemC: {0.9893, 0.0107},
	elemH: {0.999885, 0.000115},
	elemN: {0.99636, 0.00364},
	elemO: {0.99757, 0.00038, 0.00205},
	elemS: {0.9499, 0.0075, 0.0425, 0, 0.0001},
}

// Elemental composition of one averagine residue
var averagine = [numElements]float64{
	elemC: 4.9384,
	elemH: 7.7583,
	elemN: 1.3577,
	elemO: 1.4773,
	elemS: 0.0417,
}

type composition [numElements]int

// averagineComposition returns the averagine elemental composition of a
// molecule with the given monoisotopic mass. The number of hydrogens is
// adjusted so that the composition matches the mass as close as possible.
func averagineComposition(monoMass float64) composition {
	var c composition
	n := monoMass / averagineMass
	c[elemC] = int(math.Round(averagine[elemC] * n))
	c[elemN] = int(math.Round(averagine[elemN] * n))
	c[elemO] = int(math.Round(averagine[elemO] * n))
	c[elemS] = int(math.Round(averagine[elemS] * n))
	rest := monoMass - float64(c[elemC])*massC - float64(c[elemN])*massN -
		float64(c[elemO])*massO - float64(c[elemS])*massS
	c[elemH] = int(math.Round(rest / massH))
	if c[elemH] < 0 {
		c[elemH] = 0
	}
	return c
}

// convolve returns the distribution of the sum of two independent offsets,
// truncated to maxOffsets
func convolve(a, b []float64) []float64 {
	n := len(a) + len(b) - 1
	if n > maxOffsets {
		n = maxOffsets
	}
	r := make([]float64, n)
	for i, x := range a {
		if x == 0 {
			continue
		}
		for j, y := range b {
			if i+j >= n {
				break
			}
			r[i+j] += x * y
		}
	}
	return r
}

// power returns the isotope distribution of n atoms of an element, by
// binary exponentiation of the single atom distribution
func power(dist []float64, n int) []float64 {
	result := []float64{1}
	base := dist
	for n > 0 {
		if n&1 == 1 {
			result = convolve(result, base)
		}
		n >>= 1
		if n > 0 {
			base = convolve(base, base)
		}
	}
	return result
}

// isotopeDistribution returns the relative abundance of each isotope offset
// of the averagine molecule with the given monoisotopic mass. The result is
// not normalized; its sum is slightly less than one due to truncation.
func isotopeDistribution(monoMass float64) []float64 {
	c := averagineComposition(monoMass)
	dist := []float64{1}
	for e := elemC; e < numElements; e++ {
		if c[e] == 0 {
			continue
		}
		dist = convolve(dist, power(elementAbundance[e], c[e]))
	}
	return dist
}

// MostAbundantIsotopeIndex returns the isotope offset with the highest
// abundance for an averagine molecule of the given monoisotopic mass
func MostAbundantIsotopeIndex(monoMass float64) int {
	dist := isotopeDistribution(monoMass)
	best := 0
	for i, v := range dist {
		if v > dist[best] {
			best = i
		}
	}
	return best
}
