package calculate

import (
	"math"
	"sort"
)

// Average calculates the arithmetic mean
func Average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	var sum float64
	for _, value := range values {
		sum += value
	}

	return sum / float64(len(values))
}

// PopulationStdDev calculates the population standard deviation around mean
func PopulationStdDev(values []float64, mean float64) float64 {
	if len(values) == 0 {
		return 0
	}

	var variance float64
	for _, value := range values {
		d := value - mean
		variance += d * d
	}

	return math.Sqrt(variance / float64(len(values)))
}

// Median returns the middle value, averaging the two middle values for even lengths
func Median(values []float64) float64 {
	return Quantile(sorted(values), 0.5)
}

// Quantile returns the q-quantile of already sorted values using linear interpolation
func Quantile(sortedValues []float64, q float64) float64 {
	n := len(sortedValues)
	if n == 0 {
		return 0
	}
	if q <= 0 {
		return sortedValues[0]
	}
	if q >= 1 {
		return sortedValues[n-1]
	}

	pos := q * float64(n-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return sortedValues[lower]
	}

	frac := pos - float64(lower)
	return sortedValues[lower] + (sortedValues[upper]-sortedValues[lower])*frac
}

// Quartiles returns min, q25, median, q75 and max
func Quartiles(values []float64) (min, q25, median, q75, max float64) {
	s := sorted(values)
	if len(s) == 0 {
		return 0, 0, 0, 0, 0
	}
	return s[0], Quantile(s, 0.25), Quantile(s, 0.5), Quantile(s, 0.75), s[len(s)-1]
}

func sorted(values []float64) []float64 {
	s := make([]float64, len(values))
	copy(s, values)
	sort.Float64s(s)
	return s
}
