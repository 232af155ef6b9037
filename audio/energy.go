package audio

import "math"

// RMSPower returns sqrt(mean(sample²)) over every sample of the given chunks,
// or 0 when there are no samples.
func RMSPower(chunks ...Chunk) float64 {
	var sum float64
	var n int
	for _, c := range chunks {
		for _, s := range c {
			v := float64(s)
			sum += v * v
		}
		n += len(c)
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(n))
}
