// sim/metrics_utils.go
package sim

import "math"

// SampledVariable keeps an online count, mean and variance of a stream of
// samples using Welford's update, so no sample history is retained.
type SampledVariable struct {
	n    int
	mean float64
	m2   float64
	sum  float64
	min  float64
	max  float64
}

// Add folds one sample into the running moments.
func (v *SampledVariable) Add(x float64) {
	v.n++
	v.sum += x
	if v.n == 1 {
		v.min, v.max = x, x
	} else {
		v.min = math.Min(v.min, x)
		v.max = math.Max(v.max, x)
	}
	delta := x - v.mean
	v.mean += delta / float64(v.n)
	v.m2 += delta * (x - v.mean)
}

func (v *SampledVariable) Count() int    { return v.n }
func (v *SampledVariable) Mean() float64 { return v.mean }
func (v *SampledVariable) Sum() float64  { return v.sum }
func (v *SampledVariable) Min() float64  { return v.min }
func (v *SampledVariable) Max() float64  { return v.max }

// Variance returns the sample variance (n-1 denominator); 0 with fewer than two samples.
func (v *SampledVariable) Variance() float64 {
	if v.n < 2 {
		return 0
	}
	return v.m2 / float64(v.n-1)
}

func (v *SampledVariable) StdDev() float64 { return math.Sqrt(v.Variance()) }

// Reset discards every sample.
func (v *SampledVariable) Reset() { *v = SampledVariable{} }

// Moments is the reported form of a SampledVariable.
type Moments struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Sum    float64 `json:"sum"`
}

// Moments snapshots the current state.
func (v *SampledVariable) Moments() Moments {
	return Moments{Count: v.n, Mean: v.mean, StdDev: v.StdDev(), Min: v.min, Max: v.max, Sum: v.sum}
}
