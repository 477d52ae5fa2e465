// Package des implements Holt's double exponential smoothing of a scalar
// stream. The smoothed trend doubles as a per-sample velocity for the
// forecasting layer.
package des

import "github.com/branchbound/treewatch/pkg/numeric"

// Smoother tracks the level and trend of a scalar stream.
type Smoother struct {
	alpha           float64
	beta            float64
	level           float64
	trend           float64
	initialValue    float64
	useTrendInLevel bool
	n               int
}

// Option configures a Smoother.
type Option func(*Smoother)

// WithTrendInLevel controls whether the trend term enters the level update.
func WithTrendInLevel(use bool) Option {
	return func(s *Smoother) { s.useTrendInLevel = use }
}

// New creates a smoother with level constant alpha and trend constant beta,
// both in [0, 1]. The trend is used in the level update unless disabled.
func New(alpha, beta float64, opts ...Option) *Smoother {
	s := &Smoother{
		alpha:           alpha,
		beta:            beta,
		level:           numeric.Invalid,
		trend:           numeric.Invalid,
		useTrendInLevel: true,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Reset clears all observations and stores the level value at 0 observations.
func (s *Smoother) Reset(initialValue float64) {
	s.n = 0
	s.level = numeric.Invalid
	s.trend = numeric.Invalid
	s.initialValue = initialValue
}

// Update feeds a new sample. The first sample initializes the level to the
// sample and the trend to its distance from the initial value.
func (s *Smoother) Update(x float64) {
	if s.n == 0 {
		s.n = 1
		s.level = x
		s.trend = x - s.initialValue

		return
	}

	trendterm := 0.0
	if s.useTrendInLevel {
		trendterm = s.trend
	}

	newlevel := s.alpha*x + (1.0-s.alpha)*(s.level+trendterm)
	newtrend := s.beta*(newlevel-s.level) + (1.0-s.beta)*s.trend

	s.level = newlevel
	s.trend = newtrend
	s.n++
}

// Trend returns the current slope estimate, or numeric.Invalid before the
// first sample.
func (s *Smoother) Trend() float64 {
	if s.n == 0 {
		return numeric.Invalid
	}

	return s.trend
}

// Level returns the current level estimate, or numeric.Invalid before the
// first sample.
func (s *Smoother) Level() float64 {
	if s.n == 0 {
		return numeric.Invalid
	}

	return s.level
}

// N returns the number of samples seen since the last reset.
func (s *Smoother) N() int {
	return s.n
}
