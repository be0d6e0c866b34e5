// Riskgate - Authentication Risk Scoring Engine
// Copyright 2026 Riskgate Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/riskgate/riskgate

// Package anomaly scores feature vectors against a fitted baseline.
// The access-time detector uses it to flag logins at unusual hours.
package anomaly

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// ErrNotFitted is returned when Score is called before Fit.
var ErrNotFitted = errors.New("anomaly: scorer not fitted")

// Scorer produces an anomaly score in [0, 1] for a feature vector,
// where 0 is entirely typical and 1 is maximally anomalous.
type Scorer interface {
	// Fit learns a baseline from historical samples. All samples must
	// share the same dimensionality.
	Fit(samples [][]float64) error
	// Score rates one vector against the fitted baseline.
	Score(v []float64) (float64, error)
}

// zMax is the per-feature deviation, in standard deviations, treated
// as maximally anomalous.
const zMax = 3.0

// ZScoreScorer scores vectors by their mean absolute z-score across
// features. Safe for concurrent use after Fit.
type ZScoreScorer struct {
	mu     sync.RWMutex
	mean   []float64
	stddev []float64
}

// NewZScoreScorer creates an unfitted scorer.
func NewZScoreScorer() *ZScoreScorer {
	return &ZScoreScorer{}
}

// Fit computes per-feature mean and standard deviation.
func (s *ZScoreScorer) Fit(samples [][]float64) error {
	if len(samples) == 0 {
		return errors.New("anomaly: no samples to fit")
	}
	dims := len(samples[0])
	if dims == 0 {
		return errors.New("anomaly: empty feature vector")
	}

	mean := make([]float64, dims)
	for i, sample := range samples {
		if len(sample) != dims {
			return fmt.Errorf("anomaly: sample %d has %d features, want %d", i, len(sample), dims)
		}
		for j, v := range sample {
			mean[j] += v
		}
	}
	n := float64(len(samples))
	for j := range mean {
		mean[j] /= n
	}

	stddev := make([]float64, dims)
	for _, sample := range samples {
		for j, v := range sample {
			d := v - mean[j]
			stddev[j] += d * d
		}
	}
	for j := range stddev {
		stddev[j] = math.Sqrt(stddev[j] / n)
	}

	s.mu.Lock()
	s.mean = mean
	s.stddev = stddev
	s.mu.Unlock()
	return nil
}

// Score returns the mean per-feature anomaly, each feature capped at
// zMax standard deviations. Features with zero observed variance
// contribute fully when the value departs from the baseline at all.
func (s *ZScoreScorer) Score(v []float64) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.mean == nil {
		return 0, ErrNotFitted
	}
	if len(v) != len(s.mean) {
		return 0, fmt.Errorf("anomaly: vector has %d features, want %d", len(v), len(s.mean))
	}

	var total float64
	for j, x := range v {
		d := math.Abs(x - s.mean[j])
		if s.stddev[j] == 0 {
			if d > 1e-9 {
				total += 1
			}
			continue
		}
		z := d / s.stddev[j]
		total += math.Min(z/zMax, 1)
	}
	return total / float64(len(v)), nil
}

// Compile-time interface assertion
var _ Scorer = (*ZScoreScorer)(nil)
