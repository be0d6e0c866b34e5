// Riskgate - Authentication Risk Scoring Engine
// Copyright 2026 Riskgate Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/riskgate/riskgate

package risk

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/riskgate/riskgate/internal/config"
	"github.com/riskgate/riskgate/internal/logging"
	"github.com/riskgate/riskgate/internal/metrics"
)

// Risk levels and the recommendation attached to each.
const (
	RiskLevelLow      = "low"
	RiskLevelMedium   = "medium"
	RiskLevelHigh     = "high"
	RiskLevelCritical = "critical"

	RecommendationAllow     = "allow"
	RecommendationMonitor   = "monitor"
	RecommendationChallenge = "challenge"
	RecommendationBlock     = "block"
)

// errorSignalScore is the neutral-leaning score assigned when a
// detector fails or panics. A broken signal should raise scrutiny,
// not grant a pass.
const errorSignalScore = 50

// Result is a fused risk assessment for one authentication event.
type Result struct {
	OverallRisk    int                `json:"overall_risk"`
	RiskLevel      string             `json:"risk_level"`
	Recommendation string             `json:"recommendation"`
	Predictors     map[string]*Signal `json:"predictors"`
	EvaluatedAt    time.Time          `json:"evaluated_at"`
}

// Engine fans an authentication event out to all detectors and fuses
// their signals into a single verdict.
type Engine struct {
	detectors []Detector
	weights   map[string]float64
	timeout   time.Duration
}

// NewEngine builds an engine over the given detectors. Detector names
// without a configured weight contribute nothing to the fused score
// but still appear in the result.
func NewEngine(cfg config.FusionConfig, timeout time.Duration, detectors ...Detector) *Engine {
	return &Engine{
		detectors: detectors,
		timeout:   timeout,
		weights: map[string]float64{
			DetectorGeoVelocity:     cfg.GeoVelocity,
			DetectorPasswordAttack:  cfg.PasswordAttack,
			DetectorDevice:          cfg.Device,
			DetectorUserAgent:       cfg.UserAgent,
			DetectorAccessTime:      cfg.AccessTime,
			DetectorAccountVelocity: cfg.AccountVelocity,
			DetectorSession:         cfg.Session,
			DetectorIPReputation:    cfg.IPReputation,
		},
	}
}

// Evaluate runs every detector concurrently and fuses the signals.
// Detector failures degrade to an error signal rather than failing
// the whole assessment.
func (e *Engine) Evaluate(ctx context.Context, event *AuthEvent) *Result {
	signals := make(map[string]*Signal, len(e.detectors))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, det := range e.detectors {
		wg.Add(1)
		go func(det Detector) {
			defer wg.Done()
			sig := e.runDetector(ctx, det, event)
			mu.Lock()
			signals[det.Name()] = sig
			mu.Unlock()
		}(det)
	}
	wg.Wait()

	result := e.fuse(signals)
	metrics.RecordAnalysis(result.RiskLevel)

	logging.Info().
		Str("user_id", event.UserID).
		Str("ip", event.IP).
		Int("overall_risk_score", result.OverallRisk).
		Str("risk_level", result.RiskLevel).
		Str("recommendation", result.Recommendation).
		Strs("suspicious_signals", suspiciousSignals(signals)).
		Msg("authentication event evaluated")

	return result
}

// suspiciousSignals returns the sorted names of signals that warrant
// attention on their own, independent of the fused score.
func suspiciousSignals(signals map[string]*Signal) []string {
	var names []string
	for name, sig := range signals {
		if sig.Suspicious() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// EvaluateOne runs a single named detector, for the per-signal API
// endpoints. The same timeout and failure handling as the full
// evaluation apply.
func (e *Engine) EvaluateOne(ctx context.Context, name string, event *AuthEvent) (*Signal, error) {
	for _, det := range e.detectors {
		if det.Name() == name {
			return e.runDetector(ctx, det, event), nil
		}
	}
	return nil, fmt.Errorf("unknown detector %q", name)
}

// runDetector invokes one detector under the configured timeout,
// converting errors, panics, and timeouts into sentinel signals.
func (e *Engine) runDetector(ctx context.Context, det Detector, event *AuthEvent) (sig *Signal) {
	start := time.Now()

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			logging.Error().
				Str("detector", det.Name()).
				Any("panic", r).
				Msg("detector panicked")
			metrics.RecordDetectorError(det.Name(), "panic")
			sig = &Signal{
				RiskScore: errorSignalScore,
				Status:    StatusError,
				Message:   "Detector failed during evaluation",
			}
		}
		metrics.RecordDetector(det.Name(), sig.RiskScore, time.Since(start))
	}()

	result, err := det.Evaluate(ctx, event)
	switch {
	case err != nil && ctx.Err() != nil:
		logging.Warn().Str("detector", det.Name()).Msg("detector timed out")
		metrics.RecordDetectorError(det.Name(), "timeout")
		return &Signal{
			RiskScore: 0,
			Status:    StatusUnavailable,
			Message:   "Detector did not complete in time",
		}
	case err != nil:
		logging.Error().Str("detector", det.Name()).Err(err).Msg("detector failed")
		metrics.RecordDetectorError(det.Name(), "error")
		return &Signal{
			RiskScore: errorSignalScore,
			Status:    StatusError,
			Message:   "Detector failed during evaluation",
		}
	}
	return result
}

// fuse combines the signals into the weighted overall score and maps
// it to a risk level and recommendation.
func (e *Engine) fuse(signals map[string]*Signal) *Result {
	weighted := 0.0
	for name, sig := range signals {
		weighted += float64(sig.RiskScore) * e.weights[name]
	}

	overall := int(math.Round(weighted))
	level, recommendation := riskLevel(overall)

	return &Result{
		OverallRisk:    overall,
		RiskLevel:      level,
		Recommendation: recommendation,
		Predictors:     signals,
		EvaluatedAt:    time.Now().UTC(),
	}
}

func riskLevel(score int) (string, string) {
	switch {
	case score < 25:
		return RiskLevelLow, RecommendationAllow
	case score < 50:
		return RiskLevelMedium, RecommendationMonitor
	case score < 75:
		return RiskLevelHigh, RecommendationChallenge
	default:
		return RiskLevelCritical, RecommendationBlock
	}
}
