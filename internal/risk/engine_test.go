// Riskgate - Authentication Risk Scoring Engine
// Copyright 2026 Riskgate Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/riskgate/riskgate

package risk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/riskgate/riskgate/internal/config"
)

func fusionTestConfig() config.FusionConfig {
	return config.FusionConfig{
		GeoVelocity:     0.20,
		PasswordAttack:  0.15,
		Device:          0.15,
		UserAgent:       0.10,
		AccessTime:      0.10,
		AccountVelocity: 0.10,
		Session:         0.10,
		IPReputation:    0.10,
	}
}

// stubDetector returns a fixed signal, error, or panic, optionally
// after a delay.
type stubDetector struct {
	name   string
	signal *Signal
	err    error
	delay  time.Duration
	panics bool
}

func (s *stubDetector) Name() string { return s.name }

func (s *stubDetector) Evaluate(ctx context.Context, event *AuthEvent) (*Signal, error) {
	if s.panics {
		panic("stub detector panic")
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.signal, s.err
}

func TestEngineFusesWeightedScores(t *testing.T) {
	e := NewEngine(fusionTestConfig(), time.Second,
		&stubDetector{name: DetectorGeoVelocity, signal: &Signal{RiskScore: 100, Status: StatusImpossibleTravel}},
		&stubDetector{name: DetectorDevice, signal: &Signal{RiskScore: 100, Status: StatusSuspiciousDevice}},
		&stubDetector{name: DetectorUserAgent, signal: &Signal{RiskScore: 0, Status: StatusNormalUserAgent}},
	)

	result := e.Evaluate(context.Background(), &AuthEvent{UserID: "alice"})

	// 100*0.20 + 100*0.15 + 0*0.10 = 35.
	if result.OverallRisk != 35 {
		t.Errorf("OverallRisk = %d, want 35", result.OverallRisk)
	}
	if result.RiskLevel != RiskLevelMedium || result.Recommendation != RecommendationMonitor {
		t.Errorf("got level=%q recommendation=%q, want %q %q",
			result.RiskLevel, result.Recommendation, RiskLevelMedium, RecommendationMonitor)
	}
	if len(result.Predictors) != 3 {
		t.Errorf("Predictors count = %d, want 3", len(result.Predictors))
	}
}

func TestEngineDeterministic(t *testing.T) {
	e := NewEngine(fusionTestConfig(), time.Second,
		&stubDetector{name: DetectorGeoVelocity, signal: &Signal{RiskScore: 60}},
		&stubDetector{name: DetectorSession, signal: &Signal{RiskScore: 87}},
		&stubDetector{name: DetectorIPReputation, signal: &Signal{RiskScore: 40}},
	)

	event := &AuthEvent{UserID: "alice"}
	first := e.Evaluate(context.Background(), event)
	for i := 0; i < 10; i++ {
		next := e.Evaluate(context.Background(), event)
		if next.OverallRisk != first.OverallRisk || next.RiskLevel != first.RiskLevel {
			t.Fatalf("run %d: got %d/%s, first run gave %d/%s",
				i, next.OverallRisk, next.RiskLevel, first.OverallRisk, first.RiskLevel)
		}
	}
}

func TestEngineDetectorError(t *testing.T) {
	e := NewEngine(fusionTestConfig(), time.Second,
		&stubDetector{name: DetectorGeoVelocity, err: errors.New("store unavailable")},
	)

	result := e.Evaluate(context.Background(), &AuthEvent{UserID: "alice"})

	sig := result.Predictors[DetectorGeoVelocity]
	if sig == nil {
		t.Fatal("failing detector should still produce a signal")
	}
	if sig.RiskScore != 50 || sig.Status != StatusError {
		t.Errorf("got score=%d status=%q, want 50 %q", sig.RiskScore, sig.Status, StatusError)
	}
}

func TestEngineDetectorPanic(t *testing.T) {
	e := NewEngine(fusionTestConfig(), time.Second,
		&stubDetector{name: DetectorDevice, panics: true},
	)

	result := e.Evaluate(context.Background(), &AuthEvent{UserID: "alice"})

	sig := result.Predictors[DetectorDevice]
	if sig == nil {
		t.Fatal("panicking detector should still produce a signal")
	}
	if sig.RiskScore != 50 || sig.Status != StatusError {
		t.Errorf("got score=%d status=%q, want 50 %q", sig.RiskScore, sig.Status, StatusError)
	}
}

func TestEngineDetectorTimeout(t *testing.T) {
	e := NewEngine(fusionTestConfig(), 10*time.Millisecond,
		&stubDetector{name: DetectorSession, delay: time.Second, signal: &Signal{RiskScore: 100}},
	)

	result := e.Evaluate(context.Background(), &AuthEvent{UserID: "alice"})

	sig := result.Predictors[DetectorSession]
	if sig == nil {
		t.Fatal("timed-out detector should still produce a signal")
	}
	if sig.RiskScore != 0 || sig.Status != StatusUnavailable {
		t.Errorf("got score=%d status=%q, want 0 %q", sig.RiskScore, sig.Status, StatusUnavailable)
	}
	if result.OverallRisk != 0 {
		t.Errorf("OverallRisk = %d, want 0", result.OverallRisk)
	}
}

func TestEngineEvaluateOne(t *testing.T) {
	e := NewEngine(fusionTestConfig(), time.Second,
		&stubDetector{name: DetectorUserAgent, signal: &Signal{RiskScore: 85, Status: StatusSuspiciousUA}},
	)

	sig, err := e.EvaluateOne(context.Background(), DetectorUserAgent, &AuthEvent{})
	if err != nil {
		t.Fatalf("EvaluateOne: %v", err)
	}
	if sig.RiskScore != 85 {
		t.Errorf("RiskScore = %d, want 85", sig.RiskScore)
	}

	if _, err := e.EvaluateOne(context.Background(), "no_such_detector", &AuthEvent{}); err == nil {
		t.Error("unknown detector name should error")
	}
}

func TestSuspiciousSignals(t *testing.T) {
	signals := map[string]*Signal{
		DetectorGeoVelocity:  {RiskScore: 100, Status: StatusImpossibleTravel},
		DetectorSession:      {RiskScore: 87, Status: StatusHighRiskBehavior},
		DetectorUserAgent:    {RiskScore: 50, Status: StatusNormalUserAgent},
		DetectorIPReputation: {RiskScore: 0, Status: StatusIPTrusted},
	}

	got := suspiciousSignals(signals)
	want := []string{DetectorGeoVelocity, DetectorSession}
	if len(got) != len(want) {
		t.Fatalf("suspiciousSignals = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("suspiciousSignals[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if suspiciousSignals(map[string]*Signal{}) != nil {
		t.Error("no signals should yield nil")
	}
}

func TestRiskLevelBoundaries(t *testing.T) {
	tests := []struct {
		score  int
		level  string
		action string
	}{
		{0, RiskLevelLow, RecommendationAllow},
		{24, RiskLevelLow, RecommendationAllow},
		{25, RiskLevelMedium, RecommendationMonitor},
		{49, RiskLevelMedium, RecommendationMonitor},
		{50, RiskLevelHigh, RecommendationChallenge},
		{74, RiskLevelHigh, RecommendationChallenge},
		{75, RiskLevelCritical, RecommendationBlock},
		{100, RiskLevelCritical, RecommendationBlock},
	}
	for _, tt := range tests {
		level, action := riskLevel(tt.score)
		if level != tt.level || action != tt.action {
			t.Errorf("riskLevel(%d) = (%q, %q), want (%q, %q)", tt.score, level, action, tt.level, tt.action)
		}
	}
}
