// Riskgate - Authentication Risk Scoring Engine
// Copyright 2026 Riskgate Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/riskgate/riskgate

package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/riskgate/riskgate/internal/anomaly"
	"github.com/riskgate/riskgate/internal/config"
	"github.com/riskgate/riskgate/internal/logging"
	"github.com/riskgate/riskgate/internal/store"
)

// Access-time statuses.
const (
	StatusInsufficientHistory = "insufficient_history"
	StatusNormalAccessTime    = "normal"
	StatusMediumTimeAnomaly   = "medium_anomaly"
	StatusHighTimeAnomaly     = "high_anomaly"
	StatusOddHours            = "odd_hours"
	StatusUnusualDay          = "unusual_day"
	StatusDormantAccount      = "dormant_account"
)

const (
	accessTimeHistoryLimit = 200
	dormantThreshold       = 60 * 24 * time.Hour
	oddHoursStart          = 2
	oddHoursEnd            = 5
)

// AccessTimeDetector scores login timestamps against the user's
// historical access pattern. Each evaluation fits a fresh anomaly
// scorer over the user's login history so the model always reflects
// the latest behavior.
type AccessTimeDetector struct {
	cfg       config.AccessTimeConfig
	store     store.Store
	newScorer func() anomaly.Scorer
}

// NewAccessTimeDetector builds the detector. newScorer supplies the
// statistical model fitted per evaluation.
func NewAccessTimeDetector(cfg config.AccessTimeConfig, st store.Store, newScorer func() anomaly.Scorer) *AccessTimeDetector {
	if newScorer == nil {
		newScorer = func() anomaly.Scorer { return anomaly.NewZScoreScorer() }
	}
	return &AccessTimeDetector{cfg: cfg, store: st, newScorer: newScorer}
}

func (d *AccessTimeDetector) Name() string {
	return DetectorAccessTime
}

// Evaluate scores the login time against history. The login record
// itself is written by the geo-velocity detector, so history here is
// always prior logins.
func (d *AccessTimeDetector) Evaluate(ctx context.Context, event *AuthEvent) (*Signal, error) {
	history, err := d.store.LoginHistory(ctx, event.UserID, accessTimeHistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("loading login history for %s: %w", event.UserID, err)
	}

	if len(history) < d.cfg.MinHistory {
		return &Signal{
			RiskScore: 0,
			Status:    StatusInsufficientHistory,
			Message:   fmt.Sprintf("Need %d logins for time analysis, have %d", d.cfg.MinHistory, len(history)),
			Details:   map[string]any{"history_count": len(history)},
		}, nil
	}

	now := event.Timestamp
	if now.IsZero() {
		now = time.Now().UTC()
	}

	// History is newest-first.
	lastLogin := history[0].Timestamp
	if gap := now.Sub(lastLogin); gap > dormantThreshold {
		return &Signal{
			RiskScore: 75,
			Status:    StatusDormantAccount,
			Message:   "Login after extended account dormancy",
			Details: map[string]any{
				"days_since_last_login": int(gap.Hours() / 24),
				"last_login":            lastLogin,
			},
		}, nil
	}

	samples := make([][]float64, 0, len(history))
	oddHourLogins := 0
	weekendLogins := 0
	for _, rec := range history {
		samples = append(samples, timeFeatures(rec.Timestamp))
		h := rec.Timestamp.Hour()
		if h >= oddHoursStart && h < oddHoursEnd {
			oddHourLogins++
		}
		if isWeekend(rec.Timestamp) {
			weekendLogins++
		}
	}

	oddRatio := float64(oddHourLogins) / float64(len(history))
	weekendRatio := float64(weekendLogins) / float64(len(history))

	hour := now.Hour()
	if hour >= oddHoursStart && hour < oddHoursEnd && oddRatio < 0.1 {
		logging.Warn().Str("user_id", event.UserID).Int("hour", hour).Msg("login at unusual hour for user")
		return &Signal{
			RiskScore: 60,
			Status:    StatusOddHours,
			Message:   "Login during hours this account never uses",
			Details: map[string]any{
				"hour":            hour,
				"odd_hours_ratio": round2(oddRatio),
				"history_count":   len(history),
			},
		}, nil
	}

	if isWeekend(now) && weekendRatio < 0.05 {
		logging.Warn().Str("user_id", event.UserID).Msg("weekend login for weekday-only account")
		return &Signal{
			RiskScore: 70,
			Status:    StatusUnusualDay,
			Message:   "Weekend login for an account with no weekend history",
			Details: map[string]any{
				"weekend_ratio": round2(weekendRatio),
				"history_count": len(history),
			},
		}, nil
	}

	scorer := d.newScorer()
	if err := scorer.Fit(samples); err != nil {
		return nil, fmt.Errorf("fitting access time model for %s: %w", event.UserID, err)
	}
	anomalyScore, err := scorer.Score(timeFeatures(now))
	if err != nil {
		return nil, fmt.Errorf("scoring access time for %s: %w", event.UserID, err)
	}

	riskScore := scaleAnomalyScore(anomalyScore, 0.3)

	status := StatusNormalAccessTime
	switch {
	case riskScore > 70:
		status = StatusHighTimeAnomaly
	case riskScore > 40:
		status = StatusMediumTimeAnomaly
	}

	return &Signal{
		RiskScore: riskScore,
		Status:    status,
		Details: map[string]any{
			"anomaly_score": round2(anomalyScore),
			"history_count": len(history),
			"hour":          hour,
			"is_weekend":    isWeekend(now),
		},
	}, nil
}

// timeFeatures encodes a timestamp as the feature vector the anomaly
// model consumes. All features are scaled to comparable ranges.
func timeFeatures(t time.Time) []float64 {
	hour := t.Hour()
	features := []float64{
		float64(hour),
		float64(t.Minute()) / 60.0,
		float64(mondayWeekday(t)),
		boolFeature(isWeekend(t)),
		boolFeature(hour >= 9 && hour < 17),
		float64(t.Day()) / 31.0,
		float64(int(t.Month())) / 12.0,
		float64(hour / 6),
	}
	return features
}

// mondayWeekday maps time.Weekday to Monday=0..Sunday=6.
func mondayWeekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

func isWeekend(t time.Time) bool {
	return mondayWeekday(t) >= 5
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Compile-time interface assertion
var _ Detector = (*AccessTimeDetector)(nil)
