// Riskgate - Authentication Risk Scoring Engine
// Copyright 2026 Riskgate Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/riskgate/riskgate

package risk

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/riskgate/riskgate/internal/config"
	"github.com/riskgate/riskgate/internal/logging"
	"github.com/riskgate/riskgate/internal/store"
)

// Session statuses.
const (
	StatusInsufficientData   = "insufficient_data"
	StatusNormalBehavior     = "normal_behavior"
	StatusSuspiciousBehavior = "suspicious_behavior"
	StatusHighRiskBehavior   = "high_risk_behavior"
)

// unlikelyTransitionProb is the probability below which a modeled
// transition counts as anomalous.
const unlikelyTransitionProb = 0.05

// defaultTransitions is the Markov transition matrix applied to users
// with no learned model yet.
var defaultTransitions = map[string]map[string]float64{
	"login":             {"view_dashboard": 0.6, "view_profile": 0.3, "view_settings": 0.1},
	"view_dashboard":    {"view_account": 0.4, "view_transactions": 0.3, "logout": 0.2, "view_profile": 0.1},
	"view_account":      {"view_transactions": 0.5, "view_dashboard": 0.3, "logout": 0.2},
	"view_transactions": {"view_dashboard": 0.4, "view_account": 0.3, "logout": 0.3},
	"view_profile":      {"view_dashboard": 0.5, "edit_profile": 0.3, "logout": 0.2},
	"edit_profile":      {"view_profile": 0.7, "view_dashboard": 0.2, "logout": 0.1},
	"view_settings":     {"view_dashboard": 0.5, "edit_settings": 0.3, "logout": 0.2},
	"edit_settings":     {"view_settings": 0.7, "view_dashboard": 0.2, "logout": 0.1},
}

// sensitiveActions maps high-impact actions to their risk weight.
var sensitiveActions = map[string]int{
	"change_email":              15,
	"change_password":           10,
	"add_payment_method":        20,
	"large_transaction":         25,
	"export_data":               15,
	"delete_account":            30,
	"multiple_failed_payments":  20,
	"api_access":                10,
	"change_security_questions": 20,
	"disable_2fa":               30,
}

// SessionAnomalyDetector scores in-session behavior against a learned
// per-user model: action timing, Markov transition likelihood, and
// sensitive-action density. Sessions that look normal feed back into
// the model.
type SessionAnomalyDetector struct {
	cfg   config.SessionConfig
	store store.Store
	locks *keyedMutex
}

// NewSessionAnomalyDetector creates a session anomaly detector.
func NewSessionAnomalyDetector(cfg config.SessionConfig, st store.Store) *SessionAnomalyDetector {
	return &SessionAnomalyDetector{
		cfg:   cfg,
		store: st,
		locks: newKeyedMutex(),
	}
}

func (d *SessionAnomalyDetector) Name() string {
	return DetectorSession
}

type anomalyCheck struct {
	detected bool
	score    float64
	details  []map[string]any
}

// Evaluate runs the three anomaly checks and combines them by max.
// The model read and the learning update happen under a per-user lock.
func (d *SessionAnomalyDetector) Evaluate(ctx context.Context, event *AuthEvent) (*Signal, error) {
	if len(event.SessionEvents) < 2 {
		return &Signal{
			RiskScore: 0,
			Status:    StatusInsufficientData,
			Message:   "Need at least 2 events for session analysis",
			Details:   map[string]any{"anomaly_score": 0.0},
		}, nil
	}

	events := append([]SessionEvent(nil), event.SessionEvents...)
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp < events[j].Timestamp
	})

	unlock := d.locks.Lock(event.UserID)
	defer unlock()

	model, err := d.loadModel(ctx, event.UserID)
	if err != nil {
		return nil, err
	}

	timing := d.checkTimingAnomalies(events)
	sequence := d.checkSequenceAnomalies(events, model)
	activity := d.checkActivityAnomalies(events)

	combined := math.Max(timing.score, math.Max(sequence.score, activity.score))
	riskScore := scaleAnomalyScore(combined, 0.2)

	var status, message string
	switch {
	case riskScore >= 80:
		status = StatusHighRiskBehavior
		message = "Session exhibits highly suspicious behavior patterns"
	case riskScore >= 50:
		status = StatusSuspiciousBehavior
		message = "Session contains potentially suspicious behavior patterns"
	default:
		status = StatusNormalBehavior
		message = "Session behavior appears normal"
	}

	// Anomalous sessions are excluded from learning so attacks cannot
	// poison the model.
	if combined < d.cfg.LearnThreshold {
		if err := d.updateModel(ctx, event.UserID, events, model); err != nil {
			logging.Error().Err(err).Str("user_id", event.UserID).Msg("failed to update session model")
		}
	}

	anomalies := make(map[string]any)
	if timing.detected {
		anomalies["timing"] = map[string]any{"score": timing.score, "details": timing.details}
	}
	if sequence.detected {
		anomalies["sequence"] = map[string]any{"score": sequence.score, "details": sequence.details}
	}
	if activity.detected {
		anomalies["activities"] = map[string]any{"score": activity.score, "details": activity.details}
	}

	if riskScore > 70 {
		logging.Warn().Str("user_id", event.UserID).Msg("high-risk session behavior detected")
	}

	return &Signal{
		RiskScore: riskScore,
		Status:    status,
		Message:   message,
		Details: map[string]any{
			"anomaly_score":   math.Round(combined*100) / 100,
			"anomalies":       anomalies,
			"events_analyzed": len(events),
		},
	}, nil
}

func (d *SessionAnomalyDetector) loadModel(ctx context.Context, userID string) (*store.UserBehaviorModel, error) {
	model, err := d.store.UserModel(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return &store.UserBehaviorModel{
			UserID:           userID,
			Transitions:      copyTransitions(defaultTransitions),
			AvgActionGap:     30,
			AvgSessionLength: d.cfg.TypicalSessionLength.Seconds(),
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load user model: %w", err)
	}
	return model, nil
}

// checkTimingAnomalies flags sub-second action gaps (bot-like), long
// gaps, and overall sessions far beyond the typical length.
func (d *SessionAnomalyDetector) checkTimingAnomalies(events []SessionEvent) anomalyCheck {
	check := anomalyCheck{}
	minGap := int64(d.cfg.MinActionGap.Seconds())
	maxGap := int64(d.cfg.MaxActionGap.Seconds())

	for i := 1; i < len(events); i++ {
		diff := events[i].Timestamp - events[i-1].Timestamp
		switch {
		case diff < minGap:
			check.details = append(check.details, map[string]any{
				"type": "too_fast", "event_index": i, "time_diff": diff,
			})
			check.score = math.Max(check.score, 0.8)
		case diff > maxGap:
			check.details = append(check.details, map[string]any{
				"type": "long_gap", "event_index": i, "time_diff": diff,
			})
			check.score = math.Max(check.score, 0.6)
		}
	}

	sessionLength := events[len(events)-1].Timestamp - events[0].Timestamp
	if float64(sessionLength) > 5*d.cfg.TypicalSessionLength.Seconds() {
		check.details = append(check.details, map[string]any{
			"type": "long_session", "session_length": sessionLength,
		})
		check.score = math.Max(check.score, 0.5)
	}

	check.detected = len(check.details) > 0
	return check
}

// checkSequenceAnomalies walks the event sequence through the user's
// Markov transition matrix and looks for unusual structural patterns.
func (d *SessionAnomalyDetector) checkSequenceAnomalies(events []SessionEvent, model *store.UserBehaviorModel) anomalyCheck {
	check := anomalyCheck{}
	transitions := model.Transitions
	if transitions == nil {
		transitions = defaultTransitions
	}

	types := make([]string, len(events))
	for i, e := range events {
		types[i] = e.Type
	}

	for i := 1; i < len(types); i++ {
		prev, curr := types[i-1], types[i]
		if row, ok := transitions[prev]; ok {
			if prob, ok := row[curr]; ok {
				if prob < unlikelyTransitionProb {
					check.details = append(check.details, map[string]any{
						"type": "unlikely_transition", "from": prev, "to": curr, "probability": prob,
					})
					check.score = math.Max(check.score, 1-prob/unlikelyTransitionProb)
				}
				continue
			}
		}
		check.details = append(check.details, map[string]any{
			"type": "unknown_transition", "from": prev, "to": curr,
		})
		check.score = math.Max(check.score, 0.7)
	}

	if unusual := checkUnusualPatterns(types); len(unusual) > 0 {
		check.details = append(check.details, unusual...)
		check.score = math.Max(check.score, 0.8)
	}

	check.detected = len(check.details) > 0
	return check
}

// checkUnusualPatterns finds structural oddities independent of the
// transition model: the same action four times in a row, an A-B cycle
// over six events, and rapid navigation across many sections.
func checkUnusualPatterns(types []string) []map[string]any {
	var patterns []map[string]any

	for i := 0; i+3 < len(types); i++ {
		if types[i] == types[i+1] && types[i] == types[i+2] && types[i] == types[i+3] {
			patterns = append(patterns, map[string]any{
				"type": "repeated_action", "action": types[i], "count": 4, "index": i,
			})
		}
	}

	for i := 0; i+5 < len(types); i++ {
		if types[i] == types[i+2] && types[i] == types[i+4] &&
			types[i+1] == types[i+3] && types[i+1] == types[i+5] &&
			types[i] != types[i+1] {
			patterns = append(patterns, map[string]any{
				"type": "cyclic_pattern", "actions": []string{types[i], types[i+1]}, "index": i,
			})
		}
	}

	if len(types) >= 10 {
		unique := make(map[string]struct{})
		for _, t := range types[:10] {
			unique[t] = struct{}{}
		}
		if len(unique) >= 7 {
			patterns = append(patterns, map[string]any{
				"type": "rapid_navigation", "unique_actions": len(unique), "sequence_length": 10,
			})
		}
	}

	return patterns
}

// checkActivityAnomalies weighs sensitive actions. A single action
// contributes weight/30; two sensitive actions push the score to at
// least 0.7; three or more to 0.9.
func (d *SessionAnomalyDetector) checkActivityAnomalies(events []SessionEvent) anomalyCheck {
	check := anomalyCheck{}
	suspiciousCount := 0
	totalRisk := 0

	for i, e := range events {
		weight, ok := sensitiveActions[e.Type]
		if !ok {
			continue
		}
		suspiciousCount++
		totalRisk += weight
		check.details = append(check.details, map[string]any{
			"type": "suspicious_activity", "activity": e.Type, "risk_level": weight, "index": i,
		})
		check.score = math.Max(check.score, math.Min(float64(weight)/30, 1.0))
	}

	if suspiciousCount >= 3 {
		check.details = append(check.details, map[string]any{
			"type": "multiple_suspicious", "count": suspiciousCount, "total_risk": totalRisk,
		})
		check.score = math.Max(check.score, 0.9)
	} else if suspiciousCount >= 2 {
		check.score = math.Max(check.score, 0.7)
	}

	check.detected = len(check.details) > 0
	return check
}

// scaleAnomalyScore maps a 0-1 anomaly score to 0-100 risk, treating
// everything below the floor as normal.
func scaleAnomalyScore(score, floor float64) int {
	if score < floor {
		return 0
	}
	scaled := (score - floor) / (1 - floor) * 100
	return int(math.Min(100, math.Max(0, scaled)))
}

// updateModel folds this session into the user's behavior model:
// transition counts bumped and row-renormalized, timing averages
// blended with 0.8 weight on the existing model.
func (d *SessionAnomalyDetector) updateModel(ctx context.Context, userID string, events []SessionEvent, model *store.UserBehaviorModel) error {
	transitions := copyTransitions(model.Transitions)
	if transitions == nil {
		transitions = copyTransitions(defaultTransitions)
	}

	types := make([]string, len(events))
	for i, e := range events {
		types[i] = e.Type
	}

	for i := 1; i < len(types); i++ {
		prev, curr := types[i-1], types[i]
		row, ok := transitions[prev]
		if !ok {
			row = make(map[string]float64)
			transitions[prev] = row
		}
		row[curr] += 0.1

		var total float64
		for _, v := range row {
			total += v
		}
		for k := range row {
			row[k] /= total
		}
	}

	sessionLength := float64(events[len(events)-1].Timestamp - events[0].Timestamp)

	maxGap := d.cfg.MaxActionGap.Seconds()
	var gaps []float64
	for i := 1; i < len(events); i++ {
		diff := float64(events[i].Timestamp - events[i-1].Timestamp)
		if diff > 0 && diff < maxGap {
			gaps = append(gaps, diff)
		}
	}
	avgGap := 30.0
	if len(gaps) > 0 {
		var sum float64
		for _, g := range gaps {
			sum += g
		}
		avgGap = sum / float64(len(gaps))
	}

	const alpha = 0.8

	updated := store.UserBehaviorModel{
		UserID:           userID,
		Transitions:      transitions,
		AvgSessionLength: alpha*model.AvgSessionLength + (1-alpha)*sessionLength,
		AvgActionGap:     alpha*model.AvgActionGap + (1-alpha)*avgGap,
		SampleCount:      model.SampleCount + 1,
		UpdatedAt:        time.Now().UTC(),
	}

	if err := d.store.UpsertUserModel(ctx, updated); err != nil {
		return fmt.Errorf("store user model: %w", err)
	}
	return nil
}

func copyTransitions(src map[string]map[string]float64) map[string]map[string]float64 {
	if src == nil {
		return nil
	}
	dst := make(map[string]map[string]float64, len(src))
	for from, row := range src {
		dstRow := make(map[string]float64, len(row))
		for to, p := range row {
			dstRow[to] = p
		}
		dst[from] = dstRow
	}
	return dst
}

// Compile-time interface assertion
var _ Detector = (*SessionAnomalyDetector)(nil)
