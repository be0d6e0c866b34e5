// Riskgate - Authentication Risk Scoring Engine
// Copyright 2026 Riskgate Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/riskgate/riskgate

package risk

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/riskgate/riskgate/internal/config"
	"github.com/riskgate/riskgate/internal/logging"
	"github.com/riskgate/riskgate/internal/store"
)

// Attack classification risk scores.
const (
	bruteForceScore = 85
	stuffingScore   = 90
	sprayingScore   = 80
)

// Password-attack statuses.
const (
	StatusNoAttack           = "no_attack"
	StatusBruteForce         = "bruteforce"
	StatusCredentialStuffing = "credential_stuffing"
	StatusPasswordSpraying   = "password_spraying"
)

// PasswordAttackDetector classifies failed-login activity into brute
// force (one user, one source), credential stuffing (many users, one
// source), and password spraying (many users, few sources).
type PasswordAttackDetector struct {
	cfg   config.PasswordAttackConfig
	store store.Store
}

// NewPasswordAttackDetector creates a password-attack classifier.
func NewPasswordAttackDetector(cfg config.PasswordAttackConfig, st store.Store) *PasswordAttackDetector {
	return &PasswordAttackDetector{cfg: cfg, store: st}
}

func (d *PasswordAttackDetector) Name() string {
	return DetectorPasswordAttack
}

type attackFinding struct {
	kind          string
	detected      bool
	riskScore     int
	message       string
	ipAddresses   []string
	affectedUsers []string
}

// Evaluate classifies the failure activity around the event. The most
// severe detected attack wins; velocity and acceleration diagnostics
// are included whenever the source IP has three or more failures.
func (d *PasswordAttackDetector) Evaluate(ctx context.Context, event *AuthEvent) (*Signal, error) {
	now := event.Timestamp

	all, err := d.store.RecentFailedLogins(ctx, now.Add(-d.cfg.FetchWindow))
	if err != nil {
		return nil, fmt.Errorf("load failed logins: %w", err)
	}

	var userFailures, ipFailures []store.FailedLoginRecord
	for _, f := range all {
		if f.Timestamp.After(now) {
			continue
		}
		if f.UserID == event.UserID {
			userFailures = append(userFailures, f)
		}
		if f.IP == event.IP {
			ipFailures = append(ipFailures, f)
		}
	}

	findings := []attackFinding{
		d.detectBruteForce(event, userFailures, now),
		d.detectCredentialStuffing(event, all, now),
		d.detectPasswordSpraying(all, now),
	}

	var detected []attackFinding
	for _, f := range findings {
		if f.detected {
			detected = append(detected, f)
		}
	}

	if len(detected) == 0 {
		return &Signal{
			RiskScore: 0,
			Status:    StatusNoAttack,
			Message:   "No password attacks detected",
			Details: map[string]any{
				"user_failures_count": len(userFailures),
				"ip_failures_count":   len(ipFailures),
			},
		}, nil
	}

	mostSevere := detected[0]
	for _, f := range detected[1:] {
		if f.riskScore > mostSevere.riskScore {
			mostSevere = f
		}
	}

	velocity, acceleration := attackMetrics(ipFailures)

	logging.Warn().
		Str("attack_type", mostSevere.kind).
		Str("user_id", event.UserID).
		Str("ip", event.IP).
		Msg("password attack detected")

	return &Signal{
		RiskScore: mostSevere.riskScore,
		Status:    mostSevere.kind,
		Message:   mostSevere.message,
		Details: map[string]any{
			"attack_detected":     true,
			"user_failures_count": len(userFailures),
			"ip_failures_count":   len(ipFailures),
			"velocity":            velocity,
			"acceleration":        acceleration,
			"ip_addresses":        mostSevere.ipAddresses,
			"affected_users":      mostSevere.affectedUsers,
		},
	}, nil
}

// detectBruteForce flags repeated failures for one (user, IP) pair
// inside the brute-force window.
func (d *PasswordAttackDetector) detectBruteForce(event *AuthEvent, userFailures []store.FailedLoginRecord, now time.Time) attackFinding {
	count := 0
	for _, f := range userFailures {
		if f.IP == event.IP && now.Sub(f.Timestamp) <= d.cfg.BruteForceWindow {
			count++
		}
	}

	detected := count >= d.cfg.BruteForceAttempts
	score := 0
	if detected {
		score = bruteForceScore
	}
	return attackFinding{
		kind:      StatusBruteForce,
		detected:  detected,
		riskScore: score,
		message: fmt.Sprintf("Brute force attack detected: %d failed attempts against user %s from IP %s",
			count, event.UserID, event.IP),
		ipAddresses: []string{event.IP},
	}
}

// detectCredentialStuffing flags one IP cycling through many distinct
// usernames inside the stuffing window.
func (d *PasswordAttackDetector) detectCredentialStuffing(event *AuthEvent, all []store.FailedLoginRecord, now time.Time) attackFinding {
	users := make(map[string]struct{})
	for _, f := range all {
		if f.IP == event.IP && now.Sub(f.Timestamp) <= d.cfg.StuffingWindow && !f.Timestamp.After(now) {
			users[f.UserID] = struct{}{}
		}
	}

	detected := len(users) >= d.cfg.StuffingUserCount
	score := 0
	if detected {
		score = stuffingScore
	}
	return attackFinding{
		kind:      StatusCredentialStuffing,
		detected:  detected,
		riskScore: score,
		message: fmt.Sprintf("Credential stuffing attack detected: %d different users targeted from IP %s",
			len(users), event.IP),
		ipAddresses:   []string{event.IP},
		affectedUsers: firstN(setKeys(users), 10),
	}
}

// detectPasswordSpraying flags many distinct usernames failing across
// few distinct IPs inside the spraying window. The IP bound allows
// some flexibility via the configured multiplier.
func (d *PasswordAttackDetector) detectPasswordSpraying(all []store.FailedLoginRecord, now time.Time) attackFinding {
	users := make(map[string]struct{})
	ips := make(map[string]struct{})
	for _, f := range all {
		if now.Sub(f.Timestamp) <= d.cfg.SprayWindow && !f.Timestamp.After(now) {
			users[f.UserID] = struct{}{}
			ips[f.IP] = struct{}{}
		}
	}

	detected := len(users) >= d.cfg.SprayUserCount &&
		len(ips) <= d.cfg.SprayIPCount*d.cfg.SprayIPMultiplier
	score := 0
	if detected {
		score = sprayingScore
	}
	return attackFinding{
		kind:      StatusPasswordSpraying,
		detected:  detected,
		riskScore: score,
		message: fmt.Sprintf("Password spraying attack detected: %d different users targeted from %d IP addresses",
			len(users), len(ips)),
		ipAddresses:   firstN(setKeys(ips), 10),
		affectedUsers: firstN(setKeys(users), 10),
	}
}

// attackMetrics computes failure velocity (failures per minute over
// the observed span) and acceleration (second-half velocity minus
// first-half velocity). Requires at least three failures.
func attackMetrics(failures []store.FailedLoginRecord) (float64, float64) {
	if len(failures) < 3 {
		return 0, 0
	}

	timestamps := make([]time.Time, len(failures))
	for i, f := range failures {
		timestamps[i] = f.Timestamp
	}
	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i].Before(timestamps[j]) })

	diffs := make([]float64, 0, len(timestamps)-1)
	for i := 1; i < len(timestamps); i++ {
		diffs = append(diffs, timestamps[i].Sub(timestamps[i-1]).Seconds())
	}

	totalSeconds := timestamps[len(timestamps)-1].Sub(timestamps[0]).Seconds()
	velocity := 0.0
	if totalSeconds > 0 {
		velocity = float64(len(failures)-1) * 60 / totalSeconds
	}

	if len(diffs) < 2 {
		return round2(velocity), 0
	}

	half := len(diffs) / 2
	firstHalf, secondHalf := diffs[:half], diffs[half:]

	halfVelocity := func(gaps []float64) float64 {
		var sum float64
		for _, g := range gaps {
			sum += g
		}
		if sum <= 0 {
			return 0
		}
		return float64(len(gaps)) * 60 / sum
	}

	return round2(velocity), round2(halfVelocity(secondHalf) - halfVelocity(firstHalf))
}

func setKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func firstN(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[:n]
}

// Compile-time interface assertion
var _ Detector = (*PasswordAttackDetector)(nil)
