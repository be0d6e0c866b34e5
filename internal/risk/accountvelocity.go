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
	"strings"
	"time"

	"github.com/riskgate/riskgate/internal/config"
	"github.com/riskgate/riskgate/internal/logging"
	"github.com/riskgate/riskgate/internal/store"
)

// Account-velocity statuses.
const (
	StatusNormalVelocity     = "normal_velocity"
	StatusElevatedVelocity   = "elevated_velocity"
	StatusHighVelocity       = "high_velocity"
	StatusBurstPattern       = "burst_pattern"
	StatusCyclicalPattern    = "cyclical_pattern"
	StatusDistributedPattern = "distributed_pattern"
)

// Aggregation window lengths.
const (
	windowShort  = 5 * time.Minute
	windowMedium = time.Hour
	windowLong   = 24 * time.Hour
)

// Pattern risk scores, ordered by severity.
var patternScores = map[string]int{
	"burst":       90,
	"distributed": 80,
	"cyclical":    75,
}

// AccountVelocityDetector monitors account creation rates per source
// IP, /24 subnet, and email domain to catch mass-registration fraud.
type AccountVelocityDetector struct {
	cfg   config.AccountVelocityConfig
	store store.Store
}

// NewAccountVelocityDetector creates an account-velocity detector.
func NewAccountVelocityDetector(cfg config.AccountVelocityConfig, st store.Store) *AccountVelocityDetector {
	return &AccountVelocityDetector{cfg: cfg, store: st}
}

func (d *AccountVelocityDetector) Name() string {
	return DetectorAccountVelocity
}

// Evaluate computes per-entity registration velocities over the three
// windows and checks for burst, cyclical, and distributed patterns.
func (d *AccountVelocityDetector) Evaluate(ctx context.Context, event *AuthEvent) (*Signal, error) {
	now := event.Timestamp

	all, err := d.store.RegistrationsSince(ctx, now.Add(-windowLong))
	if err != nil {
		return nil, fmt.Errorf("load registrations: %w", err)
	}

	emailDomain := EmailDomain(event.Email)
	subnet := SubnetOf(event.IP)

	ipRegs := filterTimestamps(all, now, func(r store.RegistrationRecord) bool {
		return r.IP == event.IP
	})
	var subnetRegs, domainRegs []time.Time
	if subnet != "" {
		subnetRegs = filterTimestamps(all, now, func(r store.RegistrationRecord) bool {
			return r.Subnet == subnet
		})
	}
	if emailDomain != "" {
		domainRegs = filterTimestamps(all, now, func(r store.RegistrationRecord) bool {
			return r.EmailDomain == emailDomain
		})
	}

	velocities := make(map[string]any)
	riskScore := 0

	ipVelocities, ipRisk := calculateVelocities(d.cfg.IP, ipRegs, now)
	velocities["ip"] = ipVelocities
	riskScore = max(riskScore, ipRisk)

	if subnet != "" {
		subnetVelocities, subnetRisk := calculateVelocities(d.cfg.Subnet, subnetRegs, now)
		velocities["subnet"] = subnetVelocities
		riskScore = max(riskScore, subnetRisk)
	}
	if emailDomain != "" {
		domainVelocities, domainRisk := calculateVelocities(d.cfg.EmailDomain, domainRegs, now)
		velocities["email_domain"] = domainVelocities
		riskScore = max(riskScore, domainRisk)
	}

	var status, message string
	switch {
	case riskScore >= 80:
		status = StatusHighVelocity
		message = "Account creation rate significantly exceeds normal patterns"
	case riskScore >= 50:
		status = StatusElevatedVelocity
		message = "Account creation rate exceeds normal patterns"
	default:
		status = StatusNormalVelocity
		message = "Account creation rate within normal patterns"
	}

	details := map[string]any{"velocities": velocities}

	patterns := checkVelocityPatterns(ipRegs, subnetRegs, domainRegs, now)
	if len(patterns) > 0 {
		details["patterns"] = patterns
		name, score := mostSeverePattern(patterns)
		if score > riskScore {
			riskScore = score
			status = name + "_pattern"
			message = "Detected " + name + " registration pattern"
		}
	}

	if riskScore > 70 {
		logging.Warn().
			Str("ip", event.IP).
			Int("risk_score", riskScore).
			Msg("high-risk account velocity detected")
	}

	return &Signal{
		RiskScore: riskScore,
		Status:    status,
		Message:   message,
		Details:   details,
	}, nil
}

// EmailDomain returns the lowercased domain part of an email
// address, or "" when none is present.
func EmailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}

// SubnetOf returns the /24 subnet in CIDR notation for an IPv4
// address, or "" for anything else.
func SubnetOf(ip string) string {
	octets := strings.Split(ip, ".")
	if len(octets) != 4 {
		return ""
	}
	for _, o := range octets {
		if o == "" || len(o) > 3 {
			return ""
		}
		for _, c := range o {
			if c < '0' || c > '9' {
				return ""
			}
		}
	}
	return octets[0] + "." + octets[1] + "." + octets[2] + ".0/24"
}

func filterTimestamps(regs []store.RegistrationRecord, now time.Time, match func(store.RegistrationRecord) bool) []time.Time {
	var out []time.Time
	for _, r := range regs {
		if !r.Timestamp.After(now) && match(r) {
			out = append(out, r.Timestamp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// calculateVelocities computes per-window counts and maps threshold
// overruns to risk. Below the threshold is no risk; 1x-5x over scales
// linearly from 25 to 100; 5x and beyond is maximum risk.
func calculateVelocities(thresholds config.VelocityThresholds, regs []time.Time, now time.Time) (map[string]any, int) {
	windows := []struct {
		name      string
		length    time.Duration
		threshold int
	}{
		{"short", windowShort, thresholds.Short},
		{"medium", windowMedium, thresholds.Medium},
		{"long", windowLong, thresholds.Long},
	}

	velocities := make(map[string]any, len(windows))
	maxRisk := 0

	for _, w := range windows {
		count := 0
		for _, ts := range regs {
			if now.Sub(ts) <= w.length {
				count++
			}
		}

		risk := 0.0
		if count > w.threshold && w.threshold > 0 {
			ratio := float64(count) / float64(w.threshold)
			if ratio >= 5 {
				risk = 100
			} else {
				risk = 25 + 75*(ratio-1)/4
			}
		}

		velocities[w.name] = map[string]any{
			"count":             count,
			"threshold":         w.threshold,
			"velocity_per_hour": round2(float64(count) / w.length.Hours()),
			"risk":              int(risk),
		}
		maxRisk = max(maxRisk, int(risk))
	}

	return velocities, maxRisk
}

// checkVelocityPatterns looks for burst, cyclical, and distributed
// registration patterns. All detected patterns are returned.
func checkVelocityPatterns(ipRegs, subnetRegs, domainRegs []time.Time, now time.Time) map[string]any {
	patterns := make(map[string]any)

	if burst := checkBurstPattern(ipRegs, now); burst != nil {
		patterns["burst"] = burst
	}
	if cyclical := checkCyclicalPattern(subnetRegs); cyclical != nil {
		patterns["cyclical"] = cyclical
	}
	if distributed := checkDistributedPattern(subnetRegs, domainRegs); distributed != nil {
		patterns["distributed"] = distributed
	}

	return patterns
}

func mostSeverePattern(patterns map[string]any) (string, int) {
	best, bestScore := "", 0
	for name := range patterns {
		if score := patternScores[name]; score > bestScore {
			best, bestScore = name, score
		}
	}
	return best, bestScore
}

// checkBurstPattern detects 3+ registrations within 30 seconds or 5+
// within 2 minutes, looking only at the last 10 minutes.
func checkBurstPattern(regs []time.Time, now time.Time) map[string]any {
	var recent []time.Time
	for _, ts := range regs {
		if now.Sub(ts) <= 10*time.Minute {
			recent = append(recent, ts)
		}
	}
	if len(recent) < 3 {
		return nil
	}
	sort.Slice(recent, func(i, j int) bool { return recent[i].Before(recent[j]) })

	for i := 0; i+2 < len(recent); i++ {
		if span := recent[i+2].Sub(recent[i]); span <= 30*time.Second {
			return map[string]any{"count": 3, "seconds": span.Seconds(), "timestamp": recent[i]}
		}
	}
	if len(recent) >= 5 {
		for i := 0; i+4 < len(recent); i++ {
			if span := recent[i+4].Sub(recent[i]); span <= 2*time.Minute {
				return map[string]any{"count": 5, "seconds": span.Seconds(), "timestamp": recent[i]}
			}
		}
	}
	return nil
}

// checkCyclicalPattern detects registrations arriving at near-regular
// intervals: a coefficient of variation below 0.25 over five or more
// timestamps.
func checkCyclicalPattern(regs []time.Time) map[string]any {
	if len(regs) < 5 {
		return nil
	}
	sorted := append([]time.Time(nil), regs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	intervals := make([]float64, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		intervals = append(intervals, sorted[i].Sub(sorted[i-1]).Seconds())
	}
	if len(intervals) < 4 {
		return nil
	}

	var sum float64
	for _, iv := range intervals {
		sum += iv
	}
	avg := sum / float64(len(intervals))

	var variance float64
	for _, iv := range intervals {
		d := iv - avg
		variance += d * d
	}
	stddev := math.Sqrt(variance / float64(len(intervals)))

	if avg > 0 && stddev/avg < 0.25 {
		return map[string]any{
			"avg_interval_seconds": int(avg),
			"std_dev":              int(stddev),
			"count":                len(intervals) + 1,
		}
	}
	return nil
}

// checkDistributedPattern detects sustained registration volume spread
// across a subnet and an email domain at once: both must exceed 10
// total and 5 within their trailing hour.
func checkDistributedPattern(subnetRegs, domainRegs []time.Time) map[string]any {
	if len(subnetRegs) <= 10 || len(domainRegs) <= 10 {
		return nil
	}

	lastHourCount := func(regs []time.Time) int {
		latest := regs[0]
		for _, ts := range regs {
			if ts.After(latest) {
				latest = ts
			}
		}
		count := 0
		for _, ts := range regs {
			if latest.Sub(ts) <= time.Hour {
				count++
			}
		}
		return count
	}

	subnetCount := lastHourCount(subnetRegs)
	domainCount := lastHourCount(domainRegs)
	if subnetCount > 5 && domainCount > 5 {
		return map[string]any{
			"subnet_count": subnetCount,
			"domain_count": domainCount,
			"time_window":  "1 hour",
		}
	}
	return nil
}

// Compile-time interface assertion
var _ Detector = (*AccountVelocityDetector)(nil)
