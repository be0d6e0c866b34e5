// Riskgate - Authentication Risk Scoring Engine
// Copyright 2026 Riskgate Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/riskgate/riskgate

package risk

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/riskgate/riskgate/internal/config"
	"github.com/riskgate/riskgate/internal/logging"
	"github.com/riskgate/riskgate/internal/store"
)

// IP reputation statuses.
const (
	StatusIPTrusted  = "trusted"
	StatusIPLowRisk  = "low_risk"
	StatusIPMedium   = "medium_risk"
	StatusIPHighRisk = "high_risk"
	StatusIPCritical = "critical"
)

const (
	ipBaseScore         = 50
	failedLoginLookback = 24 * time.Hour
)

// IPReputationDetector scores source addresses against static threat
// lists and the recent failed-login record. Computed reputations are
// cached in the store and recomputed once stale.
type IPReputationDetector struct {
	cfg   config.IPReputationConfig
	store store.Store

	malicious map[string]bool
	proxies   map[string]bool
	vpns      map[string]bool
	torExits  map[string]bool
	cidrs     []netip.Prefix
	locks     *keyedMutex
}

// NewIPReputationDetector builds the detector, parsing the configured
// datacenter CIDR ranges up front. Unparseable entries are logged and
// skipped.
func NewIPReputationDetector(cfg config.IPReputationConfig, st store.Store) *IPReputationDetector {
	d := &IPReputationDetector{
		cfg:       cfg,
		store:     st,
		malicious: toSet(cfg.MaliciousIPs),
		proxies:   toSet(cfg.ProxyIPs),
		vpns:      toSet(cfg.VPNIPs),
		torExits:  toSet(cfg.TorExitIPs),
		locks:     newKeyedMutex(),
	}
	for _, raw := range cfg.DatacenterCIDRs {
		prefix, err := netip.ParsePrefix(raw)
		if err != nil {
			logging.Warn().Str("cidr", raw).Err(err).Msg("skipping unparseable datacenter CIDR")
			continue
		}
		d.cidrs = append(d.cidrs, prefix)
	}
	return d
}

func (d *IPReputationDetector) Name() string {
	return DetectorIPReputation
}

// Evaluate looks up the cached reputation for the event's source IP,
// refreshing it when missing or stale, then scores it.
func (d *IPReputationDetector) Evaluate(ctx context.Context, event *AuthEvent) (*Signal, error) {
	ip := event.IP

	unlock := d.locks.Lock(ip)
	defer unlock()

	rec, err := d.store.IPReputation(ctx, ip)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("loading ip reputation for %s: %w", ip, err)
	}
	if errors.Is(err, store.ErrNotFound) {
		rec = nil
	}

	now := event.Timestamp
	if now.IsZero() {
		now = time.Now().UTC()
	}

	if rec == nil || now.Sub(rec.UpdatedAt) > d.cfg.StaleTTL {
		rec, err = d.refresh(ctx, ip, rec, now)
		if err != nil {
			return nil, err
		}
	}

	riskScore := d.scoreRecord(rec)
	status := reputationStatus(riskScore)

	if riskScore > 70 {
		logging.Warn().
			Str("ip", ip).
			Int("risk_score", riskScore).
			Str("status", status).
			Msg("high risk IP reputation")
	}

	return &Signal{
		RiskScore: riskScore,
		Status:    status,
		Details: map[string]any{
			"ip":              ip,
			"is_proxy":        rec.IsProxy,
			"is_vpn":          rec.IsVPN,
			"is_tor":          rec.IsTor,
			"is_datacenter":   rec.IsDatacenter,
			"is_known_abuser": rec.IsKnownAbuser,
			"failed_logins":   rec.FailedLogins,
			"countries_count": len(rec.Countries),
			"updated_at":      rec.UpdatedAt,
		},
	}, nil
}

// refresh recomputes the reputation record from the threat lists and
// recent failed logins, then persists it. Countries observed so far
// are carried over from the previous record.
func (d *IPReputationDetector) refresh(ctx context.Context, ip string, prev *store.IPReputationRecord, now time.Time) (*store.IPReputationRecord, error) {
	rec := &store.IPReputationRecord{
		IP:            ip,
		IsKnownAbuser: d.malicious[ip],
		IsProxy:       d.proxies[ip],
		IsVPN:         d.vpns[ip],
		IsTor:         d.torExits[ip],
		IsDatacenter:  d.inDatacenterRange(ip),
		Score:         ipBaseScore,
		UpdatedAt:     now,
	}
	if prev != nil {
		rec.Countries = prev.Countries
	}

	failures, err := d.store.RecentFailedLogins(ctx, now.Add(-failedLoginLookback))
	if err != nil {
		return nil, fmt.Errorf("counting failed logins for %s: %w", ip, err)
	}
	for _, f := range failures {
		if f.IP == ip {
			rec.FailedLogins++
		}
	}

	switch {
	case rec.IsKnownAbuser:
		rec.Score = max(rec.Score, 90)
	case rec.IsTor:
		rec.Score = max(rec.Score, 80)
	case rec.IsProxy:
		rec.Score = max(rec.Score, 70)
	case rec.IsVPN:
		rec.Score = max(rec.Score, 65)
	}
	switch {
	case rec.FailedLogins > 10:
		rec.Score = max(rec.Score, 75)
	case rec.FailedLogins > 5:
		rec.Score = max(rec.Score, 60)
	}
	rec.Status = reputationStatus(rec.Score)

	if err := d.store.UpsertIPReputation(ctx, *rec); err != nil {
		return nil, fmt.Errorf("storing ip reputation for %s: %w", ip, err)
	}
	return rec, nil
}

// scoreRecord derives the final risk score from the record's flags.
// Each flag imposes a floor; the highest floor wins.
func (d *IPReputationDetector) scoreRecord(rec *store.IPReputationRecord) int {
	score := 0

	if rec.IsKnownAbuser {
		score = max(score, 90)
	}
	if rec.IsTor {
		score = max(score, 80)
	}
	if rec.IsProxy || rec.IsVPN {
		score = max(score, 60)
	}
	if rec.IsDatacenter {
		score = max(score, 40)
	}

	switch {
	case rec.FailedLogins > 20:
		score = max(score, 90)
	case rec.FailedLogins > 10:
		score = max(score, 75)
	case rec.FailedLogins > 5:
		score = max(score, 60)
	}

	switch {
	case len(rec.Countries) > 5:
		score = max(score, 80)
	case len(rec.Countries) > 2:
		score = max(score, 60)
	}

	return min(100, score)
}

func (d *IPReputationDetector) inDatacenterRange(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	for _, prefix := range d.cidrs {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func reputationStatus(score int) string {
	switch {
	case score >= 90:
		return StatusIPCritical
	case score >= 70:
		return StatusIPHighRisk
	case score >= 50:
		return StatusIPMedium
	case score >= 30:
		return StatusIPLowRisk
	default:
		return StatusIPTrusted
	}
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}

// Compile-time interface assertion
var _ Detector = (*IPReputationDetector)(nil)
