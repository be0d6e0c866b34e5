// Riskgate - Authentication Risk Scoring Engine
// Copyright 2026 Riskgate Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/riskgate/riskgate

package risk

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/riskgate/riskgate/internal/config"
	"github.com/riskgate/riskgate/internal/store"
)

func velocityTestConfig() config.AccountVelocityConfig {
	return config.AccountVelocityConfig{
		IP:          config.VelocityThresholds{Short: 3, Medium: 10, Long: 30},
		EmailDomain: config.VelocityThresholds{Short: 5, Medium: 20, Long: 50},
		Subnet:      config.VelocityThresholds{Short: 8, Medium: 25, Long: 80},
	}
}

func seedRegistrations(t *testing.T, st store.Store, ip string, times []time.Time) {
	t.Helper()
	for _, ts := range times {
		err := st.RecordRegistration(context.Background(), store.RegistrationRecord{
			IP:        ip,
			Timestamp: ts,
		})
		if err != nil {
			t.Fatalf("RecordRegistration: %v", err)
		}
	}
}

func TestAccountVelocityNoActivity(t *testing.T) {
	d := NewAccountVelocityDetector(velocityTestConfig(), store.NewMemoryStore(10))

	sig, err := d.Evaluate(context.Background(), &AuthEvent{
		IP:        "192.0.2.10",
		Email:     "new@example.com",
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if sig.RiskScore != 0 || sig.Status != StatusNormalVelocity {
		t.Errorf("got score=%d status=%q, want 0 %q", sig.RiskScore, sig.Status, StatusNormalVelocity)
	}
}

func TestAccountVelocityElevatedRate(t *testing.T) {
	st := store.NewMemoryStore(10)
	now := time.Now().UTC()

	// Nine registrations from one IP in the short window, spaced wide
	// enough apart not to read as a burst.
	var times []time.Time
	for i := 1; i <= 9; i++ {
		times = append(times, now.Add(-time.Duration(i)*31*time.Second))
	}
	seedRegistrations(t, st, "192.0.2.10", times)

	d := NewAccountVelocityDetector(velocityTestConfig(), st)
	sig, err := d.Evaluate(context.Background(), &AuthEvent{
		IP:        "192.0.2.10",
		Timestamp: now,
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	// Nine against a threshold of three is a 3x overrun: 25 + 75*(3-1)/4.
	if sig.RiskScore != 62 {
		t.Errorf("RiskScore = %d, want 62", sig.RiskScore)
	}
	if sig.Status != StatusElevatedVelocity {
		t.Errorf("Status = %q, want %q", sig.Status, StatusElevatedVelocity)
	}
}

func TestAccountVelocityExtremeRate(t *testing.T) {
	st := store.NewMemoryStore(10)
	now := time.Now().UTC()

	var times []time.Time
	for i := 1; i <= 16; i++ {
		times = append(times, now.Add(-time.Duration(i)*18*time.Second))
	}
	seedRegistrations(t, st, "192.0.2.10", times)

	d := NewAccountVelocityDetector(velocityTestConfig(), st)
	sig, err := d.Evaluate(context.Background(), &AuthEvent{
		IP:        "192.0.2.10",
		Timestamp: now,
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if sig.RiskScore != 100 || sig.Status != StatusHighVelocity {
		t.Errorf("got score=%d status=%q, want 100 %q", sig.RiskScore, sig.Status, StatusHighVelocity)
	}
}

func TestAccountVelocityBurstPattern(t *testing.T) {
	st := store.NewMemoryStore(10)
	now := time.Now().UTC()

	seedRegistrations(t, st, "192.0.2.10", []time.Time{
		now.Add(-10 * time.Second),
		now.Add(-20 * time.Second),
		now.Add(-25 * time.Second),
	})

	d := NewAccountVelocityDetector(velocityTestConfig(), st)
	sig, err := d.Evaluate(context.Background(), &AuthEvent{
		IP:        "192.0.2.10",
		Timestamp: now,
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if sig.RiskScore != 90 || sig.Status != StatusBurstPattern {
		t.Errorf("got score=%d status=%q, want 90 %q", sig.RiskScore, sig.Status, StatusBurstPattern)
	}
}

func TestAccountVelocityDistributedPattern(t *testing.T) {
	st := store.NewMemoryStore(10)
	now := time.Now().UTC()

	// Twelve registrations spread across distinct IPs in one /24 with a
	// shared email domain, spaced 9 minutes apart: volume stays under
	// every per-window threshold, but both subnet and domain exceed 10
	// total with more than 5 in the trailing hour.
	for i := 1; i <= 12; i++ {
		err := st.RecordRegistration(context.Background(), store.RegistrationRecord{
			IP:          fmt.Sprintf("203.0.113.%d", i),
			Subnet:      "203.0.113.0/24",
			EmailDomain: "mailbox.example",
			Timestamp:   now.Add(-time.Duration(i) * 9 * time.Minute),
		})
		if err != nil {
			t.Fatalf("RecordRegistration: %v", err)
		}
	}

	d := NewAccountVelocityDetector(velocityTestConfig(), st)
	sig, err := d.Evaluate(context.Background(), &AuthEvent{
		IP:        "203.0.113.200",
		Email:     "thirteenth@mailbox.example",
		Timestamp: now,
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	if sig.RiskScore != 80 {
		t.Errorf("RiskScore = %d, want 80", sig.RiskScore)
	}
	if sig.Status != StatusDistributedPattern {
		t.Errorf("Status = %q, want %q", sig.Status, StatusDistributedPattern)
	}

	patterns, ok := sig.Details["patterns"].(map[string]any)
	if !ok {
		t.Fatalf("patterns detail missing: %v", sig.Details)
	}
	distributed, ok := patterns["distributed"].(map[string]any)
	if !ok {
		t.Fatalf("distributed pattern missing: %v", patterns)
	}
	if distributed["subnet_count"] != 7 || distributed["domain_count"] != 7 {
		t.Errorf("distributed counts = %v, want subnet_count=7 domain_count=7", distributed)
	}
}

func TestExtractEmailDomain(t *testing.T) {
	tests := []struct {
		email string
		want  string
	}{
		{"user@Example.COM", "example.com"},
		{"a@b@mail.net", "mail.net"},
		{"no-at-sign", ""},
		{"trailing@", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := EmailDomain(tt.email); got != tt.want {
			t.Errorf("EmailDomain(%q) = %q, want %q", tt.email, got, tt.want)
		}
	}
}

func TestSubnetOf(t *testing.T) {
	tests := []struct {
		ip   string
		want string
	}{
		{"192.0.2.55", "192.0.2.0/24"},
		{"10.1.2.3", "10.1.2.0/24"},
		{"2001:db8::1", ""},
		{"not-an-ip", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := SubnetOf(tt.ip); got != tt.want {
			t.Errorf("SubnetOf(%q) = %q, want %q", tt.ip, got, tt.want)
		}
	}
}

func TestCheckCyclicalPattern(t *testing.T) {
	base := time.Now().UTC()

	var regular []time.Time
	for i := 0; i < 6; i++ {
		regular = append(regular, base.Add(time.Duration(i)*5*time.Minute))
	}
	if got := checkCyclicalPattern(regular); got == nil {
		t.Error("evenly spaced registrations should read as cyclical")
	}

	irregular := []time.Time{
		base,
		base.Add(10 * time.Second),
		base.Add(7 * time.Minute),
		base.Add(9 * time.Minute),
		base.Add(55 * time.Minute),
		base.Add(56 * time.Minute),
	}
	if got := checkCyclicalPattern(irregular); got != nil {
		t.Errorf("irregular intervals flagged as cyclical: %v", got)
	}

	if got := checkCyclicalPattern(regular[:3]); got != nil {
		t.Error("too few registrations should never be cyclical")
	}
}
