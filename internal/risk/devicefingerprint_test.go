// Riskgate - Authentication Risk Scoring Engine
// Copyright 2026 Riskgate Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/riskgate/riskgate

package risk

import (
	"context"
	"testing"
	"time"

	"github.com/riskgate/riskgate/internal/store"
)

const testChromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// cleanFingerprint returns a fully populated fingerprint that trips
// none of the checks.
func cleanFingerprint() *Fingerprint {
	canvas := true
	cores := 8
	return &Fingerprint{
		UserAgent:       testChromeUA,
		Language:        "en-US",
		Screen:          &ScreenInfo{Width: 1920, Height: 1080},
		Timezone:        &TimezoneInfo{Offset: -300, Name: "America/New_York"},
		WebGL:           &WebGLInfo{Supported: true, Vendor: "Google Inc.", Renderer: "ANGLE (NVIDIA GeForce RTX 3060)"},
		Audio:           &AudioInfo{Supported: true},
		CanvasHash:      "c4ffe1ne",
		CanvasSupported: &canvas,
		Features:        &FeatureInfo{HardwareConcurrency: &cores},
		Plugins:         []string{"PDF Viewer", "Chrome PDF Viewer"},
	}
}

func TestDeviceFingerprintMissing(t *testing.T) {
	d := NewDeviceFingerprintDetector(store.NewMemoryStore(10), 5)

	for _, fp := range []*Fingerprint{nil, {}} {
		sig, err := d.Evaluate(context.Background(), &AuthEvent{
			UserID: "alice", Fingerprint: fp, Timestamp: time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if sig.RiskScore != 75 || sig.Status != StatusInvalidFingerprint {
			t.Errorf("got score=%d status=%q, want 75 %q", sig.RiskScore, sig.Status, StatusInvalidFingerprint)
		}
	}
}

func TestDeviceFingerprintNewThenKnown(t *testing.T) {
	st := store.NewMemoryStore(10)
	d := NewDeviceFingerprintDetector(st, 5)
	now := time.Now().UTC()

	event := &AuthEvent{UserID: "alice", Fingerprint: cleanFingerprint(), Timestamp: now}

	first, err := d.Evaluate(context.Background(), event)
	if err != nil {
		t.Fatalf("first Evaluate: %v", err)
	}
	if first.RiskScore != 50 || first.Status != StatusNewDevice {
		t.Errorf("first visit: got score=%d status=%q, want 50 %q", first.RiskScore, first.Status, StatusNewDevice)
	}

	second, err := d.Evaluate(context.Background(), &AuthEvent{
		UserID: "alice", Fingerprint: cleanFingerprint(), Timestamp: now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("second Evaluate: %v", err)
	}
	if second.RiskScore != 0 || second.Status != StatusKnownDevice {
		t.Errorf("second visit: got score=%d status=%q, want 0 %q", second.RiskScore, second.Status, StatusKnownDevice)
	}

	history, ok := second.Details["device_history"].(map[string]any)
	if !ok {
		t.Fatal("known device should report device_history")
	}
	if got := history["visit_count"]; got != 2 {
		t.Errorf("visit_count = %v, want 2", got)
	}

	// First sight persists the flattened stable attributes.
	rec, err := st.DeviceByID(context.Background(), second.Details["device_id"].(string))
	if err != nil {
		t.Fatalf("DeviceByID: %v", err)
	}
	if rec.Components["user_agent"] != testChromeUA {
		t.Errorf("Components[user_agent] = %q, want the reported UA", rec.Components["user_agent"])
	}
	if rec.Components["screen"] != "1920x1080" {
		t.Errorf("Components[screen] = %q, want 1920x1080", rec.Components["screen"])
	}
	if rec.Components["webgl_renderer"] == "" || rec.Components["canvas_hash"] == "" {
		t.Errorf("Components missing webgl/canvas entries: %v", rec.Components)
	}
}

func TestDeviceFingerprintAutomation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Fingerprint)
	}{
		{"webdriver flag", func(fp *Fingerprint) { fp.Webdriver = true }},
		{"zero hardware concurrency", func(fp *Fingerprint) { zero := 0; fp.Features.HardwareConcurrency = &zero }},
		{"chrome without plugins", func(fp *Fingerprint) { fp.Plugins = nil }},
		{"client automation tag", func(fp *Fingerprint) { fp.Inconsistencies = []string{"automation_detected"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fp := cleanFingerprint()
			tt.mutate(fp)

			d := NewDeviceFingerprintDetector(store.NewMemoryStore(10), 5)
			sig, err := d.Evaluate(context.Background(), &AuthEvent{
				UserID: "alice", Fingerprint: fp, Timestamp: time.Now().UTC(),
			})
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if sig.RiskScore != 85 || sig.Status != StatusSuspiciousDevice {
				t.Errorf("got score=%d status=%q, want 85 %q", sig.RiskScore, sig.Status, StatusSuspiciousDevice)
			}
		})
	}
}

func TestDeviceFingerprintTampering(t *testing.T) {
	fp := cleanFingerprint()
	fp.Screen = &ScreenInfo{Width: 1024, Height: 768}

	d := NewDeviceFingerprintDetector(store.NewMemoryStore(10), 5)
	sig, err := d.Evaluate(context.Background(), &AuthEvent{
		UserID: "alice", Fingerprint: fp, Timestamp: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if sig.RiskScore != 70 || sig.Status != StatusSuspiciousDevice {
		t.Errorf("got score=%d status=%q, want 70 %q", sig.RiskScore, sig.Status, StatusSuspiciousDevice)
	}
}

func TestDeviceFingerprintSpoofedMobileGPU(t *testing.T) {
	fp := cleanFingerprint()
	fp.UserAgent = "Mozilla/5.0 (Linux; Android 13; Pixel 7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36"
	fp.WebGL = &WebGLInfo{Supported: true, Vendor: "NVIDIA Corporation", Renderer: "NVIDIA GeForce RTX 4090"}

	d := NewDeviceFingerprintDetector(store.NewMemoryStore(10), 5)
	sig, err := d.Evaluate(context.Background(), &AuthEvent{
		UserID: "alice", Fingerprint: fp, Timestamp: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if sig.RiskScore != 80 || sig.Status != StatusSuspiciousDevice {
		t.Errorf("got score=%d status=%q, want 80 %q", sig.RiskScore, sig.Status, StatusSuspiciousDevice)
	}
}

func TestGenerateDeviceIDStable(t *testing.T) {
	a := generateDeviceID(cleanFingerprint())
	b := generateDeviceID(cleanFingerprint())
	if a != b {
		t.Errorf("identical fingerprints produced different IDs: %q vs %q", a, b)
	}

	changed := cleanFingerprint()
	changed.Screen = &ScreenInfo{Width: 2560, Height: 1440}
	if c := generateDeviceID(changed); c == a {
		t.Error("different screen geometry should change the device ID")
	}
}

func TestConfidenceScore(t *testing.T) {
	if got := confidenceScore(cleanFingerprint()); got != 1.0 {
		t.Errorf("clean fingerprint confidence = %v, want 1.0", got)
	}

	bare := &Fingerprint{UserAgent: testChromeUA, Language: "en-US"}
	got := confidenceScore(bare)
	// 0.8 * 0.8 * 0.9 for missing canvas, WebGL, and audio.
	if got != 0.58 {
		t.Errorf("bare fingerprint confidence = %v, want 0.58", got)
	}

	tagged := cleanFingerprint()
	tagged.Inconsistencies = []string{"ua_platform_mismatch"}
	if got := confidenceScore(tagged); got != 0.7 {
		t.Errorf("tagged fingerprint confidence = %v, want 0.7", got)
	}
}

func TestDeviceFingerprintHistoryCapped(t *testing.T) {
	st := store.NewMemoryStore(10)
	d := NewDeviceFingerprintDetector(st, 3)
	now := time.Now().UTC()

	var deviceID string
	for i := 0; i < 6; i++ {
		sig, err := d.Evaluate(context.Background(), &AuthEvent{
			UserID: "alice", Fingerprint: cleanFingerprint(), Timestamp: now.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("Evaluate %d: %v", i, err)
		}
		deviceID = sig.Details["device_id"].(string)
	}

	rec, err := st.DeviceByID(context.Background(), deviceID)
	if err != nil {
		t.Fatalf("DeviceByID: %v", err)
	}
	if rec.VisitCount != 6 {
		t.Errorf("VisitCount = %d, want 6", rec.VisitCount)
	}
	if len(rec.Fingerprints) != 3 {
		t.Errorf("stored fingerprints = %d, want cap of 3", len(rec.Fingerprints))
	}
}
