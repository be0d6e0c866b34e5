// Riskgate - Authentication Risk Scoring Engine
// Copyright 2026 Riskgate Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/riskgate/riskgate

package risk

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/riskgate/riskgate/internal/logging"
	"github.com/riskgate/riskgate/internal/store"
)

// Device statuses.
const (
	StatusInvalidFingerprint = "invalid_fingerprint_data"
	StatusKnownDevice        = "known_device"
	StatusNewDevice          = "new_device"
	StatusSuspiciousDevice   = "suspicious_device"
)

// deviceIssueScores maps fingerprint issues to their risk score. The
// highest-scoring issue overrides the base score when larger.
var deviceIssueScores = map[string]int{
	"invalid_fingerprint_data": 75,
	"automation_detected":      85,
	"browser_spoofing":         80,
	"proxy_detected":           50,
	"fingerprint_tampering":    70,
	"ua_platform_mismatch":     75,
	"browser_plugin_mismatch":  65,
	"mobile_mismatch":          70,
	"unrealistic_hardware":     60,
	"missing_graphics_support": 65,
	"missing_audio_support":    40,
	"analysis_error":           60,
}

// unknownIssueScore applies to client-reported inconsistency tags the
// table does not know.
const unknownIssueScore = 50

// DeviceFingerprintDetector analyzes client-collected device
// fingerprints for automation, spoofing, and tampering signs, and
// tracks devices across visits.
type DeviceFingerprintDetector struct {
	store           store.Store
	maxFingerprints int
}

// NewDeviceFingerprintDetector creates a device fingerprint detector.
func NewDeviceFingerprintDetector(st store.Store, maxFingerprints int) *DeviceFingerprintDetector {
	if maxFingerprints <= 0 {
		maxFingerprints = 5
	}
	return &DeviceFingerprintDetector{store: st, maxFingerprints: maxFingerprints}
}

func (d *DeviceFingerprintDetector) Name() string {
	return DetectorDevice
}

// Evaluate analyzes the fingerprint, scores detected issues, and
// records the visit in the device history.
func (d *DeviceFingerprintDetector) Evaluate(ctx context.Context, event *AuthEvent) (*Signal, error) {
	fp := event.Fingerprint
	if fp == nil || isEmptyFingerprint(fp) {
		return &Signal{
			RiskScore: 75,
			Status:    StatusInvalidFingerprint,
			Message:   "Device fingerprint missing or malformed",
			Details: map[string]any{
				"issues":        []string{"invalid_fingerprint_data"},
				"is_suspicious": true,
			},
		}, nil
	}

	deviceID := fp.Hash
	if deviceID == "" {
		deviceID = generateDeviceID(fp)
	}

	known, history, err := d.lookupDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	var issues []string
	issues = append(issues, fp.Inconsistencies...)
	if checkAutomationSigns(fp) {
		issues = append(issues, "automation_detected")
	}
	if checkBrowserSpoofing(fp) {
		issues = append(issues, "browser_spoofing")
	}
	if checkFingerprintTampering(fp) {
		issues = append(issues, "fingerprint_tampering")
	}

	confidence := confidenceScore(fp)
	riskScore := deviceRiskScore(issues, known)

	if err := d.recordVisit(ctx, deviceID, event, fp, history, issues); err != nil {
		logging.Error().Err(err).Str("device_id", deviceID).Msg("failed to record device visit")
	}

	status := StatusNewDevice
	switch {
	case riskScore > 50:
		status = StatusSuspiciousDevice
	case known:
		status = StatusKnownDevice
	}

	details := map[string]any{
		"issues":           issues,
		"is_suspicious":    riskScore > 50,
		"device_id":        deviceID,
		"is_known_device":  known,
		"confidence_score": confidence,
	}
	if known && history != nil {
		details["device_history"] = map[string]any{
			"first_seen":  history.FirstSeen,
			"last_seen":   history.LastSeen,
			"visit_count": history.VisitCount + 1,
		}
	}

	if riskScore > 70 {
		logging.Warn().
			Str("device_id", deviceID).
			Strs("issues", issues).
			Msg("suspicious device detected")
	}

	return &Signal{
		RiskScore: riskScore,
		Status:    status,
		Details:   details,
	}, nil
}

func isEmptyFingerprint(fp *Fingerprint) bool {
	return fp.Hash == "" && fp.UserAgent == "" && fp.Language == "" &&
		fp.Screen == nil && fp.Timezone == nil && fp.WebGL == nil &&
		fp.CanvasHash == "" && len(fp.Plugins) == 0 && len(fp.Inconsistencies) == 0
}

// generateDeviceID derives a stable identifier from the attributes
// that survive browser restarts: user agent, screen geometry,
// language, timezone offset, WebGL identity, and canvas hash.
func generateDeviceID(fp *Fingerprint) string {
	stable := make(map[string]any)
	if fp.UserAgent != "" {
		stable["userAgent"] = fp.UserAgent
	}
	if fp.Screen != nil {
		stable["screen"] = map[string]int{"width": fp.Screen.Width, "height": fp.Screen.Height}
	}
	if fp.Language != "" {
		stable["language"] = fp.Language
	}
	if fp.Timezone != nil {
		stable["timezone"] = fp.Timezone.Offset
	}
	if fp.WebGL != nil && fp.WebGL.Supported {
		stable["webgl"] = map[string]string{"vendor": fp.WebGL.Vendor, "renderer": fp.WebGL.Renderer}
	}
	if fp.CanvasHash != "" {
		stable["canvasHash"] = fp.CanvasHash
	}

	// Map keys marshal in sorted order, so the digest is deterministic.
	data, _ := json.Marshal(stable)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// fingerprintComponents flattens the stable attributes for storage on
// the device record, so a stored device stays inspectable without
// re-parsing raw fingerprints.
func fingerprintComponents(fp *Fingerprint) map[string]string {
	components := make(map[string]string)
	if fp.UserAgent != "" {
		components["user_agent"] = fp.UserAgent
	}
	if fp.Screen != nil {
		components["screen"] = fmt.Sprintf("%dx%d", fp.Screen.Width, fp.Screen.Height)
	}
	if fp.Language != "" {
		components["language"] = fp.Language
	}
	if fp.Timezone != nil {
		components["timezone_offset"] = fmt.Sprintf("%d", fp.Timezone.Offset)
	}
	if fp.WebGL != nil && fp.WebGL.Supported {
		components["webgl_vendor"] = fp.WebGL.Vendor
		components["webgl_renderer"] = fp.WebGL.Renderer
	}
	if fp.CanvasHash != "" {
		components["canvas_hash"] = fp.CanvasHash
	}
	return components
}

func (d *DeviceFingerprintDetector) lookupDevice(ctx context.Context, deviceID string) (bool, *store.DeviceRecord, error) {
	rec, err := d.store.DeviceByID(ctx, deviceID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, fmt.Errorf("load device: %w", err)
	}
	return true, rec, nil
}

// checkAutomationSigns looks for headless-browser and bot tells.
func checkAutomationSigns(fp *Fingerprint) bool {
	for _, issue := range fp.Inconsistencies {
		switch issue {
		case "automation_detected", "missing_graphics_support", "missing_audio_support":
			return true
		}
	}
	if fp.Webdriver {
		return true
	}
	if fp.Features != nil && fp.Features.HardwareConcurrency != nil && *fp.Features.HardwareConcurrency == 0 {
		return true
	}
	// Real Chrome always exposes plugins.
	if len(fp.Plugins) == 0 && strings.Contains(strings.ToLower(fp.UserAgent), "chrome") {
		return true
	}
	return false
}

// checkBrowserSpoofing looks for capability claims that contradict the
// reported browser.
func checkBrowserSpoofing(fp *Fingerprint) bool {
	for _, issue := range fp.Inconsistencies {
		if issue == "ua_platform_mismatch" || issue == "browser_plugin_mismatch" {
			return true
		}
	}

	ua := strings.ToLower(fp.UserAgent)
	if fp.WebGL != nil && fp.WebGL.Supported {
		// IE never supported WebGL.
		if strings.Contains(ua, "trident") || strings.Contains(ua, "msie") {
			return true
		}
		if strings.Contains(ua, "mobile") || strings.Contains(ua, "android") {
			renderer := strings.ToLower(fp.WebGL.Renderer)
			for _, gpu := range []string{"nvidia", "amd", "intel hd graphics"} {
				if strings.Contains(renderer, gpu) {
					return true
				}
			}
		}
	}
	return false
}

// checkFingerprintTampering looks for evasion: missing required
// sections, canvas blocked on a modern browser, or the classic spoofed
// 1024x768 screen.
func checkFingerprintTampering(fp *Fingerprint) bool {
	if fp.UserAgent == "" || fp.Language == "" || fp.Screen == nil || fp.Timezone == nil {
		return true
	}
	if fp.CanvasSupported != nil && !*fp.CanvasSupported {
		ua := strings.ToLower(fp.UserAgent)
		if !(strings.Contains(ua, "msie") && strings.Contains(ua, "trident")) {
			return true
		}
	}
	if fp.Screen.Width == 1024 && fp.Screen.Height == 768 {
		return true
	}
	return false
}

// confidenceScore rates how reliable the fingerprint is. Each missing
// capability multiplies the score down; the floor is 0.1.
func confidenceScore(fp *Fingerprint) float64 {
	score := 1.0
	if fp.CanvasHash == "" {
		score *= 1 - 0.2
	}
	if fp.WebGL == nil || !fp.WebGL.Supported {
		score *= 1 - 0.2
	}
	if fp.Audio == nil || !fp.Audio.Supported {
		score *= 1 - 0.1
	}
	if len(fp.Inconsistencies) > 0 {
		score *= 1 - 0.3
	}
	return math.Max(0.1, math.Round(score*100)/100)
}

// deviceRiskScore starts from a base for known (25) or unknown (50)
// devices and lets the worst issue override it. A known device with a
// clean fingerprint scores zero.
func deviceRiskScore(issues []string, known bool) int {
	if len(issues) == 0 && known {
		return 0
	}

	base := 50
	if known {
		base = 25
	}

	maxIssue := 0
	for _, issue := range issues {
		score, ok := deviceIssueScores[issue]
		if !ok {
			score = unknownIssueScore
		}
		maxIssue = max(maxIssue, score)
	}

	return max(base, maxIssue)
}

// recordVisit updates the device history: a fresh record for a new
// device, otherwise a visit bump with the fingerprint list capped and
// the issue history unioned.
func (d *DeviceFingerprintDetector) recordVisit(ctx context.Context, deviceID string, event *AuthEvent, fp *Fingerprint, history *store.DeviceRecord, issues []string) error {
	raw, err := json.Marshal(fp)
	if err != nil {
		return fmt.Errorf("marshal fingerprint: %w", err)
	}
	now := event.Timestamp
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var rec store.DeviceRecord
	if history == nil {
		rec = store.DeviceRecord{
			FingerprintID: deviceID,
			UserID:        event.UserID,
			Components:    fingerprintComponents(fp),
			Fingerprints:  []json.RawMessage{raw},
			IssuesHistory: issues,
			FirstSeen:     now,
			LastSeen:      now,
			VisitCount:    1,
		}
	} else {
		rec = *history
		rec.UserID = event.UserID
		rec.LastSeen = now
		if len(rec.Components) == 0 {
			rec.Components = fingerprintComponents(fp)
		}
		rec.VisitCount++
		rec.Fingerprints = append(rec.Fingerprints, raw)
		if len(rec.Fingerprints) > d.maxFingerprints {
			rec.Fingerprints = rec.Fingerprints[len(rec.Fingerprints)-d.maxFingerprints:]
		}
		rec.IssuesHistory = unionStrings(rec.IssuesHistory, issues)
	}

	return d.store.UpsertDevice(ctx, rec)
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	var out []string
	for _, s := range append(append([]string(nil), a...), b...) {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Compile-time interface assertion
var _ Detector = (*DeviceFingerprintDetector)(nil)
