// Riskgate - Authentication Risk Scoring Engine
// Copyright 2026 Riskgate Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/riskgate/riskgate

// Package risk contains the signal detectors and the fusion engine.
// One authentication event fans out to eight independent detectors;
// each produces a Signal, and the engine combines them into an overall
// verdict.
package risk

import (
	"context"
	"math"
	"time"
)

// CoordinateEpsilon is the threshold for considering coordinates as
// effectively zero. A coordinate pair is treated as "unknown" (the
// sentinel 0,0) if both latitude and longitude are within this epsilon.
//
// 1e-7 degrees is roughly 1.1cm at the equator, well below GPS accuracy
// and any meaningful coordinate difference, but reliable for float
// comparison.
const CoordinateEpsilon = 1e-7

// IsUnknownLocation returns true if the coordinates represent an
// unknown location. Uses epsilon comparison instead of direct float
// equality to handle IEEE 754 precision issues.
func IsUnknownLocation(lat, lon float64) bool {
	return math.Abs(lat) < CoordinateEpsilon && math.Abs(lon) < CoordinateEpsilon
}

// Detector names. These are the keys signals are reported under and
// the labels used for weights and metrics.
const (
	DetectorGeoVelocity     = "geo_velocity"
	DetectorAccountVelocity = "account_velocity"
	DetectorPasswordAttack  = "password_attack"
	DetectorSession         = "session"
	DetectorDevice          = "device"
	DetectorUserAgent       = "user_agent"
	DetectorIPReputation    = "ip_reputation"
	DetectorAccessTime      = "access_time"
)

// Statuses shared across detectors. Detector-specific statuses are
// declared next to the detector that emits them.
const (
	StatusError       = "error"
	StatusUnavailable = "unavailable"
)

// Signal is the result of one detector evaluation.
type Signal struct {
	RiskScore int            `json:"risk_score"`
	Status    string         `json:"status"`
	Message   string         `json:"message,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Suspicious reports whether the signal alone warrants attention.
func (s *Signal) Suspicious() bool {
	return s.RiskScore > 50
}

// SessionEvent is one in-session user action.
type SessionEvent struct {
	Type      string         `json:"type"`
	Timestamp int64          `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ScreenInfo is the client-reported screen geometry.
type ScreenInfo struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// TimezoneInfo is the client-reported timezone.
type TimezoneInfo struct {
	Offset int    `json:"offset"`
	Name   string `json:"name,omitempty"`
}

// WebGLInfo is the client-reported WebGL capability.
type WebGLInfo struct {
	Supported bool   `json:"supported"`
	Vendor    string `json:"vendor,omitempty"`
	Renderer  string `json:"renderer,omitempty"`
}

// AudioInfo is the client-reported audio capability.
type AudioInfo struct {
	Supported bool `json:"supported"`
}

// FeatureInfo carries miscellaneous client-reported capabilities.
type FeatureInfo struct {
	HardwareConcurrency *int `json:"hardwareConcurrency,omitempty"`
}

// Fingerprint is the device fingerprint collected client-side. Pointer
// fields distinguish absent sections from zero values.
type Fingerprint struct {
	Hash            string        `json:"hash,omitempty"`
	UserAgent       string        `json:"userAgent,omitempty"`
	Language        string        `json:"language,omitempty"`
	Screen          *ScreenInfo   `json:"screen,omitempty"`
	Timezone        *TimezoneInfo `json:"timezone,omitempty"`
	WebGL           *WebGLInfo    `json:"webgl,omitempty"`
	Audio           *AudioInfo    `json:"audio,omitempty"`
	CanvasHash      string        `json:"canvasHash,omitempty"`
	CanvasSupported *bool         `json:"canvasSupported,omitempty"`
	Webdriver       bool          `json:"webdriver,omitempty"`
	Features        *FeatureInfo  `json:"features,omitempty"`
	Plugins         []string      `json:"plugins,omitempty"`
	Inconsistencies []string      `json:"inconsistencies,omitempty"`
}

// AuthEvent is one authentication event under analysis.
type AuthEvent struct {
	UserID        string
	IP            string
	UserAgent     string
	Email         string
	Timestamp     time.Time
	Fingerprint   *Fingerprint
	SessionEvents []SessionEvent
}

// Detector evaluates one risk signal for an authentication event.
// Implementations must be safe for concurrent use.
type Detector interface {
	Name() string
	Evaluate(ctx context.Context, event *AuthEvent) (*Signal, error)
}

// haversineDistance calculates the great-circle distance between two
// points on Earth. Returns distance in kilometers.
func haversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKm = 6371.0

	lat1Rad := lat1 * math.Pi / 180.0
	lon1Rad := lon1 * math.Pi / 180.0
	lat2Rad := lat2 * math.Pi / 180.0
	lon2Rad := lon2 * math.Pi / 180.0

	dLat := lat2Rad - lat1Rad
	dLon := lon2Rad - lon1Rad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}
