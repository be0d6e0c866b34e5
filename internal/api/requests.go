// Riskgate - Authentication Risk Scoring Engine
// Copyright 2026 Riskgate Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/riskgate/riskgate

package api

import (
	"time"

	"github.com/riskgate/riskgate/internal/risk"
)

// AnalyzeRequest is the payload for full and single-signal analysis.
type AnalyzeRequest struct {
	UserID            string              `json:"user_id" validate:"required"`
	IPAddress         string              `json:"ip_address" validate:"required,ip"`
	UserAgent         string              `json:"user_agent"`
	Email             string              `json:"email" validate:"omitempty,email"`
	Timestamp         time.Time           `json:"timestamp"`
	DeviceFingerprint *risk.Fingerprint   `json:"device_fingerprint"`
	SessionEvents     []risk.SessionEvent `json:"session_events"`
}

// toAuthEvent converts the request into the detector input. A zero
// timestamp means the request describes the present moment.
func (r *AnalyzeRequest) toAuthEvent() risk.AuthEvent {
	ts := r.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return risk.AuthEvent{
		UserID:        r.UserID,
		IP:            r.IPAddress,
		UserAgent:     r.UserAgent,
		Email:         r.Email,
		Timestamp:     ts,
		Fingerprint:   r.DeviceFingerprint,
		SessionEvents: r.SessionEvents,
	}
}

// FailedLoginRequest records a failed authentication attempt for the
// password-attack and IP-reputation detectors.
type FailedLoginRequest struct {
	Username  string    `json:"username" validate:"required"`
	IPAddress string    `json:"ip_address" validate:"required,ip"`
	Timestamp time.Time `json:"timestamp"`
}

// RegistrationRequest records an account registration for the
// account-velocity detector.
type RegistrationRequest struct {
	UserID    string    `json:"user_id" validate:"required"`
	IPAddress string    `json:"ip_address" validate:"required,ip"`
	Email     string    `json:"email" validate:"omitempty,email"`
	Timestamp time.Time `json:"timestamp"`
}
