// Riskgate - Authentication Risk Scoring Engine
// Copyright 2026 Riskgate Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/riskgate/riskgate

// Package store persists the authentication events and derived state
// the detectors read: login history, failed-login attempts,
// registrations, IP reputation, device fingerprints, and per-user
// behavior models.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
)

// ErrNotFound is returned when a lookup matches no record.
var ErrNotFound = errors.New("store: record not found")

// LoginRecord is one successful authentication with its resolved
// location. Latitude and longitude are zero when resolution failed.
type LoginRecord struct {
	UserID    string    `json:"user_id"`
	IP        string    `json:"ip"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Country   string    `json:"country,omitempty"`
	City      string    `json:"city,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// FailedLoginRecord is one failed authentication attempt.
type FailedLoginRecord struct {
	UserID    string    `json:"user_id"`
	IP        string    `json:"ip"`
	Timestamp time.Time `json:"timestamp"`
}

// RegistrationRecord is one account signup, keyed by the dimensions
// the account-velocity detector aggregates over.
type RegistrationRecord struct {
	IP          string    `json:"ip"`
	EmailDomain string    `json:"email_domain"`
	Subnet      string    `json:"subnet"`
	Timestamp   time.Time `json:"timestamp"`
}

// IPReputationRecord is the cached reputation for a single address.
type IPReputationRecord struct {
	IP            string    `json:"ip"`
	FailedLogins  int       `json:"failed_logins"`
	Countries     []string  `json:"countries,omitempty"`
	IsProxy       bool      `json:"is_proxy"`
	IsVPN         bool      `json:"is_vpn"`
	IsTor         bool      `json:"is_tor"`
	IsDatacenter  bool      `json:"is_datacenter"`
	IsKnownAbuser bool      `json:"is_known_abuser"`
	Score         int       `json:"score"`
	Status        string    `json:"status"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// DeviceRecord tracks a fingerprinted device across visits. The most
// recent raw fingerprints are kept, capped by the caller, along with
// the union of issues ever observed on the device.
type DeviceRecord struct {
	FingerprintID string            `json:"fingerprint_id"`
	UserID        string            `json:"user_id"`
	Components    map[string]string `json:"components,omitempty"`
	Fingerprints  []json.RawMessage `json:"fingerprints,omitempty"`
	IssuesHistory []string          `json:"issues_history,omitempty"`
	FirstSeen     time.Time         `json:"first_seen"`
	LastSeen      time.Time         `json:"last_seen"`
	VisitCount    int               `json:"visit_count"`
}

// UserBehaviorModel is the learned per-user session model: action
// transition probabilities and timing averages.
type UserBehaviorModel struct {
	UserID           string                        `json:"user_id"`
	Transitions      map[string]map[string]float64 `json:"transitions"`
	AvgActionGap     float64                       `json:"avg_action_gap"`
	AvgSessionLength float64                       `json:"avg_session_length"`
	SampleCount      int                           `json:"sample_count"`
	UpdatedAt        time.Time                     `json:"updated_at"`
}

// Store is the persistence contract the detectors and API depend on.
// Implementations must be safe for concurrent use.
type Store interface {
	// AppendLogin records a successful login and updates the user's
	// last-known location. History is bounded per user.
	AppendLogin(ctx context.Context, rec LoginRecord) error
	// LastLogin returns the most recent login for the user, or
	// ErrNotFound for a first-time user.
	LastLogin(ctx context.Context, userID string) (*LoginRecord, error)
	// LoginHistory returns up to limit recent logins, newest first.
	LoginHistory(ctx context.Context, userID string, limit int) ([]LoginRecord, error)

	// AppendFailedLogin records a failed attempt. Entries expire after
	// the configured retention window.
	AppendFailedLogin(ctx context.Context, rec FailedLoginRecord) error
	// RecentFailedLogins returns all failed attempts at or after since,
	// oldest first.
	RecentFailedLogins(ctx context.Context, since time.Time) ([]FailedLoginRecord, error)

	// RecordRegistration records an account signup.
	RecordRegistration(ctx context.Context, rec RegistrationRecord) error
	// RegistrationsSince returns all signups at or after since, oldest
	// first.
	RegistrationsSince(ctx context.Context, since time.Time) ([]RegistrationRecord, error)

	// IPReputation returns the cached reputation for ip, or ErrNotFound.
	IPReputation(ctx context.Context, ip string) (*IPReputationRecord, error)
	// UpsertIPReputation stores or replaces the reputation for an address.
	UpsertIPReputation(ctx context.Context, rec IPReputationRecord) error

	// DeviceByID returns a fingerprinted device, or ErrNotFound.
	DeviceByID(ctx context.Context, fingerprintID string) (*DeviceRecord, error)
	// DevicesByUser returns every device seen for the user.
	DevicesByUser(ctx context.Context, userID string) ([]DeviceRecord, error)
	// UpsertDevice stores or replaces a device record.
	UpsertDevice(ctx context.Context, rec DeviceRecord) error

	// UserModel returns the learned behavior model, or ErrNotFound.
	UserModel(ctx context.Context, userID string) (*UserBehaviorModel, error)
	// UpsertUserModel stores or replaces a behavior model.
	UpsertUserModel(ctx context.Context, m UserBehaviorModel) error

	Close() error
}
