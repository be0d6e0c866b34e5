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

	"github.com/riskgate/riskgate/internal/config"
	"github.com/riskgate/riskgate/internal/geoip"
	"github.com/riskgate/riskgate/internal/logging"
	"github.com/riskgate/riskgate/internal/store"
)

// Geo-velocity statuses.
const (
	StatusUnknownLocation        = "unknown_location"
	StatusFirstLogin             = "first_login"
	StatusDuplicateRequest       = "duplicate_request"
	StatusExtendedTimeGap        = "extended_time_gap"
	StatusSameArea               = "same_area"
	StatusImpossibleTravel       = "impossible_travel"
	StatusHighlySuspiciousTravel = "highly_suspicious_travel"
	StatusSuspiciousTravel       = "suspicious_travel"
	StatusNormalTravel           = "normal_travel"
	StatusSlowTravel             = "slow_travel"
)

// GeoVelocityDetector flags implausible geographic transitions between
// consecutive logins: the distance between the previous and current
// login location implies a travel speed no real journey could reach.
type GeoVelocityDetector struct {
	cfg      config.GeoVelocityConfig
	store    store.Store
	provider geoip.Provider
	locks    *keyedMutex
}

// NewGeoVelocityDetector creates a geo-velocity detector.
func NewGeoVelocityDetector(cfg config.GeoVelocityConfig, st store.Store, provider geoip.Provider) *GeoVelocityDetector {
	return &GeoVelocityDetector{
		cfg:      cfg,
		store:    st,
		provider: provider,
		locks:    newKeyedMutex(),
	}
}

func (d *GeoVelocityDetector) Name() string {
	return DetectorGeoVelocity
}

// Evaluate compares the event against the user's last known login.
// The last-login read and the subsequent store happen under a per-user
// lock so concurrent analyses for one user serialize.
func (d *GeoVelocityDetector) Evaluate(ctx context.Context, event *AuthEvent) (*Signal, error) {
	loc, err := d.provider.Resolve(ctx, event.IP)
	if err != nil {
		// Resolution failure degrades the signal, it is not an error.
		return &Signal{
			RiskScore: 50,
			Status:    StatusUnknownLocation,
			Message:   "Could not determine location from IP address",
		}, nil
	}
	// Some providers report an unresolvable address as the (0,0)
	// sentinel instead of an error.
	if loc == nil || IsUnknownLocation(loc.Latitude, loc.Longitude) {
		return &Signal{
			RiskScore: 50,
			Status:    StatusUnknownLocation,
			Message:   "Could not determine location from IP address",
		}, nil
	}

	unlock := d.locks.Lock(event.UserID)
	defer unlock()

	previous, err := d.store.LastLogin(ctx, event.UserID)
	if errors.Is(err, store.ErrNotFound) {
		if err := d.storeLogin(ctx, event, loc); err != nil {
			return nil, err
		}
		return &Signal{
			RiskScore: 0,
			Status:    StatusFirstLogin,
			Message:   "First login from this user",
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load last login: %w", err)
	}

	gap := event.Timestamp.Sub(previous.Timestamp)

	if gap < d.cfg.DuplicateWindow {
		return &Signal{
			RiskScore: 0,
			Status:    StatusDuplicateRequest,
			Message:   "Request too close to previous login",
		}, nil
	}

	if gap > d.cfg.MaxComparisonGap {
		if err := d.storeLogin(ctx, event, loc); err != nil {
			return nil, err
		}
		return &Signal{
			RiskScore: 0,
			Status:    StatusExtendedTimeGap,
			Message:   "More than 7 days since last login",
		}, nil
	}

	distanceKm := haversineDistance(
		previous.Latitude, previous.Longitude,
		loc.Latitude, loc.Longitude,
	)

	if distanceKm < d.cfg.SameAreaKm {
		if err := d.storeLogin(ctx, event, loc); err != nil {
			return nil, err
		}
		return &Signal{
			RiskScore: 0,
			Status:    StatusSameArea,
			Message:   "Login from same geographic area",
		}, nil
	}

	gapHours := gap.Hours()
	speed := math.Inf(1)
	if gapHours > 0 {
		speed = distanceKm / gapHours
	}

	score, status, message := d.assessTravelRisk(speed, distanceKm)

	if err := d.storeLogin(ctx, event, loc); err != nil {
		return nil, err
	}

	if score > 70 {
		logging.Warn().
			Str("user_id", event.UserID).
			Float64("speed_kmh", speed).
			Msg("high-risk travel velocity detected")
	}

	return &Signal{
		RiskScore: score,
		Status:    status,
		Message:   message,
		Details: map[string]any{
			"travel_speed_kmh":      round2(speed),
			"distance_km":           round2(distanceKm),
			"time_difference_hours": round2(gapHours),
			"previous_login": map[string]any{
				"ip":        previous.IP,
				"timestamp": previous.Timestamp,
				"country":   previous.Country,
				"city":      previous.City,
			},
			"current_login": map[string]any{
				"ip":        event.IP,
				"timestamp": event.Timestamp,
				"country":   loc.Country,
				"city":      loc.City,
			},
		},
	}, nil
}

// assessTravelRisk maps a required travel speed to a risk score. Short
// distances lower the airplane and train thresholds because speed
// estimates over small distances are less reliable.
func (d *GeoVelocityDetector) assessTravelRisk(speed, distanceKm float64) (int, string, string) {
	airplane := d.cfg.AirplaneSpeedKmH
	train := d.cfg.TrainSpeedKmH
	if distanceKm < d.cfg.ShortDistanceKm {
		airplane = d.cfg.ShortAirplaneSpeedKmH
		train = d.cfg.ShortTrainSpeedKmH
	}

	switch {
	case speed > airplane:
		return 100, StatusImpossibleTravel, "Travel speed exceeds physical possibility"
	case speed > train:
		return 80, StatusHighlySuspiciousTravel, "Travel speed suggests impossible journey without air travel"
	case speed > d.cfg.DrivingSpeedKmH:
		return 60, StatusSuspiciousTravel, "Travel speed is suspicious but possible with high-speed transport"
	case speed > d.cfg.WalkingSpeedKmH:
		return 0, StatusNormalTravel, "Travel speed is within normal range for driving"
	default:
		return 0, StatusSlowTravel, "Travel speed is very slow or user is stationary"
	}
}

func (d *GeoVelocityDetector) storeLogin(ctx context.Context, event *AuthEvent, loc *geoip.Location) error {
	rec := store.LoginRecord{
		UserID:    event.UserID,
		IP:        event.IP,
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
		Country:   loc.Country,
		City:      loc.City,
		Timestamp: event.Timestamp,
	}
	if err := d.store.AppendLogin(ctx, rec); err != nil {
		return fmt.Errorf("store login: %w", err)
	}
	return nil
}

func round2(v float64) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return v
	}
	return math.Round(v*100) / 100
}

// Compile-time interface assertion
var _ Detector = (*GeoVelocityDetector)(nil)
