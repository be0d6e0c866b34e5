// Riskgate - Authentication Risk Scoring Engine
// Copyright 2026 Riskgate Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/riskgate/riskgate

// Package config provides layered configuration for Riskgate using Koanf v2.
// Precedence: environment variables > YAML config file > built-in defaults.
// Configuration is read once at startup and static thereafter.
package config

import (
	"fmt"
	"math"
	"time"
)

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Store     StoreConfig     `koanf:"store"`
	GeoIP     GeoIPConfig     `koanf:"geoip"`
	Detectors DetectorsConfig `koanf:"detectors"`
	Fusion    FusionConfig    `koanf:"fusion"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// StoreConfig configures the BadgerDB event store.
type StoreConfig struct {
	// Path is the on-disk directory for BadgerDB. Empty means in-memory
	// (useful for tests and ephemeral deployments).
	Path string `koanf:"path"`

	// MaxLoginHistory bounds the per-user login history.
	MaxLoginHistory int `koanf:"max_login_history"`

	// MaxFingerprints bounds the per-device recent fingerprint list.
	MaxFingerprints int `koanf:"max_fingerprints"`

	// FailedLoginTTL is the retention horizon for failed-login records.
	FailedLoginTTL time.Duration `koanf:"failed_login_ttl"`

	// GCInterval is how often the badger value-log GC runs.
	GCInterval time.Duration `koanf:"gc_interval"`
}

// GeoIPConfig configures the geolocation provider.
type GeoIPConfig struct {
	// Endpoint is the HTTP geolocation API base URL. The IP is appended
	// as a path segment and a JSON document is expected back.
	Endpoint string        `koanf:"endpoint"`
	Timeout  time.Duration `koanf:"timeout"`
}

// DetectorsConfig holds per-detector thresholds and time windows.
type DetectorsConfig struct {
	// Timeout bounds a single detector invocation during fan-out.
	Timeout time.Duration `koanf:"timeout"`

	GeoVelocity     GeoVelocityConfig     `koanf:"geo_velocity"`
	AccountVelocity AccountVelocityConfig `koanf:"account_velocity"`
	PasswordAttack  PasswordAttackConfig  `koanf:"password_attack"`
	Session         SessionConfig         `koanf:"session"`
	IPReputation    IPReputationConfig    `koanf:"ip_reputation"`
	AccessTime      AccessTimeConfig      `koanf:"access_time"`
}

// GeoVelocityConfig configures the impossible-travel detector.
type GeoVelocityConfig struct {
	// DuplicateWindow is the gap below which a login is treated as a
	// duplicate request rather than travel.
	DuplicateWindow time.Duration `koanf:"duplicate_window"`

	// MaxComparisonGap is the gap beyond which travel is not evaluated.
	MaxComparisonGap time.Duration `koanf:"max_comparison_gap"`

	// SameAreaKm is the distance below which no velocity check runs.
	SameAreaKm float64 `koanf:"same_area_km"`

	// Speed thresholds in km/h. Short-distance variants apply when the
	// distance is under ShortDistanceKm, where speed estimates are noisy.
	AirplaneSpeedKmH      float64 `koanf:"airplane_speed_kmh"`
	TrainSpeedKmH         float64 `koanf:"train_speed_kmh"`
	DrivingSpeedKmH       float64 `koanf:"driving_speed_kmh"`
	WalkingSpeedKmH       float64 `koanf:"walking_speed_kmh"`
	ShortDistanceKm       float64 `koanf:"short_distance_km"`
	ShortAirplaneSpeedKmH float64 `koanf:"short_airplane_speed_kmh"`
	ShortTrainSpeedKmH    float64 `koanf:"short_train_speed_kmh"`
}

// VelocityThresholds is a per-window registration-count threshold table.
type VelocityThresholds struct {
	Short  int `koanf:"short"`  // 5-minute window
	Medium int `koanf:"medium"` // 1-hour window
	Long   int `koanf:"long"`   // 24-hour window
}

// AccountVelocityConfig configures the registration velocity monitor.
type AccountVelocityConfig struct {
	IP          VelocityThresholds `koanf:"ip"`
	EmailDomain VelocityThresholds `koanf:"email_domain"`
	Subnet      VelocityThresholds `koanf:"subnet"`
}

// PasswordAttackConfig configures the credential-attack classifier.
type PasswordAttackConfig struct {
	// BruteForceAttempts is the (user, ip) failure count that triggers
	// brute-force detection within BruteForceWindow.
	BruteForceAttempts int           `koanf:"brute_force_attempts"`
	BruteForceWindow   time.Duration `koanf:"brute_force_window"`

	// StuffingUserCount is the distinct-username count from one IP that
	// triggers credential-stuffing detection within StuffingWindow.
	StuffingUserCount int           `koanf:"stuffing_user_count"`
	StuffingWindow    time.Duration `koanf:"stuffing_window"`

	// SprayUserCount / SprayIPCount classify password spraying: at least
	// SprayUserCount distinct usernames failing globally while the
	// distinct source IP count stays at or below SprayIPCount times
	// SprayIPMultiplier. The multiplier is a loose heuristic and tunable.
	SprayUserCount    int           `koanf:"spray_user_count"`
	SprayIPCount      int           `koanf:"spray_ip_count"`
	SprayIPMultiplier int           `koanf:"spray_ip_multiplier"`
	SprayWindow       time.Duration `koanf:"spray_window"`

	// FetchWindow bounds the failed-login fetches backing all three checks.
	FetchWindow time.Duration `koanf:"fetch_window"`
}

// SessionConfig configures the session behavioral-anomaly detector.
type SessionConfig struct {
	MinActionGap         time.Duration `koanf:"min_action_gap"`
	MaxActionGap         time.Duration `koanf:"max_action_gap"`
	TypicalSessionLength time.Duration `koanf:"typical_session_length"`

	// LearnThreshold is the combined anomaly score at or above which a
	// session is excluded from model learning.
	LearnThreshold float64 `koanf:"learn_threshold"`
}

// IPReputationConfig configures the reputation cache and the static
// threat intelligence lists.
type IPReputationConfig struct {
	// StaleTTL is the age beyond which a cached reputation record is
	// recomputed.
	StaleTTL time.Duration `koanf:"stale_ttl"`

	// Static threat lists, typically loaded from the YAML config.
	MaliciousIPs    []string `koanf:"malicious_ips"`
	ProxyIPs        []string `koanf:"proxy_ips"`
	VPNIPs          []string `koanf:"vpn_ips"`
	TorExitIPs      []string `koanf:"tor_exit_ips"`
	DatacenterCIDRs []string `koanf:"datacenter_cidrs"`
}

// AccessTimeConfig configures the access-time anomaly analyzer.
type AccessTimeConfig struct {
	// MinHistory is the login count required before pattern analysis.
	MinHistory int `koanf:"min_history"`
}

// FusionConfig holds the per-signal fusion weights. Weights must sum to 1.0.
type FusionConfig struct {
	GeoVelocity     float64 `koanf:"geo_velocity"`
	PasswordAttack  float64 `koanf:"password_attack"`
	Device          float64 `koanf:"device"`
	UserAgent       float64 `koanf:"user_agent"`
	AccessTime      float64 `koanf:"access_time"`
	AccountVelocity float64 `koanf:"account_velocity"`
	Session         float64 `koanf:"session"`
	IPReputation    float64 `koanf:"ip_reputation"`
}

// Sum returns the total of all fusion weights.
func (f FusionConfig) Sum() float64 {
	return f.GeoVelocity + f.PasswordAttack + f.Device + f.UserAgent +
		f.AccessTime + f.AccountVelocity + f.Session + f.IPReputation
}

// LoggingConfig configures the zerolog global logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateDetectors(); err != nil {
		return err
	}
	if err := c.validateFusion(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server timeouts must be positive")
	}
	return nil
}

func (c *Config) validateStore() error {
	if c.Store.MaxLoginHistory < 1 {
		return fmt.Errorf("store.max_login_history must be at least 1, got %d", c.Store.MaxLoginHistory)
	}
	if c.Store.MaxFingerprints < 1 {
		return fmt.Errorf("store.max_fingerprints must be at least 1, got %d", c.Store.MaxFingerprints)
	}
	if c.Store.FailedLoginTTL < time.Hour {
		return fmt.Errorf("store.failed_login_ttl must be at least 1h, got %s", c.Store.FailedLoginTTL)
	}
	return nil
}

func (c *Config) validateDetectors() error {
	if c.Detectors.Timeout <= 0 {
		return fmt.Errorf("detectors.timeout must be positive")
	}
	gv := c.Detectors.GeoVelocity
	if gv.AirplaneSpeedKmH <= gv.TrainSpeedKmH || gv.TrainSpeedKmH <= gv.DrivingSpeedKmH {
		return fmt.Errorf("geo_velocity speed thresholds must be strictly increasing")
	}
	pa := c.Detectors.PasswordAttack
	if pa.BruteForceAttempts < 1 || pa.StuffingUserCount < 1 || pa.SprayUserCount < 1 {
		return fmt.Errorf("password_attack thresholds must be at least 1")
	}
	if c.Detectors.AccessTime.MinHistory < 2 {
		return fmt.Errorf("access_time.min_history must be at least 2, got %d", c.Detectors.AccessTime.MinHistory)
	}
	return nil
}

func (c *Config) validateFusion() error {
	sum := c.Fusion.Sum()
	if math.Abs(sum-1.0) > 0.001 {
		return fmt.Errorf("fusion weights must sum to 1.0, got %.4f", sum)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic", "disabled", "":
	default:
		return fmt.Errorf("logging.level %q is not a valid level", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console", "":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
