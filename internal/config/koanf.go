// Riskgate - Authentication Risk Scoring Engine
// Copyright 2026 Riskgate Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/riskgate/riskgate

package config

import (
	"fmt"
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order
// of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/riskgate/config.yaml",
	"/etc/riskgate/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all defaults applied. These are applied
// first, then overridden by the config file and environment variables.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8090,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateLimitReqs:   300,
			RateLimitWindow: time.Minute,
		},
		Store: StoreConfig{
			Path:            "/data/riskgate",
			MaxLoginHistory: 10,
			MaxFingerprints: 5,
			FailedLoginTTL:  7 * 24 * time.Hour,
			GCInterval:      time.Hour,
		},
		GeoIP: GeoIPConfig{
			Endpoint: "",
			Timeout:  3 * time.Second,
		},
		Detectors: DetectorsConfig{
			Timeout: 2 * time.Second,
			GeoVelocity: GeoVelocityConfig{
				DuplicateWindow:       time.Minute,
				MaxComparisonGap:      7 * 24 * time.Hour,
				SameAreaKm:            10,
				AirplaneSpeedKmH:      900,
				TrainSpeedKmH:         300,
				DrivingSpeedKmH:       120,
				WalkingSpeedKmH:       7,
				ShortDistanceKm:       50,
				ShortAirplaneSpeedKmH: 700,
				ShortTrainSpeedKmH:    200,
			},
			AccountVelocity: AccountVelocityConfig{
				IP:          VelocityThresholds{Short: 3, Medium: 10, Long: 30},
				EmailDomain: VelocityThresholds{Short: 5, Medium: 20, Long: 50},
				Subnet:      VelocityThresholds{Short: 8, Medium: 25, Long: 80},
			},
			PasswordAttack: PasswordAttackConfig{
				BruteForceAttempts: 5,
				BruteForceWindow:   10 * time.Minute,
				StuffingUserCount:  10,
				StuffingWindow:     30 * time.Minute,
				SprayUserCount:     10,
				SprayIPCount:       1,
				SprayIPMultiplier:  3,
				SprayWindow:        60 * time.Minute,
				FetchWindow:        60 * time.Minute,
			},
			Session: SessionConfig{
				MinActionGap:         time.Second,
				MaxActionGap:         30 * time.Minute,
				TypicalSessionLength: 15 * time.Minute,
				LearnThreshold:       0.7,
			},
			IPReputation: IPReputationConfig{
				StaleTTL: 24 * time.Hour,
			},
			AccessTime: AccessTimeConfig{
				MinHistory: 5,
			},
		},
		Fusion: FusionConfig{
			GeoVelocity:     0.20,
			PasswordAttack:  0.15,
			Device:          0.15,
			UserAgent:       0.10,
			AccessTime:      0.10,
			AccountVelocity: 0.10,
			Session:         0.10,
			IPReputation:    0.10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration using Koanf v2 with layered sources:
//  1. Defaults: built-in sensible defaults
//  2. Config file: optional YAML file (if found)
//  3. Environment variables: override any setting
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: config file (optional)
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: environment variables (highest priority)
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unmapped variables are skipped so random environment variables do not
// pollute the configuration.
func envTransformFunc(key string) string {
	envMappings := map[string]string{
		// Server
		"HTTP_HOST":           "server.host",
		"HTTP_PORT":           "server.port",
		"HTTP_READ_TIMEOUT":   "server.read_timeout",
		"HTTP_WRITE_TIMEOUT":  "server.write_timeout",
		"SHUTDOWN_TIMEOUT":    "server.shutdown_timeout",
		"RATE_LIMIT_REQUESTS": "server.rate_limit_reqs",
		"RATE_LIMIT_WINDOW":   "server.rate_limit_window",

		// Store
		"STORE_PATH":            "store.path",
		"STORE_MAX_LOGINS":      "store.max_login_history",
		"STORE_MAX_FINGERPRINTS": "store.max_fingerprints",
		"STORE_FAILED_LOGIN_TTL": "store.failed_login_ttl",
		"STORE_GC_INTERVAL":      "store.gc_interval",

		// GeoIP
		"GEOIP_ENDPOINT": "geoip.endpoint",
		"GEOIP_TIMEOUT":  "geoip.timeout",

		// Detectors
		"DETECTOR_TIMEOUT":           "detectors.timeout",
		"GEO_DUPLICATE_WINDOW":       "detectors.geo_velocity.duplicate_window",
		"GEO_MAX_COMPARISON_GAP":     "detectors.geo_velocity.max_comparison_gap",
		"GEO_SAME_AREA_KM":           "detectors.geo_velocity.same_area_km",
		"BRUTE_FORCE_ATTEMPTS":       "detectors.password_attack.brute_force_attempts",
		"BRUTE_FORCE_WINDOW":         "detectors.password_attack.brute_force_window",
		"STUFFING_USER_COUNT":        "detectors.password_attack.stuffing_user_count",
		"SPRAY_USER_COUNT":           "detectors.password_attack.spray_user_count",
		"SPRAY_IP_MULTIPLIER":        "detectors.password_attack.spray_ip_multiplier",
		"SESSION_LEARN_THRESHOLD":    "detectors.session.learn_threshold",
		"IP_REPUTATION_STALE_TTL":    "detectors.ip_reputation.stale_ttl",
		"ACCESS_TIME_MIN_HISTORY":    "detectors.access_time.min_history",

		// Fusion weights
		"WEIGHT_GEO_VELOCITY":     "fusion.geo_velocity",
		"WEIGHT_PASSWORD_ATTACK":  "fusion.password_attack",
		"WEIGHT_DEVICE":           "fusion.device",
		"WEIGHT_USER_AGENT":       "fusion.user_agent",
		"WEIGHT_ACCESS_TIME":      "fusion.access_time",
		"WEIGHT_ACCOUNT_VELOCITY": "fusion.account_velocity",
		"WEIGHT_SESSION":          "fusion.session",
		"WEIGHT_IP_REPUTATION":    "fusion.ip_reputation",

		// Logging
		"LOG_LEVEL":  "logging.level",
		"LOG_FORMAT": "logging.format",
		"LOG_CALLER": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}
