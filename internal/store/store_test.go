// Riskgate - Authentication Risk Scoring Engine
// Copyright 2026 Riskgate Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/riskgate/riskgate

package store

import (
	"context"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStores builds both implementations so the contract tests run
// against each.
func newTestStores(t *testing.T) map[string]Store {
	t.Helper()

	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return map[string]Store{
		"badger": NewBadgerStoreFromDB(db, BadgerOptions{MaxLoginHistory: 5}),
		"memory": NewMemoryStore(5),
	}
}

func TestLoginRoundTrip(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.LastLogin(ctx, "alice")
			assert.ErrorIs(t, err, ErrNotFound)

			first := LoginRecord{
				UserID: "alice", IP: "198.51.100.7",
				Latitude: 40.7128, Longitude: -74.0060,
				Country: "US", City: "New York",
				Timestamp: base,
			}
			require.NoError(t, s.AppendLogin(ctx, first))

			second := first
			second.IP = "198.51.100.8"
			second.Timestamp = base.Add(time.Hour)
			require.NoError(t, s.AppendLogin(ctx, second))

			last, err := s.LastLogin(ctx, "alice")
			require.NoError(t, err)
			assert.Equal(t, "198.51.100.8", last.IP)
			assert.True(t, last.Timestamp.Equal(second.Timestamp))

			history, err := s.LoginHistory(ctx, "alice", 10)
			require.NoError(t, err)
			require.Len(t, history, 2)
			// Newest first.
			assert.Equal(t, "198.51.100.8", history[0].IP)
			assert.Equal(t, "198.51.100.7", history[1].IP)
		})
	}
}

func TestLoginHistoryBounded(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 8; i++ {
				rec := LoginRecord{
					UserID:    "bob",
					IP:        "203.0.113.1",
					Timestamp: base.Add(time.Duration(i) * time.Minute),
				}
				require.NoError(t, s.AppendLogin(ctx, rec))
			}

			history, err := s.LoginHistory(ctx, "bob", 0)
			require.NoError(t, err)
			require.Len(t, history, 5)
			// Oldest three pruned; newest entry is minute 7.
			assert.True(t, history[0].Timestamp.Equal(base.Add(7*time.Minute)))
			assert.True(t, history[4].Timestamp.Equal(base.Add(3*time.Minute)))
		})
	}
}

func TestFailedLoginsWindow(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 6; i++ {
				rec := FailedLoginRecord{
					UserID:    "carol",
					IP:        "203.0.113.9",
					Timestamp: base.Add(time.Duration(i) * 10 * time.Minute),
				}
				require.NoError(t, s.AppendFailedLogin(ctx, rec))
			}

			all, err := s.RecentFailedLogins(ctx, base)
			require.NoError(t, err)
			assert.Len(t, all, 6)

			recent, err := s.RecentFailedLogins(ctx, base.Add(25*time.Minute))
			require.NoError(t, err)
			require.Len(t, recent, 3)
			// Oldest first.
			assert.True(t, recent[0].Timestamp.Equal(base.Add(30*time.Minute)))
		})
	}
}

func TestRegistrationsSince(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 4; i++ {
				rec := RegistrationRecord{
					IP:          "203.0.113.20",
					EmailDomain: "example.com",
					Subnet:      "203.0.113.0/24",
					Timestamp:   base.Add(time.Duration(i) * time.Hour),
				}
				require.NoError(t, s.RecordRegistration(ctx, rec))
			}

			recent, err := s.RegistrationsSince(ctx, base.Add(90*time.Minute))
			require.NoError(t, err)
			assert.Len(t, recent, 2)
		})
	}
}

func TestIPReputationRoundTrip(t *testing.T) {
	ctx := context.Background()

	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.IPReputation(ctx, "203.0.113.50")
			assert.ErrorIs(t, err, ErrNotFound)

			rec := IPReputationRecord{
				IP:           "203.0.113.50",
				FailedLogins: 12,
				Countries:    []string{"US", "DE"},
				IsProxy:      true,
				Score:        75,
				Status:       "high_risk",
				UpdatedAt:    time.Now().UTC(),
			}
			require.NoError(t, s.UpsertIPReputation(ctx, rec))

			got, err := s.IPReputation(ctx, "203.0.113.50")
			require.NoError(t, err)
			assert.Equal(t, 75, got.Score)
			assert.Equal(t, "high_risk", got.Status)
			assert.True(t, got.IsProxy)
		})
	}
}

func TestDeviceUpsertAndUserIndex(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			dev := DeviceRecord{
				FingerprintID: "fp-123",
				UserID:        "dave",
				Components:    map[string]string{"platform": "Win32"},
				FirstSeen:     now,
				LastSeen:      now,
				VisitCount:    1,
			}
			require.NoError(t, s.UpsertDevice(ctx, dev))

			dev.LastSeen = now.Add(time.Hour)
			dev.VisitCount = 2
			require.NoError(t, s.UpsertDevice(ctx, dev))

			got, err := s.DeviceByID(ctx, "fp-123")
			require.NoError(t, err)
			assert.Equal(t, 2, got.VisitCount)

			devices, err := s.DevicesByUser(ctx, "dave")
			require.NoError(t, err)
			require.Len(t, devices, 1)
			assert.Equal(t, "fp-123", devices[0].FingerprintID)
		})
	}
}

func TestUserModelRoundTrip(t *testing.T) {
	ctx := context.Background()

	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.UserModel(ctx, "erin")
			assert.ErrorIs(t, err, ErrNotFound)

			m := UserBehaviorModel{
				UserID: "erin",
				Transitions: map[string]map[string]float64{
					"login": {"view_dashboard": 0.6, "view_profile": 0.4},
				},
				AvgActionGap:     12.5,
				AvgSessionLength: 300,
				SampleCount:      3,
				UpdatedAt:        time.Now().UTC(),
			}
			require.NoError(t, s.UpsertUserModel(ctx, m))

			got, err := s.UserModel(ctx, "erin")
			require.NoError(t, err)
			assert.Equal(t, 3, got.SampleCount)
			assert.InDelta(t, 0.6, got.Transitions["login"]["view_dashboard"], 1e-9)
		})
	}
}
