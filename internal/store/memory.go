// Riskgate - Authentication Risk Scoring Engine
// Copyright 2026 Riskgate Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/riskgate/riskgate

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore implements Store in process memory. State is lost on
// restart; intended for tests and single-node evaluation setups.
type MemoryStore struct {
	mu              sync.RWMutex
	maxLoginHistory int

	logins        map[string][]LoginRecord
	failedLogins  []FailedLoginRecord
	registrations []RegistrationRecord
	ipReputations map[string]IPReputationRecord
	devices       map[string]DeviceRecord
	userDevices   map[string][]string
	models        map[string]UserBehaviorModel
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(maxLoginHistory int) *MemoryStore {
	if maxLoginHistory <= 0 {
		maxLoginHistory = 10
	}
	return &MemoryStore{
		maxLoginHistory: maxLoginHistory,
		logins:          make(map[string][]LoginRecord),
		ipReputations:   make(map[string]IPReputationRecord),
		devices:         make(map[string]DeviceRecord),
		userDevices:     make(map[string][]string),
		models:          make(map[string]UserBehaviorModel),
	}
}

func (s *MemoryStore) AppendLogin(ctx context.Context, rec LoginRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := append(s.logins[rec.UserID], rec)
	sort.Slice(history, func(i, j int) bool {
		return history[i].Timestamp.Before(history[j].Timestamp)
	})
	if len(history) > s.maxLoginHistory {
		history = history[len(history)-s.maxLoginHistory:]
	}
	s.logins[rec.UserID] = history
	return nil
}

func (s *MemoryStore) LastLogin(ctx context.Context, userID string) (*LoginRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.logins[userID]
	if len(history) == 0 {
		return nil, ErrNotFound
	}
	rec := history[len(history)-1]
	return &rec, nil
}

func (s *MemoryStore) LoginHistory(ctx context.Context, userID string, limit int) ([]LoginRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.logins[userID]
	out := make([]LoginRecord, 0, len(history))
	for i := len(history) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, history[i])
	}
	return out, nil
}

func (s *MemoryStore) AppendFailedLogin(ctx context.Context, rec FailedLoginRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failedLogins = append(s.failedLogins, rec)
	return nil
}

func (s *MemoryStore) RecentFailedLogins(ctx context.Context, since time.Time) ([]FailedLoginRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []FailedLoginRecord
	for _, rec := range s.failedLogins {
		if !rec.Timestamp.Before(since) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func (s *MemoryStore) RecordRegistration(ctx context.Context, rec RegistrationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registrations = append(s.registrations, rec)
	return nil
}

func (s *MemoryStore) RegistrationsSince(ctx context.Context, since time.Time) ([]RegistrationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []RegistrationRecord
	for _, rec := range s.registrations {
		if !rec.Timestamp.Before(since) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func (s *MemoryStore) IPReputation(ctx context.Context, ip string) (*IPReputationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.ipReputations[ip]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (s *MemoryStore) UpsertIPReputation(ctx context.Context, rec IPReputationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ipReputations[rec.IP] = rec
	return nil
}

func (s *MemoryStore) DeviceByID(ctx context.Context, fingerprintID string) (*DeviceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.devices[fingerprintID]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (s *MemoryStore) DevicesByUser(ctx context.Context, userID string) ([]DeviceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.userDevices[userID]
	out := make([]DeviceRecord, 0, len(ids))
	for _, id := range ids {
		if rec, ok := s.devices[id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *MemoryStore) UpsertDevice(ctx context.Context, rec DeviceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.devices[rec.FingerprintID]; !exists {
		s.userDevices[rec.UserID] = append(s.userDevices[rec.UserID], rec.FingerprintID)
	}
	s.devices[rec.FingerprintID] = rec
	return nil
}

func (s *MemoryStore) UserModel(ctx context.Context, userID string) (*UserBehaviorModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.models[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &m, nil
}

func (s *MemoryStore) UpsertUserModel(ctx context.Context, m UserBehaviorModel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.models[m.UserID] = m
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// Compile-time interface assertion
var _ Store = (*MemoryStore)(nil)
