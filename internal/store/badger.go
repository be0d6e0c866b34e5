// Riskgate - Authentication Risk Scoring Engine
// Copyright 2026 Riskgate Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/riskgate/riskgate

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/riskgate/riskgate/internal/logging"
	"github.com/riskgate/riskgate/internal/metrics"
)

// Key prefixes for BadgerDB namespacing.
const (
	loginKeyPrefix      = "login:"
	lastLoginKeyPrefix  = "last_login:"
	failedKeyPrefix     = "failed:"
	regKeyPrefix        = "reg:"
	ipRepKeyPrefix      = "ip_rep:"
	deviceKeyPrefix     = "device:"
	deviceUserKeyPrefix = "device_user:"
	modelKeyPrefix      = "model:"
)

// BadgerOptions configures the BadgerDB-backed store.
type BadgerOptions struct {
	// Path is the directory BadgerDB stores its data in.
	Path string
	// MaxLoginHistory bounds per-user login history. Older entries are
	// pruned on append.
	MaxLoginHistory int
	// FailedLoginTTL is how long failed-attempt records are retained.
	FailedLoginTTL time.Duration
	// RegistrationTTL is how long registration records are retained.
	RegistrationTTL time.Duration
}

// BadgerStore implements Store on BadgerDB for durable storage across
// restarts.
type BadgerStore struct {
	db   *badger.DB
	opts BadgerOptions
	seq  atomic.Uint64
}

// NewBadgerStore opens a BadgerDB-backed store at opts.Path.
func NewBadgerStore(opts BadgerOptions) (*BadgerStore, error) {
	if opts.MaxLoginHistory <= 0 {
		opts.MaxLoginHistory = 10
	}
	if opts.FailedLoginTTL <= 0 {
		opts.FailedLoginTTL = 24 * time.Hour
	}
	if opts.RegistrationTTL <= 0 {
		opts.RegistrationTTL = 48 * time.Hour
	}

	badgerOpts := badger.DefaultOptions(opts.Path)
	badgerOpts.Logger = nil // Suppress BadgerDB internal logs
	// Event records are small; keep the value log proportionate.
	badgerOpts.ValueLogFileSize = 64 << 20
	badgerOpts.SyncWrites = true

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}

	return &BadgerStore{db: db, opts: opts}, nil
}

// NewBadgerStoreFromDB wraps an existing BadgerDB connection. Useful
// for tests running against an in-memory database.
func NewBadgerStoreFromDB(db *badger.DB, opts BadgerOptions) *BadgerStore {
	if opts.MaxLoginHistory <= 0 {
		opts.MaxLoginHistory = 10
	}
	if opts.FailedLoginTTL <= 0 {
		opts.FailedLoginTTL = 24 * time.Hour
	}
	if opts.RegistrationTTL <= 0 {
		opts.RegistrationTTL = 48 * time.Hour
	}
	return &BadgerStore{db: db, opts: opts}
}

// timeKey builds a lexicographically time-ordered key with a sequence
// suffix so records sharing a timestamp never collide.
func (s *BadgerStore) timeKey(prefix string, t time.Time) []byte {
	return []byte(fmt.Sprintf("%s%020d:%012d", prefix, t.UnixNano(), s.seq.Add(1)))
}

// AppendLogin records a successful login, updates the last-login
// pointer, and prunes history beyond the configured bound.
func (s *BadgerStore) AppendLogin(ctx context.Context, rec LoginRecord) error {
	defer s.observe("append_login", time.Now())

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal login record: %w", err)
	}

	prefix := loginKeyPrefix + rec.UserID + ":"
	key := fmt.Sprintf("%s%020d:%012d", prefix, rec.Timestamp.UnixNano(), s.seq.Add(1))

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(key), data); err != nil {
			return fmt.Errorf("set login: %w", err)
		}
		if err := txn.Set([]byte(lastLoginKeyPrefix+rec.UserID), data); err != nil {
			return fmt.Errorf("set last login: %w", err)
		}
		return s.pruneLoginHistory(txn, prefix)
	})
}

// pruneLoginHistory deletes the oldest login keys once the per-user
// history exceeds the bound.
func (s *BadgerStore) pruneLoginHistory(txn *badger.Txn, prefix string) error {
	it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(prefix)})
	defer it.Close()

	var keys [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	for i := 0; i <= len(keys)-1-s.opts.MaxLoginHistory; i++ {
		if err := txn.Delete(keys[i]); err != nil {
			return fmt.Errorf("prune login history: %w", err)
		}
	}
	return nil
}

// LastLogin returns the most recent login for the user.
func (s *BadgerStore) LastLogin(ctx context.Context, userID string) (*LoginRecord, error) {
	defer s.observe("last_login", time.Now())

	var rec LoginRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(lastLoginKeyPrefix + userID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get last login: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// LoginHistory returns up to limit recent logins, newest first.
func (s *BadgerStore) LoginHistory(ctx context.Context, userID string, limit int) ([]LoginRecord, error) {
	defer s.observe("login_history", time.Now())

	prefix := []byte(loginKeyPrefix + userID + ":")
	var out []LoginRecord
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, Reverse: true})
		defer it.Close()

		// Reverse iteration seeks to the last key under the prefix.
		seek := append(append([]byte{}, prefix...), 0xff)
		for it.Seek(seek); it.Valid() && (limit <= 0 || len(out) < limit); it.Next() {
			var rec LoginRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("decode login record: %w", err)
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AppendFailedLogin records a failed attempt with the retention TTL.
func (s *BadgerStore) AppendFailedLogin(ctx context.Context, rec FailedLoginRecord) error {
	defer s.observe("append_failed_login", time.Now())

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal failed login: %w", err)
	}
	key := s.timeKey(failedKeyPrefix, rec.Timestamp)
	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(key, data).WithTTL(s.opts.FailedLoginTTL)
		return txn.SetEntry(entry)
	})
}

// RecentFailedLogins returns failed attempts at or after since, oldest
// first.
func (s *BadgerStore) RecentFailedLogins(ctx context.Context, since time.Time) ([]FailedLoginRecord, error) {
	defer s.observe("recent_failed_logins", time.Now())

	var out []FailedLoginRecord
	err := s.scanSince(failedKeyPrefix, since, func(val []byte) error {
		var rec FailedLoginRecord
		if err := json.Unmarshal(val, &rec); err != nil {
			return fmt.Errorf("decode failed login: %w", err)
		}
		out = append(out, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RecordRegistration records an account signup with the retention TTL.
func (s *BadgerStore) RecordRegistration(ctx context.Context, rec RegistrationRecord) error {
	defer s.observe("record_registration", time.Now())

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal registration: %w", err)
	}
	key := s.timeKey(regKeyPrefix, rec.Timestamp)
	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(key, data).WithTTL(s.opts.RegistrationTTL)
		return txn.SetEntry(entry)
	})
}

// RegistrationsSince returns signups at or after since, oldest first.
func (s *BadgerStore) RegistrationsSince(ctx context.Context, since time.Time) ([]RegistrationRecord, error) {
	defer s.observe("registrations_since", time.Now())

	var out []RegistrationRecord
	err := s.scanSince(regKeyPrefix, since, func(val []byte) error {
		var rec RegistrationRecord
		if err := json.Unmarshal(val, &rec); err != nil {
			return fmt.Errorf("decode registration: %w", err)
		}
		out = append(out, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// scanSince iterates time-keyed records starting from since. Keys are
// lexicographically ordered by their zero-padded nanosecond timestamp,
// so a single seek lands on the first in-window record.
func (s *BadgerStore) scanSince(prefix string, since time.Time, fn func(val []byte) error) error {
	seek := []byte(fmt.Sprintf("%s%020d", prefix, since.UnixNano()))
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(prefix)})
		defer it.Close()
		for it.Seek(seek); it.Valid(); it.Next() {
			if err := it.Item().Value(fn); err != nil {
				return err
			}
		}
		return nil
	})
}

// IPReputation returns the cached reputation for ip.
func (s *BadgerStore) IPReputation(ctx context.Context, ip string) (*IPReputationRecord, error) {
	defer s.observe("ip_reputation", time.Now())

	var rec IPReputationRecord
	err := s.getJSON(ipRepKeyPrefix+ip, &rec)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpsertIPReputation stores or replaces the reputation for an address.
func (s *BadgerStore) UpsertIPReputation(ctx context.Context, rec IPReputationRecord) error {
	defer s.observe("upsert_ip_reputation", time.Now())
	return s.setJSON(ipRepKeyPrefix+rec.IP, rec)
}

// DeviceByID returns a fingerprinted device.
func (s *BadgerStore) DeviceByID(ctx context.Context, fingerprintID string) (*DeviceRecord, error) {
	defer s.observe("device_by_id", time.Now())

	var rec DeviceRecord
	err := s.getJSON(deviceKeyPrefix+fingerprintID, &rec)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// DevicesByUser returns every device seen for the user via the
// user-to-device index.
func (s *BadgerStore) DevicesByUser(ctx context.Context, userID string) ([]DeviceRecord, error) {
	defer s.observe("devices_by_user", time.Now())

	prefix := []byte(deviceUserKeyPrefix + userID + ":")
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			ids = append(ids, strings.TrimPrefix(key, string(prefix)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]DeviceRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := s.DeviceByID(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}

// UpsertDevice stores a device record and maintains the user index.
func (s *BadgerStore) UpsertDevice(ctx context.Context, rec DeviceRecord) error {
	defer s.observe("upsert_device", time.Now())

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal device: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(deviceKeyPrefix+rec.FingerprintID), data); err != nil {
			return fmt.Errorf("set device: %w", err)
		}
		indexKey := []byte(deviceUserKeyPrefix + rec.UserID + ":" + rec.FingerprintID)
		if err := txn.Set(indexKey, nil); err != nil {
			return fmt.Errorf("set device index: %w", err)
		}
		return nil
	})
}

// UserModel returns the learned behavior model for a user.
func (s *BadgerStore) UserModel(ctx context.Context, userID string) (*UserBehaviorModel, error) {
	defer s.observe("user_model", time.Now())

	var m UserBehaviorModel
	err := s.getJSON(modelKeyPrefix+userID, &m)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// UpsertUserModel stores or replaces a behavior model.
func (s *BadgerStore) UpsertUserModel(ctx context.Context, m UserBehaviorModel) error {
	defer s.observe("upsert_user_model", time.Now())
	return s.setJSON(modelKeyPrefix+m.UserID, m)
}

func (s *BadgerStore) getJSON(key string, v any) error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get %s: %w", key, err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		})
	})
}

func (s *BadgerStore) setJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

func (s *BadgerStore) observe(op string, start time.Time) {
	metrics.RecordStoreOperation(op, time.Since(start))
}

// StartGC runs BadgerDB value-log garbage collection at the given
// interval until the context is canceled.
func (s *BadgerStore) StartGC(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.db.RunValueLogGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
					logging.Warn().Err(err).Msg("badger value log GC failed")
				}
			}
		}
	}()
}

// Close closes the underlying BadgerDB.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// Compile-time interface assertion
var _ Store = (*BadgerStore)(nil)
