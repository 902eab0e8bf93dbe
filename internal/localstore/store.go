package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Store is the durable key/value layer shared by every service instance.
// Each key has a primary entry, a short-lived secondary copy and a bounded
// list of timestamped backups used to recover from corrupt primaries.
type Store struct {
	rdb        *redis.Client
	prefix     string
	sessionTTL time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

type backupEntry struct {
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// New creates a Store on top of a redis client
func New(rdb *redis.Client, prefix string, sessionTTL time.Duration, logger *zap.Logger) *Store {
	if sessionTTL <= 0 {
		sessionTTL = 24 * time.Hour
	}
	return &Store{
		rdb:        rdb,
		prefix:     prefix,
		sessionTTL: sessionTTL,
		logger:     logger,
		now:        time.Now,
	}
}

// Client exposes the underlying redis client for pub/sub and leases
func (s *Store) Client() *redis.Client {
	return s.rdb
}

// Key returns the namespaced redis key for a logical key
func (s *Store) Key(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + ":" + key
}

func (s *Store) sessionKey(key string) string {
	return s.Key("session:" + key)
}

func (s *Store) backupKey(key string) string {
	return s.Key("backup:" + key)
}

// Save writes value as the primary entry, refreshes the secondary copy,
// records a timestamped backup and marks changes as pending.
func (s *Store) Save(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}

	backup, err := json.Marshal(backupEntry{Timestamp: s.now().UnixMilli(), Data: data})
	if err != nil {
		return fmt.Errorf("failed to encode backup for %s: %w", key, err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.Key(key), data, 0)
		pipe.Set(ctx, s.sessionKey(key), data, s.sessionTTL)
		pipe.LPush(ctx, s.backupKey(key), backup)
		pipe.LTrim(ctx, s.backupKey(key), 0, MaxBackups-1)
		pipe.Expire(ctx, s.backupKey(key), s.sessionTTL)
		pipe.Set(ctx, s.Key(KeyPendingChanges), "true", 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}

	return nil
}

// Load decodes the value stored under key into a T. A missing key yields def.
// A corrupt primary is recovered from backups (newest first) or the secondary
// copy; when nothing decodes, def is persisted and returned. Load never fails.
func Load[T any](ctx context.Context, s *Store, key string, def T) T {
	raw, err := s.rdb.Get(ctx, s.Key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return def
	}
	if err != nil {
		s.logger.Warn("Local store unavailable, using default", zap.String("key", key), zap.Error(err))
		return def
	}

	var value T
	if err := json.Unmarshal(raw, &value); err == nil {
		return value
	}

	s.logger.Warn("Corrupt local entry, attempting recovery", zap.String("key", key))

	if recovered, data, ok := recoverValue[T](ctx, s, key); ok {
		if err := s.rdb.Set(ctx, s.Key(key), data, 0).Err(); err != nil {
			s.logger.Warn("Failed to restore recovered entry", zap.String("key", key), zap.Error(err))
		}
		return recovered
	}

	s.logger.Error("Recovery failed, resetting entry to default", zap.String("key", key))
	if data, err := json.Marshal(def); err == nil {
		if err := s.rdb.Set(ctx, s.Key(key), data, 0).Err(); err != nil {
			s.logger.Warn("Failed to persist default", zap.String("key", key), zap.Error(err))
		}
	}

	return def
}

func recoverValue[T any](ctx context.Context, s *Store, key string) (T, []byte, bool) {
	var zero T

	entries, err := s.rdb.LRange(ctx, s.backupKey(key), 0, -1).Result()
	if err == nil {
		for _, entry := range entries {
			var b backupEntry
			if err := json.Unmarshal([]byte(entry), &b); err != nil {
				continue
			}
			var value T
			if err := json.Unmarshal(b.Data, &value); err == nil {
				s.logger.Info("Recovered entry from backup",
					zap.String("key", key),
					zap.Time("backup_time", time.UnixMilli(b.Timestamp)),
				)
				return value, b.Data, true
			}
		}
	}

	raw, err := s.rdb.Get(ctx, s.sessionKey(key)).Bytes()
	if err == nil {
		var value T
		if err := json.Unmarshal(raw, &value); err == nil {
			s.logger.Info("Recovered entry from secondary copy", zap.String("key", key))
			return value, raw, true
		}
	}

	return zero, nil, false
}

// Backups returns the number of retained backups for key
func (s *Store) Backups(ctx context.Context, key string) (int64, error) {
	return s.rdb.LLen(ctx, s.backupKey(key)).Result()
}

// Rewrite deletes key and writes value again so keyspace watchers observe a change
func (s *Store) Rewrite(ctx context.Context, key string, value []byte) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.Key(key))
		pipe.Set(ctx, s.Key(key), value, 0)
		return nil
	})
	return err
}

// SetString stores a plain string entry
func (s *Store) SetString(ctx context.Context, key, value string) error {
	return s.rdb.Set(ctx, s.Key(key), value, 0).Err()
}

// GetString returns a plain string entry, or "" when absent or unreachable
func (s *Store) GetString(ctx context.Context, key string) string {
	value, err := s.rdb.Get(ctx, s.Key(key)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("Failed to read entry", zap.String("key", key), zap.Error(err))
		}
		return ""
	}
	return value
}

// SetFlag stores a boolean entry
func (s *Store) SetFlag(ctx context.Context, key string, value bool) error {
	return s.SetString(ctx, key, strconv.FormatBool(value))
}

// Flag reads a boolean entry; absent or unparsable entries are false
func (s *Store) Flag(ctx context.Context, key string) bool {
	value, err := strconv.ParseBool(s.GetString(ctx, key))
	return err == nil && value
}

// SetTime stores t as an ISO-8601 string
func (s *Store) SetTime(ctx context.Context, key string, t time.Time) error {
	return s.SetString(ctx, key, t.UTC().Format(time.RFC3339Nano))
}

// Time reads an ISO-8601 entry. The bool is false when absent or malformed.
func (s *Store) Time(ctx context.Context, key string) (time.Time, bool) {
	raw := s.GetString(ctx, key)
	if raw == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// HasPendingChanges reports whether local edits await a confirmed push or deploy
func (s *Store) HasPendingChanges(ctx context.Context) bool {
	return s.Flag(ctx, KeyPendingChanges)
}

// ClearPendingChanges resets the pending-changes flag
func (s *Store) ClearPendingChanges(ctx context.Context) error {
	return s.SetFlag(ctx, KeyPendingChanges, false)
}

// Ping checks connectivity to redis
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
