package localstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLeaseHeld is returned when another holder owns the lease
var ErrLeaseHeld = errors.New("lease is held by another holder")

// releaseScript deletes the lease only while it still carries our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lease is an exclusive, expiring claim on a key. An abandoned lease
// expires after its TTL instead of blocking other holders forever.
type Lease struct {
	store *Store
	key   string
	token string
}

// Acquire claims key for ttl or returns ErrLeaseHeld
func (s *Store) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	token := uuid.NewString()

	ok, err := s.rdb.SetNX(ctx, s.Key(key), token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lease %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLeaseHeld
	}

	return &Lease{store: s, key: key, token: token}, nil
}

// Release gives the lease back if it has not expired and been re-acquired
func (l *Lease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.store.rdb, []string{l.store.Key(l.key)}, l.token).Err(); err != nil {
		return fmt.Errorf("failed to release lease %s: %w", l.key, err)
	}
	return nil
}

// Held reports whether anyone currently holds key
func (s *Store) Held(ctx context.Context, key string) bool {
	n, err := s.rdb.Exists(ctx, s.Key(key)).Result()
	return err == nil && n > 0
}
