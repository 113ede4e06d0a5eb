// Package idempotency sheds duplicate provider webhook deliveries with a
// redis cache keyed by event id. It is a fast path only: the payment row lock
// and terminal-status check stay authoritative, so a lost redis write costs a
// store round-trip, never a double-applied transition.
package idempotency

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

func key(eventID string) string {
	return "webhook:event:" + eventID
}

func (s *Store) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key(eventID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Mark records the event as processed. Called only after the store
// transaction commits.
func (s *Store) Mark(ctx context.Context, eventID string) error {
	return s.rdb.Set(ctx, key(eventID), "1", s.ttl).Err()
}
