// Package dlock is a best-effort distributed lock on Redis. It serializes
// contention on hot documents to cut retry churn; correctness always comes
// from the database row locks taken inside the transaction, so a failed
// acquire degrades to "proceed without the lock".
package dlock

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultTTL bounds how long a crashed holder can block others.
const DefaultTTL = 30 * time.Second

// releaseScript deletes the key only when the caller still holds it.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// Client is the subset of the go-redis API the service uses. *redis.Client
// satisfies it; tests substitute a fake.
type Client interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

type Service struct {
	rdb Client
	log *zap.Logger
}

func New(rdb Client, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{rdb: rdb, log: log}
}

// Acquire attempts to take key for ttl. It returns the release token and
// whether the lock was obtained. Any Redis failure reads as "not acquired".
func (s *Service) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool) {
	if s.rdb == nil {
		return "", false
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	token := uuid.NewString()
	ok, err := s.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		s.log.Warn("lock acquire failed, proceeding without lock",
			zap.String("key", key), zap.Error(err))
		return "", false
	}
	return token, ok
}

// Release frees key if the token still matches. Errors are logged only;
// the TTL bounds the damage of a lost release.
func (s *Service) Release(ctx context.Context, key, token string) {
	if s.rdb == nil || token == "" {
		return
	}
	if err := s.rdb.Eval(ctx, releaseScript, []string{key}, token).Err(); err != nil {
		s.log.Warn("lock release failed", zap.String("key", key), zap.Error(err))
	}
}

// WithLock runs fn under a single best-effort lock.
func (s *Service) WithLock(ctx context.Context, key string, ttl time.Duration, fn func() error) error {
	return s.WithLocks(ctx, []string{key}, ttl, fn)
}

// WithLocks acquires keys in lexicographic order and releases them in
// reverse order on every exit. Keys that could not be acquired are skipped:
// fn still runs, protected by the DB row locks.
func (s *Service) WithLocks(ctx context.Context, keys []string, ttl time.Duration, fn func() error) error {
	ordered := sortedKeys(keys)

	type held struct{ key, token string }
	var acquired []held
	for _, k := range ordered {
		if token, ok := s.Acquire(ctx, k, ttl); ok {
			acquired = append(acquired, held{key: k, token: token})
		}
	}
	defer func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			s.Release(ctx, acquired[i].key, acquired[i].token)
		}
	}()

	return fn()
}

// sortedKeys deduplicates and sorts lock keys so that every caller acquires
// contended keys in the same order.
func sortedKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, dup := seen[k]; dup || k == "" {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
