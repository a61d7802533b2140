package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	sessionKeyFormat = "lambari:import:session:%s"
	lockKeyFormat    = "lambari:import:session:%s:lock"
)

// releaseLock deletes the lock only if this holder still owns it.
var releaseLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshLock extends the lock only if this holder still owns it.
var refreshLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisStore keeps sessions as JSON documents with a TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

func NewRedisStore(client *redis.Client, ttl time.Duration, logger *logrus.Logger) *RedisStore {
	return &RedisStore{client: client, ttl: ttl, logger: logger}
}

func (s *RedisStore) Save(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := s.client.Set(ctx, fmt.Sprintf(sessionKeyFormat, sess.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	val, err := s.client.Get(ctx, fmt.Sprintf(sessionKeyFormat, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(val, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &sess, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	n, err := s.client.Del(ctx, fmt.Sprintf(sessionKeyFormat, id)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) Lock(ctx context.Context, id string, ttl time.Duration) (Lease, error) {
	key := fmt.Sprintf(lockKeyFormat, id)
	token := uuid.New().String()

	ok, err := s.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire session lock: %w", err)
	}
	if !ok {
		return nil, ErrBusy
	}
	return &redisLease{store: s, id: id, key: key, token: token}, nil
}

type redisLease struct {
	store *RedisStore
	id    string
	key   string
	token string
	once  sync.Once
}

func (l *redisLease) Refresh(ctx context.Context, ttl time.Duration) error {
	n, err := refreshLock.Run(ctx, l.store.client, []string{l.key}, l.token, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to refresh session lock: %w", err)
	}
	if n == 0 {
		return ErrLockLost
	}
	return nil
}

func (l *redisLease) Release() {
	l.once.Do(func() {
		// the request context may already be done when the commit finishes
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseLock.Run(releaseCtx, l.store.client, []string{l.key}, l.token).Err(); err != nil {
			l.store.logger.WithError(err).WithField("session_id", l.id).Warn("Failed to release session lock")
		}
	})
}
