package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore keeps sessions in process. It is used when Redis is not
// configured and by tests; run a Sweeper to evict expired sessions.
type MemoryStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]memoryEntry
	locks    map[string]memoryLock
	now      func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:      ttl,
		sessions: make(map[string]memoryEntry),
		locks:    make(map[string]memoryLock),
		now:      time.Now,
	}
}

// Save stores a serialized copy so callers never share slices with the store.
func (s *MemoryStore) Save(_ context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = memoryEntry{data: data, expiresAt: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	s.mu.Lock()
	entry, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok || s.now().After(entry.expiresAt) {
		return nil, ErrNotFound
	}

	var sess Session
	if err := json.Unmarshal(entry.data, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(s.sessions, id)
	return nil
}

type memoryLock struct {
	token string
	until time.Time
}

func (s *MemoryStore) Lock(_ context.Context, id string, ttl time.Duration) (Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if held, ok := s.locks[id]; ok && s.now().Before(held.until) {
		return nil, ErrBusy
	}
	token := uuid.New().String()
	s.locks[id] = memoryLock{token: token, until: s.now().Add(ttl)}
	return &memoryLease{store: s, id: id, token: token}, nil
}

type memoryLease struct {
	store *MemoryStore
	id    string
	token string
	once  sync.Once
}

func (l *memoryLease) Refresh(_ context.Context, ttl time.Duration) error {
	s := l.store
	s.mu.Lock()
	defer s.mu.Unlock()

	held, ok := s.locks[l.id]
	if !ok || held.token != l.token || !s.now().Before(held.until) {
		return ErrLockLost
	}
	held.until = s.now().Add(ttl)
	s.locks[l.id] = held
	return nil
}

func (l *memoryLease) Release() {
	l.once.Do(func() {
		s := l.store
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.locks[l.id].token == l.token {
			delete(s.locks, l.id)
		}
	})
}

// evictExpired drops expired sessions and stale locks, returning how many
// sessions were removed.
func (s *MemoryStore) evictExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, entry := range s.sessions {
		if now.After(entry.expiresAt) {
			delete(s.sessions, id)
			removed++
		}
	}
	for id, held := range s.locks {
		if now.After(held.until) {
			delete(s.locks, id)
		}
	}
	return removed
}

// Sweeper periodically evicts expired sessions from a MemoryStore
type Sweeper struct {
	store    *MemoryStore
	logger   *logrus.Logger
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewSweeper creates a new sweeper
func NewSweeper(store *MemoryStore, interval time.Duration, logger *logrus.Logger) *Sweeper {
	return &Sweeper{
		store:    store,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start runs the sweep loop until Stop is called or ctx is done
func (j *Sweeper) Start(ctx context.Context) {
	j.logger.Info("Session sweeper started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.sweep()
		case <-j.stopCh:
			j.logger.Info("Session sweeper stopped")
			return
		case <-ctx.Done():
			j.logger.Info("Session sweeper context cancelled")
			return
		}
	}
}

// Stop signals the sweeper to stop
func (j *Sweeper) Stop() {
	j.stopOnce.Do(func() { close(j.stopCh) })
}

func (j *Sweeper) sweep() {
	if removed := j.store.evictExpired(); removed > 0 {
		j.logger.Debugf("Evicted %d expired import sessions", removed)
	}
}
