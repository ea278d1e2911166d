package lease

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"shipyard/internal/api"
	"shipyard/pkg/logging"
)

type memoryEntry struct {
	holder    string
	expiresAt time.Time
}

// MemoryLocker is a process-local Locker.
type MemoryLocker struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     Clock
}

// NewMemoryLocker creates a locker. A nil clock uses time.Now.
func NewMemoryLocker(now Clock) *MemoryLocker {
	if now == nil {
		now = time.Now
	}
	return &MemoryLocker{entries: make(map[string]memoryEntry), now: now}
}

// Acquire implements Locker.
func (l *MemoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if e, held := l.entries[key]; held && now.Before(e.expiresAt) {
		return nil, &api.LockError{InstanceUUID: key, Holder: e.holder, ExpiresAt: e.expiresAt}
	} else if held {
		logging.Warn(api.SubsystemLease, "Lease for %s held by %s expired at %s, taking over", key, e.holder, e.expiresAt.Format(time.RFC3339))
	}

	e := memoryEntry{holder: uuid.NewString(), expiresAt: now.Add(ttl)}
	l.entries[key] = e
	return &memoryLease{locker: l, key: key, entry: e}, nil
}

// Held reports whether key is currently leased.
func (l *MemoryLocker) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	return ok && l.now().Before(e.expiresAt)
}

type memoryLease struct {
	locker *MemoryLocker
	key    string
	entry  memoryEntry
}

func (m *memoryLease) Key() string          { return m.key }
func (m *memoryLease) Holder() string       { return m.entry.holder }
func (m *memoryLease) ExpiresAt() time.Time { return m.entry.expiresAt }

func (m *memoryLease) Release(context.Context) error {
	m.locker.mu.Lock()
	defer m.locker.mu.Unlock()
	if current, ok := m.locker.entries[m.key]; ok && current.holder == m.entry.holder {
		delete(m.locker.entries, m.key)
	}
	return nil
}
