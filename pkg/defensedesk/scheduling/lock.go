package scheduling

import (
	"context"
	"sort"
	"sync"

	"github.com/envisys/defensedesk/pkg/defensedesk/database"
	"gorm.io/gorm"
)

// LockScope is the first key of pg_advisory_xact_lock(int, int). It keeps
// user and group locks apart from each other and from other advisory lock users.
type LockScope int32

const (
	ScopeUser  LockScope = 0x6466
	ScopeGroup LockScope = 0x6467
)

// LockKey names one lockable identity
type LockKey struct {
	Scope LockScope
	ID    uint
}

func userKeys(ids []uint) []LockKey {
	keys := make([]LockKey, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, LockKey{Scope: ScopeUser, ID: id})
	}
	return keys
}

func groupKey(id uint) LockKey {
	return LockKey{Scope: ScopeGroup, ID: id}
}

// ResourceLock serializes writers that touch the same group, adviser or
// panel member. fn runs inside a transaction; a returned error rolls it back.
type ResourceLock interface {
	WithinLock(ctx context.Context, db *gorm.DB, keys []LockKey, fn func(tx *gorm.DB) error) error
}

// NewResourceLock picks the lock matching the database driver
func NewResourceLock(driver string) ResourceLock {
	if driver == database.DriverPostgres {
		return AdvisoryLock{}
	}
	return NewLocalLock()
}

func normalizeKeys(keys []uint) []uint {
	out := make([]uint, 0, len(keys))
	seen := make(map[uint]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func normalizeLockKeys(keys []LockKey) []LockKey {
	out := make([]LockKey, 0, len(keys))
	seen := make(map[LockKey]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	// Fixed order prevents lock-order deadlocks between writers
	sort.Slice(out, func(i, j int) bool {
		if out[i].Scope != out[j].Scope {
			return out[i].Scope < out[j].Scope
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// AdvisoryLock takes transaction-scoped Postgres advisory locks, one per
// resource, so the guarantee holds across server instances.
type AdvisoryLock struct{}

// WithinLock implements ResourceLock
func (AdvisoryLock) WithinLock(ctx context.Context, db *gorm.DB, keys []LockKey, fn func(tx *gorm.DB) error) error {
	keys = normalizeLockKeys(keys)
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, k := range keys {
			if err := tx.Exec("SELECT pg_advisory_xact_lock(?, ?)", int32(k.Scope), int32(k.ID)).Error; err != nil {
				return err
			}
		}
		return fn(tx)
	})
}

// LocalLock serializes writers within one process. The locks are taken
// before the transaction opens so a waiter never holds a connection.
type LocalLock struct {
	mu    sync.Mutex
	slots map[LockKey]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewLocalLock creates an in-process resource lock
func NewLocalLock() *LocalLock {
	return &LocalLock{slots: make(map[LockKey]*slot)}
}

func (l *LocalLock) ref(key LockKey) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *LocalLock) unref(key LockKey) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.slots[key]
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

func (l *LocalLock) acquire(ctx context.Context, key LockKey) error {
	s := l.ref(key)
	select {
	case s.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.unref(key)
		return ctx.Err()
	}
}

func (l *LocalLock) release(key LockKey) {
	l.mu.Lock()
	s := l.slots[key]
	l.mu.Unlock()
	<-s.ch
	l.unref(key)
}

// WithinLock implements ResourceLock
func (l *LocalLock) WithinLock(ctx context.Context, db *gorm.DB, keys []LockKey, fn func(tx *gorm.DB) error) error {
	keys = normalizeLockKeys(keys)
	held := make([]LockKey, 0, len(keys))
	defer func() {
		for i := len(held) - 1; i >= 0; i-- {
			l.release(held[i])
		}
	}()

	for _, k := range keys {
		if err := l.acquire(ctx, k); err != nil {
			return err
		}
		held = append(held, k)
	}

	return db.WithContext(ctx).Transaction(fn)
}
