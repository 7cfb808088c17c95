package resource

import (
	"fmt"
	"sync"
)

type Reason int

const (
	GlobalLimitReached Reason = iota + 1
	UserLimitReached
)

func (r Reason) String() string {
	switch r {
	case GlobalLimitReached:
		return "global_limit_reached"
	case UserLimitReached:
		return "user_limit_reached"
	default:
		return "unknown"
	}
}

// Rejection is returned by Acquire when no slot could be granted.
type Rejection struct {
	Reason Reason
	InUse  int
	Limit  int
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("slot rejected: %s (%d/%d in use)", r.Reason, r.InUse, r.Limit)
}

// Observer is notified after every change to the counters, while the
// manager lock is still held. Implementations must not call back into the
// manager.
type Observer interface {
	SlotsChanged(globalInUse, users int)
	SlotRejected(reason Reason)
}

type Snapshot struct {
	GlobalInUse int
	MaxGlobal   int
	MaxPerUser  int
	PerUser     map[int64]int
}

// Slot is the only token that can give back a granted download slot.
type Slot struct {
	userID int64

	m    *Manager
	once sync.Once
}

func (s *Slot) UserID() int64 {
	return s.userID
}

// Release returns the slot to its manager. Only the first call has effect.
func (s *Slot) Release() bool {
	if s == nil || s.m == nil {
		return false
	}
	return s.m.Release(s)
}

type Manager struct {
	maxGlobal  int
	maxPerUser int

	mu          sync.Mutex
	globalInUse int
	perUser     map[int64]int
	observer    Observer
}

func NewManager(maxGlobal, maxPerUser int) *Manager {
	if maxGlobal < 1 {
		maxGlobal = 1
	}
	if maxPerUser < 1 {
		maxPerUser = 1
	}
	return &Manager{
		maxGlobal:  maxGlobal,
		maxPerUser: maxPerUser,
		perUser:    make(map[int64]int),
	}
}

func (m *Manager) SetObserver(o Observer) {
	m.mu.Lock()
	m.observer = o
	m.mu.Unlock()
}

// Acquire grants a slot when both the global and the per-user counters are
// below their limits. The check and both increments happen under one lock.
func (m *Manager) Acquire(userID int64) (*Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.globalInUse >= m.maxGlobal {
		m.rejected(GlobalLimitReached)
		return nil, &Rejection{Reason: GlobalLimitReached, InUse: m.globalInUse, Limit: m.maxGlobal}
	}
	if n := m.perUser[userID]; n >= m.maxPerUser {
		m.rejected(UserLimitReached)
		return nil, &Rejection{Reason: UserLimitReached, InUse: n, Limit: m.maxPerUser}
	}

	m.globalInUse++
	m.perUser[userID]++
	m.changed()

	return &Slot{userID: userID, m: m}, nil
}

// Release returns false when the slot was already released or belongs to
// another manager.
func (m *Manager) Release(s *Slot) bool {
	if s == nil || s.m != m {
		return false
	}

	released := false
	s.once.Do(func() {
		m.mu.Lock()
		defer m.mu.Unlock()

		n := m.perUser[s.userID]
		if n <= 0 || m.globalInUse <= 0 {
			return
		}
		if n == 1 {
			delete(m.perUser, s.userID)
		} else {
			m.perUser[s.userID] = n - 1
		}
		m.globalInUse--
		released = true
		m.changed()
	})
	return released
}

func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	per := make(map[int64]int, len(m.perUser))
	for id, n := range m.perUser {
		per[id] = n
	}
	return Snapshot{
		GlobalInUse: m.globalInUse,
		MaxGlobal:   m.maxGlobal,
		MaxPerUser:  m.maxPerUser,
		PerUser:     per,
	}
}

func (m *Manager) ActiveFor(userID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.perUser[userID]
}

func (m *Manager) changed() {
	if m.observer != nil {
		m.observer.SlotsChanged(m.globalInUse, len(m.perUser))
	}
}

func (m *Manager) rejected(r Reason) {
	if m.observer != nil {
		m.observer.SlotRejected(r)
	}
}
