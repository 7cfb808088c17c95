package handler

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gotd/td/tg"

	"github.com/pavelc4/aether-fetch/internal/provider"
)

const DefaultSelectionTTL = 10 * time.Minute

// Selection is a quality menu waiting for the user to pick.
type Selection struct {
	UserID  int64
	URL     string
	Peer    tg.InputPeerClass
	ReplyTo int
	Info    *provider.Info

	expires time.Time
}

// SelectionStore keeps pending menus under short tokens, since a full URL
// does not fit in callback data.
type SelectionStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	items map[string]*Selection
}

func NewSelectionStore(ttl time.Duration) *SelectionStore {
	if ttl <= 0 {
		ttl = DefaultSelectionTTL
	}
	return &SelectionStore{ttl: ttl, now: time.Now, items: make(map[string]*Selection)}
}

// Put stores sel and returns its token. Expired entries are dropped on the
// way.
func (s *SelectionStore) Put(sel Selection) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweep(now)

	token := newToken()
	for _, taken := s.items[token]; taken; _, taken = s.items[token] {
		token = newToken()
	}
	sel.expires = now.Add(s.ttl)
	s.items[token] = &sel
	return token
}

// Peek returns the selection if it exists, has not expired and belongs to
// userID.
func (s *SelectionStore) Peek(token string, userID int64) (*Selection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sel, ok := s.lookup(token, userID)
	if !ok {
		return nil, false
	}
	cp := *sel
	return &cp, true
}

// Take is Peek followed by removal.
func (s *SelectionStore) Take(token string, userID int64) (*Selection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sel, ok := s.lookup(token, userID)
	if !ok {
		return nil, false
	}
	delete(s.items, token)
	return sel, true
}

// Update replaces the probe result and extends the expiry.
func (s *SelectionStore) Update(token string, userID int64, info *provider.Info) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sel, ok := s.lookup(token, userID)
	if !ok {
		return false
	}
	sel.Info = info
	sel.expires = s.now().Add(s.ttl)
	return true
}

func (s *SelectionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// lookup returns the stored entry itself; callers outside the lock get a
// copy.
func (s *SelectionStore) lookup(token string, userID int64) (*Selection, bool) {
	sel, ok := s.items[token]
	if !ok {
		return nil, false
	}
	if !s.now().Before(sel.expires) {
		delete(s.items, token)
		return nil, false
	}
	if sel.UserID != userID {
		return nil, false
	}
	return sel, true
}

func (s *SelectionStore) sweep(now time.Time) {
	for token, sel := range s.items {
		if !now.Before(sel.expires) {
			delete(s.items, token)
		}
	}
}

func newToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}
