package web

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kingrea/thinkpilot/internal/task"
)

// session is one browser's board. The board guards itself; mu only covers
// the flash message.
type session struct {
	id       string
	board    *task.Board
	lastSeen time.Time

	mu    sync.Mutex
	flash string
}

func (s *session) setFlash(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flash = msg
}

func (s *session) takeFlash() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := s.flash
	s.flash = ""
	return msg
}

// sessionStore keeps boards in memory, keyed by cookie value. Idle sessions
// expire after ttl and the oldest idle one is evicted when the store is full.
type sessionStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	max      int
	items    map[string]*session
	newBoard func() *task.Board
	clock    func() time.Time
}

func newSessionStore(ttl time.Duration, max int, newBoard func() *task.Board, clock func() time.Time) *sessionStore {
	return &sessionStore{
		ttl:      ttl,
		max:      max,
		items:    map[string]*session{},
		newBoard: newBoard,
		clock:    clock,
	}
}

// get returns a live session and marks it as seen.
func (s *sessionStore) get(id string) (*session, bool) {
	if id == "" {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.items[id]
	if !ok {
		return nil, false
	}
	now := s.clock()
	if now.Sub(sess.lastSeen) > s.ttl {
		delete(s.items, id)
		return nil, false
	}
	sess.lastSeen = now
	return sess, true
}

// create starts a new session with an empty board.
func (s *sessionStore) create() *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()
	s.expireLocked(now)
	for len(s.items) >= s.max {
		s.evictOldestLocked()
	}
	sess := &session{
		id:       uuid.NewString(),
		board:    s.newBoard(),
		lastSeen: now,
	}
	s.items[sess.id] = sess
	return sess
}

// expire drops idle sessions and reports how many were removed.
func (s *sessionStore) expire() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.items)
	s.expireLocked(s.clock())
	return before - len(s.items)
}

func (s *sessionStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *sessionStore) expireLocked(now time.Time) {
	for id, sess := range s.items {
		if now.Sub(sess.lastSeen) > s.ttl {
			delete(s.items, id)
		}
	}
}

func (s *sessionStore) evictOldestLocked() {
	var oldest *session
	for _, sess := range s.items {
		if oldest == nil || sess.lastSeen.Before(oldest.lastSeen) {
			oldest = sess
		}
	}
	if oldest != nil {
		delete(s.items, oldest.id)
	}
}
