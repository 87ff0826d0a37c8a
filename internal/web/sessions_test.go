package web

import (
	"testing"
	"time"

	"github.com/kingrea/thinkpilot/internal/task"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func TestSessionStoreExpiresIdleSessions(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1730000000, 0)}
	store := newSessionStore(time.Minute, 10, func() *task.Board { return task.NewBoard() }, clock.Now)
	sess := store.create()
	clock.now = clock.now.Add(30 * time.Second)
	if _, ok := store.get(sess.id); !ok {
		t.Fatalf("session expired too early")
	}
	clock.now = clock.now.Add(61 * time.Second)
	if _, ok := store.get(sess.id); ok {
		t.Fatalf("idle session still alive")
	}
	if store.len() != 0 {
		t.Fatalf("expired session not removed")
	}
}

func TestSessionStoreExpireSweep(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1730000000, 0)}
	store := newSessionStore(time.Minute, 10, func() *task.Board { return task.NewBoard() }, clock.Now)
	store.create()
	store.create()
	clock.now = clock.now.Add(2 * time.Minute)
	fresh := store.create()
	if n := store.expire(); n != 0 {
		t.Fatalf("create should already have swept, expire removed %d", n)
	}
	if store.len() != 1 {
		t.Fatalf("len = %d, want 1", store.len())
	}
	clock.now = clock.now.Add(2 * time.Minute)
	if n := store.expire(); n != 1 {
		t.Fatalf("expire removed %d, want 1", n)
	}
	if _, ok := store.get(fresh.id); ok {
		t.Fatalf("swept session still reachable")
	}
}

func TestSessionStoreEvictsOldestWhenFull(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1730000000, 0)}
	store := newSessionStore(time.Hour, 2, func() *task.Board { return task.NewBoard() }, clock.Now)
	first := store.create()
	clock.now = clock.now.Add(time.Second)
	second := store.create()
	clock.now = clock.now.Add(time.Second)
	if _, ok := store.get(first.id); !ok {
		t.Fatalf("first session missing")
	}
	clock.now = clock.now.Add(time.Second)
	third := store.create()
	if store.len() != 2 {
		t.Fatalf("len = %d, want 2", store.len())
	}
	if _, ok := store.get(second.id); ok {
		t.Fatalf("least recently seen session should be evicted")
	}
	for _, id := range []string{first.id, third.id} {
		if _, ok := store.get(id); !ok {
			t.Fatalf("session %s evicted unexpectedly", id)
		}
	}
}

func TestSessionFlashIsTakenOnce(t *testing.T) {
	sess := &session{}
	sess.setFlash("hello")
	if got := sess.takeFlash(); got != "hello" {
		t.Fatalf("flash = %q", got)
	}
	if got := sess.takeFlash(); got != "" {
		t.Fatalf("flash repeated: %q", got)
	}
}
