package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hanyusok/docplus-dev/internal/domain"
)

type fakeConn struct {
	id string

	mu     sync.Mutex
	events []Event
	closed bool
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: id} }

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) count(typ string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, ev := range c.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func (c *fakeConn) last(typ string) (Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.events) - 1; i >= 0; i-- {
		if c.events[i].Type == typ {
			return c.events[i], true
		}
	}
	return Event{}, false
}

func (c *fakeConn) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestManager(t *testing.T, rs domain.RoomSettings) (*Manager, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	m := NewManager(Options{
		Settings:   StaticSettings{Default: rs},
		EmptyGrace: time.Minute,
		Now:        clock.Now,
	})
	t.Cleanup(m.Close)
	return m, clock
}

func participant(id string, role domain.Role, connID string) domain.Participant {
	return domain.Participant{
		ConnID:      connID,
		UserID:      id,
		DisplayName: "User " + id,
		Role:        role,
	}
}

func mustJoin(t *testing.T, m *Manager, roomID, userID string, role domain.Role) (*Handle, *fakeConn) {
	t.Helper()
	conn := newFakeConn("c-" + userID)
	h, err := m.Join(context.Background(), roomID, participant(userID, role, conn.ID()), conn)
	if err != nil {
		t.Fatalf("join %s: %v", userID, err)
	}
	return h, conn
}

func mustEnqueue(t *testing.T, m *Manager, roomID, userID string) (int, *fakeConn) {
	t.Helper()
	conn := newFakeConn("c-" + userID)
	pos, err := m.Enqueue(context.Background(), roomID, participant(userID, domain.RolePatient, conn.ID()), conn)
	if err != nil {
		t.Fatalf("enqueue %s: %v", userID, err)
	}
	return pos, conn
}

func gatedSettings() domain.RoomSettings {
	rs := domain.DefaultRoomSettings()
	rs.WaitingRoomEnabled = true
	return rs
}
