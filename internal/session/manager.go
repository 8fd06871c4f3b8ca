// Package session holds the in-memory state of live group sessions: the room
// registry, the signaling relay, the waiting-room queue and the control channel.
//
// Every room owns a mutex; all mutations of one room are serialized on it while
// unrelated rooms proceed independently. Fan-out happens under the room lock
// through non-blocking Conn.Send calls, so each recipient observes events in
// mutation order.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hanyusok/docplus-dev/internal/domain"
)

type Options struct {
	Settings SettingsProvider
	Defaults domain.RoomSettings

	// EmptyGrace is how long a room with no active or waiting participants survives.
	EmptyGrace time.Duration
	// SweepEvery is the janitor period used by Run.
	SweepEvery time.Duration

	Now func() time.Time
}

type Manager struct {
	mu     sync.RWMutex
	rooms  map[string]*room
	closed bool

	settings   SettingsProvider
	defaults   domain.RoomSettings
	emptyGrace time.Duration
	sweepEvery time.Duration
	now        func() time.Time
}

func NewManager(opts Options) *Manager {
	m := &Manager{
		rooms:      make(map[string]*room),
		settings:   opts.Settings,
		defaults:   opts.Defaults,
		emptyGrace: opts.EmptyGrace,
		sweepEvery: opts.SweepEvery,
		now:        opts.Now,
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.emptyGrace < 0 {
		m.emptyGrace = 0
	}
	if m.sweepEvery <= 0 {
		m.sweepEvery = 30 * time.Second
	}
	if m.defaults == (domain.RoomSettings{}) {
		m.defaults = domain.DefaultRoomSettings()
	}
	return m
}

// Run sweeps empty rooms until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				slog.Debug("session rooms disposed", "count", n)
			}
		}
	}
}

// Sweep disposes rooms that have been empty for at least the grace period.
// Candidates are picked under the read lock; each one is re-checked under its
// own mutex before removal, so joins never wait on more than one room.
func (m *Manager) Sweep() int {
	now := m.now()

	m.mu.RLock()
	rooms := make([]*room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.RUnlock()

	n := 0
	for _, r := range rooms {
		if m.disposeIfExpired(r, now) {
			n++
		}
	}
	return n
}

func (m *Manager) disposeIfExpired(r *room, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed || !r.isEmpty() || r.emptySince.IsZero() || now.Sub(r.emptySince) < m.emptyGrace {
		return false
	}
	r.disposed = true

	m.mu.Lock()
	if cur, ok := m.rooms[r.id]; ok && cur == r {
		delete(m.rooms, r.id)
	}
	m.mu.Unlock()
	return true
}

// Close detaches every connection and rejects further joins.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	rooms := m.rooms
	m.rooms = make(map[string]*room)
	m.mu.Unlock()

	for _, r := range rooms {
		r.mu.Lock()
		r.shutdownLocked("server shutting down")
		r.mu.Unlock()
	}
}

// CloseRoom forcibly disposes a room, telling every connection why.
func (m *Manager) CloseRoom(roomID string) error {
	m.mu.Lock()
	r, ok := m.rooms[roomID]
	if ok {
		delete(m.rooms, roomID)
	}
	m.mu.Unlock()
	if !ok {
		return domain.ErrRoomNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.shutdownLocked("session closed by administrator")
	return nil
}

// acquire returns the room locked, creating it when absent.
func (m *Manager) acquire(ctx context.Context, roomID string) (*room, error) {
	for {
		r, err := m.getOrCreate(ctx, roomID)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		if !r.disposed {
			return r, nil
		}
		// проиграли гонку с janitor: комнату уже удалили, создаём заново
		r.mu.Unlock()
	}
}

func (m *Manager) getOrCreate(ctx context.Context, roomID string) (*room, error) {
	m.mu.RLock()
	r, ok := m.rooms[roomID]
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return nil, domain.ErrManagerClosed
	}
	if ok {
		return r, nil
	}

	settings := m.loadSettings(ctx, roomID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, domain.ErrManagerClosed
	}
	if r, ok := m.rooms[roomID]; ok {
		return r, nil
	}
	r = newRoom(roomID, settings, m.now)
	m.rooms[roomID] = r
	slog.Debug("session room created", "room", roomID, "waiting_room", settings.WaitingRoomEnabled)
	return r, nil
}

func (m *Manager) loadSettings(ctx context.Context, roomID string) domain.RoomSettings {
	if m.settings == nil {
		return m.defaults
	}
	rs, err := m.settings.RoomSettings(ctx, roomID)
	if err != nil {
		if !errors.Is(err, domain.ErrRoomNotFound) {
			slog.Warn("session settings lookup failed, using defaults", "room", roomID, "err", err)
		}
		return m.defaults
	}
	return rs
}

// lookup returns an existing room locked, or nil.
func (m *Manager) lookup(roomID string) *room {
	m.mu.RLock()
	r, ok := m.rooms[roomID]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return nil
	}
	return r
}

type RoomSummary struct {
	ID         string
	Active     int
	Waiting    int
	Recording  bool
	CreatedAt  time.Time
	EmptySince time.Time
}

func (m *Manager) Rooms() []RoomSummary {
	m.mu.RLock()
	rooms := make([]*room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.RUnlock()

	out := make([]RoomSummary, 0, len(rooms))
	for _, r := range rooms {
		r.mu.Lock()
		if !r.disposed {
			out = append(out, RoomSummary{
				ID:         r.id,
				Active:     len(r.active),
				Waiting:    len(r.queue),
				Recording:  r.recording,
				CreatedAt:  r.createdAt,
				EmptySince: r.emptySince,
			})
		}
		r.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Manager) Snapshot(roomID string) (domain.RoomSnapshot, error) {
	r := m.lookup(roomID)
	if r == nil {
		return domain.RoomSnapshot{}, domain.ErrRoomNotFound
	}
	defer r.mu.Unlock()

	snap := domain.RoomSnapshot{
		ID:         r.id,
		Settings:   r.settings,
		Active:     make([]domain.Participant, 0, len(r.active)),
		Waiting:    make([]domain.WaitingEntry, 0, len(r.queue)),
		Recording:  r.recording,
		CreatedAt:  r.createdAt,
		EmptySince: r.emptySince,
	}
	for _, mb := range r.members() {
		snap.Active = append(snap.Active, mb.p)
	}
	for _, w := range r.queue {
		snap.Waiting = append(snap.Waiting, w.entry)
	}
	return snap, nil
}
