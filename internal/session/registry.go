package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hanyusok/docplus-dev/internal/domain"
)

// Handle binds one connection to the room it joined.
type Handle struct {
	RoomID        string
	ParticipantID string
	ConnID        string

	// Waiting is set when the join was routed into the waiting-room queue.
	Waiting  bool
	Position int

	m *Manager
}

// Leave runs the explicit leave path for this handle. Like Disconnect it only
// touches the participant while this connection is still bound to it, so a
// superseded connection cannot evict its replacement.
func (h *Handle) Leave() {
	if h == nil {
		return
	}
	h.m.leave(h.RoomID, h.ParticipantID, h.ConnID)
}

// Disconnect runs the cleanup path tied to this handle's connection only.
func (h *Handle) Disconnect() {
	if h == nil {
		return
	}
	h.m.Disconnect(h.RoomID, h.ParticipantID, h.ConnID)
}

// Bind returns a handle for a participant placed by Enqueue.
func (m *Manager) Bind(roomID, participantID, connID string) *Handle {
	return &Handle{RoomID: roomID, ParticipantID: participantID, ConnID: connID, m: m}
}

// Join adds p to the room's active set, creating the room on first use.
// A gated room sends non-host participants without an admission pass to the waiting room instead.
func (m *Manager) Join(ctx context.Context, roomID string, p domain.Participant, conn Conn) (*Handle, error) {
	if roomID == "" || p.UserID == "" {
		return nil, fmt.Errorf("join: %w", domain.ErrInvalidMessage)
	}
	r, err := m.acquire(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("join %s: %w", roomID, err)
	}
	defer r.mu.Unlock()

	h := &Handle{RoomID: roomID, ParticipantID: p.UserID, ConnID: conn.ID(), m: m}

	if _, admitted := r.passes[p.UserID]; r.settings.WaitingRoomEnabled && !p.IsHost() && !admitted {
		if _, active := r.active[p.UserID]; !active {
			h.Waiting = true
			h.Position = r.enqueueLocked(p, conn)
			return h, nil
		}
	}

	if err := r.addActiveLocked(p, conn); err != nil {
		r.markEmptyLocked()
		return nil, fmt.Errorf("join %s: %w", roomID, err)
	}
	slog.Info("session joined", "room", roomID, "user", p.UserID, "role", p.Role, "conn", conn.ID())
	return h, nil
}

// Leave removes the participant from whichever set holds it. Unknown rooms and
// participants are a no-op, so repeating a leave never broadcasts twice.
func (m *Manager) Leave(roomID, participantID string) {
	m.leave(roomID, participantID, "")
}

// Disconnect is Leave restricted to the connection that is still bound to the
// participant; a superseded connection closing late changes nothing.
func (m *Manager) Disconnect(roomID, participantID, connID string) {
	m.leave(roomID, participantID, connID)
}

func (m *Manager) leave(roomID, participantID, connID string) {
	r := m.lookup(roomID)
	if r == nil {
		return
	}
	defer r.mu.Unlock()

	if mb, ok := r.active[participantID]; ok && (connID == "" || mb.conn.ID() == connID) {
		r.removeActiveLocked(participantID)
		slog.Info("session left", "room", roomID, "user", participantID)
		return
	}

	if i := r.waitingIndex(participantID); i >= 0 && (connID == "" || r.queue[i].conn.ID() == connID) {
		r.dequeueLocked(i, domain.WaitingStatusLeft)
		r.audienceLocked(Event{Type: EventParticipantLeftWaiting, Payload: LeftWaitingPayload{
			SessionID: roomID,
			UserID:    participantID,
		}}, participantID)
		r.broadcastQueueLocked()
		slog.Info("waiting room left", "room", roomID, "user", participantID)
	}
}
