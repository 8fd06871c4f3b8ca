package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hanyusok/docplus-dev/internal/domain"
)

// Enqueue places p in the room's waiting queue and returns its 1-based position.
// Host-capable participants never queue: they join the active set and get the
// host view of the waiting room (position 0).
func (m *Manager) Enqueue(ctx context.Context, roomID string, p domain.Participant, conn Conn) (int, error) {
	if roomID == "" || p.UserID == "" {
		return 0, fmt.Errorf("enqueue: %w", domain.ErrInvalidMessage)
	}
	r, err := m.acquire(ctx, roomID)
	if err != nil {
		return 0, fmt.Errorf("enqueue %s: %w", roomID, err)
	}
	defer r.mu.Unlock()

	if p.IsHost() {
		if err := r.addActiveLocked(p, conn); err != nil {
			r.markEmptyLocked()
			return 0, fmt.Errorf("enqueue %s: %w", roomID, err)
		}
		r.send(conn, Event{Type: EventWaitingRoomJoined, Payload: WaitingRoomJoinedPayload{
			SessionID:       roomID,
			IsHost:          true,
			Participants:    r.waitingListLocked(),
			WaitingRoomInfo: r.infoLocked(0),
		}})
		return 0, nil
	}

	// участник уже в комнате: возвращаем его в очередь
	if _, ok := r.active[p.UserID]; ok {
		r.removeActiveLocked(p.UserID)
	}
	return r.enqueueLocked(p, conn), nil
}

func (r *room) enqueueLocked(p domain.Participant, conn Conn) int {
	if i := r.waitingIndex(p.UserID); i >= 0 {
		w := r.queue[i]
		if w.conn.ID() != conn.ID() {
			r.supersedeLocked(w.conn)
			w.conn = conn
			w.entry.Participant.ConnID = conn.ID()
		}
		r.sendWaitingJoinedLocked(conn, i+1)
		r.broadcastQueueLocked()
		return i + 1
	}

	p.ConnID = conn.ID()
	w := &waiter{
		entry: domain.WaitingEntry{
			Participant: p,
			JoinedAt:    r.now(),
			Status:      domain.WaitingStatusWaiting,
		},
		conn: conn,
	}
	r.queue = append(r.queue, w)
	r.markEmptyLocked()
	pos := len(r.queue)

	r.sendWaitingJoinedLocked(conn, pos)
	list := r.waitingListLocked()
	r.audienceLocked(Event{Type: EventParticipantJoinedWaiting, Payload: list[pos-1]}, p.UserID)
	r.broadcastQueueLocked()

	slog.Info("waiting room joined", "room", r.id, "user", p.UserID, "position", pos)
	return pos
}

func (r *room) sendWaitingJoinedLocked(conn Conn, position int) {
	r.send(conn, Event{Type: EventWaitingRoomJoined, Payload: WaitingRoomJoinedPayload{
		SessionID:       r.id,
		Position:        position,
		Participants:    r.waitingListLocked(),
		WaitingRoomInfo: r.infoLocked(position),
	}})
}

// hostLocked reports whether userID is an active host-capable participant.
func (r *room) hostLocked(userID string) bool {
	m, ok := r.active[userID]
	return ok && m.p.IsHost()
}

// Admit moves a waiting participant into the active set on its current
// connection and grants it an admission pass for later rejoins.
func (m *Manager) Admit(roomID, actorID, participantID string) error {
	r := m.lookup(roomID)
	if r == nil {
		return domain.ErrRoomNotFound
	}
	defer r.mu.Unlock()

	if !r.hostLocked(actorID) {
		return fmt.Errorf("admit %s: %w", participantID, domain.ErrUnauthorized)
	}
	i := r.waitingIndex(participantID)
	if i < 0 {
		return fmt.Errorf("admit %s: %w", participantID, domain.ErrNotWaiting)
	}
	if r.full() {
		return fmt.Errorf("admit %s: %w", participantID, domain.ErrRoomFull)
	}

	w := r.dequeueLocked(i, domain.WaitingStatusAdmitted)
	r.passes[participantID] = struct{}{}

	admitted := Event{Type: EventParticipantAdmitted, Payload: AdmittedPayload{
		SessionID:  roomID,
		UserID:     participantID,
		AdmittedBy: actorID,
	}}
	r.send(w.conn, admitted)
	r.audienceLocked(admitted, participantID)

	p := w.entry.Participant
	p.JoinedAt = r.now()
	if err := r.addActiveLocked(p, w.conn); err != nil {
		// full() проверен выше под той же блокировкой
		return fmt.Errorf("admit %s: %w", participantID, err)
	}
	r.broadcastQueueLocked()

	slog.Info("waiting room admitted", "room", roomID, "user", participantID, "by", actorID)
	return nil
}

// Remove takes a participant out of the waiting queue without admitting it.
func (m *Manager) Remove(roomID, actorID, participantID string) error {
	r := m.lookup(roomID)
	if r == nil {
		return domain.ErrRoomNotFound
	}
	defer r.mu.Unlock()

	if !r.hostLocked(actorID) {
		return fmt.Errorf("remove %s: %w", participantID, domain.ErrUnauthorized)
	}
	i := r.waitingIndex(participantID)
	if i < 0 {
		return fmt.Errorf("remove %s: %w", participantID, domain.ErrNotWaiting)
	}

	w := r.dequeueLocked(i, domain.WaitingStatusRemoved)
	r.send(w.conn, Event{Type: EventUserRemoved, Payload: RemovedPayload{
		SessionID: roomID,
		UserID:    participantID,
		Reason:    "waiting-room",
		RemovedBy: actorID,
	}})
	r.audienceLocked(Event{Type: EventParticipantLeftWaiting, Payload: LeftWaitingPayload{
		SessionID: roomID,
		UserID:    participantID,
		Reason:    "removed",
	}}, participantID)
	r.broadcastQueueLocked()

	slog.Info("waiting room removed", "room", roomID, "user", participantID, "by", actorID)
	return nil
}

// SendWaitingMessage posts a chat line to the waiting-room audience, sender included.
func (m *Manager) SendWaitingMessage(roomID, senderID, text string) error {
	r := m.lookup(roomID)
	if r == nil {
		return domain.ErrRoomNotFound
	}
	defer r.mu.Unlock()

	var sender domain.Participant
	if i := r.waitingIndex(senderID); i >= 0 {
		sender = r.queue[i].entry.Participant
	} else if mb, ok := r.active[senderID]; ok && mb.p.IsHost() {
		sender = mb.p
	} else {
		return fmt.Errorf("waiting message: %w", domain.ErrNotInRoom)
	}
	if !r.settings.AllowChat {
		return fmt.Errorf("waiting message: %w", domain.ErrFeatureDisabled)
	}
	if err := validateChat(text); err != nil {
		return fmt.Errorf("waiting message: %w", err)
	}

	r.audienceLocked(Event{Type: EventWaitingRoomMessage, Payload: ChatPayload{
		Message:   text,
		UserID:    sender.UserID,
		UserName:  sender.DisplayName,
		Timestamp: isoTime(r.now()),
	}}, "")
	return nil
}

// WaitingRoom returns the host view of the queue.
func (m *Manager) WaitingRoom(roomID string) (WaitingRoomUpdate, error) {
	r := m.lookup(roomID)
	if r == nil {
		return WaitingRoomUpdate{}, domain.ErrRoomNotFound
	}
	defer r.mu.Unlock()

	return WaitingRoomUpdate{
		WaitingRoomInfo: r.infoLocked(0),
		SessionID:       r.id,
		Participants:    r.waitingListLocked(),
	}, nil
}
