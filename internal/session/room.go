package session

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hanyusok/docplus-dev/internal/domain"
)

type member struct {
	p    domain.Participant
	conn Conn
}

type waiter struct {
	entry domain.WaitingEntry
	conn  Conn
}

// room is guarded by mu; every method with the Locked suffix expects it held.
type room struct {
	mu sync.Mutex

	id       string
	settings domain.RoomSettings
	now      func() time.Time

	active map[string]*member // userID -> member
	queue  []*waiter          // ordered by arrival
	passes map[string]struct{}

	recording  bool
	createdAt  time.Time
	emptySince time.Time
	disposed   bool
}

func newRoom(id string, settings domain.RoomSettings, now func() time.Time) *room {
	t := now()
	return &room{
		id:         id,
		settings:   settings,
		now:        now,
		active:     make(map[string]*member),
		passes:     make(map[string]struct{}),
		createdAt:  t,
		emptySince: t,
	}
}

func (r *room) isEmpty() bool {
	return len(r.active) == 0 && len(r.queue) == 0
}

func (r *room) markEmptyLocked() {
	if r.isEmpty() {
		if r.emptySince.IsZero() {
			r.emptySince = r.now()
		}
		return
	}
	r.emptySince = time.Time{}
}

// members returns active members ordered by join time.
func (r *room) members() []*member {
	out := make([]*member, 0, len(r.active))
	for _, m := range r.active {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].p.JoinedAt.Equal(out[j].p.JoinedAt) {
			return out[i].p.UserID < out[j].p.UserID
		}
		return out[i].p.JoinedAt.Before(out[j].p.JoinedAt)
	})
	return out
}

func (r *room) waitingIndex(userID string) int {
	for i, w := range r.queue {
		if w.entry.Participant.UserID == userID {
			return i
		}
	}
	return -1
}

func (r *room) full() bool {
	return r.settings.MaxParticipants > 0 && len(r.active) >= r.settings.MaxParticipants
}

// send is best-effort; a failing connection is closed by its own transport.
func (r *room) send(c Conn, ev Event) {
	if err := c.Send(ev); err != nil {
		slog.Debug("session send dropped", "room", r.id, "conn", c.ID(), "event", ev.Type, "err", err)
	}
}

func (r *room) broadcastLocked(ev Event, excludeID string) int {
	n := 0
	for _, m := range r.members() {
		if m.p.UserID == excludeID {
			continue
		}
		r.send(m.conn, ev)
		n++
	}
	return n
}

// audienceLocked is everyone who watches the waiting room: waiting entries and active hosts.
func (r *room) audienceLocked(ev Event, excludeID string) {
	for _, w := range r.queue {
		if w.entry.Participant.UserID != excludeID {
			r.send(w.conn, ev)
		}
	}
	for _, m := range r.members() {
		if m.p.IsHost() && m.p.UserID != excludeID {
			r.send(m.conn, ev)
		}
	}
}

func participantItem(p domain.Participant) ParticipantItem {
	return ParticipantItem{
		UserID:        p.UserID,
		Name:          p.DisplayName,
		UserType:      string(p.Role),
		IsMuted:       p.Muted,
		IsScreenShare: p.ScreenSharing,
		JoinedAt:      isoTime(p.JoinedAt),
	}
}

func (r *room) peerPayload(p domain.Participant, connID string) PeerPayload {
	return PeerPayload{
		SessionID: r.id,
		UserID:    p.UserID,
		UserName:  p.DisplayName,
		UserType:  string(p.Role),
		SocketID:  connID,
	}
}

// addActiveLocked places p in the active set, superseding an older connection of the same user.
func (r *room) addActiveLocked(p domain.Participant, conn Conn) error {
	p.ConnID = conn.ID()
	if p.JoinedAt.IsZero() {
		p.JoinedAt = r.now()
	}
	if old, ok := r.active[p.UserID]; ok {
		if old.conn.ID() == conn.ID() {
			// повторный join с того же соединения: только снапшот
			r.sendJoinedLocked(old.p, conn)
			return nil
		}
		r.supersedeLocked(old.conn)
		delete(r.active, p.UserID)
		r.broadcastLocked(Event{Type: EventUserLeft, Payload: r.peerPayload(old.p, old.conn.ID())}, p.UserID)
	} else if r.full() {
		return domain.ErrRoomFull
	}

	if i := r.waitingIndex(p.UserID); i >= 0 {
		w := r.dequeueLocked(i, domain.WaitingStatusLeft)
		if w.conn.ID() != conn.ID() {
			r.supersedeLocked(w.conn)
		}
		r.audienceLocked(Event{Type: EventParticipantLeftWaiting, Payload: LeftWaitingPayload{
			SessionID: r.id,
			UserID:    p.UserID,
		}}, p.UserID)
		defer r.broadcastQueueLocked()
	}

	r.active[p.UserID] = &member{p: p, conn: conn}
	r.markEmptyLocked()

	r.sendJoinedLocked(p, conn)
	r.broadcastLocked(Event{Type: EventUserJoined, Payload: r.peerPayload(p, conn.ID())}, p.UserID)
	return nil
}

func (r *room) sendJoinedLocked(p domain.Participant, conn Conn) {
	others := make([]ParticipantItem, 0, len(r.active))
	for _, m := range r.members() {
		if m.p.UserID != p.UserID {
			others = append(others, participantItem(m.p))
		}
	}
	r.send(conn, Event{Type: EventSessionJoined, Payload: SessionJoinedPayload{
		SessionID:    r.id,
		UserID:       p.UserID,
		IsHost:       p.IsHost(),
		Recording:    r.recording,
		Participants: others,
	}})
}

// removeActiveLocked drops an active member and notifies the rest of the room.
func (r *room) removeActiveLocked(userID string) (*member, bool) {
	m, ok := r.active[userID]
	if !ok {
		return nil, false
	}
	delete(r.active, userID)
	r.broadcastLocked(Event{Type: EventUserLeft, Payload: r.peerPayload(m.p, m.conn.ID())}, userID)
	r.markEmptyLocked()
	return m, true
}

func (r *room) dequeueLocked(i int, status domain.WaitingStatus) *waiter {
	w := r.queue[i]
	r.queue = append(r.queue[:i], r.queue[i+1:]...)
	w.entry.Status = status
	r.markEmptyLocked()
	return w
}

func (r *room) supersedeLocked(old Conn) {
	r.send(old, Event{Type: EventError, Payload: ErrorPayload{
		Code:    "superseded",
		Message: "session opened from another connection",
	}})
	_ = old.Close()
}

func (r *room) shutdownLocked(reason string) {
	ev := Event{Type: EventError, Payload: ErrorPayload{Code: "session-closed", Message: reason}}
	for _, m := range r.active {
		r.send(m.conn, ev)
		_ = m.conn.Close()
	}
	for _, w := range r.queue {
		w.entry.Status = domain.WaitingStatusRemoved
		r.send(w.conn, ev)
		_ = w.conn.Close()
	}
	r.active = make(map[string]*member)
	r.queue = nil
	r.passes = make(map[string]struct{})
	r.disposed = true
}

func (r *room) estimateMinutes(position int) int {
	d := time.Duration(position) * r.settings.AvgSessionDuration
	return int(d.Round(time.Minute) / time.Minute)
}

func (r *room) waitingListLocked() []WaitingParticipant {
	out := make([]WaitingParticipant, 0, len(r.queue))
	for i, w := range r.queue {
		p := w.entry.Participant
		out = append(out, WaitingParticipant{
			ID:            p.UserID,
			Name:          p.DisplayName,
			UserType:      string(p.Role),
			JoinTime:      isoTime(w.entry.JoinedAt),
			Position:      i + 1,
			EstimatedWait: r.estimateMinutes(i + 1),
			Priority:      w.entry.Priority,
			Status:        string(w.entry.Status),
		})
	}
	return out
}

// infoLocked builds the waiting-room info for a queue position; 0 means a host view.
func (r *room) infoLocked(position int) WaitingRoomInfo {
	eta := r.estimateMinutes(position)
	if position == 0 {
		eta = r.estimateMinutes(len(r.queue))
	}
	return WaitingRoomInfo{
		CurrentQueue:      len(r.queue),
		Position:          position,
		EstimatedWaitTime: eta,
		CustomMessage:     r.settings.CustomMessage,
		AllowChat:         r.settings.AllowChat,
		AllowVideo:        r.settings.AllowVideo,
		AllowAudio:        r.settings.AllowAudio,
	}
}

// broadcastQueueLocked pushes the ordered queue to every waiting entry and active host.
// Every queue mutation must end with it.
func (r *room) broadcastQueueLocked() {
	list := r.waitingListLocked()
	for i, w := range r.queue {
		r.send(w.conn, Event{Type: EventWaitingRoomUpdated, Payload: WaitingRoomUpdate{
			WaitingRoomInfo: r.infoLocked(i + 1),
			SessionID:       r.id,
			Participants:    list,
		}})
	}
	for _, m := range r.members() {
		if !m.p.IsHost() {
			continue
		}
		r.send(m.conn, Event{Type: EventWaitingRoomUpdated, Payload: WaitingRoomUpdate{
			WaitingRoomInfo: r.infoLocked(0),
			SessionID:       r.id,
			Participants:    list,
		}})
	}
}
