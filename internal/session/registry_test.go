package session

import (
	"context"
	"errors"
	"testing"

	"github.com/hanyusok/docplus-dev/internal/domain"
)

func TestJoin_SnapshotAndUserJoined(t *testing.T) {
	m, _ := newTestManager(t, domain.DefaultRoomSettings())

	_, doc := mustJoin(t, m, "s1", "doc", domain.RoleDoctor)
	_, pat := mustJoin(t, m, "s1", "pat", domain.RolePatient)

	ev, ok := doc.last(EventUserJoined)
	if !ok {
		t.Fatalf("doctor did not receive user-joined")
	}
	if p := ev.Payload.(PeerPayload); p.UserID != "pat" || p.SessionID != "s1" || p.SocketID != "c-pat" {
		t.Fatalf("unexpected user-joined payload: %+v", p)
	}

	ev, ok = pat.last(EventSessionJoined)
	if !ok {
		t.Fatalf("joiner did not receive session-joined")
	}
	snap := ev.Payload.(SessionJoinedPayload)
	if snap.IsHost {
		t.Fatalf("patient must not be host")
	}
	if len(snap.Participants) != 1 || snap.Participants[0].UserID != "doc" {
		t.Fatalf("snapshot must list the doctor only, got %+v", snap.Participants)
	}
	if pat.count(EventUserJoined) != 0 {
		t.Fatalf("joiner must not see its own user-joined")
	}
}

func TestJoin_RoomFull(t *testing.T) {
	rs := domain.DefaultRoomSettings()
	rs.MaxParticipants = 1
	m, _ := newTestManager(t, rs)

	mustJoin(t, m, "s1", "a", domain.RoleDoctor)

	conn := newFakeConn("c-b")
	_, err := m.Join(context.Background(), "s1", participant("b", domain.RolePatient, conn.ID()), conn)
	if !errors.Is(err, domain.ErrRoomFull) {
		t.Fatalf("expected ErrRoomFull, got %v", err)
	}
	snap, err := m.Snapshot("s1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Active) != 1 {
		t.Fatalf("rejected join must not change the room, active=%d", len(snap.Active))
	}
}

func TestJoin_InvalidInput(t *testing.T) {
	m, _ := newTestManager(t, domain.DefaultRoomSettings())
	conn := newFakeConn("c")
	if _, err := m.Join(context.Background(), "", participant("a", domain.RolePatient, "c"), conn); !errors.Is(err, domain.ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage, got %v", err)
	}
}

func TestJoin_SameConnectionTwiceIsQuiet(t *testing.T) {
	m, _ := newTestManager(t, domain.DefaultRoomSettings())

	_, doc := mustJoin(t, m, "s1", "doc", domain.RoleDoctor)
	h, pat := mustJoin(t, m, "s1", "pat", domain.RolePatient)
	doc.reset()

	if _, err := m.Join(context.Background(), "s1", participant("pat", domain.RolePatient, pat.ID()), pat); err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if doc.total() != 0 {
		t.Fatalf("rejoin on the same connection must not notify others, got %d events", doc.total())
	}
	if pat.count(EventSessionJoined) != 2 {
		t.Fatalf("joiner should get a fresh snapshot")
	}
	h.Leave()
}

func TestJoin_GatedRoomRoutesToQueue(t *testing.T) {
	m, _ := newTestManager(t, gatedSettings())

	_, doc := mustJoin(t, m, "s1", "doc", domain.RoleDoctor)
	h, pat := mustJoin(t, m, "s1", "pat", domain.RolePatient)

	if !h.Waiting || h.Position != 1 {
		t.Fatalf("expected waiting at position 1, got waiting=%v pos=%d", h.Waiting, h.Position)
	}
	if pat.count(EventWaitingRoomJoined) != 1 {
		t.Fatalf("patient did not get waiting-room-joined")
	}
	if doc.count(EventUserJoined) != 0 {
		t.Fatalf("queued patient must not be announced to the room")
	}
	if doc.count(EventParticipantJoinedWaiting) != 1 {
		t.Fatalf("host must see participant-joined-waiting")
	}
}

func TestLeave_Idempotent(t *testing.T) {
	m, _ := newTestManager(t, domain.DefaultRoomSettings())

	_, doc := mustJoin(t, m, "s1", "doc", domain.RoleDoctor)
	mustJoin(t, m, "s1", "pat", domain.RolePatient)

	m.Leave("s1", "pat")
	m.Leave("s1", "pat")
	m.Leave("nope", "pat")

	if n := doc.count(EventUserLeft); n != 1 {
		t.Fatalf("expected exactly one user-left, got %d", n)
	}
}

func TestLeave_WaitingEntry(t *testing.T) {
	m, _ := newTestManager(t, gatedSettings())

	_, doc := mustJoin(t, m, "s1", "doc", domain.RoleDoctor)
	mustEnqueue(t, m, "s1", "p1")
	_, p2 := mustEnqueue(t, m, "s1", "p2")

	m.Leave("s1", "p1")

	if doc.count(EventParticipantLeftWaiting) != 1 || p2.count(EventParticipantLeftWaiting) != 1 {
		t.Fatalf("audience must see participant-left-waiting")
	}
	ev, _ := p2.last(EventWaitingRoomUpdated)
	if upd := ev.Payload.(WaitingRoomUpdate); upd.Position != 1 || upd.CurrentQueue != 1 {
		t.Fatalf("p2 should move to position 1, got %+v", upd.WaitingRoomInfo)
	}
}

func TestSupersede_KeepsUniqueness(t *testing.T) {
	m, _ := newTestManager(t, domain.DefaultRoomSettings())

	_, doc := mustJoin(t, m, "s1", "doc", domain.RoleDoctor)
	old, first := mustJoin(t, m, "s1", "pat", domain.RolePatient)

	second := newFakeConn("c-pat-2")
	if _, err := m.Join(context.Background(), "s1", participant("pat", domain.RolePatient, second.ID()), second); err != nil {
		t.Fatalf("second join: %v", err)
	}

	if !first.isClosed() {
		t.Fatalf("superseded connection must be closed")
	}
	ev, ok := first.last(EventError)
	if !ok || ev.Payload.(ErrorPayload).Code != "superseded" {
		t.Fatalf("superseded connection must be told why, got %+v", ev)
	}

	// late disconnect of the old connection must not evict the new one
	old.Disconnect()

	snap, err := m.Snapshot("s1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Active) != 2 {
		t.Fatalf("expected doc and pat active, got %d", len(snap.Active))
	}
	for _, p := range snap.Active {
		if p.UserID == "pat" && p.ConnID != second.ID() {
			t.Fatalf("pat must be bound to the new connection, got %s", p.ConnID)
		}
	}
	if doc.count(EventUserLeft) != 1 || doc.count(EventUserJoined) != 2 {
		t.Fatalf("doctor should see the old binding leave and the new one join")
	}
}

func TestSupersede_StaleHandleLeaveKeepsReplacement(t *testing.T) {
	m, _ := newTestManager(t, domain.DefaultRoomSettings())

	_, doc := mustJoin(t, m, "s1", "doc", domain.RoleDoctor)
	old, _ := mustJoin(t, m, "s1", "pat", domain.RolePatient)

	second := newFakeConn("c-pat-2")
	h, err := m.Join(context.Background(), "s1", participant("pat", domain.RolePatient, second.ID()), second)
	if err != nil {
		t.Fatalf("second join: %v", err)
	}
	doc.reset()

	// кадр leave-session, оставшийся в буфере старого соединения
	old.Leave()

	snap, err := m.Snapshot("s1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Active) != 2 {
		t.Fatalf("stale leave evicted the replacement, active=%d", len(snap.Active))
	}
	if doc.count(EventUserLeft) != 0 {
		t.Fatalf("stale leave must not broadcast user-left")
	}

	h.Leave()
	if snap, _ := m.Snapshot("s1"); len(snap.Active) != 1 {
		t.Fatalf("leave on the live handle must remove pat, active=%d", len(snap.Active))
	}
}

func TestSupersede_StaleWaitingHandleLeaveKeepsEntry(t *testing.T) {
	m, _ := newTestManager(t, gatedSettings())

	mustJoin(t, m, "s1", "doc", domain.RoleDoctor)
	old, _ := mustJoin(t, m, "s1", "pat", domain.RolePatient)

	second := newFakeConn("c-pat-2")
	if _, err := m.Join(context.Background(), "s1", participant("pat", domain.RolePatient, second.ID()), second); err != nil {
		t.Fatalf("second join: %v", err)
	}

	old.Leave()

	snap, _ := m.Snapshot("s1")
	if len(snap.Waiting) != 1 || snap.Waiting[0].Participant.ConnID != second.ID() {
		t.Fatalf("waiting entry must survive on the new connection, got %+v", snap.Waiting)
	}
}

func TestDisconnect_ConvergesToLeave(t *testing.T) {
	m, _ := newTestManager(t, domain.DefaultRoomSettings())

	_, doc := mustJoin(t, m, "s1", "doc", domain.RoleDoctor)
	h, _ := mustJoin(t, m, "s1", "pat", domain.RolePatient)

	h.Disconnect()

	snap, _ := m.Snapshot("s1")
	if len(snap.Active) != 1 {
		t.Fatalf("disconnect must remove the participant")
	}
	if doc.count(EventUserLeft) != 1 {
		t.Fatalf("disconnect must broadcast user-left like leave")
	}
}
