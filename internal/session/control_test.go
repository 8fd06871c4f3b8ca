package session

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hanyusok/docplus-dev/internal/domain"
)

func TestSendChat(t *testing.T) {
	m, clock := newTestManager(t, domain.DefaultRoomSettings())

	_, a := mustJoin(t, m, "s1", "a", domain.RoleDoctor)
	_, b := mustJoin(t, m, "s1", "b", domain.RolePatient)

	if err := m.SendChat("s1", "b", "good morning"); err != nil {
		t.Fatalf("chat: %v", err)
	}
	if b.count(EventNewMessage) != 0 {
		t.Fatalf("sender must not get its own message back")
	}
	ev, ok := a.last(EventNewMessage)
	if !ok {
		t.Fatalf("a did not get the message")
	}
	p := ev.Payload.(ChatPayload)
	if p.Message != "good morning" || p.UserID != "b" || p.UserName != "User b" {
		t.Fatalf("unexpected chat payload: %+v", p)
	}
	if want := clock.Now().Format("2006-01-02T15:04:05.000Z07:00"); p.Timestamp != want {
		t.Fatalf("timestamp = %q, want %q", p.Timestamp, want)
	}
	if _, err := time.Parse(time.RFC3339Nano, p.Timestamp); err != nil {
		t.Fatalf("timestamp is not ISO-8601: %v", err)
	}
}

func TestSendChat_Rejections(t *testing.T) {
	rs := domain.DefaultRoomSettings()
	rs.AllowChat = false
	m, _ := newTestManager(t, rs)
	_, b := mustJoin(t, m, "s1", "b", domain.RolePatient)
	mustJoin(t, m, "s1", "a", domain.RoleDoctor)

	if err := m.SendChat("s1", "a", "hi"); !errors.Is(err, domain.ErrFeatureDisabled) {
		t.Fatalf("expected ErrFeatureDisabled, got %v", err)
	}
	if b.count(EventNewMessage) != 0 {
		t.Fatalf("disabled chat must not deliver")
	}
	if err := m.SendChat("s1", "ghost", "hi"); !errors.Is(err, domain.ErrNotInRoom) {
		t.Fatalf("expected ErrNotInRoom, got %v", err)
	}

	m2, _ := newTestManager(t, domain.DefaultRoomSettings())
	mustJoin(t, m2, "s1", "a", domain.RoleDoctor)
	if err := m2.SendChat("s1", "a", strings.Repeat("x", maxChatLen+1)); !errors.Is(err, domain.ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage for long text, got %v", err)
	}
}

func TestSetScreenShare(t *testing.T) {
	m, _ := newTestManager(t, domain.DefaultRoomSettings())
	_, a := mustJoin(t, m, "s1", "a", domain.RoleDoctor)
	mustJoin(t, m, "s1", "b", domain.RolePatient)

	if err := m.SetScreenShare("s1", "b", true); err != nil {
		t.Fatalf("start: %v", err)
	}
	// repeated start is not re-announced
	if err := m.SetScreenShare("s1", "b", true); err != nil {
		t.Fatalf("repeat start: %v", err)
	}
	if err := m.SetScreenShare("s1", "b", false); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if a.count(EventScreenShareStarted) != 1 || a.count(EventScreenShareStopped) != 1 {
		t.Fatalf("expected one start and one stop")
	}

	rs := domain.DefaultRoomSettings()
	rs.AllowScreenSharing = false
	m2, _ := newTestManager(t, rs)
	mustJoin(t, m2, "s1", "b", domain.RolePatient)
	if err := m2.SetScreenShare("s1", "b", true); !errors.Is(err, domain.ErrFeatureDisabled) {
		t.Fatalf("expected ErrFeatureDisabled, got %v", err)
	}
}

func TestSetRecording_HostOnly(t *testing.T) {
	m, _ := newTestManager(t, domain.DefaultRoomSettings())
	mustJoin(t, m, "s1", "doc", domain.RoleDoctor)
	_, pat := mustJoin(t, m, "s1", "pat", domain.RolePatient)

	if err := m.SetRecording("s1", "pat", true); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := m.SetRecording("s1", "doc", true); err != nil {
		t.Fatalf("start recording: %v", err)
	}
	ev, ok := pat.last(EventRecordingStarted)
	if !ok || ev.Payload.(UserFlagPayload).UserID != "doc" {
		t.Fatalf("patient must see recording-started from doc")
	}
	snap, _ := m.Snapshot("s1")
	if !snap.Recording {
		t.Fatalf("room should be recording")
	}
}

func TestMute(t *testing.T) {
	m, _ := newTestManager(t, domain.DefaultRoomSettings())
	_, doc := mustJoin(t, m, "s1", "doc", domain.RoleDoctor)
	_, a := mustJoin(t, m, "s1", "a", domain.RolePatient)
	mustJoin(t, m, "s1", "b", domain.RolePatient)

	if err := m.Mute("s1", "b", "a", true); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("patient muting another: expected ErrUnauthorized, got %v", err)
	}
	if a.count(EventUserMuted) != 0 {
		t.Fatalf("rejected mute must not broadcast")
	}

	if err := m.Mute("s1", "doc", "a", true); err != nil {
		t.Fatalf("host mute: %v", err)
	}
	ev, ok := a.last(EventUserMuted)
	if !ok {
		t.Fatalf("target must hear user-muted")
	}
	if p := ev.Payload.(MutedPayload); p.UserID != "a" || !p.Muted {
		t.Fatalf("unexpected payload: %+v", p)
	}

	if err := m.Mute("s1", "a", "a", false); err != nil {
		t.Fatalf("self unmute: %v", err)
	}
	if doc.count(EventUserMuted) != 1 {
		t.Fatalf("host must see the self unmute")
	}

	if err := m.Mute("s1", "doc", "ghost", true); !errors.Is(err, domain.ErrNotInRoom) {
		t.Fatalf("expected ErrNotInRoom, got %v", err)
	}
}

func TestRemoveUser(t *testing.T) {
	m, _ := newTestManager(t, gatedSettings())
	mustJoin(t, m, "s1", "doc", domain.RoleDoctor)
	mustEnqueue(t, m, "s1", "a")
	if err := m.Admit("s1", "doc", "a"); err != nil {
		t.Fatalf("admit: %v", err)
	}

	// a is active now on its waiting connection
	snap, _ := m.Snapshot("s1")
	var conn string
	for _, p := range snap.Active {
		if p.UserID == "a" {
			conn = p.ConnID
		}
	}
	if conn != "c-a" {
		t.Fatalf("admitted participant must keep its connection, got %q", conn)
	}

	if err := m.RemoveUser("s1", "a", "doc"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := m.RemoveUser("s1", "doc", "a"); err != nil {
		t.Fatalf("remove user: %v", err)
	}

	snap, _ = m.Snapshot("s1")
	if len(snap.Active) != 1 {
		t.Fatalf("a must be removed, active=%d", len(snap.Active))
	}

	// pass revoked: rejoining goes through the queue again
	h, _ := mustJoin(t, m, "s1", "a", domain.RolePatient)
	if !h.Waiting {
		t.Fatalf("removed participant must queue again")
	}
}

func TestRemoveUser_TargetIsNotified(t *testing.T) {
	m, _ := newTestManager(t, domain.DefaultRoomSettings())
	_, doc := mustJoin(t, m, "s1", "doc", domain.RoleDoctor)
	_, a := mustJoin(t, m, "s1", "a", domain.RolePatient)
	_, b := mustJoin(t, m, "s1", "b", domain.RolePatient)

	if err := m.RemoveUser("s1", "doc", "a"); err != nil {
		t.Fatalf("remove user: %v", err)
	}
	if a.count(EventUserRemoved) != 1 || b.count(EventUserRemoved) != 1 {
		t.Fatalf("target and the rest of the room must hear user-removed")
	}
	if doc.count(EventUserRemoved) != 0 {
		t.Fatalf("actor is excluded from the broadcast")
	}
	if b.count(EventUserLeft) != 1 {
		t.Fatalf("remaining members must see user-left")
	}
	if a.count(EventUserLeft) != 0 {
		t.Fatalf("removed participant is no longer a member")
	}
}

func TestBroadcast(t *testing.T) {
	m, _ := newTestManager(t, domain.DefaultRoomSettings())
	_, a := mustJoin(t, m, "s1", "a", domain.RoleDoctor)
	_, b := mustJoin(t, m, "s1", "b", domain.RolePatient)
	a.reset()
	b.reset()

	n := m.Broadcast("s1", Event{Type: "ping", Payload: nil}, "a")
	if n != 1 || a.total() != 0 || b.count("ping") != 1 {
		t.Fatalf("broadcast delivered to %d, a=%d b=%d", n, a.total(), b.total())
	}
	if m.Broadcast("missing", Event{Type: "ping"}, "") != 0 {
		t.Fatalf("broadcast to a missing room must be a no-op")
	}
}
