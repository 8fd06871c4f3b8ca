package session

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/hanyusok/docplus-dev/internal/domain"
)

const maxChatLen = 4000

func validateChat(text string) error {
	if strings.TrimSpace(text) == "" {
		return domain.ErrInvalidMessage
	}
	if utf8.RuneCountInString(text) > maxChatLen {
		return domain.ErrInvalidMessage
	}
	return nil
}

// Broadcast delivers ev to every active participant of the room except excludeID
// and returns the number of recipients.
func (m *Manager) Broadcast(roomID string, ev Event, excludeID string) int {
	r := m.lookup(roomID)
	if r == nil {
		return 0
	}
	defer r.mu.Unlock()
	return r.broadcastLocked(ev, excludeID)
}

// activeLocked returns the active member for userID or ErrNotInRoom.
func (r *room) activeLocked(userID string) (*member, error) {
	mb, ok := r.active[userID]
	if !ok {
		return nil, domain.ErrNotInRoom
	}
	return mb, nil
}

// SendChat relays a chat line to the other active participants. Nothing is stored.
func (m *Manager) SendChat(roomID, senderID, text string) error {
	r := m.lookup(roomID)
	if r == nil {
		return domain.ErrRoomNotFound
	}
	defer r.mu.Unlock()

	mb, err := r.activeLocked(senderID)
	if err != nil {
		return fmt.Errorf("chat: %w", err)
	}
	if !r.settings.AllowChat {
		return fmt.Errorf("chat: %w", domain.ErrFeatureDisabled)
	}
	if err := validateChat(text); err != nil {
		return fmt.Errorf("chat: %w", err)
	}

	r.broadcastLocked(Event{Type: EventNewMessage, Payload: ChatPayload{
		Message:   text,
		UserID:    mb.p.UserID,
		UserName:  mb.p.DisplayName,
		Timestamp: isoTime(r.now()),
	}}, senderID)
	return nil
}

func (m *Manager) SetScreenShare(roomID, userID string, on bool) error {
	r := m.lookup(roomID)
	if r == nil {
		return domain.ErrRoomNotFound
	}
	defer r.mu.Unlock()

	mb, err := r.activeLocked(userID)
	if err != nil {
		return fmt.Errorf("screen share: %w", err)
	}
	if on && !r.settings.AllowScreenSharing {
		return fmt.Errorf("screen share: %w", domain.ErrFeatureDisabled)
	}
	if mb.p.ScreenSharing == on {
		return nil
	}
	mb.p.ScreenSharing = on

	ev := EventScreenShareStopped
	if on {
		ev = EventScreenShareStarted
	}
	r.broadcastLocked(Event{Type: ev, Payload: UserFlagPayload{UserID: userID}}, userID)
	return nil
}

// SetRecording toggles the room recording flag. Hosts only.
func (m *Manager) SetRecording(roomID, actorID string, on bool) error {
	r := m.lookup(roomID)
	if r == nil {
		return domain.ErrRoomNotFound
	}
	defer r.mu.Unlock()

	if !r.hostLocked(actorID) {
		return fmt.Errorf("recording: %w", domain.ErrUnauthorized)
	}
	if on && !r.settings.AllowRecording {
		return fmt.Errorf("recording: %w", domain.ErrFeatureDisabled)
	}
	if r.recording == on {
		return nil
	}
	r.recording = on

	ev := EventRecordingStopped
	if on {
		ev = EventRecordingStarted
	}
	r.broadcastLocked(Event{Type: ev, Payload: UserFlagPayload{UserID: actorID}}, actorID)
	slog.Info("session recording", "room", roomID, "by", actorID, "on", on)
	return nil
}

// Mute sets the muted flag of target. Anyone may mute themselves; muting
// somebody else needs a host.
func (m *Manager) Mute(roomID, actorID, targetID string, muted bool) error {
	r := m.lookup(roomID)
	if r == nil {
		return domain.ErrRoomNotFound
	}
	defer r.mu.Unlock()

	if actorID != targetID && !r.hostLocked(actorID) {
		return fmt.Errorf("mute: %w", domain.ErrUnauthorized)
	}
	mb, err := r.activeLocked(targetID)
	if err != nil {
		return fmt.Errorf("mute: %w", err)
	}
	mb.p.Muted = muted
	r.broadcastLocked(Event{Type: EventUserMuted, Payload: MutedPayload{UserID: targetID, Muted: muted}}, actorID)
	return nil
}

// RemoveUser evicts an active participant. The target hears user-removed like
// everyone else and loses its admission pass; its connection stays open.
func (m *Manager) RemoveUser(roomID, actorID, targetID string) error {
	r := m.lookup(roomID)
	if r == nil {
		return domain.ErrRoomNotFound
	}
	defer r.mu.Unlock()

	if !r.hostLocked(actorID) {
		return fmt.Errorf("remove user: %w", domain.ErrUnauthorized)
	}
	if actorID == targetID {
		return fmt.Errorf("remove user: %w", domain.ErrInvalidMessage)
	}
	if _, err := r.activeLocked(targetID); err != nil {
		return fmt.Errorf("remove user: %w", err)
	}

	r.broadcastLocked(Event{Type: EventUserRemoved, Payload: RemovedPayload{
		SessionID: roomID,
		UserID:    targetID,
		RemovedBy: actorID,
	}}, actorID)
	delete(r.passes, targetID)
	r.removeActiveLocked(targetID)

	slog.Info("session user removed", "room", roomID, "user", targetID, "by", actorID)
	return nil
}
