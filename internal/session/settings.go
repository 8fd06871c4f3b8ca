package session

import (
	"context"

	"github.com/hanyusok/docplus-dev/internal/domain"
)

// SettingsProvider resolves per-session flags when a room is first created.
// Returning domain.ErrRoomNotFound makes the manager fall back to its defaults.
type SettingsProvider interface {
	RoomSettings(ctx context.Context, roomID string) (domain.RoomSettings, error)
}

// StaticSettings serves the same settings for every room, with optional per-room overrides.
type StaticSettings struct {
	Default   domain.RoomSettings
	Overrides map[string]domain.RoomSettings
}

func (s StaticSettings) RoomSettings(_ context.Context, roomID string) (domain.RoomSettings, error) {
	if rs, ok := s.Overrides[roomID]; ok {
		return rs, nil
	}
	return s.Default, nil
}
