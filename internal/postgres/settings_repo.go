package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/hanyusok/docplus-dev/internal/domain"
)

// SessionSettingsRepo reads per-session flags from the "Session" table.
// Columns left NULL keep the configured defaults.
type SessionSettingsRepo struct {
	q        querier
	defaults domain.RoomSettings
}

func NewSessionSettingsRepo(q querier, defaults domain.RoomSettings) *SessionSettingsRepo {
	return &SessionSettingsRepo{q: q, defaults: defaults}
}

func (r *SessionSettingsRepo) RoomSettings(ctx context.Context, roomID string) (domain.RoomSettings, error) {
	var (
		maxParticipants    *int32
		allowRecording     *bool
		allowScreenSharing *bool
		allowChat          *bool
		waitingRoomEnabled *bool
	)
	err := r.q.QueryRow(ctx, QueryGetSessionSettings, roomID).Scan(
		&maxParticipants,
		&allowRecording,
		&allowScreenSharing,
		&allowChat,
		&waitingRoomEnabled,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RoomSettings{}, domain.ErrRoomNotFound
		}
		return domain.RoomSettings{}, mapPgError(err)
	}

	rs := r.defaults
	if maxParticipants != nil {
		rs.MaxParticipants = int(*maxParticipants)
	}
	setBool(&rs.AllowRecording, allowRecording)
	setBool(&rs.AllowScreenSharing, allowScreenSharing)
	setBool(&rs.AllowChat, allowChat)
	setBool(&rs.WaitingRoomEnabled, waitingRoomEnabled)
	return rs, nil
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
