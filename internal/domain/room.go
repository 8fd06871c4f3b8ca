package domain

import "time"

type RoomSettings struct {
	AllowChat          bool
	AllowScreenSharing bool
	AllowRecording     bool
	WaitingRoomEnabled bool

	// медиа в зале ожидания
	AllowVideo bool
	AllowAudio bool

	CustomMessage      string
	MaxParticipants    int
	AvgSessionDuration time.Duration
}

func DefaultRoomSettings() RoomSettings {
	return RoomSettings{
		AllowChat:          true,
		AllowScreenSharing: true,
		AllowRecording:     true,
		WaitingRoomEnabled: false,
		MaxParticipants:    10,
		AvgSessionDuration: 15 * time.Minute,
	}
}

// RoomSnapshot is a read-only copy of a room for inspection APIs.
type RoomSnapshot struct {
	ID         string
	Settings   RoomSettings
	Active     []Participant
	Waiting    []WaitingEntry
	Recording  bool
	CreatedAt  time.Time
	EmptySince time.Time
}
