package domain

import "time"

type Participant struct {
	ConnID        string
	UserID        string
	DisplayName   string
	Role          Role
	JoinedAt      time.Time
	Muted         bool
	ScreenSharing bool
}

func NewParticipant(u User, connID string, now time.Time) Participant {
	return Participant{
		ConnID:      connID,
		UserID:      u.ID,
		DisplayName: u.DisplayName,
		Role:        u.Role,
		JoinedAt:    now,
	}
}

func (p Participant) IsHost() bool { return p.Role.CanHost() }
