package domain

import "time"

type WaitingStatus string

const (
	WaitingStatusWaiting  WaitingStatus = "waiting"
	WaitingStatusAdmitted WaitingStatus = "admitted"
	WaitingStatusLeft     WaitingStatus = "left"
	WaitingStatusRemoved  WaitingStatus = "removed"
)

type WaitingEntry struct {
	Participant Participant
	JoinedAt    time.Time
	Status      WaitingStatus
	// Priority is carried for clients that display it; the queue is ordered by JoinedAt only.
	Priority int
}
