package session

import (
	"encoding/json"
	"time"
)

// Outbound event names. Client applications depend on these exact strings.
const (
	EventUserJoined         = "user-joined"
	EventUserLeft           = "user-left"
	EventSessionJoined      = "session-joined"
	EventNewMessage         = "new-message"
	EventOffer              = "offer"
	EventAnswer             = "answer"
	EventICECandidate       = "ice-candidate"
	EventScreenShareStarted = "screen-share-started"
	EventScreenShareStopped = "screen-share-stopped"
	EventRecordingStarted   = "recording-started"
	EventRecordingStopped   = "recording-stopped"
	EventUserMuted          = "user-muted"
	EventUserRemoved        = "user-removed"

	EventWaitingRoomJoined        = "waiting-room-joined"
	EventParticipantJoinedWaiting = "participant-joined-waiting"
	EventParticipantLeftWaiting   = "participant-left-waiting"
	EventParticipantAdmitted      = "participant-admitted"
	EventWaitingRoomMessage       = "waiting-room-message"
	EventWaitingRoomUpdated       = "waiting-room-updated"

	EventError = "error"
)

// Event is a single outbound message addressed to one connection.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type PeerPayload struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName,omitempty"`
	UserType  string `json:"userType,omitempty"`
	SocketID  string `json:"socketId,omitempty"`
}

type ParticipantItem struct {
	UserID        string `json:"id"`
	Name          string `json:"name"`
	UserType      string `json:"userType"`
	IsMuted       bool   `json:"isMuted"`
	IsScreenShare bool   `json:"isScreenSharing"`
	JoinedAt      string `json:"joinedAt"`
}

type SessionJoinedPayload struct {
	SessionID    string            `json:"sessionId"`
	UserID       string            `json:"userId"`
	IsHost       bool              `json:"isHost"`
	Recording    bool              `json:"recording"`
	Participants []ParticipantItem `json:"participants"`
}

// SignalPayload carries exactly one of Offer, Answer or Candidate.
type SignalPayload struct {
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
	From      string          `json:"from"`
}

type ChatPayload struct {
	Message   string `json:"message"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	Timestamp string `json:"timestamp"`
}

type UserFlagPayload struct {
	UserID string `json:"userId"`
}

type MutedPayload struct {
	UserID string `json:"userId"`
	Muted  bool   `json:"muted"`
}

type RemovedPayload struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	Reason    string `json:"reason,omitempty"`
	RemovedBy string `json:"removedBy,omitempty"`
}

type WaitingParticipant struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	UserType      string `json:"userType"`
	JoinTime      string `json:"joinTime"`
	Position      int    `json:"position"`
	EstimatedWait int    `json:"estimatedWait"`
	Priority      int    `json:"priority"`
	Status        string `json:"status"`
}

type WaitingRoomInfo struct {
	CurrentQueue      int    `json:"currentQueue"`
	Position          int    `json:"position"`
	EstimatedWaitTime int    `json:"estimatedWaitTime"`
	CustomMessage     string `json:"customMessage"`
	AllowChat         bool   `json:"allowChat"`
	AllowVideo        bool   `json:"allowVideo"`
	AllowAudio        bool   `json:"allowAudio"`
}

type WaitingRoomJoinedPayload struct {
	SessionID       string               `json:"sessionId"`
	IsHost          bool                 `json:"isHost"`
	Position        int                  `json:"position"`
	Participants    []WaitingParticipant `json:"participants"`
	WaitingRoomInfo WaitingRoomInfo      `json:"waitingRoomInfo"`
}

// WaitingRoomUpdate is flattened on the wire: info fields and the ordered list side by side.
type WaitingRoomUpdate struct {
	WaitingRoomInfo
	SessionID    string               `json:"sessionId"`
	Participants []WaitingParticipant `json:"participants"`
}

type LeftWaitingPayload struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	Reason    string `json:"reason,omitempty"`
}

type AdmittedPayload struct {
	SessionID  string `json:"sessionId"`
	UserID     string `json:"userId"`
	AdmittedBy string `json:"admittedBy"`
}

type ErrorPayload struct {
	Event   string `json:"event,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// isoTime matches the millisecond ISO-8601 form the web client produces.
func isoTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
