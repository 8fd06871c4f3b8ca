package ws

import "encoding/json"

// Входящие события клиента
const (
	InJoinSession  = "join-session"
	InLeaveSession = "leave-session"

	InOffer        = "offer"
	InAnswer       = "answer"
	InICECandidate = "ice-candidate"

	InSendMessage      = "send-message"
	InScreenShareStart = "screen-share-start"
	InScreenShareStop  = "screen-share-stop"
	InStartRecording   = "start-recording"
	InStopRecording    = "stop-recording"
	InMuteUser         = "mute-user"
	InRemoveUser       = "remove-user"

	InJoinWaitingRoom        = "join-waiting-room"
	InLeaveWaitingRoom       = "leave-waiting-room"
	InAdmitParticipant       = "admit-participant"
	InRemoveParticipant      = "remove-participant"
	InSendWaitingRoomMessage = "send-waiting-room-message"
)

// Envelope is the inbound frame; Payload is decoded per event type.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// JoinPayload serves join-session and join-waiting-room. UserID and UserType
// are accepted for compatibility but the authenticated identity always wins.
type JoinPayload struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId,omitempty"`
	UserType  string `json:"userType,omitempty"`
	UserName  string `json:"userName,omitempty"`
}

// SessionPayload is the common shape of leave and toggle events.
type SessionPayload struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId,omitempty"`
}

type SignalIn struct {
	SessionID string          `json:"sessionId,omitempty"`
	To        string          `json:"to"`
	From      string          `json:"from,omitempty"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

type ChatIn struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
	UserID    string `json:"userId,omitempty"`
	UserName  string `json:"userName,omitempty"`
}

type MuteIn struct {
	SessionID    string `json:"sessionId"`
	TargetUserID string `json:"targetUserId"`
	Muted        bool   `json:"muted"`
}

type RemoveUserIn struct {
	SessionID    string `json:"sessionId"`
	TargetUserID string `json:"targetUserId"`
}

// WaitingTargetIn serves admit-participant and remove-participant.
type WaitingTargetIn struct {
	SessionID  string `json:"sessionId"`
	UserID     string `json:"userId"`
	AdmittedBy string `json:"admittedBy,omitempty"`
	RemovedBy  string `json:"removedBy,omitempty"`
}
