package domain

import "encoding/json"

type SignalKind string

const (
	SignalOffer        SignalKind = "offer"
	SignalAnswer       SignalKind = "answer"
	SignalICECandidate SignalKind = "ice-candidate"
)

func (k SignalKind) Valid() bool {
	switch k {
	case SignalOffer, SignalAnswer, SignalICECandidate:
		return true
	}
	return false
}

// SignalingMessage is relayed verbatim; Payload is never inspected.
type SignalingMessage struct {
	Kind    SignalKind
	From    string
	To      string
	Payload json.RawMessage
}
