package session

import (
	"log/slog"

	"github.com/hanyusok/docplus-dev/internal/domain"
)

// Relay forwards an offer, answer or ICE candidate to msg.To. The payload is
// opaque and goes out unchanged. It returns false when the message was dropped:
// unknown room, sender not active, or target not active. Drops are silent for
// the sender.
func (m *Manager) Relay(roomID string, msg domain.SignalingMessage) bool {
	if !msg.Kind.Valid() {
		return false
	}
	r := m.lookup(roomID)
	if r == nil {
		slog.Debug("relay dropped: no room", "room", roomID, "kind", msg.Kind)
		return false
	}
	defer r.mu.Unlock()

	if _, ok := r.active[msg.From]; !ok {
		slog.Debug("relay dropped: sender not active", "room", roomID, "from", msg.From)
		return false
	}
	target, ok := r.active[msg.To]
	if !ok || msg.To == msg.From {
		slog.Debug("relay dropped: no target", "room", roomID, "from", msg.From, "to", msg.To)
		return false
	}

	p := SignalPayload{From: msg.From}
	var evType string
	switch msg.Kind {
	case domain.SignalOffer:
		evType, p.Offer = EventOffer, msg.Payload
	case domain.SignalAnswer:
		evType, p.Answer = EventAnswer, msg.Payload
	case domain.SignalICECandidate:
		evType, p.Candidate = EventICECandidate, msg.Payload
	}
	r.send(target.conn, Event{Type: evType, Payload: p})
	return true
}
