package session

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/hanyusok/docplus-dev/internal/domain"
)

func TestRelay_DeliversPayloadUnchanged(t *testing.T) {
	m, _ := newTestManager(t, domain.DefaultRoomSettings())

	_, a := mustJoin(t, m, "s1", "a", domain.RoleDoctor)
	_, b := mustJoin(t, m, "s1", "b", domain.RolePatient)

	offer := json.RawMessage(`{"type":"offer","sdp":"v=0\r\no=- 46117 2 IN IP4 127.0.0.1"}`)
	ok := m.Relay("s1", domain.SignalingMessage{Kind: domain.SignalOffer, From: "a", To: "b", Payload: offer})
	if !ok {
		t.Fatalf("relay reported a drop")
	}

	if n := b.count(EventOffer); n != 1 {
		t.Fatalf("expected exactly one offer, got %d", n)
	}
	ev, _ := b.last(EventOffer)
	p := ev.Payload.(SignalPayload)
	if !bytes.Equal(p.Offer, offer) {
		t.Fatalf("payload modified: %s", p.Offer)
	}
	if p.From != "a" || p.Answer != nil || p.Candidate != nil {
		t.Fatalf("unexpected signal payload: %+v", p)
	}
	if a.count(EventOffer) != 0 {
		t.Fatalf("sender must not receive its own offer")
	}
}

func TestRelay_KindsMapToEvents(t *testing.T) {
	m, _ := newTestManager(t, domain.DefaultRoomSettings())

	mustJoin(t, m, "s1", "a", domain.RoleDoctor)
	_, b := mustJoin(t, m, "s1", "b", domain.RolePatient)

	cand := json.RawMessage(`{"candidate":"candidate:1 1 udp 2122260223 10.0.0.1 54321 typ host","sdpMid":"0"}`)
	m.Relay("s1", domain.SignalingMessage{Kind: domain.SignalAnswer, From: "a", To: "b", Payload: json.RawMessage(`{}`)})
	m.Relay("s1", domain.SignalingMessage{Kind: domain.SignalICECandidate, From: "a", To: "b", Payload: cand})

	if b.count(EventAnswer) != 1 || b.count(EventICECandidate) != 1 {
		t.Fatalf("expected one answer and one candidate")
	}
	ev, _ := b.last(EventICECandidate)
	if got := ev.Payload.(SignalPayload).Candidate; !bytes.Equal(got, cand) {
		t.Fatalf("candidate modified: %s", got)
	}
}

func TestRelay_SilentDrop(t *testing.T) {
	m, _ := newTestManager(t, gatedSettings())

	_, a := mustJoin(t, m, "s1", "a", domain.RoleDoctor)
	_, w := mustEnqueue(t, m, "s1", "w")
	a.reset()
	w.reset()

	cases := []domain.SignalingMessage{
		{Kind: domain.SignalOffer, From: "a", To: "missing"},
		{Kind: domain.SignalOffer, From: "a", To: "w"},       // waiting, not active
		{Kind: domain.SignalOffer, From: "w", To: "a"},       // sender not active
		{Kind: domain.SignalOffer, From: "a", To: "a"},       // self
		{Kind: domain.SignalKind("bye"), From: "a", To: "a"}, // unknown kind
	}
	for _, msg := range cases {
		if m.Relay("s1", msg) {
			t.Fatalf("expected drop for %+v", msg)
		}
	}
	if m.Relay("other", domain.SignalingMessage{Kind: domain.SignalOffer, From: "a", To: "w"}) {
		t.Fatalf("expected drop for unknown room")
	}
	if a.total() != 0 || w.total() != 0 {
		t.Fatalf("drops must not produce any event, got a=%d w=%d", a.total(), w.total())
	}
}
