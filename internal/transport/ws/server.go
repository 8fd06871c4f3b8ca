package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hanyusok/docplus-dev/internal/domain"
	"github.com/hanyusok/docplus-dev/internal/session"
	"github.com/hanyusok/docplus-dev/pkg/logger"
)

const (
	// Time allowed to write a frame to the peer.
	defaultWriteWait = 10 * time.Second

	// Time allowed to read the next pong from the peer.
	defaultPongWait = 60 * time.Second

	// 64 KB is enough for SDP offers with many candidates.
	defaultMaxMessageSize = 64 * 1024

	defaultSendBuffer = 64
)

// Authenticator resolves the caller's user id from the upgrade request.
type Authenticator interface {
	Authenticate(r *http.Request) (string, error)
}

type Users interface {
	GetUser(ctx context.Context, id string) (domain.User, error)
}

type Options struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
	SendBuffer     int

	// AllowedOrigins limits browser origins; empty or "*" allows all.
	AllowedOrigins []string
}

func (o Options) withDefaults() Options {
	if o.WriteWait <= 0 {
		o.WriteWait = defaultWriteWait
	}
	if o.PongWait <= 0 {
		o.PongWait = defaultPongWait
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = (o.PongWait * 9) / 10
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = defaultMaxMessageSize
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = defaultSendBuffer
	}
	return o
}

type Server struct {
	upgrader websocket.Upgrader
	rooms    *session.Manager
	auth     Authenticator
	users    Users
	opts     Options
	now      func() time.Time
}

func NewServer(rooms *session.Manager, auth Authenticator, users Users, opts Options) *Server {
	opts = opts.withDefaults()
	s := &Server{
		rooms: rooms,
		auth:  auth,
		users: users,
		opts:  opts,
		now:   time.Now,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		Subprotocols:    []string{ProtocolJSON, ProtocolMsgpack},
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.opts.AllowedOrigins) == 0 {
		return true
	}
	for _, o := range s.opts.AllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// WS endpoint: GET /ws?access_token=...
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	userID, err := s.auth.Authenticate(r)
	if err != nil {
		slog.Debug("ws auth failed", "err", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	user, err := s.users.GetUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			http.Error(w, "unknown user", http.StatusForbidden)
			return
		}
		slog.Warn("ws user lookup failed", "user", userID, "err", err)
		http.Error(w, "directory unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade уже ответил клиенту
		slog.Warn("ws upgrade failed", "err", err)
		return
	}

	c := newWsConn(conn, codecFor(conn.Subprotocol()), s.opts)
	log := logger.FromContext(r.Context()).With("conn", c.ID(), "user", user.ID)
	log.Debug("ws connected", "codec", c.codec.Name())

	go c.writeLoop()
	cl := &client{s: s, c: c, user: user, log: log}
	cl.readLoop(r.Context())

	// обрыв соединения = тот же путь, что и явный leave
	if cl.handle != nil {
		cl.handle.Disconnect()
	}
	_ = c.Close()
	log.Debug("ws disconnected")
}

// client is the per-connection state owned by the read loop.
type client struct {
	s      *Server
	c      *wsConn
	user   domain.User
	handle *session.Handle
	log    *slog.Logger
}

func (cl *client) readLoop(ctx context.Context) {
	conn := cl.c.conn
	conn.SetReadLimit(cl.s.opts.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(cl.s.opts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(cl.s.opts.PongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				cl.log.Debug("ws read failed", "err", err)
			}
			return
		}
		env, err := cl.c.codec.Decode(data)
		if err != nil {
			cl.log.Debug("ws frame dropped", "err", err)
			continue
		}
		cl.dispatch(ctx, env)
	}
}

func (cl *client) dispatch(ctx context.Context, env Envelope) {
	var err error
	switch env.Type {
	case InJoinSession:
		err = cl.joinSession(ctx, env.Payload)
	case InLeaveSession:
		err = cl.leave(env.Payload)
	case InOffer, InAnswer, InICECandidate:
		err = cl.relay(env.Type, env.Payload)
	case InSendMessage:
		var p ChatIn
		if err = decode(env.Payload, &p); err == nil {
			err = withRoom(cl, p.SessionID, func(room string) error {
				return cl.s.rooms.SendChat(room, cl.user.ID, p.Message)
			})
		}
	case InScreenShareStart, InScreenShareStop:
		var p SessionPayload
		if err = decode(env.Payload, &p); err == nil {
			err = withRoom(cl, p.SessionID, func(room string) error {
				return cl.s.rooms.SetScreenShare(room, cl.user.ID, env.Type == InScreenShareStart)
			})
		}
	case InStartRecording, InStopRecording:
		var p SessionPayload
		if err = decode(env.Payload, &p); err == nil {
			err = withRoom(cl, p.SessionID, func(room string) error {
				return cl.s.rooms.SetRecording(room, cl.user.ID, env.Type == InStartRecording)
			})
		}
	case InMuteUser:
		var p MuteIn
		if err = decode(env.Payload, &p); err == nil {
			err = withRoom(cl, p.SessionID, func(room string) error {
				return cl.s.rooms.Mute(room, cl.user.ID, p.TargetUserID, p.Muted)
			})
		}
	case InRemoveUser:
		var p RemoveUserIn
		if err = decode(env.Payload, &p); err == nil {
			err = withRoom(cl, p.SessionID, func(room string) error {
				return cl.s.rooms.RemoveUser(room, cl.user.ID, p.TargetUserID)
			})
		}
	case InJoinWaitingRoom:
		err = cl.joinWaitingRoom(ctx, env.Payload)
	case InLeaveWaitingRoom:
		err = cl.leave(env.Payload)
	case InAdmitParticipant:
		var p WaitingTargetIn
		if err = decode(env.Payload, &p); err == nil {
			err = withRoom(cl, p.SessionID, func(room string) error {
				return cl.s.rooms.Admit(room, cl.user.ID, p.UserID)
			})
		}
	case InRemoveParticipant:
		var p WaitingTargetIn
		if err = decode(env.Payload, &p); err == nil {
			err = withRoom(cl, p.SessionID, func(room string) error {
				return cl.s.rooms.Remove(room, cl.user.ID, p.UserID)
			})
		}
	case InSendWaitingRoomMessage:
		var p ChatIn
		if err = decode(env.Payload, &p); err == nil {
			err = withRoom(cl, p.SessionID, func(room string) error {
				return cl.s.rooms.SendWaitingMessage(room, cl.user.ID, p.Message)
			})
		}
	default:
		cl.log.Debug("ws unknown event dropped", "type", env.Type)
		return
	}

	if err == nil {
		return
	}
	if errors.Is(err, errUndecodable) {
		cl.log.Debug("ws payload dropped", "type", env.Type, "err", err)
		return
	}
	cl.log.Debug("ws event rejected", "type", env.Type, "err", err)
	_ = cl.c.Send(session.Event{Type: session.EventError, Payload: session.ErrorPayload{
		Event:   env.Type,
		Code:    errorCode(err),
		Message: err.Error(),
	}})
}

func (cl *client) participant() domain.Participant {
	return domain.NewParticipant(cl.user, cl.c.ID(), cl.s.now())
}

// switchRoom leaves the current room when the client moves to another one.
func (cl *client) switchRoom(roomID string) {
	if cl.handle != nil && cl.handle.RoomID != roomID {
		cl.handle.Leave()
		cl.handle = nil
	}
}

func (cl *client) joinSession(ctx context.Context, raw json.RawMessage) error {
	var p JoinPayload
	if err := decode(raw, &p); err != nil {
		return err
	}
	if p.SessionID == "" {
		return domain.ErrInvalidMessage
	}
	cl.warnIdentity(p.UserID)
	cl.switchRoom(p.SessionID)

	h, err := cl.s.rooms.Join(ctx, p.SessionID, cl.participant(), cl.c)
	if err != nil {
		return err
	}
	cl.handle = h
	return nil
}

func (cl *client) joinWaitingRoom(ctx context.Context, raw json.RawMessage) error {
	var p JoinPayload
	if err := decode(raw, &p); err != nil {
		return err
	}
	if p.SessionID == "" {
		return domain.ErrInvalidMessage
	}
	cl.warnIdentity(p.UserID)
	cl.switchRoom(p.SessionID)

	if _, err := cl.s.rooms.Enqueue(ctx, p.SessionID, cl.participant(), cl.c); err != nil {
		return err
	}
	cl.handle = cl.s.rooms.Bind(p.SessionID, cl.user.ID, cl.c.ID())
	return nil
}

func (cl *client) leave(raw json.RawMessage) error {
	var p SessionPayload
	if len(raw) > 0 {
		if err := decode(raw, &p); err != nil {
			return err
		}
	}
	if cl.handle == nil || (p.SessionID != "" && p.SessionID != cl.handle.RoomID) {
		return nil
	}
	cl.handle.Leave()
	cl.handle = nil
	return nil
}

func (cl *client) relay(kind string, raw json.RawMessage) error {
	var p SignalIn
	if err := decode(raw, &p); err != nil {
		return err
	}
	if cl.handle == nil || (p.SessionID != "" && p.SessionID != cl.handle.RoomID) {
		return nil
	}

	msg := domain.SignalingMessage{Kind: domain.SignalKind(kind), From: cl.user.ID, To: p.To}
	switch msg.Kind {
	case domain.SignalOffer:
		msg.Payload = p.Offer
	case domain.SignalAnswer:
		msg.Payload = p.Answer
	case domain.SignalICECandidate:
		msg.Payload = p.Candidate
	}
	if len(msg.Payload) == 0 || p.To == "" {
		return errUndecodable
	}
	cl.s.rooms.Relay(cl.handle.RoomID, msg)
	return nil
}

func (cl *client) warnIdentity(claimed string) {
	if claimed != "" && claimed != cl.user.ID {
		cl.log.Warn("ws payload user id ignored", "claimed", claimed)
	}
}

// withRoom runs fn against the room the client is bound to.
func withRoom(cl *client, sessionID string, fn func(room string) error) error {
	if cl.handle == nil {
		return domain.ErrNotInRoom
	}
	if sessionID != "" && sessionID != cl.handle.RoomID {
		return domain.ErrNotInRoom
	}
	return fn(cl.handle.RoomID)
}

var errUndecodable = errors.New("payload does not match event")

func decode(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return errUndecodable
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return errors.Join(errUndecodable, err)
	}
	return nil
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, domain.ErrRoomFull):
		return "room-full"
	case errors.Is(err, domain.ErrNotWaiting):
		return "not-waiting"
	case errors.Is(err, domain.ErrNotInRoom):
		return "not-in-room"
	case errors.Is(err, domain.ErrRoomNotFound):
		return "room-not-found"
	case errors.Is(err, domain.ErrFeatureDisabled):
		return "feature-disabled"
	case errors.Is(err, domain.ErrInvalidMessage):
		return "invalid-message"
	case errors.Is(err, domain.ErrManagerClosed):
		return "unavailable"
	default:
		return "internal"
	}
}
