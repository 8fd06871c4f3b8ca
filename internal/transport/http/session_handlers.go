package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hanyusok/docplus-dev/internal/domain"
	"github.com/hanyusok/docplus-dev/internal/session"
	"github.com/hanyusok/docplus-dev/pkg/httputil"
)

type SessionHandlers struct {
	Rooms *session.Manager
}

type roomSummaryDTO struct {
	ID         string `json:"id"`
	Active     int    `json:"active"`
	Waiting    int    `json:"waiting"`
	Recording  bool   `json:"recording"`
	CreatedAt  string `json:"createdAt"`
	EmptySince string `json:"emptySince,omitempty"`
}

type participantDTO struct {
	UserID        string `json:"userId"`
	UserName      string `json:"userName"`
	UserType      string `json:"userType"`
	JoinedAt      string `json:"joinedAt"`
	Muted         bool   `json:"muted"`
	ScreenSharing bool   `json:"screenSharing"`
}

type waitingDTO struct {
	participantDTO
	Position int    `json:"position"`
	Priority int    `json:"priority"`
	Status   string `json:"status"`
}

type settingsDTO struct {
	MaxParticipants    int  `json:"maxParticipants"`
	AllowChat          bool `json:"allowChat"`
	AllowScreenSharing bool `json:"allowScreenSharing"`
	AllowRecording     bool `json:"allowRecording"`
	WaitingRoomEnabled bool `json:"waitingRoomEnabled"`
}

type roomDTO struct {
	ID           string           `json:"id"`
	Settings     settingsDTO      `json:"settings"`
	Recording    bool             `json:"recording"`
	CreatedAt    string           `json:"createdAt"`
	Participants []participantDTO `json:"participants"`
	Waiting      []waitingDTO     `json:"waiting"`
}

func isoTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

func toParticipantDTO(p domain.Participant) participantDTO {
	return participantDTO{
		UserID:        p.UserID,
		UserName:      p.DisplayName,
		UserType:      string(p.Role),
		JoinedAt:      isoTime(p.JoinedAt),
		Muted:         p.Muted,
		ScreenSharing: p.ScreenSharing,
	}
}

// GET /sessions
func (h *SessionHandlers) List(w http.ResponseWriter, r *http.Request) {
	rooms := h.Rooms.Rooms()
	out := make([]roomSummaryDTO, 0, len(rooms))
	for _, rs := range rooms {
		out = append(out, roomSummaryDTO{
			ID:         rs.ID,
			Active:     rs.Active,
			Waiting:    rs.Waiting,
			Recording:  rs.Recording,
			CreatedAt:  isoTime(rs.CreatedAt),
			EmptySince: isoTime(rs.EmptySince),
		})
	}
	httputil.OK(w, out)
}

// GET /sessions/{id}
func (h *SessionHandlers) Get(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Rooms.Snapshot(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, r, err)
		return
	}

	out := roomDTO{
		ID: snap.ID,
		Settings: settingsDTO{
			MaxParticipants:    snap.Settings.MaxParticipants,
			AllowChat:          snap.Settings.AllowChat,
			AllowScreenSharing: snap.Settings.AllowScreenSharing,
			AllowRecording:     snap.Settings.AllowRecording,
			WaitingRoomEnabled: snap.Settings.WaitingRoomEnabled,
		},
		Recording:    snap.Recording,
		CreatedAt:    isoTime(snap.CreatedAt),
		Participants: make([]participantDTO, 0, len(snap.Active)),
		Waiting:      make([]waitingDTO, 0, len(snap.Waiting)),
	}
	for _, p := range snap.Active {
		out.Participants = append(out.Participants, toParticipantDTO(p))
	}
	for i, e := range snap.Waiting {
		wd := waitingDTO{
			participantDTO: toParticipantDTO(e.Participant),
			Position:       i + 1,
			Priority:       e.Priority,
			Status:         string(e.Status),
		}
		// в очереди важен момент постановки, а не вход в комнату
		wd.JoinedAt = isoTime(e.JoinedAt)
		out.Waiting = append(out.Waiting, wd)
	}
	httputil.OK(w, out)
}

// GET /sessions/{id}/waiting-room
func (h *SessionHandlers) WaitingRoom(w http.ResponseWriter, r *http.Request) {
	view, err := h.Rooms.WaitingRoom(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	httputil.OK(w, view)
}

func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	httputil.Error(r.Context(), w, status, code, err.Error())
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		return http.StatusNotFound, "room-not-found"
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden, "unauthorized"
	case errors.Is(err, domain.ErrInvalidMessage):
		return http.StatusBadRequest, "invalid-message"
	case errors.Is(err, domain.ErrManagerClosed):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
