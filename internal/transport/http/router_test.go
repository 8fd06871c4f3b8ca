package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/hanyusok/docplus-dev/internal/directory"
	"github.com/hanyusok/docplus-dev/internal/domain"
	"github.com/hanyusok/docplus-dev/internal/security"
	"github.com/hanyusok/docplus-dev/internal/session"
)

type nopConn struct{ id string }

func (c nopConn) ID() string              { return c.id }
func (c nopConn) Send(session.Event) error { return nil }
func (c nopConn) Close() error             { return nil }

func newTestRouter(t *testing.T, rs domain.RoomSettings) (*httptest.Server, *session.Manager) {
	t.Helper()
	m := session.NewManager(session.Options{Settings: session.StaticSettings{Default: rs}})
	t.Cleanup(m.Close)

	srv := httptest.NewServer(NewRouter(Deps{
		Rooms: m,
		Auth:  security.NewTrustAuthenticator(),
		Users: directory.NewStatic(
			domain.User{ID: "doc", DisplayName: "Dr. Kim", Role: domain.RoleDoctor},
			domain.User{ID: "adm", DisplayName: "Admin", Role: domain.RoleAdmin},
			domain.User{ID: "p1", DisplayName: "Lee", Role: domain.RolePatient},
			domain.User{ID: "p2", DisplayName: "Park", Role: domain.RolePatient},
		),
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
	}))
	t.Cleanup(srv.Close)
	return srv, m
}

func get(t *testing.T, url, user string) (*http.Response, map[string]any) {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, url, nil)
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
	return resp, body
}

func TestHealthAndICE(t *testing.T) {
	srv, _ := newTestRouter(t, domain.DefaultRoomSettings())

	resp, body := get(t, srv.URL+"/healthz", "")
	if resp.StatusCode != http.StatusOK || body["data"].(map[string]any)["status"] != "ok" {
		t.Fatalf("healthz: %d %v", resp.StatusCode, body)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("missing X-Request-ID")
	}

	_, body = get(t, srv.URL+"/ice-servers", "")
	servers := body["data"].(map[string]any)["iceServers"].([]any)
	if len(servers) != 1 {
		t.Fatalf("unexpected ice servers: %v", servers)
	}
	urls := servers[0].(map[string]any)["urls"].([]any)
	if urls[0] != "stun:stun.l.google.com:19302" {
		t.Fatalf("unexpected urls: %v", urls)
	}
}

func TestSessions_RequireAuth(t *testing.T) {
	srv, _ := newTestRouter(t, domain.DefaultRoomSettings())

	resp, body := get(t, srv.URL+"/sessions", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if body["error"].(map[string]any)["code"] != "unauthorized" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestSessions_ListAndGet(t *testing.T) {
	rs := domain.DefaultRoomSettings()
	rs.WaitingRoomEnabled = true
	srv, m := newTestRouter(t, rs)

	ctx := context.Background()
	doc := domain.Participant{UserID: "doc", DisplayName: "Dr. Kim", Role: domain.RoleDoctor}
	if _, err := m.Join(ctx, "s1", doc, nopConn{id: "c-doc"}); err != nil {
		t.Fatalf("join: %v", err)
	}
	pat := domain.Participant{UserID: "p1", DisplayName: "Lee", Role: domain.RolePatient}
	if _, err := m.Enqueue(ctx, "s1", pat, nopConn{id: "c-p1"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	resp, body := get(t, srv.URL+"/sessions", "doc")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: %d", resp.StatusCode)
	}
	list := body["data"].([]any)
	if len(list) != 1 || list[0].(map[string]any)["id"] != "s1" {
		t.Fatalf("unexpected list: %v", list)
	}

	_, body = get(t, srv.URL+"/sessions/s1", "doc")
	room := body["data"].(map[string]any)
	if len(room["participants"].([]any)) != 1 || len(room["waiting"].([]any)) != 1 {
		t.Fatalf("unexpected room: %v", room)
	}
	if w := room["waiting"].([]any)[0].(map[string]any); w["joinedAt"] == "" || w["status"] != "waiting" {
		t.Fatalf("waiting entry must carry its queue time: %v", w)
	}

	if resp, _ := get(t, srv.URL+"/sessions", "adm"); resp.StatusCode != http.StatusOK {
		t.Fatalf("admin list: %d", resp.StatusCode)
	}

	_, body = get(t, srv.URL+"/sessions/s1/waiting-room", "doc")
	view := body["data"].(map[string]any)
	if view["currentQueue"].(float64) != 1 {
		t.Fatalf("unexpected waiting view: %v", view)
	}

	resp, body = get(t, srv.URL+"/sessions/nope", "doc")
	if resp.StatusCode != http.StatusNotFound || body["error"].(map[string]any)["code"] != "room-not-found" {
		t.Fatalf("expected 404 room-not-found, got %d %v", resp.StatusCode, body)
	}
}

func TestSessions_HostOnly(t *testing.T) {
	rs := domain.DefaultRoomSettings()
	rs.WaitingRoomEnabled = true
	srv, m := newTestRouter(t, rs)

	pat := domain.Participant{UserID: "p1", DisplayName: "Lee", Role: domain.RolePatient}
	if _, err := m.Enqueue(context.Background(), "s1", pat, nopConn{id: "c-p1"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	for _, path := range []string{"/sessions", "/sessions/s1", "/sessions/s1/waiting-room"} {
		for _, user := range []string{"p2", "p1", "unknown"} {
			resp, body := get(t, srv.URL+path, user)
			if resp.StatusCode != http.StatusForbidden {
				t.Fatalf("%s as %s: expected 403, got %d", path, user, resp.StatusCode)
			}
			if body["error"].(map[string]any)["code"] != "forbidden" {
				t.Fatalf("%s as %s: unexpected body %v", path, user, body)
			}
			if _, leaked := body["data"]; leaked {
				t.Fatalf("%s as %s: room data leaked", path, user)
			}
		}
	}
}

type brokenUsers struct{}

func (brokenUsers) GetUser(context.Context, string) (domain.User, error) {
	return domain.User{}, errors.New("db down")
}

func TestSessions_DirectoryFailure(t *testing.T) {
	m := session.NewManager(session.Options{})
	t.Cleanup(m.Close)
	srv := httptest.NewServer(NewRouter(Deps{
		Rooms: m,
		Auth:  security.NewTrustAuthenticator(),
		Users: brokenUsers{},
	}))
	t.Cleanup(srv.Close)

	resp, _ := get(t, srv.URL+"/sessions", "doc")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}
