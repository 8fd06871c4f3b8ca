package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/pion/webrtc/v4"

	"github.com/hanyusok/docplus-dev/internal/session"
	"github.com/hanyusok/docplus-dev/pkg/httputil"
)

type Deps struct {
	Rooms *session.Manager
	Auth  Authenticator
	// Users определяет роль; инспекция сессий доступна только хостам
	Users Users

	// WS обслуживает upgrade; монтируется на /ws и /api/socketio
	WS http.Handler

	ICEServers     []webrtc.ICEServer
	AllowedOrigins []string
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httputil.MiddlewareRequestID)
	r.Use(httputil.RequestLogger)

	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-User-ID"},
		ExposedHeaders:   []string{httputil.HeaderRequestID},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// health
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httputil.OK(w, map[string]string{"status": "ok"})
	})

	ice := d.ICEServers
	r.Get("/ice-servers", func(w http.ResponseWriter, r *http.Request) {
		httputil.OK(w, map[string]any{"iceServers": ice})
	})

	// Timeout только на REST, websocket живёт дольше
	sh := &SessionHandlers{Rooms: d.Rooms}
	r.Group(func(rt chi.Router) {
		rt.Use(middleware.Timeout(30 * time.Second))
		rt.Use(RequireUser(d.Auth))
		rt.Use(RequireHost(d.Users))

		rt.Route("/sessions", func(rs chi.Router) {
			rs.Get("/", sh.List)
			rs.Route("/{id}", func(rr chi.Router) {
				rr.Get("/", sh.Get)
				rr.Get("/waiting-room", sh.WaitingRoom)
			})
		})
	})

	if d.WS != nil {
		r.Handle("/ws", d.WS)
		r.Handle("/api/socketio", d.WS)
	}

	return r
}
