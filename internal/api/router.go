package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/kalambet/agentmesh/internal/metrics"
	"github.com/kalambet/agentmesh/internal/opportunity"
	"github.com/kalambet/agentmesh/internal/realtime"
	"github.com/kalambet/agentmesh/internal/rooms"
)

const maxRequestBodySize = 1 << 20 // 1MB

type Deps struct {
	Rooms     *rooms.Service
	Responder *opportunity.Responder
	Hub       *realtime.Hub
	Metrics   *metrics.Metrics // optional; nil disables /metrics and request counting
	MCP       http.Handler     // optional; mounted at /mcp
	Ping      func(context.Context) error
	Token     string
	Origins   []string
}

// NewRouter builds the full HTTP surface.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if deps.Metrics != nil {
		r.Use(countRequests(deps.Metrics))
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.Get("/health", handleHealth(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token, false))
		r.Post("/people", handleCreatePerson(deps))
		if deps.MCP != nil {
			r.Mount("/mcp", deps.MCP)
		}

		r.Group(func(r chi.Router) {
			r.Use(RequireActor)
			r.Get("/me", handleMe(deps))
			r.Put("/profile", handleSaveProfile(deps))
			r.Post("/profile/import", handleImportProfile(deps))
			r.Post("/rooms", handleCreateRoom(deps))
			r.Post("/rooms/join", handleJoinRoom(deps))
			r.Get("/rooms/{code}", handleRoomState(deps))
			r.Post("/rooms/{code}/matchmaking", handleTriggerMatchmaking(deps))
			r.Post("/opportunities/{id}/respond", handleRespond(deps))
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token, true))
		r.Use(RequireActor)
		r.Get("/ws/rooms/{code}", handleRoomSocket(deps))
	})

	origins := deps.Origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", ActorHeader},
		MaxAge:         86400,
	})
	return c.Handler(r)
}

// countRequests records each request under its chi route pattern so that
// path parameters do not explode label cardinality.
func countRequests(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			route := "unmatched"
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.ObserveRequest(route, status)
		})
	}
}
