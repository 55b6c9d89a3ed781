package transport

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/smartdesignpro/collab/internal/canvas"
	"github.com/smartdesignpro/collab/internal/middleware"
	"github.com/smartdesignpro/collab/internal/room"
	"github.com/smartdesignpro/collab/internal/user"
)

// RouterDeps: everything the HTTP surface reads from
type RouterDeps struct {
	Server    *Server
	IPLimiter *middleware.IPRateLimit
	Rooms     *room.Manager
	Cache     *canvas.Cache
	Gatherer  prometheus.Gatherer
	Logger    *zap.Logger
}

// NewRouter: /ws plus the health, metrics and project introspection endpoints
func NewRouter(deps RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(requestLogger(logger))

	r.With(deps.IPLimiter.Middleware).Get("/ws", deps.Server.HandleWebSocket)

	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(15 * time.Second))

		r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			rooms, participants := deps.Rooms.Stats()
			writeJSON(w, http.StatusOK, map[string]any{
				"status":       "ok",
				"rooms":        rooms,
				"participants": participants,
			})
		})

		if deps.Gatherer != nil {
			r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
		}

		r.Get("/api/projects/{projectID}", func(w http.ResponseWriter, r *http.Request) {
			projectID := chi.URLParam(r, "projectID")
			rm, ok := deps.Rooms.Room(projectID)
			if !ok {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "project not active"})
				return
			}
			writeJSON(w, http.StatusOK, projectInfo{
				ProjectID:    projectID,
				Participants: rm.Participants(),
				Objects:      deps.Cache.Count(projectID),
				CreatedAt:    rm.CreatedAt,
			})
		})
	})

	return r
}

type projectInfo struct {
	ProjectID    string             `json:"projectId"`
	Participants []user.Participant `json:"participants"`
	Objects      int                `json:"objects"`
	CreatedAt    time.Time          `json:"createdAt"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				zap.String("request_id", chimw.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
