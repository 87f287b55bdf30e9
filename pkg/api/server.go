package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cardsdata/formquery/pkg/log"
	"github.com/cardsdata/formquery/pkg/metrics"
	"github.com/cardsdata/formquery/pkg/query"
	"github.com/cardsdata/formquery/pkg/realtime"
	"github.com/cardsdata/formquery/pkg/repository"
)

// StatsSource reports repository statistics for /api/stats.
type StatsSource interface {
	Stats() (*repository.Stats, error)
}

type Server struct {
	engine   *query.Engine
	stats    StatsSource
	metrics  *metrics.Metrics
	observer query.Observer
	hub      *realtime.Hub
	upgrader websocket.Upgrader
	logger   *log.Logger
}

// NewServer builds the HTTP surface over engine. m may be nil, in which case
// /metrics is not served and nothing is recorded.
func NewServer(engine *query.Engine, stats StatsSource, m *metrics.Metrics) *Server {
	s := &Server{
		engine:   engine,
		stats:    stats,
		metrics:  m,
		observer: query.NopObserver{},
		hub:      realtime.NewHub(0),
		logger:   log.ForService("api"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Same policy as the CORS headers: any origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	if m != nil {
		s.observer = m
	}
	return s
}

// Hub returns the hub whose events are pushed to websocket sessions.
func (s *Server) Hub() *realtime.Hub {
	return s.hub
}

// NotifySettings tells open websocket sessions that the search settings
// changed.
func (s *Server) NotifySettings(settings query.Settings) {
	n := s.hub.Broadcast(realtime.NewEvent(realtime.EventSettings, settings))
	s.logger.Debugf("settings change delivered to %d sessions", n)
}

// Handler returns the complete HTTP handler: routes plus middleware.
func (s *Server) Handler(compress bool) (http.Handler, error) {
	mux := http.NewServeMux()
	if err := s.RegisterRoutes(mux, compress); err != nil {
		return nil, err
	}
	return CorsMiddleware(mux), nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Errorf("Error encoding JSON response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, error, message string) {
	response := ErrorResponse{
		Error:   error,
		Message: message,
	}
	s.writeJSON(w, status, response)
}

func CorsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func since(start time.Time) time.Duration {
	return time.Since(start).Round(time.Microsecond)
}
