package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cardsdata/formquery/pkg/query"
	"github.com/cardsdata/formquery/pkg/realtime"
	"github.com/cardsdata/formquery/pkg/version"
)

const (
	wsWriteWait    = 10 * time.Second
	wsMaxMessage   = 64 << 10
	wsOutboundSize = 8
)

// HandleQuery serves the query request surface. Any failure collapses the
// whole reply into an ErrorResponse.
func (s *Server) HandleQuery(w http.ResponseWriter, r *http.Request) {
	resp, err := s.search(r.URL.Query())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, UnknownError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) search(values url.Values) (*query.Response, error) {
	req, err := query.ParseRequest(values)
	if err != nil {
		s.observer.QueryServed(query.ModeNone, 0, query.Window{}, err)
		s.logger.Warnf("rejecting request: %v", err)
		return nil, err
	}

	resp, err := s.engine.Search(req)
	if err != nil {
		s.logger.With("mode", req.Mode.String()).Errorf("search failed: %v", err)
		return nil, err
	}
	return resp, nil
}

// HandleQueryWS upgrades to a websocket session. Each text message is a JSON
// object of request parameters; each reply is a query response or an
// ErrorResponse. Hub events are pushed to the session as they happen.
func (s *Server) HandleQueryWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error.
		s.logger.Warnf("websocket upgrade failed: %v", err)
		return
	}
	defer func() {
		if err := conn.Close(); err != nil {
			s.logger.Debugf("closing websocket: %v", err)
		}
	}()
	conn.SetReadLimit(wsMaxMessage)

	id, events := s.hub.Register()
	defer s.hub.Unregister(id)

	out := make(chan any, wsOutboundSize)
	done := make(chan struct{})
	go s.writeLoop(conn, out, events, done)

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warnf("websocket read: %v", err)
			}
			break
		}
		if kind != websocket.TextMessage {
			continue
		}

		var reply any
		values, err := decodeParams(data)
		if err == nil {
			reply, err = s.search(values)
		}
		if err != nil {
			reply = ErrorResponse{Error: UnknownError, Message: err.Error()}
		}

		select {
		case out <- reply:
		case <-done:
			return
		}
	}

	close(out)
	<-done
}

// writeLoop is the only writer of conn. It returns when out is closed or a
// write fails.
func (s *Server) writeLoop(conn *websocket.Conn, out <-chan any, events <-chan realtime.Event, done chan<- struct{}) {
	defer close(done)
	write := func(v any) bool {
		if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
			return false
		}
		if err := conn.WriteJSON(v); err != nil {
			s.logger.Warnf("websocket write: %v", err)
			// Unblocks the reader.
			_ = conn.Close()
			return false
		}
		return true
	}

	for {
		select {
		case v, ok := <-out:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(wsWriteWait))
				return
			}
			if !write(v) {
				return
			}
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if !write(ev) {
				return
			}
		}
	}
}

// decodeParams turns a JSON object into request parameters. Non-string
// scalars are accepted in their JSON text form.
func decodeParams(data []byte) (url.Values, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding request message: %w", err)
	}
	values := url.Values{}
	for k, v := range raw {
		switch t := v.(type) {
		case nil:
		case string:
			values.Set(k, t)
		case float64, bool:
			values.Set(k, fmt.Sprint(t))
		default:
			return nil, errors.New("request parameters must be scalar values")
		}
	}
	return values, nil
}

func (s *Server) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.stats.Stats()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to get stats", err.Error())
		return
	}
	if s.metrics != nil {
		s.metrics.UpdateRepositoryStats(stats.SizeBytes, stats.Total)
	}

	s.writeJSON(w, http.StatusOK, StatsResponse{
		Repository: stats,
		Settings:   s.engine.Settings(),
	})
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Version:   version.APIVersion(),
	}

	s.writeJSON(w, http.StatusOK, health)
}
