package api

import (
	"fmt"
	"net/http"

	"github.com/klauspost/compress/gzhttp"
)

// gzipMinSize keeps tiny JSON replies uncompressed.
const gzipMinSize = 512

func (s *Server) RegisterRoutes(mux *http.ServeMux, compress bool) error {
	wrap := func(h http.Handler) http.Handler { return h }
	if compress {
		gz, err := gzhttp.NewWrapper(gzhttp.MinSize(gzipMinSize))
		if err != nil {
			return fmt.Errorf("creating gzip wrapper: %w", err)
		}
		wrap = func(h http.Handler) http.Handler { return gz(h) }
	}

	mux.Handle("GET /query", s.instrument("/query", wrap(http.HandlerFunc(s.HandleQuery))))
	// Hijacked connections cannot go through the gzip writer.
	mux.Handle("GET /query/ws", s.instrument("/query/ws", http.HandlerFunc(s.HandleQueryWS)))
	mux.Handle("GET /api/stats", s.instrument("/api/stats", wrap(http.HandlerFunc(s.HandleStats))))
	mux.Handle("GET /health", s.instrument("/health", http.HandlerFunc(s.HandleHealth)))
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	return nil
}
