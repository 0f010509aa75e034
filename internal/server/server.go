package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

type Options struct {
	CORSOrigins []string
}

// NewMux mounts the assembly service, the run event socket and the debug endpoints.
func NewMux(assembly *AssemblyHandler, events *EventsHandler, traces *TraceHandler, opts Options) http.Handler {
	mux := http.NewServeMux()

	mux.Handle(assembly.Routes())

	mux.HandleFunc("/ws/runs", events.HandleRunEventsWS)

	mux.HandleFunc("/debug/run-logs", traces.HandleRunLogs)
	mux.HandleFunc("/debug/client-trace", traces.HandleClientTrace)

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"ok": true})
	})

	return CORS(opts.CORSOrigins, mux)
}

type Server struct {
	httpServer *http.Server
}

func New(addr string, handler http.Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           h2c.NewHandler(handler, &http2.Server{}),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

func (s *Server) Addr() string { return s.httpServer.Addr }

func (s *Server) Start() error {
	log.Printf("Starting assembly server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
