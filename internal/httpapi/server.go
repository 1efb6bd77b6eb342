// Package httpapi exposes the engine over HTTP: a welcome endpoint and the
// ProcessRequest endpoint that enqueues a request and reports its progress.
// Responses always travel with transport status 200; the outcome code is
// embedded in the JSON body.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/floegence/remedy-engine/internal/dispatch"
)

// Options configures a Server.
type Options struct {
	Logger     *slog.Logger
	Dispatcher *dispatch.Service

	// Addr is the listen address, e.g. ":9081".
	Addr string
}

// Server is the HTTP front of the engine.
type Server struct {
	log        *slog.Logger
	dispatcher *dispatch.Service
	addr       string

	httpServer *http.Server
	listener   net.Listener
}

func New(opts Options) (*Server, error) {
	if opts.Dispatcher == nil {
		return nil, errors.New("missing Dispatcher")
	}
	if strings.TrimSpace(opts.Addr) == "" {
		return nil, errors.New("missing Addr")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &Server{
		log:        logger,
		dispatcher: opts.Dispatcher,
		addr:       opts.Addr,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/", s.handleHome)
	mux.HandleFunc("GET /v1/ProcessRequest/{id}", s.handleProcessRequest)

	s.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Start binds the listen address and serves until Close.
func (s *Server) Start(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("httpapi listen %s: %w", s.addr, err)
	}
	s.listener = ln
	s.log.Info("http server listening", "addr", ln.Addr().String())

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server stopped", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound listen address, valid after Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Close shuts the server down, waiting briefly for in-flight requests.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the route handler (tests).
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":  http.StatusOK,
		"success": "Welcome to the Code Remediation AI Engine.",
	})
}

// processResponse is the body of every ProcessRequest answer. Code carries
// the outcome; the transport status is always 200.
type processResponse struct {
	RequestID  string `json:"request_id"`
	Status     string `json:"status"`
	Message    string `json:"message"`
	Code       int    `json:"code"`
	NumOfCPU   int    `json:"num_of_cpu"`
	NumThreads int    `json:"num_of_threads_created"`
}

func (s *Server) handleProcessRequest(w http.ResponseWriter, r *http.Request) {
	requestID := r.PathValue("id")
	resp := processResponse{
		RequestID:  requestID,
		NumOfCPU:   s.dispatcher.CPUCount(),
		NumThreads: s.dispatcher.WorkerCount(),
	}

	if state, ok := s.dispatcher.Status(requestID); ok {
		switch state {
		case dispatch.StateCompleted:
			resp.Status = "completed"
			resp.Message = fmt.Sprintf("Request %s has already been processed.", requestID)
			resp.Code = http.StatusOK
		case dispatch.StateFailed:
			resp.Status = "failed"
			resp.Message = fmt.Sprintf("Request %s failed during processing.", requestID)
			resp.Code = http.StatusInternalServerError
		default:
			resp.Status = "in_progress"
			resp.Message = fmt.Sprintf("Request %s is already being processed.", requestID)
			resp.Code = http.StatusAccepted
		}
		writeJSON(w, resp)
		return
	}

	if state, accepted := s.dispatcher.Enqueue(requestID); !accepted {
		if state == "" {
			// Intake is closed; nothing will pick the request up.
			resp.Status = "failed"
			resp.Message = fmt.Sprintf("Request %s was not queued: the engine is shutting down. Retry later.", requestID)
			resp.Code = http.StatusServiceUnavailable
			writeJSON(w, resp)
			return
		}
		// Lost the race against another submit.
		resp.Status = "in_progress"
		resp.Message = fmt.Sprintf("Request %s is already being processed.", requestID)
		resp.Code = http.StatusAccepted
		writeJSON(w, resp)
		return
	}

	s.log.Info("request queued", "requestid", requestID)
	resp.Status = "queued"
	resp.Message = fmt.Sprintf("Request %s has been added to the processing queue.", requestID)
	resp.Code = http.StatusAccepted
	writeJSON(w, resp)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}
