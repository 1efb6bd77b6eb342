// Package dispatch owns the request queue: an unbounded FIFO drained by a
// bounded worker pool, with a per-request state map polled by the HTTP API.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"sync"

	"github.com/shirou/gopsutil/v4/cpu"

	"github.com/floegence/remedy-engine/internal/engine"
)

// State is the lifecycle of a queued request. Completed and Failed are
// terminal; a request never leaves a terminal state.
type State string

const (
	StateQueued     State = "Queued"
	StateProcessing State = "Processing"
	StateCompleted  State = "Completed"
	StateFailed     State = "Failed"
)

// Terminal reports whether the state will never change again.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Processor runs one request to completion. Satisfied by *engine.Engine.
type Processor interface {
	Process(ctx context.Context, requestID string) engine.ProcessResult
}

// Options configures a Service.
type Options struct {
	Logger    *slog.Logger
	Processor Processor

	// MaxWorkers caps the pool size. The effective size is
	// min(2*logical CPUs, MaxWorkers).
	MaxWorkers int
}

// Service is the request dispatcher. Use New, then Start, then Close to
// drain and join the pool.
type Service struct {
	log  *slog.Logger
	proc Processor

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []string
	status map[string]State
	closed bool

	cpus    int
	workers int
	wg      sync.WaitGroup
}

func New(opts Options) (*Service, error) {
	if opts.Processor == nil {
		return nil, errors.New("missing Processor")
	}
	if opts.MaxWorkers <= 0 {
		return nil, errors.New("missing MaxWorkers")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	cpus := logicalCPUs()
	workers := 2 * cpus
	if workers > opts.MaxWorkers {
		workers = opts.MaxWorkers
	}
	if workers < 1 {
		workers = 1
	}

	s := &Service{
		log:     logger,
		proc:    opts.Processor,
		status:  make(map[string]State),
		cpus:    cpus,
		workers: workers,
	}
	s.cond = sync.NewCond(&s.mu)
	return s, nil
}

func logicalCPUs() int {
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// Start launches the worker pool. ctx is handed to every Process call.
func (s *Service) Start(ctx context.Context) {
	s.log.Info("dispatcher starting", "workers", s.workers, "cpus", s.cpus)
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}
}

// Enqueue admits a request id into the queue. Re-submitting a known id is a
// no-op: the current state is returned and accepted is false.
func (s *Service) Enqueue(requestID string) (state State, accepted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.status[requestID]; ok {
		return st, false
	}
	if s.closed {
		return "", false
	}
	s.status[requestID] = StateQueued
	s.queue = append(s.queue, requestID)
	s.cond.Signal()
	return StateQueued, true
}

// Status returns the request's current state.
func (s *Service) Status(requestID string) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.status[requestID]
	return st, ok
}

// CPUCount returns the logical CPU count used to size the pool.
func (s *Service) CPUCount() int { return s.cpus }

// WorkerCount returns the effective pool size.
func (s *Service) WorkerCount() int { return s.workers }

// Close stops intake, lets the workers drain the remaining queue, and joins
// the pool.
func (s *Service) Close() error {
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
	s.wg.Wait()
	s.log.Info("dispatcher stopped")
	return nil
}

func (s *Service) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		id, ok := s.next()
		if !ok {
			return
		}
		s.setState(id, StateProcessing)

		res := s.proc.Process(ctx, id)
		if res.Code == http.StatusOK {
			s.setState(id, StateCompleted)
			s.log.Info("request completed", "requestid", id)
		} else {
			s.setState(id, StateFailed)
			s.log.Error("request failed", "requestid", id, "message", res.Message, "code", res.Code)
		}
	}
}

func (s *Service) next() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.queue) == 0 && !s.closed {
		s.cond.Wait()
	}
	if len(s.queue) == 0 {
		return "", false
	}
	id := s.queue[0]
	s.queue = s.queue[1:]
	return id, true
}

func (s *Service) setState(requestID string, st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.status[requestID]; ok && cur.Terminal() {
		return
	}
	s.status[requestID] = st
}
