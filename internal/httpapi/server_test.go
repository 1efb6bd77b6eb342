package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/floegence/remedy-engine/internal/dispatch"
	"github.com/floegence/remedy-engine/internal/engine"
)

// blockableProcessor completes requests with a fixed code, optionally holding
// them in flight until released.
type blockableProcessor struct {
	code  int
	block chan struct{}
}

func (p *blockableProcessor) Process(_ context.Context, requestID string) engine.ProcessResult {
	if p.block != nil {
		<-p.block
	}
	return engine.ProcessResult{RequestID: requestID, Code: p.code}
}

func newTestServer(t *testing.T, proc dispatch.Processor) (*Server, *dispatch.Service) {
	t.Helper()
	d, err := dispatch.New(dispatch.Options{
		Logger:     slog.New(slog.DiscardHandler),
		Processor:  proc,
		MaxWorkers: 1,
	})
	if err != nil {
		t.Fatalf("dispatch.New: %v", err)
	}
	d.Start(context.Background())
	t.Cleanup(func() { _ = d.Close() })

	s, err := New(Options{
		Logger:     slog.New(slog.DiscardHandler),
		Dispatcher: d,
		Addr:       ":0",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, d
}

func getProcessRequest(t *testing.T, s *Server, id string) (int, processResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/v1/ProcessRequest/"+id, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var body processResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return rec.Code, body
}

func waitTerminal(t *testing.T, d *dispatch.Service, id string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if st, ok := d.Status(id); ok && st.Terminal() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("request %s never reached a terminal state", id)
}

func TestHome(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, &blockableProcessor{code: http.StatusOK})
	req := httptest.NewRequest(http.MethodGet, "/v1/", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["success"] == "" || body["status"] != float64(http.StatusOK) {
		t.Fatalf("body=%v", body)
	}
}

func TestProcessRequestQueuesNewID(t *testing.T) {
	t.Parallel()

	proc := &blockableProcessor{code: http.StatusOK, block: make(chan struct{})}
	s, _ := newTestServer(t, proc)

	status, body := getProcessRequest(t, s, "req-1")
	if status != http.StatusOK {
		t.Fatalf("transport status=%d, want 200 always", status)
	}
	if body.Status != "queued" || body.Code != http.StatusAccepted {
		t.Fatalf("body=%+v", body)
	}
	if body.NumOfCPU < 1 || body.NumThreads < 1 {
		t.Fatalf("body=%+v, want CPU and worker counts", body)
	}

	// Polling again while in flight reports progress, not a second enqueue.
	status, body = getProcessRequest(t, s, "req-1")
	if status != http.StatusOK || body.Status != "in_progress" || body.Code != http.StatusAccepted {
		t.Fatalf("second poll=%d %+v", status, body)
	}
	close(proc.block)
}

func TestProcessRequestCompleted(t *testing.T) {
	t.Parallel()

	s, d := newTestServer(t, &blockableProcessor{code: http.StatusOK})
	getProcessRequest(t, s, "req-1")
	waitTerminal(t, d, "req-1")

	status, body := getProcessRequest(t, s, "req-1")
	if status != http.StatusOK || body.Status != "completed" || body.Code != http.StatusOK {
		t.Fatalf("poll=%d %+v", status, body)
	}
}

func TestProcessRequestAfterShutdown(t *testing.T) {
	t.Parallel()

	s, d := newTestServer(t, &blockableProcessor{code: http.StatusOK})
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	status, body := getProcessRequest(t, s, "late")
	if status != http.StatusOK {
		t.Fatalf("transport status=%d, want 200 always", status)
	}
	if body.Status != "failed" || body.Code != http.StatusServiceUnavailable {
		t.Fatalf("body=%+v, want failed/503 when intake is closed", body)
	}
}

func TestProcessRequestFailed(t *testing.T) {
	t.Parallel()

	s, d := newTestServer(t, &blockableProcessor{code: http.StatusNotFound})
	getProcessRequest(t, s, "req-1")
	waitTerminal(t, d, "req-1")

	status, body := getProcessRequest(t, s, "req-1")
	if status != http.StatusOK {
		t.Fatalf("transport status=%d, want 200 even for failures", status)
	}
	if body.Status != "failed" || body.Code != http.StatusInternalServerError {
		t.Fatalf("body=%+v", body)
	}
}
