package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "engine.sqlite"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRequestRoundTrip(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	req := Request{
		RequestID:     "req-1",
		TenantID:      "t1",
		ApplicationID: "app1",
		RepoURL:       "https://git.example.invalid/org/shop.git",
		IssueID:       1202,
		Details: []RequestDetail{
			{PromptID: "p1", Objects: []ObjectDetail{{ObjectID: "42"}, {ObjectID: "43"}}},
		},
	}
	if err := s.CreateRequest(ctx, req); err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}

	got, err := s.GetRequest(ctx, "req-1")
	if err != nil {
		t.Fatalf("GetRequest: %v", err)
	}
	if got.TenantID != "t1" || got.IssueID != 1202 || len(got.Details) != 1 || len(got.Details[0].Objects) != 2 {
		t.Fatalf("request=%+v", got)
	}
	if got.RepoName() != "shop" {
		t.Fatalf("RepoName=%q, want shop", got.RepoName())
	}

	if err := s.UpdateRequestStatus(ctx, "req-1", "partial success"); err != nil {
		t.Fatalf("UpdateRequestStatus: %v", err)
	}
	got, err = s.GetRequest(ctx, "req-1")
	if err != nil {
		t.Fatalf("GetRequest: %v", err)
	}
	if got.Status != "partial success" {
		t.Fatalf("Status=%q", got.Status)
	}
}

func TestGetRequestNotFound(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	if _, err := s.GetRequest(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v, want ErrNotFound", err)
	}
	if err := s.UpdateRequestStatus(context.Background(), "nope", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdateRequestStatus err=%v, want ErrNotFound", err)
	}
}

func TestPromptLookup(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	if err := s.UpsertPrompt(ctx, Prompt{IssueID: 1202, PromptID: "p1", Technology: "Java", Prompt: "remove it"}); err != nil {
		t.Fatalf("UpsertPrompt: %v", err)
	}
	text, err := s.GetPrompt(ctx, 1202, "p1")
	if err != nil {
		t.Fatalf("GetPrompt: %v", err)
	}
	if text != "remove it" {
		t.Fatalf("prompt=%q", text)
	}

	// Upsert replaces.
	if err := s.UpsertPrompt(ctx, Prompt{IssueID: 1202, PromptID: "p1", Prompt: "new text"}); err != nil {
		t.Fatalf("UpsertPrompt replace: %v", err)
	}
	text, _ = s.GetPrompt(ctx, 1202, "p1")
	if text != "new text" {
		t.Fatalf("prompt after upsert=%q", text)
	}

	if _, err := s.GetPrompt(ctx, 9999, "p1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v, want ErrNotFound", err)
	}
}

func TestReplaceEngineOutputOverwrites(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	type doc struct {
		Status string `json:"status"`
	}
	if err := s.ReplaceEngineOutput(ctx, "req-1", doc{Status: "failure"}); err != nil {
		t.Fatalf("ReplaceEngineOutput: %v", err)
	}
	if err := s.ReplaceEngineOutput(ctx, "req-1", doc{Status: "success"}); err != nil {
		t.Fatalf("ReplaceEngineOutput again: %v", err)
	}
	var got doc
	if err := s.GetEngineOutput(ctx, "req-1", &got); err != nil {
		t.Fatalf("GetEngineOutput: %v", err)
	}
	if got.Status != "success" {
		t.Fatalf("output=%+v, want replaced record", got)
	}

	var missing doc
	if err := s.GetEngineOutput(ctx, "other", &missing); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v, want ErrNotFound", err)
	}
}

func TestExceptionLog(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	if err := s.LogException(ctx, "processRequest", errors.New("boom"), "stack"); err != nil {
		t.Fatalf("LogException: %v", err)
	}
	entries, err := s.ListExceptions(ctx, 10)
	if err != nil {
		t.Fatalf("ListExceptions: %v", err)
	}
	if len(entries) != 1 || entries[0].Function != "processRequest" || entries[0].Error != "boom" {
		t.Fatalf("entries=%+v", entries)
	}
}

func TestSeedPrompts(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "prompts.yaml")
	seed := `issues:
  - issueid: 1202
    technologies:
      - technology: Java
        prompts:
          - promptid: p1
            prompt: |
              Remove the flagged pattern from the code below.
          - promptid: p2
            prompt: second prompt
`
	if err := os.WriteFile(path, []byte(seed), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	n, err := s.SeedPrompts(ctx, path)
	if err != nil {
		t.Fatalf("SeedPrompts: %v", err)
	}
	if n != 2 {
		t.Fatalf("seeded=%d, want 2", n)
	}
	text, err := s.GetPrompt(ctx, 1202, "p2")
	if err != nil {
		t.Fatalf("GetPrompt: %v", err)
	}
	if text != "second prompt" {
		t.Fatalf("prompt=%q", text)
	}
}
