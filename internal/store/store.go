// Package store is the sqlite-backed record store for the engine. One table
// per logical collection: request intake, prompt library, aggregate outputs,
// updated file contents, and the exception log.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Store is a local SQLite-backed persistence layer.
//
// WAL is enabled to support concurrent reads while a worker is writing.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	p := filepath.Clean(strings.TrimSpace(path))
	if p == "" {
		return nil, errors.New("missing db path")
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL`,
		`CREATE TABLE IF NOT EXISTS engine_inputs (
  request_id      TEXT PRIMARY KEY,
  tenant_id       TEXT NOT NULL,
  application_id  TEXT NOT NULL,
  repo_url        TEXT NOT NULL DEFAULT '',
  issue_id        INTEGER NOT NULL,
  details_json    TEXT NOT NULL,
  status          TEXT NOT NULL DEFAULT '',
  created_at_unix_ms INTEGER NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS prompts (
  issue_id   INTEGER NOT NULL,
  prompt_id  TEXT NOT NULL,
  technology TEXT NOT NULL DEFAULT '',
  prompt     TEXT NOT NULL,
  PRIMARY KEY (issue_id, prompt_id)
)`,
		`CREATE TABLE IF NOT EXISTS engine_outputs (
  request_id  TEXT PRIMARY KEY,
  output_json TEXT NOT NULL,
  created_at_unix_ms INTEGER NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS file_contents (
  request_id   TEXT PRIMARY KEY,
  payload_json TEXT NOT NULL,
  created_at_unix_ms INTEGER NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS exception_log (
  id         INTEGER PRIMARY KEY AUTOINCREMENT,
  function   TEXT NOT NULL,
  error      TEXT NOT NULL,
  trace      TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL
)`,
	}
	for _, q := range stmts {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Request is one remediation request as received from intake.
type Request struct {
	RequestID     string          `json:"requestid"`
	TenantID      string          `json:"tenantid"`
	ApplicationID string          `json:"applicationid"`
	RepoURL       string          `json:"repourl"`
	IssueID       int             `json:"issueid"`
	Status        string          `json:"status,omitempty"`
	Details       []RequestDetail `json:"requestdetail"`
}

// RequestDetail groups flagged objects under the prompt that remediates them.
type RequestDetail struct {
	PromptID string         `json:"promptid"`
	Objects  []ObjectDetail `json:"objectdetails"`
}

type ObjectDetail struct {
	ObjectID string `json:"objectid"`
}

// RepoName derives the repository name from the request's repo URL.
func (r *Request) RepoName() string {
	if r == nil {
		return ""
	}
	raw := strings.TrimSpace(r.RepoURL)
	if raw == "" {
		return ""
	}
	raw = strings.TrimSuffix(raw, "/")
	if i := strings.LastIndex(raw, "/"); i >= 0 {
		raw = raw[i+1:]
	}
	return strings.TrimSuffix(raw, ".git")
}

// CreateRequest inserts a new intake record. The request id must be unused.
func (s *Store) CreateRequest(ctx context.Context, r Request) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	if strings.TrimSpace(r.RequestID) == "" {
		return errors.New("missing request id")
	}
	details, err := json.Marshal(r.Details)
	if err != nil {
		return fmt.Errorf("encode request details: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO engine_inputs (request_id, tenant_id, application_id, repo_url, issue_id, details_json, status, created_at_unix_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`, r.RequestID, r.TenantID, r.ApplicationID, r.RepoURL, r.IssueID, string(details), r.Status, time.Now().UnixMilli())
	return err
}

// GetRequest loads the intake record for a request id.
func (s *Store) GetRequest(ctx context.Context, requestID string) (*Request, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return nil, errors.New("missing request id")
	}

	var r Request
	var details string
	err := s.db.QueryRowContext(ctx, `
SELECT request_id, tenant_id, application_id, repo_url, issue_id, details_json, status
FROM engine_inputs WHERE request_id = ?
`, requestID).Scan(&r.RequestID, &r.TenantID, &r.ApplicationID, &r.RepoURL, &r.IssueID, &details, &r.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("request %s: %w", requestID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(details), &r.Details); err != nil {
		return nil, fmt.Errorf("decode request details: %w", err)
	}
	return &r, nil
}

// UpdateRequestStatus sets the terminal status on the intake record.
func (s *Store) UpdateRequestStatus(ctx context.Context, requestID, status string) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	res, err := s.db.ExecContext(ctx, `UPDATE engine_inputs SET status = ? WHERE request_id = ?`, status, strings.TrimSpace(requestID))
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("request %s: %w", requestID, ErrNotFound)
	}
	return nil
}

// Prompt is one prompt-library entry.
type Prompt struct {
	IssueID    int    `json:"issueid"`
	PromptID   string `json:"promptid"`
	Technology string `json:"technology,omitempty"`
	Prompt     string `json:"prompt"`
}

// UpsertPrompt inserts or replaces a prompt-library entry.
func (s *Store) UpsertPrompt(ctx context.Context, p Prompt) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	if strings.TrimSpace(p.PromptID) == "" {
		return errors.New("missing prompt id")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO prompts (issue_id, prompt_id, technology, prompt) VALUES (?, ?, ?, ?)
ON CONFLICT (issue_id, prompt_id) DO UPDATE SET technology = excluded.technology, prompt = excluded.prompt
`, p.IssueID, p.PromptID, p.Technology, p.Prompt)
	return err
}

// GetPrompt resolves prompt text by issue id and prompt id.
func (s *Store) GetPrompt(ctx context.Context, issueID int, promptID string) (string, error) {
	if s == nil || s.db == nil {
		return "", errors.New("store not initialized")
	}
	var text string
	err := s.db.QueryRowContext(ctx, `
SELECT prompt FROM prompts WHERE issue_id = ? AND prompt_id = ?
`, issueID, strings.TrimSpace(promptID)).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("prompt %d/%s: %w", issueID, promptID, ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	return text, nil
}

// ReplaceEngineOutput replaces the aggregate output record for a request id.
// Delete and insert run in one transaction so a crash cannot lose the prior
// record without a replacement.
func (s *Store) ReplaceEngineOutput(ctx context.Context, requestID string, output any) error {
	return s.replaceJSON(ctx, "engine_outputs", "output_json", requestID, output)
}

// GetEngineOutput loads the aggregate output record into out.
func (s *Store) GetEngineOutput(ctx context.Context, requestID string, out any) error {
	return s.getJSON(ctx, "engine_outputs", "output_json", requestID, out)
}

// ReplaceFileContents replaces the updated-file payload record for a request
// id.
func (s *Store) ReplaceFileContents(ctx context.Context, requestID string, payload any) error {
	return s.replaceJSON(ctx, "file_contents", "payload_json", requestID, payload)
}

// GetFileContents loads the updated-file payload record into out.
func (s *Store) GetFileContents(ctx context.Context, requestID string, out any) error {
	return s.getJSON(ctx, "file_contents", "payload_json", requestID, out)
}

func (s *Store) replaceJSON(ctx context.Context, table, column, requestID string, v any) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return errors.New("missing request id")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s record: %w", table, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE request_id = ?`, table), requestID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s (request_id, %s, created_at_unix_ms) VALUES (?, ?, ?)`, table, column), requestID, string(b), time.Now().UnixMilli()); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) getJSON(ctx context.Context, table, column, requestID string, out any) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	var raw string
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE request_id = ?`, column, table), strings.TrimSpace(requestID)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s for request %s: %w", table, requestID, ErrNotFound)
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(raw), out)
}

// LogException appends to the centralized error log. Best-effort: callers
// treat a logging failure as non-fatal.
func (s *Store) LogException(ctx context.Context, function string, cause error, trace string) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO exception_log (function, error, trace, created_at) VALUES (?, ?, ?, ?)
`, strings.TrimSpace(function), msg, trace, time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

// ExceptionEntry is one row of the centralized error log.
type ExceptionEntry struct {
	ID        int64  `json:"id"`
	Function  string `json:"function"`
	Error     string `json:"error"`
	Trace     string `json:"trace,omitempty"`
	CreatedAt string `json:"created_at"`
}

// ListExceptions returns the newest entries of the error log.
func (s *Store) ListExceptions(ctx context.Context, limit int) ([]ExceptionEntry, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, function, error, trace, created_at FROM exception_log ORDER BY id DESC LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ExceptionEntry
	for rows.Next() {
		var e ExceptionEntry
		if err := rows.Scan(&e.ID, &e.Function, &e.Error, &e.Trace, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
