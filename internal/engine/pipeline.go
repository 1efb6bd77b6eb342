package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/floegence/remedy-engine/internal/imaging"
	"github.com/floegence/remedy-engine/internal/patch"
	"github.com/floegence/remedy-engine/internal/store"
)

// ProcessResult is the terminal outcome of one request, surfaced to callers
// polling the HTTP API. Code carries the HTTP-style outcome embedded in the
// response body.
type ProcessResult struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
	Message   string `json:"message"`
	Code      int    `json:"code"`
}

const timestampLayout = "2006-01-02_15-04-05"

// Process runs a stored request end to end: resolve prompts, remediate each
// object, splice the accumulated edits into full files, run the cleanup pass,
// and persist the aggregate output and the updated files. Panics are caught
// and logged to the exception log; the request then reports as failed.
func (e *Engine) Process(ctx context.Context, requestID string) (res ProcessResult) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic while processing request %s: %v", requestID, r)
			e.log.Error("request processing panicked", "requestid", requestID, "panic", r)
			_ = e.store.LogException(ctx, "processRequest", err, string(debug.Stack()))
			res = ProcessResult{
				RequestID: requestID,
				Status:    "failed",
				Message:   err.Error(),
				Code:      http.StatusInternalServerError,
			}
		}
	}()

	req, err := e.store.GetRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			msg := fmt.Sprintf("Req -> %s Not Found or Incorrect EngineInput!", requestID)
			e.log.Error(msg)
			_ = e.store.LogException(ctx, "processRequest", errors.New(msg), "")
			return ProcessResult{RequestID: requestID, Status: "failed", Message: msg, Code: http.StatusNotFound}
		}
		_ = e.store.LogException(ctx, "processRequest", err, "")
		return ProcessResult{RequestID: requestID, Status: "failed", Message: err.Error(), Code: http.StatusInternalServerError}
	}

	timestamp := e.now().UTC().Format(timestampLayout)
	out := &EngineOutput{
		RequestID:     req.RequestID,
		IssueID:       req.IssueID,
		ApplicationID: req.ApplicationID,
		Objects:       []ObjectOutcome{},
		Files:         []*FileEdits{},
		CreatedDate:   timestamp,
	}
	scope := imaging.Scope{Tenant: req.TenantID, Application: req.ApplicationID}

	for _, detail := range req.Details {
		promptText, err := e.store.GetPrompt(ctx, req.IssueID, detail.PromptID)
		if err != nil {
			// Without a prompt every object in this detail fails; there is
			// nothing to send to the model.
			e.log.Error("prompt lookup failed", "issueid", req.IssueID, "promptid", detail.PromptID, "error", err)
			for _, od := range detail.Objects {
				out.Objects = append(out.Objects, ObjectOutcome{
					ObjectID: od.ObjectID,
					Status:   StatusFailure,
					Message:  fmt.Sprintf("failed because of reason: prompt %s not found for issue %d", detail.PromptID, req.IssueID),
				})
			}
			continue
		}
		for _, od := range detail.Objects {
			e.remediateObject(ctx, scope, promptText, od.ObjectID, out)
		}
	}

	out.Status = AggregateStatus(out.Objects)

	files := FilesContent{
		RequestID:   req.RequestID,
		Updated:     []FilePayload{},
		CreatedDate: timestamp,
	}
	repoName := req.RepoName()
	for _, f := range out.Files {
		modified, err := patch.Apply(f.original, f.Edits)
		if err != nil {
			// Conflicting ranges from propagation; the file is left unstaged
			// and the conflict lands in the exception log.
			e.log.Error("edit splice failed", "file", f.Path, "error", err)
			_ = e.store.LogException(ctx, "spliceEdits", err, "")
			continue
		}
		text := e.cleanupFile(ctx, patch.Join(modified))
		files.Updated = append(files.Updated, FilePayload{
			FileID:  newFileID(),
			Path:    repoRelativePath(f.Path, repoName),
			Content: text,
		})
	}

	if err := e.store.UpdateRequestStatus(ctx, req.RequestID, out.Status); err != nil {
		_ = e.store.LogException(ctx, "processRequest", err, "")
		return ProcessResult{RequestID: requestID, Status: "failed", Message: err.Error(), Code: http.StatusInternalServerError}
	}
	if err := e.store.ReplaceEngineOutput(ctx, req.RequestID, out); err != nil {
		_ = e.store.LogException(ctx, "processRequest", err, "")
		return ProcessResult{RequestID: requestID, Status: "failed", Message: err.Error(), Code: http.StatusInternalServerError}
	}
	if err := e.store.ReplaceFileContents(ctx, req.RequestID, files); err != nil {
		_ = e.store.LogException(ctx, "processRequest", err, "")
		return ProcessResult{RequestID: requestID, Status: "failed", Message: err.Error(), Code: http.StatusInternalServerError}
	}

	e.log.Info("request processed", "requestid", requestID, "status", out.Status, "objects", len(out.Objects), "files", len(files.Updated))
	return ProcessResult{
		RequestID: requestID,
		Status:    "success",
		Message:   fmt.Sprintf("Req -> %s Successful.", requestID),
		Code:      http.StatusOK,
	}
}

// cleanupFile sends the reassembled file through a final model pass to fix
// syntax and imports broken by splicing. Any failure, including a file too
// large for the token budget, falls back to the spliced text unchanged.
func (e *Engine) cleanupFile(ctx context.Context, text string) string {
	prompt := buildCleanupPrompt(text)
	target, ok := e.budget.Admit(e.model.Model(), prompt, text)
	if !ok {
		e.log.Warn("cleanup prompt too long, keeping spliced content")
		return text
	}
	resp, err := e.model.Cleanup(ctx, prompt, cleanupSchemaHint, target)
	e.model.PostCallDelay()
	if err != nil {
		e.log.Error("cleanup pass failed, keeping spliced content", "error", err)
		return text
	}
	return resp.Code
}

// repoRelativePath normalizes a source path to forward slashes and trims any
// checkout prefix ahead of the repository name.
func repoRelativePath(path, repoName string) string {
	path = strings.ReplaceAll(path, `\`, "/")
	if repoName == "" {
		return path
	}
	if i := strings.LastIndex(path, repoName); i >= 0 {
		return repoName + path[i+len(repoName):]
	}
	return path
}
