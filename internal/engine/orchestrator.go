package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/floegence/remedy-engine/internal/imaging"
	"github.com/floegence/remedy-engine/internal/patch"
)

// dependent is one caller of the object under remediation, resolved to its
// own source range plus the call-site snippet used for impact analysis.
type dependent struct {
	id        string
	typeID    string
	signature string
	linkType  string
	bookmark  string
	path      string
	fileID    int
	startLine int
	endLine   int
	fullCode  string
}

// remediateObject runs one object through the model and appends its outcome
// (and the outcomes of any dependent callers reviewed as a consequence) to
// out. Edits against source files accumulate in out for later reassembly.
func (e *Engine) remediateObject(ctx context.Context, scope imaging.Scope, promptContent, objectID string, out *EngineOutput) {
	outcome := ObjectOutcome{ObjectID: objectID}
	e.log.Info("processing object", "objectid", objectID)

	obj, err := e.imaging.GetObject(ctx, scope, objectID)
	if err != nil {
		outcome.Status = StatusFailure
		outcome.Message = fmt.Sprintf("failed because of reason: %v", err)
		out.Objects = append(out.Objects, outcome)
		return
	}
	if len(obj.Locations) == 0 {
		outcome.Status = StatusFailure
		outcome.Message = fmt.Sprintf("failed because of reason: sourceLocations not available for object %s from the imaging API", objectID)
		out.Objects = append(out.Objects, outcome)
		return
	}
	if bool(obj.External) {
		outcome.Status = StatusFailure
		outcome.Message = "failed because of reason: it is an external object and does not carry sourceLocations"
		out.Objects = append(out.Objects, outcome)
		return
	}

	loc := obj.Primary()
	code, err := e.imaging.GetSourceRange(ctx, scope, loc.FileID, loc.StartLine, loc.EndLine)
	if err != nil {
		// Degrade to an empty snippet; the model still gets the prompt and
		// the impact context.
		e.log.Error("failed to fetch object code", "objectid", objectID, "error", err)
		code = ""
	}

	exceptionText := e.collectExceptionContext(ctx, scope, obj)

	deps, externalCaller := e.collectDependents(ctx, scope, objectID)
	if externalCaller {
		outcome.Status = StatusFailure
		outcome.Message = "failed because of reason: it is an external object and does not carry sourceLocations"
		out.Objects = append(out.Objects, outcome)
		return
	}
	impactText := buildImpactText(obj.TypeID, obj.Mangling, deps)

	prompt := buildRemediationPrompt(promptContent, code, impactText, exceptionText)
	target, ok := e.budget.Admit(e.model.Model(), prompt, code)
	if !ok {
		e.log.Warn("prompt too long, skipping object", "objectid", objectID)
		outcome.Status = StatusFailure
		outcome.Message = "failed because of reason: prompt too long"
		out.Objects = append(out.Objects, outcome)
		return
	}

	resp, err := e.model.Remediate(ctx, prompt, remediationSchemaHint, target)
	e.model.PostCallDelay()
	if err != nil {
		outcome.Status = StatusFailure
		outcome.Message = err.Error()
		out.Objects = append(out.Objects, outcome)
		return
	}

	if !resp.UpdatedYes() {
		outcome.Status = StatusUnmodified
		outcome.Message = resp.Comment
		out.Objects = append(out.Objects, outcome)
		return
	}

	header, footer := provenanceComment(resp)
	e.recordEdit(ctx, scope, out, loc, header+resp.Code+footer)

	outcome.Status = StatusSuccess
	outcome.Message = resp.Comment
	out.Objects = append(out.Objects, outcome)

	if resp.AnyImpact() && len(deps) > 0 {
		for _, dep := range deps {
			parentInfo := buildParentInfo(dep.typeID, dep.signature, dep.fullCode, obj.TypeID, loc.FilePath, resp)
			out.Objects = append(out.Objects, e.reviewDependent(ctx, scope, dep, objectID, parentInfo, out))
		}
	}
}

// recordEdit stages a line-range replacement against the file of loc,
// fetching the full original content the first time the file is touched.
func (e *Engine) recordEdit(ctx context.Context, scope imaging.Scope, out *EngineOutput, loc imaging.SourceLocation, replacement string) {
	var original []string
	if out.fileFor(loc.FilePath) == nil {
		text, err := e.imaging.GetFileContent(ctx, scope, loc.FileID)
		if err != nil {
			e.log.Error("failed to fetch file content", "fileid", loc.FileID, "error", err)
		}
		original = patch.SplitLines(text)
	}
	out.addEdit(loc.FilePath, loc.FileID, original, patch.Range{Start: loc.StartLine, End: loc.EndLine}, replacement)
}

// collectExceptionContext gathers raise/throw/catch edges from the object's
// callees into a single context sentence, grouping exception names by link
// type with duplicates removed.
func (e *Engine) collectExceptionContext(ctx context.Context, scope imaging.Scope, obj *imaging.Object) string {
	callees, err := e.imaging.GetCallees(ctx, scope, obj.ID)
	if err != nil {
		e.log.Error("failed to fetch callees", "objectid", obj.ID, "error", err)
		return ""
	}

	byType := make(map[string][]string)
	for _, link := range callees {
		if !link.IsExceptionEdge() {
			continue
		}
		kind := strings.ToLower(strings.TrimSpace(link.LinkType))
		seen := false
		for _, name := range byType[kind] {
			if name == link.Name {
				seen = true
				break
			}
		}
		if !seen {
			byType[kind] = append(byType[kind], link.Name)
		}
	}
	if len(byType) == 0 {
		return ""
	}

	kinds := make([]string, 0, len(byType))
	for kind := range byType {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	groups := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		groups = append(groups, fmt.Sprintf("%s %s", kind, strings.Join(byType[kind], ", ")))
	}
	text := fmt.Sprintf("Take into account that %s <%s>: %s", obj.TypeID, obj.Mangling, strings.Join(groups, "; "))
	e.log.Info("exception context", "objectid", obj.ID, "text", text)
	return text
}

// collectDependents resolves the object's callers into dependents with their
// source ranges, full code, and call-site snippets. A caller marked external
// aborts the whole object (second return true); callers whose metadata cannot
// be fetched or that carry no source locations are skipped.
func (e *Engine) collectDependents(ctx context.Context, scope imaging.Scope, objectID string) ([]dependent, bool) {
	callers, err := e.imaging.GetCallers(ctx, scope, objectID)
	if err != nil {
		e.log.Error("failed to fetch callers", "objectid", objectID, "error", err)
		return nil, false
	}

	var deps []dependent
	for _, link := range callers {
		meta, err := e.imaging.GetObject(ctx, scope, link.ID)
		if err != nil {
			e.log.Error("failed to fetch caller metadata", "callerid", link.ID, "error", err)
			continue
		}
		if bool(meta.External) {
			return nil, true
		}
		if len(meta.Locations) == 0 {
			e.log.Warn("caller without source locations, skipping", "callerid", link.ID)
			continue
		}
		loc := meta.Primary()

		fullCode, err := e.imaging.GetSourceRange(ctx, scope, loc.FileID, loc.StartLine, loc.EndLine)
		if err != nil {
			e.log.Error("failed to fetch caller code", "callerid", link.ID, "error", err)
			fullCode = ""
		}

		var bookmarkCode string
		if len(link.Bookmarks) > 0 {
			bm := link.Bookmarks[0]
			bookmarkCode, err = e.imaging.GetSourceRange(ctx, scope, bm.FileID, max(bm.StartLine-1, 0), max(bm.EndLine-1, 0))
			if err != nil {
				e.log.Error("failed to fetch call-site snippet", "callerid", link.ID, "error", err)
				bookmarkCode = ""
			}
		}

		deps = append(deps, dependent{
			id:        link.ID,
			typeID:    meta.TypeID,
			signature: meta.Mangling,
			linkType:  link.LinkType,
			bookmark:  bookmarkCode,
			path:      loc.FilePath,
			fileID:    loc.FileID,
			startLine: loc.StartLine,
			endLine:   loc.EndLine,
			fullCode:  fullCode,
		})
	}
	return deps, false
}

// buildImpactText renders the dependents as a numbered usage list for the
// prompt's impact-analysis section.
func buildImpactText(objType, objSignature string, deps []dependent) string {
	if len(deps) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Take into account that %s <%s> is used by:\n", objType, objSignature)
	for i, dep := range deps {
		fmt.Fprintf(&b, " %d. %s <%s> has a <%s> dependency as found in code:\n", i+1, dep.typeID, dep.signature, dep.linkType)
		fmt.Fprintf(&b, "````\n\t%s\n````\n", dep.bookmark)
	}
	return b.String()
}
