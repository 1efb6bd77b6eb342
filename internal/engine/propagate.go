package engine

import (
	"context"
	"fmt"

	"github.com/floegence/remedy-engine/internal/imaging"
)

// reviewDependent asks the model whether a caller of a just-modified object
// needs a follow-up change, and stages the resulting edit if it does. The
// returned outcome is marked with the parent object it depends on.
func (e *Engine) reviewDependent(ctx context.Context, scope imaging.Scope, dep dependent, parentID, parentInfo string, out *EngineOutput) ObjectOutcome {
	outcome := ObjectOutcome{
		ObjectID:      dep.id,
		DependentInfo: fmt.Sprintf("this object is dependent on ObjectID-%s", parentID),
	}

	prompt := buildDependentPrompt(dep.typeID, dep.signature, parentInfo, dep.fullCode)
	target, ok := e.budget.Admit(e.model.Model(), prompt, dep.fullCode)
	if !ok {
		e.log.Warn("prompt too long, skipping dependent", "objectid", dep.id)
		outcome.Status = StatusFailure
		outcome.Message = "failed because of reason: prompt too long"
		return outcome
	}

	resp, err := e.model.Remediate(ctx, prompt, dependentSchemaHint, target)
	e.model.PostCallDelay()
	if err != nil {
		outcome.Status = StatusFailure
		outcome.Message = err.Error()
		return outcome
	}

	if !resp.UpdatedYes() {
		outcome.Status = StatusUnmodified
		outcome.Message = resp.Comment
		return outcome
	}

	header, footer := provenanceComment(resp)
	loc := imaging.SourceLocation{
		FilePath:  dep.path,
		FileID:    dep.fileID,
		StartLine: dep.startLine,
		EndLine:   dep.endLine,
	}
	e.recordEdit(ctx, scope, out, loc, header+resp.Code+footer)

	outcome.Status = StatusSuccess
	outcome.Message = resp.Comment
	return outcome
}
