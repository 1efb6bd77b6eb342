package engine

import (
	"fmt"
	"strings"

	"github.com/floegence/remedy-engine/internal/ai"
)

// JSON structure hints embedded in prompts and in corrective retries. The
// model is asked to answer with exactly these keys.
const remediationSchemaHint = `{
"updated":"<YES/NO to state if you updated the code or not (if you believe it did not need fixing)>",
"comment":"<explain here what you updated (or the reason why you did not update it)>",
"missing_information":"<list here information needed to finalize the code (or NA if nothing is needed or if the code was not updated)>",
"signature_impact":"<YES/NO/UNKNOWN, to state here if the signature of the code will be updated as a consequence of changed parameter list, types, return type, etc.>",
"exception_impact":"<YES/NO/UNKNOWN, to state here if the exception handling related to the code will be update, as a consequence of changed exception thrown or caught, etc.>",
"enclosed_impact":"<YES/NO/UNKNOWN, to state here if the code update could impact code enclosed in it in the same source file, such as methods defined in updated class, etc.>",
"other_impact":"<YES/NO/UNKNOWN, to state here if the code update could impact any other code referencing this code>",
"impact_comment":"<comment here on signature, exception, enclosed, other impacts on any other code calling this one (or NA if not applicable)>",
"code":"<the fixed code goes here (or original code if the code was not updated)>"
}`

const dependentSchemaHint = `{
"updated":"<YES/NO to state if you updated the dependent code or not (if you believe it did not need updating)>",
"comment":"<explain here what you updated (or NA if the dependent code does not need to be updated)>",
"missing_information":"<list here information needed to finalize the dependent code (or NA if nothing is needed or if the dependent code was not updated)>",
"signature_impact":"<YES/NO/UNKNOWN, to state here if the signature of the dependent code will be updated as a consequence of changed parameter list, types, return type, etc.>",
"exception_impact":"<YES/NO/UNKNOWN, to state here if the exception handling related to the dependent code will be update, as a consequence of changed exception thrown or caught, etc.>",
"enclosed_impact":"<YES/NO/UNKNOWN, to state here if the dependent code update could impact further code enclosed in it in the same source file, such as methods defined in updated class, etc.>",
"other_impact":"<YES/NO/UNKNOWN, to state here if the dependent code update could impact any other code referencing this code>",
"impact_comment":"<comment here on signature, exception, enclosed, other impacts on any other code calling this one (or NA if not applicable)>",
"code":"<the updated dependent code goes here (or original dependent code if the dependent code was not updated)>"
}`

const cleanupSchemaHint = `{
"updated":"<YES/NO to state if you updated the code or not (if you believe it did not need fixing)>",
"comment":"<explain here what you updated (or the reason why you did not update it)>",
"code":"<the fixed code goes here (or original code if the code was not updated)>"
}`

const jsonOnlyFooter = "\nMake sure your response is a valid JSON string.\n" +
	"Respond only the JSON string, and only the JSON string. " +
	"Do not enclose the JSON string in triple quotes, backslashes, ... Do not add comments outside of the JSON structure.\n"

// buildRemediationPrompt assembles the primary per-object prompt: the issue
// prompt from the library, the object code, and optional impact and exception
// context gathered from the dependency graph.
func buildRemediationPrompt(promptContent, code, impactText, exceptionText string) string {
	var b strings.Builder
	b.WriteString(promptContent)
	b.WriteString("\n\n\nTASK:\n")
	b.WriteString("1/ Generate a version without the pattern occurrence(s) of the following code, ")
	fmt.Fprintf(&b, "'''\n%s\n'''\n", code)
	b.WriteString("2/ Provide an analysis of the transformation: detail what you did in the 'comment' field, forecast ")
	b.WriteString("impacts on code signature, exception management, enclosed objects or other areas in the ")
	b.WriteString("'signature_impact', 'exception_impact', 'enclosed_impact', and 'other_impact' fields respectively, ")
	b.WriteString("with some comments on your prognostics in the 'impact_comment' field.\n")
	fmt.Fprintf(&b, "\nGUIDELINES:\nUse the following JSON structure to respond:\n'''\n%s\n'''\n", remediationSchemaHint)
	if impactText != "" || exceptionText != "" {
		fmt.Fprintf(&b, "\nIMPACT ANALYSIS CONTEXT:\n%s\n%s\n", impactText, exceptionText)
	}
	b.WriteString(jsonOnlyFooter)
	return b.String()
}

// buildDependentPrompt asks the model to review one caller of an object that
// was just modified, given a description of the parent change.
func buildDependentPrompt(depType, depSignature, parentInfo, depCode string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CONTEXT: %s <%s> is dependent on code that was modified by an AI: \n", depType, depSignature)
	b.WriteString(parentInfo)
	b.WriteString(" \nTASK:\nCheck and update if needed the following code: \n")
	fmt.Fprintf(&b, "'''\n%s\n'''", depCode)
	fmt.Fprintf(&b, "GUIDELINES: \nUse the following JSON structure to respond: \n'''\n%s\n'''\n", dependentSchemaHint)
	b.WriteString(jsonOnlyFooter)
	return b.String()
}

// buildCleanupPrompt asks the model to sanity-check a fully reassembled file
// after all per-object replacements have been spliced in.
func buildCleanupPrompt(fullCode string) string {
	var b strings.Builder
	b.WriteString("TASK:\n")
	b.WriteString("1) fix syntax errors.\n")
	b.WriteString("2) add only missing packages.\n")
	b.WriteString("3) add single line comments saying that this is fixed by Gen AI for the lines only fixed by Gen AI.\n")
	b.WriteString("4) do not remove already existing comments.\n")
	b.WriteString("5) indent the code properly.\n")
	fmt.Fprintf(&b, "'''\n%s\n'''\n", fullCode)
	fmt.Fprintf(&b, "GUIDELINES:\nUse the following JSON structure to respond:\n'''\n%s\n'''\n", cleanupSchemaHint)
	b.WriteString(jsonOnlyFooter)
	return b.String()
}

// buildParentInfo describes a parent object's change to a dependent caller:
// the caller's own code, where the parent lives, what the model changed, and
// the impact flags it predicted.
func buildParentInfo(depType, depSignature, depFullCode, parentType, parentPath string, resp *ai.RemediationResponse) string {
	reason := resp.ImpactComment
	if reason == "NA" {
		reason = resp.Comment
	}
	var b strings.Builder
	fmt.Fprintf(&b, "The %s <%s> source code is the following:\n```\n%s\n```\n", depType, depSignature, depFullCode)
	fmt.Fprintf(&b, "This source code is defined in the %s <%s>.\n", parentType, parentPath)
	fmt.Fprintf(&b, "The %s <%s> was updated by an AI the following way: [%s].\n", parentType, parentPath, resp.Comment)
	b.WriteString("The AI predicted the following impacts on related code:\n")
	fmt.Fprintf(&b, "* on signature: %s\n", resp.SignatureImpact)
	fmt.Fprintf(&b, "* on exceptions: %s\n", resp.ExceptionImpact)
	fmt.Fprintf(&b, "* on enclosed objects: %s\n", resp.EnclosedImpact)
	fmt.Fprintf(&b, "* other: %s\n", resp.OtherImpact)
	fmt.Fprintf(&b, "for the following reason: [%s].", reason)
	return b.String()
}

// provenanceComment builds the header comment spliced in above replacement
// code, carrying the model's self-reported analysis, and the matching footer.
func provenanceComment(resp *ai.RemediationResponse) (header, footer string) {
	const c = "//"
	header = fmt.Sprintf(
		" %[1]s This code is fixed by GEN AI \n %[1]s AI update comment : %s \n %[1]s AI missing information : %s \n"+
			" %[1]s AI signature impact : %s \n %[1]s AI exception impact : %s \n %[1]s AI enclosed code impact : %s \n"+
			" %[1]s AI other impact : %s \n %[1]s AI impact comment : %s \n",
		c, resp.Comment, resp.MissingInformation, resp.SignatureImpact,
		resp.ExceptionImpact, resp.EnclosedImpact, resp.OtherImpact, resp.ImpactComment,
	)
	footer = "\n// End of GEN AI fix"
	return header, footer
}
