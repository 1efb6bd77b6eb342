package ai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RemediationResponse is the model's answer to a remediation or
// dependent-review prompt. All fields are required on the wire; validation
// fails fast on missing keys rather than surfacing zero values deep in the
// pipeline.
type RemediationResponse struct {
	Updated            string `json:"updated"`
	Comment            string `json:"comment"`
	MissingInformation string `json:"missing_information"`
	SignatureImpact    string `json:"signature_impact"`
	ExceptionImpact    string `json:"exception_impact"`
	EnclosedImpact     string `json:"enclosed_impact"`
	OtherImpact        string `json:"other_impact"`
	ImpactComment      string `json:"impact_comment"`
	Code               string `json:"code"`
}

var remediationRequiredKeys = []string{
	"updated", "comment", "missing_information",
	"signature_impact", "exception_impact", "enclosed_impact", "other_impact",
	"impact_comment", "code",
}

// UpdatedYes reports whether the model says it changed the code.
func (r *RemediationResponse) UpdatedYes() bool {
	return r != nil && strings.EqualFold(strings.TrimSpace(r.Updated), "yes")
}

// AnyImpact reports whether any of the four impact flags is an affirmative
// YES. UNKNOWN does not count as an impact.
func (r *RemediationResponse) AnyImpact() bool {
	if r == nil {
		return false
	}
	for _, v := range []string{r.SignatureImpact, r.ExceptionImpact, r.EnclosedImpact, r.OtherImpact} {
		if strings.EqualFold(strings.TrimSpace(v), "yes") {
			return true
		}
	}
	return false
}

// ParseRemediation decodes and validates a remediation response payload.
func ParseRemediation(text string) (*RemediationResponse, error) {
	raw, err := requireKeys(text, remediationRequiredKeys)
	if err != nil {
		return nil, err
	}
	var r RemediationResponse
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode remediation response: %w", err)
	}
	return &r, nil
}

// CleanupResponse is the model's answer to a whole-file cleanup prompt.
type CleanupResponse struct {
	Updated string `json:"updated"`
	Comment string `json:"comment"`
	Code    string `json:"code"`
}

var cleanupRequiredKeys = []string{"updated", "comment", "code"}

func (r *CleanupResponse) UpdatedYes() bool {
	return r != nil && strings.EqualFold(strings.TrimSpace(r.Updated), "yes")
}

// ParseCleanup decodes and validates a cleanup response payload.
func ParseCleanup(text string) (*CleanupResponse, error) {
	raw, err := requireKeys(text, cleanupRequiredKeys)
	if err != nil {
		return nil, err
	}
	var r CleanupResponse
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode cleanup response: %w", err)
	}
	return &r, nil
}

func requireKeys(text string, keys []string) ([]byte, error) {
	raw := []byte(strings.TrimSpace(text))
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %w", err)
	}
	var missing []string
	for _, k := range keys {
		if _, ok := m[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("response is missing required keys: %s", strings.Join(missing, ", "))
	}
	return raw, nil
}
