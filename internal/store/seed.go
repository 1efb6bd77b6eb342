package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// PromptLibraryFile is the YAML layout of a prompt-library seed file:
//
//	issues:
//	  - issueid: 1202
//	    technologies:
//	      - technology: Java
//	        prompts:
//	          - promptid: p1
//	            prompt: |
//	              Remove the flagged pattern ...
type PromptLibraryFile struct {
	Issues []PromptIssue `yaml:"issues"`
}

type PromptIssue struct {
	IssueID      int                `yaml:"issueid"`
	Technologies []PromptTechnology `yaml:"technologies"`
}

type PromptTechnology struct {
	Technology string        `yaml:"technology"`
	Prompts    []PromptEntry `yaml:"prompts"`
}

type PromptEntry struct {
	PromptID string `yaml:"promptid"`
	Prompt   string `yaml:"prompt"`
}

// SeedPrompts loads a YAML prompt-library file into the prompts table,
// replacing entries that share an (issue id, prompt id) key. Returns the
// number of prompts written.
func (s *Store) SeedPrompts(ctx context.Context, path string) (int, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("store not initialized")
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return 0, errors.New("missing prompt library path")
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var lib PromptLibraryFile
	if err := yaml.Unmarshal(b, &lib); err != nil {
		return 0, fmt.Errorf("parse prompt library: %w", err)
	}

	n := 0
	for _, issue := range lib.Issues {
		for _, tech := range issue.Technologies {
			for _, entry := range tech.Prompts {
				if strings.TrimSpace(entry.PromptID) == "" || strings.TrimSpace(entry.Prompt) == "" {
					return n, fmt.Errorf("prompt library issue %d: entry with empty promptid or prompt", issue.IssueID)
				}
				if err := s.UpsertPrompt(ctx, Prompt{
					IssueID:    issue.IssueID,
					PromptID:   entry.PromptID,
					Technology: tech.Technology,
					Prompt:     entry.Prompt,
				}); err != nil {
					return n, err
				}
				n++
			}
		}
	}
	return n, nil
}
