package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

const defaultMaxAttempts = 3

// ErrMaxRetries indicates the model never produced a response matching the
// expected JSON shape within the attempt budget.
var ErrMaxRetries = errors.New("max retries reached: failed to obtain valid JSON from the model")

// Options configures a Client.
type Options struct {
	Logger   *slog.Logger
	Provider Provider

	ModelName string

	// InvocationDelay is the fixed pause between corrective retries.
	InvocationDelay time.Duration

	// MaxAttempts bounds total completion attempts per call (first try
	// included). Defaults to 3.
	MaxAttempts int

	// Sleep overrides the delay function (tests). Defaults to time.Sleep.
	Sleep func(time.Duration)
}

// Client drives JSON-validated completions with bounded corrective retry.
// Transport errors surface immediately; only schema errors (unparseable JSON
// or missing required keys) trigger a re-prompt that embeds the previous
// parse error and the expected schema.
type Client struct {
	log      *slog.Logger
	provider Provider

	model       string
	delay       time.Duration
	maxAttempts int
	sleep       func(time.Duration)
}

func New(opts Options) (*Client, error) {
	if opts.Provider == nil {
		return nil, errors.New("missing Provider")
	}
	model := strings.TrimSpace(opts.ModelName)
	if model == "" {
		return nil, errors.New("missing ModelName")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	return &Client{
		log:         logger,
		provider:    opts.Provider,
		model:       model,
		delay:       opts.InvocationDelay,
		maxAttempts: maxAttempts,
		sleep:       sleep,
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string {
	if c == nil {
		return ""
	}
	return c.model
}

// PostCallDelay pauses for the configured invocation delay. Callers invoke it
// after every completion regardless of outcome to respect the endpoint's rate
// limit.
func (c *Client) PostCallDelay() {
	if c == nil || c.delay <= 0 {
		return
	}
	c.sleep(c.delay)
}

// CompleteJSON sends prompt and returns the first response text that passes
// validate. On validation failure it re-prompts with a corrective message up
// to the attempt budget, pausing the invocation delay between attempts.
func (c *Client) CompleteJSON(ctx context.Context, prompt, schemaHint string, maxTokens int, validate func(string) error) (string, error) {
	if c == nil {
		return "", errors.New("nil client")
	}
	if validate == nil {
		return "", errors.New("missing validate")
	}

	current := prompt
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		text, err := c.provider.Complete(ctx, CompletionRequest{
			Model:     c.model,
			Prompt:    current,
			MaxTokens: maxTokens,
		})
		if err != nil {
			// Transport-level failure: not retried.
			c.log.Error("model call failed", "model", c.model, "attempt", attempt, "error", err)
			return "", err
		}
		c.log.Info("model response received", "model", c.model, "attempt", attempt, "bytes", len(text))

		if err := validate(text); err == nil {
			return text, nil
		} else {
			lastErr = err
			c.log.Warn("model response failed validation", "attempt", attempt, "error", err)
		}

		if attempt < c.maxAttempts {
			if c.delay > 0 {
				c.sleep(c.delay)
			}
			current = correctivePrompt(text, lastErr, schemaHint)
		}
	}
	return "", fmt.Errorf("%w (last error: %v)", ErrMaxRetries, lastErr)
}

func correctivePrompt(lastResponse string, parseErr error, schemaHint string) string {
	var sb strings.Builder
	sb.WriteString("The following text is not a valid JSON string:\n```")
	sb.WriteString(lastResponse)
	sb.WriteString("```\nWhen trying to parse it, one gets the following error:\n```")
	if parseErr != nil {
		sb.WriteString(parseErr.Error())
	}
	sb.WriteString("```\nIt should match the following structure:\n```")
	sb.WriteString(schemaHint)
	sb.WriteString("```\n\nMake sure your response is a valid JSON string.\n")
	sb.WriteString("Respond only the JSON string, and only the JSON string. ")
	sb.WriteString("Do not enclose the JSON string in triple quotes, backslashes, ... ")
	sb.WriteString("Do not add comments outside of the JSON structure.\n")
	return sb.String()
}

// Remediate runs a remediation prompt and parses the structured response.
func (c *Client) Remediate(ctx context.Context, prompt, schemaHint string, maxTokens int) (*RemediationResponse, error) {
	var out *RemediationResponse
	_, err := c.CompleteJSON(ctx, prompt, schemaHint, maxTokens, func(text string) error {
		r, err := ParseRemediation(text)
		if err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Cleanup runs a whole-file cleanup prompt and parses the structured
// response.
func (c *Client) Cleanup(ctx context.Context, prompt, schemaHint string, maxTokens int) (*CleanupResponse, error) {
	var out *CleanupResponse
	_, err := c.CompleteJSON(ctx, prompt, schemaHint, maxTokens, func(text string) error {
		r, err := ParseCleanup(text)
		if err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
