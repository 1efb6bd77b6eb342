package engine

import (
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/floegence/remedy-engine/internal/ai"
	"github.com/floegence/remedy-engine/internal/imaging"
	"github.com/floegence/remedy-engine/internal/store"
	"github.com/floegence/remedy-engine/internal/tokens"
)

// Options configures an Engine.
type Options struct {
	Logger  *slog.Logger
	Imaging *imaging.Client
	Model   *ai.Client
	Store   *store.Store
	Budget  tokens.Budget

	// Now overrides the clock used for record timestamps (tests).
	Now func() time.Time
}

// Engine executes remediation requests end to end: object orchestration,
// dependent-code review, file reassembly, and persistence.
type Engine struct {
	log     *slog.Logger
	imaging *imaging.Client
	model   *ai.Client
	store   *store.Store
	budget  tokens.Budget
	now     func() time.Time
}

func New(opts Options) (*Engine, error) {
	if opts.Imaging == nil {
		return nil, errors.New("missing Imaging")
	}
	if opts.Model == nil {
		return nil, errors.New("missing Model")
	}
	if opts.Store == nil {
		return nil, errors.New("missing Store")
	}
	if opts.Budget.MaxInputTokens <= 0 || opts.Budget.MaxOutputTokens <= 0 {
		return nil, errors.New("missing token budget")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Engine{
		log:     logger,
		imaging: opts.Imaging,
		model:   opts.Model,
		store:   opts.Store,
		budget:  opts.Budget,
		now:     now,
	}, nil
}
