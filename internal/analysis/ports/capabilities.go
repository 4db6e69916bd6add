// Package ports defines the interfaces the analysis domain requires from
// external model providers. Live, canned and rate-limited implementations are
// chosen by the composition root; the orchestrator only sees these interfaces.
package ports

import (
	"context"
	"errors"

	"ticketchain/internal/chains/prompt"
	"ticketchain/internal/tickets/domain"
)

// CompletionOptions carries per-call overrides for a text completion.
type CompletionOptions struct {
	Model        string
	SystemPrompt string
	MaxTokens    int32
}

// TextCompleter produces a free-form Phase 1 narrative.
type TextCompleter interface {
	// Complete sends prompt and returns the model's text. A *TransientError
	// (or an error that classifies as retryable) may be retried; anything
	// else is fatal for this chain.
	Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error)
}

// RunStatus is the remote state of a Phase 2 run.
type RunStatus string

const (
	RunQueued     RunStatus = "queued"
	RunInProgress RunStatus = "in_progress"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
	RunExpired    RunStatus = "expired"
	RunCancelled  RunStatus = "cancelled"
)

// Terminal reports whether polling can stop.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunExpired, RunCancelled:
		return true
	}
	return false
}

// RunRequest describes one Phase 2 run.
type RunRequest struct {
	Prompt      string
	AssistantID string
	Model       string
	Chain       domain.Chain
	Files       []prompt.File
}

// RunCapability drives a tool-augmented structured extraction.
type RunCapability interface {
	CreateRun(ctx context.Context, req RunRequest) (string, error)
	GetRunStatus(ctx context.Context, runID string) (RunStatus, error)
	GetRunOutput(ctx context.Context, runID string) ([]byte, error)
	// CancelRun may return ErrCancelUnsupported.
	CancelRun(ctx context.Context, runID string) error
}

// RunReleaser is implemented by capabilities that hold remote resources
// (uploaded files, vector stores) for the lifetime of a run.
type RunReleaser interface {
	ReleaseRun(ctx context.Context, runID string) error
}

// ErrCancelUnsupported is returned by capabilities that cannot cancel a run.
var ErrCancelUnsupported = errors.New("run cancellation not supported")

// TransientError marks a failure worth retrying.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err's chain holds a *TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
