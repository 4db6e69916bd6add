package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"ticketchain/internal/analysis/ports"
	"ticketchain/platform/ai/openai"
	"ticketchain/platform/logger"
)

// AssistantRuns runs Phase 2 on an OpenAI assistant with file_search. Each run
// gets its own vector store holding the chain documents; ReleaseRun deletes
// them once the run is over.
type AssistantRuns struct {
	client *openai.AssistantsClient
	log    *logger.Logger

	mu        sync.Mutex
	resources map[string]runResources
}

type runResources struct {
	vectorStoreID string
	fileIDs       []string
}

// NewAssistantRuns creates the live run capability.
func NewAssistantRuns(client *openai.AssistantsClient, log *logger.Logger) *AssistantRuns {
	return &AssistantRuns{client: client, log: log, resources: make(map[string]runResources)}
}

// CreateRun uploads the chain files, indexes them and starts a run.
func (a *AssistantRuns) CreateRun(ctx context.Context, req ports.RunRequest) (string, error) {
	if req.AssistantID == "" {
		return "", errors.New("no assistant configured; run setup-assistant or set ASSISTANT_ID")
	}

	res := runResources{}
	for _, f := range req.Files {
		uploaded, err := a.client.UploadFile(ctx, f.Name, f.Content)
		if err != nil {
			a.cleanup(ctx, res)
			return "", classify(fmt.Errorf("upload %s: %w", f.Name, err))
		}
		res.fileIDs = append(res.fileIDs, uploaded.ID)
	}

	var storeIDs []string
	if len(res.fileIDs) > 0 {
		store, err := a.client.CreateVectorStore(ctx, "chain-"+req.Chain.ID, res.fileIDs)
		if err != nil {
			a.cleanup(ctx, res)
			return "", classify(fmt.Errorf("create vector store: %w", err))
		}
		res.vectorStoreID = store.ID
		storeIDs = []string{store.ID}
	}

	run, err := a.client.CreateThreadAndRun(ctx, openai.CreateThreadRunRequest{
		AssistantID:    req.AssistantID,
		Model:          req.Model,
		Message:        req.Prompt,
		VectorStoreIDs: storeIDs,
	})
	if err != nil {
		a.cleanup(ctx, res)
		return "", classify(fmt.Errorf("create run: %w", err))
	}

	runID := run.ThreadID + ":" + run.ID
	a.mu.Lock()
	a.resources[runID] = res
	a.mu.Unlock()
	return runID, nil
}

// GetRunStatus maps the remote run status onto ports.RunStatus.
func (a *AssistantRuns) GetRunStatus(ctx context.Context, runID string) (ports.RunStatus, error) {
	threadID, id, err := splitRunID(runID)
	if err != nil {
		return "", err
	}
	run, err := a.client.GetRun(ctx, threadID, id)
	if err != nil {
		return "", classify(err)
	}
	switch run.Status {
	case "queued":
		return ports.RunQueued, nil
	case "in_progress", "cancelling":
		return ports.RunInProgress, nil
	case "completed":
		return ports.RunCompleted, nil
	case "expired":
		return ports.RunExpired, nil
	case "cancelled":
		return ports.RunCancelled, nil
	default:
		// failed, incomplete, requires_action
		if run.LastError != nil {
			a.log.Warn("assistant run failed", "runId", runID, "code", run.LastError.Code, "message", run.LastError.Message)
		}
		return ports.RunFailed, nil
	}
}

// GetRunOutput returns the assistant's reply text.
func (a *AssistantRuns) GetRunOutput(ctx context.Context, runID string) ([]byte, error) {
	threadID, id, err := splitRunID(runID)
	if err != nil {
		return nil, err
	}
	text, err := a.client.RunOutputText(ctx, threadID, id)
	if err != nil {
		return nil, classify(err)
	}
	return []byte(text), nil
}

// CancelRun asks the API to stop the run.
func (a *AssistantRuns) CancelRun(ctx context.Context, runID string) error {
	threadID, id, err := splitRunID(runID)
	if err != nil {
		return err
	}
	_, err = a.client.CancelRun(ctx, threadID, id)
	return err
}

// ReleaseRun deletes the vector store and files created for runID.
func (a *AssistantRuns) ReleaseRun(ctx context.Context, runID string) error {
	a.mu.Lock()
	res, ok := a.resources[runID]
	delete(a.resources, runID)
	a.mu.Unlock()
	if !ok {
		return nil
	}
	return a.cleanup(ctx, res)
}

func (a *AssistantRuns) cleanup(ctx context.Context, res runResources) error {
	var errs []error
	if res.vectorStoreID != "" {
		if err := a.client.DeleteVectorStore(ctx, res.vectorStoreID); err != nil {
			errs = append(errs, fmt.Errorf("delete vector store %s: %w", res.vectorStoreID, err))
		}
	}
	for _, id := range res.fileIDs {
		if err := a.client.DeleteFile(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("delete file %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func splitRunID(runID string) (string, string, error) {
	threadID, id, ok := strings.Cut(runID, ":")
	if !ok || threadID == "" || id == "" {
		return "", "", fmt.Errorf("malformed run id %q", runID)
	}
	return threadID, id, nil
}
