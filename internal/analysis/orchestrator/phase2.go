package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ticketchain/internal/analysis/domain"
	"ticketchain/internal/analysis/ports"
	"ticketchain/platform/logger"
	"ticketchain/platform/validator"
)

const cleanupTimeout = 30 * time.Second

func (o *Orchestrator) runPhase2(ctx context.Context, req Request, log *logger.Logger) *domain.AnalysisResult {
	assistantID := firstNonEmpty(req.AssistantID, o.settings.DefaultAssistantID)
	result := o.newResult(req.Chain, domain.PhaseExtraction, firstNonEmpty(assistantID, req.Model, o.settings.DefaultModel))
	deadline := o.clock.Now().Add(o.settings.MaxWait)

	var runID string
	exhausted, err := o.retry(ctx, "run_create", log, func() error {
		var callErr error
		runID, callErr = o.runs.CreateRun(ctx, ports.RunRequest{
			Prompt:      req.Instructions,
			AssistantID: assistantID,
			Model:       req.Model,
			Chain:       req.Chain,
			Files:       req.Files,
		})
		return callErr
	})
	if err != nil {
		if exhausted && ctx.Err() != nil {
			o.fail(result, domain.ReasonPhase2Timeout, "request deadline reached before run creation: "+err.Error())
		} else {
			o.fail(result, domain.ReasonPhase2RunFailed, "create run: "+err.Error())
		}
		return result
	}
	log.Info("phase2 run created", "runId", runID)
	defer o.release(ctx, runID, log)

	status, err := o.poll(ctx, runID, deadline, log)
	if err != nil {
		if errors.Is(err, errPollTimeout) || ctx.Err() != nil {
			o.cancel(ctx, runID, log)
			o.fail(result, domain.ReasonPhase2Timeout, err.Error())
			return result
		}
		o.fail(result, domain.ReasonPhase2RunFailed, err.Error())
		return result
	}

	switch status {
	case ports.RunExpired:
		o.fail(result, domain.ReasonPhase2Timeout, "remote run expired")
		return result
	case ports.RunFailed, ports.RunCancelled:
		o.fail(result, domain.ReasonPhase2RunFailed, "remote run "+string(status))
		return result
	}

	var raw []byte
	if _, err := o.retry(ctx, "run_output", log, func() error {
		var callErr error
		raw, callErr = o.runs.GetRunOutput(ctx, runID)
		return callErr
	}); err != nil {
		o.fail(result, domain.ReasonPhase2RunFailed, "fetch output: "+err.Error())
		return result
	}

	payload, err := domain.DecodePayload(raw)
	if err != nil {
		o.fail(result, domain.ReasonPhase2SchemaInvalid, err.Error())
		return result
	}
	if err := o.validate.Struct(payload); err != nil {
		o.fail(result, domain.ReasonPhase2SchemaInvalid, strings.Join(validator.Describe(err), "; "))
		return result
	}
	if err := payload.CheckRelationships(req.Chain); err != nil {
		o.fail(result, domain.ReasonPhase2SchemaInvalid, err.Error())
		return result
	}
	result.Payload = payload
	o.complete(result)
	return result
}

var errPollTimeout = errors.New("phase2 deadline exceeded")

// poll asks for the run status until it is terminal. The loop stops at the
// deadline or after MaxPolls iterations, whichever comes first.
func (o *Orchestrator) poll(ctx context.Context, runID string, deadline time.Time, log *logger.Logger) (ports.RunStatus, error) {
	interval := o.settings.PollInterval
	for i := 1; i <= o.settings.MaxPolls; i++ {
		if !o.clock.Now().Before(deadline) {
			return "", fmt.Errorf("%w after %s", errPollTimeout, o.settings.MaxWait)
		}
		status, err := o.runs.GetRunStatus(ctx, runID)
		switch {
		case err == nil && status.Terminal():
			return status, nil
		case err == nil:
			log.Debug("phase2 poll", "runId", runID, "poll", i, "status", string(status))
		case ctx.Err() != nil:
			return "", ctx.Err()
		case ports.IsTransient(err):
			log.ModelCallFailed("run_status", i, true, err)
		default:
			return "", fmt.Errorf("poll run status: %w", err)
		}

		wait := min(interval, deadline.Sub(o.clock.Now()))
		if err := o.clock.Sleep(ctx, wait); err != nil {
			return "", err
		}
		interval = o.settings.nextPoll(interval)
	}
	return "", fmt.Errorf("%w: %d polls without a terminal status", errPollTimeout, o.settings.MaxPolls)
}

func (o *Orchestrator) cancel(ctx context.Context, runID string, log *logger.Logger) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	err := o.runs.CancelRun(cctx, runID)
	switch {
	case err == nil:
		log.Info("phase2 run cancelled", "runId", runID)
	case errors.Is(err, ports.ErrCancelUnsupported):
		log.Warn("phase2 run left to expire remotely", "runId", runID)
	default:
		log.Warn("phase2 cancel failed", "runId", runID, slog.String("error", err.Error()))
	}
}

func (o *Orchestrator) release(ctx context.Context, runID string, log *logger.Logger) {
	releaser, ok := o.runs.(ports.RunReleaser)
	if !ok {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := releaser.ReleaseRun(rctx, runID); err != nil {
		log.Warn("phase2 release failed", "runId", runID, slog.String("error", err.Error()))
	}
}
