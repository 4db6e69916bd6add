package orchestrator

import (
	"context"
	"fmt"

	"ticketchain/internal/analysis/domain"
	"ticketchain/internal/analysis/ports"
	"ticketchain/platform/logger"
)

const narrativeSystemPrompt = "You analyze field service ticket chains and answer in the requested section format."

func (o *Orchestrator) runPhase1(ctx context.Context, req Request, log *logger.Logger) *domain.AnalysisResult {
	model := firstNonEmpty(req.Model, o.settings.DefaultModel)
	result := o.newResult(req.Chain, domain.PhaseNarrative, model)

	var text string
	exhausted, err := o.retry(ctx, "completion", log, func() error {
		var callErr error
		text, callErr = o.completer.Complete(ctx, req.Prompt, ports.CompletionOptions{
			Model:        model,
			SystemPrompt: narrativeSystemPrompt,
		})
		return callErr
	})
	switch {
	case err != nil && exhausted:
		o.fail(result, domain.ReasonPhase1Exhausted,
			fmt.Sprintf("gave up after %d attempts: %v", o.settings.Phase1MaxAttempts, err))
		return result
	case err != nil:
		o.fail(result, domain.ReasonPhase1Fatal, err.Error())
		return result
	}

	result.Narrative = text
	result.Sections = domain.ParseNarrative(text)
	o.complete(result)
	return result
}
