// Package orchestrator drives a chain through the two analysis phases:
// a narrative completion with bounded retries, then a tool-augmented run
// polled to a terminal status under a deadline.
package orchestrator

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"ticketchain/internal/analysis/domain"
	"ticketchain/internal/analysis/ports"
	"ticketchain/internal/chains/prompt"
	tickets "ticketchain/internal/tickets/domain"
	"ticketchain/platform/logger"
	"ticketchain/platform/validator"
)

// Request is one chain's analysis input.
type Request struct {
	Chain tickets.Chain
	// Prompt is the composed Phase 1 document text.
	Prompt string
	// Instructions and Files feed the Phase 2 run.
	Instructions string
	Files        []prompt.File

	Model       string
	AssistantID string

	// SkipPhase1 runs Phase 2 directly. Only the composition root for mock
	// runs and tests sets it.
	SkipPhase1 bool
	SkipPhase2 bool
}

// Outcome holds the records produced for one chain and the final state.
type Outcome struct {
	Phase1  *domain.AnalysisResult
	Phase2  *domain.AnalysisResult
	State   domain.State
	History []domain.State
}

// Failed returns the failed record, if any.
func (o Outcome) Failed() *domain.AnalysisResult {
	for _, r := range []*domain.AnalysisResult{o.Phase1, o.Phase2} {
		if r != nil && r.Status == domain.StatusFailed {
			return r
		}
	}
	return nil
}

// Results returns the produced records in phase order.
func (o Outcome) Results() []domain.AnalysisResult {
	var out []domain.AnalysisResult
	if o.Phase1 != nil {
		out = append(out, *o.Phase1)
	}
	if o.Phase2 != nil {
		out = append(out, *o.Phase2)
	}
	return out
}

// Orchestrator runs the phase state machine. It holds no per-chain state, so
// one instance serves concurrent chains.
type Orchestrator struct {
	completer ports.TextCompleter
	runs      ports.RunCapability
	clock     ports.Clock
	validate  *validator.Validator
	settings  Settings
	log       *logger.Logger
	jitter    func(time.Duration) time.Duration
}

// New creates an Orchestrator. A nil clock uses the system clock.
func New(completer ports.TextCompleter, runs ports.RunCapability, clock ports.Clock, settings Settings, log *logger.Logger) *Orchestrator {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &Orchestrator{
		completer: completer,
		runs:      runs,
		clock:     clock,
		validate:  validator.New(),
		settings:  settings.withDefaults(),
		log:       log,
		jitter:    halfJitter,
	}
}

// WithJitter replaces the backoff jitter function. Tests pass the identity.
func (o *Orchestrator) WithJitter(fn func(time.Duration) time.Duration) *Orchestrator {
	o.jitter = fn
	return o
}

// Settings returns the effective settings.
func (o *Orchestrator) Settings() Settings { return o.settings }

// Run executes the phases for one chain. It never returns an error: every
// failure is recorded on the outcome with its reason.
func (o *Orchestrator) Run(ctx context.Context, req Request) Outcome {
	log := o.log.WithChain(req.Chain.ID)
	m := domain.NewMachine()
	out := Outcome{}

	move := func(to domain.State) {
		from := m.State()
		if err := m.Transition(to); err != nil {
			panic(err)
		}
		log.PhaseTransition(req.Chain.ID, from.String(), to.String())
	}

	if !req.SkipPhase1 {
		move(domain.StatePhase1Running)
		out.Phase1 = o.runPhase1(ctx, req, log)
		if out.Phase1.Status == domain.StatusFailed {
			move(domain.StateFailed)
			return o.finish(out, m)
		}
		move(domain.StatePhase1Complete)
		if req.SkipPhase2 {
			return o.finish(out, m)
		}
	}

	move(domain.StatePhase2Running)
	out.Phase2 = o.runPhase2(ctx, req, log)
	if out.Phase2.Status == domain.StatusFailed {
		move(domain.StateFailed)
	} else {
		move(domain.StatePhase2Complete)
	}
	return o.finish(out, m)
}

func (o *Orchestrator) finish(out Outcome, m *domain.Machine) Outcome {
	out.State = m.State()
	out.History = m.History()
	return out
}

func (o *Orchestrator) newResult(chain tickets.Chain, phase domain.Phase, modelID string) *domain.AnalysisResult {
	return &domain.AnalysisResult{
		ID:           uuid.New(),
		ChainID:      chain.ID,
		SeedTicketID: chain.SeedTicketID,
		Phase:        phase,
		Status:       domain.StatusPending,
		ModelID:      modelID,
		TicketCount:  len(chain.Tickets),
		Partial:      chain.Partial,
		CreatedAt:    domain.NormalizeTime(o.clock.Now()),
	}
}

func (o *Orchestrator) complete(r *domain.AnalysisResult) {
	now := domain.NormalizeTime(o.clock.Now())
	r.Status = domain.StatusComplete
	r.CompletedAt = &now
}

func (o *Orchestrator) fail(r *domain.AnalysisResult, reason domain.FailureReason, detail string) {
	now := domain.NormalizeTime(o.clock.Now())
	r.Status = domain.StatusFailed
	r.FailureReason = reason
	r.FailureDetail = detail
	r.CompletedAt = &now
}

// retry calls fn until it succeeds, fails with a non-transient error, or the
// attempt budget is spent. It reports whether the budget ran out.
func (o *Orchestrator) retry(ctx context.Context, capability string, log *logger.Logger, fn func() error) (exhausted bool, err error) {
	for attempt := 1; ; attempt++ {
		err = fn()
		if err == nil {
			return false, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return true, ctxErr
		}
		transient := ports.IsTransient(err)
		log.ModelCallFailed(capability, attempt, transient, err)
		if !transient {
			return false, err
		}
		if attempt >= o.settings.Phase1MaxAttempts {
			return true, err
		}
		if sleepErr := o.clock.Sleep(ctx, o.jitter(o.settings.backoff(attempt))); sleepErr != nil {
			return true, sleepErr
		}
	}
}

func halfJitter(d time.Duration) time.Duration {
	if d <= 1 {
		return d
	}
	half := d / 2
	return half + rand.N(d-half+1)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
