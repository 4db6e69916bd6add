package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"

	"ticketchain/internal/analysis/domain"
	"ticketchain/internal/analysis/ports"
	tickets "ticketchain/internal/tickets/domain"
)

// CannedModelID is recorded on results produced by the canned capabilities.
const CannedModelID = "mock"

// CannedCompleter returns a fixed four-section narrative derived only from
// its input, so identical prompts give identical answers.
type CannedCompleter struct {
	mu    sync.Mutex
	calls int
}

// NewCannedCompleter creates a canned completer.
func NewCannedCompleter() *CannedCompleter { return &CannedCompleter{} }

// Calls returns how many completions were served.
func (c *CannedCompleter) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Complete implements ports.TextCompleter.
func (c *CannedCompleter) Complete(ctx context.Context, prompt string, _ ports.CompletionOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()

	h := fnv.New32a()
	h.Write([]byte(prompt))
	lines := strings.Count(prompt, "\n") + 1
	return fmt.Sprintf(`1. Timeline of Events:
Mock timeline reconstructed from %d prompt lines.

2. Relationship Map:
Each dispatch is linked to the turnups that follow it.

3. Anomalies/Issues:
None detected in mock mode.

4. Summary:
Mock analysis %08x.`, lines, h.Sum32()), nil
}

// CannedRuns simulates a file_search run. A run reports queued, then
// in_progress, then FinalStatus, or cancelled once CancelRun was called for
// it; the output is built from the chain itself.
type CannedRuns struct {
	// StepsToFinish is how many status polls return a non-terminal status.
	StepsToFinish int
	// FinalStatus defaults to completed.
	FinalStatus ports.RunStatus

	mu   sync.Mutex
	seq  int
	runs map[string]*cannedRun
}

type cannedRun struct {
	chain     tickets.Chain
	polls     int
	cancelled bool
}

// NewCannedRuns creates a canned run capability that completes after two polls.
func NewCannedRuns() *CannedRuns {
	return &CannedRuns{StepsToFinish: 2, FinalStatus: ports.RunCompleted, runs: make(map[string]*cannedRun)}
}

// Created returns how many runs were started.
func (c *CannedRuns) Created() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

func (c *CannedRuns) CreateRun(ctx context.Context, req ports.RunRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.runs == nil {
		c.runs = make(map[string]*cannedRun)
	}
	c.seq++
	id := fmt.Sprintf("mock_thread_%d:mock_run_%d", c.seq, c.seq)
	c.runs[id] = &cannedRun{chain: req.Chain}
	return id, nil
}

func (c *CannedRuns) GetRunStatus(_ context.Context, runID string) (ports.RunStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	run, ok := c.runs[runID]
	if !ok {
		return "", fmt.Errorf("unknown run %q", runID)
	}
	run.polls++
	switch {
	case run.cancelled:
		return ports.RunCancelled, nil
	case run.polls > c.StepsToFinish:
		if c.FinalStatus == "" {
			return ports.RunCompleted, nil
		}
		return c.FinalStatus, nil
	case run.polls == 1:
		return ports.RunQueued, nil
	default:
		return ports.RunInProgress, nil
	}
}

func (c *CannedRuns) GetRunOutput(_ context.Context, runID string) ([]byte, error) {
	c.mu.Lock()
	run, ok := c.runs[runID]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown run %q", runID)
	}
	raw, err := json.Marshal(CannedPayload(run.chain))
	if err != nil {
		return nil, err
	}
	return []byte("```json\n" + string(raw) + "\n```"), nil
}

func (c *CannedRuns) CancelRun(_ context.Context, runID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	run, ok := c.runs[runID]
	if !ok {
		return fmt.Errorf("unknown run %q", runID)
	}
	run.cancelled = true
	return nil
}

// ReleaseRun forgets the run.
func (c *CannedRuns) ReleaseRun(_ context.Context, runID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.runs, runID)
	return nil
}

// CannedPayload builds a schema-valid extraction from the chain. Turnups are
// assigned to dispatches round-robin in ID order.
func CannedPayload(chain tickets.Chain) domain.Payload {
	p := domain.Payload{
		Timeline:      []domain.PayloadEvent{},
		Relationships: map[string][]string{},
		Shortages:     []domain.Shortage{},
		Revisits:      []domain.Revisit{},
		Billing:       []domain.BillingNote{},
		Anomalies:     []domain.Anomaly{},
	}
	dispatches := chain.ByCategory(tickets.CategoryDispatch)
	turnups := chain.ByCategory(tickets.CategoryTurnup)
	for _, d := range dispatches {
		p.Relationships[d.ID] = []string{}
	}
	for i, t := range turnups {
		if len(dispatches) > 0 {
			d := dispatches[i%len(dispatches)]
			p.Relationships[d.ID] = append(p.Relationships[d.ID], t.ID)
		}
		if t.Phase() == tickets.PhaseRevisit {
			p.Revisits = append(p.Revisits, domain.Revisit{TicketID: t.ID, Reason: "revisit scheduled"})
		}
	}
	for _, t := range chain.Tickets {
		ev := domain.PayloadEvent{TicketID: t.ID, Event: "created", Description: t.Subject}
		if t.CreatedAt != nil {
			ev.Timestamp = t.CreatedAt.UTC().Format("2006-01-02T15:04:05Z")
		} else {
			p.Anomalies = append(p.Anomalies, domain.Anomaly{
				Description: fmt.Sprintf("%s ticket %s has no creation timestamp", t.Category, t.ID),
				TicketIDs:   []string{t.ID},
			})
		}
		p.Timeline = append(p.Timeline, ev)
	}
	return p
}
