package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"ticketchain/internal/analysis/domain"
	"ticketchain/internal/analysis/ports"
	tickets "ticketchain/internal/tickets/domain"
	"ticketchain/platform/logger"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

type scriptedCompleter struct {
	errs  []error
	text  string
	calls int
	opts  []ports.CompletionOptions
}

func (s *scriptedCompleter) Complete(_ context.Context, _ string, opts ports.CompletionOptions) (string, error) {
	s.calls++
	s.opts = append(s.opts, opts)
	if s.calls <= len(s.errs) && s.errs[s.calls-1] != nil {
		return "", s.errs[s.calls-1]
	}
	return s.text, nil
}

type scriptedRuns struct {
	statuses  []ports.RunStatus
	output    string
	createErr error
	cancelErr error

	requests  []ports.RunRequest
	polls     int
	cancelled []string
	released  []string
}

func (s *scriptedRuns) CreateRun(_ context.Context, req ports.RunRequest) (string, error) {
	s.requests = append(s.requests, req)
	if s.createErr != nil {
		return "", s.createErr
	}
	return "thread_1:run_1", nil
}

func (s *scriptedRuns) GetRunStatus(_ context.Context, _ string) (ports.RunStatus, error) {
	s.polls++
	if len(s.statuses) == 0 {
		return ports.RunInProgress, nil
	}
	idx := min(s.polls, len(s.statuses)) - 1
	return s.statuses[idx], nil
}

func (s *scriptedRuns) GetRunOutput(_ context.Context, _ string) ([]byte, error) {
	return []byte(s.output), nil
}

func (s *scriptedRuns) CancelRun(_ context.Context, runID string) error {
	s.cancelled = append(s.cancelled, runID)
	return s.cancelErr
}

func (s *scriptedRuns) ReleaseRun(_ context.Context, runID string) error {
	s.released = append(s.released, runID)
	return nil
}

const validPayload = "```json\n" + `{
  "timeline": [{"ticket_id": "2000001", "event": "created"}],
  "relationships": {"2000001": ["3000001"]},
  "material_shortages": [],
  "revisits": [],
  "billing_notes": [],
  "anomalies": []
}` + "\n```"

func testChain() tickets.Chain {
	return tickets.Chain{
		ID:           "CH-1",
		SeedTicketID: "2000001",
		Tickets: []tickets.Ticket{
			{ID: "2000001", Category: tickets.CategoryDispatch},
			{ID: "3000001", Category: tickets.CategoryTurnup},
		},
	}
}

func testSettings() Settings {
	return Settings{
		Phase1MaxAttempts:  3,
		Phase1BaseBackoff:  time.Second,
		Phase1MaxBackoff:   10 * time.Second,
		PollInterval:       5 * time.Second,
		PollBackoff:        1,
		MaxPollInterval:    5 * time.Second,
		MaxWait:            time.Minute,
		DefaultModel:       "gpt-4o",
		DefaultAssistantID: "asst_default",
	}
}

func newTestOrchestrator(c ports.TextCompleter, r ports.RunCapability, clock ports.Clock) *Orchestrator {
	return New(c, r, clock, testSettings(), logger.Discard()).WithJitter(func(d time.Duration) time.Duration { return d })
}

func TestRunCompletesBothPhases(t *testing.T) {
	completer := &scriptedCompleter{text: "1. Timeline of Events:\n- created\n4. Summary:\nall good"}
	runs := &scriptedRuns{statuses: []ports.RunStatus{ports.RunQueued, ports.RunInProgress, ports.RunCompleted}, output: validPayload}
	o := newTestOrchestrator(completer, runs, newFakeClock())

	out := o.Run(context.Background(), Request{Chain: testChain(), Prompt: "p", Instructions: "i"})

	if out.State != domain.StatePhase2Complete {
		t.Fatalf("expected Phase2Complete, got %s", out.State)
	}
	want := []domain.State{domain.StateCreated, domain.StatePhase1Running, domain.StatePhase1Complete, domain.StatePhase2Running, domain.StatePhase2Complete}
	if len(out.History) != len(want) {
		t.Fatalf("expected history %v, got %v", want, out.History)
	}
	for i := range want {
		if out.History[i] != want[i] {
			t.Fatalf("expected history %v, got %v", want, out.History)
		}
	}
	if out.Phase1.Sections == nil || out.Phase1.Sections.Summary != "all good" {
		t.Fatalf("expected parsed summary section, got %+v", out.Phase1.Sections)
	}
	if out.Phase2.Payload == nil || out.Phase2.Payload.Relationships["2000001"][0] != "3000001" {
		t.Fatalf("expected relationship payload, got %+v", out.Phase2.Payload)
	}
	if out.Phase2.ModelID != "asst_default" {
		t.Fatalf("expected default assistant recorded, got %q", out.Phase2.ModelID)
	}
	if runs.polls != 3 {
		t.Fatalf("expected 3 polls, got %d", runs.polls)
	}
	if len(runs.released) != 1 {
		t.Fatalf("expected run resources released once, got %d", len(runs.released))
	}
	if out.Phase1.TicketCount != 2 || out.Phase1.ChainID != "CH-1" {
		t.Fatalf("expected chain metadata on result, got %+v", out.Phase1)
	}
}

func TestPhase1RetriesTransientErrors(t *testing.T) {
	transient := ports.Transient(errors.New("429"))
	completer := &scriptedCompleter{errs: []error{transient, transient}, text: "Summary: ok"}
	clock := newFakeClock()
	o := newTestOrchestrator(completer, &scriptedRuns{}, clock)

	out := o.Run(context.Background(), Request{Chain: testChain(), SkipPhase2: true})

	if out.Phase1.Status != domain.StatusComplete {
		t.Fatalf("expected phase 1 to recover, got %s (%s)", out.Phase1.Status, out.Phase1.FailureDetail)
	}
	if completer.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", completer.calls)
	}
	if len(clock.sleeps) != 2 || clock.sleeps[0] != time.Second || clock.sleeps[1] != 2*time.Second {
		t.Fatalf("expected exponential backoff 1s, 2s, got %v", clock.sleeps)
	}
	if out.State != domain.StatePhase1Complete || out.Phase2 != nil {
		t.Fatalf("expected to stop after phase 1, got %s", out.State)
	}
}

func TestPhase1ExhaustedAfterMaxAttempts(t *testing.T) {
	transient := ports.Transient(errors.New("503"))
	completer := &scriptedCompleter{errs: []error{transient, transient, transient, transient}}
	runs := &scriptedRuns{}
	o := newTestOrchestrator(completer, runs, newFakeClock())

	out := o.Run(context.Background(), Request{Chain: testChain()})

	if out.State != domain.StateFailed {
		t.Fatalf("expected Failed, got %s", out.State)
	}
	if out.Phase1.FailureReason != domain.ReasonPhase1Exhausted {
		t.Fatalf("expected Phase1Exhausted, got %s", out.Phase1.FailureReason)
	}
	if completer.calls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", completer.calls)
	}
	if out.Phase2 != nil || len(runs.requests) != 0 {
		t.Fatalf("expected phase 2 not to run after phase 1 failure")
	}
}

func TestPhase1FatalErrorIsNotRetried(t *testing.T) {
	completer := &scriptedCompleter{errs: []error{errors.New("invalid api key")}}
	o := newTestOrchestrator(completer, &scriptedRuns{}, newFakeClock())

	out := o.Run(context.Background(), Request{Chain: testChain()})

	if out.Phase1.FailureReason != domain.ReasonPhase1Fatal {
		t.Fatalf("expected Phase1Fatal, got %s", out.Phase1.FailureReason)
	}
	if completer.calls != 1 {
		t.Fatalf("expected one call, got %d", completer.calls)
	}
}

func TestModelPinOverridesDefault(t *testing.T) {
	completer := &scriptedCompleter{text: "Summary: ok"}
	runs := &scriptedRuns{statuses: []ports.RunStatus{ports.RunCompleted}, output: validPayload}
	o := newTestOrchestrator(completer, runs, newFakeClock())

	out := o.Run(context.Background(), Request{Chain: testChain(), Model: "grok-4", AssistantID: "asst_pinned"})

	if completer.opts[0].Model != "grok-4" || out.Phase1.ModelID != "grok-4" {
		t.Fatalf("expected pinned model to be used and recorded, got %q / %q", completer.opts[0].Model, out.Phase1.ModelID)
	}
	if runs.requests[0].AssistantID != "asst_pinned" || out.Phase2.ModelID != "asst_pinned" {
		t.Fatalf("expected pinned assistant, got %q / %q", runs.requests[0].AssistantID, out.Phase2.ModelID)
	}
}

func TestPhase2RemoteExpiryIsTimeout(t *testing.T) {
	runs := &scriptedRuns{statuses: []ports.RunStatus{ports.RunQueued, ports.RunInProgress, ports.RunExpired}}
	o := newTestOrchestrator(&scriptedCompleter{}, runs, newFakeClock())

	out := o.Run(context.Background(), Request{Chain: testChain(), SkipPhase1: true})

	if out.State != domain.StateFailed {
		t.Fatalf("expected Failed, got %s", out.State)
	}
	if out.Phase2.FailureReason != domain.ReasonPhase2Timeout {
		t.Fatalf("expected Phase2Timeout, got %s", out.Phase2.FailureReason)
	}
	if out.Phase1 != nil {
		t.Fatalf("expected no phase 1 record when skipped")
	}
	if len(runs.cancelled) != 0 {
		t.Fatalf("expected no cancel for a run that already expired")
	}
}

func TestPhase2DeadlineCancelsRun(t *testing.T) {
	runs := &scriptedRuns{}
	clock := newFakeClock()
	o := newTestOrchestrator(&scriptedCompleter{}, runs, clock)

	out := o.Run(context.Background(), Request{Chain: testChain(), SkipPhase1: true})

	if out.Phase2.FailureReason != domain.ReasonPhase2Timeout {
		t.Fatalf("expected Phase2Timeout, got %s (%s)", out.Phase2.FailureReason, out.Phase2.FailureDetail)
	}
	if len(runs.cancelled) != 1 {
		t.Fatalf("expected remote cancel, got %v", runs.cancelled)
	}
	if runs.polls != 12 {
		t.Fatalf("expected 12 polls in a 1m window at 5s, got %d", runs.polls)
	}
	var slept time.Duration
	for _, d := range clock.sleeps {
		slept += d
	}
	if slept != time.Minute {
		t.Fatalf("expected to wait exactly the max wait, got %s", slept)
	}
}

func TestPhase2CancelUnsupportedStillFails(t *testing.T) {
	runs := &scriptedRuns{cancelErr: ports.ErrCancelUnsupported}
	o := newTestOrchestrator(&scriptedCompleter{}, runs, newFakeClock())

	out := o.Run(context.Background(), Request{Chain: testChain(), SkipPhase1: true})

	if out.Phase2.Status != domain.StatusFailed || out.Phase2.FailureReason != domain.ReasonPhase2Timeout {
		t.Fatalf("expected local timeout failure, got %s %s", out.Phase2.Status, out.Phase2.FailureReason)
	}
}

func TestPhase2PollBackoffIsCapped(t *testing.T) {
	runs := &scriptedRuns{statuses: []ports.RunStatus{ports.RunQueued, ports.RunQueued, ports.RunQueued, ports.RunQueued, ports.RunCompleted}, output: validPayload}
	clock := newFakeClock()
	settings := testSettings()
	settings.PollInterval = time.Second
	settings.PollBackoff = 2
	settings.MaxPollInterval = 3 * time.Second
	o := New(&scriptedCompleter{}, runs, clock, settings, logger.Discard())

	out := o.Run(context.Background(), Request{Chain: testChain(), SkipPhase1: true})

	if out.State != domain.StatePhase2Complete {
		t.Fatalf("expected Phase2Complete, got %s", out.State)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 3 * time.Second}
	if len(clock.sleeps) != len(want) {
		t.Fatalf("expected sleeps %v, got %v", want, clock.sleeps)
	}
	for i := range want {
		if clock.sleeps[i] != want[i] {
			t.Fatalf("expected sleeps %v, got %v", want, clock.sleeps)
		}
	}
}

func TestPhase2RemoteFailure(t *testing.T) {
	runs := &scriptedRuns{statuses: []ports.RunStatus{ports.RunFailed}}
	o := newTestOrchestrator(&scriptedCompleter{}, runs, newFakeClock())

	out := o.Run(context.Background(), Request{Chain: testChain(), SkipPhase1: true})

	if out.Phase2.FailureReason != domain.ReasonPhase2RunFailed {
		t.Fatalf("expected Phase2RunFailed, got %s", out.Phase2.FailureReason)
	}
}

func TestPhase2SchemaInvalidIsNotCoerced(t *testing.T) {
	cases := map[string]string{
		"missing key":    `{"timeline": [], "relationships": {}, "material_shortages": [], "revisits": [], "billing_notes": []}`,
		"unknown key":    `{"timeline": [], "relationships": {}, "material_shortages": [], "revisits": [], "billing_notes": [], "anomalies": [], "extra": 1}`,
		"not json":       `I could not find anything.`,
		"empty field":    `{"timeline": [{"ticket_id": "", "event": "x"}], "relationships": {}, "material_shortages": [], "revisits": [], "billing_notes": [], "anomalies": []}`,
		"wrong shapes":   `{"timeline": {}, "relationships": {}, "material_shortages": [], "revisits": [], "billing_notes": [], "anomalies": []}`,
		"turnup as key":  `{"timeline": [], "relationships": {"3000001": ["2000001"]}, "material_shortages": [], "revisits": [], "billing_notes": [], "anomalies": []}`,
		"foreign ticket": `{"timeline": [], "relationships": {"2000001": ["3999999"]}, "material_shortages": [], "revisits": [], "billing_notes": [], "anomalies": []}`,
	}
	for name, output := range cases {
		t.Run(name, func(t *testing.T) {
			runs := &scriptedRuns{statuses: []ports.RunStatus{ports.RunCompleted}, output: output}
			o := newTestOrchestrator(&scriptedCompleter{}, runs, newFakeClock())

			out := o.Run(context.Background(), Request{Chain: testChain(), SkipPhase1: true})

			if out.Phase2.FailureReason != domain.ReasonPhase2SchemaInvalid {
				t.Fatalf("expected Phase2SchemaInvalid, got %s", out.Phase2.FailureReason)
			}
			if out.Phase2.Payload != nil {
				t.Fatalf("expected no payload on schema failure")
			}
		})
	}
}

func TestMissingKeyDetailNamesField(t *testing.T) {
	output := `{"timeline": [], "relationships": {}, "material_shortages": [], "revisits": [], "billing_notes": []}`
	runs := &scriptedRuns{statuses: []ports.RunStatus{ports.RunCompleted}, output: output}
	o := newTestOrchestrator(&scriptedCompleter{}, runs, newFakeClock())

	out := o.Run(context.Background(), Request{Chain: testChain(), SkipPhase1: true})

	if !strings.Contains(out.Phase2.FailureDetail, "anomalies") {
		t.Fatalf("expected detail to name the missing field, got %q", out.Phase2.FailureDetail)
	}
}

func TestPhase2CreateFailure(t *testing.T) {
	runs := &scriptedRuns{createErr: errors.New("assistant not found")}
	o := newTestOrchestrator(&scriptedCompleter{}, runs, newFakeClock())

	out := o.Run(context.Background(), Request{Chain: testChain(), SkipPhase1: true})

	if out.Phase2.FailureReason != domain.ReasonPhase2RunFailed {
		t.Fatalf("expected Phase2RunFailed, got %s", out.Phase2.FailureReason)
	}
	if len(runs.released) != 0 {
		t.Fatalf("expected nothing to release when creation failed")
	}
}

func TestBackoffIsCapped(t *testing.T) {
	s := Settings{Phase1BaseBackoff: time.Second, Phase1MaxBackoff: 5 * time.Second}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, w := range want {
		if got := s.backoff(i + 1); got != w {
			t.Fatalf("attempt %d: expected %s, got %s", i+1, w, got)
		}
	}
}

func TestHalfJitterStaysInRange(t *testing.T) {
	for range 100 {
		got := halfJitter(10 * time.Second)
		if got < 5*time.Second || got > 10*time.Second {
			t.Fatalf("expected jitter within [5s, 10s], got %s", got)
		}
	}
}
