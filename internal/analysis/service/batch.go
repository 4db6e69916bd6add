package service

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"ticketchain/platform/apperr"
	"ticketchain/platform/logger"
)

// BatchStatusCompleted is the only status a batch reports; item failures are
// carried on the items.
const BatchStatusCompleted = "completed"

// ItemStatus is the outcome of one batch item.
type ItemStatus string

const (
	ItemSucceeded ItemStatus = "succeeded"
	ItemFailed    ItemStatus = "failed"
)

// Analyzer runs the pipeline for one seed ticket.
type Analyzer interface {
	Analyze(ctx context.Context, seedID string, opts AnalyzeOptions) (Report, error)
}

// ItemOutcome is what happened to one seed ticket.
type ItemOutcome struct {
	TicketID  string     `json:"ticketId"`
	Status    ItemStatus `json:"status"`
	Report    *Report    `json:"report,omitempty"`
	Error     string     `json:"error,omitempty"`
	ErrorKind string     `json:"errorKind,omitempty"`
}

// BatchReport collects every item outcome, keyed by ticket id.
type BatchReport struct {
	ID         uuid.UUID              `json:"id"`
	Status     string                 `json:"status"`
	TicketIDs  []string               `json:"ticketIds"`
	Items      map[string]ItemOutcome `json:"items"`
	StartedAt  time.Time              `json:"startedAt"`
	FinishedAt time.Time              `json:"finishedAt"`
}

// Counts returns how many items succeeded and failed.
func (b BatchReport) Counts() (succeeded, failed int) {
	for _, item := range b.Items {
		if item.Status == ItemSucceeded {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}

// Coordinator fans the pipeline out over a set of seed tickets on a bounded
// pool. One item's failure never affects another.
type Coordinator struct {
	analyzer    Analyzer
	maxInFlight int
	log         *logger.Logger
}

// NewCoordinator creates a coordinator running at most maxInFlight chains at once.
func NewCoordinator(analyzer Analyzer, maxInFlight int, log *logger.Logger) *Coordinator {
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	return &Coordinator{analyzer: analyzer, maxInFlight: maxInFlight, log: log}
}

// ParseTicketIDs splits a comma separated list, trimming blanks and dropping
// repeats while keeping first-seen order.
func ParseTicketIDs(raw string) []string {
	return DedupeIDs(strings.Split(raw, ","))
}

// DedupeIDs trims ids and drops empty and repeated entries, keeping order.
func DedupeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// RunBatch analyzes every id. The batch always completes; cancellation of ctx
// shows up as failed items for the chains that had not finished.
func (c *Coordinator) RunBatch(ctx context.Context, ids []string, opts AnalyzeOptions) BatchReport {
	ids = DedupeIDs(ids)
	report := BatchReport{
		ID:        uuid.New(),
		Status:    BatchStatusCompleted,
		TicketIDs: ids,
		Items:     make(map[string]ItemOutcome, len(ids)),
		StartedAt: time.Now().UTC(),
	}

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(c.maxInFlight)
	for _, id := range ids {
		g.Go(func() error {
			item := c.runItem(ctx, id, opts)
			mu.Lock()
			report.Items[id] = item
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	report.FinishedAt = time.Now().UTC()
	ok, failed := report.Counts()
	c.log.Info("batch finished", "batchId", report.ID, "tickets", len(ids), "succeeded", ok, "failed", failed)
	return report
}

func (c *Coordinator) runItem(ctx context.Context, id string, opts AnalyzeOptions) (item ItemOutcome) {
	item = ItemOutcome{TicketID: id}
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("batch item panicked", "ticketId", id, "panic", r, "stack", string(debug.Stack()))
			item = ItemOutcome{
				TicketID:  id,
				Status:    ItemFailed,
				Error:     fmt.Sprintf("panic: %v", r),
				ErrorKind: apperr.KindInternal.String(),
			}
		}
	}()

	if err := ctx.Err(); err != nil {
		item.Status = ItemFailed
		item.Error = err.Error()
		return item
	}

	report, err := c.analyzer.Analyze(ctx, id, opts)
	if err != nil {
		item.Status = ItemFailed
		item.Error = err.Error()
		item.ErrorKind = apperr.GetKind(err).String()
		c.log.Warn("batch item failed", "ticketId", id, "error", err)
		return item
	}

	item.Report = &report
	item.Status = ItemSucceeded
	if failed := report.Failed(); failed != nil {
		item.Status = ItemFailed
		item.Error = fmt.Sprintf("%s: %s", failed.FailureReason, failed.FailureDetail)
	}
	return item
}
