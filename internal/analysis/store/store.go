// Package store persists analysis results. Every backend enforces the same
// contract: records are append-only, unique per (chain, phase, created_at),
// listed newest first, and only terminal records are accepted.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"ticketchain/internal/analysis/domain"
	"ticketchain/platform/apperr"
)

const (
	opSave           = "analysis.store.save"
	opList           = "analysis.store.list"
	opGet            = "analysis.store.get"
	opLatestComplete = "analysis.store.latest_complete"

	msgDuplicate = "duplicate analysis"
	msgNotFound  = "analysis not found"

	defaultListLimit = 100
)

// ListFilter narrows a listing. Zero values mean no filter.
type ListFilter struct {
	ChainID string
	Limit   int
}

func (f ListFilter) limit() int {
	if f.Limit <= 0 {
		return defaultListLimit
	}
	return f.Limit
}

// Store is the analysis result repository.
type Store interface {
	// Save appends a terminal result. A second record for the same chain,
	// phase and creation instant fails with a conflict error.
	Save(ctx context.Context, r domain.AnalysisResult) error
	// List returns summaries newest first.
	List(ctx context.Context, f ListFilter) ([]domain.Summary, error)
	// Get returns a full record or a not-found error.
	Get(ctx context.Context, id uuid.UUID) (domain.AnalysisResult, error)
	// LatestComplete returns the newest complete record for chain and phase.
	LatestComplete(ctx context.Context, chainID string, phase domain.Phase) (domain.AnalysisResult, bool, error)
	Close() error
}

func checkSavable(r domain.AnalysisResult) error {
	switch {
	case r.ID == uuid.Nil:
		return apperr.Validation("analysis id is required").WithOp(opSave)
	case r.ChainID == "":
		return apperr.Validation("chain id is required").WithOp(opSave)
	case !r.Phase.Valid():
		return apperr.Validation(fmt.Sprintf("invalid phase %d", r.Phase)).WithOp(opSave)
	case !r.Status.Terminal():
		return apperr.Validation(fmt.Sprintf("only complete or failed results are stored, got %q", r.Status)).WithOp(opSave)
	}
	return nil
}

// errDuplicate builds the conflict error returned for a repeated key.
func errDuplicate(r domain.AnalysisResult) error {
	return apperr.Conflict(msgDuplicate).WithOp(opSave).WithDetails(map[string]any{
		"chainId":   r.ChainID,
		"phase":     r.Phase,
		"createdAt": r.CreatedAt,
	})
}

func errNotFound(id uuid.UUID) error {
	return apperr.NotFound(msgNotFound).WithOp(opGet).WithDetails(map[string]any{"id": id})
}

func marshalNullable(v any, isNil bool) ([]byte, error) {
	if isNil {
		return nil, nil
	}
	return json.Marshal(v)
}

func encodeBlobs(r domain.AnalysisResult) (sections, payload []byte, err error) {
	sections, err = marshalNullable(r.Sections, r.Sections == nil)
	if err != nil {
		return nil, nil, fmt.Errorf("encode sections: %w", err)
	}
	payload, err = marshalNullable(r.Payload, r.Payload == nil)
	if err != nil {
		return nil, nil, fmt.Errorf("encode payload: %w", err)
	}
	return sections, payload, nil
}

func decodeBlobs(r *domain.AnalysisResult, sections, payload []byte) error {
	if len(sections) > 0 {
		r.Sections = &domain.NarrativeSections{}
		if err := json.Unmarshal(sections, r.Sections); err != nil {
			return fmt.Errorf("decode sections: %w", err)
		}
	}
	if len(payload) > 0 {
		r.Payload = &domain.Payload{}
		if err := json.Unmarshal(payload, r.Payload); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
	}
	return nil
}

func normalize(r domain.AnalysisResult) domain.AnalysisResult {
	r.CreatedAt = domain.NormalizeTime(r.CreatedAt)
	if r.CompletedAt != nil {
		t := domain.NormalizeTime(*r.CompletedAt)
		r.CompletedAt = &t
	}
	return r
}
