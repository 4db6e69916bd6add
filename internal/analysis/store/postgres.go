package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"ticketchain/internal/analysis/domain"
	"ticketchain/platform/apperr"
)

const pgUniqueViolation = "23505"

// Postgres stores results in the analyses table created by the goose migrations.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an open pool. The caller owns migrations.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) Save(ctx context.Context, r domain.AnalysisResult) error {
	if err := checkSavable(r); err != nil {
		return err
	}
	r = normalize(r)
	sections, payload, err := encodeBlobs(r)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "encode analysis", err).WithOp(opSave)
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO analyses (`+resultColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, r.ID, r.ChainID, r.SeedTicketID, int16(r.Phase), string(r.Status), r.Narrative,
		sections, payload, string(r.FailureReason), r.FailureDetail, r.ModelID,
		r.TicketCount, r.Partial, r.CreatedAt, r.CompletedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return errDuplicate(r)
		}
		return apperr.Internal(fmt.Sprintf("insert analysis failed: %v", err)).WithOp(opSave)
	}
	return nil
}

func (p *Postgres) List(ctx context.Context, f ListFilter) ([]domain.Summary, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+summaryColumns+`
		FROM analyses
		WHERE ($1 = '' OR chain_id = $1)
		ORDER BY created_at DESC, phase DESC, id ASC
		LIMIT $2
	`, f.ChainID, f.limit())
	if err != nil {
		return nil, apperr.Internal(fmt.Sprintf("list analyses query failed: %v", err)).WithOp(opList)
	}
	defer rows.Close()

	out := []domain.Summary{}
	for rows.Next() {
		var (
			sum            domain.Summary
			phase          int16
			status, reason string
		)
		if err := rows.Scan(&sum.ID, &sum.ChainID, &sum.SeedTicketID, &phase, &status, &reason, &sum.ModelID, &sum.TicketCount, &sum.CreatedAt); err != nil {
			return nil, apperr.Internal(fmt.Sprintf("scan analysis failed: %v", err)).WithOp(opList)
		}
		sum.Phase = domain.Phase(phase)
		sum.Status = domain.Status(status)
		sum.FailureReason = domain.FailureReason(reason)
		sum.CreatedAt = sum.CreatedAt.UTC()
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(fmt.Sprintf("list analyses failed: %v", err)).WithOp(opList)
	}
	return out, nil
}

func (p *Postgres) Get(ctx context.Context, id uuid.UUID) (domain.AnalysisResult, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+resultColumns+` FROM analyses WHERE id = $1`, id)
	r, err := scanPostgresResult(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AnalysisResult{}, errNotFound(id)
	}
	if err != nil {
		return domain.AnalysisResult{}, apperr.Internal(fmt.Sprintf("get analysis failed: %v", err)).WithOp(opGet)
	}
	return r, nil
}

func (p *Postgres) LatestComplete(ctx context.Context, chainID string, phase domain.Phase) (domain.AnalysisResult, bool, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT `+resultColumns+`
		FROM analyses
		WHERE chain_id = $1 AND phase = $2 AND status = $3
		ORDER BY created_at DESC, id ASC
		LIMIT 1
	`, chainID, int16(phase), string(domain.StatusComplete))
	r, err := scanPostgresResult(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AnalysisResult{}, false, nil
	}
	if err != nil {
		return domain.AnalysisResult{}, false, apperr.Internal(fmt.Sprintf("latest analysis failed: %v", err)).WithOp(opLatestComplete)
	}
	return r, true, nil
}

// Close is a no-op: the pool is owned by the caller.
func (p *Postgres) Close() error { return nil }

func scanPostgresResult(row pgx.Row) (domain.AnalysisResult, error) {
	var (
		r                 domain.AnalysisResult
		phase             int16
		status, reason    string
		sections, payload []byte
		completedAt       *time.Time
	)
	if err := row.Scan(&r.ID, &r.ChainID, &r.SeedTicketID, &phase, &status, &r.Narrative, &sections, &payload,
		&reason, &r.FailureDetail, &r.ModelID, &r.TicketCount, &r.Partial, &r.CreatedAt, &completedAt); err != nil {
		return r, err
	}
	r.Phase = domain.Phase(phase)
	r.Status = domain.Status(status)
	r.FailureReason = domain.FailureReason(reason)
	r.CreatedAt = r.CreatedAt.UTC()
	if completedAt != nil {
		t := completedAt.UTC()
		r.CompletedAt = &t
	}
	if err := decodeBlobs(&r, sections, payload); err != nil {
		return r, err
	}
	return r, nil
}
