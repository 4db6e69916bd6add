package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"ticketchain/internal/analysis/domain"
	"ticketchain/platform/apperr"
	"ticketchain/platform/db"
)

//go:embed schema.sql
var sqliteSchema string

const sqliteTimeLayout = "2006-01-02T15:04:05.000000Z"

const resultColumns = `id, chain_id, seed_ticket_id, phase, status, narrative, sections, payload,
	failure_reason, failure_detail, model_id, ticket_count, partial, created_at, completed_at`

const summaryColumns = `id, chain_id, seed_ticket_id, phase, status, failure_reason, model_id, ticket_count, created_at`

// SQLite is the default local store, backed by modernc.org/sqlite.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (and creates if needed) the database at path. ":memory:" is allowed.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	sqlDB, err := db.OpenSQLite(ctx, path, sqliteSchema)
	if err != nil {
		return nil, apperr.Unavailable("open analysis store", err)
	}
	return &SQLite{db: sqlDB}, nil
}

func (s *SQLite) Save(ctx context.Context, r domain.AnalysisResult) error {
	if err := checkSavable(r); err != nil {
		return err
	}
	r = normalize(r)
	sections, payload, err := encodeBlobs(r)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "encode analysis", err).WithOp(opSave)
	}

	var completedAt any
	if r.CompletedAt != nil {
		completedAt = r.CompletedAt.Format(sqliteTimeLayout)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO analyses (`+resultColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID.String(), r.ChainID, r.SeedTicketID, int(r.Phase), string(r.Status), r.Narrative,
		nullableText(sections), nullableText(payload),
		string(r.FailureReason), r.FailureDetail, r.ModelID, r.TicketCount, r.Partial,
		r.CreatedAt.Format(sqliteTimeLayout), completedAt,
	)
	if err != nil {
		var sqliteErr *sqlite.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
			return errDuplicate(r)
		}
		return apperr.Wrap(apperr.KindInternal, "insert analysis", err).WithOp(opSave)
	}
	return nil
}

func (s *SQLite) List(ctx context.Context, f ListFilter) ([]domain.Summary, error) {
	query := `SELECT ` + summaryColumns + ` FROM analyses`
	args := []any{}
	if f.ChainID != "" {
		query += ` WHERE chain_id = ?`
		args = append(args, f.ChainID)
	}
	query += ` ORDER BY created_at DESC, phase DESC, id ASC LIMIT ?`
	args = append(args, f.limit())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "list analyses", err).WithOp(opList)
	}
	defer rows.Close()

	out := []domain.Summary{}
	for rows.Next() {
		var (
			sum       domain.Summary
			id        string
			status    string
			reason    string
			createdAt string
		)
		if err := rows.Scan(&id, &sum.ChainID, &sum.SeedTicketID, &sum.Phase, &status, &reason, &sum.ModelID, &sum.TicketCount, &createdAt); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "scan analysis", err).WithOp(opList)
		}
		if sum.ID, err = uuid.Parse(id); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "parse analysis id", err).WithOp(opList)
		}
		if sum.CreatedAt, err = time.Parse(sqliteTimeLayout, createdAt); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "parse created_at", err).WithOp(opList)
		}
		sum.Status = domain.Status(status)
		sum.FailureReason = domain.FailureReason(reason)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "list analyses", err).WithOp(opList)
	}
	return out, nil
}

func (s *SQLite) Get(ctx context.Context, id uuid.UUID) (domain.AnalysisResult, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+resultColumns+` FROM analyses WHERE id = ?`, id.String())
	r, err := scanSQLiteResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AnalysisResult{}, errNotFound(id)
	}
	if err != nil {
		return domain.AnalysisResult{}, apperr.Wrap(apperr.KindInternal, "get analysis", err).WithOp(opGet)
	}
	return r, nil
}

func (s *SQLite) LatestComplete(ctx context.Context, chainID string, phase domain.Phase) (domain.AnalysisResult, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+resultColumns+` FROM analyses
		WHERE chain_id = ? AND phase = ? AND status = ?
		ORDER BY created_at DESC, id ASC LIMIT 1`, chainID, int(phase), string(domain.StatusComplete))
	r, err := scanSQLiteResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AnalysisResult{}, false, nil
	}
	if err != nil {
		return domain.AnalysisResult{}, false, apperr.Wrap(apperr.KindInternal, "latest analysis", err).WithOp(opLatestComplete)
	}
	return r, true, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func scanSQLiteResult(row *sql.Row) (domain.AnalysisResult, error) {
	var (
		r                  domain.AnalysisResult
		id, status, reason string
		sections, payload  sql.NullString
		createdAt          string
		completedAt        sql.NullString
	)
	if err := row.Scan(&id, &r.ChainID, &r.SeedTicketID, &r.Phase, &status, &r.Narrative, &sections, &payload,
		&reason, &r.FailureDetail, &r.ModelID, &r.TicketCount, &r.Partial, &createdAt, &completedAt); err != nil {
		return r, err
	}
	var err error
	if r.ID, err = uuid.Parse(id); err != nil {
		return r, fmt.Errorf("parse id: %w", err)
	}
	r.Status = domain.Status(status)
	r.FailureReason = domain.FailureReason(reason)
	if r.CreatedAt, err = time.Parse(sqliteTimeLayout, createdAt); err != nil {
		return r, fmt.Errorf("parse created_at: %w", err)
	}
	if completedAt.Valid {
		t, err := time.Parse(sqliteTimeLayout, completedAt.String)
		if err != nil {
			return r, fmt.Errorf("parse completed_at: %w", err)
		}
		r.CompletedAt = &t
	}
	if err := decodeBlobs(&r, []byte(sections.String), []byte(payload.String)); err != nil {
		return r, err
	}
	return r, nil
}

func nullableText(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}
