package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/informia/informia/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const draftCols = `id, user_id, patient_id, state, source, transcript, segments,
	report_id, last_error, created_at, updated_at`

func scanDraft(row pgx.Row) (*Draft, error) {
	var d Draft
	var segments []byte
	err := row.Scan(&d.ID, &d.UserID, &d.PatientID, &d.State, &d.Source, &d.Transcript, &segments,
		&d.ReportID, &d.LastError, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(segments) > 0 {
		if err := json.Unmarshal(segments, &d.Segments); err != nil {
			return nil, fmt.Errorf("decode segments: %w", err)
		}
	}
	return &d, nil
}

func encodeSegments(d *Draft) ([]byte, error) {
	if d.Segments == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(d.Segments)
}

func (r *repoPG) Create(ctx context.Context, d *Draft) error {
	d.ID = uuid.New()
	segments, err := encodeSegments(d)
	if err != nil {
		return err
	}
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO session_drafts (id, user_id, patient_id, state, source, transcript, segments)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		d.ID, d.UserID, d.PatientID, d.State, d.Source, d.Transcript, segments,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, userID, id uuid.UUID) (*Draft, error) {
	return scanDraft(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+draftCols+` FROM session_drafts WHERE id = $1 AND user_id = $2`, id, userID))
}

func (r *repoPG) Save(ctx context.Context, d *Draft, expected State) (bool, error) {
	segments, err := encodeSegments(d)
	if err != nil {
		return false, err
	}
	err = db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE session_drafts SET state = $4, source = $5, transcript = $6, segments = $7,
			report_id = $8, last_error = $9, updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND state = $3
		RETURNING updated_at`,
		d.ID, d.UserID, expected, d.State, d.Source, d.Transcript, segments, d.ReportID, d.LastError,
	).Scan(&d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("save session draft: %w", err)
	}
	return true, nil
}

func (r *repoPG) ListByPatient(ctx context.Context, userID, patientID uuid.UUID, limit, offset int) ([]*Draft, int, error) {
	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx,
		`SELECT COUNT(*) FROM session_drafts WHERE user_id = $1 AND patient_id = $2`,
		userID, patientID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count session drafts: %w", err)
	}

	rows, err := conn.Query(ctx, `SELECT `+draftCols+` FROM session_drafts
		WHERE user_id = $1 AND patient_id = $2
		ORDER BY created_at DESC LIMIT $3 OFFSET $4`, userID, patientID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list session drafts: %w", err)
	}
	defer rows.Close()

	var items []*Draft
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}
