package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/informia/informia/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const reportCols = `r.id, r.user_id, r.patient_id, p.name, r.title, r.report_type,
	r.content, r.model, r.status, r.drive_file_id, r.created_at, r.updated_at`

const reportFrom = ` FROM reports r JOIN patients p ON p.id = r.patient_id`

func scanReport(row pgx.Row) (*Report, error) {
	var r Report
	err := row.Scan(&r.ID, &r.UserID, &r.PatientID, &r.PatientName, &r.Title, &r.ReportType,
		&r.Content, &r.Model, &r.Status, &r.DriveFileID, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &r, err
}

func (rp *repoPG) Create(ctx context.Context, r *Report) error {
	r.ID = uuid.New()
	return db.Conn(ctx, rp.pool).QueryRow(ctx, `
		INSERT INTO reports (id, user_id, patient_id, title, report_type, content, model, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		r.ID, r.UserID, r.PatientID, r.Title, r.ReportType, r.Content, r.Model, r.Status,
	).Scan(&r.CreatedAt, &r.UpdatedAt)
}

func (rp *repoPG) GetByID(ctx context.Context, userID, id uuid.UUID) (*Report, error) {
	return scanReport(db.Conn(ctx, rp.pool).QueryRow(ctx,
		`SELECT `+reportCols+reportFrom+` WHERE r.id = $1 AND r.user_id = $2`, id, userID))
}

func (rp *repoPG) Update(ctx context.Context, r *Report) error {
	err := db.Conn(ctx, rp.pool).QueryRow(ctx, `
		UPDATE reports SET title = $3, content = $4, status = $5, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING updated_at`,
		r.ID, r.UserID, r.Title, r.Content, r.Status,
	).Scan(&r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (rp *repoPG) Delete(ctx context.Context, userID, id uuid.UUID) error {
	tag, err := db.Conn(ctx, rp.pool).Exec(ctx,
		`DELETE FROM reports WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (rp *repoPG) List(ctx context.Context, userID uuid.UUID, f ListFilter, limit, offset int) ([]*Report, int, error) {
	where := []string{"r.user_id = $1"}
	args := []interface{}{userID}
	idx := 2
	if f.PatientID != nil {
		where = append(where, fmt.Sprintf("r.patient_id = $%d", idx))
		args = append(args, *f.PatientID)
		idx++
	}
	whereSQL := strings.Join(where, " AND ")

	conn := db.Conn(ctx, rp.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM reports r WHERE `+whereSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count reports: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s%s WHERE %s ORDER BY r.created_at DESC LIMIT $%d OFFSET $%d`,
		reportCols, reportFrom, whereSQL, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var items []*Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, r)
	}
	return items, total, rows.Err()
}

func (rp *repoPG) Count(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := db.Conn(ctx, rp.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM reports WHERE user_id = $1`, userID).Scan(&n)
	return n, err
}

func (rp *repoPG) CountSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	var n int
	err := db.Conn(ctx, rp.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM reports WHERE user_id = $1 AND created_at >= $2`, userID, since).Scan(&n)
	return n, err
}

func (rp *repoPG) SetDriveFile(ctx context.Context, userID, id uuid.UUID, fileID string) error {
	tag, err := db.Conn(ctx, rp.pool).Exec(ctx, `
		UPDATE reports SET drive_file_id = $3, updated_at = NOW()
		WHERE id = $1 AND user_id = $2`, id, userID, fileID)
	if err != nil {
		return fmt.Errorf("set drive file: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
