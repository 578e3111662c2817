package report

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, r *Report) error
	GetByID(ctx context.Context, userID, id uuid.UUID) (*Report, error)
	Update(ctx context.Context, r *Report) error
	Delete(ctx context.Context, userID, id uuid.UUID) error
	List(ctx context.Context, userID uuid.UUID, f ListFilter, limit, offset int) ([]*Report, int, error)
	Count(ctx context.Context, userID uuid.UUID) (int, error)
	CountSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error)
	SetDriveFile(ctx context.Context, userID, id uuid.UUID, fileID string) error
}
