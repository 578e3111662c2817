package patient

import (
	"context"

	"github.com/google/uuid"
)

// Repository methods are always scoped to the owning practitioner.
type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, userID, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, userID, id uuid.UUID) error
	List(ctx context.Context, userID uuid.UUID, f ListFilter, limit, offset int) ([]*Patient, int, error)
	Count(ctx context.Context, userID uuid.UUID) (int, error)
}
