package session

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, d *Draft) error
	GetByID(ctx context.Context, userID, id uuid.UUID) (*Draft, error)
	// Save writes d only if the stored state still equals expected, and
	// reports whether it did.
	Save(ctx context.Context, d *Draft, expected State) (bool, error)
	ListByPatient(ctx context.Context, userID, patientID uuid.UUID, limit, offset int) ([]*Draft, int, error)
}
