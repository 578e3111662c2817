package billing

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/informia/informia/internal/platform/db"
)

type eventLogPG struct{ pool *pgxpool.Pool }

func NewEventLogPG(pool *pgxpool.Pool) EventLog {
	return &eventLogPG{pool: pool}
}

func (r *eventLogPG) MarkProcessed(ctx context.Context, id, eventType string) (bool, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO stripe_events (id, type) VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING`, id, eventType)
	if err != nil {
		return false, fmt.Errorf("record stripe event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
