package billing

import "context"

// EventLog records processed webhook events so redeliveries are ignored.
type EventLog interface {
	// MarkProcessed stores the event id and reports whether it was new.
	MarkProcessed(ctx context.Context, id, eventType string) (bool, error)
}
