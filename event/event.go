package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Outbox topics published by the workflow services.
const (
	TopicOfferCreated       = "offer.created"
	TopicOfferAccepted      = "offer.accepted"
	TopicOfferRejected      = "offer.rejected"
	TopicOpportunityActive  = "opportunity.active"
	TopicOpportunityClosed  = "opportunity.closed"
	TopicCoOfferCreated     = "co_offer.created"
	TopicCoOfferAccepted    = "co_offer.accepted"
	TopicCoOfferRejected    = "co_offer.rejected"
	TopicCoOfferNeedsReview = "co_offer.needs_review"
)

// Timeline appends immutable business events for a workflow record inside the
// caller's transaction.
type Timeline struct{}

func NewTimeline() *Timeline {
	return &Timeline{}
}

// Append inserts a timeline event for the subject. actorID may be empty for
// system-initiated events.
func (t *Timeline) Append(ctx context.Context, tx pgx.Tx, subjectID, eventType, actorID string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("event: marshal timeline payload: %w", err)
	}

	var actor any
	if actorID != "" {
		actor = actorID
	}

	const q = `
INSERT INTO timeline_events (subject_id, type, payload, actor_id)
VALUES ($1, $2, $3::jsonb, $4::uuid)
`
	if _, err := tx.Exec(ctx, q, subjectID, eventType, body, actor); err != nil {
		return fmt.Errorf("event: insert timeline event: %w", err)
	}
	return nil
}

// Outbox enqueues messages for the notification dispatcher. Delivery is
// fire-and-forget: a row committed here never blocks or rolls back the state
// transition that produced it.
type Outbox struct{}

func NewOutbox() *Outbox {
	return &Outbox{}
}

// Enqueue inserts an outbox row inside the caller's transaction.
func (o *Outbox) Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("event: marshal outbox payload: %w", err)
	}

	const q = `INSERT INTO outbox (topic, payload) VALUES ($1, $2::jsonb)`
	if _, err := tx.Exec(ctx, q, topic, body); err != nil {
		return fmt.Errorf("event: enqueue outbox: %w", err)
	}
	return nil
}
