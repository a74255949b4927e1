package postgres

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/GranFenrir/event-reservation-system-sub000/internal/core/domain"
)

type OutboxRepository struct {
	db *sql.DB
}

func NewOutboxRepository(db *sql.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

func (r *OutboxRepository) Enqueue(ctx context.Context, msg domain.OutboxMessage) error {
	query := `
	INSERT INTO outbox_events (id, aggregate_id, event_type, payload, created_at)
	VALUES ($1, $2, $3, $4, $5)
	`

	_, err := conn(ctx, r.db).ExecContext(ctx, query, msg.ID, msg.AggregateID, msg.EventType, msg.Payload, msg.CreatedAt)
	if err != nil {
		return classify(err, "enqueue outbox event")
	}

	return nil
}

// ClaimPending leases a batch in one statement, so no row lock outlives the
// call. Rows whose claim has lapsed are picked up again.
func (r *OutboxRepository) ClaimPending(ctx context.Context, limit int, now, until time.Time) ([]domain.OutboxMessage, error) {
	query := `
	UPDATE outbox_events
	SET claimed_until = $3
	WHERE id IN (
		SELECT id
		FROM outbox_events
		WHERE published_at IS NULL
		  AND (claimed_until IS NULL OR claimed_until <= $2)
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	)
	RETURNING id, aggregate_id, event_type, payload, created_at, attempts, last_error, claimed_until
	`

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, limit, now, until)
	if err != nil {
		return nil, classify(err, "claim outbox events")
	}
	defer rows.Close()

	var msgs []domain.OutboxMessage
	for rows.Next() {
		var m domain.OutboxMessage
		if err := rows.Scan(&m.ID, &m.AggregateID, &m.EventType, &m.Payload, &m.CreatedAt, &m.Attempts, &m.LastError, &m.ClaimedUntil); err != nil {
			return nil, classify(err, "scan outbox event")
		}
		msgs = append(msgs, m)
	}

	if err := rows.Err(); err != nil {
		return nil, classify(err, "claim outbox events")
	}

	// RETURNING carries no order.
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})

	return msgs, nil
}

func (r *OutboxRepository) MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	query := `
	UPDATE outbox_events
	SET published_at = $2, claimed_until = NULL, attempts = attempts + 1, last_error = ''
	WHERE id = ANY($1::uuid[])
	`

	if _, err := conn(ctx, r.db).ExecContext(ctx, query, pq.Array(uuidStrings(ids)), at); err != nil {
		return classify(err, "mark outbox events published")
	}

	return nil
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, ids []uuid.UUID, reason string) error {
	if len(ids) == 0 {
		return nil
	}

	query := `
	UPDATE outbox_events
	SET claimed_until = NULL, attempts = attempts + 1, last_error = $2
	WHERE id = ANY($1::uuid[])
	`

	if _, err := conn(ctx, r.db).ExecContext(ctx, query, pq.Array(uuidStrings(ids)), reason); err != nil {
		return classify(err, "mark outbox events failed")
	}

	return nil
}
