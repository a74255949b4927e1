package postgres

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/GranFenrir/event-reservation-system-sub000/internal/core/domain"
)

var errSettlementNotFound = errors.New("settlement record not found")

type SettlementRepository struct {
	db *sql.DB
}

func NewSettlementRepository(db *sql.DB) *SettlementRepository {
	return &SettlementRepository{db: db}
}

// Claim inserts the record unless the key exists. Inside a transaction a
// concurrent claim of the same key blocks until the first one commits.
func (r *SettlementRepository) Claim(ctx context.Context, record *domain.SettlementRecord) (bool, error) {
	query := `
	INSERT INTO settlements (idempotency_key, reservation_id, outcome, amount, applied, result_status, note, processed_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (idempotency_key) DO NOTHING
	`

	result, err := conn(ctx, r.db).ExecContext(ctx, query,
		record.IdempotencyKey, record.ReservationID, record.Outcome, record.Amount,
		record.Applied, record.ResultStatus, record.Note, record.ProcessedAt)
	if err != nil {
		return false, classify(err, "claim settlement")
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, classify(err, "claim settlement")
	}

	return n == 1, nil
}

func (r *SettlementRepository) GetByKey(ctx context.Context, idempotencyKey string) (*domain.SettlementRecord, error) {
	query := `
	SELECT idempotency_key, reservation_id, outcome, amount, applied, result_status, note, processed_at
	FROM settlements
	WHERE idempotency_key = $1
	`

	var rec domain.SettlementRecord
	err := conn(ctx, r.db).QueryRowContext(ctx, query, idempotencyKey).Scan(
		&rec.IdempotencyKey,
		&rec.ReservationID,
		&rec.Outcome,
		&rec.Amount,
		&rec.Applied,
		&rec.ResultStatus,
		&rec.Note,
		&rec.ProcessedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrap(errSettlementNotFound, idempotencyKey)
		}
		return nil, classify(err, "select settlement")
	}

	return &rec, nil
}

func (r *SettlementRepository) Complete(ctx context.Context, record *domain.SettlementRecord) error {
	query := `
	UPDATE settlements
	SET applied = $2, result_status = $3, note = $4, processed_at = $5
	WHERE idempotency_key = $1
	`

	_, err := conn(ctx, r.db).ExecContext(ctx, query,
		record.IdempotencyKey, record.Applied, record.ResultStatus, record.Note, record.ProcessedAt)
	if err != nil {
		return classify(err, "complete settlement")
	}

	return nil
}
