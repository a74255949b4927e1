package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/GranFenrir/event-reservation-system-sub000/internal/core/domain"
)

const reservationColumns = `id, user_id, event_id, total_amount, status, cancel_reason, created_at, expires_at, confirmed_at, cancelled_at, version, updated_at`

type ReservationRepository struct {
	db *sql.DB
}

func NewReservationRepository(db *sql.DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

func (r *ReservationRepository) Create(ctx context.Context, reservation *domain.Reservation) error {
	return withTx(ctx, r.db, 0, func(ctx context.Context) error {
		tx := txFromContext(ctx)

		queryHeader := `
		INSERT INTO reservations (id, user_id, event_id, total_amount, status, cancel_reason, created_at, expires_at, version, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`

		_, err := tx.ExecContext(ctx, queryHeader,
			reservation.ID, reservation.UserID, reservation.EventID, reservation.TotalAmount,
			reservation.Status, reservation.CancelReason, reservation.CreatedAt, reservation.ExpiresAt,
			reservation.Version, reservation.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.InvalidRequest("reservation %s already exists", reservation.ID)
			}
			return classify(err, "insert reservation header")
		}

		queryItem := `
		INSERT INTO reservation_items (id, reservation_id, unit_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4, $5)
		`

		stmt, err := tx.PrepareContext(ctx, queryItem)
		if err != nil {
			return classify(err, "prepare reservation item statement")
		}
		defer stmt.Close()

		for _, item := range reservation.Items {
			if _, err := stmt.ExecContext(ctx, item.ID, reservation.ID, item.UnitID, item.Quantity, item.UnitPrice); err != nil {
				return classify(err, "insert reservation item for unit "+item.UnitID.String())
			}
		}

		return nil
	})
}

func (r *ReservationRepository) GetByID(ctx context.Context, reservationID uuid.UUID) (*domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1`
	return r.get(ctx, query, reservationID)
}

// GetForUpdate locks the reservation row for the rest of the caller's transaction.
func (r *ReservationRepository) GetForUpdate(ctx context.Context, reservationID uuid.UUID) (*domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1 FOR UPDATE`
	return r.get(ctx, query, reservationID)
}

func (r *ReservationRepository) get(ctx context.Context, query string, reservationID uuid.UUID) (*domain.Reservation, error) {
	q := conn(ctx, r.db)

	var (
		res         domain.Reservation
		confirmedAt sql.NullTime
		cancelledAt sql.NullTime
	)

	err := q.QueryRowContext(ctx, query, reservationID).Scan(
		&res.ID,
		&res.UserID,
		&res.EventID,
		&res.TotalAmount,
		&res.Status,
		&res.CancelReason,
		&res.CreatedAt,
		&res.ExpiresAt,
		&confirmedAt,
		&cancelledAt,
		&res.Version,
		&res.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrReservationNotFound
		}
		return nil, classify(err, "select reservation")
	}

	if confirmedAt.Valid {
		t := confirmedAt.Time
		res.ConfirmedAt = &t
	}
	if cancelledAt.Valid {
		t := cancelledAt.Time
		res.CancelledAt = &t
	}

	items, err := r.items(ctx, q, reservationID)
	if err != nil {
		return nil, err
	}
	res.Items = items

	return &res, nil
}

func (r *ReservationRepository) items(ctx context.Context, q queryer, reservationID uuid.UUID) ([]domain.ReservationItem, error) {
	query := `
	SELECT id, reservation_id, unit_id, quantity, unit_price
	FROM reservation_items
	WHERE reservation_id = $1
	ORDER BY unit_id
	`

	rows, err := q.QueryContext(ctx, query, reservationID)
	if err != nil {
		return nil, classify(err, "select reservation items")
	}
	defer rows.Close()

	var items []domain.ReservationItem
	for rows.Next() {
		var item domain.ReservationItem
		if err := rows.Scan(&item.ID, &item.ReservationID, &item.UnitID, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, classify(err, "scan reservation item")
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, classify(err, "select reservation items")
	}

	domain.SortItems(items)
	return items, nil
}

func (r *ReservationRepository) UpdateStatus(ctx context.Context, reservation *domain.Reservation) error {
	query := `
	UPDATE reservations
	SET status = $2,
		cancel_reason = $3,
		confirmed_at = $4,
		cancelled_at = $5,
		updated_at = $6,
		version = version + 1
	WHERE id = $1 AND version = $7
	`

	result, err := conn(ctx, r.db).ExecContext(ctx, query,
		reservation.ID,
		reservation.Status,
		reservation.CancelReason,
		nullTime(reservation.ConfirmedAt),
		nullTime(reservation.CancelledAt),
		reservation.UpdatedAt,
		reservation.Version,
	)
	if err != nil {
		return classify(err, "update reservation status")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return classify(err, "update reservation status")
	}

	if rowsAffected == 0 {
		if _, err := r.GetByID(ctx, reservation.ID); err != nil {
			return err
		}
		return domain.Transient(errors.Wrapf(domain.ErrVersionConflict, "reservation %s version %d", reservation.ID, reservation.Version))
	}

	reservation.Version++
	return nil
}

func (r *ReservationRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	query := `
	SELECT id FROM reservations
	WHERE status = 'PENDING' AND expires_at <= $1
	ORDER BY expires_at
	LIMIT $2
	`

	return r.queryIDs(ctx, "list expired reservations", query, now, limit)
}

// ListReconcileCandidates finds reservations whose ledger journal already
// moved past the stored status.
func (r *ReservationRepository) ListReconcileCandidates(ctx context.Context, limit int) ([]uuid.UUID, error) {
	query := `
	SELECT DISTINCT r.id
	FROM reservations r
	JOIN ledger_operations o ON o.reservation_id = r.id
	WHERE (r.status = 'PENDING' AND o.kind IN ('COMMIT', 'RELEASE'))
		OR (r.status = 'CONFIRMED' AND o.kind = 'UNCOMMIT')
	LIMIT $1
	`

	return r.queryIDs(ctx, "list reconcile candidates", query, limit)
}

func (r *ReservationRepository) queryIDs(ctx context.Context, op, query string, args ...any) ([]uuid.UUID, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err, op)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, classify(err, op)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, classify(err, op)
	}

	return ids, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
