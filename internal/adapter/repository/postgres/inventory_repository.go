package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/GranFenrir/event-reservation-system-sub000/internal/core/domain"
)

const unitColumns = `id, event_id, name, unit_price, total_capacity, held, sold, version, created_at, updated_at`

type InventoryRepository struct {
	db *sql.DB
}

func NewInventoryRepository(db *sql.DB) *InventoryRepository {
	return &InventoryRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUnit(row rowScanner) (*domain.InventoryUnit, error) {
	var u domain.InventoryUnit
	err := row.Scan(
		&u.ID,
		&u.EventID,
		&u.Name,
		&u.UnitPrice,
		&u.TotalCapacity,
		&u.Held,
		&u.Sold,
		&u.Version,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func (r *InventoryRepository) CreateUnit(ctx context.Context, unit *domain.InventoryUnit) error {
	query := `
	INSERT INTO inventory_units (id, event_id, name, unit_price, total_capacity, held, sold, version, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := conn(ctx, r.db).ExecContext(ctx, query,
		unit.ID, unit.EventID, unit.Name, unit.UnitPrice, unit.TotalCapacity,
		unit.Held, unit.Sold, unit.Version, unit.CreatedAt, unit.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.InvalidRequest("inventory unit %s already exists", unit.ID)
		}
		return classify(err, "insert inventory unit")
	}

	return nil
}

func (r *InventoryRepository) GetUnit(ctx context.Context, unitID uuid.UUID) (*domain.InventoryUnit, error) {
	query := `SELECT ` + unitColumns + ` FROM inventory_units WHERE id = $1`

	unit, err := scanUnit(conn(ctx, r.db).QueryRowContext(ctx, query, unitID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUnitNotFound
		}
		return nil, classify(err, "select inventory unit")
	}

	return unit, nil
}

func (r *InventoryRepository) GetUnits(ctx context.Context, unitIDs []uuid.UUID) ([]domain.InventoryUnit, error) {
	query := `SELECT ` + unitColumns + ` FROM inventory_units WHERE id = ANY($1::uuid[]) ORDER BY id`

	return r.queryUnits(ctx, "select inventory units", query, pq.Array(uuidStrings(unitIDs)))
}

func (r *InventoryRepository) ListUnitsByEvent(ctx context.Context, eventID uuid.UUID) ([]domain.InventoryUnit, error) {
	query := `SELECT ` + unitColumns + ` FROM inventory_units WHERE event_id = $1 ORDER BY name, id`

	return r.queryUnits(ctx, "list inventory units", query, eventID)
}

func (r *InventoryRepository) queryUnits(ctx context.Context, op, query string, args ...any) ([]domain.InventoryUnit, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err, op)
	}
	defer rows.Close()

	var units []domain.InventoryUnit
	for rows.Next() {
		unit, err := scanUnit(rows)
		if err != nil {
			return nil, classify(err, op)
		}
		units = append(units, *unit)
	}

	if err := rows.Err(); err != nil {
		return nil, classify(err, op)
	}

	return units, nil
}

func (r *InventoryRepository) RecordOperation(ctx context.Context, op domain.LedgerOperation) (bool, error) {
	query := `
	INSERT INTO ledger_operations (operation_id, reservation_id, unit_id, kind, quantity, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (operation_id) DO NOTHING
	`

	result, err := conn(ctx, r.db).ExecContext(ctx, query,
		op.OperationID, op.ReservationID, op.UnitID, op.Kind, op.Quantity, op.CreatedAt)
	if err != nil {
		return false, classify(err, "insert ledger operation")
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, classify(err, "insert ledger operation")
	}

	return n == 1, nil
}

func (r *InventoryRepository) ListOperations(ctx context.Context, reservationID uuid.UUID) ([]domain.LedgerOperation, error) {
	query := `
	SELECT operation_id, reservation_id, unit_id, kind, quantity, created_at
	FROM ledger_operations
	WHERE reservation_id = $1
	ORDER BY created_at, operation_id
	`

	return r.queryOperations(ctx, "list ledger operations", query, reservationID)
}

// FindOrphanHolds returns holds whose reservation row was never written and
// that have not been released.
func (r *InventoryRepository) FindOrphanHolds(ctx context.Context, olderThan time.Time, limit int) ([]domain.LedgerOperation, error) {
	query := `
	SELECT h.operation_id, h.reservation_id, h.unit_id, h.kind, h.quantity, h.created_at
	FROM ledger_operations h
	WHERE h.kind = 'HOLD'
		AND h.created_at < $1
		AND NOT EXISTS (SELECT 1 FROM reservations r WHERE r.id = h.reservation_id)
		AND NOT EXISTS (
			SELECT 1 FROM ledger_operations x
			WHERE x.reservation_id = h.reservation_id AND x.unit_id = h.unit_id AND x.kind = 'RELEASE'
		)
	ORDER BY h.created_at
	LIMIT $2
	`

	return r.queryOperations(ctx, "find orphan holds", query, olderThan, limit)
}

func (r *InventoryRepository) queryOperations(ctx context.Context, op, query string, args ...any) ([]domain.LedgerOperation, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err, op)
	}
	defer rows.Close()

	var ops []domain.LedgerOperation
	for rows.Next() {
		var o domain.LedgerOperation
		if err := rows.Scan(&o.OperationID, &o.ReservationID, &o.UnitID, &o.Kind, &o.Quantity, &o.CreatedAt); err != nil {
			return nil, classify(err, op)
		}
		ops = append(ops, o)
	}

	if err := rows.Err(); err != nil {
		return nil, classify(err, op)
	}

	return ops, nil
}

// ApplyHold is the check-and-increment: the WHERE clause and the increment are
// evaluated against the same row version, so concurrent holds cannot oversell.
func (r *InventoryRepository) ApplyHold(ctx context.Context, unitID uuid.UUID, quantity int) (*domain.InventoryUnit, error) {
	query := `
	UPDATE inventory_units
	SET held = held + $2,
		version = version + 1,
		updated_at = NOW()
	WHERE id = $1 AND held + sold + $2 <= total_capacity
	RETURNING ` + unitColumns

	unit, err := scanUnit(conn(ctx, r.db).QueryRowContext(ctx, query, unitID, quantity))
	if err == nil {
		return unit, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, classify(err, "hold inventory")
	}

	current, err := r.GetUnit(ctx, unitID)
	if err != nil {
		return nil, err
	}

	return nil, &domain.CapacityError{UnitID: unitID, Requested: quantity, Available: current.Available()}
}

func (r *InventoryRepository) ApplyRelease(ctx context.Context, unitID uuid.UUID, quantity int) (*domain.InventoryUnit, error) {
	query := `
	UPDATE inventory_units
	SET held = held - $2,
		version = version + 1,
		updated_at = NOW()
	WHERE id = $1 AND held >= $2
	RETURNING ` + unitColumns

	return r.applyGuarded(ctx, "release inventory", query, unitID, quantity)
}

func (r *InventoryRepository) ApplyCommit(ctx context.Context, unitID uuid.UUID, quantity int) (*domain.InventoryUnit, error) {
	query := `
	UPDATE inventory_units
	SET held = held - $2,
		sold = sold + $2,
		version = version + 1,
		updated_at = NOW()
	WHERE id = $1 AND held >= $2
	RETURNING ` + unitColumns

	return r.applyGuarded(ctx, "commit inventory", query, unitID, quantity)
}

func (r *InventoryRepository) ApplyUncommit(ctx context.Context, unitID uuid.UUID, quantity int) (*domain.InventoryUnit, error) {
	query := `
	UPDATE inventory_units
	SET sold = sold - $2,
		version = version + 1,
		updated_at = NOW()
	WHERE id = $1 AND sold >= $2
	RETURNING ` + unitColumns

	return r.applyGuarded(ctx, "uncommit inventory", query, unitID, quantity)
}

func (r *InventoryRepository) applyGuarded(ctx context.Context, op, query string, unitID uuid.UUID, quantity int) (*domain.InventoryUnit, error) {
	unit, err := scanUnit(conn(ctx, r.db).QueryRowContext(ctx, query, unitID, quantity))
	if err == nil {
		return unit, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, classify(err, op)
	}

	if _, err := r.GetUnit(ctx, unitID); err != nil {
		return nil, err
	}

	return nil, errors.Wrapf(domain.ErrLedgerUnderflow, "%s: unit %s quantity %d", op, unitID, quantity)
}
