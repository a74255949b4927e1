package postgres

import (
	"context"
	"database/sql/driver"
	"net"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/GranFenrir/event-reservation-system-sub000/internal/core/domain"
)

const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeQueryCanceled        = "57014"
	classConnectionException = "08"
)

// classify wraps err with op and marks lock timeouts, deadlocks,
// serialization failures and dropped connections as transient.
func classify(err error, op string) error {
	if err == nil {
		return nil
	}

	wrapped := errors.Wrap(err, op)
	if isTransient(err) {
		return domain.Transient(wrapped)
	}
	return wrapped
}

func isTransient(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable, codeQueryCanceled:
			return true
		}
		return pqErr.Code.Class() == classConnectionException
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == codeUniqueViolation
}
