package errclass

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Classify wraps an arbitrary backend error with its taxonomy class. Errors
// already classified pass through unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return err
	}
	return New(classify(err), op, err)
}

func classify(err error) Kind {
	if errors.Is(err, pgx.ErrNoRows) {
		return NotFoundOrDenied
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return TransientNetwork
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return TransientNetwork
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return classifySQLState(pgErr.Code)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return TransientNetwork
	}
	if pgconn.Timeout(err) {
		return TransientNetwork
	}
	if strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset") {
		return TransientNetwork
	}

	return Unknown
}

// classifySQLState maps PostgreSQL SQLSTATE codes onto the taxonomy.
func classifySQLState(code string) Kind {
	switch code {
	case "23505": // unique_violation
		return Conflict
	case "23503": // foreign_key_violation
		return ReferentialViolation
	case "42501": // insufficient_privilege
		return PermissionDenied
	case "23502", "23514", "22P02": // not_null, check, invalid_text_representation
		return Validation
	case "57014": // query_canceled (statement timeout)
		return TransientNetwork
	}
	switch {
	case strings.HasPrefix(code, "08"): // connection exceptions
		return TransientNetwork
	case strings.HasPrefix(code, "28"): // invalid authorization
		return PermissionDenied
	case strings.HasPrefix(code, "22"): // data exceptions
		return Validation
	case strings.HasPrefix(code, "40"): // transaction rollback (serialization, deadlock)
		return TransientNetwork
	}
	return Unknown
}
