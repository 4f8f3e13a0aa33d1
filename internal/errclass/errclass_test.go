package errclass

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"no rows", pgx.ErrNoRows, NotFoundOrDenied},
		{"wrapped no rows", fmt.Errorf("select: %w", pgx.ErrNoRows), NotFoundOrDenied},
		{"deadline", context.DeadlineExceeded, TransientNetwork},
		{"eof", io.EOF, TransientNetwork},
		{"unique violation", &pgconn.PgError{Code: "23505"}, Conflict},
		{"foreign key violation", &pgconn.PgError{Code: "23503"}, ReferentialViolation},
		{"insufficient privilege", &pgconn.PgError{Code: "42501"}, PermissionDenied},
		{"not null violation", &pgconn.PgError{Code: "23502"}, Validation},
		{"connection failure", &pgconn.PgError{Code: "08006"}, TransientNetwork},
		{"bad password", &pgconn.PgError{Code: "28P01"}, PermissionDenied},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, TransientNetwork},
		{"connection refused", errors.New("dial tcp 127.0.0.1:5432: connection refused"), TransientNetwork},
		{"something else", errors.New("boom"), Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified := Classify("test_op", tt.err)
			require.Error(t, classified)
			assert.Equal(t, tt.want, KindOf(classified))
		})
	}
}

func TestClassify_Passthrough(t *testing.T) {
	original := New(Conflict, "insert", errors.New("duplicate"))
	classified := Classify("outer", original)
	assert.Equal(t, original, classified)
	assert.Equal(t, Conflict, KindOf(classified))
}

func TestClassify_Nil(t *testing.T) {
	assert.NoError(t, Classify("op", nil))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(TransientNetwork))
	assert.False(t, Retryable(NotFoundOrDenied))
	assert.False(t, Retryable(PermissionDenied))
	assert.False(t, Retryable(Conflict))
	assert.False(t, Retryable(Validation))
	assert.False(t, Retryable(Unknown))
}

func TestError_Unwrap(t *testing.T) {
	inner := errors.New("broken pipe")
	wrapped := New(TransientNetwork, "fetch", inner)
	assert.ErrorIs(t, wrapped, inner)
	assert.Contains(t, wrapped.Error(), "fetch")
	assert.Contains(t, wrapped.Error(), "transient_network")
}
