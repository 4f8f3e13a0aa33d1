package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"tourism-cache/internal/errclass"
	"tourism-cache/internal/interfaces"
	"tourism-cache/internal/models"
	"tourism-cache/internal/utils"
)

// Ensure Backend implements interfaces.Backend
var _ interfaces.Backend = (*Backend)(nil)

// Config holds Postgres connection settings.
type Config struct {
	DSN            string        `yaml:"dsn"`
	Schema         string        `yaml:"schema"`
	ConnectTimeout utils.Duration `yaml:"connect_timeout"`
	QueryTimeout   utils.Duration `yaml:"query_timeout"`
}

// ApplyDefaults sets default values for missing configuration.
func (c *Config) ApplyDefaults() {
	if c.Schema == "" {
		c.Schema = "public"
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = utils.Duration(10 * time.Second)
	}
	if c.QueryTimeout == 0 {
		c.QueryTimeout = utils.Duration(30 * time.Second)
	}
}

// Backend is the hosted-database client over a pgx connection pool. Rows
// travel as JSON (to_jsonb) so the cache layer never needs table-specific
// scan targets.
type Backend struct {
	pool    *pgxpool.Pool
	schema  string
	timeout time.Duration
	logger  *zap.Logger
}

// New connects a pool and pings it.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Backend, error) {
	cfg.ApplyDefaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Postgres DSN: %w", err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout.Std())
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Postgres pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}

	logger.Info("Connected to Postgres",
		zap.String("schema", cfg.Schema),
		zap.Duration("query_timeout", cfg.QueryTimeout.Std()))

	return &Backend{
		pool:    pool,
		schema:  cfg.Schema,
		timeout: cfg.QueryTimeout.Std(),
		logger:  logger,
	}, nil
}

// Close releases the pool.
func (b *Backend) Close() {
	b.pool.Close()
}

// Select runs a filtered read and returns one JSON page of rows.
func (b *Backend) Select(ctx context.Context, q models.SelectQuery) (*models.SelectResult, error) {
	sql, args, err := buildSelectSQL(b.schema, q)
	if err != nil {
		return nil, errclass.New(errclass.Validation, "select", err)
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	rows, err := b.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, errclass.Classify("select", err)
	}
	defer rows.Close()

	page := []json.RawMessage{}
	for rows.Next() {
		var row []byte
		if err := rows.Scan(&row); err != nil {
			return nil, errclass.Classify("select", err)
		}
		page = append(page, json.RawMessage(row))
	}
	if err := rows.Err(); err != nil {
		return nil, errclass.Classify("select", err)
	}

	data, err := json.Marshal(page)
	if err != nil {
		return nil, errclass.Classify("select", err)
	}
	result := &models.SelectResult{Rows: data}

	if q.WithCount {
		countSQL, countArgs, err := buildCountSQL(b.schema, q)
		if err != nil {
			return nil, errclass.New(errclass.Validation, "select", err)
		}
		var total int
		if err := b.pool.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
			return nil, errclass.Classify("select", err)
		}
		result.Count = &total
	}

	return result, nil
}

// Insert writes one row from its JSON form and returns the stored row.
func (b *Backend) Insert(ctx context.Context, table string, row json.RawMessage) (json.RawMessage, error) {
	rel, err := qualify(b.schema, table)
	if err != nil {
		return nil, errclass.New(errclass.Validation, "insert", err)
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	// jsonb_populate_record maps the JSON payload onto the table's row
	// type; absent columns get their defaults.
	sql := fmt.Sprintf(
		"INSERT INTO %s AS t SELECT * FROM jsonb_populate_record(NULL::%s, $1::jsonb) RETURNING to_jsonb(t.*)",
		rel, rel)

	var stored []byte
	if err := b.pool.QueryRow(ctx, sql, string(row)).Scan(&stored); err != nil {
		return nil, errclass.Classify("insert", err)
	}
	return stored, nil
}

// Update shallow-merges the patch into the row with the given id.
func (b *Backend) Update(ctx context.Context, table, id string, patch json.RawMessage) (json.RawMessage, error) {
	rel, err := qualify(b.schema, table)
	if err != nil {
		return nil, errclass.New(errclass.Validation, "update", err)
	}

	sql, args, err := buildUpdateSQL(rel, id, patch)
	if err != nil {
		return nil, errclass.New(errclass.Validation, "update", err)
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	var stored []byte
	if err := b.pool.QueryRow(ctx, sql, args...).Scan(&stored); err != nil {
		return nil, errclass.Classify("update", err)
	}
	return stored, nil
}

// Delete removes the row with the given id.
func (b *Backend) Delete(ctx context.Context, table, id string) error {
	rel, err := qualify(b.schema, table)
	if err != nil {
		return errclass.New(errclass.Validation, "delete", err)
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	tag, err := b.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", rel), id)
	if err != nil {
		return errclass.Classify("delete", err)
	}
	if tag.RowsAffected() == 0 {
		return errclass.New(errclass.NotFoundOrDenied, "delete", pgx.ErrNoRows)
	}
	return nil
}
