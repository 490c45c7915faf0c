package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const wideRowsSchema = `
	CREATE TABLE IF NOT EXISTS wide_rows (
		tbl           TEXT   NOT NULL,
		partition_key BYTEA  NOT NULL,
		clustering    BYTEA  NOT NULL,
		value         BYTEA  NOT NULL DEFAULT ''::bytea,
		counter       BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY (tbl, partition_key, clustering)
	)
`

// PostgresStore implements Store for PostgreSQL. All logical tables share one
// physical table keyed by (tbl, partition_key, clustering); bytea comparison
// preserves the tuple ordering of EncodeKey.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore creates a new PostgreSQL-backed store and ensures its schema
func NewPostgresStore(
	host string,
	port int,
	database, user, password string,
	maxConns, minConns int,
	logger *zap.Logger,
) (*PostgresStore, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s pool_max_conns=%d pool_min_conns=%d",
		host, port, database, user, password, maxConns, minConns,
	)

	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(context.Background(), wideRowsSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	logger.Info("PostgreSQL store connected",
		zap.String("host", host),
		zap.Int("port", port),
		zap.String("database", database))

	return &PostgresStore{
		pool:   pool,
		logger: logger,
	}, nil
}

// Get retrieves a single row
func (s *PostgresStore) Get(ctx context.Context, table, partition string, key Key) (*Row, error) {
	query := `
		SELECT value, counter
		FROM wide_rows
		WHERE tbl = $1 AND partition_key = $2 AND clustering = $3
	`

	row := Row{Key: key}
	err := s.pool.QueryRow(ctx, query, table, []byte(partition), EncodeKey(key)).Scan(&row.Value, &row.Counter)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get row: %w", err)
	}
	return &row, nil
}

// Put inserts or replaces a row value, keeping its counter
func (s *PostgresStore) Put(ctx context.Context, table, partition string, key Key, value []byte) error {
	query := `
		INSERT INTO wide_rows (tbl, partition_key, clustering, value)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tbl, partition_key, clustering) DO UPDATE SET value = EXCLUDED.value
	`

	if _, err := s.pool.Exec(ctx, query, table, []byte(partition), EncodeKey(key), nonNil(value)); err != nil {
		return fmt.Errorf("failed to put row: %w", err)
	}
	return nil
}

// InsertIfNotExists inserts a row only when the key is absent
func (s *PostgresStore) InsertIfNotExists(ctx context.Context, table, partition string, key Key, value []byte) (bool, error) {
	query := `
		INSERT INTO wide_rows (tbl, partition_key, clustering, value)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tbl, partition_key, clustering) DO NOTHING
	`

	result, err := s.pool.Exec(ctx, query, table, []byte(partition), EncodeKey(key), nonNil(value))
	if err != nil {
		return false, fmt.Errorf("failed to insert row: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// DeleteIfExists deletes a row and reports whether it was present
func (s *PostgresStore) DeleteIfExists(ctx context.Context, table, partition string, key Key) (bool, error) {
	query := `DELETE FROM wide_rows WHERE tbl = $1 AND partition_key = $2 AND clustering = $3`

	result, err := s.pool.Exec(ctx, query, table, []byte(partition), EncodeKey(key))
	if err != nil {
		return false, fmt.Errorf("failed to delete row: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// Query scans a partition in key order
func (s *PostgresStore) Query(ctx context.Context, table, partition string, q Query) (*Page, error) {
	lo, hi := keyRange(q)
	if lo == nil {
		lo = []byte{}
	}

	order := "ASC"
	if q.Reverse {
		order = "DESC"
	}
	query := fmt.Sprintf(`
		SELECT clustering, value, counter
		FROM wide_rows
		WHERE tbl = $1 AND partition_key = $2
		  AND clustering >= $3
		  AND ($4::bytea IS NULL OR clustering < $4)
		ORDER BY clustering %s
		LIMIT $5
	`, order)

	// One extra row tells whether the partition continues past the limit.
	var limit *int
	if q.Limit > 0 {
		n := q.Limit + 1
		limit = &n
	}

	rows, err := s.pool.Query(ctx, query, table, []byte(partition), lo, hi, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query partition: %w", err)
	}
	defer rows.Close()

	page := &Page{Rows: make([]Row, 0)}
	for rows.Next() {
		if q.Limit > 0 && len(page.Rows) == q.Limit {
			page.More = true
			break
		}
		var (
			clustering []byte
			row        Row
		)
		if err := rows.Scan(&clustering, &row.Value, &row.Counter); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if row.Key, err = DecodeKey(clustering); err != nil {
			return nil, err
		}
		page.Rows = append(page.Rows, row)
	}

	return page, rows.Err()
}

// Increment adds delta to the counter of an existing row
func (s *PostgresStore) Increment(ctx context.Context, table, partition string, key Key, delta int64) error {
	query := `
		UPDATE wide_rows SET counter = counter + $4
		WHERE tbl = $1 AND partition_key = $2 AND clustering = $3
	`

	tag, err := s.pool.Exec(ctx, query, table, []byte(partition), EncodeKey(key), delta)
	if err != nil {
		return fmt.Errorf("failed to increment counter: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeletePartition drops every row of a partition
func (s *PostgresStore) DeletePartition(ctx context.Context, table, partition string) error {
	query := `DELETE FROM wide_rows WHERE tbl = $1 AND partition_key = $2`

	if _, err := s.pool.Exec(ctx, query, table, []byte(partition)); err != nil {
		return fmt.Errorf("failed to delete partition: %w", err)
	}
	return nil
}

// Ping checks the database connection
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func nonNil(value []byte) []byte {
	if value == nil {
		return []byte{}
	}
	return value
}
