package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// DefaultStatusTable is the key/value table holding sweep progress.
const DefaultStatusTable = "status"

// StatusStore upserts progress keys into a key/value table.
type StatusStore struct {
	pool  querier
	table string
	now   func() time.Time
}

// NewStatusStore wraps pool.
func NewStatusStore(pool querier, table string) (*StatusStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := checkTable(table, DefaultStatusTable)
	if err != nil {
		return nil, err
	}
	return &StatusStore{pool: pool, table: table, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Put upserts values in a single statement. Keys are written in sorted order.
func (s *StatusStore) Put(ctx context.Context, values map[string]int64) error {
	if len(values) == 0 {
		return nil
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	now := s.now()
	builder := psql.Insert(s.table).Columns("key", "value", "updated_at")
	for _, k := range keys {
		builder = builder.Values(k, values[k], now)
	}
	query, args, err := builder.
		Suffix("ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build status upsert: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert status: %w", err)
	}
	return nil
}

// All returns every stored key with the given prefix.
func (s *StatusStore) All(ctx context.Context, prefix string) (map[string]int64, error) {
	q := psql.Select("key", "value").From(s.table).OrderBy("key")
	if prefix != "" {
		q = q.Where("key LIKE ?", prefix+"%")
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build status query: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query status: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var (
			key   string
			value int64
		)
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan status row: %w", err)
		}
		out[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status rows: %w", err)
	}
	return out, nil
}
