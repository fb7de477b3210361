package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/JakeFAU/resource-existence/internal/catalog"
)

// DefaultResourceTable holds one row per known resource.
const DefaultResourceTable = "resources"

// ResourceStore reads resource ids and writes existence verdicts.
type ResourceStore struct {
	pool  querier
	table string
}

// NewResourceStore wraps pool. The store does not own the pool unless Close
// is called.
func NewResourceStore(pool querier, table string) (*ResourceStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := checkTable(table, DefaultResourceTable)
	if err != nil {
		return nil, err
	}
	return &ResourceStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *ResourceStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping verifies connectivity.
func (s *ResourceStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Count returns the number of resource rows.
func (s *ResourceStore) Count(ctx context.Context) (int64, error) {
	query, args, err := psql.Select("COUNT(*)").From(s.table).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count query: %w", err)
	}
	var n int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count resources: %w", err)
	}
	return n, nil
}

// ListEntryIDs returns every resource id ordered by id, so that an offset
// refers to the same entries across runs.
func (s *ResourceStore) ListEntryIDs(ctx context.Context) ([]catalog.ResourceID, error) {
	query, args, err := psql.Select("id").From(s.table).OrderBy("id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list resource ids: %w", err)
	}
	defer rows.Close()

	var ids []catalog.ResourceID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan resource id: %w", err)
		}
		ids = append(ids, catalog.ResourceID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate resource ids: %w", err)
	}
	return ids, nil
}

// SetStatus persists a non-existing status.
func (s *ResourceStore) SetStatus(ctx context.Context, id catalog.ResourceID, status catalog.ExistenceStatus) error {
	if status == catalog.StatusExisting {
		return s.ClearStatus(ctx, id)
	}
	return s.update(ctx, "set status", id, "existence_status", int(status))
}

// ClearStatus removes the status field, marking the resource as existing.
func (s *ResourceStore) ClearStatus(ctx context.Context, id catalog.ResourceID) error {
	return s.update(ctx, "clear status", id, "existence_status", nil)
}

// SetDownloads refreshes the download counter.
func (s *ResourceStore) SetDownloads(ctx context.Context, id catalog.ResourceID, downloads int64) error {
	return s.update(ctx, "set downloads", id, "downloads", downloads)
}

func (s *ResourceStore) update(ctx context.Context, op string, id catalog.ResourceID, column string, value any) error {
	query, args, err := psql.Update(s.table).
		Set(column, value).
		Where(sq.Eq{"id": int64(id)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build %s query: %w", op, err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("%s for resource %d: %w", op, id, err)
	}
	return nil
}
