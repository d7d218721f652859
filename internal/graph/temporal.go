package graph

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	pingerr "github.com/ping-mem/pingmem/internal/errors"
)

// TemporalStore layers the versioning protocol over Store. With
// versioning on, every update closes the current row and opens a new
// version in one transaction; with versioning off, updates patch the
// current row in place.
type TemporalStore struct {
	store      *Store
	versioning bool
}

// NewTemporalStore wraps a Store.
func NewTemporalStore(store *Store, versioning bool) *TemporalStore {
	return &TemporalStore{store: store, versioning: versioning}
}

// Store exposes the underlying graph store.
func (t *TemporalStore) Store() *Store { return t.store }

// StoreEntity writes version 1 of an entity. A zero eventTime defaults
// to now.
func (t *TemporalStore) StoreEntity(ctx context.Context, e *Entity, eventTime time.Time) error {
	if !eventTime.IsZero() {
		e.EventTime = eventTime
	}
	e.Version = 1
	return t.store.CreateEntity(ctx, e)
}

// UpdateEntity applies a patch. Versioning on: the current row is
// closed and a successor row written atomically; a failure anywhere
// leaves the chain untouched. Versioning off: in-place update.
func (t *TemporalStore) UpdateEntity(ctx context.Context, id string, patch EntityPatch, eventTime time.Time) (*Entity, error) {
	if !t.versioning {
		return t.store.UpdateEntityInPlace(ctx, id, patch)
	}

	tx, err := t.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin versioned update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT `+entityColumns+` FROM entities
		WHERE id = ? AND valid_to IS NULL`, id)
	current, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return nil, pingerr.NotFound("entity", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read current version of %s: %w", id, err)
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		UPDATE entities SET valid_to = ?, updated_at = ?
		WHERE id = ? AND version = ?`,
		now.UnixMilli(), now.UnixMilli(), id, current.Version); err != nil {
		return nil, fmt.Errorf("failed to close version %d of %s: %w", current.Version, id, err)
	}

	next := *current
	if patch.Name != nil {
		next.Name = *patch.Name
	}
	if patch.Type != nil {
		if !ValidEntityType(*patch.Type) {
			return nil, pingerr.InvalidInput(fmt.Sprintf("unknown entity type %q", *patch.Type))
		}
		next.Type = *patch.Type
	}
	if patch.Properties != nil {
		next.Properties = patch.Properties
	}
	next.Version = current.Version + 1
	next.ValidFrom = now
	next.ValidTo = nil
	next.IngestionTime = now
	next.UpdatedAt = now
	if !eventTime.IsZero() {
		next.EventTime = eventTime
	} else {
		next.EventTime = now
	}

	if err := t.store.insertEntity(ctx, tx, &next); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit versioned update: %w", err)
	}
	return &next, nil
}

// InvalidateEntity closes the current row without a successor.
func (t *TemporalStore) InvalidateEntity(ctx context.Context, id string) error {
	now := time.Now().UTC()
	res, err := t.store.db.ExecContext(ctx, `
		UPDATE entities SET valid_to = ?, updated_at = ?
		WHERE id = ? AND valid_to IS NULL`,
		now.UnixMilli(), now.UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("failed to invalidate entity %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return pingerr.NotFound("entity", id)
	}
	return nil
}

// GetEntityAtTime returns the version valid at asOf whose event time is
// not after asOf, or nil when no version qualifies.
func (t *TemporalStore) GetEntityAtTime(ctx context.Context, id string, asOf time.Time) (*Entity, error) {
	ms := asOf.UnixMilli()
	row := t.store.db.QueryRowContext(ctx, `
		SELECT `+entityColumns+` FROM entities
		WHERE id = ?
		  AND valid_from <= ?
		  AND (valid_to IS NULL OR valid_to > ?)
		  AND event_time <= ?
		ORDER BY version DESC LIMIT 1`, id, ms, ms, ms)
	e, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read entity %s at time: %w", id, err)
	}
	return e, nil
}

// GetEntityHistory returns every version, newest first.
func (t *TemporalStore) GetEntityHistory(ctx context.Context, id string) ([]*Entity, error) {
	rows, err := t.store.db.QueryContext(ctx, `
		SELECT `+entityColumns+` FROM entities
		WHERE id = ? ORDER BY version DESC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to read history of %s: %w", id, err)
	}
	defer rows.Close()
	return collectEntities(rows)
}

// StoreRelationship writes version 1 of an edge.
func (t *TemporalStore) StoreRelationship(ctx context.Context, r *Relationship, eventTime time.Time) error {
	if !eventTime.IsZero() {
		r.EventTime = eventTime
	}
	r.Version = 1
	return t.store.CreateRelationship(ctx, r)
}

// InvalidateRelationship closes the current row of an edge.
func (t *TemporalStore) InvalidateRelationship(ctx context.Context, id string) error {
	now := time.Now().UTC()
	res, err := t.store.db.ExecContext(ctx, `
		UPDATE relationships SET valid_to = ?, updated_at = ?
		WHERE id = ? AND valid_to IS NULL`,
		now.UnixMilli(), now.UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("failed to invalidate relationship %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return pingerr.NotFound("relationship", id)
	}
	return nil
}

// GetRelationshipHistory returns every version of an edge, newest first.
func (t *TemporalStore) GetRelationshipHistory(ctx context.Context, id string) ([]*Relationship, error) {
	rows, err := t.store.db.QueryContext(ctx, `
		SELECT `+relationshipColumns+` FROM relationships
		WHERE id = ? ORDER BY version DESC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to read relationship history of %s: %w", id, err)
	}
	defer rows.Close()

	var out []*Relationship
	for rows.Next() {
		r, err := scanRelationship(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
