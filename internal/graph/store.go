package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver

	pingerr "github.com/ping-mem/pingmem/internal/errors"
)

// Store is the SQLite-backed labeled property graph.
//
// Every entity and relationship version is a row; the open version of an
// id has valid_to IS NULL, enforced by a partial unique index. Times are
// stored as integer milliseconds since the epoch.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the graph database. An empty path opens an
// in-memory database for tests.
func Open(path string) (*Store, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create graph directory: %w", err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, pingerr.BackendUnavailable("graph", err)
	}

	// Single writer prevents lock contention; WAL keeps readers unblocked.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS entities (
	id             TEXT NOT NULL,
	type           TEXT NOT NULL,
	name           TEXT NOT NULL,
	properties     TEXT NOT NULL DEFAULT '{}',
	project_id     TEXT NOT NULL DEFAULT '',
	event_time     INTEGER NOT NULL,
	ingestion_time INTEGER NOT NULL,
	valid_from     INTEGER NOT NULL,
	valid_to       INTEGER,
	version        INTEGER NOT NULL DEFAULT 1,
	created_at     INTEGER NOT NULL,
	updated_at     INTEGER NOT NULL,
	PRIMARY KEY (id, version)
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_entities_current
	ON entities(id) WHERE valid_to IS NULL;
CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(type);
CREATE INDEX IF NOT EXISTS idx_entities_name ON entities(name);
CREATE INDEX IF NOT EXISTS idx_entities_project ON entities(project_id);

CREATE TABLE IF NOT EXISTS relationships (
	id             TEXT NOT NULL,
	type           TEXT NOT NULL,
	source_id      TEXT NOT NULL,
	target_id      TEXT NOT NULL,
	properties     TEXT NOT NULL DEFAULT '{}',
	weight         REAL NOT NULL DEFAULT 1.0,
	project_id     TEXT NOT NULL DEFAULT '',
	event_time     INTEGER NOT NULL,
	ingestion_time INTEGER NOT NULL,
	valid_from     INTEGER NOT NULL,
	valid_to       INTEGER,
	version        INTEGER NOT NULL DEFAULT 1,
	created_at     INTEGER NOT NULL,
	updated_at     INTEGER NOT NULL,
	PRIMARY KEY (id, version)
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_relationships_current
	ON relationships(id) WHERE valid_to IS NULL;
CREATE INDEX IF NOT EXISTS idx_relationships_source ON relationships(source_id);
CREATE INDEX IF NOT EXISTS idx_relationships_target ON relationships(target_id);
CREATE INDEX IF NOT EXISTS idx_relationships_project ON relationships(project_id);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize graph schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- serialization helpers ---

func marshalProps(p Properties) (string, error) {
	if len(p) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to marshal properties: %w", err)
	}
	return string(data), nil
}

func unmarshalProps(raw string) Properties {
	if raw == "" || raw == "{}" {
		return nil
	}
	var p Properties
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil
	}
	return p
}

func msToTime(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullToTimePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := msToTime(v.Int64)
	return &t
}

// fillTimes defaults the temporal fields of a new entity version.
func fillEntityTimes(e *Entity, now time.Time) {
	if e.EventTime.IsZero() {
		e.EventTime = now
	}
	e.IngestionTime = now
	e.ValidFrom = now
	e.ValidTo = nil
	if e.Version == 0 {
		e.Version = 1
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
}

const entityColumns = `id, type, name, properties, project_id,
	event_time, ingestion_time, valid_from, valid_to, version,
	created_at, updated_at`

func scanEntity(row interface{ Scan(...any) error }) (*Entity, error) {
	var (
		e         Entity
		props     string
		eventMs   int64
		ingestMs  int64
		fromMs    int64
		toMs      sql.NullInt64
		createdMs int64
		updatedMs int64
	)
	err := row.Scan(&e.ID, &e.Type, &e.Name, &props, &e.ProjectID,
		&eventMs, &ingestMs, &fromMs, &toMs, &e.Version,
		&createdMs, &updatedMs)
	if err != nil {
		return nil, err
	}
	e.Properties = unmarshalProps(props)
	e.EventTime = msToTime(eventMs)
	e.IngestionTime = msToTime(ingestMs)
	e.ValidFrom = msToTime(fromMs)
	e.ValidTo = nullToTimePtr(toMs)
	e.CreatedAt = msToTime(createdMs)
	e.UpdatedAt = msToTime(updatedMs)
	return &e, nil
}

const relationshipColumns = `id, type, source_id, target_id, properties,
	weight, project_id, event_time, ingestion_time, valid_from, valid_to,
	version, created_at, updated_at`

func scanRelationship(row interface{ Scan(...any) error }) (*Relationship, error) {
	var (
		r         Relationship
		props     string
		eventMs   int64
		ingestMs  int64
		fromMs    int64
		toMs      sql.NullInt64
		createdMs int64
		updatedMs int64
	)
	err := row.Scan(&r.ID, &r.Type, &r.SourceID, &r.TargetID, &props,
		&r.Weight, &r.ProjectID, &eventMs, &ingestMs, &fromMs, &toMs,
		&r.Version, &createdMs, &updatedMs)
	if err != nil {
		return nil, err
	}
	r.Properties = unmarshalProps(props)
	r.EventTime = msToTime(eventMs)
	r.IngestionTime = msToTime(ingestMs)
	r.ValidFrom = msToTime(fromMs)
	r.ValidTo = nullToTimePtr(toMs)
	r.CreatedAt = msToTime(createdMs)
	r.UpdatedAt = msToTime(updatedMs)
	return &r, nil
}

// --- entity operations ---

// CreateEntity inserts a new entity as version 1.
func (s *Store) CreateEntity(ctx context.Context, e *Entity) error {
	if e.ID == "" {
		return pingerr.InvalidInput("entity id is required")
	}
	if !ValidEntityType(e.Type) {
		return pingerr.InvalidInput(fmt.Sprintf("unknown entity type %q", e.Type))
	}
	fillEntityTimes(e, time.Now().UTC())
	return s.insertEntity(ctx, s.db, e)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) insertEntity(ctx context.Context, ex execer, e *Entity) error {
	props, err := marshalProps(e.Properties)
	if err != nil {
		return err
	}

	var validTo any
	if e.ValidTo != nil {
		validTo = e.ValidTo.UnixMilli()
	}

	_, err = ex.ExecContext(ctx, `
		INSERT INTO entities (`+entityColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Type, e.Name, props, e.ProjectID,
		e.EventTime.UnixMilli(), e.IngestionTime.UnixMilli(),
		e.ValidFrom.UnixMilli(), validTo, e.Version,
		e.CreatedAt.UnixMilli(), e.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert entity %s: %w", e.ID, err)
	}
	return nil
}

// GetEntity returns the current version of an entity.
func (s *Store) GetEntity(ctx context.Context, id string) (*Entity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+entityColumns+` FROM entities
		WHERE id = ? AND valid_to IS NULL`, id)
	e, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return nil, pingerr.NotFound("entity", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entity %s: %w", id, err)
	}
	return e, nil
}

// UpdateEntityInPlace applies a patch to the current row without
// versioning (the versioning-off path; the temporal store owns the
// versioned protocol).
func (s *Store) UpdateEntityInPlace(ctx context.Context, id string, patch EntityPatch) (*Entity, error) {
	current, err := s.GetEntity(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		current.Name = *patch.Name
	}
	if patch.Type != nil {
		if !ValidEntityType(*patch.Type) {
			return nil, pingerr.InvalidInput(fmt.Sprintf("unknown entity type %q", *patch.Type))
		}
		current.Type = *patch.Type
	}
	if patch.Properties != nil {
		current.Properties = patch.Properties
	}
	current.UpdatedAt = time.Now().UTC()

	props, err := marshalProps(current.Properties)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE entities SET name = ?, type = ?, properties = ?, updated_at = ?
		WHERE id = ? AND valid_to IS NULL`,
		current.Name, current.Type, props, current.UpdatedAt.UnixMilli(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update entity %s: %w", id, err)
	}
	return current, nil
}

// DeleteEntity removes all versions of an entity and every relationship
// touching it.
func (s *Store) DeleteEntity(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete entity %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return pingerr.NotFound("entity", id)
	}

	_, err = tx.ExecContext(ctx,
		`DELETE FROM relationships WHERE source_id = ? OR target_id = ?`, id, id)
	if err != nil {
		return fmt.Errorf("failed to delete relationships of %s: %w", id, err)
	}
	return tx.Commit()
}

// FindByType returns current entities of a type, newest first.
func (s *Store) FindByType(ctx context.Context, t EntityType, limit int) ([]*Entity, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entityColumns+` FROM entities
		WHERE type = ? AND valid_to IS NULL
		ORDER BY updated_at DESC LIMIT ?`, t, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities by type: %w", err)
	}
	defer rows.Close()
	return collectEntities(rows)
}

// FindByProject returns current entities tagged with a project id,
// optionally restricted to one type, ordered by event time descending.
func (s *Store) FindByProject(ctx context.Context, projectID string, t EntityType, limit int) ([]*Entity, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + entityColumns + ` FROM entities
		WHERE project_id = ? AND valid_to IS NULL`
	args := []any{projectID}
	if t != "" {
		query += ` AND type = ?`
		args = append(args, t)
	}
	query += ` ORDER BY event_time DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities by project: %w", err)
	}
	defer rows.Close()
	return collectEntities(rows)
}

func collectEntities(rows *sql.Rows) ([]*Entity, error) {
	var out []*Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MergeEntity upserts by (name, type). A match keeps the existing id,
// merges properties key by key (incoming keys win, absent keys are
// kept, so memory references survive dedup merges), and bumps
// updated/event/ingestion times; a miss creates the entity with its
// supplied id.
func (s *Store) MergeEntity(ctx context.Context, e *Entity) (*Entity, error) {
	if !ValidEntityType(e.Type) {
		return nil, pingerr.InvalidInput(fmt.Sprintf("unknown entity type %q", e.Type))
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT `+entityColumns+` FROM entities
		WHERE name = ? AND type = ? AND valid_to IS NULL`, e.Name, e.Type)
	existing, err := scanEntity(row)
	if err == sql.ErrNoRows {
		if err := s.CreateEntity(ctx, e); err != nil {
			return nil, err
		}
		return e, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to match entity for merge: %w", err)
	}

	now := time.Now().UTC()
	mergedProps := existing.Properties
	if mergedProps == nil {
		mergedProps = Properties{}
	}
	for k, v := range e.Properties {
		mergedProps[k] = v
	}
	props, err := marshalProps(mergedProps)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE entities
		SET properties = ?, updated_at = ?, event_time = ?, ingestion_time = ?
		WHERE id = ? AND valid_to IS NULL`,
		props, now.UnixMilli(), now.UnixMilli(), now.UnixMilli(), existing.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to merge entity %s: %w", existing.ID, err)
	}

	existing.Properties = mergedProps
	existing.UpdatedAt = now
	existing.EventTime = now
	existing.IngestionTime = now
	return existing, nil
}

// BatchCreateEntities inserts entities in one transaction.
func (s *Store) BatchCreateEntities(ctx context.Context, entities []*Entity) error {
	if len(entities) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin batch create: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	for _, e := range entities {
		if e.ID == "" {
			return pingerr.InvalidInput("entity id is required")
		}
		if !ValidEntityType(e.Type) {
			return pingerr.InvalidInput(fmt.Sprintf("unknown entity type %q", e.Type))
		}
		fillEntityTimes(e, now)
		if err := s.insertEntity(ctx, tx, e); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// --- relationship operations ---

// CreateRelationship inserts an edge after verifying both endpoints
// exist as current entities.
func (s *Store) CreateRelationship(ctx context.Context, r *Relationship) error {
	if r.ID == "" {
		return pingerr.InvalidInput("relationship id is required")
	}
	if !ValidRelationshipType(r.Type) {
		return pingerr.InvalidInput(fmt.Sprintf("unknown relationship type %q", r.Type))
	}
	if r.Weight < 0 || r.Weight > 1 {
		return pingerr.InvalidInput(fmt.Sprintf("relationship weight %v out of [0,1]", r.Weight))
	}

	if _, err := s.GetEntity(ctx, r.SourceID); err != nil {
		return err
	}
	if _, err := s.GetEntity(ctx, r.TargetID); err != nil {
		return err
	}

	now := time.Now().UTC()
	if r.EventTime.IsZero() {
		r.EventTime = now
	}
	r.IngestionTime = now
	r.ValidFrom = now
	r.ValidTo = nil
	if r.Version == 0 {
		r.Version = 1
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	return s.insertRelationship(ctx, s.db, r)
}

func (s *Store) insertRelationship(ctx context.Context, ex execer, r *Relationship) error {
	props, err := marshalProps(r.Properties)
	if err != nil {
		return err
	}
	var validTo any
	if r.ValidTo != nil {
		validTo = r.ValidTo.UnixMilli()
	}

	_, err = ex.ExecContext(ctx, `
		INSERT INTO relationships (`+relationshipColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Type, r.SourceID, r.TargetID, props,
		r.Weight, r.ProjectID, r.EventTime.UnixMilli(),
		r.IngestionTime.UnixMilli(), r.ValidFrom.UnixMilli(), validTo,
		r.Version, r.CreatedAt.UnixMilli(), r.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert relationship %s: %w", r.ID, err)
	}
	return nil
}

// GetRelationship returns the current version of an edge.
func (s *Store) GetRelationship(ctx context.Context, id string) (*Relationship, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+relationshipColumns+` FROM relationships
		WHERE id = ? AND valid_to IS NULL`, id)
	r, err := scanRelationship(row)
	if err == sql.ErrNoRows {
		return nil, pingerr.NotFound("relationship", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get relationship %s: %w", id, err)
	}
	return r, nil
}

// DeleteRelationship removes all versions of an edge.
func (s *Store) DeleteRelationship(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM relationships WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete relationship %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return pingerr.NotFound("relationship", id)
	}
	return nil
}

// FindByEntity returns current edges touching an entity, incoming and
// outgoing.
func (s *Store) FindByEntity(ctx context.Context, entityID string) ([]*Relationship, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+relationshipColumns+` FROM relationships
		WHERE (source_id = ? OR target_id = ?) AND valid_to IS NULL
		ORDER BY id`, entityID, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query relationships: %w", err)
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

// Neighborhood enumerates the 1-hop (source, type, target) triples
// around an entity with resolved names.
func (s *Store) Neighborhood(ctx context.Context, entityID string) ([]*Triple, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.source_id, se.name, r.type, r.target_id, te.name, r.weight
		FROM relationships r
		JOIN entities se ON se.id = r.source_id AND se.valid_to IS NULL
		JOIN entities te ON te.id = r.target_id AND te.valid_to IS NULL
		WHERE (r.source_id = ? OR r.target_id = ?) AND r.valid_to IS NULL
		ORDER BY r.id`, entityID, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query neighborhood: %w", err)
	}
	defer rows.Close()

	var out []*Triple
	for rows.Next() {
		var t Triple
		if err := rows.Scan(&t.SourceID, &t.SourceName, &t.Type,
			&t.TargetID, &t.TargetName, &t.Weight); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

// DeleteProject cascades: every entity and relationship tagged with the
// project id is removed, all versions included.
func (s *Store) DeleteProject(ctx context.Context, projectID string) (entities, relationships int, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin project delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM relationships WHERE project_id = ?`, projectID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to delete project relationships: %w", err)
	}
	rn, _ := res.RowsAffected()

	res, err = tx.ExecContext(ctx,
		`DELETE FROM entities WHERE project_id = ?`, projectID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to delete project entities: %w", err)
	}
	en, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}
	return int(en), int(rn), nil
}

// Stats counts current entities and relationships.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entities WHERE valid_to IS NULL`).Scan(&st.Entities)
	if err != nil {
		return nil, err
	}
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM relationships WHERE valid_to IS NULL`).Scan(&st.Relationships)
	if err != nil {
		return nil, err
	}
	return &st, nil
}
