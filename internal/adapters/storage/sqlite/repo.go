package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/hylla/tabula/internal/app"
	"github.com/hylla/tabula/internal/domain"
	"github.com/hylla/tabula/internal/grid"
	_ "modernc.org/sqlite"
)

// driverName defines a package constant value.
const driverName = "sqlite"

// Repository stores grid snapshots relationally, one row per column, lane and record.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens the requested operation.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return newRepository(db)
}

// OpenInMemory opens in memory.
func OpenInMemory() (*Repository, error) {
	db, err := sql.Open(driverName, "file::memory:?cache=shared")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	return newRepository(db)
}

func newRepository(db *sql.DB) (*Repository, error) {
	repo := &Repository{db: db, now: time.Now}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the requested operation.
func (r *Repository) Close() error {
	return r.db.Close()
}

// migrate handles migrate.
func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS grid_scopes (
			scope_key TEXT PRIMARY KEY,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS grid_columns (
			scope_key TEXT NOT NULL,
			id TEXT NOT NULL,
			position INTEGER NOT NULL,
			label TEXT NOT NULL,
			type TEXT NOT NULL,
			width INTEGER NOT NULL,
			min_width INTEGER NOT NULL,
			resizable INTEGER NOT NULL DEFAULT 1,
			currency TEXT NOT NULL DEFAULT '',
			options_json TEXT NOT NULL DEFAULT '[]',
			PRIMARY KEY(scope_key, id),
			FOREIGN KEY(scope_key) REFERENCES grid_scopes(scope_key) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS grid_lanes (
			scope_key TEXT NOT NULL,
			id TEXT NOT NULL,
			position INTEGER NOT NULL,
			title TEXT NOT NULL,
			color TEXT NOT NULL,
			collapsed INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY(scope_key, id),
			FOREIGN KEY(scope_key) REFERENCES grid_scopes(scope_key) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS grid_records (
			scope_key TEXT NOT NULL,
			id TEXT NOT NULL,
			parent_id TEXT NOT NULL DEFAULT '',
			lane_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			title TEXT NOT NULL,
			fields_json TEXT NOT NULL DEFAULT '{}',
			expanded INTEGER NOT NULL DEFAULT 0,
			selected INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY(scope_key, id),
			FOREIGN KEY(scope_key) REFERENCES grid_scopes(scope_key) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_grid_records_parent ON grid_records(scope_key, parent_id, position);`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// Save replaces every stored row of scopeKey with snap in one transaction.
func (r *Repository) Save(ctx context.Context, scopeKey string, snap grid.Snapshot) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO grid_scopes(scope_key, updated_at) VALUES(?, ?)
		ON CONFLICT(scope_key) DO UPDATE SET updated_at = excluded.updated_at
	`, scopeKey, ts(r.now())); err != nil {
		return fmt.Errorf("upsert scope: %w", err)
	}
	for _, table := range []string{"grid_columns", "grid_lanes", "grid_records"} {
		if _, err = tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE scope_key = ?`, scopeKey); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for i, col := range snap.Columns {
		optionsJSON, marshalErr := json.Marshal(nonNilOptions(col.Options))
		if marshalErr != nil {
			return fmt.Errorf("encode column options: %w", marshalErr)
		}
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO grid_columns(scope_key, id, position, label, type, width, min_width, resizable, currency, options_json)
			VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, scopeKey, col.ID, i, col.Label, string(col.Type), col.Width, col.MinWidth, boolToInt(col.Resizable), col.Currency, string(optionsJSON)); err != nil {
			return fmt.Errorf("insert column %s: %w", col.ID, err)
		}
	}
	for i, lane := range snap.Lanes {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO grid_lanes(scope_key, id, position, title, color, collapsed)
			VALUES(?, ?, ?, ?, ?, ?)
		`, scopeKey, lane.ID, i, lane.Title, lane.Color, boolToInt(lane.Collapsed)); err != nil {
			return fmt.Errorf("insert lane %s: %w", lane.ID, err)
		}
	}
	if err = insertRecords(ctx, tx, scopeKey, "", snap.Records); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}

// insertRecords writes a sibling list depth-first. Top-level rows are ordered
// per lane, children per parent.
func insertRecords(ctx context.Context, tx *sql.Tx, scopeKey, parentID string, recs []domain.Record) error {
	lanePos := map[string]int{}
	for i, rec := range recs {
		pos := i
		if parentID == "" {
			pos = lanePos[rec.LaneID]
			lanePos[rec.LaneID] = pos + 1
		}
		fieldsJSON, err := json.Marshal(nonNilFields(rec.Fields))
		if err != nil {
			return fmt.Errorf("encode record fields: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO grid_records(scope_key, id, parent_id, lane_id, position, title, fields_json, expanded, selected)
			VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, scopeKey, rec.ID, parentID, rec.LaneID, pos, rec.Title, string(fieldsJSON), boolToInt(rec.Expanded), boolToInt(rec.Selected)); err != nil {
			return fmt.Errorf("insert record %s: %w", rec.ID, err)
		}
		if err := insertRecords(ctx, tx, scopeKey, rec.ID, rec.Children); err != nil {
			return err
		}
	}
	return nil
}

// Load rebuilds the stored snapshot of scopeKey.
func (r *Repository) Load(ctx context.Context, scopeKey string) (grid.Snapshot, error) {
	var found int
	row := r.db.QueryRowContext(ctx, `SELECT 1 FROM grid_scopes WHERE scope_key = ?`, scopeKey)
	if err := translateNoRows(row.Scan(&found)); err != nil {
		return grid.Snapshot{}, err
	}

	columns, err := r.loadColumns(ctx, scopeKey)
	if err != nil {
		return grid.Snapshot{}, err
	}
	lanes, err := r.loadLanes(ctx, scopeKey)
	if err != nil {
		return grid.Snapshot{}, err
	}
	records, err := r.loadRecords(ctx, scopeKey, lanes)
	if err != nil {
		return grid.Snapshot{}, err
	}
	return grid.Snapshot{Columns: columns, Lanes: lanes, Records: records}, nil
}

func (r *Repository) loadColumns(ctx context.Context, scopeKey string) ([]domain.Column, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, label, type, width, min_width, resizable, currency, options_json
		FROM grid_columns
		WHERE scope_key = ?
		ORDER BY position ASC
	`, scopeKey)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Column, 0)
	for rows.Next() {
		var (
			col         domain.Column
			typ         string
			resizable   int
			optionsJSON string
		)
		if err := rows.Scan(&col.ID, &col.Label, &typ, &col.Width, &col.MinWidth, &resizable, &col.Currency, &optionsJSON); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		col.Type = domain.ColumnType(typ)
		col.Resizable = resizable == 1
		if err := json.Unmarshal([]byte(optionsJSON), &col.Options); err != nil {
			return nil, fmt.Errorf("decode options of column %s: %w", col.ID, err)
		}
		if len(col.Options) == 0 {
			col.Options = nil
		}
		out = append(out, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	return out, nil
}

func (r *Repository) loadLanes(ctx context.Context, scopeKey string) ([]domain.Lane, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, title, color, collapsed
		FROM grid_lanes
		WHERE scope_key = ?
		ORDER BY position ASC
	`, scopeKey)
	if err != nil {
		return nil, fmt.Errorf("query lanes: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Lane, 0)
	for rows.Next() {
		var (
			lane      domain.Lane
			collapsed int
		)
		if err := rows.Scan(&lane.ID, &lane.Title, &lane.Color, &collapsed); err != nil {
			return nil, fmt.Errorf("scan lane: %w", err)
		}
		lane.Collapsed = collapsed == 1
		out = append(out, lane)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lanes: %w", err)
	}
	return out, nil
}

// storedRecord is one grid_records row before nesting.
type storedRecord struct {
	rec      domain.Record
	parentID string
}

// loadRecords reads flat rows and nests them. Top-level rows follow lane
// order; rows whose lane is unknown trail in stored order and are repaired
// when the snapshot is restored.
func (r *Repository) loadRecords(ctx context.Context, scopeKey string, lanes []domain.Lane) ([]domain.Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, parent_id, lane_id, title, fields_json, expanded, selected
		FROM grid_records
		WHERE scope_key = ?
		ORDER BY parent_id ASC, lane_id ASC, position ASC
	`, scopeKey)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	children := map[string][]storedRecord{}
	roots := map[string][]storedRecord{}
	laneOrder := make([]string, 0, len(lanes))
	for _, lane := range lanes {
		laneOrder = append(laneOrder, lane.ID)
	}
	for rows.Next() {
		var (
			sr                 storedRecord
			fieldsJSON         string
			expanded, selected int
		)
		if err := rows.Scan(&sr.rec.ID, &sr.parentID, &sr.rec.LaneID, &sr.rec.Title, &fieldsJSON, &expanded, &selected); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if err := json.Unmarshal([]byte(fieldsJSON), &sr.rec.Fields); err != nil {
			return nil, fmt.Errorf("decode fields of record %s: %w", sr.rec.ID, err)
		}
		if len(sr.rec.Fields) == 0 {
			sr.rec.Fields = nil
		}
		sr.rec.Expanded = expanded == 1
		sr.rec.Selected = selected == 1
		if sr.parentID == "" {
			if _, seen := roots[sr.rec.LaneID]; !seen && !slices.Contains(laneOrder, sr.rec.LaneID) {
				laneOrder = append(laneOrder, sr.rec.LaneID)
			}
			roots[sr.rec.LaneID] = append(roots[sr.rec.LaneID], sr)
			continue
		}
		children[sr.parentID] = append(children[sr.parentID], sr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}

	// each row has one parent, so rows reachable from a root form a tree.
	var nest func(list []storedRecord) []domain.Record
	nest = func(list []storedRecord) []domain.Record {
		out := make([]domain.Record, 0, len(list))
		for _, sr := range list {
			rec := sr.rec
			if kids := children[rec.ID]; len(kids) > 0 {
				rec.Children = nest(kids)
			}
			out = append(out, rec)
		}
		return out
	}
	out := make([]domain.Record, 0)
	for _, laneID := range laneOrder {
		out = append(out, nest(roots[laneID])...)
	}
	return out, nil
}

// ListScopes returns every stored scope key, sorted.
func (r *Repository) ListScopes(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT scope_key FROM grid_scopes ORDER BY scope_key ASC`)
	if err != nil {
		return nil, fmt.Errorf("query scopes: %w", err)
	}
	defer rows.Close()
	out := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan scope: %w", err)
		}
		out = append(out, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scopes: %w", err)
	}
	return out, nil
}

// DeleteScope removes a stored scope with all of its rows.
func (r *Repository) DeleteScope(ctx context.Context, scopeKey string) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, table := range []string{"grid_columns", "grid_lanes", "grid_records"} {
		if _, err = tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE scope_key = ?`, scopeKey); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM grid_scopes WHERE scope_key = ?`, scopeKey)
	if err != nil {
		return fmt.Errorf("delete scope: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		err = app.ErrNotFound
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}

// UpdatedAt reports when scopeKey was last saved.
func (r *Repository) UpdatedAt(ctx context.Context, scopeKey string) (time.Time, error) {
	var raw string
	row := r.db.QueryRowContext(ctx, `SELECT updated_at FROM grid_scopes WHERE scope_key = ?`, scopeKey)
	if err := translateNoRows(row.Scan(&raw)); err != nil {
		return time.Time{}, err
	}
	return parseTS(raw)
}

// translateNoRows handles translate no rows.
func translateNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return app.ErrNotFound
	}
	return err
}

// ts handles ts.
func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTS parses input into a normalized form.
func parseTS(v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", v, err)
	}
	return t.UTC(), nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func nonNilOptions(in []domain.Option) []domain.Option {
	if in == nil {
		return []domain.Option{}
	}
	return in
}

func nonNilFields(in map[string]any) map[string]any {
	if in == nil {
		return map[string]any{}
	}
	return in
}
