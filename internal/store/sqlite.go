package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/persona-worlds/brainstorm-api/internal/model"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (and migrates) a SQLite database at the given DSN.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection so schema and data survive across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS worlds (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			background TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS characters (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			personality TEXT NOT NULL DEFAULT '',
			background TEXT NOT NULL DEFAULT '',
			world_id INTEGER NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME,
			FOREIGN KEY (world_id) REFERENCES worlds(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_characters_world ON characters(world_id)`,
		`CREATE TABLE IF NOT EXISTS discussions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			theme TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			world_id INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			result TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME,
			FOREIGN KEY (world_id) REFERENCES worlds(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_discussions_world ON discussions(world_id)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// CreateWorld inserts a new world and fills in its ID and timestamps.
func (s *SQLiteStore) CreateWorld(ctx context.Context, w *model.World) error {
	w.CreatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO worlds (name, description, background, created_at) VALUES (?, ?, ?, ?)`,
		w.Name, w.Description, w.Background, w.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert world: %w", err)
	}
	w.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get world id: %w", err)
	}
	return nil
}

// GetWorld retrieves a world by ID.
func (s *SQLiteStore) GetWorld(ctx context.Context, id int64) (*model.World, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, background, created_at, updated_at FROM worlds WHERE id = ?`, id)
	return scanWorld(row)
}

// ListWorlds retrieves worlds ordered by creation time.
func (s *SQLiteStore) ListWorlds(ctx context.Context, limit, offset int) ([]model.World, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, background, created_at, updated_at
		 FROM worlds ORDER BY id LIMIT ? OFFSET ?`, normalizeLimit(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query worlds: %w", err)
	}
	defer rows.Close()

	var worlds []model.World
	for rows.Next() {
		var w model.World
		var updated sql.NullTime
		if err := rows.Scan(&w.ID, &w.Name, &w.Description, &w.Background, &w.CreatedAt, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan world: %w", err)
		}
		if updated.Valid {
			w.UpdatedAt = &updated.Time
		}
		worlds = append(worlds, w)
	}
	return worlds, rows.Err()
}

// UpdateWorld applies non-empty fields from the request.
func (s *SQLiteStore) UpdateWorld(ctx context.Context, id int64, req *model.UpdateWorldRequest) (*model.World, error) {
	w, err := s.GetWorld(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != "" {
		w.Name = req.Name
	}
	if req.Description != "" {
		w.Description = req.Description
	}
	if req.Background != "" {
		w.Background = req.Background
	}
	now := time.Now().UTC()
	w.UpdatedAt = &now

	_, err = s.db.ExecContext(ctx,
		`UPDATE worlds SET name = ?, description = ?, background = ?, updated_at = ? WHERE id = ?`,
		w.Name, w.Description, w.Background, now, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update world: %w", err)
	}
	return w, nil
}

// DeleteWorld removes a world and, via cascade, its characters and
// discussions.
func (s *SQLiteStore) DeleteWorld(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM worlds WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete world: %w", err)
	}
	return requireAffected(res)
}

// CreateCharacter inserts a new character and fills in its ID.
func (s *SQLiteStore) CreateCharacter(ctx context.Context, c *model.Character) error {
	c.CreatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO characters (name, description, personality, background, world_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.Name, c.Description, c.Personality, c.Background, c.WorldID, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert character: %w", err)
	}
	c.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get character id: %w", err)
	}
	return nil
}

// GetCharacter retrieves a character by ID.
func (s *SQLiteStore) GetCharacter(ctx context.Context, id int64) (*model.Character, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, personality, background, world_id, created_at, updated_at
		 FROM characters WHERE id = ?`, id)
	return scanCharacter(row)
}

// ListCharacters retrieves characters, optionally filtered by world.
// A worldID of 0 means no filter.
func (s *SQLiteStore) ListCharacters(ctx context.Context, worldID int64, limit, offset int) ([]model.Character, error) {
	query := `SELECT id, name, description, personality, background, world_id, created_at, updated_at
		 FROM characters`
	args := []any{}
	if worldID != 0 {
		query += ` WHERE world_id = ?`
		args = append(args, worldID)
	}
	query += ` ORDER BY id LIMIT ? OFFSET ?`
	args = append(args, normalizeLimit(limit), offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query characters: %w", err)
	}
	defer rows.Close()

	var chars []model.Character
	for rows.Next() {
		var c model.Character
		var updated sql.NullTime
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.Personality, &c.Background,
			&c.WorldID, &c.CreatedAt, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan character: %w", err)
		}
		if updated.Valid {
			c.UpdatedAt = &updated.Time
		}
		chars = append(chars, c)
	}
	return chars, rows.Err()
}

// UpdateCharacter applies non-empty fields from the request.
func (s *SQLiteStore) UpdateCharacter(ctx context.Context, id int64, req *model.UpdateCharacterRequest) (*model.Character, error) {
	c, err := s.GetCharacter(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != "" {
		c.Name = req.Name
	}
	if req.Description != "" {
		c.Description = req.Description
	}
	if req.Personality != "" {
		c.Personality = req.Personality
	}
	if req.Background != "" {
		c.Background = req.Background
	}
	now := time.Now().UTC()
	c.UpdatedAt = &now

	_, err = s.db.ExecContext(ctx,
		`UPDATE characters SET name = ?, description = ?, personality = ?, background = ?, updated_at = ?
		 WHERE id = ?`,
		c.Name, c.Description, c.Personality, c.Background, now, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update character: %w", err)
	}
	return c, nil
}

// DeleteCharacter removes a character.
func (s *SQLiteStore) DeleteCharacter(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM characters WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete character: %w", err)
	}
	return requireAffected(res)
}

// CreateDiscussion inserts a new discussion with status pending.
func (s *SQLiteStore) CreateDiscussion(ctx context.Context, d *model.Discussion) error {
	d.Status = model.StatusPending
	d.CreatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO discussions (theme, description, world_id, status, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		d.Theme, d.Description, d.WorldID, d.Status, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert discussion: %w", err)
	}
	d.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get discussion id: %w", err)
	}
	return nil
}

// GetDiscussion retrieves a discussion, including its result if set.
func (s *SQLiteStore) GetDiscussion(ctx context.Context, id int64) (*model.Discussion, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, theme, description, world_id, status, result, created_at, updated_at
		 FROM discussions WHERE id = ?`, id)
	return scanDiscussionRow(row)
}

// ListDiscussions retrieves discussions, optionally filtered by world.
func (s *SQLiteStore) ListDiscussions(ctx context.Context, worldID int64, limit, offset int) ([]model.Discussion, error) {
	query := `SELECT id, theme, description, world_id, status, result, created_at, updated_at
		 FROM discussions`
	args := []any{}
	if worldID != 0 {
		query += ` WHERE world_id = ?`
		args = append(args, worldID)
	}
	query += ` ORDER BY id LIMIT ? OFFSET ?`
	args = append(args, normalizeLimit(limit), offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query discussions: %w", err)
	}
	defer rows.Close()

	var discussions []model.Discussion
	for rows.Next() {
		d, err := scanDiscussionRow(rows)
		if err != nil {
			return nil, err
		}
		discussions = append(discussions, *d)
	}
	return discussions, rows.Err()
}

// UpdateDiscussion applies non-empty fields from the request. A status
// update is only honored when resetting a terminal discussion back to
// pending; live status transitions belong to the engine.
func (s *SQLiteStore) UpdateDiscussion(ctx context.Context, id int64, req *model.UpdateDiscussionRequest) (*model.Discussion, error) {
	d, err := s.GetDiscussion(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Theme != "" {
		d.Theme = req.Theme
	}
	if req.Description != "" {
		d.Description = req.Description
	}
	if req.Status == model.StatusPending && d.Status.Terminal() {
		d.Status = model.StatusPending
		d.Result = nil
	}
	now := time.Now().UTC()
	d.UpdatedAt = &now

	resultJSON, err := marshalResult(d.Result)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE discussions SET theme = ?, description = ?, status = ?, result = ?, updated_at = ? WHERE id = ?`,
		d.Theme, d.Description, d.Status, resultJSON, now, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update discussion: %w", err)
	}
	return d, nil
}

// ClaimRun atomically moves a startable discussion to running. The
// conditional UPDATE is the single-writer gate: only one concurrent
// caller observes a row change.
func (s *SQLiteStore) ClaimRun(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE discussions SET status = ?, updated_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		model.StatusRunning, time.Now().UTC(), id, model.StatusPending, model.StatusFailed)
	if err != nil {
		return fmt.Errorf("failed to claim run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}
	if _, err := s.GetDiscussion(ctx, id); err != nil {
		return err
	}
	return ErrNotClaimable
}

// FinishRun records the terminal status and result of a run.
func (s *SQLiteStore) FinishRun(ctx context.Context, id int64, status model.DiscussionStatus, result *model.DiscussionResult) error {
	resultJSON, err := marshalResult(result)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE discussions SET status = ?, result = ?, updated_at = ? WHERE id = ?`,
		status, resultJSON, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return requireAffected(res)
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorld(row rowScanner) (*model.World, error) {
	var w model.World
	var updated sql.NullTime
	err := row.Scan(&w.ID, &w.Name, &w.Description, &w.Background, &w.CreatedAt, &updated)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan world: %w", err)
	}
	if updated.Valid {
		w.UpdatedAt = &updated.Time
	}
	return &w, nil
}

func scanCharacter(row rowScanner) (*model.Character, error) {
	var c model.Character
	var updated sql.NullTime
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.Personality, &c.Background,
		&c.WorldID, &c.CreatedAt, &updated)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan character: %w", err)
	}
	if updated.Valid {
		c.UpdatedAt = &updated.Time
	}
	return &c, nil
}

func scanDiscussionRow(row rowScanner) (*model.Discussion, error) {
	var d model.Discussion
	var resultJSON sql.NullString
	var updated sql.NullTime
	err := row.Scan(&d.ID, &d.Theme, &d.Description, &d.WorldID, &d.Status, &resultJSON,
		&d.CreatedAt, &updated)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan discussion: %w", err)
	}
	if updated.Valid {
		d.UpdatedAt = &updated.Time
	}
	if resultJSON.Valid && resultJSON.String != "" {
		var r model.DiscussionResult
		if err := json.Unmarshal([]byte(resultJSON.String), &r); err != nil {
			return nil, fmt.Errorf("failed to decode discussion result: %w", err)
		}
		d.Result = &r
	}
	return &d, nil
}

func marshalResult(r *model.DiscussionResult) (any, error) {
	if r == nil {
		return nil, nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to encode discussion result: %w", err)
	}
	return string(data), nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 100
	}
	return limit
}
