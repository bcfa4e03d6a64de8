//go:build !js

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"scenevault/internal/domain"
	applog "scenevault/internal/log"
	"scenevault/internal/version"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

const (
	// VaultFileName is the embedded database file inside the vault directory.
	VaultFileName = "vault.sqlite"

	// sqliteSchemaVersion tracks the local SQLite schema. Bump this when you
	// perform breaking schema changes and add migrations.
	sqliteSchemaVersion = 1

	settingsMetaKey = "settings"
)

// SQLiteBackend persists scenes, attachments and settings in a single
// embedded SQLite database under the vault directory.
type SQLiteBackend struct {
	db   *sql.DB
	path string
}

// VaultPath returns the full path to the embedded vault database file.
func VaultPath(dir string) string {
	return filepath.Join(dir, VaultFileName)
}

// OpenSQLite ensures the vault directory exists, opens the database, enables
// WAL mode, and brings the schema up to date.
func OpenSQLite(dir string) (*SQLiteBackend, error) {
	l := applog.WithOperation(applog.WithComponent("store"), "sqlite_open").With(
		slog.String("dir", dir),
	)
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("vault directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		l.Error("create vault dir failed", slog.Any("err", err))
		return nil, fmt.Errorf("create vault dir: %w", err)
	}

	path := VaultPath(dir)
	// Use a URI with shared cache and a busy timeout. Convert to forward
	// slashes for the SQLite URI.
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(5000)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		l.Error("sqlite open failed", slog.Any("err", err))
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Set reasonable connection pool limits for embedded usage.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		l.Error("enable WAL failed", slog.Any("err", err))
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON;"); err != nil {
		l.Warn("enable foreign_keys failed", slog.Any("err", err))
	}

	if err := ensureVaultSchema(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure vault schema failed", slog.Any("err", err))
		return nil, err
	}

	l.Info("vault ready", slog.String("path", path))
	return &SQLiteBackend{db: db, path: path}, nil
}

// Path returns the database file location.
func (b *SQLiteBackend) Path() string { return b.path }

// Close releases the underlying database handle.
func (b *SQLiteBackend) Close() error { return b.db.Close() }

func ensureVaultSchema(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS version (
			id          INTEGER PRIMARY KEY CHECK(id=1),
			schema      INTEGER NOT NULL,
			app         TEXT,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS scenes (
			id         TEXT    PRIMARY KEY,
			name       TEXT    NOT NULL,
			data       TEXT,
			sticky     INTEGER NOT NULL DEFAULT 0,
			deleted    INTEGER NOT NULL DEFAULT 0,
			deleted_at INTEGER,
			updated_at TEXT    NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_scenes_deleted ON scenes(deleted);`,
		`CREATE TABLE IF NOT EXISTS attachments (
			id         TEXT    PRIMARY KEY,
			mime       TEXT,
			blob       BLOB    NOT NULL,
			size       INTEGER NOT NULL,
			created_at TEXT    NOT NULL
		);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure vault schema: %w", err)
		}
	}
	// Seed or update the single-row version info.
	now := time.Now().UTC().Format(time.RFC3339)
	appv := version.String()
	var curSchema int
	err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&curSchema)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := db.ExecContext(ctx, `INSERT INTO version (id, schema, app, created_at, updated_at) VALUES(1, ?, ?, ?, ?)`, sqliteSchemaVersion, appv, now, now); err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	default:
		if _, err := db.ExecContext(ctx, `UPDATE version SET app=?, updated_at=? WHERE id=1`, appv, now); err != nil {
			return fmt.Errorf("update version: %w", err)
		}
	}
	return nil
}

// language=SQL
// dialect=SQLite
const selectScenesSQL = `SELECT id, name, data, sticky, deleted, deleted_at FROM scenes`

// language=SQL
// dialect=SQLite
const upsertSceneSQL = `INSERT INTO scenes(id, name, data, sticky, deleted, deleted_at, updated_at)
	VALUES(?,?,?,?,?,?,?)
	ON CONFLICT(id) DO UPDATE SET name=excluded.name, data=excluded.data, sticky=excluded.sticky,
		deleted=excluded.deleted, deleted_at=excluded.deleted_at, updated_at=excluded.updated_at`

// language=SQL
// dialect=SQLite
const deleteSceneSQL = `DELETE FROM scenes WHERE id = ?`

func (b *SQLiteBackend) LoadScenes(ctx context.Context) (map[string]domain.Scene, error) {
	rows, err := b.db.QueryContext(ctx, selectScenesSQL)
	if err != nil {
		return nil, fmt.Errorf("query scenes: %w", err)
	}
	defer rows.Close()
	scenes := make(map[string]domain.Scene)
	for rows.Next() {
		var (
			sc        domain.Scene
			data      sql.NullString
			sticky    int
			deleted   int
			deletedAt sql.NullInt64
		)
		if err := rows.Scan(&sc.ID, &sc.Name, &data, &sticky, &deleted, &deletedAt); err != nil {
			return nil, fmt.Errorf("scan scene: %w", err)
		}
		sc.Data = data.String
		sc.Sticky = sticky != 0
		sc.Deleted = deleted != 0
		if sc.Deleted && deletedAt.Valid {
			ts := deletedAt.Int64
			sc.DeletedAt = &ts
		}
		scenes[sc.ID] = sc
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scenes: %w", err)
	}
	return scenes, nil
}

func (b *SQLiteBackend) PutScene(ctx context.Context, sc domain.Scene) error {
	var deletedAt any
	if sc.Deleted && sc.DeletedAt != nil {
		deletedAt = *sc.DeletedAt
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := b.db.ExecContext(ctx, upsertSceneSQL,
		sc.ID, sc.Name, sc.Data, boolToInt(sc.Sticky), boolToInt(sc.Deleted), deletedAt, now)
	if err != nil {
		return fmt.Errorf("upsert scene %s: %w", sc.ID, err)
	}
	return nil
}

func (b *SQLiteBackend) DeleteScene(ctx context.Context, id string) error {
	if _, err := b.db.ExecContext(ctx, deleteSceneSQL, id); err != nil {
		return fmt.Errorf("delete scene %s: %w", id, err)
	}
	return nil
}

// language=SQL
// dialect=SQLite
const selectAttachmentSQL = `SELECT mime, blob FROM attachments WHERE id = ?`

// language=SQL
// dialect=SQLite
const insertAttachmentSQL = `INSERT INTO attachments(id, mime, blob, size, created_at)
	VALUES(?,?,?,?,?)
	ON CONFLICT(id) DO NOTHING`

// language=SQL
// dialect=SQLite
const deleteAttachmentSQL = `DELETE FROM attachments WHERE id = ?`

// language=SQL
// dialect=SQLite
const listAttachmentKeysSQL = `SELECT id FROM attachments`

func (b *SQLiteBackend) GetAttachment(ctx context.Context, id string) (domain.Attachment, error) {
	var (
		mime sql.NullString
		blob []byte
	)
	err := b.db.QueryRowContext(ctx, selectAttachmentSQL, id).Scan(&mime, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Attachment{}, fmt.Errorf("attachment %s: %w", id, ErrAttachmentNotFound)
	}
	if err != nil {
		return domain.Attachment{}, fmt.Errorf("query attachment %s: %w", id, err)
	}
	return domain.Attachment{ID: id, MimeType: mime.String, Data: blob}, nil
}

func (b *SQLiteBackend) PutAttachment(ctx context.Context, att domain.Attachment) error {
	if size := int64(len(att.Data)); size > MaxAttachmentBytes {
		return &OversizeError{ID: att.ID, Size: size, Limit: MaxAttachmentBytes}
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := b.db.ExecContext(ctx, insertAttachmentSQL, att.ID, att.MimeType, att.Data, len(att.Data), now)
	if err != nil {
		return fmt.Errorf("insert attachment %s: %w", att.ID, err)
	}
	return nil
}

func (b *SQLiteBackend) DeleteAttachment(ctx context.Context, id string) error {
	if _, err := b.db.ExecContext(ctx, deleteAttachmentSQL, id); err != nil {
		return fmt.Errorf("delete attachment %s: %w", id, err)
	}
	return nil
}

func (b *SQLiteBackend) ListAttachmentKeys(ctx context.Context) ([]string, error) {
	rows, err := b.db.QueryContext(ctx, listAttachmentKeysSQL)
	if err != nil {
		return nil, fmt.Errorf("list attachment keys: %w", err)
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		keys = append(keys, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

func (b *SQLiteBackend) LoadSettings(ctx context.Context) (domain.Settings, bool, error) {
	var raw string
	err := b.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, settingsMetaKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Settings{}, false, nil
	}
	if err != nil {
		return domain.Settings{}, false, fmt.Errorf("query settings: %w", err)
	}
	var st domain.Settings
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		// A corrupt settings record is not fatal; the caller starts from
		// defaults and rewrites it on the next preference change.
		applog.WithComponent("store").Warn("settings record unparseable, using defaults", slog.Any("err", err))
		return domain.Settings{}, false, nil
	}
	return st, true, nil
}

func (b *SQLiteBackend) SaveSettings(ctx context.Context, st domain.Settings) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	_, err = b.db.ExecContext(ctx, `INSERT INTO meta(key, value) VALUES(?, ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value`, settingsMetaKey, string(raw))
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ Backend = (*SQLiteBackend)(nil)
