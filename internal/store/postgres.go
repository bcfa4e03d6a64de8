//go:build !js

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"scenevault/internal/domain"
	applog "scenevault/internal/log"

	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed pgmigrations/*.sql
var pgMigrationsFS embed.FS

const (
	sceneKeyPrefix = "scene/"
	settingsKey    = "settings"
)

// PostgresBackend persists the vault through a hosted key-value service:
// scenes and settings as JSONB values in a generic kv table, attachment blobs
// in their own table. It satisfies the same contract as the embedded SQLite
// backend; nothing above the Backend interface can tell them apart.
type PostgresBackend struct {
	db *sql.DB
}

// OpenPostgres connects, pings with a bounded timeout, and applies embedded
// migrations. A non-empty password is injected into URL-shaped DSNs so it can
// live in the OS keyring instead of the config file.
func OpenPostgres(ctx context.Context, dsn, password string) (*PostgresBackend, error) {
	l := applog.WithOperation(applog.WithComponent("store"), "postgres_open")
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres dsn is required")
	}
	dsn = withPassword(dsn, password)

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := applyPGMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	l.Info("vault ready")
	return &PostgresBackend{db: db}, nil
}

// withPassword sets the user password on a URL-shaped DSN. Keyword/value DSNs
// are returned unchanged; put the password in the DSN directly in that case.
func withPassword(dsn, password string) string {
	if password == "" {
		return dsn
	}
	u, err := url.Parse(dsn)
	if err != nil || u.Host == "" {
		return dsn
	}
	user := ""
	if u.User != nil {
		user = u.User.Username()
	}
	u.User = url.UserPassword(user, password)
	return u.String()
}

// applyPGMigrations applies embedded SQL migrations in filename order,
// tracking them in a schema_migrations table.
func applyPGMigrations(ctx context.Context, db *sql.DB) error {
	l := applog.WithOperation(applog.WithComponent("store"), "pg_migrate")
	entries, err := pgMigrationsFS.ReadDir("pgmigrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(strings.ToLower(e.Name()), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	// dialect=PostgreSQL
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	applied := map[int64]bool{}
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("select schema_migrations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return err
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, fname := range files {
		version, err := parseMigrationVersion(fname)
		if err != nil {
			return err
		}
		if applied[version] {
			continue
		}
		b, err := pgMigrationsFS.ReadFile(path.Join("pgmigrations", fname))
		if err != nil {
			return err
		}
		sqlText := string(b)
		if strings.TrimSpace(sqlText) == "" {
			continue
		}
		l.Info("applying migration", slog.String("file", fname))
		if _, err := db.ExecContext(ctx, sqlText); err != nil {
			return fmt.Errorf("apply %s: %w", fname, err)
		}
		if _, err := db.ExecContext(ctx, `INSERT INTO schema_migrations(version, name) VALUES($1, $2)`, version, fname); err != nil {
			return fmt.Errorf("record %s: %w", fname, err)
		}
	}
	return nil
}

func parseMigrationVersion(name string) (int64, error) {
	parts := strings.SplitN(path.Base(name), "_", 2)
	if len(parts) == 0 {
		return 0, errors.New("invalid migration filename: " + name)
	}
	v, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse version from %s: %w", name, err)
	}
	return v, nil
}

// Close releases the connection pool.
func (b *PostgresBackend) Close() error { return b.db.Close() }

func sceneKey(id string) string { return sceneKeyPrefix + id }

func (b *PostgresBackend) LoadScenes(ctx context.Context) (map[string]domain.Scene, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT key, value FROM kv WHERE key LIKE $1`, sceneKeyPrefix+"%")
	if err != nil {
		return nil, fmt.Errorf("query scenes: %w", err)
	}
	defer rows.Close()
	l := applog.WithComponent("store")
	scenes := make(map[string]domain.Scene)
	for rows.Next() {
		var key string
		var raw []byte
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, fmt.Errorf("scan scene row: %w", err)
		}
		var sc domain.Scene
		if err := json.Unmarshal(raw, &sc); err != nil {
			// One bad record must not poison the whole load.
			l.Warn("scene record unparseable, skipped", slog.String("key", key), slog.Any("err", err))
			continue
		}
		if sc.ID == "" {
			sc.ID = strings.TrimPrefix(key, sceneKeyPrefix)
		}
		scenes[sc.ID] = sc
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scenes: %w", err)
	}
	return scenes, nil
}

func (b *PostgresBackend) PutScene(ctx context.Context, sc domain.Scene) error {
	raw, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("marshal scene %s: %w", sc.ID, err)
	}
	_, err = b.db.ExecContext(ctx, `INSERT INTO kv(key, value, updated_at) VALUES($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = now()`,
		sceneKey(sc.ID), raw)
	if err != nil {
		return fmt.Errorf("upsert scene %s: %w", sc.ID, err)
	}
	return nil
}

func (b *PostgresBackend) DeleteScene(ctx context.Context, id string) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM kv WHERE key = $1`, sceneKey(id)); err != nil {
		return fmt.Errorf("delete scene %s: %w", id, err)
	}
	return nil
}

func (b *PostgresBackend) GetAttachment(ctx context.Context, id string) (domain.Attachment, error) {
	var (
		mime sql.NullString
		blob []byte
	)
	err := b.db.QueryRowContext(ctx, `SELECT mime, blob FROM attachments WHERE id = $1`, id).Scan(&mime, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Attachment{}, fmt.Errorf("attachment %s: %w", id, ErrAttachmentNotFound)
	}
	if err != nil {
		return domain.Attachment{}, fmt.Errorf("query attachment %s: %w", id, err)
	}
	return domain.Attachment{ID: id, MimeType: mime.String, Data: blob}, nil
}

func (b *PostgresBackend) PutAttachment(ctx context.Context, att domain.Attachment) error {
	if size := int64(len(att.Data)); size > MaxAttachmentBytes {
		return &OversizeError{ID: att.ID, Size: size, Limit: MaxAttachmentBytes}
	}
	_, err := b.db.ExecContext(ctx, `INSERT INTO attachments(id, mime, blob, size) VALUES($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING`, att.ID, att.MimeType, att.Data, len(att.Data))
	if err != nil {
		return fmt.Errorf("insert attachment %s: %w", att.ID, err)
	}
	return nil
}

func (b *PostgresBackend) DeleteAttachment(ctx context.Context, id string) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM attachments WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete attachment %s: %w", id, err)
	}
	return nil
}

func (b *PostgresBackend) ListAttachmentKeys(ctx context.Context) ([]string, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT id FROM attachments`)
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

func (b *PostgresBackend) LoadSettings(ctx context.Context) (domain.Settings, bool, error) {
	var raw []byte
	err := b.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = $1`, settingsKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Settings{}, false, nil
	}
	if err != nil {
		return domain.Settings{}, false, fmt.Errorf("query settings: %w", err)
	}
	var st domain.Settings
	if err := json.Unmarshal(raw, &st); err != nil {
		applog.WithComponent("store").Warn("settings record unparseable, using defaults", slog.Any("err", err))
		return domain.Settings{}, false, nil
	}
	return st, true, nil
}

func (b *PostgresBackend) SaveSettings(ctx context.Context, st domain.Settings) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	_, err = b.db.ExecContext(ctx, `INSERT INTO kv(key, value, updated_at) VALUES($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = now()`, settingsKey, raw)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

var _ Backend = (*PostgresBackend)(nil)
