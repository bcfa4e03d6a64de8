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
	"log/slog"

	"scenevault/internal/config"
	applog "scenevault/internal/log"
	"scenevault/internal/telemetry"
)

// Open selects and opens the backend named by the configuration and wraps it
// in a Vault. When the backend cannot be opened the vault still comes up on
// an unavailable backend: the app runs in-memory for the session instead of
// refusing to start. The degradation is logged loudly and reported through
// telemetry so it does not pass silently.
func Open(ctx context.Context, cfg config.AppConfig, pgPassword string) (*Vault, error) {
	l := applog.WithComponent("store")

	var (
		backend Backend
		err     error
	)
	switch cfg.Vault.Backend {
	case config.BackendPostgres:
		backend, err = OpenPostgres(ctx, cfg.Vault.PostgresDSN, pgPassword)
	default:
		dir := cfg.Vault.Dir
		if dir == "" {
			dir, err = config.DataDir()
		}
		if err == nil {
			backend, err = OpenSQLite(dir)
		}
	}
	if err != nil {
		l.Error("backend unavailable, continuing without persistence",
			slog.String("backend", cfg.Vault.Backend), slog.Any("err", err))
		telemetry.Event(telemetry.EventBackendUnavailable, map[string]any{"backend": cfg.Vault.Backend})
		backend = NewUnavailable()
	}

	opts := VaultOptions{RetentionDays: cfg.Vault.RetentionDays}
	return New(backend, opts), nil
}
