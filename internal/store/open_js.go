//go:build js && wasm

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * Licensed under the Apache License, Version 2.0.
 */

package store

import (
	"context"
	"log/slog"

	"scenevault/internal/config"
	applog "scenevault/internal/log"
	"scenevault/internal/telemetry"
)

// Open inside a wasm session always selects the browser-local IndexedDB
// backend; the embedded and host-service backends do not exist here, so the
// configured backend name is ignored. As on native builds, an open failure
// degrades to an in-memory session instead of refusing to start.
func Open(ctx context.Context, cfg config.AppConfig, pgPassword string) (*Vault, error) {
	l := applog.WithComponent("store")

	var backend Backend
	idb, err := OpenIndexedDB(ctx)
	if err != nil {
		l.Error("backend unavailable, continuing without persistence",
			slog.String("backend", "indexeddb"), slog.Any("err", err))
		telemetry.Event(telemetry.EventBackendUnavailable, map[string]any{"backend": "indexeddb"})
		backend = NewUnavailable()
	} else {
		backend = idb
	}

	return New(backend, VaultOptions{RetentionDays: cfg.Vault.RetentionDays}), nil
}
