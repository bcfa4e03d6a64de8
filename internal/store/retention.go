/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * Licensed under the Apache License, Version 2.0.
 */

package store

import (
	"context"
	"log/slog"
	"time"

	applog "scenevault/internal/log"
	"scenevault/internal/telemetry"

	"scenevault/internal/domain"
)

// DefaultRetentionDays is how long a soft-deleted scene stays recoverable in
// the trash before the sweeper purges it.
const DefaultRetentionDays = 30

// Expired reports whether a trashed scene has outlived the retention window.
// Age is measured in whole calendar days: both timestamps are truncated to
// midnight before differencing, so the time of day a scene was trashed does
// not matter. retentionDays <= 0 selects the default window.
func Expired(sc domain.Scene, now time.Time, retentionDays int) bool {
	if !sc.Deleted || sc.DeletedAt == nil {
		return false
	}
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	loc := now.Location()
	del := sc.DeletedTime().In(loc)
	d0 := time.Date(del.Year(), del.Month(), del.Day(), 0, 0, 0, 0, loc)
	n0 := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	days := int(n0.Sub(d0).Hours() / 24)
	return days > retentionDays
}

// SweepExpired permanently removes expired scenes from the backend and from
// the in-memory map, returning the purged ids. It runs during load, before
// the order reconciler sees the data, so callers never observe an expired
// scene. A backend delete failure is logged and the scene is still dropped
// from the map; the next load retries the delete.
func SweepExpired(ctx context.Context, backend SceneBackend, scenes map[string]domain.Scene, now time.Time, retentionDays int) []string {
	l := applog.WithOperation(applog.WithComponent("store"), "retention_sweep")
	var purged []string
	for id, sc := range scenes {
		if !Expired(sc, now, retentionDays) {
			continue
		}
		if err := backend.DeleteScene(ctx, id); err != nil {
			l.Warn("purge expired scene failed", slog.String("scene", id), slog.Any("err", err))
		}
		sc.Preview.Release()
		delete(scenes, id)
		purged = append(purged, id)
	}
	if len(purged) > 0 {
		l.Info("trash retention sweep", slog.Int("purged", len(purged)))
		telemetry.Event(telemetry.EventRetentionPurged, map[string]any{"count": len(purged)})
	}
	return purged
}
