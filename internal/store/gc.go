/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * Licensed under the Apache License, Version 2.0.
 */

package store

import (
	"context"
	"fmt"
	"log/slog"

	applog "scenevault/internal/log"
	"scenevault/internal/telemetry"

	"scenevault/internal/domain"
)

// GCStats summarizes one garbage-collection pass over the attachment store.
type GCStats struct {
	Scanned       int // scenes whose content was scanned
	ParseFailures int // scenes skipped because their content did not parse
	Reachable     int // distinct attachment ids referenced by some scene
	Pruned        int // attachments deleted as unreachable
}

// CollectGarbage deletes every stored attachment that no scene references.
// All scenes present in the map count as live for reachability, including
// soft-deleted ones still inside the retention window; a trashed scene can be
// restored and must find its images intact.
//
// A scene whose content fails to parse contributes no references and the scan
// continues. That is fail-open toward deletion: an attachment referenced only
// by an unparseable scene will be pruned. The failure is logged and counted
// so it is visible rather than silent.
func CollectGarbage(ctx context.Context, scenes map[string]domain.Scene, atts AttachmentBackend) (GCStats, error) {
	l := applog.WithOperation(applog.WithComponent("store"), "gc")
	var stats GCStats

	reachable := make(map[string]struct{})
	for id, sc := range scenes {
		stats.Scanned++
		refs, err := domain.AttachmentRefs(sc.Data)
		if err != nil {
			stats.ParseFailures++
			l.Warn("scene content unparseable, contributes no references",
				slog.String("scene", id), slog.Any("err", err))
			telemetry.Event(telemetry.EventGCParseFailure, map[string]any{"scene": id})
			continue
		}
		for _, ref := range refs {
			reachable[ref] = struct{}{}
		}
	}
	stats.Reachable = len(reachable)

	keys, err := atts.ListAttachmentKeys(ctx)
	if err != nil {
		return stats, fmt.Errorf("list attachment keys: %w", err)
	}
	for _, key := range keys {
		if _, ok := reachable[key]; ok {
			continue
		}
		if err := atts.DeleteAttachment(ctx, key); err != nil {
			l.Warn("prune attachment failed", slog.String("attachment", key), slog.Any("err", err))
			continue
		}
		stats.Pruned++
	}
	if stats.Pruned > 0 || stats.ParseFailures > 0 {
		l.Info("attachment gc finished",
			slog.Int("scanned", stats.Scanned),
			slog.Int("reachable", stats.Reachable),
			slog.Int("pruned", stats.Pruned),
			slog.Int("parse_failures", stats.ParseFailures))
		telemetry.Event(telemetry.EventGCPruned, map[string]any{
			"pruned":         stats.Pruned,
			"parse_failures": stats.ParseFailures,
		})
	}
	return stats, nil
}
