/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * Licensed under the Apache License, Version 2.0.
 */

package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"scenevault/internal/domain"
	applog "scenevault/internal/log"
	"scenevault/internal/telemetry"
)

// UnavailableBackend stands in when no storage backend could be opened.
// Reads return empty results and writes are no-ops, so the presentation layer
// keeps running with an in-memory session instead of crashing; nothing
// survives a restart. Every degraded call is visible in logs and telemetry.
type UnavailableBackend struct {
	reportOnce sync.Once
}

// NewUnavailable returns the degrade backend.
func NewUnavailable() *UnavailableBackend { return &UnavailableBackend{} }

func (b *UnavailableBackend) report(op string) {
	b.reportOnce.Do(func() {
		telemetry.Event(telemetry.EventBackendUnavailable, nil)
	})
	applog.WithComponent("store").Debug("backend unavailable, operation degraded to no-op",
		slog.String("op", op))
}

func (b *UnavailableBackend) LoadScenes(ctx context.Context) (map[string]domain.Scene, error) {
	b.report("load_scenes")
	return map[string]domain.Scene{}, nil
}

func (b *UnavailableBackend) PutScene(ctx context.Context, sc domain.Scene) error {
	b.report("put_scene")
	return nil
}

func (b *UnavailableBackend) DeleteScene(ctx context.Context, id string) error {
	b.report("delete_scene")
	return nil
}

func (b *UnavailableBackend) LoadSettings(ctx context.Context) (domain.Settings, bool, error) {
	b.report("load_settings")
	return domain.Settings{}, false, nil
}

func (b *UnavailableBackend) SaveSettings(ctx context.Context, st domain.Settings) error {
	b.report("save_settings")
	return nil
}

func (b *UnavailableBackend) GetAttachment(ctx context.Context, id string) (domain.Attachment, error) {
	b.report("get_attachment")
	return domain.Attachment{}, fmt.Errorf("attachment %s: %w", id, ErrBackendUnavailable)
}

func (b *UnavailableBackend) PutAttachment(ctx context.Context, att domain.Attachment) error {
	b.report("put_attachment")
	return nil
}

func (b *UnavailableBackend) DeleteAttachment(ctx context.Context, id string) error {
	b.report("delete_attachment")
	return nil
}

func (b *UnavailableBackend) ListAttachmentKeys(ctx context.Context) ([]string, error) {
	b.report("list_attachment_keys")
	return nil, nil
}

func (b *UnavailableBackend) Close() error { return nil }

var _ Backend = (*UnavailableBackend)(nil)
