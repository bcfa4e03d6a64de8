/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * Licensed under the Apache License, Version 2.0.
 */

package store

import (
	"context"

	"scenevault/internal/domain"
)

// MaxAttachmentBytes is the per-attachment size cap. Writes above it are
// rejected with OversizeError and leave no partial data behind.
const MaxAttachmentBytes = 10 << 20 // 10 MiB

// SceneBackend is the structured-record half of the storage contract.
// Implementations persist scenes as full-record upserts keyed by id and hold
// the process-wide settings record.
type SceneBackend interface {
	// LoadScenes returns every persisted scene, including soft-deleted ones.
	// Retention sweeping is the caller's job; backends return raw records.
	LoadScenes(ctx context.Context) (map[string]domain.Scene, error)

	// PutScene upserts by id, replacing the previous record entirely.
	PutScene(ctx context.Context, sc domain.Scene) error

	// DeleteScene removes permanently. Deleting an absent id is not an error.
	DeleteScene(ctx context.Context, id string) error

	// LoadSettings returns the persisted settings record and whether one
	// existed. Merging over defaults is the caller's job.
	LoadSettings(ctx context.Context) (domain.Settings, bool, error)

	SaveSettings(ctx context.Context, st domain.Settings) error
}

// AttachmentBackend stores immutable binary blobs keyed by the ids referenced
// from scene content.
type AttachmentBackend interface {
	// GetAttachment returns ErrAttachmentNotFound for absent ids.
	GetAttachment(ctx context.Context, id string) (domain.Attachment, error)

	// PutAttachment rejects blobs over MaxAttachmentBytes with OversizeError.
	// Existing ids are left untouched; attachment content never changes once
	// stored.
	PutAttachment(ctx context.Context, att domain.Attachment) error

	// DeleteAttachment is idempotent.
	DeleteAttachment(ctx context.Context, id string) error

	// ListAttachmentKeys enumerates every stored blob id. Used by the
	// garbage collector.
	ListAttachmentKeys(ctx context.Context) ([]string, error)
}

// Backend is the full storage contract the Vault runs on. Which
// implementation is active is a deployment-time choice; nothing above this
// interface branches on it.
type Backend interface {
	SceneBackend
	AttachmentBackend
	Close() error
}
