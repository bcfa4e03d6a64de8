/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * Licensed under the Apache License, Version 2.0.
 */

package store

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors used for simple equality-style checks.
var (
	// ErrSceneNotFound is returned by facade operations addressing a scene id
	// that is not present (never created, purged, or permanently deleted).
	ErrSceneNotFound = errors.New("scene not found")

	// ErrAttachmentNotFound is returned when the attachment store holds no
	// blob under the requested id.
	ErrAttachmentNotFound = errors.New("attachment not found")

	// ErrBackendUnavailable marks operations degraded because no storage
	// backend could be opened. Reads return empty results and writes become
	// no-ops rather than crashing the caller.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrVaultClosed is returned by facade operations after Close.
	ErrVaultClosed = errors.New("vault is closed")
)

// OversizeError reports an attachment write rejected for exceeding the size
// limit. The write is atomic: no partial data is stored.
type OversizeError struct {
	ID    string
	Size  int64
	Limit int64
}

func (e *OversizeError) Error() string {
	return fmt.Sprintf("attachment %s is %d bytes, exceeds limit of %d", e.ID, e.Size, e.Limit)
}

// OrderValidationError reports a reorder request that is not a permutation of
// the currently live scene ids. The prior order is retained.
type OrderValidationError struct {
	Missing    []string // live ids absent from the request
	Unknown    []string // requested ids that are not live
	Duplicates []string // ids appearing more than once in the request
}

func (e *OrderValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing %s", strings.Join(e.Missing, ",")))
	}
	if len(e.Unknown) > 0 {
		parts = append(parts, fmt.Sprintf("unknown %s", strings.Join(e.Unknown, ",")))
	}
	if len(e.Duplicates) > 0 {
		parts = append(parts, fmt.Sprintf("duplicate %s", strings.Join(e.Duplicates, ",")))
	}
	if len(parts) == 0 {
		return "order is not a permutation of live scene ids"
	}
	return "order is not a permutation of live scene ids: " + strings.Join(parts, "; ")
}
