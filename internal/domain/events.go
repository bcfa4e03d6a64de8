/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * Licensed under the Apache License, Version 2.0.
 */

package domain

// ChangeKind identifies what happened to a scene (or to the vault as a
// whole) so the presentation layer can refresh the right views.
type ChangeKind string

const (
	ChangeCreated     ChangeKind = "created"
	ChangeRenamed     ChangeKind = "renamed"
	ChangeDataUpdated ChangeKind = "data_updated"
	ChangeSoftDeleted ChangeKind = "soft_deleted"
	ChangeRestored    ChangeKind = "restored"
	ChangePurged      ChangeKind = "purged"
	ChangeReordered   ChangeKind = "reordered"
	ChangeAttachments ChangeKind = "attachments"
	ChangeSettings    ChangeKind = "settings"
)

// Change is emitted on the vault's notification channel after a mutation has
// been persisted. SceneID is empty for vault-wide changes (reorder, settings).
type Change struct {
	SceneID string
	Kind    ChangeKind
}
