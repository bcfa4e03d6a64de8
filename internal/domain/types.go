/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import (
	"encoding/json"
	"time"
)

// This file defines the core data model: scenes (named drawing documents),
// their binary attachments, and the process-wide settings record. These are
// the durable shapes; loaders must tolerate older records with missing fields
// by falling back to zero values / defaults rather than failing.

// Scene is a named drawing document. Data is the serialized document payload;
// this layer never interprets it structurally beyond extracting attachment
// reference ids (see document.go).
type Scene struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Data   string `json:"data,omitempty"`
	Sticky bool   `json:"sticky"`

	// Soft-delete marker pair. Deleted==true implies DeletedAt is set;
	// Deleted==false implies DeletedAt is nil. DeletedAt is epoch seconds.
	Deleted   bool   `json:"deleted"`
	DeletedAt *int64 `json:"deletedAt,omitempty"`

	// Preview is a session-local handle to a rendered thumbnail. It is never
	// persisted and must be released when replaced or when the scene leaves
	// memory.
	Preview *PreviewHandle `json:"-"`
}

// MarkDeleted flips the scene into the trashed state, stamping DeletedAt.
func (s *Scene) MarkDeleted(at time.Time) {
	ts := at.Unix()
	s.Deleted = true
	s.DeletedAt = &ts
}

// ClearDeleted restores the scene from the trash, keeping the marker pair
// consistent.
func (s *Scene) ClearDeleted() {
	s.Deleted = false
	s.DeletedAt = nil
}

// DeletedTime returns the soft-delete timestamp, or the zero time when the
// scene is not trashed.
func (s *Scene) DeletedTime() time.Time {
	if !s.Deleted || s.DeletedAt == nil {
		return time.Time{}
	}
	return time.Unix(*s.DeletedAt, 0)
}

// Clone returns a copy of the scene that shares no mutable state with the
// original except the preview handle, which stays owned by the vault.
func (s Scene) Clone() Scene {
	c := s
	if s.DeletedAt != nil {
		ts := *s.DeletedAt
		c.DeletedAt = &ts
	}
	return c
}

// Attachment is an immutable binary blob referenced from scene content by id.
// Attachments are only created or deleted, never updated in place.
type Attachment struct {
	ID       string `json:"id"`
	MimeType string `json:"mimeType,omitempty"`
	Data     []byte `json:"data,omitempty"`
}

// Settings is the process-wide persisted preference record. It is read once
// at startup, merged field-by-field over Defaults, and rewritten whenever a
// preference changes.
type Settings struct {
	LastActiveDraw string   `json:"lastActiveDraw,omitempty"`
	AsideWidth     float64  `json:"asideWidth,omitempty"`
	ClosePreview   bool     `json:"closePreview"`
	ScenesID       []string `json:"scenesId"`
	AsideClosed    bool     `json:"asideClosed"`
	DeleteConfirm  bool     `json:"deleteConfirm"`
}

// DefaultSettings returns the hard-coded defaults merged under any persisted
// settings record.
func DefaultSettings() Settings {
	return Settings{
		AsideWidth:    300,
		ClosePreview:  false,
		ScenesID:      nil,
		AsideClosed:   false,
		DeleteConfirm: true,
	}
}

// UnmarshalJSON decodes a persisted settings record. DeleteConfirm defaults
// to true, so a record written before the field existed must decode to true
// rather than to the boolean zero value; the other toggles default to false
// and need no special casing.
func (s *Settings) UnmarshalJSON(data []byte) error {
	type plain Settings
	aux := struct {
		plain
		DeleteConfirm *bool `json:"deleteConfirm"`
	}{}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*s = Settings(aux.plain)
	s.DeleteConfirm = true
	if aux.DeleteConfirm != nil {
		s.DeleteConfirm = *aux.DeleteConfirm
	}
	return nil
}

// MergeSettings overlays a persisted record over the defaults field-by-field.
// Missing fields (zero values in src) keep their defaults, so records written
// by older versions remain readable.
func MergeSettings(dst *Settings, src Settings) {
	if src.LastActiveDraw != "" {
		dst.LastActiveDraw = src.LastActiveDraw
	}
	if src.AsideWidth > 0 {
		dst.AsideWidth = src.AsideWidth
	}
	dst.ClosePreview = src.ClosePreview
	dst.AsideClosed = src.AsideClosed
	dst.DeleteConfirm = src.DeleteConfirm
	if src.ScenesID != nil {
		dst.ScenesID = append([]string(nil), src.ScenesID...)
	}
}
