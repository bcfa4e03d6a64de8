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
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"scenevault/internal/domain"
	applog "scenevault/internal/log"
	"scenevault/internal/telemetry"
)

// VaultOptions tunes a Vault. The zero value is valid: default retention
// window, wall clock.
type VaultOptions struct {
	RetentionDays int
	Now           func() time.Time // injectable for tests
}

// Vault is the single entry point the presentation layer calls. It owns the
// in-memory scene collection and the settings record for the process
// lifetime; callers hold read copies and route every mutation back through
// here. A single mutex serializes mutations, so two writes to the same scene
// always apply in issue order, and the sweeper and garbage collector never
// run beside an in-flight edit.
type Vault struct {
	mu            sync.Mutex
	backend       Backend
	log           *slog.Logger
	events        *eventBus
	now           func() time.Time
	retentionDays int

	scenes    map[string]domain.Scene
	settings  domain.Settings
	loaded    bool
	closed    bool
	dataDirty bool // attachment reachability may have changed; GC worth running on Close
}

// New wraps a backend in a Vault. Call Load before (or let any operation
// lazily trigger it) using the vault.
func New(backend Backend, opts VaultOptions) *Vault {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Vault{
		backend:       backend,
		log:           applog.WithComponent("vault"),
		events:        newEventBus(),
		now:           now,
		retentionDays: opts.RetentionDays,
		settings:      domain.DefaultSettings(),
	}
}

// Subscribe attaches a listener to the change-notification channel. Events
// are emitted after a mutation has been persisted. Cancel the subscription
// when done; a full subscriber drops events rather than blocking writers.
func (v *Vault) Subscribe() *Subscription { return v.events.subscribe() }

// Load reads every persisted scene (purging expired trash on the way),
// merges the settings record over defaults, reconciles the display order,
// and writes the reconciled order back so the next load starts consistent.
// It returns copies; the vault keeps ownership of the originals.
func (v *Vault) Load(ctx context.Context) (map[string]domain.Scene, domain.Settings, []string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil, domain.Settings{}, nil, ErrVaultClosed
	}
	if err := v.loadLocked(ctx); err != nil {
		return nil, domain.Settings{}, nil, err
	}
	return v.scenesCopyLocked(), v.settings, append([]string(nil), v.settings.ScenesID...), nil
}

func (v *Vault) loadLocked(ctx context.Context) error {
	l := applog.WithOperation(v.log, "load")

	scenes, err := v.backend.LoadScenes(ctx)
	if err != nil {
		return fmt.Errorf("load scenes: %w", err)
	}
	purged := SweepExpired(ctx, v.backend, scenes, v.now(), v.retentionDays)

	settings := domain.DefaultSettings()
	persisted, found, err := v.backend.LoadSettings(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if found {
		domain.MergeSettings(&settings, persisted)
	}

	order := ReconcileOrder(scenes, settings.ScenesID)
	if len(settings.ScenesID) == 0 && len(scenes) > 0 {
		// First run against pre-existing data: seed the preference from the
		// stored scenes instead of leaving the list empty.
		order = liveIDs(scenes)
	}
	if !sameOrder(order, settings.ScenesID) || len(purged) > 0 || !found {
		settings.ScenesID = order
		if err := v.backend.SaveSettings(ctx, settings); err != nil {
			l.Warn("write back reconciled order failed", slog.Any("err", err))
		}
	} else {
		settings.ScenesID = order
	}
	if settings.LastActiveDraw != "" {
		if sc, ok := scenes[settings.LastActiveDraw]; !ok || sc.Deleted {
			settings.LastActiveDraw = ""
		}
	}

	v.scenes = scenes
	v.settings = settings
	v.loaded = true
	if len(purged) > 0 {
		// Purged scenes may have been the last referents of some attachments.
		v.dataDirty = true
	}
	l.Info("vault loaded",
		slog.Int("scenes", len(scenes)),
		slog.Int("live", len(order)),
		slog.Int("expired_purged", len(purged)))
	return nil
}

func (v *Vault) ensureLoaded(ctx context.Context) error {
	if v.closed {
		return ErrVaultClosed
	}
	if v.loaded {
		return nil
	}
	return v.loadLocked(ctx)
}

// CreateScene allocates a fresh id, inserts the scene with default fields,
// and appends it to the display order.
func (v *Vault) CreateScene(ctx context.Context, name string) (domain.Scene, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.ensureLoaded(ctx); err != nil {
		return domain.Scene{}, err
	}
	id := v.newSceneID()
	sc := domain.Scene{ID: id, Name: name}
	if err := v.backend.PutScene(ctx, sc); err != nil {
		return domain.Scene{}, fmt.Errorf("create scene: %w", err)
	}
	v.scenes[id] = sc
	v.settings.ScenesID = append(v.settings.ScenesID, id)
	if err := v.backend.SaveSettings(ctx, v.settings); err != nil {
		v.log.Warn("persist order after create failed", slog.String("scene", id), slog.Any("err", err))
	}
	v.events.publish(domain.Change{SceneID: id, Kind: domain.ChangeCreated})
	return sc.Clone(), nil
}

func (v *Vault) newSceneID() string {
	for {
		id := uuid.NewString()
		if _, exists := v.scenes[id]; !exists {
			return id
		}
	}
}

// RenameScene updates the display name of a scene, trashed or not.
func (v *Vault) RenameScene(ctx context.Context, id, newName string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.ensureLoaded(ctx); err != nil {
		return err
	}
	sc, ok := v.scenes[id]
	if !ok {
		return fmt.Errorf("rename %s: %w", id, ErrSceneNotFound)
	}
	sc.Name = newName
	if err := v.backend.PutScene(ctx, sc); err != nil {
		return fmt.Errorf("rename scene: %w", err)
	}
	v.scenes[id] = sc
	v.events.publish(domain.Change{SceneID: id, Kind: domain.ChangeRenamed})
	return nil
}

// UpdateSceneData replaces a scene's serialized document payload.
func (v *Vault) UpdateSceneData(ctx context.Context, id, data string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.ensureLoaded(ctx); err != nil {
		return err
	}
	sc, ok := v.scenes[id]
	if !ok {
		return fmt.Errorf("update %s: %w", id, ErrSceneNotFound)
	}
	sc.Data = data
	if err := v.backend.PutScene(ctx, sc); err != nil {
		return fmt.Errorf("update scene data: %w", err)
	}
	v.scenes[id] = sc
	v.dataDirty = true
	v.events.publish(domain.Change{SceneID: id, Kind: domain.ChangeDataUpdated})
	return nil
}

// SoftDeleteScene moves a scene to the trash: it stays stored and restorable
// until the retention window lapses, but leaves the active display order.
func (v *Vault) SoftDeleteScene(ctx context.Context, id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.ensureLoaded(ctx); err != nil {
		return err
	}
	sc, ok := v.scenes[id]
	if !ok {
		return fmt.Errorf("soft delete %s: %w", id, ErrSceneNotFound)
	}
	if sc.Deleted {
		return nil
	}
	sc.MarkDeleted(v.now())
	if err := v.backend.PutScene(ctx, sc); err != nil {
		return fmt.Errorf("soft delete scene: %w", err)
	}
	v.scenes[id] = sc
	v.settings.ScenesID = removeID(v.settings.ScenesID, id)
	if v.settings.LastActiveDraw == id {
		v.settings.LastActiveDraw = firstOrEmpty(v.settings.ScenesID)
	}
	if err := v.backend.SaveSettings(ctx, v.settings); err != nil {
		v.log.Warn("persist order after soft delete failed", slog.String("scene", id), slog.Any("err", err))
	}
	v.events.publish(domain.Change{SceneID: id, Kind: domain.ChangeSoftDeleted})
	return nil
}

// RestoreScene brings a trashed scene back into the active set, appended at
// the end of the display order.
func (v *Vault) RestoreScene(ctx context.Context, id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.ensureLoaded(ctx); err != nil {
		return err
	}
	sc, ok := v.scenes[id]
	if !ok {
		return fmt.Errorf("restore %s: %w", id, ErrSceneNotFound)
	}
	if !sc.Deleted {
		return nil
	}
	sc.ClearDeleted()
	if err := v.backend.PutScene(ctx, sc); err != nil {
		return fmt.Errorf("restore scene: %w", err)
	}
	v.scenes[id] = sc
	v.settings.ScenesID = append(removeID(v.settings.ScenesID, id), id)
	if err := v.backend.SaveSettings(ctx, v.settings); err != nil {
		v.log.Warn("persist order after restore failed", slog.String("scene", id), slog.Any("err", err))
	}
	v.events.publish(domain.Change{SceneID: id, Kind: domain.ChangeRestored})
	return nil
}

// PermanentlyDeleteScene removes a scene for good, bypassing the trash. The
// id is never reused.
func (v *Vault) PermanentlyDeleteScene(ctx context.Context, id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.ensureLoaded(ctx); err != nil {
		return err
	}
	sc, ok := v.scenes[id]
	if !ok {
		return fmt.Errorf("permanently delete %s: %w", id, ErrSceneNotFound)
	}
	if err := v.backend.DeleteScene(ctx, id); err != nil {
		return fmt.Errorf("permanently delete scene: %w", err)
	}
	sc.Preview.Release()
	delete(v.scenes, id)
	v.dataDirty = true
	v.settings.ScenesID = removeID(v.settings.ScenesID, id)
	if v.settings.LastActiveDraw == id {
		v.settings.LastActiveDraw = firstOrEmpty(v.settings.ScenesID)
	}
	if err := v.backend.SaveSettings(ctx, v.settings); err != nil {
		v.log.Warn("persist order after delete failed", slog.String("scene", id), slog.Any("err", err))
	}
	v.events.publish(domain.Change{SceneID: id, Kind: domain.ChangePurged})
	return nil
}

// ReorderScenes replaces the display order. The request must be a
// permutation of the currently live ids; otherwise it is rejected with
// OrderValidationError and the prior order stands.
func (v *Vault) ReorderScenes(ctx context.Context, newOrder []string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.ensureLoaded(ctx); err != nil {
		return err
	}
	if err := v.validateOrderLocked(newOrder); err != nil {
		return err
	}
	v.settings.ScenesID = append([]string(nil), newOrder...)
	if err := v.backend.SaveSettings(ctx, v.settings); err != nil {
		return fmt.Errorf("persist reorder: %w", err)
	}
	v.events.publish(domain.Change{Kind: domain.ChangeReordered})
	return nil
}

func (v *Vault) validateOrderLocked(newOrder []string) error {
	verr := &OrderValidationError{}
	seen := make(map[string]struct{}, len(newOrder))
	for _, id := range newOrder {
		if _, dup := seen[id]; dup {
			verr.Duplicates = append(verr.Duplicates, id)
			continue
		}
		seen[id] = struct{}{}
		if sc, ok := v.scenes[id]; !ok || sc.Deleted {
			verr.Unknown = append(verr.Unknown, id)
		}
	}
	for _, id := range liveIDs(v.scenes) {
		if _, ok := seen[id]; !ok {
			verr.Missing = append(verr.Missing, id)
		}
	}
	if len(verr.Missing) > 0 || len(verr.Unknown) > 0 || len(verr.Duplicates) > 0 {
		return verr
	}
	return nil
}

// PersistAttachmentsForScene writes the given attachments that are not
// already stored. Attachment content is immutable and content-addressed by
// id, so existing keys are never rewritten. An oversize attachment is
// reported back to the caller; any other write failure is logged and
// swallowed, leaving the drawing usable in memory for this session.
func (v *Vault) PersistAttachmentsForScene(ctx context.Context, sceneID string, atts []domain.Attachment) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.ensureLoaded(ctx); err != nil {
		return err
	}
	if _, ok := v.scenes[sceneID]; !ok {
		return fmt.Errorf("persist attachments for %s: %w", sceneID, ErrSceneNotFound)
	}
	existing := make(map[string]struct{})
	if keys, err := v.backend.ListAttachmentKeys(ctx); err == nil {
		for _, k := range keys {
			existing[k] = struct{}{}
		}
	}
	var oversize error
	wrote := 0
	for _, att := range atts {
		if _, ok := existing[att.ID]; ok {
			continue
		}
		err := v.backend.PutAttachment(ctx, att)
		switch e := err.(type) {
		case nil:
			wrote++
			v.dataDirty = true
		case *OversizeError:
			v.log.Warn("attachment rejected as oversize",
				slog.String("scene", sceneID), slog.String("attachment", att.ID), slog.Int64("size", e.Size))
			telemetry.Event(telemetry.EventAttachmentOversize, map[string]any{"size": e.Size})
			if oversize == nil {
				oversize = e
			}
		default:
			// Soft failure: the attachment will be missing after restart but
			// the in-memory session keeps working.
			v.log.Warn("attachment write failed, continuing without persistence",
				slog.String("scene", sceneID), slog.String("attachment", att.ID), slog.Any("err", err))
			telemetry.Event(telemetry.EventAttachmentWriteFailed, map[string]any{"scene": sceneID})
		}
	}
	if wrote > 0 {
		v.events.publish(domain.Change{SceneID: sceneID, Kind: domain.ChangeAttachments})
	}
	return oversize
}

// Attachment fetches a stored blob.
func (v *Vault) Attachment(ctx context.Context, id string) (domain.Attachment, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return domain.Attachment{}, ErrVaultClosed
	}
	return v.backend.GetAttachment(ctx, id)
}

// SetScenePreview installs a session-local preview handle, releasing the
// previous one exactly once. The handle is released immediately when the
// scene does not exist, so the resource cannot leak.
func (v *Vault) SetScenePreview(id string, h *domain.PreviewHandle) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	sc, ok := v.scenes[id]
	if !ok {
		h.Release()
		return fmt.Errorf("set preview for %s: %w", id, ErrSceneNotFound)
	}
	sc.Preview.Release()
	sc.Preview = h
	v.scenes[id] = sc
	return nil
}

// SetActiveScene records which scene has focus.
func (v *Vault) SetActiveScene(ctx context.Context, id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.ensureLoaded(ctx); err != nil {
		return err
	}
	if sc, ok := v.scenes[id]; !ok || sc.Deleted {
		return fmt.Errorf("activate %s: %w", id, ErrSceneNotFound)
	}
	v.settings.LastActiveDraw = id
	if err := v.backend.SaveSettings(ctx, v.settings); err != nil {
		return fmt.Errorf("persist active scene: %w", err)
	}
	v.events.publish(domain.Change{SceneID: id, Kind: domain.ChangeSettings})
	return nil
}

// UpdateSettings persists changed preferences. The display order and active
// scene are owned by the vault and kept as-is; use ReorderScenes and
// SetActiveScene for those.
func (v *Vault) UpdateSettings(ctx context.Context, st domain.Settings) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.ensureLoaded(ctx); err != nil {
		return err
	}
	st.ScenesID = v.settings.ScenesID
	st.LastActiveDraw = v.settings.LastActiveDraw
	v.settings = st
	if err := v.backend.SaveSettings(ctx, v.settings); err != nil {
		return fmt.Errorf("persist settings: %w", err)
	}
	v.events.publish(domain.Change{Kind: domain.ChangeSettings})
	return nil
}

// Settings returns a copy of the current settings record.
func (v *Vault) Settings() domain.Settings {
	v.mu.Lock()
	defer v.mu.Unlock()
	st := v.settings
	st.ScenesID = append([]string(nil), v.settings.ScenesID...)
	return st
}

// Scenes returns a copy of the in-memory scene collection.
func (v *Vault) Scenes() map[string]domain.Scene {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.scenesCopyLocked()
}

// Scene returns one scene by id.
func (v *Vault) Scene(id string) (domain.Scene, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	sc, ok := v.scenes[id]
	if !ok {
		return domain.Scene{}, false
	}
	return sc.Clone(), true
}

// Order returns the current display order.
func (v *Vault) Order() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.settings.ScenesID...)
}

// CollectGarbage prunes attachments no live scene references. It runs under
// the vault lock, so it never races an in-flight mutation.
func (v *Vault) CollectGarbage(ctx context.Context) (GCStats, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.ensureLoaded(ctx); err != nil {
		return GCStats{}, err
	}
	return CollectGarbage(ctx, v.scenes, v.backend)
}

// Close flushes settings, garbage-collects attachments if scene content
// changed this session, releases every preview handle, closes the
// notification channel, and shuts the backend down.
func (v *Vault) Close(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}
	l := applog.WithOperation(v.log, "close")
	if v.loaded {
		if err := v.backend.SaveSettings(ctx, v.settings); err != nil {
			l.Warn("flush settings failed", slog.Any("err", err))
		}
		if v.dataDirty {
			if _, err := CollectGarbage(ctx, v.scenes, v.backend); err != nil {
				l.Warn("teardown gc failed", slog.Any("err", err))
			}
		}
	}
	for id, sc := range v.scenes {
		sc.Preview.Release()
		sc.Preview = nil
		v.scenes[id] = sc
	}
	v.events.close()
	v.closed = true
	if err := v.backend.Close(); err != nil {
		return fmt.Errorf("close backend: %w", err)
	}
	return nil
}

func (v *Vault) scenesCopyLocked() map[string]domain.Scene {
	out := make(map[string]domain.Scene, len(v.scenes))
	for id, sc := range v.scenes {
		out[id] = sc.Clone()
	}
	return out
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func firstOrEmpty(ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}

func sameOrder(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
