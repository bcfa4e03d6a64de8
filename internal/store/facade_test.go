package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"scenevault/internal/domain"
)

func newTestVault(t *testing.T, b Backend) *Vault {
	t.Helper()
	fixed := testTime(t, "2026-01-31T09:00:00Z")
	return New(b, VaultOptions{Now: func() time.Time { return fixed }})
}

func drainChanges(sub *Subscription) []domain.Change {
	var out []domain.Change
	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				// cancelled: the channel is closed and yields zero values
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestVaultCreateAndReload(t *testing.T) {
	ctx := context.Background()
	b := newMemBackend()
	v := newTestVault(t, b)

	sc1, err := v.CreateScene(ctx, "first")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	sc2, err := v.CreateScene(ctx, "second")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sc1.ID == sc2.ID {
		t.Fatal("duplicate scene ids")
	}

	// a fresh vault over the same backend sees the same data
	v2 := newTestVault(t, b)
	scenes, settings, order, err := v2.Load(ctx)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(scenes) != 2 {
		t.Fatalf("got %d scenes after reload, want 2", len(scenes))
	}
	if len(order) != 2 || order[0] != sc1.ID || order[1] != sc2.ID {
		t.Fatalf("order = %v, want [%s %s]", order, sc1.ID, sc2.ID)
	}
	if scenes[sc1.ID].Name != "first" {
		t.Fatalf("name = %q, want first", scenes[sc1.ID].Name)
	}
	if !settings.DeleteConfirm {
		t.Fatal("defaults not merged into empty settings record")
	}
}

func TestVaultRenameAndUpdateData(t *testing.T) {
	ctx := context.Background()
	b := newMemBackend()
	v := newTestVault(t, b)

	sc, err := v.CreateScene(ctx, "draft")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := v.RenameScene(ctx, sc.ID, "final"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if err := v.UpdateSceneData(ctx, sc.ID, `{"elements":[]}`); err != nil {
		t.Fatalf("update data: %v", err)
	}

	got, ok := v.Scene(sc.ID)
	if !ok || got.Name != "final" || got.Data != `{"elements":[]}` {
		t.Fatalf("scene after edits = %+v", got)
	}
	if err := v.RenameScene(ctx, "missing", "x"); !errors.Is(err, ErrSceneNotFound) {
		t.Fatalf("rename missing: %v", err)
	}
}

func TestVaultSoftDeleteAndRestore(t *testing.T) {
	ctx := context.Background()
	b := newMemBackend()
	v := newTestVault(t, b)

	a, _ := v.CreateScene(ctx, "a")
	bb, _ := v.CreateScene(ctx, "b")
	if err := v.SetActiveScene(ctx, bb.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}

	if err := v.SoftDeleteScene(ctx, bb.ID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	// idempotent
	if err := v.SoftDeleteScene(ctx, bb.ID); err != nil {
		t.Fatalf("repeat soft delete: %v", err)
	}

	got, ok := v.Scene(bb.ID)
	if !ok || !got.Deleted || got.DeletedAt == nil {
		t.Fatalf("scene not trashed: %+v", got)
	}
	if order := v.Order(); len(order) != 1 || order[0] != a.ID {
		t.Fatalf("order after trash = %v", order)
	}
	if st := v.Settings(); st.LastActiveDraw != a.ID {
		t.Fatalf("active scene after trashing it = %q, want %q", st.LastActiveDraw, a.ID)
	}

	if err := v.RestoreScene(ctx, bb.ID); err != nil {
		t.Fatalf("restore: %v", err)
	}
	got, _ = v.Scene(bb.ID)
	if got.Deleted || got.DeletedAt != nil {
		t.Fatalf("scene still trashed after restore: %+v", got)
	}
	// restored scenes go to the end of the order
	if order := v.Order(); len(order) != 2 || order[1] != bb.ID {
		t.Fatalf("order after restore = %v", order)
	}
}

func TestVaultPermanentDelete(t *testing.T) {
	ctx := context.Background()
	b := newMemBackend()
	v := newTestVault(t, b)

	sc, _ := v.CreateScene(ctx, "gone")
	released := false
	if err := v.SetScenePreview(sc.ID, domain.NewPreviewHandle(func() { released = true })); err != nil {
		t.Fatalf("set preview: %v", err)
	}

	if err := v.PermanentlyDeleteScene(ctx, sc.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !released {
		t.Fatal("preview not released on permanent delete")
	}
	if _, ok := v.Scene(sc.ID); ok {
		t.Fatal("scene still present")
	}
	if err := v.PermanentlyDeleteScene(ctx, sc.ID); !errors.Is(err, ErrSceneNotFound) {
		t.Fatalf("second delete: %v", err)
	}
}

func TestVaultReorderValidation(t *testing.T) {
	ctx := context.Background()
	b := newMemBackend()
	v := newTestVault(t, b)

	a, _ := v.CreateScene(ctx, "a")
	bb, _ := v.CreateScene(ctx, "b")
	c, _ := v.CreateScene(ctx, "c")

	if err := v.ReorderScenes(ctx, []string{c.ID, a.ID, bb.ID}); err != nil {
		t.Fatalf("valid reorder rejected: %v", err)
	}
	if order := v.Order(); order[0] != c.ID {
		t.Fatalf("order after reorder = %v", order)
	}

	var verr *OrderValidationError
	err := v.ReorderScenes(ctx, []string{a.ID, bb.ID})
	if !errors.As(err, &verr) || len(verr.Missing) != 1 || verr.Missing[0] != c.ID {
		t.Fatalf("missing id not reported: %v", err)
	}
	err = v.ReorderScenes(ctx, []string{a.ID, bb.ID, c.ID, "phantom"})
	if !errors.As(err, &verr) || len(verr.Unknown) != 1 {
		t.Fatalf("unknown id not reported: %v", err)
	}
	err = v.ReorderScenes(ctx, []string{a.ID, a.ID, bb.ID, c.ID})
	if !errors.As(err, &verr) || len(verr.Duplicates) != 1 {
		t.Fatalf("duplicate id not reported: %v", err)
	}
	// failed attempts leave the order untouched
	if order := v.Order(); len(order) != 3 || order[0] != c.ID {
		t.Fatalf("order changed by rejected reorder: %v", order)
	}
}

func TestVaultPersistAttachments(t *testing.T) {
	ctx := context.Background()
	b := newMemBackend()
	v := newTestVault(t, b)
	sc, _ := v.CreateScene(ctx, "drawing")

	atts := []domain.Attachment{
		{ID: "one", MimeType: "image/png", Data: []byte("png")},
		{ID: "two", MimeType: "image/jpeg", Data: []byte("jpg")},
	}
	if err := v.PersistAttachmentsForScene(ctx, sc.ID, atts); err != nil {
		t.Fatalf("persist: %v", err)
	}
	keys, _ := b.ListAttachmentKeys(ctx)
	if len(keys) != 2 {
		t.Fatalf("stored keys = %v", keys)
	}

	// already-stored ids are skipped, not rewritten
	atts[0].Data = []byte("changed")
	if err := v.PersistAttachmentsForScene(ctx, sc.ID, atts[:1]); err != nil {
		t.Fatalf("re-persist: %v", err)
	}
	got, _ := b.GetAttachment(ctx, "one")
	if string(got.Data) != "png" {
		t.Fatal("immutable attachment was rewritten")
	}

	if err := v.PersistAttachmentsForScene(ctx, "missing", atts); !errors.Is(err, ErrSceneNotFound) {
		t.Fatalf("persist for missing scene: %v", err)
	}
}

func TestVaultPersistAttachmentsOversize(t *testing.T) {
	ctx := context.Background()
	b := newMemBackend()
	v := newTestVault(t, b)
	sc, _ := v.CreateScene(ctx, "drawing")

	atts := []domain.Attachment{
		{ID: "huge", MimeType: "image/png", Data: make([]byte, MaxAttachmentBytes+1)},
		{ID: "ok", MimeType: "image/png", Data: []byte("fine")},
	}
	err := v.PersistAttachmentsForScene(ctx, sc.ID, atts)
	var oe *OversizeError
	if !errors.As(err, &oe) || oe.ID != "huge" {
		t.Fatalf("expected oversize error for huge, got %v", err)
	}
	// the oversize blob is absent, the rest went through
	if _, err := b.GetAttachment(ctx, "huge"); !errors.Is(err, ErrAttachmentNotFound) {
		t.Fatal("oversize attachment was stored")
	}
	if _, err := b.GetAttachment(ctx, "ok"); err != nil {
		t.Fatalf("valid attachment missing: %v", err)
	}
}

func TestVaultPersistAttachmentsSoftFailure(t *testing.T) {
	ctx := context.Background()
	b := newMemBackend()
	b.putAttErr["flaky"] = errors.New("disk on fire")
	v := newTestVault(t, b)
	sc, _ := v.CreateScene(ctx, "drawing")

	atts := []domain.Attachment{
		{ID: "flaky", MimeType: "image/png", Data: []byte("x")},
		{ID: "solid", MimeType: "image/png", Data: []byte("y")},
	}
	// a non-oversize write failure is swallowed; the session keeps going
	if err := v.PersistAttachmentsForScene(ctx, sc.ID, atts); err != nil {
		t.Fatalf("expected soft failure, got %v", err)
	}
	if _, err := b.GetAttachment(ctx, "flaky"); !errors.Is(err, ErrAttachmentNotFound) {
		t.Fatal("failed attachment reported as stored")
	}
	if _, err := b.GetAttachment(ctx, "solid"); err != nil {
		t.Fatalf("unaffected attachment missing: %v", err)
	}
}

func TestVaultSetPreviewReleasesPrevious(t *testing.T) {
	ctx := context.Background()
	b := newMemBackend()
	v := newTestVault(t, b)
	sc, _ := v.CreateScene(ctx, "a")

	firstReleased := 0
	if err := v.SetScenePreview(sc.ID, domain.NewPreviewHandle(func() { firstReleased++ })); err != nil {
		t.Fatalf("set preview: %v", err)
	}
	if err := v.SetScenePreview(sc.ID, domain.NewPreviewHandle(func() {})); err != nil {
		t.Fatalf("replace preview: %v", err)
	}
	if firstReleased != 1 {
		t.Fatalf("previous handle released %d times, want 1", firstReleased)
	}

	orphanReleased := false
	err := v.SetScenePreview("missing", domain.NewPreviewHandle(func() { orphanReleased = true }))
	if !errors.Is(err, ErrSceneNotFound) {
		t.Fatalf("preview for missing scene: %v", err)
	}
	if !orphanReleased {
		t.Fatal("handle leaked when scene was missing")
	}
}

func TestVaultChangeNotifications(t *testing.T) {
	ctx := context.Background()
	b := newMemBackend()
	v := newTestVault(t, b)
	if _, _, _, err := v.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}

	sub := v.Subscribe()
	defer sub.Cancel()

	sc, _ := v.CreateScene(ctx, "a")
	_ = v.RenameScene(ctx, sc.ID, "b")
	_ = v.SoftDeleteScene(ctx, sc.ID)

	got := drainChanges(sub)
	want := []domain.ChangeKind{domain.ChangeCreated, domain.ChangeRenamed, domain.ChangeSoftDeleted}
	if len(got) != len(want) {
		t.Fatalf("events = %v, want kinds %v", got, want)
	}
	for i, ev := range got {
		if ev.Kind != want[i] {
			t.Fatalf("event %d = %v, want %v", i, ev.Kind, want[i])
		}
		if ev.SceneID != sc.ID {
			t.Fatalf("event %d scene = %q, want %q", i, ev.SceneID, sc.ID)
		}
	}

	// cancelled subscriptions receive nothing further
	sub.Cancel()
	_ = v.RenameScene(ctx, sc.ID, "c")
	if late := drainChanges(sub); len(late) != 0 {
		t.Fatalf("cancelled subscription got %v", late)
	}
}

func TestVaultLoadPurgesExpiredTrash(t *testing.T) {
	ctx := context.Background()
	b := newMemBackend()
	old := domain.Scene{ID: "old", Name: "old"}
	old.MarkDeleted(testTime(t, "2025-11-01T10:00:00Z"))
	fresh := domain.Scene{ID: "fresh", Name: "fresh"}
	fresh.MarkDeleted(testTime(t, "2026-01-25T10:00:00Z"))
	_ = b.PutScene(ctx, old)
	_ = b.PutScene(ctx, fresh)

	v := newTestVault(t, b)
	scenes, _, _, err := v.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := scenes["old"]; ok {
		t.Fatal("expired trash survived load")
	}
	if _, ok := scenes["fresh"]; !ok {
		t.Fatal("fresh trash purged early")
	}
}

func TestVaultLoadSeedsOrderFromExistingScenes(t *testing.T) {
	ctx := context.Background()
	b := newMemBackend()
	_ = b.PutScene(ctx, domain.Scene{ID: "zeta", Name: "z"})
	_ = b.PutScene(ctx, domain.Scene{ID: "alpha", Name: "a"})

	v := newTestVault(t, b)
	_, _, order, err := v.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(order) != 2 || order[0] != "alpha" || order[1] != "zeta" {
		t.Fatalf("seeded order = %v, want [alpha zeta]", order)
	}
	// the seeded order was written back
	st, found, _ := b.LoadSettings(ctx)
	if !found || len(st.ScenesID) != 2 {
		t.Fatalf("order not persisted: found=%v %v", found, st.ScenesID)
	}
}

func TestVaultClose(t *testing.T) {
	ctx := context.Background()
	b := newMemBackend()
	v := newTestVault(t, b)
	sc, _ := v.CreateScene(ctx, "a")

	released := false
	_ = v.SetScenePreview(sc.ID, domain.NewPreviewHandle(func() { released = true }))

	if err := v.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !released {
		t.Fatal("preview not released on close")
	}
	if !b.closed {
		t.Fatal("backend not closed")
	}
	if _, err := v.CreateScene(ctx, "late"); !errors.Is(err, ErrVaultClosed) {
		t.Fatalf("operation after close: %v", err)
	}
	// closing twice is fine
	if err := v.Close(ctx); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestVaultCloseCollectsAfterPermanentDelete(t *testing.T) {
	// A session whose only mutation is a permanent delete still changes
	// attachment reachability, so Close must run the collector.
	ctx := context.Background()
	b := newMemBackend()
	v := newTestVault(t, b)
	sc, _ := v.CreateScene(ctx, "drawing")
	_ = v.UpdateSceneData(ctx, sc.ID, `{"elements":[{"type":"image","fileId":"att"}]}`)
	if err := v.PersistAttachmentsForScene(ctx, sc.ID, []domain.Attachment{
		{ID: "att", MimeType: "image/png", Data: []byte("blob")},
	}); err != nil {
		t.Fatalf("persist: %v", err)
	}
	if err := v.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	v2 := newTestVault(t, b)
	if err := v2.PermanentlyDeleteScene(ctx, sc.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := v2.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	keys, _ := b.ListAttachmentKeys(ctx)
	if len(keys) != 0 {
		t.Fatalf("orphaned attachments survived teardown: %v", keys)
	}
}

func TestVaultCloseCollectsAfterRetentionPurge(t *testing.T) {
	// Same property when the retention sweep at load removed the last
	// referent of an attachment.
	ctx := context.Background()
	b := newMemBackend()
	old := sceneWithRefs("old", "att")
	old.MarkDeleted(testTime(t, "2025-10-01T10:00:00Z"))
	_ = b.PutScene(ctx, old)
	_ = b.PutAttachment(ctx, domain.Attachment{ID: "att", MimeType: "image/png", Data: []byte("blob")})

	v := newTestVault(t, b)
	if _, _, _, err := v.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := v.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	keys, _ := b.ListAttachmentKeys(ctx)
	if len(keys) != 0 {
		t.Fatalf("attachments of purged trash survived teardown: %v", keys)
	}
}

func TestVaultUpdateSettingsKeepsVaultOwnedFields(t *testing.T) {
	ctx := context.Background()
	b := newMemBackend()
	v := newTestVault(t, b)
	sc, _ := v.CreateScene(ctx, "a")
	_ = v.SetActiveScene(ctx, sc.ID)

	st := v.Settings()
	st.AsideWidth = 420
	st.ScenesID = []string{"tampered"}
	st.LastActiveDraw = "tampered"
	if err := v.UpdateSettings(ctx, st); err != nil {
		t.Fatalf("update settings: %v", err)
	}

	got := v.Settings()
	if got.AsideWidth != 420 {
		t.Fatalf("preference not applied: %+v", got)
	}
	if len(got.ScenesID) != 1 || got.ScenesID[0] != sc.ID {
		t.Fatalf("order overwritten through UpdateSettings: %v", got.ScenesID)
	}
	if got.LastActiveDraw != sc.ID {
		t.Fatalf("active scene overwritten through UpdateSettings: %q", got.LastActiveDraw)
	}
}

func TestVaultRunsOnUnavailableBackend(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(t, NewUnavailable())

	sc, err := v.CreateScene(ctx, "ephemeral")
	if err != nil {
		t.Fatalf("create on unavailable backend: %v", err)
	}
	if err := v.UpdateSceneData(ctx, sc.ID, `{"elements":[]}`); err != nil {
		t.Fatalf("update on unavailable backend: %v", err)
	}
	if _, ok := v.Scene(sc.ID); !ok {
		t.Fatal("in-memory session lost the scene")
	}
	if _, err := v.Attachment(ctx, "any"); !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("attachment read on unavailable backend: %v", err)
	}
	if err := v.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
}
