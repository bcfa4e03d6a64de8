//go:build js && wasm

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * Licensed under the Apache License, Version 2.0.
 */

package store

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"syscall/js"

	"github.com/hack-pad/go-indexeddb/idb"

	"scenevault/internal/domain"
)

// IndexedDBBackend persists the vault in the browser's IndexedDB when the
// application runs as a wasm module inside a webview host. Records are stored
// as JSON strings keyed by id; attachment payloads are base64-encoded inside
// their record. The asynchronous IndexedDB completion model is hidden behind
// the same synchronous-looking Backend contract via request Await calls.
type IndexedDBBackend struct {
	db *idb.Database
}

const (
	idbName            = "scenevault"
	idbVersion         = 1
	idbScenesStore     = "scenes"
	idbAttachmentStore = "attachments"
	idbMetaStore       = "meta"

	idbSettingsKey = "settings"
)

// OpenIndexedDB opens (and upgrades if needed) the vault database.
func OpenIndexedDB(ctx context.Context) (*IndexedDBBackend, error) {
	req, err := idb.Global().Open(ctx, idbName, idbVersion, func(db *idb.Database, oldVersion, newVersion uint) error {
		for _, name := range []string{idbScenesStore, idbAttachmentStore, idbMetaStore} {
			if _, err := db.CreateObjectStore(name, idb.ObjectStoreOptions{}); err != nil {
				return fmt.Errorf("create object store %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("open indexeddb: %w", err)
	}
	db, err := req.Await(ctx)
	if err != nil {
		return nil, fmt.Errorf("await indexeddb open: %w", err)
	}
	return &IndexedDBBackend{db: db}, nil
}

func (b *IndexedDBBackend) Close() error {
	return b.db.Close()
}

func (b *IndexedDBBackend) objectStore(mode idb.TransactionMode, name string) (*idb.ObjectStore, error) {
	txn, err := b.db.Transaction(mode, name)
	if err != nil {
		return nil, fmt.Errorf("begin transaction on %s: %w", name, err)
	}
	return txn.ObjectStore(name)
}

func (b *IndexedDBBackend) putJSON(ctx context.Context, storeName, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", storeName, key, err)
	}
	os, err := b.objectStore(idb.TransactionReadWrite, storeName)
	if err != nil {
		return err
	}
	req, err := os.PutKey(js.ValueOf(key), js.ValueOf(string(raw)))
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", storeName, key, err)
	}
	if _, err := req.Await(ctx); err != nil {
		return fmt.Errorf("await put %s/%s: %w", storeName, key, err)
	}
	return nil
}

func (b *IndexedDBBackend) getJSON(ctx context.Context, storeName, key string, v any) (bool, error) {
	os, err := b.objectStore(idb.TransactionReadOnly, storeName)
	if err != nil {
		return false, err
	}
	req, err := os.Get(js.ValueOf(key))
	if err != nil {
		return false, fmt.Errorf("get %s/%s: %w", storeName, key, err)
	}
	val, err := req.Await(ctx)
	if err != nil {
		return false, fmt.Errorf("await get %s/%s: %w", storeName, key, err)
	}
	if val.IsUndefined() || val.IsNull() {
		return false, nil
	}
	if err := json.Unmarshal([]byte(val.String()), v); err != nil {
		return false, fmt.Errorf("unmarshal %s/%s: %w", storeName, key, err)
	}
	return true, nil
}

func (b *IndexedDBBackend) deleteKey(ctx context.Context, storeName, key string) error {
	os, err := b.objectStore(idb.TransactionReadWrite, storeName)
	if err != nil {
		return err
	}
	req, err := os.Delete(js.ValueOf(key))
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", storeName, key, err)
	}
	if err := req.Await(ctx); err != nil {
		return fmt.Errorf("await delete %s/%s: %w", storeName, key, err)
	}
	return nil
}

func (b *IndexedDBBackend) listKeys(ctx context.Context, storeName string) ([]string, error) {
	os, err := b.objectStore(idb.TransactionReadOnly, storeName)
	if err != nil {
		return nil, err
	}
	req, err := os.GetAllKeys(js.Undefined())
	if err != nil {
		return nil, fmt.Errorf("list keys of %s: %w", storeName, err)
	}
	vals, err := req.Await(ctx)
	if err != nil {
		return nil, fmt.Errorf("await keys of %s: %w", storeName, err)
	}
	keys := make([]string, 0, len(vals))
	for _, v := range vals {
		keys = append(keys, v.String())
	}
	return keys, nil
}

func (b *IndexedDBBackend) LoadScenes(ctx context.Context) (map[string]domain.Scene, error) {
	ids, err := b.listKeys(ctx, idbScenesStore)
	if err != nil {
		return nil, err
	}
	scenes := make(map[string]domain.Scene, len(ids))
	for _, id := range ids {
		var sc domain.Scene
		ok, err := b.getJSON(ctx, idbScenesStore, id, &sc)
		if err != nil || !ok {
			// A record that vanished or fails to parse is skipped, not fatal.
			continue
		}
		if sc.ID == "" {
			sc.ID = id
		}
		scenes[sc.ID] = sc
	}
	return scenes, nil
}

func (b *IndexedDBBackend) PutScene(ctx context.Context, sc domain.Scene) error {
	return b.putJSON(ctx, idbScenesStore, sc.ID, sc)
}

func (b *IndexedDBBackend) DeleteScene(ctx context.Context, id string) error {
	return b.deleteKey(ctx, idbScenesStore, id)
}

// idbAttachment is the stored attachment record shape; the payload is
// base64-encoded to survive the JSON string round-trip.
type idbAttachment struct {
	ID   string `json:"id"`
	Mime string `json:"mime,omitempty"`
	Data string `json:"data"`
}

func (b *IndexedDBBackend) GetAttachment(ctx context.Context, id string) (domain.Attachment, error) {
	var rec idbAttachment
	ok, err := b.getJSON(ctx, idbAttachmentStore, id, &rec)
	if err != nil {
		return domain.Attachment{}, err
	}
	if !ok {
		return domain.Attachment{}, fmt.Errorf("attachment %s: %w", id, ErrAttachmentNotFound)
	}
	blob, err := base64.StdEncoding.DecodeString(rec.Data)
	if err != nil {
		return domain.Attachment{}, fmt.Errorf("decode attachment %s: %w", id, err)
	}
	return domain.Attachment{ID: id, MimeType: rec.Mime, Data: blob}, nil
}

func (b *IndexedDBBackend) PutAttachment(ctx context.Context, att domain.Attachment) error {
	if size := int64(len(att.Data)); size > MaxAttachmentBytes {
		return &OversizeError{ID: att.ID, Size: size, Limit: MaxAttachmentBytes}
	}
	// Immutable once stored: never rewrite an existing key.
	var existing idbAttachment
	if ok, err := b.getJSON(ctx, idbAttachmentStore, att.ID, &existing); err == nil && ok {
		return nil
	}
	rec := idbAttachment{
		ID:   att.ID,
		Mime: att.MimeType,
		Data: base64.StdEncoding.EncodeToString(att.Data),
	}
	return b.putJSON(ctx, idbAttachmentStore, att.ID, rec)
}

func (b *IndexedDBBackend) DeleteAttachment(ctx context.Context, id string) error {
	return b.deleteKey(ctx, idbAttachmentStore, id)
}

func (b *IndexedDBBackend) ListAttachmentKeys(ctx context.Context) ([]string, error) {
	return b.listKeys(ctx, idbAttachmentStore)
}

func (b *IndexedDBBackend) LoadSettings(ctx context.Context) (domain.Settings, bool, error) {
	var st domain.Settings
	ok, err := b.getJSON(ctx, idbMetaStore, idbSettingsKey, &st)
	if err != nil {
		return domain.Settings{}, false, err
	}
	return st, ok, nil
}

func (b *IndexedDBBackend) SaveSettings(ctx context.Context, st domain.Settings) error {
	return b.putJSON(ctx, idbMetaStore, idbSettingsKey, st)
}

var _ Backend = (*IndexedDBBackend)(nil)
