package store

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"scenevault/internal/domain"
)

func testTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse time %q: %v", s, err)
	}
	return ts
}

// memBackend is an in-memory Backend for tests. It follows the same contract
// as the real backends: full-record upserts, idempotent deletes, immutable
// attachments, oversize rejection.
type memBackend struct {
	mu       sync.Mutex
	scenes   map[string]domain.Scene
	atts     map[string]domain.Attachment
	settings *domain.Settings

	// injected failures, keyed by attachment id
	putAttErr map[string]error

	deletedScenes []string // permanent scene deletions, in order
	closed        bool
}

func newMemBackend() *memBackend {
	return &memBackend{
		scenes:    make(map[string]domain.Scene),
		atts:      make(map[string]domain.Attachment),
		putAttErr: make(map[string]error),
	}
}

func (m *memBackend) LoadScenes(ctx context.Context) (map[string]domain.Scene, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]domain.Scene, len(m.scenes))
	for id, sc := range m.scenes {
		out[id] = sc.Clone()
	}
	return out, nil
}

func (m *memBackend) PutScene(ctx context.Context, sc domain.Scene) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scenes[sc.ID] = sc.Clone()
	return nil
}

func (m *memBackend) DeleteScene(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.scenes, id)
	m.deletedScenes = append(m.deletedScenes, id)
	return nil
}

func (m *memBackend) LoadSettings(ctx context.Context) (domain.Settings, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings == nil {
		return domain.Settings{}, false, nil
	}
	st := *m.settings
	st.ScenesID = append([]string(nil), m.settings.ScenesID...)
	return st, true, nil
}

func (m *memBackend) SaveSettings(ctx context.Context, st domain.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := st
	cp.ScenesID = append([]string(nil), st.ScenesID...)
	m.settings = &cp
	return nil
}

func (m *memBackend) GetAttachment(ctx context.Context, id string) (domain.Attachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	att, ok := m.atts[id]
	if !ok {
		return domain.Attachment{}, ErrAttachmentNotFound
	}
	return att, nil
}

func (m *memBackend) PutAttachment(ctx context.Context, att domain.Attachment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.putAttErr[att.ID]; ok {
		return err
	}
	if size := int64(len(att.Data)); size > MaxAttachmentBytes {
		return &OversizeError{ID: att.ID, Size: size, Limit: MaxAttachmentBytes}
	}
	if _, exists := m.atts[att.ID]; exists {
		return nil
	}
	m.atts[att.ID] = att
	return nil
}

func (m *memBackend) DeleteAttachment(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.atts, id)
	return nil
}

func (m *memBackend) ListAttachmentKeys(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.atts))
	for k := range m.atts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *memBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

var _ Backend = (*memBackend)(nil)
