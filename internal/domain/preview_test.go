package domain

import "testing"

func TestPreviewHandleReleasesExactlyOnce(t *testing.T) {
	released := 0
	h := NewPreviewHandle(func() { released++ })
	h.Release()
	h.Release()
	if released != 1 {
		t.Fatalf("released %d times, want 1", released)
	}
}

func TestPreviewHandleNilSafe(t *testing.T) {
	var h *PreviewHandle
	h.Release() // must not panic
}

func TestPreviewHandleNilReleaseFunc(t *testing.T) {
	h := NewPreviewHandle(nil)
	h.Release() // must not panic
}
