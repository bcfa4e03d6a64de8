/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * Licensed under the Apache License, Version 2.0.
 */

package domain

import "sync"

// PreviewHandle wraps a session-local preview resource (for example a
// rendered thumbnail or a blob URL in a webview host). The release callback
// runs exactly once no matter how many paths drop the handle.
type PreviewHandle struct {
	release func()
	once    sync.Once
}

// NewPreviewHandle wraps a release callback. A nil callback yields a handle
// whose Release is a no-op.
func NewPreviewHandle(release func()) *PreviewHandle {
	return &PreviewHandle{release: release}
}

// Release frees the underlying resource. Safe to call multiple times; only
// the first call runs the callback.
func (h *PreviewHandle) Release() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		if h.release != nil {
			h.release()
		}
	})
}
