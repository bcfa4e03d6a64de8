/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * Licensed under the Apache License, Version 2.0.
 */

package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// The serialized drawing document is opaque to this layer except for one
// concern: elements of type "image" reference a stored attachment by file id.
// Only that shape is decoded here; everything else passes through untouched.

type documentPayload struct {
	Elements []documentElement `json:"elements"`
}

type documentElement struct {
	Type      string `json:"type"`
	FileID    string `json:"fileId"`
	IsDeleted bool   `json:"isDeleted"`
}

const imageElementType = "image"

// AttachmentRefs scans a serialized scene document and returns the attachment
// ids referenced by its image elements. Elements flagged deleted inside the
// document still count as references; the element survives undo until the
// document itself is rewritten.
func AttachmentRefs(data string) ([]string, error) {
	if strings.TrimSpace(data) == "" {
		return nil, nil
	}
	var doc documentPayload
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return nil, fmt.Errorf("parse scene document: %w", err)
	}
	seen := make(map[string]struct{}, 4)
	refs := make([]string, 0, 4)
	for _, el := range doc.Elements {
		if el.Type != imageElementType || el.FileID == "" {
			continue
		}
		if _, dup := seen[el.FileID]; dup {
			continue
		}
		seen[el.FileID] = struct{}{}
		refs = append(refs, el.FileID)
	}
	return refs, nil
}
