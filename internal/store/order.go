/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * Licensed under the Apache License, Version 2.0.
 */

package store

import (
	"sort"

	"scenevault/internal/domain"
)

// ReconcileOrder computes the canonical display order of scene ids from the
// full scene map and a previously persisted preference, which may be stale:
// it can contain ids that no longer exist, miss ids that do, or repeat ids.
//
// An empty preference yields an empty result. It is a valid "nothing
// initialized yet" signal and is left to the caller to seed; synthesizing an
// order from map iteration here would invent state the user never expressed.
//
// Otherwise the result contains exactly the live (present, not soft-deleted)
// ids: preference order is preserved, ids present in the map but absent from
// the preference are appended after all known ones in sorted-id order, and
// only the first occurrence of a repeated id survives.
func ReconcileOrder(scenes map[string]domain.Scene, preferred []string) []string {
	if len(preferred) == 0 {
		return nil
	}
	known := make(map[string]struct{}, len(preferred))
	for _, id := range preferred {
		known[id] = struct{}{}
	}
	appeared := make([]string, 0, 4)
	for id := range scenes {
		if _, ok := known[id]; !ok {
			appeared = append(appeared, id)
		}
	}
	sort.Strings(appeared)

	out := make([]string, 0, len(preferred)+len(appeared))
	seen := make(map[string]struct{}, len(preferred)+len(appeared))
	for _, id := range append(append([]string(nil), preferred...), appeared...) {
		sc, ok := scenes[id]
		if !ok || sc.Deleted {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// liveIDs returns the ids of scenes that are present and not soft-deleted,
// in sorted order.
func liveIDs(scenes map[string]domain.Scene) []string {
	ids := make([]string, 0, len(scenes))
	for id, sc := range scenes {
		if !sc.Deleted {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
