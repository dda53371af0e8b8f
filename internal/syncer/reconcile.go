package syncer

import (
	"slices"

	"github.com/MarcoPoloResearchLab/frostlog/internal/records"
)

type mergeable[R any] interface {
	records.Record
	Equal(R) bool
	WithID(int) R
}

// Renames maps a local identifier to the one it was given during a merge.
type Renames struct {
	Maintenance map[int]int
	Components  map[int]int
}

func (r Renames) Empty() bool {
	return len(r.Maintenance) == 0 && len(r.Components) == 0
}

// mergeMode decides what happens to local records that carry no pending change and are
// missing from the remote document.
type mergeMode int

const (
	// adoptRemote drops them: a poll follows deletions made by other sessions.
	adoptRemote mergeMode = iota
	// keepLocal publishes them: the document written back is remote ∪ local.
	keepLocal
)

// reconcileDocument merges local state onto the remote document. New identifiers handed out
// for collisions lie above watermark. With adoptRemote and no pending changes the result is
// the remote document, so repeated merges are stable.
func reconcileDocument(remote, local records.Document, intents Intents, watermark records.Watermark, mode mergeMode) (records.Document, Renames) {
	maintenance, maintenanceRenames := reconcile(remote.MaintenanceRecords, local.MaintenanceRecords, intents.Maintenance, watermark.Maintenance, mode)
	components, componentRenames := reconcile(remote.ComponentReplacements, local.ComponentReplacements, intents.Components, watermark.Components, mode)
	merged := records.Document{
		MaintenanceRecords:    maintenance,
		ComponentReplacements: components,
	}.Normalize()
	return merged, Renames{Maintenance: maintenanceRenames, Components: componentRenames}
}

// reconcile starts from remote, drops pending deletions and applies pending whole-record
// replacements. Local records whose identifier the remote lacks are then appended: always for
// pending creations, and for the rest only in keepLocal mode. A pending creation whose
// identifier is held remotely by a different record gets a fresh identifier; an identical one
// counts as published.
func reconcile[R mergeable[R]](remote, local []R, changes ChangeSet, highest int, mode mergeMode) ([]R, map[int]int) {
	localByID := make(map[int]R, len(local))
	for _, record := range local {
		localByID[record.Identifier()] = record
	}
	remoteIDs := records.IDSet(remote)

	merged := make([]R, 0, len(remote)+len(local))
	for _, record := range remote {
		if slices.Contains(changes.Deleted, record.Identifier()) {
			continue
		}
		merged = append(merged, record)
	}

	for _, id := range changes.Updated {
		replacement, ok := localByID[id]
		if !ok {
			continue
		}
		if index := records.IndexOf(merged, id); index >= 0 {
			merged[index] = replacement
			continue
		}
		// Edited locally, removed remotely: keep the edit.
		merged = append(merged, replacement)
	}

	nextID := max(records.NextID(remote), records.NextID(local), highest+1)
	var renames map[int]int
	for _, record := range local {
		id := record.Identifier()
		if slices.Contains(changes.Deleted, id) || slices.Contains(changes.Updated, id) {
			continue
		}
		_, heldRemotely := remoteIDs[id]
		if !slices.Contains(changes.Created, id) {
			if mode == keepLocal && !heldRemotely {
				merged = append(merged, record)
			}
			continue
		}
		index := records.IndexOf(merged, id)
		if index < 0 {
			merged = append(merged, record)
			continue
		}
		if merged[index].Equal(record) {
			continue
		}
		if renames == nil {
			renames = make(map[int]int)
		}
		renames[id] = nextID
		merged = append(merged, record.WithID(nextID))
		nextID++
	}

	records.SortByDateDesc(merged)
	return merged, renames
}

// sameRecords reports whether both collections hold equal records under the same identifiers,
// regardless of order.
func sameRecords[R mergeable[R]](left, right []R) bool {
	if len(left) != len(right) {
		return false
	}
	for _, record := range left {
		index := records.IndexOf(right, record.Identifier())
		if index < 0 || !right[index].Equal(record) {
			return false
		}
	}
	return true
}

func sameDocument(left, right records.Document) bool {
	return sameRecords(left.MaintenanceRecords, right.MaintenanceRecords) &&
		sameRecords(left.ComponentReplacements, right.ComponentReplacements)
}
