package records

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Record is the shape shared by both collections.
type Record interface {
	Identifier() int
	Timestamp() time.Time
}

// NextID returns max(existing IDs)+1, or 1 for an empty collection.
func NextID[R Record](collection []R) int {
	highest := 0
	for _, record := range collection {
		if record.Identifier() > highest {
			highest = record.Identifier()
		}
	}
	return highest + 1
}

// NextIDAbove is NextID for a collection whose identifiers up to highest were already handed out.
func NextIDAbove[R Record](collection []R, highest int) int {
	return max(NextID(collection), highest+1)
}

// Watermark holds the highest identifier ever assigned per collection. Identifiers at or below it
// are never assigned again, even once the record that carried them is deleted.
type Watermark struct {
	Maintenance int `json:"maintenance"`
	Components  int `json:"components"`
}

// Raise lifts the watermark over every identifier present in document.
func (w Watermark) Raise(document Document) Watermark {
	w.Maintenance = max(w.Maintenance, NextID(document.MaintenanceRecords)-1)
	w.Components = max(w.Components, NextID(document.ComponentReplacements)-1)
	return w
}

// IndexOf returns the position of the record with id, or -1.
func IndexOf[R Record](collection []R, id int) int {
	for index, record := range collection {
		if record.Identifier() == id {
			return index
		}
	}
	return -1
}

// IDSet collects the identifiers present in collection.
func IDSet[R Record](collection []R) map[int]struct{} {
	ids := make(map[int]struct{}, len(collection))
	for _, record := range collection {
		ids[record.Identifier()] = struct{}{}
	}
	return ids
}

// SortByDateDesc orders records newest first; ties keep their relative order.
func SortByDateDesc[R Record](collection []R) {
	sort.SliceStable(collection, func(left, right int) bool {
		return collection[left].Timestamp().After(collection[right].Timestamp())
	})
}

// AddMaintenance assigns the next identifier above highest, derives status and prepends the record.
func AddMaintenance(collection []MaintenanceRecord, draft MaintenanceRecord, highest int) ([]MaintenanceRecord, MaintenanceRecord) {
	draft.ID = NextIDAbove(collection, highest)
	created := draft.Normalize()
	next := make([]MaintenanceRecord, 0, len(collection)+1)
	next = append(next, created)
	next = append(next, collection...)
	return next, created
}

// ReplaceMaintenance swaps the record carrying updated.ID for updated, recomputing status.
func ReplaceMaintenance(collection []MaintenanceRecord, updated MaintenanceRecord) ([]MaintenanceRecord, MaintenanceRecord, error) {
	index := IndexOf(collection, updated.ID)
	if index < 0 {
		return collection, MaintenanceRecord{}, fmt.Errorf("%w: maintenance %d", ErrRecordNotFound, updated.ID)
	}
	normalized := updated.Normalize()
	next := make([]MaintenanceRecord, len(collection))
	copy(next, collection)
	next[index] = normalized
	return next, normalized, nil
}

// ResolvePendency replaces the pending-work text and appends a new observation line to OBS.
func ResolvePendency(collection []MaintenanceRecord, id int, pending, observation string) ([]MaintenanceRecord, MaintenanceRecord, error) {
	index := IndexOf(collection, id)
	if index < 0 {
		return collection, MaintenanceRecord{}, fmt.Errorf("%w: maintenance %d", ErrRecordNotFound, id)
	}
	updated := collection[index]
	updated.Pending = pending
	if strings.TrimSpace(observation) != "" {
		if updated.Notes != "" {
			updated.Notes = updated.Notes + "\n" + observation
		} else {
			updated.Notes = observation
		}
	}
	return ReplaceMaintenance(collection, updated)
}

// RemoveMaintenance drops the record carrying id.
func RemoveMaintenance(collection []MaintenanceRecord, id int) ([]MaintenanceRecord, error) {
	index := IndexOf(collection, id)
	if index < 0 {
		return collection, fmt.Errorf("%w: maintenance %d", ErrRecordNotFound, id)
	}
	next := make([]MaintenanceRecord, 0, len(collection)-1)
	next = append(next, collection[:index]...)
	next = append(next, collection[index+1:]...)
	return next, nil
}

// AddComponent assigns the next identifier above highest and appends the replacement record.
func AddComponent(collection []ComponentReplacementRecord, draft ComponentReplacementRecord, highest int) ([]ComponentReplacementRecord, ComponentReplacementRecord) {
	draft.ID = NextIDAbove(collection, highest)
	next := make([]ComponentReplacementRecord, 0, len(collection)+1)
	next = append(next, collection...)
	next = append(next, draft)
	return next, draft
}

// ImportResult reports the records created by Import.
type ImportResult struct {
	Maintenance []MaintenanceRecord          `json:"maintenanceRecords"`
	Components  []ComponentReplacementRecord `json:"componentReplacements"`
}

// Import assigns consecutive identifiers above watermark to both batches and prepends them to
// their collections.
func Import(document Document, watermark Watermark, maintenance []MaintenanceRecord, components []ComponentReplacementRecord) (Document, ImportResult) {
	nextMaintenanceID := NextIDAbove(document.MaintenanceRecords, watermark.Maintenance)
	created := ImportResult{
		Maintenance: make([]MaintenanceRecord, 0, len(maintenance)),
		Components:  make([]ComponentReplacementRecord, 0, len(components)),
	}
	for _, draft := range maintenance {
		draft.ID = nextMaintenanceID
		nextMaintenanceID++
		created.Maintenance = append(created.Maintenance, draft.Normalize())
	}

	nextComponentID := NextIDAbove(document.ComponentReplacements, watermark.Components)
	for _, draft := range components {
		draft.ID = nextComponentID
		nextComponentID++
		created.Components = append(created.Components, draft)
	}

	result := Document{
		MaintenanceRecords:    append(append([]MaintenanceRecord{}, created.Maintenance...), document.MaintenanceRecords...),
		ComponentReplacements: append(append([]ComponentReplacementRecord{}, created.Components...), document.ComponentReplacements...),
	}
	return result, created
}
