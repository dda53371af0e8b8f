package syncer

import (
	"context"
	"fmt"

	"github.com/MarcoPoloResearchLab/frostlog/internal/records"
)

// mutation returns the changed state and the commit message describing the change. New
// identifiers must lie above watermark.
type mutation func(document records.Document, intents Intents, watermark records.Watermark) (records.Document, Intents, string, error)

// mutate applies change, saves the result locally and then publishes it. The local save
// completes before the publish starts, so a failed publish never loses the change.
func (e *Engine) mutate(ctx context.Context, change mutation) (Outcome, Renames, error) {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	document, intents := e.workspace.snapshot()
	nextDocument, nextIntents, message, err := change(document, intents, e.workspace.Watermark())
	if err != nil {
		return Outcome{}, Renames{}, err
	}
	if err := e.workspace.commit(ctx, nextDocument, nextIntents); err != nil {
		return Outcome{}, Renames{}, err
	}
	outcome, renames := e.publishLocked(ctx, message)
	return outcome, renames, nil
}

func finalID(renames map[int]int, id int) int {
	if renamed, ok := renames[id]; ok {
		return renamed
	}
	return id
}

// AddMaintenance stores a new maintenance record and publishes it.
// The returned record carries the identifier it was finally published under.
func (e *Engine) AddMaintenance(ctx context.Context, draft records.MaintenanceRecord) (records.MaintenanceRecord, Outcome, error) {
	if err := records.ValidateMaintenance(draft); err != nil {
		return records.MaintenanceRecord{}, Outcome{}, err
	}
	var created records.MaintenanceRecord
	outcome, renames, err := e.mutate(ctx, func(document records.Document, intents Intents, watermark records.Watermark) (records.Document, Intents, string, error) {
		document.MaintenanceRecords, created = records.AddMaintenance(document.MaintenanceRecords, draft, watermark.Maintenance)
		intents.Maintenance = intents.Maintenance.created(created.ID)
		return document, intents, fmt.Sprintf("Add maintenance record %d for %s", created.ID, created.Client), nil
	})
	if err != nil {
		return records.MaintenanceRecord{}, Outcome{}, err
	}
	created.ID = finalID(renames.Maintenance, created.ID)
	return created, outcome, nil
}

// UpdateMaintenance replaces the whole record carrying updated.ID.
func (e *Engine) UpdateMaintenance(ctx context.Context, updated records.MaintenanceRecord) (records.MaintenanceRecord, Outcome, error) {
	if err := records.ValidateMaintenance(updated); err != nil {
		return records.MaintenanceRecord{}, Outcome{}, err
	}
	var stored records.MaintenanceRecord
	outcome, _, err := e.mutate(ctx, func(document records.Document, intents Intents, watermark records.Watermark) (records.Document, Intents, string, error) {
		collection, normalized, err := records.ReplaceMaintenance(document.MaintenanceRecords, updated)
		if err != nil {
			return document, intents, "", err
		}
		stored = normalized
		document.MaintenanceRecords = collection
		intents.Maintenance = intents.Maintenance.updated(normalized.ID)
		return document, intents, fmt.Sprintf("Update maintenance record %d", normalized.ID), nil
	})
	if err != nil {
		return records.MaintenanceRecord{}, Outcome{}, err
	}
	return stored, outcome, nil
}

// ResolvePendency sets the pending-work text and appends observation to the notes.
func (e *Engine) ResolvePendency(ctx context.Context, id int, pending, observation string) (records.MaintenanceRecord, Outcome, error) {
	var stored records.MaintenanceRecord
	outcome, _, err := e.mutate(ctx, func(document records.Document, intents Intents, watermark records.Watermark) (records.Document, Intents, string, error) {
		collection, updated, err := records.ResolvePendency(document.MaintenanceRecords, id, pending, observation)
		if err != nil {
			return document, intents, "", err
		}
		stored = updated
		document.MaintenanceRecords = collection
		intents.Maintenance = intents.Maintenance.updated(id)
		return document, intents, fmt.Sprintf("Update pendency of maintenance record %d", id), nil
	})
	if err != nil {
		return records.MaintenanceRecord{}, Outcome{}, err
	}
	return stored, outcome, nil
}

// DeleteMaintenance removes the record carrying id.
func (e *Engine) DeleteMaintenance(ctx context.Context, id int) (Outcome, error) {
	outcome, _, err := e.mutate(ctx, func(document records.Document, intents Intents, watermark records.Watermark) (records.Document, Intents, string, error) {
		collection, err := records.RemoveMaintenance(document.MaintenanceRecords, id)
		if err != nil {
			return document, intents, "", err
		}
		document.MaintenanceRecords = collection
		intents.Maintenance = intents.Maintenance.deleted(id)
		return document, intents, fmt.Sprintf("Delete maintenance record %d", id), nil
	})
	return outcome, err
}

// AddComponent stores a new component replacement and publishes it.
func (e *Engine) AddComponent(ctx context.Context, draft records.ComponentReplacementRecord) (records.ComponentReplacementRecord, Outcome, error) {
	if err := records.ValidateComponent(draft); err != nil {
		return records.ComponentReplacementRecord{}, Outcome{}, err
	}
	var created records.ComponentReplacementRecord
	outcome, renames, err := e.mutate(ctx, func(document records.Document, intents Intents, watermark records.Watermark) (records.Document, Intents, string, error) {
		document.ComponentReplacements, created = records.AddComponent(document.ComponentReplacements, draft, watermark.Components)
		intents.Components = intents.Components.created(created.ID)
		return document, intents, fmt.Sprintf("Add %s replacement %d for %s", created.Component, created.ID, created.Client), nil
	})
	if err != nil {
		return records.ComponentReplacementRecord{}, Outcome{}, err
	}
	created.ID = finalID(renames.Components, created.ID)
	return created, outcome, nil
}

// Import stores both batches with consecutive identifiers and publishes them in one commit.
func (e *Engine) Import(ctx context.Context, maintenance []records.MaintenanceRecord, components []records.ComponentReplacementRecord) (records.ImportResult, Outcome, error) {
	for index, draft := range maintenance {
		if err := records.ValidateMaintenance(draft); err != nil {
			return records.ImportResult{}, Outcome{}, fmt.Errorf("maintenance row %d: %w", index+1, err)
		}
	}
	for index, draft := range components {
		if err := records.ValidateComponent(draft); err != nil {
			return records.ImportResult{}, Outcome{}, fmt.Errorf("component row %d: %w", index+1, err)
		}
	}

	var result records.ImportResult
	outcome, renames, err := e.mutate(ctx, func(document records.Document, intents Intents, watermark records.Watermark) (records.Document, Intents, string, error) {
		document, result = records.Import(document, watermark, maintenance, components)
		for _, record := range result.Maintenance {
			intents.Maintenance = intents.Maintenance.created(record.ID)
		}
		for _, record := range result.Components {
			intents.Components = intents.Components.created(record.ID)
		}
		message := fmt.Sprintf("Import %d maintenance records and %d component replacements", len(result.Maintenance), len(result.Components))
		return document, intents, message, nil
	})
	if err != nil {
		return records.ImportResult{}, Outcome{}, err
	}
	for index := range result.Maintenance {
		result.Maintenance[index].ID = finalID(renames.Maintenance, result.Maintenance[index].ID)
	}
	for index := range result.Components {
		result.Components[index].ID = finalID(renames.Components, result.Components[index].ID)
	}
	return result, outcome, nil
}
