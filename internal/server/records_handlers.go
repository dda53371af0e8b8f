package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/frostlog/internal/records"
	"github.com/MarcoPoloResearchLab/frostlog/internal/syncer"
)

var errInvalidFilter = errors.New("month must be 1-12 and year must be a number")

type mutationResponsePayload struct {
	Record  any            `json:"record,omitempty"`
	Outcome syncer.Outcome `json:"outcome"`
}

type pendencyRequestPayload struct {
	Pending     string `json:"pending"`
	Observation string `json:"observation"`
}

func (h *httpHandler) handleListMaintenance(c *gin.Context) {
	filter, err := filterFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_filter", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": filter.Maintenance(h.workspace.Document().MaintenanceRecords)})
}

func (h *httpHandler) handleListComponents(c *gin.Context) {
	filter, err := filterFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_filter", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": filter.Components(h.workspace.Document().ComponentReplacements)})
}

func (h *httpHandler) handleClients(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"clients": records.Clients(h.workspace.Document())})
}

func (h *httpHandler) handleTechnicians(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"technicians": records.Technicians(h.workspace.Document().MaintenanceRecords)})
}

func (h *httpHandler) handleSummary(c *gin.Context) {
	filter, err := filterFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_filter", "message": err.Error()})
		return
	}
	document := h.workspace.Document()
	c.JSON(http.StatusOK, records.Summarize(filter.Maintenance(document.MaintenanceRecords), filter.Components(document.ComponentReplacements)))
}

func (h *httpHandler) handleCreateMaintenance(c *gin.Context) {
	var draft records.MaintenanceRecord
	if err := c.ShouldBindJSON(&draft); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	created, outcome, err := h.engine.AddMaintenance(c.Request.Context(), h.maintenanceDefaults(draft))
	if err != nil {
		h.writeMutationError(c, "create_maintenance", err)
		return
	}
	h.writeMutation(c, http.StatusCreated, created, outcome)
}

func (h *httpHandler) handleUpdateMaintenance(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var updated records.MaintenanceRecord
	if err := c.ShouldBindJSON(&updated); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	updated.ID = id
	stored, outcome, err := h.engine.UpdateMaintenance(c.Request.Context(), h.maintenanceDefaults(updated))
	if err != nil {
		h.writeMutationError(c, "update_maintenance", err)
		return
	}
	h.writeMutation(c, http.StatusOK, stored, outcome)
}

func (h *httpHandler) handleResolvePendency(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var request pendencyRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	stored, outcome, err := h.engine.ResolvePendency(c.Request.Context(), id, request.Pending, request.Observation)
	if err != nil {
		h.writeMutationError(c, "resolve_pendency", err)
		return
	}
	h.writeMutation(c, http.StatusOK, stored, outcome)
}

func (h *httpHandler) handleDeleteMaintenance(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	outcome, err := h.engine.DeleteMaintenance(c.Request.Context(), id)
	if err != nil {
		h.writeMutationError(c, "delete_maintenance", err)
		return
	}
	h.writeMutation(c, http.StatusOK, nil, outcome)
}

func (h *httpHandler) handleCreateComponent(c *gin.Context) {
	var draft records.ComponentReplacementRecord
	if err := c.ShouldBindJSON(&draft); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	if draft.Date.IsZero() {
		draft.Date = records.NewDate(h.clock())
	}
	created, outcome, err := h.engine.AddComponent(c.Request.Context(), draft)
	if err != nil {
		h.writeMutationError(c, "create_component", err)
		return
	}
	h.writeMutation(c, http.StatusCreated, created, outcome)
}

func (h *httpHandler) handleImport(c *gin.Context) {
	var batch records.Document
	if err := c.ShouldBindJSON(&batch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	if len(batch.MaintenanceRecords) == 0 && len(batch.ComponentReplacements) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "nothing to import"})
		return
	}
	for index := range batch.MaintenanceRecords {
		batch.MaintenanceRecords[index] = h.maintenanceDefaults(batch.MaintenanceRecords[index])
	}
	for index := range batch.ComponentReplacements {
		if batch.ComponentReplacements[index].Date.IsZero() {
			batch.ComponentReplacements[index].Date = records.NewDate(h.clock())
		}
	}

	result, outcome, err := h.engine.Import(c.Request.Context(), batch.MaintenanceRecords, batch.ComponentReplacements)
	if err != nil {
		h.writeMutationError(c, "import", err)
		return
	}
	h.writeMutation(c, http.StatusCreated, result, outcome)
}

// maintenanceDefaults fills the fields the dashboard form leaves empty.
func (h *httpHandler) maintenanceDefaults(record records.MaintenanceRecord) records.MaintenanceRecord {
	if record.Date.IsZero() {
		record.Date = records.NewDate(h.clock())
	}
	if strings.TrimSpace(string(record.Service)) == "" {
		record.Service = records.ServiceCorrective
	}
	return record
}

// writeMutation answers 409 when the publish hit a conflict. The change is stored locally
// either way and record carries it.
func (h *httpHandler) writeMutation(c *gin.Context, code int, record any, outcome syncer.Outcome) {
	if outcome.Kind == syncer.KindConflict {
		c.JSON(http.StatusConflict, gin.H{
			"error":   "conflict",
			"message": outcome.Message,
			"record":  record,
			"outcome": outcome,
		})
		return
	}
	c.JSON(code, mutationResponsePayload{Record: record, Outcome: outcome})
}

func (h *httpHandler) writeMutationError(c *gin.Context, operation string, err error) {
	switch {
	case errors.Is(err, records.ErrInvalidRecord):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_record", "message": err.Error()})
	case errors.Is(err, records.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	default:
		h.logger.Error("record mutation failed", zap.String("operation", operation), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "mutation_failed"})
	}
}

func pathID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_id"})
		return 0, false
	}
	return id, true
}

func filterFromQuery(c *gin.Context) (records.Filter, error) {
	filter := records.Filter{
		Client: strings.TrimSpace(c.Query("client")),
		Status: records.Status(strings.TrimSpace(c.Query("status"))),
	}
	if raw := strings.TrimSpace(c.Query("month")); raw != "" {
		month, err := strconv.Atoi(raw)
		if err != nil || month < 1 || month > 12 {
			return records.Filter{}, errInvalidFilter
		}
		filter.Month = month
	}
	if raw := strings.TrimSpace(c.Query("year")); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			return records.Filter{}, errInvalidFilter
		}
		filter.Year = year
	}
	return filter, nil
}
