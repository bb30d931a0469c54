package handler

import (
	"net/http"

	"github.com/ammar0101/campus-security-system/internal/domain/entity"
	"github.com/ammar0101/campus-security-system/internal/service"
	"github.com/gin-gonic/gin"
)

type IncidentHandler struct {
	incidentService service.IncidentService
	storageService  service.StorageService
}

// NewIncidentHandler : storageService peut être nil quand aucun stockage
// objet n'est configuré.
func NewIncidentHandler(is service.IncidentService, ss service.StorageService) *IncidentHandler {
	return &IncidentHandler{
		incidentService: is,
		storageService:  ss,
	}
}

func (h *IncidentHandler) Create(c *gin.Context) {
	var req service.CreateIncidentInput
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	inc, err := h.incidentService.Create(c.Request.Context(), identity(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusCreated, inc)
}

func (h *IncidentHandler) Panic(c *gin.Context) {
	var req service.PanicInput
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	inc, err := h.incidentService.ActivatePanic(c.Request.Context(), identity(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusCreated, gin.H{
		"incident": inc,
		"message":  "Emergency alert sent. Security staff have been notified.",
	})
}

func (h *IncidentHandler) List(c *gin.Context) {
	limit, offset, err := page(c)
	if err != nil {
		writeError(c, err)
		return
	}
	from, to, err := dateRange(c)
	if err != nil {
		writeError(c, err)
		return
	}

	filter := entity.IncidentFilter{
		Status:     entity.IncidentStatus(c.Query("status")),
		Type:       entity.IncidentType(c.Query("type")),
		Priority:   entity.Priority(c.Query("priority")),
		AssignedTo: c.Query("assigned_to"),
		Search:     c.Query("search"),
		From:       from,
		To:         to,
		Limit:      limit,
		Offset:     offset,
	}
	out, err := h.incidentService.List(c.Request.Context(), filter, identity(c))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, out)
}

func (h *IncidentHandler) ListMine(c *gin.Context) {
	limit, offset, err := page(c)
	if err != nil {
		writeError(c, err)
		return
	}
	out, err := h.incidentService.ListMine(c.Request.Context(), identity(c), limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, out)
}

func (h *IncidentHandler) Get(c *gin.Context) {
	inc, err := h.incidentService.Get(c.Request.Context(), c.Param("id"), identity(c))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{
		"incident":            inc,
		"sender":              inc.Sender(),
		"allowed_transitions": entity.AllowedTransitions(inc.Status),
	})
}

func (h *IncidentHandler) UpdateStatus(c *gin.Context) {
	var req service.TransitionInput
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	inc, err := h.incidentService.Transition(c.Request.Context(), c.Param("id"), req, identity(c))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, inc)
}

func (h *IncidentHandler) Cancel(c *gin.Context) {
	var req struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	inc, err := h.incidentService.Cancel(c.Request.Context(), c.Param("id"), req.Reason, identity(c))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, inc)
}

func (h *IncidentHandler) GetUploadURL(c *gin.Context) {
	if h.storageService == nil {
		fail(c, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "media storage is not configured", nil)
		return
	}
	fileName := c.Query("file_name")
	if fileName == "" {
		fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "file_name query param is required", gin.H{"field": "file_name"})
		return
	}

	out, err := h.storageService.GenerateUploadURL(c.Request.Context(), fileName)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, out)
}

func (h *IncidentHandler) GetMediaURL(c *gin.Context) {
	if h.storageService == nil {
		fail(c, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "media storage is not configured", nil)
		return
	}

	out, err := h.storageService.GenerateDownloadURL(c.Request.Context(), c.Query("uri"))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, out)
}
