package handler

import (
	"net/http"

	"github.com/ammar0101/campus-security-system/internal/domain/entity"
	"github.com/ammar0101/campus-security-system/internal/service"
	"github.com/gin-gonic/gin"
)

type AlertHandler struct {
	alertService service.AlertService
}

func NewAlertHandler(as service.AlertService) *AlertHandler {
	return &AlertHandler{alertService: as}
}

func (h *AlertHandler) Create(c *gin.Context) {
	var req service.CreateAlertInput
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	out, err := h.alertService.Create(c.Request.Context(), identity(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusCreated, out)
}

func (h *AlertHandler) List(c *gin.Context) {
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

	filter := entity.AlertFilter{
		Status:     entity.AlertStatus(c.Query("status")),
		Severity:   entity.Severity(c.Query("severity")),
		Type:       entity.AlertType(c.Query("type")),
		ActiveOnly: c.Query("active") == "true",
		From:       from,
		To:         to,
		Limit:      limit,
		Offset:     offset,
	}
	out, err := h.alertService.List(c.Request.Context(), filter, identity(c))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, out)
}

func (h *AlertHandler) Get(c *gin.Context) {
	out, err := h.alertService.Get(c.Request.Context(), c.Param("id"), identity(c))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, out)
}

func (h *AlertHandler) Acknowledge(c *gin.Context) {
	out, err := h.alertService.Acknowledge(c.Request.Context(), c.Param("id"), identity(c))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, out)
}

func (h *AlertHandler) Cancel(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	// corps facultatif
	_ = c.ShouldBindJSON(&req)

	out, err := h.alertService.Cancel(c.Request.Context(), c.Param("id"), req.Reason, identity(c))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, out)
}
