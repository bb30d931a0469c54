package handler

import (
	"net/http"

	"github.com/ammar0101/campus-security-system/internal/service"
	"github.com/gin-gonic/gin"
)

type AnalyticsHandler struct {
	analyticsService service.AnalyticsService
}

func NewAnalyticsHandler(as service.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analyticsService: as}
}

func (h *AnalyticsHandler) filter(c *gin.Context) (service.AnalyticsFilter, bool) {
	from, to, err := dateRange(c)
	if err != nil {
		writeError(c, err)
		return service.AnalyticsFilter{}, false
	}
	return service.AnalyticsFilter{From: from, To: to}, true
}

// Dashboard retourne les indicateurs agrégés incidents / alertes / utilisateurs
func (h *AnalyticsHandler) Dashboard(c *gin.Context) {
	f, ok := h.filter(c)
	if !ok {
		return
	}
	out, err := h.analyticsService.Dashboard(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, out)
}

func (h *AnalyticsHandler) IncidentTrend(c *gin.Context) {
	f, ok := h.filter(c)
	if !ok {
		return
	}
	out, err := h.analyticsService.IncidentTrend(c.Request.Context(), service.TrendPeriod(c.DefaultQuery("period", "daily")), f)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"period": c.DefaultQuery("period", "daily"), "trend": out})
}

func (h *AnalyticsHandler) Hotspots(c *gin.Context) {
	f, ok := h.filter(c)
	if !ok {
		return
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		writeError(c, err)
		return
	}
	out, err := h.analyticsService.Hotspots(c.Request.Context(), limit, f)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, out)
}

func (h *AnalyticsHandler) Export(c *gin.Context) {
	f, ok := h.filter(c)
	if !ok {
		return
	}
	out, err := h.analyticsService.Export(c.Request.Context(), service.ExportFormat(c.DefaultQuery("format", "json")), f, identity(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+out.FileName+`"`)
	c.Data(http.StatusOK, out.ContentType, out.Data)
}
