package handler

import (
	"net/http"

	"github.com/ammar0101/campus-security-system/internal/service"
	"github.com/gin-gonic/gin"
)

type AdminHandler struct {
	auditService service.AuditService
}

func NewAdminHandler(as service.AuditService) *AdminHandler {
	return &AdminHandler{auditService: as}
}

// AuditLogs retourne les dernières entrées du journal d'audit
func (h *AdminHandler) AuditLogs(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		writeError(c, err)
		return
	}
	if limit == 0 || limit > 500 {
		limit = 100
	}

	logs, err := h.auditService.Recent(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"logs": logs, "count": len(logs)})
}
