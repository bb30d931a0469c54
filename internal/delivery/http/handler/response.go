package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ammar0101/campus-security-system/internal/delivery/http/middleware"
	"github.com/ammar0101/campus-security-system/internal/domain/apperr"
	"github.com/ammar0101/campus-security-system/internal/domain/entity"
	"github.com/gin-gonic/gin"
)

func respond(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

func fail(c *gin.Context, status int, code, message string, details interface{}) {
	body := gin.H{"code": code, "message": message}
	if details != nil {
		body["details"] = details
	}
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": body})
}

// writeError traduit les erreurs métier en statut HTTP et code machine.
func writeError(c *gin.Context, err error) {
	var ve *apperr.ValidationError
	var te *apperr.InvalidTransitionError
	var we *apperr.CancelWindowExpiredError

	switch {
	case errors.As(err, &ve):
		fail(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), gin.H{"field": ve.Field})
	case errors.As(err, &te):
		details := gin.H{"current_status": te.From, "requested_status": te.To}
		if te.Entity == "incident" {
			details["allowed"] = entity.AllowedTransitions(entity.IncidentStatus(te.From))
		}
		fail(c, http.StatusConflict, "INVALID_TRANSITION", err.Error(), details)
	case errors.As(err, &we):
		fail(c, http.StatusBadRequest, "CANCEL_WINDOW_EXPIRED", err.Error(), gin.H{
			"window_minutes":  we.Window.Minutes(),
			"elapsed_minutes": float64(int(we.Elapsed.Minutes()*100)) / 100,
		})
	case errors.Is(err, apperr.ErrRecipientNotFound):
		fail(c, http.StatusNotFound, "RECIPIENT_NOT_FOUND", err.Error(), nil)
	case errors.Is(err, apperr.ErrAlreadyAcknowledged):
		fail(c, http.StatusConflict, "ALREADY_ACKNOWLEDGED", err.Error(), nil)
	case errors.Is(err, apperr.ErrForbidden):
		fail(c, http.StatusForbidden, "FORBIDDEN", err.Error(), nil)
	case errors.Is(err, apperr.ErrNotFound):
		fail(c, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	default:
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error", nil)
	}
}

func bindError(c *gin.Context, err error) {
	fail(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
}

// identity est toujours présent derrière AuthMiddleware.
func identity(c *gin.Context) entity.Identity {
	id, _ := middleware.IdentityFrom(c)
	return id
}

// queryTime accepte RFC 3339 ou une date AAAA-MM-JJ.
func queryTime(c *gin.Context, name string) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, apperr.Validation(name, "expected RFC 3339 timestamp or YYYY-MM-DD date")
}

func queryInt(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperr.Validation(name, "expected a positive integer")
	}
	return n, nil
}

// page lit limit/offset, ou page/limit à la manière des clients mobiles.
func page(c *gin.Context) (limit, offset int, err error) {
	if limit, err = queryInt(c, "limit"); err != nil {
		return 0, 0, err
	}
	if offset, err = queryInt(c, "offset"); err != nil {
		return 0, 0, err
	}
	p, err := queryInt(c, "page")
	if err != nil {
		return 0, 0, err
	}
	if p > 1 && limit > 0 {
		offset = (p - 1) * limit
	}
	return limit, offset, nil
}

func dateRange(c *gin.Context) (from, to *time.Time, err error) {
	if from, err = queryTime(c, "from"); err != nil {
		return nil, nil, err
	}
	if to, err = queryTime(c, "to"); err != nil {
		return nil, nil, err
	}
	return from, to, nil
}
