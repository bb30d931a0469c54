// Package apperr regroupe les erreurs métier renvoyées par les services.
// Elles sont déterministes et destinées à l'appelant : aucune n'est rejouée.
package apperr

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrForbidden           = errors.New("forbidden")
	ErrRecipientNotFound   = errors.New("you are not a recipient of this alert")
	ErrAlreadyAcknowledged = errors.New("alert already acknowledged")
)

// ValidationError signale un champ manquant ou mal formé.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func Validation(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// InvalidTransitionError signale une transition absente du graphe de statuts.
type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot change %s status from %s to %s", e.Entity, e.From, e.To)
}

// CancelWindowExpiredError est renvoyée quand un non-admin tente d'annuler
// un incident hors de la fenêtre d'annulation.
type CancelWindowExpiredError struct {
	Window  time.Duration
	Elapsed time.Duration
}

func (e *CancelWindowExpiredError) Error() string {
	return fmt.Sprintf("incidents can only be cancelled within %s of creation (%s elapsed)",
		e.Window, e.Elapsed.Truncate(time.Second))
}

func NotFound(entity, id string) error {
	return fmt.Errorf("%s %s: %w", entity, id, ErrNotFound)
}

func Forbidden(reason string) error {
	return fmt.Errorf("%s: %w", reason, ErrForbidden)
}

// Code retourne le code machine associé à une erreur métier, ou "" si
// l'erreur n'en fait pas partie.
func Code(err error) string {
	var ve *ValidationError
	var te *InvalidTransitionError
	var we *CancelWindowExpiredError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		return "VALIDATION_ERROR"
	case errors.As(err, &te):
		return "INVALID_TRANSITION"
	case errors.As(err, &we):
		return "CANCEL_WINDOW_EXPIRED"
	case errors.Is(err, ErrRecipientNotFound):
		return "RECIPIENT_NOT_FOUND"
	case errors.Is(err, ErrAlreadyAcknowledged):
		return "ALREADY_ACKNOWLEDGED"
	case errors.Is(err, ErrForbidden):
		return "FORBIDDEN"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	}
	return ""
}
