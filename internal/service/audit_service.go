package service

import (
	"context"
	"time"

	"github.com/ammar0101/campus-security-system/internal/domain/entity"
	"github.com/ammar0101/campus-security-system/internal/domain/repository"
	"github.com/ammar0101/campus-security-system/internal/platform/dispatch"
	"github.com/ammar0101/campus-security-system/internal/platform/idgen"
	"go.uber.org/zap"
)

const (
	ActionIncidentCreate     = "INCIDENT_CREATE"
	ActionIncidentPanic      = "INCIDENT_PANIC"
	ActionIncidentTransition = "INCIDENT_STATUS_UPDATE"
	ActionIncidentCancel     = "INCIDENT_CANCEL"
	ActionAlertCreate        = "ALERT_CREATE"
	ActionAlertAcknowledge   = "ALERT_ACKNOWLEDGE"
	ActionAlertCancel        = "ALERT_CANCEL"
	ActionAlertExpire        = "ALERT_EXPIRE"
	ActionUserLogin          = "USER_LOGIN"

	OutcomeSuccess = "success"
)

// AuditService est le puits d'audit : Record ne bloque jamais et n'échoue
// jamais du point de vue de l'appelant.
type AuditService interface {
	Record(actorID, action, targetType, targetID, details string)
	Recent(ctx context.Context, limit int) ([]entity.AuditLog, error)
}

type auditService struct {
	repo       repository.AuditLogRepository
	dispatcher dispatch.Submitter
	logger     *zap.Logger
}

func NewAuditService(repo repository.AuditLogRepository, dispatcher dispatch.Submitter, logger *zap.Logger) AuditService {
	return &auditService{repo: repo, dispatcher: dispatcher, logger: logger}
}

func (s *auditService) Record(actorID, action, targetType, targetID, details string) {
	entry := &entity.AuditLog{
		ID:         idgen.Audit(),
		ActorID:    actorID,
		ActionType: action,
		TargetType: targetType,
		TargetID:   targetID,
		Outcome:    OutcomeSuccess,
		Details:    details,
		CreatedAt:  time.Now().UTC(),
	}
	ok := s.dispatcher.Submit(dispatch.Task{
		Name: "audit " + action + ":" + targetID,
		Run: func(ctx context.Context) error {
			return s.repo.Create(ctx, entry)
		},
	})
	if !ok {
		s.logger.Warn("audit entry dropped", zap.String("action", action), zap.String("target_id", targetID))
	}
}

func (s *auditService) Recent(ctx context.Context, limit int) ([]entity.AuditLog, error) {
	return s.repo.GetAll(ctx, limit)
}
