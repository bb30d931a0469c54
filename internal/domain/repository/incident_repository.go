package repository

import (
	"context"
	"time"

	"github.com/ammar0101/campus-security-system/internal/domain/entity"
)

// IncidentRepository persiste les incidents. GetByID retourne (nil, nil)
// quand l'incident n'existe pas.
type IncidentRepository interface {
	Create(ctx context.Context, incident *entity.Incident) error
	GetByID(ctx context.Context, id string) (*entity.Incident, error)
	List(ctx context.Context, filter entity.IncidentFilter) ([]entity.Incident, int, error)
	CountByStatus(ctx context.Context, reporterID string) (map[entity.IncidentStatus]int, error)
	CountOpenCritical(ctx context.Context, reporterID string) (int, error)
	// UpdateStatus n'écrit que si le statut stocké vaut encore expected.
	UpdateStatus(ctx context.Context, incident *entity.Incident, expected entity.IncidentStatus) (bool, error)
	ListBetween(ctx context.Context, from, to *time.Time) ([]entity.Incident, error)
}

type LocationRepository interface {
	GetAll(ctx context.Context) ([]entity.Location, error)
	GetByID(ctx context.Context, id string) (*entity.Location, error)
	Create(ctx context.Context, location *entity.Location) error
}

type AuditLogRepository interface {
	Create(ctx context.Context, log *entity.AuditLog) error
	GetAll(ctx context.Context, limit int) ([]entity.AuditLog, error)
}
