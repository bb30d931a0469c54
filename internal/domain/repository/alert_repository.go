package repository

import (
	"context"
	"time"

	"github.com/ammar0101/campus-security-system/internal/domain/entity"
)

type AlertRepository interface {
	Create(ctx context.Context, alert *entity.Alert) error
	// CreateWithRecipients enregistre l'alerte et ses destinataires de façon
	// atomique : en cas d'échec, aucune des deux n'est visible.
	CreateWithRecipients(ctx context.Context, alert *entity.Alert, recipients []entity.AlertRecipient) error
	GetByID(ctx context.Context, id string) (*entity.Alert, error)
	List(ctx context.Context, filter entity.AlertFilter) ([]entity.Alert, int, error)
	CountActive(ctx context.Context, now time.Time) (int, error)
	CountBetween(ctx context.Context, from, to *time.Time) (int, error)
	UpdateDelivery(ctx context.Context, id string, recipientCount int, stats entity.DeliveryStats) error
	// Cancel n'a d'effet que sur une alerte non terminale.
	Cancel(ctx context.Context, id string, at time.Time, reason string) (bool, error)
	ArchiveExpired(ctx context.Context, now time.Time) (int, error)
	// IncrementAcknowledgmentCount est un incrément atomique côté stockage.
	IncrementAcknowledgmentCount(ctx context.Context, id string) (int, error)
}

type AlertRecipientRepository interface {
	// CreateRecipients ignore les paires (alerte, destinataire) déjà présentes.
	CreateRecipients(ctx context.Context, recipients []entity.AlertRecipient) (int, error)
	GetRecipient(ctx context.Context, alertID, recipientID string) (*entity.AlertRecipient, error)
	// ListForRecipient indexe par alert_id les lignes du destinataire pour les alertes données.
	ListForRecipient(ctx context.Context, recipientID string, alertIDs []string) (map[string]entity.AlertRecipient, error)
	// MarkAcknowledged ne réussit que si acknowledged_at est encore NULL.
	MarkAcknowledged(ctx context.Context, alertID, recipientID string, at time.Time) (bool, error)
	// MarkRead ne réussit que si read_at est encore NULL.
	MarkRead(ctx context.Context, alertID, recipientID string, at time.Time) (bool, error)
	MarkDelivery(ctx context.Context, alertID string, recipientIDs []string, status entity.DeliveryStatus, at time.Time, reason string) error
}
