package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ammar0101/campus-security-system/internal/domain/entity"
	"github.com/ammar0101/campus-security-system/internal/domain/repository"
	"github.com/lib/pq"
)

type alertRecipientRepo struct {
	db *sql.DB
}

func NewAlertRecipientRepository(db *sql.DB) repository.AlertRecipientRepository {
	return &alertRecipientRepo{db: db}
}

const recipientColumns = `alert_id, alert_receiver_id, delivery_status, delivered_at, read_at, acknowledged_at, failure_reason, created_at`

var allDeliveryStatuses = []entity.DeliveryStatus{
	entity.DeliveryPending,
	entity.DeliverySent,
	entity.DeliveryDelivered,
	entity.DeliveryRead,
	entity.DeliveryAcknowledged,
	entity.DeliveryFailed,
}

// predecessors liste les statuts depuis lesquels to est atteignable.
func predecessors(to entity.DeliveryStatus) []string {
	var out []string
	for _, s := range allDeliveryStatuses {
		if s.CanAdvance(to) {
			out = append(out, string(s))
		}
	}
	return out
}

func scanRecipient(row rowScanner) (*entity.AlertRecipient, error) {
	var (
		rec                               entity.AlertRecipient
		deliveredAt, readAt, acknowledged sql.NullTime
	)
	err := row.Scan(
		&rec.AlertID,
		&rec.RecipientID,
		&rec.DeliveryStatus,
		&deliveredAt,
		&readAt,
		&acknowledged,
		&rec.FailureReason,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.DeliveredAt = timePtr(deliveredAt)
	rec.ReadAt = timePtr(readAt)
	rec.AcknowledgedAt = timePtr(acknowledged)
	return &rec, nil
}

func (r *alertRecipientRepo) CreateRecipients(ctx context.Context, recipients []entity.AlertRecipient) (int, error) {
	if len(recipients) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	inserted, err := insertRecipients(ctx, tx, recipients)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit recipients: %w", err)
	}
	return inserted, nil
}

// insertRecipients ignore les paires (alerte, destinataire) déjà présentes.
func insertRecipients(ctx context.Context, tx *sql.Tx, recipients []entity.AlertRecipient) (int, error) {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO alert_recipients (alert_id, alert_receiver_id, delivery_status, created_at)
	          VALUES ($1, $2, $3, $4)
	          ON CONFLICT (alert_id, alert_receiver_id) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare recipient insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, rec := range recipients {
		res, err := stmt.ExecContext(ctx, rec.AlertID, rec.RecipientID, rec.DeliveryStatus, rec.CreatedAt)
		if err != nil {
			return 0, fmt.Errorf("failed to insert recipient %s: %w", rec.RecipientID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		inserted += int(n)
	}
	return inserted, nil
}

func (r *alertRecipientRepo) GetRecipient(ctx context.Context, alertID, recipientID string) (*entity.AlertRecipient, error) {
	query := `SELECT ` + recipientColumns + ` FROM alert_recipients WHERE alert_id = $1 AND alert_receiver_id = $2`
	rec, err := scanRecipient(r.db.QueryRowContext(ctx, query, alertID, recipientID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

func (r *alertRecipientRepo) ListForRecipient(ctx context.Context, recipientID string, alertIDs []string) (map[string]entity.AlertRecipient, error) {
	out := make(map[string]entity.AlertRecipient, len(alertIDs))
	if len(alertIDs) == 0 {
		return out, nil
	}
	query := `SELECT ` + recipientColumns + ` FROM alert_recipients WHERE alert_receiver_id = $1 AND alert_id = ANY($2)`
	rows, err := r.db.QueryContext(ctx, query, recipientID, pq.Array(alertIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query recipient rows: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanRecipient(rows)
		if err != nil {
			return nil, err
		}
		out[rec.AlertID] = *rec
	}
	return out, rows.Err()
}

func (r *alertRecipientRepo) MarkAcknowledged(ctx context.Context, alertID, recipientID string, at time.Time) (bool, error) {
	query := `UPDATE alert_recipients SET acknowledged_at = $3, delivery_status = $4
	          WHERE alert_id = $1 AND alert_receiver_id = $2 AND acknowledged_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, alertID, recipientID, at, entity.DeliveryAcknowledged)
	if err != nil {
		return false, fmt.Errorf("failed to mark acknowledgment: %w", err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *alertRecipientRepo) MarkRead(ctx context.Context, alertID, recipientID string, at time.Time) (bool, error) {
	query := `UPDATE alert_recipients
	          SET read_at = $3,
	              delivery_status = CASE WHEN delivery_status = ANY($4) THEN $5 ELSE delivery_status END
	          WHERE alert_id = $1 AND alert_receiver_id = $2 AND read_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, alertID, recipientID, at,
		pq.Array(predecessors(entity.DeliveryRead)), entity.DeliveryRead)
	if err != nil {
		return false, fmt.Errorf("failed to mark read: %w", err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *alertRecipientRepo) MarkDelivery(ctx context.Context, alertID string, recipientIDs []string, status entity.DeliveryStatus, at time.Time, reason string) error {
	if len(recipientIDs) == 0 {
		return nil
	}
	set := "delivery_status = $3"
	args := []interface{}{alertID, pq.Array(recipientIDs), status, pq.Array(predecessors(status))}
	switch status {
	case entity.DeliveryDelivered:
		args = append(args, at)
		set += ", delivered_at = $5"
	case entity.DeliveryFailed:
		args = append(args, reason)
		set += ", failure_reason = $5"
	}
	query := `UPDATE alert_recipients SET ` + set + `
	          WHERE alert_id = $1 AND alert_receiver_id = ANY($2) AND delivery_status = ANY($4)`
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update delivery status: %w", err)
	}
	return nil
}
