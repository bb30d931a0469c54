package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ammar0101/campus-security-system/internal/domain/entity"
	"github.com/ammar0101/campus-security-system/internal/domain/repository"
	"github.com/lib/pq"
)

type alertRepo struct {
	db *sql.DB
}

func NewAlertRepository(db *sql.DB) repository.AlertRepository {
	return &alertRepo{db: db}
}

const alertColumns = `alert_id, alert_sender_id, sender_name, sender_role, message, alert_type, severity, status,
	target_audience, requires_acknowledgment, acknowledgment_count, recipient_count, delivery_stats,
	related_incident_id, affected_locations, expires_at, time_sent, cancelled_at, cancel_reason, created_at`

var liveAlertStatuses = []string{string(entity.AlertBroadcasting), string(entity.AlertDelivered)}

func scanAlert(row rowScanner) (*entity.Alert, error) {
	var (
		a           entity.Alert
		audience    []byte
		stats       []byte
		locations   []byte
		cancelledAt sql.NullTime
	)
	err := row.Scan(
		&a.ID,
		&a.SenderID,
		&a.SenderName,
		&a.SenderRole,
		&a.Message,
		&a.Type,
		&a.Severity,
		&a.Status,
		&audience,
		&a.RequiresAcknowledgment,
		&a.AcknowledgmentCount,
		&a.RecipientCount,
		&stats,
		&a.RelatedIncidentID,
		&locations,
		&a.ExpiresAt,
		&a.SentAt,
		&cancelledAt,
		&a.CancelReason,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(audience, &a.Audience); err != nil {
		return nil, fmt.Errorf("failed to decode audience of %s: %w", a.ID, err)
	}
	if len(stats) > 0 {
		if err := json.Unmarshal(stats, &a.DeliveryStats); err != nil {
			return nil, fmt.Errorf("failed to decode delivery stats of %s: %w", a.ID, err)
		}
	}
	if len(locations) > 0 {
		if err := json.Unmarshal(locations, &a.AffectedLocations); err != nil {
			return nil, fmt.Errorf("failed to decode affected locations of %s: %w", a.ID, err)
		}
	}
	a.CancelledAt = timePtr(cancelledAt)
	return &a, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (r *alertRepo) Create(ctx context.Context, a *entity.Alert) error {
	return insertAlert(ctx, r.db, a)
}

func (r *alertRepo) CreateWithRecipients(ctx context.Context, a *entity.Alert, recipients []entity.AlertRecipient) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertAlert(ctx, tx, a); err != nil {
		return err
	}
	if len(recipients) > 0 {
		if _, err := insertRecipients(ctx, tx, recipients); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit alert: %w", err)
	}
	return nil
}

func insertAlert(ctx context.Context, db execer, a *entity.Alert) error {
	audience, err := json.Marshal(a.Audience)
	if err != nil {
		return err
	}
	stats, err := json.Marshal(a.DeliveryStats)
	if err != nil {
		return err
	}
	locations := []byte("[]")
	if len(a.AffectedLocations) > 0 {
		if locations, err = json.Marshal(a.AffectedLocations); err != nil {
			return err
		}
	}

	query := `INSERT INTO alerts (` + alertColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`
	_, err = db.ExecContext(ctx, query,
		a.ID,
		a.SenderID,
		a.SenderName,
		a.SenderRole,
		a.Message,
		a.Type,
		a.Severity,
		a.Status,
		audience,
		a.RequiresAcknowledgment,
		a.AcknowledgmentCount,
		a.RecipientCount,
		stats,
		a.RelatedIncidentID,
		locations,
		a.ExpiresAt,
		a.SentAt,
		a.CancelledAt,
		a.CancelReason,
		a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

func (r *alertRepo) GetByID(ctx context.Context, id string) (*entity.Alert, error) {
	a, err := scanAlert(r.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE alert_id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

func (r *alertRepo) List(ctx context.Context, f entity.AlertFilter) ([]entity.Alert, int, error) {
	c := &conditions{}
	if f.RecipientID != "" {
		c.add(`EXISTS (SELECT 1 FROM alert_recipients ar WHERE ar.alert_id = alerts.alert_id AND ar.alert_receiver_id = $%d)`, f.RecipientID)
	}
	if f.Status != "" {
		c.add("status = $%d", f.Status)
	}
	if f.Severity != "" {
		c.add("severity = $%d", f.Severity)
	}
	if f.Type != "" {
		c.add("alert_type = $%d", f.Type)
	}
	if f.From != nil {
		c.add("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		c.add("created_at <= $%d", *f.To)
	}
	if f.ActiveOnly {
		c.add("status = ANY($%d)", pq.Array(liveAlertStatuses))
		c.add("expires_at > $%d", f.Now)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alerts`+c.where(), c.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count alerts: %w", err)
	}

	query, args := c.page(`SELECT `+alertColumns+` FROM alerts`+c.where()+` ORDER BY created_at DESC`, f.Limit, f.Offset)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	alerts := []entity.Alert{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, 0, err
		}
		alerts = append(alerts, *a)
	}
	return alerts, total, rows.Err()
}

func (r *alertRepo) CountActive(ctx context.Context, now time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM alerts WHERE status = ANY($1) AND expires_at > $2`,
		pq.Array(liveAlertStatuses), now,
	).Scan(&n)
	return n, err
}

func (r *alertRepo) CountBetween(ctx context.Context, from, to *time.Time) (int, error) {
	c := &conditions{}
	if from != nil {
		c.add("created_at >= $%d", *from)
	}
	if to != nil {
		c.add("created_at <= $%d", *to)
	}
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alerts`+c.where(), c.args...).Scan(&n)
	return n, err
}

func (r *alertRepo) UpdateDelivery(ctx context.Context, id string, recipientCount int, stats entity.DeliveryStats) error {
	body, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	// Broadcasting passe à Delivered dès qu'une livraison est confirmée ; un
	// statut terminal posé entre-temps (annulation) n'est jamais écrasé.
	query := `UPDATE alerts
	          SET recipient_count = $2, delivery_stats = $3,
	              status = CASE WHEN status = $4 AND $5 > 0 THEN $6 ELSE status END
	          WHERE alert_id = $1`
	_, err = r.db.ExecContext(ctx, query, id, recipientCount, body,
		entity.AlertBroadcasting, stats.Delivered, entity.AlertDelivered)
	if err != nil {
		return fmt.Errorf("failed to update alert delivery: %w", err)
	}
	return nil
}

func (r *alertRepo) Cancel(ctx context.Context, id string, at time.Time, reason string) (bool, error) {
	query := `UPDATE alerts SET status = $2, cancelled_at = $3, cancel_reason = $4
	          WHERE alert_id = $1 AND status NOT IN ($5, $6)`
	res, err := r.db.ExecContext(ctx, query, id, entity.AlertCancelled, at, reason,
		entity.AlertCancelled, entity.AlertArchived)
	if err != nil {
		return false, fmt.Errorf("failed to cancel alert: %w", err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *alertRepo) ArchiveExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE alerts SET status = $1 WHERE status = ANY($2) AND expires_at <= $3`,
		entity.AlertArchived, pq.Array(liveAlertStatuses), now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to archive expired alerts: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *alertRepo) IncrementAcknowledgmentCount(ctx context.Context, id string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`UPDATE alerts SET acknowledgment_count = acknowledgment_count + 1 WHERE alert_id = $1 RETURNING acknowledgment_count`,
		id,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to increment acknowledgment count: %w", err)
	}
	return count, nil
}
