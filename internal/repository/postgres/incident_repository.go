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

type incidentRepo struct {
	db *sql.DB
}

func NewIncidentRepository(db *sql.DB) repository.IncidentRepository {
	return &incidentRepo{db: db}
}

const incidentColumns = `incident_id, incident_sender_id, sender_name, sender_role, sender_email, is_anonymous,
	incident_type, description, status, priority, latitude, longitude, h3_index, location_id, map_location,
	media_urls, assigned_to, response_time, resolution_notes, escalation_reason, status_history,
	date_time, updated_at, resolved_at, cancelled_at, cancel_reason`

var terminalIncidentStatuses = []string{
	string(entity.IncidentResolved),
	string(entity.IncidentClosed),
	string(entity.IncidentRejected),
	string(entity.IncidentCancelled),
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanIncident(row rowScanner) (*entity.Incident, error) {
	var (
		inc          entity.Incident
		lat, lon     sql.NullFloat64
		responseTime sql.NullFloat64
		history      []byte
		resolvedAt   sql.NullTime
		cancelledAt  sql.NullTime
	)
	err := row.Scan(
		&inc.ID,
		&inc.ReporterID,
		&inc.ReporterName,
		&inc.ReporterRole,
		&inc.ReporterEmail,
		&inc.IsAnonymous,
		&inc.Type,
		&inc.Description,
		&inc.Status,
		&inc.Priority,
		&lat,
		&lon,
		&inc.H3Index,
		&inc.LocationID,
		&inc.LocationLabel,
		pq.Array(&inc.MediaURLs),
		&inc.AssignedTo,
		&responseTime,
		&inc.ResolutionNotes,
		&inc.EscalationReason,
		&history,
		&inc.CreatedAt,
		&inc.UpdatedAt,
		&resolvedAt,
		&cancelledAt,
		&inc.CancelReason,
	)
	if err != nil {
		return nil, err
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &inc.History); err != nil {
			return nil, fmt.Errorf("failed to decode status history of %s: %w", inc.ID, err)
		}
	}
	inc.Latitude = floatPtr(lat)
	inc.Longitude = floatPtr(lon)
	inc.ResponseTime = floatPtr(responseTime)
	inc.ResolvedAt = timePtr(resolvedAt)
	inc.CancelledAt = timePtr(cancelledAt)
	return &inc, nil
}

func (r *incidentRepo) Create(ctx context.Context, inc *entity.Incident) error {
	history, err := json.Marshal(inc.History)
	if err != nil {
		return fmt.Errorf("failed to encode status history: %w", err)
	}
	query := `INSERT INTO incidents (` + incidentColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)`
	_, err = r.db.ExecContext(ctx, query,
		inc.ID,
		inc.ReporterID,
		inc.ReporterName,
		inc.ReporterRole,
		inc.ReporterEmail,
		inc.IsAnonymous,
		inc.Type,
		inc.Description,
		inc.Status,
		inc.Priority,
		nullFloat(inc.Latitude),
		nullFloat(inc.Longitude),
		inc.H3Index,
		inc.LocationID,
		inc.LocationLabel,
		pq.Array(inc.MediaURLs),
		inc.AssignedTo,
		nullFloat(inc.ResponseTime),
		inc.ResolutionNotes,
		inc.EscalationReason,
		history,
		inc.CreatedAt,
		inc.UpdatedAt,
		inc.ResolvedAt,
		inc.CancelledAt,
		inc.CancelReason,
	)
	if err != nil {
		return fmt.Errorf("failed to insert incident: %w", err)
	}
	return nil
}

func (r *incidentRepo) GetByID(ctx context.Context, id string) (*entity.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE incident_id = $1`
	inc, err := scanIncident(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return inc, err
}

func incidentConditions(f entity.IncidentFilter) *conditions {
	c := &conditions{}
	if f.ReporterID != "" {
		c.add("incident_sender_id = $%d", f.ReporterID)
	}
	if f.Status != "" {
		c.add("status = $%d", f.Status)
	}
	if f.Type != "" {
		c.add("incident_type = $%d", f.Type)
	}
	if f.Priority != "" {
		c.add("priority = $%d", f.Priority)
	}
	if f.AssignedTo != "" {
		c.add("assigned_to = $%d", f.AssignedTo)
	}
	if f.From != nil {
		c.add("date_time >= $%d", *f.From)
	}
	if f.To != nil {
		c.add("date_time <= $%d", *f.To)
	}
	if f.Search != "" {
		c.add("(description ILIKE $%[1]d OR map_location ILIKE $%[1]d OR incident_type ILIKE $%[1]d)", "%"+f.Search+"%")
	}
	return c
}

func (r *incidentRepo) List(ctx context.Context, filter entity.IncidentFilter) ([]entity.Incident, int, error) {
	c := incidentConditions(filter)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM incidents`+c.where(), c.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count incidents: %w", err)
	}

	query, args := c.page(`SELECT `+incidentColumns+` FROM incidents`+c.where()+` ORDER BY date_time DESC`, filter.Limit, filter.Offset)
	items, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *incidentRepo) query(ctx context.Context, query string, args ...interface{}) ([]entity.Incident, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query incidents: %w", err)
	}
	defer rows.Close()

	incidents := []entity.Incident{}
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		incidents = append(incidents, *inc)
	}
	return incidents, rows.Err()
}

func (r *incidentRepo) CountByStatus(ctx context.Context, reporterID string) (map[entity.IncidentStatus]int, error) {
	c := &conditions{}
	if reporterID != "" {
		c.add("incident_sender_id = $%d", reporterID)
	}
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM incidents`+c.where()+` GROUP BY status`, c.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count incidents by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[entity.IncidentStatus]int)
	for rows.Next() {
		var status entity.IncidentStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (r *incidentRepo) CountOpenCritical(ctx context.Context, reporterID string) (int, error) {
	c := &conditions{}
	c.add("priority = $%d", entity.PriorityCritical)
	c.add("status <> ALL($%d)", pq.Array(terminalIncidentStatuses))
	if reporterID != "" {
		c.add("incident_sender_id = $%d", reporterID)
	}
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM incidents`+c.where(), c.args...).Scan(&n)
	return n, err
}

func (r *incidentRepo) UpdateStatus(ctx context.Context, inc *entity.Incident, expected entity.IncidentStatus) (bool, error) {
	history, err := json.Marshal(inc.History)
	if err != nil {
		return false, fmt.Errorf("failed to encode status history: %w", err)
	}
	// La condition sur le statut attendu évite d'écraser une transition concurrente
	query := `UPDATE incidents
	          SET status = $2, status_history = $3, response_time = $4, assigned_to = $5,
	              resolution_notes = $6, escalation_reason = $7, resolved_at = $8,
	              cancelled_at = $9, cancel_reason = $10, updated_at = $11
	          WHERE incident_id = $1 AND status = $12`
	res, err := r.db.ExecContext(ctx, query,
		inc.ID,
		inc.Status,
		history,
		nullFloat(inc.ResponseTime),
		inc.AssignedTo,
		inc.ResolutionNotes,
		inc.EscalationReason,
		inc.ResolvedAt,
		inc.CancelledAt,
		inc.CancelReason,
		inc.UpdatedAt,
		expected,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update incident status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *incidentRepo) ListBetween(ctx context.Context, from, to *time.Time) ([]entity.Incident, error) {
	c := &conditions{}
	if from != nil {
		c.add("date_time >= $%d", *from)
	}
	if to != nil {
		c.add("date_time <= $%d", *to)
	}
	return r.query(ctx, `SELECT `+incidentColumns+` FROM incidents`+c.where()+` ORDER BY date_time DESC`, c.args...)
}
