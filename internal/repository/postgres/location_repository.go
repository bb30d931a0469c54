package postgres

import (
	"context"
	"database/sql"

	"github.com/ammar0101/campus-security-system/internal/domain/entity"
	"github.com/ammar0101/campus-security-system/internal/domain/repository"
)

type locationRepo struct {
	db *sql.DB
}

func NewLocationRepository(db *sql.DB) repository.LocationRepository {
	return &locationRepo{db: db}
}

const locationColumns = `location_id, building, floor, room, latitude, longitude, map_location, zone, location_type, created_at`

func scanLocation(row rowScanner, loc *entity.Location) error {
	return row.Scan(
		&loc.ID,
		&loc.Building,
		&loc.Floor,
		&loc.Room,
		&loc.Latitude,
		&loc.Longitude,
		&loc.MapLocation,
		&loc.Zone,
		&loc.LocationType,
		&loc.CreatedAt,
	)
}

func (r *locationRepo) GetAll(ctx context.Context) ([]entity.Location, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+locationColumns+` FROM locations ORDER BY location_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	locations := []entity.Location{}
	for rows.Next() {
		var loc entity.Location
		if err := scanLocation(rows, &loc); err != nil {
			return nil, err
		}
		locations = append(locations, loc)
	}
	return locations, rows.Err()
}

func (r *locationRepo) GetByID(ctx context.Context, id string) (*entity.Location, error) {
	loc := &entity.Location{}
	err := scanLocation(r.db.QueryRowContext(ctx, `SELECT `+locationColumns+` FROM locations WHERE location_id = $1`, id), loc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return loc, err
}

func (r *locationRepo) Create(ctx context.Context, loc *entity.Location) error {
	query := `INSERT INTO locations (` + locationColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.db.ExecContext(ctx, query,
		loc.ID, loc.Building, loc.Floor, loc.Room, loc.Latitude, loc.Longitude,
		loc.MapLocation, loc.Zone, loc.LocationType, loc.CreatedAt,
	)
	return err
}

type auditLogRepo struct {
	db *sql.DB
}

func NewAuditLogRepository(db *sql.DB) repository.AuditLogRepository {
	return &auditLogRepo{db: db}
}

func (r *auditLogRepo) Create(ctx context.Context, log *entity.AuditLog) error {
	query := `INSERT INTO audit_logs (audit_id, actor_id, action_type, target_type, target_id, outcome, details, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.ExecContext(ctx, query,
		log.ID, log.ActorID, log.ActionType, log.TargetType, log.TargetID, log.Outcome, log.Details, log.CreatedAt)
	return err
}

func (r *auditLogRepo) GetAll(ctx context.Context, limit int) ([]entity.AuditLog, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT audit_id, actor_id, action_type, target_type, target_id, outcome, details, created_at
	          FROM audit_logs ORDER BY created_at DESC LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []entity.AuditLog{}
	for rows.Next() {
		var l entity.AuditLog
		if err := rows.Scan(&l.ID, &l.ActorID, &l.ActionType, &l.TargetType, &l.TargetID, &l.Outcome, &l.Details, &l.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
