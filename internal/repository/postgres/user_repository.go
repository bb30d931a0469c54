package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ammar0101/campus-security-system/internal/domain/entity"
	"github.com/ammar0101/campus-security-system/internal/domain/repository"
	"github.com/lib/pq"
)

type userRepo struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) repository.UserRepository {
	return &userRepo{db: db}
}

const userColumns = `user_id, user_name, email, password, role, status, zone, device_tokens, is_on_duty,
	emergency_contacts, created_at, last_login`

var staffRoles = []string{string(entity.RoleAdmin), string(entity.RoleSecurityStaff)}

func scanUser(row rowScanner) (*entity.User, error) {
	var (
		user      entity.User
		contacts  []byte
		lastLogin sql.NullTime
	)
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.Status,
		&user.Zone,
		pq.Array(&user.DeviceTokens),
		&user.OnDuty,
		&contacts,
		&user.CreatedAt,
		&lastLogin,
	)
	if err != nil {
		return nil, err
	}
	if len(contacts) > 0 {
		if err := json.Unmarshal(contacts, &user.EmergencyContacts); err != nil {
			return nil, fmt.Errorf("failed to decode emergency contacts of %s: %w", user.ID, err)
		}
	}
	user.LastLoginAt = timePtr(lastLogin)
	return &user, nil
}

func (r *userRepo) getOne(ctx context.Context, where string, arg interface{}) (*entity.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return user, err
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*entity.User, error) {
	return r.getOne(ctx, "user_id = $1", id)
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	return r.getOne(ctx, "LOWER(email) = LOWER($1)", email)
}

func (r *userRepo) list(ctx context.Context, query string, args ...interface{}) ([]entity.User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	users := []entity.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

func (r *userRepo) ListActiveByRolesOrIDs(ctx context.Context, roles []entity.UserRole, ids []string) ([]entity.User, error) {
	roleNames := make([]string, len(roles))
	for i, role := range roles {
		roleNames[i] = string(role)
	}
	query := `SELECT ` + userColumns + ` FROM users
	          WHERE status = $1 AND (role = ANY($2) OR user_id = ANY($3))
	          ORDER BY user_id`
	return r.list(ctx, query, entity.UserActive, pq.Array(roleNames), pq.Array(ids))
}

func (r *userRepo) ListOnDutyStaff(ctx context.Context) ([]entity.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
	          WHERE status = $1 AND is_on_duty AND role = ANY($2)
	          ORDER BY user_id`
	return r.list(ctx, query, entity.UserActive, pq.Array(staffRoles))
}

func (r *userRepo) Counts(ctx context.Context) (entity.UserCounts, error) {
	var c entity.UserCounts
	query := `SELECT COUNT(*),
	                 COUNT(*) FILTER (WHERE status = $1),
	                 COUNT(*) FILTER (WHERE status = $1 AND is_on_duty AND role = ANY($2))
	          FROM users`
	err := r.db.QueryRowContext(ctx, query, entity.UserActive, pq.Array(staffRoles)).
		Scan(&c.Total, &c.Active, &c.OnDutyStaff)
	return c, err
}

func (r *userRepo) UpdateLastLogin(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET last_login = NOW() WHERE user_id = $1`, id)
	return err
}
