package repository

import (
	"context"

	"github.com/ammar0101/campus-security-system/internal/domain/entity"
)

type UserRepository interface {
	GetByID(ctx context.Context, id string) (*entity.User, error)
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	// ListActiveByRolesOrIDs retourne les utilisateurs actifs dont le rôle
	// figure dans roles ou dont l'ID figure dans ids.
	ListActiveByRolesOrIDs(ctx context.Context, roles []entity.UserRole, ids []string) ([]entity.User, error)
	ListOnDutyStaff(ctx context.Context) ([]entity.User, error)
	Counts(ctx context.Context) (entity.UserCounts, error)
	UpdateLastLogin(ctx context.Context, id string) error
}
