package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ammar0101/campus-security-system/internal/domain/entity"
)

type UserRepository struct {
	mu    sync.RWMutex
	items map[string]*entity.User
}

func NewUserRepository(users ...entity.User) *UserRepository {
	r := &UserRepository{items: make(map[string]*entity.User)}
	for i := range users {
		r.items[users[i].ID] = cloneUser(&users[i])
	}
	return r
}

// Add est réservé à l'amorçage (dev, tests) ; la gestion des comptes est hors périmètre.
func (r *UserRepository) Add(user entity.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[user.ID] = cloneUser(&user)
}

func (r *UserRepository) GetByID(_ context.Context, id string) (*entity.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	return cloneUser(u), nil
}

func (r *UserRepository) GetByEmail(_ context.Context, email string) (*entity.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.items {
		if strings.EqualFold(u.Email, email) {
			return cloneUser(u), nil
		}
	}
	return nil, nil
}

func (r *UserRepository) ListActiveByRolesOrIDs(_ context.Context, roles []entity.UserRole, ids []string) ([]entity.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roleSet := make(map[entity.UserRole]bool, len(roles))
	for _, role := range roles {
		roleSet[role] = true
	}
	idSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}

	var out []entity.User
	for _, u := range r.items {
		if u.Status != entity.UserActive {
			continue
		}
		if roleSet[u.Role] || idSet[u.ID] {
			out = append(out, *cloneUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *UserRepository) ListOnDutyStaff(_ context.Context) ([]entity.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []entity.User
	for _, u := range r.items {
		if u.Status == entity.UserActive && u.Role.IsStaff() && u.OnDuty {
			out = append(out, *cloneUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *UserRepository) Counts(_ context.Context) (entity.UserCounts, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var c entity.UserCounts
	for _, u := range r.items {
		c.Total++
		if u.Status == entity.UserActive {
			c.Active++
			if u.Role.IsStaff() && u.OnDuty {
				c.OnDutyStaff++
			}
		}
	}
	return c, nil
}

func (r *UserRepository) UpdateLastLogin(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.items[id]
	if !ok {
		return fmt.Errorf("user %s not found", id)
	}
	now := time.Now()
	u.LastLoginAt = &now
	return nil
}
