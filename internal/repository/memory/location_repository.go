package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ammar0101/campus-security-system/internal/domain/entity"
)

type LocationRepository struct {
	mu    sync.RWMutex
	items map[string]entity.Location
}

func NewLocationRepository(locations ...entity.Location) *LocationRepository {
	r := &LocationRepository{items: make(map[string]entity.Location)}
	for _, l := range locations {
		r.items[l.ID] = l
	}
	return r
}

func (r *LocationRepository) GetAll(_ context.Context) ([]entity.Location, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]entity.Location, 0, len(r.items))
	for _, l := range r.items {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *LocationRepository) GetByID(_ context.Context, id string) (*entity.Location, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

func (r *LocationRepository) Create(_ context.Context, location *entity.Location) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[location.ID] = *location
	return nil
}

type AuditLogRepository struct {
	mu    sync.RWMutex
	items []entity.AuditLog
}

func NewAuditLogRepository() *AuditLogRepository {
	return &AuditLogRepository{}
}

func (r *AuditLogRepository) Create(_ context.Context, log *entity.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, *log)
	return nil
}

func (r *AuditLogRepository) GetAll(_ context.Context, limit int) ([]entity.AuditLog, error) {
	r.mu.RLock()
	out := make([]entity.AuditLog, len(r.items))
	copy(out, r.items)
	r.mu.RUnlock()
	newestFirst(out, func(l entity.AuditLog) time.Time { return l.CreatedAt })
	return paginate(out, limit, 0), nil
}
