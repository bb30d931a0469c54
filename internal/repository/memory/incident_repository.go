package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ammar0101/campus-security-system/internal/domain/entity"
)

type IncidentRepository struct {
	mu    sync.RWMutex
	items map[string]*entity.Incident
}

func NewIncidentRepository() *IncidentRepository {
	return &IncidentRepository{items: make(map[string]*entity.Incident)}
}

func (r *IncidentRepository) Create(_ context.Context, incident *entity.Incident) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.items[incident.ID]; exists {
		return fmt.Errorf("incident %s already exists", incident.ID)
	}
	r.items[incident.ID] = cloneIncident(incident)
	return nil
}

func (r *IncidentRepository) GetByID(_ context.Context, id string) (*entity.Incident, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inc, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	return cloneIncident(inc), nil
}

func (r *IncidentRepository) matches(inc *entity.Incident, f entity.IncidentFilter) bool {
	if f.ReporterID != "" && inc.ReporterID != f.ReporterID {
		return false
	}
	if f.Status != "" && inc.Status != f.Status {
		return false
	}
	if f.Type != "" && inc.Type != f.Type {
		return false
	}
	if f.Priority != "" && inc.Priority != f.Priority {
		return false
	}
	if f.AssignedTo != "" && inc.AssignedTo != f.AssignedTo {
		return false
	}
	if !inRange(inc.CreatedAt, f.From, f.To) {
		return false
	}
	if f.Search != "" &&
		!containsFold(inc.Description, f.Search) &&
		!containsFold(inc.LocationLabel, f.Search) &&
		!containsFold(string(inc.Type), f.Search) {
		return false
	}
	return true
}

func (r *IncidentRepository) List(_ context.Context, filter entity.IncidentFilter) ([]entity.Incident, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []entity.Incident
	for _, inc := range r.items {
		if r.matches(inc, filter) {
			out = append(out, *cloneIncident(inc))
		}
	}
	newestFirst(out, func(i entity.Incident) time.Time { return i.CreatedAt })
	return paginate(out, filter.Limit, filter.Offset), len(out), nil
}

func (r *IncidentRepository) CountByStatus(_ context.Context, reporterID string) (map[entity.IncidentStatus]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[entity.IncidentStatus]int)
	for _, inc := range r.items {
		if reporterID != "" && inc.ReporterID != reporterID {
			continue
		}
		counts[inc.Status]++
	}
	return counts, nil
}

func (r *IncidentRepository) CountOpenCritical(_ context.Context, reporterID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, inc := range r.items {
		if reporterID != "" && inc.ReporterID != reporterID {
			continue
		}
		if inc.Priority == entity.PriorityCritical && !inc.Status.IsTerminal() {
			n++
		}
	}
	return n, nil
}

func (r *IncidentRepository) UpdateStatus(_ context.Context, incident *entity.Incident, expected entity.IncidentStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.items[incident.ID]
	if !ok || stored.Status != expected {
		return false, nil
	}
	r.items[incident.ID] = cloneIncident(incident)
	return true, nil
}

func (r *IncidentRepository) ListBetween(_ context.Context, from, to *time.Time) ([]entity.Incident, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []entity.Incident
	for _, inc := range r.items {
		if inRange(inc.CreatedAt, from, to) {
			out = append(out, *cloneIncident(inc))
		}
	}
	newestFirst(out, func(i entity.Incident) time.Time { return i.CreatedAt })
	return out, nil
}
