package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ammar0101/campus-security-system/internal/domain/entity"
)

type recipientKey struct {
	alertID     string
	recipientID string
}

// AlertStore sert à la fois d'AlertRepository et d'AlertRecipientRepository :
// le filtrage par destinataire a besoin des deux tables sous un même verrou.
type AlertStore struct {
	mu         sync.RWMutex
	alerts     map[string]*entity.Alert
	recipients map[recipientKey]*entity.AlertRecipient
}

func NewAlertStore() *AlertStore {
	return &AlertStore{
		alerts:     make(map[string]*entity.Alert),
		recipients: make(map[recipientKey]*entity.AlertRecipient),
	}
}

func (s *AlertStore) Create(_ context.Context, alert *entity.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.alerts[alert.ID]; exists {
		return fmt.Errorf("alert %s already exists", alert.ID)
	}
	s.alerts[alert.ID] = cloneAlert(alert)
	return nil
}

func (s *AlertStore) CreateWithRecipients(_ context.Context, alert *entity.Alert, recipients []entity.AlertRecipient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.alerts[alert.ID]; exists {
		return fmt.Errorf("alert %s already exists", alert.ID)
	}
	s.alerts[alert.ID] = cloneAlert(alert)
	s.insertRecipients(recipients)
	return nil
}

func (s *AlertStore) GetByID(_ context.Context, id string) (*entity.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.alerts[id]
	if !ok {
		return nil, nil
	}
	return cloneAlert(a), nil
}

func (s *AlertStore) List(_ context.Context, f entity.AlertFilter) ([]entity.Alert, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []entity.Alert
	for _, a := range s.alerts {
		if f.RecipientID != "" {
			if _, ok := s.recipients[recipientKey{a.ID, f.RecipientID}]; !ok {
				continue
			}
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.Severity != "" && a.Severity != f.Severity {
			continue
		}
		if f.Type != "" && a.Type != f.Type {
			continue
		}
		if !inRange(a.CreatedAt, f.From, f.To) {
			continue
		}
		if f.ActiveOnly && !a.IsActive(f.Now) {
			continue
		}
		out = append(out, *cloneAlert(a))
	}
	newestFirst(out, func(a entity.Alert) time.Time { return a.CreatedAt })
	return paginate(out, f.Limit, f.Offset), len(out), nil
}

func (s *AlertStore) CountActive(_ context.Context, now time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, a := range s.alerts {
		if a.IsActive(now) {
			n++
		}
	}
	return n, nil
}

func (s *AlertStore) CountBetween(_ context.Context, from, to *time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, a := range s.alerts {
		if inRange(a.CreatedAt, from, to) {
			n++
		}
	}
	return n, nil
}

func (s *AlertStore) UpdateDelivery(_ context.Context, id string, recipientCount int, stats entity.DeliveryStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return fmt.Errorf("alert %s not found", id)
	}
	a.RecipientCount = recipientCount
	a.DeliveryStats = stats
	if a.Status == entity.AlertBroadcasting && stats.Delivered > 0 {
		a.Status = entity.AlertDelivered
	}
	return nil
}

func (s *AlertStore) Cancel(_ context.Context, id string, at time.Time, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok || a.Status.IsTerminal() {
		return false, nil
	}
	a.Status = entity.AlertCancelled
	a.CancelledAt = &at
	a.CancelReason = reason
	return true, nil
}

func (s *AlertStore) ArchiveExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.alerts {
		if a.Status.IsLive() && !a.ExpiresAt.After(now) {
			a.Status = entity.AlertArchived
			n++
		}
	}
	return n, nil
}

func (s *AlertStore) IncrementAcknowledgmentCount(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return 0, fmt.Errorf("alert %s not found", id)
	}
	a.AcknowledgmentCount++
	return a.AcknowledgmentCount, nil
}

func (s *AlertStore) CreateRecipients(_ context.Context, recipients []entity.AlertRecipient) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertRecipients(recipients), nil
}

// insertRecipients suppose le verrou en écriture déjà pris.
func (s *AlertStore) insertRecipients(recipients []entity.AlertRecipient) int {
	inserted := 0
	for i := range recipients {
		key := recipientKey{recipients[i].AlertID, recipients[i].RecipientID}
		if _, exists := s.recipients[key]; exists {
			continue
		}
		rec := recipients[i]
		s.recipients[key] = &rec
		inserted++
	}
	return inserted
}

func (s *AlertStore) GetRecipient(_ context.Context, alertID, recipientID string) (*entity.AlertRecipient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.recipients[recipientKey{alertID, recipientID}]
	if !ok {
		return nil, nil
	}
	out := *rec
	return &out, nil
}

func (s *AlertStore) ListForRecipient(_ context.Context, recipientID string, alertIDs []string) (map[string]entity.AlertRecipient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]entity.AlertRecipient, len(alertIDs))
	for _, id := range alertIDs {
		if rec, ok := s.recipients[recipientKey{id, recipientID}]; ok {
			out[id] = *rec
		}
	}
	return out, nil
}

func (s *AlertStore) MarkAcknowledged(_ context.Context, alertID, recipientID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recipients[recipientKey{alertID, recipientID}]
	if !ok || rec.AcknowledgedAt != nil {
		return false, nil
	}
	rec.AcknowledgedAt = &at
	rec.DeliveryStatus = entity.DeliveryAcknowledged
	return true, nil
}

func (s *AlertStore) MarkRead(_ context.Context, alertID, recipientID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recipients[recipientKey{alertID, recipientID}]
	if !ok || rec.ReadAt != nil {
		return false, nil
	}
	rec.ReadAt = &at
	if rec.DeliveryStatus.CanAdvance(entity.DeliveryRead) {
		rec.DeliveryStatus = entity.DeliveryRead
	}
	return true, nil
}

func (s *AlertStore) MarkDelivery(_ context.Context, alertID string, recipientIDs []string, status entity.DeliveryStatus, at time.Time, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range recipientIDs {
		rec, ok := s.recipients[recipientKey{alertID, id}]
		if !ok || !rec.DeliveryStatus.CanAdvance(status) {
			continue
		}
		rec.DeliveryStatus = status
		if status == entity.DeliveryDelivered {
			t := at
			rec.DeliveredAt = &t
		}
		if status == entity.DeliveryFailed {
			rec.FailureReason = reason
		}
	}
	return nil
}
