package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ammar0101/campus-security-system/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIncidentRepositoryIsolatesStoredCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewIncidentRepository()
	now := time.Now()

	inc := &entity.Incident{ID: "INC_1", Status: entity.IncidentNew, CreatedAt: now}
	inc.AppendHistory(entity.IncidentNew, now, "System")
	require.NoError(t, repo.Create(ctx, inc))

	inc.AppendHistory(entity.IncidentInProgress, now, "mutated")
	stored, err := repo.GetByID(ctx, "INC_1")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.History.Len())
	assert.Equal(t, entity.IncidentNew, stored.Status)

	missing, err := repo.GetByID(ctx, "INC_404")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestIncidentRepositoryConditionalUpdate(t *testing.T) {
	ctx := context.Background()
	repo := NewIncidentRepository()
	now := time.Now()
	inc := &entity.Incident{ID: "INC_1", Status: entity.IncidentNew, CreatedAt: now}
	require.NoError(t, repo.Create(ctx, inc))

	next := *inc
	next.Status = entity.IncidentInProgress
	ok, err := repo.UpdateStatus(ctx, &next, entity.IncidentNew)
	require.NoError(t, err)
	assert.True(t, ok)

	stale := *inc
	stale.Status = entity.IncidentRejected
	ok, err = repo.UpdateStatus(ctx, &stale, entity.IncidentNew)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIncidentRepositoryListFiltersAndPaginates(t *testing.T) {
	ctx := context.Background()
	repo := NewIncidentRepository()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	for i, p := range []entity.Priority{entity.PriorityLow, entity.PriorityCritical, entity.PriorityCritical} {
		require.NoError(t, repo.Create(ctx, &entity.Incident{
			ID:          []string{"INC_A", "INC_B", "INC_C"}[i],
			ReporterID:  "u1",
			Priority:    p,
			Status:      entity.IncidentNew,
			Description: "bike stolen near library",
			CreatedAt:   base.Add(time.Duration(i) * time.Hour),
		}))
	}

	items, total, err := repo.List(ctx, entity.IncidentFilter{Priority: entity.PriorityCritical, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, items, 1)
	assert.Equal(t, "INC_C", items[0].ID)

	items, _, err = repo.List(ctx, entity.IncidentFilter{Search: "LIBRARY"})
	require.NoError(t, err)
	assert.Len(t, items, 3)

	n, err := repo.CountOpenCritical(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestAlertStoreAcknowledgeIsAtMostOnce(t *testing.T) {
	ctx := context.Background()
	s := NewAlertStore()
	require.NoError(t, s.Create(ctx, &entity.Alert{ID: "ALT_1", Status: entity.AlertBroadcasting}))
	_, err := s.CreateRecipients(ctx, []entity.AlertRecipient{{AlertID: "ALT_1", RecipientID: "u1", DeliveryStatus: entity.DeliveryPending}})
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.MarkAcknowledged(ctx, "ALT_1", "u1", time.Now())
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestAlertStoreRecipientsAreUnique(t *testing.T) {
	ctx := context.Background()
	s := NewAlertStore()
	rows := []entity.AlertRecipient{{AlertID: "ALT_1", RecipientID: "u1"}, {AlertID: "ALT_1", RecipientID: "u2"}}

	n, err := s.CreateRecipients(ctx, rows)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.CreateRecipients(ctx, rows)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAlertStoreMarkDeliveryIsMonotonic(t *testing.T) {
	ctx := context.Background()
	s := NewAlertStore()
	_, err := s.CreateRecipients(ctx, []entity.AlertRecipient{{AlertID: "ALT_1", RecipientID: "u1", DeliveryStatus: entity.DeliveryPending}})
	require.NoError(t, err)

	ok, err := s.MarkAcknowledged(ctx, "ALT_1", "u1", time.Now())
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.MarkDelivery(ctx, "ALT_1", []string{"u1"}, entity.DeliveryDelivered, time.Now(), ""))
	rec, err := s.GetRecipient(ctx, "ALT_1", "u1")
	require.NoError(t, err)
	assert.Equal(t, entity.DeliveryAcknowledged, rec.DeliveryStatus)
}

func TestAlertStoreArchiveExpired(t *testing.T) {
	ctx := context.Background()
	s := NewAlertStore()
	now := time.Now()
	require.NoError(t, s.Create(ctx, &entity.Alert{ID: "ALT_OLD", Status: entity.AlertDelivered, ExpiresAt: now.Add(-time.Minute)}))
	require.NoError(t, s.Create(ctx, &entity.Alert{ID: "ALT_NEW", Status: entity.AlertBroadcasting, ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, s.Create(ctx, &entity.Alert{ID: "ALT_CXL", Status: entity.AlertCancelled, ExpiresAt: now.Add(-time.Hour)}))

	n, err := s.ArchiveExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	old, _ := s.GetByID(ctx, "ALT_OLD")
	assert.Equal(t, entity.AlertArchived, old.Status)
	cxl, _ := s.GetByID(ctx, "ALT_CXL")
	assert.Equal(t, entity.AlertCancelled, cxl.Status)
}

func TestAlertStoreCreateWithRecipients(t *testing.T) {
	ctx := context.Background()
	s := NewAlertStore()
	alert := &entity.Alert{ID: "ALT_1", Status: entity.AlertBroadcasting}
	rows := []entity.AlertRecipient{{AlertID: "ALT_1", RecipientID: "u1"}, {AlertID: "ALT_1", RecipientID: "u2"}}

	require.NoError(t, s.CreateWithRecipients(ctx, alert, rows))
	_, err := s.GetByID(ctx, "ALT_1")
	require.NoError(t, err)
	rec, err := s.GetRecipient(ctx, "ALT_1", "u2")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "u2", rec.RecipientID)

	// un identifiant déjà pris ne laisse aucun destinataire supplémentaire
	err = s.CreateWithRecipients(ctx, alert, []entity.AlertRecipient{{AlertID: "ALT_1", RecipientID: "u3"}})
	require.Error(t, err)
	rec, err = s.GetRecipient(ctx, "ALT_1", "u3")
	require.NoError(t, err)
	assert.Nil(t, rec)
}
