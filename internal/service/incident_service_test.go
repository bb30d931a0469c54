package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ammar0101/campus-security-system/internal/domain/apperr"
	"github.com/ammar0101/campus-security-system/internal/domain/entity"
	"github.com/ammar0101/campus-security-system/internal/platform/realtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	admin   = newUser("u-admin", entity.RoleAdmin)
	officer = newUser("u-officer", entity.RoleSecurityStaff, withTokens("tok-officer"), onDuty)
	student = newUser("u-student", entity.RoleStudent, withTokens("tok-student"), func(u *entity.User) {
		u.EmergencyContacts = []entity.EmergencyContact{{Name: "Parent", Email: "parent@example.com"}}
	})
	visitor = newUser("u-visitor", entity.RoleVisitor)
)

func theftReport() CreateIncidentInput {
	return CreateIncidentInput{
		Type:          entity.TypeTheft,
		Description:   "Laptop stolen from the library desk",
		LocationLabel: "Main Library",
	}
}

func TestCreateIncident(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, admin, officer, student)

	inc, err := f.incidentSvc.Create(ctx, identityOf(student), theftReport())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(inc.ID, "INC_"))
	assert.Equal(t, entity.IncidentNew, inc.Status)
	assert.Equal(t, entity.PriorityMedium, inc.Priority)
	assert.Nil(t, inc.ResponseTime)
	require.Equal(t, 1, inc.History.Len())
	first, _ := inc.History.Last()
	assert.Equal(t, "System", first.Actor)
	assert.Equal(t, entity.IncidentNew, first.Status)

	pushes := f.gateway.sentPushes()
	require.Len(t, pushes, 1)
	assert.Equal(t, []string{"tok-officer"}, pushes[0].tokens)
	assert.Equal(t, "New Medium Priority Incident", pushes[0].n.Title)

	events := f.notifier.find(realtime.RoomSecurityStaff, realtime.EventIncidentCreated)
	require.Len(t, events, 1)
	assert.False(t, events[0].payload.(IncidentCreatedEvent).IsEmergency)
	assert.Equal(t, []string{ActionIncidentCreate}, f.auditActions(t))

	stored, err := f.incidents.GetByID(ctx, inc.ID)
	require.NoError(t, err)
	assert.Equal(t, student.ID, stored.ReporterID)
}

func TestCreateIncidentValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, student)

	cases := map[string]func(in *CreateIncidentInput){
		"short description": func(in *CreateIncidentInput) { in.Description = "too short" },
		"long description":  func(in *CreateIncidentInput) { in.Description = strings.Repeat("x", 2001) },
		"unknown type":      func(in *CreateIncidentInput) { in.Type = "Alien" },
		"panic type":        func(in *CreateIncidentInput) { in.Type = entity.TypeEmergencyPanic },
		"missing location":  func(in *CreateIncidentInput) { in.LocationLabel = "  " },
		"half coordinates":  func(in *CreateIncidentInput) { in.Latitude = ptr(5.0) },
		"bad priority":      func(in *CreateIncidentInput) { in.Priority = "Urgent" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := theftReport()
			mutate(&in)
			_, err := f.incidentSvc.Create(ctx, identityOf(student), in)
			var ve *apperr.ValidationError
			assert.True(t, errors.As(err, &ve), "got %v", err)
		})
	}
}

func TestCreateIncidentStoresCellIndex(t *testing.T) {
	f := newFixture(t, student)
	in := theftReport()
	in.Latitude, in.Longitude = ptr(48.8566), ptr(2.3522)

	inc, err := f.incidentSvc.Create(context.Background(), identityOf(student), in)
	require.NoError(t, err)
	assert.NotEmpty(t, inc.H3Index)
}

func TestAnonymousIncidentHidesReporter(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, admin, officer, student)

	in := theftReport()
	in.IsAnonymous = true
	inc, err := f.incidentSvc.Create(ctx, identityOf(student), in)
	require.NoError(t, err)
	assert.Empty(t, inc.ReporterName)
	assert.Nil(t, inc.Sender())

	seen, err := f.incidentSvc.Get(ctx, inc.ID, identityOf(officer))
	require.NoError(t, err)
	assert.Empty(t, seen.ReporterID)

	seen, err = f.incidentSvc.Get(ctx, inc.ID, identityOf(admin))
	require.NoError(t, err)
	assert.Equal(t, student.ID, seen.ReporterID)

	seen, err = f.incidentSvc.Get(ctx, inc.ID, identityOf(student))
	require.NoError(t, err)
	assert.Equal(t, student.ID, seen.ReporterID)

	event := f.notifier.find(realtime.RoomSecurityStaff, realtime.EventIncidentCreated)[0]
	assert.Empty(t, event.payload.(IncidentCreatedEvent).Incident.ReporterID)
}

func TestGetIncidentScopesRestrictedRoles(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, student, visitor)

	inc, err := f.incidentSvc.Create(ctx, identityOf(student), theftReport())
	require.NoError(t, err)

	_, err = f.incidentSvc.Get(ctx, inc.ID, identityOf(visitor))
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.incidentSvc.Get(ctx, "INC_MISSING", identityOf(student))
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestTransitionLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, officer, student)

	inc, err := f.incidentSvc.Create(ctx, identityOf(student), theftReport())
	require.NoError(t, err)

	f.clock.Advance(7*time.Minute + 30*time.Second)
	inc, err = f.incidentSvc.Transition(ctx, inc.ID, TransitionInput{Status: entity.IncidentInProgress, AssignedTo: officer.ID}, identityOf(officer))
	require.NoError(t, err)
	require.NotNil(t, inc.ResponseTime)
	assert.Equal(t, 7.5, *inc.ResponseTime)
	assert.Equal(t, officer.ID, inc.AssignedTo)

	f.clock.Advance(time.Hour)
	inc, err = f.incidentSvc.Transition(ctx, inc.ID, TransitionInput{
		Status:          entity.IncidentResolved,
		ResolutionNotes: "Laptop recovered and returned to owner",
	}, identityOf(officer))
	require.NoError(t, err)
	assert.Equal(t, 7.5, *inc.ResponseTime)
	assert.Equal(t, entity.IncidentResolved, inc.Status)
	require.NotNil(t, inc.ResolvedAt)

	entries := inc.History.Entries()
	require.Len(t, entries, 3)
	for i := 1; i < len(entries); i++ {
		assert.False(t, entries[i].Timestamp.Before(entries[i-1].Timestamp))
	}
	assert.Equal(t, entity.IncidentResolved, entries[2].Status)
	assert.Equal(t, officer.Name, entries[2].Actor)

	updates := f.notifier.find(realtime.RoomAll, realtime.EventIncidentUpdated)
	require.Len(t, updates, 2)
	last := updates[1].payload.(IncidentUpdatedEvent)
	assert.Equal(t, entity.IncidentInProgress, last.PreviousStatus)
	assert.Equal(t, entity.IncidentResolved, last.NewStatus)

	var reporterMails int
	for _, m := range f.gateway.sentEmails() {
		if len(m.to) == 1 && m.to[0] == student.Email {
			reporterMails++
		}
	}
	assert.Equal(t, 2, reporterMails)
}

func TestTransitionRejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, officer, student)

	t.Run("not in graph", func(t *testing.T) {
		inc, err := f.incidentSvc.Create(ctx, identityOf(student), theftReport())
		require.NoError(t, err)
		_, err = f.incidentSvc.Transition(ctx, inc.ID, TransitionInput{Status: entity.IncidentResolved, ResolutionNotes: "resolved without triage"}, identityOf(officer))
		var te *apperr.InvalidTransitionError
		require.True(t, errors.As(err, &te))
		assert.Equal(t, "New", te.From)
	})

	t.Run("resolution notes required", func(t *testing.T) {
		inc, err := f.incidentSvc.Create(ctx, identityOf(student), theftReport())
		require.NoError(t, err)
		_, err = f.incidentSvc.Transition(ctx, inc.ID, TransitionInput{Status: entity.IncidentInProgress}, identityOf(officer))
		require.NoError(t, err)

		_, err = f.incidentSvc.Transition(ctx, inc.ID, TransitionInput{Status: entity.IncidentResolved, ResolutionNotes: "done"}, identityOf(officer))
		var ve *apperr.ValidationError
		require.True(t, errors.As(err, &ve))
		assert.Equal(t, "resolution_notes", ve.Field)

		stored, _ := f.incidents.GetByID(ctx, inc.ID)
		assert.Equal(t, entity.IncidentInProgress, stored.Status)
		assert.Equal(t, 2, stored.History.Len())
	})

	t.Run("escalation reason required", func(t *testing.T) {
		inc, err := f.incidentSvc.Create(ctx, identityOf(student), theftReport())
		require.NoError(t, err)
		_, err = f.incidentSvc.Transition(ctx, inc.ID, TransitionInput{Status: entity.IncidentInProgress}, identityOf(officer))
		require.NoError(t, err)

		_, err = f.incidentSvc.Transition(ctx, inc.ID, TransitionInput{Status: entity.IncidentEscalated}, identityOf(officer))
		var ve *apperr.ValidationError
		require.True(t, errors.As(err, &ve))

		escalated, err := f.incidentSvc.Transition(ctx, inc.ID, TransitionInput{Status: entity.IncidentEscalated, EscalationReason: "Suspect seen on camera"}, identityOf(officer))
		require.NoError(t, err)
		assert.Equal(t, "Suspect seen on camera", escalated.EscalationReason)
	})

	t.Run("students cannot transition", func(t *testing.T) {
		inc, err := f.incidentSvc.Create(ctx, identityOf(student), theftReport())
		require.NoError(t, err)
		_, err = f.incidentSvc.Transition(ctx, inc.ID, TransitionInput{Status: entity.IncidentInProgress}, identityOf(student))
		assert.ErrorIs(t, err, apperr.ErrForbidden)
	})

	t.Run("assignee must be staff", func(t *testing.T) {
		inc, err := f.incidentSvc.Create(ctx, identityOf(student), theftReport())
		require.NoError(t, err)
		_, err = f.incidentSvc.Transition(ctx, inc.ID, TransitionInput{Status: entity.IncidentInProgress, AssignedTo: student.ID}, identityOf(officer))
		var ve *apperr.ValidationError
		assert.True(t, errors.As(err, &ve))
	})
}

func TestCancelIncident(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, admin, officer, student, visitor)

	t.Run("within window", func(t *testing.T) {
		inc, err := f.incidentSvc.Create(ctx, identityOf(student), theftReport())
		require.NoError(t, err)
		f.clock.Advance(5 * time.Minute)

		cancelled, err := f.incidentSvc.Cancel(ctx, inc.ID, "Found my laptop", identityOf(student))
		require.NoError(t, err)
		assert.Equal(t, entity.IncidentCancelled, cancelled.Status)
		assert.Equal(t, "Found my laptop", cancelled.CancelReason)
		assert.Equal(t, 2, cancelled.History.Len())
	})

	t.Run("window expired", func(t *testing.T) {
		inc, err := f.incidentSvc.Create(ctx, identityOf(student), theftReport())
		require.NoError(t, err)
		f.clock.Advance(11 * time.Minute)

		_, err = f.incidentSvc.Cancel(ctx, inc.ID, "Found my laptop", identityOf(student))
		var we *apperr.CancelWindowExpiredError
		require.True(t, errors.As(err, &we))
		assert.Equal(t, 10*time.Minute, we.Window)

		stored, _ := f.incidents.GetByID(ctx, inc.ID)
		assert.Equal(t, entity.IncidentNew, stored.Status)

		// un administrateur n'est pas soumis à la fenêtre
		_, err = f.incidentSvc.Cancel(ctx, inc.ID, "Duplicate report", identityOf(admin))
		require.NoError(t, err)
	})

	t.Run("other reporter", func(t *testing.T) {
		inc, err := f.incidentSvc.Create(ctx, identityOf(student), theftReport())
		require.NoError(t, err)
		_, err = f.incidentSvc.Cancel(ctx, inc.ID, "Not mine at all", identityOf(visitor))
		assert.ErrorIs(t, err, apperr.ErrForbidden)
	})

	t.Run("reason too short", func(t *testing.T) {
		inc, err := f.incidentSvc.Create(ctx, identityOf(student), theftReport())
		require.NoError(t, err)
		_, err = f.incidentSvc.Cancel(ctx, inc.ID, "oops", identityOf(student))
		var ve *apperr.ValidationError
		assert.True(t, errors.As(err, &ve))
	})

	t.Run("owner after triage", func(t *testing.T) {
		inc, err := f.incidentSvc.Create(ctx, identityOf(student), theftReport())
		require.NoError(t, err)
		_, err = f.incidentSvc.Transition(ctx, inc.ID, TransitionInput{Status: entity.IncidentInProgress}, identityOf(officer))
		require.NoError(t, err)

		_, err = f.incidentSvc.Cancel(ctx, inc.ID, "Found my laptop", identityOf(student))
		var te *apperr.InvalidTransitionError
		assert.True(t, errors.As(err, &te))

		cancelled, err := f.incidentSvc.Cancel(ctx, inc.ID, "Handled elsewhere", identityOf(admin))
		require.NoError(t, err)
		assert.Equal(t, entity.IncidentCancelled, cancelled.Status)

		_, err = f.incidentSvc.Cancel(ctx, inc.ID, "Handled elsewhere", identityOf(admin))
		assert.True(t, errors.As(err, &te))
	})
}

func TestActivatePanic(t *testing.T) {
	ctx := context.Background()

	t.Run("no nearby location", func(t *testing.T) {
		f := newFixture(t, officer, student)
		inc, err := f.incidentSvc.ActivatePanic(ctx, identityOf(student), PanicInput{
			Latitude:  ptr(40.0),
			Longitude: ptr(-75.0),
			Accuracy:  ptr(12.0),
		})
		require.NoError(t, err)

		assert.Equal(t, entity.TypeEmergencyPanic, inc.Type)
		assert.Equal(t, entity.PriorityCritical, inc.Priority)
		assert.Equal(t, entity.IncidentNew, inc.Status)
		assert.Contains(t, inc.Description, "12 meters")

		locs, err := f.locations.GetAll(ctx)
		require.NoError(t, err)
		require.Len(t, locs, 1)
		assert.Equal(t, "Emergency Location", locs[0].Building)
		assert.Equal(t, "Unknown", locs[0].Zone)
		assert.Equal(t, locs[0].ID, inc.LocationID)

		pushes := f.gateway.sentPushes()
		require.Len(t, pushes, 1)
		assert.Equal(t, "EMERGENCY PANIC ACTIVATED", pushes[0].n.Title)

		mails := f.gateway.sentEmails()
		require.Len(t, mails, 1)
		assert.ElementsMatch(t, []string{"security@campus.edu", "parent@example.com"}, mails[0].to)

		events := f.notifier.find(realtime.RoomAll, realtime.EventIncidentCreated)
		require.Len(t, events, 1)
		assert.True(t, events[0].payload.(IncidentCreatedEvent).IsEmergency)
	})

	t.Run("snaps to known location", func(t *testing.T) {
		f := newFixture(t, officer, student)
		require.NoError(t, f.locations.Create(ctx, &entity.Location{
			ID: "LOC_HALL", Building: "Science Hall", Latitude: 40.0, Longitude: -75.0, Zone: "North",
		}))

		// environ 55 m au nord
		inc, err := f.incidentSvc.ActivatePanic(ctx, identityOf(student), PanicInput{Latitude: ptr(40.0005), Longitude: ptr(-75.0)})
		require.NoError(t, err)
		assert.Equal(t, "LOC_HALL", inc.LocationID)
		assert.Equal(t, "Science Hall", inc.LocationLabel)
		assert.Contains(t, inc.Description, "unknown")

		locs, _ := f.locations.GetAll(ctx)
		assert.Len(t, locs, 1)
	})

	t.Run("coordinates required", func(t *testing.T) {
		f := newFixture(t, student)
		_, err := f.incidentSvc.ActivatePanic(ctx, identityOf(student), PanicInput{Latitude: ptr(40.0)})
		var ve *apperr.ValidationError
		assert.True(t, errors.As(err, &ve))
	})
}

func TestListIncidents(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, officer, student, visitor)

	for i := 0; i < 3; i++ {
		_, err := f.incidentSvc.Create(ctx, identityOf(student), theftReport())
		require.NoError(t, err)
		f.clock.Advance(time.Minute)
	}
	critical := theftReport()
	critical.Priority = entity.PriorityCritical
	_, err := f.incidentSvc.Create(ctx, identityOf(visitor), critical)
	require.NoError(t, err)

	all, err := f.incidentSvc.List(ctx, entity.IncidentFilter{}, identityOf(officer))
	require.NoError(t, err)
	assert.Equal(t, 4, all.Total)
	assert.Equal(t, 4, all.StatusCounts[entity.IncidentNew])
	assert.Equal(t, 1, all.OpenCritical)

	mine, err := f.incidentSvc.List(ctx, entity.IncidentFilter{}, identityOf(student))
	require.NoError(t, err)
	assert.Equal(t, 3, mine.Total)
	assert.Equal(t, 0, mine.OpenCritical)
	for _, inc := range mine.Incidents {
		assert.Equal(t, student.ID, inc.ReporterID)
	}

	page, err := f.incidentSvc.ListMine(ctx, identityOf(student), 2, 0)
	require.NoError(t, err)
	assert.Len(t, page.Incidents, 2)
	assert.Equal(t, 3, page.Total)
}
