package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ammar0101/campus-security-system/internal/domain/entity"
	"github.com/ammar0101/campus-security-system/internal/platform/channel"
	"github.com/ammar0101/campus-security-system/internal/platform/dispatch"
	"github.com/ammar0101/campus-security-system/internal/repository/memory"
	"go.uber.org/zap"
)

type pushCall struct {
	tokens []string
	n      channel.Notification
}

type emailCall struct {
	to   []string
	mail channel.Email
}

// recordingGateway enregistre les envois ; result et err pilotent la réponse push.
type recordingGateway struct {
	mu     sync.Mutex
	pushes []pushCall
	emails []emailCall
	result *channel.PushResult
	err    error
}

func (g *recordingGateway) SendPush(_ context.Context, tokens []string, n channel.Notification) (channel.PushResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pushes = append(g.pushes, pushCall{tokens: append([]string{}, tokens...), n: n})
	if g.err != nil {
		return channel.PushResult{}, g.err
	}
	if g.result != nil {
		return *g.result, nil
	}
	return channel.PushResult{SuccessCount: len(tokens)}, nil
}

func (g *recordingGateway) SendEmail(_ context.Context, to []string, mail channel.Email) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.emails = append(g.emails, emailCall{to: append([]string{}, to...), mail: mail})
	return nil
}

func (g *recordingGateway) sentEmails() []emailCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]emailCall{}, g.emails...)
}

func (g *recordingGateway) sentPushes() []pushCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]pushCall{}, g.pushes...)
}

type published struct {
	room    string
	event   string
	payload interface{}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []published
}

func (n *recordingNotifier) Publish(_ context.Context, room, event string, payload interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, published{room: room, event: event, payload: payload})
	return nil
}

func (n *recordingNotifier) count(event string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, e := range n.events {
		if e.event == event {
			c++
		}
	}
	return c
}

func (n *recordingNotifier) find(room, event string) []published {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []published
	for _, e := range n.events {
		if e.room == room && e.event == event {
			out = append(out, e)
		}
	}
	return out
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	incidents *memory.IncidentRepository
	alerts    *memory.AlertStore
	users     *memory.UserRepository
	locations *memory.LocationRepository
	auditLogs *memory.AuditLogRepository
	gateway   *recordingGateway
	notifier  *recordingNotifier
	clock     *fakeClock

	incidentSvc IncidentService
	alertSvc    AlertService
}

func newFixture(t *testing.T, users ...entity.User) *fixture {
	t.Helper()
	return newFixtureWith(t, dispatch.Inline{}, users...)
}

// newFixtureWith branche les services sur le dispatcher fourni.
func newFixtureWith(t *testing.T, dispatcher dispatch.Submitter, users ...entity.User) *fixture {
	t.Helper()
	f := &fixture{
		incidents: memory.NewIncidentRepository(),
		alerts:    memory.NewAlertStore(),
		users:     memory.NewUserRepository(users...),
		locations: memory.NewLocationRepository(),
		auditLogs: memory.NewAuditLogRepository(),
		gateway:   &recordingGateway{},
		notifier:  &recordingNotifier{},
		clock:     &fakeClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)},
	}
	logger := zap.NewNop()
	fx := &Effects{Gateway: f.gateway, Notifier: f.notifier, Dispatcher: dispatcher, Logger: logger}
	audit := NewAuditService(f.auditLogs, dispatcher, logger)

	f.incidentSvc = NewIncidentService(f.incidents, f.users, f.locations, audit, fx, IncidentConfig{
		CancelWindow:      10 * time.Minute,
		PanicRadiusMeters: 200,
		EmergencyMailbox:  "security@campus.edu",
		Now:               f.clock.Now,
	})
	f.alertSvc = NewAlertService(f.alerts, f.alerts, f.users, f.incidents, f.locations, audit, fx, AlertConfig{Now: f.clock.Now})
	return f
}

func (f *fixture) auditActions(t *testing.T) []string {
	t.Helper()
	logs, _ := f.auditLogs.GetAll(context.Background(), 0)
	out := make([]string, 0, len(logs))
	for _, l := range logs {
		out = append(out, l.ActionType)
	}
	return out
}

func newUser(id string, role entity.UserRole, opts ...func(*entity.User)) entity.User {
	u := entity.User{
		ID:     id,
		Name:   "User " + id,
		Email:  id + "@campus.edu",
		Role:   role,
		Status: entity.UserActive,
	}
	for _, o := range opts {
		o(&u)
	}
	return u
}

func withTokens(tokens ...string) func(*entity.User) {
	return func(u *entity.User) { u.DeviceTokens = tokens }
}

func withZone(zone string) func(*entity.User) {
	return func(u *entity.User) { u.Zone = zone }
}

func withStatus(status entity.UserStatus) func(*entity.User) {
	return func(u *entity.User) { u.Status = status }
}

func onDuty(u *entity.User) { u.OnDuty = true }

func identityOf(u entity.User) entity.Identity {
	return u.Identity()
}

func ptr[T any](v T) *T {
	return &v
}
