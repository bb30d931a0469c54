package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ammar0101/campus-security-system/internal/domain/apperr"
	"github.com/ammar0101/campus-security-system/internal/domain/entity"
	"github.com/ammar0101/campus-security-system/internal/domain/repository"
	"github.com/ammar0101/campus-security-system/internal/platform/channel"
	"github.com/ammar0101/campus-security-system/internal/platform/geo"
	"github.com/ammar0101/campus-security-system/internal/platform/idgen"
	"github.com/ammar0101/campus-security-system/internal/platform/realtime"
	"go.uber.org/zap"
)

const (
	minDescriptionLength  = 10
	maxDescriptionLength  = 2000
	minCancelReasonLength = 5

	defaultPageSize = 20
	maxPageSize     = 100

	systemActor = "System"
)

type IncidentConfig struct {
	CancelWindow      time.Duration
	PanicRadiusMeters float64
	EmergencyMailbox  string
	Now               func() time.Time
}

type CreateIncidentInput struct {
	Type          entity.IncidentType `json:"incident_type" binding:"required"`
	Description   string              `json:"description" binding:"required"`
	LocationLabel string              `json:"location"`
	Latitude      *float64            `json:"latitude"`
	Longitude     *float64            `json:"longitude"`
	MediaURLs     []string            `json:"media_urls"`
	IsAnonymous   bool                `json:"is_anonymous"`
	Priority      entity.Priority     `json:"priority"`
}

type PanicInput struct {
	Latitude  *float64 `json:"latitude" binding:"required"`
	Longitude *float64 `json:"longitude" binding:"required"`
	Accuracy  *float64 `json:"accuracy"`
}

type TransitionInput struct {
	Status           entity.IncidentStatus `json:"status" binding:"required"`
	ResolutionNotes  string                `json:"resolution_notes"`
	EscalationReason string                `json:"escalation_reason"`
	AssignedTo       string                `json:"assigned_to"`
}

type IncidentList struct {
	Incidents    []entity.Incident             `json:"incidents"`
	Total        int                           `json:"total"`
	StatusCounts map[entity.IncidentStatus]int `json:"status_counts"`
	OpenCritical int                           `json:"open_critical"`
}

// IncidentCreatedEvent est la charge de l'événement incident:created.
type IncidentCreatedEvent struct {
	Incident    *entity.Incident `json:"incident"`
	IsEmergency bool             `json:"isEmergency"`
}

// IncidentUpdatedEvent est la charge de l'événement incident:updated.
type IncidentUpdatedEvent struct {
	IncidentID     string                `json:"incidentId"`
	PreviousStatus entity.IncidentStatus `json:"previousStatus"`
	NewStatus      entity.IncidentStatus `json:"newStatus"`
	UpdatedBy      string                `json:"updatedBy"`
	Timestamp      time.Time             `json:"timestamp"`
}

type IncidentService interface {
	Create(ctx context.Context, actor entity.Identity, in CreateIncidentInput) (*entity.Incident, error)
	ActivatePanic(ctx context.Context, actor entity.Identity, in PanicInput) (*entity.Incident, error)
	Transition(ctx context.Context, id string, in TransitionInput, actor entity.Identity) (*entity.Incident, error)
	Cancel(ctx context.Context, id, reason string, actor entity.Identity) (*entity.Incident, error)
	Get(ctx context.Context, id string, actor entity.Identity) (*entity.Incident, error)
	List(ctx context.Context, filter entity.IncidentFilter, actor entity.Identity) (*IncidentList, error)
	ListMine(ctx context.Context, actor entity.Identity, limit, offset int) (*IncidentList, error)
}

type incidentService struct {
	incidents repository.IncidentRepository
	users     repository.UserRepository
	locations repository.LocationRepository
	audit     AuditService
	fx        *Effects
	cfg       IncidentConfig
}

func NewIncidentService(
	incidents repository.IncidentRepository,
	users repository.UserRepository,
	locations repository.LocationRepository,
	audit AuditService,
	fx *Effects,
	cfg IncidentConfig,
) IncidentService {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.CancelWindow <= 0 {
		cfg.CancelWindow = 10 * time.Minute
	}
	if cfg.PanicRadiusMeters <= 0 {
		cfg.PanicRadiusMeters = 200
	}
	return &incidentService{
		incidents: incidents,
		users:     users,
		locations: locations,
		audit:     audit,
		fx:        fx,
		cfg:       cfg,
	}
}

func (s *incidentService) now() time.Time {
	return s.cfg.Now().UTC()
}

func (s *incidentService) Create(ctx context.Context, actor entity.Identity, in CreateIncidentInput) (*entity.Incident, error) {
	if !in.Type.IsValid() {
		return nil, apperr.Validation("incident_type", "unknown incident type %q", in.Type)
	}
	if in.Type == entity.TypeEmergencyPanic {
		return nil, apperr.Validation("incident_type", "use the emergency endpoint to activate a panic alert")
	}
	description := strings.TrimSpace(in.Description)
	if err := validateLength("description", description, minDescriptionLength, maxDescriptionLength); err != nil {
		return nil, err
	}
	label := strings.TrimSpace(in.LocationLabel)
	if label == "" {
		return nil, apperr.Validation("location", "location is required")
	}
	if (in.Latitude == nil) != (in.Longitude == nil) {
		return nil, apperr.Validation("latitude", "latitude and longitude must be provided together")
	}
	if in.Latitude != nil && !geo.ValidCoordinates(*in.Latitude, *in.Longitude) {
		return nil, apperr.Validation("latitude", "coordinates out of range")
	}
	priority := in.Priority
	if priority == "" {
		priority = entity.PriorityMedium
	}
	if !priority.IsValid() {
		return nil, apperr.Validation("priority", "unknown priority %q", priority)
	}

	now := s.now()
	inc := s.newIncident(actor, in.IsAnonymous, now)
	inc.Type = in.Type
	inc.Description = description
	inc.Priority = priority
	inc.LocationLabel = label
	inc.MediaURLs = append([]string{}, in.MediaURLs...)
	if in.Latitude != nil {
		lat, lon := *in.Latitude, *in.Longitude
		inc.Latitude, inc.Longitude = &lat, &lon
		inc.H3Index = geo.CellIndex(lat, lon)
	}

	if err := s.incidents.Create(ctx, inc); err != nil {
		return nil, fmt.Errorf("failed to create incident: %w", err)
	}

	s.notifyStaff(inc, incidentCreatedPush(inc))
	s.fx.publish(inc.ID, realtime.RoomSecurityStaff, realtime.EventIncidentCreated,
		IncidentCreatedEvent{Incident: redact(inc, entity.Identity{}), IsEmergency: false})
	s.audit.Record(actor.UserID, ActionIncidentCreate, "incident", inc.ID, string(inc.Priority))

	return inc, nil
}

func (s *incidentService) ActivatePanic(ctx context.Context, actor entity.Identity, in PanicInput) (*entity.Incident, error) {
	if in.Latitude == nil || in.Longitude == nil || !geo.ValidCoordinates(*in.Latitude, *in.Longitude) {
		return nil, apperr.Validation("latitude", "valid coordinates are required")
	}
	lat, lon := *in.Latitude, *in.Longitude
	if in.Accuracy != nil && *in.Accuracy < 0 {
		return nil, apperr.Validation("accuracy", "accuracy must be positive")
	}

	known, err := s.locations.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load locations: %w", err)
	}
	now := s.now()
	loc, _, found := geo.FindNearest(known, lat, lon, s.cfg.PanicRadiusMeters)
	if !found {
		loc = emergencyLocation(actor, lat, lon, now)
		if err := s.locations.Create(ctx, loc); err != nil {
			return nil, fmt.Errorf("failed to create emergency location: %w", err)
		}
	}

	inc := s.newIncident(actor, false, now)
	inc.Type = entity.TypeEmergencyPanic
	inc.Priority = entity.PriorityCritical
	inc.Description = panicDescription(in.Accuracy)
	inc.Latitude, inc.Longitude = &lat, &lon
	inc.H3Index = geo.CellIndex(lat, lon)
	inc.LocationID = loc.ID
	inc.LocationLabel = locationLabel(loc)
	inc.MediaURLs = []string{}

	if err := s.incidents.Create(ctx, inc); err != nil {
		return nil, fmt.Errorf("failed to create panic incident: %w", err)
	}

	s.notifyStaff(inc, panicPush(inc))
	s.fx.submit("panic email", inc.ID, func(ctx context.Context) error {
		to := []string{}
		if s.cfg.EmergencyMailbox != "" {
			to = append(to, s.cfg.EmergencyMailbox)
		}
		user, err := s.users.GetByID(ctx, inc.ReporterID)
		if err != nil {
			return err
		}
		if user != nil {
			for _, c := range user.EmergencyContacts {
				if c.Email != "" {
					to = append(to, c.Email)
				}
			}
		}
		if len(to) == 0 {
			return nil
		}
		return s.fx.Gateway.SendEmail(ctx, to, panicEmail(inc))
	})
	// diffusé à tous : l'adresse du déclarant reste hors de l'événement
	public := *inc
	public.ReporterEmail = ""
	s.fx.publish(inc.ID, realtime.RoomAll, realtime.EventIncidentCreated,
		IncidentCreatedEvent{Incident: &public, IsEmergency: true})
	s.audit.Record(actor.UserID, ActionIncidentPanic, "incident", inc.ID, inc.LocationLabel)

	s.fx.logger().Warn("panic button activated",
		zap.String("incident_id", inc.ID),
		zap.String("user_id", actor.UserID),
		zap.String("location_id", loc.ID),
		zap.Bool("ad_hoc_location", !found))
	return inc, nil
}

func (s *incidentService) Transition(ctx context.Context, id string, in TransitionInput, actor entity.Identity) (*entity.Incident, error) {
	if !actor.Role.IsStaff() {
		return nil, apperr.Forbidden("only security staff can update incident status")
	}
	if !in.Status.IsValid() {
		return nil, apperr.Validation("status", "unknown status %q", in.Status)
	}
	inc, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	from := inc.Status
	evidence, ok := entity.RequiredEvidence(from, in.Status)
	if !ok {
		return nil, &apperr.InvalidTransitionError{Entity: "incident", From: string(from), To: string(in.Status)}
	}
	switch evidence {
	case entity.EvidenceResolutionNotes:
		notes := strings.TrimSpace(in.ResolutionNotes)
		if utf8.RuneCountInString(notes) < entity.MinEvidenceLength {
			return nil, apperr.Validation("resolution_notes", "resolution notes of at least %d characters are required", entity.MinEvidenceLength)
		}
		inc.ResolutionNotes = notes
	case entity.EvidenceEscalationReason:
		reason := strings.TrimSpace(in.EscalationReason)
		if utf8.RuneCountInString(reason) < entity.MinEvidenceLength {
			return nil, apperr.Validation("escalation_reason", "escalation reason of at least %d characters is required", entity.MinEvidenceLength)
		}
		inc.EscalationReason = reason
	}
	if in.AssignedTo != "" {
		assignee, err := s.users.GetByID(ctx, in.AssignedTo)
		if err != nil {
			return nil, fmt.Errorf("failed to load assignee: %w", err)
		}
		if assignee == nil || !assignee.Role.IsStaff() {
			return nil, apperr.Validation("assigned_to", "assignee must be an existing staff member")
		}
		inc.AssignedTo = assignee.ID
	}

	now := s.now()
	if from == entity.IncidentNew {
		inc.FreezeResponseTime(now)
	}
	if in.Status == entity.IncidentResolved {
		inc.ResolvedAt = &now
	}
	inc.AppendHistory(in.Status, now, actor.UserName)

	if err := s.save(ctx, inc, from); err != nil {
		return nil, err
	}

	s.afterStatusChange(inc, from, actor, now)
	s.audit.Record(actor.UserID, ActionIncidentTransition, "incident", inc.ID, string(from)+" -> "+string(inc.Status))
	return redact(inc, actor), nil
}

func (s *incidentService) Cancel(ctx context.Context, id, reason string, actor entity.Identity) (*entity.Incident, error) {
	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) < minCancelReasonLength {
		return nil, apperr.Validation("reason", "cancellation reason of at least %d characters is required", minCancelReasonLength)
	}
	inc, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	from := inc.Status
	now := s.now()
	if from.IsTerminal() {
		return nil, &apperr.InvalidTransitionError{Entity: "incident", From: string(from), To: string(entity.IncidentCancelled)}
	}
	if !actor.IsAdmin() {
		if inc.ReporterID != actor.UserID {
			return nil, apperr.Forbidden("you can only cancel your own incidents")
		}
		if from != entity.IncidentNew {
			return nil, &apperr.InvalidTransitionError{Entity: "incident", From: string(from), To: string(entity.IncidentCancelled)}
		}
		if elapsed := now.Sub(inc.CreatedAt); elapsed > s.cfg.CancelWindow {
			return nil, &apperr.CancelWindowExpiredError{Window: s.cfg.CancelWindow, Elapsed: elapsed}
		}
	}

	inc.CancelledAt = &now
	inc.CancelReason = reason
	inc.AppendHistory(entity.IncidentCancelled, now, actor.UserName)

	if err := s.save(ctx, inc, from); err != nil {
		return nil, err
	}

	s.fx.publish(inc.ID, realtime.RoomAll, realtime.EventIncidentUpdated, IncidentUpdatedEvent{
		IncidentID:     inc.ID,
		PreviousStatus: from,
		NewStatus:      inc.Status,
		UpdatedBy:      actor.UserName,
		Timestamp:      now,
	})
	s.audit.Record(actor.UserID, ActionIncidentCancel, "incident", inc.ID, reason)
	return redact(inc, actor), nil
}

func (s *incidentService) Get(ctx context.Context, id string, actor entity.Identity) (*entity.Incident, error) {
	inc, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role.IsRestricted() && inc.ReporterID != actor.UserID {
		return nil, apperr.Forbidden("you can only view your own incidents")
	}
	return redact(inc, actor), nil
}

func (s *incidentService) List(ctx context.Context, filter entity.IncidentFilter, actor entity.Identity) (*IncidentList, error) {
	if actor.Role.IsRestricted() {
		filter.ReporterID = actor.UserID
	}
	filter.Limit, filter.Offset = normalizePage(filter.Limit, filter.Offset)

	items, total, err := s.incidents.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}
	counts, err := s.incidents.CountByStatus(ctx, filter.ReporterID)
	if err != nil {
		return nil, fmt.Errorf("failed to count incidents: %w", err)
	}
	critical, err := s.incidents.CountOpenCritical(ctx, filter.ReporterID)
	if err != nil {
		return nil, fmt.Errorf("failed to count critical incidents: %w", err)
	}

	out := make([]entity.Incident, 0, len(items))
	for i := range items {
		out = append(out, *redact(&items[i], actor))
	}
	return &IncidentList{Incidents: out, Total: total, StatusCounts: counts, OpenCritical: critical}, nil
}

func (s *incidentService) ListMine(ctx context.Context, actor entity.Identity, limit, offset int) (*IncidentList, error) {
	return s.List(ctx, entity.IncidentFilter{ReporterID: actor.UserID, Limit: limit, Offset: offset}, actor)
}

func (s *incidentService) newIncident(actor entity.Identity, anonymous bool, now time.Time) *entity.Incident {
	inc := &entity.Incident{
		ID:          idgen.Incident(),
		ReporterID:  actor.UserID,
		IsAnonymous: anonymous,
		Status:      entity.IncidentNew,
		History:     entity.NewStatusHistory(entity.StatusHistoryEntry{Status: entity.IncidentNew, Timestamp: now, Actor: systemActor}),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if !anonymous {
		inc.ReporterName = actor.UserName
		inc.ReporterRole = actor.Role
		inc.ReporterEmail = actor.Email
	}
	return inc
}

func (s *incidentService) load(ctx context.Context, id string) (*entity.Incident, error) {
	inc, err := s.incidents.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load incident: %w", err)
	}
	if inc == nil {
		return nil, apperr.NotFound("incident", id)
	}
	return inc, nil
}

// save écrit la transition si personne ne l'a devancée depuis la lecture.
func (s *incidentService) save(ctx context.Context, inc *entity.Incident, expected entity.IncidentStatus) error {
	ok, err := s.incidents.UpdateStatus(ctx, inc, expected)
	if err != nil {
		return fmt.Errorf("failed to update incident: %w", err)
	}
	if ok {
		return nil
	}
	current, err := s.load(ctx, inc.ID)
	if err != nil {
		return err
	}
	return &apperr.InvalidTransitionError{Entity: "incident", From: string(current.Status), To: string(inc.Status)}
}

func (s *incidentService) notifyStaff(inc *entity.Incident, n channel.Notification) {
	s.fx.submit("staff push", inc.ID, func(ctx context.Context) error {
		staff, err := s.users.ListOnDutyStaff(ctx)
		if err != nil {
			return err
		}
		tokens := deviceTokens(staff)
		if len(tokens) == 0 {
			return nil
		}
		_, err = s.fx.Gateway.SendPush(ctx, tokens, n)
		return err
	})
}

func (s *incidentService) afterStatusChange(inc *entity.Incident, from entity.IncidentStatus, actor entity.Identity, at time.Time) {
	if !inc.IsAnonymous && inc.ReporterID != "" {
		snapshot := *inc
		s.fx.submit("reporter notification", inc.ID, func(ctx context.Context) error {
			reporter, err := s.users.GetByID(ctx, snapshot.ReporterID)
			if err != nil || reporter == nil {
				return err
			}
			if tokens := reporter.DeviceTokens; len(tokens) > 0 {
				if _, err := s.fx.Gateway.SendPush(ctx, tokens, incidentUpdatedPush(&snapshot)); err != nil {
					s.fx.logger().Warn("reporter push failed", zap.String("incident_id", snapshot.ID), zap.Error(err))
				}
			}
			if reporter.Email == "" {
				return nil
			}
			return s.fx.Gateway.SendEmail(ctx, []string{reporter.Email}, incidentUpdatedEmail(&snapshot, reporter.Name))
		})
	}
	s.fx.publish(inc.ID, realtime.RoomAll, realtime.EventIncidentUpdated, IncidentUpdatedEvent{
		IncidentID:     inc.ID,
		PreviousStatus: from,
		NewStatus:      inc.Status,
		UpdatedBy:      actor.UserName,
		Timestamp:      at,
	})
}

// redact masque le déclarant d'un incident anonyme à qui n'en est ni
// l'auteur ni un administrateur.
func redact(inc *entity.Incident, viewer entity.Identity) *entity.Incident {
	if !inc.IsAnonymous || viewer.IsAdmin() || (viewer.UserID != "" && viewer.UserID == inc.ReporterID) {
		return inc
	}
	out := *inc
	out.ReporterID = ""
	out.ReporterName = ""
	out.ReporterRole = ""
	out.ReporterEmail = ""
	return &out
}

func emergencyLocation(actor entity.Identity, lat, lon float64, now time.Time) *entity.Location {
	zone := actor.Zone
	if zone == "" {
		zone = "Unknown"
	}
	return &entity.Location{
		ID:           idgen.Location(),
		Building:     "Emergency Location",
		Latitude:     lat,
		Longitude:    lon,
		MapLocation:  fmt.Sprintf("Emergency location at %.6f, %.6f", lat, lon),
		Zone:         zone,
		LocationType: "Other",
		CreatedAt:    now,
	}
}

func locationLabel(loc *entity.Location) string {
	label := loc.Building
	if loc.Room != "" {
		label += ", Room " + loc.Room
	}
	if loc.Building == "Emergency Location" && loc.MapLocation != "" {
		label = loc.MapLocation
	}
	return label
}

func panicDescription(accuracy *float64) string {
	if accuracy == nil {
		return "Emergency panic button activated. Location accuracy: unknown"
	}
	return fmt.Sprintf("Emergency panic button activated. Location accuracy: %.0f meters", *accuracy)
}

func validateLength(field, value string, min, max int) error {
	n := utf8.RuneCountInString(value)
	if n < min || n > max {
		return apperr.Validation(field, "must be between %d and %d characters", min, max)
	}
	return nil
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
