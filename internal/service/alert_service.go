package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ammar0101/campus-security-system/internal/domain/apperr"
	"github.com/ammar0101/campus-security-system/internal/domain/entity"
	"github.com/ammar0101/campus-security-system/internal/domain/repository"
	"github.com/ammar0101/campus-security-system/internal/platform/idgen"
	"github.com/ammar0101/campus-security-system/internal/platform/realtime"
	"go.uber.org/zap"
)

const (
	maxAlertMessageLength = 500
	defaultCancelReason   = "Cancelled by sender"
)

type AlertConfig struct {
	Now func() time.Time
}

type CreateAlertInput struct {
	Message                string                    `json:"message" binding:"required"`
	Type                   entity.AlertType          `json:"alert_type" binding:"required"`
	Severity               entity.Severity           `json:"severity" binding:"required"`
	Audience               entity.Audience           `json:"target_audience"`
	ExpiresAt              *time.Time                `json:"expires_at" binding:"required"`
	RelatedIncidentID      string                    `json:"related_incident_id"`
	RequiresAcknowledgment bool                      `json:"requires_acknowledgment"`
	AffectedLocations      []entity.AffectedLocation `json:"affected_locations"`
}

type AlertCreated struct {
	AlertID     string             `json:"alert_id"`
	Status      entity.AlertStatus `json:"status"`
	TargetCount int                `json:"target_count"`
	ExpiresAt   time.Time          `json:"expires_at"`
}

// AlertView ajoute à l'alerte l'état de livraison propre au lecteur.
type AlertView struct {
	entity.Alert
	MyStatus         entity.DeliveryStatus `json:"my_status,omitempty"`
	MyAcknowledgedAt *time.Time            `json:"my_acknowledged_at,omitempty"`
}

type AlertList struct {
	Alerts            []AlertView `json:"alerts"`
	Total             int         `json:"total"`
	ActiveAlertsCount int         `json:"active_alerts_count"`
}

type AcknowledgeResult struct {
	AlertID           string    `json:"alert_id"`
	AcknowledgedAt    time.Time `json:"acknowledged_at"`
	TotalAcknowledged int       `json:"total_acknowledged"`
}

type AlertBroadcastEvent struct {
	Alert *entity.Alert `json:"alert"`
}

type AlertAcknowledgedEvent struct {
	AlertID           string    `json:"alertId"`
	UserID            string    `json:"userId"`
	UserName          string    `json:"userName"`
	AcknowledgedAt    time.Time `json:"acknowledgedAt"`
	TotalAcknowledged int       `json:"totalAcknowledged"`
}

type AlertCancelledEvent struct {
	AlertID string `json:"alertId"`
	Reason  string `json:"reason"`
}

type AlertService interface {
	Create(ctx context.Context, actor entity.Identity, in CreateAlertInput) (*AlertCreated, error)
	Acknowledge(ctx context.Context, alertID string, actor entity.Identity) (*AcknowledgeResult, error)
	Cancel(ctx context.Context, alertID, reason string, actor entity.Identity) (*entity.Alert, error)
	Get(ctx context.Context, alertID string, actor entity.Identity) (*AlertView, error)
	List(ctx context.Context, filter entity.AlertFilter, actor entity.Identity) (*AlertList, error)
	// ExpireDue archive les alertes diffusées dont l'échéance est passée.
	ExpireDue(ctx context.Context) (int, error)
}

type alertService struct {
	alerts     repository.AlertRepository
	recipients repository.AlertRecipientRepository
	users      repository.UserRepository
	incidents  repository.IncidentRepository
	locations  repository.LocationRepository
	audit      AuditService
	fx         *Effects
	cfg        AlertConfig
}

func NewAlertService(
	alerts repository.AlertRepository,
	recipients repository.AlertRecipientRepository,
	users repository.UserRepository,
	incidents repository.IncidentRepository,
	locations repository.LocationRepository,
	audit AuditService,
	fx *Effects,
	cfg AlertConfig,
) AlertService {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &alertService{
		alerts:     alerts,
		recipients: recipients,
		users:      users,
		incidents:  incidents,
		locations:  locations,
		audit:      audit,
		fx:         fx,
		cfg:        cfg,
	}
}

func (s *alertService) now() time.Time {
	return s.cfg.Now().UTC()
}

func (s *alertService) validate(ctx context.Context, in *CreateAlertInput, now time.Time) error {
	in.Message = strings.TrimSpace(in.Message)
	if err := validateLength("message", in.Message, 1, maxAlertMessageLength); err != nil {
		return err
	}
	if !in.Type.IsValid() {
		return apperr.Validation("alert_type", "unknown alert type %q", in.Type)
	}
	if !in.Severity.IsValid() {
		return apperr.Validation("severity", "unknown severity %q", in.Severity)
	}
	if in.ExpiresAt == nil {
		return apperr.Validation("expires_at", "expiration is required")
	}
	if !in.ExpiresAt.After(now) {
		return apperr.Validation("expires_at", "expiration must be in the future")
	}
	if in.Audience.IsEmpty() {
		return apperr.Validation("target_audience", "audience must target at least one role or user")
	}
	for _, r := range in.Audience.Roles {
		if !r.IsValid() {
			return apperr.Validation("target_audience.roles", "unknown role %q", r)
		}
	}
	if in.RelatedIncidentID != "" {
		inc, err := s.incidents.GetByID(ctx, in.RelatedIncidentID)
		if err != nil {
			return fmt.Errorf("failed to load related incident: %w", err)
		}
		if inc == nil {
			return apperr.NotFound("incident", in.RelatedIncidentID)
		}
	}
	for _, al := range in.AffectedLocations {
		loc, err := s.locations.GetByID(ctx, al.LocationID)
		if err != nil {
			return fmt.Errorf("failed to load location: %w", err)
		}
		if loc == nil {
			return apperr.NotFound("location", al.LocationID)
		}
	}
	return nil
}

func (s *alertService) Create(ctx context.Context, actor entity.Identity, in CreateAlertInput) (*AlertCreated, error) {
	if !actor.Role.IsStaff() {
		return nil, apperr.Forbidden("only security staff can broadcast alerts")
	}
	now := s.now()
	if err := s.validate(ctx, &in, now); err != nil {
		return nil, err
	}

	audience := normalizeAudience(in.Audience)
	targets, err := s.resolveAudience(ctx, audience)
	if err != nil {
		return nil, err
	}

	alert := &entity.Alert{
		ID:                     idgen.Alert(),
		SenderID:               actor.UserID,
		SenderName:             actor.UserName,
		SenderRole:             actor.Role,
		Message:                in.Message,
		Type:                   in.Type,
		Severity:               in.Severity,
		Status:                 entity.AlertBroadcasting,
		Audience:               audience,
		RequiresAcknowledgment: in.RequiresAcknowledgment,
		RelatedIncidentID:      in.RelatedIncidentID,
		AffectedLocations:      in.AffectedLocations,
		RecipientCount:         len(targets),
		DeliveryStats:          entity.DeliveryStats{Sent: len(targets)},
		ExpiresAt:              in.ExpiresAt.UTC(),
		SentAt:                 now,
		CreatedAt:              now,
	}

	rows := make([]entity.AlertRecipient, 0, len(targets))
	for _, u := range targets {
		rows = append(rows, entity.AlertRecipient{
			AlertID:        alert.ID,
			RecipientID:    u.ID,
			DeliveryStatus: entity.DeliveryPending,
			CreatedAt:      now,
		})
	}
	// l'alerte et ses destinataires sont enregistrés ensemble ou pas du tout
	if err := s.alerts.CreateWithRecipients(ctx, alert, rows); err != nil {
		return nil, fmt.Errorf("failed to create alert: %w", err)
	}

	s.push(alert, targets)
	if alert.Severity == entity.SeverityCritical {
		s.fx.email("alert email", alert.ID, emails(targets), alertEmail(alert))
	}
	rooms := make([]string, 0, len(targets))
	for _, u := range targets {
		rooms = append(rooms, u.ID)
	}
	s.fx.publishEach(alert.ID, rooms, realtime.EventAlertBroadcast, AlertBroadcastEvent{Alert: alert})
	s.audit.Record(actor.UserID, ActionAlertCreate, "alert", alert.ID,
		fmt.Sprintf("%s/%s to %d recipients", alert.Severity, alert.Type, len(targets)))

	s.fx.logger().Info("alert broadcast",
		zap.String("alert_id", alert.ID),
		zap.String("severity", string(alert.Severity)),
		zap.Int("recipients", len(targets)))

	return &AlertCreated{
		AlertID:     alert.ID,
		Status:      alert.Status,
		TargetCount: len(targets),
		ExpiresAt:   alert.ExpiresAt,
	}, nil
}

// resolveAudience réunit les utilisateurs actifs ciblés par rôle et ceux
// désignés nommément. Les zones ne filtrent que les correspondances de rôle.
func (s *alertService) resolveAudience(ctx context.Context, a entity.Audience) ([]entity.User, error) {
	users, err := s.users.ListActiveByRolesOrIDs(ctx, a.Roles, a.SpecificUsers)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve audience: %w", err)
	}
	named := toSet(a.SpecificUsers)
	zones := toSet(a.Zones)

	out := make([]entity.User, 0, len(users))
	seen := make(map[string]bool, len(users))
	for _, u := range users {
		if seen[u.ID] || u.Status != entity.UserActive {
			continue
		}
		if !named[u.ID] && len(zones) > 0 && !zones[u.Zone] {
			continue
		}
		seen[u.ID] = true
		out = append(out, u)
	}
	return out, nil
}

// push envoie le multicast en tâche détachée puis consigne le résultat
// dans les statistiques et sur chaque destinataire joignable.
func (s *alertService) push(alert *entity.Alert, targets []entity.User) {
	var reachable []string
	var tokens []string
	for _, u := range targets {
		if len(u.DeviceTokens) == 0 {
			continue
		}
		reachable = append(reachable, u.ID)
		tokens = append(tokens, u.DeviceTokens...)
	}
	if len(tokens) == 0 {
		return
	}
	n := alertPush(alert)
	recipientCount := len(targets)

	s.fx.submit("alert push", alert.ID, func(ctx context.Context) error {
		stats := entity.DeliveryStats{Sent: recipientCount}
		res, pushErr := s.fx.Gateway.SendPush(ctx, tokens, n)
		at := s.now()

		var status entity.DeliveryStatus
		reason := ""
		switch {
		case pushErr != nil:
			stats.Failed = len(tokens)
			status = entity.DeliveryFailed
			reason = pushErr.Error()
		case res.SuccessCount == 0 && res.FailureCount == 0:
			stats.Delivered = len(tokens)
			status = entity.DeliveryDelivered
		default:
			stats.Delivered = res.SuccessCount
			stats.Failed = res.FailureCount
			status = entity.DeliveryDelivered
			if res.FailureCount > 0 {
				status = entity.DeliverySent
			}
		}

		err := s.alerts.UpdateDelivery(ctx, alert.ID, recipientCount, stats)
		if markErr := s.recipients.MarkDelivery(ctx, alert.ID, reachable, status, at, reason); markErr != nil {
			err = errors.Join(err, markErr)
		}
		if pushErr != nil {
			err = errors.Join(err, pushErr)
		}
		return err
	})
}

func (s *alertService) Acknowledge(ctx context.Context, alertID string, actor entity.Identity) (*AcknowledgeResult, error) {
	alert, err := s.load(ctx, alertID)
	if err != nil {
		return nil, err
	}
	row, err := s.recipients.GetRecipient(ctx, alertID, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load alert recipient: %w", err)
	}
	if row == nil {
		return nil, apperr.ErrRecipientNotFound
	}
	if row.AcknowledgedAt != nil {
		return nil, apperr.ErrAlreadyAcknowledged
	}

	now := s.now()
	ok, err := s.recipients.MarkAcknowledged(ctx, alertID, actor.UserID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to acknowledge alert: %w", err)
	}
	if !ok {
		return nil, apperr.ErrAlreadyAcknowledged
	}
	total, err := s.alerts.IncrementAcknowledgmentCount(ctx, alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to count acknowledgment: %w", err)
	}

	s.fx.publish(alert.ID, alert.SenderID, realtime.EventAlertAcknowledged, AlertAcknowledgedEvent{
		AlertID:           alert.ID,
		UserID:            actor.UserID,
		UserName:          actor.UserName,
		AcknowledgedAt:    now,
		TotalAcknowledged: total,
	})
	s.audit.Record(actor.UserID, ActionAlertAcknowledge, "alert", alert.ID, "")

	return &AcknowledgeResult{AlertID: alert.ID, AcknowledgedAt: now, TotalAcknowledged: total}, nil
}

func (s *alertService) Cancel(ctx context.Context, alertID, reason string, actor entity.Identity) (*entity.Alert, error) {
	alert, err := s.load(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if alert.SenderID != actor.UserID && !actor.IsAdmin() {
		return nil, apperr.Forbidden("only the sender or an admin can cancel this alert")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultCancelReason
	}

	now := s.now()
	ok, err := s.alerts.Cancel(ctx, alertID, now, reason)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel alert: %w", err)
	}
	if !ok {
		return nil, &apperr.InvalidTransitionError{Entity: "alert", From: string(alert.Status), To: string(entity.AlertCancelled)}
	}
	alert.Status = entity.AlertCancelled
	alert.CancelledAt = &now
	alert.CancelReason = reason

	s.fx.publish(alert.ID, realtime.RoomAll, realtime.EventAlertCancelled, AlertCancelledEvent{AlertID: alert.ID, Reason: reason})
	s.audit.Record(actor.UserID, ActionAlertCancel, "alert", alert.ID, reason)
	return alert, nil
}

func (s *alertService) Get(ctx context.Context, alertID string, actor entity.Identity) (*AlertView, error) {
	alert, err := s.load(ctx, alertID)
	if err != nil {
		return nil, err
	}
	view := &AlertView{Alert: *alert}
	if !actor.Role.IsRestricted() {
		return view, nil
	}

	row, err := s.recipients.GetRecipient(ctx, alertID, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load alert recipient: %w", err)
	}
	if row == nil {
		return nil, apperr.Forbidden("you are not a recipient of this alert")
	}
	view.MyStatus = row.DeliveryStatus
	view.MyAcknowledgedAt = row.AcknowledgedAt
	if row.ReadAt == nil {
		marked, err := s.recipients.MarkRead(ctx, alertID, actor.UserID, s.now())
		if err != nil {
			s.fx.logger().Warn("failed to mark alert read", zap.String("alert_id", alertID), zap.Error(err))
		} else if marked && row.DeliveryStatus.CanAdvance(entity.DeliveryRead) {
			view.MyStatus = entity.DeliveryRead
		}
	}
	return view, nil
}

func (s *alertService) List(ctx context.Context, filter entity.AlertFilter, actor entity.Identity) (*AlertList, error) {
	restricted := actor.Role.IsRestricted()
	if restricted {
		filter.RecipientID = actor.UserID
	}
	now := s.now()
	filter.Now = now
	filter.Limit, filter.Offset = normalizePage(filter.Limit, filter.Offset)

	items, total, err := s.alerts.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}

	views := make([]AlertView, 0, len(items))
	for _, a := range items {
		views = append(views, AlertView{Alert: a})
	}

	var active int
	if restricted {
		ids := make([]string, 0, len(items))
		for _, a := range items {
			ids = append(ids, a.ID)
		}
		mine, err := s.recipients.ListForRecipient(ctx, actor.UserID, ids)
		if err != nil {
			return nil, fmt.Errorf("failed to load alert recipients: %w", err)
		}
		for i := range views {
			if row, ok := mine[views[i].ID]; ok {
				views[i].MyStatus = row.DeliveryStatus
				views[i].MyAcknowledgedAt = row.AcknowledgedAt
			}
		}
		_, active, err = s.alerts.List(ctx, entity.AlertFilter{RecipientID: actor.UserID, ActiveOnly: true, Now: now, Limit: 1})
		if err != nil {
			return nil, fmt.Errorf("failed to count active alerts: %w", err)
		}
	} else {
		active, err = s.alerts.CountActive(ctx, now)
		if err != nil {
			return nil, fmt.Errorf("failed to count active alerts: %w", err)
		}
	}

	return &AlertList{Alerts: views, Total: total, ActiveAlertsCount: active}, nil
}

func (s *alertService) ExpireDue(ctx context.Context) (int, error) {
	now := s.now()
	n, err := s.alerts.ArchiveExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to archive expired alerts: %w", err)
	}
	if n > 0 {
		s.audit.Record(systemActor, ActionAlertExpire, "alert", "",
			fmt.Sprintf("%d alerts archived at %s", n, now.Format(time.RFC3339)))
		s.fx.logger().Info("expired alerts archived", zap.Int("count", n))
	}
	return n, nil
}

func (s *alertService) load(ctx context.Context, id string) (*entity.Alert, error) {
	alert, err := s.alerts.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load alert: %w", err)
	}
	if alert == nil {
		return nil, apperr.NotFound("alert", id)
	}
	return alert, nil
}

func normalizeAudience(a entity.Audience) entity.Audience {
	out := entity.Audience{
		Roles:         []entity.UserRole{},
		Zones:         []string{},
		SpecificUsers: []string{},
	}
	out.Roles = append(out.Roles, a.Roles...)
	for _, z := range a.Zones {
		if z = strings.TrimSpace(z); z != "" {
			out.Zones = append(out.Zones, z)
		}
	}
	for _, id := range a.SpecificUsers {
		if id = strings.TrimSpace(id); id != "" {
			out.SpecificUsers = append(out.SpecificUsers, id)
		}
	}
	return out
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

func emails(users []entity.User) []string {
	var out []string
	for _, u := range users {
		if u.Email != "" {
			out = append(out, u.Email)
		}
	}
	return out
}
