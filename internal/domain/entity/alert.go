package entity

import (
	"time"
)

type AlertStatus string
type AlertType string
type Severity string
type DeliveryStatus string

const (
	AlertDraft        AlertStatus = "Draft"
	AlertApproved     AlertStatus = "Approved"
	AlertBroadcasting AlertStatus = "Broadcasting"
	AlertDelivered    AlertStatus = "Delivered"
	AlertFailed       AlertStatus = "Failed"
	AlertCancelled    AlertStatus = "Cancelled"
	AlertArchived     AlertStatus = "Archived"
)

const (
	AlertEmergency   AlertType = "Emergency"
	AlertWeather     AlertType = "Weather"
	AlertSecurity    AlertType = "Security Threat"
	AlertMaintenance AlertType = "Maintenance"
	AlertEvacuation  AlertType = "Evacuation"
	AlertLockdown    AlertType = "Lockdown"
	AlertGeneral     AlertType = "General"
)

const (
	SeverityLow      Severity = "Low"
	SeverityMedium   Severity = "Medium"
	SeverityHigh     Severity = "High"
	SeverityCritical Severity = "Critical"
)

const (
	DeliveryPending      DeliveryStatus = "Pending"
	DeliverySent         DeliveryStatus = "Sent"
	DeliveryDelivered    DeliveryStatus = "Delivered"
	DeliveryFailed       DeliveryStatus = "Failed"
	DeliveryRead         DeliveryStatus = "Read"
	DeliveryAcknowledged DeliveryStatus = "Acknowledged"
)

func (s AlertStatus) IsValid() bool {
	switch s {
	case AlertDraft, AlertApproved, AlertBroadcasting, AlertDelivered,
		AlertFailed, AlertCancelled, AlertArchived:
		return true
	}
	return false
}

// IsTerminal : une alerte annulée ou archivée ne change plus de statut.
func (s AlertStatus) IsTerminal() bool {
	return s == AlertCancelled || s == AlertArchived
}

// IsLive correspond aux statuts comptés comme « actifs ».
func (s AlertStatus) IsLive() bool {
	return s == AlertBroadcasting || s == AlertDelivered
}

func (t AlertType) IsValid() bool {
	switch t {
	case AlertEmergency, AlertWeather, AlertSecurity, AlertMaintenance,
		AlertEvacuation, AlertLockdown, AlertGeneral:
		return true
	}
	return false
}

func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

var deliveryRank = map[DeliveryStatus]int{
	DeliveryPending:      0,
	DeliverySent:         1,
	DeliveryDelivered:    2,
	DeliveryRead:         3,
	DeliveryAcknowledged: 4,
}

// CanAdvance applique l'ordre monotone des statuts de livraison. Failed est
// atteignable depuis tout état non terminal.
func (s DeliveryStatus) CanAdvance(to DeliveryStatus) bool {
	if s == DeliveryAcknowledged || s == DeliveryFailed {
		return false
	}
	if to == DeliveryFailed {
		return true
	}
	return deliveryRank[to] > deliveryRank[s]
}

type Audience struct {
	Roles         []UserRole `json:"roles"`
	Zones         []string   `json:"zones"`
	SpecificUsers []string   `json:"specificUsers"`
}

// IsEmpty : une audience doit cibler au moins un rôle ou un utilisateur.
func (a Audience) IsEmpty() bool {
	return len(a.Roles) == 0 && len(a.SpecificUsers) == 0
}

type DeliveryStats struct {
	Sent      int `json:"sent"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

type AffectedLocation struct {
	LocationID      string `json:"location_id"`
	AffectedArea    string `json:"affected_area,omitempty"`
	EvacuationRoute string `json:"evacuation_route,omitempty"`
	SafeZone        string `json:"safe_zone,omitempty"`
}

// Alert est une notification diffusée à une audience résolue
type Alert struct {
	ID                     string             `json:"id" db:"alert_id"`
	SenderID               string             `json:"sender_id" db:"alert_sender_id"`
	SenderName             string             `json:"sender_name" db:"sender_name"`
	SenderRole             UserRole           `json:"sender_role" db:"sender_role"`
	Message                string             `json:"message" db:"message"`
	Type                   AlertType          `json:"alert_type" db:"alert_type"`
	Severity               Severity           `json:"severity" db:"severity"`
	Status                 AlertStatus        `json:"status" db:"status"`
	Audience               Audience           `json:"target_audience" db:"-"`
	RequiresAcknowledgment bool               `json:"requires_acknowledgment" db:"requires_acknowledgment"`
	AcknowledgmentCount    int                `json:"acknowledgment_count" db:"acknowledgment_count"`
	RecipientCount         int                `json:"recipient_count" db:"recipient_count"`
	DeliveryStats          DeliveryStats      `json:"delivery_stats" db:"delivery_stats"`
	RelatedIncidentID      string             `json:"related_incident_id,omitempty" db:"related_incident_id"`
	AffectedLocations      []AffectedLocation `json:"affected_locations,omitempty" db:"-"`
	ExpiresAt              time.Time          `json:"expires_at" db:"expires_at"`
	SentAt                 time.Time          `json:"time_sent" db:"time_sent"`
	CancelledAt            *time.Time         `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CancelReason           string             `json:"cancel_reason,omitempty" db:"cancel_reason"`
	CreatedAt              time.Time          `json:"created_at" db:"created_at"`
}

// IsActive : diffusée et non expirée à l'instant now.
func (a *Alert) IsActive(now time.Time) bool {
	return a.Status.IsLive() && a.ExpiresAt.After(now)
}

// AlertRecipient est le suivi de livraison d'une alerte pour un destinataire
type AlertRecipient struct {
	AlertID        string         `json:"alert_id" db:"alert_id"`
	RecipientID    string         `json:"recipient_id" db:"alert_receiver_id"`
	DeliveryStatus DeliveryStatus `json:"delivery_status" db:"delivery_status"`
	DeliveredAt    *time.Time     `json:"delivered_at,omitempty" db:"delivered_at"`
	ReadAt         *time.Time     `json:"read_at,omitempty" db:"read_at"`
	AcknowledgedAt *time.Time     `json:"acknowledged_at,omitempty" db:"acknowledged_at"`
	FailureReason  string         `json:"failure_reason,omitempty" db:"failure_reason"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
}

// AlertFilter regroupe les critères de la liste des alertes.
type AlertFilter struct {
	RecipientID string
	Status      AlertStatus
	Severity    Severity
	Type        AlertType
	From        *time.Time
	To          *time.Time
	ActiveOnly  bool
	Now         time.Time
	Limit       int
	Offset      int
}
