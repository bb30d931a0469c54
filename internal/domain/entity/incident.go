package entity

import (
	"encoding/json"
	"time"
)

type IncidentStatus string
type IncidentType string
type Priority string

const (
	IncidentNew        IncidentStatus = "New"
	IncidentInProgress IncidentStatus = "In Progress"
	IncidentEscalated  IncidentStatus = "Escalated"
	IncidentResolved   IncidentStatus = "Resolved"
	IncidentClosed     IncidentStatus = "Closed"
	IncidentRejected   IncidentStatus = "Rejected"
	IncidentCancelled  IncidentStatus = "Cancelled"
)

const (
	TypeTheft              IncidentType = "Theft"
	TypeMedical            IncidentType = "Medical"
	TypeFire               IncidentType = "Fire"
	TypeSuspiciousActivity IncidentType = "Suspicious Activity"
	TypeMaintenance        IncidentType = "Maintenance"
	TypeViolence           IncidentType = "Violence"
	TypeEmergencyPanic     IncidentType = "Emergency Panic"
	TypeOther              IncidentType = "Other"
)

const (
	PriorityLow      Priority = "Low"
	PriorityMedium   Priority = "Medium"
	PriorityHigh     Priority = "High"
	PriorityCritical Priority = "Critical"
)

func (s IncidentStatus) IsValid() bool {
	switch s {
	case IncidentNew, IncidentInProgress, IncidentEscalated, IncidentResolved,
		IncidentClosed, IncidentRejected, IncidentCancelled:
		return true
	}
	return false
}

func (s IncidentStatus) IsTerminal() bool {
	switch s {
	case IncidentResolved, IncidentClosed, IncidentRejected, IncidentCancelled:
		return true
	}
	return false
}

func (t IncidentType) IsValid() bool {
	switch t {
	case TypeTheft, TypeMedical, TypeFire, TypeSuspiciousActivity,
		TypeMaintenance, TypeViolence, TypeEmergencyPanic, TypeOther:
		return true
	}
	return false
}

func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Evidence désigne la pièce exigée par une transition.
type Evidence int

const (
	EvidenceNone Evidence = iota
	EvidenceResolutionNotes
	EvidenceEscalationReason
)

// MinEvidenceLength s'applique aux notes de résolution et aux motifs d'escalade.
const MinEvidenceLength = 10

// incidentTransitions est l'unique source de vérité du graphe de statuts.
var incidentTransitions = map[IncidentStatus]map[IncidentStatus]Evidence{
	IncidentNew: {
		IncidentInProgress: EvidenceNone,
		IncidentRejected:   EvidenceNone,
		IncidentCancelled:  EvidenceNone,
	},
	IncidentInProgress: {
		IncidentEscalated: EvidenceEscalationReason,
		IncidentResolved:  EvidenceResolutionNotes,
	},
	IncidentEscalated: {
		IncidentResolved: EvidenceResolutionNotes,
	},
}

// RequiredEvidence indique si from→to est autorisée et quelle pièce elle exige.
func RequiredEvidence(from, to IncidentStatus) (Evidence, bool) {
	ev, ok := incidentTransitions[from][to]
	return ev, ok
}

// AllowedTransitions liste les statuts atteignables depuis from.
func AllowedTransitions(from IncidentStatus) []IncidentStatus {
	order := []IncidentStatus{IncidentInProgress, IncidentEscalated, IncidentResolved, IncidentRejected, IncidentCancelled}
	var out []IncidentStatus
	for _, s := range order {
		if _, ok := incidentTransitions[from][s]; ok {
			out = append(out, s)
		}
	}
	return out
}

type StatusHistoryEntry struct {
	Status    IncidentStatus `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Actor     string         `json:"updatedBy"`
}

// StatusHistory est en ajout seul : aucune méthode ne réécrit une entrée.
type StatusHistory struct {
	entries []StatusHistoryEntry
}

func NewStatusHistory(entries ...StatusHistoryEntry) StatusHistory {
	h := StatusHistory{}
	for _, e := range entries {
		h.append(e)
	}
	return h
}

func (h *StatusHistory) append(e StatusHistoryEntry) {
	h.entries = append(h.entries, e)
}

func (h StatusHistory) Len() int {
	return len(h.entries)
}

// Entries retourne une copie pour ne pas exposer le slice interne.
func (h StatusHistory) Entries() []StatusHistoryEntry {
	out := make([]StatusHistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

func (h StatusHistory) MarshalJSON() ([]byte, error) {
	if h.entries == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(h.entries)
}

// UnmarshalJSON sert uniquement à réhydrater l'historique depuis le stockage.
func (h *StatusHistory) UnmarshalJSON(data []byte) error {
	var entries []StatusHistoryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	h.entries = entries
	return nil
}

func (h StatusHistory) Last() (StatusHistoryEntry, bool) {
	if len(h.entries) == 0 {
		return StatusHistoryEntry{}, false
	}
	return h.entries[len(h.entries)-1], true
}

// Incident représente un signalement de sécurité sur le campus
type Incident struct {
	ID               string         `json:"id" db:"incident_id"`
	ReporterID       string         `json:"reporter_id" db:"incident_sender_id"`
	ReporterName     string         `json:"reporter_name,omitempty" db:"sender_name"`
	ReporterRole     UserRole       `json:"reporter_role,omitempty" db:"sender_role"`
	ReporterEmail    string         `json:"reporter_email,omitempty" db:"sender_email"`
	IsAnonymous      bool           `json:"is_anonymous" db:"is_anonymous"`
	Type             IncidentType   `json:"incident_type" db:"incident_type"`
	Description      string         `json:"description" db:"description"`
	Status           IncidentStatus `json:"status" db:"status"`
	Priority         Priority       `json:"priority" db:"priority"`
	Latitude         *float64       `json:"latitude,omitempty" db:"latitude"`
	Longitude        *float64       `json:"longitude,omitempty" db:"longitude"`
	H3Index          string         `json:"h3_index,omitempty" db:"h3_index"`
	LocationID       string         `json:"location_id,omitempty" db:"location_id"`
	LocationLabel    string         `json:"location_label" db:"map_location"`
	MediaURLs        []string       `json:"media_urls" db:"media_urls"`
	AssignedTo       string         `json:"assigned_to,omitempty" db:"assigned_to"`
	ResponseTime     *float64       `json:"response_time,omitempty" db:"response_time"` // minutes
	ResolutionNotes  string         `json:"resolution_notes,omitempty" db:"resolution_notes"`
	EscalationReason string         `json:"escalation_reason,omitempty" db:"escalation_reason"`
	History          StatusHistory  `json:"status_history" db:"status_history"`
	CreatedAt        time.Time      `json:"created_at" db:"date_time"`
	UpdatedAt        time.Time      `json:"updated_at" db:"updated_at"`
	ResolvedAt       *time.Time     `json:"resolved_at,omitempty" db:"resolved_at"`
	CancelledAt      *time.Time     `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CancelReason     string         `json:"cancel_reason,omitempty" db:"cancel_reason"`
}

// AppendHistory est le seul point d'écriture de l'historique ; il met aussi
// à jour le statut courant.
func (i *Incident) AppendHistory(status IncidentStatus, at time.Time, actor string) {
	i.Status = status
	i.UpdatedAt = at
	i.History.append(StatusHistoryEntry{Status: status, Timestamp: at, Actor: actor})
}

// FreezeResponseTime fixe le temps de réponse une seule fois.
func (i *Incident) FreezeResponseTime(at time.Time) {
	if i.ResponseTime != nil {
		return
	}
	minutes := float64(at.Sub(i.CreatedAt).Milliseconds()) / 60000.0
	minutes = float64(int64(minutes*100+0.5)) / 100
	i.ResponseTime = &minutes
}

// Sender masque le déclarant pour les incidents anonymes.
func (i *Incident) Sender() *Reporter {
	if i.IsAnonymous {
		return nil
	}
	return &Reporter{Name: i.ReporterName, Role: i.ReporterRole, Email: i.ReporterEmail}
}

type Reporter struct {
	Name  string   `json:"name"`
	Role  UserRole `json:"role"`
	Email string   `json:"email,omitempty"`
}

// IncidentFilter regroupe les critères de la liste des incidents.
type IncidentFilter struct {
	ReporterID string
	Status     IncidentStatus
	Type       IncidentType
	Priority   Priority
	AssignedTo string
	From       *time.Time
	To         *time.Time
	Search     string
	Limit      int
	Offset     int
}
