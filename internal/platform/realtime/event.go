// Package realtime diffuse les événements métier vers les clients websocket
// connectés, regroupés par salles.
package realtime

import (
	"context"
	"encoding/json"

	"github.com/ammar0101/campus-security-system/internal/domain/entity"
)

const (
	RoomSecurityStaff = "security-staff"
	RoomAdmins        = "admins"
	RoomAll           = "all"
)

const (
	EventConnected         = "connected"
	EventIncidentCreated   = "incident:created"
	EventIncidentUpdated   = "incident:updated"
	EventAlertBroadcast    = "alert:broadcast"
	EventAlertAcknowledged = "alert:acknowledged"
	EventAlertCancelled    = "alert:cancelled"
)

// Notifier publie un événement dans une salle : identifiant utilisateur,
// groupe de rôle ou "all".
type Notifier interface {
	Publish(ctx context.Context, room, event string, payload interface{}) error
}

type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Event est la forme transportée entre instances.
type Event struct {
	Room string          `json:"room"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func newEvent(room, event string, payload interface{}) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Room: room, Type: event, Data: data}, nil
}

// RoomsFor retourne les salles qu'une connexion rejoint.
func RoomsFor(identity entity.Identity) []string {
	rooms := []string{identity.UserID, RoomAll}
	switch identity.Role {
	case entity.RoleAdmin:
		rooms = append(rooms, RoomAdmins, RoomSecurityStaff)
	case entity.RoleSecurityStaff:
		rooms = append(rooms, RoomSecurityStaff)
	}
	return rooms
}
