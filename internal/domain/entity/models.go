package entity

import (
	"time"
)

// Définition des types ENUM pour garantir la sécurité du typage
type UserRole string
type UserStatus string

const (
	RoleAdmin         UserRole = "Admin"
	RoleSecurityStaff UserRole = "SecurityStaff"
	RoleStudent       UserRole = "Student"
	RoleVisitor       UserRole = "Visitor"
)

const (
	UserActive    UserStatus = "Active"
	UserSuspended UserStatus = "Suspended"
	UserPending   UserStatus = "Pending"
	UserExpired   UserStatus = "Expired"
	UserDeleted   UserStatus = "Deleted"
)

func (r UserRole) IsValid() bool {
	switch r {
	case RoleAdmin, RoleSecurityStaff, RoleStudent, RoleVisitor:
		return true
	}
	return false
}

// IsStaff couvre les rôles qui traitent les incidents et diffusent des alertes.
func (r UserRole) IsStaff() bool {
	return r == RoleAdmin || r == RoleSecurityStaff
}

// IsRestricted couvre les rôles qui ne voient que leurs propres données.
func (r UserRole) IsRestricted() bool {
	return r == RoleStudent || r == RoleVisitor
}

// User définit un compte du campus (étudiant, visiteur, agent, admin)
type User struct {
	ID                string             `json:"id" db:"user_id"`
	Name              string             `json:"name" db:"user_name"`
	Email             string             `json:"email" db:"email"`
	PasswordHash      string             `json:"-" db:"password"` // Le hash ne doit jamais sortir en JSON
	Role              UserRole           `json:"role" db:"role"`
	Status            UserStatus         `json:"status" db:"status"`
	Zone              string             `json:"zone,omitempty" db:"zone"`
	DeviceTokens      []string           `json:"-" db:"device_tokens"`
	OnDuty            bool               `json:"on_duty" db:"is_on_duty"`
	EmergencyContacts []EmergencyContact `json:"emergency_contacts,omitempty" db:"emergency_contacts"`
	CreatedAt         time.Time          `json:"created_at" db:"created_at"`
	LastLoginAt       *time.Time         `json:"last_login_at,omitempty" db:"last_login"`
}

type EmergencyContact struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Phone        string `json:"phone,omitempty"`
	Relationship string `json:"relationship,omitempty"`
}

// Identity est le principal authentifié tel que fourni par la couche d'auth.
type Identity struct {
	UserID   string     `json:"user_id"`
	UserName string     `json:"user_name"`
	Email    string     `json:"email,omitempty"`
	Role     UserRole   `json:"role"`
	Zone     string     `json:"zone,omitempty"`
	Status   UserStatus `json:"status"`
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

func (u *User) Identity() Identity {
	return Identity{
		UserID:   u.ID,
		UserName: u.Name,
		Email:    u.Email,
		Role:     u.Role,
		Zone:     u.Zone,
		Status:   u.Status,
	}
}

// Location représente un bâtiment ou point connu du campus
type Location struct {
	ID           string    `json:"id" db:"location_id"`
	Building     string    `json:"building" db:"building"`
	Floor        string    `json:"floor,omitempty" db:"floor"`
	Room         string    `json:"room,omitempty" db:"room"`
	Latitude     float64   `json:"latitude" db:"latitude"`
	Longitude    float64   `json:"longitude" db:"longitude"`
	MapLocation  string    `json:"map_location,omitempty" db:"map_location"`
	Zone         string    `json:"zone" db:"zone"`
	LocationType string    `json:"location_type" db:"location_type"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// AuditLog représente une entrée dans le journal d'audit persistent
type AuditLog struct {
	ID         string    `json:"id" db:"audit_id"`
	ActorID    string    `json:"actor_id" db:"actor_id"`
	ActionType string    `json:"action_type" db:"action_type"`
	TargetType string    `json:"target_type" db:"target_type"`
	TargetID   string    `json:"target_id" db:"target_id"`
	Outcome    string    `json:"outcome" db:"outcome"`
	Details    string    `json:"details,omitempty" db:"details"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

type UserCounts struct {
	Total       int `json:"total"`
	Active      int `json:"active"`
	OnDutyStaff int `json:"onDutyStaff"`
}
