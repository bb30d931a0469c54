// Package memory fournit des dépôts en mémoire utilisés quand aucune base
// n'est configurée (mode dev) et par les tests de services.
package memory

import (
	"sort"
	"strings"
	"time"

	"github.com/ammar0101/campus-security-system/internal/domain/entity"
)

func cloneIncident(in *entity.Incident) *entity.Incident {
	out := *in
	out.History = entity.NewStatusHistory(in.History.Entries()...)
	out.MediaURLs = append([]string(nil), in.MediaURLs...)
	out.Latitude = cloneFloat(in.Latitude)
	out.Longitude = cloneFloat(in.Longitude)
	out.ResponseTime = cloneFloat(in.ResponseTime)
	out.ResolvedAt = cloneTime(in.ResolvedAt)
	out.CancelledAt = cloneTime(in.CancelledAt)
	return &out
}

func cloneAlert(in *entity.Alert) *entity.Alert {
	out := *in
	out.Audience = entity.Audience{
		Roles:         append([]entity.UserRole(nil), in.Audience.Roles...),
		Zones:         append([]string(nil), in.Audience.Zones...),
		SpecificUsers: append([]string(nil), in.Audience.SpecificUsers...),
	}
	out.AffectedLocations = append([]entity.AffectedLocation(nil), in.AffectedLocations...)
	out.CancelledAt = cloneTime(in.CancelledAt)
	return &out
}

func cloneUser(in *entity.User) *entity.User {
	out := *in
	out.DeviceTokens = append([]string(nil), in.DeviceTokens...)
	out.EmergencyContacts = append([]entity.EmergencyContact(nil), in.EmergencyContacts...)
	out.LastLoginAt = cloneTime(in.LastLoginAt)
	return &out
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func inRange(t time.Time, from, to *time.Time) bool {
	if from != nil && t.Before(*from) {
		return false
	}
	if to != nil && t.After(*to) {
		return false
	}
	return true
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// paginate applique offset/limit ; limit <= 0 signifie « pas de limite ».
func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	if offset > 0 {
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func newestFirst[T any](items []T, createdAt func(T) time.Time) {
	sort.SliceStable(items, func(i, j int) bool {
		return createdAt(items[i]).After(createdAt(items[j]))
	})
}
