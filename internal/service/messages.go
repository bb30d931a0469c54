package service

import (
	"fmt"
	"strings"

	"github.com/ammar0101/campus-security-system/internal/domain/entity"
	"github.com/ammar0101/campus-security-system/internal/platform/channel"
)

// Gabarits des notifications sortantes.

func incidentCreatedPush(inc *entity.Incident) channel.Notification {
	return channel.Notification{
		Title: fmt.Sprintf("New %s Priority Incident", inc.Priority),
		Body:  fmt.Sprintf("%s reported at %s", inc.Type, placeOf(inc)),
		Data: map[string]string{
			"type":         "incident",
			"incidentId":   inc.ID,
			"priority":     string(inc.Priority),
			"incidentType": string(inc.Type),
		},
	}
}

func panicPush(inc *entity.Incident) channel.Notification {
	return channel.Notification{
		Title: "EMERGENCY PANIC ACTIVATED",
		Body:  fmt.Sprintf("Emergency at %s. Immediate response required!", placeOf(inc)),
		Data: map[string]string{
			"type":       "emergency",
			"incidentId": inc.ID,
			"priority":   string(entity.PriorityCritical),
			"sound":      "emergency_alert.mp3",
		},
	}
}

func panicEmail(inc *entity.Incident) channel.Email {
	var b strings.Builder
	b.WriteString("EMERGENCY PANIC BUTTON ACTIVATED\n\n")
	fmt.Fprintf(&b, "Incident ID: %s\n", inc.ID)
	fmt.Fprintf(&b, "Time: %s\n", inc.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "Location: %s\n\n", placeOf(inc))
	b.WriteString("A user has activated the emergency panic button. Security staff have been notified and are responding.\n\n")
	b.WriteString("This is an automated emergency notification.\n")
	return channel.Email{Subject: "EMERGENCY ALERT - Immediate Attention Required", Body: b.String()}
}

func incidentUpdatedPush(inc *entity.Incident) channel.Notification {
	return channel.Notification{
		Title: "Incident Status Updated",
		Body:  fmt.Sprintf("Your incident %s is now %s", inc.ID, inc.Status),
		Data: map[string]string{
			"type":       "incident_update",
			"incidentId": inc.ID,
			"status":     string(inc.Status),
		},
	}
}

func incidentUpdatedEmail(inc *entity.Incident, reporterName string) channel.Email {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\nYour incident report has been updated.\n\n", reporterName)
	fmt.Fprintf(&b, "Incident ID: %s\nType: %s\nNew Status: %s\nPriority: %s\n", inc.ID, inc.Type, inc.Status, inc.Priority)
	if inc.ResolutionNotes != "" && inc.Status == entity.IncidentResolved {
		fmt.Fprintf(&b, "\nResolution Notes: %s\n", inc.ResolutionNotes)
	}
	b.WriteString("\nBest regards,\nCampus Security Team\n")
	return channel.Email{Subject: fmt.Sprintf("Incident %s Status Updated", inc.ID), Body: b.String()}
}

func alertPush(a *entity.Alert) channel.Notification {
	ack := "false"
	if a.RequiresAcknowledgment {
		ack = "true"
	}
	return channel.Notification{
		Title: fmt.Sprintf("%s Alert: %s", a.Severity, a.Type),
		Body:  a.Message,
		Data: map[string]string{
			"type":                   "alert",
			"alertId":                a.ID,
			"severity":               string(a.Severity),
			"alertType":              string(a.Type),
			"requiresAcknowledgment": ack,
		},
	}
}

func alertEmail(a *entity.Alert) channel.Email {
	var b strings.Builder
	b.WriteString("CAMPUS SECURITY ALERT\n\n")
	fmt.Fprintf(&b, "Severity: %s\nType: %s\n\nMessage:\n%s\n\n", a.Severity, a.Type, a.Message)
	fmt.Fprintf(&b, "Sent: %s\nExpires: %s\n\n", a.SentAt.Format("2006-01-02 15:04 MST"), a.ExpiresAt.Format("2006-01-02 15:04 MST"))
	b.WriteString("This is an automated message from the Campus Security System.\n")
	return channel.Email{Subject: fmt.Sprintf("[%s] Campus Alert: %s", a.Severity, a.Type), Body: b.String()}
}

func placeOf(inc *entity.Incident) string {
	if inc.LocationLabel != "" {
		return inc.LocationLabel
	}
	return "Unknown location"
}
