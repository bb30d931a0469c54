// Package channel regroupe les transports de notification sortants
// (push mobile et e-mail).
package channel

import (
	"context"
	"time"
)

type Notification struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

type PushResult struct {
	SuccessCount int `json:"successCount"`
	FailureCount int `json:"failureCount"`
}

type Email struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// EmailJob est le message déposé dans la file des e-mails sortants.
type EmailJob struct {
	To       []string  `json:"to"`
	Subject  string    `json:"subject"`
	Body     string    `json:"body"`
	QueuedAt time.Time `json:"queued_at"`
}

type Pusher interface {
	SendPush(ctx context.Context, tokens []string, n Notification) (PushResult, error)
}

type Mailer interface {
	SendEmail(ctx context.Context, recipients []string, e Email) error
}

// Gateway est la passerelle consommée par les services.
type Gateway interface {
	Pusher
	Mailer
}

type gateway struct {
	Pusher
	Mailer
}

func NewGateway(p Pusher, m Mailer) Gateway {
	return &gateway{Pusher: p, Mailer: m}
}
