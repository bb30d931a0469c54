package channel

import (
	"context"
	"fmt"
	"time"

	"github.com/ammar0101/campus-security-system/internal/platform/queue"
)

// QueueMailer dépose les e-mails dans RabbitMQ ; worker.EmailConsumer les livre.
type QueueMailer struct {
	publisher queue.Publisher
	queueName string
}

func NewQueueMailer(publisher queue.Publisher, queueName string) *QueueMailer {
	return &QueueMailer{publisher: publisher, queueName: queueName}
}

func (m *QueueMailer) SendEmail(ctx context.Context, recipients []string, e Email) error {
	if len(recipients) == 0 {
		return nil
	}
	job := EmailJob{
		To:       recipients,
		Subject:  e.Subject,
		Body:     e.Body,
		QueuedAt: time.Now().UTC(),
	}
	if err := m.publisher.Publish(ctx, m.queueName, job); err != nil {
		return fmt.Errorf("failed to queue email: %w", err)
	}
	return nil
}
