package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ammar0101/campus-security-system/internal/platform/channel"
	"github.com/ammar0101/campus-security-system/internal/platform/queue"
	"go.uber.org/zap"
)

// EmailConsumer livre les e-mails déposés dans la file par channel.QueueMailer.
type EmailConsumer struct {
	consumer  queue.Consumer
	mailer    channel.Mailer
	queueName string
	logger    *zap.Logger
}

func NewEmailConsumer(consumer queue.Consumer, mailer channel.Mailer, queueName string, logger *zap.Logger) *EmailConsumer {
	return &EmailConsumer{
		consumer:  consumer,
		mailer:    mailer,
		queueName: queueName,
		logger:    logger,
	}
}

func (c *EmailConsumer) Start(ctx context.Context) error {
	c.logger.Info("starting email consumer", zap.String("queue", c.queueName))
	return c.consumer.Consume(ctx, c.queueName, c.handle)
}

func (c *EmailConsumer) handle(ctx context.Context, body []byte) error {
	var job channel.EmailJob
	if err := json.Unmarshal(body, &job); err != nil {
		return fmt.Errorf("failed to unmarshal email job: %w", err)
	}
	if len(job.To) == 0 {
		return fmt.Errorf("email job %q has no recipients", job.Subject)
	}

	if err := c.mailer.SendEmail(ctx, job.To, channel.Email{Subject: job.Subject, Body: job.Body}); err != nil {
		return fmt.Errorf("email delivery failed for %q: %w", job.Subject, err)
	}
	c.logger.Debug("email delivered",
		zap.String("subject", job.Subject),
		zap.Int("recipients", len(job.To)),
		zap.Time("queued_at", job.QueuedAt))
	return nil
}
