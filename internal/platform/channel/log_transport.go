package channel

import (
	"context"

	"go.uber.org/zap"
)

// LogPusher journalise les notifications au lieu de les envoyer ; utilisé
// quand aucune passerelle push n'est configurée.
type LogPusher struct {
	logger *zap.Logger
}

func NewLogPusher(logger *zap.Logger) *LogPusher {
	return &LogPusher{logger: logger}
}

func (p *LogPusher) SendPush(_ context.Context, tokens []string, n Notification) (PushResult, error) {
	if len(tokens) == 0 {
		return PushResult{}, nil
	}
	p.logger.Info("push notification",
		zap.String("title", n.Title),
		zap.String("body", n.Body),
		zap.Int("tokens", len(tokens)),
	)
	return PushResult{SuccessCount: len(tokens)}, nil
}

type LogMailer struct {
	logger *zap.Logger
}

func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendEmail(_ context.Context, recipients []string, e Email) error {
	if len(recipients) == 0 {
		return nil
	}
	m.logger.Info("email sent",
		zap.Strings("to", recipients),
		zap.String("subject", e.Subject),
	)
	return nil
}
