package mailer

import (
	"context"

	"go.uber.org/zap"
)

// LogMailer logs sends instead of delivering them. It stands in for the
// relay in development environments where no outbound credentials exist.
type LogMailer struct {
	logger *zap.Logger
}

func NewLogMailer(logger *zap.Logger) *LogMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(_ context.Context, to, subject, _ string) error {
	m.logger.Info("mail send skipped: no relay configured",
		zap.String("to", to),
		zap.String("subject", subject),
	)
	return nil
}
