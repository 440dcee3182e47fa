package notify

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/jfellner/trailgate/auth"
)

// LogNotifier writes reset URLs to the application log instead of delivering
// them. Development use only; the binary falls back to it when no webhook is
// configured.
type LogNotifier struct {
	log logrus.FieldLogger
}

// NewLogNotifier creates a notifier logging at info level.
func NewLogNotifier(log logrus.FieldLogger) (*LogNotifier, error) {
	if log == nil {
		return nil, errors.New("notify: log notifier requires a logger")
	}
	return &LogNotifier{log: log}, nil
}

// SendResetToken logs the reset URL for the operator to relay manually.
func (n *LogNotifier) SendResetToken(_ context.Context, p auth.Principal, _ string, resetURL string) error {
	n.log.WithFields(logrus.Fields{
		"email":    p.Email,
		"resetUrl": resetURL,
	}).Info("password reset requested")
	return nil
}
