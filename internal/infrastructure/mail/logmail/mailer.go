// Package logmail writes client emails to the log instead of sending them.
// It backs local development and MAIL_DRIVER=log.
package logmail

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/kirillkom/termination-portal/internal/core/ports"
	"github.com/kirillkom/termination-portal/internal/infrastructure/mail"
)

type Mailer struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Mailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mailer{logger: logger}
}

func (m *Mailer) SendInvitation(ctx context.Context, inv ports.Invitation) (string, error) {
	return m.send(ctx, mail.KindInvitation, inv)
}

func (m *Mailer) SendReminder(ctx context.Context, inv ports.Invitation) (string, error) {
	return m.send(ctx, mail.KindReminder, inv)
}

func (m *Mailer) send(ctx context.Context, kind mail.Kind, inv ports.Invitation) (string, error) {
	msg, err := mail.Compose(kind, inv)
	if err != nil {
		return "", err
	}
	id := "log-" + uuid.NewString()
	m.logger.InfoContext(ctx, "mail_logged",
		"message_id", id,
		"kind", string(kind),
		"case_id", inv.CaseID,
		"to", msg.To,
		"subject", msg.Subject,
		"portal_url", inv.PortalURL,
	)
	return id, nil
}
