package notifier

import (
	"fmt"
	"net"
	"net/smtp"

	"checkout-service/internal/util"

	"go.uber.org/zap"
)

// SMTPNotifier emails the shop operator when a payment is confirmed. It is
// strictly best-effort: callers log and swallow any error it returns.
type SMTPNotifier struct {
	host     string
	port     string
	username string
	password string
	from     string
	to       string
	logger   *zap.Logger
}

func NewSMTPNotifier(host, port, username, password, from, to string) *SMTPNotifier {
	return &SMTPNotifier{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		to:       to,
		logger:   util.GetLogger(),
	}
}

// Send delivers a plain-text email to the configured operator address. A
// missing recipient disables notifications silently.
func (n *SMTPNotifier) Send(subject, body string) error {
	if n.to == "" {
		n.logger.Debug("No admin email configured, skipping notification")
		return nil
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		n.from, n.to, subject, body)

	var auth smtp.Auth
	if n.username != "" {
		auth = smtp.PlainAuth("", n.username, n.password, n.host)
	}

	addr := net.JoinHostPort(n.host, n.port)
	if err := smtp.SendMail(addr, auth, n.from, []string{n.to}, []byte(msg)); err != nil {
		return fmt.Errorf("failed to send notification email: %w", err)
	}

	n.logger.Info("Notification email sent", zap.String("to", n.to), zap.String("subject", subject))
	return nil
}
