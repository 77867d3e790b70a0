// Package notify sends completion emails for finished syncs. The mailer is
// disabled when SMTP credentials are absent, so local and test setups run
// without a mail server.
package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/lorekeep/lorekeep/internal/config"
	"github.com/lorekeep/lorekeep/internal/syncprogress"
	"github.com/lorekeep/lorekeep/pkg/logger"
)

// Mailer sends sync completion notifications over SMTP with STARTTLS.
// Implements the tracker's Notifier interface.
type Mailer struct {
	cfg     config.SMTPConfig
	enabled bool

	// send is swappable for tests
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewMailer returns a Mailer. Notifications are disabled when the SMTP user
// or password is empty.
func NewMailer(cfg config.SMTPConfig) *Mailer {
	enabled := cfg.User != "" && cfg.Password != ""
	if enabled {
		logger.Infof("email notifications enabled (smtp %s:%s)", cfg.Host, cfg.Port)
	} else {
		logger.Info("email notifications disabled (smtp not configured)")
	}
	return &Mailer{cfg: cfg, enabled: enabled, send: smtp.SendMail}
}

// SyncFinished emails a summary of the finished sync to the given address.
// Returns nil without sending when the mailer is disabled.
func (m *Mailer) SyncFinished(ctx context.Context, email string, p *syncprogress.Progress) error {
	if !m.enabled {
		logger.Debug("skipping sync notification (smtp not configured)")
		return nil
	}

	status := "Completed successfully"
	switch {
	case p.ErrorMessage != "":
		status = "Failed"
	case p.FailedItems > 0:
		status = "Completed with errors"
	}

	subject := fmt.Sprintf("Sync %s: %s", status, titleCase(p.ConnectorType))
	body := m.buildBody(status, p)

	msg := strings.Builder{}
	fmt.Fprintf(&msg, "From: %s <%s>\r\n", m.cfg.FromName, m.cfg.FromEmail)
	fmt.Fprintf(&msg, "To: %s\r\n", email)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(body)

	addr := m.cfg.Host + ":" + m.cfg.Port
	auth := smtp.PlainAuth("", m.cfg.User, m.cfg.Password, m.cfg.Host)
	if err := m.send(addr, auth, m.cfg.FromEmail, []string{email}, []byte(msg.String())); err != nil {
		return fmt.Errorf("send notification to %s: %w", email, err)
	}
	logger.Infof("sent sync notification to %s: %s", email, subject)
	return nil
}

func (m *Mailer) buildBody(status string, p *syncprogress.Progress) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your %s integration sync has finished.\n\n", titleCase(p.ConnectorType))
	fmt.Fprintf(&b, "Status: %s\n\n", status)
	fmt.Fprintf(&b, "Total items found: %d\n", p.TotalItems)
	fmt.Fprintf(&b, "Successfully processed: %d\n", p.ProcessedItems)
	if p.FailedItems > 0 {
		fmt.Fprintf(&b, "Failed: %d\n", p.FailedItems)
	}
	if p.StartedAt != nil && p.CompletedAt != nil {
		fmt.Fprintf(&b, "Duration: %s\n", FormatDuration(p.CompletedAt.Sub(*p.StartedAt)))
	}
	if p.CompletedAt != nil {
		fmt.Fprintf(&b, "Completed at: %s\n", p.CompletedAt.Format("2006-01-02 15:04:05 UTC"))
	}
	if p.ErrorMessage != "" {
		fmt.Fprintf(&b, "\nError: %s\n", p.ErrorMessage)
	}
	b.WriteString("\nYour knowledge base has been updated with the latest information.\n")
	return b.String()
}

// FormatDuration renders a duration the way the notification emails show it:
// fractional seconds under a minute, "Xm Ys" above.
func FormatDuration(d time.Duration) string {
	secs := d.Seconds()
	if secs < 60 {
		return fmt.Sprintf("%.1f seconds", secs)
	}
	return fmt.Sprintf("%dm %ds", int(secs)/60, int(secs)%60)
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
