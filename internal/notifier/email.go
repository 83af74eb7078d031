package notifier

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
	"text/template"

	"merge-notifier/internal/config"
	"merge-notifier/pkg/models"
)

const emailTemplate = `Merged Pull Requests

{{.Total}} pull request{{if ne .Total 1}}s{{end}} merged in the last {{.Hours}} hour{{if ne .Hours 1}}s{{end}} by {{.Authors}} contributor{{if ne .Authors 1}}s{{end}}.
{{range .Groups}}
Repository: {{.Repository}}
{{range .PullRequests}}
- PR #{{.Number}}: {{.Title}}
  Author: {{.Author}}
  Link: {{.URL}}
  Merged: {{.MergedAt.UTC.Format "2006-01-02 15:04 MST"}}
{{end}}{{end}}
Amazing work everyone! Keep shipping!

This is an automated notification from merge-notifier.
`

var emailBody = template.Must(template.New("email").Parse(emailTemplate))

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier implements email notifications
type EmailNotifier struct {
	config   *config.Config
	sendMail sendMailFunc
}

// NewEmailNotifier creates a new email notifier
func NewEmailNotifier(cfg *config.Config) *EmailNotifier {
	return &EmailNotifier{config: cfg, sendMail: smtp.SendMail}
}

// Notify emails a digest of the merged PRs
func (e *EmailNotifier) Notify(ctx context.Context, prs []models.MergedPullRequest, hoursBack int) error {
	if len(prs) == 0 {
		slog.Info("No merged PRs found - skipping email notification")
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	subject := fmt.Sprintf("%d PR%s merged in the last %d hour%s", len(prs), plural(len(prs)), hoursBack, plural(hoursBack))
	body, err := generateEmailBody(prs, hoursBack)
	if err != nil {
		return fmt.Errorf("error generating email body: %w", err)
	}

	return e.sendEmail(subject, body)
}

// generateEmailBody creates the email content
func generateEmailBody(prs []models.MergedPullRequest, hoursBack int) (string, error) {
	data := struct {
		Total   int
		Hours   int
		Authors int
		Groups  []models.RepositoryGroup
	}{
		Total:   len(prs),
		Hours:   hoursBack,
		Authors: models.UniqueAuthors(prs),
		Groups:  models.GroupByRepository(prs),
	}

	var body strings.Builder
	if err := emailBody.Execute(&body, data); err != nil {
		return "", err
	}
	return body.String(), nil
}

// sendEmail sends the email using SMTP
func (e *EmailNotifier) sendEmail(subject, body string) error {
	smtpCfg := e.config.Notifiers.SMTP
	msg := []byte(fmt.Sprintf("To: %s\r\nFrom: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
		strings.Join(smtpCfg.To, ","), smtpCfg.From, subject, body))
	addr := fmt.Sprintf("%s:%d", smtpCfg.Host, smtpCfg.Port)

	var auth smtp.Auth
	if smtpCfg.User != "" && smtpCfg.Password != "" {
		auth = smtp.PlainAuth("", smtpCfg.User, smtpCfg.Password, smtpCfg.Host)
	}

	var err error
	if auth != nil && smtpCfg.Port == 465 {
		// Implicit TLS; SendMail upgrades with STARTTLS on every other port.
		err = e.sendWithTLS(addr, auth, smtpCfg.From, smtpCfg.To, msg)
	} else {
		err = e.sendMail(addr, auth, smtpCfg.From, smtpCfg.To, msg)
	}

	if err != nil {
		slog.Error("Failed to send email", "error", err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	slog.Info("Email notification sent successfully", "recipients", smtpCfg.To)
	return nil
}

// sendWithTLS sends email with TLS encryption
func (e *EmailNotifier) sendWithTLS(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	host := e.config.Notifiers.SMTP.Host

	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: host})
	if err != nil {
		return err
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		return err
	}
	defer client.Close()

	if err = client.Auth(auth); err != nil {
		return err
	}
	if err = client.Mail(from); err != nil {
		return err
	}
	for _, recipient := range to {
		if err = client.Rcpt(recipient); err != nil {
			return err
		}
	}

	writer, err := client.Data()
	if err != nil {
		return err
	}
	if _, err = writer.Write(msg); err != nil {
		writer.Close()
		return err
	}
	if err = writer.Close(); err != nil {
		return err
	}
	return client.Quit()
}
