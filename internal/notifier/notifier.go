package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"merge-notifier/internal/config"
	"merge-notifier/pkg/models"
)

const webhookTimeout = 30 * time.Second

// Notifier delivers the merged PRs of one run to a destination. An empty list
// is not delivered and is not an error.
type Notifier interface {
	Notify(ctx context.Context, prs []models.MergedPullRequest, hoursBack int) error
}

// HTTPClient is satisfied by *http.Client
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// FromConfig builds every notifier that has a destination configured
func FromConfig(cfg *config.Config) []Notifier {
	var notifiers []Notifier
	if cfg.Notifiers.Slack.WebhookURL != "" {
		notifiers = append(notifiers, NewSlackNotifier(cfg))
	}
	if cfg.Notifiers.Teams.WebhookURL != "" {
		notifiers = append(notifiers, NewTeamsNotifier(cfg))
	}
	if cfg.Notifiers.SMTP.Host != "" && len(cfg.Notifiers.SMTP.To) > 0 {
		notifiers = append(notifiers, NewEmailNotifier(cfg))
	}
	return notifiers
}

// postJSON sends payload to a webhook once. Any non-2xx answer is an error.
func postJSON(ctx context.Context, client HTTPClient, webhookURL, destination string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error encoding %s payload: %w", destination, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("error creating %s request: %w", destination, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		slog.Error("Failed to send notification", "destination", destination, "error", err)
		return fmt.Errorf("failed to send %s notification: %w", destination, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		slog.Error("Notification rejected", "destination", destination, "status", resp.StatusCode)
		return fmt.Errorf("%s notification failed with status: %d (Body: %s)", destination, resp.StatusCode, string(respBody))
	}
	return nil
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

// summaryLine is the one-sentence headline shared by every destination
func summaryLine(prs []models.MergedPullRequest, hoursBack int) string {
	authors := models.UniqueAuthors(prs)
	return fmt.Sprintf("*%d* awesome PR%s merged in the last %d hour%s by *%d* contributor%s!",
		len(prs), plural(len(prs)), hoursBack, plural(hoursBack), authors, plural(authors))
}
