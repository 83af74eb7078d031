package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"merge-notifier/internal/config"
	"merge-notifier/pkg/models"
)

// TeamsNotifier implements Microsoft Teams notifications
type TeamsNotifier struct {
	webhookURL string
	client     HTTPClient
}

// NewTeamsNotifier creates a new Teams notifier
func NewTeamsNotifier(cfg *config.Config) *TeamsNotifier {
	return &TeamsNotifier{
		webhookURL: cfg.Notifiers.Teams.WebhookURL,
		client:     &http.Client{Timeout: webhookTimeout},
	}
}

// Notify posts a MessageCard digest of the merged PRs
func (t *TeamsNotifier) Notify(ctx context.Context, prs []models.MergedPullRequest, hoursBack int) error {
	if len(prs) == 0 {
		slog.Info("No merged PRs found - skipping Teams notification")
		return nil
	}

	if err := postJSON(ctx, t.client, t.webhookURL, "Teams", generateTeamsPayload(prs, hoursBack)); err != nil {
		return err
	}

	slog.Info("Teams notification sent successfully", "prs", len(prs))
	return nil
}

// generateTeamsPayload creates the Teams message payload
func generateTeamsPayload(prs []models.MergedPullRequest, hoursBack int) map[string]any {
	sections := []map[string]any{
		{
			"activityTitle":    "🎉 Merged Pull Requests",
			"activitySubtitle": summaryLine(prs, hoursBack),
		},
	}

	for _, g := range models.GroupByRepository(prs) {
		facts := make([]map[string]any, 0, len(g.PullRequests))
		for _, pr := range g.PullRequests {
			facts = append(facts, map[string]any{
				"name":  fmt.Sprintf("PR #%d", pr.Number),
				"value": fmt.Sprintf("[%s](%s) by @%s", pr.Title, pr.URL, pr.Author),
			})
		}
		sections = append(sections, map[string]any{
			"activityTitle": fmt.Sprintf("📦 %s", g.Repository),
			"facts":         facts,
		})
	}

	sections = append(sections, map[string]any{
		"activityTitle": "📊 Summary",
		"facts": []map[string]any{
			{"name": "Merged PRs", "value": fmt.Sprintf("%d", len(prs))},
			{"name": "Contributors", "value": fmt.Sprintf("%d", models.UniqueAuthors(prs))},
			{"name": "Window", "value": fmt.Sprintf("%d hour%s", hoursBack, plural(hoursBack))},
		},
	})

	return map[string]any{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": "2EB67D",
		"summary":    fmt.Sprintf("%d pull request%s merged in the last %d hour%s", len(prs), plural(len(prs)), hoursBack, plural(hoursBack)),
		"sections":   sections,
	}
}
