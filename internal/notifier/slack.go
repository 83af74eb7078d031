package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"

	"merge-notifier/internal/config"
	"merge-notifier/pkg/models"
)

const (
	slackFooter  = "🙌 Amazing work everyone! Keep shipping! 🙌"
	textDivider  = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━"
	slackService = "Slack"
)

var (
	celebrationEmojis = []string{"🎉", "🚀", "✨", "🎊", "🎈", "🌟", "💫", "🔥"}
	celebrationTitles = []string{
		"Time to Celebrate!",
		"Victory Lap Time!",
		"Code Champions Alert!",
		"Merge Party!",
		"Ship It Sandwich!",
		"PR Power Hour!",
	}
)

// WebhookKind tells which payload shape a Slack webhook accepts
type WebhookKind int

const (
	// IncomingWebhook accepts Block Kit messages
	IncomingWebhook WebhookKind = iota
	// WorkflowWebhook is a Workflow Builder trigger taking a single text variable
	WorkflowWebhook
)

func (k WebhookKind) String() string {
	if k == WorkflowWebhook {
		return "workflow"
	}
	return "incoming"
}

// DetectWebhookKind inspects the webhook URL path
func DetectWebhookKind(webhookURL string) WebhookKind {
	if strings.Contains(webhookURL, "/workflows/") || strings.Contains(webhookURL, "/triggers/") {
		return WorkflowWebhook
	}
	return IncomingWebhook
}

// Payload is either a BlocksPayload or a TextPayload
type Payload interface {
	kind() WebhookKind
}

// BlocksPayload is a Block Kit message for incoming webhooks
type BlocksPayload struct {
	Blocks []Block `json:"blocks"`
}

func (BlocksPayload) kind() WebhookKind { return IncomingWebhook }

// TextPayload is the body Workflow Builder triggers expect
type TextPayload struct {
	Message string `json:"message"`
}

func (TextPayload) kind() WebhookKind { return WorkflowWebhook }

// Block is one Block Kit layout block
type Block struct {
	Type     string       `json:"type"`
	Text     *TextObject  `json:"text,omitempty"`
	Elements []TextObject `json:"elements,omitempty"`
}

// TextObject is a Block Kit text composition object
type TextObject struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

// HeaderPicker returns the emoji and headline used for a message
type HeaderPicker func() (emoji, title string)

// RandomHeader picks a celebration emoji and headline at random
func RandomHeader() (string, string) {
	return celebrationEmojis[rand.IntN(len(celebrationEmojis))], celebrationTitles[rand.IntN(len(celebrationTitles))]
}

// SlackNotifier posts merged PR celebrations to a Slack webhook
type SlackNotifier struct {
	webhookURL string
	client     HTTPClient
	pickHeader HeaderPicker
}

// NewSlackNotifier creates a new Slack notifier
func NewSlackNotifier(cfg *config.Config) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: cfg.Notifiers.Slack.WebhookURL,
		client:     &http.Client{Timeout: webhookTimeout},
		pickHeader: RandomHeader,
	}
}

// Notify sends one message covering prs
func (s *SlackNotifier) Notify(ctx context.Context, prs []models.MergedPullRequest, hoursBack int) error {
	if len(prs) == 0 {
		slog.Info("No merged PRs found - skipping Slack notification")
		return nil
	}

	kind := DetectWebhookKind(s.webhookURL)
	slog.Debug("Detected Slack webhook type", "kind", kind.String())

	payload := BuildPayload(kind, prs, hoursBack, s.pickHeader)
	if err := postJSON(ctx, s.client, s.webhookURL, slackService, payload); err != nil {
		return err
	}

	slog.Info("Successfully sent celebration to Slack", "prs", len(prs))
	return nil
}

// BuildPayload formats prs for the given webhook kind
func BuildPayload(kind WebhookKind, prs []models.MergedPullRequest, hoursBack int, pick HeaderPicker) Payload {
	if pick == nil {
		pick = RandomHeader
	}
	emoji, title := pick()
	header := fmt.Sprintf("%s %s %s", emoji, title, emoji)
	summary := summaryLine(prs, hoursBack)
	groups := models.GroupByRepository(prs)

	if kind == WorkflowWebhook {
		return TextPayload{Message: buildText(header, summary, groups)}
	}
	return BlocksPayload{Blocks: buildBlocks(header, summary, groups)}
}

func buildBlocks(header, summary string, groups []models.RepositoryGroup) []Block {
	blocks := []Block{
		{Type: "header", Text: &TextObject{Type: "plain_text", Text: header, Emoji: true}},
		mrkdwnSection(summary),
		{Type: "divider"},
	}

	for _, g := range groups {
		blocks = append(blocks, mrkdwnSection(fmt.Sprintf("*📦 %s*", g.Repository)))
		for _, pr := range g.PullRequests {
			blocks = append(blocks, mrkdwnSection(fmt.Sprintf("• <%s|#%d: %s>\n  _by @%s_", pr.URL, pr.Number, pr.Title, pr.Author)))
		}
	}

	return append(blocks,
		Block{Type: "divider"},
		Block{Type: "context", Elements: []TextObject{{Type: "mrkdwn", Text: slackFooter}}},
	)
}

func mrkdwnSection(text string) Block {
	return Block{Type: "section", Text: &TextObject{Type: "mrkdwn", Text: text}}
}

func buildText(header, summary string, groups []models.RepositoryGroup) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n%s\n\n%s\n\n", header, summary, textDivider)
	for _, g := range groups {
		fmt.Fprintf(&b, "📦 *%s*\n\n", g.Repository)
		for _, pr := range g.PullRequests {
			fmt.Fprintf(&b, "  • #%d: %s\n    %s\n    _by @%s_\n\n", pr.Number, pr.Title, pr.URL, pr.Author)
		}
	}
	fmt.Fprintf(&b, "%s\n\n%s", textDivider, slackFooter)
	return b.String()
}
