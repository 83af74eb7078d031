package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"merge-notifier/pkg/models"
)

var envVars = []string{
	"GITHUB_TOKEN", "INPUT_GITHUB-TOKEN",
	"SLACK_WEBHOOK_URL", "INPUT_SLACK-WEBHOOK-URL",
	"REPOS_TO_CHECK", "INPUT_REPOS-TO-CHECK",
	"MERGE_WINDOW", "INPUT_MERGE-WINDOW",
	"GITHUB_API_URL", "TEAMS_WEBHOOK_URL", "IGNORE_KEYWORDS",
	"MAX_PRS_PER_REPO", "FETCH_CONCURRENCY", "GITHUB_TIMEOUT_SECONDS",
	"SMTP_HOST", "SMTP_PORT", "SMTP_USER", "SMTP_PASSWORD", "SMTP_FROM", "SMTP_TO",
	"LOG_FILE", "LOG_LEVEL", "LOG_FORMAT", "LOG_STDOUT",
	"NOTIFICATION_INTERVAL_HOURS", "NOTIFICATION_STATE_FILE",
}

// clearEnv unsets every variable Load reads; t.Setenv restores them afterwards.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envVars {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	clearEnv(t)

	configContent := `
github:
  api_url: "https://github.example.com/api/v3"
  token: "ghp_token123"
  repositories:
    - "octocat/hello-world"
    - "microsoft/vscode"
  max_prs_per_repo: 500
  concurrency: 4

pr_filter:
  merge_window_hours: 48
  ignore_keywords:
    - "chore(deps)"

notifiers:
  slack:
    webhook_url: "https://hooks.slack.com/services/T0/B0/XXX"
  smtp:
    host: "smtp.gmail.com"
    port: 587
    from: "bot@example.com"
    to:
      - "team@example.com"
  teams:
    webhook_url: "https://webhook.url"

log:
  file: "logs/app.log"
  level: "debug"
  format: "text"
  stdout: false

notification:
  interval_hours: 12
  state_file: "state/last.txt"
`
	config, err := Load(writeFile(t, "config.yaml", configContent))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if config.GitHub.APIURL != "https://github.example.com/api/v3" {
		t.Errorf("Expected api_url to be loaded, got '%s'", config.GitHub.APIURL)
	}
	if config.GitHub.Token != "ghp_token123" {
		t.Errorf("Expected token 'ghp_token123', got '%s'", config.GitHub.Token)
	}
	if len(config.GitHub.Repositories) != 2 {
		t.Errorf("Expected 2 repositories, got %d", len(config.GitHub.Repositories))
	}
	if config.GitHub.MaxPRsPerRepo != 500 {
		t.Errorf("Expected max_prs_per_repo 500, got %d", config.GitHub.MaxPRsPerRepo)
	}
	if config.GitHub.Concurrency != 4 {
		t.Errorf("Expected concurrency 4, got %d", config.GitHub.Concurrency)
	}
	if config.GitHub.TimeoutSeconds != 15 {
		t.Errorf("Expected default timeout 15, got %d", config.GitHub.TimeoutSeconds)
	}
	if config.PRFilter.MergeWindowHours != 48 {
		t.Errorf("Expected merge window 48, got %d", config.PRFilter.MergeWindowHours)
	}
	if len(config.PRFilter.IgnoreKeywords) != 1 {
		t.Errorf("Expected 1 ignore keyword, got %d", len(config.PRFilter.IgnoreKeywords))
	}
	if config.Notifiers.Slack.WebhookURL != "https://hooks.slack.com/services/T0/B0/XXX" {
		t.Errorf("Unexpected Slack webhook URL '%s'", config.Notifiers.Slack.WebhookURL)
	}
	if config.Notifiers.SMTP.Host != "smtp.gmail.com" {
		t.Errorf("Expected SMTP host 'smtp.gmail.com', got '%s'", config.Notifiers.SMTP.Host)
	}
	if len(config.Notifiers.SMTP.To) != 1 {
		t.Errorf("Expected 1 SMTP recipient, got %d", len(config.Notifiers.SMTP.To))
	}
	if config.Notifiers.Teams.WebhookURL != "https://webhook.url" {
		t.Errorf("Expected Teams webhook URL 'https://webhook.url', got '%s'", config.Notifiers.Teams.WebhookURL)
	}
	if config.Log.File != "logs/app.log" || config.Log.Level != "debug" || config.Log.Format != "text" {
		t.Errorf("Unexpected log config: %+v", config.Log)
	}
	if config.Log.Stdout {
		t.Errorf("Expected stdout to be false")
	}
	if config.Notification.IntervalHours != 12 {
		t.Errorf("Expected interval hours 12, got %d", config.Notification.IntervalHours)
	}
	if config.Notification.StateFile != "state/last.txt" {
		t.Errorf("Expected state file 'state/last.txt', got '%s'", config.Notification.StateFile)
	}

	if err := config.Validate(true); err != nil {
		t.Errorf("Expected valid config, got: %v", err)
	}
}

func TestLoad_TOML(t *testing.T) {
	clearEnv(t)

	configContent := `
[github]
token = "ghp_token123"
repositories = ["octocat/hello-world"]

[pr_filter]
merge_window_hours = 6

[notifiers.slack]
webhook_url = "https://hooks.slack.com/services/T0/B0/XXX"
`
	config, err := Load(writeFile(t, "config.toml", configContent))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if config.GitHub.Token != "ghp_token123" {
		t.Errorf("Expected token from TOML, got '%s'", config.GitHub.Token)
	}
	if config.PRFilter.MergeWindowHours != 6 {
		t.Errorf("Expected merge window 6, got %d", config.PRFilter.MergeWindowHours)
	}
	if config.GitHub.APIURL != DefaultGitHubAPIURL {
		t.Errorf("Expected default API URL, got '%s'", config.GitHub.APIURL)
	}
}

func TestLoad_MissingFileUsesEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("GITHUB_TOKEN", "ghp_token123")
	t.Setenv("SLACK_WEBHOOK_URL", "https://hooks.slack.com/test")
	t.Setenv("REPOS_TO_CHECK", "octocat/hello-world")

	config, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Expected no error for missing file, got: %v", err)
	}

	if config.GitHub.Token != "ghp_token123" {
		t.Errorf("Expected token from env, got '%s'", config.GitHub.Token)
	}
	if config.Notifiers.Slack.WebhookURL != "https://hooks.slack.com/test" {
		t.Errorf("Expected Slack URL from env, got '%s'", config.Notifiers.Slack.WebhookURL)
	}
	if config.PRFilter.MergeWindowHours != DefaultMergeWindowHours {
		t.Errorf("Expected default merge window 24, got %d", config.PRFilter.MergeWindowHours)
	}

	refs, err := config.RepositoryRefs()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	want := []models.RepositoryRef{{Owner: "octocat", Name: "hello-world"}}
	if len(refs) != 1 || refs[0] != want[0] {
		t.Errorf("Expected %v, got %v", want, refs)
	}
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("GITHUB_TOKEN", "from-env")
	t.Setenv("MERGE_WINDOW", "12")

	path := writeFile(t, "config.yaml", `
github:
  token: "from-file"
pr_filter:
  merge_window_hours: 48
`)
	config, err := Load(path)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if config.GitHub.Token != "from-env" {
		t.Errorf("Expected env token to win, got '%s'", config.GitHub.Token)
	}
	if config.PRFilter.MergeWindowHours != 12 {
		t.Errorf("Expected merge window 12, got %d", config.PRFilter.MergeWindowHours)
	}
}

func TestLoad_ActionInputsWin(t *testing.T) {
	clearEnv(t)
	t.Setenv("GITHUB_TOKEN", "plain-env")
	t.Setenv("INPUT_GITHUB-TOKEN", "action-input")

	config, err := Load("")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if config.GitHub.Token != "action-input" {
		t.Errorf("Expected action input to win, got '%s'", config.GitHub.Token)
	}
}

func TestLoad_EmptyActionInputsFallBackToEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("INPUT_GITHUB-TOKEN", "")
	t.Setenv("GITHUB_TOKEN", "ghp_env")
	t.Setenv("INPUT_REPOS-TO-CHECK", "  ")
	t.Setenv("REPOS_TO_CHECK", "octocat/hello-world")
	t.Setenv("INPUT_SLACK-WEBHOOK-URL", "")
	t.Setenv("SLACK_WEBHOOK_URL", "https://hooks.slack.com/services/env")
	t.Setenv("INPUT_MERGE-WINDOW", "")

	config, err := Load("")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if config.GitHub.Token != "ghp_env" {
		t.Errorf("Expected fallback to GITHUB_TOKEN, got '%s'", config.GitHub.Token)
	}
	if len(config.GitHub.Repositories) != 1 || config.GitHub.Repositories[0] != "octocat/hello-world" {
		t.Errorf("Expected fallback to REPOS_TO_CHECK, got %v", config.GitHub.Repositories)
	}
	if config.Notifiers.Slack.WebhookURL != "https://hooks.slack.com/services/env" {
		t.Errorf("Expected fallback to SLACK_WEBHOOK_URL, got '%s'", config.Notifiers.Slack.WebhookURL)
	}
	if config.PRFilter.MergeWindowHours != DefaultMergeWindowHours {
		t.Errorf("Expected default merge window, got %d", config.PRFilter.MergeWindowHours)
	}
}

func TestLoad_ActionInputMergeWindow(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		plain   string
		want    Hours
		wantErr error
	}{
		{name: "input wins", input: "48", plain: "12", want: 48},
		{name: "empty input uses plain", input: "", plain: "12", want: 12},
		{name: "empty everywhere keeps default", want: DefaultMergeWindowHours},
		{name: "invalid input", input: "soon", plain: "12", wantErr: ErrInvalidMergeWindow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("INPUT_MERGE-WINDOW", tt.input)
			t.Setenv("MERGE_WINDOW", tt.plain)

			config, err := Load("")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Expected %v, got: %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if config.PRFilter.MergeWindowHours != tt.want {
				t.Errorf("Expected merge window %d, got %d", tt.want, config.PRFilter.MergeWindowHours)
			}
		})
	}
}

func TestLoad_TrimSpaces(t *testing.T) {
	clearEnv(t)

	config, err := Load(writeFile(t, "config.yaml", `
github:
  token: "  ghp_token123  "
`))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if config.GitHub.Token != "ghp_token123" {
		t.Errorf("Expected trimmed token 'ghp_token123', got '%s'", config.GitHub.Token)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)

	_, err := Load(writeFile(t, "config.yaml", "github: [unclosed"))
	if err == nil {
		t.Fatal("Expected error for invalid YAML, got nil")
	}
	if !strings.Contains(err.Error(), "error parsing YAML") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestLoad_InvalidMergeWindowEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("MERGE_WINDOW", "invalid")

	_, err := Load("")
	if err == nil {
		t.Fatal("Expected error for invalid MERGE_WINDOW, got nil")
	}
	if !errors.Is(err, ErrInvalidMergeWindow) {
		t.Errorf("Expected ErrInvalidMergeWindow, got: %v", err)
	}
}

func validConfig() *Config {
	cfg := Default()
	cfg.GitHub.Token = "ghp_token123"
	cfg.GitHub.Repositories = []string{"octocat/hello-world"}
	cfg.Notifiers.Slack.WebhookURL = "https://hooks.slack.com/test"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		dryRun  bool
		wantErr error
		wantMsg string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing token", mutate: func(c *Config) { c.GitHub.Token = "" }, wantErr: ErrMissingToken},
		{name: "missing slack webhook", mutate: func(c *Config) { c.Notifiers.Slack.WebhookURL = "" }, wantErr: ErrMissingDestination},
		{name: "dry run needs no destination", mutate: func(c *Config) { c.Notifiers.Slack.WebhookURL = "" }, dryRun: true},
		{name: "teams only", mutate: func(c *Config) {
			c.Notifiers.Slack.WebhookURL = ""
			c.Notifiers.Teams.WebhookURL = "https://outlook.office.com/webhook/x"
		}},
		{name: "invalid slack webhook", mutate: func(c *Config) { c.Notifiers.Slack.WebhookURL = "https://example.com/hook" }, wantErr: ErrInvalidSlackWebhook},
		{name: "missing repositories", mutate: func(c *Config) { c.GitHub.Repositories = nil }, wantErr: ErrMissingRepositories},
		{name: "only blank repositories", mutate: func(c *Config) { c.GitHub.Repositories = []string{" ", ""} }, wantErr: ErrMissingRepositories},
		{name: "zero merge window", mutate: func(c *Config) { c.PRFilter.MergeWindowHours = 0 }, wantErr: ErrInvalidMergeWindow},
		{name: "negative merge window", mutate: func(c *Config) { c.PRFilter.MergeWindowHours = -5 }, wantErr: ErrInvalidMergeWindow},
		{name: "merge window above 720", mutate: func(c *Config) { c.PRFilter.MergeWindowHours = 721 }, wantErr: ErrInvalidMergeWindow},
		{name: "merge window at 720", mutate: func(c *Config) { c.PRFilter.MergeWindowHours = 720 }},
		{name: "invalid repo format", mutate: func(c *Config) { c.GitHub.Repositories = []string{"invalid-repo"} },
			wantMsg: "Invalid repo format: invalid-repo. Expected format: owner/repo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate(!tt.dryRun)
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Expected %v, got %v", tt.wantErr, err)
				}
			case tt.wantMsg != "":
				if err == nil || err.Error() != tt.wantMsg {
					t.Errorf("Expected %q, got %v", tt.wantMsg, err)
				}
			default:
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
			}
		})
	}
}

func TestRepositoryRefs(t *testing.T) {
	tests := []struct {
		name  string
		repos []string
		want  []models.RepositoryRef
	}{
		{
			name:  "multiple repositories",
			repos: []string{"octocat/hello-world", "microsoft/vscode", "facebook/react"},
			want: []models.RepositoryRef{
				{Owner: "octocat", Name: "hello-world"},
				{Owner: "microsoft", Name: "vscode"},
				{Owner: "facebook", Name: "react"},
			},
		},
		{
			name:  "comma separated with whitespace",
			repos: []string{" octocat/hello-world , microsoft/vscode "},
			want: []models.RepositoryRef{
				{Owner: "octocat", Name: "hello-world"},
				{Owner: "microsoft", Name: "vscode"},
			},
		},
		{
			name:  "empty entries filtered",
			repos: []string{"octocat/hello-world", "", "microsoft/vscode"},
			want: []models.RepositoryRef{
				{Owner: "octocat", Name: "hello-world"},
				{Owner: "microsoft", Name: "vscode"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.GitHub.Repositories = tt.repos

			got, err := cfg.RepositoryRefs()
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Expected %d refs, got %d", len(tt.want), len(got))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Ref %d: expected %v, got %v", i, tt.want[i], got[i])
				}
			}
		})
	}
}

func TestRepositoryRefs_FromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("REPOS_TO_CHECK", "octocat/hello-world,,microsoft/vscode")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	refs, err := cfg.RepositoryRefs()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(refs) != 2 || refs[1].Name != "vscode" {
		t.Errorf("Unexpected refs: %v", refs)
	}
}

func TestLoadDotEnv(t *testing.T) {
	const key = "MERGE_NOTIFIER_DOTENV_TEST"
	t.Setenv(key, "")
	os.Unsetenv(key)

	path := writeFile(t, ".env", key+"=from-dotenv\n")
	missing := filepath.Join(t.TempDir(), ".env.missing")

	if err := LoadDotEnv(missing, path); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if got := os.Getenv(key); got != "from-dotenv" {
		t.Errorf("Expected value from .env, got '%s'", got)
	}
}

func TestHTTPTimeout(t *testing.T) {
	cfg := &Config{}
	if cfg.HTTPTimeout().Seconds() != 15 {
		t.Errorf("Expected 15s fallback, got %v", cfg.HTTPTimeout())
	}
	cfg.GitHub.TimeoutSeconds = 3
	if cfg.HTTPTimeout().Seconds() != 3 {
		t.Errorf("Expected 3s, got %v", cfg.HTTPTimeout())
	}
}
