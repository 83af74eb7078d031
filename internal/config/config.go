package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"merge-notifier/pkg/models"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const (
	DefaultMergeWindowHours = 24
	MaxMergeWindowHours     = 720
	DefaultMaxPRsPerRepo    = 1000
	DefaultGitHubAPIURL     = "https://api.github.com"

	slackWebhookPrefix = "https://hooks.slack.com/"
)

var (
	ErrMissingToken        = errors.New("GITHUB_TOKEN environment variable is required")
	ErrMissingDestination  = errors.New("SLACK_WEBHOOK_URL environment variable is required")
	ErrInvalidSlackWebhook = errors.New("SLACK_WEBHOOK_URL must be a valid Slack webhook URL (should start with https://hooks.slack.com/)")
	ErrMissingRepositories = errors.New("REPOS_TO_CHECK environment variable is required (format: owner/repo,owner/repo)")
	ErrInvalidMergeWindow  = errors.New("MERGE_WINDOW must be a positive number between 1 and 720 hours (30 days)")
)

// Hours is a whole number of hours. It parses from the environment through
// cleanenv so a malformed MERGE_WINDOW reports the validation message.
type Hours int

// SetValue implements cleanenv.Setter. An empty value keeps the current one.
func (h *Hours) SetValue(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return ErrInvalidMergeWindow
	}
	*h = Hours(n)
	return nil
}

// Duration converts h to a time.Duration
func (h Hours) Duration() time.Duration {
	return time.Duration(h) * time.Hour
}

// Config represents the application configuration
type Config struct {
	GitHub       GitHubConfig       `yaml:"github" toml:"github"`
	PRFilter     PRFilterConfig     `yaml:"pr_filter" toml:"pr_filter"`
	Notifiers    NotifiersConfig    `yaml:"notifiers" toml:"notifiers"`
	Log          LogConfig          `yaml:"log" toml:"log"`
	Notification NotificationConfig `yaml:"notification" toml:"notification"`
}

type GitHubConfig struct {
	APIURL         string   `yaml:"api_url" toml:"api_url" env:"GITHUB_API_URL"`
	Token          string   `yaml:"token" toml:"token" env:"GITHUB_TOKEN"`
	Repositories   []string `yaml:"repositories" toml:"repositories" env:"REPOS_TO_CHECK" env-separator:","`
	MaxPRsPerRepo  int      `yaml:"max_prs_per_repo" toml:"max_prs_per_repo" env:"MAX_PRS_PER_REPO"`
	Concurrency    int      `yaml:"concurrency" toml:"concurrency" env:"FETCH_CONCURRENCY"`
	TimeoutSeconds int      `yaml:"timeout_seconds" toml:"timeout_seconds" env:"GITHUB_TIMEOUT_SECONDS"`
}

type PRFilterConfig struct {
	MergeWindowHours Hours    `yaml:"merge_window_hours" toml:"merge_window_hours" env:"MERGE_WINDOW"`
	IgnoreKeywords   []string `yaml:"ignore_keywords" toml:"ignore_keywords" env:"IGNORE_KEYWORDS" env-separator:","`
}

type NotifiersConfig struct {
	Slack SlackConfig `yaml:"slack" toml:"slack"`
	Teams TeamsConfig `yaml:"teams" toml:"teams"`
	SMTP  SMTPConfig  `yaml:"smtp" toml:"smtp"`
}

type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url" toml:"webhook_url" env:"SLACK_WEBHOOK_URL"`
}

type TeamsConfig struct {
	WebhookURL string `yaml:"webhook_url" toml:"webhook_url" env:"TEAMS_WEBHOOK_URL"`
}

type SMTPConfig struct {
	Host     string   `yaml:"host" toml:"host" env:"SMTP_HOST"`
	Port     int      `yaml:"port" toml:"port" env:"SMTP_PORT"`
	User     string   `yaml:"user" toml:"user" env:"SMTP_USER"`
	Password string   `yaml:"password" toml:"password" env:"SMTP_PASSWORD"`
	From     string   `yaml:"from" toml:"from" env:"SMTP_FROM"`
	To       []string `yaml:"to" toml:"to" env:"SMTP_TO" env-separator:","`
}

type LogConfig struct {
	File       string `yaml:"file" toml:"file" env:"LOG_FILE"`
	Level      string `yaml:"level" toml:"level" env:"LOG_LEVEL"`
	Format     string `yaml:"format" toml:"format" env:"LOG_FORMAT"`
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" toml:"max_age_days"`
	Compress   bool   `yaml:"compress" toml:"compress"`
	Stdout     bool   `yaml:"stdout" toml:"stdout" env:"LOG_STDOUT"`
}

type NotificationConfig struct {
	IntervalHours Hours  `yaml:"interval_hours" toml:"interval_hours" env:"NOTIFICATION_INTERVAL_HOURS"`
	StateFile     string `yaml:"state_file" toml:"state_file" env:"NOTIFICATION_STATE_FILE"`
}

// Default returns the configuration used when a key is absent everywhere
func Default() *Config {
	cfg := &Config{}
	cfg.GitHub.APIURL = DefaultGitHubAPIURL
	cfg.GitHub.MaxPRsPerRepo = DefaultMaxPRsPerRepo
	cfg.GitHub.Concurrency = 1
	cfg.GitHub.TimeoutSeconds = 15
	cfg.PRFilter.MergeWindowHours = DefaultMergeWindowHours
	cfg.Notifiers.SMTP.Port = 587
	cfg.Log.File = "logs/merge-notifier.log"
	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	cfg.Log.MaxSizeMB = 10
	cfg.Log.MaxBackups = 3
	cfg.Log.MaxAgeDays = 30
	cfg.Log.Stdout = true
	cfg.Notification.StateFile = "tmp/last_notification.txt"
	return cfg
}

// LoadDotEnv loads variables from .env style files into the process
// environment. Missing files are skipped; existing variables are kept.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("error loading %s: %w", p, err)
		}
		slog.Debug("Loaded environment file", "path", p)
	}
	return nil
}

// Load reads the configuration file at path (YAML or TOML, by extension) and
// overlays environment variables. A missing file is not an error: the job can
// be configured through the environment alone.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			slog.Debug("Configuration file not found, using environment only", "path", path)
		case err != nil:
			return nil, fmt.Errorf("error reading configuration file: %w", err)
		default:
			if err := decode(path, data, cfg); err != nil {
				return nil, err
			}
		}
	}

	if err := cleanenv.ReadEnv(cfg); err != nil {
		// cleanenv flattens Setter errors into its own message
		if strings.Contains(err.Error(), ErrInvalidMergeWindow.Error()) {
			return nil, ErrInvalidMergeWindow
		}
		return nil, fmt.Errorf("error reading environment: %w", err)
	}
	if err := applyActionInputs(cfg); err != nil {
		return nil, err
	}

	// Trim spaces from the token if not empty
	original := cfg.GitHub.Token
	cfg.GitHub.Token = strings.TrimSpace(cfg.GitHub.Token)
	if cfg.GitHub.Token != original {
		slog.Debug("Trimmed spaces from GitHub token in config.")
	}

	return cfg, nil
}

// applyActionInputs overlays GitHub Action inputs. An input only wins over the
// plain variable when it is non-empty, as the runner defines every declared
// input even when the workflow leaves it blank.
func applyActionInputs(cfg *Config) error {
	if v := actionInput("GITHUB-TOKEN"); v != "" {
		cfg.GitHub.Token = v
	}
	if v := actionInput("SLACK-WEBHOOK-URL"); v != "" {
		cfg.Notifiers.Slack.WebhookURL = v
	}
	if v := actionInput("REPOS-TO-CHECK"); v != "" {
		cfg.GitHub.Repositories = strings.Split(v, ",")
	}
	if v := actionInput("MERGE-WINDOW"); v != "" {
		if err := cfg.PRFilter.MergeWindowHours.SetValue(v); err != nil {
			return err
		}
	}
	return nil
}

func actionInput(name string) string {
	return strings.TrimSpace(os.Getenv("INPUT_" + name))
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("error parsing TOML: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("error parsing YAML: %w", err)
		}
	}
	return nil
}

// Validate checks the resolved configuration. Destinations are only required
// when the run is going to deliver a notification.
func (c *Config) Validate(requireDestination bool) error {
	if c.GitHub.Token == "" {
		return ErrMissingToken
	}
	if requireDestination && !c.HasDestination() {
		return ErrMissingDestination
	}
	if c.Notifiers.Slack.WebhookURL != "" && !strings.HasPrefix(c.Notifiers.Slack.WebhookURL, slackWebhookPrefix) {
		return ErrInvalidSlackWebhook
	}
	if len(c.repositoryEntries()) == 0 {
		return ErrMissingRepositories
	}
	if c.PRFilter.MergeWindowHours <= 0 || c.PRFilter.MergeWindowHours > MaxMergeWindowHours {
		return ErrInvalidMergeWindow
	}
	if _, err := c.RepositoryRefs(); err != nil {
		return err
	}
	return nil
}

// HasDestination reports whether any notifier is configured
func (c *Config) HasDestination() bool {
	return c.Notifiers.Slack.WebhookURL != "" ||
		c.Notifiers.Teams.WebhookURL != "" ||
		(c.Notifiers.SMTP.Host != "" && len(c.Notifiers.SMTP.To) > 0)
}

// RepositoryRefs parses the configured repositories. Blank entries are skipped.
func (c *Config) RepositoryRefs() ([]models.RepositoryRef, error) {
	entries := c.repositoryEntries()
	refs := make([]models.RepositoryRef, 0, len(entries))
	for _, e := range entries {
		ref, err := models.ParseRepositoryRef(e)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func (c *Config) repositoryEntries() []string {
	var entries []string
	for _, r := range c.GitHub.Repositories {
		// A single comma-separated entry is accepted in files as well.
		for _, part := range strings.Split(r, ",") {
			if part = strings.TrimSpace(part); part != "" {
				entries = append(entries, part)
			}
		}
	}
	return entries
}

// HTTPTimeout returns the GitHub client timeout
func (c *Config) HTTPTimeout() time.Duration {
	if c.GitHub.TimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.GitHub.TimeoutSeconds) * time.Second
}
