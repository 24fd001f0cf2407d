package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"KnowledgeScanner/internal/domain"
)

const (
	configPathEnv   = "KNOWLEDGE_SCANNER_CONFIG"
	defaultTimezone = "UTC"
	redacted        = "***"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging    LoggingConfig    `yaml:"logging"`
	Server     ServerConfig     `yaml:"server"`
	State      StateConfig      `yaml:"state"`
	Schedule   ScheduleConfig   `yaml:"schedule"`
	Sources    []SourceConfig   `yaml:"sources"`
	Gmail      GmailConfig      `yaml:"gmail"`
	Jira       JiraConfig       `yaml:"jira"`
	Confluence ConfluenceConfig `yaml:"confluence"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
	Notify     NotifyConfig     `yaml:"notify"`
	Events     EventsConfig     `yaml:"events"`
}

// LoggingConfig selects slog level and handler format.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"text"`
}

// ServerConfig describes the operator HTTP surface.
type ServerConfig struct {
	Addr            string        `yaml:"addr" env:"SERVER_ADDR" env-default:":8080"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// StateConfig picks the durable backend for the dedup record and queue.
type StateConfig struct {
	Backend string `yaml:"backend" env:"STATE_BACKEND" env-default:"file"`
	Path    string `yaml:"path" env:"STATE_PATH" env-default:"./data/state.json"`
	DSN     string `yaml:"dsn" env:"STATE_DSN"`
}

// ScheduleConfig defines the two independent timers.
type ScheduleConfig struct {
	Poll     string `yaml:"poll" env:"SCHEDULE_POLL" env-default:"@every 5m"`
	Drain    string `yaml:"drain" env:"SCHEDULE_DRAIN" env-default:"@every 15m"`
	Timezone string `yaml:"timezone" env:"SCHEDULE_TIMEZONE" env-default:"UTC"`
	// ManualApproval limits the drain timer to notification retries; pages
	// are then published only through POST /drain or the drain command.
	ManualApproval bool `yaml:"manualApproval" env:"SCHEDULE_MANUAL_APPROVAL"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s ScheduleConfig) Location() *time.Location {
	tz := s.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	return loc
}

// SourceConfig describes a single polled source with its connector kind.
type SourceConfig struct {
	Name   string `yaml:"name"`
	Kind   string `yaml:"kind"`
	Filter string `yaml:"filter"`
	Limit  int    `yaml:"limit"`
}

// GmailConfig wires the mailbox connector and the email notifier.
type GmailConfig struct {
	CredentialsFile string        `yaml:"credentialsFile" env:"GMAIL_CREDENTIALS_FILE"`
	User            string        `yaml:"user" env:"GMAIL_USER" env-default:"me"`
	Endpoint        string        `yaml:"endpoint" env:"GMAIL_ENDPOINT"`
	Timeout         time.Duration `yaml:"timeout" env:"GMAIL_TIMEOUT" env-default:"20s"`
}

// JiraConfig wires the tracker used as source and as correlator backend.
type JiraConfig struct {
	BaseURL            string        `yaml:"baseUrl" env:"JIRA_BASE_URL"`
	Email              string        `yaml:"email" env:"JIRA_EMAIL"`
	APIToken           string        `yaml:"apiToken" env:"JIRA_API_TOKEN"`
	Project            string        `yaml:"project" env:"JIRA_PROJECT"`
	ResolvedWithinDays int           `yaml:"resolvedWithinDays" env:"JIRA_RESOLVED_WITHIN_DAYS" env-default:"5"`
	SkipCorrelation    bool          `yaml:"skipCorrelation" env:"JIRA_SKIP_CORRELATION"`
	Timeout            time.Duration `yaml:"timeout" env:"JIRA_TIMEOUT" env-default:"15s"`
}

// Enabled reports whether a tracker endpoint is configured.
func (j JiraConfig) Enabled() bool {
	return j.BaseURL != ""
}

// ConfluenceConfig defines the knowledge-base target.
type ConfluenceConfig struct {
	BaseURL  string        `yaml:"baseUrl" env:"CONFLUENCE_BASE_URL"`
	Email    string        `yaml:"email" env:"CONFLUENCE_EMAIL"`
	APIToken string        `yaml:"apiToken" env:"CONFLUENCE_API_TOKEN"`
	SpaceKey string        `yaml:"spaceKey" env:"CONFLUENCE_SPACE_KEY"`
	Status   string        `yaml:"status" env:"CONFLUENCE_STATUS" env-default:"draft"`
	Labels   []string      `yaml:"labels" env:"CONFLUENCE_LABELS" env-default:"review-needed"`
	Timeout  time.Duration `yaml:"timeout" env:"CONFLUENCE_TIMEOUT" env-default:"20s"`
}

// SummarizerConfig defines how to contact the text-generation backend.
type SummarizerConfig struct {
	Backend     string        `yaml:"backend" env:"SUMMARIZER_BACKEND" env-default:"none"`
	Endpoint    string        `yaml:"endpoint" env:"SUMMARIZER_ENDPOINT"`
	Model       string        `yaml:"model" env:"SUMMARIZER_MODEL"`
	APIKey      string        `yaml:"apiKey" env:"SUMMARIZER_API_KEY"`
	Instruction string        `yaml:"instruction" env:"SUMMARIZER_INSTRUCTION"`
	Timeout     time.Duration `yaml:"timeout" env:"SUMMARIZER_TIMEOUT" env-default:"30s"`
}

// NotifyConfig encapsulates outbound review-request channels.
type NotifyConfig struct {
	DefaultRecipient string         `yaml:"defaultRecipient" env:"NOTIFY_DEFAULT_RECIPIENT"`
	From             string         `yaml:"from" env:"NOTIFY_FROM"`
	ReviewURL        string         `yaml:"reviewUrl" env:"NOTIFY_REVIEW_URL" env-default:"http://localhost:8080"`
	Timeout          time.Duration  `yaml:"timeout" env:"NOTIFY_TIMEOUT" env-default:"15s"`
	Telegram         TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires the optional chat mirror for review requests.
type TelegramConfig struct {
	BotToken string `yaml:"botToken" env:"TELEGRAM_BOT_TOKEN"`
	ChatID   int64  `yaml:"chatId" env:"TELEGRAM_CHAT_ID"`
}

// Enabled reports whether the bot credentials are present.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != 0
}

// EventsConfig points at an nsqd instance for pipeline events.
type EventsConfig struct {
	NSQDAddr string `yaml:"nsqdAddr" env:"EVENTS_NSQD_ADDR"`
	Topic    string `yaml:"topic" env:"EVENTS_TOPIC" env-default:"knowledge.events"`
}

// Load reads .env, the YAML configuration (if present) and environment overrides.
// An explicit path that does not exist is an error; without a path the
// configuration comes from environment variables and defaults only.
func Load(path string) (*Config, error) {
	_ = godotenv.Load(".env")

	if path == "" {
		path = os.Getenv(configPathEnv)
	}

	var cfg Config
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, domain.Configf("config file %s: %v", path, err)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, domain.Configf("read %s: %v", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, domain.Configf("read env: %v", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if len(c.Sources) == 0 {
		c.Sources = defaultSources()
	}
	for i := range c.Sources {
		if c.Sources[i].Name == "" {
			c.Sources[i].Name = c.Sources[i].Kind
		}
		if c.Sources[i].Limit <= 0 {
			c.Sources[i].Limit = 20
		}
	}
	if c.Gmail.User == "" {
		c.Gmail.User = "me"
	}
}

func defaultSources() []SourceConfig {
	return []SourceConfig{
		{Name: "inbox", Kind: "gmail", Filter: "Internal", Limit: 20},
	}
}

// Validate checks required endpoints and credentials. Every failure wraps
// domain.ErrConfiguration.
func (c *Config) Validate() error {
	switch c.State.Backend {
	case "file", "sqlite":
		if c.State.Path == "" {
			return domain.Configf("state.path is required for backend %s", c.State.Backend)
		}
	case "postgres":
		if c.State.DSN == "" {
			return domain.Configf("state.dsn is required for backend postgres")
		}
	default:
		return domain.Configf("unknown state backend %q", c.State.Backend)
	}

	if c.Schedule.Poll == "" || c.Schedule.Drain == "" {
		return domain.Configf("schedule.poll and schedule.drain are required")
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return domain.Configf("invalid timezone %q: %v", c.Schedule.Timezone, err)
	}

	seen := map[string]struct{}{}
	for _, src := range c.Sources {
		if _, dup := seen[src.Name]; dup {
			return domain.Configf("duplicate source name %q", src.Name)
		}
		seen[src.Name] = struct{}{}

		switch src.Kind {
		case "gmail":
			if c.Gmail.CredentialsFile == "" && c.Gmail.Endpoint == "" {
				return domain.Configf("source %s: gmail.credentialsFile is required", src.Name)
			}
		case "jira":
			if !c.Jira.Enabled() {
				return domain.Configf("source %s: jira.baseUrl is required", src.Name)
			}
		default:
			return domain.Configf("source %s: unknown kind %q", src.Name, src.Kind)
		}
	}

	if c.Confluence.BaseURL == "" || c.Confluence.SpaceKey == "" {
		return domain.Configf("confluence.baseUrl and confluence.spaceKey are required")
	}
	if c.Confluence.Status != "draft" && c.Confluence.Status != "current" {
		return domain.Configf("confluence.status must be draft or current, got %q", c.Confluence.Status)
	}

	switch c.Summarizer.Backend {
	case "none":
	case "openai", "gemini", "anthropic":
		if c.Summarizer.APIKey == "" {
			return domain.Configf("summarizer.apiKey is required for backend %s", c.Summarizer.Backend)
		}
	case "predict":
		if c.Summarizer.Endpoint == "" {
			return domain.Configf("summarizer.endpoint is required for backend predict")
		}
	default:
		return domain.Configf("unknown summarizer backend %q", c.Summarizer.Backend)
	}

	return nil
}

// UsesGmail reports whether any component needs the Gmail API.
func (c *Config) UsesGmail() bool {
	if c.Gmail.CredentialsFile == "" && c.Gmail.Endpoint == "" {
		return false
	}
	for _, src := range c.Sources {
		if src.Kind == "gmail" {
			return true
		}
	}
	return c.Notify.From != ""
}

// Redacted returns a copy safe for printing.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return redacted
	}
	c.State.DSN = maskDSN(c.State.DSN)
	c.Jira.APIToken = mask(c.Jira.APIToken)
	c.Confluence.APIToken = mask(c.Confluence.APIToken)
	c.Summarizer.APIKey = mask(c.Summarizer.APIKey)
	c.Notify.Telegram.BotToken = mask(c.Notify.Telegram.BotToken)
	return c
}

func maskDSN(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return dsn
	}
	return fmt.Sprintf("%s://%s@%s", dsn[:scheme], redacted, dsn[at+1:])
}
