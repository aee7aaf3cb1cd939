package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot related settings.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
)

// RateLimitConfig holds settings for rate limiting.
// ExcludeUpdates accepts update types to bypass limiting:
// - "callback": Telegram callback button presses
// - "message": standard text messages
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// AccessConfig controls the download gating engine.
type AccessConfig struct {
	AdVerificationEnabled bool    `yaml:"ad_verification_enabled" envconfig:"AD_VERIFICATION_ENABLED"`
	FreeDownloadsAllowed  uint    `yaml:"free_downloads_allowed" envconfig:"FREE_DOWNLOADS_ALLOWED"`
	FreeResetHours        float64 `yaml:"free_reset_hours" envconfig:"FREE_DOWNLOAD_RESET_HOURS"`
	WaitTimeSeconds       uint    `yaml:"wait_time_seconds" envconfig:"WAIT_TIME_SECONDS"`
	TokenDurationHours    float64 `yaml:"token_duration_hours" envconfig:"TOKEN_DURATION_HOURS"`
	SessionTTLSeconds     uint    `yaml:"session_ttl_seconds" envconfig:"SESSION_TTL_SECONDS"`
	SweepIntervalSeconds  uint    `yaml:"sweep_interval_seconds" envconfig:"SWEEP_INTERVAL_SECONDS"`
}

const (
	// StorageGitHub persists documents through the GitHub contents API.
	StorageGitHub = "github"
	// StoragePostgres persists documents as JSONB rows.
	StoragePostgres = "postgres"
	// StorageLocal persists documents as files in a local directory.
	StorageLocal = "local"
)

// GitHubConfig holds GitHub contents API storage settings.
type GitHubConfig struct {
	Token  string `yaml:"token" envconfig:"GITHUB_TOKEN"`
	Repo   string `yaml:"repo" envconfig:"GITHUB_REPO"`
	Branch string `yaml:"branch" envconfig:"GITHUB_BRANCH"`
}

// PostgresConfig holds connection settings for the Postgres document backend.
type PostgresConfig struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
}

// StorageConfig selects and configures the document store backend.
type StorageConfig struct {
	Backend string `yaml:"backend" envconfig:"STORAGE_BACKEND"`
	// LocalDir is where documents are written by the local backend and by
	// the fallback path when a remote save fails.
	LocalDir string         `yaml:"local_dir" envconfig:"STORAGE_LOCAL_DIR"`
	GitHub   GitHubConfig   `yaml:"github"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// CatalogConfig bounds the study material tree and uploads.
type CatalogConfig struct {
	Branches          []string `yaml:"branches"`
	MaxSemester       int      `yaml:"max_semester"`
	MaxUploadBytes    int64    `yaml:"max_upload_bytes"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
	MaxSearchResults  int      `yaml:"max_search_results"`
}

// Ad describes one sponsored link shown during verification.
type Ad struct {
	ID          string `yaml:"id"`
	Text        string `yaml:"text"`
	URL         string `yaml:"url"`
	TrackingURL string `yaml:"tracking_url"`
}

// RolesConfig lists privileged Telegram user ids.
type RolesConfig struct {
	AdminIDs []int64 `yaml:"admin_ids" envconfig:"ADMIN_IDS"`
	TeamIDs  []int64 `yaml:"team_ids" envconfig:"TEAM_IDS"`
}

// DonateConfig holds static donation destinations shown to users.
type DonateConfig struct {
	UPI     string `yaml:"upi"`
	PayPal  string `yaml:"paypal"`
	Bitcoin string `yaml:"bitcoin"`
}

// KeepaliveConfig configures the ping server and idle self-ping loop.
type KeepaliveConfig struct {
	Enabled             bool   `yaml:"enabled" envconfig:"KEEPALIVE_ENABLED"`
	Listen              string `yaml:"listen" envconfig:"KEEPALIVE_LISTEN"`
	PublicURL           string `yaml:"public_url" envconfig:"KEEPALIVE_PUBLIC_URL"`
	PingIntervalSeconds int    `yaml:"ping_interval_seconds"`
	IdleLimitSeconds    int    `yaml:"idle_limit_seconds"`
}

// Config aggregates all bot configuration.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Access    AccessConfig    `yaml:"access"`
	Storage   StorageConfig   `yaml:"storage"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Ads       []Ad            `yaml:"ads"`
	Roles     RolesConfig     `yaml:"roles"`
	Donate    DonateConfig    `yaml:"donate"`
	Keepalive KeepaliveConfig `yaml:"keepalive"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" {
		rm = RunModeLongpoll
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	allowed := map[string]struct{}{
		UpdateCallback: {},
		UpdateMessage:  {},
	}
	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}

	if err := normalizeAccess(&cfg.Access); err != nil {
		return err
	}
	if err := normalizeStorage(&cfg.Storage); err != nil {
		return err
	}
	normalizeCatalog(&cfg.Catalog)
	normalizeKeepalive(&cfg.Keepalive)

	for i, ad := range cfg.Ads {
		if strings.TrimSpace(ad.ID) == "" {
			return fmt.Errorf("ads[%d].id is required", i)
		}
		if strings.TrimSpace(ad.URL) == "" && strings.TrimSpace(ad.TrackingURL) == "" {
			return fmt.Errorf("ads[%d] needs url or tracking_url", i)
		}
	}

	return nil
}

func normalizeAccess(a *AccessConfig) error {
	if a.FreeDownloadsAllowed == 0 {
		a.FreeDownloadsAllowed = 2
	}
	if a.FreeResetHours <= 0 {
		a.FreeResetHours = 10
	}
	if a.WaitTimeSeconds == 0 {
		a.WaitTimeSeconds = 20
	}
	if a.TokenDurationHours <= 0 {
		a.TokenDurationHours = 10
	}
	if a.SessionTTLSeconds == 0 {
		a.SessionTTLSeconds = 3600
	}
	if a.SweepIntervalSeconds == 0 {
		a.SweepIntervalSeconds = 600
	}
	return nil
}

func normalizeStorage(s *StorageConfig) error {
	backend := strings.ToLower(strings.TrimSpace(s.Backend))
	if backend == "" {
		backend = StorageLocal
	}
	switch backend {
	case StorageGitHub:
		if strings.TrimSpace(s.GitHub.Token) == "" || strings.TrimSpace(s.GitHub.Repo) == "" {
			return fmt.Errorf("storage.github.token and storage.github.repo are required for the github backend")
		}
		if strings.TrimSpace(s.GitHub.Branch) == "" {
			s.GitHub.Branch = "main"
		}
	case StoragePostgres:
		if strings.TrimSpace(s.Postgres.Host) == "" || strings.TrimSpace(s.Postgres.Name) == "" {
			return fmt.Errorf("storage.postgres.host and storage.postgres.name are required for the postgres backend")
		}
		if strings.TrimSpace(s.Postgres.Port) == "" {
			s.Postgres.Port = "5432"
		}
		if strings.TrimSpace(s.Postgres.SSLMode) == "" {
			s.Postgres.SSLMode = "disable"
		}
		if s.Postgres.MaxConnections <= 0 {
			s.Postgres.MaxConnections = 4
		}
	case StorageLocal:
	default:
		return fmt.Errorf("invalid storage.backend %q; allowed: github, postgres, local", s.Backend)
	}
	s.Backend = backend
	if strings.TrimSpace(s.LocalDir) == "" {
		s.LocalDir = "data"
	}
	return nil
}

func normalizeCatalog(c *CatalogConfig) {
	if len(c.Branches) == 0 {
		c.Branches = []string{"CSE", "ECE", "EEE", "Mech", "Civil"}
	}
	if c.MaxSemester <= 0 {
		c.MaxSemester = 8
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = 20 * 1024 * 1024
	}
	if len(c.AllowedExtensions) == 0 {
		c.AllowedExtensions = []string{".pdf", ".doc", ".docx", ".txt", ".jpg", ".png"}
	}
	if c.MaxSearchResults <= 0 {
		c.MaxSearchResults = 10
	}
}

func normalizeKeepalive(k *KeepaliveConfig) {
	if strings.TrimSpace(k.Listen) == "" {
		k.Listen = ":8080"
	}
	if k.PingIntervalSeconds <= 0 {
		k.PingIntervalSeconds = 300
	}
	if k.IdleLimitSeconds <= 0 {
		k.IdleLimitSeconds = 900
	}
}
