package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Session backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Defaults applied by Load and LoadFromEnv.
const (
	DefaultServiceBaseURL  = "https://api.essembi.ai"
	DefaultIntegrationPath = "Integrations/MSTeams"
	DefaultSessionTTL      = 15 * 60
	DefaultSweepSchedule   = "@every 5m"
	DefaultPort            = 3978
)

// Config is the top-level essembi-chat configuration.
type Config struct {
	Integration IntegrationConfig `json:"integration"`
	Teams       TeamsConfig       `json:"teams"`
	Sessions    SessionConfig     `json:"sessions"`
	Slack       *SlackConfig      `json:"slack,omitempty"`
	API         APIConfig         `json:"api"`
	Links       LinksConfig       `json:"links"`
}

// IntegrationConfig points at the Essembi integration API.
type IntegrationConfig struct {
	Key            string `json:"key"`
	ServiceBaseURL string `json:"service_base_url,omitempty"`
	Path           string `json:"path,omitempty"`
}

// TeamsConfig holds the Bot Framework app credentials. Both empty disables
// outbound authentication, which is what the local emulator expects.
// SigningKey, when set, requires HMAC-signed inbound requests.
type TeamsConfig struct {
	AppID       string `json:"app_id"`
	AppPassword string `json:"app_password"`
	TenantID    string `json:"tenant_id,omitempty"`
	SigningKey  string `json:"signing_key,omitempty"`

	// ServiceHosts are trusted in addition to the Bot Framework hosts,
	// over http or https (the local emulator).
	ServiceHosts []string `json:"service_hosts,omitempty"`
}

// SessionConfig selects where pending environment selections are kept.
type SessionConfig struct {
	Backend       string `json:"backend"`
	Path          string `json:"path,omitempty"`
	RedisAddr     string `json:"redis_addr,omitempty"`
	RedisPassword string `json:"redis_password,omitempty"`
	RedisDB       int    `json:"redis_db,omitempty"`
	TTLSeconds    int    `json:"ttl_seconds,omitempty"`
	SweepSchedule string `json:"sweep_schedule,omitempty"`
}

// TTL returns the selection lifetime.
func (s SessionConfig) TTL() time.Duration {
	return time.Duration(s.TTLSeconds) * time.Second
}

// SlackConfig enables the Slack connector.
type SlackConfig struct {
	BotToken string   `json:"bot_token"`
	AppToken string   `json:"app_token"`
	Channels []string `json:"channels,omitempty"`
}

// APIConfig holds HTTP server settings. Key protects the operational
// endpoints; the messaging endpoint is authenticated by the host.
type APIConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	Key  string `json:"api_key"`
}

// Addr is the listen address.
func (a APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// LinksConfig overrides the external links shown on cards.
type LinksConfig struct {
	SupportURL string `json:"support_url,omitempty"`
	DocsURL    string `json:"docs_url,omitempty"`
}

// Load reads configuration from a JSON file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding variables already set. Missing files are
// ignored.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("config: load %s: %w", p, err)
		}
	}
	return nil
}

// LoadFromEnv builds a config from environment variables with ESSEMBI_ prefix.
// The result is validated like a loaded file.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Integration: IntegrationConfig{
			Key:            os.Getenv("ESSEMBI_INTEGRATION_KEY"),
			ServiceBaseURL: os.Getenv("ESSEMBI_SERVICE_BASE_URL"),
			Path:           os.Getenv("ESSEMBI_INTEGRATION_PATH"),
		},
		Teams: TeamsConfig{
			AppID:        os.Getenv("ESSEMBI_TEAMS_APP_ID"),
			AppPassword:  os.Getenv("ESSEMBI_TEAMS_APP_PASSWORD"),
			TenantID:     os.Getenv("ESSEMBI_TEAMS_TENANT_ID"),
			SigningKey:   os.Getenv("ESSEMBI_TEAMS_SIGNING_KEY"),
			ServiceHosts: splitList(os.Getenv("ESSEMBI_TEAMS_SERVICE_HOSTS")),
		},
		Sessions: SessionConfig{
			Backend:       getenv("ESSEMBI_SESSION_BACKEND", BackendMemory),
			Path:          os.Getenv("ESSEMBI_SESSION_PATH"),
			RedisAddr:     os.Getenv("ESSEMBI_REDIS_ADDR"),
			RedisPassword: os.Getenv("ESSEMBI_REDIS_PASSWORD"),
			RedisDB:       getenvInt("ESSEMBI_REDIS_DB", 0),
			TTLSeconds:    getenvInt("ESSEMBI_SESSION_TTL_SECONDS", 0),
			SweepSchedule: os.Getenv("ESSEMBI_SESSION_SWEEP_SCHEDULE"),
		},
		API: APIConfig{
			Host: getenv("ESSEMBI_API_HOST", "0.0.0.0"),
			Port: getenvInt("ESSEMBI_API_PORT", DefaultPort),
			Key:  os.Getenv("ESSEMBI_API_KEY"),
		},
		Links: LinksConfig{
			SupportURL: os.Getenv("ESSEMBI_SUPPORT_URL"),
			DocsURL:    os.Getenv("ESSEMBI_DOCS_URL"),
		},
	}

	if token := os.Getenv("ESSEMBI_SLACK_BOT_TOKEN"); token != "" {
		cfg.Slack = &SlackConfig{
			BotToken: token,
			AppToken: os.Getenv("ESSEMBI_SLACK_APP_TOKEN"),
			Channels: splitList(os.Getenv("ESSEMBI_SLACK_CHANNELS")),
		}
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Integration.ServiceBaseURL == "" {
		c.Integration.ServiceBaseURL = DefaultServiceBaseURL
	}
	if c.Integration.Path == "" {
		c.Integration.Path = DefaultIntegrationPath
	}
	if c.Sessions.Backend == "" {
		c.Sessions.Backend = BackendMemory
	}
	if c.Sessions.TTLSeconds == 0 {
		c.Sessions.TTLSeconds = DefaultSessionTTL
	}
	if c.Sessions.SweepSchedule == "" {
		c.Sessions.SweepSchedule = DefaultSweepSchedule
	}
	if c.API.Port == 0 {
		c.API.Port = DefaultPort
	}
}

// Validate checks for required fields.
func (c *Config) Validate() error {
	var errs []string

	if c.Integration.Key == "" {
		errs = append(errs, "integration.key is required")
	}
	if (c.Teams.AppID == "") != (c.Teams.AppPassword == "") {
		errs = append(errs, "teams.app_id and teams.app_password must be set together")
	}

	switch c.Sessions.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Sessions.Path == "" {
			errs = append(errs, "sessions.path is required for the sqlite backend")
		}
	case BackendRedis:
		if c.Sessions.RedisAddr == "" {
			errs = append(errs, "sessions.redis_addr is required for the redis backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("sessions.backend %q is not one of memory, sqlite, redis", c.Sessions.Backend))
	}
	if c.Sessions.TTLSeconds < 0 {
		errs = append(errs, "sessions.ttl_seconds must not be negative")
	}

	if c.Slack != nil {
		if c.Slack.BotToken == "" {
			errs = append(errs, "slack.bot_token is required")
		}
		if c.Slack.AppToken == "" {
			errs = append(errs, "slack.app_token is required")
		}
	}

	if c.API.Port <= 0 || c.API.Port > 65535 {
		errs = append(errs, fmt.Sprintf("api.port %d is out of range", c.API.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
