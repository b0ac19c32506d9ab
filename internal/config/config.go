package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultConfigPath    = "config.toml"
	DefaultHTTPAddr      = ":8080"
	DefaultJWTExpiresIn  = "24h"
	DefaultProvider      = "loop"
	DefaultLoopSendURL   = "https://server.loopmessage.com/api/v1/message/send/"
	DefaultLoopSender    = "chip@ai.imsg.bot"
	DefaultTwilioBaseURL = "https://api.twilio.com"
	DefaultSQLitePath    = "data/dedup.db"
	DefaultSweepSchedule = "@every 5m"
	DefaultServiceName   = "chip"
	DefaultMaxBodyBytes  = 1 << 20
)

type Config struct {
	Log       LogConfig       `toml:"log"`
	Server    ServerConfig    `toml:"server"`
	Auth      AuthConfig      `toml:"auth"`
	Messaging MessagingConfig `toml:"messaging"`
	Normalize NormalizeConfig `toml:"normalize"`
	Loop      LoopConfig      `toml:"loop"`
	Twilio    TwilioConfig    `toml:"twilio"`
	Dedup     DedupConfig     `toml:"dedup"`
	Model     ModelConfig     `toml:"model"`
	History   HistoryConfig   `toml:"history"`
	Tracing   TracingConfig   `toml:"tracing"`
}

type LogConfig struct {
	Level  string `toml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `toml:"format" validate:"omitempty,oneof=text json"`
}

type ServerConfig struct {
	Addr string `toml:"addr" validate:"required"`
}

type AuthConfig struct {
	JWTSecret    string `toml:"jwt_secret"`
	JWTExpiresIn string `toml:"jwt_expires_in"`
}

// ExpiresIn parses JWTExpiresIn, falling back to the default on bad input.
func (c AuthConfig) ExpiresIn() time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(c.JWTExpiresIn))
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(DefaultJWTExpiresIn)
	}
	return d
}

// MessagingConfig holds the pipeline-wide knobs: which provider adapter is
// active and the per-stage timeouts and retry budget.
type MessagingConfig struct {
	Provider          string        `toml:"provider" validate:"required,oneof=loop twilio"`
	ModelTimeout      time.Duration `toml:"model_timeout" validate:"gt=0"`
	SendTimeout       time.Duration `toml:"send_timeout" validate:"gt=0"`
	SendDeadline      time.Duration `toml:"send_deadline" validate:"gt=0"`
	RetryMax          int           `toml:"retry_max" validate:"min=1,max=10"`
	RetryBackoff      time.Duration `toml:"retry_backoff" validate:"gt=0"`
	RetryBackoffMax   time.Duration `toml:"retry_backoff_max" validate:"gtefield=RetryBackoff"`
	RateLimit         float64       `toml:"rate_limit" validate:"min=0"`
	RateBurst         int           `toml:"rate_burst" validate:"min=0"`
	MaxBodyBytes      int64         `toml:"max_body_bytes" validate:"gt=0"`
	// ModelFailureReply sends a fixed apology when the model call fails.
	ModelFailureReply bool          `toml:"model_failure_reply"`
}

// NormalizeConfig points at an optional YAML file of extra spelling
// corrections merged over the built-in table.
type NormalizeConfig struct {
	CorrectionsFile string `toml:"corrections_file"`
}

type LoopConfig struct {
	SendURL            string `toml:"send_url" validate:"required,url"`
	Authorization      string `toml:"authorization"`
	SecretKey          string `toml:"secret_key"`
	SenderName         string `toml:"sender_name"`
	Service            string `toml:"service" validate:"omitempty,oneof=imessage sms"`
	StatusCallbackURL  string `toml:"status_callback_url" validate:"omitempty,url"`
	StatusCallbackAuth string `toml:"status_callback_auth"`
	WebhookAuth        string `toml:"webhook_auth"`
	WebhookScheme      string `toml:"webhook_scheme" validate:"omitempty,oneof=bearer hmac"`
	WebhookHeader      string `toml:"webhook_header"`
	TimeoutSeconds     int    `toml:"timeout_seconds" validate:"omitempty,min=5"`
}

type TwilioConfig struct {
	Enabled       bool   `toml:"enabled"`
	BaseURL       string `toml:"base_url" validate:"omitempty,url"`
	AccountSID    string `toml:"account_sid" validate:"required_if=Enabled true"`
	AuthToken     string `toml:"auth_token" validate:"required_if=Enabled true"`
	FromNumber    string `toml:"from_number" validate:"required_if=Enabled true"`
	WebhookSecret string `toml:"webhook_secret"`
	PublicURL     string `toml:"public_url" validate:"omitempty,url"`
}

type DedupConfig struct {
	Store         string        `toml:"store" validate:"required,oneof=memory sqlite postgres"`
	Window        time.Duration `toml:"window" validate:"gt=0"`
	FailurePolicy string        `toml:"failure_policy" validate:"required,oneof=fail_open fail_closed"`
	SQLitePath    string        `toml:"sqlite_path" validate:"required_if=Store sqlite"`
	PostgresDSN   string        `toml:"postgres_dsn" validate:"required_if=Store postgres"`
	SweepSchedule string        `toml:"sweep_schedule"`
}

type ModelConfig struct {
	Provider      string  `toml:"provider" validate:"required,oneof=openai anthropic google ollama stub"`
	Model         string  `toml:"model"`
	BaseURL       string  `toml:"base_url" validate:"omitempty,url"`
	OpenAIAPIKey  string  `toml:"openai_api_key"`
	AnthropicKey  string  `toml:"anthropic_api_key"`
	GeminiAPIKey  string  `toml:"gemini_api_key"`
	OllamaHost    string  `toml:"ollama_host" validate:"omitempty,url"`
	Temperature   float64 `toml:"temperature" validate:"min=0,max=2"`
	MaxTokens     int     `toml:"max_tokens" validate:"min=1"`
	MaxConcurrent int     `toml:"max_concurrent" validate:"min=1"`
	StubReply     string  `toml:"stub_reply"`
}

type HistoryConfig struct {
	Enabled      bool          `toml:"enabled"`
	MaxTurns     int           `toml:"max_turns" validate:"min=0"`
	ContextTurns int           `toml:"context_turns" validate:"min=0,ltefield=MaxTurns"`
	TTL          time.Duration `toml:"ttl" validate:"min=0"`
}

type TracingConfig struct {
	Enabled     bool    `toml:"enabled"`
	Endpoint    string  `toml:"endpoint" validate:"required_if=Enabled true"`
	Insecure    bool    `toml:"insecure"`
	ServiceName string  `toml:"service_name"`
	SampleRatio float64 `toml:"sample_ratio" validate:"min=0,max=1"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Auth: AuthConfig{
			JWTExpiresIn: DefaultJWTExpiresIn,
		},
		Messaging: MessagingConfig{
			Provider:        DefaultProvider,
			ModelTimeout:    20 * time.Second,
			SendTimeout:     15 * time.Second,
			SendDeadline:    30 * time.Second,
			RetryMax:        3,
			RetryBackoff:    500 * time.Millisecond,
			RetryBackoffMax: 5 * time.Second,
			RateLimit:       10,
			RateBurst:       5,
			MaxBodyBytes:    DefaultMaxBodyBytes,
		},
		Loop: LoopConfig{
			SendURL:       DefaultLoopSendURL,
			SenderName:    DefaultLoopSender,
			WebhookScheme: "bearer",
		},
		Twilio: TwilioConfig{
			BaseURL: DefaultTwilioBaseURL,
		},
		Dedup: DedupConfig{
			Store:         "memory",
			Window:        time.Hour,
			FailurePolicy: "fail_open",
			SQLitePath:    DefaultSQLitePath,
			SweepSchedule: DefaultSweepSchedule,
		},
		Model: ModelConfig{
			Provider:      "google",
			Model:         "gemini-2.0-flash",
			Temperature:   0.7,
			MaxTokens:     512,
			MaxConcurrent: 8,
		},
		History: HistoryConfig{
			Enabled:      true,
			MaxTurns:     10,
			ContextTurns: 5,
			TTL:          time.Hour,
		},
		Tracing: TracingConfig{
			ServiceName: DefaultServiceName,
			SampleRatio: 1,
		},
	}
}

// Load reads the TOML file at path over the defaults and then applies
// environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return cfg, err
		}
	} else if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("decode %s: %w", path, err)
	}

	applyEnv(&cfg, os.LookupEnv)
	return cfg, nil
}

// Validate checks field constraints declared in struct tags.
func (c Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Messaging.Provider == "twilio" && !c.Twilio.Enabled {
		return fmt.Errorf("invalid config: messaging.provider is twilio but twilio.enabled is false")
	}
	return nil
}

type lookupFunc func(key string) (string, bool)

var envOverrides = []struct {
	key   string
	apply func(*Config, string)
}{
	{"LOOP_SEND_URL", func(c *Config, v string) { c.Loop.SendURL = v }},
	{"LOOP_AUTHORIZATION", func(c *Config, v string) { c.Loop.Authorization = v }},
	{"LOOP_SECRET_KEY", func(c *Config, v string) { c.Loop.SecretKey = v }},
	{"LOOP_SENDER_NAME", func(c *Config, v string) { c.Loop.SenderName = v }},
	{"LOOP_WEBHOOK_AUTH", func(c *Config, v string) { c.Loop.WebhookAuth = v }},
	{"STATUS_CALLBACK_URL", func(c *Config, v string) { c.Loop.StatusCallbackURL = v }},
	{"STATUS_CALLBACK_AUTH", func(c *Config, v string) { c.Loop.StatusCallbackAuth = v }},
	{"TWILIO_ACCOUNT_SID", func(c *Config, v string) { c.Twilio.AccountSID = v }},
	{"TWILIO_AUTH_TOKEN", func(c *Config, v string) { c.Twilio.AuthToken = v }},
	{"TWILIO_FROM_NUMBER", func(c *Config, v string) { c.Twilio.FromNumber = v }},
	{"TWILIO_WEBHOOK_SECRET", func(c *Config, v string) { c.Twilio.WebhookSecret = v }},
	{"OPENAI_API_KEY", func(c *Config, v string) { c.Model.OpenAIAPIKey = v }},
	{"ANTHROPIC_API_KEY", func(c *Config, v string) { c.Model.AnthropicKey = v }},
	{"GEMINI_API_KEY", func(c *Config, v string) { c.Model.GeminiAPIKey = v }},
	{"OLLAMA_HOST", func(c *Config, v string) { c.Model.OllamaHost = v }},
	{"CHIP_JWT_SECRET", func(c *Config, v string) { c.Auth.JWTSecret = v }},
	{"CHIP_DATABASE_DSN", func(c *Config, v string) { c.Dedup.PostgresDSN = v }},
}

func applyEnv(cfg *Config, lookup lookupFunc) {
	for _, o := range envOverrides {
		if v, ok := lookup(o.key); ok && strings.TrimSpace(v) != "" {
			o.apply(cfg, strings.TrimSpace(v))
		}
	}
}
