package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath       = "config.toml"
	DefaultHTTPAddr         = ":8080"
	DefaultPGHost           = "127.0.0.1"
	DefaultPGPort           = 5432
	DefaultPGUser           = "postgres"
	DefaultPGDatabase       = "relaydesk"
	DefaultPGSSLMode        = "disable"
	DefaultDispatchTimeout  = 15
	DefaultSendTimeout      = 20
	DefaultCallbackTokenTTL = "1h"
	DefaultReconcileSpec    = "@every 15m"
)

type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	Postgres PostgresConfig `toml:"postgres"`
	Pipeline PipelineConfig `toml:"pipeline"`
	Webhooks WebhookConfig  `toml:"webhooks"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// DSN builds a postgres connection string for pgx.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// PipelineConfig holds settings for the ingestion/dispatch pipeline.
type PipelineConfig struct {
	// BaseURL is the public base URL of this instance, used to build
	// callback URLs and default inbound webhook URLs.
	BaseURL string `toml:"base_url"`
	// DispatchTimeoutSeconds bounds the outbound POST to a workflow engine.
	DispatchTimeoutSeconds int `toml:"dispatch_timeout_seconds"`
	// SendTimeoutSeconds bounds outbound channel sends.
	SendTimeoutSeconds int `toml:"send_timeout_seconds"`
	// CallbackSecret signs short-lived tokens embedded in callback URLs.
	// Empty disables callback token verification.
	CallbackSecret string `toml:"callback_secret"`
	// CallbackTokenTTL is the validity window of callback tokens.
	CallbackTokenTTL string `toml:"callback_token_ttl"`
	// FallbackBotToken is an optional global channel credential used when a
	// tenant has no channel settings of its own.
	FallbackBotToken string `toml:"fallback_bot_token"`
}

func (c PipelineConfig) DispatchTimeout() time.Duration {
	seconds := c.DispatchTimeoutSeconds
	if seconds <= 0 {
		seconds = DefaultDispatchTimeout
	}
	return time.Duration(seconds) * time.Second
}

func (c PipelineConfig) SendTimeout() time.Duration {
	seconds := c.SendTimeoutSeconds
	if seconds <= 0 {
		seconds = DefaultSendTimeout
	}
	return time.Duration(seconds) * time.Second
}

func (c PipelineConfig) TokenTTL() time.Duration {
	raw := strings.TrimSpace(c.CallbackTokenTTL)
	if raw == "" {
		raw = DefaultCallbackTokenTTL
	}
	ttl, err := time.ParseDuration(raw)
	if err != nil || ttl <= 0 {
		ttl, _ = time.ParseDuration(DefaultCallbackTokenTTL)
	}
	return ttl
}

// CallbackURL returns the full callback endpoint handed to workflow engines.
func (c PipelineConfig) CallbackURL() string {
	return strings.TrimRight(strings.TrimSpace(c.BaseURL), "/") + "/webhooks/callback"
}

// InboundWebhookURL returns the tenant-scoped inbound webhook URL for a channel.
func (c PipelineConfig) InboundWebhookURL(channelType, tenantID string) string {
	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	return base + "/webhooks/" + strings.TrimSpace(channelType) + "/" + strings.TrimSpace(tenantID)
}

// WebhookConfig controls the background webhook registration reconciler.
type WebhookConfig struct {
	ReconcileEnabled bool   `toml:"reconcile_enabled"`
	ReconcileSpec    string `toml:"reconcile_spec"`
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Pipeline: PipelineConfig{
			DispatchTimeoutSeconds: DefaultDispatchTimeout,
			SendTimeoutSeconds:     DefaultSendTimeout,
			CallbackTokenTTL:       DefaultCallbackTokenTTL,
		},
		Webhooks: WebhookConfig{
			ReconcileEnabled: true,
			ReconcileSpec:    DefaultReconcileSpec,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
