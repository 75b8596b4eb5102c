// Package config loads client configuration from YAML.
//
// Secrets are never required inline: auth.token_env and auth.password_env
// name environment variables that are read when credentials are built.
package config

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/roach88/jmap/internal/client"
	"github.com/roach88/jmap/internal/transport"
)

// Auth schemes.
const (
	SchemeBearer = "bearer"
	SchemeBasic  = "basic"
)

// Push transports.
const (
	PushEventSource = "eventsource"
	PushWebSocket   = "websocket"
)

// Defaults applied to zero fields.
const (
	DefaultTimeout      = 30 * time.Second
	DefaultRetryMax     = 2
	DefaultRetryWaitMin = 100 * time.Millisecond
	DefaultRetryWaitMax = 2 * time.Second
	DefaultPingInterval = 30
)

// Config is the client configuration file.
type Config struct {
	// SessionURL is the JMAP session resource, e.g.
	// https://api.fastmail.com/jmap/session.
	SessionURL string `yaml:"session_url"`
	UserAgent  string `yaml:"user_agent,omitempty"`
	Auth       Auth   `yaml:"auth"`
	HTTP       HTTP   `yaml:"http,omitempty"`
	Push       Push   `yaml:"push,omitempty"`
}

// Auth selects and locates credentials.
type Auth struct {
	Scheme      string `yaml:"scheme"`
	Token       string `yaml:"token,omitempty"`
	TokenEnv    string `yaml:"token_env,omitempty"`
	Username    string `yaml:"username,omitempty"`
	Password    string `yaml:"password,omitempty"`
	PasswordEnv string `yaml:"password_env,omitempty"`
}

// HTTP tunes the API transport.
type HTTP struct {
	Timeout      time.Duration `yaml:"timeout,omitempty"`
	RetryMax     *int          `yaml:"retry_max,omitempty"`
	RetryWaitMin time.Duration `yaml:"retry_wait_min,omitempty"`
	RetryWaitMax time.Duration `yaml:"retry_wait_max,omitempty"`
}

// Push configures the push channel.
type Push struct {
	Transport         string        `yaml:"transport,omitempty"`
	Types             []string      `yaml:"types,omitempty"`
	PingInterval      int           `yaml:"ping_interval,omitempty"`
	ReconnectAttempts int           `yaml:"reconnect_attempts,omitempty"`
	ReconnectWait     time.Duration `yaml:"reconnect_wait,omitempty"`
}

// Load reads and parses a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, rejecting unknown fields, applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Auth.Scheme == "" {
		c.Auth.Scheme = SchemeBearer
	}
	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = DefaultTimeout
	}
	if c.HTTP.RetryMax == nil {
		n := DefaultRetryMax
		c.HTTP.RetryMax = &n
	}
	if c.HTTP.RetryWaitMin == 0 {
		c.HTTP.RetryWaitMin = DefaultRetryWaitMin
	}
	if c.HTTP.RetryWaitMax == 0 {
		c.HTTP.RetryWaitMax = DefaultRetryWaitMax
	}
	if c.Push.Transport == "" {
		c.Push.Transport = PushEventSource
	}
	if c.Push.PingInterval == 0 {
		c.Push.PingInterval = DefaultPingInterval
	}
}

// Validate reports every problem found, not just the first.
func (c *Config) Validate() error {
	var errs *multierror.Error

	if c.SessionURL == "" {
		errs = multierror.Append(errs, fmt.Errorf("session_url is required"))
	}

	switch c.Auth.Scheme {
	case SchemeBearer:
		if c.Auth.Token == "" && c.Auth.TokenEnv == "" {
			errs = multierror.Append(errs, fmt.Errorf("auth.token or auth.token_env is required for bearer auth"))
		}
	case SchemeBasic:
		if c.Auth.Username == "" {
			errs = multierror.Append(errs, fmt.Errorf("auth.username is required for basic auth"))
		}
		if c.Auth.Password == "" && c.Auth.PasswordEnv == "" {
			errs = multierror.Append(errs, fmt.Errorf("auth.password or auth.password_env is required for basic auth"))
		}
	default:
		errs = multierror.Append(errs, fmt.Errorf("unknown auth.scheme %q", c.Auth.Scheme))
	}

	if c.HTTP.RetryMax != nil && *c.HTTP.RetryMax < 0 {
		errs = multierror.Append(errs, fmt.Errorf("http.retry_max must not be negative"))
	}
	if c.HTTP.RetryWaitMax < c.HTTP.RetryWaitMin {
		errs = multierror.Append(errs, fmt.Errorf("http.retry_wait_max is below http.retry_wait_min"))
	}
	if !slices.Contains([]string{PushEventSource, PushWebSocket}, c.Push.Transport) {
		errs = multierror.Append(errs, fmt.Errorf("unknown push.transport %q", c.Push.Transport))
	}
	if c.Push.PingInterval < 0 {
		errs = multierror.Append(errs, fmt.Errorf("push.ping_interval must not be negative"))
	}

	return errs.ErrorOrNil()
}

// Credentials builds the configured credentials, resolving *_env fields.
func (c *Config) Credentials() (transport.Credentials, error) {
	switch c.Auth.Scheme {
	case SchemeBasic:
		password, err := resolve(c.Auth.Password, c.Auth.PasswordEnv)
		if err != nil {
			return nil, err
		}
		return transport.Basic{Username: c.Auth.Username, Password: password}, nil
	case SchemeBearer:
		token, err := resolve(c.Auth.Token, c.Auth.TokenEnv)
		if err != nil {
			return nil, err
		}
		return transport.Bearer(token), nil
	default:
		return nil, fmt.Errorf("unknown auth.scheme %q", c.Auth.Scheme)
	}
}

func resolve(inline, env string) (string, error) {
	if inline != "" {
		return inline, nil
	}
	v, ok := os.LookupEnv(env)
	if !ok || v == "" {
		return "", fmt.Errorf("environment variable %s is not set", env)
	}
	return v, nil
}

// HTTPOptions returns the API transport options.
func (c *Config) HTTPOptions(creds transport.Credentials, logger *slog.Logger) transport.HTTPOptions {
	retryMax := DefaultRetryMax
	if c.HTTP.RetryMax != nil {
		retryMax = *c.HTTP.RetryMax
	}
	return transport.HTTPOptions{
		Timeout:      c.HTTP.Timeout,
		RetryMax:     retryMax,
		RetryWaitMin: c.HTTP.RetryWaitMin,
		RetryWaitMax: c.HTTP.RetryWaitMax,
		UserAgent:    c.UserAgent,
		Credentials:  creds,
		Logger:       logger,
	}
}

// Reconnect returns the push reconnect policy.
func (c *Config) Reconnect() transport.Reconnect {
	return transport.Reconnect{Attempts: c.Push.ReconnectAttempts, Wait: c.Push.ReconnectWait}
}

// ClientOptions resolves credentials and returns the options for
// client.Connect(ctx, c.SessionURL, opts...).
func (c *Config) ClientOptions(logger *slog.Logger) ([]client.Option, error) {
	creds, err := c.Credentials()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return []client.Option{
		client.WithLogger(logger),
		client.WithCredentials(creds),
		client.WithHTTPOptions(c.HTTPOptions(creds, logger)),
	}, nil
}
