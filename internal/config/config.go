// Package config loads the openapi-mcp command configuration.
//
// Values are layered: built-in defaults, then an optional YAML file in which
// ${VAR} references are expanded, then OPENAPI_MCP_* environment variables,
// then command-line flags that were set explicitly.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable the command reads.
const EnvPrefix = "OPENAPI_MCP_"

// Transports accepted by Server.Transport.
const (
	TransportHTTP      = "http"
	TransportWebSocket = "ws"
	TransportStdio     = "stdio"
)

// Config is the complete command configuration.
type Config struct {
	Spec      string          `yaml:"spec" env:"SPEC"`
	Server    ServerConfig    `yaml:"server" envPrefix:"SERVER_"`
	Upstream  UpstreamConfig  `yaml:"upstream" envPrefix:"UPSTREAM_"`
	Auth      AuthConfig      `yaml:"auth" envPrefix:"AUTH_"`
	RateLimit RateLimitConfig `yaml:"rate_limit" envPrefix:"RATE_LIMIT_"`
	Logging   LoggingConfig   `yaml:"logging" envPrefix:"LOG_"`
	Telemetry TelemetryConfig `yaml:"telemetry" envPrefix:"OTEL_"`
}

// ServerConfig holds the MCP listener settings.
type ServerConfig struct {
	Name         string        `yaml:"name" env:"NAME"`
	Version      string        `yaml:"version" env:"VERSION"`
	Addr         string        `yaml:"addr" env:"ADDR"`
	Transport    string        `yaml:"transport" env:"TRANSPORT"`
	Path         string        `yaml:"path" env:"PATH"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" env:"MAX_BODY_BYTES"`
	CORS         bool          `yaml:"cors" env:"CORS"`
	ValidateArgs bool          `yaml:"validate_arguments" env:"VALIDATE_ARGUMENTS"`
}

// UpstreamConfig describes the API that tool calls are forwarded to.
type UpstreamConfig struct {
	URL            string            `yaml:"url" env:"URL"`
	Timeout        time.Duration     `yaml:"timeout" env:"TIMEOUT"`
	IdentityHeader string            `yaml:"identity_header" env:"IDENTITY_HEADER"`
	Headers        map[string]string `yaml:"headers" env:"HEADERS"`
}

// AuthConfig selects how caller identity is resolved.
type AuthConfig struct {
	JWTSecret      string `yaml:"jwt_secret" env:"JWT_SECRET"`
	IdentityHeader string `yaml:"identity_header" env:"IDENTITY_HEADER"`
}

// RateLimitConfig enables per-tool rate limiting when Rate is positive.
type RateLimitConfig struct {
	Rate  int `yaml:"rate" env:"RATE"`
	Burst int `yaml:"burst" env:"BURST"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// TelemetryConfig enables OTLP trace export when Endpoint is set.
type TelemetryConfig struct {
	Endpoint    string `yaml:"endpoint" env:"ENDPOINT"`
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Name:         "openapi-mcp",
			Version:      "0.1.0",
			Addr:         ":8080",
			Transport:    TransportHTTP,
			Path:         "/mcp",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			MaxBodyBytes: 4 << 20,
		},
		Upstream: UpstreamConfig{
			Timeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "openapi-mcp",
		},
	}
}

// Load reads the YAML file at path (when non-empty) on top of the defaults
// and then applies environment variables. It does not validate.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

var envVar = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} with the value of VAR, or the empty string
// when VAR is unset.
func expandEnvVars(s string) string {
	return envVar.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVar.FindStringSubmatch(match)[1])
	})
}

// Flag names understood by RegisterFlags and ApplyFlags.
const (
	FlagConfig    = "config"
	FlagSpec      = "spec"
	FlagUpstream  = "upstream"
	FlagAddr      = "addr"
	FlagTransport = "transport"
	FlagJWTSecret = "jwt-secret"
	FlagLogLevel  = "log-level"
	FlagTimeout   = "upstream-timeout"
	FlagValidate  = "validate-arguments"
)

// RegisterFlags defines the serve flags on fs. Defaults shown in help text
// come from Default; only flags the user sets override loaded values.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String(FlagConfig, "", "path to a YAML config file")
	fs.String(FlagSpec, "", "path to the OpenAPI document (JSON or YAML)")
	fs.String(FlagUpstream, "", "base URL of the API tool calls are forwarded to")
	fs.String(FlagAddr, d.Server.Addr, "listen address for http and ws transports")
	fs.String(FlagTransport, d.Server.Transport, "transport: http, ws or stdio")
	fs.String(FlagJWTSecret, "", "HS256 secret for bearer token identity")
	fs.String(FlagLogLevel, d.Logging.Level, "log level: debug, info, warn or error")
	fs.Duration(FlagTimeout, d.Upstream.Timeout, "timeout for upstream API calls")
	fs.Bool(FlagValidate, false, "validate tool arguments against their schema")
}

// ApplyFlags copies every flag set on fs into c.
func (c *Config) ApplyFlags(fs *pflag.FlagSet) error {
	var err error
	fs.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case FlagSpec:
			c.Spec = f.Value.String()
		case FlagUpstream:
			c.Upstream.URL = f.Value.String()
		case FlagAddr:
			c.Server.Addr = f.Value.String()
		case FlagTransport:
			c.Server.Transport = f.Value.String()
		case FlagJWTSecret:
			c.Auth.JWTSecret = f.Value.String()
		case FlagLogLevel:
			c.Logging.Level = f.Value.String()
		case FlagTimeout:
			c.Upstream.Timeout, err = fs.GetDuration(FlagTimeout)
		case FlagValidate:
			c.Server.ValidateArgs, err = fs.GetBool(FlagValidate)
		}
	})
	return err
}

// Validate reports every invalid or missing field.
func (c *Config) Validate() error {
	var errs []error

	if c.Spec == "" {
		errs = append(errs, errors.New("spec is required"))
	}
	if c.Upstream.URL == "" {
		errs = append(errs, errors.New("upstream.url is required"))
	} else if !strings.HasPrefix(c.Upstream.URL, "http://") && !strings.HasPrefix(c.Upstream.URL, "https://") {
		errs = append(errs, fmt.Errorf("upstream.url %q must be an http or https URL", c.Upstream.URL))
	}

	switch c.Server.Transport {
	case TransportHTTP, TransportWebSocket:
		if c.Server.Addr == "" {
			errs = append(errs, fmt.Errorf("server.addr is required for the %s transport", c.Server.Transport))
		}
	case TransportStdio:
	default:
		errs = append(errs, fmt.Errorf("server.transport %q must be one of http, ws, stdio", c.Server.Transport))
	}

	if c.Server.MaxBodyBytes < 0 {
		errs = append(errs, errors.New("server.max_body_bytes must not be negative"))
	}
	if c.RateLimit.Rate < 0 || c.RateLimit.Burst < 0 {
		errs = append(errs, errors.New("rate_limit.rate and rate_limit.burst must not be negative"))
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level %q must be one of debug, info, warn, error", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q must be text or json", c.Logging.Format))
	}

	return errors.Join(errs...)
}
