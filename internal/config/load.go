package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/creasty/defaults"
	"github.com/hashicorp/go-hclog"
	"gopkg.in/yaml.v3"

	"github.com/isometry/papercut-seeder/internal/pagination"
)

// Default returns a configuration holding only the tag defaults.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// Load builds the configuration from defaults, the YAML file at path (skipped
// when path is empty) and the environment. A nil environ reads the process
// environment.
func Load(path string, environ map[string]string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := ParseEnv(cfg, environ); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	// #nosec G304
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to unmarshal yaml %s: %w", path, err)
	}

	return nil
}

// ParseEnv applies PAPERCUT_SEEDER_* overrides to cfg.
func ParseEnv(cfg *Config, environ map[string]string) error {
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error

	s := c.RemoteServer
	if strings.TrimSpace(s.Host) == "" {
		errs = append(errs, fmt.Errorf("remote_server.host is required"))
	}
	if s.Port < 1 || s.Port > 65535 {
		errs = append(errs, fmt.Errorf("remote_server.port must be between 1 and 65535, got %d", s.Port))
	}
	if s.Scheme != "http" && s.Scheme != "https" {
		errs = append(errs, fmt.Errorf("remote_server.scheme must be http or https, got %q", s.Scheme))
	}
	if !strings.HasPrefix(s.Path, "/") {
		errs = append(errs, fmt.Errorf("remote_server.path must start with '/', got %q", s.Path))
	}
	if s.AuthToken == "" {
		errs = append(errs, fmt.Errorf("remote_server.auth_token is required (set %sREMOTE_SERVER_AUTH_TOKEN)", EnvPrefix))
	}
	if s.TimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("remote_server.timeout_seconds cannot be negative"))
	}

	if err := c.RetryPolicy.Policy().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("retry_policy: %w", err))
	}

	if c.TargetPopulation.CreateUsersMaxQuantity < 0 {
		errs = append(errs, fmt.Errorf("target_population.create_users_max_quantity cannot be negative, got %d",
			c.TargetPopulation.CreateUsersMaxQuantity))
	}

	if c.Enumeration.PageSize < 1 || c.Enumeration.PageSize > pagination.MaxPageSize {
		errs = append(errs, fmt.Errorf("enumeration.page_size must be between 1 and %d, got %d",
			pagination.MaxPageSize, c.Enumeration.PageSize))
	}
	if c.Enumeration.MaxPages < 0 {
		errs = append(errs, fmt.Errorf("enumeration.max_pages cannot be negative, got %d", c.Enumeration.MaxPages))
	}
	switch c.Enumeration.OnFailure {
	case OnFailureAbort, OnFailureTreatAsEmpty:
	default:
		errs = append(errs, fmt.Errorf("enumeration.on_failure must be %q or %q, got %q",
			OnFailureAbort, OnFailureTreatAsEmpty, c.Enumeration.OnFailure))
	}

	if c.JobSimulation.Days < 1 {
		errs = append(errs, fmt.Errorf("job_simulation.days must be at least 1, got %d", c.JobSimulation.Days))
	}
	if c.JobSimulation.MaxDailyJobs < 1 {
		errs = append(errs, fmt.Errorf("job_simulation.max_daily_jobs must be at least 1, got %d", c.JobSimulation.MaxDailyJobs))
	}

	if hclog.LevelFromString(c.Logging.Level) == hclog.NoLevel {
		errs = append(errs, fmt.Errorf("logging.level %q is not a valid level", c.Logging.Level))
	}

	if c.Metrics.PushGatewayURL != "" {
		u, err := url.Parse(c.Metrics.PushGatewayURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("metrics.push_gateway_url %q is not an absolute URL", c.Metrics.PushGatewayURL))
		}
		if c.Metrics.JobName == "" {
			errs = append(errs, fmt.Errorf("metrics.job_name is required when a push gateway is configured"))
		}
	}

	return errors.Join(errs...)
}
