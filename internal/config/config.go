// Package config loads the seeder configuration.
//
// Values are layered: struct tag defaults, then an optional YAML file, then
// PAPERCUT_SEEDER_* environment variables. The result is validated once and
// treated as immutable afterwards.
package config

import (
	"time"

	"github.com/isometry/papercut-seeder/internal/papercut"
	"github.com/isometry/papercut-seeder/internal/retry"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "PAPERCUT_SEEDER_"

// Enumeration failure policies.
const (
	OnFailureAbort        = "abort"
	OnFailureTreatAsEmpty = "treat-as-empty"
)

// Config is the complete seeder configuration.
type Config struct {
	RemoteServer     RemoteServer     `yaml:"remote_server" envPrefix:"REMOTE_SERVER_"`
	RetryPolicy      RetryPolicy      `yaml:"retry_policy" envPrefix:"RETRY_"`
	TargetPopulation TargetPopulation `yaml:"target_population" envPrefix:"TARGET_"`
	Enumeration      Enumeration      `yaml:"enumeration" envPrefix:"ENUMERATION_"`
	Generator        Generator        `yaml:"generator" envPrefix:"GENERATOR_"`
	JobSimulation    JobSimulation    `yaml:"job_simulation" envPrefix:"JOBS_"`
	Logging          Logging          `yaml:"logging" envPrefix:"LOG_"`
	Metrics          Metrics          `yaml:"metrics" envPrefix:"METRICS_"`
}

// RemoteServer addresses the application server's XML-RPC endpoint.
type RemoteServer struct {
	Scheme         string `yaml:"scheme" env:"SCHEME" default:"http"`
	Host           string `yaml:"host" env:"HOST" default:"localhost"`
	Port           int    `yaml:"port" env:"PORT" default:"9191"`
	Path           string `yaml:"path" env:"PATH" default:"/rpc/api/xmlrpc"`
	AuthToken      string `yaml:"auth_token" env:"AUTH_TOKEN"`
	TimeoutSeconds int    `yaml:"timeout_seconds" env:"TIMEOUT_SECONDS" default:"30"`
}

// RetryPolicy configures the backoff applied to every remote call.
type RetryPolicy struct {
	MaxAttempts       int     `yaml:"max_attempts" env:"MAX_ATTEMPTS" default:"3"`
	DelayMs           int     `yaml:"delay_ms" env:"DELAY_MS" default:"500"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier" env:"BACKOFF_MULTIPLIER" default:"2.0"`
	MaxDelayMs        int     `yaml:"max_delay_ms" env:"MAX_DELAY_MS" default:"30000"`
}

// TargetPopulation is the account count a seed pass guarantees.
type TargetPopulation struct {
	CreateUsersMaxQuantity int `yaml:"create_users_max_quantity" env:"CREATE_USERS_MAX_QUANTITY" default:"50"`
}

// Enumeration configures paged listing.
type Enumeration struct {
	PageSize  int    `yaml:"page_size" env:"PAGE_SIZE" default:"1000"`
	MaxPages  int    `yaml:"max_pages" env:"MAX_PAGES" default:"10000"` // 0 disables the limit
	OnFailure string `yaml:"on_failure" env:"ON_FAILURE" default:"abort"`
}

// Generator configures synthetic identity generation. Zero picks a
// time-based seed.
type Generator struct {
	Seed uint64 `yaml:"seed" env:"SEED" default:"0"`
}

// JobSimulation configures the print-job simulator.
type JobSimulation struct {
	Days         int    `yaml:"days" env:"DAYS" default:"7"`
	MaxDailyJobs int    `yaml:"max_daily_jobs" env:"MAX_DAILY_JOBS" default:"200"`
	ServerName   string `yaml:"server_name" env:"SERVER_NAME" default:"papercut-seeder"`
	DocumentName string `yaml:"document_name" env:"DOCUMENT_NAME" default:"Generated by papercut-seeder"`
	Comment      string `yaml:"comment" env:"COMMENT" default:"simulated job"`
}

// Logging configures the root logger.
type Logging struct {
	Level string `yaml:"level" env:"LEVEL" default:"info"`
}

// Metrics configures the optional Pushgateway export.
type Metrics struct {
	PushGatewayURL string `yaml:"push_gateway_url" env:"PUSH_GATEWAY_URL"`
	JobName        string `yaml:"job_name" env:"JOB_NAME" default:"papercut_seeder"`
}

// Policy converts the retry section.
func (r RetryPolicy) Policy() retry.Policy {
	return retry.Policy{
		MaxAttempts: r.MaxAttempts,
		BaseDelay:   time.Duration(r.DelayMs) * time.Millisecond,
		Multiplier:  r.BackoffMultiplier,
		MaxDelay:    time.Duration(r.MaxDelayMs) * time.Millisecond,
	}
}

// ConnectionConfig converts the remote server section.
func (s RemoteServer) ConnectionConfig() *papercut.ConnectionConfig {
	return &papercut.ConnectionConfig{
		Scheme:    s.Scheme,
		Host:      s.Host,
		Port:      s.Port,
		Path:      s.Path,
		AuthToken: s.AuthToken,
		Timeout:   time.Duration(s.TimeoutSeconds) * time.Second,
	}
}
