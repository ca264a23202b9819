package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration values.
const (
	defaultServiceName       = "enhancement"
	defaultServiceVersion    = "1.0.0"
	defaultServicePort       = 8072
	defaultWorkers           = 5
	defaultJobRetention      = time.Hour
	defaultCleanupInterval   = 10 * time.Minute
	defaultScoringTimeout    = 60 * time.Second
	defaultScoringMaxRetries = 3
	defaultScoringBaseDelay  = time.Second
	defaultScoringMaxDelay   = 10 * time.Second
	defaultScoringMultiplier = 2.0
	defaultScoringModel      = "gpt-4o-mini"
	defaultScoringWindow     = time.Minute
	defaultScoringMaxCalls   = 60
	defaultSubmissionWindow  = time.Minute
	defaultSubmissionMax     = 10
	defaultDispatchRPS       = 0 // disabled unless configured
	defaultDBHost            = "localhost"
	defaultDBPort            = 5432
	defaultDBUser            = "postgres"
	defaultDBName            = "hypeindex"
	defaultDBSSLMode         = "disable"
	defaultDBMaxConns        = 25
	defaultDBMaxIdleConns    = 5
	defaultRedisAddress      = "localhost:6379"
	defaultLogLevel          = "info"
	defaultLogFormat         = "json"
)

// Config holds all configuration for the enhancement service.
type Config struct {
	Service    ServiceConfig    `yaml:"service"`
	Queue      QueueConfig      `yaml:"queue"`
	Scoring    ScoringConfig    `yaml:"scoring"`
	Submission SubmissionConfig `yaml:"submission"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Logging    LoggingConfig    `yaml:"logging"`
	Auth       AuthConfig       `yaml:"auth"`
}

// ServiceConfig holds service-level configuration.
type ServiceConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Port    int    `env:"ENHANCEMENT_PORT" yaml:"port"`
	Debug   bool   `env:"APP_DEBUG"        yaml:"debug"`
}

// QueueConfig holds enhancement queue configuration.
type QueueConfig struct {
	Workers         int           `env:"ENHANCEMENT_WORKERS" yaml:"workers"`
	JobRetention    time.Duration `yaml:"job_retention"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	// DispatchRPS caps the aggregate rate at which workers start external
	// scoring calls. Zero disables pacing.
	DispatchRPS int `yaml:"dispatch_rps"`
}

// ScoringConfig holds configuration for the external scoring service call.
type ScoringConfig struct {
	BaseURL      string        `env:"SCORING_BASE_URL" yaml:"base_url"`
	APIKey       string        `env:"SCORING_API_KEY"  yaml:"api_key"`
	Model        string        `yaml:"model"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	BaseDelay    time.Duration `yaml:"base_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Multiplier   float64       `yaml:"multiplier"`
	RateWindow   time.Duration `yaml:"rate_window"`
	RateMaxCalls int           `yaml:"rate_max_calls"`
}

// SubmissionConfig holds the enqueue-side rate limit configuration.
type SubmissionConfig struct {
	Window      time.Duration `yaml:"window"`
	MaxRequests int           `yaml:"max_requests"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host            string        `env:"POSTGRES_HOST"     yaml:"host"`
	Port            int           `env:"POSTGRES_PORT"     yaml:"port"`
	User            string        `env:"POSTGRES_USER"     yaml:"user"`
	Password        string        `env:"POSTGRES_PASSWORD" yaml:"password"`
	Database        string        `env:"POSTGRES_DB"       yaml:"database"`
	SSLMode         string        `env:"POSTGRES_SSLMODE"  yaml:"sslmode"`
	MaxConnections  int           `yaml:"max_connections"`
	MaxIdleConns    int           `yaml:"max_idle_connections"`
	ConnMaxLifetime time.Duration `yaml:"connection_max_lifetime"`
}

// RedisConfig holds Redis configuration. Redis backs the shared-store rate
// limiter in multi-process deployments; it is optional.
type RedisConfig struct {
	Enabled  bool   `env:"REDIS_ENABLED"  yaml:"enabled"`
	Address  string `env:"REDIS_ADDRESS"  yaml:"address"`
	Password string `env:"REDIS_PASSWORD" yaml:"password"`
	DB       int    `env:"REDIS_DB"       yaml:"db"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL"  yaml:"level"`
	Format string `env:"LOG_FORMAT" yaml:"format"`
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	JWTSecret string `env:"AUTH_JWT_SECRET" yaml:"jwt_secret"`
}

// Load reads the service configuration: .env files first, then the YAML
// file at path, then defaults for anything still unset. Environment
// variables are applied last and always win. A missing config file is not
// an error.
func Load(path string) (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, fmt.Errorf("load environment files: %w", err)
	}

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	setDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func setDefaults(cfg *Config) {
	setServiceDefaults(&cfg.Service)
	setQueueDefaults(&cfg.Queue)
	setScoringDefaults(&cfg.Scoring)
	setSubmissionDefaults(&cfg.Submission)
	setDatabaseDefaults(&cfg.Database)
	setRedisDefaults(&cfg.Redis)
	setLoggingDefaults(&cfg.Logging)
}

func setServiceDefaults(s *ServiceConfig) {
	if s.Name == "" {
		s.Name = defaultServiceName
	}
	if s.Version == "" {
		s.Version = defaultServiceVersion
	}
	if s.Port == 0 {
		s.Port = defaultServicePort
	}
}

func setQueueDefaults(q *QueueConfig) {
	if q.Workers == 0 {
		q.Workers = defaultWorkers
	}
	if q.JobRetention == 0 {
		q.JobRetention = defaultJobRetention
	}
	if q.CleanupInterval == 0 {
		q.CleanupInterval = defaultCleanupInterval
	}
	if q.DispatchRPS == 0 {
		q.DispatchRPS = defaultDispatchRPS
	}
}

func setScoringDefaults(s *ScoringConfig) {
	if s.Model == "" {
		s.Model = defaultScoringModel
	}
	if s.Timeout == 0 {
		s.Timeout = defaultScoringTimeout
	}
	if s.MaxRetries == 0 {
		s.MaxRetries = defaultScoringMaxRetries
	}
	if s.BaseDelay == 0 {
		s.BaseDelay = defaultScoringBaseDelay
	}
	if s.MaxDelay == 0 {
		s.MaxDelay = defaultScoringMaxDelay
	}
	if s.Multiplier == 0 {
		s.Multiplier = defaultScoringMultiplier
	}
	if s.RateWindow == 0 {
		s.RateWindow = defaultScoringWindow
	}
	if s.RateMaxCalls == 0 {
		s.RateMaxCalls = defaultScoringMaxCalls
	}
}

func setSubmissionDefaults(s *SubmissionConfig) {
	if s.Window == 0 {
		s.Window = defaultSubmissionWindow
	}
	if s.MaxRequests == 0 {
		s.MaxRequests = defaultSubmissionMax
	}
}

func setDatabaseDefaults(d *DatabaseConfig) {
	if d.Host == "" {
		d.Host = defaultDBHost
	}
	if d.Port == 0 {
		d.Port = defaultDBPort
	}
	if d.User == "" {
		d.User = defaultDBUser
	}
	if d.Database == "" {
		d.Database = defaultDBName
	}
	if d.SSLMode == "" {
		d.SSLMode = defaultDBSSLMode
	}
	if d.MaxConnections == 0 {
		d.MaxConnections = defaultDBMaxConns
	}
	if d.MaxIdleConns == 0 {
		d.MaxIdleConns = defaultDBMaxIdleConns
	}
	if d.ConnMaxLifetime == 0 {
		d.ConnMaxLifetime = time.Hour
	}
}

func setRedisDefaults(r *RedisConfig) {
	if r.Address == "" {
		r.Address = defaultRedisAddress
	}
}

func setLoggingDefaults(l *LoggingConfig) {
	if l.Level == "" {
		l.Level = defaultLogLevel
	}
	if l.Format == "" {
		l.Format = defaultLogFormat
	}
}
