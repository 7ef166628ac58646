package app

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"pastr/cmd/security/password"
)

// Environments selectable through APP_ENV.
const (
	EnvDev  = "dev"
	EnvProd = "prod"
)

// Config contains all runtime configuration.
//
// Values come from defaults, then the optional file <PASTR_CONFIG_DIR>/<APP_ENV>.yaml,
// then PASTR_* environment variables.
type Config struct {
	Env string `yaml:"-"`

	HTTPAddr  string `yaml:"http_addr"`
	BaseURL   string `yaml:"base_url"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // json | pretty

	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	MaxHeaderBytes    int           `yaml:"max_header_bytes"`
	MaxBodyBytes      int64         `yaml:"max_body_bytes"`

	DatabaseURL string `yaml:"database_url"`
	DBMaxConns  int32  `yaml:"db_max_conns"`
	DBMinConns  int32  `yaml:"db_min_conns"`
	DBMigrate   bool   `yaml:"db_migrate"`

	// If true:
	// - /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool `yaml:"readiness_require_db"`

	HashWorkers       int           `yaml:"hash_workers"`
	OpTimeout         time.Duration `yaml:"op_timeout"`
	RequireActivation bool          `yaml:"require_activation"`

	Mail     MailConfig      `yaml:"mail"`
	Delivery DeliveryConfig  `yaml:"delivery"`
	Password password.Config `yaml:"password"`
}

// MailConfig configures the SMTP relay. An empty Host selects the log sender.
type MailConfig struct {
	Host       string        `yaml:"host"`
	Port       int           `yaml:"port"`
	Username   string        `yaml:"username"`
	Password   string        `yaml:"password"`
	From       string        `yaml:"from"`
	SenderName string        `yaml:"sender_name"`
	Timeout    time.Duration `yaml:"timeout"`
}

// DeliveryConfig sizes the activation mail dispatcher.
type DeliveryConfig struct {
	Workers   int           `yaml:"workers"`
	QueueSize int           `yaml:"queue_size"`
	Timeout   time.Duration `yaml:"timeout"`
}

func defaultConfig() Config {
	return Config{
		Env:       EnvDev,
		HTTPAddr:  "0.0.0.0:8080",
		LogLevel:  "info",
		LogFormat: "json",

		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		MaxHeaderBytes:    1 << 20,
		MaxBodyBytes:      1 << 20,

		DBMaxConns: 10,
		DBMinConns: 0,

		OpTimeout: 5 * time.Second,

		Mail: MailConfig{
			Port:       587,
			SenderName: "pastr",
			Timeout:    10 * time.Second,
		},
		Delivery: DeliveryConfig{
			Workers:   2,
			QueueSize: 256,
			Timeout:   15 * time.Second,
		},
		Password: password.DefaultConfig(),
	}
}

// LoadConfig loads Config from the optional YAML file and environment variables.
func LoadConfig() (Config, error) {
	cfg := defaultConfig()

	env := strings.ToLower(EnvString("APP_ENV", EnvDev))
	if env != EnvDev && env != EnvProd {
		return Config{}, fmt.Errorf("config: APP_ENV must be %q or %q, got %q", EnvDev, EnvProd, env)
	}
	cfg.Env = env
	if env == EnvDev {
		cfg.LogFormat = "pretty"
	}

	if dir := EnvString("PASTR_CONFIG_DIR", ""); dir != "" {
		if err := loadConfigFile(filepath.Join(dir, env+".yaml"), &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	pw, err := password.ApplyEnv(cfg.Password)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg.Password = pw

	if cfg.BaseURL == "" {
		cfg.BaseURL = runtimeBaseURL(cfg.HTTPAddr)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadConfigFile overlays path onto cfg. A missing file is not an error.
func loadConfigFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.UnmarshalStrict(raw, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.HTTPAddr = EnvString("PASTR_HTTP_ADDR", cfg.HTTPAddr)
	cfg.BaseURL = EnvString("PASTR_BASE_URL", cfg.BaseURL)
	cfg.LogLevel = EnvString("PASTR_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = EnvString("PASTR_LOG_FORMAT", cfg.LogFormat)

	cfg.ReadHeaderTimeout = EnvDuration("PASTR_HTTP_READ_HEADER_TIMEOUT", cfg.ReadHeaderTimeout)
	cfg.ReadTimeout = EnvDuration("PASTR_HTTP_READ_TIMEOUT", cfg.ReadTimeout)
	cfg.WriteTimeout = EnvDuration("PASTR_HTTP_WRITE_TIMEOUT", cfg.WriteTimeout)
	cfg.IdleTimeout = EnvDuration("PASTR_HTTP_IDLE_TIMEOUT", cfg.IdleTimeout)
	cfg.ShutdownTimeout = EnvDuration("PASTR_HTTP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	cfg.MaxHeaderBytes = EnvInt("PASTR_HTTP_MAX_HEADER_BYTES", cfg.MaxHeaderBytes)
	cfg.MaxBodyBytes = EnvInt64("PASTR_HTTP_MAX_BODY_BYTES", cfg.MaxBodyBytes)

	cfg.DatabaseURL = EnvString("PASTR_DATABASE_URL", cfg.DatabaseURL)
	cfg.DBMaxConns = EnvInt32("PASTR_DB_MAX_CONNS", cfg.DBMaxConns)
	cfg.DBMinConns = EnvInt32("PASTR_DB_MIN_CONNS", cfg.DBMinConns)
	cfg.DBMigrate = EnvBool("PASTR_DB_MIGRATE", cfg.DBMigrate)
	cfg.ReadinessRequireDB = EnvBool("PASTR_READINESS_REQUIRE_DB", cfg.ReadinessRequireDB)

	cfg.HashWorkers = EnvInt("PASTR_HASH_WORKERS", cfg.HashWorkers)
	cfg.OpTimeout = EnvDuration("PASTR_OP_TIMEOUT", cfg.OpTimeout)
	cfg.RequireActivation = EnvBool("PASTR_REQUIRE_ACTIVATION", cfg.RequireActivation)

	cfg.Mail.Host = EnvString("PASTR_MAIL_HOST", cfg.Mail.Host)
	cfg.Mail.Port = EnvInt("PASTR_MAIL_PORT", cfg.Mail.Port)
	cfg.Mail.Username = EnvString("PASTR_MAIL_USERNAME", cfg.Mail.Username)
	cfg.Mail.Password = EnvString("PASTR_MAIL_PASSWORD", cfg.Mail.Password)
	cfg.Mail.From = EnvString("PASTR_MAIL_FROM", cfg.Mail.From)
	cfg.Mail.SenderName = EnvString("PASTR_MAIL_SENDER_NAME", cfg.Mail.SenderName)
	cfg.Mail.Timeout = EnvDuration("PASTR_MAIL_TIMEOUT", cfg.Mail.Timeout)

	cfg.Delivery.Workers = EnvInt("PASTR_DELIVERY_WORKERS", cfg.Delivery.Workers)
	cfg.Delivery.QueueSize = EnvInt("PASTR_DELIVERY_QUEUE", cfg.Delivery.QueueSize)
	cfg.Delivery.Timeout = EnvDuration("PASTR_DELIVERY_TIMEOUT", cfg.Delivery.Timeout)
}

// Validate checks cross-field constraints. The pepper is validated separately
// (see LoadPepper) so it never sits in Config.
func (c Config) Validate() error {
	if err := c.Password.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: PASTR_BASE_URL must be an absolute http(s) URL, got %q", c.BaseURL)
	}
	if c.Env == EnvProd && c.DatabaseURL == "" {
		return errors.New("config: APP_ENV=prod requires PASTR_DATABASE_URL")
	}
	if c.Env == EnvProd && u.Scheme != "https" {
		return errors.New("config: APP_ENV=prod requires an https PASTR_BASE_URL")
	}
	if c.Mail.Host != "" && c.Mail.From == "" && c.Mail.Username == "" {
		return errors.New("config: PASTR_MAIL_FROM or PASTR_MAIL_USERNAME is required when PASTR_MAIL_HOST is set")
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "pretty":
	default:
		return fmt.Errorf("config: PASTR_LOG_FORMAT must be json or pretty, got %q", c.LogFormat)
	}
	return nil
}

// runtimeBaseURL derives a local origin from the listen address.
func runtimeBaseURL(addr string) string {
	addr = strings.TrimSpace(addr)
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}
