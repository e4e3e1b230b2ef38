package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix  = ""
	AppEnvDev  = "dev"
	AppEnvProd = "production"
)

type Config struct {
	App    AppConfig
	DB     DBConfig
	Redis  RedisConfig
	Square SquareConfig
	Sweep  SweepConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PICKUPZ_APP_ENV" required:"true"`
	LogLevel     string `envconfig:"PICKUPZ_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PICKUPZ_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN string `envconfig:"PICKUPZ_DB_DSN"`

	Host     string `envconfig:"PICKUPZ_DB_HOST"`
	Port     int    `envconfig:"PICKUPZ_DB_PORT" default:"5432"`
	User     string `envconfig:"PICKUPZ_DB_USER"`
	Password string `envconfig:"PICKUPZ_DB_PASSWORD"`
	Name     string `envconfig:"PICKUPZ_DB_NAME"`
	SSLMode  string `envconfig:"PICKUPZ_DB_SSLMODE" default:"disable"`

	AutoMigrate bool `envconfig:"PICKUPZ_DB_AUTO_MIGRATE" default:"false"`

	MaxOpenConns    int           `envconfig:"PICKUPZ_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PICKUPZ_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PICKUPZ_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PICKUPZ_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (d *DBConfig) ensureDSN() error {
	if d.DSN != "" {
		return nil
	}
	if d.Host == "" || d.User == "" || d.Name == "" {
		return fmt.Errorf("either PICKUPZ_DB_DSN or host/user/name parts are required")
	}
	d.DSN = fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"PICKUPZ_REDIS_URL" required:"true"`
	Password     string        `envconfig:"PICKUPZ_REDIS_PASSWORD"`
	DB           int           `envconfig:"PICKUPZ_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PICKUPZ_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PICKUPZ_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PICKUPZ_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PICKUPZ_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PICKUPZ_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type SquareConfig struct {
	AccessToken string `envconfig:"PICKUPZ_SQUARE_ACCESS_TOKEN"`
	Env         string `envconfig:"PICKUPZ_SQUARE_ENV" default:"sandbox"`
	LocationID  string `envconfig:"PICKUPZ_SQUARE_LOCATION_ID"`
	Currency    string `envconfig:"PICKUPZ_SQUARE_CURRENCY" default:"USD"`
}

func (s SquareConfig) Environment() string {
	return strings.ToLower(strings.TrimSpace(s.Env))
}

// SweepConfig tunes the background sweep cadence and SLAs.
type SweepConfig struct {
	Interval             time.Duration `envconfig:"PICKUPZ_SWEEP_INTERVAL" default:"1m"`
	PaymentGraceWindow   time.Duration `envconfig:"PICKUPZ_SWEEP_PAYMENT_GRACE" default:"2m"`
	DeliverySLA          time.Duration `envconfig:"PICKUPZ_SWEEP_DELIVERY_SLA" default:"90m"`
	NoShowHour           int           `envconfig:"PICKUPZ_SWEEP_NOSHOW_HOUR" default:"0"`
	LockRetryMaxAttempts uint64        `envconfig:"PICKUPZ_SWEEP_LOCK_RETRY_MAX" default:"4"`
	LockRetryBaseDelay   time.Duration `envconfig:"PICKUPZ_SWEEP_LOCK_RETRY_BASE" default:"200ms"`
}
