package config

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host string
	Port int
}

type DBConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type AuthConfig struct {
	AccessSecret string
}

type BackendConfig struct {
	URL     string
	Timeout time.Duration
}

type WorkflowConfig struct {
	StepCatalogPath string
	MaxPhotoBytes   int64
}

type VarianceConfig struct {
	SlightDelayMinutes  int
	EarlyWarningMinutes int
}

// TimeclockConfig names the zone schedules are written in.
type TimeclockConfig struct {
	Timezone string
	Location *time.Location
}

type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

type ReconcileConfig struct {
	MongoURI      string
	MongoDatabase string
	Interval      time.Duration
	LockPath      string
}

type Config struct {
	Environment string
	HTTP        HTTPConfig
	DB          DBConfig
	Auth        AuthConfig
	Backend     BackendConfig
	Workflow    WorkflowConfig
	Variance    VarianceConfig
	Timeclock   TimeclockConfig
	RateLimit   RateLimitConfig
	Reconcile   ReconcileConfig
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("./deploy")
	v.AddConfigPath("./internal/config")

	v.AutomaticEnv()

	_ = v.ReadInConfig()

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	v.SetDefault("VARIANCE_SLIGHT_DELAY_MINUTES", 10)
	v.SetDefault("TIMEZONE", "Europe/Paris")

	cfg := &Config{
		Environment: v.GetString("APP_ENV"),
		HTTP: HTTPConfig{
			Host: v.GetString("HTTP_HOST"),
			Port: v.GetInt("HTTP_PORT"),
		},
		DB: DBConfig{
			DSN:             v.GetString("DB_DSN"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
		},
		Auth: AuthConfig{
			AccessSecret: v.GetString("JWT_ACCESS_SECRET"),
		},
		Backend: BackendConfig{
			URL:     v.GetString("BACKEND_URL"),
			Timeout: v.GetDuration("BACKEND_TIMEOUT"),
		},
		Workflow: WorkflowConfig{
			StepCatalogPath: v.GetString("STEP_CATALOG_PATH"),
			MaxPhotoBytes:   v.GetInt64("MAX_PHOTO_BYTES"),
		},
		Variance: VarianceConfig{
			SlightDelayMinutes:  v.GetInt("VARIANCE_SLIGHT_DELAY_MINUTES"),
			EarlyWarningMinutes: v.GetInt("VARIANCE_EARLY_WARNING_MINUTES"),
		},
		Timeclock: TimeclockConfig{
			Timezone: v.GetString("TIMEZONE"),
		},
		RateLimit: RateLimitConfig{
			Requests: v.GetInt("RATE_LIMIT_REQUESTS"),
			Window:   v.GetDuration("RATE_LIMIT_WINDOW"),
		},
		Reconcile: ReconcileConfig{
			MongoURI:      v.GetString("MONGO_URI"),
			MongoDatabase: v.GetString("MONGO_DATABASE"),
			Interval:      v.GetDuration("RECONCILE_INTERVAL"),
			LockPath:      v.GetString("RECONCILE_LOCK_PATH"),
		},
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(cfg.Timeclock.Timezone)
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE: %w", err)
	}
	cfg.Timeclock.Location = loc

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.HTTP.Host == "" {
		cfg.HTTP.Host = "0.0.0.0"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.DB.MaxOpenConns == 0 {
		cfg.DB.MaxOpenConns = 10
	}
	if cfg.DB.MaxIdleConns == 0 {
		cfg.DB.MaxIdleConns = 5
	}
	if cfg.DB.ConnMaxLifetime == 0 {
		cfg.DB.ConnMaxLifetime = 30 * time.Minute
	}
	if cfg.Backend.Timeout == 0 {
		cfg.Backend.Timeout = 30 * time.Second
	}
	if cfg.Workflow.MaxPhotoBytes == 0 {
		cfg.Workflow.MaxPhotoBytes = 10 << 20
	}
	if cfg.Timeclock.Timezone == "" {
		cfg.Timeclock.Timezone = "UTC"
	}
	if cfg.RateLimit.Requests == 0 {
		cfg.RateLimit.Requests = 120
	}
	if cfg.RateLimit.Window == 0 {
		cfg.RateLimit.Window = time.Minute
	}
	if cfg.Reconcile.MongoDatabase == "" {
		cfg.Reconcile.MongoDatabase = "vehicle_prep"
	}
	if cfg.Reconcile.LockPath == "" {
		cfg.Reconcile.LockPath = "/tmp/prep-service-reconcile.lock"
	}
}

func validate(cfg *Config) error {
	if cfg.DB.DSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}
	if cfg.Auth.AccessSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.Backend.URL == "" {
		return fmt.Errorf("BACKEND_URL is required")
	}
	if cfg.Variance.SlightDelayMinutes < 0 || cfg.Variance.EarlyWarningMinutes < 0 {
		return fmt.Errorf("variance thresholds must not be negative")
	}
	if cfg.Workflow.MaxPhotoBytes < 0 {
		return fmt.Errorf("MAX_PHOTO_BYTES must not be negative")
	}
	return nil
}
