package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	RedisURL  string `mapstructure:"REDIS_URL"`
	QueueMode string `mapstructure:"QUEUE_MODE"` // "redis" or "memory"

	WorkerConcurrency int           `mapstructure:"WORKER_CONCURRENCY"`
	JobMaxRetries     int           `mapstructure:"JOB_MAX_RETRIES"`
	JobBackoffBase    time.Duration `mapstructure:"JOB_BACKOFF_BASE"`
	JobBackoffMax     time.Duration `mapstructure:"JOB_BACKOFF_MAX"`

	EligibilityAdapterBase string        `mapstructure:"ELIGIBILITY_ADAPTER_BASE"`
	BillingAdapterBase     string        `mapstructure:"BILLING_ADAPTER_BASE"`
	SignatureAdapterBase   string        `mapstructure:"SIGNATURE_ADAPTER_BASE"`
	SignatureWebhookSecret string        `mapstructure:"SIGNATURE_WEBHOOK_SECRET"`
	EHRBase                string        `mapstructure:"EHR_BASE"`
	AdapterTimeout         time.Duration `mapstructure:"ADAPTER_TIMEOUT"`

	JWTSecret   string   `mapstructure:"JWT_SECRET"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	ReminderWindowDays int           `mapstructure:"REMINDER_WINDOW_DAYS"`
	SurveyQuietDays    int           `mapstructure:"SURVEY_QUIET_DAYS"`
	SweepInterval      time.Duration `mapstructure:"SWEEP_INTERVAL"`

	ArtifactDir string `mapstructure:"ARTIFACT_DIR"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	v.SetDefault("QUEUE_MODE", "redis")
	v.SetDefault("WORKER_CONCURRENCY", 4)
	v.SetDefault("JOB_MAX_RETRIES", 5)
	v.SetDefault("JOB_BACKOFF_BASE", "1s")
	v.SetDefault("JOB_BACKOFF_MAX", "30s")
	v.SetDefault("ELIGIBILITY_ADAPTER_BASE", "http://billing-adapter:9200")
	v.SetDefault("BILLING_ADAPTER_BASE", "http://billing-adapter:9100")
	v.SetDefault("SIGNATURE_ADAPTER_BASE", "http://signature-adapter:9000")
	v.SetDefault("SIGNATURE_WEBHOOK_SECRET", "dev-signature-secret")
	v.SetDefault("EHR_BASE", "http://ehr-connector:8100")
	v.SetDefault("ADAPTER_TIMEOUT", "8s")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("REMINDER_WINDOW_DAYS", 2)
	v.SetDefault("SURVEY_QUIET_DAYS", 7)
	v.SetDefault("SWEEP_INTERVAL", "15m")
	v.SetDefault("ARTIFACT_DIR", "")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("REDIS_URL")
	v.BindEnv("QUEUE_MODE")
	v.BindEnv("WORKER_CONCURRENCY")
	v.BindEnv("JOB_MAX_RETRIES")
	v.BindEnv("JOB_BACKOFF_BASE")
	v.BindEnv("JOB_BACKOFF_MAX")
	v.BindEnv("ELIGIBILITY_ADAPTER_BASE")
	v.BindEnv("BILLING_ADAPTER_BASE")
	v.BindEnv("SIGNATURE_ADAPTER_BASE")
	v.BindEnv("SIGNATURE_WEBHOOK_SECRET")
	v.BindEnv("EHR_BASE")
	v.BindEnv("ADAPTER_TIMEOUT")
	v.BindEnv("JWT_SECRET")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("REMINDER_WINDOW_DAYS")
	v.BindEnv("SURVEY_QUIET_DAYS")
	v.BindEnv("SWEEP_INTERVAL")
	v.BindEnv("ARTIFACT_DIR")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: requests are not authenticated. Do NOT use in production.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration is safe to run. Outside development
// a JWT secret is required so the API boundary enforces real tokens, and the
// queue mode must name a real transport.
func (c *Config) Validate() error {
	if !c.IsDev() && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when ENV=%q", c.Env)
	}
	if c.QueueMode != "redis" && c.QueueMode != "memory" {
		return fmt.Errorf("QUEUE_MODE must be \"redis\" or \"memory\", got %q", c.QueueMode)
	}
	if c.QueueMode == "redis" && c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required when QUEUE_MODE is \"redis\"")
	}
	if c.JobMaxRetries < 0 {
		return fmt.Errorf("JOB_MAX_RETRIES must be >= 0")
	}
	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be >= 1")
	}
	return nil
}
