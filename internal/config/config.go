package config

import (
	"fmt"
	"log"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	// APIToken is the shared secret the authorizer checks. Empty means
	// the gate is open (development only).
	APIToken string `mapstructure:"API_TOKEN"`

	AWSRegion         string `mapstructure:"AWS_REGION"`
	UploadBucket      string `mapstructure:"UPLOAD_BUCKET"`
	UploadPrefix      string `mapstructure:"UPLOAD_PREFIX"`
	IngestionQueueURL string `mapstructure:"INGESTION_QUEUE_URL"`
	PresignExpirySecs int    `mapstructure:"PRESIGNED_URL_EXPIRY"`
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
	v.SetDefault("UPLOAD_BUCKET", "healthtech-data-lake")
	v.SetDefault("UPLOAD_PREFIX", "incoming/fhir")
	v.SetDefault("PRESIGNED_URL_EXPIRY", 3600)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("API_TOKEN")
	v.BindEnv("AWS_REGION")
	v.BindEnv("UPLOAD_BUCKET")
	v.BindEnv("UPLOAD_PREFIX")
	v.BindEnv("INGESTION_QUEUE_URL")
	v.BindEnv("PRESIGNED_URL_EXPIRY")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.APIToken == "" && !cfg.IsDev() {
		return nil, fmt.Errorf("API_TOKEN is required outside development")
	}
	if cfg.APIToken == "" {
		log.Println("WARNING: API_TOKEN is unset; all requests are accepted (development only).")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks settings the server cannot run safely without.
func (c *Config) Validate() error {
	if c.PresignExpirySecs <= 0 {
		return fmt.Errorf("PRESIGNED_URL_EXPIRY must be positive, got %d", c.PresignExpirySecs)
	}
	if c.DBMaxConns < c.DBMinConns {
		return fmt.Errorf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)", c.DBMaxConns, c.DBMinConns)
	}
	return nil
}
