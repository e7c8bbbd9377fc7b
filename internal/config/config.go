package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port                 string   `mapstructure:"PORT"`
	Env                  string   `mapstructure:"ENV"`
	DatabaseURL          string   `mapstructure:"DATABASE_URL"`
	DBMaxConns           int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns           int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins          []string `mapstructure:"CORS_ORIGINS"`
	StorageBackend       string   `mapstructure:"STORAGE_BACKEND"`
	StorageBucket        string   `mapstructure:"STORAGE_BUCKET"`
	StoragePublicBaseURL string   `mapstructure:"STORAGE_PUBLIC_BASE_URL"`
	S3Region             string   `mapstructure:"S3_REGION"`
	S3Endpoint           string   `mapstructure:"S3_ENDPOINT"`
	MailFunctionURL      string   `mapstructure:"MAIL_FUNCTION_URL"`
	MailFunctionToken    string   `mapstructure:"MAIL_FUNCTION_TOKEN"`
	OpenAIAPIKey         string   `mapstructure:"OPENAI_API_KEY"`
	OpenAIModel          string   `mapstructure:"OPENAI_MODEL"`
	ClinicName           string   `mapstructure:"CLINIC_NAME"`
	ClinicEmail          string   `mapstructure:"CLINIC_EMAIL"`
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
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("STORAGE_BACKEND", "memory")
	v.SetDefault("STORAGE_BUCKET", "documents")
	v.SetDefault("OPENAI_MODEL", "gpt-4")
	v.SetDefault("CLINIC_NAME", "MedicAi Practice")
	v.SetDefault("CLINIC_EMAIL", "info@medicai.com.au")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("STORAGE_BACKEND")
	v.BindEnv("STORAGE_BUCKET")
	v.BindEnv("STORAGE_PUBLIC_BASE_URL")
	v.BindEnv("S3_REGION")
	v.BindEnv("S3_ENDPOINT")
	v.BindEnv("MAIL_FUNCTION_URL")
	v.BindEnv("MAIL_FUNCTION_TOKEN")
	v.BindEnv("OPENAI_API_KEY")
	v.BindEnv("OPENAI_MODEL")
	v.BindEnv("CLINIC_NAME")
	v.BindEnv("CLINIC_EMAIL")

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

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. The memory storage
// backend and an empty mail function URL are development conveniences; in
// production generated documents must land in durable storage and approval
// emails must actually go somewhere.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case "memory", "s3":
	default:
		return fmt.Errorf("STORAGE_BACKEND must be \"memory\" or \"s3\", got %q", c.StorageBackend)
	}

	if c.IsProduction() {
		if c.StorageBackend == "memory" {
			return fmt.Errorf("STORAGE_BACKEND=memory is not allowed in production")
		}
		if c.MailFunctionURL == "" {
			return fmt.Errorf("MAIL_FUNCTION_URL is required in production")
		}
	}

	if c.StorageBackend == "s3" {
		if c.StorageBucket == "" {
			return fmt.Errorf("STORAGE_BUCKET is required when STORAGE_BACKEND is \"s3\"")
		}
		if c.StoragePublicBaseURL == "" {
			return fmt.Errorf("STORAGE_PUBLIC_BASE_URL is required when STORAGE_BACKEND is \"s3\"")
		}
		if _, err := url.ParseRequestURI(c.StoragePublicBaseURL); err != nil {
			return fmt.Errorf("STORAGE_PUBLIC_BASE_URL is not a valid URL: %w", err)
		}
	}

	if c.MailFunctionURL != "" {
		if _, err := url.ParseRequestURI(c.MailFunctionURL); err != nil {
			return fmt.Errorf("MAIL_FUNCTION_URL is not a valid URL: %w", err)
		}
	}

	return nil
}
