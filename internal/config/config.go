package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName                string
	AppEnv                 string
	AppPort                string
	DatabaseURL            string
	RedisURL               string
	NATSURL                string
	JWTSecret              string
	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
	OpenAIAPIKey           string
	OpenAIBaseURL          string
	ChatModel              string
	VisionModel            string
	AICallTimeout          time.Duration
	ExtractionBatchSize    int
	ExtractionConcurrency  int
	ExtractionPageCap      int
	EvaluationBatchSize    int
	SingleShotThreshold    int
	MaxUploadMB            int
	ResultsCacheTTL        time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("VIDYA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Vidya API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("cloudinary.folder", "vidya/documents")
	v.SetDefault("ai.chat_model", "gpt-4o-mini")
	v.SetDefault("ai.vision_model", "gpt-4o")
	v.SetDefault("ai.call_timeout", "120s")
	v.SetDefault("extraction.batch_size", 3)
	v.SetDefault("extraction.concurrency", 1)
	v.SetDefault("extraction.page_cap", 50)
	v.SetDefault("evaluation.batch_size", 8)
	v.SetDefault("evaluation.single_shot_threshold", 5)
	v.SetDefault("upload.max_mb", 25)
	v.SetDefault("results.cache_ttl", "5m")

	timeout, err := time.ParseDuration(v.GetString("ai.call_timeout"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid ai call timeout: %w", err)
	}

	cacheTTL, err := time.ParseDuration(v.GetString("results.cache_ttl"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid results cache ttl: %w", err)
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		DatabaseURL:            v.GetString("database.url"),
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		JWTSecret:              v.GetString("jwt.secret"),
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		OpenAIAPIKey:           v.GetString("openai_api_key"),
		OpenAIBaseURL:          v.GetString("openai_base_url"),
		ChatModel:              v.GetString("ai.chat_model"),
		VisionModel:            v.GetString("ai.vision_model"),
		AICallTimeout:          timeout,
		ExtractionBatchSize:    v.GetInt("extraction.batch_size"),
		ExtractionConcurrency:  v.GetInt("extraction.concurrency"),
		ExtractionPageCap:      v.GetInt("extraction.page_cap"),
		EvaluationBatchSize:    v.GetInt("evaluation.batch_size"),
		SingleShotThreshold:    v.GetInt("evaluation.single_shot_threshold"),
		MaxUploadMB:            v.GetInt("upload.max_mb"),
		ResultsCacheTTL:        cacheTTL,
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.ExtractionBatchSize < 1 || cfg.ExtractionBatchSize > 10 {
		cfg.ExtractionBatchSize = 3
	}

	if cfg.ExtractionConcurrency < 1 {
		cfg.ExtractionConcurrency = 1
	}

	if cfg.ExtractionPageCap <= 0 {
		cfg.ExtractionPageCap = 50
	}

	if cfg.EvaluationBatchSize <= 0 {
		cfg.EvaluationBatchSize = 8
	}

	if cfg.SingleShotThreshold <= 0 {
		cfg.SingleShotThreshold = 5
	}

	return cfg, nil
}
