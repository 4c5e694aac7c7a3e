package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the media forensics service
type Config struct {
	// Database configuration
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Server configuration
	Port string

	// Upload handling
	MaxUploadBytes int64
	UploadDir      string
	ReportDir      string

	// Classifier service configuration
	ClassifierURL     string
	ClassifierModel   string
	DetectionTimeout  time.Duration
	VideoSampleRate   int
	VideoMaxFrames    int
	FFmpegPath        string

	// Blockchain configuration. Anchoring is disabled when any of
	// these is empty.
	EthNetworkURL   string
	EthPrivateKey   string
	ContractAddress string
	AnchorTimeout   time.Duration

	// RabbitMQ configuration. Event publishing is disabled when the
	// AMQP URL is empty.
	AMQPURL            string
	RabbitMQExchange   string
	RabbitMQRoutingKey string

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		// Database defaults
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "server"),
		DBPassword: getEnv("DB_PASSWORD", "secret_app"),
		DBName:     getEnv("DB_NAME", "mediaproof"),

		// Server defaults
		Port: getEnv("PORT", "8080"),

		// Upload defaults
		MaxUploadBytes: getInt64Env("MAX_UPLOAD_BYTES", 50*1024*1024),
		UploadDir:      getEnv("UPLOAD_DIR", "uploads"),
		ReportDir:      getEnv("REPORT_DIR", "reports"),

		// Classifier defaults
		ClassifierURL:    getEnv("CLASSIFIER_URL", "http://localhost:9090/classify"),
		ClassifierModel:  getEnv("CLASSIFIER_MODEL", "sdxl-detector"),
		DetectionTimeout: getDurationEnv("DETECTION_TIMEOUT", 120*time.Second),
		VideoSampleRate:  getIntEnv("VIDEO_SAMPLE_RATE", 15),
		VideoMaxFrames:   getIntEnv("VIDEO_MAX_FRAMES", 40),
		FFmpegPath:       getEnv("FFMPEG_PATH", "ffmpeg"),

		// Blockchain defaults (empty means disabled)
		EthNetworkURL:   getEnv("ETH_NETWORK_URL", ""),
		EthPrivateKey:   getEnv("ETH_PRIVATE_KEY", ""),
		ContractAddress: getEnv("CONTRACT_ADDRESS", ""),
		AnchorTimeout:   getDurationEnv("ANCHOR_TIMEOUT", 90*time.Second),

		// RabbitMQ defaults (empty means disabled)
		AMQPURL:            getEnv("AMQP_URL", ""),
		RabbitMQExchange:   getEnv("RABBITMQ_EXCHANGE", "mediaproof-exchange"),
		RabbitMQRoutingKey: getEnv("RABBITMQ_ROUTING_KEY", "case.analyzed"),

		// Logging defaults
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// AnchoringConfigured reports whether all blockchain parameters are set.
func (c *Config) AnchoringConfigured() bool {
	return c.EthNetworkURL != "" && c.EthPrivateKey != "" && c.ContractAddress != ""
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnv gets an integer environment variable or returns a default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getInt64Env gets an int64 environment variable or returns a default value
func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getDurationEnv gets a duration environment variable or returns a default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
