package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds all runtime settings. It is built once at startup and passed
// by reference into constructors; core logic never reads the environment.
type Config struct {
	// Telegram
	BotToken         string `validate:"required"`
	BotAdminUsername string

	// Ethereum node
	NodeRPCURL        string `validate:"required,url"`
	TokenContractAddr string `validate:"required"`
	CollectionAddr    string `validate:"required"`
	TokenDecimals     int    `validate:"gte=0,lte=30"`

	// Payment monitor
	MonitorMaxAttempts  int           `validate:"gt=0"`
	MonitorPollInterval time.Duration `validate:"gt=0"`
	MonitorWorkers      int           `validate:"gt=0"`
	MonitorQueueSize    int           `validate:"gt=0"`

	// Stability API
	StabilityAPIKey  string
	StabilityBaseURL string

	// HTTP server
	HTTPPort int

	// Database
	DBPath string

	// Credits
	InitialCredits int
	ImageCost      int
	VideoCost      int
}

func Load() *Config {
	return &Config{
		// Telegram
		BotToken:         getEnv("BOT_TOKEN", ""),
		BotAdminUsername: getEnv("BOT_ADMIN_USERNAME", "@soraai_support"),

		// Ethereum node
		NodeRPCURL:        getEnv("NODE_RPC_URL", ""),
		TokenContractAddr: getEnv("TOKEN_CONTRACT_ADDRESS", ""),
		CollectionAddr:    getEnv("COLLECTION_WALLET_ADDRESS", ""),
		TokenDecimals:     getEnvInt("TOKEN_DECIMALS", 9),

		// Payment monitor
		MonitorMaxAttempts:  getEnvInt("MONITOR_MAX_ATTEMPTS", 10),
		MonitorPollInterval: getEnvDuration("MONITOR_POLL_INTERVAL", 60*time.Second),
		MonitorWorkers:      getEnvInt("MONITOR_WORKERS", 4),
		MonitorQueueSize:    getEnvInt("MONITOR_QUEUE_SIZE", 64),

		// Stability API
		StabilityAPIKey:  getEnv("STABILITY_API_KEY", ""),
		StabilityBaseURL: strings.TrimSuffix(getEnv("STABILITY_BASE_URL", "https://api.stability.ai"), "/"),

		// HTTP server
		HTTPPort: getEnvInt("HTTP_PORT", 8080),

		// Database
		DBPath: getEnv("DB_PATH", "./credits.db"),

		// Credits
		InitialCredits: getEnvInt("INITIAL_CREDITS", 30),
		ImageCost:      getEnvInt("IMAGE_CREDIT_COST", 1),
		VideoCost:      getEnvInt("VIDEO_CREDIT_COST", 3),
	}
}

// Validate checks required fields. Called once from main after Load.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
