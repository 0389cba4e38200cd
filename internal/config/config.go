// Package config provides configuration management for the position scanner.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Chain    ChainConfig
	Registry RegistryConfig
	Sync     SyncConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres PostgresConfig
	Redis    RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// ChainConfig holds RPC endpoint configuration for the indexed chain
type ChainConfig struct {
	Name         string
	RPCPrimary   string
	RPCSecondary string
	PollInterval time.Duration
	RPCRateLimit int // requests per second against the RPC endpoint
}

// RegistryConfig pins the well-known contract addresses for one deployment
// target. TokenFeeds maps lowercase token address -> direct price feed
// address; tokens without a feed fall back to the master oracle.
type RegistryConfig struct {
	Registry     common.Address
	MasterOracle common.Address
	TokenFeeds   map[string]common.Address
	StartBlock   uint64
}

// SyncConfig holds log poller configuration
type SyncConfig struct {
	MaxBlocksPerPoll uint64
	Confirmations    uint64
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	registry, err := loadRegistryConfig()
	if err != nil {
		return nil, err
	}

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "position_scanner"),
				User:           getEnv("POSTGRES_USER", "scanner"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 50),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
			},
		},
		Chain: ChainConfig{
			Name:         getEnv("CHAIN_NAME", "optimism"),
			RPCPrimary:   getEnv("CHAIN_RPC_PRIMARY", ""),
			RPCSecondary: getEnv("CHAIN_RPC_SECONDARY", ""),
			PollInterval: getEnvAsDuration("CHAIN_POLL_INTERVAL", 15*time.Second),
			RPCRateLimit: getEnvAsInt("CHAIN_RPC_RATE_LIMIT", 25),
		},
		Registry: *registry,
		Sync: SyncConfig{
			MaxBlocksPerPoll: uint64(getEnvAsInt("SYNC_MAX_BLOCKS_PER_POLL", 2000)), // #nosec G115 - bounded config value
			Confirmations:    uint64(getEnvAsInt("SYNC_CONFIRMATIONS", 5)),          // #nosec G115 - bounded config value
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return config, nil
}

// loadRegistryConfig parses the deployment target addresses. The registry
// address is mandatory; everything else degrades to the oracle fallback.
func loadRegistryConfig() (*RegistryConfig, error) {
	registryAddr := getEnv("REGISTRY_ADDRESS", "")
	if registryAddr == "" {
		return nil, fmt.Errorf("REGISTRY_ADDRESS is required")
	}
	if !common.IsHexAddress(registryAddr) {
		return nil, fmt.Errorf("invalid REGISTRY_ADDRESS: %s", registryAddr)
	}

	oracleAddr := getEnv("MASTER_ORACLE_ADDRESS", "")
	if oracleAddr != "" && !common.IsHexAddress(oracleAddr) {
		return nil, fmt.Errorf("invalid MASTER_ORACLE_ADDRESS: %s", oracleAddr)
	}

	feeds, err := parseTokenFeeds(getEnv("TOKEN_FEEDS", ""))
	if err != nil {
		return nil, err
	}

	return &RegistryConfig{
		Registry:     common.HexToAddress(registryAddr),
		MasterOracle: common.HexToAddress(oracleAddr),
		TokenFeeds:   feeds,
		StartBlock:   uint64(getEnvAsInt("REGISTRY_START_BLOCK", 0)), // #nosec G115 - block numbers are non-negative
	}, nil
}

// parseTokenFeeds parses "token:feed,token:feed" pairs. Token keys are
// lowercased because on-chain addresses arrive in mixed case.
func parseTokenFeeds(raw string) (map[string]common.Address, error) {
	feeds := make(map[string]common.Address)
	if raw == "" {
		return feeds, nil
	}

	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid TOKEN_FEEDS entry: %s", pair)
		}
		token, feed := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		if !common.IsHexAddress(token) || !common.IsHexAddress(feed) {
			return nil, fmt.Errorf("invalid TOKEN_FEEDS addresses: %s", pair)
		}
		feeds[strings.ToLower(token)] = common.HexToAddress(feed)
	}

	return feeds, nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
