package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the watcher process configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Chain      ChainConfig      `mapstructure:"chain"`
	Payments   PaymentsConfig   `mapstructure:"payments"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Shutdown   ShutdownConfig   `mapstructure:"shutdown"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// TokenConfig describes one tracked ERC-20 contract
type TokenConfig struct {
	Address  string `mapstructure:"address"`
	Symbol   string `mapstructure:"symbol"`
	Decimals int    `mapstructure:"decimals"`
}

// ChainConfig contains deposit scanner settings
type ChainConfig struct {
	RPCURL           string        `mapstructure:"rpc_url"`
	ChainID          int64         `mapstructure:"chain_id"`
	Network          string        `mapstructure:"network"`
	ReceiverAddress  string        `mapstructure:"receiver_address"`
	Tokens           []TokenConfig `mapstructure:"tokens"`
	MinConfirmations int           `mapstructure:"min_confirmations"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	StartBlock       uint64        `mapstructure:"start_block"`
	RPCTimeout       time.Duration `mapstructure:"rpc_timeout"`
	MaxLogRange      uint64        `mapstructure:"max_log_range"`
}

// StablecoinConfig contains stablecoin webhook settings
type StablecoinConfig struct {
	Provider         string `mapstructure:"provider"`
	WebhookSecret    string `mapstructure:"webhook_secret"`
	MinConfirmations int64  `mapstructure:"min_confirmations"`
	// Rate is the minor-unit amount that buys one credit.
	Rate int64 `mapstructure:"rate"`
}

// PaymentsConfig contains payment settlement settings
type PaymentsConfig struct {
	CardProvider string `mapstructure:"card_provider"`
	// CardWebhookSecret is the card provider's endpoint signing secret.
	CardWebhookSecret string           `mapstructure:"card_webhook_secret"`
	Stablecoin        StablecoinConfig `mapstructure:"stablecoin"`
	// DepositRate is the token amount that buys one credit for direct
	// chain deposits, as a decimal string.
	DepositRate string `mapstructure:"deposit_rate"`
}

// MonitoringConfig contains monitoring and metrics settings
type MonitoringConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// ShutdownConfig contains graceful shutdown settings
type ShutdownConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.database", "credits_watcher")

	// Chain defaults
	viper.SetDefault("chain.min_confirmations", 12)
	viper.SetDefault("chain.poll_interval", "15s")
	viper.SetDefault("chain.rpc_timeout", "30s")
	viper.SetDefault("chain.max_log_range", 10000)
	viper.SetDefault("chain.start_block", 0)

	// Payments defaults
	viper.SetDefault("payments.card_provider", "stripe")
	viper.SetDefault("payments.stablecoin.min_confirmations", 6)
	viper.SetDefault("payments.stablecoin.rate", 100)
	viper.SetDefault("payments.deposit_rate", "1")

	// Monitoring defaults
	viper.SetDefault("monitoring.enabled", true)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output_path", "stdout")

	// Shutdown defaults
	viper.SetDefault("shutdown.timeout", "30s")
}

func validate(config *Config) error {
	if config.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if config.Chain.RPCURL == "" {
		return fmt.Errorf("chain.rpc_url is required")
	}
	if config.Chain.ReceiverAddress == "" {
		return fmt.Errorf("chain.receiver_address is required")
	}
	if len(config.Chain.Tokens) == 0 {
		return fmt.Errorf("chain.tokens must list at least one token contract")
	}
	for i, token := range config.Chain.Tokens {
		if token.Address == "" || token.Symbol == "" {
			return fmt.Errorf("chain.tokens[%d] needs address and symbol", i)
		}
	}
	if config.Payments.Stablecoin.WebhookSecret == "" {
		return fmt.Errorf("payments.stablecoin.webhook_secret is required")
	}
	if config.Payments.CardWebhookSecret == "" {
		return fmt.Errorf("payments.card_webhook_secret is required")
	}
	return nil
}

// GetConnectionString returns a PostgreSQL connection string
func (c *DatabaseConfig) GetConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
