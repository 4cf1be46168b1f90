package config

import (
	"fmt"
	"strings"
	"time"
)

// Config holds the application's configuration.
type Config struct {
	Lifecycle LifecycleConfig `mapstructure:"lifecycle"`
	Provider  ProviderConfig  `mapstructure:"provider"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Keys      KeysConfig      `mapstructure:"keys"`
	Vault     VaultConfig     `mapstructure:"vault"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Passcode  PasscodeConfig  `mapstructure:"passcode"`
	Location  LocationConfig  `mapstructure:"location"`
	Log       LogConfig       `mapstructure:"log"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

// LifecycleConfig tunes the authorization lifecycle.
type LifecycleConfig struct {
	PollingInterval time.Duration `mapstructure:"polling_interval"`
	TickInterval    time.Duration `mapstructure:"tick_interval"`
	DestroyDelay    time.Duration `mapstructure:"destroy_delay"`
	FinalStateTTL   time.Duration `mapstructure:"final_state_ttl"`
}

// ProviderConfig tunes the provider API client.
type ProviderConfig struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	SignatureTTL   time.Duration `mapstructure:"signature_ttl"`
	UserAgent      string        `mapstructure:"user_agent"`
}

type ServerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	EnablePprof  bool          `mapstructure:"enable_pprof"`
	AllowOrigins []string      `mapstructure:"allow_origins"`
}

// Addr returns the listen address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig selects the connection store. Driver is "sqlite" or "postgres".
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// GetDSN returns the driver specific data source name.
func (c *DatabaseConfig) GetDSN() string {
	if c.Driver == DriverSQLite {
		return c.Path
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// RedisConfig configures the final-state cache. An empty address disables it.
type RedisConfig struct {
	Address   string `mapstructure:"address"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	PoolSize  int    `mapstructure:"pool_size"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// KeysConfig selects the private key store. Source is "file" or "vault".
type KeysConfig struct {
	Source    string        `mapstructure:"source"`
	Directory string        `mapstructure:"directory"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
}

// Key sources.
const (
	KeySourceFile  = "file"
	KeySourceVault = "vault"
)

type VaultConfig struct {
	Address   string `mapstructure:"address"`
	Token     string `mapstructure:"token"`
	MountPath string `mapstructure:"mount_path"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// KafkaConfig configures the decision audit trail. No brokers disables it.
type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	SigningKey   string        `mapstructure:"signing_key"`
	// RevocationTopic carries access token revocations pushed by providers. Empty disables the consumer.
	RevocationTopic string `mapstructure:"revocation_topic"`
	GroupID         string `mapstructure:"group_id"`
}

// PasscodeConfig holds the bcrypt hash checked by the terminal passcode prompt.
type PasscodeConfig struct {
	Hash string `mapstructure:"hash"`
}

// LocationConfig is the fixed device location reported on confirm and deny.
// Enabled=false behaves like a device without location permission.
type LocationConfig struct {
	Enabled   bool    `mapstructure:"enabled"`
	Latitude  float64 `mapstructure:"latitude"`
	Longitude float64 `mapstructure:"longitude"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

type TracingConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
	ServiceName    string  `mapstructure:"service_name"`
	SampleRatio    float64 `mapstructure:"sample_ratio"`
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks for essential configuration values.
func (c *Config) Validate() error {
	var problems []string
	if c.Lifecycle.PollingInterval <= 0 {
		problems = append(problems, "lifecycle.polling_interval must be positive")
	}
	if c.Lifecycle.TickInterval <= 0 {
		problems = append(problems, "lifecycle.tick_interval must be positive")
	}
	if c.Lifecycle.DestroyDelay < 0 {
		problems = append(problems, "lifecycle.destroy_delay must not be negative")
	}
	if c.Provider.RequestTimeout <= 0 {
		problems = append(problems, "provider.request_timeout must be positive")
	}
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			problems = append(problems, "database.path is required for sqlite")
		}
	case DriverPostgres:
		if c.Database.Host == "" || c.Database.Database == "" {
			problems = append(problems, "database.host and database.database are required for postgres")
		}
	default:
		problems = append(problems, fmt.Sprintf("unsupported database.driver %q", c.Database.Driver))
	}
	switch c.Keys.Source {
	case KeySourceFile:
		if c.Keys.Directory == "" {
			problems = append(problems, "keys.directory is required for the file key store")
		}
	case KeySourceVault:
		if c.Vault.Address == "" {
			problems = append(problems, "vault.address is required for the vault key store")
		}
	default:
		problems = append(problems, fmt.Sprintf("unsupported keys.source %q", c.Keys.Source))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		problems = append(problems, "kafka.topic is required when brokers are set")
	}
	if c.Location.Latitude < -90 || c.Location.Latitude > 90 || c.Location.Longitude < -180 || c.Location.Longitude > 180 {
		problems = append(problems, "location.latitude or location.longitude out of range")
	}
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		problems = append(problems, fmt.Sprintf("unsupported log.level %q", c.Log.Level))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
