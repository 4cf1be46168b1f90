package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/turtacn/authenticator/pkg/constants"
	"github.com/turtacn/authenticator/pkg/errors"
)

// Loader reads the configuration and watches the config file for changes.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a Loader. An explicit file overrides the search paths.
func NewLoader(file string) *Loader {
	v := viper.New()
	setDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("authenticator")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".authenticator"))
		}
	}

	v.SetEnvPrefix("AUTHENTICATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

func setDefaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".authenticator")

	v.SetDefault("lifecycle.polling_interval", constants.DefaultPollingInterval)
	v.SetDefault("lifecycle.tick_interval", constants.DefaultTickInterval)
	v.SetDefault("lifecycle.destroy_delay", constants.DefaultDestroyDelay)
	v.SetDefault("lifecycle.final_state_ttl", constants.DefaultFinalStateTTL)
	v.SetDefault("provider.request_timeout", constants.DefaultRequestTimeout)
	v.SetDefault("provider.signature_ttl", constants.DefaultSignatureTTL)
	v.SetDefault("provider.user_agent", "authenticator/1.0")
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8089)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.path", filepath.Join(dataDir, "connections.db"))
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.key_prefix", "authenticator:final:")
	v.SetDefault("keys.source", KeySourceFile)
	v.SetDefault("keys.directory", filepath.Join(dataDir, "keys"))
	v.SetDefault("keys.cache_ttl", "5m")
	v.SetDefault("vault.mount_path", "secret")
	v.SetDefault("vault.key_prefix", "authenticator/connections")
	v.SetDefault("kafka.topic", "authenticator.decisions")
	v.SetDefault("kafka.batch_timeout", "1s")
	v.SetDefault("kafka.write_timeout", "10s")
	v.SetDefault("kafka.group_id", "authenticator-revocations")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output_path", "stderr")
	v.SetDefault("tracing.service_name", "authenticator")
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// Load reads, unmarshals and validates the configuration. A missing config file is not an error.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !stderrors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, errors.Wrap(err, constants.ErrCodeInvalidRequest, "read config")
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, constants.ErrCodeInvalidRequest, "failed to unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, constants.ErrCodeInvalidRequest, err.Error())
	}
	return &cfg, nil
}

// ConfigFile returns the file in use, empty when none was found.
func (l *Loader) ConfigFile() string { return l.v.ConfigFileUsed() }

// Watch reloads the configuration on file changes and calls onChange with every valid result.
// Invalid edits are reported through onError and otherwise ignored.
func (l *Loader) Watch(onChange func(*Config), onError func(error)) {
	l.v.OnConfigChange(func(event fsnotify.Event) {
		if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
			return
		}
		var cfg Config
		if err := l.v.Unmarshal(&cfg); err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		if err := cfg.Validate(); err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(&cfg)
	})
	l.v.WatchConfig()
}

// LoadConfig loads the configuration from file and environment variables.
func LoadConfig(file string) (*Config, error) {
	return NewLoader(file).Load()
}
