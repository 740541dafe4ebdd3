package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Google    GoogleConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    int
	WriteTimeout   int
	BodyLimit      int
	BaseURL        string
	Development    bool
	AllowedOrigins []string
}

type StorageConfig struct {
	Driver      string
	SQLitePath  string
	PostgresDSN string
	MaxConns    int32
	MinConns    int32
}

type RedisConfig struct {
	Enabled    bool
	Host       string
	Port       int
	Password   string
	DB         int
	TTLSeconds int
}

type AuthConfig struct {
	StateSecret      string
	SessionTTLHours  int
	MagicLinkTTLMins int
	CookieName       string
	SecureCookie     bool
}

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	PageSize     int
	TimeoutSec   int
}

type RateLimitConfig struct {
	RequestsPerMinute int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/warmpath")

	v.SetEnvPrefix("WARMPATH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)
	v.SetDefault("server.bodyLimit", 5*1024*1024)
	v.SetDefault("server.baseURL", "http://localhost:8080")
	v.SetDefault("server.development", false)
	v.SetDefault("server.allowedOrigins", []string{"http://localhost:3000"})

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.sqlitePath", "./data/warmpath.db")
	v.SetDefault("storage.postgresDSN", "")
	v.SetDefault("storage.maxConns", 10)
	v.SetDefault("storage.minConns", 2)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttlSeconds", 300)

	v.SetDefault("auth.stateSecret", "")
	v.SetDefault("auth.sessionTTLHours", 24*30)
	v.SetDefault("auth.magicLinkTTLMins", 15)
	v.SetDefault("auth.cookieName", "warmpath_session")
	v.SetDefault("auth.secureCookie", true)

	v.SetDefault("google.clientID", "")
	v.SetDefault("google.clientSecret", "")
	v.SetDefault("google.redirectURI", "")
	v.SetDefault("google.pageSize", 1000)
	v.SetDefault("google.timeoutSec", 15)

	v.SetDefault("rateLimit.requestsPerMinute", 120)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}

// Validate checks the settings that would otherwise fail deep inside a request.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return errors.New("storage.sqlitePath is required for the sqlite driver")
		}
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return errors.New("storage.postgresDSN is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	if c.Auth.StateSecret == "" && !c.Server.Development {
		return errors.New("auth.stateSecret is required outside development")
	}

	return nil
}

// GoogleEnabled reports whether the Google Contacts import can run end to end.
func (c GoogleConfig) GoogleEnabled() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.RedirectURI != ""
}

func (c AuthConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}

func (c AuthConfig) MagicLinkTTL() time.Duration {
	return time.Duration(c.MagicLinkTTLMins) * time.Minute
}

func (c RedisConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

func (c GoogleConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}
