// Package config loads settings from an optional YAML file and then
// overlays environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DriverMongo    = "mongo"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

var ErrMissingSecret = errors.New("JWT_SECRET is not set")

type ServerConfig struct {
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORSOrigins     []string      `yaml:"cors_origins"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type StorageConfig struct {
	Driver    string        `yaml:"driver"`
	URI       string        `yaml:"uri"`
	Database  string        `yaml:"database"`
	OpTimeout time.Duration `yaml:"op_timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ClientConfig struct {
	APIURL      string        `yaml:"api_url"`
	SessionFile string        `yaml:"session_file"`
	Timeout     time.Duration `yaml:"timeout"`
}

type TelegramConfig struct {
	Token string `yaml:"token"`
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Storage  StorageConfig  `yaml:"storage"`
	Log      LogConfig      `yaml:"log"`
	Client   ClientConfig   `yaml:"client"`
	Telegram TelegramConfig `yaml:"telegram"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "5000",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
		Storage: StorageConfig{
			Driver:    DriverMongo,
			Database:  "taskmanager",
			OpTimeout: 5 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Client: ClientConfig{
			APIURL:  "http://localhost:5000/api",
			Timeout: 10 * time.Second,
		},
	}
}

// Load starts from Default, applies the YAML file at path when path is
// non-empty, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

type lookupFunc func(key string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str("JWT_SECRET", &c.Auth.JWTSecret)
	str("PORT", &c.Server.Port)
	str("STORAGE_DRIVER", &c.Storage.Driver)
	str("MONGO_URI", &c.Storage.URI)
	str("STORAGE_URI", &c.Storage.URI)
	str("STORAGE_DATABASE", &c.Storage.Database)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("API_URL", &c.Client.APIURL)
	str("SESSION_FILE", &c.Client.SessionFile)
	str("TELEGRAM_BOT_TOKEN", &c.Telegram.Token)

	if v, ok := lookup("CORS_ORIGINS"); ok && v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.Server.CORSOrigins = origins
	}

	return errors.Join(
		dur("TOKEN_TTL", &c.Auth.TokenTTL),
		dur("STORAGE_TIMEOUT", &c.Storage.OpTimeout),
		dur("CLIENT_TIMEOUT", &c.Client.Timeout),
	)
}

// ValidateServer checks what the API server needs before it starts.
func (c *Config) ValidateServer() error {
	if c.Auth.JWTSecret == "" {
		return ErrMissingSecret
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("token ttl must be positive, got %s", c.Auth.TokenTTL)
	}
	switch c.Storage.Driver {
	case DriverMongo, DriverSQLite, DriverMemory:
	case DriverPostgres:
		if c.Storage.URI == "" {
			return errors.New("postgres driver requires STORAGE_URI")
		}
	default:
		return fmt.Errorf("unsupported storage driver %q", c.Storage.Driver)
	}
	return nil
}

// StorageURI returns the configured URI or the driver's local default.
func (s StorageConfig) StorageURI() string {
	if s.URI != "" {
		return s.URI
	}
	switch s.Driver {
	case DriverMongo:
		return "mongodb://localhost:27017"
	case DriverSQLite:
		return s.Database + ".db"
	}
	return ""
}

// SessionPath returns the session file location, defaulting to the
// user config directory.
func (c ClientConfig) SessionPath() (string, error) {
	if c.SessionFile != "" {
		return c.SessionFile, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "task-manager", "session.json"), nil
}
