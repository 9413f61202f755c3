// Package config loads tirecode settings from a YAML file, the environment
// and an optional .env file.
package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/felixgeelhaar/tirecode/internal/errors"
)

// EnvPrefix prefixes every environment override, e.g. TIRECODE_API_URL.
const EnvPrefix = "TIRECODE"

// LegacyAPIURLEnv is honored when api.url is not set anywhere else.
const LegacyAPIURLEnv = "NEXT_PUBLIC_API_URL"

// Defaults.
const (
	DefaultAPIURL        = "http://localhost:3000"
	DefaultTimeout       = 10 * time.Second
	DefaultStorePrefix   = "tirecode"
	DefaultPassphraseEnv = "TIRECODE_STORE_PASSPHRASE"
)

// Config is the resolved configuration.
type Config struct {
	API       APIConfig       `mapstructure:"api" yaml:"api"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
	Vault     VaultConfig     `mapstructure:"vault" yaml:"vault"`
	Session   SessionConfig   `mapstructure:"session" yaml:"session"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-" yaml:"-"`
}

// APIConfig locates the backend.
type APIConfig struct {
	URL     string        `mapstructure:"url" yaml:"url" validate:"required,url,startswith=http"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gt=0"`
}

// LogConfig selects level and format of the stderr logger.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn warning error"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=text json"`
}

// StoreConfig selects the token store backend.
type StoreConfig struct {
	Backend       string `mapstructure:"backend" yaml:"backend" validate:"oneof=file encrypted vault memory"`
	Path          string `mapstructure:"path" yaml:"path,omitempty"`
	Prefix        string `mapstructure:"prefix" yaml:"prefix" validate:"required"`
	PassphraseEnv string `mapstructure:"passphrase_env" yaml:"passphrase_env"`
}

// VaultConfig configures the vault backend.
type VaultConfig struct {
	Address string `mapstructure:"address" yaml:"address,omitempty" validate:"omitempty,url"`
	Token   string `mapstructure:"token" yaml:"token,omitempty"`
	Mount   string `mapstructure:"mount" yaml:"mount,omitempty"`
	Path    string `mapstructure:"path" yaml:"path,omitempty"`
}

// SessionConfig tunes the session manager.
type SessionConfig struct {
	RetryOnUnavailable bool `mapstructure:"retry_on_unavailable" yaml:"retry_on_unavailable"`
}

// TelemetryConfig controls trace export.
type TelemetryConfig struct {
	Enabled    bool    `mapstructure:"enabled" yaml:"enabled"`
	Endpoint   string  `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	SampleRate float64 `mapstructure:"sample_rate" yaml:"sample_rate" validate:"gte=0,lte=1"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.timeout", DefaultTimeout.String())
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("store.backend", "file")
	v.SetDefault("store.path", "")
	v.SetDefault("store.prefix", DefaultStorePrefix)
	v.SetDefault("store.passphrase_env", DefaultPassphraseEnv)
	v.SetDefault("vault.address", "")
	v.SetDefault("vault.token", "")
	v.SetDefault("vault.mount", "secret")
	v.SetDefault("vault.path", "tirecode/session")
	v.SetDefault("session.retry_on_unavailable", true)
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.sample_rate", 1.0)
}

// DefaultPath returns $HOME/.tirecode/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".tirecode", "config.yaml"), nil
}

// Load resolves the configuration. Precedence, highest first: TIRECODE_*
// environment, .env in the working directory, the config file at path
// (or DefaultPath when empty), defaults. A missing default file is fine; a
// missing explicit file is an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !stderrors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrap(errors.ErrCodeConfigInvalid, "cannot read .env", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// api.url has no default so the legacy variable can fill the gap.
	_ = v.BindEnv("api.url")

	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeConfigInvalid, "cannot locate config", err)
		}
		path = p
	}
	v.SetConfigFile(path)

	file := path
	if err := v.ReadInConfig(); err != nil {
		if explicit || !stderrors.Is(err, os.ErrNotExist) {
			return nil, errors.Wrap(errors.ErrCodeConfigInvalid, "cannot read config "+path, err).
				WithSuggestion("Check the file with 'tirecode config path'")
		}
		file = ""
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfigInvalid, "cannot decode config", err)
	}
	cfg.File = file
	if cfg.API.URL == "" {
		cfg.API.URL = os.Getenv(LegacyAPIURLEnv)
	}
	if cfg.API.URL == "" {
		cfg.API.URL = DefaultAPIURL
	}
	cfg.API.URL = strings.TrimRight(cfg.API.URL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration without consulting any source.
func Default() *Config {
	return &Config{
		API:       APIConfig{URL: DefaultAPIURL, Timeout: DefaultTimeout},
		Log:       LogConfig{Level: "info", Format: "text"},
		Store:     StoreConfig{Backend: "file", Prefix: DefaultStorePrefix, PassphraseEnv: DefaultPassphraseEnv},
		Vault:     VaultConfig{Mount: "secret", Path: "tirecode/session"},
		Session:   SessionConfig{RetryOnUnavailable: true},
		Telemetry: TelemetryConfig{SampleRate: 1.0},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !stderrors.As(err, &fieldErrs) {
		return errors.Wrap(errors.ErrCodeConfigInvalid, "invalid config", err)
	}

	e := errors.New(errors.ErrCodeConfigInvalid, "")
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		key := keyFor(fe.Namespace())
		parts = append(parts, fmt.Sprintf("%s=%v (%s)", key, fe.Value(), fe.Tag()))
		e.WithDetail(key, fe.Tag())
	}
	e.Message = "invalid config: " + strings.Join(parts, ", ")
	return e.WithSuggestion("Run 'tirecode config show' to inspect the resolved values")
}

// keyFor maps "Config.API.URL" to "api.url".
func keyFor(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = fieldKeys[p]
		if parts[i] == "" {
			parts[i] = strings.ToLower(p)
		}
	}
	return strings.Join(parts, ".")
}

var fieldKeys = map[string]string{
	"RetryOnUnavailable": "retry_on_unavailable",
	"PassphraseEnv":      "passphrase_env",
	"SampleRate":         "sample_rate",
}
