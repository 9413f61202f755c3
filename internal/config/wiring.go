package config

import (
	"os"

	"github.com/felixgeelhaar/tirecode/internal/errors"
	"github.com/felixgeelhaar/tirecode/internal/log"
	"github.com/felixgeelhaar/tirecode/internal/session"
	"github.com/felixgeelhaar/tirecode/internal/telemetry"
	"github.com/felixgeelhaar/tirecode/internal/tokenstore"
)

// LoggerConfig returns the stderr logger settings. JSON output starts from the
// production preset; debug forces the development preset's level and source
// locations.
func (c *Config) LoggerConfig(version string, debug bool) log.Config {
	lc := log.DefaultConfig()
	format := log.ParseFormat(c.Log.Format)
	if format == log.FormatJSON {
		lc = log.ProductionConfig()
	}
	lc.Level = log.ParseLevel(c.Log.Level)
	if debug {
		dev := log.DevelopmentConfig()
		lc.Level = dev.Level
		lc.AddSource = dev.AddSource
	}
	lc.Format = format
	if version != "" {
		lc.ServiceVersion = version
	}
	return lc
}

// TracingConfig returns the tracer settings.
func (c *Config) TracingConfig(version string) telemetry.Config {
	if !c.Telemetry.Enabled {
		return telemetry.DefaultConfig()
	}
	tc := telemetry.ProductionConfig(c.Telemetry.Endpoint, version)
	tc.SampleRate = c.Telemetry.SampleRate
	if version != "" {
		tc.ServiceVersion = version
	}
	return tc
}

// BackendConfig returns the token store backend settings. The encrypted
// backend reads its passphrase from the environment variable named by
// store.passphrase_env.
func (c *Config) BackendConfig() (tokenstore.BackendConfig, error) {
	bc := tokenstore.BackendConfig{
		Kind: c.Store.Backend,
		Path: c.Store.Path,
		Vault: tokenstore.VaultConfig{
			Address:    c.Vault.Address,
			Token:      c.Vault.Token,
			MountPath:  c.Vault.Mount,
			SecretPath: c.Vault.Path,
			Timeout:    c.API.Timeout,
		},
	}

	if c.Store.Backend == tokenstore.KindEncrypted {
		name := c.Store.PassphraseEnv
		if name == "" {
			name = DefaultPassphraseEnv
		}
		pass := os.Getenv(name)
		if pass == "" {
			return bc, errors.New(errors.ErrCodeConfigInvalid, "encrypted token store needs a passphrase").
				WithDetail("env", name).
				WithSuggestion("Export " + name + " or choose another store.backend")
		}
		bc.Passphrase = []byte(pass)
	}
	return bc, nil
}

// RetryPolicy returns the refresh retry policy.
func (c *Config) RetryPolicy() session.RetryPolicy {
	p := session.DefaultRetryPolicy()
	p.Enabled = c.Session.RetryOnUnavailable
	return p
}
