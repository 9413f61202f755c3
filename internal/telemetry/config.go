package telemetry

import "strings"

// Config holds configuration for the tracer
type Config struct {
	// ServiceName is the name of the service
	ServiceName string

	// ServiceVersion is the version of the binary
	ServiceVersion string

	// Environment is the deployment environment (dev, staging, production)
	Environment string

	// Enabled determines whether tracing is enabled.
	// When false, a noop tracer is used
	Enabled bool

	// Endpoint is the OTLP/HTTP collector endpoint (optional).
	// Accepts "host:port" or a URL; an http:// URL disables TLS.
	Endpoint string

	// SampleRate is the fraction of traces to sample (0.0 to 1.0)
	SampleRate float64
}

// DefaultConfig returns the CLI default: tracing off.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "tirecode",
		ServiceVersion: "dev",
		Environment:    "development",
		SampleRate:     1.0,
	}
}

// ProductionConfig returns a sampled, exporting configuration.
func ProductionConfig(endpoint, version string) Config {
	if version == "" {
		version = "unknown"
	}
	return Config{
		ServiceName:    "tirecode",
		ServiceVersion: version,
		Environment:    "production",
		Enabled:        true,
		Endpoint:       endpoint,
		SampleRate:     0.1,
	}
}

// exporterTarget splits Endpoint into the host:port the OTLP exporter wants
// and whether the connection is plaintext.
func (c Config) exporterTarget() (host string, insecure bool) {
	endpoint := strings.TrimSuffix(c.Endpoint, "/")
	switch {
	case strings.HasPrefix(endpoint, "http://"):
		return strings.TrimPrefix(endpoint, "http://"), true
	case strings.HasPrefix(endpoint, "https://"):
		return strings.TrimPrefix(endpoint, "https://"), false
	default:
		return endpoint, false
	}
}

func (c Config) sampleRate() float64 {
	switch {
	case c.SampleRate <= 0:
		return 0
	case c.SampleRate > 1:
		return 1
	default:
		return c.SampleRate
	}
}
