package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config is the main configuration struct.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Admin       AdminConfig       `yaml:"admin"`
	Static      StaticConfig      `yaml:"static"`
	Dynamic     DynamicConfig     `yaml:"dynamic"`
	Compression CompressionConfig `yaml:"compression"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig holds listener, transport and tls settings.
type ServerConfig struct {
	Address      string          `yaml:"address"`
	Port         int             `yaml:"port"`
	Transport    string          `yaml:"transport"` // nethttp | fasthttp
	H2C          bool            `yaml:"h2c"`
	ReadTimeout  Duration        `yaml:"read_timeout"`
	WriteTimeout Duration        `yaml:"write_timeout"`
	IdleTimeout  Duration        `yaml:"idle_timeout"`
	TLS          TLSConfig       `yaml:"tls"`
	RateLimit    RateLimitConfig `yaml:"rate_limit"`
}

// TLSConfig holds TLS certificate configuration.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// Enabled reports whether both certificate and key are configured.
func (t TLSConfig) Enabled() bool { return t.CertFile != "" && t.KeyFile != "" }

// RateLimitConfig bounds dynamic requests per client. RPS 0 disables it.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// AdminConfig controls the health and metrics listener.
type AdminConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// StaticConfig describes the asset directory.
type StaticConfig struct {
	Root            string    `yaml:"root"`
	PublicPath      string    `yaml:"public_path"`
	DeflateFromGzip bool      `yaml:"deflate_from_gzip"`
	ChunkSize       SizeBytes `yaml:"chunk_size"`
}

// DynamicConfig tunes responses produced by the application handler.
type DynamicConfig struct {
	CacheControl string `yaml:"cache_control"` // passthrough | no-cache
}

// CompressionConfig holds per-coding encoder levels.
type CompressionConfig struct {
	BrotliQuality int `yaml:"brotli_quality"`
	GzipLevel     int `yaml:"gzip_level"`
	DeflateLevel  int `yaml:"deflate_level"`
	ZstdLevel     int `yaml:"zstd_level"`
}

// TelemetryConfig controls completion events.
type TelemetryConfig struct {
	Enabled       bool     `yaml:"enabled"`
	QueueCapacity int      `yaml:"queue_capacity"`
	SlowThreshold Duration `yaml:"slow_threshold"`
	// EventsDir, when set, receives events.jsonl with one record per exchange.
	EventsDir string `yaml:"events_dir"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// SizeBytes represents a number of bytes, unmarshaled from human-friendly strings like "64KiB" or plain integers.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*s = 0
		return nil
	}
	v, err := ParseSize(node.Value)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseSize accepts "64KiB", "1MB" or a plain byte count.
func ParseSize(raw string) (SizeBytes, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return SizeBytes(i), nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		return SizeBytes(v), nil
	}
	return 0, fmt.Errorf("invalid size value: %q", raw)
}

func (s SizeBytes) Int() int { return int(s) }

// Duration is a wrapper around time.Duration that supports YAML parsing from strings like "100ms" or plain numbers (interpreted as seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = Duration(0)
		return nil
	}
	v, err := ParseDuration(node.Value)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// ParseDuration accepts Go duration syntax or numeric seconds.
func ParseDuration(raw string) (Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		return Duration(td), nil
	}
	// allow numeric seconds
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return Duration(time.Duration(f * float64(time.Second))), nil
	}
	return 0, fmt.Errorf("invalid duration value: %q", raw)
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }
