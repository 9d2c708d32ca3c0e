package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	TransportNetHTTP  = "nethttp"
	TransportFastHTTP = "fasthttp"

	CachePassthrough = "passthrough"
	CacheNoCache     = "no-cache"
)

// Defaults returns the configuration used when nothing else is set.
func Defaults() *Config {
	cfg := &Config{}
	cfg.Server.Address = "0.0.0.0"
	cfg.Server.Port = 8080
	cfg.Server.Transport = TransportNetHTTP
	cfg.Server.H2C = true
	cfg.Server.ReadTimeout = Duration(10 * time.Second)
	cfg.Server.IdleTimeout = Duration(60 * time.Second)
	cfg.Admin.Enabled = true
	cfg.Admin.Address = "127.0.0.1:9090"
	cfg.Static.Root = "./public"
	cfg.Static.PublicPath = "/build/"
	cfg.Static.ChunkSize = 64 * 1024
	cfg.Dynamic.CacheControl = CachePassthrough
	cfg.Compression.BrotliQuality = 5
	cfg.Compression.GzipLevel = 6
	cfg.Compression.DeflateLevel = 6
	cfg.Compression.ZstdLevel = 3
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.QueueCapacity = 1024
	cfg.Telemetry.SlowThreshold = Duration(500 * time.Millisecond)
	cfg.Logging.Level = "info"
	return cfg
}

// Addr returns host:port for the HTTP server. Port 0 asks the kernel for a
// free port.
func (c *Config) Addr() string {
	addr := c.Server.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	return net.JoinHostPort(addr, strconv.Itoa(c.Server.Port))
}

// SetAddr splits a host:port (or ":port") value into Address and Port.
func (c *Config) SetAddr(v string) {
	if h, p, err := net.SplitHostPort(v); err == nil {
		c.Server.Address = h
		if pi, err := strconv.Atoi(p); err == nil {
			c.Server.Port = pi
		}
		return
	}
	c.Server.Address = v
}

// Load reads a YAML file on top of Defaults. A missing file is reported with
// an error wrapping os.ErrNotExist.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file not found: %s: %w", path, err)
		}
		return nil, err
	}
	cfg := Defaults()
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the settings that would otherwise fail late at startup.
func (c *Config) Validate() error {
	var errs []error
	switch c.Server.Transport {
	case TransportNetHTTP, TransportFastHTTP:
	default:
		errs = append(errs, fmt.Errorf("server.transport must be %q or %q, got %q", TransportNetHTTP, TransportFastHTTP, c.Server.Transport))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if (c.Server.TLS.CertFile == "") != (c.Server.TLS.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}
	if c.Server.RateLimit.RPS < 0 || c.Server.RateLimit.Burst < 0 {
		errs = append(errs, errors.New("server.rate_limit values must not be negative"))
	}
	switch c.Dynamic.CacheControl {
	case CachePassthrough, CacheNoCache:
	default:
		errs = append(errs, fmt.Errorf("dynamic.cache_control must be %q or %q, got %q", CachePassthrough, CacheNoCache, c.Dynamic.CacheControl))
	}
	if !strings.HasPrefix(c.Static.PublicPath, "/") {
		errs = append(errs, fmt.Errorf("static.public_path must start with '/', got %q", c.Static.PublicPath))
	}
	if c.Static.ChunkSize < 0 {
		errs = append(errs, errors.New("static.chunk_size must not be negative"))
	}
	if fi, err := os.Stat(c.Static.Root); err != nil {
		errs = append(errs, fmt.Errorf("static.root: %w", err))
	} else if !fi.IsDir() {
		errs = append(errs, fmt.Errorf("static.root %s is not a directory", c.Static.Root))
	}
	if c.Admin.Enabled {
		if _, _, err := net.SplitHostPort(c.Admin.Address); err != nil {
			errs = append(errs, fmt.Errorf("admin.address: %w", err))
		}
	}
	return errors.Join(errs...)
}

// ResolveConfigPath decides the config file path using the flag-provided value
// and the environment variable `ASSETBRIDGE_CONFIG` when the flag was not set.
func ResolveConfigPath(flagPath string, flagSet bool) string {
	if flagSet {
		return flagPath
	}
	if p := os.Getenv("ASSETBRIDGE_CONFIG"); p != "" {
		return p
	}
	return flagPath
}
