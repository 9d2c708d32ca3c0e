package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearEnv blanks every variable ApplyEnv reads so host settings do not leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		if k, _, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(k, "ASSETBRIDGE_") {
			t.Setenv(k, "")
		}
	}
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	p := filepath.Join(dir, "cfg.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return p
}

func TestConfig_LoadAndResolve(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	p := writeConfig(t, dir, `
server:
  address: 127.0.0.1
  port: 9090
  transport: fasthttp
  read_timeout: 250ms
  write_timeout: 2
static:
  root: `+dir+`
  chunk_size: 16KiB
dynamic:
  cache_control: no-cache
logging:
  level: debug
`)
	c, err := Load(p)
	if err != nil {
		t.Fatalf("config.Load failed: %v", err)
	}
	if c.Server.Port != 9090 || c.Addr() != "127.0.0.1:9090" {
		t.Fatalf("unexpected addr %s", c.Addr())
	}
	if c.Server.Transport != TransportFastHTTP {
		t.Fatalf("unexpected transport %q", c.Server.Transport)
	}
	if c.Server.ReadTimeout.Duration() != 250*time.Millisecond || c.Server.WriteTimeout.Duration() != 2*time.Second {
		t.Fatalf("unexpected timeouts %v %v", c.Server.ReadTimeout.Duration(), c.Server.WriteTimeout.Duration())
	}
	if c.Static.ChunkSize.Int() != 16*1024 {
		t.Fatalf("unexpected chunk size %d", c.Static.ChunkSize)
	}
	// unset keys keep their defaults
	if c.Static.PublicPath != "/build/" || c.Compression.BrotliQuality != 5 || !c.Admin.Enabled {
		t.Fatalf("defaults lost: %+v", c)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	// ResolveConfigPath prefers env var when flag not set
	t.Setenv("ASSETBRIDGE_CONFIG", p)
	if got := ResolveConfigPath("/nope", false); got != p {
		t.Fatalf("ResolveConfigPath expected %q got %q", p, got)
	}
	if got := ResolveConfigPath("/explicit", true); got != "/explicit" {
		t.Fatalf("explicit flag must win, got %q", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	dir := t.TempDir()
	for _, body := range []string{
		"server:\n  read_timeout: soon\n",
		"static:\n  chunk_size: lots\n",
		"server: [\n",
	} {
		if _, err := Load(writeConfig(t, dir, body)); err == nil {
			t.Fatalf("expected error for %q", body)
		}
	}
}

func TestValidate(t *testing.T) {
	root := t.TempDir()
	base := func() *Config {
		c := Defaults()
		c.Static.Root = root
		return c
	}
	if err := base().Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	cases := map[string]func(c *Config){
		"transport":   func(c *Config) { c.Server.Transport = "quic" },
		"cache":       func(c *Config) { c.Dynamic.CacheControl = "forever" },
		"tls":         func(c *Config) { c.Server.TLS.CertFile = "cert.pem" },
		"public path": func(c *Config) { c.Static.PublicPath = "build/" },
		"root":        func(c *Config) { c.Static.Root = filepath.Join(root, "missing") },
		"admin":       func(c *Config) { c.Admin.Address = "no-port" },
		"rate":        func(c *Config) { c.Server.RateLimit.RPS = -1 },
	}
	for name, mutate := range cases {
		c := base()
		mutate(c)
		if err := c.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestEffectiveConfigLayers(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	flagRoot := t.TempDir()
	p := writeConfig(t, dir, "server:\n  port: 7000\nstatic:\n  root: "+dir+"\n")

	t.Setenv("ASSETBRIDGE_PORT", "7100")
	t.Setenv("ASSETBRIDGE_CACHE_CONTROL", "no-cache")
	t.Setenv("ASSETBRIDGE_SLOW_THRESHOLD", "1s")

	flags, err := ParseConfigFlags([]string{"--config", p, "--static", flagRoot})
	if err != nil {
		t.Fatalf("ParseConfigFlags: %v", err)
	}
	res, err := LoadEffectiveConfig(flags)
	if err != nil {
		t.Fatalf("LoadEffectiveConfig: %v", err)
	}
	c := res.Config
	if c.Server.Port != 7100 {
		t.Fatalf("env should override file port, got %d", c.Server.Port)
	}
	if c.Dynamic.CacheControl != CacheNoCache || c.Telemetry.SlowThreshold.Duration() != time.Second {
		t.Fatalf("env overrides not applied: %+v", c)
	}
	if c.Static.Root != flagRoot {
		t.Fatalf("flag should override static root, got %q", c.Static.Root)
	}
	if strings.Join(res.Sources, ",") != "defaults,config,env,flags" || res.ConfigPath != p {
		t.Fatalf("unexpected sources %v path %q", res.Sources, res.ConfigPath)
	}

	flags, _ = ParseConfigFlags([]string{"--addr", "127.0.0.1:9999"})
	flags.Config = filepath.Join(dir, "absent.yaml")
	t.Setenv("ASSETBRIDGE_STATIC_ROOT", dir)
	res, err = LoadEffectiveConfig(flags)
	if err != nil {
		t.Fatalf("default config path may be absent: %v", err)
	}
	if res.Config.Addr() != "127.0.0.1:9999" {
		t.Fatalf("flag addr not applied: %s", res.Config.Addr())
	}

	flags, _ = ParseConfigFlags([]string{"--config", filepath.Join(dir, "absent.yaml")})
	if _, err := LoadEffectiveConfig(flags); err == nil {
		t.Fatalf("explicit --config must exist")
	}
}

func TestParseSizeAndDuration(t *testing.T) {
	if v, err := ParseSize("64KiB"); err != nil || v != 64*1024 {
		t.Fatalf("ParseSize 64KiB = %d, %v", v, err)
	}
	if v, err := ParseSize("4096"); err != nil || v != 4096 {
		t.Fatalf("ParseSize 4096 = %d, %v", v, err)
	}
	if v, err := ParseDuration("1.5"); err != nil || v.Duration() != 1500*time.Millisecond {
		t.Fatalf("ParseDuration 1.5 = %v, %v", v.Duration(), err)
	}
}
