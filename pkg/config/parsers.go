package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Flags holds parsed command-line flag values and which were set.
type Flags struct {
	Addr   string
	Static string
	Config string
	Set    map[string]bool
}

// EffectiveConfigResult is the merged configuration plus where it came from.
type EffectiveConfigResult struct {
	Config *Config
	// Sources lists the layers applied in order, e.g. ["defaults","config","env"].
	Sources []string
	// ConfigPath is the file that was read, empty when none was.
	ConfigPath string
}

// ParseConfigFlags parses args (normally os.Args[1:]) and returns them as a
// Flags struct.
func ParseConfigFlags(args []string) (Flags, error) {
	fs := flag.NewFlagSet("assetbridge", flag.ContinueOnError)
	addrPtr := fs.String("addr", ":8080", "HTTP listen address")
	staticPtr := fs.String("static", "./public", "Static asset directory")
	cfgPtr := fs.String("config", "./config.yaml", "Path to config file")
	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}
	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	return Flags{Addr: *addrPtr, Static: *staticPtr, Config: *cfgPtr, Set: setFlags}, nil
}

// ApplyEnv applies ASSETBRIDGE_* environment overrides onto cfg and reports
// whether any were present. Unparsable numeric values are ignored.
func ApplyEnv(cfg *Config) bool {
	envUsed := false
	str := func(name string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			envUsed = true
			*dst = v
		}
	}
	integer := func(name string, dst *int) {
		if v := os.Getenv(name); v != "" {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				envUsed = true
				*dst = n
			}
		}
	}
	boolean := func(name string, dst *bool) {
		if v := os.Getenv(name); v != "" {
			envUsed = true
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "1", "true", "yes":
				*dst = true
			default:
				*dst = false
			}
		}
	}

	if v := os.Getenv("ASSETBRIDGE_ADDR"); v != "" {
		envUsed = true
		cfg.SetAddr(v)
	} else {
		str("ASSETBRIDGE_ADDRESS", &cfg.Server.Address)
		integer("ASSETBRIDGE_PORT", &cfg.Server.Port)
	}
	str("ASSETBRIDGE_TRANSPORT", &cfg.Server.Transport)
	boolean("ASSETBRIDGE_H2C", &cfg.Server.H2C)
	str("ASSETBRIDGE_TLS_CERT", &cfg.Server.TLS.CertFile)
	str("ASSETBRIDGE_TLS_KEY", &cfg.Server.TLS.KeyFile)
	if v := os.Getenv("ASSETBRIDGE_RATE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			envUsed = true
			cfg.Server.RateLimit.RPS = f
		}
	}
	integer("ASSETBRIDGE_RATE_BURST", &cfg.Server.RateLimit.Burst)

	boolean("ASSETBRIDGE_ADMIN_ENABLED", &cfg.Admin.Enabled)
	str("ASSETBRIDGE_ADMIN_ADDR", &cfg.Admin.Address)

	str("ASSETBRIDGE_STATIC_ROOT", &cfg.Static.Root)
	str("ASSETBRIDGE_PUBLIC_PATH", &cfg.Static.PublicPath)
	boolean("ASSETBRIDGE_DEFLATE_FROM_GZIP", &cfg.Static.DeflateFromGzip)

	str("ASSETBRIDGE_CACHE_CONTROL", &cfg.Dynamic.CacheControl)

	boolean("ASSETBRIDGE_TELEMETRY", &cfg.Telemetry.Enabled)
	str("ASSETBRIDGE_EVENTS_DIR", &cfg.Telemetry.EventsDir)
	if v := os.Getenv("ASSETBRIDGE_SLOW_THRESHOLD"); v != "" {
		if d, err := ParseDuration(v); err == nil {
			envUsed = true
			cfg.Telemetry.SlowThreshold = d
		}
	}
	str("ASSETBRIDGE_LOG_LEVEL", &cfg.Logging.Level)
	return envUsed
}

// LoadEffectiveConfig layers defaults, the config file, environment and
// flags, in that order. An explicitly passed --config must exist; the
// default path is optional.
func LoadEffectiveConfig(flags Flags) (EffectiveConfigResult, error) {
	res := EffectiveConfigResult{Config: Defaults(), Sources: []string{"defaults"}}

	cfgPath := ResolveConfigPath(flags.Config, flags.Set["config"])
	fileCfg, err := Load(cfgPath)
	switch {
	case err == nil:
		res.Config = fileCfg
		res.ConfigPath = cfgPath
		res.Sources = append(res.Sources, "config")
	case errors.Is(err, os.ErrNotExist) && !flags.Set["config"] && os.Getenv("ASSETBRIDGE_CONFIG") == "":
		// no file at the default location
	default:
		return res, err
	}

	if ApplyEnv(res.Config) {
		res.Sources = append(res.Sources, "env")
	}

	flagged := false
	if flags.Set["addr"] {
		res.Config.SetAddr(flags.Addr)
		flagged = true
	}
	if flags.Set["static"] {
		res.Config.Static.Root = flags.Static
		flagged = true
	}
	if flagged {
		res.Sources = append(res.Sources, "flags")
	}
	if err := res.Config.Validate(); err != nil {
		return res, fmt.Errorf("invalid configuration: %w", err)
	}
	return res, nil
}
