package banner

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"

	"assetbridge/pkg/config"
)

const banner = `
   __ _  ___ ___  ___| |_| |__  _ __(_) __| | __ _  ___
  / _' |/ __/ __|/ _ \ __| '_ \| '__| |/ _' |/ _' |/ _ \
 | (_| |\__ \__ \  __/ |_| |_) | |  | | (_| | (_| |  __/
  \__,_||___/___/\___|\__|_.__/|_|  |_|\__,_|\__, |\___|
                                             |___/
`

// Assets summarizes the static index for the banner.
type Assets struct {
	Root  string
	Files int
	Bytes int64
}

// Print writes the startup summary to w.
func Print(w io.Writer, eff config.EffectiveConfigResult, assets Assets, version string) {
	cfg := eff.Config
	if cfg == nil {
		cfg = config.Defaults()
	}
	src := strings.Join(eff.Sources, ", ")
	if src == "" {
		src = "defaults"
	}

	fmt.Fprint(w, banner)
	fmt.Fprintln(w, "== Config =====================================================")
	fmt.Fprintf(w, "Listen:     %s (%s", cfg.Addr(), cfg.Server.Transport)
	if cfg.Server.Transport == config.TransportNetHTTP && cfg.Server.H2C && !cfg.Server.TLS.Enabled() {
		fmt.Fprint(w, ", h2c")
	}
	fmt.Fprintln(w, ")")
	if cfg.Admin.Enabled {
		fmt.Fprintf(w, "Admin:      %s (/healthz /readyz /metrics)\n", cfg.Admin.Address)
	}
	if version != "" {
		fmt.Fprintf(w, "Version:    %s\n", version)
	}
	fmt.Fprintf(w, "Config:     %s\n", src)
	if eff.ConfigPath != "" {
		fmt.Fprintf(w, "File:       %s\n", eff.ConfigPath)
	}

	fmt.Fprintln(w, "\n== Static =====================================================")
	fmt.Fprintf(w, "Root:       %s\n", assets.Root)
	fmt.Fprintf(w, "Indexed:    %d files, %s\n", assets.Files, humanize.IBytes(uint64(assets.Bytes)))
	fmt.Fprintf(w, "Immutable:  %s*\n", cfg.Static.PublicPath)
	if cfg.Static.DeflateFromGzip {
		fmt.Fprintln(w, "Deflate:    served from .gz variants")
	}

	fmt.Fprintln(w, "\n== Production? =================================================")
	if cfg.Server.TLS.Enabled() {
		fmt.Fprintln(w, "- TLS: configured")
	} else {
		fmt.Fprintln(w, "- TLS: unconfigured (terminate TLS upstream)")
	}
	if cfg.Server.RateLimit.RPS > 0 {
		fmt.Fprintf(w, "- Rate limit: %.1f rps, burst %d\n", cfg.Server.RateLimit.RPS, cfg.Server.RateLimit.Burst)
	} else {
		fmt.Fprintln(w, "- Rate limit: disabled")
	}
	fmt.Fprintf(w, "- Dynamic cache-control: %s\n", cfg.Dynamic.CacheControl)

	fmt.Fprintln(w, "\n== Logs: =================================================")
}
