package app

import (
	"fmt"
	"os"

	"assetbridge/pkg/config"
)

// validateConfig performs quick, fail-fast validation of the effective
// configuration before starting long-running services.
func validateConfig(eff config.EffectiveConfigResult) error {
	if eff.Config == nil {
		return fmt.Errorf("no configuration loaded")
	}
	if err := eff.Config.Validate(); err != nil {
		return err
	}

	// Validate only checks that cert and key come in pairs
	if tls := eff.Config.Server.TLS; tls.Enabled() {
		if _, err := os.Stat(tls.CertFile); err != nil {
			return fmt.Errorf("tls cert file not accessible: %w", err)
		}
		if _, err := os.Stat(tls.KeyFile); err != nil {
			return fmt.Errorf("tls key file not accessible: %w", err)
		}
	}

	if dir := eff.Config.Telemetry.EventsDir; dir != "" {
		if fi, err := os.Stat(dir); err == nil && !fi.IsDir() {
			return fmt.Errorf("telemetry.events_dir %s is not a directory", dir)
		}
	}
	return nil
}
