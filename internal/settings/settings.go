// Package settings reads user preference flags from the host key/value
// store. The core only consults these flags; their persistence is owned by
// the client application.
package settings

import (
	"context"
	"strings"

	"github.com/SepehrMohammady/IranBlackout/internal/cache"
	"github.com/SepehrMohammady/IranBlackout/internal/logging"
)

const prefix = "settings:"

const (
	keyTelemetryEnabled   = prefix + "telemetry_enabled"
	keyAlertOnOutage      = prefix + "alert_on_outage"
	keyAlertOnRestoration = prefix + "alert_on_restoration"
	keyLanguage           = prefix + "language"
)

type Settings struct {
	store cache.Store
	log   *logging.Logger
}

func New(store cache.Store, log *logging.Logger) *Settings {
	return &Settings{store: store, log: log}
}

// TelemetryEnabled gates the telemetry reporter. Defaults to enabled; only an
// explicit "false" disables it, matching the client's opt-out model.
func (s *Settings) TelemetryEnabled(ctx context.Context) bool {
	return s.boolFlag(ctx, keyTelemetryEnabled, true)
}

func (s *Settings) AlertOnOutage(ctx context.Context) bool {
	return s.boolFlag(ctx, keyAlertOnOutage, true)
}

func (s *Settings) AlertOnRestoration(ctx context.Context) bool {
	return s.boolFlag(ctx, keyAlertOnRestoration, true)
}

// Language returns the preferred display language, "en" or "fa".
func (s *Settings) Language(ctx context.Context) string {
	raw, ok := s.read(ctx, keyLanguage)
	if !ok {
		return "en"
	}
	if raw == "fa" {
		return "fa"
	}
	return "en"
}

func (s *Settings) boolFlag(ctx context.Context, key string, def bool) bool {
	raw, ok := s.read(ctx, key)
	if !ok {
		return def
	}
	switch raw {
	case "true", "1":
		return true
	case "false", "0":
		return false
	default:
		return def
	}
}

func (s *Settings) read(ctx context.Context, key string) (string, bool) {
	raw, ok, err := s.store.Get(ctx, key)
	if err != nil {
		s.log.Warn("settings read failed", "key", key, "error", err.Error())
		return "", false
	}
	if !ok {
		return "", false
	}
	return strings.Trim(strings.TrimSpace(string(raw)), `"`), true
}
