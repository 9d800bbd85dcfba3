// Package alertfeed turns IODA's classified outage alerts into the read/
// unread notification list shown in the client.
package alertfeed

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/SepehrMohammady/IranBlackout/internal/cache"
	"github.com/SepehrMohammady/IranBlackout/internal/logging"
	"github.com/SepehrMohammady/IranBlackout/internal/refdata"
	"github.com/SepehrMohammady/IranBlackout/internal/source"
	"github.com/SepehrMohammady/IranBlackout/internal/status"
)

// Capacity bounds the retained list; the oldest alerts are evicted first.
const Capacity = 50

const (
	cacheKey = "alerts"
	cacheTTL = 30 * 24 * time.Hour
)

var ErrNotFound = errors.New("alert not found")

// Alert is one feed entry. The payload is structured (category plus entity
// fields); clients must not have to parse display strings to recover it.
type Alert struct {
	ID         string               `json:"id"`
	Category   status.AlertCategory `json:"category"`
	EntityName string               `json:"entity_name,omitempty"`
	RegionID   string               `json:"region_id,omitempty"`
	ISPID      string               `json:"isp_id,omitempty"`
	Score      float64              `json:"score"`
	Timestamp  time.Time            `json:"timestamp"`
	Read       bool                 `json:"read"`
}

// AlertSource is the alert-capable provider client.
type AlertSource interface {
	FetchAlerts(ctx context.Context, entityType, entityCode string, window source.TimeWindow, limit int) ([]source.OutageAlert, error)
}

// Feed fetches, classifies and persists the alert list. Read-state changes
// never drop alerts; only capacity eviction and ClearAll do.
type Feed struct {
	src     AlertSource
	cache   *cache.Cache
	log     *logging.Logger
	country string
	now     func() time.Time
}

func New(src AlertSource, c *cache.Cache, log *logging.Logger, country string) *Feed {
	return &Feed{src: src, cache: c, log: log, country: country, now: time.Now}
}

// List refreshes the feed from the provider and returns up to limit alerts,
// newest first. Provider failure degrades to the persisted list; read flags
// on already-known alerts are preserved across refreshes.
func (f *Feed) List(ctx context.Context, window source.TimeWindow, limit int) ([]Alert, error) {
	existing := f.load(ctx)

	fetched, err := f.src.FetchAlerts(ctx, "country", f.country, window, Capacity)
	if err != nil {
		f.log.Warn("alert fetch failed, serving persisted feed", "error", err.Error())
		return clip(existing, limit), nil
	}

	byID := make(map[string]Alert, len(existing))
	for _, a := range existing {
		byID[a.ID] = a
	}
	for _, raw := range fetched {
		if _, ok := byID[raw.ID]; ok {
			continue
		}
		byID[raw.ID] = f.classify(raw)
	}

	merged := make([]Alert, 0, len(byID))
	for _, a := range byID {
		merged = append(merged, a)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp.After(merged[j].Timestamp)
	})
	if len(merged) > Capacity {
		merged = merged[:Capacity]
	}

	f.save(ctx, merged)
	return clip(merged, limit), nil
}

func (f *Feed) classify(raw source.OutageAlert) Alert {
	a := Alert{
		ID:         raw.ID,
		Category:   status.CategoryForAlert(raw.Score, raw.TrendingUp),
		EntityName: raw.EntityName,
		Score:      raw.Score,
		Timestamp:  time.Unix(raw.Time, 0).UTC(),
	}
	switch raw.EntityType {
	case "region":
		a.RegionID = raw.EntityCode
	case "asn":
		if asn, err := strconv.Atoi(raw.EntityCode); err == nil {
			if ispID, ok := refdata.ISPForASN(asn); ok {
				a.ISPID = ispID
			}
		}
	}
	return a
}

// MarkRead flips the read flag on one alert.
func (f *Feed) MarkRead(ctx context.Context, id string) error {
	alerts := f.load(ctx)
	for i := range alerts {
		if alerts[i].ID == id {
			alerts[i].Read = true
			f.save(ctx, alerts)
			return nil
		}
	}
	return ErrNotFound
}

// MarkAllRead flips the read flag on every alert.
func (f *Feed) MarkAllRead(ctx context.Context) {
	alerts := f.load(ctx)
	for i := range alerts {
		alerts[i].Read = true
	}
	f.save(ctx, alerts)
}

// ClearAll empties the feed.
func (f *Feed) ClearAll(ctx context.Context) {
	f.save(ctx, []Alert{})
}

// UnreadCount reports how many persisted alerts are unread.
func (f *Feed) UnreadCount(ctx context.Context) int {
	n := 0
	for _, a := range f.load(ctx) {
		if !a.Read {
			n++
		}
	}
	return n
}

func (f *Feed) load(ctx context.Context) []Alert {
	var alerts []Alert
	f.cache.Get(ctx, cacheKey, &alerts)
	return alerts
}

func (f *Feed) save(ctx context.Context, alerts []Alert) {
	f.cache.Set(ctx, cacheKey, alerts, cacheTTL)
}

func clip(alerts []Alert, limit int) []Alert {
	if limit > 0 && len(alerts) > limit {
		return alerts[:limit]
	}
	return alerts
}
