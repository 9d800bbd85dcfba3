package aggregate

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/SepehrMohammady/IranBlackout/internal/cache"
	"github.com/SepehrMohammady/IranBlackout/internal/source"
	"github.com/SepehrMohammady/IranBlackout/internal/status"
)

// TimelinePoint is one historical connectivity sample, scored 0-100.
type TimelinePoint struct {
	Timestamp time.Time     `json:"timestamp"`
	Value     float64       `json:"value"`
	Status    status.Status `json:"status"`
}

// Timeline is the historical trend series for the timeline screen.
type Timeline struct {
	Days      int             `json:"days"`
	Points    []TimelinePoint `json:"points"`
	Synthetic bool            `json:"synthetic"`
}

const (
	timelineMinDays = 1
	timelineMaxDays = 28
	timelineTTL     = 15 * time.Minute
)

// FetchTimeline returns the per-day connectivity score series. OONI daily
// anomaly ratios are the primary source; IODA's BGP signal is the fallback.
// When both are down and nothing is cached, a deterministic synthetic series
// is returned so the chart always renders.
func (e *Engine) FetchTimeline(ctx context.Context, days int) Timeline {
	if days < timelineMinDays {
		days = timelineMinDays
	}
	if days > timelineMaxDays {
		days = timelineMaxDays
	}
	key := fmt.Sprintf("timeline:%d", days)

	tl, err := cache.GetOrFetch(ctx, e.cache, key, timelineTTL, func(ctx context.Context) (Timeline, error) {
		return e.computeTimeline(ctx, days)
	})
	if err != nil {
		e.log.Warn("timeline falling back to synthetic data", "error", err.Error())
		return e.syntheticTimeline(days)
	}
	return tl
}

func (e *Engine) computeTimeline(ctx context.Context, days int) (Timeline, error) {
	window := source.LastDays(e.now(), days)

	aggs, err := e.ooni.FetchDailyAggregates(ctx, e.cfg.Country, window)
	if err == nil && len(aggs) > 0 {
		points := make([]TimelinePoint, 0, len(aggs))
		for _, a := range aggs {
			score := -1.0
			if a.MeasurementCount > 0 {
				score = 100 - float64(a.AnomalyCount)/float64(a.MeasurementCount)*100
			}
			points = append(points, TimelinePoint{
				Timestamp: a.Day,
				Value:     math.Max(score, 0),
				Status:    status.FromScore(score),
			})
		}
		return Timeline{Days: days, Points: points}, nil
	}
	if err != nil {
		e.log.Warn("ooni timeline unavailable, trying ioda signal", "error", err.Error())
	}

	signal, serr := e.ioda.FetchSignal(ctx, "country", e.cfg.Country, window, "bgp", 100)
	if serr != nil {
		return Timeline{}, fmt.Errorf("timeline sources unavailable: %w", serr)
	}
	if len(signal) == 0 {
		return Timeline{}, fmt.Errorf("timeline sources returned no data")
	}

	// BGP signal amplitude has no fixed scale; normalize against the series
	// peak so the chart stays 0-100.
	peak := 0.0
	for _, p := range signal {
		if p.Value > peak {
			peak = p.Value
		}
	}
	points := make([]TimelinePoint, 0, len(signal))
	for _, p := range signal {
		score := 0.0
		if peak > 0 {
			score = p.Value / peak * 100
		}
		points = append(points, TimelinePoint{
			Timestamp: time.Unix(p.Timestamp, 0).UTC(),
			Value:     score,
			Status:    status.FromScore(score),
		})
	}
	return Timeline{Days: days, Points: points}, nil
}

func (e *Engine) syntheticTimeline(days int) Timeline {
	now := e.now()
	var points []TimelinePoint
	for i := days * 24; i >= 0; i -= 4 {
		value := 50 + 30*math.Sin(float64(i)/12)
		value = math.Max(0, math.Min(100, value))
		points = append(points, TimelinePoint{
			Timestamp: now.Add(-time.Duration(i) * time.Hour),
			Value:     value,
			Status:    status.FromScore(value),
		})
	}
	return Timeline{Days: days, Points: points, Synthetic: true}
}

// ProbeReport is the RIPE Atlas probe-health summary.
type ProbeReport struct {
	Connected    int     `json:"connected"`
	Disconnected int     `json:"disconnected"`
	Total        int     `json:"total"`
	Score        float64 `json:"score"`
}

// ProbeHealth returns the cached in-country probe connectivity summary.
func (e *Engine) ProbeHealth(ctx context.Context) (ProbeReport, error) {
	return cache.GetOrFetch(ctx, e.cache, keyProbes, e.cfg.CacheTTL, func(ctx context.Context) (ProbeReport, error) {
		health, err := e.probes.FetchProbeHealth(ctx, e.cfg.Country)
		if err != nil {
			return ProbeReport{}, err
		}
		return ProbeReport{
			Connected:    health.Connected,
			Disconnected: health.Disconnected,
			Total:        health.Connected + health.Disconnected,
			Score:        health.Score(),
		}, nil
	})
}
