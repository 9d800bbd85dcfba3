// Package aggregate reconciles the four upstream connectivity signals into
// per-ISP, per-region and dashboard-level verdicts.
package aggregate

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/SepehrMohammady/IranBlackout/internal/cache"
	"github.com/SepehrMohammady/IranBlackout/internal/logging"
	"github.com/SepehrMohammady/IranBlackout/internal/refdata"
	"github.com/SepehrMohammady/IranBlackout/internal/source"
	"github.com/SepehrMohammady/IranBlackout/internal/status"
)

// ErrAllSourcesFailed marks a refresh cycle in which no provider returned
// anything usable.
var ErrAllSourcesFailed = errors.New("all connectivity sources failed")

// Narrow views of the source clients so tests can substitute fakes per
// provider.

type AnomalySource interface {
	FetchASNAggregates(ctx context.Context, country string, window source.TimeWindow) ([]source.ASNAggregate, error)
	FetchDailyAggregates(ctx context.Context, country string, window source.TimeWindow) ([]source.DailyAggregate, error)
}

type OutageSource interface {
	FetchOutageEvents(ctx context.Context, entityType, entityCode string, window source.TimeWindow, limit int) ([]source.OutageEvent, error)
	FetchSignal(ctx context.Context, entityType, entityCode string, window source.TimeWindow, datasource string, maxPoints int) ([]source.SignalPoint, error)
}

type TrafficSource interface {
	FetchTrafficAnomalies(ctx context.Context, location string) ([]source.TrafficSample, error)
}

type ProbeSource interface {
	FetchProbeHealth(ctx context.Context, country string) (source.ProbeHealth, error)
}

type Metrics interface {
	RecordFetch(src string, ok bool, latency time.Duration)
	RecordRefresh(outcome string)
	SetOverrideActive(active bool)
	SetEntityStatus(kind, status string, count int)
}

// SourceOutcome tags what each provider contributed to a cycle, so a genuine
// zero-signal provider is distinguishable from an unreachable one.
type SourceOutcome string

const (
	SourceOK     SourceOutcome = "ok"
	SourceEmpty  SourceOutcome = "empty"
	SourceFailed SourceOutcome = "failed"
)

// Counts tallies known ISP verdicts for the dashboard rule.
type Counts struct {
	Online  int `json:"online"`
	Limited int `json:"limited"`
	Offline int `json:"offline"`
	Unknown int `json:"unknown"`
}

// Result is one reconciled aggregation cycle.
type Result struct {
	ISPs        []refdata.ISPStatus      `json:"isps"`
	Regions     []refdata.RegionStatus   `json:"regions"`
	Counts      Counts                   `json:"counts"`
	Overall     status.Status            `json:"overall_status"`
	GeneratedAt time.Time                `json:"generated_at"`
	Synthetic   bool                     `json:"synthetic"`
	Sources     map[string]SourceOutcome `json:"sources"`
}

type Config struct {
	Country  string
	CacheTTL time.Duration
}

// Engine owns the fetch fan-out, normalization, override rules and the cached
// dashboard result.
type Engine struct {
	ooni    AnomalySource
	ioda    OutageSource
	traffic TrafficSource
	probes  ProbeSource
	cache   *cache.Cache
	metrics Metrics
	log     *logging.Logger
	cfg     Config
	now     func() time.Time
}

func NewEngine(ooni AnomalySource, ioda OutageSource, traffic TrafficSource, probes ProbeSource, c *cache.Cache, metrics Metrics, log *logging.Logger, cfg Config) *Engine {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	return &Engine{
		ooni:    ooni,
		ioda:    ioda,
		traffic: traffic,
		probes:  probes,
		cache:   c,
		metrics: metrics,
		log:     log,
		cfg:     cfg,
		now:     time.Now,
	}
}

const (
	keyDashboard = "dashboard"
	keyProbes    = "probes"
)

// Dashboard returns the current aggregation result, serving from cache while
// fresh and falling back to stale data, then synthetic data, before ever
// failing. The dashboard must always have something renderable.
func (e *Engine) Dashboard(ctx context.Context) Result {
	res, err := cache.GetOrFetch(ctx, e.cache, keyDashboard, e.cfg.CacheTTL, e.compute)
	if err != nil {
		e.log.Warn("dashboard falling back to synthetic data", "error", err.Error())
		return e.synthetic()
	}
	return res
}

// Refresh recomputes the aggregation unconditionally and overwrites the
// cached dashboard. Used by the periodic refresh loop and manual refreshes;
// last write wins.
func (e *Engine) Refresh(ctx context.Context) (Result, error) {
	res, err := e.compute(ctx)
	if err != nil {
		return Result{}, err
	}
	e.cache.Set(ctx, keyDashboard, res, e.cfg.CacheTTL)
	return res, nil
}

type fetched struct {
	asnAggs  []source.ASNAggregate
	asnErr   error
	events   []source.OutageEvent
	eventErr error
	traffic  []source.TrafficSample
	trafErr  error
	probes   source.ProbeHealth
	probeErr error
}

// compute runs one full fetch-and-reconcile cycle. Every provider is queried
// concurrently and the reconciliation only starts once all four have settled.
func (e *Engine) compute(ctx context.Context) (Result, error) {
	now := e.now()
	window := source.LastDays(now, 1)

	var f fetched
	var g errgroup.Group
	g.Go(func() error {
		start := e.now()
		f.asnAggs, f.asnErr = e.ooni.FetchASNAggregates(ctx, e.cfg.Country, window)
		e.record("ooni", f.asnErr == nil, e.now().Sub(start))
		return nil
	})
	g.Go(func() error {
		start := e.now()
		f.events, f.eventErr = e.ioda.FetchOutageEvents(ctx, "country", e.cfg.Country, window, 50)
		e.record("ioda", f.eventErr == nil, e.now().Sub(start))
		return nil
	})
	g.Go(func() error {
		start := e.now()
		f.traffic, f.trafErr = e.traffic.FetchTrafficAnomalies(ctx, e.cfg.Country)
		e.record("radar", f.trafErr == nil, e.now().Sub(start))
		return nil
	})
	g.Go(func() error {
		start := e.now()
		f.probes, f.probeErr = e.probes.FetchProbeHealth(ctx, e.cfg.Country)
		e.record("atlas", f.probeErr == nil, e.now().Sub(start))
		return nil
	})
	_ = g.Wait()

	return e.reconcile(now, f)
}

func (e *Engine) record(src string, ok bool, latency time.Duration) {
	if e.metrics == nil {
		return
	}
	e.metrics.RecordFetch(src, ok, latency)
}

func (e *Engine) reconcile(now time.Time, f fetched) (Result, error) {
	outcomes := map[string]SourceOutcome{
		"ooni":  outcomeOf(f.asnErr, len(f.asnAggs) > 0),
		"ioda":  outcomeOf(f.eventErr, len(f.events) > 0),
		"radar": outcomeOf(f.trafErr, len(f.traffic) > 0),
		"atlas": outcomeOf(f.probeErr, f.probes.Connected+f.probes.Disconnected > 0),
	}

	allFailed := true
	for _, o := range outcomes {
		if o != SourceFailed {
			allFailed = false
			break
		}
	}
	if allFailed {
		if e.metrics != nil {
			e.metrics.RecordRefresh("failed")
		}
		return Result{}, ErrAllSourcesFailed
	}

	for src, err := range map[string]error{"ooni": f.asnErr, "ioda": f.eventErr, "radar": f.trafErr, "atlas": f.probeErr} {
		if err != nil {
			e.log.Warn("source degraded to unknown", "source", src, "error", err.Error())
		}
	}

	// Per-ISP statuses from OONI anomaly ratios, keyed through the static
	// ASN table. Unmapped ASNs are ignored; unmeasured ISPs stay unknown.
	ispStatus := make(map[string]status.Status)
	for _, agg := range f.asnAggs {
		ispID, ok := refdata.ISPForASN(agg.ASN)
		if !ok {
			continue
		}
		s := status.FromAnomalyRatio(agg.AnomalyCount, agg.MeasurementCount)
		ispStatus[ispID] = status.Worst(ispStatus[ispID], s)
	}

	// Country-level default from the remaining sources. IODA scores outage
	// severity, so health is its complement.
	iodaStatus := status.Unknown
	for _, ev := range f.events {
		iodaStatus = status.Worst(iodaStatus, status.FromScore(100-ev.Score))
	}
	atlasStatus := status.Unknown
	if f.probeErr == nil {
		atlasStatus = status.FromScore(f.probes.Score())
	}
	trafficStatus := status.Unknown
	if f.trafErr == nil && len(f.traffic) > 0 {
		worstDelta := f.traffic[0].DeltaPct
		for _, s := range f.traffic[1:] {
			if s.DeltaPct < worstDelta {
				worstDelta = s.DeltaPct
			}
		}
		trafficStatus = status.FromTrafficDelta(worstDelta)
	}
	countryDefault := status.WorstOf(iodaStatus, atlasStatus, trafficStatus)

	// Major-outage override: a nationwide traffic collapse outranks per-ISP
	// sampling noise and forces everything offline.
	override := trafficStatus == status.Offline
	if e.metrics != nil {
		e.metrics.SetOverrideActive(override)
	}

	ts := now.Unix()
	isps := make([]refdata.ISPStatus, 0, len(refdata.ISPs()))
	for _, isp := range refdata.ISPs() {
		s, ok := ispStatus[isp.ID]
		if !ok {
			s = status.Unknown
		}
		if override {
			s = status.Offline
		}
		isps = append(isps, refdata.ISPStatus{ISP: isp, Status: s, LastUpdated: ts})
		ispStatus[isp.ID] = s
	}

	regions := make([]refdata.RegionStatus, 0, len(refdata.Regions()))
	for _, region := range refdata.Regions() {
		s := status.Unknown
		for _, ispID := range refdata.ISPsForRegion(region.ID) {
			s = status.Worst(s, ispStatus[ispID])
		}
		if !s.Known() {
			s = countryDefault
		}
		if override {
			s = status.Offline
		}
		regions = append(regions, refdata.RegionStatus{Region: region, Status: s, LastUpdated: ts})
	}

	counts := Counts{}
	for _, isp := range isps {
		switch isp.Status {
		case status.Online:
			counts.Online++
		case status.Limited:
			counts.Limited++
		case status.Offline:
			counts.Offline++
		default:
			counts.Unknown++
		}
	}

	if e.metrics != nil {
		e.metrics.RecordRefresh("live")
		ispTally := map[status.Status]int{}
		for _, s := range isps {
			ispTally[s.Status]++
		}
		regionTally := map[status.Status]int{}
		for _, s := range regions {
			regionTally[s.Status]++
		}
		e.publishCounts("isp", ispTally)
		e.publishCounts("region", regionTally)
	}

	// When no ISP could be measured the country-level signals still carry
	// the verdict.
	overall := OverallStatus(counts)
	if overall == status.Unknown {
		overall = countryDefault
	}

	return Result{
		ISPs:        isps,
		Regions:     regions,
		Counts:      counts,
		Overall:     overall,
		GeneratedAt: now,
		Sources:     outcomes,
	}, nil
}

// OverallStatus applies the dashboard rule: offline when more than half the
// tracked entities are offline; limited when more than a third are limited or
// at least one is offline; otherwise online. No known verdicts at all means
// unknown.
func OverallStatus(c Counts) status.Status {
	known := c.Online + c.Limited + c.Offline
	if known == 0 {
		return status.Unknown
	}
	total := known + c.Unknown
	switch {
	case c.Offline*2 > total:
		return status.Offline
	case c.Limited*3 > total || c.Offline >= 1:
		return status.Limited
	default:
		return status.Online
	}
}

func (e *Engine) publishCounts(kind string, tally map[status.Status]int) {
	for _, s := range []status.Status{status.Online, status.Limited, status.Offline, status.Unknown} {
		e.metrics.SetEntityStatus(kind, string(s), tally[s])
	}
}

func outcomeOf(err error, hasData bool) SourceOutcome {
	switch {
	case err != nil:
		return SourceFailed
	case !hasData:
		return SourceEmpty
	default:
		return SourceOK
	}
}

// synthetic builds the clearly-labelled placeholder result used when every
// source is down and nothing is cached. The pattern is deterministic so tests
// and clients can tell it apart from live data.
func (e *Engine) synthetic() Result {
	if e.metrics != nil {
		e.metrics.RecordRefresh("synthetic")
	}
	now := e.now()
	ts := now.Unix()

	isps := make([]refdata.ISPStatus, 0, len(refdata.ISPs()))
	for i, isp := range refdata.ISPs() {
		s := status.Online
		switch {
		case i == 0:
			s = status.Offline
		case i%2 == 0:
			s = status.Limited
		}
		isps = append(isps, refdata.ISPStatus{ISP: isp, Status: s, LastUpdated: ts})
	}

	regions := make([]refdata.RegionStatus, 0, len(refdata.Regions()))
	for i, region := range refdata.Regions() {
		s := status.Online
		switch {
		case i%3 == 0:
			s = status.Offline
		case i%2 == 0:
			s = status.Limited
		}
		regions = append(regions, refdata.RegionStatus{Region: region, Status: s, LastUpdated: ts})
	}

	counts := Counts{}
	for _, isp := range isps {
		switch isp.Status {
		case status.Online:
			counts.Online++
		case status.Limited:
			counts.Limited++
		case status.Offline:
			counts.Offline++
		}
	}

	return Result{
		ISPs:        isps,
		Regions:     regions,
		Counts:      counts,
		Overall:     status.Limited,
		GeneratedAt: now,
		Synthetic:   true,
		Sources: map[string]SourceOutcome{
			"ooni": SourceFailed, "ioda": SourceFailed, "radar": SourceFailed, "atlas": SourceFailed,
		},
	}
}
