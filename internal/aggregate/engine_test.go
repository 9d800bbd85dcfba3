package aggregate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/SepehrMohammady/IranBlackout/internal/cache"
	"github.com/SepehrMohammady/IranBlackout/internal/logging"
	"github.com/SepehrMohammady/IranBlackout/internal/refdata"
	"github.com/SepehrMohammady/IranBlackout/internal/source"
	"github.com/SepehrMohammady/IranBlackout/internal/status"
)

type fakeOONI struct {
	aggs  []source.ASNAggregate
	daily []source.DailyAggregate
	err   error
	calls int
}

func (f *fakeOONI) FetchASNAggregates(context.Context, string, source.TimeWindow) ([]source.ASNAggregate, error) {
	f.calls++
	return f.aggs, f.err
}

func (f *fakeOONI) FetchDailyAggregates(context.Context, string, source.TimeWindow) ([]source.DailyAggregate, error) {
	return f.daily, f.err
}

type fakeIODA struct {
	events []source.OutageEvent
	signal []source.SignalPoint
	err    error
}

func (f *fakeIODA) FetchOutageEvents(context.Context, string, string, source.TimeWindow, int) ([]source.OutageEvent, error) {
	return f.events, f.err
}

func (f *fakeIODA) FetchSignal(context.Context, string, string, source.TimeWindow, string, int) ([]source.SignalPoint, error) {
	return f.signal, f.err
}

type fakeRadar struct {
	samples []source.TrafficSample
	err     error
}

func (f *fakeRadar) FetchTrafficAnomalies(context.Context, string) ([]source.TrafficSample, error) {
	return f.samples, f.err
}

type fakeAtlas struct {
	health source.ProbeHealth
	err    error
}

func (f *fakeAtlas) FetchProbeHealth(context.Context, string) (source.ProbeHealth, error) {
	return f.health, f.err
}

func newTestEngine(ooni AnomalySource, ioda OutageSource, radar TrafficSource, atlas ProbeSource) *Engine {
	log := logging.New("test")
	c := cache.New(cache.NewMemoryStore(), "test:", log)
	return NewEngine(ooni, ioda, radar, atlas, c, nil, log, Config{Country: "IR", CacheTTL: time.Minute})
}

// healthyAggs gives every tracked ISP a clean anomaly ratio.
func healthyAggs() []source.ASNAggregate {
	var aggs []source.ASNAggregate
	for _, isp := range refdata.ISPs() {
		aggs = append(aggs, source.ASNAggregate{ASN: isp.ASNs[0], AnomalyCount: 0, MeasurementCount: 10})
	}
	return aggs
}

func TestOverrideForcesAllOffline(t *testing.T) {
	eng := newTestEngine(
		&fakeOONI{aggs: healthyAggs()},
		&fakeIODA{},
		&fakeRadar{samples: []source.TrafficSample{{DeltaPct: -60}}},
		&fakeAtlas{health: source.ProbeHealth{Connected: 90, Disconnected: 10}},
	)

	res, err := eng.Refresh(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	for _, isp := range res.ISPs {
		if isp.Status != status.Offline {
			t.Errorf("isp %s = %v, want offline under traffic override", isp.ID, isp.Status)
		}
	}
	for _, region := range res.Regions {
		if region.Status != status.Offline {
			t.Errorf("region %s = %v, want offline under traffic override", region.ID, region.Status)
		}
	}
	if res.Overall != status.Offline {
		t.Errorf("overall = %v, want offline", res.Overall)
	}
}

func TestPartialSourceFailureStillAggregates(t *testing.T) {
	eng := newTestEngine(
		&fakeOONI{err: errors.New("http 500")},
		&fakeIODA{events: []source.OutageEvent{{ID: "e1", Score: 5}}},
		&fakeRadar{samples: []source.TrafficSample{{DeltaPct: -5}}},
		&fakeAtlas{health: source.ProbeHealth{Connected: 95, Disconnected: 5}},
	)

	res, err := eng.Refresh(context.Background())
	if err != nil {
		t.Fatalf("expected partial aggregation, got error: %v", err)
	}
	if res.Sources["ooni"] != SourceFailed {
		t.Errorf("ooni outcome = %v, want failed", res.Sources["ooni"])
	}
	for _, isp := range res.ISPs {
		if isp.Status != status.Unknown {
			t.Errorf("isp %s = %v, want unknown without anomaly data", isp.ID, isp.Status)
		}
	}
	// Country-level signals are all healthy, so regions and the overall
	// verdict should still come out online.
	for _, region := range res.Regions {
		if region.Status != status.Online {
			t.Errorf("region %s = %v, want online from country default", region.ID, region.Status)
		}
	}
	if res.Overall != status.Online {
		t.Errorf("overall = %v, want online", res.Overall)
	}
	if res.Synthetic {
		t.Error("partial data must not be labelled synthetic")
	}
}

func TestUnmappedASNIgnoredAndUnmeasuredUnknown(t *testing.T) {
	eng := newTestEngine(
		&fakeOONI{aggs: []source.ASNAggregate{
			{ASN: 197207, AnomalyCount: 0, MeasurementCount: 10}, // mci
			{ASN: 99999, AnomalyCount: 10, MeasurementCount: 10}, // not in the table
		}},
		&fakeIODA{err: errors.New("down")},
		&fakeRadar{err: errors.New("down")},
		&fakeAtlas{err: errors.New("down")},
	)

	res, err := eng.Refresh(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	for _, isp := range res.ISPs {
		want := status.Unknown
		if isp.ID == "mci" {
			want = status.Online
		}
		if isp.Status != want {
			t.Errorf("isp %s = %v, want %v", isp.ID, isp.Status, want)
		}
	}
	if res.Counts.Unknown != len(res.ISPs)-1 {
		t.Errorf("unknown count = %d", res.Counts.Unknown)
	}
}

func TestRegionStatusIsSeverityMaxOfMappedISPs(t *testing.T) {
	aggs := healthyAggs()
	for i := range aggs {
		if aggs[i].ASN == 31549 { // shatel, regional fixed ISP
			aggs[i].AnomalyCount = 8
		}
	}
	eng := newTestEngine(
		&fakeOONI{aggs: aggs},
		&fakeIODA{},
		&fakeRadar{samples: []source.TrafficSample{{DeltaPct: -5}}},
		&fakeAtlas{health: source.ProbeHealth{Connected: 90, Disconnected: 10}},
	)

	res, err := eng.Refresh(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	byID := make(map[string]status.Status)
	for _, r := range res.Regions {
		byID[r.ID] = r.Status
	}
	if byID["IR.TH"] != status.Offline {
		t.Errorf("Tehran = %v, want offline (shatel footprint)", byID["IR.TH"])
	}
	if byID["IR.IL"] != status.Online {
		t.Errorf("Ilam = %v, want online (no shatel footprint)", byID["IR.IL"])
	}
}

func TestAllSourcesFailed(t *testing.T) {
	down := errors.New("unreachable")
	eng := newTestEngine(&fakeOONI{err: down}, &fakeIODA{err: down}, &fakeRadar{err: down}, &fakeAtlas{err: down})

	if _, err := eng.Refresh(context.Background()); !errors.Is(err, ErrAllSourcesFailed) {
		t.Fatalf("expected ErrAllSourcesFailed, got %v", err)
	}

	res := eng.Dashboard(context.Background())
	if !res.Synthetic {
		t.Fatal("expected synthetic dashboard when all sources fail with an empty cache")
	}
	if len(res.ISPs) == 0 || len(res.Regions) == 0 {
		t.Fatal("synthetic result must still be renderable")
	}
}

func TestDashboardServedFromCache(t *testing.T) {
	ooni := &fakeOONI{aggs: healthyAggs()}
	eng := newTestEngine(
		ooni,
		&fakeIODA{},
		&fakeRadar{samples: []source.TrafficSample{{DeltaPct: -5}}},
		&fakeAtlas{health: source.ProbeHealth{Connected: 90, Disconnected: 10}},
	)

	first := eng.Dashboard(context.Background())
	ooni.err = errors.New("now down")
	second := eng.Dashboard(context.Background())

	if ooni.calls != 1 {
		t.Fatalf("expected one upstream fetch, got %d", ooni.calls)
	}
	if !second.GeneratedAt.Equal(first.GeneratedAt) {
		t.Fatal("expected second dashboard to come from cache")
	}
}

func TestOverallStatusRule(t *testing.T) {
	cases := []struct {
		name   string
		counts Counts
		want   status.Status
	}{
		{"six online three limited one offline", Counts{Online: 6, Limited: 3, Offline: 1}, status.Limited},
		{"majority offline", Counts{Online: 1, Limited: 1, Offline: 8}, status.Offline},
		{"over a third limited", Counts{Online: 6, Limited: 4}, status.Limited},
		{"all online", Counts{Online: 10}, status.Online},
		{"single offline among online", Counts{Online: 9, Offline: 1}, status.Limited},
		{"no evidence", Counts{Unknown: 8}, status.Unknown},
	}
	for _, tc := range cases {
		if got := OverallStatus(tc.counts); got != tc.want {
			t.Errorf("%s: OverallStatus = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestTimelineFromDailyAggregates(t *testing.T) {
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	eng := newTestEngine(
		&fakeOONI{daily: []source.DailyAggregate{
			{Day: day, AnomalyCount: 1, MeasurementCount: 10},
			{Day: day.AddDate(0, 0, 1), AnomalyCount: 9, MeasurementCount: 10},
		}},
		&fakeIODA{},
		&fakeRadar{},
		&fakeAtlas{},
	)

	tl := eng.FetchTimeline(context.Background(), 7)
	if tl.Synthetic {
		t.Fatal("expected live timeline")
	}
	if len(tl.Points) != 2 {
		t.Fatalf("got %d points", len(tl.Points))
	}
	if tl.Points[0].Value != 90 || tl.Points[0].Status != status.Online {
		t.Errorf("day one: %+v", tl.Points[0])
	}
	if tl.Points[1].Value != 10 || tl.Points[1].Status != status.Offline {
		t.Errorf("day two: %+v", tl.Points[1])
	}
}

func TestTimelineFallsBackToSignal(t *testing.T) {
	eng := newTestEngine(
		&fakeOONI{err: errors.New("down")},
		&fakeIODA{signal: []source.SignalPoint{
			{Timestamp: 1700000000, Value: 200},
			{Timestamp: 1700003600, Value: 100},
		}},
		&fakeRadar{},
		&fakeAtlas{},
	)

	tl := eng.FetchTimeline(context.Background(), 7)
	if tl.Synthetic {
		t.Fatal("expected signal-backed timeline")
	}
	if len(tl.Points) != 2 {
		t.Fatalf("got %d points", len(tl.Points))
	}
	if tl.Points[0].Value != 100 {
		t.Errorf("peak should normalize to 100, got %v", tl.Points[0].Value)
	}
	if tl.Points[1].Value != 50 {
		t.Errorf("half the peak should be 50, got %v", tl.Points[1].Value)
	}
}

func TestTimelineSyntheticWhenAllDown(t *testing.T) {
	down := errors.New("down")
	eng := newTestEngine(&fakeOONI{err: down}, &fakeIODA{err: down}, &fakeRadar{err: down}, &fakeAtlas{err: down})

	tl := eng.FetchTimeline(context.Background(), 7)
	if !tl.Synthetic {
		t.Fatal("expected synthetic timeline")
	}
	if len(tl.Points) == 0 {
		t.Fatal("synthetic timeline must still have points")
	}
}
