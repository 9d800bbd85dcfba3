// Package status defines the shared connectivity vocabulary and the pure
// mapping functions that reduce each upstream source's raw metric to it.
package status

// Status is the four-state connectivity verdict shared across all sources.
type Status string

const (
	Unknown Status = "unknown"
	Online  Status = "online"
	Limited Status = "limited"
	Offline Status = "offline"
)

// Severity orders known statuses from healthiest to worst. Unknown carries no
// evidence and sorts below everything.
func (s Status) Severity() int {
	switch s {
	case Online:
		return 0
	case Limited:
		return 1
	case Offline:
		return 2
	default:
		return -1
	}
}

// Known reports whether the status carries evidence.
func (s Status) Known() bool {
	return s == Online || s == Limited || s == Offline
}

// Worst returns the more severe of two statuses. A known status always wins
// over Unknown; two Unknowns stay Unknown.
func Worst(a, b Status) Status {
	if !a.Known() {
		return b
	}
	if !b.Known() {
		return a
	}
	if b.Severity() > a.Severity() {
		return b
	}
	return a
}

// WorstOf folds Worst over a set of statuses.
func WorstOf(statuses ...Status) Status {
	out := Unknown
	for _, s := range statuses {
		out = Worst(out, s)
	}
	return out
}

// FromScore maps a 0-100 health score to a status. Negative scores mean the
// source had no data for the entity.
func FromScore(score float64) Status {
	switch {
	case score < 0:
		return Unknown
	case score >= ScoreOnlineMin:
		return Online
	case score >= ScoreLimitedMin:
		return Limited
	default:
		return Offline
	}
}

// FromAnomalyRatio maps a count of anomalous measurements over a total to a
// status. Zero total measurements is no evidence, not a healthy network.
func FromAnomalyRatio(anomalous, total int) Status {
	if total <= 0 {
		return Unknown
	}
	ratio := float64(anomalous) / float64(total)
	switch {
	case ratio > AnomalyOfflineRatio:
		return Offline
	case ratio > AnomalyLimitedRatio:
		return Limited
	default:
		return Online
	}
}

// FromTrafficDelta maps a percentage traffic change versus baseline to a
// status. A collapse past TrafficOfflineDelta is the major-outage override
// signal consumed by the aggregation engine.
func FromTrafficDelta(deltaPct float64) Status {
	switch {
	case deltaPct <= TrafficOfflineDelta:
		return Offline
	case deltaPct <= TrafficLimitedDelta:
		return Limited
	default:
		return Online
	}
}

// AlertCategory classifies provider alert events for the notification feed.
type AlertCategory string

const (
	AlertOutage      AlertCategory = "outage"
	AlertPartial     AlertCategory = "partial"
	AlertRestoration AlertCategory = "restoration"
	AlertInfo        AlertCategory = "info"
)

// CategoryForAlert maps a provider event score and signal direction to an
// alert category.
func CategoryForAlert(score float64, trendingUp bool) AlertCategory {
	switch {
	case score >= AlertOutageScore:
		return AlertOutage
	case score >= AlertPartialScore:
		return AlertPartial
	case trendingUp:
		return AlertRestoration
	default:
		return AlertInfo
	}
}
