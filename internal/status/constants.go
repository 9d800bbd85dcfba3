package status

// Normalization thresholds. These are fixed design constants shared with the
// mobile client; changing them breaks output compatibility.
const (
	// Score-based sources report 0-100 where higher is healthier.
	ScoreOnlineMin  = 80.0
	ScoreLimitedMin = 40.0

	// Anomaly-ratio sources report anomalous/total measurement counts.
	AnomalyOfflineRatio = 0.5
	AnomalyLimitedRatio = 0.2

	// Traffic-delta sources report percentage change versus baseline.
	TrafficOfflineDelta = -50.0
	TrafficLimitedDelta = -20.0

	// Alert severity tiers derived from provider event scores.
	AlertOutageScore  = 80.0
	AlertPartialScore = 50.0
)
