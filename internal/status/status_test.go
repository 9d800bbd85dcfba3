package status

import "testing"

func TestFromScoreBoundaries(t *testing.T) {
	cases := []struct {
		score float64
		want  Status
	}{
		{100, Online},
		{80, Online},
		{79.9, Limited},
		{40, Limited},
		{39.9, Offline},
		{0, Offline},
		{-1, Unknown},
	}
	for _, tc := range cases {
		if got := FromScore(tc.score); got != tc.want {
			t.Errorf("FromScore(%v) = %v, want %v", tc.score, got, tc.want)
		}
	}
}

func TestFromScoreMonotonic(t *testing.T) {
	prev := FromScore(0)
	for s := 1.0; s <= 100; s++ {
		cur := FromScore(s)
		if cur.Severity() > prev.Severity() {
			t.Fatalf("severity increased from %v to %v at score %v", prev, cur, s)
		}
		prev = cur
	}
}

func TestFromAnomalyRatio(t *testing.T) {
	cases := []struct {
		anomalous, total int
		want             Status
	}{
		{0, 0, Unknown},
		{5, 0, Unknown},
		{6, 10, Offline},
		{51, 100, Offline},
		{5, 10, Limited},
		{3, 10, Limited},
		{2, 10, Online},
		{0, 10, Online},
	}
	for _, tc := range cases {
		if got := FromAnomalyRatio(tc.anomalous, tc.total); got != tc.want {
			t.Errorf("FromAnomalyRatio(%d, %d) = %v, want %v", tc.anomalous, tc.total, got, tc.want)
		}
	}
}

func TestFromTrafficDelta(t *testing.T) {
	cases := []struct {
		delta float64
		want  Status
	}{
		{-100, Offline},
		{-50, Offline},
		{-49.9, Limited},
		{-20, Limited},
		{-19.9, Online},
		{0, Online},
		{10, Online},
	}
	for _, tc := range cases {
		if got := FromTrafficDelta(tc.delta); got != tc.want {
			t.Errorf("FromTrafficDelta(%v) = %v, want %v", tc.delta, got, tc.want)
		}
	}
}

func TestWorstIgnoresUnknown(t *testing.T) {
	if got := Worst(Unknown, Online); got != Online {
		t.Errorf("Worst(Unknown, Online) = %v", got)
	}
	if got := Worst(Limited, Unknown); got != Limited {
		t.Errorf("Worst(Limited, Unknown) = %v", got)
	}
	if got := Worst(Unknown, Unknown); got != Unknown {
		t.Errorf("Worst(Unknown, Unknown) = %v", got)
	}
	if got := Worst(Limited, Offline); got != Offline {
		t.Errorf("Worst(Limited, Offline) = %v", got)
	}
	if got := WorstOf(Online, Limited, Unknown); got != Limited {
		t.Errorf("WorstOf = %v, want limited", got)
	}
}

func TestCategoryForAlert(t *testing.T) {
	cases := []struct {
		score      float64
		trendingUp bool
		want       AlertCategory
	}{
		{95, false, AlertOutage},
		{80, false, AlertOutage},
		{79, false, AlertPartial},
		{50, false, AlertPartial},
		{30, true, AlertRestoration},
		{30, false, AlertInfo},
		{0, false, AlertInfo},
	}
	for _, tc := range cases {
		if got := CategoryForAlert(tc.score, tc.trendingUp); got != tc.want {
			t.Errorf("CategoryForAlert(%v, %v) = %v, want %v", tc.score, tc.trendingUp, got, tc.want)
		}
	}
}
