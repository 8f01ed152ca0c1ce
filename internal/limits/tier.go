package limits

import "github.com/JakeFAU/scrapectl/internal/job"

// Tier is the display urgency of a quota counter.
type Tier string

// Tiers in increasing urgency.
const (
	TierNormal   Tier = "normal"
	TierWarning  Tier = "warning"
	TierCritical Tier = "critical"
)

// Thresholds on remaining/maximum, shared by both severities.
const (
	CriticalRatio = 0.1
	WarningRatio  = 0.3
)

// Assessment is the derived presentation of one LimitItem.
type Assessment struct {
	Item    job.LimitItem `json:"item"`
	Ratio   float64       `json:"ratio"`
	Tier    Tier          `json:"tier"`
	Badge   bool          `json:"badge"`
	Anomaly bool          `json:"anomaly"`
	// UnknownSeverity marks a severity other than gate or warn. Such items
	// are displayed like warn items.
	UnknownSeverity bool `json:"unknown_severity,omitempty"`
}

// Assess derives ratio and tier for item. A zero maximum counts as
// exhausted. Out-of-range counts are flagged, never clamped.
func Assess(item job.LimitItem) Assessment {
	var ratio float64
	if item.Maximum > 0 {
		ratio = float64(item.Current) / float64(item.Maximum)
	}
	tier := TierNormal
	switch {
	case ratio <= CriticalRatio:
		tier = TierCritical
	case ratio <= WarningRatio:
		tier = TierWarning
	}
	return Assessment{
		Item:    item,
		Ratio:   ratio,
		Tier:    tier,
		Badge:   item.Severity == job.SeverityGate && tier == TierCritical,
		Anomaly: item.Current > item.Maximum || item.Current < 0 || item.Maximum < 0,

		UnknownSeverity: !item.Severity.Known(),
	}
}

// AssessAll assesses every item, preserving display order.
func AssessAll(limits job.Limits) []Assessment {
	out := make([]Assessment, 0, len(limits))
	for _, item := range limits {
		out = append(out, Assess(item))
	}
	return out
}
