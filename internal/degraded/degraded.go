package degraded

import "time"

// RateSource reports (degradedCount, totalCount) for a source within a window.
// *traffic.Tracker implements it.
type RateSource interface {
	DegradedRate(source string, window time.Duration) (degraded, total int)
}

// SourceStatus is the health of one upstream source over the window.
type SourceStatus struct {
	Source      string `json:"source"`
	Degraded    int    `json:"degraded"`
	Total       int    `json:"total"`
	DegradedPct int    `json:"degradedPct"`
	IsDegraded  bool   `json:"isDegraded"`
}

// Report summarizes every watched source.
type Report struct {
	Sources    []SourceStatus `json:"sources"`
	IsDegraded bool           `json:"isDegraded"`
}

// Evaluate computes per-source degraded ratios over window. A source is degraded when its
// degraded share of fetches is at least thresholdPct. Sources with no fetches in the window
// are reported healthy.
func Evaluate(rates RateSource, sources []string, window time.Duration, thresholdPct int) Report {
	report := Report{Sources: make([]SourceStatus, 0, len(sources))}
	for _, src := range sources {
		d, total := rates.DegradedRate(src, window)
		st := SourceStatus{Source: src, Degraded: d, Total: total}
		if total > 0 {
			st.DegradedPct = d * 100 / total
			st.IsDegraded = d*100 >= thresholdPct*total
		}
		if st.IsDegraded {
			report.IsDegraded = true
		}
		report.Sources = append(report.Sources, st)
	}
	return report
}
