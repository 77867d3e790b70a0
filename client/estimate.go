package client

import (
	"fmt"
	"time"
)

const (
	// historyCap bounds the rolling sample window.
	historyCap = 20
	// minSampleSpan and minPercentDelta gate extrapolation; windows smaller
	// than this are too noisy to derive a rate from.
	minSampleSpan   = 3 * time.Second
	minPercentDelta = 5.0
)

// Per-status fallback constants used before enough samples accumulate.
// The scaled entries are seconds per remaining item, the flat entries are
// absolute guesses for stages without item counts.
const (
	connectingFlatSeconds = 30.0
	syncingPerItemSeconds = 0.5
	syncingFlatSeconds    = 60.0
	parsingPerItemSeconds = 1.0
	parsingFlatSeconds    = 45.0
	embedPerItemSeconds   = 2.0
	embedFlatSeconds      = 90.0
)

type rateSample struct {
	at      time.Time
	percent float64
}

// estimator derives a time-remaining guess from the observed progress rate,
// falling back to per-status heuristics while samples are scarce. Not safe
// for concurrent use; the stream client serializes access.
type estimator struct {
	samples []rateSample
	now     func() time.Time
}

func newEstimator() *estimator {
	return &estimator{now: time.Now}
}

// actualPercent is the client-derived completion percentage: computed from
// item counts when a total is known, otherwise the server's own figure.
// Always clamped to [0,100] since server counts are not trustworthy.
func actualPercent(st *ProgressState) float64 {
	var p float64
	if st.TotalItems > 0 {
		p = float64(st.ProcessedItems) / float64(st.TotalItems) * 100
	} else {
		p = st.PercentComplete
	}
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// observe records a sample for the snapshot if it shows any progress.
func (e *estimator) observe(st *ProgressState) {
	p := actualPercent(st)
	if p <= 0 {
		return
	}
	e.samples = append(e.samples, rateSample{at: e.now(), percent: p})
	if len(e.samples) > historyCap {
		e.samples = e.samples[len(e.samples)-historyCap:]
	}
}

// estimate returns a human-readable time-remaining string, or "" when the
// job is terminal or no sensible guess exists.
func (e *estimator) estimate(st *ProgressState) string {
	if st == nil || st.Status == StatusComplete || st.Status == StatusError {
		return ""
	}
	p := actualPercent(st)

	if len(e.samples) >= 2 {
		first := e.samples[0]
		last := e.samples[len(e.samples)-1]
		span := last.at.Sub(first.at)
		delta := last.percent - first.percent
		if span > minSampleSpan && delta > minPercentDelta {
			rate := delta / span.Seconds()
			remaining := (100 - p) / rate
			return formatEstimate(remaining)
		}
	}
	return formatEstimate(e.heuristic(st))
}

// heuristic guesses remaining seconds from the stage alone.
func (e *estimator) heuristic(st *ProgressState) float64 {
	remaining := st.TotalItems - st.ProcessedItems - st.FailedItems
	if remaining < 0 {
		remaining = 0
	}
	switch st.Status {
	case StatusConnecting:
		return connectingFlatSeconds
	case StatusSyncing:
		if st.TotalItems > 0 {
			return float64(remaining) * syncingPerItemSeconds
		}
		return syncingFlatSeconds
	case StatusParsing:
		if st.TotalItems > 0 {
			return float64(remaining) * parsingPerItemSeconds
		}
		return parsingFlatSeconds
	case StatusEmbedding:
		if st.TotalItems > 0 {
			return float64(remaining) * embedPerItemSeconds
		}
		return embedFlatSeconds
	}
	return 0
}

// formatEstimate buckets a duration into seconds, minutes, or hours and
// minutes.
func formatEstimate(seconds float64) string {
	if seconds <= 0 {
		return ""
	}
	s := int(seconds + 0.5)
	if s < 60 {
		return fmt.Sprintf("about %d %s remaining", s, plural(s, "second"))
	}
	m := s / 60
	if m < 60 {
		return fmt.Sprintf("about %d %s remaining", m, plural(m, "minute"))
	}
	h := m / 60
	m = m % 60
	if m == 0 {
		return fmt.Sprintf("about %d %s remaining", h, plural(h, "hour"))
	}
	return fmt.Sprintf("about %d %s %d %s remaining", h, plural(h, "hour"), m, plural(m, "minute"))
}

func plural(n int, unit string) string {
	if n == 1 {
		return unit
	}
	return unit + "s"
}
