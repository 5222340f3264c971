package gamemeta

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds optional prometheus collectors for the cache. A nil
// *Metrics or any nil collector is a no-op; callers register the
// collectors they care about.
type Metrics struct {
	LookupTotal    prometheus.Counter
	LookupCreated  prometheus.Counter
	LookupUpgraded prometheus.Counter

	JobsSubmitted prometheus.Counter
	JobsCompleted prometheus.Counter
	JobLatency    prometheus.Histogram

	DecodeTotal  prometheus.Counter
	DecodeErrors prometheus.Counter

	ArtifactHits   prometheus.Counter
	ArtifactMisses prometheus.Counter

	EntriesEvicted prometheus.Counter
}

func (m *Metrics) incCounter(counter prometheus.Counter) {
	if m == nil || counter == nil {
		return
	}
	counter.Inc()
}

func (m *Metrics) observeHistogram(histogram prometheus.Histogram, value float64) {
	if m == nil || histogram == nil {
		return
	}
	histogram.Observe(value)
}

func (m *Metrics) ObserveLookup(created, upgraded bool) {
	if m == nil {
		return
	}
	m.incCounter(m.LookupTotal)
	if created {
		m.incCounter(m.LookupCreated)
	}
	if upgraded {
		m.incCounter(m.LookupUpgraded)
	}
}

func (m *Metrics) ObserveJobSubmitted() {
	m.incCounter(m.JobsSubmitted)
}

func (m *Metrics) ObserveJobDone(d time.Duration) {
	if m == nil {
		return
	}
	m.incCounter(m.JobsCompleted)
	m.observeHistogram(m.JobLatency, d.Seconds())
}

func (m *Metrics) ObserveDecode(err error) {
	if m == nil {
		return
	}
	m.incCounter(m.DecodeTotal)
	if err != nil {
		m.incCounter(m.DecodeErrors)
	}
}

func (m *Metrics) ObserveArtifactLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.incCounter(m.ArtifactHits)
	} else {
		m.incCounter(m.ArtifactMisses)
	}
}

func (m *Metrics) ObserveEviction(n int) {
	if m == nil || m.EntriesEvicted == nil || n <= 0 {
		return
	}
	m.EntriesEvicted.Add(float64(n))
}
