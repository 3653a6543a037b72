// Package telemetry gathers counters from the store and its workers into one
// sample, and exposes them as interval logs and a Prometheus collector.
package telemetry

// CacheMetrics is the counter surface of the store.
type CacheMetrics interface {
	Len() int64
	Mem() int64
	Metrics() (hits, misses, admissionAllowed, admissionRejected, hardEvictedItems, hardEvictedBytes int64)
}

// EvictorMetrics is the counter surface of the soft-limit evictor.
type EvictorMetrics interface {
	Metrics() (scans, hits, evictedItems, evictedBytes int64)
}

// RefresherMetrics is the counter surface of the refresh-ahead worker.
type RefresherMetrics interface {
	Metrics() (affected, errors, scans, hits, misses int64)
}

// FlusherMetrics is the counter surface of the write-behind worker.
type FlusherMetrics interface {
	Metrics() (flushed, retries, failed, requeued int64)
}

// Sample is one point-in-time reading of every counter. Len and Mem are
// gauges, the rest are monotonic totals.
type Sample struct {
	Len int64
	Mem int64

	Hits              int64
	Misses            int64
	AdmissionAllowed  int64
	AdmissionRejected int64
	HardEvictedItems  int64
	HardEvictedBytes  int64

	SoftScans        int64
	SoftHits         int64
	SoftEvictedItems int64
	SoftEvictedBytes int64

	Refreshed     int64
	RefreshErrors int64
	RefreshScans  int64
	RefreshHits   int64
	RefreshMisses int64

	Flushed       int64
	FlushRetries  int64
	FlushFailed   int64
	FlushRequeued int64
}

// HitRatio reports hits over total lookups, zero when no lookups happened.
func (s Sample) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Delta subtracts prev from the counters and keeps the current gauges.
func (s Sample) Delta(prev Sample) Sample {
	return Sample{
		Len: s.Len,
		Mem: s.Mem,

		Hits:              s.Hits - prev.Hits,
		Misses:            s.Misses - prev.Misses,
		AdmissionAllowed:  s.AdmissionAllowed - prev.AdmissionAllowed,
		AdmissionRejected: s.AdmissionRejected - prev.AdmissionRejected,
		HardEvictedItems:  s.HardEvictedItems - prev.HardEvictedItems,
		HardEvictedBytes:  s.HardEvictedBytes - prev.HardEvictedBytes,

		SoftScans:        s.SoftScans - prev.SoftScans,
		SoftHits:         s.SoftHits - prev.SoftHits,
		SoftEvictedItems: s.SoftEvictedItems - prev.SoftEvictedItems,
		SoftEvictedBytes: s.SoftEvictedBytes - prev.SoftEvictedBytes,

		Refreshed:     s.Refreshed - prev.Refreshed,
		RefreshErrors: s.RefreshErrors - prev.RefreshErrors,
		RefreshScans:  s.RefreshScans - prev.RefreshScans,
		RefreshHits:   s.RefreshHits - prev.RefreshHits,
		RefreshMisses: s.RefreshMisses - prev.RefreshMisses,

		Flushed:       s.Flushed - prev.Flushed,
		FlushRetries:  s.FlushRetries - prev.FlushRetries,
		FlushFailed:   s.FlushFailed - prev.FlushFailed,
		FlushRequeued: s.FlushRequeued - prev.FlushRequeued,
	}
}

// Sampler reads every counter source in one pass.
type Sampler struct {
	cache     CacheMetrics
	evictor   EvictorMetrics
	refresher RefresherMetrics
	flusher   FlusherMetrics
}

func NewSampler(cache CacheMetrics, evictor EvictorMetrics, refresher RefresherMetrics, flusher FlusherMetrics) *Sampler {
	return &Sampler{cache: cache, evictor: evictor, refresher: refresher, flusher: flusher}
}

func (s *Sampler) Sample() Sample {
	var out Sample

	out.Len = s.cache.Len()
	out.Mem = s.cache.Mem()
	out.Hits, out.Misses, out.AdmissionAllowed, out.AdmissionRejected,
		out.HardEvictedItems, out.HardEvictedBytes = s.cache.Metrics()

	out.SoftScans, out.SoftHits, out.SoftEvictedItems, out.SoftEvictedBytes = s.evictor.Metrics()
	out.Refreshed, out.RefreshErrors, out.RefreshScans, out.RefreshHits, out.RefreshMisses = s.refresher.Metrics()
	out.Flushed, out.FlushRetries, out.FlushFailed, out.FlushRequeued = s.flusher.Metrics()

	return out
}
