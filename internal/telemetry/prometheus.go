package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Collector exposes the sampler's counters to Prometheus. It samples on
// scrape, so no background goroutine is needed.
type Collector struct {
	sampler *Sampler

	length   *prometheus.Desc
	memory   *prometheus.Desc
	hits     *prometheus.Desc
	misses   *prometheus.Desc
	hitRatio *prometheus.Desc
	admitted *prometheus.Desc
	rejected *prometheus.Desc
	evicted  *prometheus.Desc
	evictedB *prometheus.Desc
	refresh  *prometheus.Desc
	refErrs  *prometheus.Desc
	flushed  *prometheus.Desc
	flRetry  *prometheus.Desc
	flFailed *prometheus.Desc
}

func NewCollector(namespace string, sampler *Sampler) *Collector {
	if namespace == "" {
		namespace = "stratacache"
	}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, nil)
	}
	return &Collector{
		sampler:  sampler,
		length:   desc("entries", "Number of resident entries."),
		memory:   desc("memory_bytes", "Approximate resident memory in bytes."),
		hits:     desc("hits_total", "Lookups served from the store."),
		misses:   desc("misses_total", "Lookups that fell through to the source."),
		hitRatio: desc("hit_ratio", "Hits over total lookups since start."),
		admitted: desc("admission_allowed_total", "Writes admitted by the frequency filter."),
		rejected: desc("admission_rejected_total", "Writes rejected by the frequency filter."),
		evicted:  desc("evicted_items_total", "Entries removed by hard and soft eviction."),
		evictedB: desc("evicted_bytes_total", "Bytes reclaimed by hard and soft eviction."),
		refresh:  desc("refreshed_total", "Entries renewed by the refresh-ahead worker."),
		refErrs:  desc("refresh_errors_total", "Refresh-ahead loads that returned an error."),
		flushed:  desc("flushed_total", "Dirty entries written to the source."),
		flRetry:  desc("flush_retries_total", "Write-behind retry attempts."),
		flFailed: desc("flush_failed_total", "Write-behind rounds that exhausted all attempts."),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.length
	ch <- c.memory
	ch <- c.hits
	ch <- c.misses
	ch <- c.hitRatio
	ch <- c.admitted
	ch <- c.rejected
	ch <- c.evicted
	ch <- c.evictedB
	ch <- c.refresh
	ch <- c.refErrs
	ch <- c.flushed
	ch <- c.flRetry
	ch <- c.flFailed
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.sampler.Sample()

	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}
	counter := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v)
	}

	gauge(c.length, float64(s.Len))
	gauge(c.memory, float64(s.Mem))
	gauge(c.hitRatio, s.HitRatio())
	counter(c.hits, float64(s.Hits))
	counter(c.misses, float64(s.Misses))
	counter(c.admitted, float64(s.AdmissionAllowed))
	counter(c.rejected, float64(s.AdmissionRejected))
	counter(c.evicted, float64(s.HardEvictedItems+s.SoftEvictedItems))
	counter(c.evictedB, float64(s.HardEvictedBytes+s.SoftEvictedBytes))
	counter(c.refresh, float64(s.Refreshed))
	counter(c.refErrs, float64(s.RefreshErrors))
	counter(c.flushed, float64(s.Flushed))
	counter(c.flRetry, float64(s.FlushRetries))
	counter(c.flFailed, float64(s.FlushFailed))
}
