package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus is a MetricsSink backed by github.com/prometheus/client_golang,
// a teacher dependency (kadirpekel-hector/go.mod lists it for its own
// request/latency metrics) that this spec's scope had no component to
// exercise until now — the metrics named here (stage duration, agent
// invocation outcome, cache hit/miss, checkpoint write result) are exactly
// the accounting fields spec §4.9/§8 already requires the Progress
// Emitter to track, now also exported for external scraping.
type Prometheus struct {
	stageDuration    *prometheus.HistogramVec
	agentInvocations *prometheus.CounterVec
	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter
	checkpointWrites *prometheus.CounterVec
}

// NewPrometheus constructs a Prometheus sink and registers its
// collectors against reg. reg is required: the package never reaches for
// prometheus.DefaultRegisterer, so a host application fully controls
// where these metrics end up.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	p := &Prometheus{
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "orchestrator_stage_duration_seconds",
			Help:    "Wall-clock duration of each workflow stage.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		agentInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_agent_invocations_total",
			Help: "Total agent invocations by role and outcome.",
		}, []string{"role", "outcome"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orchestrator_cache_hits_total",
			Help: "Total Result Cache hits.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orchestrator_cache_misses_total",
			Help: "Total Result Cache misses.",
		}),
		checkpointWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_checkpoint_writes_total",
			Help: "Total checkpoint write attempts by result.",
		}, []string{"result"}),
	}

	collectors := []prometheus.Collector{
		p.stageDuration,
		p.agentInvocations,
		p.cacheHits,
		p.cacheMisses,
		p.checkpointWrites,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Prometheus) ObserveStageDuration(stage string, d time.Duration) {
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *Prometheus) IncAgentInvocation(role string, outcome string) {
	p.agentInvocations.WithLabelValues(role, outcome).Inc()
}

func (p *Prometheus) IncCacheHit() { p.cacheHits.Inc() }

func (p *Prometheus) IncCacheMiss() { p.cacheMisses.Inc() }

func (p *Prometheus) IncCheckpointWrite(result string) {
	p.checkpointWrites.WithLabelValues(result).Inc()
}
