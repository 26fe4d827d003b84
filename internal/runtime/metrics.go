package runtime

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics counts records moving through the pipeline on both sides
// of the broker. A nil *PipelineMetrics is valid and records nothing.
type PipelineMetrics struct {
	mu sync.RWMutex

	queues map[string]*QueueCounts
	totals producerTotals

	published *prometheus.CounterVec
	fellBack  *prometheus.CounterVec
	dropped   *prometheus.CounterVec
	persisted *prometheus.CounterVec
	rejected  *prometheus.CounterVec
	insertDur *prometheus.HistogramVec

	registerer prometheus.Registerer
	registered bool
}

// QueueCounts holds the in-process totals for one queue.
type QueueCounts struct {
	Published     uint64    `json:"published"`
	Persisted     uint64    `json:"persisted"`
	Rejected      uint64    `json:"rejected"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
}

// MetricsSnapshot is a point-in-time copy of PipelineMetrics.
type MetricsSnapshot struct {
	Published   uint64                  `json:"published"`
	FellBack    uint64                  `json:"fell_back"`
	Dropped     uint64                  `json:"dropped"`
	Persisted   uint64                  `json:"persisted"`
	Rejected    uint64                  `json:"rejected"`
	Queues      map[string]*QueueCounts `json:"queues"`
	CollectedAt time.Time               `json:"collected_at"`
}

type producerTotals struct {
	fellBack uint64
	dropped  uint64
}

func newPipelineCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "logpipe",
			Subsystem: "pipeline",
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

// NewPipelineMetrics builds the collectors. Call Register to expose them.
func NewPipelineMetrics(registerer prometheus.Registerer) *PipelineMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &PipelineMetrics{
		queues:     make(map[string]*QueueCounts),
		registerer: registerer,
		published:  newPipelineCounterVec("published_total", "Records published to their destination queue", []string{"queue", "level"}),
		fellBack:   newPipelineCounterVec("fallback_total", "Records replaced by a Failed record after a publish failure", []string{"level"}),
		dropped:    newPipelineCounterVec("dropped_total", "Records lost after the fallback publish failed too", []string{"level"}),
		persisted:  newPipelineCounterVec("persisted_total", "Records inserted by the queue consumer", []string{"queue", "level"}),
		rejected:   newPipelineCounterVec("rejected_total", "Messages rejected without requeue by the queue consumer", []string{"queue", "reason"}),
		insertDur: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "logpipe",
				Subsystem: "pipeline",
				Name:      "insert_duration_seconds",
				Help:      "Time spent inserting a consumed record",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"queue"},
		),
	}
}

// Register registers the collectors. Calling it again is a no-op.
func (m *PipelineMetrics) Register() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}
	collectors := []prometheus.Collector{m.published, m.fellBack, m.dropped, m.persisted, m.rejected, m.insertDur}
	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	m.registered = true
	return nil
}

func (m *PipelineMetrics) recordPublished(queue, level string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.queueLocked(queue)
	c.Published++
	c.LastUpdatedAt = time.Now()
	m.published.WithLabelValues(queue, level).Inc()
}

func (m *PipelineMetrics) recordFallback(level string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totals.fellBack++
	m.fellBack.WithLabelValues(level).Inc()
}

func (m *PipelineMetrics) recordDropped(level string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totals.dropped++
	m.dropped.WithLabelValues(level).Inc()
}

func (m *PipelineMetrics) recordPersisted(queue, level string, took time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.queueLocked(queue)
	c.Persisted++
	c.LastUpdatedAt = time.Now()
	m.persisted.WithLabelValues(queue, level).Inc()
	m.insertDur.WithLabelValues(queue).Observe(took.Seconds())
}

func (m *PipelineMetrics) recordRejected(queue string, reason RejectReason) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.queueLocked(queue)
	c.Rejected++
	c.LastUpdatedAt = time.Now()
	m.rejected.WithLabelValues(queue, string(reason)).Inc()
}

// Snapshot returns a copy of the in-process totals.
func (m *PipelineMetrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{Queues: make(map[string]*QueueCounts), CollectedAt: time.Now()}
	if m == nil {
		return snap
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	for name, c := range m.queues {
		cp := *c
		snap.Queues[name] = &cp
		snap.Published += c.Published
		snap.Persisted += c.Persisted
		snap.Rejected += c.Rejected
	}
	snap.FellBack = m.totals.fellBack
	snap.Dropped = m.totals.dropped
	return snap
}

// Reset clears every counter.
func (m *PipelineMetrics) Reset() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queues = make(map[string]*QueueCounts)
	m.totals = producerTotals{}
	m.published.Reset()
	m.fellBack.Reset()
	m.dropped.Reset()
	m.persisted.Reset()
	m.rejected.Reset()
	m.insertDur.Reset()
}

func (m *PipelineMetrics) queueLocked(queue string) *QueueCounts {
	if c, ok := m.queues[queue]; ok {
		return c
	}
	c := &QueueCounts{}
	m.queues[queue] = c
	return c
}
