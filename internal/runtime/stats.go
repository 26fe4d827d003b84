package runtime

import (
	"sort"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/logpipe/internal/runtime/jsoncodec"
)

const latencySampleSize = 256

// QueueInfo describes one consumer handler for the web UI.
type QueueInfo struct {
	Name    string      `json:"name"`
	Queue   string      `json:"queue"`
	Accepts []string    `json:"accepts"`
	Stats   *QueueStats `json:"stats"`
}

// QueueStats accumulates per-queue consumer statistics.
type QueueStats struct {
	mu sync.Mutex

	MessagesProcessed uint64            `json:"messages_processed"`
	MessagesPersisted uint64            `json:"messages_persisted"`
	MessagesRejected  uint64            `json:"messages_rejected"`
	Duplicates        uint64            `json:"duplicates"`
	Rejections        RejectedBreakdown `json:"rejections"`
	InFlight          uint64            `json:"in_flight"`
	LastProcessedAt   time.Time         `json:"last_processed_at"`
	Latency           LatencyMetrics    `json:"latency"`

	samples *latencySamples
}

// RejectedBreakdown counts rejections per reason.
type RejectedBreakdown struct {
	Poison    uint64 `json:"poison"`
	Invalid   uint64 `json:"invalid"`
	Persist   uint64 `json:"persist"`
	LastError string `json:"last_error,omitempty"`
}

// LatencyMetrics summarises recent handling times.
type LatencyMetrics struct {
	AverageNs  int64 `json:"average_ns"`
	P50Ns      int64 `json:"p50_ns"`
	P95Ns      int64 `json:"p95_ns"`
	P99Ns      int64 `json:"p99_ns"`
	LastNs     int64 `json:"last_ns"`
	SampleSize int   `json:"sample_size"`
}

func newQueueStats() *QueueStats {
	return &QueueStats{samples: newLatencySamples(latencySampleSize)}
}

func (q *QueueStats) begin() {
	q.mu.Lock()
	q.InFlight++
	q.mu.Unlock()
}

func (q *QueueStats) finish(took time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.InFlight > 0 {
		q.InFlight--
	}
	q.MessagesProcessed++
	q.LastProcessedAt = time.Now().UTC()
	q.samples.add(took)
	q.Latency = q.samples.summary()
}

func (q *QueueStats) persisted() {
	q.mu.Lock()
	q.MessagesPersisted++
	q.mu.Unlock()
}

func (q *QueueStats) duplicate() {
	q.mu.Lock()
	q.Duplicates++
	q.mu.Unlock()
}

func (q *QueueStats) rejected(err *RejectedMessageError) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.MessagesRejected++
	switch err.Reason {
	case RejectPoison:
		q.Rejections.Poison++
	case RejectInvalid:
		q.Rejections.Invalid++
	default:
		q.Rejections.Persist++
	}
	q.Rejections.LastError = err.Err.Error()
}

// Snapshot returns a copy safe to read without locking.
func (q *QueueStats) Snapshot() *QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return &QueueStats{
		MessagesProcessed: q.MessagesProcessed,
		MessagesPersisted: q.MessagesPersisted,
		MessagesRejected:  q.MessagesRejected,
		Duplicates:        q.Duplicates,
		Rejections:        q.Rejections,
		InFlight:          q.InFlight,
		LastProcessedAt:   q.LastProcessedAt,
		Latency:           q.Latency,
	}
}

func (q *QueueStats) MarshalJSON() ([]byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	type plain QueueStats
	return jsoncodec.Marshal((*plain)(q))
}

// wrapHandlerWithStats times every message handled by h.
func wrapHandlerWithStats(h message.NoPublishHandlerFunc, stats *QueueStats) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		stats.begin()
		start := time.Now()
		err := h(msg)
		stats.finish(time.Since(start))
		return err
	}
}

// latencySamples is a fixed-size ring of recent durations.
type latencySamples struct {
	ring  []int64
	next  int
	count int
	total int64
	seen  int64
	last  int64
}

func newLatencySamples(size int) *latencySamples {
	return &latencySamples{ring: make([]int64, size)}
}

func (l *latencySamples) add(d time.Duration) {
	ns := int64(d)
	l.ring[l.next] = ns
	l.next = (l.next + 1) % len(l.ring)
	if l.count < len(l.ring) {
		l.count++
	}
	l.last = ns
	l.total += ns
	l.seen++
}

func (l *latencySamples) summary() LatencyMetrics {
	out := LatencyMetrics{LastNs: l.last, SampleSize: l.count}
	if l.count == 0 {
		return out
	}
	sorted := make([]int64, l.count)
	copy(sorted, l.ring[:l.count])
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	out.P50Ns = nearestRank(sorted, 50)
	out.P95Ns = nearestRank(sorted, 95)
	out.P99Ns = nearestRank(sorted, 99)
	out.AverageNs = l.total / l.seen
	return out
}

// nearestRank returns the pct-th percentile of sorted.
func nearestRank(sorted []int64, pct int) int64 {
	rank := (pct*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}
