package observability

import (
	"io"
	"time"
)

// Metrics is the process-wide registry for the submission pipeline. All
// methods are nil-safe so components can run without metrics wired (tests).
type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec

	llmRequests *CounterVec
	llmLatency  *HistogramVec
	llmInflight *Gauge

	cacheHits   *CounterVec
	cacheMisses *CounterVec

	rateLimited *CounterVec

	transitions *CounterVec
	queueDepth  *Gauge
	retries     *Counter
	breakerOpen *Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		apiRequests: NewCounterVec("api_requests_total", "API requests by route and status.", []string{"route", "status"}),
		apiLatency:  NewHistogramVec("api_request_seconds", "API request latency.", []string{"route"}, nil),
		llmRequests: NewCounterVec("llm_requests_total", "Model provider calls by outcome.", []string{"outcome"}),
		llmLatency:  NewHistogramVec("llm_request_seconds", "Model provider call latency.", []string{"outcome"}, []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60}),
		llmInflight: NewGauge("llm_inflight", "In-flight model provider calls."),
		cacheHits:   NewCounterVec("cache_hits_total", "Shared cache hits by key class.", []string{"class"}),
		cacheMisses: NewCounterVec("cache_misses_total", "Shared cache misses by key class.", []string{"class"}),
		rateLimited: NewCounterVec("rate_limited_total", "Requests rejected by the sliding window.", []string{"action"}),
		transitions: NewCounterVec("submission_transitions_total", "Submission state transitions.", []string{"to"}),
		queueDepth:  NewGauge("submission_queue_depth", "Runnable submissions awaiting a worker."),
		retries:     NewCounter("submission_retries_total", "Background analysis retries."),
		breakerOpen: NewCounter("llm_breaker_open_total", "Calls rejected while the circuit breaker was open."),
	}
}

func (m *Metrics) ObserveAPI(route, status string, latency time.Duration) {
	if m == nil {
		return
	}
	m.apiRequests.Inc(route, status)
	m.apiLatency.Observe(latency.Seconds(), route)
}

func (m *Metrics) LLMCallStarted() {
	if m == nil {
		return
	}
	m.llmInflight.Inc()
}

func (m *Metrics) LLMCallFinished(outcome string, latency time.Duration) {
	if m == nil {
		return
	}
	m.llmInflight.Dec()
	m.llmRequests.Inc(outcome)
	m.llmLatency.Observe(latency.Seconds(), outcome)
}

func (m *Metrics) BreakerRejected() {
	if m == nil {
		return
	}
	m.breakerOpen.Inc()
}

func (m *Metrics) CacheHit(class string) {
	if m == nil {
		return
	}
	m.cacheHits.Inc(class)
}

func (m *Metrics) CacheMiss(class string) {
	if m == nil {
		return
	}
	m.cacheMisses.Inc(class)
}

func (m *Metrics) RateLimited(action string) {
	if m == nil {
		return
	}
	m.rateLimited.Inc(action)
}

func (m *Metrics) Transition(to string) {
	if m == nil {
		return
	}
	m.transitions.Inc(to)
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) Retry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	writers := []interface{ WritePrometheus(io.Writer) error }{
		m.apiRequests, m.apiLatency,
		m.llmRequests, m.llmLatency, m.llmInflight,
		m.cacheHits, m.cacheMisses,
		m.rateLimited,
		m.transitions, m.queueDepth, m.retries, m.breakerOpen,
	}
	for _, wr := range writers {
		if err := wr.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}
