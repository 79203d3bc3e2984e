package gateway

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/lishushu94/provider-console/internal/domain"
	"github.com/lishushu94/provider-console/internal/upstream"
)

// ErrorClass buckets a failed call for usage accounting.
type ErrorClass string

const (
	ClassNone    ErrorClass = ""
	Class4xx     ErrorClass = "4xx"
	Class5xx     ErrorClass = "5xx"
	Class429     ErrorClass = "429"
	ClassTimeout ErrorClass = "timeout"
)

// ClassifyError maps a connector error to its usage class.
func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ClassNone
	}

	var tErr *upstream.ThrottleError
	if errors.As(err, &tErr) {
		return Class429
	}

	var sErr *upstream.StatusError
	if errors.As(err, &sErr) {
		switch {
		case sErr.Code == 429:
			return Class429
		case sErr.Code >= 500:
			return Class5xx
		case sErr.Code >= 400:
			return Class4xx
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTimeout
	}

	// Unclassified transport failures count against the upstream.
	return Class5xx
}

// Observation is one finished gateway call.
type Observation struct {
	ProviderID string
	Timestamp  time.Time
	LatencyMs  float64
	Class      ErrorClass
}

// UsageStorage is the recorder's persistence contract.
type UsageStorage interface {
	InsertUsageBatch(ctx context.Context, buckets []domain.UsageBucket) error
}

// UsageRecorder aggregates per-call observations into minute buckets and
// flushes them to Postgres on a timer. Same shape as the audit trail:
// buffered channel, single worker, load shedding, full drain on Stop.
type UsageRecorder struct {
	ch      chan Observation
	repo    UsageStorage
	logger  *zap.Logger
	metrics *Metrics
	wg      sync.WaitGroup

	flushInterval time.Duration

	// 0 open, 1 closed.
	isClosed int32
}

func NewUsageRecorder(repo UsageStorage, logger *zap.Logger, metrics *Metrics, bufferSize int, flushInterval time.Duration) *UsageRecorder {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &UsageRecorder{
		ch:            make(chan Observation, bufferSize),
		repo:          repo,
		logger:        logger.With(zap.String("mod", "usage-recorder")),
		metrics:       metrics,
		flushInterval: flushInterval,
	}
}

func (r *UsageRecorder) Start() {
	r.wg.Add(1)
	go r.worker()
}

// Stop closes the intake and waits for the final flush.
func (r *UsageRecorder) Stop() {
	atomic.StoreInt32(&r.isClosed, 1)
	time.Sleep(10 * time.Millisecond)

	r.logger.Info("stopping usage recorder: flushing buffer")
	close(r.ch)
	r.wg.Wait()
	r.logger.Info("usage recorder stopped gracefully")
}

func (r *UsageRecorder) Record(obs Observation) {
	if obs.Timestamp.IsZero() {
		obs.Timestamp = time.Now()
	}

	if atomic.LoadInt32(&r.isClosed) == 1 {
		return
	}

	// Load shedding: usage accounting never blocks the request path.
	select {
	case r.ch <- obs:
		if r.metrics != nil {
			r.metrics.UsageBufferFill.Set(float64(len(r.ch)))
		}
	default:
		r.logger.Error("usage_buffer_overflow", zap.String("provider_id", obs.ProviderID))
	}
}

// accumulator collects one (provider, minute) bucket in progress.
type accumulator struct {
	providerID  string
	windowStart time.Time

	total       int64
	err4xx      int64
	err5xx      int64
	err429      int64
	errTimeout  int64
	latenciesMs []float64
}

func (r *UsageRecorder) worker() {
	defer r.wg.Done()

	buckets := make(map[string]*accumulator)
	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(buckets) == 0 {
			return
		}
		batch := make([]domain.UsageBucket, 0, len(buckets))
		for _, acc := range buckets {
			batch = append(batch, acc.finish())
		}
		// Background context: the final flush must land even if the app
		// context is already cancelled.
		if err := r.repo.InsertUsageBatch(context.Background(), batch); err != nil {
			r.logger.Error("usage flush failed", zap.Error(err))
		}
		for k := range buckets {
			delete(buckets, k)
		}
	}

	for {
		select {
		case obs, ok := <-r.ch:
			if !ok {
				flush()
				r.logger.Info("usage worker finished")
				return
			}
			r.accumulate(buckets, obs)
		case <-ticker.C:
			flush()
		}
	}
}

func (r *UsageRecorder) accumulate(buckets map[string]*accumulator, obs Observation) {
	window := obs.Timestamp.Truncate(time.Minute)
	key := obs.ProviderID + "|" + window.Format(time.RFC3339)

	acc, ok := buckets[key]
	if !ok {
		acc = &accumulator{providerID: obs.ProviderID, windowStart: window}
		buckets[key] = acc
	}

	acc.total++
	switch obs.Class {
	case Class4xx:
		acc.err4xx++
	case Class5xx:
		acc.err5xx++
	case Class429:
		acc.err429++
	case ClassTimeout:
		acc.errTimeout++
	}
	acc.latenciesMs = append(acc.latenciesMs, obs.LatencyMs)
}

// finish computes the bucket's latency percentiles from the raw samples.
func (a *accumulator) finish() domain.UsageBucket {
	sort.Float64s(a.latenciesMs)

	return domain.UsageBucket{
		ProviderID: a.providerID,
		MetricPoint: domain.MetricPoint{
			WindowStart:   a.windowStart,
			TotalRequests: a.total,
			Error4xx:      a.err4xx,
			Error5xx:      a.err5xx,
			Error429:      a.err429,
			ErrorTimeout:  a.errTimeout,
			LatencyP50Ms:  percentile(a.latenciesMs, 0.50),
			LatencyP95Ms:  percentile(a.latenciesMs, 0.95),
			LatencyP99Ms:  percentile(a.latenciesMs, 0.99),
		},
	}
}

// percentile uses nearest-rank on a sorted slice.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(p * float64(len(sorted)))
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}
