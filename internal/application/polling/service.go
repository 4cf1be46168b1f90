// Package polling repeatedly fetches authorization data on a fixed interval and hands every
// result to a single consumer.
package polling

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/turtacn/authenticator/internal/domain/models"
	"github.com/turtacn/authenticator/internal/domain/service"
	"github.com/turtacn/authenticator/pkg/clock"
	"github.com/turtacn/authenticator/pkg/logger"
)

// State of a polling Service.
type State int32

const (
	StateStopped State = iota
	StateRunning
)

func (s State) String() string {
	if s == StateRunning {
		return "running"
	}
	return "stopped"
}

// Poll outcomes reported to metrics.
const (
	OutcomePayload  = "payload"
	OutcomeError    = "error"
	OutcomeNotFound = "not_found"
)

// Batch is the result of one fetch: envelopes and errors. A batch with neither means the
// provider returned no payload.
type Batch struct {
	Envelopes []*models.EncryptedData
	Errors    []error
}

// NotFound reports a fetch that returned no payload and no error.
func (b Batch) NotFound() bool { return len(b.Envelopes) == 0 && len(b.Errors) == 0 }

// Outcome classifies the batch for metrics.
func (b Batch) Outcome() string {
	switch {
	case len(b.Errors) > 0:
		return OutcomeError
	case len(b.Envelopes) > 0:
		return OutcomePayload
	default:
		return OutcomeNotFound
	}
}

// Source performs one fetch.
type Source interface {
	Name() string
	Fetch(ctx context.Context) Batch
}

// Sink consumes the batches of the current run. It is called on the poller goroutine.
type Sink func(batch Batch)

// Service drives a Source on a clock ticker. At most one fetch is outstanding at a time and
// results of a detached run are dropped.
type Service struct {
	clock    clock.Clock
	interval time.Duration
	metrics  service.Metrics
	log      logger.Logger

	mu         sync.Mutex
	state      State
	generation uint64
	cancel     context.CancelFunc
	ticker     *clock.Ticker

	inFlight atomic.Bool
}

// NewService creates a new polling Service.
func NewService(clk clock.Clock, interval time.Duration, metrics service.Metrics, log logger.Logger) *Service {
	if metrics == nil {
		metrics = service.NoopMetrics{}
	}
	if log == nil {
		log = logger.NewNoopLogger()
	}
	return &Service{
		clock:    clk,
		interval: interval,
		metrics:  metrics,
		log:      log.WithComponent("PollingService"),
	}
}

// Start begins polling source and delivering to sink. The first fetch is issued immediately.
// Calling Start while running restarts the ticker and replaces the previous run.
func (s *Service) Start(source Source, sink Sink) {
	s.mu.Lock()
	s.detachLocked()
	s.generation++
	gen := s.generation
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.ticker = s.clock.NewTicker(s.interval)
	s.state = StateRunning
	ticker := s.ticker
	s.mu.Unlock()

	s.log.Debug(ctx, "Polling started", logger.Fields{"source": source.Name(), "interval": s.interval.String()})
	go s.loop(ctx, gen, ticker, source, sink)
}

// Stop cancels the ticker and detaches the sink. Safe to call from any goroutine, including
// from within the sink.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateStopped {
		return
	}
	s.detachLocked()
	s.generation++
	s.state = StateStopped
}

// State returns the current state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsRunning reports whether a run is active.
func (s *Service) IsRunning() bool { return s.State() == StateRunning }

func (s *Service) detachLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
}

func (s *Service) isCurrent(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateRunning && s.generation == gen
}

func (s *Service) loop(ctx context.Context, gen uint64, ticker *clock.Ticker, source Source, sink Sink) {
	s.poll(ctx, gen, source, sink)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.poll(ctx, gen, source, sink)
		}
	}
}

func (s *Service) poll(ctx context.Context, gen uint64, source Source, sink Sink) {
	if !s.isCurrent(gen) {
		return
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		s.log.Debug(ctx, "Skipping tick, fetch still in flight", logger.Fields{"source": source.Name()})
		return
	}
	defer s.inFlight.Store(false)

	start := s.clock.Now()
	batch := source.Fetch(ctx)
	s.metrics.RecordPoll(source.Name(), batch.Outcome(), s.clock.Now().Sub(start))

	if ctx.Err() != nil || !s.isCurrent(gen) {
		s.log.Debug(ctx, "Dropping result of detached poll", logger.Fields{"source": source.Name()})
		return
	}
	sink(batch)
}
