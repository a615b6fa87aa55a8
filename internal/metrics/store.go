package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Finish outcome tags for latency classification
const (
	OutcomeSuccess   = "success"
	OutcomeDuplicate = "duplicate"
	OutcomeException = "exception"
)

// Counter names
const (
	CounterFinishSuccess   = "finish_success"
	CounterFinishDuplicate = "finish_subdomain_duplicate"
	CounterFinishException = "finish_exception"
)

const maxErrorMessageLen = 300

// Settings controls window sizes and thresholds. AbandonThreshold is a
// function, not a value: it is consulted fresh on every Snapshot call so
// maintenance tooling can tighten it at runtime.
type Settings struct {
	AbandonThreshold func() time.Duration
	LatencyWarnP95   float64
	WindowSize       int
	ErrorRingSize    int
}

// LatencySink receives every recorded latency sample. The legacy two-argument
// form (latency, correlation id) predates outcome tagging and is still
// accepted.
type LatencySink func(latency float64, correlationID, outcome string)

// LegacyLatencySink is the pre-outcome sink signature
type LegacyLatencySink func(latency float64, correlationID string)

// ErrorRecord is one entry of the last-errors ring buffer
type ErrorRecord struct {
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Store is the wizard's in-memory metrics service. One instance is constructed
// at process start and injected into the wizard controller; tests construct
// their own. All state is guarded by a single mutex; code paths that need
// nested access go through unexported *Locked helpers instead of re-locking.
//
// The store is process-local by design. In a multi-process deployment each
// worker has an independent metric set unless fronted by an external
// aggregator.
type Store struct {
	mu sync.Mutex

	counters         map[string]int64
	latency          []float64
	latencyByOutcome map[string][]float64

	errors []ErrorRecord

	// inFlight marks sessions currently being processed by a request; the
	// abandonment pruner never touches them mid-request
	inFlight     map[string]struct{}
	lastActivity map[string]time.Time
	startedAt    map[string]time.Time

	abandonDurations []float64
	abandonedTotal   int64

	lastCorrelationID string

	sink     interface{}
	settings Settings
	logger   *logrus.Logger

	now func() time.Time
}

// NewStore creates a metrics store with the given settings
func NewStore(settings Settings, logger *logrus.Logger) *Store {
	if settings.WindowSize <= 0 {
		settings.WindowSize = 500
	}
	if settings.ErrorRingSize <= 0 {
		settings.ErrorRingSize = 50
	}
	if settings.AbandonThreshold == nil {
		settings.AbandonThreshold = func() time.Duration { return 30 * time.Minute }
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Store{
		counters:         make(map[string]int64),
		latencyByOutcome: make(map[string][]float64),
		inFlight:         make(map[string]struct{}),
		lastActivity:     make(map[string]time.Time),
		startedAt:        make(map[string]time.Time),
		settings:         settings,
		logger:           logger,
		now:              time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// SetLatencySink configures an optional callback invoked on every recorded
// latency. Accepts LatencySink, LegacyLatencySink, or the equivalent bare
// func signatures; anything else is ignored. Sink failures never propagate.
func (s *Store) SetLatencySink(sink interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = sink
}

// Increment atomically increments the named counter
func (s *Store) Increment(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[name]++
}

// SetLastCorrelationID records the correlation id of the most recent finish attempt
func (s *Store) SetLastCorrelationID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCorrelationID = id
}

// RecordLatency appends a latency sample (seconds) to the global window and,
// when outcome is one of the recognized tags, to that outcome's window. Both
// windows are fixed-capacity with oldest-first eviction.
func (s *Store) RecordLatency(seconds float64, outcome string) {
	s.mu.Lock()
	s.latency = appendBounded(s.latency, seconds, s.settings.WindowSize)
	switch outcome {
	case OutcomeSuccess, OutcomeDuplicate, OutcomeException:
		s.latencyByOutcome[outcome] = appendBounded(s.latencyByOutcome[outcome], seconds, s.settings.WindowSize)
	}
	sink := s.sink
	correlationID := s.lastCorrelationID
	s.mu.Unlock()

	if sink != nil {
		s.invokeSink(sink, seconds, correlationID, outcome)
	}
}

// invokeSink dispatches to whichever sink signature was configured. Panics in
// sink implementations are swallowed: observability must never take down the
// wizard.
func (s *Store) invokeSink(sink interface{}, latency float64, correlationID, outcome string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithField("panic", r).Warn("latency sink panicked")
		}
	}()

	switch fn := sink.(type) {
	case LatencySink:
		fn(latency, correlationID, outcome)
	case func(float64, string, string):
		fn(latency, correlationID, outcome)
	case LegacyLatencySink:
		fn(latency, correlationID)
	case func(float64, string):
		fn(latency, correlationID)
	}
}

// RegisterError appends a timestamped, truncated error record to the ring buffer
func (s *Store) RegisterError(kind, message string) {
	if len(message) > maxErrorMessageLen {
		message = message[:maxErrorMessageLen]
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, ErrorRecord{Kind: kind, Message: message, Timestamp: s.now()})
	if len(s.errors) > s.settings.ErrorRingSize {
		s.errors = s.errors[len(s.errors)-s.settings.ErrorRingSize:]
	}
}

// RegisterActiveSession marks a session as currently in-flight and records its
// activity. In-flight sessions are exempt from abandonment pruning.
func (s *Store) RegisterActiveSession(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight[key] = struct{}{}
	s.touchLocked(key)
}

// UnregisterActiveSession clears the in-flight mark. The activity record
// stays: abandonment is judged on the next snapshot if the session never
// comes back.
func (s *Store) UnregisterActiveSession(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, key)
}

// ForgetSession drops all tracking for a session that ended deliberately
// (finish or cancel) so it is never counted as abandoned.
func (s *Store) ForgetSession(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, key)
	delete(s.lastActivity, key)
	delete(s.startedAt, key)
}

// TouchActivity records session activity; touching an unseen session also
// records its start time.
func (s *Store) TouchActivity(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked(key)
}

func (s *Store) touchLocked(key string) {
	now := s.now()
	if _, seen := s.startedAt[key]; !seen {
		s.startedAt[key] = now
	}
	s.lastActivity[key] = now
}

// Snapshot computes the full metrics view. Abandonment pruning happens here:
// sessions idle beyond the threshold and not in-flight are counted as
// abandoned exactly once, their lifetime recorded, and their tracking dropped.
func (s *Store) Snapshot() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneAbandonedLocked()

	counters := make(map[string]int64, len(s.counters))
	flat := make(map[string]interface{})
	for name, v := range s.counters {
		counters[name] = v
		// legacy flattened view consumed by older dashboards
		flat["counter_"+name] = v
	}

	byOutcome := make(map[string]interface{}, len(s.latencyByOutcome))
	for outcome, samples := range s.latencyByOutcome {
		byOutcome[outcome] = summarize(samples)
	}

	latencySummary := summarize(s.latency)
	if s.settings.LatencyWarnP95 > 0 {
		if p95, ok := latencySummary["p95"].(float64); ok && p95 > s.settings.LatencyWarnP95 {
			s.logger.WithFields(logrus.Fields{
				"p95":       p95,
				"threshold": s.settings.LatencyWarnP95,
			}).Warn("wizard finish p95 latency above threshold")
		}
	}

	lastErrors := make([]ErrorRecord, len(s.errors))
	copy(lastErrors, s.errors)

	snap := map[string]interface{}{
		"counters":                   counters,
		"latency":                    latencySummary,
		"latency_by_outcome":         byOutcome,
		"last_errors":                lastErrors,
		"active_sessions":            len(s.lastActivity),
		"abandoned_sessions":         s.abandonedTotal,
		"time_to_abandon":            summarize(s.abandonDurations),
		"last_finish_correlation_id": s.lastCorrelationID,
	}
	for k, v := range flat {
		snap[k] = v
	}
	return snap
}

func (s *Store) pruneAbandonedLocked() {
	threshold := s.settings.AbandonThreshold()
	now := s.now()
	for key, last := range s.lastActivity {
		if now.Sub(last) <= threshold {
			continue
		}
		if _, busy := s.inFlight[key]; busy {
			continue
		}
		lifetime := last.Sub(s.startedAt[key]).Seconds()
		s.abandonDurations = appendBounded(s.abandonDurations, lifetime, s.settings.WindowSize)
		s.abandonedTotal++
		delete(s.lastActivity, key)
		delete(s.startedAt, key)
	}
}

// Reset zeroes all counters and clears all sample and tracking structures.
// Used by maintenance tooling and test suites.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters = make(map[string]int64)
	s.latency = nil
	s.latencyByOutcome = make(map[string][]float64)
	s.errors = nil
	s.inFlight = make(map[string]struct{})
	s.lastActivity = make(map[string]time.Time)
	s.startedAt = make(map[string]time.Time)
	s.abandonDurations = nil
	s.abandonedTotal = 0
	s.lastCorrelationID = ""
}

// appendBounded appends keeping at most capacity samples, evicting oldest first
func appendBounded(window []float64, sample float64, capacity int) []float64 {
	window = append(window, sample)
	if len(window) > capacity {
		window = window[len(window)-capacity:]
	}
	return window
}

// summarize computes nearest-rank percentile statistics over a sample window
func summarize(samples []float64) map[string]interface{} {
	if len(samples) == 0 {
		return map[string]interface{}{"count": 0}
	}

	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	return map[string]interface{}{
		"count": len(sorted),
		"p50":   nearestRank(sorted, 50),
		"p90":   nearestRank(sorted, 90),
		"p95":   nearestRank(sorted, 95),
		"p99":   nearestRank(sorted, 99),
		"max":   sorted[len(sorted)-1],
	}
}

// nearestRank returns the nearest-rank percentile of a sorted sample set
func nearestRank(sorted []float64, percentile int) float64 {
	rank := (percentile*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}
