package connectivity

import (
	"context"
	"net/http"
	"sync"
	"time"

	"lotusflow/studiosync/internal/logging"
	"lotusflow/studiosync/internal/metrics"
)

// Quality classifies how usable the current connection is
type Quality int

const (
	QualityNone Quality = iota
	QualityPoor
	QualityGood
	QualityExcellent
)

func (q Quality) String() string {
	switch q {
	case QualityPoor:
		return "poor"
	case QualityGood:
		return "good"
	case QualityExcellent:
		return "excellent"
	default:
		return "none"
	}
}

// ParseQuality maps a config string to a Quality, defaulting to good
func ParseQuality(s string) Quality {
	switch s {
	case "none":
		return QualityNone
	case "poor":
		return QualityPoor
	case "excellent":
		return QualityExcellent
	default:
		return QualityGood
	}
}

// State is one observation of network reachability
type State struct {
	Online    bool
	Quality   Quality
	RTT       time.Duration
	CheckedAt time.Time
}

// Monitor probes a remote endpoint on a timer and classifies quality by
// round-trip latency. It only observes and notifies; sync policy lives with
// the engine's subscribers.
type Monitor struct {
	probeURL string
	interval time.Duration
	client   *http.Client
	metrics  *metrics.MetricsRegistry

	mu    sync.RWMutex
	state State
	subs  []chan State
}

// NewMonitor creates a connectivity monitor. Until the first probe completes
// the state reports offline.
func NewMonitor(probeURL string, interval time.Duration, timeout time.Duration, reg *metrics.MetricsRegistry) *Monitor {
	return &Monitor{
		probeURL: probeURL,
		interval: interval,
		client:   &http.Client{Timeout: timeout},
		metrics:  reg,
	}
}

// Start runs the probe loop until the context is cancelled
func (m *Monitor) Start(ctx context.Context) {
	m.probe(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probe(ctx)
		}
	}
}

// Current returns the latest observed state
func (m *Monitor) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Subscribe returns a channel receiving every state change. Slow consumers
// drop notifications rather than blocking the probe loop.
func (m *Monitor) Subscribe() <-chan State {
	ch := make(chan State, 4)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

// SetState overrides the observed state. Used by tests and by the manual
// offline switch in the API.
func (m *Monitor) SetState(s State) {
	m.publish(s)
}

func (m *Monitor) probe(ctx context.Context) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.probeURL, nil)
	if err != nil {
		m.publish(State{Online: false, Quality: QualityNone, CheckedAt: time.Now().UTC()})
		return
	}

	resp, err := m.client.Do(req)
	rtt := time.Since(start)
	if m.metrics != nil {
		m.metrics.ProbeDuration.Observe(rtt.Seconds())
	}

	if err != nil {
		m.publish(State{Online: false, Quality: QualityNone, CheckedAt: time.Now().UTC()})
		return
	}
	resp.Body.Close()

	if resp.StatusCode >= 500 {
		m.publish(State{Online: false, Quality: QualityNone, RTT: rtt, CheckedAt: time.Now().UTC()})
		return
	}

	m.publish(State{
		Online:    true,
		Quality:   Classify(rtt),
		RTT:       rtt,
		CheckedAt: time.Now().UTC(),
	})
}

// Classify maps probe latency onto the quality ladder
func Classify(rtt time.Duration) Quality {
	switch {
	case rtt <= 150*time.Millisecond:
		return QualityExcellent
	case rtt <= 500*time.Millisecond:
		return QualityGood
	default:
		return QualityPoor
	}
}

func (m *Monitor) publish(s State) {
	m.mu.Lock()
	changed := m.state.Online != s.Online || m.state.Quality != s.Quality
	m.state = s
	subs := m.subs
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.ConnectivityQuality.Set(float64(s.Quality))
	}

	if !changed {
		return
	}

	logging.Info("Connectivity changed",
		"online", s.Online,
		"quality", s.Quality.String(),
		"rtt_ms", s.RTT.Milliseconds(),
	)

	for _, ch := range subs {
		select {
		case ch <- s:
		default:
		}
	}
}
