// Package connectivity tracks whether the machine can reach the internet.
// A background goroutine probes a small set of well-known endpoints on a
// fixed cadence and publishes a snapshot; the command-resolution path only
// ever reads the cached snapshot and never blocks on the network.
package connectivity

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/normanking/jarvis/pkg/types"
)

// Default probe targets. DNS resolvers answer TCP on 53 almost everywhere;
// the HTTPS fallback covers networks that block outbound 53.
var DefaultProbes = []string{"8.8.8.8:53", "1.1.1.1:53", "google.com:443"}

const (
	// DefaultCheckInterval is the background refresh cadence.
	DefaultCheckInterval = 30 * time.Second

	// DefaultProbeTimeout bounds a single dial attempt.
	DefaultProbeTimeout = 2 * time.Second

	// httpFallbackURL is probed when every TCP dial fails.
	httpFallbackURL = "https://www.google.com"

	// httpFallbackTimeout bounds the HTTP fallback probe.
	httpFallbackTimeout = 3 * time.Second
)

// Monitor owns the process-wide connectivity state. Single writer (the
// refresh loop), many readers. The snapshot is replaced wholesale on each
// refresh so readers always see an internally consistent value.
type Monitor struct {
	mu       sync.RWMutex
	state    types.ConnectivityState
	probes   []string
	interval time.Duration
	timeout  time.Duration

	dial         func(ctx context.Context, addr string) error
	httpClient   *http.Client
	httpFallback bool

	started  bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// Option is a functional option for configuring a Monitor.
type Option func(*Monitor)

// WithProbes sets custom probe targets.
func WithProbes(probes []string) Option {
	return func(m *Monitor) {
		if len(probes) > 0 {
			m.probes = probes
		}
	}
}

// WithInterval sets the background refresh cadence.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithProbeTimeout sets the per-dial timeout.
func WithProbeTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithDialFunc overrides the dialer. Used by tests to avoid real sockets;
// the HTTPS fallback is disabled along with it for the same reason.
func WithDialFunc(dial func(ctx context.Context, addr string) error) Option {
	return func(m *Monitor) {
		m.dial = dial
		m.httpFallback = false
	}
}

// NewMonitor creates a Monitor. The initial state is unknown (no probe has
// run); call Refresh or Start before trusting Current.
func NewMonitor(opts ...Option) *Monitor {
	m := &Monitor{
		probes:       DefaultProbes,
		interval:     DefaultCheckInterval,
		timeout:      DefaultProbeTimeout,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
		httpFallback: true,
		httpClient: &http.Client{
			Timeout: httpFallbackTimeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			},
		},
	}
	m.dial = m.dialTCP

	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Monitor) dialTCP(ctx context.Context, addr string) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return conn.Close()
}

// Current returns the last published snapshot without blocking.
func (m *Monitor) Current() types.ConnectivityState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Refresh performs a reachability probe and publishes the result. Probe
// failure or timeout maps to offline; this never returns an error to the
// caller.
func (m *Monitor) Refresh(ctx context.Context) types.ConnectivityState {
	state := types.ConnectivityState{CheckedAt: time.Now()}

	for _, addr := range m.probes {
		probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
		err := m.dial(probeCtx, addr)
		cancel()
		if err == nil {
			state.Online = true
			state.Via = addr
			break
		}
	}

	// TCP probes can all fail on captive or filtered networks that still
	// pass HTTPS. One bounded HTTP attempt before declaring offline.
	if !state.Online && m.httpFallback {
		if m.probeHTTP(ctx) {
			state.Online = true
			state.Via = httpFallbackURL
		}
	}

	m.publish(state)
	return state
}

func (m *Monitor) probeHTTP(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, httpFallbackURL, nil)
	if err != nil {
		return false
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

func (m *Monitor) publish(state types.ConnectivityState) {
	m.mu.Lock()
	prev := m.state
	m.state = state
	m.mu.Unlock()

	if prev.Known() && prev.Online != state.Online {
		log.Info().Bool("online", state.Online).Str("via", state.Via).Msg("connectivity changed")
	} else {
		log.Debug().Bool("online", state.Online).Str("via", state.Via).Msg("connectivity probe")
	}
}

// Start launches the background refresh loop. It probes once immediately so
// the first command does not see an unknown state, then on every interval
// tick until Stop is called or ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	go func() {
		defer close(m.done)

		m.Refresh(ctx)

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.Refresh(ctx)
			case <-m.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop terminates the background loop and waits for it to exit.
// Safe to call when Start was never invoked.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })

	m.mu.RLock()
	started := m.started
	m.mu.RUnlock()
	if started {
		<-m.done
	}
}
