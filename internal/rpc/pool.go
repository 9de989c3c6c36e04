// Package rpc routes all chain I/O through an ordered list of JSON-RPC
// endpoints with health tracking and sequential failover. Every other
// component that touches the network goes through Pool.Do.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	solrpc "github.com/gagliardetto/solana-go/rpc"

	"github.com/ordbridge/teleburnd/internal/logging"
	"github.com/ordbridge/teleburnd/internal/util"
)

const (
	defaultMaxConsecutiveErrors = 3
	defaultProbeInterval        = 30 * time.Second
	ewmaAlpha                   = 0.3
	defaultInitialLatency       = 100 * time.Millisecond
)

// ErrUnavailable is surfaced only after every endpoint in the failover list
// has been tried and failed.
var ErrUnavailable = errors.New("rpc unavailable: all endpoints failed")

// Observer receives pool events, typically for metrics.
type Observer interface {
	RPCResult(url string, ok bool, latency time.Duration)
	Failover(from, to string)
}

// Endpoint tracks the health state of a single RPC endpoint.
// Mutated only by the pool.
type Endpoint struct {
	URL             string
	Client          *solrpc.Client
	Healthy         bool
	ConsecutiveErrs int
	LastChecked     time.Time
	Latency         time.Duration
	latencySamples  int
}

// EndpointStatus is an immutable health snapshot for reporting.
type EndpointStatus struct {
	URL             string        `json:"url"`
	Healthy         bool          `json:"healthy"`
	ConsecutiveErrs int           `json:"consecutive_errors"`
	LastChecked     time.Time     `json:"last_checked"`
	Latency         time.Duration `json:"latency"`
}

// Pool is an ordered endpoint list [primary, backups...] with a background
// health probe. Failover is strictly sequential and bounded by the list
// length; there is no backoff beyond "try the next endpoint", so callers
// impose their own overall timeout via ctx.
type Pool struct {
	mu        sync.RWMutex
	endpoints []*Endpoint
	maxErrors int

	probeInterval time.Duration
	running       bool
	stopCh        chan struct{}

	observer Observer
}

// NewPool creates a pool from an ordered endpoint list. All endpoints start
// healthy; position in the list is the failover order.
func NewPool(urls []string) (*Pool, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("rpc pool needs at least one endpoint")
	}
	endpoints := make([]*Endpoint, len(urls))
	for i, u := range urls {
		endpoints[i] = &Endpoint{
			URL:     u,
			Client:  solrpc.New(u),
			Healthy: true,
			Latency: defaultInitialLatency,
		}
	}
	return &Pool{
		endpoints:     endpoints,
		maxErrors:     defaultMaxConsecutiveErrors,
		probeInterval: defaultProbeInterval,
		stopCh:        make(chan struct{}),
	}, nil
}

// SetProbeInterval sets the background health-check interval.
func (p *Pool) SetProbeInterval(d time.Duration) {
	p.probeInterval = d
}

// SetObserver sets the pool event observer.
func (p *Pool) SetObserver(o Observer) {
	p.observer = o
}

// Do runs op against the first healthy endpoint, failing over in list order.
// Unhealthy endpoints are kept as a last resort so a fully-demoted pool
// still gets one attempt per endpoint before ErrUnavailable.
func (p *Pool) Do(ctx context.Context, op func(ctx context.Context, client *solrpc.Client) error) error {
	ordered := p.ordered()

	var lastErr error
	for i, ep := range ordered {
		if err := ctx.Err(); err != nil {
			return err
		}

		start := time.Now()
		err := op(ctx, ep.Client)
		latency := time.Since(start)

		if err == nil {
			p.recordSuccess(ep.URL, latency)
			if p.observer != nil {
				p.observer.RPCResult(ep.URL, true, latency)
			}
			return nil
		}

		// Context errors are the caller's, not the endpoint's.
		if ctx.Err() != nil {
			return err
		}

		p.recordError(ep.URL)
		if p.observer != nil {
			p.observer.RPCResult(ep.URL, false, latency)
		}
		lastErr = err

		if i+1 < len(ordered) {
			logging.Warn("rpc call failed, failing over",
				logging.Endpoint(ep.URL),
				"next", ordered[i+1].URL,
				logging.Err(err),
				logging.Component("rpc"))
			if p.observer != nil {
				p.observer.Failover(ep.URL, ordered[i+1].URL)
			}
		}
	}

	return fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

// ordered returns endpoints in failover order: healthy in list order first,
// then unhealthy in list order.
func (p *Pool) ordered() []*Endpoint {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*Endpoint, 0, len(p.endpoints))
	for _, ep := range p.endpoints {
		if ep.Healthy {
			out = append(out, ep)
		}
	}
	for _, ep := range p.endpoints {
		if !ep.Healthy {
			out = append(out, ep)
		}
	}
	return out
}

func (p *Pool) recordSuccess(url string, latency time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ep := p.find(url)
	if ep == nil {
		return
	}

	wasUnhealthy := !ep.Healthy
	ep.ConsecutiveErrs = 0
	ep.Healthy = true
	ep.LastChecked = time.Now()

	if ep.latencySamples == 0 {
		ep.Latency = latency
	} else {
		ep.Latency = time.Duration(
			ewmaAlpha*float64(latency) + (1-ewmaAlpha)*float64(ep.Latency),
		)
	}
	ep.latencySamples++

	if wasUnhealthy {
		logging.Info("rpc endpoint recovered", logging.Endpoint(url), logging.Component("rpc"))
	}
}

func (p *Pool) recordError(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ep := p.find(url)
	if ep == nil {
		return
	}

	ep.ConsecutiveErrs++
	ep.LastChecked = time.Now()

	if ep.Healthy && ep.ConsecutiveErrs >= p.maxErrors {
		ep.Healthy = false
		logging.Warn("rpc endpoint marked unhealthy",
			logging.Endpoint(url),
			"consecutive_errors", ep.ConsecutiveErrs,
			logging.Component("rpc"))
	}
}

// find returns the endpoint with the given URL (must hold lock).
func (p *Pool) find(url string) *Endpoint {
	for _, ep := range p.endpoints {
		if ep.URL == url {
			return ep
		}
	}
	return nil
}

// Snapshot returns the current health state of every endpoint.
func (p *Pool) Snapshot() []EndpointStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]EndpointStatus, len(p.endpoints))
	for i, ep := range p.endpoints {
		out[i] = EndpointStatus{
			URL:             ep.URL,
			Healthy:         ep.Healthy,
			ConsecutiveErrs: ep.ConsecutiveErrs,
			LastChecked:     ep.LastChecked,
			Latency:         ep.Latency,
		}
	}
	return out
}

// Len returns the number of endpoints in the failover list.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.endpoints)
}

// Start begins the background health probe. Idempotent.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.mu.Unlock()

	util.SafeGo("rpc-endpoint-probe", func() {
		ticker := time.NewTicker(p.probeInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.probeAll(ctx)
			}
		}
	})
}

// Stop stops the background probe.
func (p *Pool) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	p.running = false

	select {
	case <-p.stopCh:
	default:
		close(p.stopCh)
	}
}

// probeAll runs a health check against every endpoint and promotes or
// demotes based on the result.
func (p *Pool) probeAll(ctx context.Context) {
	for _, ep := range p.snapshotEndpoints() {
		probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		start := time.Now()
		out, err := ep.Client.GetHealth(probeCtx)
		cancel()

		if err != nil || out != solrpc.HealthOk {
			p.recordError(ep.URL)
			continue
		}
		p.recordSuccess(ep.URL, time.Since(start))
	}
}

func (p *Pool) snapshotEndpoints() []*Endpoint {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]*Endpoint(nil), p.endpoints...)
}
