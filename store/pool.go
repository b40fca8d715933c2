// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cortex-dev/cortex/core/resilience"
	"github.com/cortex-dev/cortex/pkg/errors"
)

// endpoint is one pooled backend connection plus its health bookkeeping.
type endpoint struct {
	addr    string
	store   Store
	breaker *resilience.CircuitBreaker

	mu       sync.Mutex
	inFlight int
	lastUsed time.Time
	healthy  atomic.Bool
}

// Pool wraps a set of already-open backend connections with periodic
// health probes that take failing endpoints out of selection, a circuit
// breaker per endpoint, and a choice of load-balancing strategy across
// endpoints. It does not open, close or count connections on its own
// (no min/max sizing), and it does not retry a failed operation.
//
// A Pool of one endpoint backed by MemoryStore or a single SurrealStore
// connection is the common case; multiple endpoints exercise the
// balancer and per-endpoint circuit breaking for a clustered backend.
type Pool struct {
	config    *ConnectionConfig
	endpoints []*endpoint

	mu   sync.Mutex
	next int // round-robin cursor

	stopHealthCheck chan struct{}
}

// NewPool wraps already-constructed backend connections in a Pool. The
// caller is responsible for constructing one Store per endpoint (e.g. one
// SurrealStore per cluster node); NewPool only adds pooling discipline on
// top.
func NewPool(config *ConnectionConfig, backends []Store) (*Pool, error) {
	if config == nil {
		config = DefaultConnectionConfig()
	}
	if len(backends) == 0 {
		return nil, errors.ErrInvalidInput.WithMessage("at least one backend connection is required")
	}

	endpoints := make([]*endpoint, len(backends))
	for i, b := range backends {
		addr := "endpoint"
		if i < len(config.Endpoints) {
			addr = config.Endpoints[i]
		}
		ep := &endpoint{
			addr:  addr,
			store: b,
			breaker: resilience.NewCircuitBreaker(&resilience.CircuitBreakerConfig{
				MaxFailures:         config.CircuitBreakerThreshold,
				Timeout:             config.CircuitBreakerCooldown,
				MaxHalfOpenRequests: 1,
			}),
			lastUsed: time.Now(),
		}
		ep.healthy.Store(true)
		endpoints[i] = ep
	}

	p := &Pool{
		config:          config,
		endpoints:       endpoints,
		stopHealthCheck: make(chan struct{}),
	}
	go p.runHealthChecks()
	return p, nil
}

// runHealthChecks pings every endpoint on an interval derived from the
// idle timeout, marking it unhealthy (and logically evicted from
// selection) when it fails, and healthy again once it recovers.
func (p *Pool) runHealthChecks() {
	interval := p.config.IdleTimeout / 4
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopHealthCheck:
			return
		case <-ticker.C:
			for _, ep := range p.endpoints {
				ctx, cancel := context.WithTimeout(context.Background(), p.config.DialTimeout)
				err := ep.store.Ping(ctx)
				cancel()
				ep.healthy.Store(err == nil)
			}
		}
	}
}

// acquire selects a healthy endpoint per the configured balancer
// strategy and runs fn through its circuit breaker.
func (p *Pool) acquire(ctx context.Context, fn func(Store) error) error {
	ep, err := p.selectEndpoint()
	if err != nil {
		return err
	}

	ep.mu.Lock()
	ep.inFlight++
	ep.mu.Unlock()
	defer func() {
		ep.mu.Lock()
		ep.inFlight--
		ep.lastUsed = time.Now()
		ep.mu.Unlock()
	}()

	err = ep.breaker.Execute(ctx, func(ctx context.Context) error {
		return fn(ep.store)
	})
	if err == resilience.ErrCircuitBreakerOpen {
		return errors.ErrStoreConnection.WithMessage("endpoint circuit open").WithDetail("endpoint", ep.addr)
	}
	return err
}

func (p *Pool) selectEndpoint() (*endpoint, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	healthy := make([]*endpoint, 0, len(p.endpoints))
	for _, ep := range p.endpoints {
		if ep.healthy.Load() {
			healthy = append(healthy, ep)
		}
	}
	if len(healthy) == 0 {
		return nil, errors.ErrStoreConnection.WithMessage("no healthy endpoints available")
	}

	switch p.config.Balancer {
	case BalancerLeastConns:
		best := healthy[0]
		for _, ep := range healthy[1:] {
			ep.mu.Lock()
			bestInFlight := best.inFlight
			epInFlight := ep.inFlight
			ep.mu.Unlock()
			if epInFlight < bestInFlight {
				best = ep
			}
		}
		return best, nil

	case BalancerRandom, BalancerWeighted:
		// Weighted selection degrades to uniform random: the retrieved
		// corpus's pool configs carry no per-endpoint weight field to
		// ground real weights on.
		idx := int(time.Now().UnixNano()) % len(healthy)
		if idx < 0 {
			idx = -idx
		}
		return healthy[idx], nil

	default: // BalancerRoundRobin
		ep := healthy[p.next%len(healthy)]
		p.next++
		return ep, nil
	}
}

func (p *Pool) Execute(ctx context.Context, namespace string, op Op) (*Result, error) {
	var result *Result
	err := p.acquire(ctx, func(s Store) error {
		r, err := s.Execute(ctx, namespace, op)
		result = r
		return err
	})
	return result, err
}

func (p *Pool) ExecuteTransaction(ctx context.Context, namespace string, ops []Op) ([]*Result, error) {
	var results []*Result
	err := p.acquire(ctx, func(s Store) error {
		r, err := s.ExecuteTransaction(ctx, namespace, ops)
		results = r
		return err
	})
	return results, err
}

func (p *Pool) CreateNamespace(ctx context.Context, name string) error {
	return p.acquire(ctx, func(s Store) error { return s.CreateNamespace(ctx, name) })
}

func (p *Pool) DestroyNamespace(ctx context.Context, name string) error {
	return p.acquire(ctx, func(s Store) error { return s.DestroyNamespace(ctx, name) })
}

func (p *Pool) CopyNamespace(ctx context.Context, src, dst string, deep bool) error {
	return p.acquire(ctx, func(s Store) error { return s.CopyNamespace(ctx, src, dst, deep) })
}

func (p *Pool) DefineIndex(ctx context.Context, namespace string, spec IndexSpec) error {
	return p.acquire(ctx, func(s Store) error { return s.DefineIndex(ctx, namespace, spec) })
}

func (p *Pool) VectorSearch(ctx context.Context, namespace, table, field string, query []float32, k int) ([]VectorMatch, error) {
	var matches []VectorMatch
	err := p.acquire(ctx, func(s Store) error {
		m, err := s.VectorSearch(ctx, namespace, table, field, query, k)
		matches = m
		return err
	})
	return matches, err
}

// Ping checks every endpoint and returns an error naming the first
// unreachable one.
func (p *Pool) Ping(ctx context.Context) error {
	for _, ep := range p.endpoints {
		if err := ep.store.Ping(ctx); err != nil {
			return errors.ErrStoreConnection.WithDetail("endpoint", ep.addr).Wrap(err)
		}
	}
	return nil
}

// Close stops the health-check loop and closes every endpoint connection.
func (p *Pool) Close() error {
	close(p.stopHealthCheck)
	var firstErr error
	for _, ep := range p.endpoints {
		if err := ep.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ Store = (*Pool)(nil)
