package exchange

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// CredentialsLookup resolves credentials for a supported exchange by
// name; the market-source price watcher (spec §4.E) typically needs
// no credentials at all (it only reads a public order book), so a
// zero-value Credentials is valid for read-only adapters.
type CredentialsLookup func(exchangeName string) Credentials

// Registry resolves and caches one Adapter per exchange name, so the
// price watcher's market source (spec §4.E) can reach any supported
// venue without reconnecting every tick. Grounded on the teacher's
// name-keyed adapter construction in factory.go, widened from "one
// adapter for the whole process" to "one adapter per distinct name,
// built lazily and cached."
type Registry struct {
	creds  CredentialsLookup
	logger *zap.SugaredLogger

	mu       sync.Mutex
	adapters map[string]Adapter
}

// NewRegistry builds a Registry. creds may be nil, in which case every
// adapter is constructed with zero-value Credentials.
func NewRegistry(creds CredentialsLookup, logger *zap.SugaredLogger) *Registry {
	return &Registry{creds: creds, logger: logger, adapters: make(map[string]Adapter)}
}

// Adapter returns the cached adapter for exchangeName, constructing
// and caching it on first use. Satisfies pricewatcher.AdapterProvider.
func (r *Registry) Adapter(ctx context.Context, exchangeName string) (Adapter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.adapters[exchangeName]; ok {
		return a, nil
	}

	if !IsSupported(exchangeName) {
		return nil, fmt.Errorf("exchange registry: %s is not a supported exchange", exchangeName)
	}

	var creds Credentials
	if r.creds != nil {
		creds = r.creds(exchangeName)
	}

	a, err := New(exchangeName, creds, r.logger)
	if err != nil {
		return nil, err
	}
	r.adapters[exchangeName] = a
	return a, nil
}

// Close closes every adapter this registry has constructed.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for name, a := range r.adapters {
		if err := a.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing %s adapter: %w", name, err)
		}
	}
	return firstErr
}
