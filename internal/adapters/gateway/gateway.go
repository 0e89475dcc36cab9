// Package gateway normalizes payment gateway callbacks into domain.PaymentEvent.
// Each gateway parses its own body shape and resolves the reference id with an ordered
// list of extractors; the first non-empty value wins.
package gateway

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"eventregistration/internal/domain"
)

// extractor reads one candidate field from a parsed event.
type extractor[E any] func(E) string

// firstMatch returns the first non-empty value produced by extractors, in order.
func firstMatch[E any](ev E, extractors []extractor[E]) string {
	for _, extract := range extractors {
		if v := strings.TrimSpace(extract(ev)); v != "" {
			return v
		}
	}
	return ""
}

func decode(gateway string, payload []byte, dest any) error {
	if err := json.Unmarshal(payload, dest); err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrInvalidPayload, gateway, err)
	}
	return nil
}

// Registry looks gateway adapters up by name.
type Registry struct {
	adapters map[string]domain.GatewayAdapter
}

// NewRegistry returns a registry holding adapters. Names are matched case-insensitively.
func NewRegistry(adapters ...domain.GatewayAdapter) *Registry {
	r := &Registry{adapters: make(map[string]domain.GatewayAdapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[strings.ToLower(a.Name())] = a
	}
	return r
}

// DefaultRegistry returns a registry with every supported gateway.
func DefaultRegistry() *Registry {
	return NewRegistry(NewFlowPay(), NewOpenPix())
}

// Get returns the adapter registered under name.
func (r *Registry) Get(name string) (domain.GatewayAdapter, bool) {
	a, ok := r.adapters[strings.ToLower(strings.TrimSpace(name))]
	return a, ok
}

// Names returns the registered gateway names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
