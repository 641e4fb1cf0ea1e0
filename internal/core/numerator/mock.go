package numerator

import (
	"context"
	"fmt"
	"sync"
)

// MockGenerator is a test implementation of Generator.
// Use in orchestrator unit tests to avoid database dependencies.
type MockGenerator struct {
	NextNumberFunc func(ctx context.Context, entityType string, year int) (string, error)

	mu       sync.Mutex
	counters map[string]int64
}

// NextNumber implements Generator.
func (m *MockGenerator) NextNumber(ctx context.Context, entityType string, year int) (string, error) {
	if m.NextNumberFunc != nil {
		return m.NextNumberFunc(ctx, entityType, year)
	}
	// Default: independent in-process counter per series
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters == nil {
		m.counters = make(map[string]int64)
	}
	key := fmt.Sprintf("%s_%d", entityType, year)
	m.counters[key]++
	return DefaultConfig().Format(year, m.counters[key]), nil
}

// Ensure compile-time interface compliance.
var _ Generator = (*MockGenerator)(nil)
