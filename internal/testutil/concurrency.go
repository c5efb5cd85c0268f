package testutil

import (
	"sync"
	"time"

	"github.com/vk/agentgrid/internal/registry"
	"github.com/vk/agentgrid/internal/scope"
	"github.com/vk/agentgrid/internal/types"
	"github.com/zclconf/go-cty/cty"
)

// MockSleeperModule is a shared, self-contained module for concurrency tests.
// It registers a `nap` operator that sleeps and records, per scope name, when
// each call ran.
type MockSleeperModule struct {
	ExecutionTimes map[string][]*ExecutionRecord
	mu             sync.Mutex
	sleepDuration  time.Duration
	completionChan chan<- string
}

// NewMockSleeperModule creates a new sleeper module for testing.
func NewMockSleeperModule(completionChan chan<- string, sleep time.Duration) *MockSleeperModule {
	return &MockSleeperModule{
		ExecutionTimes: make(map[string][]*ExecutionRecord),
		sleepDuration:  sleep,
		completionChan: completionChan,
	}
}

// Records returns every recorded execution, in no particular order.
func (m *MockSleeperModule) Records() []*ExecutionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*ExecutionRecord
	for _, recs := range m.ExecutionTimes {
		out = append(out, recs...)
	}
	return out
}

// Register registers the "nap" operator.
func (m *MockSleeperModule) Register(r *registry.Registry) {
	r.RegisterOperator(&registry.OperatorProto{
		Name:       "nap",
		Signature:  types.Signature{},
		ReturnType: types.Bool,
		Volatile:   true,
		Fn: func(s *scope.Scope, _ []cty.Value) (cty.Value, error) {
			startTime := time.Now()
			time.Sleep(m.sleepDuration)
			endTime := time.Now()

			m.mu.Lock()
			m.ExecutionTimes[s.Name()] = append(m.ExecutionTimes[s.Name()], &ExecutionRecord{Start: startTime, End: endTime})
			m.mu.Unlock()

			if m.completionChan != nil {
				m.completionChan <- s.Name()
			}
			return cty.True, nil
		},
	})
}
