package jobs

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MemoryCheckpointStore is an in-process CheckpointStore for tests and local
// runs without Redis. States survive only for the process lifetime.
type MemoryCheckpointStore struct {
	mu     sync.Mutex
	states map[string][]byte
}

var _ CheckpointStore = (*MemoryCheckpointStore)(nil)

func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{states: make(map[string][]byte)}
}

// Save stores a serialized copy so callers cannot mutate stored state,
// matching the Redis implementation's semantics.
func (s *MemoryCheckpointStore) Save(_ context.Context, state *JobState) {
	state.CheckpointAt = time.Now().UTC()
	b, err := json.Marshal(state)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.JobID] = b
}

func (s *MemoryCheckpointStore) Load(_ context.Context, jobID string) *JobState {
	s.mu.Lock()
	b, ok := s.states[jobID]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	var state JobState
	if err := json.Unmarshal(b, &state); err != nil {
		return nil
	}
	return &state
}

func (s *MemoryCheckpointStore) Clear(_ context.Context, jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, jobID)
}
