package core

import (
	"sync"

	"github.com/stagecast/stagecast/internal/domain"
)

// StageRegistry is the single source of truth for which stages exist in
// this process. It is constructed once at startup and passed to the
// gateway explicitly.
type StageRegistry struct {
	engine Engine
	events *EventBroadcaster

	mu     sync.RWMutex
	stages map[domain.StageID]*Stage
}

func NewStageRegistry(engine Engine, events *EventBroadcaster) *StageRegistry {
	return &StageRegistry{
		engine: engine,
		events: events,
		stages: make(map[domain.StageID]*Stage),
	}
}

// GetOrCreate returns the stage for id, creating it on first use.
// Concurrent first callers observe the same instance.
func (r *StageRegistry) GetOrCreate(id domain.StageID) *Stage {
	r.mu.RLock()
	stage, ok := r.stages[id]
	r.mu.RUnlock()
	if ok {
		return stage
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if stage, ok = r.stages[id]; ok {
		return stage
	}
	stage = NewStage(id, r.engine, r.events)
	r.stages[id] = stage
	return stage
}

func (r *StageRegistry) Get(id domain.StageID) (*Stage, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stage, ok := r.stages[id]
	return stage, ok
}

func (r *StageRegistry) StageCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.stages)
}

func (r *StageRegistry) ParticipantCount() int {
	r.mu.RLock()
	stages := make([]*Stage, 0, len(r.stages))
	for _, s := range r.stages {
		stages = append(stages, s)
	}
	r.mu.RUnlock()

	total := 0
	for _, s := range stages {
		total += s.ParticipantCount()
	}
	return total
}
