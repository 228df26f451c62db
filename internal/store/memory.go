package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/panbanda/rehabscore/pkg/models"
	"github.com/panbanda/rehabscore/pkg/norms"
)

// Memory is an in-process store with the same semantics as SQL.
type Memory struct {
	mu        sync.RWMutex
	instances map[string]models.AssessmentInstance
	responses map[string][]models.ItemResponse
	results   map[string][]byte
	norms     map[string]norms.Entry
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		instances: make(map[string]models.AssessmentInstance),
		responses: make(map[string][]models.ItemResponse),
		results:   make(map[string][]byte),
		norms:     make(map[string]norms.Entry),
	}
}

func (m *Memory) CreateInstance(_ context.Context, inst models.AssessmentInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.instances[inst.ID]; ok {
		return fmt.Errorf("instance %s: %w", inst.ID, ErrAlreadyExists)
	}
	if inst.Status == "" {
		inst.Status = models.StatusDraft
	}
	m.instances[inst.ID] = inst
	return nil
}

func (m *Memory) RecordResponses(_ context.Context, id string, responses []models.ItemResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[id]
	if !ok {
		return fmt.Errorf("instance %s: %w", id, ErrNotFound)
	}
	if inst.Status != models.StatusDraft {
		return fmt.Errorf("instance %s (%s): %w", id, inst.Status, ErrNotDraft)
	}
	seen := make(map[[2]int]bool, len(m.responses[id]))
	for _, r := range m.responses[id] {
		seen[[2]int{r.Sequence, r.ItemID}] = true
	}
	for _, r := range responses {
		k := [2]int{r.Sequence, r.ItemID}
		if seen[k] {
			return fmt.Errorf("recording item %d: duplicate sequence %d", r.ItemID, r.Sequence)
		}
		seen[k] = true
	}
	m.responses[id] = append(m.responses[id], responses...)
	return nil
}

func (m *Memory) LoadInstance(_ context.Context, id string) (models.AssessmentInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instances[id]
	if !ok {
		return inst, fmt.Errorf("instance %s: %w", id, ErrNotFound)
	}
	return inst, nil
}

func (m *Memory) ListInstances(_ context.Context, status models.Status) ([]models.AssessmentInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.AssessmentInstance
	for _, inst := range m.instances {
		if status == "" || inst.Status == status {
			out = append(out, inst)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) LoadResponses(_ context.Context, id string) ([]models.ItemResponse, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.ItemResponse, len(m.responses[id]))
	copy(out, m.responses[id])
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Sequence != out[j].Sequence {
			return out[i].Sequence < out[j].Sequence
		}
		return out[i].ItemID < out[j].ItemID
	})
	return out, nil
}

func (m *Memory) UpdateInstanceStatus(_ context.Context, id string, status models.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[id]
	if !ok {
		return fmt.Errorf("instance %s: %w", id, ErrNotFound)
	}
	inst.Status = status
	m.instances[id] = inst
	return nil
}

// SaveScoreResult stores the result and completes the instance under one lock,
// so readers never observe one change without the other.
func (m *Memory) SaveScoreResult(_ context.Context, id string, result *models.ScoreResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return &PersistenceError{Op: "encode score result", Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[id]
	if !ok {
		return &PersistenceError{Op: "save score result", Err: fmt.Errorf("instance %s: %w", id, ErrNotFound)}
	}
	m.results[id] = data
	inst.Status = models.StatusCompleted
	m.instances[id] = inst
	return nil
}

func (m *Memory) LoadScoreResult(_ context.Context, id string) (*models.ScoreResult, error) {
	m.mu.RLock()
	data, ok := m.results[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("result %s: %w", id, ErrNotFound)
	}
	var res models.ScoreResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("decoding result %s: %w", id, err)
	}
	return &res, nil
}

func normsKey(e norms.Entry) string {
	return e.Scale + "\x00" + e.Domain + "\x00" + e.AgeGroup + "\x00" + e.Gender
}

func (m *Memory) LoadNorms(_ context.Context) ([]norms.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.norms))
	for k := range m.norms {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]norms.Entry, 0, len(keys))
	for _, k := range keys {
		out = append(out, m.norms[k])
	}
	return out, nil
}

func (m *Memory) PutNorms(_ context.Context, entries []norms.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		if e.Gender == "" {
			e.Gender = string(models.GenderCombined)
		}
		m.norms[normsKey(e)] = e
	}
	return nil
}
