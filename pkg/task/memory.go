package task

import (
	"context"
	"sync"

	"github.com/arcadeflow/agentserver/pkg/model"
)

// InMemoryService is a map-backed Service for dev and tests, grounded on
// the teacher's pkg/task.InMemoryService shape.
type InMemoryService struct {
	mu      sync.RWMutex
	tasks   map[string]*model.AgentTask
	reqIdx  map[string]string
}

// NewInMemoryService constructs an empty InMemoryService.
func NewInMemoryService() *InMemoryService {
	return &InMemoryService{
		tasks:  make(map[string]*model.AgentTask),
		reqIdx: make(map[string]string),
	}
}

var _ Service = (*InMemoryService)(nil)

func (s *InMemoryService) Create(_ context.Context, t *model.AgentTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.tasks[t.TaskID] = &cp
	return nil
}

func (s *InMemoryService) Get(_ context.Context, userID, taskID string) (*model.AgentTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return nil, ErrNotFound
	}
	if err := CheckOwnership(t, userID); err != nil {
		return nil, err
	}
	cp := *t
	return &cp, nil
}

func (s *InMemoryService) Update(_ context.Context, t *model.AgentTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[t.TaskID]; !ok {
		return ErrNotFound
	}
	cp := *t
	s.tasks[t.TaskID] = &cp
	return nil
}

func (s *InMemoryService) IndexRequest(_ context.Context, requestID, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqIdx[requestID] = taskID
	return nil
}

func (s *InMemoryService) ResolveRequest(_ context.Context, requestID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	taskID, ok := s.reqIdx[requestID]
	if !ok {
		return "", ErrNotFound
	}
	return taskID, nil
}
