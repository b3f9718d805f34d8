package storage

import (
	"context"
	"sort"
	"sync"

	"gov-submit-admin/internal/model"
)

// MockTaskStore 内存 TaskStore 实现（测试用）
type MockTaskStore struct {
	mu    sync.RWMutex
	tasks map[string]*model.SubmissionTask

	// CreateErr / UpdateErr 错误注入
	CreateErr error
	UpdateErr error
}

var _ TaskStore = (*MockTaskStore)(nil)

// NewMockTaskStore 创建空的内存存储
func NewMockTaskStore() *MockTaskStore {
	return &MockTaskStore{tasks: make(map[string]*model.SubmissionTask)}
}

func (m *MockTaskStore) CreateTask(ctx context.Context, task *model.SubmissionTask) error {
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[task.ID]; ok {
		return ErrDuplicate
	}
	cp := *task
	m.tasks[task.ID] = &cp
	return nil
}

func (m *MockTaskStore) GetTask(ctx context.Context, id string) (*model.SubmissionTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *task
	return &cp, nil
}

func (m *MockTaskStore) UpdateTask(ctx context.Context, task *model.SubmissionTask) error {
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[task.ID]; !ok {
		return ErrNotFound
	}
	cp := *task
	m.tasks[task.ID] = &cp
	return nil
}

func (m *MockTaskStore) ListTasks(ctx context.Context, accountID string, status model.SubmissionStatus, limit, offset int) ([]*model.SubmissionTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*model.SubmissionTask
	for _, t := range m.tasks {
		if accountID != "" && t.AccountID != accountID {
			continue
		}
		if status != "" && t.Status != status {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockTaskStore) FailInFlightTasks(ctx context.Context, reason string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, t := range m.tasks {
		if !t.Status.IsTerminal() {
			t.Status = model.StatusFailed
			t.FailureKind = "process_restart"
			t.FailureDetail = reason
			n++
		}
	}
	return n, nil
}

func (m *MockTaskStore) Close() error {
	return nil
}
