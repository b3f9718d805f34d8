// Package eventbus 事件总线 mock 实现
package eventbus

import (
	"context"
	"sync"
)

// ============================================================================
// NoOpEventBus - 空操作的 EventBus 实现
// ============================================================================

// NoOpEventBus 不做任何操作的 TaskEventBus 实现，Redis 未启用时使用
type NoOpEventBus struct{}

var _ TaskEventBus = (*NoOpEventBus)(nil)

// NewNoOpEventBus 创建 NoOpEventBus 实例
func NewNoOpEventBus() *NoOpEventBus {
	return &NoOpEventBus{}
}

func (e *NoOpEventBus) PublishTaskEvent(ctx context.Context, taskID string, event *TaskEvent) error {
	return nil
}

func (e *NoOpEventBus) GetTaskEvents(ctx context.Context, taskID string, fromID string, count int64) ([]*TaskEvent, error) {
	return []*TaskEvent{}, nil
}

func (e *NoOpEventBus) SubscribeTaskEvents(ctx context.Context, taskID string) (<-chan *TaskEvent, error) {
	ch := make(chan *TaskEvent)
	close(ch)
	return ch, nil
}

func (e *NoOpEventBus) DeleteTaskEvents(ctx context.Context, taskID string) error {
	return nil
}

func (e *NoOpEventBus) Close() error {
	return nil
}

// ============================================================================
// RecordingEventBus - 记录事件的实现（测试用）
// ============================================================================

// RecordingEventBus 把发布的事件记录在内存中供测试断言
type RecordingEventBus struct {
	mu     sync.Mutex
	Events []*TaskEvent
}

var _ TaskEventBus = (*RecordingEventBus)(nil)

// NewRecordingEventBus 创建 RecordingEventBus 实例
func NewRecordingEventBus() *RecordingEventBus {
	return &RecordingEventBus{}
}

func (e *RecordingEventBus) PublishTaskEvent(ctx context.Context, taskID string, event *TaskEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ev := *event
	ev.TaskID = taskID
	e.Events = append(e.Events, &ev)
	return nil
}

// EventsFor 取指定任务的已发布事件
func (e *RecordingEventBus) EventsFor(taskID string) []*TaskEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []*TaskEvent
	for _, ev := range e.Events {
		if ev.TaskID == taskID {
			out = append(out, ev)
		}
	}
	return out
}

func (e *RecordingEventBus) GetTaskEvents(ctx context.Context, taskID string, fromID string, count int64) ([]*TaskEvent, error) {
	return e.EventsFor(taskID), nil
}

func (e *RecordingEventBus) SubscribeTaskEvents(ctx context.Context, taskID string) (<-chan *TaskEvent, error) {
	ch := make(chan *TaskEvent)
	close(ch)
	return ch, nil
}

func (e *RecordingEventBus) DeleteTaskEvents(ctx context.Context, taskID string) error {
	return nil
}

func (e *RecordingEventBus) Close() error {
	return nil
}
