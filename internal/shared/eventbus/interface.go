// Package eventbus 事件总线抽象接口
//
// 提供任务事件的发布/订阅能力，当前由 Redis Streams 实现。
// UI 通过 WebSocket 网关消费这些事件做进度展示。
package eventbus

import (
	"context"
)

// TaskEventBus 任务事件总线接口
type TaskEventBus interface {
	// PublishTaskEvent 发布任务事件
	PublishTaskEvent(ctx context.Context, taskID string, event *TaskEvent) error

	// GetTaskEvents 取任务事件列表，fromID 为空从头取
	GetTaskEvents(ctx context.Context, taskID string, fromID string, count int64) ([]*TaskEvent, error)

	// SubscribeTaskEvents 订阅任务的后续事件
	SubscribeTaskEvents(ctx context.Context, taskID string) (<-chan *TaskEvent, error)

	// DeleteTaskEvents 删除任务的事件流
	DeleteTaskEvents(ctx context.Context, taskID string) error

	// Close 关闭事件总线
	Close() error
}
