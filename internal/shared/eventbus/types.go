// Package eventbus 事件总线类型定义
package eventbus

import (
	"time"
)

// 事件类型常量
const (
	EventStatusChanged  = "status_changed"
	EventScreenshotRead = "screenshot_ready"
	EventTaskFailed     = "task_failed"
	EventTaskSubmitted  = "task_submitted"
)

// TaskEvent 任务进度事件
type TaskEvent struct {
	ID        string            `json:"id"`
	TaskID    string            `json:"task_id"`
	Type      string            `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Data      map[string]string `json:"data"`
}

// Key 前缀和常量
const (
	// KeyTaskEvents 任务事件流的 key 前缀
	KeyTaskEvents = "task_events:"

	// MaxStreamLength Stream 最大长度
	MaxStreamLength = 1000
)
