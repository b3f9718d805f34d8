package storage

import (
	"context"

	"gov-submit-admin/internal/model"
)

// TaskStore 提交任务持久化接口
//
// 实体不存在时返回 ErrNotFound。任务状态每次转移都调用
// UpdateTask 落盘，进程重启后非终态任务由 FailInFlightTasks
// 统一置为 failed。
type TaskStore interface {
	// CreateTask 创建任务记录
	CreateTask(ctx context.Context, task *model.SubmissionTask) error

	// GetTask 按ID取任务
	GetTask(ctx context.Context, id string) (*model.SubmissionTask, error)

	// UpdateTask 全量更新任务记录
	UpdateTask(ctx context.Context, task *model.SubmissionTask) error

	// ListTasks 按账号/状态过滤任务，按创建时间倒序
	// accountID、status 为空串时不过滤该维度
	ListTasks(ctx context.Context, accountID string, status model.SubmissionStatus, limit, offset int) ([]*model.SubmissionTask, error)

	// FailInFlightTasks 将所有非终态任务置为 failed 并记录原因，
	// 返回受影响的任务数。进程启动时调用。
	FailInFlightTasks(ctx context.Context, reason string) (int, error)

	// Close 释放底层连接
	Close() error
}
