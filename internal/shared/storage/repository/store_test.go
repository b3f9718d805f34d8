// Package repository SQLite 集成测试
//
// 使用 SQLite 内存数据库验证 repository 层存储接口的正确性。
// 无需外部数据库依赖，可在任何环境下运行。
package repository

import (
	"context"
	"testing"
	"time"

	"gov-submit-admin/internal/model"
	"gov-submit-admin/internal/shared/storage"
	"gov-submit-admin/internal/shared/storage/dbutil"
	sqlitedriver "gov-submit-admin/internal/shared/storage/driver/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore 创建用于测试的 SQLite 内存数据库 Store
func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sqlitedriver.Open(":memory:")
	require.NoError(t, err)
	dialect := sqlitedriver.NewDialect()
	require.NoError(t, dialect.AutoMigrate(db))
	store := NewStore(db, dialect)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTask(id string, status model.SubmissionStatus) *model.SubmissionTask {
	now := time.Now().UTC().Truncate(time.Second)
	return &model.SubmissionTask{
		ID:          id,
		AccountID:   "acct-1",
		TargetSite:  model.SiteGov24,
		Mode:        model.ModeGenerate,
		TemplateCode: "biz-confirm-01",
		InputFields: map[string]string{"company_name": "테스트기업"},
		FileName:    "doc.hwpx",
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// ============================================================================
// Dialect 基础测试
// ============================================================================

func TestDialectTypes(t *testing.T) {
	d := sqlitedriver.NewDialect()
	assert.Equal(t, dbutil.DriverSQLite, d.DriverType())
	assert.Equal(t, "datetime('now')", d.CurrentTimestamp())
}

func TestRebind(t *testing.T) {
	d := sqlitedriver.NewDialect()
	assert.Equal(t, "SELECT * FROM t WHERE id = ? AND name = ?",
		d.Rebind("SELECT * FROM t WHERE id = $1 AND name = $2"))
	// 应去除 PG 类型转换
	assert.Equal(t, "UPDATE t SET status = ? WHERE id = ?",
		d.Rebind("UPDATE t SET status = $1::varchar WHERE id = $2"))
}

// ============================================================================
// SubmissionTask 测试
// ============================================================================

func TestTaskCreateAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task := newTask("task-1", model.StatusPending)
	require.NoError(t, s.CreateTask(ctx, task))

	got, err := s.GetTask(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, task.ID, got.ID)
	assert.Equal(t, model.SiteGov24, got.TargetSite)
	assert.Equal(t, model.StatusPending, got.Status)
	assert.Equal(t, "테스트기업", got.InputFields["company_name"])
	assert.Nil(t, got.CompletedAt)
}

func TestTaskGetNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetTask(context.Background(), "task-missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTaskCreateDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateTask(ctx, newTask("task-1", model.StatusPending)))
	err := s.CreateTask(ctx, newTask("task-1", model.StatusPending))
	assert.ErrorIs(t, err, storage.ErrDuplicate)
}

func TestTaskUpdate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task := newTask("task-1", model.StatusPending)
	require.NoError(t, s.CreateTask(ctx, task))

	now := time.Now().UTC().Truncate(time.Second)
	task.Status = model.StatusFailed
	task.FailureKind = "dom_structure"
	task.FailureDetail = "site=gov24 step=apply_form selector=input#fileUpload"
	task.CompletedAt = &now
	require.NoError(t, s.UpdateTask(ctx, task))

	got, err := s.GetTask(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.Equal(t, "dom_structure", got.FailureKind)
	require.NotNil(t, got.CompletedAt)

	// 不存在的任务更新返回 ErrNotFound
	missing := newTask("task-missing", model.StatusPending)
	assert.ErrorIs(t, s.UpdateTask(ctx, missing), storage.ErrNotFound)
}

func TestTaskList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	t1 := newTask("task-1", model.StatusSubmitted)
	t1.CreatedAt = t1.CreatedAt.Add(-2 * time.Hour)
	t2 := newTask("task-2", model.StatusPending)
	t2.CreatedAt = t2.CreatedAt.Add(-time.Hour)
	t3 := newTask("task-3", model.StatusPending)
	t3.AccountID = "acct-2"
	for _, task := range []*model.SubmissionTask{t1, t2, t3} {
		require.NoError(t, s.CreateTask(ctx, task))
	}

	// 全量，创建时间倒序
	all, err := s.ListTasks(ctx, "", "", 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "task-3", all[0].ID)

	// 按账号过滤
	byAcct, err := s.ListTasks(ctx, "acct-1", "", 10, 0)
	require.NoError(t, err)
	assert.Len(t, byAcct, 2)

	// 按状态过滤
	pending, err := s.ListTasks(ctx, "", model.StatusPending, 10, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	// 分页
	page, err := s.ListTasks(ctx, "", "", 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "task-2", page[0].ID)
}

func TestFailInFlightTasks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateTask(ctx, newTask("task-pending", model.StatusPending)))
	require.NoError(t, s.CreateTask(ctx, newTask("task-awaiting", model.StatusAwaitingConfirmation)))
	require.NoError(t, s.CreateTask(ctx, newTask("task-done", model.StatusSubmitted)))
	require.NoError(t, s.CreateTask(ctx, newTask("task-failed", model.StatusFailed)))

	n, err := s.FailInFlightTasks(ctx, "process restarted")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// 非终态任务被标记失败
	got, err := s.GetTask(ctx, "task-awaiting")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.Equal(t, "process_restart", got.FailureKind)

	// 终态任务不受影响
	done, err := s.GetTask(ctx, "task-done")
	require.NoError(t, err)
	assert.Equal(t, model.StatusSubmitted, done.Status)
}
