package gov24

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gov-submit-admin/internal/browser"
	"gov-submit-admin/internal/model"
)

// transitionRecorder 记录状态转移供断言
type transitionRecorder struct {
	states      []WorkerState
	screenshots []string
}

func (r *transitionRecorder) fn() TransitionFunc {
	return func(taskID string, state WorkerState, ref string) {
		r.states = append(r.states, state)
		if ref != "" {
			r.screenshots = append(r.screenshots, ref)
		}
	}
}

func newTestWorker(t *testing.T, mock *browser.MockSession) *Worker {
	t.Helper()
	dir := t.TempDir()
	return NewWorker(WorkerConfig{
		BaseURL:       "https://portal.test",
		ScreenshotDir: filepath.Join(dir, "shots"),
		RetryMax:      2,
		RetryBackoff:  time.Millisecond,
	}, mock.Factory(), NewAuthStateFile(filepath.Join(dir, "auth_state.json")))
}

func testTask(id string) *model.SubmissionTask {
	return &model.SubmissionTask{
		ID:         id,
		TargetSite: model.SiteGov24,
		Mode:       model.ModeUpload,
		Status:     model.StatusPending,
	}
}

func testCookies() []model.SessionCookie {
	return []model.SessionCookie{{Name: "SESSION", Value: "tok", Domain: ".portal.test"}}
}

func TestWorkerRunToAwaitingConfirmation(t *testing.T) {
	mock := browser.NewMockSession()
	w := newTestWorker(t, mock)
	rec := &transitionRecorder{}

	err := w.Run(context.Background(), testTask("task-1"), "/tmp/doc.hwpx", testCookies(), rec.fn())
	if err != nil {
		t.Fatalf("Run 失败: %v", err)
	}

	want := []WorkerState{StateAuth, StateSessionReady, StateUploading, StateAwaiting}
	if len(rec.states) != len(want) {
		t.Fatalf("状态序列 = %v，期望 %v", rec.states, want)
	}
	for i, s := range want {
		if rec.states[i] != s {
			t.Errorf("第 %d 步 = %s，期望 %s", i, rec.states[i], s)
		}
	}

	// 截图必须落盘且被引用
	if len(rec.screenshots) != 1 {
		t.Fatalf("期望一张截图引用，实际 %d", len(rec.screenshots))
	}
	if _, err := os.Stat(rec.screenshots[0]); err != nil {
		t.Errorf("截图文件不存在: %v", err)
	}

	// 文件必须走 file-input 挂载
	if got := mock.Uploads[selApplyFileInput]; got != "/tmp/doc.hwpx" {
		t.Errorf("上传文件 = %q", got)
	}

	// 停在等待确认：最终提交按钮绝不能被点击
	for _, c := range mock.Clicks {
		if c == selFinalSubmitBtn {
			t.Fatal("未经确认点击了最终提交按钮")
		}
	}
	if w.State() != StateAwaiting {
		t.Errorf("Worker 状态 = %s", w.State())
	}
}

func TestWorkerBusyRejectsSecondRun(t *testing.T) {
	mock := browser.NewMockSession()
	w := newTestWorker(t, mock)
	rec := &transitionRecorder{}

	if err := w.Run(context.Background(), testTask("task-a"), "/tmp/a.hwpx", testCookies(), rec.fn()); err != nil {
		t.Fatalf("首个任务失败: %v", err)
	}

	// 首个任务停在 AWAITING_CONFIRMATION，第二个立即拒绝
	err := w.Run(context.Background(), testTask("task-b"), "/tmp/b.hwpx", testCookies(), rec.fn())
	if !errors.Is(err, model.ErrBusy) {
		t.Fatalf("期望 ErrBusy，实际 %v", err)
	}
}

func TestWorkerConfirm(t *testing.T) {
	mock := browser.NewMockSession()
	w := newTestWorker(t, mock)
	rec := &transitionRecorder{}

	if err := w.Run(context.Background(), testTask("task-1"), "/tmp/doc.hwpx", testCookies(), rec.fn()); err != nil {
		t.Fatalf("Run 失败: %v", err)
	}

	if err := w.Confirm(context.Background(), "task-1", rec.fn()); err != nil {
		t.Fatalf("Confirm 失败: %v", err)
	}

	last := rec.states[len(rec.states)-1]
	if last != StateSubmitted {
		t.Errorf("最终状态 = %s，期望 SUBMITTED", last)
	}
	if !mock.Closed {
		t.Error("提交后应释放浏览器上下文")
	}
	if w.State() != StateIdle {
		t.Errorf("Worker 应回到 IDLE，实际 %s", w.State())
	}

	// 重复确认返回 InvalidState
	if err := w.Confirm(context.Background(), "task-1", rec.fn()); !errors.Is(err, model.ErrInvalidState) {
		t.Errorf("重复确认应返回 ErrInvalidState，实际 %v", err)
	}
}

func TestWorkerConfirmWrongState(t *testing.T) {
	mock := browser.NewMockSession()
	w := newTestWorker(t, mock)
	rec := &transitionRecorder{}

	if err := w.Confirm(context.Background(), "task-x", rec.fn()); !errors.Is(err, model.ErrInvalidState) {
		t.Errorf("空闲状态确认应返回 ErrInvalidState，实际 %v", err)
	}
}

func TestWorkerDomStructureNotRetried(t *testing.T) {
	mock := browser.NewMockSession()
	mock.MissingSelectors[selApplyFileInput] = true
	w := newTestWorker(t, mock)
	rec := &transitionRecorder{}

	err := w.Run(context.Background(), testTask("task-1"), "/tmp/doc.hwpx", testCookies(), rec.fn())
	if err == nil {
		t.Fatal("期望 dom_structure 失败")
	}

	var autoErr *model.AutomationError
	if !errors.As(err, &autoErr) || autoErr.Kind != model.KindDomStructure {
		t.Fatalf("期望 dom_structure 类别，实际 %v", err)
	}
	if autoErr.Selector != selApplyFileInput {
		t.Errorf("错误应携带选择器，实际 %q", autoErr.Selector)
	}
	if model.Retryable(err) {
		t.Error("结构性错误不应被标记为可重试")
	}
	if rec.states[len(rec.states)-1] != StateFailed {
		t.Errorf("末状态 = %s，期望 FAILED", rec.states[len(rec.states)-1])
	}
	if w.State() != StateIdle {
		t.Errorf("失败后 Worker 应回到 IDLE，实际 %s", w.State())
	}
	if !mock.Closed {
		t.Error("失败后应释放浏览器上下文")
	}
}

func TestWorkerTransientRetry(t *testing.T) {
	mock := browser.NewMockSession()
	w := newTestWorker(t, mock)
	rec := &transitionRecorder{}

	// 前两次导航失败，第三次成功
	mock.NavigateErr = model.NewAutomationError(model.KindNavigation, "gov24", "navigate", "", errors.New("connection reset"))
	mock.NavigateFailures = 2

	err := w.Run(context.Background(), testTask("task-1"), "/tmp/doc.hwpx", testCookies(), rec.fn())
	if err != nil {
		t.Fatalf("瞬时错误应在重试后成功: %v", err)
	}
	if w.State() != StateAwaiting {
		t.Errorf("Worker 状态 = %s", w.State())
	}
}

func TestWorkerPersistedStateRejected(t *testing.T) {
	mock := browser.NewMockSession()
	mock.MissingSelectors[selLoggedInMarker] = true
	w := newTestWorker(t, mock)
	rec := &transitionRecorder{}

	// 预置一份将被站点拒绝的持久化登录态
	if err := w.authState.Save(testCookies()); err != nil {
		t.Fatal(err)
	}

	err := w.Run(context.Background(), testTask("task-1"), "/tmp/doc.hwpx", nil, rec.fn())
	if !errors.Is(err, model.ErrSessionExpired) {
		t.Fatalf("期望 ErrSessionExpired，实际 %v", err)
	}
	if w.authState.Exists() {
		t.Error("被拒绝的登录态应被作废")
	}
}

func TestWorkerCancel(t *testing.T) {
	mock := browser.NewMockSession()
	w := newTestWorker(t, mock)
	rec := &transitionRecorder{}

	if err := w.Run(context.Background(), testTask("task-1"), "/tmp/doc.hwpx", testCookies(), rec.fn()); err != nil {
		t.Fatalf("Run 失败: %v", err)
	}
	if err := w.Cancel("task-1", rec.fn()); err != nil {
		t.Fatalf("Cancel 失败: %v", err)
	}
	if w.State() != StateIdle {
		t.Errorf("取消后应回到 IDLE，实际 %s", w.State())
	}
	if !mock.Closed {
		t.Error("取消后应释放浏览器上下文")
	}

	if err := w.Cancel("task-1", rec.fn()); !errors.Is(err, model.ErrInvalidState) {
		t.Errorf("重复取消应返回 ErrInvalidState，实际 %v", err)
	}
}
