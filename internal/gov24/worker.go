package gov24

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gov-submit-admin/internal/browser"
	"gov-submit-admin/internal/model"
	"gov-submit-admin/pkg/logging"
)

// ============================================================================
// WorkerState - 状态机枚举
// ============================================================================

// WorkerState 提交状态机状态
type WorkerState string

const (
	StateIdle         WorkerState = "IDLE"
	StateAuth         WorkerState = "AUTHENTICATING"
	StateSessionReady WorkerState = "SESSION_READY"
	StateUploading    WorkerState = "UPLOADING"
	StateAwaiting     WorkerState = "AWAITING_CONFIRMATION"
	StateSubmitting   WorkerState = "SUBMITTING"
	StateSubmitted    WorkerState = "SUBMITTED"
	StateFailed       WorkerState = "FAILED"
)

// ============================================================================
// Worker - 串行提交状态机
// ============================================================================

// TransitionFunc 状态转移回调，Orchestrator 用来落盘任务状态
type TransitionFunc func(taskID string, state WorkerState, screenshotRef string)

// WorkerConfig Worker 配置
type WorkerConfig struct {
	BaseURL       string        // 门户地址
	ScreenshotDir string        // 截图输出目录
	RetryMax      int           // 瞬时错误重试上限
	RetryBackoff  time.Duration // 重试间隔
}

// Worker 政府门户提交引擎
//
// 同一时刻最多持有一个浏览器上下文。第二个提交请求在上一个
// 完成前到达时返回 ErrBusy，绝不在同一上下文上交错 DOM 操作。
// 上传完成后截图并停在 AWAITING_CONFIRMATION，最终提交只能
// 由显式 Confirm 触发，任何路径都不会自动点击提交。
type Worker struct {
	cfg       WorkerConfig
	factory   browser.Factory
	authState *AuthStateFile
	logger    *logging.Logger

	mu     sync.Mutex
	state  WorkerState
	taskID string
	bs     browser.Session // 唯一的活动浏览器上下文
}

// NewWorker 创建 Worker
func NewWorker(cfg WorkerConfig, factory browser.Factory, authState *AuthStateFile) *Worker {
	if cfg.RetryMax == 0 {
		cfg.RetryMax = 2
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = 2 * time.Second
	}
	if cfg.ScreenshotDir == "" {
		cfg.ScreenshotDir = filepath.Join(os.TempDir(), "gov-submit-screenshots")
	}
	return &Worker{
		cfg:       cfg,
		factory:   factory,
		authState: authState,
		logger:    logging.Default("gov24.worker"),
		state:     StateIdle,
	}
}

// State 当前状态机状态
func (w *Worker) State() WorkerState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// CurrentTask 当前占用 Worker 的任务ID，空串表示空闲
func (w *Worker) CurrentTask() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.taskID
}

// Run 驱动任务从认证到 AWAITING_CONFIRMATION
//
// authCookies 非空时优先使用（刚完成的简便认证会话），否则
// 尝试加载持久化登录态。运行结束时浏览器上下文保持打开，
// 等待 Confirm 或 Cancel；出错则立即释放。
func (w *Worker) Run(ctx context.Context, task *model.SubmissionTask, filePath string, authCookies []model.SessionCookie, onTransition TransitionFunc) error {
	w.mu.Lock()
	if w.state != StateIdle {
		w.mu.Unlock()
		return fmt.Errorf("%w: task %s in state %s", model.ErrBusy, w.taskID, w.state)
	}
	w.state = StateAuth
	w.taskID = task.ID
	w.mu.Unlock()

	log := w.logger.WithTaskID(task.ID).WithSite(string(task.TargetSite))
	onTransition(task.ID, StateAuth, "")

	bs, err := w.factory.NewSession(ctx)
	if err != nil {
		w.fail(task.ID, onTransition)
		return model.NewAutomationError(model.KindNavigation, "gov24", "open_browser", "", err)
	}

	w.mu.Lock()
	w.bs = bs
	w.mu.Unlock()

	// AUTHENTICATING → SESSION_READY
	if err := w.ensureAuthenticated(ctx, bs, authCookies); err != nil {
		w.release()
		w.fail(task.ID, onTransition)
		return err
	}
	log.Info("session ready")
	onTransition(task.ID, StateSessionReady, "")

	// SESSION_READY → UPLOADING
	w.setState(StateUploading)
	onTransition(task.ID, StateUploading, "")
	if err := w.uploadFile(ctx, bs, filePath); err != nil {
		w.release()
		w.fail(task.ID, onTransition)
		return err
	}
	log.Info("file attached", "file", filepath.Base(filePath))

	// UPLOADING → AWAITING_CONFIRMATION：截图后停住，不点提交
	ref, err := w.captureScreenshot(ctx, bs, task.ID)
	if err != nil {
		w.release()
		w.fail(task.ID, onTransition)
		return err
	}

	w.setState(StateAwaiting)
	onTransition(task.ID, StateAwaiting, ref)
	log.Info("awaiting human confirmation", "screenshot", ref)
	return nil
}

// Confirm 人工确认后执行最终提交
//
// 仅在 AWAITING_CONFIRMATION 且任务匹配时有效；其余情况
// 返回 ErrInvalidState。成功或失败都释放浏览器上下文。
func (w *Worker) Confirm(ctx context.Context, taskID string, onTransition TransitionFunc) error {
	w.mu.Lock()
	if w.state != StateAwaiting || w.taskID != taskID {
		state := w.state
		w.mu.Unlock()
		return fmt.Errorf("%w: worker in state %s", model.ErrInvalidState, state)
	}
	w.state = StateSubmitting
	bs := w.bs
	w.mu.Unlock()

	onTransition(taskID, StateSubmitting, "")

	err := w.withRetry(ctx, func() error {
		if err := bs.Click(ctx, selFinalSubmitBtn); err != nil {
			return w.classifyDomErr("final_submit", selFinalSubmitBtn, err)
		}
		if err := bs.WaitVisible(ctx, selSubmitDoneMsg); err != nil {
			return w.classifyDomErr("await_complete", selSubmitDoneMsg, err)
		}
		return nil
	})

	w.release()
	if err != nil {
		w.fail(taskID, onTransition)
		return err
	}

	w.setState(StateSubmitted)
	onTransition(taskID, StateSubmitted, "")
	w.logger.WithTaskID(taskID).Info("submission finalized")

	w.reset()
	return nil
}

// Cancel 取消当前任务并释放浏览器上下文
//
// 任意状态下可调用；非当前任务返回 ErrInvalidState。
func (w *Worker) Cancel(taskID string, onTransition TransitionFunc) error {
	w.mu.Lock()
	if w.taskID != taskID || w.state == StateIdle {
		w.mu.Unlock()
		return fmt.Errorf("%w: task %s not active", model.ErrInvalidState, taskID)
	}
	w.mu.Unlock()

	w.release()
	w.fail(taskID, onTransition)
	w.logger.WithTaskID(taskID).Info("task cancelled")
	return nil
}

// Release 无条件释放浏览器上下文并回到 IDLE（进程关停用）
func (w *Worker) Release() {
	w.release()
	w.reset()
}

// ============================================================================
// 内部步骤
// ============================================================================

// ensureAuthenticated 建立登录态
//
// 优先注入传入的认证 Cookie，其次尝试持久化登录态；两者都
// 通过访问登录后才可见的页面验证。持久化态被站点拒绝时作废
// 文件并返回 ErrSessionExpired，要求调用方重新走简便认证。
func (w *Worker) ensureAuthenticated(ctx context.Context, bs browser.Session, authCookies []model.SessionCookie) error {
	if len(authCookies) > 0 {
		if err := bs.SetCookies(ctx, authCookies); err != nil {
			return model.NewAutomationError(model.KindNavigation, "gov24", "inject_cookies", "", err)
		}
		if err := w.probeLoggedIn(ctx, bs); err != nil {
			return err
		}
		// 新鲜的认证态落盘，后续任务免登录
		if err := w.authState.Save(authCookies); err != nil {
			w.logger.WithError(err).Warn("failed to persist auth state")
		}
		return nil
	}

	state, err := w.authState.Load()
	if err != nil {
		return err
	}
	if state == nil {
		return fmt.Errorf("%w: no persisted auth state", model.ErrSessionExpired)
	}
	if err := bs.SetCookies(ctx, state.Cookies); err != nil {
		return model.NewAutomationError(model.KindNavigation, "gov24", "inject_cookies", "", err)
	}
	if err := w.probeLoggedIn(ctx, bs); err != nil {
		// 站点拒绝了持久化态，作废之
		w.authState.Invalidate()
		return fmt.Errorf("%w: persisted state rejected by site", model.ErrSessionExpired)
	}
	return nil
}

// probeLoggedIn 访问登录后才可见的页面验证登录态
func (w *Worker) probeLoggedIn(ctx context.Context, bs browser.Session) error {
	return w.withRetry(ctx, func() error {
		if err := bs.Navigate(ctx, w.cfg.BaseURL+pathMyPage); err != nil {
			return model.NewAutomationError(model.KindNavigation, "gov24", "probe_login", "", err)
		}
		ok, err := bs.Exists(ctx, selLoggedInMarker)
		if err != nil {
			return model.NewAutomationError(model.KindNavigation, "gov24", "probe_login", selLoggedInMarker, err)
		}
		if !ok {
			return fmt.Errorf("%w: login marker absent", model.ErrSessionExpired)
		}
		return nil
	})
}

// uploadFile 导航到申请表单并通过 file-input API 挂载文件
//
// 必须走 DOM file-input，不模拟键盘，避开站点的输入遮罩。
func (w *Worker) uploadFile(ctx context.Context, bs browser.Session, filePath string) error {
	return w.withRetry(ctx, func() error {
		if err := bs.Navigate(ctx, w.cfg.BaseURL+pathApply); err != nil {
			return model.NewAutomationError(model.KindNavigation, "gov24", "navigate_apply", "", err)
		}
		if err := bs.WaitVisible(ctx, selApplyFileInput); err != nil {
			return w.classifyDomErr("apply_form", selApplyFileInput, err)
		}
		if err := bs.Upload(ctx, selApplyFileInput, filePath); err != nil {
			if browser.IsNoElement(err) {
				return w.classifyDomErr("attach_file", selApplyFileInput, err)
			}
			return model.NewAutomationError(model.KindUpload, "gov24", "attach_file", selApplyFileInput, errUploadWrap(err))
		}
		if err := bs.Click(ctx, selApplyNextBtn); err != nil {
			return w.classifyDomErr("next_step", selApplyNextBtn, err)
		}
		return nil
	})
}

// captureScreenshot 截取提交前整页快照并写入截图目录
func (w *Worker) captureScreenshot(ctx context.Context, bs browser.Session, taskID string) (string, error) {
	png, err := bs.Screenshot(ctx)
	if err != nil {
		return "", model.NewAutomationError(model.KindNavigation, "gov24", "screenshot", "", err)
	}
	if err := os.MkdirAll(w.cfg.ScreenshotDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create screenshot dir: %w", err)
	}
	ref := filepath.Join(w.cfg.ScreenshotDir, fmt.Sprintf("%s-%d.png", taskID, time.Now().Unix()))
	if err := os.WriteFile(ref, png, 0644); err != nil {
		return "", fmt.Errorf("failed to write screenshot: %w", err)
	}
	return ref, nil
}

// withRetry 对瞬时错误做有界重试；结构性错误立即上抛
func (w *Worker) withRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= w.cfg.RetryMax; attempt++ {
		if attempt > 0 {
			w.logger.Warn("retrying after transient error", "attempt", attempt, "error", lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.cfg.RetryBackoff):
			}
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !model.Retryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// classifyDomErr 元素缺失归为 dom_structure（站点改版，不重试），
// 其余归为 navigation（网络抖动，可重试）
func (w *Worker) classifyDomErr(step, selector string, err error) error {
	if browser.IsNoElement(err) {
		return model.NewAutomationError(model.KindDomStructure, "gov24", step, selector, err)
	}
	return model.NewAutomationError(model.KindNavigation, "gov24", step, selector, err)
}

func errUploadWrap(err error) error {
	return fmt.Errorf("%w: %v", model.ErrUpload, err)
}

func (w *Worker) setState(s WorkerState) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// fail 进入 FAILED 并回到 IDLE
func (w *Worker) fail(taskID string, onTransition TransitionFunc) {
	w.setState(StateFailed)
	onTransition(taskID, StateFailed, "")
	w.reset()
}

// release 关闭浏览器上下文
func (w *Worker) release() {
	w.mu.Lock()
	bs := w.bs
	w.bs = nil
	w.mu.Unlock()
	if bs != nil {
		bs.Close()
	}
}

// reset 清空占用回到 IDLE
func (w *Worker) reset() {
	w.mu.Lock()
	w.state = StateIdle
	w.taskID = ""
	w.mu.Unlock()
}
