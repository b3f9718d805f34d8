// Package orchestrator 提交请求级别的编排器
//
// 串起端到端流程：校验输入 → 取得/生成文件 → 占用 Worker →
// 驱动到等待确认 → 人工确认后最终提交 → 结果落盘。
// 重试与降级策略归这里与 Worker 所有，API 层只做转发。
package orchestrator

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"gov-submit-admin/internal/authsession"
	"gov-submit-admin/internal/gov24"
	"gov-submit-admin/internal/model"
	"gov-submit-admin/internal/shared/eventbus"
	"gov-submit-admin/internal/shared/storage"
	"gov-submit-admin/internal/sitebot"
	"gov-submit-admin/pkg/logging"
)

// DocumentGenerator 文档生成层协作接口
//
// 按模板编号和字段值生成提交文件，返回落盘路径与内容类型。
type DocumentGenerator interface {
	Generate(ctx context.Context, templateCode string, fields map[string]string) (filePath string, contentType string, err error)
}

// ScreenshotMirror 截图对象存储镜像（可选）
type ScreenshotMirror interface {
	UploadScreenshot(ctx context.Context, taskID string, localPath string, png []byte) (string, error)
}

// StatsRecorder 指标回调（可选）
type StatsRecorder interface {
	SetWorkerBusy(busy bool)
	RecordSubmissionCompleted(site, status string, duration time.Duration)
}

// Config 编排器配置
type Config struct {
	// QueueSize > 0 时 Worker 忙碌的提交进 FIFO 队列而非拒绝
	QueueSize int
}

// SubmitRequest 提交请求
type SubmitRequest struct {
	AccountID     string            `json:"account_id"`
	TargetSite    model.TargetSite  `json:"target_site"`
	Mode          model.SubmissionMode `json:"mode"`
	TemplateCode  string            `json:"template_code,omitempty"`
	InputFields   map[string]string `json:"input_fields"`
	FilePath      string            `json:"file_path,omitempty"`
	FileName      string            `json:"file_name,omitempty"`
	AuthSessionID string            `json:"auth_session_id,omitempty"`
}

// Orchestrator 提交编排器
type Orchestrator struct {
	cfg      Config
	store    storage.TaskStore
	bus      eventbus.TaskEventBus
	worker   *gov24.Worker
	sessions *authsession.Store
	bot      *sitebot.Automation
	docgen   DocumentGenerator
	mirror   ScreenshotMirror
	stats    StatsRecorder
	logger   *logging.Logger

	queue     chan *queuedSubmit
	queuePoll time.Duration
	stopCh    chan struct{}
	doneCh    chan struct{}
}

type queuedSubmit struct {
	task     *model.SubmissionTask
	filePath string
	cookies  []model.SessionCookie
}

// New 创建编排器
func New(cfg Config, store storage.TaskStore, bus eventbus.TaskEventBus,
	worker *gov24.Worker, sessions *authsession.Store, bot *sitebot.Automation,
	docgen DocumentGenerator) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		store:    store,
		bus:      bus,
		worker:   worker,
		sessions: sessions,
		bot:      bot,
		docgen:   docgen,
		logger:   logging.Default("orchestrator"),
	}
	if cfg.QueueSize > 0 {
		o.queue = make(chan *queuedSubmit, cfg.QueueSize)
		o.queuePoll = 200 * time.Millisecond
	}
	return o
}

// SetScreenshotMirror 设置截图对象存储镜像（可选）
func (o *Orchestrator) SetScreenshotMirror(m ScreenshotMirror) {
	o.mirror = m
}

// SetStats 设置指标回调（可选）
func (o *Orchestrator) SetStats(r StatsRecorder) {
	o.stats = r
}

// Start 启动队列消费循环（仅队列模式）
func (o *Orchestrator) Start() {
	if o.queue == nil || o.stopCh != nil {
		return
	}
	o.stopCh = make(chan struct{})
	o.doneCh = make(chan struct{})
	go o.queueLoop()
	o.logger.Info("submit queue started", "size", o.cfg.QueueSize)
}

// Stop 停止队列消费
func (o *Orchestrator) Stop() {
	if o.stopCh == nil {
		return
	}
	close(o.stopCh)
	<-o.doneCh
	o.stopCh = nil
}

// Recover 进程启动恢复：把上次进程留下的非终态任务统一置为失败
func (o *Orchestrator) Recover(ctx context.Context) error {
	n, err := o.store.FailInFlightTasks(ctx, "task lost on process restart, resubmit required")
	if err != nil {
		return fmt.Errorf("failed to recover in-flight tasks: %w", err)
	}
	if n > 0 {
		o.logger.Warn("marked in-flight tasks as failed", "count", n)
	}
	return nil
}

// ============================================================================
// 提交
// ============================================================================

// Submit 受理提交请求
//
// gov24 走专用 Worker：同步驱动到 AWAITING_CONFIRMATION；
// Worker 忙碌时按配置拒绝（ErrBusy）或进 FIFO 队列。
// 其他站点走通用填报器，结果直接终态。
func (o *Orchestrator) Submit(ctx context.Context, req *SubmitRequest) (*model.SubmissionTask, error) {
	if err := o.validate(req); err != nil {
		return nil, err
	}

	now := time.Now()
	task := &model.SubmissionTask{
		ID:           generateTaskID(),
		AccountID:    req.AccountID,
		TargetSite:   req.TargetSite,
		Mode:         req.Mode,
		TemplateCode: req.TemplateCode,
		InputFields:  req.InputFields,
		FileName:     req.FileName,
		Status:       model.StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := o.store.CreateTask(ctx, task); err != nil {
		return nil, err
	}

	if !req.TargetSite.HasDedicatedWorker() {
		return o.submitGeneric(ctx, task)
	}
	return o.submitGov24(ctx, task, req)
}

// submitGov24 专用 Worker 路径
func (o *Orchestrator) submitGov24(ctx context.Context, task *model.SubmissionTask, req *SubmitRequest) (*model.SubmissionTask, error) {
	filePath, err := o.resolveFile(ctx, task, req)
	if err != nil {
		o.failTask(ctx, task, err)
		return task, err
	}

	cookies, err := o.resolveAuthCookies(req.AuthSessionID)
	if err != nil {
		o.failTask(ctx, task, err)
		return task, err
	}

	err = o.worker.Run(ctx, task, filePath, cookies, o.onTransition)
	if errors.Is(err, model.ErrBusy) && o.queue != nil {
		select {
		case o.queue <- &queuedSubmit{task: task, filePath: filePath, cookies: cookies}:
			o.logger.WithTaskID(task.ID).Info("worker busy, task queued")
			return o.store.GetTask(ctx, task.ID)
		default:
			err = fmt.Errorf("%w: submit queue full", model.ErrBusy)
		}
	}
	if err != nil {
		o.failTask(ctx, task, err)
		return task, err
	}
	return o.store.GetTask(ctx, task.ID)
}

// submitGeneric 通用填报路径，没有确认环节，结果直接终态
func (o *Orchestrator) submitGeneric(ctx context.Context, task *model.SubmissionTask) (*model.SubmissionTask, error) {
	o.transitionStatus(ctx, task, model.StatusUploading, "")

	result, err := o.bot.Execute(ctx, task.TargetSite, task.InputFields)
	if err != nil {
		o.failTask(ctx, task, err)
		return task, err
	}

	now := time.Now()
	task.UpdatedAt = now
	task.CompletedAt = &now
	if result.Success {
		task.Status = model.StatusSubmitted
	} else {
		// 降级：任务失败但带人工补录指引，调用方总有可执行结果
		task.Status = model.StatusFailed
		task.FailureKind = "automation_fallback"
		task.FailureDetail = result.Detail
		task.FallbackData = result.Detail
	}
	if err := o.store.UpdateTask(ctx, task); err != nil {
		o.logger.WithTaskID(task.ID).WithError(err).Error("failed to persist task result")
	}
	if o.stats != nil {
		o.stats.RecordSubmissionCompleted(string(task.TargetSite), string(task.Status), now.Sub(task.CreatedAt))
	}
	o.publishEvent(task, eventbus.EventStatusChanged, map[string]string{"status": string(task.Status)})
	return task, nil
}

// ============================================================================
// 确认 / 取消 / 查询
// ============================================================================

// Confirm 人工确认截图后触发最终提交
//
// 仅当任务处于 awaiting_confirmation 时有效，其余返回 ErrInvalidState。
func (o *Orchestrator) Confirm(ctx context.Context, taskID, accountID string) (*model.SubmissionTask, error) {
	task, err := o.getAuthorized(ctx, taskID, accountID)
	if err != nil {
		return nil, err
	}
	if !task.IsAwaitingConfirmation() {
		return nil, fmt.Errorf("%w: task %s is %s", model.ErrInvalidState, taskID, task.Status)
	}

	if err := o.worker.Confirm(ctx, taskID, o.onTransition); err != nil {
		return nil, err
	}
	return o.store.GetTask(ctx, taskID)
}

// Cancel 取消任务
//
// 占用 Worker 的任务立即释放浏览器上下文；排队中/未占用的
// 非终态任务直接标记失败。终态任务返回 ErrInvalidState。
func (o *Orchestrator) Cancel(ctx context.Context, taskID, accountID string) (*model.SubmissionTask, error) {
	task, err := o.getAuthorized(ctx, taskID, accountID)
	if err != nil {
		return nil, err
	}
	if task.IsTerminal() {
		return nil, fmt.Errorf("%w: task %s already %s", model.ErrInvalidState, taskID, task.Status)
	}

	if o.worker.CurrentTask() == taskID {
		if err := o.worker.Cancel(taskID, o.onTransition); err != nil {
			return nil, err
		}
	} else {
		task.Status = model.StatusFailed
		task.FailureKind = "cancelled"
		task.FailureDetail = "cancelled by operator"
		now := time.Now()
		task.UpdatedAt = now
		task.CompletedAt = &now
		if err := o.store.UpdateTask(ctx, task); err != nil {
			return nil, err
		}
		o.publishEvent(task, eventbus.EventTaskFailed, map[string]string{"reason": "cancelled"})
	}
	return o.store.GetTask(ctx, taskID)
}

// Status 只读查询任务快照
func (o *Orchestrator) Status(ctx context.Context, taskID, accountID string) (*model.SubmissionTask, error) {
	return o.getAuthorized(ctx, taskID, accountID)
}

// List 查询账号下的任务
func (o *Orchestrator) List(ctx context.Context, accountID string, status model.SubmissionStatus, limit, offset int) ([]*model.SubmissionTask, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return o.store.ListTasks(ctx, accountID, status, limit, offset)
}

// ============================================================================
// 会话管理
// ============================================================================

// CheckSession 检查持久化登录态是否存在（不做站点级验证，不产生副作用）
func (o *Orchestrator) CheckSession(authState *gov24.AuthStateFile) bool {
	return authState.Exists()
}

// ClearSession 强制作废持久化登录态，并取消占用中的任务
func (o *Orchestrator) ClearSession(ctx context.Context, authState *gov24.AuthStateFile) error {
	if taskID := o.worker.CurrentTask(); taskID != "" {
		if err := o.worker.Cancel(taskID, o.onTransition); err != nil {
			o.logger.WithTaskID(taskID).WithError(err).Warn("failed to cancel active task")
		}
	}
	if err := authState.Invalidate(); err != nil {
		return err
	}
	o.logger.Info("persisted auth state cleared")
	return nil
}

// ============================================================================
// 内部
// ============================================================================

// validate 站点/模式/必填字段校验
func (o *Orchestrator) validate(req *SubmitRequest) error {
	if !req.TargetSite.Valid() {
		return fmt.Errorf("%w: invalid target_site: %q", model.ErrValidation, req.TargetSite)
	}
	if !req.Mode.Valid() {
		return fmt.Errorf("%w: invalid mode: %q", model.ErrValidation, req.Mode)
	}
	if req.Mode == model.ModeGenerate && req.TemplateCode == "" {
		return fmt.Errorf("%w: template_code is required for mode=generate", model.ErrValidation)
	}
	if req.Mode == model.ModeUpload && req.TargetSite.HasDedicatedWorker() && req.FilePath == "" {
		return fmt.Errorf("%w: file_path is required for mode=upload", model.ErrValidation)
	}
	if len(req.InputFields) == 0 && req.Mode == model.ModeGenerate {
		return fmt.Errorf("%w: input_fields are required for mode=generate", model.ErrValidation)
	}
	return nil
}

// resolveFile 取得提交文件：generate 调文档生成层，upload 用调用方文件
func (o *Orchestrator) resolveFile(ctx context.Context, task *model.SubmissionTask, req *SubmitRequest) (string, error) {
	if req.Mode == model.ModeUpload {
		if _, err := os.Stat(req.FilePath); err != nil {
			return "", fmt.Errorf("%w: uploaded file missing: %v", model.ErrUpload, err)
		}
		return req.FilePath, nil
	}

	path, _, err := o.docgen.Generate(ctx, req.TemplateCode, req.InputFields)
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrDocumentGeneration, err)
	}
	return path, nil
}

// resolveAuthCookies 取认证会话的 Cookie；没传会话ID时返回 nil，
// Worker 回落到持久化登录态
func (o *Orchestrator) resolveAuthCookies(sessionID string) ([]model.SessionCookie, error) {
	if sessionID == "" {
		return nil, nil
	}
	sess, err := o.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != model.AuthStatusAuthenticated {
		return nil, fmt.Errorf("%w: session %s is %s", model.ErrInvalidState, sessionID, sess.Status)
	}
	return sess.Cookies, nil
}

// getAuthorized 取任务并校验归属
func (o *Orchestrator) getAuthorized(ctx context.Context, taskID, accountID string) (*model.SubmissionTask, error) {
	task, err := o.store.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, model.ErrTaskNotFound
		}
		return nil, err
	}
	if accountID != "" && task.AccountID != "" && task.AccountID != accountID {
		return nil, model.ErrTaskNotFound
	}
	return task, nil
}

// onTransition Worker 状态转移回调：落盘 + 发事件 + 截图镜像
func (o *Orchestrator) onTransition(taskID string, state gov24.WorkerState, screenshotRef string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	task, err := o.store.GetTask(ctx, taskID)
	if err != nil {
		o.logger.WithTaskID(taskID).WithError(err).Error("transition on unknown task")
		return
	}

	status, ok := stateToStatus(state)
	if !ok {
		return
	}

	if screenshotRef != "" {
		task.ScreenshotRef = screenshotRef
		if o.mirror != nil {
			if png, err := os.ReadFile(screenshotRef); err == nil {
				if key, err := o.mirror.UploadScreenshot(ctx, taskID, screenshotRef, png); err == nil {
					task.ScreenshotRef = key
				} else {
					o.logger.WithTaskID(taskID).WithError(err).Warn("screenshot mirror failed")
				}
			}
		}
		o.publishEvent(task, eventbus.EventScreenshotRead, map[string]string{"ref": task.ScreenshotRef})
	}

	o.transitionStatus(ctx, task, status, task.ScreenshotRef)
}

// transitionStatus 状态流转落盘并发事件
func (o *Orchestrator) transitionStatus(ctx context.Context, task *model.SubmissionTask, status model.SubmissionStatus, screenshotRef string) {
	if task.Status == status {
		return
	}
	if !task.CanTransitionTo(status) {
		o.logger.WithTaskID(task.ID).Warn("illegal transition skipped",
			"from", task.Status, "to", status)
		return
	}

	from := task.Status
	task.Status = status
	task.UpdatedAt = time.Now()
	if screenshotRef != "" {
		task.ScreenshotRef = screenshotRef
	}
	if status.IsTerminal() {
		now := task.UpdatedAt
		task.CompletedAt = &now
	}

	if err := o.store.UpdateTask(ctx, task); err != nil {
		o.logger.WithTaskID(task.ID).WithError(err).Error("failed to persist transition")
	}
	o.logger.TaskTransitionLog(task.ID, string(from), string(status))

	if o.stats != nil {
		if status.IsTerminal() {
			o.stats.RecordSubmissionCompleted(string(task.TargetSite), string(status),
				task.CompletedAt.Sub(task.CreatedAt))
		}
		o.stats.SetWorkerBusy(o.worker.CurrentTask() != "")
	}

	eventType := eventbus.EventStatusChanged
	switch status {
	case model.StatusSubmitted:
		eventType = eventbus.EventTaskSubmitted
	case model.StatusFailed:
		eventType = eventbus.EventTaskFailed
	}
	o.publishEvent(task, eventType, map[string]string{
		"from": string(from), "status": string(status),
	})
}

// failTask 任务失败落盘，携带错误类别与可诊断详情（不含个人信息）
func (o *Orchestrator) failTask(ctx context.Context, task *model.SubmissionTask, cause error) {
	task.FailureKind = model.FailureKind(cause)
	task.FailureDetail = cause.Error()
	o.transitionStatus(ctx, task, model.StatusFailed, "")
}

// publishEvent 发布任务事件，失败只记日志
func (o *Orchestrator) publishEvent(task *model.SubmissionTask, eventType string, data map[string]string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := o.bus.PublishTaskEvent(ctx, task.ID, &eventbus.TaskEvent{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	})
	if err != nil {
		o.logger.WithTaskID(task.ID).WithError(err).Warn("event publish failed")
	}
}

// queueLoop FIFO 队列消费：等 Worker 空闲后跑下一个
func (o *Orchestrator) queueLoop() {
	defer close(o.doneCh)
	for {
		select {
		case <-o.stopCh:
			return
		case item := <-o.queue:
			if !o.runQueued(item) {
				return
			}
		}
	}
}

// runQueued 执行一个排队任务，返回 false 表示收到停止信号
//
// Worker 直到 Confirm/Cancel 才回到 IDLE，出队时通常仍被上一个
// 任务占用，必须等到空闲才能 Run。排队期间被取消的任务已是
// 终态，直接跳过。
func (o *Orchestrator) runQueued(item *queuedSubmit) bool {
	for {
		checkCtx, checkCancel := context.WithTimeout(context.Background(), 10*time.Second)
		task, err := o.store.GetTask(checkCtx, item.task.ID)
		checkCancel()
		if err == nil && task.IsTerminal() {
			o.logger.WithTaskID(item.task.ID).Info("queued task already terminal, skipped")
			return true
		}

		if o.worker.CurrentTask() == "" {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			err := o.worker.Run(ctx, item.task, item.filePath, item.cookies, o.onTransition)
			cancel()
			if err == nil {
				return true
			}
			// 与直接提交撞车抢占了 Worker，回去继续等
			if !errors.Is(err, model.ErrBusy) {
				o.logger.WithTaskID(item.task.ID).WithError(err).Error("queued submit failed")
				failCtx, failCancel := context.WithTimeout(context.Background(), 10*time.Second)
				if task, gerr := o.store.GetTask(failCtx, item.task.ID); gerr == nil && !task.IsTerminal() {
					o.failTask(failCtx, task, err)
				}
				failCancel()
				return true
			}
		}

		select {
		case <-o.stopCh:
			return false
		case <-time.After(o.queuePoll):
		}
	}
}

// stateToStatus Worker 状态 → 任务状态
//
// SESSION_READY / SUBMITTING 是 Worker 内部过渡态，任务记录
// 停留在前一个状态，不单独落盘。
func stateToStatus(state gov24.WorkerState) (model.SubmissionStatus, bool) {
	switch state {
	case gov24.StateAuth:
		return model.StatusAuthenticating, true
	case gov24.StateUploading:
		return model.StatusUploading, true
	case gov24.StateAwaiting:
		return model.StatusAwaitingConfirmation, true
	case gov24.StateSubmitted:
		return model.StatusSubmitted, true
	case gov24.StateFailed:
		return model.StatusFailed, true
	default:
		return "", false
	}
}

// generateTaskID 生成 task- 前缀的随机ID
func generateTaskID() string {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("task-%d", time.Now().UnixNano())
	}
	return "task-" + hex.EncodeToString(b)
}
