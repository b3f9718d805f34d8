// Package model 错误模型
//
// 错误分两层：
//   - 哨兵错误：调用方用 errors.Is 做分支判断
//   - AutomationError：浏览器自动化边界的结构化错误，
//     携带站点/选择器/步骤信息（绝不携带个人信息）
package model

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthRequest 门户认证表单不可识别或发起认证时网络失败
	ErrAuthRequest = errors.New("auth request failed")

	// ErrAuthTimeout 推送挑战在 5 分钟窗口内未完成
	ErrAuthTimeout = errors.New("auth challenge timed out")

	// ErrSessionExpired 持久化浏览器会话被目标站点拒绝（服务端已过期）
	ErrSessionExpired = errors.New("persisted session expired")

	// ErrDomStructure 预期的 DOM 元素不存在——目标站点改版，不可重试
	ErrDomStructure = errors.New("unexpected dom structure")

	// ErrUpload 文件注入表单失败
	ErrUpload = errors.New("file upload failed")

	// ErrInvalidState 在错误的状态下请求操作（如对非待确认任务执行 confirm）
	ErrInvalidState = errors.New("invalid task state")

	// ErrBusy Worker 已被占用，请求被拒绝
	ErrBusy = errors.New("worker busy")

	// ErrTaskNotFound 任务不存在
	ErrTaskNotFound = errors.New("task not found")

	// ErrSessionNotFound 认证会话不存在（未注册或已被清扫）
	ErrSessionNotFound = errors.New("auth session not found")

	// ErrDocumentGeneration 文档生成协作方返回失败
	ErrDocumentGeneration = errors.New("document generation failed")

	// ErrValidation 提交请求字段校验失败
	ErrValidation = errors.New("validation failed")
)

// ============================================================================
// AutomationError - 自动化边界结构化错误
// ============================================================================

// ErrorKind 自动化错误类别
type ErrorKind string

const (
	KindAuthRequest    ErrorKind = "auth_request"
	KindAuthTimeout    ErrorKind = "auth_timeout"
	KindSessionExpired ErrorKind = "session_expired"
	KindDomStructure   ErrorKind = "dom_structure"
	KindUpload         ErrorKind = "upload"
	KindNavigation     ErrorKind = "navigation"
	KindTimeout        ErrorKind = "timeout"
)

// AutomationError 浏览器自动化边界错误
//
// 外部站点的每一次 DOM 交互都是可失败的边界调用。
// 这里记录足以定位问题的上下文（站点、选择器、步骤），
// 供运维区分“站点改版”和“网络抖动”。内容禁止包含个人信息。
type AutomationError struct {
	Kind     ErrorKind // 错误类别
	Site     string    // 目标站点
	Step     string    // 状态机步骤（如 login_form / file_attach）
	Selector string    // 涉及的 CSS 选择器（可为空）
	Err      error     // 底层错误
}

func (e *AutomationError) Error() string {
	if e.Selector != "" {
		return fmt.Sprintf("%s: site=%s step=%s selector=%s: %v", e.Kind, e.Site, e.Step, e.Selector, e.Err)
	}
	return fmt.Sprintf("%s: site=%s step=%s: %v", e.Kind, e.Site, e.Step, e.Err)
}

func (e *AutomationError) Unwrap() error {
	// 结构化错误同时挂到对应的哨兵上，调用方两种判法都可用
	switch e.Kind {
	case KindAuthRequest:
		return errJoin(ErrAuthRequest, e.Err)
	case KindAuthTimeout:
		return errJoin(ErrAuthTimeout, e.Err)
	case KindSessionExpired:
		return errJoin(ErrSessionExpired, e.Err)
	case KindDomStructure:
		return errJoin(ErrDomStructure, e.Err)
	case KindUpload:
		return errJoin(ErrUpload, e.Err)
	}
	return e.Err
}

func errJoin(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	return errors.Join(sentinel, cause)
}

// NewAutomationError 创建自动化边界错误
func NewAutomationError(kind ErrorKind, site, step, selector string, err error) *AutomationError {
	return &AutomationError{Kind: kind, Site: site, Step: step, Selector: selector, Err: err}
}

// Retryable 判断错误是否值得有界重试
//
// 结构性错误（DOM 改版、状态非法、占用）重试没有意义；
// 导航/超时/上传类的瞬时失败允许小次数退避重试。
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDomStructure) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrBusy) ||
		errors.Is(err, ErrAuthTimeout) ||
		errors.Is(err, ErrSessionExpired) {
		return false
	}
	var ae *AutomationError
	if errors.As(err, &ae) {
		switch ae.Kind {
		case KindNavigation, KindTimeout, KindUpload:
			return true
		default:
			return false
		}
	}
	// 未分类错误按瞬时处理，交给有界重试兜底
	return true
}

// FailureKind 提取错误类别标识（写入任务记录的 failure_kind 字段）
func FailureKind(err error) string {
	var ae *AutomationError
	if errors.As(err, &ae) {
		return string(ae.Kind)
	}
	switch {
	case errors.Is(err, ErrAuthRequest):
		return string(KindAuthRequest)
	case errors.Is(err, ErrAuthTimeout):
		return string(KindAuthTimeout)
	case errors.Is(err, ErrSessionExpired):
		return string(KindSessionExpired)
	case errors.Is(err, ErrDomStructure):
		return string(KindDomStructure)
	case errors.Is(err, ErrUpload):
		return string(KindUpload)
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrDocumentGeneration):
		return "document_generation"
	}
	return "internal"
}
