// Package model 定义核心数据模型
//
// task.go 包含提交任务相关的数据模型定义：
//   - SubmissionTask：一次政务门户提交任务（运行时实例）
//   - TargetSite：目标站点枚举
//   - SubmissionMode：文件来源模式枚举
//   - SubmissionStatus：任务状态枚举
package model

import (
	"time"
)

// ============================================================================
// TargetSite - 目标站点枚举
// ============================================================================

// TargetSite 目标站点
type TargetSite string

const (
	// SiteGov24 政府24（정부24）民愿提交门户
	// 有专用 Worker，支持简易认证 + 文件上传全流程
	SiteGov24 TargetSite = "gov24"

	// SiteVentureIn 벤처인（Venture In）创业企业确认申请门户
	// 通过通用表单填充器处理
	SiteVentureIn TargetSite = "venturein"

	// SiteKStartup K-Startup 创业支援门户
	// 通过通用表单填充器处理
	SiteKStartup TargetSite = "kstartup"
)

// HasDedicatedWorker 判断站点是否有专用 Worker
//
// 只有 gov24 走完整的认证 + 上传 + 人工确认状态机，
// 其余站点走通用表单填充器（尽力而为 + 人工兜底）。
func (s TargetSite) HasDedicatedWorker() bool {
	return s == SiteGov24
}

// Valid 判断站点是否受支持
func (s TargetSite) Valid() bool {
	switch s {
	case SiteGov24, SiteVentureIn, SiteKStartup:
		return true
	}
	return false
}

// ============================================================================
// SubmissionMode - 文件来源模式枚举
// ============================================================================

// SubmissionMode 提交文件来源
type SubmissionMode string

const (
	// ModeGenerate 由文档生成层按模板生成文件
	ModeGenerate SubmissionMode = "generate"

	// ModeUpload 使用调用方上传的文件
	ModeUpload SubmissionMode = "upload"
)

// Valid 判断模式是否合法
func (m SubmissionMode) Valid() bool {
	return m == ModeGenerate || m == ModeUpload
}

// ============================================================================
// SubmissionStatus - 任务状态枚举
// ============================================================================

// SubmissionStatus 提交任务状态
//
// 状态流转：
//
//	pending → authenticating → uploading → awaiting_confirmation → submitted
//	   └──────────┴───────────────┴──────────────┴──→ failed（任一阶段可失败）
//
// submitted 和 failed 为终态。awaiting_confirmation 表示截图已就绪、
// 等待操作者确认后才会点击最终提交按钮——不存在自动提交路径。
type SubmissionStatus string

const (
	// StatusPending 已创建，尚未开始执行
	StatusPending SubmissionStatus = "pending"

	// StatusAuthenticating 正在完成门户认证（登录或复用持久化会话）
	StatusAuthenticating SubmissionStatus = "authenticating"

	// StatusUploading 正在向目标表单注入文件
	StatusUploading SubmissionStatus = "uploading"

	// StatusAwaitingConfirmation 上传完成，截图待人工确认
	StatusAwaitingConfirmation SubmissionStatus = "awaiting_confirmation"

	// StatusSubmitted 已提交（终态）
	StatusSubmitted SubmissionStatus = "submitted"

	// StatusFailed 已失败（终态）
	StatusFailed SubmissionStatus = "failed"
)

// IsTerminal 判断是否为终态
func (s SubmissionStatus) IsTerminal() bool {
	return s == StatusSubmitted || s == StatusFailed
}

// ============================================================================
// SubmissionTask - 提交任务
// ============================================================================

// SubmissionTask 一次政务门户提交任务
//
// 生命周期：
//   - 由编排器在收到提交请求时创建（status=pending）
//   - 只有编排器和它驱动的 Worker 会修改任务
//   - 每次状态流转都会写入 TaskStore（进程重启后未完成任务标记失败）
//
// 注意：InputFields 只承载表单业务字段（模板编号、事项名称等），
// 认证用的个人信息（姓名、生日、手机号）按值传入认证调用，
// 绝不落入任务记录。
type SubmissionTask struct {
	// ID 唯一标识（task-xxxxxxxxxxxx）
	ID string `json:"id" bson:"_id" db:"id"`

	// AccountID 发起提交的账号（用于授权 confirm/status 操作）
	AccountID string `json:"account_id,omitempty" bson:"account_id,omitempty" db:"account_id"`

	// TargetSite 目标站点
	TargetSite TargetSite `json:"target_site" bson:"target_site" db:"target_site"`

	// Mode 文件来源模式
	Mode SubmissionMode `json:"mode" bson:"mode" db:"mode"`

	// TemplateCode 文档模板编号（mode=generate 时必填）
	TemplateCode string `json:"template_code,omitempty" bson:"template_code,omitempty" db:"template_code"`

	// InputFields 表单字段（逻辑字段名 → 值）
	InputFields map[string]string `json:"input_fields,omitempty" bson:"input_fields,omitempty" db:"input_fields"`

	// FileName 提交文件名（展示用）
	FileName string `json:"file_name,omitempty" bson:"file_name,omitempty" db:"file_name"`

	// Status 任务状态
	Status SubmissionStatus `json:"status" bson:"status" db:"status"`

	// FailureKind 失败类别（status=failed 时填充，如 dom_structure / upload / auth_timeout）
	FailureKind string `json:"failure_kind,omitempty" bson:"failure_kind,omitempty" db:"failure_kind"`

	// FailureDetail 失败详情（站点/选择器/步骤，不含个人信息）
	FailureDetail string `json:"failure_detail,omitempty" bson:"failure_detail,omitempty" db:"failure_detail"`

	// ScreenshotRef 预提交截图引用（本地路径或对象存储 key）
	ScreenshotRef string `json:"screenshot_ref,omitempty" bson:"screenshot_ref,omitempty" db:"screenshot_ref"`

	// FallbackData 自动化失败时的人工补录指引（通用填充器产出）
	FallbackData string `json:"fallback_data,omitempty" bson:"fallback_data,omitempty" db:"fallback_data"`

	// CreatedAt 创建时间
	CreatedAt time.Time `json:"created_at" bson:"created_at" db:"created_at"`

	// UpdatedAt 最近一次状态变更时间
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at" db:"updated_at"`

	// CompletedAt 进入终态的时间
	CompletedAt *time.Time `json:"completed_at,omitempty" bson:"completed_at,omitempty" db:"completed_at"`
}

// IsAwaitingConfirmation 判断是否在等待人工确认
func (t *SubmissionTask) IsAwaitingConfirmation() bool {
	return t.Status == StatusAwaitingConfirmation
}

// IsTerminal 判断任务是否已结束
func (t *SubmissionTask) IsTerminal() bool {
	return t.Status.IsTerminal()
}

// CanTransitionTo 校验状态流转是否合法
//
// 关键约束：submitted 只能从 awaiting_confirmation 进入；
// failed 可以从任何非终态进入；终态不再流转。
func (t *SubmissionTask) CanTransitionTo(next SubmissionStatus) bool {
	if t.Status.IsTerminal() {
		return false
	}
	switch next {
	case StatusAuthenticating:
		return t.Status == StatusPending
	case StatusUploading:
		// 无认证环节的站点直接从 pending 进入 uploading
		return t.Status == StatusAuthenticating || t.Status == StatusPending
	case StatusAwaitingConfirmation:
		return t.Status == StatusUploading
	case StatusSubmitted:
		return t.Status == StatusAwaitingConfirmation
	case StatusFailed:
		return true
	}
	return false
}
