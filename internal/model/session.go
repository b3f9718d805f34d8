// Package model 定义核心数据模型
//
// session.go 包含简易认证会话相关的数据模型定义：
//   - AuthSession：一次进行中的简易认证握手
//   - AuthStatus：认证会话状态枚举
//   - PersonalInfo：认证所需个人信息（只在内存中按值传递）
//   - Carrier：运营商/认证渠道枚举
package model

import (
	"time"
)

// AuthSessionTTL 认证窗口时长
//
// 门户端的推送挑战（KakaoTalk/运营商确认）有效期为 5 分钟，
// 会话记录的 ExpiresAt 恒等于 CreatedAt + AuthSessionTTL。
const AuthSessionTTL = 5 * time.Minute

// ============================================================================
// AuthStatus - 认证会话状态枚举
// ============================================================================

// AuthStatus 认证会话状态
type AuthStatus string

const (
	// AuthStatusWaiting 已发起推送挑战，等待用户在手机上完成确认
	AuthStatusWaiting AuthStatus = "waiting_auth"

	// AuthStatusAuthenticated 挑战已完成，会话 Cookie 已提取
	AuthStatusAuthenticated AuthStatus = "authenticated"

	// AuthStatusFailed 挑战失败或超时
	AuthStatusFailed AuthStatus = "failed"

	// AuthStatusExpired 超过认证窗口，等待清扫
	AuthStatusExpired AuthStatus = "expired"
)

// ============================================================================
// Carrier - 认证渠道枚举
// ============================================================================

// Carrier 简易认证渠道
type Carrier string

const (
	CarrierKakao Carrier = "kakao"
	CarrierSKT   Carrier = "skt"
	CarrierKT    Carrier = "kt"
	CarrierLGU   Carrier = "lgu"
)

// Valid 判断渠道是否受支持
func (c Carrier) Valid() bool {
	switch c {
	case CarrierKakao, CarrierSKT, CarrierKT, CarrierLGU:
		return true
	}
	return false
}

// ============================================================================
// PersonalInfo - 认证个人信息
// ============================================================================

// PersonalInfo 简易认证所需的个人信息
//
// 该结构体只在发起认证的调用链上按值传递，生命周期不超过
// RequestAuth 调用本身：不写入 AuthSession 记录、不写入任何
// 存储、不出现在日志（日志层有对应的脱敏辅助函数）。
// 刻意不带 json/db 标签，防止被顺手序列化。
type PersonalInfo struct {
	// Name 姓名
	Name string
	// BirthDate 生日（YYYYMMDD）
	BirthDate string
	// Phone 手机号（数字串）
	Phone string
}

// Complete 判断必填项是否齐全
func (p PersonalInfo) Complete() bool {
	return p.Name != "" && p.BirthDate != "" && p.Phone != ""
}

// ============================================================================
// AuthSession - 认证会话
// ============================================================================

// AuthSession 一次进行中的简易认证握手
//
// 由 AuthSessionStore 独占持有，仅存活于进程内存：
//   - 进程重启即丢失（会话本来就只有 5 分钟，可重新发起）
//   - 记录本身不含任何个人信息，只有不透明的会话 ID 与时间戳
//   - 认证成功后提取的 Cookie 暂存在 Cookies 字段，随会话一起被清扫
type AuthSession struct {
	// ID 不透明会话标识（调用方生成的随机 ID）
	ID string `json:"id"`

	// Status 会话状态
	Status AuthStatus `json:"status"`

	// Carrier 发起认证时选择的渠道
	Carrier Carrier `json:"carrier,omitempty"`

	// CreatedAt 创建时间
	CreatedAt time.Time `json:"created_at"`

	// ExpiresAt 过期时间（恒等于 CreatedAt + 5 分钟）
	ExpiresAt time.Time `json:"expires_at"`

	// Cookies 认证成功后提取的门户会话 Cookie
	// 只在内存中短暂停留，供 Worker 换取持久化浏览器状态
	Cookies []SessionCookie `json:"-"`
}

// SessionCookie 门户会话 Cookie
type SessionCookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain,omitempty"`
	Path     string `json:"path,omitempty"`
	Secure   bool   `json:"secure,omitempty"`
	HTTPOnly bool   `json:"http_only,omitempty"`
}

// ExpiredAt 判断会话在给定时刻是否已过期
func (s *AuthSession) ExpiredAt(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// IsWaiting 判断是否仍在等待用户完成挑战
func (s *AuthSession) IsWaiting() bool {
	return s.Status == AuthStatusWaiting
}
