// Package gov24 政府门户（gov.kr）自动化
//
// 两部分职责：
//   - AuthFlow：驱动简便认证（운영商/KakaoTalk 推送挑战）握手，
//     成功后提取站点 Cookie。个人信息只按值传入认证调用，
//     绝不写入会话记录、磁盘或日志。
//   - Worker：串行化的提交状态机，见 worker.go。
package gov24

import (
	"context"
	"fmt"
	"sync"

	"gov-submit-admin/internal/authsession"
	"gov-submit-admin/internal/browser"
	"gov-submit-admin/internal/model"
	"gov-submit-admin/pkg/logging"
)

// 运营商下拉框取值
var carrierOptionValues = map[model.Carrier]string{
	model.CarrierKakao: "KAKAO",
	model.CarrierSKT:   "SKT",
	model.CarrierKT:    "KT",
	model.CarrierLGU:   "LGU",
}

// AuthFlow 简便认证流程
type AuthFlow struct {
	factory  browser.Factory
	sessions *authsession.Store
	baseURL  string
	logger   *logging.Logger

	mu sync.Mutex
	// active 会话ID → 停留在认证等待页的浏览器页面
	active map[string]browser.Session
}

// NewAuthFlow 创建认证流程
func NewAuthFlow(factory browser.Factory, sessions *authsession.Store, baseURL string) *AuthFlow {
	f := &AuthFlow{
		factory:  factory,
		sessions: sessions,
		baseURL:  baseURL,
		logger:   logging.Default("gov24.authflow"),
		active:   make(map[string]browser.Session),
	}
	// 会话被清扫或删除时回收停留在认证页的浏览器页面，
	// 用户从未完成挑战也不会泄漏浏览器进程
	sessions.OnEvict(f.closePage)
	return f
}

// RequestAuth 发起简便认证
//
// 提交姓名/生日/手机号/运营商，触发外部推送挑战后立即返回，
// 不等待用户在手机上完成确认。浏览器页面保持打开，供
// ConfirmAuth 轮询结果。
func (f *AuthFlow) RequestAuth(ctx context.Context, info model.PersonalInfo, carrier model.Carrier) (*model.AuthSession, error) {
	if !info.Complete() {
		return nil, fmt.Errorf("%w: personal info incomplete", model.ErrAuthRequest)
	}
	if !carrier.Valid() {
		return nil, fmt.Errorf("%w: unknown carrier %q", model.ErrAuthRequest, carrier)
	}

	bs, err := f.factory.NewSession(ctx)
	if err != nil {
		return nil, model.NewAutomationError(model.KindAuthRequest, "gov24", "open_browser", "", err)
	}

	if err := f.fillAuthForm(ctx, bs, info, carrier); err != nil {
		bs.Close()
		return nil, err
	}

	sess := f.sessions.Register(carrier)

	f.mu.Lock()
	f.active[sess.ID] = bs
	f.mu.Unlock()

	// 只记录非 PII 元数据
	f.logger.WithSessionID(sess.ID).Info("auth challenge requested",
		"carrier", carrier,
		"phone", logging.RedactPhone(info.Phone))
	return sess, nil
}

// fillAuthForm 在认证表单上填值并触发挑战
func (f *AuthFlow) fillAuthForm(ctx context.Context, bs browser.Session, info model.PersonalInfo, carrier model.Carrier) error {
	if err := bs.Navigate(ctx, f.baseURL+pathSimpleAuth); err != nil {
		return model.NewAutomationError(model.KindAuthRequest, "gov24", "navigate_auth", "", err)
	}
	if err := bs.WaitVisible(ctx, selAuthName); err != nil {
		// 表单结构不认识，视为站点改版
		return model.NewAutomationError(model.KindAuthRequest, "gov24", "auth_form", selAuthName, err)
	}

	steps := []struct {
		step     string
		selector string
		do       func() error
	}{
		{"fill_name", selAuthName, func() error { return bs.SetValue(ctx, selAuthName, info.Name) }},
		{"fill_birth", selAuthBirth, func() error { return bs.SetValue(ctx, selAuthBirth, info.BirthDate) }},
		{"fill_phone", selAuthPhone, func() error { return bs.SetValue(ctx, selAuthPhone, info.Phone) }},
		{"select_carrier", selAuthCarrier, func() error {
			return bs.SelectOption(ctx, selAuthCarrier, carrierOptionValues[carrier])
		}},
		{"agree_terms", selAuthAgree, func() error { return bs.Click(ctx, selAuthAgree) }},
		{"request_challenge", selAuthRequestBtn, func() error { return bs.Click(ctx, selAuthRequestBtn) }},
	}
	for _, s := range steps {
		if err := s.do(); err != nil {
			return model.NewAutomationError(model.KindAuthRequest, "gov24", s.step, s.selector, err)
		}
	}
	return nil
}

// ConfirmAuth 检查外部挑战是否已完成
//
// 幂等：挑战未完成时返回 waiting_auth 且无任何状态变更。
// 完成时提取 Cookie、置 authenticated 并关闭认证页面。
func (f *AuthFlow) ConfirmAuth(ctx context.Context, sessionID string) (*model.AuthSession, error) {
	sess, err := f.sessions.Get(sessionID)
	if err != nil {
		// 已过期被清扫，顺手回收残留页面
		f.closePage(sessionID)
		return nil, err
	}

	// 已经完成过的重复确认直接返回当前状态
	if !sess.IsWaiting() {
		return sess, nil
	}

	f.mu.Lock()
	bs, ok := f.active[sessionID]
	f.mu.Unlock()
	if !ok {
		return nil, model.ErrSessionNotFound
	}

	// 推送挑战完成后页面出现确认按钮
	done, err := bs.Exists(ctx, selAuthCompleteBtn)
	if err != nil {
		return nil, model.NewAutomationError(model.KindAuthRequest, "gov24", "poll_challenge", selAuthCompleteBtn, err)
	}
	if !done {
		return sess, nil
	}

	if err := bs.Click(ctx, selAuthCompleteBtn); err != nil {
		return nil, model.NewAutomationError(model.KindAuthRequest, "gov24", "confirm_challenge", selAuthCompleteBtn, err)
	}
	if err := bs.WaitVisible(ctx, selLoggedInMarker); err != nil {
		f.sessions.UpdateStatus(sessionID, model.AuthStatusFailed)
		f.closePage(sessionID)
		return nil, model.NewAutomationError(model.KindAuthTimeout, "gov24", "await_login", selLoggedInMarker, model.ErrAuthTimeout)
	}

	cookies, err := bs.Cookies(ctx)
	if err != nil {
		return nil, model.NewAutomationError(model.KindAuthRequest, "gov24", "extract_cookies", "", err)
	}

	if err := f.sessions.AttachCookies(sessionID, cookies); err != nil {
		return nil, err
	}
	if err := f.sessions.UpdateStatus(sessionID, model.AuthStatusAuthenticated); err != nil {
		return nil, err
	}
	f.closePage(sessionID)

	f.logger.WithSessionID(sessionID).Info("auth challenge completed", "cookies", len(cookies))
	return f.sessions.Get(sessionID)
}

// Cancel 放弃认证会话并回收页面
func (f *AuthFlow) Cancel(sessionID string) {
	f.closePage(sessionID)
	f.sessions.Delete(sessionID)
	f.logger.WithSessionID(sessionID).Info("auth session cancelled")
}

// closePage 关闭并移除认证页面
func (f *AuthFlow) closePage(sessionID string) {
	f.mu.Lock()
	bs, ok := f.active[sessionID]
	delete(f.active, sessionID)
	f.mu.Unlock()
	if ok {
		bs.Close()
	}
}
