package browser

import (
	"context"
	"fmt"
	"sync"

	"gov-submit-admin/internal/model"
)

// MockSession 可编排的 Session 实现（仅测试用）
//
// MissingSelectors 中的选择器一律返回 ErrNoElement；
// 其余操作被记录下来供断言。
type MockSession struct {
	mu sync.Mutex

	// MissingSelectors 视为页面上不存在的选择器
	MissingSelectors map[string]bool
	// FailOn selector → 注入错误（优先于 MissingSelectors）
	FailOn map[string]error
	// NavigateErr 导航错误注入
	NavigateErr error
	// NavigateFailures 前 N 次导航返回 NavigateErr，之后成功
	NavigateFailures int
	// ScreenshotPNG 截图返回内容
	ScreenshotPNG []byte
	// ScreenshotErr 截图错误注入
	ScreenshotErr error
	// CookieJar Cookies 返回内容，SetCookies 覆盖之
	CookieJar []model.SessionCookie
	// EvaluateResults js 表达式 → 返回值
	EvaluateResults map[string]interface{}

	// 记录
	Navigations []string
	Values      map[string]string
	Selections  map[string]string
	Clicks      []string
	Uploads     map[string]string
	Closed      bool
}

var _ Session = (*MockSession)(nil)

// NewMockSession 创建空白 mock 会话
func NewMockSession() *MockSession {
	return &MockSession{
		MissingSelectors: make(map[string]bool),
		FailOn:           make(map[string]error),
		EvaluateResults:  make(map[string]interface{}),
		ScreenshotPNG:    []byte("png-bytes"),
		Values:           make(map[string]string),
		Selections:       make(map[string]string),
		Uploads:          make(map[string]string),
	}
}

// Factory 返回固定产出此 mock 的工厂
func (m *MockSession) Factory() FactoryFunc {
	return func(ctx context.Context) (Session, error) { return m, nil }
}

func (m *MockSession) check(selector string) error {
	if err, ok := m.FailOn[selector]; ok {
		return err
	}
	if m.MissingSelectors[selector] {
		return fmt.Errorf("%w: %s", ErrNoElement, selector)
	}
	return nil
}

func (m *MockSession) Navigate(ctx context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.NavigateErr != nil {
		if m.NavigateFailures == 0 {
			return m.NavigateErr
		}
		m.NavigateFailures--
		err := m.NavigateErr
		if m.NavigateFailures == 0 {
			m.NavigateErr = nil
		}
		return err
	}
	m.Navigations = append(m.Navigations, url)
	return nil
}

func (m *MockSession) WaitVisible(ctx context.Context, selector string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.check(selector)
}

func (m *MockSession) Exists(ctx context.Context, selector string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.FailOn[selector]; ok {
		return false, err
	}
	return !m.MissingSelectors[selector], nil
}

func (m *MockSession) SetValue(ctx context.Context, selector, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(selector); err != nil {
		return err
	}
	m.Values[selector] = value
	return nil
}

func (m *MockSession) SelectOption(ctx context.Context, selector, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(selector); err != nil {
		return err
	}
	m.Selections[selector] = value
	return nil
}

func (m *MockSession) Click(ctx context.Context, selector string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(selector); err != nil {
		return err
	}
	m.Clicks = append(m.Clicks, selector)
	return nil
}

func (m *MockSession) Upload(ctx context.Context, selector, filePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(selector); err != nil {
		return err
	}
	m.Uploads[selector] = filePath
	return nil
}

func (m *MockSession) Screenshot(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ScreenshotErr != nil {
		return nil, m.ScreenshotErr
	}
	return m.ScreenshotPNG, nil
}

func (m *MockSession) Cookies(ctx context.Context) ([]model.SessionCookie, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.SessionCookie, len(m.CookieJar))
	copy(out, m.CookieJar)
	return out, nil
}

func (m *MockSession) SetCookies(ctx context.Context, cookies []model.SessionCookie) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CookieJar = make([]model.SessionCookie, len(cookies))
	copy(m.CookieJar, cookies)
	return nil
}

func (m *MockSession) Evaluate(ctx context.Context, js string, result interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.EvaluateResults[js]; ok {
		if p, ok := result.(*interface{}); ok {
			*p = v
		}
	}
	return nil
}

func (m *MockSession) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}
