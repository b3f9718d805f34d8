// Package browser 浏览器自动化抽象层
//
// 状态机（Worker、通用填充器、认证流程）只依赖这里定义的
// Session 窄接口，不直接接触具体的浏览器控制库。
// 当前实现：
//   - ChromeSession：基于 CDP（chromedp）驱动真实 Chromium
//   - Mock：测试用内存实现（mock.go）
//
// 文件注入走 DOM file-input API、取值注入走原生 value 赋值，
// 刻意避开逐键模拟——部分政务站点的安全键盘会拦截脚本按键。
package browser

import (
	"context"
	"errors"

	"gov-submit-admin/internal/model"
)

// ErrNoElement 选择器未命中任何元素
//
// 调用方据此区分“站点改版”（结构性，不可重试）与网络类瞬时失败。
var ErrNoElement = errors.New("element not found")

// IsNoElement 判断错误是否为选择器未命中
func IsNoElement(err error) bool {
	return errors.Is(err, ErrNoElement)
}

// Session 一次浏览器会话
//
// 一个 Session 对应一个浏览器上下文和一个活动页面，
// 与一次自动化运行同生命周期：运行开始时创建，结束或
// 致命错误时 Close。所有方法都是挂起点，超时由传入的
// context 控制。
type Session interface {
	// Navigate 导航到目标地址
	Navigate(ctx context.Context, url string) error

	// WaitVisible 等待选择器对应元素可见
	WaitVisible(ctx context.Context, selector string) error

	// Exists 检查元素是否存在（不等待）
	Exists(ctx context.Context, selector string) (bool, error)

	// SetValue 以原生方式写入表单值（element.value 赋值 + input/change 事件）
	SetValue(ctx context.Context, selector, value string) error

	// SelectOption 选中下拉框选项（按 value）
	SelectOption(ctx context.Context, selector, value string) error

	// Click 点击元素
	Click(ctx context.Context, selector string) error

	// Upload 通过 DOM file-input API 将本地文件挂到文件输入框
	Upload(ctx context.Context, selector, filePath string) error

	// Screenshot 截取整页截图（PNG）
	Screenshot(ctx context.Context) ([]byte, error)

	// Cookies 导出当前上下文的全部 Cookie
	Cookies(ctx context.Context) ([]model.SessionCookie, error)

	// SetCookies 向上下文注入 Cookie（复用已认证会话）
	SetCookies(ctx context.Context, cookies []model.SessionCookie) error

	// Evaluate 执行页面内 JavaScript，result 为 JSON 反序列化目标（可为 nil）
	Evaluate(ctx context.Context, js string, result interface{}) error

	// Close 关闭页面与浏览器上下文，释放进程资源
	Close() error
}

// Factory 创建 Session 的工厂
//
// 编排器/Worker 通过工厂按需创建会话，测试注入返回 Mock 的工厂。
type Factory interface {
	NewSession(ctx context.Context) (Session, error)
}

// FactoryFunc 函数式 Factory 适配器
type FactoryFunc func(ctx context.Context) (Session, error)

func (f FactoryFunc) NewSession(ctx context.Context) (Session, error) {
	return f(ctx)
}
