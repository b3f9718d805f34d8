// Package browser CDP 实现
package browser

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"

	"gov-submit-admin/internal/model"
)

// Options ChromeSession 创建参数
type Options struct {
	// ExecPath 本地 Chromium 路径（留空使用 chromedp 默认查找）
	ExecPath string
	// RemoteURL CDP websocket 地址（容器化浏览器），非空时优先于本地启动
	RemoteURL string
	// Headless 是否无头
	Headless bool
	// ActionTimeout 单次 DOM 操作的默认超时
	ActionTimeout time.Duration
	// NavTimeout 单次导航的默认超时
	NavTimeout time.Duration
}

// ChromeSession 基于 chromedp 的 Session 实现
//
// 持有一条独立的 allocator + browser context 链，Close 时整体释放。
// 每个方法在调用方 context 之上再叠加一层操作超时，保证任何
// 网络型浏览器操作都不会无限挂起调用方。
type ChromeSession struct {
	taskCtx       context.Context
	cancelTask    context.CancelFunc
	cancelAlloc   context.CancelFunc
	actionTimeout time.Duration
	navTimeout    time.Duration
}

var _ Session = (*ChromeSession)(nil)

// NewChromeSession 创建 Chrome 会话
//
// RemoteURL 非空时连接已运行的浏览器（docker 运行时），
// 否则用 ExecAllocator 启动本地进程。
func NewChromeSession(ctx context.Context, o Options) (*ChromeSession, error) {
	if o.ActionTimeout == 0 {
		o.ActionTimeout = 15 * time.Second
	}
	if o.NavTimeout == 0 {
		o.NavTimeout = 30 * time.Second
	}

	var allocCtx context.Context
	var cancelAlloc context.CancelFunc

	if o.RemoteURL != "" {
		allocCtx, cancelAlloc = chromedp.NewRemoteAllocator(ctx, o.RemoteURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", o.Headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-first-run", true),
			chromedp.Flag("lang", "ko-KR"),
		)
		if o.ExecPath != "" {
			opts = append(opts, chromedp.ExecPath(o.ExecPath))
		}
		allocCtx, cancelAlloc = chromedp.NewExecAllocator(ctx, opts...)
	}

	taskCtx, cancelTask := chromedp.NewContext(allocCtx)

	// 空跑一次，提前拉起浏览器进程，让启动失败在这里暴露
	if err := chromedp.Run(taskCtx); err != nil {
		cancelTask()
		cancelAlloc()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	return &ChromeSession{
		taskCtx:       taskCtx,
		cancelTask:    cancelTask,
		cancelAlloc:   cancelAlloc,
		actionTimeout: o.ActionTimeout,
		navTimeout:    o.NavTimeout,
	}, nil
}

// run 在调用方 context 与会话 context 的交集上执行动作
func (s *ChromeSession) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	opCtx, cancel := context.WithTimeout(s.taskCtx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- chromedp.Run(opCtx, actions...) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}
}

// Navigate 导航到目标地址
func (s *ChromeSession) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, s.navTimeout, chromedp.Navigate(url))
}

// WaitVisible 等待元素可见；超时视为元素不存在
func (s *ChromeSession) WaitVisible(ctx context.Context, selector string) error {
	return mapWaitErr(s.run(ctx, s.actionTimeout, chromedp.WaitVisible(selector, chromedp.ByQuery)), selector)
}

// mapWaitErr 把等待超时归为元素不存在
//
// chromedp 可能返回包装过的 context 错误，必须用 errors.Is 判断。
func mapWaitErr(err error, selector string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrNoElement, selector)
	}
	return err
}

// Exists 检查元素是否存在（不等待）
func (s *ChromeSession) Exists(ctx context.Context, selector string) (bool, error) {
	var count int
	js := fmt.Sprintf(`document.querySelectorAll(%q).length`, selector)
	if err := s.run(ctx, s.actionTimeout, chromedp.Evaluate(js, &count)); err != nil {
		return false, err
	}
	return count > 0, nil
}

// SetValue 原生方式写值：直接给 element.value 赋值并派发 input/change 事件。
// 不走键盘事件，避免触发站点的安全键盘/按键拦截。
func (s *ChromeSession) SetValue(ctx context.Context, selector, value string) error {
	if err := s.requireElement(ctx, selector); err != nil {
		return err
	}
	js := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		el.value = %q;
		el.dispatchEvent(new Event('input', {bubbles: true}));
		el.dispatchEvent(new Event('change', {bubbles: true}));
		return true;
	})()`, selector, value)
	var ok bool
	return s.run(ctx, s.actionTimeout, chromedp.Evaluate(js, &ok))
}

// SelectOption 选中下拉框选项
func (s *ChromeSession) SelectOption(ctx context.Context, selector, value string) error {
	if err := s.requireElement(ctx, selector); err != nil {
		return err
	}
	js := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		el.value = %q;
		el.dispatchEvent(new Event('change', {bubbles: true}));
		return el.value === %q;
	})()`, selector, value, value)
	var ok bool
	if err := s.run(ctx, s.actionTimeout, chromedp.Evaluate(js, &ok)); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: option %q not present in %s", ErrNoElement, value, selector)
	}
	return nil
}

// Click 点击元素
func (s *ChromeSession) Click(ctx context.Context, selector string) error {
	if err := s.requireElement(ctx, selector); err != nil {
		return err
	}
	return s.run(ctx, s.actionTimeout, chromedp.Click(selector, chromedp.ByQuery))
}

// Upload 通过 DOM file-input API 挂载文件
func (s *ChromeSession) Upload(ctx context.Context, selector, filePath string) error {
	if err := s.requireElement(ctx, selector); err != nil {
		return err
	}
	return s.run(ctx, s.actionTimeout,
		chromedp.SetUploadFiles(selector, []string{filePath}, chromedp.ByQuery))
}

// Screenshot 整页截图
func (s *ChromeSession) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, s.actionTimeout, chromedp.FullScreenshot(&buf, 90)); err != nil {
		return nil, err
	}
	return buf, nil
}

// Cookies 导出全部 Cookie
func (s *ChromeSession) Cookies(ctx context.Context) ([]model.SessionCookie, error) {
	var out []model.SessionCookie
	err := s.run(ctx, s.actionTimeout, chromedp.ActionFunc(func(c context.Context) error {
		cookies, err := storage.GetCookies().Do(c)
		if err != nil {
			return err
		}
		for _, ck := range cookies {
			out = append(out, model.SessionCookie{
				Name:     ck.Name,
				Value:    ck.Value,
				Domain:   ck.Domain,
				Path:     ck.Path,
				Secure:   ck.Secure,
				HTTPOnly: ck.HTTPOnly,
			})
		}
		return nil
	}))
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SetCookies 注入 Cookie
func (s *ChromeSession) SetCookies(ctx context.Context, cookies []model.SessionCookie) error {
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, ck := range cookies {
		params = append(params, &network.CookieParam{
			Name:     ck.Name,
			Value:    ck.Value,
			Domain:   ck.Domain,
			Path:     ck.Path,
			Secure:   ck.Secure,
			HTTPOnly: ck.HTTPOnly,
		})
	}
	return s.run(ctx, s.actionTimeout, chromedp.ActionFunc(func(c context.Context) error {
		return storage.SetCookies(params).Do(c)
	}))
}

// Evaluate 执行页面内 JavaScript
func (s *ChromeSession) Evaluate(ctx context.Context, js string, result interface{}) error {
	if result == nil {
		var discard interface{}
		result = &discard
	}
	return s.run(ctx, s.actionTimeout, chromedp.Evaluate(js, result))
}

// Close 释放浏览器上下文与进程
func (s *ChromeSession) Close() error {
	s.cancelTask()
	s.cancelAlloc()
	log.Printf("[browser] session closed")
	return nil
}

// requireElement 断言元素存在，不存在返回 ErrNoElement
func (s *ChromeSession) requireElement(ctx context.Context, selector string) error {
	ok, err := s.Exists(ctx, selector)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoElement, selector)
	}
	return nil
}
