package sitebot

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"gov-submit-admin/internal/browser"
	"gov-submit-admin/internal/model"
	"gov-submit-admin/pkg/logging"
)

// Result 填报结果
//
// Success 为 false 时 FallbackData 必非空：给人工补录用的
// "字段: 值"清单，调用方总能拿到可执行的结果。
type Result struct {
	Success      bool              `json:"success"`
	FilledFields []string          `json:"filled_fields"`
	FallbackData map[string]string `json:"fallback_data,omitempty"`
	Detail       string            `json:"detail,omitempty"`
}

// Automation 通用站点填报器
type Automation struct {
	factory browser.Factory
	logger  *logging.Logger
}

// NewAutomation 创建填报器
func NewAutomation(factory browser.Factory) *Automation {
	return &Automation{
		factory: factory,
		logger:  logging.Default("sitebot"),
	}
}

// Execute 在目标站点上尽力填表
//
// 永不因字段未映射或页面失败而返回错误：做不到的部分进
// FallbackData，只有浏览器本身起不来才返回 error。
func (a *Automation) Execute(ctx context.Context, site model.TargetSite, fields map[string]string) (*Result, error) {
	log := a.logger.WithSite(string(site))

	profile, ok := LookupSite(site)
	if !ok {
		log.Warn("no site profile, degrading to manual fallback")
		return fallbackAll(fields, fmt.Sprintf("site %s not supported for automation", site)), nil
	}

	bs, err := a.factory.NewSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open browser: %w", err)
	}
	defer bs.Close()

	if err := bs.Navigate(ctx, profile.FormURL); err != nil {
		log.WithError(err).Warn("navigation failed, degrading to manual fallback")
		return fallbackAll(fields, "failed to open form page"), nil
	}

	result := &Result{Success: true, FallbackData: make(map[string]string)}

	// 字段按名字稳定排序，填报顺序可重现
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := fields[key]
		selector, mapped := profile.Selectors[key]
		if !mapped {
			result.Success = false
			result.FallbackData[key] = value
			continue
		}

		var fillErr error
		if profile.SelectFields[key] {
			fillErr = bs.SelectOption(ctx, selector, value)
		} else {
			// 原生赋值，不模拟键盘，绕开安全键盘脚本
			fillErr = bs.SetValue(ctx, selector, value)
		}
		if fillErr != nil {
			log.Warn("field fill failed", "field", key, "selector", selector)
			result.Success = false
			result.FallbackData[key] = value
			continue
		}
		result.FilledFields = append(result.FilledFields, key)
	}

	// 全部字段都填上才保存表单
	if result.Success && profile.SubmitSelector != "" {
		if err := bs.Click(ctx, profile.SubmitSelector); err != nil {
			log.WithError(err).Warn("form save failed")
			result.Success = false
			result.Detail = "form filled but save failed, review manually"
		}
	}

	if !result.Success && result.Detail == "" {
		result.Detail = manualSummary(result.FallbackData)
	}
	if len(result.FallbackData) == 0 {
		result.FallbackData = nil
	}

	log.Info("execution finished",
		"success", result.Success,
		"filled", len(result.FilledFields),
		"fallback", len(result.FallbackData))
	return result, nil
}

// fallbackAll 整体降级：所有字段进人工补录清单
func fallbackAll(fields map[string]string, detail string) *Result {
	fb := make(map[string]string, len(fields))
	for k, v := range fields {
		fb[k] = v
	}
	return &Result{Success: false, FallbackData: fb, Detail: detail}
}

// manualSummary 生成人工补录说明
func manualSummary(fallback map[string]string) string {
	if len(fallback) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fallback))
	for k := range fallback {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString("enter manually: ")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%s", k, fallback[k])
	}
	return b.String()
}
