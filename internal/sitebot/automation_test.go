package sitebot

import (
	"context"
	"strings"
	"testing"

	"gov-submit-admin/internal/browser"
	"gov-submit-admin/internal/model"
)

func TestExecuteAllFieldsMapped(t *testing.T) {
	mock := browser.NewMockSession()
	a := NewAutomation(mock.Factory())

	result, err := a.Execute(context.Background(), model.SiteVentureIn, map[string]string{
		"company_name":    "테스트기업",
		"business_number": "1234567890",
		"company_type":    "CORP",
	})
	if err != nil {
		t.Fatalf("Execute 失败: %v", err)
	}
	if !result.Success {
		t.Errorf("全部字段已映射应 success=true: %+v", result)
	}
	if len(result.FilledFields) != 3 {
		t.Errorf("已填字段 = %v", result.FilledFields)
	}
	if result.FallbackData != nil {
		t.Errorf("不应有人工补录数据: %v", result.FallbackData)
	}

	// 文本字段原生赋值，下拉字段走选择
	if mock.Values[`input[name="cmpNm"]`] != "테스트기업" {
		t.Errorf("company_name 未写入")
	}
	if mock.Selections[`select[name="cmpSe"]`] != "CORP" {
		t.Errorf("company_type 未选择")
	}
	// 全部成功时点击保存
	if len(mock.Clicks) != 1 || mock.Clicks[0] != `button#btnSave` {
		t.Errorf("保存按钮未点击: %v", mock.Clicks)
	}
}

func TestExecuteUnmappedFieldDegrades(t *testing.T) {
	mock := browser.NewMockSession()
	a := NewAutomation(mock.Factory())

	result, err := a.Execute(context.Background(), model.SiteVentureIn, map[string]string{
		"company_name": "테스트기업",
		"unknownField": "v",
	})
	if err != nil {
		t.Fatalf("未映射字段不应返回错误: %v", err)
	}
	if result.Success {
		t.Error("存在未映射字段应 success=false")
	}
	if result.FallbackData["unknownField"] != "v" {
		t.Errorf("FallbackData 应包含未映射字段: %v", result.FallbackData)
	}
	// 已映射的字段照常填
	if len(result.FilledFields) != 1 || result.FilledFields[0] != "company_name" {
		t.Errorf("已填字段 = %v", result.FilledFields)
	}
	if !strings.Contains(result.Detail, "unknownField") {
		t.Errorf("人工补录说明应提到字段名: %q", result.Detail)
	}
	// 部分失败不点保存
	if len(mock.Clicks) != 0 {
		t.Errorf("部分失败不应保存表单: %v", mock.Clicks)
	}
}

func TestExecuteSelectorMissingDegrades(t *testing.T) {
	mock := browser.NewMockSession()
	mock.MissingSelectors[`input[name="cmpNm"]`] = true
	a := NewAutomation(mock.Factory())

	result, err := a.Execute(context.Background(), model.SiteVentureIn, map[string]string{
		"company_name": "테스트기업",
		"ceo_name":     "홍길동",
	})
	if err != nil {
		t.Fatalf("选择器缺失不应返回错误: %v", err)
	}
	if result.Success {
		t.Error("选择器缺失应 success=false")
	}
	if result.FallbackData["company_name"] != "테스트기업" {
		t.Errorf("失败字段应进人工补录: %v", result.FallbackData)
	}
	if len(result.FilledFields) != 1 {
		t.Errorf("其余字段应照常填: %v", result.FilledFields)
	}
}

func TestExecuteNavigationFailureDegrades(t *testing.T) {
	mock := browser.NewMockSession()
	mock.NavigateErr = context.DeadlineExceeded
	a := NewAutomation(mock.Factory())

	fields := map[string]string{"company_name": "테스트기업", "phone": "021234567"}
	result, err := a.Execute(context.Background(), model.SiteVentureIn, fields)
	if err != nil {
		t.Fatalf("导航失败不应返回错误: %v", err)
	}
	if result.Success {
		t.Error("导航失败应 success=false")
	}
	if len(result.FallbackData) != len(fields) {
		t.Errorf("全部字段应进人工补录: %v", result.FallbackData)
	}
}

func TestExecuteUnknownSite(t *testing.T) {
	mock := browser.NewMockSession()
	a := NewAutomation(mock.Factory())

	result, err := a.Execute(context.Background(), model.TargetSite("nosuch"), map[string]string{"f": "v"})
	if err != nil {
		t.Fatalf("未注册站点不应返回错误: %v", err)
	}
	if result.Success || result.FallbackData["f"] != "v" {
		t.Errorf("未注册站点应整体降级: %+v", result)
	}
}

func TestRegisterSiteAdditive(t *testing.T) {
	RegisterSite(&SiteProfile{
		Site:      model.TargetSite("newsite"),
		FormURL:   "https://example.test/form",
		Selectors: map[string]string{"f": `input#f`},
	})
	defer func() {
		sites.mu.Lock()
		delete(sites.profiles, model.TargetSite("newsite"))
		sites.mu.Unlock()
	}()

	mock := browser.NewMockSession()
	a := NewAutomation(mock.Factory())
	result, err := a.Execute(context.Background(), model.TargetSite("newsite"), map[string]string{"f": "v"})
	if err != nil || !result.Success {
		t.Errorf("新注册站点应可用: %+v, %v", result, err)
	}
}
