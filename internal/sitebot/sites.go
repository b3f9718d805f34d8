// Package sitebot 通用站点表单填报
//
// 没有专用 Worker 的站点走这里：按站点维护"逻辑字段名 → DOM
// 选择器"映射，尽力填表。自动化是增强而非硬依赖，任何字段
// 映射或导航失败都降级为返回人工补录数据，绝不让任务整体失败。
package sitebot

import (
	"sync"

	"gov-submit-admin/internal/model"
)

// SiteProfile 站点档案
type SiteProfile struct {
	Site model.TargetSite
	// FormURL 表单页面地址
	FormURL string
	// Selectors 逻辑字段名 → CSS 选择器
	Selectors map[string]string
	// SelectFields 需要走下拉选择而非文本赋值的字段
	SelectFields map[string]bool
	// SubmitSelector 表单保存按钮（非最终提交）
	SubmitSelector string
}

// registry 站点档案注册表，新站点做加法注册，不改公共逻辑
type registry struct {
	mu       sync.RWMutex
	profiles map[model.TargetSite]*SiteProfile
}

var sites = &registry{profiles: make(map[model.TargetSite]*SiteProfile)}

// RegisterSite 注册站点档案，同站点重复注册覆盖
func RegisterSite(p *SiteProfile) {
	sites.mu.Lock()
	sites.profiles[p.Site] = p
	sites.mu.Unlock()
}

// LookupSite 按站点取档案
func LookupSite(site model.TargetSite) (*SiteProfile, bool) {
	sites.mu.RLock()
	p, ok := sites.profiles[site]
	sites.mu.RUnlock()
	return p, ok
}

// 内置站点档案
func init() {
	RegisterSite(&SiteProfile{
		Site:    model.SiteVentureIn,
		FormURL: "https://www.smes.go.kr/venturein/pbntc/searchVntrCmp",
		Selectors: map[string]string{
			"company_name":    `input[name="cmpNm"]`,
			"business_number": `input[name="bizRno"]`,
			"ceo_name":        `input[name="rpsvNm"]`,
			"phone":           `input[name="telNo"]`,
			"email":           `input[name="email"]`,
			"address":         `input[name="addr"]`,
			"company_type":    `select[name="cmpSe"]`,
			"employee_count":  `input[name="emplCnt"]`,
		},
		SelectFields:   map[string]bool{"company_type": true},
		SubmitSelector: `button#btnSave`,
	})

	RegisterSite(&SiteProfile{
		Site:    model.SiteKStartup,
		FormURL: "https://www.k-startup.go.kr/web/contents/apply",
		Selectors: map[string]string{
			"company_name":    `input#compNm`,
			"business_number": `input#bsnsRgnmb`,
			"ceo_name":        `input#ceoNm`,
			"phone":           `input#mbtlnum`,
			"email":           `input#emailAdres`,
			"biz_category":    `select#indutyCd`,
		},
		SelectFields:   map[string]bool{"biz_category": true},
		SubmitSelector: `button.btn_apply_save`,
	})
}
