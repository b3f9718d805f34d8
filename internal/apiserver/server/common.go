// Package server 提供 HTTP API 路由与核心基础设施
//
// 各领域接口拆分在独立包中：
//   - submission: 提交任务接口
//   - simpleauth: 간편인증（简易认证）接口
//   - auth: 操作者登录与 JWT 中间件
//
// 仍保留在本包的模块：
//   - session.go: 持久化登录态接口
//   - websocket.go: WebSocket 事件网关
//   - metrics.go: Prometheus 指标
package server

import (
	"encoding/json"
	"net/http"

	"gov-submit-admin/internal/apiserver/auth"
	"gov-submit-admin/internal/gov24"
	"gov-submit-admin/internal/orchestrator"
	"gov-submit-admin/internal/shared/eventbus"
	"gov-submit-admin/internal/shared/storage"
	"gov-submit-admin/internal/sitebot"
)

// Handler API 处理器
//
// Handler 是所有 HTTP API 的入口，负责：
//   - 路由请求到对应的处理函数
//   - 持有编排器与认证流程
//   - 协调事件网关与指标
type Handler struct {
	orch      *orchestrator.Orchestrator
	store     storage.TaskStore
	bus       eventbus.TaskEventBus
	flow      *gov24.AuthFlow
	authState *gov24.AuthStateFile
	authCfg   auth.Config
	bot       *sitebot.Automation
	uploadDir string

	eventGateway *EventGateway
	metrics      *Metrics
}

// NewHandler 创建 Handler 实例
func NewHandler(orch *orchestrator.Orchestrator, store storage.TaskStore, bus eventbus.TaskEventBus,
	flow *gov24.AuthFlow, authState *gov24.AuthStateFile, authCfg auth.Config) *Handler {
	h := &Handler{
		orch:      orch,
		store:     store,
		bus:       bus,
		flow:      flow,
		authState: authState,
		authCfg:   authCfg,
	}
	h.metrics = NewMetrics("gov_submit")
	h.eventGateway = NewEventGateway(store, bus)
	h.eventGateway.metrics = h.metrics
	return h
}

// SetAutomation 设置通用站点填报器
func (h *Handler) SetAutomation(bot *sitebot.Automation) {
	h.bot = bot
}

// SetUploadDir 设置上传文件落盘目录
func (h *Handler) SetUploadDir(dir string) {
	h.uploadDir = dir
}

// GetMetrics 返回指标实例
func (h *Handler) GetMetrics() *Metrics {
	return h.metrics
}

// writeJSON 将数据以 JSON 格式写入 HTTP 响应
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError 将错误信息以 JSON 格式写入 HTTP 响应
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// Health 健康检查接口
//
// 路由: GET /health
//
// 用于负载均衡器和监控系统检查服务状态。
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
