// Package server 路由配置
//
// 路由规则：
//
// 健康检查:
//   - GET /health - 服务健康检查
//
// 提交任务 (Task):
//   - POST   /api/v1/tasks               - 创建提交任务
//   - GET    /api/v1/tasks               - 列出任务
//   - GET    /api/v1/tasks/{id}          - 获取任务详情
//   - POST   /api/v1/tasks/{id}/confirm  - 人工确认后最终提交
//   - POST   /api/v1/tasks/{id}/cancel   - 取消任务
//
// 简易认证 (간편인증):
//   - POST   /api/v1/simple-auth/request             - 发起认证
//   - POST   /api/v1/simple-auth/{sessionId}/confirm - 查询/推进认证（幂等）
//   - DELETE /api/v1/simple-auth/{sessionId}         - 放弃认证
//
// 登录态 (Session):
//   - GET    /api/v1/session    - 检查持久化登录态
//   - DELETE /api/v1/session    - 强制作废登录态
//
// 通用站点填报 (Sitebot):
//   - POST   /api/v1/sitebot/execute - 在目标站点上尽力填表
//
// 操作者认证 (Auth):
//   - POST   /api/v1/auth/login - 操作者登录
//   - GET    /api/v1/auth/me    - 当前操作者
//
// WebSocket:
//   - GET    /ws/tasks/{id}/events - 实时任务事件推送
package server

import (
	"net/http"

	"gov-submit-admin/internal/apiserver/auth"
	"gov-submit-admin/internal/apiserver/simpleauth"
	"gov-submit-admin/internal/apiserver/submission"
)

// Router 返回配置好的 HTTP 路由
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	// 健康检查
	mux.HandleFunc("GET /health", h.Health)

	// Prometheus 指标端点
	mux.Handle("GET /metrics", MetricsHandler())

	// 提交任务接口
	subHandler := submission.NewHandler(h.orch, h.uploadDir)
	subHandler.SetRecorder(h.metrics)
	subHandler.RegisterRoutes(mux)

	// 简易认证接口
	authFlowHandler := simpleauth.NewHandler(h.flow)
	authFlowHandler.SetRecorder(h.metrics)
	authFlowHandler.RegisterRoutes(mux)

	// 登录态接口
	mux.HandleFunc("GET /api/v1/session", h.CheckSession)
	mux.HandleFunc("DELETE /api/v1/session", h.ClearSession)

	// 通用站点填报接口
	mux.HandleFunc("POST /api/v1/sitebot/execute", h.ExecuteSitebot)

	// 操作者认证路由
	authHandler := auth.NewHandler(h.authCfg)
	authHandler.RegisterRoutes(mux)

	// 应用指标中间件到 REST API
	apiHandler := h.metrics.MetricsMiddleware(mux)

	// 应用认证中间件
	authedHandler := auth.Middleware(h.authCfg)(apiHandler)

	// 应用 CORS 中间件
	corsHandler := corsMiddleware(authedHandler)

	// 创建顶层路由，WebSocket 绕过 metrics 中间件（避免 http.Hijacker 问题）
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /ws/tasks/{id}/events", h.eventGateway.HandleWebSocket)
	topMux.Handle("/", corsHandler)

	return topMux
}

// corsMiddleware 添加 CORS 头支持跨域请求
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
