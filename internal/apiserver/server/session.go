package server

import "net/http"

// CheckSession 检查持久化登录态
//
// 路由: GET /api/v1/session
//
// 只检查登录态文件是否存在，不访问目标站点。真正的有效性
// 在下一次提交时由 Worker 验证。
func (h *Handler) CheckSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{
		"session_exists": h.orch.CheckSession(h.authState),
	})
}

// ClearSession 强制作废持久化登录态
//
// 路由: DELETE /api/v1/session
//
// 占用中的任务会被取消并释放浏览器上下文。
func (h *Handler) ClearSession(w http.ResponseWriter, r *http.Request) {
	if err := h.orch.ClearSession(r.Context(), h.authState); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to clear session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
