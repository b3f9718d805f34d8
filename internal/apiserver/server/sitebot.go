package server

import (
	"encoding/json"
	"net/http"

	"gov-submit-admin/internal/model"
)

// executeRequest 通用站点填报请求
type executeRequest struct {
	Site   string            `json:"site"`
	Fields map[string]string `json:"fields"`
}

// ExecuteSitebot 通用站点填报接口
//
// 路由: POST /api/v1/sitebot/execute
//
// 在目标站点上尽力填表。未映射字段不报错，进 fallback_data
// 供人工补录，响应始终为 200。
func (h *Handler) ExecuteSitebot(w http.ResponseWriter, r *http.Request) {
	if h.bot == nil {
		writeError(w, http.StatusNotImplemented, "site automation not configured")
		return
	}

	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	site := model.TargetSite(req.Site)
	if !site.Valid() {
		writeError(w, http.StatusBadRequest, "unknown target site: "+req.Site)
		return
	}
	if len(req.Fields) == 0 {
		writeError(w, http.StatusBadRequest, "fields is required")
		return
	}

	result, err := h.bot.Execute(r.Context(), site, req.Fields)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}
