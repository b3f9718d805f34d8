// Package simpleauth 간편인증（简易认证）领域 - HTTP 处理
//
// 请求体中的姓名/生日/手机号只在内存中流转，不落日志、不落盘。
package simpleauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"gov-submit-admin/internal/model"
)

// Flow 认证流程接口（便于测试替换）
type Flow interface {
	RequestAuth(ctx context.Context, info model.PersonalInfo, carrier model.Carrier) (*model.AuthSession, error)
	ConfirmAuth(ctx context.Context, sessionID string) (*model.AuthSession, error)
	Cancel(sessionID string)
}

// Recorder 认证指标回调
type Recorder interface {
	RecordAuthRequest(carrier, outcome string)
}

// Handler 简易认证 HTTP 处理器
type Handler struct {
	flow     Flow
	recorder Recorder
}

// NewHandler 创建简易认证处理器
func NewHandler(flow Flow) *Handler {
	return &Handler{flow: flow}
}

// SetRecorder 设置指标回调
func (h *Handler) SetRecorder(r Recorder) {
	h.recorder = r
}

// RegisterRoutes 注册简易认证相关路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/simple-auth/request", h.Request)
	mux.HandleFunc("POST /api/v1/simple-auth/{sessionId}/confirm", h.Confirm)
	mux.HandleFunc("DELETE /api/v1/simple-auth/{sessionId}", h.Cancel)
}

type requestBody struct {
	Name      string `json:"name"`
	BirthDate string `json:"birth_date"`
	Phone     string `json:"phone"`
	Carrier   string `json:"carrier"`
}

// sessionResponse 认证会话视图；不回传 Cookie
type sessionResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	Carrier   string `json:"carrier"`
	ExpiresAt string `json:"expires_at"`
}

func toResponse(sess *model.AuthSession) sessionResponse {
	return sessionResponse{
		SessionID: sess.ID,
		Status:    string(sess.Status),
		Carrier:   string(sess.Carrier),
		ExpiresAt: sess.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

// Request 发起简易认证
// POST /api/v1/simple-auth/request
//
// 立即返回等待中的会话；推送挑战在用户手机上完成后调用 confirm。
func (h *Handler) Request(w http.ResponseWriter, r *http.Request) {
	var req requestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	info := model.PersonalInfo{Name: req.Name, BirthDate: req.BirthDate, Phone: req.Phone}
	// 渠道取值大小写不敏感，前端惯用大写（KAKAO/SKT）
	carrier := model.Carrier(strings.ToLower(strings.TrimSpace(req.Carrier)))
	sess, err := h.flow.RequestAuth(r.Context(), info, carrier)
	if err != nil {
		if h.recorder != nil {
			h.recorder.RecordAuthRequest(string(carrier), "rejected")
		}
		writeError(w, httpStatus(err), err.Error())
		return
	}
	if h.recorder != nil {
		h.recorder.RecordAuthRequest(string(carrier), "accepted")
	}
	writeJSON(w, http.StatusAccepted, toResponse(sess))
}

// Confirm 查询/推进认证会话，幂等
// POST /api/v1/simple-auth/{sessionId}/confirm
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	sess, err := h.flow.ConfirmAuth(r.Context(), r.PathValue("sessionId"))
	if err != nil {
		writeError(w, httpStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toResponse(sess))
}

// Cancel 放弃认证会话
// DELETE /api/v1/simple-auth/{sessionId}
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.flow.Cancel(r.PathValue("sessionId"))
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// httpStatus 领域错误到 HTTP 状态码的映射
func httpStatus(err error) int {
	switch {
	case errors.Is(err, model.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrAuthRequest):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrAuthTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON 写入 JSON 响应
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError 写入错误响应
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
