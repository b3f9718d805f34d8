// Package submission 提交任务领域 - HTTP 处理
package submission

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"gov-submit-admin/internal/apiserver/auth"
	"gov-submit-admin/internal/model"
	"gov-submit-admin/internal/orchestrator"
)

// maxUploadSize 上传文件大小上限（20MB）
const maxUploadSize = 20 << 20

// Submitter 编排器接口（便于测试替换）
type Submitter interface {
	Submit(ctx context.Context, req *orchestrator.SubmitRequest) (*model.SubmissionTask, error)
	Confirm(ctx context.Context, taskID, accountID string) (*model.SubmissionTask, error)
	Cancel(ctx context.Context, taskID, accountID string) (*model.SubmissionTask, error)
	Status(ctx context.Context, taskID, accountID string) (*model.SubmissionTask, error)
	List(ctx context.Context, accountID string, status model.SubmissionStatus, limit, offset int) ([]*model.SubmissionTask, error)
}

// Recorder 领域指标记录接口（可选）
type Recorder interface {
	RecordSubmission(site, status string)
}

// Handler 提交任务 HTTP 处理器
type Handler struct {
	orch      Submitter
	uploadDir string
	recorder  Recorder
}

// NewHandler 创建提交任务处理器
func NewHandler(orch Submitter, uploadDir string) *Handler {
	if uploadDir == "" {
		uploadDir = filepath.Join(os.TempDir(), "gov-submit-uploads")
	}
	return &Handler{orch: orch, uploadDir: uploadDir}
}

// SetRecorder 设置领域指标记录器
func (h *Handler) SetRecorder(r Recorder) {
	h.recorder = r
}

// RegisterRoutes 注册提交任务相关路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/tasks", h.Create)
	mux.HandleFunc("GET /api/v1/tasks", h.List)
	mux.HandleFunc("GET /api/v1/tasks/{id}", h.Get)
	mux.HandleFunc("POST /api/v1/tasks/{id}/confirm", h.Confirm)
	mux.HandleFunc("POST /api/v1/tasks/{id}/cancel", h.Cancel)
}

// createRequest 创建任务的请求体
type createRequest struct {
	TargetSite    string            `json:"target_site"`
	Mode          string            `json:"mode"`
	TemplateCode  string            `json:"template_code,omitempty"`
	InputFields   map[string]string `json:"input_fields"`
	AuthSessionID string            `json:"auth_session_id,omitempty"`
}

// Create 创建提交任务
// POST /api/v1/tasks
//
// mode=generate 用 JSON 请求体；mode=upload 用 multipart/form-data，
// "payload" 字段携带 JSON，"file" 字段携带提交文件。
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	var filePath, fileName string

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		var err error
		filePath, fileName, err = h.parseMultipart(r, &req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	} else {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	site := model.TargetSite(req.TargetSite)
	if !site.Valid() {
		writeError(w, http.StatusBadRequest, "invalid target_site")
		return
	}

	task, err := h.orch.Submit(r.Context(), &orchestrator.SubmitRequest{
		AccountID:     auth.AccountID(r.Context()),
		TargetSite:    site,
		Mode:          model.SubmissionMode(req.Mode),
		TemplateCode:  req.TemplateCode,
		InputFields:   req.InputFields,
		FilePath:      filePath,
		FileName:      fileName,
		AuthSessionID: req.AuthSessionID,
	})
	if h.recorder != nil && task != nil {
		h.recorder.RecordSubmission(string(site), string(task.Status))
	}
	if err != nil {
		// 降级的任务本身携带可操作结果，不按错误处理
		writeError(w, httpStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

// parseMultipart 解析 multipart 请求：payload JSON + 上传文件
func (h *Handler) parseMultipart(r *http.Request, req *createRequest) (string, string, error) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		return "", "", errors.New("invalid multipart body")
	}
	if payload := r.FormValue("payload"); payload != "" {
		if err := json.Unmarshal([]byte(payload), req); err != nil {
			return "", "", errors.New("invalid payload json")
		}
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		if req.Mode == string(model.ModeUpload) {
			return "", "", errors.New("file is required for mode=upload")
		}
		return "", "", nil
	}
	defer file.Close()

	if err := os.MkdirAll(h.uploadDir, 0755); err != nil {
		return "", "", errors.New("failed to store uploaded file")
	}
	dst, err := os.CreateTemp(h.uploadDir, "upload-*"+filepath.Ext(header.Filename))
	if err != nil {
		return "", "", errors.New("failed to store uploaded file")
	}
	defer dst.Close()
	if _, err := io.Copy(dst, io.LimitReader(file, maxUploadSize)); err != nil {
		os.Remove(dst.Name())
		return "", "", errors.New("failed to store uploaded file")
	}
	return dst.Name(), header.Filename, nil
}

// List 列出任务
// GET /api/v1/tasks?status=&limit=&offset=
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	status := model.SubmissionStatus(r.URL.Query().Get("status"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	tasks, err := h.orch.List(r.Context(), auth.AccountID(r.Context()), status, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}
	if tasks == nil {
		tasks = []*model.SubmissionTask{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks, "count": len(tasks)})
}

// Get 获取任务详情
// GET /api/v1/tasks/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	task, err := h.orch.Status(r.Context(), r.PathValue("id"), auth.AccountID(r.Context()))
	if err != nil {
		writeError(w, httpStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// Confirm 人工确认截图后触发最终提交
// POST /api/v1/tasks/{id}/confirm
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	task, err := h.orch.Confirm(r.Context(), r.PathValue("id"), auth.AccountID(r.Context()))
	if err != nil {
		writeError(w, httpStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// Cancel 取消任务
// POST /api/v1/tasks/{id}/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	task, err := h.orch.Cancel(r.Context(), r.PathValue("id"), auth.AccountID(r.Context()))
	if err != nil {
		writeError(w, httpStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// httpStatus 领域错误到 HTTP 状态码的映射
func httpStatus(err error) int {
	switch {
	case errors.Is(err, model.ErrTaskNotFound), errors.Is(err, model.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, model.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, model.ErrSessionExpired):
		return http.StatusGone
	case errors.Is(err, model.ErrAuthRequest), errors.Is(err, model.ErrUpload),
		errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrDocumentGeneration):
		return http.StatusBadGateway
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
