package submission

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gov-submit-admin/internal/model"
	"gov-submit-admin/internal/orchestrator"
)

// fakeSubmitter 编排器桩
type fakeSubmitter struct {
	task *model.SubmissionTask
	err  error

	lastSubmit *orchestrator.SubmitRequest
	lastTaskID string
}

func (f *fakeSubmitter) Submit(ctx context.Context, req *orchestrator.SubmitRequest) (*model.SubmissionTask, error) {
	f.lastSubmit = req
	return f.task, f.err
}

func (f *fakeSubmitter) Confirm(ctx context.Context, taskID, accountID string) (*model.SubmissionTask, error) {
	f.lastTaskID = taskID
	return f.task, f.err
}

func (f *fakeSubmitter) Cancel(ctx context.Context, taskID, accountID string) (*model.SubmissionTask, error) {
	f.lastTaskID = taskID
	return f.task, f.err
}

func (f *fakeSubmitter) Status(ctx context.Context, taskID, accountID string) (*model.SubmissionTask, error) {
	f.lastTaskID = taskID
	return f.task, f.err
}

func (f *fakeSubmitter) List(ctx context.Context, accountID string, status model.SubmissionStatus, limit, offset int) ([]*model.SubmissionTask, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.task == nil {
		return nil, nil
	}
	return []*model.SubmissionTask{f.task}, nil
}

func sampleTask(status model.SubmissionStatus) *model.SubmissionTask {
	now := time.Now()
	return &model.SubmissionTask{
		ID:         "task-abc123def456",
		AccountID:  "acct-1",
		TargetSite: model.SiteGov24,
		Mode:       model.ModeGenerate,
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func newMux(f *fakeSubmitter, t *testing.T) *http.ServeMux {
	t.Helper()
	mux := http.NewServeMux()
	NewHandler(f, t.TempDir()).RegisterRoutes(mux)
	return mux
}

func TestCreateJSON(t *testing.T) {
	fake := &fakeSubmitter{task: sampleTask(model.StatusAwaitingConfirmation)}
	mux := newMux(fake, t)

	body := `{"target_site":"gov24","mode":"generate","template_code":"biz-01","input_fields":{"company_name":"테스트기업"}}`
	r := httptest.NewRequest("POST", "/api/v1/tasks", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if fake.lastSubmit == nil || fake.lastSubmit.TargetSite != model.SiteGov24 {
		t.Errorf("请求未透传: %+v", fake.lastSubmit)
	}
	if fake.lastSubmit.InputFields["company_name"] != "테스트기업" {
		t.Errorf("字段值丢失: %+v", fake.lastSubmit.InputFields)
	}
}

func TestCreateMultipartUpload(t *testing.T) {
	fake := &fakeSubmitter{task: sampleTask(model.StatusAwaitingConfirmation)}
	mux := newMux(fake, t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("payload", `{"target_site":"gov24","mode":"upload"}`)
	fw, _ := mw.CreateFormFile("file", "application.hwpx")
	fw.Write([]byte("hwpx-bytes"))
	mw.Close()

	r := httptest.NewRequest("POST", "/api/v1/tasks", &buf)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if fake.lastSubmit.FilePath == "" {
		t.Error("上传文件未落盘")
	}
	if fake.lastSubmit.FileName != "application.hwpx" {
		t.Errorf("file_name = %q", fake.lastSubmit.FileName)
	}
}

func TestCreateUploadMissingFile(t *testing.T) {
	fake := &fakeSubmitter{task: sampleTask(model.StatusAwaitingConfirmation)}
	mux := newMux(fake, t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("payload", `{"target_site":"gov24","mode":"upload"}`)
	mw.Close()

	r := httptest.NewRequest("POST", "/api/v1/tasks", &buf)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestCreateInvalidSite(t *testing.T) {
	mux := newMux(&fakeSubmitter{}, t)

	r := httptest.NewRequest("POST", "/api/v1/tasks", strings.NewReader(`{"target_site":"nosuch","mode":"generate"}`))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"worker 忙碌", model.ErrBusy, http.StatusConflict},
		{"状态不符", model.ErrInvalidState, http.StatusConflict},
		{"任务不存在", model.ErrTaskNotFound, http.StatusNotFound},
		{"认证会话不存在", model.ErrSessionNotFound, http.StatusNotFound},
		{"登录态过期", model.ErrSessionExpired, http.StatusGone},
		{"校验失败", model.ErrValidation, http.StatusBadRequest},
		{"文档生成失败", model.ErrDocumentGeneration, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := httpStatus(tt.err); got != tt.want {
				t.Errorf("httpStatus(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestConfirm(t *testing.T) {
	fake := &fakeSubmitter{task: sampleTask(model.StatusSubmitted)}
	mux := newMux(fake, t)

	r := httptest.NewRequest("POST", "/api/v1/tasks/task-abc123def456/confirm", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if fake.lastTaskID != "task-abc123def456" {
		t.Errorf("taskID = %q", fake.lastTaskID)
	}

	var got model.SubmissionTask
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Status != model.StatusSubmitted {
		t.Errorf("status = %s", got.Status)
	}
}

func TestConfirmConflict(t *testing.T) {
	fake := &fakeSubmitter{err: model.ErrInvalidState}
	mux := newMux(fake, t)

	r := httptest.NewRequest("POST", "/api/v1/tasks/task-1/confirm", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestList(t *testing.T) {
	fake := &fakeSubmitter{task: sampleTask(model.StatusSubmitted)}
	mux := newMux(fake, t)

	r := httptest.NewRequest("GET", "/api/v1/tasks?status=submitted&limit=10", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Tasks []*model.SubmissionTask `json:"tasks"`
		Count int                     `json:"count"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 1 || len(resp.Tasks) != 1 {
		t.Errorf("count = %d", resp.Count)
	}
}

func TestListEmpty(t *testing.T) {
	mux := newMux(&fakeSubmitter{}, t)

	r := httptest.NewRequest("GET", "/api/v1/tasks", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"tasks":[]`) {
		t.Errorf("空列表应返回 []: %s", w.Body.String())
	}
}
