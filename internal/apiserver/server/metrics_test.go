package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{"任务详情", "/api/v1/tasks/task-abc123def456", "/api/v1/tasks/{id}"},
		{"任务确认", "/api/v1/tasks/task-abc123def456/confirm", "/api/v1/tasks/{id}/confirm"},
		{"任务取消", "/api/v1/tasks/task-1/cancel", "/api/v1/tasks/{id}/cancel"},
		{"任务列表不改写", "/api/v1/tasks", "/api/v1/tasks"},
		{"认证发起不改写", "/api/v1/simple-auth/request", "/api/v1/simple-auth/request"},
		{"认证确认", "/api/v1/simple-auth/sess-abc/confirm", "/api/v1/simple-auth/{sessionId}/confirm"},
		{"认证取消", "/api/v1/simple-auth/sess-abc", "/api/v1/simple-auth/{sessionId}"},
		{"健康检查不改写", "/health", "/health"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizePath(tt.path); got != tt.want {
				t.Errorf("normalizePath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestCORSMiddleware(t *testing.T) {
	handler := corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	t.Run("普通请求透传并带 CORS 头", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/api/v1/tasks", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		if w.Code != http.StatusTeapot {
			t.Errorf("status = %d", w.Code)
		}
		if w.Header().Get("Access-Control-Allow-Origin") != "*" {
			t.Error("缺少 CORS 头")
		}
	})

	t.Run("预检请求直接 200", func(t *testing.T) {
		r := httptest.NewRequest("OPTIONS", "/api/v1/tasks", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", w.Code)
		}
	})
}
