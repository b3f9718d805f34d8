package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestIsPublicRoute(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		path     string
		expected bool
	}{
		{"login", "POST", "/api/v1/auth/login", true},
		{"health", "GET", "/health", true},
		{"metrics", "GET", "/metrics", true},
		{"ws", "GET", "/ws/tasks/task-1/events", true},

		{"create submission", "POST", "/api/v1/tasks", false},
		{"confirm submission", "POST", "/api/v1/tasks/task-1/confirm", false},
		{"auth request", "POST", "/api/v1/simple-auth/request", false},
		{"me", "GET", "/api/v1/auth/me", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := isPublicRoute(tt.method, tt.path)
			if got != tt.expected {
				t.Errorf("isPublicRoute(%q, %q) = %v, want %v", tt.method, tt.path, got, tt.expected)
			}
		})
	}
}

func TestMiddleware(t *testing.T) {
	cfg := Config{JWTSecret: "test-secret", AccessTokenTTL: time.Minute}

	var gotOperator *Operator
	handler := Middleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotOperator = GetOperator(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("缺少令牌拒绝", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/api/v1/tasks", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})

	t.Run("无效令牌拒绝", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/api/v1/tasks", nil)
		r.Header.Set("Authorization", "Bearer not-a-token")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})

	t.Run("有效令牌放行并注入操作者", func(t *testing.T) {
		token, err := GenerateAccessToken(cfg, "operator", "admin@local")
		if err != nil {
			t.Fatal(err)
		}
		r := httptest.NewRequest("GET", "/api/v1/tasks", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		if gotOperator == nil || gotOperator.ID != "operator" || gotOperator.Email != "admin@local" {
			t.Errorf("operator = %+v", gotOperator)
		}
	})

	t.Run("公开路由无需令牌", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/health", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", w.Code)
		}
	})

	t.Run("认证关闭时全部放行", func(t *testing.T) {
		open := Middleware(Config{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		r := httptest.NewRequest("GET", "/api/v1/tasks", nil)
		w := httptest.NewRecorder()
		open.ServeHTTP(w, r)
		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", w.Code)
		}
	})
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("correct horse battery")
	if err != nil {
		t.Fatal(err)
	}
	if !CheckPassword("correct horse battery", hash) {
		t.Error("正确密码校验失败")
	}
	if CheckPassword("wrong", hash) {
		t.Error("错误密码通过校验")
	}
}
