package simpleauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gov-submit-admin/internal/model"
)

// fakeFlow 认证流程桩
type fakeFlow struct {
	sess *model.AuthSession
	err  error

	lastInfo      model.PersonalInfo
	lastCarrier   model.Carrier
	lastSessionID string
	cancelled     []string
}

func (f *fakeFlow) RequestAuth(ctx context.Context, info model.PersonalInfo, carrier model.Carrier) (*model.AuthSession, error) {
	f.lastInfo = info
	f.lastCarrier = carrier
	return f.sess, f.err
}

func (f *fakeFlow) ConfirmAuth(ctx context.Context, sessionID string) (*model.AuthSession, error) {
	f.lastSessionID = sessionID
	return f.sess, f.err
}

func (f *fakeFlow) Cancel(sessionID string) {
	f.cancelled = append(f.cancelled, sessionID)
}

func waitingSession() *model.AuthSession {
	now := time.Now()
	return &model.AuthSession{
		ID:        "sess-abc123def456",
		Status:    model.AuthStatusWaiting,
		Carrier:   model.CarrierKakao,
		CreatedAt: now,
		ExpiresAt: now.Add(model.AuthSessionTTL),
	}
}

func newMux(f *fakeFlow) *http.ServeMux {
	mux := http.NewServeMux()
	NewHandler(f).RegisterRoutes(mux)
	return mux
}

func TestRequest(t *testing.T) {
	fake := &fakeFlow{sess: waitingSession()}
	mux := newMux(fake)

	body := `{"name":"홍길동","birth_date":"19900101","phone":"01012345678","carrier":"KAKAO"}`
	r := httptest.NewRequest("POST", "/api/v1/simple-auth/request", strings.NewReader(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if fake.lastInfo.Name != "홍길동" || fake.lastCarrier != model.CarrierKakao {
		t.Errorf("请求未透传: %+v %s", fake.lastInfo, fake.lastCarrier)
	}

	var resp sessionResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.SessionID != "sess-abc123def456" || resp.Status != "waiting_auth" {
		t.Errorf("响应 = %+v", resp)
	}

	// 个人信息不得出现在响应中
	raw := w.Body.String()
	for _, banned := range []string{"홍길동", "19900101", "01012345678"} {
		if strings.Contains(raw, banned) {
			t.Errorf("响应泄露个人信息: %s", banned)
		}
	}
}

func TestRequestCarrierNormalized(t *testing.T) {
	tests := []struct {
		name    string
		carrier string
		want    model.Carrier
	}{
		{"大写", "KAKAO", model.CarrierKakao},
		{"混合大小写", "Skt", model.CarrierSKT},
		{"带空白", " kt ", model.CarrierKT},
		{"小写原样", "lgu", model.CarrierLGU},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeFlow{sess: waitingSession()}
			mux := newMux(fake)

			body := `{"name":"홍길동","birth_date":"19900101","phone":"01012345678","carrier":"` + tt.carrier + `"}`
			r := httptest.NewRequest("POST", "/api/v1/simple-auth/request", strings.NewReader(body))
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, r)

			if w.Code != http.StatusAccepted {
				t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
			}
			if fake.lastCarrier != tt.want {
				t.Errorf("carrier = %q, want %q", fake.lastCarrier, tt.want)
			}
		})
	}
}

func TestRequestValidationError(t *testing.T) {
	fake := &fakeFlow{err: model.ErrAuthRequest}
	mux := newMux(fake)

	r := httptest.NewRequest("POST", "/api/v1/simple-auth/request", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestConfirmIdempotent(t *testing.T) {
	fake := &fakeFlow{sess: waitingSession()}
	mux := newMux(fake)

	for i := 0; i < 3; i++ {
		r := httptest.NewRequest("POST", "/api/v1/simple-auth/sess-abc123def456/confirm", nil)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, r)
		if w.Code != http.StatusOK {
			t.Fatalf("第 %d 次 confirm status = %d", i+1, w.Code)
		}
	}
	if fake.lastSessionID != "sess-abc123def456" {
		t.Errorf("sessionID = %q", fake.lastSessionID)
	}
}

func TestConfirmNotFound(t *testing.T) {
	fake := &fakeFlow{err: model.ErrSessionNotFound}
	mux := newMux(fake)

	r := httptest.NewRequest("POST", "/api/v1/simple-auth/sess-gone/confirm", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestCancel(t *testing.T) {
	fake := &fakeFlow{}
	mux := newMux(fake)

	r := httptest.NewRequest("DELETE", "/api/v1/simple-auth/sess-1", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if len(fake.cancelled) != 1 || fake.cancelled[0] != "sess-1" {
		t.Errorf("cancelled = %v", fake.cancelled)
	}
}
