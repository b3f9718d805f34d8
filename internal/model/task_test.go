package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSubmissionStatus_IsTerminal(t *testing.T) {
	assert.True(t, StatusSubmitted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusAwaitingConfirmation.IsTerminal())
}

func TestSubmissionTask_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name string
		from SubmissionStatus
		to   SubmissionStatus
		want bool
	}{
		{"pending 可进入 authenticating", StatusPending, StatusAuthenticating, true},
		{"authenticating 可进入 uploading", StatusAuthenticating, StatusUploading, true},
		{"pending 可直接进入 uploading", StatusPending, StatusUploading, true},
		{"uploading 可进入 awaiting_confirmation", StatusUploading, StatusAwaitingConfirmation, true},
		{"awaiting_confirmation 可进入 submitted", StatusAwaitingConfirmation, StatusSubmitted, true},
		{"uploading 不可直接 submitted", StatusUploading, StatusSubmitted, false},
		{"pending 不可直接 submitted", StatusPending, StatusSubmitted, false},
		{"任意非终态可进入 failed", StatusAuthenticating, StatusFailed, true},
		{"终态 submitted 不再流转", StatusSubmitted, StatusFailed, false},
		{"终态 failed 不再流转", StatusFailed, StatusAuthenticating, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := &SubmissionTask{Status: tt.from}
			assert.Equal(t, tt.want, task.CanTransitionTo(tt.to))
		})
	}
}

func TestTargetSite(t *testing.T) {
	assert.True(t, SiteGov24.HasDedicatedWorker())
	assert.False(t, SiteVentureIn.HasDedicatedWorker())
	assert.True(t, SiteVentureIn.Valid())
	assert.False(t, TargetSite("unknown").Valid())
}

func TestAuthSession_ExpiredAt(t *testing.T) {
	created := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)
	s := &AuthSession{
		ID:        "s1",
		Status:    AuthStatusWaiting,
		CreatedAt: created,
		ExpiresAt: created.Add(AuthSessionTTL),
	}

	assert.Equal(t, 300*time.Second, s.ExpiresAt.Sub(s.CreatedAt))
	assert.False(t, s.ExpiredAt(created.Add(300*time.Second)))
	assert.True(t, s.ExpiredAt(created.Add(301*time.Second)))
}

func TestPersonalInfo_Complete(t *testing.T) {
	assert.True(t, PersonalInfo{Name: "홍길동", BirthDate: "19800101", Phone: "01012345678"}.Complete())
	assert.False(t, PersonalInfo{Name: "홍길동"}.Complete())
}
