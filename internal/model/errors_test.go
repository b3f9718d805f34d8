package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAutomationError_Unwrap(t *testing.T) {
	ae := NewAutomationError(KindDomStructure, "gov24", "file_attach", "#fileUpload", errors.New("node not found"))

	assert.True(t, errors.Is(ae, ErrDomStructure))
	assert.Contains(t, ae.Error(), "site=gov24")
	assert.Contains(t, ae.Error(), "selector=#fileUpload")

	var got *AutomationError
	assert.True(t, errors.As(ae, &got))
	assert.Equal(t, KindDomStructure, got.Kind)
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"DOM 结构错误不重试", NewAutomationError(KindDomStructure, "gov24", "login", "#btn", nil), false},
		{"导航失败可重试", NewAutomationError(KindNavigation, "gov24", "goto_form", "", errors.New("net timeout")), true},
		{"超时可重试", NewAutomationError(KindTimeout, "gov24", "wait_upload", "", nil), true},
		{"会话过期不重试", ErrSessionExpired, false},
		{"认证超时不重试", ErrAuthTimeout, false},
		{"占用不重试", ErrBusy, false},
		{"未分类错误按瞬时处理", errors.New("connection reset"), true},
		{"nil 不重试", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Retryable(tt.err))
		})
	}
}

func TestFailureKind(t *testing.T) {
	assert.Equal(t, "dom_structure", FailureKind(NewAutomationError(KindDomStructure, "gov24", "s", "", nil)))
	assert.Equal(t, "auth_timeout", FailureKind(ErrAuthTimeout))
	assert.Equal(t, "internal", FailureKind(errors.New("boom")))
}
