package browser

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestMapWaitErr(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		noElement bool
	}{
		{"裸超时归为元素不存在", context.DeadlineExceeded, true},
		{"包装过的超时同样归为元素不存在", fmt.Errorf("run step: %w", context.DeadlineExceeded), true},
		{"取消错误原样返回", context.Canceled, false},
		{"其他错误原样返回", errors.New("network down"), false},
		{"无错误", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapWaitErr(tt.err, "#field")
			if IsNoElement(got) != tt.noElement {
				t.Errorf("mapWaitErr(%v) = %v, IsNoElement 期望 %v", tt.err, got, tt.noElement)
			}
			if !tt.noElement && !errors.Is(got, tt.err) {
				t.Errorf("非超时错误应原样返回, got %v", got)
			}
		})
	}
}
