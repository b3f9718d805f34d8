package gov24

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"gov-submit-admin/internal/model"
)

func TestAuthStateRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "auth.json")
	f := NewAuthStateFile(path)

	if f.Exists() {
		t.Fatal("初始不应存在")
	}
	if state, err := f.Load(); err != nil || state != nil {
		t.Fatalf("缺失文件应返回 (nil, nil)，实际 (%v, %v)", state, err)
	}

	cookies := []model.SessionCookie{
		{Name: "SESSION", Value: "tok", Domain: ".gov.kr", Path: "/", Secure: true, HTTPOnly: true},
	}
	if err := f.Save(cookies); err != nil {
		t.Fatalf("Save 失败: %v", err)
	}
	if !f.Exists() {
		t.Error("保存后应存在")
	}

	state, err := f.Load()
	if err != nil {
		t.Fatalf("Load 失败: %v", err)
	}
	if len(state.Cookies) != 1 || state.Cookies[0].Value != "tok" {
		t.Errorf("Cookie 不一致: %+v", state.Cookies)
	}
	if state.SavedAt.IsZero() {
		t.Error("SavedAt 未设置")
	}
}

func TestAuthStateFilePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("文件权限检查不适用于 windows")
	}
	path := filepath.Join(t.TempDir(), "auth.json")
	f := NewAuthStateFile(path)

	if err := f.Save([]model.SessionCookie{{Name: "a", Value: "b"}}); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("登录态文件权限 = %o，期望 0600", info.Mode().Perm())
	}
}

func TestAuthStateInvalidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.json")
	f := NewAuthStateFile(path)

	if err := f.Invalidate(); err != nil {
		t.Fatalf("缺失文件作废应为无操作: %v", err)
	}

	if err := f.Save([]model.SessionCookie{{Name: "a", Value: "b"}}); err != nil {
		t.Fatal(err)
	}
	if err := f.Invalidate(); err != nil {
		t.Fatal(err)
	}
	if f.Exists() {
		t.Error("作废后不应存在")
	}
}

func TestAuthStateCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}

	f := NewAuthStateFile(path)
	state, err := f.Load()
	if err != nil || state != nil {
		t.Fatalf("损坏文件应作废并返回 (nil, nil)，实际 (%v, %v)", state, err)
	}
	if f.Exists() {
		t.Error("损坏文件应被删除")
	}
}
