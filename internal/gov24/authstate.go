package gov24

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gov-submit-admin/internal/model"
)

// AuthState 持久化登录态快照
//
// 只包含站点 Cookie 与保存时间，不含任何个人身份信息。
type AuthState struct {
	Cookies []model.SessionCookie `json:"cookies"`
	SavedAt time.Time             `json:"saved_at"`
}

// AuthStateFile 登录态文件，单写者
//
// 写入走临时文件 + rename，权限固定 0600。
type AuthStateFile struct {
	mu   sync.Mutex
	path string
}

// NewAuthStateFile 创建登录态文件句柄
func NewAuthStateFile(path string) *AuthStateFile {
	return &AuthStateFile{path: path}
}

// Save 保存登录态
func (f *AuthStateFile) Save(cookies []model.SessionCookie) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	state := AuthState{Cookies: cookies, SavedAt: time.Now()}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal auth state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("failed to create auth state dir: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write auth state: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace auth state: %w", err)
	}
	return nil
}

// Load 读取登录态；文件不存在返回 (nil, nil)
func (f *AuthStateFile) Load() (*AuthState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read auth state: %w", err)
	}

	var state AuthState
	if err := json.Unmarshal(data, &state); err != nil {
		// 损坏的文件直接作废
		os.Remove(f.path)
		return nil, nil
	}
	if len(state.Cookies) == 0 {
		return nil, nil
	}
	return &state, nil
}

// Invalidate 删除登录态；不存在时为无操作
func (f *AuthStateFile) Invalidate() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove auth state: %w", err)
	}
	return nil
}

// Exists 检查是否存在已保存的登录态
func (f *AuthStateFile) Exists() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	info, err := os.Stat(f.path)
	return err == nil && info.Size() > 0
}
