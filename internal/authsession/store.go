// Package authsession 内存认证会话注册表
//
// 简便认证拿到的站点会话只在进程内存中保留，带 Cookie 的会话
// 绝不落盘。条目固定 5 分钟存活，后台每分钟清扫一次过期条目。
package authsession

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"gov-submit-admin/internal/model"
	"gov-submit-admin/pkg/logging"
)

// Store 认证会话存储
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*model.AuthSession

	now     func() time.Time
	onCount func(int)
	onEvict func(id string)
	logger  *logging.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewStore 创建存储
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*model.AuthSession),
		now:      time.Now,
		logger:   logging.Default("authsession"),
	}
}

// OnCountChange 注册条目数量变化回调（指标上报用）
//
// 在 Register/Delete/Sweep 改变条目数后以新数量调用。
func (s *Store) OnCountChange(fn func(n int)) {
	s.mu.Lock()
	s.onCount = fn
	s.mu.Unlock()
}

// OnEvict 注册条目被移除时的回调（资源回收用）
//
// Delete 与 Sweep 每移除一个条目调用一次，携带被移除的
// 会话ID。回调在锁外执行。
func (s *Store) OnEvict(fn func(id string)) {
	s.mu.Lock()
	s.onEvict = fn
	s.mu.Unlock()
}

// Register 登记新会话，返回生成的会话ID
func (s *Store) Register(carrier model.Carrier) *model.AuthSession {
	now := s.now()
	sess := &model.AuthSession{
		ID:        generateSessionID(),
		Status:    model.AuthStatusWaiting,
		Carrier:   carrier,
		CreatedAt: now,
		ExpiresAt: now.Add(model.AuthSessionTTL),
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	n, fn := len(s.sessions), s.onCount
	s.mu.Unlock()

	if fn != nil {
		fn(n)
	}
	return sess
}

// Get 按ID取会话；已过期的条目即使尚未被清扫也视为不存在
func (s *Store) Get(id string) (*model.AuthSession, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()

	if !ok || sess.ExpiredAt(s.now()) {
		return nil, model.ErrSessionNotFound
	}
	return sess, nil
}

// UpdateStatus 更新会话状态
//
// 会话不存在（含已被清扫）时为无操作：状态更新可能与清扫
// 竞争，缺席不算错误。
func (s *Store) UpdateStatus(id string, status model.AuthStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[id]; ok {
		sess.Status = status
	}
	return nil
}

// AttachCookies 认证成功后挂载站点 Cookie
func (s *Store) AttachCookies(id string, cookies []model.SessionCookie) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return model.ErrSessionNotFound
	}
	sess.Cookies = cookies
	return nil
}

// Delete 删除会话；不存在时为无操作
func (s *Store) Delete(id string) {
	s.mu.Lock()
	_, existed := s.sessions[id]
	delete(s.sessions, id)
	n, fn, fnEvict := len(s.sessions), s.onCount, s.onEvict
	s.mu.Unlock()

	if existed && fnEvict != nil {
		fnEvict(id)
	}
	if fn != nil {
		fn(n)
	}
}

// Len 当前条目数
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Start 启动每分钟一次的后台清扫
func (s *Store) Start() {
	s.mu.Lock()
	if s.stopCh != nil {
		s.mu.Unlock()
		return
	}
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	go func() {
		defer close(doneCh)
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Sweep()
			case <-stopCh:
				return
			}
		}
	}()

	s.logger.Info("sweep loop started", "interval", "1m")
}

// Stop 停止后台清扫并等待退出
func (s *Store) Stop() {
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	stopCh, doneCh := s.stopCh, s.doneCh
	s.stopCh = nil
	s.doneCh = nil
	s.mu.Unlock()

	close(stopCh)
	<-doneCh
	s.logger.Info("sweep loop stopped")
}

// Sweep 移除全部过期条目，返回移除数量
func (s *Store) Sweep() int {
	now := s.now()

	s.mu.Lock()
	var evicted []string
	for id, sess := range s.sessions {
		if sess.ExpiredAt(now) {
			delete(s.sessions, id)
			evicted = append(evicted, id)
		}
	}
	removed := len(evicted)
	remaining := len(s.sessions)
	fn, fnEvict := s.onCount, s.onEvict
	s.mu.Unlock()

	if fnEvict != nil {
		for _, id := range evicted {
			fnEvict(id)
		}
	}
	if removed > 0 {
		s.logger.SweepLog(removed, remaining)
		if fn != nil {
			fn(remaining)
		}
	}
	return removed
}

// generateSessionID 生成 sess- 前缀的随机ID
func generateSessionID() string {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("sess-%d", time.Now().UnixNano())
	}
	return "sess-" + hex.EncodeToString(b)
}
