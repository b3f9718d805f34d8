// Package auth 操作者认证：JWT 令牌管理、密码哈希、HTTP 中间件
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// contextKey context 键类型
type contextKey string

const ctxKeyOperator contextKey = "operator"

// Operator 从 JWT 解析出的操作者信息
type Operator struct {
	ID    string
	Email string
}

// Config 认证配置
//
// JWTSecret 为空时整个认证层关闭（本地开发模式）。
type Config struct {
	JWTSecret      string
	AccessTokenTTL time.Duration
	// 单操作员账号凭据
	OperatorEmail        string
	OperatorPasswordHash string
}

// DefaultConfig 返回默认认证配置
func DefaultConfig() Config {
	return Config{AccessTokenTTL: 15 * time.Minute}
}

// Enabled 是否启用认证
func (c Config) Enabled() bool {
	return c.JWTSecret != ""
}

// ============================================================================
// 密码哈希
// ============================================================================

// HashPassword 使用 bcrypt 哈希密码
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	return string(bytes), err
}

// CheckPassword 验证密码
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ============================================================================
// JWT Token
// ============================================================================

// Claims JWT 声明
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Type  string `json:"type,omitempty"` // "access"
}

// GenerateAccessToken 生成访问令牌
func GenerateAccessToken(cfg Config, operatorID, email string) (string, error) {
	ttl := cfg.AccessTokenTTL
	if ttl == 0 {
		ttl = 15 * time.Minute
	}
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   operatorID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
		Email: email,
		Type:  "access",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.JWTSecret))
}

// ParseToken 解析并验证 JWT
func ParseToken(cfg Config, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// ============================================================================
// Context 辅助函数
// ============================================================================

// WithOperator 将操作者信息注入 context
func WithOperator(ctx context.Context, op *Operator) context.Context {
	return context.WithValue(ctx, ctxKeyOperator, op)
}

// GetOperator 从 context 获取操作者；无认证模式下返回 nil
func GetOperator(ctx context.Context) *Operator {
	op, _ := ctx.Value(ctxKeyOperator).(*Operator)
	return op
}

// AccountID 从 context 取任务归属账号
// 无认证模式返回空字符串，存储层按不过滤处理。
func AccountID(ctx context.Context) string {
	if op := GetOperator(ctx); op != nil {
		return op.ID
	}
	return ""
}
