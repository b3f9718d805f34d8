// Package config 统一配置管理
//
// 配置加载策略：
//  1. 从 .env 加载敏感信息（数据库密码、JWT 密钥、MinIO 密钥）和 APP_ENV
//  2. 根据 APP_ENV 加载对应的 configs/{env}.yaml 配置文件
//  3. 环境变量可覆盖 YAML 配置
//
// 使用方式：
//   - 开发环境: APP_ENV=dev (默认)
//   - 测试环境: APP_ENV=test
//   - 生产环境: APP_ENV=prod
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment 环境类型
type Environment string

const (
	EnvProduction  Environment = "prod"
	EnvTest        Environment = "test"
	EnvDevelopment Environment = "dev"
)

// YAMLConfig YAML 配置文件结构
type YAMLConfig struct {
	Server       ServerConfig       `yaml:"server"`
	Storage      StorageConfig      `yaml:"storage"`
	Redis        RedisConfig        `yaml:"redis"`
	MinIO        MinIOConfig        `yaml:"minio"`
	Browser      BrowserConfig      `yaml:"browser"`
	Gov24        Gov24Config        `yaml:"gov24"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Auth         AuthConfig         `yaml:"auth"`
	Docgen       DocgenConfig       `yaml:"docgen"`
}

// DocgenConfig 文档生成服务配置
//
// service_url 为空时使用本地降级生成器（仅开发/测试用）。
type DocgenConfig struct {
	ServiceURL string        `yaml:"service_url"`
	OutputDir  string        `yaml:"output_dir"`
	Timeout    time.Duration `yaml:"timeout"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

// StorageConfig 任务存储配置
//
// driver 决定 TaskStore 后端：
//   - sqlite：开发/测试默认，零依赖
//   - postgres：生产
//   - mongo：与既有 Mongo 部署共存时使用
type StorageConfig struct {
	Driver     string         `yaml:"driver"`
	SQLitePath string         `yaml:"sqlite_path"`
	Database   DatabaseConfig `yaml:"database"`
	MongoURI   string         `yaml:"mongo_uri"`
	MongoDB    string         `yaml:"mongo_db"`
}

type DatabaseConfig struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	User    string `yaml:"user"`
	Name    string `yaml:"name"`
	SSLMode string `yaml:"sslmode"`
}

type RedisConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	DB      int    `yaml:"db"`
}

// MinIOConfig 截图对象存储配置（可选）
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"-"` // 从 MINIO_ACCESS_KEY 环境变量读取
	SecretKey string `yaml:"-"` // 从 MINIO_SECRET_KEY 环境变量读取
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Enabled MinIO 是否启用
func (c MinIOConfig) Enabled() bool {
	return c.Endpoint != ""
}

// BrowserConfig 浏览器运行时配置
type BrowserConfig struct {
	// ExecPath 本地 Chromium 可执行文件路径（留空使用系统默认）
	ExecPath string `yaml:"exec_path"`
	// Headless 是否无头运行
	Headless bool `yaml:"headless"`
	// NavTimeout 单次导航超时
	NavTimeout time.Duration `yaml:"nav_timeout"`
	// ActionTimeout 单次 DOM 操作超时
	ActionTimeout time.Duration `yaml:"action_timeout"`
	// Docker 容器化浏览器运行时（可选，替代本地 exec）
	Docker BrowserDockerConfig `yaml:"docker"`
}

type BrowserDockerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Image   string `yaml:"image"`
	// DebugPort 容器内 CDP 调试端口映射到宿主机的端口
	DebugPort int `yaml:"debug_port"`
}

// Gov24Config 政府24 门户自动化配置
type Gov24Config struct {
	BaseURL string `yaml:"base_url"`
	// AuthStatePath 持久化浏览器会话文件路径（0600 权限）
	AuthStatePath string `yaml:"auth_state_path"`
	// ScreenshotDir 预提交截图目录
	ScreenshotDir string `yaml:"screenshot_dir"`
}

// OrchestratorConfig 编排器配置
type OrchestratorConfig struct {
	// QueueSize 等待队列长度；0 表示繁忙时直接拒绝
	QueueSize int `yaml:"queue_size"`
	// RetryMax 瞬时错误最大重试次数
	RetryMax int `yaml:"retry_max"`
	// RetryBackoff 重试退避基准
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// AuthConfig 操作者认证配置
type AuthConfig struct {
	JWTSecret      string        `yaml:"-"` // 从 JWT_SECRET 环境变量读取
	AccessTokenTTL time.Duration `yaml:"access_token_ttl"`
	// 单操作员账号，凭据只从环境变量读取
	OperatorEmail        string `yaml:"-"` // OPERATOR_EMAIL
	OperatorPasswordHash string `yaml:"-"` // OPERATOR_PASSWORD_HASH（bcrypt）
}

// Enabled 是否启用操作者认证
func (c AuthConfig) Enabled() bool {
	return c.JWTSecret != ""
}

// Config 应用配置（最终使用的配置）
type Config struct {
	Env          Environment
	APIPort      string
	Storage      StorageConfig
	DatabaseURL  string
	RedisURL     string
	RedisEnabled bool
	MinIO        MinIOConfig
	Browser      BrowserConfig
	Gov24        Gov24Config
	Orchestrator OrchestratorConfig
	Auth         AuthConfig
	Docgen       DocgenConfig
}

var configPaths = []string{
	"configs",
	"../configs",
	"../../configs",
	"../../../configs",
}

var envPaths = []string{
	".env",
	"../.env",
	"../../.env",
	"../../../.env",
}

// Load 加载配置
// 1. 加载 .env（敏感信息 + APP_ENV）
// 2. 根据 APP_ENV 加载 configs/{env}.yaml
// 3. 构建最终配置
func Load() *Config {
	// 加载 .env
	for _, p := range envPaths {
		if err := godotenv.Load(p); err == nil {
			break
		}
	}

	// 解析环境
	env := parseEnv(getEnv("APP_ENV", "dev"))

	// 加载 YAML 配置
	yamlCfg := loadYAMLConfig(env)

	// 从环境变量获取敏感信息
	dbPassword := getEnv("DB_PASSWORD", "submit_dev_password")
	yamlCfg.MinIO.AccessKey = getEnv("MINIO_ACCESS_KEY", "")
	yamlCfg.MinIO.SecretKey = getEnv("MINIO_SECRET_KEY", "")
	yamlCfg.Auth.JWTSecret = getEnv("JWT_SECRET", "")
	yamlCfg.Auth.OperatorEmail = getEnv("OPERATOR_EMAIL", "admin@local")
	yamlCfg.Auth.OperatorPasswordHash = getEnv("OPERATOR_PASSWORD_HASH", "")

	// 构建最终配置
	cfg := &Config{
		Env:          env,
		APIPort:      yamlCfg.Server.Port,
		Storage:      yamlCfg.Storage,
		DatabaseURL:  buildDatabaseURL(yamlCfg.Storage.Database, dbPassword),
		RedisURL:     buildRedisURL(yamlCfg.Redis),
		RedisEnabled: yamlCfg.Redis.Enabled,
		MinIO:        yamlCfg.MinIO,
		Browser:      yamlCfg.Browser,
		Gov24:        yamlCfg.Gov24,
		Orchestrator: yamlCfg.Orchestrator,
		Auth:         yamlCfg.Auth,
		Docgen:       yamlCfg.Docgen,
	}

	cfg.validate()
	return cfg
}

// loadYAMLConfig 加载 YAML 配置文件
// 加载顺序：默认值 → common.yaml → {env}.yaml
func loadYAMLConfig(env Environment) *YAMLConfig {
	// 1. 初始化默认值
	cfg := &YAMLConfig{
		Server: ServerConfig{Port: "8080"},
		Storage: StorageConfig{
			Driver:     "sqlite",
			SQLitePath: "data/tasks.db",
			Database:   DatabaseConfig{Host: "localhost", Port: 5432, User: "submit", Name: "gov_submit", SSLMode: "disable"},
			MongoDB:    "gov_submit",
		},
		Redis: RedisConfig{Enabled: false, Host: "localhost", Port: 6379, DB: 0},
		MinIO: MinIOConfig{Bucket: "submit-screenshots"},
		Browser: BrowserConfig{
			Headless:      true,
			NavTimeout:    30 * time.Second,
			ActionTimeout: 15 * time.Second,
			Docker:        BrowserDockerConfig{Image: "chromedp/headless-shell:latest", DebugPort: 9222},
		},
		Gov24: Gov24Config{
			BaseURL:       "https://www.gov.kr",
			AuthStatePath: "data/gov24_auth_state.json",
			ScreenshotDir: os.TempDir(),
		},
		Orchestrator: OrchestratorConfig{
			QueueSize:    0,
			RetryMax:     2,
			RetryBackoff: 2 * time.Second,
		},
		Auth:   AuthConfig{AccessTokenTTL: 15 * time.Minute},
		Docgen: DocgenConfig{Timeout: 60 * time.Second},
	}

	// 2. 加载 common.yaml（公共配置）
	for _, base := range configPaths {
		path := filepath.Join(base, "common.yaml")
		if data, err := os.ReadFile(path); err == nil {
			yaml.Unmarshal(data, cfg)
			break
		}
	}

	// 3. 加载 {env}.yaml（环境特定配置，覆盖公共配置）
	filename := fmt.Sprintf("%s.yaml", env)
	for _, base := range configPaths {
		path := filepath.Join(base, filename)
		if data, err := os.ReadFile(path); err == nil {
			yaml.Unmarshal(data, cfg)
			break
		}
	}

	return cfg
}

// buildDatabaseURL 构建 PostgreSQL 连接字符串
func buildDatabaseURL(db DatabaseConfig, password string) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		db.User, password, db.Host, db.Port, db.Name, db.SSLMode)
}

// buildRedisURL 构建 Redis 连接字符串
func buildRedisURL(redis RedisConfig) string {
	return fmt.Sprintf("redis://%s:%d/%d", redis.Host, redis.Port, redis.DB)
}

func parseEnv(env string) Environment {
	switch strings.ToLower(env) {
	case "test":
		return EnvTest
	case "prod", "production":
		return EnvProduction
	default:
		return EnvDevelopment
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// IsTest 是否为测试环境
func (c *Config) IsTest() bool {
	return c.Env == EnvTest
}

// String 返回配置摘要（隐藏密码）
func (c *Config) String() string {
	return fmt.Sprintf("Config{Env: %s, Storage: %s, DB: %s, Redis: %s(enabled=%v)}",
		c.Env, c.Storage.Driver, maskPassword(c.DatabaseURL), c.RedisURL, c.RedisEnabled)
}

// maskPassword 隐藏密码
func maskPassword(url string) string {
	re := regexp.MustCompile(`(://[^:]+:)([^@]+)(@)`)
	return re.ReplaceAllString(url, "${1}***${3}")
}

// validate 验证并填充默认值
func (c *Config) validate() {
	if c.APIPort == "" {
		c.APIPort = "8080"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Browser.NavTimeout == 0 {
		c.Browser.NavTimeout = 30 * time.Second
	}
	if c.Browser.ActionTimeout == 0 {
		c.Browser.ActionTimeout = 15 * time.Second
	}
	if c.Orchestrator.RetryMax == 0 {
		c.Orchestrator.RetryMax = 2
	}
	if c.Orchestrator.RetryBackoff == 0 {
		c.Orchestrator.RetryBackoff = 2 * time.Second
	}
	if c.Gov24.ScreenshotDir == "" {
		c.Gov24.ScreenshotDir = os.TempDir()
	}
	if c.Auth.AccessTokenTTL == 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
}
