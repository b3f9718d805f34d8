package docgen

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gov-submit-admin/internal/model"
)

// LocalGenerator 本地降级生成器
//
// 没有文档服务时（开发/测试环境）把字段值序列化为 JSON 文件，
// 让提交流水线可以端到端跑通。不产出真实公文格式。
type LocalGenerator struct {
	outputDir string
}

// NewLocalGenerator 创建本地降级生成器
func NewLocalGenerator(outputDir string) *LocalGenerator {
	if outputDir == "" {
		outputDir = filepath.Join(os.TempDir(), "gov-submit-docs")
	}
	return &LocalGenerator{outputDir: outputDir}
}

// Generate 把字段值写成 JSON 文件
func (g *LocalGenerator) Generate(ctx context.Context, templateCode string, fields map[string]string) (string, string, error) {
	if err := os.MkdirAll(g.outputDir, 0755); err != nil {
		return "", "", fmt.Errorf("%w: %v", model.ErrDocumentGeneration, err)
	}

	data, err := json.MarshalIndent(map[string]any{
		"template_code": templateCode,
		"fields":        fields,
	}, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", model.ErrDocumentGeneration, err)
	}

	path := filepath.Join(g.outputDir, fmt.Sprintf("%s-%d.json", templateCode, time.Now().UnixNano()))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", "", fmt.Errorf("%w: %v", model.ErrDocumentGeneration, err)
	}
	return path, "application/json", nil
}
