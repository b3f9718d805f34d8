// Package docgen 文档生成服务客户端
//
// 生成环节由独立的文档服务承担：按模板编号和字段值渲染
// 提交文件（hwpx/pdf），本包只负责调用并把结果落盘供
// 浏览器上传使用。
package docgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"gov-submit-admin/internal/model"
	"gov-submit-admin/pkg/logging"
)

// Options 客户端配置
type Options struct {
	// ServiceURL 文档服务地址，如 http://docgen:9100
	ServiceURL string
	// OutputDir 生成文件的落盘目录
	OutputDir string
	// Timeout 单次生成请求超时
	Timeout time.Duration
}

// Client 文档生成服务 HTTP 客户端
type Client struct {
	opts   Options
	http   *http.Client
	logger *logging.Logger
}

// NewClient 创建文档生成客户端
func NewClient(opts Options) *Client {
	if opts.OutputDir == "" {
		opts.OutputDir = filepath.Join(os.TempDir(), "gov-submit-docs")
	}
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	return &Client{
		opts:   opts,
		http:   &http.Client{Timeout: opts.Timeout},
		logger: logging.Default("docgen"),
	}
}

type generateRequest struct {
	TemplateCode string            `json:"template_code"`
	Fields       map[string]string `json:"fields"`
}

// Generate 调用文档服务渲染提交文件
//
// 返回落盘路径与内容类型。服务返回非 200 视为生成失败。
func (c *Client) Generate(ctx context.Context, templateCode string, fields map[string]string) (string, string, error) {
	body, err := json.Marshal(generateRequest{TemplateCode: templateCode, Fields: fields})
	if err != nil {
		return "", "", fmt.Errorf("%w: encode request: %v", model.ErrDocumentGeneration, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.ServiceURL+"/api/v1/documents", bytes.NewReader(body))
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", model.ErrDocumentGeneration, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", model.ErrDocumentGeneration, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("%w: service returned %d", model.ErrDocumentGeneration, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	path, err := c.writeFile(templateCode, contentType, resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", model.ErrDocumentGeneration, err)
	}

	c.logger.WithDuration(time.Since(start)).Info("document generated",
		"template", templateCode, "content_type", contentType)
	return path, contentType, nil
}

// writeFile 把生成结果写入输出目录
func (c *Client) writeFile(templateCode, contentType string, r io.Reader) (string, error) {
	if err := os.MkdirAll(c.opts.OutputDir, 0755); err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s-%d%s", templateCode, time.Now().UnixNano(), extFor(contentType))
	path := filepath.Join(c.opts.OutputDir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

func extFor(contentType string) string {
	switch contentType {
	case "application/pdf":
		return ".pdf"
	case "application/x-hwpx", "application/vnd.hancom.hwpx":
		return ".hwpx"
	default:
		return ".bin"
	}
}
