// Package docker 容器化浏览器运行时
//
// 使用官方 github.com/moby/moby/client 库
// 在容器中拉起 headless Chromium，通过 CDP 调试端口对外提供浏览器
package docker

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/netip"
	"time"

	"github.com/containerd/errdefs"
	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/network"
	"github.com/moby/moby/client"
)

// RuntimeConfig Chromium 容器配置
type RuntimeConfig struct {
	Image     string // 镜像名称
	Name      string // 容器名称
	DebugPort int    // 宿主机 CDP 端口
}

// Runtime Chromium 容器运行时
type Runtime struct {
	cli *client.Client
	cfg RuntimeConfig

	containerID string
}

// NewRuntime 创建运行时
func NewRuntime(cfg RuntimeConfig) (*Runtime, error) {
	cli, err := client.New(client.FromEnv)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	if cfg.Image == "" {
		cfg.Image = "chromedp/headless-shell:latest"
	}
	if cfg.Name == "" {
		cfg.Name = fmt.Sprintf("gov-submit-chromium-%d", time.Now().UnixNano())
	}
	if cfg.DebugPort == 0 {
		cfg.DebugPort = 9222
	}
	return &Runtime{cli: cli, cfg: cfg}, nil
}

// Ping 检查 Docker 连接
func (r *Runtime) Ping(ctx context.Context) error {
	_, err := r.cli.Ping(ctx, client.PingOptions{})
	return err
}

// Start 启动 Chromium 容器并等待 CDP 端口就绪，返回远端调试地址
func (r *Runtime) Start(ctx context.Context) (string, error) {
	if r.containerID != "" {
		return r.debugURL(), nil
	}

	// 清理同名残留容器
	if err := r.removeStale(ctx); err != nil {
		return "", err
	}

	port := network.MustParsePort("9222/tcp")
	opts := client.ContainerCreateOptions{
		Name:  r.cfg.Name,
		Image: r.cfg.Image,
		Config: &container.Config{
			Cmd: []string{
				"--no-sandbox",
				"--disable-gpu",
				"--remote-debugging-address=0.0.0.0",
				"--remote-debugging-port=9222",
				"--lang=ko-KR",
			},
			ExposedPorts: network.PortSet{port: struct{}{}},
		},
		HostConfig: &container.HostConfig{
			PortBindings: network.PortMap{
				port: []network.PortBinding{
					{HostIP: netip.IPv4Unspecified(), HostPort: fmt.Sprintf("%d", r.cfg.DebugPort)},
				},
			},
			AutoRemove: true,
		},
	}

	result, err := r.cli.ContainerCreate(ctx, opts)
	if err != nil {
		return "", fmt.Errorf("failed to create chromium container: %w", err)
	}
	r.containerID = result.ID

	if _, err := r.cli.ContainerStart(ctx, r.containerID, client.ContainerStartOptions{}); err != nil {
		return "", fmt.Errorf("failed to start chromium container: %w", err)
	}

	if err := r.waitReady(ctx); err != nil {
		return "", err
	}

	log.Printf("[browser.runtime] chromium container started id=%s port=%d", r.containerID[:12], r.cfg.DebugPort)
	return r.debugURL(), nil
}

// Stop 停止并移除容器
func (r *Runtime) Stop(ctx context.Context) error {
	if r.containerID == "" {
		return nil
	}
	timeout := 5
	if _, err := r.cli.ContainerStop(ctx, r.containerID, client.ContainerStopOptions{Timeout: &timeout}); err != nil {
		if !errdefs.IsNotFound(err) {
			return fmt.Errorf("failed to stop chromium container: %w", err)
		}
	}
	r.containerID = ""
	return nil
}

// Close 关闭 Docker 客户端
func (r *Runtime) Close() error {
	return r.cli.Close()
}

// Running 检查容器是否在运行
func (r *Runtime) Running(ctx context.Context) (bool, error) {
	if r.containerID == "" {
		return false, nil
	}
	result, err := r.cli.ContainerInspect(ctx, r.containerID, client.ContainerInspectOptions{})
	if err != nil {
		if errdefs.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return result.Container.State.Running, nil
}

// Logs 获取容器日志（排障用）
func (r *Runtime) Logs(ctx context.Context, tail string) (io.ReadCloser, error) {
	return r.cli.ContainerLogs(ctx, r.containerID, client.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       tail,
	})
}

func (r *Runtime) debugURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", r.cfg.DebugPort)
}

// removeStale 按名称清理上次未回收的容器
func (r *Runtime) removeStale(ctx context.Context) error {
	_, err := r.cli.ContainerInspect(ctx, r.cfg.Name, client.ContainerInspectOptions{})
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return err
	}
	log.Printf("[browser.runtime] removing stale container name=%s", r.cfg.Name)
	_, err = r.cli.ContainerRemove(ctx, r.cfg.Name, client.ContainerRemoveOptions{Force: true})
	return err
}

// waitReady 轮询 CDP /json/version 直到端口可用
func (r *Runtime) waitReady(ctx context.Context) error {
	url := r.debugURL() + "/json/version"
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	return fmt.Errorf("chromium debug port %d not ready within 30s", r.cfg.DebugPort)
}
