// Package main API Server 入口
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gov-submit-admin/internal/apiserver/auth"
	"gov-submit-admin/internal/apiserver/server"
	"gov-submit-admin/internal/authsession"
	"gov-submit-admin/internal/browser"
	"gov-submit-admin/internal/browser/runtime/docker"
	"gov-submit-admin/internal/config"
	"gov-submit-admin/internal/docgen"
	"gov-submit-admin/internal/gov24"
	"gov-submit-admin/internal/orchestrator"
	"gov-submit-admin/internal/shared/eventbus"
	redisbus "gov-submit-admin/internal/shared/eventbus/redis"
	objstore "gov-submit-admin/internal/shared/minio"
	"gov-submit-admin/internal/shared/storage"
	"gov-submit-admin/internal/shared/storage/driver/postgres"
	"gov-submit-admin/internal/shared/storage/driver/sqlite"
	"gov-submit-admin/internal/shared/storage/mongostore"
	"gov-submit-admin/internal/shared/storage/repository"
	"gov-submit-admin/internal/sitebot"
)

func main() {
	// 加载配置（自动加载 .env，根据 APP_ENV 切换存储和 Redis）
	cfg := config.Load()

	log.Printf("Starting API Server... [env=%s]", cfg.Env)
	log.Printf("Config: %s", cfg.String())

	// 初始化任务存储
	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open task store: %v", err)
	}
	defer store.Close()
	log.Printf("Task store ready [driver=%s]", cfg.Storage.Driver)

	// 初始化事件总线（可选，缺席时 WebSocket 降级轮询）
	var bus eventbus.TaskEventBus
	var gatewayBus eventbus.TaskEventBus
	if cfg.RedisEnabled {
		redisStore, err := redisbus.NewStoreFromURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisStore.Close()
		bus = redisStore
		gatewayBus = redisStore
		log.Println("Connected to Redis")
	} else {
		bus = eventbus.NewNoOpEventBus()
	}

	// 初始化浏览器工厂
	factory, cleanup, err := buildBrowserFactory(cfg)
	if err != nil {
		log.Fatalf("Failed to set up browser runtime: %v", err)
	}
	if cleanup != nil {
		defer cleanup()
	}

	// 认证会话注册表（每分钟清扫过期会话）
	sessions := authsession.NewStore()
	sessions.Start()
	defer sessions.Stop()

	// gov24 登录态与自动化
	authState := gov24.NewAuthStateFile(cfg.Gov24.AuthStatePath)
	flow := gov24.NewAuthFlow(factory, sessions, cfg.Gov24.BaseURL)
	worker := gov24.NewWorker(gov24.WorkerConfig{
		BaseURL:       cfg.Gov24.BaseURL,
		ScreenshotDir: cfg.Gov24.ScreenshotDir,
		RetryMax:      cfg.Orchestrator.RetryMax,
		RetryBackoff:  cfg.Orchestrator.RetryBackoff,
	}, factory, authState)

	// 通用站点填报器
	bot := sitebot.NewAutomation(factory)

	// 文档生成：配置了服务地址用 HTTP 客户端，否则本地降级
	var generator orchestrator.DocumentGenerator
	if cfg.Docgen.ServiceURL != "" {
		generator = docgen.NewClient(docgen.Options{
			ServiceURL: cfg.Docgen.ServiceURL,
			OutputDir:  cfg.Docgen.OutputDir,
			Timeout:    cfg.Docgen.Timeout,
		})
	} else {
		log.Println("Docgen service not configured, using local fallback generator")
		generator = docgen.NewLocalGenerator(cfg.Docgen.OutputDir)
	}

	// 编排器
	orch := orchestrator.New(orchestrator.Config{QueueSize: cfg.Orchestrator.QueueSize},
		store, bus, worker, sessions, bot, generator)

	// 截图对象存储镜像（可选）
	if cfg.MinIO.Enabled() {
		mc, err := objstore.NewClient(cfg.MinIO)
		if err != nil {
			log.Fatalf("Failed to connect to MinIO: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := mc.EnsureBucket(ctx); err != nil {
			cancel()
			log.Fatalf("Failed to ensure MinIO bucket: %v", err)
		}
		cancel()
		orch.SetScreenshotMirror(mc)
		log.Println("Connected to MinIO")
	}

	// 进程重启恢复：上次进程留下的非终态任务统一置为失败
	{
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := orch.Recover(ctx); err != nil {
			cancel()
			log.Fatalf("Failed to recover in-flight tasks: %v", err)
		}
		cancel()
	}

	// 队列模式下启动消费循环
	orch.Start()
	defer orch.Stop()

	// HTTP Handler
	authCfg := auth.Config{
		JWTSecret:            cfg.Auth.JWTSecret,
		AccessTokenTTL:       cfg.Auth.AccessTokenTTL,
		OperatorEmail:        cfg.Auth.OperatorEmail,
		OperatorPasswordHash: cfg.Auth.OperatorPasswordHash,
	}
	if !authCfg.Enabled() {
		log.Println("JWT_SECRET not set, authentication disabled")
	}
	h := server.NewHandler(orch, store, gatewayBus, flow, authState, authCfg)
	h.SetAutomation(bot)
	orch.SetStats(h.GetMetrics())
	sessions.OnCountChange(func(n int) { h.GetMetrics().SetAuthSessionsLive(n) })

	srv := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      h.Router(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 优雅关闭
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("API Server listening on :%s", cfg.APIPort)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}

	fmt.Println("Server stopped")
}

// openStore 按配置选择任务存储后端
func openStore(cfg *config.Config) (storage.TaskStore, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		db, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		dialect := postgres.NewDialect()
		if err := dialect.AutoMigrate(db); err != nil {
			db.Close()
			return nil, err
		}
		return repository.NewStore(db, dialect), nil

	case "mongo":
		return mongostore.NewStore(cfg.Storage.MongoURI, cfg.Storage.MongoDB)

	case "sqlite", "":
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0755); err != nil {
			return nil, err
		}
		db, err := sqlite.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		dialect := sqlite.NewDialect()
		if err := dialect.AutoMigrate(db); err != nil {
			db.Close()
			return nil, err
		}
		return repository.NewStore(db, dialect), nil

	default:
		return nil, fmt.Errorf("unknown storage driver: %q", cfg.Storage.Driver)
	}
}

// buildBrowserFactory 构建浏览器会话工厂
//
// Docker 运行时启用时先拉起容器化 Chromium，工厂通过 CDP
// 远程地址连接；否则直接本地 exec 启动。
func buildBrowserFactory(cfg *config.Config) (browser.Factory, func(), error) {
	opts := browser.Options{
		ExecPath:      cfg.Browser.ExecPath,
		Headless:      cfg.Browser.Headless,
		NavTimeout:    cfg.Browser.NavTimeout,
		ActionTimeout: cfg.Browser.ActionTimeout,
	}

	var cleanup func()
	if cfg.Browser.Docker.Enabled {
		rt, err := docker.NewRuntime(docker.RuntimeConfig{
			Image:     cfg.Browser.Docker.Image,
			DebugPort: cfg.Browser.Docker.DebugPort,
		})
		if err != nil {
			return nil, nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		remoteURL, err := rt.Start(ctx)
		cancel()
		if err != nil {
			rt.Close()
			return nil, nil, err
		}
		opts.RemoteURL = remoteURL
		cleanup = func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			rt.Stop(ctx)
			rt.Close()
		}
		log.Printf("Browser container started [cdp=%s]", remoteURL)
	}

	factory := browser.FactoryFunc(func(ctx context.Context) (browser.Session, error) {
		return browser.NewChromeSession(ctx, opts)
	})
	return factory, cleanup, nil
}
