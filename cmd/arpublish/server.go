package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/arpublish/api/handlers"
	"github.com/BaSui01/arpublish/config"
	"github.com/BaSui01/arpublish/exporter"
	"github.com/BaSui01/arpublish/internal/metrics"
	"github.com/BaSui01/arpublish/internal/server"
	"github.com/BaSui01/arpublish/internal/telemetry"
	"github.com/BaSui01/arpublish/preview"
	"github.com/BaSui01/arpublish/publish"
	"github.com/BaSui01/arpublish/relay"
	"github.com/BaSui01/arpublish/types"
	"github.com/BaSui01/arpublish/workflow"
)

// metricsNamespace Prometheus 指标前缀
const metricsNamespace = "arpublish"

// serverOptions 选择要启动的服务
type serverOptions struct {
	api   bool
	relay bool
}

// =============================================================================
// 🧩 发布 API 组装
// =============================================================================

// apiApp 发布 API 的全部组件
type apiApp struct {
	cfg        *config.Config
	controller *workflow.Controller
	subjects   *workflow.SubjectRegistry
	hub        *handlers.EventHub
	blobs      *preview.BlobStore
	previewer  *preview.Previewer
	health     *handlers.HealthHandler
	collector  *metrics.Collector
	// servers 同进程服务器的运行状态，由 runServer 设置
	servers func() map[string]bool
	logger  *zap.Logger
}

// newAPIApp 由配置组装控制器、事件推送与预览。collector 可为 nil。
func newAPIApp(cfg *config.Config, collector *metrics.Collector, logger *zap.Logger) (*apiApp, error) {
	coord, formats, err := exporter.NewFromConfig(cfg.Export, nil, logger)
	if err != nil {
		return nil, fmt.Errorf("exporter: %w", err)
	}
	pub, err := publish.New(cfg.Publish, logger)
	if err != nil {
		return nil, err
	}

	a := &apiApp{
		cfg:       cfg,
		subjects:  workflow.NewSubjectRegistry(),
		hub:       handlers.NewEventHub(logger),
		health:    handlers.NewHealthHandler(logger),
		collector: collector,
		logger:    logger,
	}
	a.controller, err = workflow.NewController(workflow.Config{Formats: formats}, workflow.Deps{
		Exporter:  coord,
		Publisher: pub,
		Subjects:  a.subjects,
		Presenter: workflow.MultiPresenter{
			workflow.NewLogPresenter(logger),
			workflow.NewEventPresenter(a.hub.Sink()),
		},
		Metrics: collector,
	}, logger)
	if err != nil {
		return nil, err
	}
	a.registerHealth()

	if cfg.Preview.Enabled {
		format, ok := types.ParseFormat(cfg.Preview.Format)
		if !ok {
			return nil, fmt.Errorf("unknown preview format %q", cfg.Preview.Format)
		}
		a.blobs = preview.NewBlobStore(collector, logger)
		a.previewer = preview.NewPreviewer(preview.Config{
			Format:       format,
			ReleaseAfter: cfg.Preview.ReleaseAfter,
			BaseURL:      cfg.Preview.BaseURL,
		}, coord, a.blobs, nil, a.controller.Capability, logger)
	}
	return a, nil
}

// registerHealth 在 /health 与 /ready 中报告控制器状态；未加载主体时 /ready 降级
func (a *apiApp) registerHealth() {
	a.health.SetInfo(func() map[string]any {
		info := map[string]any{
			"state":    a.controller.State().String(),
			"strategy": a.controller.Strategy(),
		}
		if a.servers != nil {
			info["servers"] = a.servers()
		}
		return info
	})
	a.health.RegisterOptionalCheck(handlers.NewCheck("subjects_loaded", func(ctx context.Context) error {
		loaded, err := a.subjects.Subjects(ctx)
		if err != nil {
			return err
		}
		if len(loaded) == 0 {
			return errors.New("no subject loaded")
		}
		return nil
	}))
}

// routes 注册全部 API 路由
func (a *apiApp) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", a.health.HandleHealth)
	mux.HandleFunc("GET /healthz", a.health.HandleHealthz)
	mux.HandleFunc("GET /ready", a.health.HandleReady)
	mux.HandleFunc("GET /readyz", a.health.HandleReady)
	mux.HandleFunc("GET /version", a.health.HandleVersion(Version, BuildTime, GitCommit))

	ph := handlers.NewPublishHandler(a.controller, a.subjects, a.logger)
	mux.HandleFunc("POST /api/v1/publish", ph.HandlePublish)
	mux.HandleFunc("GET /api/v1/status", ph.HandleStatus)
	mux.HandleFunc("GET /api/v1/subjects", ph.HandleGetSubjects)
	mux.HandleFunc("PUT /api/v1/subjects", ph.HandlePutSubjects)
	mux.HandleFunc("DELETE /api/v1/subjects", ph.HandleDeleteSubjects)
	mux.HandleFunc("GET /api/v1/events", a.hub.HandleEvents)

	if a.previewer != nil {
		pv := handlers.NewPreviewHandler(a.previewer, a.logger)
		mux.HandleFunc("POST /api/v1/preview", pv.HandleCreate)
		mux.HandleFunc("GET /preview/{handle}", pv.HandleServe)
	}
	return mux
}

// handler 构建带中间件链的 API handler
func (a *apiApp) handler(ctx context.Context) http.Handler {
	mws := []Middleware{
		Recovery(a.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		RequestLogger(a.logger),
	}
	if a.collector != nil {
		mws = append(mws, MetricsMiddleware(a.collector))
	}
	mws = append(mws,
		CORS(a.cfg.Server.CORSAllowedOrigins),
		RateLimiter(ctx, float64(a.cfg.Server.RateLimitRPS), a.cfg.Server.RateLimitBurst, a.logger),
		APIKeyAuth(a.cfg.Server.APIKeys, skipAuthPaths(), a.logger),
	)
	return Chain(a.routes(), mws...)
}

// close 等待进行中的周期并释放预览与订阅者
func (a *apiApp) close() {
	a.controller.Wait()
	a.hub.Close()
	if a.blobs != nil {
		a.blobs.Close()
	}
}

// relayHandler 为 relay 构建中间件链；查看页需加载外部脚本，不设置 CSP
func relayHandler(rs *relay.Server, collector *metrics.Collector, logger *zap.Logger) http.Handler {
	health := handlers.NewHealthHandler(logger)
	health.RegisterCheck(handlers.NewCheck("share_index_"+rs.IndexName(), rs.Ping))
	health.SetInfo(rs.Info)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", health.HandleHealth)
	mux.HandleFunc("GET /ready", health.HandleReady)
	mux.Handle("/", rs.Handler())

	mws := []Middleware{Recovery(logger), RequestID(), OTelTracing(), RequestLogger(logger)}
	if collector != nil {
		mws = append(mws, MetricsMiddleware(collector))
	}
	return Chain(mux, mws...)
}

// =============================================================================
// 🚀 运行
// =============================================================================

func serverConfig(port int, cfg config.ServerConfig) server.Config {
	return server.Config{
		Addr:            fmt.Sprintf(":%d", port),
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		IdleTimeout:     2 * cfg.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}
}

// runServer 启动所选服务与 metrics 服务器，阻塞到 ctx 结束
func runServer(ctx context.Context, cfg *config.Config, opts serverOptions, logger *zap.Logger) (err error) {
	providers, terr := telemetry.Init(cfg.Telemetry, logger)
	if terr != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(terr))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		if serr := providers.Shutdown(shutdownCtx); serr != nil {
			logger.Warn("telemetry shutdown error", zap.Error(serr))
		}
	}()

	collector := metrics.NewCollector(metricsNamespace, logger)
	var (
		managers []*server.Manager
		app      *apiApp
	)

	if opts.api {
		var aerr error
		app, aerr = newAPIApp(cfg, collector, logger)
		if aerr != nil {
			return aerr
		}
		defer app.close()
		apiCfg := serverConfig(cfg.Server.HTTPPort, cfg.Server)
		managers = append(managers, server.NewManager("api", app.handler(ctx), apiCfg, logger))
	}

	if opts.relay {
		rs, closeRelay, rerr := relay.New(ctx, cfg, collector, logger)
		if rerr != nil {
			return fmt.Errorf("relay: %w", rerr)
		}
		defer func() {
			if cerr := closeRelay(); cerr != nil {
				err = errors.Join(err, fmt.Errorf("close relay: %w", cerr))
			}
		}()
		relayCfg := serverConfig(cfg.Relay.HTTPPort, cfg.Server)
		managers = append(managers, server.NewManager("relay", relayHandler(rs, collector, logger), relayCfg, logger))
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	managers = append(managers, server.NewManager("metrics", metricsMux, serverConfig(cfg.Server.MetricsPort, cfg.Server), logger))

	logger.Info("servers starting",
		zap.Bool("api", opts.api),
		zap.Bool("relay", opts.relay),
		zap.Int("http_port", cfg.Server.HTTPPort),
		zap.Int("relay_port", cfg.Relay.HTTPPort),
		zap.Int("metrics_port", cfg.Server.MetricsPort),
	)
	group := server.NewGroup(logger, managers...)
	if app != nil {
		app.servers = group.Running
	}
	if err := group.Run(ctx, cfg.Server.ShutdownTimeout); err != nil {
		return err
	}
	logger.Info("arpublish stopped")
	return nil
}
