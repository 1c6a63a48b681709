package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/flowengine"
	"github.com/BaSui01/flowengine/internal/metrics"
	"github.com/BaSui01/flowengine/internal/server"
	"github.com/BaSui01/flowengine/internal/telemetry"
)

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string) error {
	fs := newFlagSet("serve", os.Stderr)
	configPath := fs.String("config", "", "Path to config file")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting FlowEngine",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetry.Init(ctx, cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Metrics.ShutdownTimeout)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	collector := metrics.NewCollector(cfg.Metrics.Namespace, logger)
	opts := []flowengine.Option{
		flowengine.WithConfig(cfg),
		flowengine.WithLogger(logger),
		flowengine.WithMetrics(collector),
	}
	if instruments, err := telemetry.NewInstruments(nil); err != nil {
		logger.Warn("failed to create otel instruments", zap.Error(err))
	} else {
		opts = append(opts, flowengine.WithInstruments(instruments))
	}
	eng, err := flowengine.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Metrics.ShutdownTimeout)
		defer cancel()
		if err := eng.Close(closeCtx); err != nil {
			logger.Warn("engine close failed", zap.Error(err))
		}
	}()

	mgr := server.NewManager(newOpsHandler(eng, logger), server.FromMetricsConfig(cfg.Metrics), logger)
	if err := mgr.Start(); err != nil {
		return err
	}
	logger.Info("Ops server started", zap.String("addr", mgr.Addr()))

	if err := mgr.Run(ctx); err != nil {
		return err
	}
	logger.Info("FlowEngine stopped")
	return nil
}

// pinger 是 /healthz 依赖的最小接口
type pinger interface {
	Ping(ctx context.Context) error
}

// newOpsHandler 构建 /metrics、/healthz、/version 路由与中间件链
func newOpsHandler(p pinger, logger *zap.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", healthzHandler(p))
	mux.HandleFunc("/version", versionHandler)

	return Chain(mux,
		Recovery(logger),
		RequestID(),
		RequestLogger(logger),
		OTelTracing(),
	)
}

type healthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func healthzHandler(p pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		if err := p.Ping(ctx); err != nil {
			resp = healthResponse{Status: "unavailable", Error: err.Error()}
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	}
}

func versionHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version":    Version,
		"build_time": BuildTime,
		"git_commit": GitCommit,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// =============================================================================
// 🏥 health 命令
// =============================================================================

func runHealthCheck(args []string, out io.Writer) error {
	fs := newFlagSet("health", out)
	addr := fs.String("addr", "http://localhost:9091", "Server address")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*addr + "/healthz")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: status %d", resp.StatusCode)
	}
	fmt.Fprintln(out, "✅ Service is healthy")
	return nil
}
