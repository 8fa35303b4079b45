package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/lsmc/internal/pricing/application"
	"github.com/wyfcoding/lsmc/internal/pricing/bootstrap"
	httphandler "github.com/wyfcoding/lsmc/internal/pricing/interfaces/http"
	"github.com/wyfcoding/lsmc/pkg/config"
	"github.com/wyfcoding/lsmc/pkg/logger"
	"github.com/wyfcoding/lsmc/pkg/metrics"
	"github.com/wyfcoding/lsmc/pkg/ratelimit"
)

const BootstrapName = "pricing"

// 优雅关闭等待时间
const shutdownTimeout = 15 * time.Second

// AppContext 服务运行期依赖
type AppContext struct {
	AppService *application.PricingService
	Limiter    ratelimit.RateLimiter
	Metrics    *metrics.Metrics
	Config     *config.Config
}

func main() {
	configPath := flag.String("config", config.GetEnv("APP_CONFIG", ""), "path to TOML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Logger); err != nil {
		return err
	}
	if cfg.Environment == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appCtx, cleanup, err := initService(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := &http.Server{
		Addr:         net.JoinHostPort(cfg.HTTP.Host, strconv.Itoa(cfg.HTTP.Port)),
		Handler:      registerGin(appCtx),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "service", BootstrapName, "addr", srv.Addr, "version", cfg.Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down", "service", BootstrapName)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func initService(ctx context.Context, cfg *config.Config) (*AppContext, func(), error) {
	defer logger.LogDuration(ctx, "service dependencies initialized")()
	m := metrics.New(cfg.ServiceName)
	components, err := bootstrap.Build(ctx, cfg, m)
	if err != nil {
		return nil, nil, err
	}
	appCtx := &AppContext{
		AppService: components.Service,
		Limiter:    components.RateLimiter,
		Metrics:    m,
		Config:     cfg,
	}
	cleanup := func() {
		slog.Info("cleaning up resources...")
		components.Close()
	}
	return appCtx, cleanup, nil
}

func registerGin(appCtx *AppContext) *gin.Engine {
	cfg := appCtx.Config
	h := httphandler.NewPricingHandler(appCtx.AppService, application.NewSimulationParameters(cfg.Simulation), cfg.HTTP.Limits)
	e := httphandler.NewRouter(h, appCtx.Metrics, httphandler.RouterOptions{
		ServiceName: cfg.ServiceName,
		Version:     cfg.Version,
		HTTP:        cfg.HTTP,
		Metrics:     cfg.Metrics,
		RateLimiter: appCtx.Limiter,
	})
	slog.Info("HTTP routes registered", "service", BootstrapName)
	return e
}
