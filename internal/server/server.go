package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/receiptpoints/internal/config"
	"github.com/smallbiznis/receiptpoints/internal/observability"
	obslogger "github.com/smallbiznis/receiptpoints/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/receiptpoints/internal/observability/metrics"
	obstracing "github.com/smallbiznis/receiptpoints/internal/observability/tracing"
	"github.com/smallbiznis/receiptpoints/internal/ratelimit"
	receiptdomain "github.com/smallbiznis/receiptpoints/internal/receipt/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(RunHTTP),
)

func NewEngine(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) (*gin.Engine, error) {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if err := trustProxies(r, cfg.TrustedProxies); err != nil {
		return nil, err
	}
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r, nil
}

// trustProxies limits which peers may set the client address through
// forwarding headers. The submission limiter keys on that address.
func trustProxies(r *gin.Engine, proxies []string) error {
	if len(proxies) == 0 {
		proxies = nil
	}
	if err := r.SetTrustedProxies(proxies); err != nil {
		return fmt.Errorf("trusted proxies: %w", err)
	}
	return nil
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	receiptSvc receiptdomain.Service
	limiter    submissionLimiter
	metrics    *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	ReceiptSvc receiptdomain.Service
	Limiter    *ratelimit.SubmissionLimiter `optional:"true"`
	ObsMetrics *obsmetrics.Metrics          `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		receiptSvc: p.ReceiptSvc,
		metrics:    p.ObsMetrics,
	}
	if p.Limiter != nil {
		s.limiter = p.Limiter
	}

	s.registerReceiptRoutes()
	s.registerFallback()
	return s
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerReceiptRoutes() {
	receipts := s.engine.Group("/receipts")
	receipts.POST("/process", s.SubmissionRateLimit(), s.ProcessReceipt)
	receipts.GET("/:id/points", s.GetReceiptPoints)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrRouteNotFound)
	})
}

// RunHTTP binds the listener during start so a taken port fails startup,
// then serves until the application stops.
func RunHTTP(lc fx.Lifecycle, shutdowner fx.Shutdowner, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			log.Info("http server listening", zap.String("addr", ln.Addr().String()))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
