package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"fupan/internal/importer"
	"fupan/internal/journal"
	"fupan/internal/logger"

	"github.com/gin-gonic/gin"
)

// JournalService 是复盘核心服务暴露给 HTTP 层的能力。
type JournalService interface {
	BuildDashboard(ctx context.Context, trendDays int) (journal.Dashboard, error)
	DailySummary(ctx context.Context, date string) (journal.DailySummary, error)
}

// StoreReader 是 HTTP 层需要的只读存储访问。
type StoreReader interface {
	GetOpenPositions(ctx context.Context) ([]journal.Position, error)
	GetAllClosedLots(ctx context.Context) ([]journal.ClosedLot, error)
	GetClosedLotsByDate(ctx context.Context, date string) ([]journal.ClosedLot, error)
	GetAllTrades(ctx context.Context) ([]journal.TradeEvent, error)
	GetTradesBySymbol(ctx context.Context, symbol string) ([]journal.TradeEvent, error)
	GetDailySummary(ctx context.Context, date string) (journal.DailySummary, bool, error)
}

// ImportRunner 触发文件导入。
type ImportRunner interface {
	ScanOnce(ctx context.Context) ([]importer.FileReport, error)
	ImportFile(ctx context.Context, path string) (importer.FileReport, error)
}

// Server 提供复盘查询与导入接口。
type Server struct {
	addr   string
	router *gin.Engine
}

// ServerConfig 描述 HTTP 服务依赖。
type ServerConfig struct {
	Addr      string
	Journal   JournalService
	Store     StoreReader
	Importer  ImportRunner
	UploadDir string
	TrendDays int
}

// NewServer 构建 HTTP server。
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Journal == nil || cfg.Store == nil {
		return nil, errors.New("http server requires journal service and store")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8800"
	}
	if cfg.TrendDays <= 0 {
		cfg.TrendDays = 30
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r := &Router{
		journal:   cfg.Journal,
		store:     cfg.Store,
		importer:  cfg.Importer,
		uploadDir: cfg.UploadDir,
		trendDays: cfg.TrendDays,
	}
	router.GET("/", r.handleDashboardPage)
	r.Register(router.Group("/api"))

	return &Server{addr: cfg.Addr, router: router}, nil
}

// Addr 返回监听地址。
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Handler 暴露底层 handler，测试用。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start 启动 HTTP 服务，直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Infof("HTTP 服务已启动: %s", s.addr)

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

// requestLogger 记录接口调用，便于追踪导入与刷新操作。
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery
		client := c.ClientIP()
		c.Next()
		dur := time.Since(start)
		status := c.Writer.Status()
		fullPath := path
		if query != "" {
			fullPath = path + "?" + query
		}
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s", method, fullPath, status, client, dur)
	}
}
