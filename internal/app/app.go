package app

import (
	"context"
	"errors"
	"fmt"

	"fupan/internal/config"
	"fupan/internal/importer"
	"fupan/internal/journal"
	"fupan/internal/logger"
	"fupan/internal/scheduler"
	"fupan/internal/store/archive"
	"fupan/internal/store/sqlite"
	"fupan/internal/transport/http/web"

	"golang.org/x/sync/errgroup"
)

// App 聚合全部组件：存储、导入、复盘核心、定时任务与 HTTP 服务。
type App struct {
	cfg *config.Config

	store     *sqlite.Store
	archive   *archive.Store
	journal   *journal.Service
	importer  *importer.Importer
	scheduler *scheduler.Scheduler
	server    *web.Server
}

// New 按配置组装应用。
func New(cfg *config.Config) (*App, error) {
	store, err := sqlite.New(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store failed: %w", err)
	}

	archiveStore, err := archive.NewStore(cfg.Storage.ArchiveDir)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open archive failed: %w", err)
	}

	journalSvc := journal.NewService(store)

	registry, err := importer.NewRegistry(cfg.Import.BrokersPath)
	if err != nil {
		// profile 文件缺失时退回内置 profile，不阻塞启动。
		logger.Warnf("加载券商 profile 失败，使用内置配置: %v", err)
		registry, _ = importer.NewRegistry("")
	}
	parser := importer.NewParser(registry)

	imp, err := importer.New(cfg.Import.WatchDir, parser, store, archiveStore, journalSvc)
	if err != nil {
		archiveStore.Close()
		store.Close()
		return nil, fmt.Errorf("init importer failed: %w", err)
	}

	sched := scheduler.New(cfg.Import.ScanCron, cfg.Summary.DailyHour, cfg.Import.ScanOnStart, imp, journalSvc)

	server, err := web.NewServer(web.ServerConfig{
		Addr:      cfg.App.HTTPAddr,
		Journal:   journalSvc,
		Store:     store,
		Importer:  imp,
		UploadDir: cfg.Import.WatchDir,
		TrendDays: cfg.Summary.TrendDays,
	})
	if err != nil {
		archiveStore.Close()
		store.Close()
		return nil, fmt.Errorf("init http server failed: %w", err)
	}

	return &App{
		cfg:       cfg,
		store:     store,
		archive:   archiveStore,
		journal:   journalSvc,
		importer:  imp,
		scheduler: sched,
		server:    server,
	}, nil
}

// Run 启动全部后台组件，阻塞直到 ctx 取消或某个组件出错。
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.server.Start(gctx)
	})
	g.Go(func() error {
		if err := a.scheduler.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := a.importer.Watch(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	logger.Infof("应用已启动: env=%s addr=%s watch=%s",
		a.cfg.App.Env, a.cfg.App.HTTPAddr, a.cfg.Import.WatchDir)

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Close 释放存储资源。
func (a *App) Close() error {
	var firstErr error
	if a.archive != nil {
		if err := a.archive.Close(); err != nil {
			firstErr = err
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
