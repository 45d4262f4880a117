package scheduler

import (
	"context"
	"fmt"
	"time"

	"fupan/internal/importer"
	"fupan/internal/journal"
	"fupan/internal/logger"

	"github.com/robfig/cron/v3"
)

// Scanner 执行一轮记录目录扫描。
type Scanner interface {
	ScanOnce(ctx context.Context) ([]importer.FileReport, error)
}

// Summarizer 重算某个交易日的汇总。
type Summarizer interface {
	DailySummary(ctx context.Context, date string) (journal.DailySummary, error)
}

// Scheduler 驱动两类定时任务：周期性目录扫描与每日收盘汇总。
type Scheduler struct {
	scanSpec    string
	dailyHour   int
	scanOnStart bool

	scanner    Scanner
	summarizer Summarizer

	cron *cron.Cron
}

func New(scanSpec string, dailyHour int, scanOnStart bool, scanner Scanner, summarizer Summarizer) *Scheduler {
	return &Scheduler{
		scanSpec:    scanSpec,
		dailyHour:   dailyHour,
		scanOnStart: scanOnStart,
		scanner:     scanner,
		summarizer:  summarizer,
	}
}

// Run 注册任务并阻塞运行，直到 ctx 取消。
func (s *Scheduler) Run(ctx context.Context) error {
	c := cron.New(cron.WithChain(
		cron.Recover(cron.DefaultLogger),
		cron.SkipIfStillRunning(cron.DiscardLogger),
	))

	if s.scanner != nil && s.scanSpec != "" {
		if _, err := c.AddFunc(s.scanSpec, func() { s.runScan(ctx) }); err != nil {
			return fmt.Errorf("register scan job failed: %w", err)
		}
	}
	if s.summarizer != nil {
		spec := fmt.Sprintf("0 %d * * *", s.dailyHour)
		if _, err := c.AddFunc(spec, func() { s.runDailySummary(ctx) }); err != nil {
			return fmt.Errorf("register daily summary job failed: %w", err)
		}
	}

	if s.scanOnStart && s.scanner != nil {
		s.runScan(ctx)
	}

	s.cron = c
	c.Start()
	logger.Infof("定时任务已启动: scan=%q daily_hour=%d", s.scanSpec, s.dailyHour)

	<-ctx.Done()
	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(10 * time.Second):
		logger.Warnf("等待定时任务退出超时")
	}
	return ctx.Err()
}

func (s *Scheduler) runScan(ctx context.Context) {
	start := time.Now()
	reports, err := s.scanner.ScanOnce(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.Errorf("定时扫描失败: %v", err)
		}
		return
	}
	imported := 0
	for _, r := range reports {
		if !r.Duplicate {
			imported++
		}
	}
	if imported > 0 {
		logger.Infof("定时扫描完成: files=%d imported=%d elapsed=%s",
			len(reports), imported, time.Since(start).Round(time.Millisecond))
	}
}

func (s *Scheduler) runDailySummary(ctx context.Context) {
	date := time.Now().Format(journal.DateLayout)
	summary, err := s.summarizer.DailySummary(ctx, date)
	if err != nil {
		if ctx.Err() == nil {
			logger.Errorf("每日汇总失败: date=%s err=%v", date, err)
		}
		return
	}
	logger.Infof("每日汇总完成: date=%s trades=%d pnl=%.2f", date, summary.TotalTrades, summary.RealizedPnL)
}
