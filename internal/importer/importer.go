package importer

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"fupan/internal/journal"
	"fupan/internal/logger"
	"fupan/internal/store/archive"
	"fupan/internal/store/sqlite"

	"github.com/fsnotify/fsnotify"
)

// Processor 消费解析出来的成交记录，通常是 journal.Service。
type Processor interface {
	ProcessTrades(ctx context.Context, trades []journal.TradeEvent) (journal.Result, error)
}

// Catalog 提供文件指纹去重。
type Catalog interface {
	IsFileImported(ctx context.Context, hash string) (bool, error)
	MarkFileImported(ctx context.Context, rec sqlite.ImportedFile) error
}

// Archiver 归档批次的原始行。
type Archiver interface {
	Archive(ctx context.Context, m archive.Manifest, rows []map[string]string) error
}

// FileReport 是单个文件的导入结果。
type FileReport struct {
	Filename  string         `json:"filename"`
	Broker    string         `json:"broker,omitempty"`
	BatchID   string         `json:"batch_id,omitempty"`
	Hash      string         `json:"hash"`
	Trades    int            `json:"trades"`
	Skipped   int            `json:"skipped"`
	Duplicate bool           `json:"duplicate"`
	Result    journal.Result `json:"result"`
}

// Importer 监控记录目录，把新出现的券商导出文件解析入账。
type Importer struct {
	dir       string
	parser    *Parser
	catalog   Catalog
	archiver  Archiver
	processor Processor

	scanMu sync.Mutex
}

func New(dir string, parser *Parser, catalog Catalog, archiver Archiver, processor Processor) (*Importer, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("import watch dir cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Importer{
		dir:       dir,
		parser:    parser,
		catalog:   catalog,
		archiver:  archiver,
		processor: processor,
	}, nil
}

var importableExts = map[string]bool{
	".xlsx": true,
	".xls":  true,
	".csv":  true,
	".json": true,
}

// ScanOnce 扫描目录下的全部可导入文件。同一时刻只允许一次扫描。
func (im *Importer) ScanOnce(ctx context.Context) ([]FileReport, error) {
	im.scanMu.Lock()
	defer im.scanMu.Unlock()

	entries, err := os.ReadDir(im.dir)
	if err != nil {
		return nil, fmt.Errorf("read watch dir failed: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !importableExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var reports []FileReport
	for _, name := range names {
		select {
		case <-ctx.Done():
			return reports, ctx.Err()
		default:
		}
		report, err := im.importFile(ctx, filepath.Join(im.dir, name))
		if err != nil {
			logger.Errorf("导入文件 %s 失败: %v", name, err)
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// ImportFile 导入单个文件，重复文件直接跳过。
func (im *Importer) ImportFile(ctx context.Context, path string) (FileReport, error) {
	im.scanMu.Lock()
	defer im.scanMu.Unlock()
	return im.importFile(ctx, path)
}

func (im *Importer) importFile(ctx context.Context, path string) (FileReport, error) {
	hash, err := fileMD5(path)
	if err != nil {
		return FileReport{}, err
	}
	report := FileReport{Filename: filepath.Base(path), Hash: hash}

	imported, err := im.catalog.IsFileImported(ctx, hash)
	if err != nil {
		return report, fmt.Errorf("check imported file failed: %w", err)
	}
	if imported {
		report.Duplicate = true
		logger.Debugf("文件 %s 已导入过，跳过", report.Filename)
		return report, nil
	}

	batch, err := im.parser.ParseFile(path)
	if err != nil {
		return report, fmt.Errorf("parse %s failed: %w", report.Filename, err)
	}
	report.Broker = batch.Broker
	report.BatchID = batch.BatchID
	report.Trades = len(batch.Trades)
	report.Skipped = batch.Skipped

	if im.archiver != nil && len(batch.Raw) > 0 {
		m := archive.Manifest{
			BatchID:  batch.BatchID,
			Filename: batch.Filename,
			Broker:   batch.Broker,
		}
		if err := im.archiver.Archive(ctx, m, batch.Raw); err != nil {
			// 归档失败不阻塞入账，原始文件本身还在。
			logger.Warnf("归档批次 %s 失败: %v", batch.BatchID, err)
		}
	}

	if len(batch.Trades) > 0 {
		result, err := im.processor.ProcessTrades(ctx, batch.Trades)
		if err != nil {
			return report, fmt.Errorf("process trades of %s failed: %w", report.Filename, err)
		}
		report.Result = result
	}

	if err := im.catalog.MarkFileImported(ctx, sqlite.ImportedFile{
		Hash:     hash,
		Filename: report.Filename,
		Broker:   batch.Broker,
		BatchID:  batch.BatchID,
		Rows:     len(batch.Raw),
	}); err != nil {
		return report, fmt.Errorf("mark file imported failed: %w", err)
	}

	logger.Infof("导入完成: file=%s broker=%s trades=%d skipped=%d",
		report.Filename, batch.Broker, report.Trades, report.Skipped)
	return report, nil
}

// Watch 监听目录变化，新文件落盘后延迟触发一次扫描。
// 阻塞直到 ctx 取消。
func (im *Importer) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fs watcher failed: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(im.dir); err != nil {
		return fmt.Errorf("watch %s failed: %w", im.dir, err)
	}
	logger.Infof("开始监控记录目录: %s", im.dir)

	// 合并短时间内的连续事件，等文件写完再扫。
	const debounce = 2 * time.Second
	var timer *time.Timer
	trigger := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !evt.Has(fsnotify.Create) && !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Rename) {
				continue
			}
			if !importableExts[strings.ToLower(filepath.Ext(evt.Name))] {
				continue
			}
			if timer == nil {
				timer = time.AfterFunc(debounce, func() {
					select {
					case trigger <- struct{}{}:
					default:
					}
				})
			} else {
				timer.Reset(debounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warnf("目录监控出错: %v", err)
		case <-trigger:
			timer = nil
			if _, err := im.ScanOnce(ctx); err != nil && ctx.Err() == nil {
				logger.Errorf("目录扫描失败: %v", err)
			}
		}
	}
}

func fileMD5(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
