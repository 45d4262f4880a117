package journal

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"fupan/internal/logger"
)

// Storage 是入账服务消费的存储网关。
type Storage interface {
	InsertTrades(ctx context.Context, trades []TradeEvent) error
	GetTradesBySymbol(ctx context.Context, symbol string) ([]TradeEvent, error)
	GetTradesByDate(ctx context.Context, date string) ([]TradeEvent, error)
	GetAllTrades(ctx context.Context) ([]TradeEvent, error)
	UpdatePosition(ctx context.Context, symbol string, pos Position) error
	GetOpenPositions(ctx context.Context) ([]Position, error)
	InsertClosedLot(ctx context.Context, lot ClosedLot) error
	GetClosedLotsByDate(ctx context.Context, date string) ([]ClosedLot, error)
	GetAllClosedLots(ctx context.Context) ([]ClosedLot, error)
	UpsertDailySummary(ctx context.Context, s DailySummary) error
}

// Result 汇总一次批量入账的处理结果。
// 失败永远隔离在单条记录或单个标的，不会中断整个批次。
type Result struct {
	Processed        int     `json:"processed"`
	Rejected         int     `json:"rejected"`
	PositionsUpdated int     `json:"positions_updated"`
	ClosedLots       int     `json:"closed_lots"`
	Oversells        int     `json:"oversells"`
	Errors           []error `json:"-"`
}

// Service 驱动批量入账：按标的分组排序、重放历史、FIFO 配对并在
// 检查点持久化。不同标的并行处理，同一标的内部严格串行。
type Service struct {
	storage Storage
	workers int

	// procMu 串行化整个批次：批内不同标的并行，批与批之间不并行，
	// 避免两个批次同时触碰同一标的的 lot 队列。
	procMu sync.Mutex

	mu       sync.Mutex
	ledger   *Ledger
	replayed map[string]bool
}

func NewService(storage Storage) *Service {
	return &Service{
		storage:  storage,
		workers:  4,
		ledger:   NewLedger(),
		replayed: make(map[string]bool),
	}
}

// ProcessTrades 处理一批成交记录。
// 非法记录整条拒绝并计入 Rejected；其余按标的分组后并行入账，
// 每个标的处理完成后把持仓与平仓记录写入存储。
func (s *Service) ProcessTrades(ctx context.Context, events []TradeEvent) (Result, error) {
	s.procMu.Lock()
	defer s.procMu.Unlock()

	var result Result
	groups := make(map[string][]TradeEvent)
	var order []string
	for _, ev := range events {
		if err := Validate(ev); err != nil {
			result.Rejected++
			result.Errors = append(result.Errors, err)
			logger.Warnf("成交记录被拒绝 %s: %v", ev.Symbol, err)
			continue
		}
		if _, ok := groups[ev.Symbol]; !ok {
			order = append(order, ev.Symbol)
		}
		groups[ev.Symbol] = append(groups[ev.Symbol], ev)
	}
	if len(groups) == 0 {
		return result, nil
	}

	// 重放阶段串行执行：保证并行阶段只读 book 映射。
	s.mu.Lock()
	for _, symbol := range order {
		if err := s.ensureReplayedLocked(ctx, symbol); err != nil {
			s.mu.Unlock()
			return result, fmt.Errorf("replaying %s failed: %w", symbol, err)
		}
	}
	s.mu.Unlock()

	outcomes := make([]symbolOutcome, len(order))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, symbol := range order {
		i, symbol := i, symbol
		g.Go(func() error {
			outcomes[i] = s.applySymbol(gctx, symbol, groups[symbol])
			return nil
		})
	}
	_ = g.Wait()

	for _, out := range outcomes {
		result.Processed += out.processed
		result.PositionsUpdated += out.positionsUpdated
		result.ClosedLots += out.closedLots
		result.Oversells += out.oversells
		result.Errors = append(result.Errors, out.errs...)
	}
	logger.Infof("批量入账完成: processed=%d rejected=%d closed=%d oversell=%d errors=%d",
		result.Processed, result.Rejected, result.ClosedLots, result.Oversells, len(result.Errors))
	return result, nil
}

type symbolOutcome struct {
	processed        int
	positionsUpdated int
	closedLots       int
	oversells        int
	errs             []error
}

// ensureReplayedLocked 在第一次接触某标的时，用已持久化的成交重建其内存账本。
// 重放只恢复 lot 队列与持仓，不重复生成平仓记录。调用方必须持有 s.mu。
func (s *Service) ensureReplayedLocked(ctx context.Context, symbol string) error {
	if s.replayed[symbol] {
		return nil
	}
	history, err := s.storage.GetTradesBySymbol(ctx, symbol)
	if err != nil {
		return err
	}
	s.ledger.book(symbol)
	if len(history) > 0 {
		logger.Infof("重建账本 %s: 历史成交 %d 笔", symbol, len(history))
		s.ledger.Replay(history)
	}
	s.replayed[symbol] = true
	return nil
}

// applySymbol 串行入账单个标的的成交，全部内存处理完成后统一持久化。
func (s *Service) applySymbol(ctx context.Context, symbol string, trades []TradeEvent) symbolOutcome {
	var out symbolOutcome
	SortTrades(trades)

	var closed []ClosedLot
	var position Position
	for _, t := range trades {
		pos, lots, oversold, err := s.ledger.Apply(t)
		if err != nil {
			out.errs = append(out.errs, &SymbolError{Symbol: symbol, Err: err})
			continue
		}
		position = pos
		closed = append(closed, lots...)
		if oversold {
			out.oversells++
		}
		out.processed++
	}
	if out.processed == 0 {
		return out
	}

	// 持久化检查点：失败只影响本标的。
	if err := s.storage.InsertTrades(ctx, trades); err != nil {
		out.errs = append(out.errs, &SymbolError{Symbol: symbol, Err: err})
		return out
	}
	for _, cl := range closed {
		if err := s.storage.InsertClosedLot(ctx, cl); err != nil {
			out.errs = append(out.errs, &SymbolError{Symbol: symbol, Err: err})
			return out
		}
		out.closedLots++
	}
	if err := s.storage.UpdatePosition(ctx, symbol, position); err != nil {
		out.errs = append(out.errs, &SymbolError{Symbol: symbol, Err: err})
		return out
	}
	out.positionsUpdated++
	return out
}

// Position 返回某标的的内存持仓快照（零值兜底）。
func (s *Service) Position(symbol string) Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Position(symbol)
}

// OpenLots 返回某标的的未平仓队列拷贝。
func (s *Service) OpenLots(symbol string) []OpenLot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.OpenLots(symbol)
}

// DailySummary 重算并持久化某交易日的汇总，幂等。
func (s *Service) DailySummary(ctx context.Context, date string) (DailySummary, error) {
	trades, err := s.storage.GetTradesByDate(ctx, date)
	if err != nil {
		return DailySummary{Date: date}, fmt.Errorf("loading trades for %s failed: %w", date, err)
	}
	closed, err := s.storage.GetClosedLotsByDate(ctx, date)
	if err != nil {
		return DailySummary{Date: date}, fmt.Errorf("loading closed lots for %s failed: %w", date, err)
	}
	summary := Summarize(date, trades, closed)
	if err := s.storage.UpsertDailySummary(ctx, summary); err != nil {
		return summary, fmt.Errorf("saving summary for %s failed: %w", date, err)
	}
	return summary, nil
}
