package journal

import (
	"sort"

	"fupan/internal/logger"
)

// Ledger 维护每个标的的持仓与未平仓买入队列。
// 队列是 lot 状态的唯一事实来源，持仓快照在每次入账后由队列重新推导，
// 不单独累计、不会漂移。Ledger 本身不做并发保护：同一标的的成交必须
// 串行入账（不同标的互不影响，可各自并行）。
type Ledger struct {
	books map[string]*book
}

type book struct {
	position Position
	lots     []*OpenLot
}

func NewLedger() *Ledger {
	return &Ledger{books: make(map[string]*book)}
}

func (l *Ledger) book(symbol string) *book {
	b, ok := l.books[symbol]
	if !ok {
		b = &book{position: Position{Symbol: symbol}}
		l.books[symbol] = b
	}
	return b
}

// Position 返回标的当前持仓，没有记录时返回零值持仓。
func (l *Ledger) Position(symbol string) Position {
	if b, ok := l.books[symbol]; ok {
		return b.position
	}
	return Position{Symbol: symbol}
}

// Symbols 返回账本中出现过的全部标的。
func (l *Ledger) Symbols() []string {
	out := make([]string, 0, len(l.books))
	for s := range l.books {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// OpenLots 返回标的未平仓队列的拷贝（FIFO 顺序）。
func (l *Ledger) OpenLots(symbol string) []OpenLot {
	b, ok := l.books[symbol]
	if !ok {
		return nil
	}
	out := make([]OpenLot, 0, len(b.lots))
	for _, lot := range b.lots {
		out = append(out, *lot)
	}
	return out
}

// ApplyBuy 入账一笔买入：追加新 lot 并刷新持仓。
func (l *Ledger) ApplyBuy(trade TradeEvent) (Position, error) {
	if err := Validate(trade); err != nil {
		return l.Position(trade.Symbol), err
	}
	if trade.Action != ActionBuy {
		return l.Position(trade.Symbol), &ValidationError{Field: "action", Reason: "must be BUY"}
	}
	b := l.book(trade.Symbol)
	b.lots = append(b.lots, &OpenLot{Buy: trade, Remaining: trade.Quantity})
	sortLots(b.lots)
	b.refresh(trade)
	return b.position, nil
}

// ApplySell 入账一笔卖出：FIFO 配对生成平仓记录并刷新持仓。
// 返回的 bool 标记本笔是否超卖（卖出数量超过可配对持仓）。
// 超卖不视为错误：可配对部分正常平仓，多余部分不产生任何记录，
// 持仓数量在零处截断。
func (l *Ledger) ApplySell(trade TradeEvent) (Position, []ClosedLot, bool, error) {
	if err := Validate(trade); err != nil {
		return l.Position(trade.Symbol), nil, false, err
	}
	if trade.Action != ActionSell {
		return l.Position(trade.Symbol), nil, false, &ValidationError{Field: "action", Reason: "must be SELL"}
	}
	b := l.book(trade.Symbol)
	lots, closed, unmatched := matchSell(b.lots, trade)
	b.lots = lots
	oversold := unmatched > 0
	if oversold {
		logger.Warnf("卖出数量超过持仓 %s: 卖出=%v 未配对=%v", trade.Symbol, trade.Quantity, unmatched)
	}
	b.refresh(trade)
	return b.position, closed, oversold, nil
}

// Apply 按方向分发入账。
func (l *Ledger) Apply(trade TradeEvent) (Position, []ClosedLot, bool, error) {
	switch trade.Action {
	case ActionBuy:
		pos, err := l.ApplyBuy(trade)
		return pos, nil, false, err
	case ActionSell:
		return l.ApplySell(trade)
	default:
		if err := Validate(trade); err != nil {
			return l.Position(trade.Symbol), nil, false, err
		}
		return l.Position(trade.Symbol), nil, false, &ValidationError{Field: "action", Reason: "must be BUY or SELL"}
	}
}

// Replay 按时间顺序重放历史成交以重建内存账本，不产生新的平仓记录
// （历史卖出对应的平仓记录已经持久化过）。非法记录跳过并告警。
func (l *Ledger) Replay(trades []TradeEvent) {
	SortTrades(trades)
	for _, t := range trades {
		if _, _, _, err := l.Apply(t); err != nil {
			logger.Warnf("重放历史成交被跳过 %s: %v", t.Symbol, err)
		}
	}
}

// refresh 由 lot 队列重新推导持仓快照。
func (b *book) refresh(last TradeEvent) {
	var qty, cost float64
	for _, lot := range b.lots {
		qty += lot.Remaining
		cost += lot.Remaining * lot.UnitCost()
	}
	if qty <= epsilon {
		qty, cost = 0, 0
	}
	pos := Position{
		Symbol:        last.Symbol,
		SecurityName:  b.position.SecurityName,
		SecurityType:  b.position.SecurityType,
		TotalQuantity: qty,
		TotalCost:     cost,
		LastTradeDate: last.Date,
	}
	if last.SecurityName != "" {
		pos.SecurityName = last.SecurityName
	}
	if last.SecurityType != "" {
		pos.SecurityType = last.SecurityType
	}
	if qty > 0 {
		pos.AvgCost = cost / qty
	}
	b.position = pos
}

// SortTrades 按 (日期, 时间, 序号) 原地排序，入账前的统一顺序约定。
func SortTrades(trades []TradeEvent) {
	sort.SliceStable(trades, func(i, j int) bool {
		a, b := trades[i], trades[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.Time != b.Time {
			return a.Time < b.Time
		}
		return a.Sequence < b.Sequence
	})
}
