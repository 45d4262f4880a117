package journal

import (
	"sort"

	"fupan/internal/logger"
)

// epsilon 用于浮点剩余量比较：低于该值的残余视为已完全配对。
const epsilon = 1e-9

// matchSell 以 FIFO 顺序消耗未平仓买入队列，返回生成的平仓记录
// 与未能配对的剩余卖出数量（超卖部分）。
// 队列必须已按 (日期, 时间, 序号) 升序排列。
func matchSell(lots []*OpenLot, sell TradeEvent) (remaining []*OpenLot, closed []ClosedLot, unmatched float64) {
	unmatched = sell.Quantity
	remaining = lots
	for len(remaining) > 0 && unmatched > epsilon {
		lot := remaining[0]
		if lot.Remaining <= epsilon {
			remaining = remaining[1:]
			continue
		}
		matched := unmatched
		if lot.Remaining < matched {
			matched = lot.Remaining
		}
		closed = append(closed, newClosedLot(lot, sell, matched))
		lot.Remaining -= matched
		unmatched -= matched
		if lot.Remaining <= epsilon {
			lot.Remaining = 0
			remaining = remaining[1:]
		}
	}
	if unmatched <= epsilon {
		unmatched = 0
	}
	return remaining, closed, unmatched
}

// newClosedLot 为一次配对计算成本、收益与按比例分摊的手续费。
func newClosedLot(lot *OpenLot, sell TradeEvent, matched float64) ClosedLot {
	buy := lot.Buy

	var buyCommission, sellCommission float64
	if buy.Quantity > 0 {
		buyCommission = buy.Commission * matched / buy.Quantity
	}
	if sell.Quantity > 0 {
		sellCommission = sell.Commission * matched / sell.Quantity
	}

	totalCost := matched*buy.Price + buyCommission
	totalRevenue := matched*sell.Price - sellCommission
	netPnL := totalRevenue - totalCost
	var pnlPct float64
	if totalCost > 0 {
		pnlPct = netPnL / totalCost * 100
	}

	days, ok := holdingDays(buy.Date, sell.Date)
	if !ok {
		logger.Warnf("无法解析持有天数 %s: open=%q close=%q，按 0 处理", buy.Symbol, buy.Date, sell.Date)
	}

	return ClosedLot{
		Symbol:       buy.Symbol,
		SecurityName: buy.SecurityName,
		OpenDate:     buy.Date,
		CloseDate:    sell.Date,
		HoldingDays:  days,
		Quantity:     matched,
		OpenPrice:    buy.Price,
		ClosePrice:   sell.Price,
		TotalCost:    totalCost,
		TotalRevenue: totalRevenue,
		Commission:   buyCommission + sellCommission,
		NetPnL:       netPnL,
		PnLPct:       pnlPct,
	}
}

// sortLots 按 (日期, 时间, 序号) 排序，保证 FIFO 消耗顺序确定。
func sortLots(lots []*OpenLot) {
	sort.SliceStable(lots, func(i, j int) bool {
		a, b := lots[i].Buy, lots[j].Buy
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.Time != b.Time {
			return a.Time < b.Time
		}
		return a.Sequence < b.Sequence
	})
}
