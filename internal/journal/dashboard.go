package journal

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// DashboardOverview 是看板顶部的总览指标。
type DashboardOverview struct {
	TotalTrades    int     `json:"total_trades"`
	TotalPnL       float64 `json:"total_pnl"`
	WinRate        float64 `json:"win_rate"`
	PositionsCount int     `json:"positions_count"`
}

// DailyPnL 是每日已实现盈亏趋势中的一个点。
type DailyPnL struct {
	Date string  `json:"date"`
	PnL  float64 `json:"pnl"`
}

// SymbolPnL 是按标的聚合的盈亏排名条目。
type SymbolPnL struct {
	Symbol     string  `json:"symbol"`
	PnL        float64 `json:"pnl"`
	ReturnRate float64 `json:"return_rate"`
	Trades     int     `json:"trades"`
}

// Dashboard 是看板接口的完整载荷。
type Dashboard struct {
	Overview    DashboardOverview `json:"overview"`
	DailyTrend  []DailyPnL        `json:"daily_trend"`
	TopProfits  []SymbolPnL       `json:"top_profits"`
	TopLosses   []SymbolPnL       `json:"top_losses"`
	LastUpdated string            `json:"last_updated"`
}

const topRankSize = 5

// BuildDashboard 汇总全量交易、持仓与平仓记录生成看板数据。
// trendDays 限定每日趋势的回看窗口（按有成交的交易日计数）。
func (s *Service) BuildDashboard(ctx context.Context, trendDays int) (Dashboard, error) {
	trades, err := s.storage.GetAllTrades(ctx)
	if err != nil {
		return Dashboard{}, fmt.Errorf("loading trades failed: %w", err)
	}
	positions, err := s.storage.GetOpenPositions(ctx)
	if err != nil {
		return Dashboard{}, fmt.Errorf("loading positions failed: %w", err)
	}
	closed, err := s.storage.GetAllClosedLots(ctx)
	if err != nil {
		return Dashboard{}, fmt.Errorf("loading closed lots failed: %w", err)
	}

	var d Dashboard
	d.Overview.TotalTrades = len(trades)
	for _, p := range positions {
		if p.TotalQuantity > 0 {
			d.Overview.PositionsCount++
		}
	}
	var winners, losers int
	for _, cl := range closed {
		d.Overview.TotalPnL += cl.NetPnL
		if cl.NetPnL > 0 {
			winners++
		} else if cl.NetPnL < 0 {
			losers++
		}
	}
	if len(closed) > 0 {
		d.Overview.WinRate = float64(winners) / float64(len(closed)) * 100
	}

	d.DailyTrend = dailyTrend(trades, closed, trendDays)
	d.TopProfits = rankSymbols(closed, true)
	d.TopLosses = rankSymbols(closed, false)
	d.LastUpdated = time.Now().Format(time.RFC3339)
	return d, nil
}

// dailyTrend 以有成交的交易日为横轴，累加当日平仓盈亏。
func dailyTrend(trades []TradeEvent, closed []ClosedLot, trendDays int) []DailyPnL {
	byDate := make(map[string]float64)
	for _, t := range trades {
		if t.Date == "" {
			continue
		}
		if _, ok := byDate[t.Date]; !ok {
			byDate[t.Date] = 0
		}
	}
	for _, cl := range closed {
		if _, ok := byDate[cl.CloseDate]; ok {
			byDate[cl.CloseDate] += cl.NetPnL
		}
	}
	dates := make([]string, 0, len(byDate))
	for date := range byDate {
		dates = append(dates, date)
	}
	sort.Strings(dates)
	if trendDays > 0 && len(dates) > trendDays {
		dates = dates[len(dates)-trendDays:]
	}
	trend := make([]DailyPnL, 0, len(dates))
	for _, date := range dates {
		trend = append(trend, DailyPnL{Date: date, PnL: byDate[date]})
	}
	return trend
}

// rankSymbols 聚合每个标的的已实现盈亏并返回前 5 名（盈利或亏损方向）。
func rankSymbols(closed []ClosedLot, profits bool) []SymbolPnL {
	type acc struct {
		pnl    float64
		cost   float64
		trades int
	}
	bySymbol := make(map[string]*acc)
	for _, cl := range closed {
		if profits && cl.NetPnL <= 0 {
			continue
		}
		if !profits && cl.NetPnL >= 0 {
			continue
		}
		a, ok := bySymbol[cl.Symbol]
		if !ok {
			a = &acc{}
			bySymbol[cl.Symbol] = a
		}
		a.pnl += cl.NetPnL
		a.cost += cl.TotalCost
		a.trades++
	}
	ranked := make([]SymbolPnL, 0, len(bySymbol))
	for symbol, a := range bySymbol {
		entry := SymbolPnL{Symbol: symbol, PnL: a.pnl, Trades: a.trades}
		if a.cost > 0 {
			entry.ReturnRate = a.pnl / a.cost * 100
		}
		ranked = append(ranked, entry)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if profits {
			return ranked[i].PnL > ranked[j].PnL
		}
		return ranked[i].PnL < ranked[j].PnL
	})
	if len(ranked) > topRankSize {
		ranked = ranked[:topRankSize]
	}
	return ranked
}
