package journal

// Summarize 汇总某个交易日的交易与平仓统计。
// 纯函数：相同输入永远得到相同输出，可安全地随时重算。
// 当日没有任何成交时返回带日期的零值结构。
func Summarize(date string, trades []TradeEvent, closedLots []ClosedLot) DailySummary {
	s := DailySummary{Date: date}

	for _, t := range trades {
		if t.Date != date {
			continue
		}
		s.TotalTrades++
		switch t.Action {
		case ActionBuy:
			s.BuyTrades++
		case ActionSell:
			s.SellTrades++
		}
		s.TotalVolume += t.Amount
		s.TotalCommission += t.Commission
	}
	if s.TotalTrades == 0 {
		return DailySummary{Date: date}
	}

	var closedCount int
	var profitSum, lossSum float64
	for _, cl := range closedLots {
		if cl.CloseDate != date {
			continue
		}
		closedCount++
		s.RealizedPnL += cl.NetPnL
		switch {
		case cl.NetPnL > 0:
			s.WinningTrades++
			profitSum += cl.NetPnL
			if cl.NetPnL > s.LargestProfit {
				s.LargestProfit = cl.NetPnL
			}
		case cl.NetPnL < 0:
			s.LosingTrades++
			lossSum += cl.NetPnL
			if cl.NetPnL < s.LargestLoss {
				s.LargestLoss = cl.NetPnL
			}
		}
	}
	if closedCount > 0 {
		s.WinRate = float64(s.WinningTrades) / float64(closedCount) * 100
	}
	if s.WinningTrades > 0 {
		s.AvgProfit = profitSum / float64(s.WinningTrades)
	}
	if s.LosingTrades > 0 {
		s.AvgLoss = lossSum / float64(s.LosingTrades)
	}
	if s.AvgLoss != 0 {
		s.ProfitFactor = s.AvgProfit / s.AvgLoss
		if s.ProfitFactor < 0 {
			s.ProfitFactor = -s.ProfitFactor
		}
	}
	return s
}
