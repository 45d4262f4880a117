package journal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trade(symbol string, seq int64, date, tm string, action Action, qty, price, commission float64) TradeEvent {
	return TradeEvent{
		Symbol:     symbol,
		Date:       date,
		Time:       tm,
		Action:     action,
		Quantity:   qty,
		Price:      price,
		Amount:     qty * price,
		Commission: commission,
		Sequence:   seq,
	}
}

func TestLedger_BuyOnlyAccumulates(t *testing.T) {
	l := NewLedger()

	_, err := l.ApplyBuy(trade("AAPL", 1, "2024-03-01", "09:30:00", ActionBuy, 100, 10, 1))
	require.NoError(t, err)
	pos, err := l.ApplyBuy(trade("AAPL", 2, "2024-03-02", "09:30:00", ActionBuy, 50, 12, 1))
	require.NoError(t, err)

	assert.InDelta(t, 150, pos.TotalQuantity, 1e-9)
	assert.InDelta(t, 1000+1+600+1, pos.TotalCost, 1e-9)
	assert.InDelta(t, pos.TotalCost/pos.TotalQuantity, pos.AvgCost, 1e-9)
	assert.Equal(t, "2024-03-02", pos.LastTradeDate)
}

func TestLedger_FIFOOrdering(t *testing.T) {
	l := NewLedger()
	_, err := l.ApplyBuy(trade("NVDA", 1, "2024-03-01", "09:30:00", ActionBuy, 100, 10, 0))
	require.NoError(t, err)
	_, err = l.ApplyBuy(trade("NVDA", 2, "2024-03-02", "09:30:00", ActionBuy, 50, 12, 0))
	require.NoError(t, err)

	pos, closed, oversold, err := l.ApplySell(trade("NVDA", 3, "2024-03-05", "10:00:00", ActionSell, 120, 15, 0))
	require.NoError(t, err)
	assert.False(t, oversold)

	require.Len(t, closed, 2)
	assert.InDelta(t, 100, closed[0].Quantity, 1e-9)
	assert.Equal(t, "2024-03-01", closed[0].OpenDate)
	assert.InDelta(t, 20, closed[1].Quantity, 1e-9)
	assert.Equal(t, "2024-03-02", closed[1].OpenDate)

	lots := l.OpenLots("NVDA")
	require.Len(t, lots, 1)
	assert.InDelta(t, 30, lots[0].Remaining, 1e-9)
	assert.InDelta(t, 30, pos.TotalQuantity, 1e-9)
	assert.InDelta(t, 12, pos.AvgCost, 1e-9)
}

func TestLedger_TieBreakBySequence(t *testing.T) {
	l := NewLedger()
	// 同日同时刻的两笔买入按导入序号消耗。
	_, err := l.ApplyBuy(trade("TSLA", 7, "2024-03-01", "09:30:00", ActionBuy, 10, 20, 0))
	require.NoError(t, err)
	_, err = l.ApplyBuy(trade("TSLA", 3, "2024-03-01", "09:30:00", ActionBuy, 10, 30, 0))
	require.NoError(t, err)

	_, closed, _, err := l.ApplySell(trade("TSLA", 9, "2024-03-02", "09:30:00", ActionSell, 10, 25, 0))
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.InDelta(t, 30, closed[0].OpenPrice, 1e-9)
}

func TestLedger_Oversell(t *testing.T) {
	l := NewLedger()
	_, err := l.ApplyBuy(trade("AMD", 1, "2024-03-01", "09:30:00", ActionBuy, 50, 10, 0))
	require.NoError(t, err)

	pos, closed, oversold, err := l.ApplySell(trade("AMD", 2, "2024-03-04", "10:00:00", ActionSell, 80, 11, 0))
	require.NoError(t, err)
	assert.True(t, oversold)
	assert.Zero(t, pos.TotalQuantity)
	assert.Zero(t, pos.AvgCost)
	assert.Zero(t, pos.TotalCost)

	var matched float64
	for _, cl := range closed {
		assert.Greater(t, cl.Quantity, 0.0)
		matched += cl.Quantity
	}
	assert.InDelta(t, 50, matched, 1e-9)
	assert.Empty(t, l.OpenLots("AMD"))
}

func TestLedger_SellWithoutPosition(t *testing.T) {
	l := NewLedger()
	pos, closed, oversold, err := l.ApplySell(trade("MSFT", 1, "2024-03-01", "09:30:00", ActionSell, 10, 100, 0))
	require.NoError(t, err)
	assert.True(t, oversold)
	assert.Empty(t, closed)
	assert.Zero(t, pos.TotalQuantity)
}

func TestLedger_CommissionAllocation(t *testing.T) {
	l := NewLedger()
	// 100 股总手续费 $10，平掉 40 股应分摊整 $4。
	_, err := l.ApplyBuy(trade("AVGO", 1, "2024-03-01", "09:30:00", ActionBuy, 100, 5, 10))
	require.NoError(t, err)

	_, closed, _, err := l.ApplySell(trade("AVGO", 2, "2024-03-08", "10:00:00", ActionSell, 40, 6, 0))
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.InDelta(t, 4.00, closed[0].Commission, 1e-9)
	assert.InDelta(t, 40*5+4, closed[0].TotalCost, 1e-9)
	assert.InDelta(t, 40*6, closed[0].TotalRevenue, 1e-9)
	assert.Equal(t, 7, closed[0].HoldingDays)
}

func TestLedger_CommissionFullyAllocatedAcrossSells(t *testing.T) {
	l := NewLedger()
	_, err := l.ApplyBuy(trade("META", 1, "2024-03-01", "09:30:00", ActionBuy, 90, 10, 9))
	require.NoError(t, err)

	var total float64
	for i, qty := range []float64{30, 30, 30} {
		_, closed, _, err := l.ApplySell(trade("META", int64(i+2), "2024-03-05", "10:00:00", ActionSell, qty, 10, 0))
		require.NoError(t, err)
		for _, cl := range closed {
			total += cl.Commission
		}
	}
	// 完全平掉后，买入手续费分摊之和等于原始手续费。
	assert.InDelta(t, 9, total, 1e-9)
	assert.Empty(t, l.OpenLots("META"))
}

func TestLedger_FullyClosedPnLConsistency(t *testing.T) {
	l := NewLedger()
	_, err := l.ApplyBuy(trade("INTC", 1, "2024-03-01", "09:30:00", ActionBuy, 100, 40, 2))
	require.NoError(t, err)
	_, err = l.ApplyBuy(trade("INTC", 2, "2024-03-02", "09:30:00", ActionBuy, 100, 44, 2))
	require.NoError(t, err)

	var all []ClosedLot
	_, closed, _, err := l.ApplySell(trade("INTC", 3, "2024-03-10", "10:00:00", ActionSell, 150, 45, 3))
	require.NoError(t, err)
	all = append(all, closed...)
	pos, closed, _, err := l.ApplySell(trade("INTC", 4, "2024-03-11", "10:00:00", ActionSell, 50, 46, 1))
	require.NoError(t, err)
	all = append(all, closed...)

	assert.Zero(t, pos.TotalQuantity)
	assert.Empty(t, l.OpenLots("INTC"))

	var totalCost, totalRevenue, netPnL float64
	for _, cl := range all {
		netPnL += cl.NetPnL
		totalCost += cl.TotalCost
		totalRevenue += cl.TotalRevenue
	}
	// 完全平仓后：所有平仓记录的净盈亏之和 == 收入总和 - 成本总和。
	assert.InDelta(t, totalRevenue-totalCost, netPnL, 1e-9)
	// 成本总和应覆盖全部买入金额与手续费。
	assert.InDelta(t, 100*40+2+100*44+2, totalCost, 1e-9)
}

func TestLedger_ValidationLeavesStateUntouched(t *testing.T) {
	l := NewLedger()
	_, err := l.ApplyBuy(trade("BABA", 1, "2024-03-01", "09:30:00", ActionBuy, 10, 80, 1))
	require.NoError(t, err)
	before := l.Position("BABA")

	cases := []TradeEvent{
		trade("BABA", 2, "2024-03-02", "09:30:00", ActionBuy, 0, 80, 1),
		trade("BABA", 3, "2024-03-02", "09:30:00", ActionBuy, -5, 80, 1),
		trade("BABA", 4, "2024-03-02", "09:30:00", "HOLD", 5, 80, 1),
		trade("", 5, "2024-03-02", "09:30:00", ActionBuy, 5, 80, 1),
		trade("BABA", 6, "", "09:30:00", ActionSell, 5, 80, 1),
	}
	for _, tc := range cases {
		_, _, _, err := l.Apply(tc)
		var vErr *ValidationError
		assert.ErrorAs(t, err, &vErr)
	}
	assert.Equal(t, before, l.Position("BABA"))
	assert.Len(t, l.OpenLots("BABA"), 1)
}

func TestLedger_HoldingDaysUnparseableDate(t *testing.T) {
	l := NewLedger()
	_, err := l.ApplyBuy(trade("PLTR", 1, "03/01/2024", "09:30:00", ActionBuy, 10, 20, 0))
	require.NoError(t, err)

	_, closed, _, err := l.ApplySell(trade("PLTR", 2, "2024-03-05", "10:00:00", ActionSell, 10, 22, 0))
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Zero(t, closed[0].HoldingDays)
}

func TestLedger_PnLPctZeroCostGuard(t *testing.T) {
	l := NewLedger()
	_, err := l.ApplyBuy(trade("FREE", 1, "2024-03-01", "09:30:00", ActionBuy, 10, 0, 0))
	require.NoError(t, err)

	_, closed, _, err := l.ApplySell(trade("FREE", 2, "2024-03-02", "10:00:00", ActionSell, 10, 0, 0))
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Zero(t, closed[0].PnLPct)
}

func TestLedger_DeterministicReplay(t *testing.T) {
	batch := []TradeEvent{
		trade("QQQ", 1, "2024-03-01", "09:30:00", ActionBuy, 100, 10, 1),
		trade("QQQ", 2, "2024-03-02", "09:30:00", ActionBuy, 50, 12, 1),
		trade("QQQ", 3, "2024-03-05", "10:00:00", ActionSell, 120, 15, 2),
		trade("QQQ", 4, "2024-03-06", "10:00:00", ActionSell, 10, 14, 1),
	}

	run := func() (Position, []ClosedLot) {
		l := NewLedger()
		var all []ClosedLot
		var pos Position
		for _, ev := range batch {
			p, closed, _, err := l.Apply(ev)
			require.NoError(t, err)
			pos = p
			all = append(all, closed...)
		}
		return pos, all
	}

	pos1, closed1 := run()
	pos2, closed2 := run()
	assert.Equal(t, pos1, pos2)
	assert.Equal(t, closed1, closed2)
}

func TestLedger_PositionMatchesLotSum(t *testing.T) {
	l := NewLedger()
	events := []TradeEvent{
		trade("VTI", 1, "2024-03-01", "09:30:00", ActionBuy, 30, 200, 1),
		trade("VTI", 2, "2024-03-02", "09:30:00", ActionBuy, 20, 210, 1),
		trade("VTI", 3, "2024-03-03", "10:00:00", ActionSell, 25, 215, 1),
		trade("VTI", 4, "2024-03-04", "09:30:00", ActionBuy, 10, 205, 1),
		trade("VTI", 5, "2024-03-05", "10:00:00", ActionSell, 15, 220, 1),
	}
	for _, ev := range events {
		_, _, _, err := l.Apply(ev)
		require.NoError(t, err)

		var lotSum float64
		for _, lot := range l.OpenLots("VTI") {
			assert.GreaterOrEqual(t, lot.Remaining, 0.0)
			assert.LessOrEqual(t, lot.Remaining, lot.Buy.Quantity)
			lotSum += lot.Remaining
		}
		assert.InDelta(t, lotSum, l.Position("VTI").TotalQuantity, 1e-9)
	}
}
