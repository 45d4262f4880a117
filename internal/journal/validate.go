package journal

import (
	"math"
	"strings"
	"time"
)

// Validate 校验一条成交记录是否可以入账。
// 任何一项不满足即整条拒绝，账本保持原状。
func Validate(t TradeEvent) error {
	if strings.TrimSpace(t.Symbol) == "" {
		return &ValidationError{Field: "symbol", Reason: "is empty"}
	}
	if strings.TrimSpace(t.Date) == "" {
		return &ValidationError{Field: "trade_date", Reason: "is empty"}
	}
	if t.Action != ActionBuy && t.Action != ActionSell {
		return &ValidationError{Field: "action", Reason: "must be BUY or SELL"}
	}
	if !isFinite(t.Quantity) || !isFinite(t.Price) || !isFinite(t.Amount) || !isFinite(t.Commission) {
		return &ValidationError{Field: "numeric fields", Reason: "must be finite numbers"}
	}
	if t.Quantity <= 0 {
		return &ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	if t.Price < 0 {
		return &ValidationError{Field: "price", Reason: "must not be negative"}
	}
	if t.Commission < 0 {
		return &ValidationError{Field: "commission", Reason: "must not be negative"}
	}
	return nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// holdingDays 计算开平仓之间的天数，日期不可解析时按 0 处理（非致命）。
func holdingDays(openDate, closeDate string) (int, bool) {
	open, err := time.Parse(DateLayout, openDate)
	if err != nil {
		return 0, false
	}
	clos, err := time.Parse(DateLayout, closeDate)
	if err != nil {
		return 0, false
	}
	return int(clos.Sub(open).Hours() / 24), true
}
