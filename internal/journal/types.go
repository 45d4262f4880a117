package journal

// Action 表示成交方向。
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// DateLayout 是全系统统一的交易日格式。
const DateLayout = "2006-01-02"

// TradeEvent 是一条经过校验的成交记录，入账后不可变。
// Sequence 为导入顺序号，用于同日同时刻成交的稳定排序。
type TradeEvent struct {
	Symbol       string  `json:"symbol"`
	Date         string  `json:"trade_date"`
	Time         string  `json:"trade_time"`
	Action       Action  `json:"action"`
	Quantity     float64 `json:"quantity"`
	Price        float64 `json:"price"`
	Amount       float64 `json:"amount"`
	Commission   float64 `json:"commission"`
	SecurityName string  `json:"security_name,omitempty"`
	SecurityType string  `json:"security_type,omitempty"`
	Sequence     int64   `json:"sequence"`

	// 导入元数据，不参与配对计算。
	Broker     string         `json:"broker,omitempty"`
	SourceFile string         `json:"source_file,omitempty"`
	BatchID    string         `json:"batch_id,omitempty"`
	Extra      map[string]any `json:"extra,omitempty"`
}

// OpenLot 是一笔买入中尚未被卖出配对掉的剩余部分。
// Remaining 单调递减，归零后该 lot 从队列中移除。
type OpenLot struct {
	Buy       TradeEvent `json:"buy"`
	Remaining float64    `json:"remaining"`
}

// UnitCost 返回含手续费的单位成本。
func (l OpenLot) UnitCost() float64 {
	if l.Buy.Quantity <= 0 {
		return 0
	}
	return (l.Buy.Amount + l.Buy.Commission) / l.Buy.Quantity
}

// Position 是单个标的的持仓快照，完全由未平仓 lot 队列推导。
type Position struct {
	Symbol        string  `json:"symbol"`
	SecurityName  string  `json:"security_name,omitempty"`
	SecurityType  string  `json:"security_type,omitempty"`
	TotalQuantity float64 `json:"total_quantity"`
	AvgCost       float64 `json:"avg_cost"`
	TotalCost     float64 `json:"total_cost"`
	LastTradeDate string  `json:"last_trade_date,omitempty"`
}

// ClosedLot 是一次 FIFO 配对产生的已平仓记录。
// 一笔卖出跨多个买入 lot 时会生成多条记录。
type ClosedLot struct {
	Symbol       string  `json:"symbol"`
	SecurityName string  `json:"security_name,omitempty"`
	OpenDate     string  `json:"open_date"`
	CloseDate    string  `json:"close_date"`
	HoldingDays  int     `json:"holding_days"`
	Quantity     float64 `json:"quantity"`
	OpenPrice    float64 `json:"open_price"`
	ClosePrice   float64 `json:"close_price"`
	TotalCost    float64 `json:"total_cost"`
	TotalRevenue float64 `json:"total_revenue"`
	Commission   float64 `json:"commission"`
	NetPnL       float64 `json:"net_pnl"`
	PnLPct       float64 `json:"pnl_pct"`
}

// DailySummary 是某个交易日的汇总统计，可随时由当日交易与平仓记录重算。
type DailySummary struct {
	Date            string  `json:"summary_date"`
	TotalTrades     int     `json:"total_trades"`
	BuyTrades       int     `json:"buy_trades"`
	SellTrades      int     `json:"sell_trades"`
	TotalVolume     float64 `json:"total_volume"`
	TotalCommission float64 `json:"total_commission"`
	RealizedPnL     float64 `json:"realized_pnl"`
	WinningTrades   int     `json:"winning_trades"`
	LosingTrades    int     `json:"losing_trades"`
	WinRate         float64 `json:"win_rate"`
	LargestProfit   float64 `json:"largest_profit"`
	LargestLoss     float64 `json:"largest_loss"`
	AvgProfit       float64 `json:"avg_profit"`
	AvgLoss         float64 `json:"avg_loss"`
	ProfitFactor    float64 `json:"profit_factor"`
}
