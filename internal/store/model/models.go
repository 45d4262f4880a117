package model

import (
	"gorm.io/datatypes"
)

type TradeModel struct {
	ID           int64          `gorm:"column:id;primaryKey"`
	Symbol       string         `gorm:"column:symbol;index"`
	TradeDate    string         `gorm:"column:trade_date;index"`
	TradeTime    string         `gorm:"column:trade_time"`
	Action       string         `gorm:"column:action"`
	Quantity     float64        `gorm:"column:quantity"`
	Price        float64        `gorm:"column:price"`
	Amount       float64        `gorm:"column:amount"`
	Commission   float64        `gorm:"column:commission"`
	SecurityName string         `gorm:"column:security_name"`
	SecurityType string         `gorm:"column:security_type"`
	Sequence     int64          `gorm:"column:sequence"`
	Broker       string         `gorm:"column:broker"`
	SourceFile   string         `gorm:"column:source_file"`
	BatchID      string         `gorm:"column:batch_id;index"`
	Extra        datatypes.JSON `gorm:"column:extra;type:TEXT"`
	CreatedAt    int64          `gorm:"column:created_at"`
}

func (TradeModel) TableName() string { return "trades" }

type PositionModel struct {
	ID            int64   `gorm:"column:id;primaryKey"`
	Symbol        string  `gorm:"column:symbol;uniqueIndex"`
	SecurityName  string  `gorm:"column:security_name"`
	SecurityType  string  `gorm:"column:security_type"`
	TotalQuantity float64 `gorm:"column:total_quantity"`
	AvgCost       float64 `gorm:"column:avg_cost"`
	TotalCost     float64 `gorm:"column:total_cost"`
	LastTradeDate string  `gorm:"column:last_trade_date"`
	UpdatedAt     int64   `gorm:"column:updated_at"`
}

func (PositionModel) TableName() string { return "positions" }

type ClosedLotModel struct {
	ID           int64   `gorm:"column:id;primaryKey"`
	Symbol       string  `gorm:"column:symbol;index"`
	SecurityName string  `gorm:"column:security_name"`
	OpenDate     string  `gorm:"column:open_date"`
	CloseDate    string  `gorm:"column:close_date;index"`
	HoldingDays  int     `gorm:"column:holding_days"`
	Quantity     float64 `gorm:"column:quantity"`
	OpenPrice    float64 `gorm:"column:open_price"`
	ClosePrice   float64 `gorm:"column:close_price"`
	TotalCost    float64 `gorm:"column:total_cost"`
	TotalRevenue float64 `gorm:"column:total_revenue"`
	Commission   float64 `gorm:"column:commission"`
	NetPnL       float64 `gorm:"column:net_pnl"`
	PnLPct       float64 `gorm:"column:pnl_pct"`
	CreatedAt    int64   `gorm:"column:created_at"`
}

func (ClosedLotModel) TableName() string { return "closed_lots" }

type DailySummaryModel struct {
	ID              int64   `gorm:"column:id;primaryKey"`
	SummaryDate     string  `gorm:"column:summary_date;uniqueIndex"`
	TotalTrades     int     `gorm:"column:total_trades"`
	BuyTrades       int     `gorm:"column:buy_trades"`
	SellTrades      int     `gorm:"column:sell_trades"`
	TotalVolume     float64 `gorm:"column:total_volume"`
	TotalCommission float64 `gorm:"column:total_commission"`
	RealizedPnL     float64 `gorm:"column:realized_pnl"`
	WinningTrades   int     `gorm:"column:winning_trades"`
	LosingTrades    int     `gorm:"column:losing_trades"`
	WinRate         float64 `gorm:"column:win_rate"`
	LargestProfit   float64 `gorm:"column:largest_profit"`
	LargestLoss     float64 `gorm:"column:largest_loss"`
	AvgProfit       float64 `gorm:"column:avg_profit"`
	AvgLoss         float64 `gorm:"column:avg_loss"`
	ProfitFactor    float64 `gorm:"column:profit_factor"`
	UpdatedAt       int64   `gorm:"column:updated_at"`
}

func (DailySummaryModel) TableName() string { return "daily_summaries" }

type ImportedFileModel struct {
	ID         int64  `gorm:"column:id;primaryKey"`
	Hash       string `gorm:"column:hash;uniqueIndex"`
	Filename   string `gorm:"column:filename"`
	Broker     string `gorm:"column:broker"`
	BatchID    string `gorm:"column:batch_id"`
	Rows       int    `gorm:"column:rows"`
	ImportedAt int64  `gorm:"column:imported_at"`
}

func (ImportedFileModel) TableName() string { return "imported_files" }
