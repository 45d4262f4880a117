package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fupan/internal/journal"
	"fupan/internal/store/model"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Store 用 Gorm + SQLite 实现交易日志的存储网关。
type Store struct {
	db *gorm.DB
}

var _ journal.Storage = (*Store)(nil)

func New(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	return NewFromDB(db)
}

func NewFromDB(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm db cannot be nil")
	}
	models := []interface{}{
		&model.TradeModel{},
		&model.PositionModel{},
		&model.ClosedLotModel{},
		&model.DailySummaryModel{},
		&model.ImportedFileModel{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		// SQLite + WAL：允许少量并发读，同时把锁竞争压低。
		sqlDB.SetMaxOpenConns(2)
		sqlDB.SetMaxIdleConns(2)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// --------------------- trades -------------------------

func (s *Store) InsertTrades(ctx context.Context, trades []journal.TradeEvent) error {
	if len(trades) == 0 {
		return nil
	}
	now := time.Now().Unix()
	rows := make([]model.TradeModel, 0, len(trades))
	for _, t := range trades {
		rows = append(rows, newTradeModel(t, now))
	}
	return s.db.WithContext(ctx).CreateInBatches(rows, 200).Error
}

func (s *Store) GetTradesBySymbol(ctx context.Context, symbol string) ([]journal.TradeEvent, error) {
	var rows []model.TradeModel
	err := s.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("trade_date ASC, trade_time ASC, sequence ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return tradesFromModels(rows), nil
}

func (s *Store) GetTradesByDate(ctx context.Context, date string) ([]journal.TradeEvent, error) {
	var rows []model.TradeModel
	err := s.db.WithContext(ctx).
		Where("trade_date = ?", date).
		Order("trade_time ASC, sequence ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return tradesFromModels(rows), nil
}

func (s *Store) GetAllTrades(ctx context.Context) ([]journal.TradeEvent, error) {
	var rows []model.TradeModel
	err := s.db.WithContext(ctx).
		Order("trade_date ASC, trade_time ASC, sequence ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return tradesFromModels(rows), nil
}

// --------------------- positions -------------------------

func (s *Store) UpdatePosition(ctx context.Context, symbol string, pos journal.Position) error {
	row := model.PositionModel{
		Symbol:        symbol,
		SecurityName:  pos.SecurityName,
		SecurityType:  pos.SecurityType,
		TotalQuantity: pos.TotalQuantity,
		AvgCost:       pos.AvgCost,
		TotalCost:     pos.TotalCost,
		LastTradeDate: pos.LastTradeDate,
		UpdatedAt:     time.Now().Unix(),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "symbol"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"security_name", "security_type", "total_quantity",
				"avg_cost", "total_cost", "last_trade_date", "updated_at",
			}),
		}).
		Create(&row).Error
}

func (s *Store) GetOpenPositions(ctx context.Context) ([]journal.Position, error) {
	var rows []model.PositionModel
	if err := s.db.WithContext(ctx).Order("symbol ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]journal.Position, 0, len(rows))
	for _, r := range rows {
		out = append(out, journal.Position{
			Symbol:        r.Symbol,
			SecurityName:  r.SecurityName,
			SecurityType:  r.SecurityType,
			TotalQuantity: r.TotalQuantity,
			AvgCost:       r.AvgCost,
			TotalCost:     r.TotalCost,
			LastTradeDate: r.LastTradeDate,
		})
	}
	return out, nil
}

// --------------------- closed lots -------------------------

func (s *Store) InsertClosedLot(ctx context.Context, lot journal.ClosedLot) error {
	row := model.ClosedLotModel{
		Symbol:       lot.Symbol,
		SecurityName: lot.SecurityName,
		OpenDate:     lot.OpenDate,
		CloseDate:    lot.CloseDate,
		HoldingDays:  lot.HoldingDays,
		Quantity:     lot.Quantity,
		OpenPrice:    lot.OpenPrice,
		ClosePrice:   lot.ClosePrice,
		TotalCost:    lot.TotalCost,
		TotalRevenue: lot.TotalRevenue,
		Commission:   lot.Commission,
		NetPnL:       lot.NetPnL,
		PnLPct:       lot.PnLPct,
		CreatedAt:    time.Now().Unix(),
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *Store) GetClosedLotsByDate(ctx context.Context, date string) ([]journal.ClosedLot, error) {
	var rows []model.ClosedLotModel
	err := s.db.WithContext(ctx).
		Where("close_date = ?", date).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return closedLotsFromModels(rows), nil
}

func (s *Store) GetAllClosedLots(ctx context.Context) ([]journal.ClosedLot, error) {
	var rows []model.ClosedLotModel
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return closedLotsFromModels(rows), nil
}

// --------------------- daily summaries -------------------------

func (s *Store) UpsertDailySummary(ctx context.Context, sum journal.DailySummary) error {
	row := model.DailySummaryModel{
		SummaryDate:     sum.Date,
		TotalTrades:     sum.TotalTrades,
		BuyTrades:       sum.BuyTrades,
		SellTrades:      sum.SellTrades,
		TotalVolume:     sum.TotalVolume,
		TotalCommission: sum.TotalCommission,
		RealizedPnL:     sum.RealizedPnL,
		WinningTrades:   sum.WinningTrades,
		LosingTrades:    sum.LosingTrades,
		WinRate:         sum.WinRate,
		LargestProfit:   sum.LargestProfit,
		LargestLoss:     sum.LargestLoss,
		AvgProfit:       sum.AvgProfit,
		AvgLoss:         sum.AvgLoss,
		ProfitFactor:    sum.ProfitFactor,
		UpdatedAt:       time.Now().Unix(),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "summary_date"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"total_trades", "buy_trades", "sell_trades", "total_volume",
				"total_commission", "realized_pnl", "winning_trades", "losing_trades",
				"win_rate", "largest_profit", "largest_loss", "avg_profit",
				"avg_loss", "profit_factor", "updated_at",
			}),
		}).
		Create(&row).Error
}

func (s *Store) GetDailySummary(ctx context.Context, date string) (journal.DailySummary, bool, error) {
	var row model.DailySummaryModel
	err := s.db.WithContext(ctx).Where("summary_date = ?", date).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return journal.DailySummary{Date: date}, false, nil
	}
	if err != nil {
		return journal.DailySummary{Date: date}, false, err
	}
	return journal.DailySummary{
		Date:            row.SummaryDate,
		TotalTrades:     row.TotalTrades,
		BuyTrades:       row.BuyTrades,
		SellTrades:      row.SellTrades,
		TotalVolume:     row.TotalVolume,
		TotalCommission: row.TotalCommission,
		RealizedPnL:     row.RealizedPnL,
		WinningTrades:   row.WinningTrades,
		LosingTrades:    row.LosingTrades,
		WinRate:         row.WinRate,
		LargestProfit:   row.LargestProfit,
		LargestLoss:     row.LargestLoss,
		AvgProfit:       row.AvgProfit,
		AvgLoss:         row.AvgLoss,
		ProfitFactor:    row.ProfitFactor,
	}, true, nil
}

// --------------------- imported files -------------------------

// ImportedFile 记录已导入文件的指纹，避免重复入账。
type ImportedFile struct {
	Hash     string
	Filename string
	Broker   string
	BatchID  string
	Rows     int
}

func (s *Store) IsFileImported(ctx context.Context, hash string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&model.ImportedFileModel{}).
		Where("hash = ?", hash).
		Count(&count).Error
	return count > 0, err
}

func (s *Store) MarkFileImported(ctx context.Context, rec ImportedFile) error {
	row := model.ImportedFileModel{
		Hash:       rec.Hash,
		Filename:   rec.Filename,
		Broker:     rec.Broker,
		BatchID:    rec.BatchID,
		Rows:       rec.Rows,
		ImportedAt: time.Now().Unix(),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error
}

// --------------------- conversions -------------------------

func newTradeModel(t journal.TradeEvent, now int64) model.TradeModel {
	row := model.TradeModel{
		Symbol:       t.Symbol,
		TradeDate:    t.Date,
		TradeTime:    t.Time,
		Action:       string(t.Action),
		Quantity:     t.Quantity,
		Price:        t.Price,
		Amount:       t.Amount,
		Commission:   t.Commission,
		SecurityName: t.SecurityName,
		SecurityType: t.SecurityType,
		Sequence:     t.Sequence,
		Broker:       t.Broker,
		SourceFile:   t.SourceFile,
		BatchID:      t.BatchID,
		CreatedAt:    now,
	}
	if len(t.Extra) > 0 {
		if raw, err := json.Marshal(t.Extra); err == nil {
			row.Extra = datatypes.JSON(raw)
		}
	}
	return row
}

func tradesFromModels(rows []model.TradeModel) []journal.TradeEvent {
	out := make([]journal.TradeEvent, 0, len(rows))
	for _, r := range rows {
		t := journal.TradeEvent{
			Symbol:       r.Symbol,
			Date:         r.TradeDate,
			Time:         r.TradeTime,
			Action:       journal.Action(r.Action),
			Quantity:     r.Quantity,
			Price:        r.Price,
			Amount:       r.Amount,
			Commission:   r.Commission,
			SecurityName: r.SecurityName,
			SecurityType: r.SecurityType,
			Sequence:     r.Sequence,
			Broker:       r.Broker,
			SourceFile:   r.SourceFile,
			BatchID:      r.BatchID,
		}
		if len(r.Extra) > 0 {
			var extra map[string]any
			if err := json.Unmarshal(r.Extra, &extra); err == nil {
				t.Extra = extra
			}
		}
		out = append(out, t)
	}
	return out
}

func closedLotsFromModels(rows []model.ClosedLotModel) []journal.ClosedLot {
	out := make([]journal.ClosedLot, 0, len(rows))
	for _, r := range rows {
		out = append(out, journal.ClosedLot{
			Symbol:       r.Symbol,
			SecurityName: r.SecurityName,
			OpenDate:     r.OpenDate,
			CloseDate:    r.CloseDate,
			HoldingDays:  r.HoldingDays,
			Quantity:     r.Quantity,
			OpenPrice:    r.OpenPrice,
			ClosePrice:   r.ClosePrice,
			TotalCost:    r.TotalCost,
			TotalRevenue: r.TotalRevenue,
			Commission:   r.Commission,
			NetPnL:       r.NetPnL,
			PnLPct:       r.PnLPct,
		})
	}
	return out
}
