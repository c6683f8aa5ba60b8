package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"backtest_go/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// BacktestRun is a persisted backtest (or walk-forward fold aggregate) result.
type BacktestRun struct {
	ID             uint      `gorm:"primaryKey"`
	Strategy       string    `gorm:"index"`
	Mode           string    // backtest | walkforward
	Bars           int
	InitialCapital float64
	FinalEquity    float64
	TotalReturn    float64
	SharpeRatio    float64
	MaxDrawdown    float64
	TotalTrades    int
	RuntimeSeconds float64
	CreatedAt      time.Time
}

// FoldResult is one walk-forward fold belonging to a run.
type FoldResult struct {
	ID          uint `gorm:"primaryKey"`
	RunID       uint `gorm:"index"`
	Fold        int
	TrainFrom   time.Time
	TrainTo     time.Time
	TestFrom    time.Time
	TestTo      time.Time
	SharpeRatio float64
	TotalReturn float64
	MaxDrawdown float64
	CreatedAt   time.Time
}

// OrderRecord is the audit journal row for a terminal paper order.
type OrderRecord struct {
	ID           uint   `gorm:"primaryKey"`
	OrderID      string `gorm:"uniqueIndex"`
	Symbol       string `gorm:"index"`
	Side         string
	OrderType    string
	Quantity     float64
	LimitPrice   float64
	FilledQty    float64
	AvgFillPrice float64
	Status       string
	RejectReason string
	CreatedAt    time.Time
}

// Storage wraps the SQLite database used for run history and order audit.
type Storage struct {
	db *gorm.DB
}

// NewStorage opens (or creates) the SQLite database at path and migrates
// the schema. Pure Go driver, no cgo.
func NewStorage(dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join("data", "backtest.db")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&BacktestRun{}, &FoldResult{}, &OrderRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

// ======================================================================================
// Run Operations
// ======================================================================================

// SaveRun persists a completed run and returns its ID.
func (s *Storage) SaveRun(run *BacktestRun) (uint, error) {
	if err := s.db.Create(run).Error; err != nil {
		return 0, err
	}
	return run.ID, nil
}

// GetRun retrieves a run by ID.
func (s *Storage) GetRun(id uint) (*BacktestRun, error) {
	var run BacktestRun
	err := s.db.First(&run, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil // Not found is not an error
	}
	return &run, err
}

// ListRuns returns the most recent runs, newest first.
func (s *Storage) ListRuns(limit int) ([]BacktestRun, error) {
	if limit <= 0 {
		limit = 50
	}
	var runs []BacktestRun
	err := s.db.Order("created_at DESC").Limit(limit).Find(&runs).Error
	return runs, err
}

// SaveFolds persists the per-fold results of a walk-forward run.
func (s *Storage) SaveFolds(runID uint, folds []FoldResult) error {
	if len(folds) == 0 {
		return nil
	}
	for i := range folds {
		folds[i].RunID = runID
	}
	return s.db.Create(&folds).Error
}

// GetFolds returns the folds belonging to a run, in fold order.
func (s *Storage) GetFolds(runID uint) ([]FoldResult, error) {
	var folds []FoldResult
	err := s.db.Where("run_id = ?", runID).Order("fold ASC").Find(&folds).Error
	return folds, err
}

// ======================================================================================
// Order Journal
// ======================================================================================

// SaveOrder journals a terminal order. Re-saving the same order ID updates
// the existing row.
func (s *Storage) SaveOrder(order *domain.PaperOrder) error {
	rec := OrderRecord{
		OrderID:      order.ID,
		Symbol:       order.Symbol,
		Side:         order.Side,
		OrderType:    order.OrderType,
		Quantity:     order.Quantity,
		LimitPrice:   order.LimitPrice,
		FilledQty:    order.FilledQty,
		AvgFillPrice: order.AvgFillPrice,
		Status:       order.Status,
		RejectReason: order.RejectReason,
		CreatedAt:    order.CreatedAt,
	}

	var existing OrderRecord
	err := s.db.First(&existing, "order_id = ?", order.ID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.db.Create(&rec).Error
	}
	if err != nil {
		return err
	}
	rec.ID = existing.ID
	return s.db.Save(&rec).Error
}

// ListOrders returns journaled orders for a symbol ("" for all).
func (s *Storage) ListOrders(symbol string, limit int) ([]OrderRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	q := s.db.Order("created_at DESC").Limit(limit)
	if symbol != "" {
		q = q.Where("symbol = ?", symbol)
	}
	var orders []OrderRecord
	err := q.Find(&orders).Error
	return orders, err
}
