package backtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// RunStore 持久化回测任务及其产物（交易清单、资金曲线）。
type RunStore struct {
	db *gorm.DB
}

type runModel struct {
	ID        string `gorm:"primaryKey;size:36"`
	Symbol    string `gorm:"index;size:32"`
	Interval  string `gorm:"size:8"`
	Strategy  string `gorm:"size:32"`
	Status    string `gorm:"index;size:16"`
	StartTS   int64
	EndTS     int64
	Message   string
	Config    datatypes.JSON
	Stats     datatypes.JSON
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (runModel) TableName() string { return "backtest_runs" }

type tradeModel struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	RunID      string `gorm:"index;size:36"`
	Symbol     string `gorm:"size:32"`
	Side       string `gorm:"size:8"`
	EntryTS    int64
	ExitTS     int64
	EntryPrice float64
	ExitPrice  float64
	Quantity   float64
	Cost       float64
	PnL        float64
	PnLPct     float64
	HoldingMs  int64
	ForcedExit bool
}

func (tradeModel) TableName() string { return "backtest_trades" }

type equityModel struct {
	ID       int64  `gorm:"primaryKey;autoIncrement"`
	RunID    string `gorm:"index;size:36"`
	TS       int64
	Equity   float64
	Cash     float64
	Drawdown float64
}

func (equityModel) TableName() string { return "backtest_equity" }

func NewRunStore(path string) (*RunStore, error) {
	if path == "" {
		return nil, fmt.Errorf("result db path 不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&runModel{}, &tradeModel{}, &equityModel{}); err != nil {
		return nil, err
	}
	return &RunStore{db: db}, nil
}

func (s *RunStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *RunStore) InsertRun(ctx context.Context, run Run) error {
	model, err := toRunModel(run)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(&model).Error
}

func (s *RunStore) UpdateStatus(ctx context.Context, id, status, message string) error {
	return s.db.WithContext(ctx).Model(&runModel{}).Where("id = ?", id).
		Updates(map[string]any{"status": status, "message": message}).Error
}

// FinishRun 在单事务内写入最终状态、统计与全部交易/资金曲线。
func (s *RunStore) FinishRun(ctx context.Context, id string, result Result) error {
	statsJSON, err := json.Marshal(result.Stats)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&runModel{}).Where("id = ?", id).Updates(map[string]any{
			"status":  RunStatusDone,
			"message": "完成",
			"stats":   datatypes.JSON(statsJSON),
		}).Error; err != nil {
			return err
		}
		for _, t := range result.Trades {
			model := tradeModel{
				RunID:      id,
				Symbol:     t.Symbol,
				Side:       string(t.Side),
				EntryTS:    t.EntryTS,
				ExitTS:     t.ExitTS,
				EntryPrice: t.EntryPrice,
				ExitPrice:  t.ExitPrice,
				Quantity:   t.Quantity,
				Cost:       t.Cost,
				PnL:        t.PnL,
				PnLPct:     t.PnLPct,
				HoldingMs:  t.HoldingMs,
				ForcedExit: t.ForcedExit,
			}
			if err := tx.Create(&model).Error; err != nil {
				return err
			}
		}
		if len(result.Equity) > 0 {
			models := make([]equityModel, 0, len(result.Equity))
			for _, pt := range result.Equity {
				models = append(models, equityModel{
					RunID:    id,
					TS:       pt.TS,
					Equity:   pt.Equity,
					Cash:     pt.Cash,
					Drawdown: pt.Drawdown,
				})
			}
			if err := tx.CreateInBatches(models, 200).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *RunStore) GetRun(ctx context.Context, id string) (Run, bool, error) {
	var model runModel
	err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Run{}, false, nil
	}
	if err != nil {
		return Run{}, false, err
	}
	run, err := fromRunModel(model)
	return run, err == nil, err
}

func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var models []runModel
	if err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]Run, 0, len(models))
	for _, m := range models {
		run, err := fromRunModel(m)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, nil
}

func (s *RunStore) TradesForRun(ctx context.Context, id string) ([]Trade, error) {
	var models []tradeModel
	if err := s.db.WithContext(ctx).Where("run_id = ?", id).Order("entry_ts ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]Trade, 0, len(models))
	for _, m := range models {
		out = append(out, Trade{
			Symbol:     m.Symbol,
			Side:       Side(m.Side),
			EntryTS:    m.EntryTS,
			ExitTS:     m.ExitTS,
			EntryPrice: m.EntryPrice,
			ExitPrice:  m.ExitPrice,
			Quantity:   m.Quantity,
			Cost:       m.Cost,
			PnL:        m.PnL,
			PnLPct:     m.PnLPct,
			HoldingMs:  m.HoldingMs,
			ForcedExit: m.ForcedExit,
		})
	}
	return out, nil
}

func (s *RunStore) EquityForRun(ctx context.Context, id string) ([]EquityPoint, error) {
	var models []equityModel
	if err := s.db.WithContext(ctx).Where("run_id = ?", id).Order("ts ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]EquityPoint, 0, len(models))
	for _, m := range models {
		out = append(out, EquityPoint{TS: m.TS, Equity: m.Equity, Cash: m.Cash, Drawdown: m.Drawdown})
	}
	return out, nil
}

func toRunModel(run Run) (runModel, error) {
	cfgJSON, err := json.Marshal(run.Config)
	if err != nil {
		return runModel{}, err
	}
	statsJSON, err := json.Marshal(run.Stats)
	if err != nil {
		return runModel{}, err
	}
	return runModel{
		ID:       run.ID,
		Symbol:   run.Symbol,
		Interval: run.Interval,
		Strategy: run.Strategy,
		Status:   run.Status,
		StartTS:  run.StartTS,
		EndTS:    run.EndTS,
		Message:  run.Message,
		Config:   datatypes.JSON(cfgJSON),
		Stats:    datatypes.JSON(statsJSON),
	}, nil
}

func fromRunModel(m runModel) (Run, error) {
	run := Run{
		ID:        m.ID,
		Symbol:    m.Symbol,
		Interval:  m.Interval,
		Strategy:  m.Strategy,
		Status:    m.Status,
		StartTS:   m.StartTS,
		EndTS:     m.EndTS,
		Message:   m.Message,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if len(m.Config) > 0 {
		if err := json.Unmarshal(m.Config, &run.Config); err != nil {
			return Run{}, err
		}
	}
	if len(m.Stats) > 0 {
		if err := json.Unmarshal(m.Stats, &run.Stats); err != nil {
			return Run{}, err
		}
	}
	return run, nil
}
