// Package gormstore persists growth simulation runs using Gorm + SQLite.
package gormstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"kestrel/internal/growth"
	storemodel "kestrel/internal/store/model"
)

type simulationRunModel = storemodel.SimulationRunModel
type tradeLogModel = storemodel.TradeLogModel
type historySnapshotModel = storemodel.HistorySnapshotModel

// ErrRunNotFound 表示指定 run_id 不存在。
var ErrRunNotFound = errors.New("simulation run not found")

// RunSummary 是列表端点用的精简头信息。
type RunSummary struct {
	RunID          string    `json:"run_id"`
	StartedAt      time.Time `json:"started_at"`
	DurationDays   int       `json:"duration_days"`
	InitialCapital float64   `json:"initial_capital"`
	FinalValue     float64   `json:"final_value"`
	TotalReturnPct float64   `json:"total_return_pct"`
	CAGR           float64   `json:"cagr"`
	MaxDrawdownPct float64   `json:"max_drawdown_pct"`
	SharpeRatio    float64   `json:"sharpe_ratio"`
	Rebalances     int       `json:"rebalances"`
	ProgressPct    float64   `json:"progress_pct"`
}

// GormStore 基于 Gorm + SQLite 保存模拟运行、净值曲线与成交流水。
type GormStore struct {
	db *gorm.DB
}

// NewGormStore 打开（必要时创建）数据库并迁移表结构。
func NewGormStore(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: 数据库路径不能为空")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	models := []interface{}{
		&simulationRunModel{},
		&tradeLogModel{},
		&historySnapshotModel{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: allow a small amount of parallelism for concurrent HTTP reads
	// while keeping lock contention low.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SQLDB exposes the underlying *sql.DB for shared connections.
func (s *GormStore) SQLDB() (*sql.DB, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store 未初始化")
	}
	return s.db.DB()
}

var _ growth.RunStore = (*GormStore)(nil)

// SaveRun 在单个事务里写入头信息、净值曲线与成交流水。
func (s *GormStore) SaveRun(ctx context.Context, result *growth.Result, cfg growth.Config) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store 未初始化")
	}
	if result == nil || strings.TrimSpace(result.RunID) == "" {
		return fmt.Errorf("run_id 必填")
	}
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("序列化模拟配置失败: %w", err)
	}
	metricsJSON, err := json.Marshal(result.Metrics)
	if err != nil {
		return fmt.Errorf("序列化指标失败: %w", err)
	}
	finalValue := 0.0
	if n := len(result.History); n > 0 {
		finalValue = result.History[n-1].TotalValue
	}
	run := simulationRunModel{
		RunID:          result.RunID,
		StartedAtUnix:  result.StartedAt.UnixMilli(),
		DurationDays:   result.Metrics.DurationDays,
		InitialCapital: cfg.InitialCapital,
		FinalValue:     finalValue,
		TotalReturnPct: result.Metrics.TotalReturnPct,
		CAGR:           result.Metrics.CAGR,
		MaxDrawdownPct: result.Metrics.MaxDrawdownPct,
		SharpeRatio:    result.Metrics.SharpeRatio,
		Rebalances:     result.Metrics.Rebalances,
		ProgressPct:    result.Progress.Pct,
		ConfigJSON:     datatypes.JSON(cfgJSON),
		MetricsJSON:    datatypes.JSON(metricsJSON),
		CreatedAtUnix:  time.Now().UnixMilli(),
	}

	trades := make([]tradeLogModel, 0, len(result.Trades))
	for _, tr := range result.Trades {
		trades = append(trades, tradeLogModel{
			RunID:     result.RunID,
			Timestamp: tr.Timestamp.UnixMilli(),
			Asset:     tr.Asset,
			Action:    tr.Action,
			Quantity:  tr.Quantity,
			Price:     tr.Price,
			Value:     tr.Value,
			Reason:    tr.Reason,
		})
	}
	snapshots := make([]historySnapshotModel, 0, len(result.History))
	for _, h := range result.History {
		snapshots = append(snapshots, historySnapshotModel{
			RunID:       result.RunID,
			Timestamp:   h.Timestamp.UnixMilli(),
			TotalValue:  h.TotalValue,
			Cash:        h.Cash,
			DrawdownPct: h.DrawdownPct,
		})
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&run).Error; err != nil {
			return err
		}
		if len(snapshots) > 0 {
			if err := tx.CreateInBatches(&snapshots, 200).Error; err != nil {
				return err
			}
		}
		if len(trades) > 0 {
			if err := tx.CreateInBatches(&trades, 200).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// ListRuns 按开始时间倒序返回运行摘要。
func (s *GormStore) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store 未初始化")
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var models []simulationRunModel
	if err := s.db.WithContext(ctx).
		Order("started_at DESC, id DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]RunSummary, 0, len(models))
	for _, m := range models {
		out = append(out, runModelToSummary(m))
	}
	return out, nil
}

// GetRun 装载完整的运行记录：头信息、净值曲线与成交流水。
func (s *GormStore) GetRun(ctx context.Context, runID string) (*growth.Result, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store 未初始化")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return nil, fmt.Errorf("run_id 必填")
	}
	var run simulationRunModel
	if err := s.db.WithContext(ctx).Where("run_id = ?", runID).First(&run).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}

	var snapshots []historySnapshotModel
	if err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("timestamp ASC, id ASC").
		Find(&snapshots).Error; err != nil {
		return nil, err
	}
	var trades []tradeLogModel
	if err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("timestamp ASC, id ASC").
		Find(&trades).Error; err != nil {
		return nil, err
	}

	result := &growth.Result{
		RunID:     run.RunID,
		StartedAt: time.UnixMilli(run.StartedAtUnix),
		History:   make([]growth.HistoryEntry, 0, len(snapshots)),
		Trades:    make([]growth.TradeLogEntry, 0, len(trades)),
		Progress:  growth.Progress{Pct: run.ProgressPct},
	}
	if len(run.MetricsJSON) > 0 {
		if err := json.Unmarshal(run.MetricsJSON, &result.Metrics); err != nil {
			return nil, fmt.Errorf("解析指标失败 run_id=%s: %w", runID, err)
		}
	}
	for _, snap := range snapshots {
		result.History = append(result.History, growth.HistoryEntry{
			Timestamp:   time.UnixMilli(snap.Timestamp),
			TotalValue:  snap.TotalValue,
			Cash:        snap.Cash,
			DrawdownPct: snap.DrawdownPct,
		})
	}
	for _, tr := range trades {
		result.Trades = append(result.Trades, growth.TradeLogEntry{
			Timestamp: time.UnixMilli(tr.Timestamp),
			Asset:     tr.Asset,
			Action:    tr.Action,
			Quantity:  tr.Quantity,
			Price:     tr.Price,
			Value:     tr.Value,
			Reason:    tr.Reason,
		})
	}
	return result, nil
}

// GetRunConfig 返回落库的原始模拟配置。
func (s *GormStore) GetRunConfig(ctx context.Context, runID string) (growth.Config, error) {
	var cfg growth.Config
	if s == nil || s.db == nil {
		return cfg, fmt.Errorf("gorm store 未初始化")
	}
	var run simulationRunModel
	if err := s.db.WithContext(ctx).Where("run_id = ?", strings.TrimSpace(runID)).First(&run).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return cfg, ErrRunNotFound
		}
		return cfg, err
	}
	if len(run.ConfigJSON) > 0 {
		if err := json.Unmarshal(run.ConfigJSON, &cfg); err != nil {
			return cfg, fmt.Errorf("解析配置失败 run_id=%s: %w", runID, err)
		}
	}
	return cfg, nil
}

// ListTrades 返回某次运行的成交流水，limit<=0 时取默认上限。
func (s *GormStore) ListTrades(ctx context.Context, runID string, limit int) ([]growth.TradeLogEntry, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store 未初始化")
	}
	if limit <= 0 || limit > 5000 {
		limit = 1000
	}
	var models []tradeLogModel
	if err := s.db.WithContext(ctx).
		Where("run_id = ?", strings.TrimSpace(runID)).
		Order("timestamp ASC, id ASC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]growth.TradeLogEntry, 0, len(models))
	for _, m := range models {
		out = append(out, growth.TradeLogEntry{
			Timestamp: time.UnixMilli(m.Timestamp),
			Asset:     m.Asset,
			Action:    m.Action,
			Quantity:  m.Quantity,
			Price:     m.Price,
			Value:     m.Value,
			Reason:    m.Reason,
		})
	}
	return out, nil
}

func runModelToSummary(m simulationRunModel) RunSummary {
	return RunSummary{
		RunID:          m.RunID,
		StartedAt:      time.UnixMilli(m.StartedAtUnix),
		DurationDays:   m.DurationDays,
		InitialCapital: m.InitialCapital,
		FinalValue:     m.FinalValue,
		TotalReturnPct: m.TotalReturnPct,
		CAGR:           m.CAGR,
		MaxDrawdownPct: m.MaxDrawdownPct,
		SharpeRatio:    m.SharpeRatio,
		Rebalances:     m.Rebalances,
		ProgressPct:    m.ProgressPct,
	}
}

func ensureDir(path string) error {
	dir := filepathDir(path)
	if dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func filepathDir(path string) string {
	last := strings.LastIndex(path, "/")
	if last == -1 {
		last = strings.LastIndex(path, "\\")
	}
	if last == -1 {
		return ""
	}
	return path[:last]
}
