// Package decisionlog persists automation decision outcomes to SQLite so
// trade decisions stay auditable across restarts.
package decisionlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"kestrel/internal/trader"

	_ "modernc.org/sqlite"
)

// Record 是一条自动化决策日志。Steps 以 JSON 落库。
type Record struct {
	ID         int64         `json:"id"`
	Timestamp  int64         `json:"ts"`
	AssetKey   string        `json:"asset_key"`
	Symbol     string        `json:"symbol"`
	Timeframe  string        `json:"timeframe"`
	Action     string        `json:"action"`
	Posture    string        `json:"posture"`
	Confidence float64       `json:"confidence"`
	Status     string        `json:"status"`
	Reason     string        `json:"reason,omitempty"`
	Steps      []trader.Step `json:"steps,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// Query 筛选决策日志。
type Query struct {
	Symbol string
	Status string
	Limit  int
	Offset int
}

// Store 管理自动化决策日志。
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	ownsDB bool
}

// NewStore 初始化 SQLite 存储。
func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("decision log path 不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, path: path, ownsDB: true}, nil
}

// UseExternalDB 允许复用外部（例如 GORM）初始化的 SQLite 连接，避免多连接锁冲突。
func (s *Store) UseExternalDB(db *sql.DB) error {
	if s == nil {
		return fmt.Errorf("decision log store 未初始化")
	}
	if db == nil {
		return fmt.Errorf("external db 不能为空")
	}
	if err := ensureSchema(db); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ownsDB && s.db != nil && s.db != db {
		_ = s.db.Close()
	}
	s.db = db
	s.ownsDB = false
	return nil
}

// Close 关闭底层 DB。
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	if !s.ownsDB {
		s.db = nil
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS automation_decisions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			asset_key TEXT,
			symbol TEXT NOT NULL,
			timeframe TEXT,
			action TEXT,
			posture TEXT,
			confidence REAL DEFAULT 0,
			status TEXT NOT NULL,
			reason TEXT,
			steps_json TEXT,
			error TEXT,
			created_at INTEGER NOT NULL
		);
		`,
		`CREATE INDEX IF NOT EXISTS idx_automation_decisions_symbol_ts_id ON automation_decisions(symbol, ts DESC, id DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_automation_decisions_status_ts_id ON automation_decisions(status, ts DESC, id DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("decision log schema init failed: %w", err)
		}
	}
	return nil
}

// Insert 追加一条决策记录。
func (s *Store) Insert(ctx context.Context, rec Record) error {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return fmt.Errorf("decision log store 未初始化")
	}
	if strings.TrimSpace(rec.Symbol) == "" {
		return fmt.Errorf("decision log symbol 不能为空")
	}
	if rec.Timestamp <= 0 {
		rec.Timestamp = time.Now().UnixMilli()
	}
	stepsJSON := "[]"
	if len(rec.Steps) > 0 {
		raw, err := json.Marshal(rec.Steps)
		if err != nil {
			return fmt.Errorf("序列化执行步骤失败: %w", err)
		}
		stepsJSON = string(raw)
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO automation_decisions
			(ts, asset_key, symbol, timeframe, action, posture, confidence, status, reason, steps_json, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Timestamp,
		strings.TrimSpace(rec.AssetKey),
		strings.ToUpper(strings.TrimSpace(rec.Symbol)),
		strings.TrimSpace(rec.Timeframe),
		rec.Action,
		rec.Posture,
		rec.Confidence,
		rec.Status,
		rec.Reason,
		stepsJSON,
		rec.Error,
		time.Now().UnixMilli(),
	)
	return err
}

// List 按时间倒序返回决策记录。
func (s *Store) List(ctx context.Context, q Query) ([]Record, error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return nil, fmt.Errorf("decision log store 未初始化")
	}
	if q.Limit <= 0 || q.Limit > 500 {
		q.Limit = 50
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	var (
		conds []string
		args  []any
	)
	if sym := strings.ToUpper(strings.TrimSpace(q.Symbol)); sym != "" {
		conds = append(conds, "symbol = ?")
		args = append(args, sym)
	}
	if status := strings.TrimSpace(q.Status); status != "" {
		conds = append(conds, "status = ?")
		args = append(args, status)
	}
	query := "SELECT id, ts, asset_key, symbol, timeframe, action, posture, confidence, status, reason, steps_json, error FROM automation_decisions"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY ts DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, q.Limit, q.Offset)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var stepsJSON string
		if err := rows.Scan(
			&rec.ID, &rec.Timestamp, &rec.AssetKey, &rec.Symbol, &rec.Timeframe,
			&rec.Action, &rec.Posture, &rec.Confidence, &rec.Status, &rec.Reason,
			&stepsJSON, &rec.Error,
		); err != nil {
			return nil, err
		}
		if stepsJSON != "" && stepsJSON != "[]" {
			_ = json.Unmarshal([]byte(stepsJSON), &rec.Steps)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
