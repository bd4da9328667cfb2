package data

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"quantlab/internal/market"

	_ "modernc.org/sqlite"
)

// Key 是缓存键：symbol + interval + 请求区间，与数据源无关。
type Key struct {
	Symbol   string
	Interval string
	Start    int64
	End      int64
}

func (k Key) String() string {
	return fmt.Sprintf("%s@%s[%d,%d]", strings.ToUpper(k.Symbol), strings.ToLower(k.Interval), k.Start, k.End)
}

// Manifest 记录某个 symbol@interval 文件的统计信息与新鲜度。
type Manifest struct {
	Symbol     string `json:"symbol"`
	Interval   string `json:"interval"`
	MinTS      int64  `json:"min_ts"`
	MaxTS      int64  `json:"max_ts"`
	Rows       int64  `json:"rows"`
	LastSyncAt int64  `json:"last_sync_at"`
	Path       string `json:"path"`
}

// Store 以 sqlite 文件缓存 K 线：每个 symbol@interval 一个库。
// 读并发不受限；写通过 per-key 互斥串行化（写 K 不阻塞其他 key）。
type Store struct {
	root string

	mu      sync.Mutex
	dbs     map[string]*sql.DB
	writeMu map[string]*sync.Mutex
}

func NewStore(root string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("cache root 不能为空")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{
		root:    root,
		dbs:     make(map[string]*sql.DB),
		writeMu: make(map[string]*sync.Mutex),
	}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for k, db := range s.dbs {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.dbs, k)
	}
	return firstErr
}

func storeKey(symbol, interval string) string {
	return strings.ToUpper(symbol) + "@" + strings.ToLower(interval)
}

func (s *Store) db(symbol, interval string) (*sql.DB, string, error) {
	if symbol == "" || interval == "" {
		return nil, "", fmt.Errorf("symbol/interval 不能为空")
	}
	key := storeKey(symbol, interval)
	s.mu.Lock()
	defer s.mu.Unlock()
	if db, ok := s.dbs[key]; ok && db != nil {
		return db, s.dbPath(symbol, interval), nil
	}
	path := s.dbPath(symbol, interval)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, "", err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, "", err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	if err := ensureSchema(db, symbol, interval); err != nil {
		_ = db.Close()
		return nil, "", err
	}
	s.dbs[key] = db
	return db, path, nil
}

func (s *Store) dbPath(symbol, interval string) string {
	dir := filepath.Join(s.root, strings.ToUpper(symbol))
	return filepath.Join(dir, strings.ToLower(interval)+".db")
}

func (s *Store) lockKey(symbol, interval string) *sync.Mutex {
	key := storeKey(symbol, interval)
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.writeMu[key]; ok {
		return m
	}
	m := &sync.Mutex{}
	s.writeMu[key] = m
	return m
}

func ensureSchema(db *sql.DB, symbol, interval string) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS bars (
			ts     INTEGER PRIMARY KEY,
			open   REAL NOT NULL,
			high   REAL NOT NULL,
			low    REAL NOT NULL,
			close  REAL NOT NULL,
			volume REAL NOT NULL,
			inserted_at INTEGER NOT NULL DEFAULT (strftime('%s','now') * 1000)
		);`,
		`CREATE TABLE IF NOT EXISTS spans (
			start_ts   INTEGER NOT NULL,
			end_ts     INTEGER NOT NULL,
			fetched_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS manifest (
			id INTEGER PRIMARY KEY CHECK (id=1),
			symbol TEXT NOT NULL,
			interval TEXT NOT NULL,
			min_ts INTEGER,
			max_ts INTEGER,
			rows INTEGER DEFAULT 0,
			last_sync_at INTEGER
		);`,
		`INSERT INTO manifest (id, symbol, interval) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET symbol=excluded.symbol, interval=excluded.interval;`,
	}
	for i, stmt := range stmts {
		var err error
		if i == len(stmts)-1 {
			_, err = db.Exec(stmt, strings.ToUpper(symbol), strings.ToLower(interval))
		} else {
			_, err = db.Exec(stmt)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Get 查询缓存。完整覆盖返回裁剪到请求窗口的序列；
// 未覆盖返回 (zero, false, nil)，缓存缺失不是错误。
func (s *Store) Get(ctx context.Context, key Key) (market.Series, bool, error) {
	report, err := s.Coverage(ctx, key.Symbol, key.Interval, key.Start, key.End)
	if err != nil {
		return market.Series{}, false, err
	}
	if !report.Complete() {
		return market.Series{}, false, nil
	}
	series, err := s.rangeBars(ctx, key.Symbol, key.Interval, key.Start, key.End)
	if err != nil {
		return market.Series{}, false, err
	}
	return series, true, nil
}

// Put 写入序列并登记有效区间。同 ts 冲突 last-write-wins，
// 整个写入在单事务内完成（Series 粒度原子）。
func (s *Store) Put(ctx context.Context, key Key, series market.Series) error {
	if err := series.Validate(); err != nil {
		return err
	}
	lock := s.lockKey(key.Symbol, key.Interval)
	lock.Lock()
	defer lock.Unlock()

	db, _, err := s.db(key.Symbol, key.Interval)
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bars (ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(ts) DO UPDATE SET
		    open=excluded.open,
		    high=excluded.high,
		    low=excluded.low,
		    close=excluded.close,
		    volume=excluded.volume`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, b := range series.Bars {
		if _, err := stmt.ExecContext(ctx, b.TS, b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := upsertSpan(ctx, tx, key.Start, key.End); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	return s.refreshManifest(ctx, db)
}

// Invalidate 删除指定区间的缓存数据与对应的有效区间登记。
func (s *Store) Invalidate(ctx context.Context, key Key) error {
	lock := s.lockKey(key.Symbol, key.Interval)
	lock.Lock()
	defer lock.Unlock()

	db, _, err := s.db(key.Symbol, key.Interval)
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM bars WHERE ts BETWEEN ? AND ?`, key.Start, key.End); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := removeSpan(ctx, tx, key.Start, key.End); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	return s.refreshManifest(ctx, db)
}

// Manifest 读取 symbol@interval 的统计信息。
func (s *Store) Manifest(ctx context.Context, symbol, interval string) (Manifest, error) {
	db, path, err := s.db(symbol, interval)
	if err != nil {
		return Manifest{}, err
	}
	row := db.QueryRowContext(ctx, `SELECT symbol,interval,COALESCE(min_ts,0),COALESCE(max_ts,0),rows,COALESCE(last_sync_at,0) FROM manifest WHERE id=1`)
	var m Manifest
	if err := row.Scan(&m.Symbol, &m.Interval, &m.MinTS, &m.MaxTS, &m.Rows, &m.LastSyncAt); err != nil {
		return Manifest{}, err
	}
	m.Path = path
	return m, nil
}

func (s *Store) refreshManifest(ctx context.Context, db *sql.DB) error {
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `
		UPDATE manifest
		SET min_ts = (SELECT COALESCE(MIN(ts), 0) FROM bars),
		    max_ts = (SELECT COALESCE(MAX(ts), 0) FROM bars),
		    rows = (SELECT COUNT(1) FROM bars),
		    last_sync_at = ?
		WHERE id = 1`, now)
	return err
}

func (s *Store) rangeBars(ctx context.Context, symbol, interval string, start, end int64) (market.Series, error) {
	db, _, err := s.db(symbol, interval)
	if err != nil {
		return market.Series{}, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume
		FROM bars
		WHERE ts BETWEEN ? AND ?
		ORDER BY ts ASC`, start, end)
	if err != nil {
		return market.Series{}, err
	}
	defer rows.Close()
	series := market.Series{
		Symbol:   strings.ToUpper(symbol),
		Interval: strings.ToLower(interval),
		Start:    start,
		End:      end,
	}
	for rows.Next() {
		var b market.Bar
		if err := rows.Scan(&b.TS, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return market.Series{}, err
		}
		series.Bars = append(series.Bars, b)
	}
	return series, rows.Err()
}

// CachedBars 按区间读取已缓存的 K 线，不做覆盖判定（供查询接口使用）。
func (s *Store) CachedBars(ctx context.Context, symbol, interval string, start, end int64) (market.Series, error) {
	return s.rangeBars(ctx, symbol, interval, start, end)
}
