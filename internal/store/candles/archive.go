// Package candles archives cached candle windows into one SQLite file per
// asset@timeframe.
package candles

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"quantdesk/internal/market"

	_ "modernc.org/sqlite"
)

// Manifest summarises one archive file.
type Manifest struct {
	Asset      string `json:"asset"`
	Timeframe  string `json:"timeframe"`
	MinTime    int64  `json:"min_time"`
	MaxTime    int64  `json:"max_time"`
	Rows       int64  `json:"rows"`
	LastSyncAt int64  `json:"last_sync_at"`
	Path       string `json:"path"`
}

type Archive struct {
	root string

	mu  sync.Mutex
	dbs map[string]*sql.DB
}

func Open(root string) (*Archive, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("archive root is empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Archive{root: root, dbs: make(map[string]*sql.DB)}, nil
}

func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var firstErr error
	for k, db := range a.dbs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(a.dbs, k)
	}
	return firstErr
}

func (a *Archive) db(asset, timeframe string) (*sql.DB, string, error) {
	asset = strings.ToUpper(strings.TrimSpace(asset))
	timeframe = strings.ToLower(strings.TrimSpace(timeframe))
	if asset == "" || timeframe == "" {
		return nil, "", fmt.Errorf("asset/timeframe is empty")
	}
	if strings.ContainsAny(asset, `/\.`) {
		asset = strings.NewReplacer("/", "_", `\`, "_", ".", "_").Replace(asset)
	}
	key := asset + "@" + timeframe
	path := filepath.Join(a.root, asset, timeframe+".db")
	a.mu.Lock()
	defer a.mu.Unlock()
	if db, ok := a.dbs[key]; ok {
		return db, path, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, "", err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, "", err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureSchema(db, asset, timeframe); err != nil {
		_ = db.Close()
		return nil, "", err
	}
	a.dbs[key] = db
	return db, path, nil
}

// Save upserts candles; an existing bar with the same time is overwritten.
func (a *Archive) Save(ctx context.Context, asset, timeframe string, candles []market.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	db, _, err := a.db(asset, timeframe)
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candles (time, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(time) DO UPDATE SET
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
	for _, c := range candles {
		if c.Time <= 0 {
			continue
		}
		if _, err := stmt.ExecContext(ctx, c.Time, c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	return refreshManifest(ctx, db)
}

// Query returns the most recent limit bars in chronological order.
func (a *Archive) Query(ctx context.Context, asset, timeframe string, limit int) ([]market.Candle, error) {
	db, _, err := a.db(asset, timeframe)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 200
	}
	rows, err := db.QueryContext(ctx, `
		SELECT time, open, high, low, close, volume
		FROM candles ORDER BY time DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []market.Candle
	for rows.Next() {
		var c market.Candle
		if err := rows.Scan(&c.Time, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
		list[i], list[j] = list[j], list[i]
	}
	return list, nil
}

func (a *Archive) Manifest(ctx context.Context, asset, timeframe string) (Manifest, error) {
	db, path, err := a.db(asset, timeframe)
	if err != nil {
		return Manifest{}, err
	}
	row := db.QueryRowContext(ctx, `SELECT asset,timeframe,min_time,max_time,rows,last_sync_at FROM manifest WHERE id=1`)
	var m Manifest
	if err := row.Scan(&m.Asset, &m.Timeframe, &m.MinTime, &m.MaxTime, &m.Rows, &m.LastSyncAt); err != nil {
		return Manifest{}, err
	}
	m.Path = path
	return m, nil
}

func refreshManifest(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		UPDATE manifest
		SET min_time = (SELECT COALESCE(MIN(time), 0) FROM candles),
		    max_time = (SELECT COALESCE(MAX(time), 0) FROM candles),
		    rows = (SELECT COUNT(1) FROM candles),
		    last_sync_at = ?
		WHERE id = 1`, time.Now().UnixMilli())
	return err
}

func ensureSchema(db *sql.DB, asset, timeframe string) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS candles (
			time   INTEGER PRIMARY KEY,
			open   REAL NOT NULL,
			high   REAL NOT NULL,
			low    REAL NOT NULL,
			close  REAL NOT NULL,
			volume REAL NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS manifest (
			id INTEGER PRIMARY KEY CHECK (id=1),
			asset TEXT NOT NULL,
			timeframe TEXT NOT NULL,
			min_time INTEGER DEFAULT 0,
			max_time INTEGER DEFAULT 0,
			rows INTEGER DEFAULT 0,
			last_sync_at INTEGER DEFAULT 0
		);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	_, err := db.Exec(`INSERT INTO manifest (id, asset, timeframe) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET asset=excluded.asset, timeframe=excluded.timeframe;`, asset, timeframe)
	return err
}
