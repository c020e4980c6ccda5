// Package jobs keeps a history of remote backtest jobs in SQLite via gorm.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"quantdesk/internal/engine"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var ErrNotFound = errors.New("job not found")

// Record is one job row. JSON columns hold the payload, logs and result.
type Record struct {
	ID          string         `gorm:"column:id;primaryKey" json:"id"`
	Asset       string         `gorm:"column:asset;index" json:"asset"`
	Timeframe   string         `gorm:"column:timeframe" json:"timeframe"`
	Status      string         `gorm:"column:status;index" json:"status"`
	Payload     datatypes.JSON `gorm:"column:payload" json:"payload"`
	Logs        datatypes.JSON `gorm:"column:logs" json:"logs"`
	Journal     datatypes.JSON `gorm:"column:journal" json:"journal"`
	Result      datatypes.JSON `gorm:"column:result" json:"result,omitempty"`
	Error       string         `gorm:"column:error" json:"error,omitempty"`
	ErrorMeta   datatypes.JSON `gorm:"column:error_meta" json:"errorMeta,omitempty"`
	TotalTrades int            `gorm:"column:total_trades" json:"totalTrades"`
	TotalProfit float64        `gorm:"column:total_profit" json:"totalProfit"`
	CreatedAt   time.Time      `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt   time.Time      `gorm:"column:updated_at" json:"updatedAt"`
}

func (Record) TableName() string { return "engine_jobs" }

type Store struct {
	db *gorm.DB
}

func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("job store path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
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

// Save upserts rec, keeping the original created_at.
func (s *Store) Save(ctx context.Context, rec Record) error {
	if strings.TrimSpace(rec.ID) == "" {
		return fmt.Errorf("job id is empty")
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"asset", "timeframe", "status", "payload", "logs", "journal",
			"result", "error", "error_meta", "total_trades", "total_profit", "updated_at",
		}),
	}).Create(&rec).Error
}

// Record implements engine.JobRecorder.
func (s *Store) Record(ctx context.Context, p engine.Payload, st engine.State) error {
	rec := Record{
		ID:        st.JobID,
		Asset:     strings.ToUpper(p.Asset),
		Timeframe: p.Timeframe,
		Status:    string(st.Status),
		Error:     st.Error,
	}
	var err error
	if rec.Payload, err = marshalJSON(p); err != nil {
		return err
	}
	if rec.Logs, err = marshalJSON(st.Logs); err != nil {
		return err
	}
	if rec.Journal, err = marshalJSON(st.Journal); err != nil {
		return err
	}
	if st.ErrorMeta != nil {
		if rec.ErrorMeta, err = marshalJSON(st.ErrorMeta); err != nil {
			return err
		}
	}
	if st.Result != nil {
		if rec.Result, err = marshalJSON(st.Result); err != nil {
			return err
		}
		rec.TotalTrades = st.Result.TotalTrades
		rec.TotalProfit = st.Result.TotalProfit
	}
	return s.Save(ctx, rec)
}

func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	var rec Record
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

// List returns the most recently updated jobs first.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var out []Record
	err := s.db.WithContext(ctx).Order("updated_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

func marshalJSON(v any) (datatypes.JSON, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

var _ engine.JobRecorder = (*Store)(nil)
