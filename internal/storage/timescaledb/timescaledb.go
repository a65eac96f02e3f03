// Package timescaledb records every state write in a TimescaleDB hypertable
// and answers history queries from it.
package timescaledb

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chrissnell/homewx/internal/database"
	"github.com/chrissnell/homewx/internal/history"
	"github.com/chrissnell/homewx/internal/log"
	"github.com/chrissnell/homewx/internal/metrics"
	"github.com/chrissnell/homewx/internal/storage"
	"github.com/chrissnell/homewx/internal/types"
	"gorm.io/gorm"
)

// Storage holds the configuration for a TimescaleDB storage backend
type Storage struct {
	TimescaleDBConn *gorm.DB
	metrics         *metrics.Metrics
}

// We declare the Tabler interface for purposes of customizing the table name in the DB
type Tabler interface {
	TableName() string
}

// Record is one row of state_history. Numeric and boolean values go to Val,
// anything else to TextVal.
type Record struct {
	Time    time.Time `gorm:"column:time"`
	StateID string    `gorm:"column:state_id"`
	Val     *float64  `gorm:"column:val"`
	TextVal *string   `gorm:"column:text_val"`
	Ack     bool      `gorm:"column:ack"`
}

// TableName implements the Tabler interface for Record
func (Record) TableName() string {
	return "state_history"
}

var (
	_ storage.StorageEngineInterface = (*Storage)(nil)
	_ history.Querier                = (*Storage)(nil)
)

// New sets up a new TimescaleDB storage backend
func New(ctx context.Context, connStr string, m *metrics.Metrics) (*Storage, error) {
	db, err := database.CreateConnection(connStr)
	if err != nil {
		return nil, err
	}

	t := &Storage{TimescaleDBConn: db, metrics: m}

	required := []struct {
		desc string
		sql  string
	}{
		{"creating database table", createTableSQL},
		{"creating TimescaleDB extension", createExtensionSQL},
		{"creating hypertable", createHypertableSQL},
		{"creating indexes", createIndexesSQL},
	}
	for _, step := range required {
		log.Infof("%s...", step.desc)
		if err := db.WithContext(ctx).Exec(step.sql).Error; err != nil {
			return nil, fmt.Errorf("%s: %w", step.desc, err)
		}
	}

	// Views and policies are conveniences for dashboards. A database without
	// them still records history.
	optional := []struct {
		desc string
		sql  string
	}{
		{"creating 1h view", create1hViewSQL},
		{"dropping the daily rainfall view", dropDailyRainViewSQL},
		{"creating the daily rainfall view", createDailyRainViewSQL},
		{"adding 1h aggregation policy", addAggregationPolicy1hSQL},
		{"adding retention policy", addRetentionPolicySQL},
	}
	for _, step := range optional {
		log.Infof("%s...", step.desc)
		if err := db.WithContext(ctx).Exec(step.sql).Error; err != nil {
			log.Warnf("warning: %s failed: %v", step.desc, err)
		}
	}

	log.Info("TimescaleDB storage backend ready")
	return t, nil
}

// StartStorageEngine creates a goroutine loop to receive state changes and
// send them off to TimescaleDB
func (t *Storage) StartStorageEngine(ctx context.Context, wg *sync.WaitGroup) chan<- types.StateChange {
	log.Info("starting TimescaleDB storage engine...")
	changes := make(chan types.StateChange, 10)
	wg.Add(1)
	go storage.ProcessChanges(ctx, wg, changes, t.StoreChange, "TimescaleDB")
	return changes
}

// StoreChange stores the new value of a state change.
func (t *Storage) StoreChange(c types.StateChange) error {
	r := NewRecord(c.New)
	if err := t.TimescaleDBConn.Create(&r).Error; err != nil {
		t.metrics.HistoryWriteFailed()
		return fmt.Errorf("could not store %s: %w", c.ID, err)
	}
	return nil
}

// NewRecord converts a state into a history row.
func NewRecord(st types.State) Record {
	r := Record{Time: st.Ts, StateID: st.ID, Ack: st.Ack}
	if v, ok := types.Float(st.Val); ok {
		r.Val = &v
		return r
	}
	if st.Val != nil {
		s := fmt.Sprint(st.Val)
		r.TextVal = &s
	}
	return r
}

func entries(recs []Record) []history.Entry {
	out := make([]history.Entry, 0, len(recs))
	for _, r := range recs {
		if r.Val == nil {
			continue
		}
		out = append(out, history.Entry{Ts: r.Time, Val: *r.Val})
	}
	return out
}

// NewestBetween implements history.Querier.
func (t *Storage) NewestBetween(ctx context.Context, id string, from, to time.Time) (*history.Entry, error) {
	var recs []Record
	err := t.TimescaleDBConn.WithContext(ctx).
		Where("state_id = ? AND time >= ? AND time <= ? AND val IS NOT NULL", id, from, to).
		Order("time DESC").
		Limit(1).
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	e := entries(recs)
	if len(e) == 0 {
		return nil, nil
	}
	return &e[0], nil
}

// Latest implements history.Querier.
func (t *Storage) Latest(ctx context.Context, id string, n int) ([]history.Entry, error) {
	var recs []Record
	err := t.TimescaleDBConn.WithContext(ctx).
		Where("state_id = ? AND val IS NOT NULL", id).
		Order("time DESC").
		Limit(n).
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	return entries(recs), nil
}
