package gormstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ethpulse/internal/logger"
	"ethpulse/internal/store"
	storemodel "ethpulse/internal/store/model"
	"ethpulse/internal/types"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

const defaultMaxOpenConns = 2

// Options 描述 GormStore 的初始化参数。
type Options struct {
	Path         string
	MaxOpenConns int
	// Now overrides the clock used for default timestamps.
	Now func() time.Time
}

// GormStore implements store.Store using Gorm over the pure-Go SQLite driver.
type GormStore struct {
	db    *gorm.DB
	nowFn func() time.Time
}

var _ store.Store = (*GormStore)(nil)

// NewGormStore opens (or creates) the time-series database at path.
func NewGormStore(path string) (*GormStore, error) {
	return Open(Options{Path: path})
}

func Open(opts Options) (*GormStore, error) {
	path := strings.TrimSpace(opts.Path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: storage path cannot be empty")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", path)
	db, err := gorm.Open(sqlite.New(sqlite.Config{DriverName: "sqlite", DSN: dsn}), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	models := []interface{}{
		&storemodel.SnapshotModel{},
		&storemodel.DecisionModel{},
		&storemodel.DailyRollupModel{},
		&storemodel.MaintenanceModel{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		return nil, err
	}
	// 旧库的 (date, predictor) 唯一索引会挡住同日的 backfill 行
	if mg := db.Migrator(); mg.HasIndex(&storemodel.DailyRollupModel{}, "idx_rollup_day") {
		if err := mg.DropIndex(&storemodel.DailyRollupModel{}, "idx_rollup_day"); err != nil {
			return nil, fmt.Errorf("drop legacy rollup index: %w", err)
		}
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: a small pool lets HTTP reads overlap with a writer
	// while keeping lock contention low.
	conns := opts.MaxOpenConns
	if conns <= 0 {
		conns = defaultMaxOpenConns
	}
	sqlDB.SetMaxOpenConns(conns)
	sqlDB.SetMaxIdleConns(conns)
	nowFn := opts.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	logger.Debugf("[store] opened %s (max_open_conns=%d)", path, conns)
	return &GormStore{db: db, nowFn: nowFn}, nil
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

// PurgeBefore deletes snapshots and decisions strictly older than cutoff.
func (s *GormStore) PurgeBefore(ctx context.Context, cutoff time.Time) (types.PurgeResult, error) {
	if s == nil || s.db == nil {
		return types.PurgeResult{}, errNotInitialized
	}
	var out types.PurgeResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res, err := purgeRaw(tx, cutoff)
		out = res
		return err
	})
	return out, err
}

func purgeRaw(tx *gorm.DB, cutoff time.Time) (types.PurgeResult, error) {
	ms := cutoff.UnixMilli()
	snaps := tx.Where("ts_ms < ?", ms).Delete(&storemodel.SnapshotModel{})
	if snaps.Error != nil {
		return types.PurgeResult{}, fmt.Errorf("purge snapshots: %w", snaps.Error)
	}
	decs := tx.Where("ts_ms < ?", ms).Delete(&storemodel.DecisionModel{})
	if decs.Error != nil {
		return types.PurgeResult{}, fmt.Errorf("purge decisions: %w", decs.Error)
	}
	return types.PurgeResult{Snapshots: snaps.RowsAffected, Decisions: decs.RowsAffected}, nil
}

// Vacuum reclaims free pages. It cannot run inside a transaction.
func (s *GormStore) Vacuum(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errNotInitialized
	}
	return s.db.WithContext(ctx).Exec("VACUUM").Error
}

var errNotInitialized = errors.New("gorm store not initialized")

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func (s *GormStore) now() time.Time {
	if s.nowFn == nil {
		return time.Now()
	}
	return s.nowFn()
}

func wrapNotFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.NotFoundf("%s", what)
	}
	return err
}
