package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/ralt/aptpool/internal/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// extraction is one cached record
type extraction struct {
	SHA256    string `gorm:"primaryKey;size:64"`
	Record    []byte `gorm:"not null"`
	CreatedAt time.Time
}

func (extraction) TableName() string { return "extractions" }

// SQLite persists extraction results across runs
type SQLite struct {
	db *gorm.DB
}

// OpenSQLite opens (creating if needed) the cache database at path
func OpenSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	gormLogger := logger.Default.LogMode(logger.Silent)
	if logrus.IsLevelEnabled(logrus.DebugLevel) {
		gormLogger = logger.Default.LogMode(logger.Warn)
	}

	// WAL and a busy timeout let a concurrent ingest read while a publish writes
	db, err := gorm.Open(sqlite.Open(path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"), &gorm.Config{
		Logger: gormLogger,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	// SQLite: one writer at a time
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := db.AutoMigrate(&extraction{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate cache database: %w", err)
	}

	logrus.Debugf("Opened extraction cache %s", path)
	return &SQLite{db: db}, nil
}

// Get implements Cache.Get
func (s *SQLite) Get(ctx context.Context, sha256 string) (*models.Package, bool, error) {
	var row extraction
	err := s.db.WithContext(ctx).First(&row, "sha256 = ?", sha256).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache lookup %s: %w", sha256, err)
	}

	var pkg models.Package
	if err := json.Unmarshal(row.Record, &pkg); err != nil {
		return nil, false, fmt.Errorf("cache record %s: %w", sha256, err)
	}
	return &pkg, true, nil
}

// Put implements Cache.Put
func (s *SQLite) Put(ctx context.Context, pkg *models.Package) error {
	record := *pkg
	record.Filename = ""
	data, err := json.Marshal(&record)
	if err != nil {
		return err
	}

	row := extraction{SHA256: pkg.SHA256Sum, Record: data}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("cache store %s: %w", pkg.SHA256Sum, err)
	}
	return nil
}

// Close implements Cache.Close
func (s *SQLite) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
