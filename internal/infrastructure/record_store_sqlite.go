package infrastructure

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/yourusername/fetch-install-go/internal/domain"
)

// SQLiteRecordStore implements DownloadRecordStore using SQLite. All
// records live under one namespace.
type SQLiteRecordStore struct {
	db        *gorm.DB
	namespace string
}

// NewSQLiteRecordStore opens (or creates) the database at dbPath
func NewSQLiteRecordStore(dbPath, namespace string) (*SQLiteRecordStore, error) {
	if namespace == "" {
		namespace = domain.RecordNamespace
	}

	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&domain.DownloadRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &SQLiteRecordStore{db: db, namespace: namespace}, nil
}

// Get returns the record for versionKey, or nil if there is none
func (s *SQLiteRecordStore) Get(versionKey string) (*domain.DownloadRecord, error) {
	var record domain.DownloadRecord
	err := s.db.Where("namespace = ? AND version_key = ?", s.namespace, versionKey).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// Put inserts record or replaces the file path of an existing one
func (s *SQLiteRecordStore) Put(record *domain.DownloadRecord) error {
	if record.VersionKey == "" {
		return fmt.Errorf("record has no version key")
	}
	record.Namespace = s.namespace
	record.UpdatedAt = time.Now()

	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "namespace"}, {Name: "version_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"file_path", "updated_at"}),
	}).Create(record).Error
}

// List returns all records of the namespace, most recently updated first
func (s *SQLiteRecordStore) List() ([]*domain.DownloadRecord, error) {
	var records []*domain.DownloadRecord
	err := s.db.Where("namespace = ?", s.namespace).
		Order("updated_at DESC").
		Find(&records).Error
	return records, err
}

// Delete removes the record for versionKey
func (s *SQLiteRecordStore) Delete(versionKey string) error {
	return s.db.Where("namespace = ? AND version_key = ?", s.namespace, versionKey).
		Delete(&domain.DownloadRecord{}).Error
}

// Ping checks the database connection
func (s *SQLiteRecordStore) Ping() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Close closes the database connection
func (s *SQLiteRecordStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
