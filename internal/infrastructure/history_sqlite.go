package infrastructure

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/trippixn/mediagrab/internal/domain"
)

// SQLiteHistoryRepository implements HistoryRepository using SQLite
type SQLiteHistoryRepository struct {
	db *gorm.DB
}

// NewSQLiteHistoryRepository opens (and migrates) the history database
func NewSQLiteHistoryRepository(dbPath string) (*SQLiteHistoryRepository, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&domain.RequestRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &SQLiteHistoryRepository{db: db}, nil
}

// Create persists one request record
func (r *SQLiteHistoryRepository) Create(record *domain.RequestRecord) error {
	return r.db.Create(record).Error
}

// FindRecent returns the most recent records, newest first
func (r *SQLiteHistoryRepository) FindRecent(limit int) ([]*domain.RequestRecord, error) {
	var records []*domain.RequestRecord
	err := r.db.Order("created_at DESC").Limit(limit).Find(&records).Error
	return records, err
}

// Stats aggregates request counts by terminal state
func (r *SQLiteHistoryRepository) Stats() (*domain.RequestStats, error) {
	stats := &domain.RequestStats{}

	if err := r.db.Model(&domain.RequestRecord{}).Count(&stats.Total).Error; err != nil {
		return nil, err
	}

	stateCounts := []struct {
		State domain.BatchState
		Count int64
	}{}

	if err := r.db.Model(&domain.RequestRecord{}).
		Select("state, count(*) as count").
		Group("state").
		Scan(&stateCounts).Error; err != nil {
		return nil, err
	}

	for _, sc := range stateCounts {
		switch sc.State {
		case domain.BatchSuccess:
			stats.Succeeded = sc.Count
		case domain.BatchPartial:
			stats.Partial = sc.Count
		case domain.BatchFailure:
			stats.Failed = sc.Count
		}
	}

	return stats, nil
}

// Close closes the database connection
func (r *SQLiteHistoryRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ domain.HistoryRepository = (*SQLiteHistoryRepository)(nil)
