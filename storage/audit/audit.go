package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Entry is one handled JSON-RPC call.
type Entry struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	RequestID     string    `gorm:"index"`
	Method        string    `gorm:"index"`
	Signer        string    `gorm:"index"`
	Subject       string
	Code          int
	Result        string
	ElapsedMicros int64
	CreatedAt     time.Time `gorm:"index"`
}

func (Entry) TableName() string { return "rpc_audit_entries" }

// Log persists audit entries through gorm.
type Log struct {
	db *gorm.DB
}

// Open connects to the audit database. driver is "sqlite" or "postgres".
func Open(driver, dsn string) (*Log, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("audit: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", driver, err)
	}
	return New(db)
}

// New wraps an existing connection and migrates the schema.
func New(db *gorm.DB) (*Log, error) {
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("audit: migrate: %w", err)
	}
	return &Log{db: db}, nil
}

func (l *Log) Record(ctx context.Context, entry *Entry) error {
	if l == nil || entry == nil {
		return nil
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	return l.db.WithContext(ctx).Create(entry).Error
}

// Recent returns the newest entries first, optionally filtered by method.
func (l *Log) Recent(ctx context.Context, method string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := l.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if method = strings.TrimSpace(method); method != "" {
		query = query.Where("method = ?", method)
	}
	var entries []Entry
	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (l *Log) Close() error {
	if l == nil {
		return nil
	}
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
