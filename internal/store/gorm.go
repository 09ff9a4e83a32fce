package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Record is one key-value row in the storage table
type Record struct {
	Key       string    `gorm:"primaryKey;column:key"`
	Value     string    `gorm:"column:value"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName overrides the default table name
func (Record) TableName() string {
	return "storage_records"
}

// GormKV is a KV backend over a gorm-managed table
type GormKV struct {
	db *gorm.DB
}

// PostgresConfig holds connection details for a postgres-backed store
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// OpenPostgres opens a postgres-backed KV and runs migrations
func OpenPostgres(cfg PostgresConfig) (*GormKV, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return newGormKV(db)
}

// OpenSQLite opens a sqlite-backed KV for single-user deployments and
// runs migrations. Use ":memory:" for an ephemeral database.
func OpenSQLite(path string) (*GormKV, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return newGormKV(db)
}

// NewGormKV wraps an existing gorm connection
func NewGormKV(db *gorm.DB) (*GormKV, error) {
	return newGormKV(db)
}

func newGormKV(db *gorm.DB) (*GormKV, error) {
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return &GormKV{db: db}, nil
}

func (g *GormKV) Get(ctx context.Context, key string) (string, error) {
	var record Record
	err := g.db.WithContext(ctx).First(&record, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return record.Value, nil
}

func (g *GormKV) Set(ctx context.Context, key, value string) error {
	record := Record{Key: key, Value: value, UpdatedAt: time.Now()}
	return g.db.WithContext(ctx).Save(&record).Error
}

func (g *GormKV) Delete(ctx context.Context, key string) error {
	return g.db.WithContext(ctx).Delete(&Record{}, "key = ?", key).Error
}

func (g *GormKV) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := g.db.WithContext(ctx).
		Model(&Record{}).
		Where("key LIKE ?", prefix+"%").
		Order("key ASC").
		Pluck("key", &keys).Error
	return keys, err
}

// Ping verifies the underlying database connection, for health checks
func (g *GormKV) Ping() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
