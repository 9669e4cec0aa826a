package database

import (
	"fmt"
	"log"
	"time"

	"bikerental/models"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	maxRetries    = 5
	retryInterval = 5 * time.Second
)

// InitDB 連線 MySQL，失敗時重試，並設定連線池
func InitDB(dsn, ginMode string) (*gorm.DB, error) {
	// 根據環境設置日誌級別
	logLevel := logger.Info
	if ginMode == "release" {
		logLevel = logger.Warn
	}

	var db *gorm.DB
	var err error
	for i := 0; i < maxRetries; i++ {
		db, err = gorm.Open(mysql.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logLevel),
		})
		if err == nil {
			break
		}
		log.Printf("Failed to connect to database (attempt %d/%d): %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			time.Sleep(retryInterval)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database after %d attempts: %w", maxRetries, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	var dbName string
	if err := db.Raw("SELECT DATABASE()").Scan(&dbName).Error; err != nil {
		return nil, fmt.Errorf("failed to get current database: %w", err)
	}
	log.Printf("Connected to database: %s", dbName)
	return db, nil
}

// Migrate 執行資料庫遷移
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Bike{}, &models.Rental{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	log.Println("Database migration completed")
	return nil
}
