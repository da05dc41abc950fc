package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Pool sizing. Idle connections are recycled well before a typical MySQL
// wait_timeout so the pool never hands out a dead connection mid-award.
const (
	dbMaxIdleConns    = 5
	dbMaxOpenConns    = 20
	dbConnMaxLifetime = 30 * time.Minute
	dbConnMaxIdleTime = 10 * time.Minute
)

var db *gorm.DB

// InitDatabase opens the MySQL pool, verifies connectivity and migrates the
// given models. TranslateError is on so duplicate-key failures surface as
// gorm.ErrDuplicatedKey regardless of backend.
func InitDatabase(modelDefs ...interface{}) *gorm.DB {
	if db != nil {
		return db
	}

	cfg := Get()
	conn, err := gorm.Open(mysql.Open(dsnFrom(cfg)), &gorm.Config{
		Logger:         newGormLogger(cfg.LogLevel),
		TranslateError: true,
	})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		log.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxIdleConns(dbMaxIdleConns)
	sqlDB.SetMaxOpenConns(dbMaxOpenConns)
	sqlDB.SetConnMaxLifetime(dbConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(dbConnMaxIdleTime)

	// Surface network or credential problems at boot, not on the first award.
	if err := sqlDB.Ping(); err != nil {
		log.Fatalf("database ping failed: %v", err)
	}

	if len(modelDefs) > 0 {
		if err := conn.AutoMigrate(modelDefs...); err != nil {
			log.Fatalf("auto migration failed: %v", err)
		}
	}

	db = conn
	return db
}

// dsnFrom prefers a full DatabaseURI and otherwise assembles the DSN from
// host parts. parseTime is required for the CreatedAt/UpdatedAt columns.
func dsnFrom(cfg AppConfig) string {
	if cfg.DatabaseURI != "" {
		return cfg.DatabaseURI
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
}

// newGormLogger keeps SQL logging quiet unless the app runs at debug level.
// Slow statements above the threshold are always reported. The stdlib writer
// is deliberate: utils owns the zap logger and already imports config, so
// this package cannot depend on it.
func newGormLogger(appLevel string) logger.Interface {
	level := logger.Warn
	switch appLevel {
	case "debug":
		level = logger.Info
	case "error":
		level = logger.Error
	case "silent":
		level = logger.Silent
	}
	return logger.New(log.New(os.Stdout, "", log.LstdFlags), logger.Config{
		SlowThreshold:             2 * time.Second,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
	})
}

// DB returns the initialized handle and fatals when the boot order is wrong.
func DB() *gorm.DB {
	if db == nil {
		log.Fatal("database not initialized, call InitDatabase first")
	}
	return db
}
