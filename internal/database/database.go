// Package database 负责打开 gorm 连接并建表。
package database

import (
	"fmt"
	"strings"
	"time"

	"order_track/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Options 连接参数。
type Options struct {
	Driver string // sqlite / postgres
	DSN    string
	Logger gormlogger.Interface
}

// Open 打开数据库并执行 AutoMigrate。
//
// SQLite 只允许单写者，这里把连接池限制为 1，避免事务内升级写锁时出现 SQLITE_BUSY；
// 外键约束需显式开启，否则 orders → products 的级联不生效。
func Open(opts Options) (*gorm.DB, error) {
	cfg := &gorm.Config{SkipDefaultTransaction: true}
	if opts.Logger != nil {
		cfg.Logger = opts.Logger
	} else {
		cfg.Logger = gormlogger.Default.LogMode(gormlogger.Silent)
	}

	var dialector gorm.Dialector
	switch opts.Driver {
	case "postgres":
		dialector = postgres.Open(opts.DSN)
	case "sqlite", "":
		dialector = sqlite.Open(sqliteDSN(opts.DSN))
	default:
		return nil, fmt.Errorf("unsupported db driver %q", opts.Driver)
	}

	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("db handle: %w", err)
	}
	if opts.Driver == "postgres" {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	} else {
		sqlDB.SetMaxOpenConns(1)
		if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate 自动建表。
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&model.Product{}, &model.Order{}, &model.User{}, &model.OrderEvent{}); err != nil {
		return fmt.Errorf("db migrate: %w", err)
	}
	return nil
}

// Close 关闭底层连接。
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// sqliteDSN 附加 busy_timeout，":memory:" 原样使用。
func sqliteDSN(dsn string) string {
	if dsn == "" {
		dsn = "order_track.db"
	}
	if dsn == ":memory:" || strings.Contains(dsn, "_busy_timeout") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_busy_timeout=5000"
}
