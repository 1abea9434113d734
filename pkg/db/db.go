// Package db 提供 GORM 初始化、连接池配置、SQL 日志与事务助手
package db

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/wyfcoding/cryptocustody/pkg/logger"
)

// Config 数据库配置
type Config struct {
	DSN                string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetime    int
	LogEnabled         bool
	SlowQueryThreshold int
}

// DB 数据库实例包装
type DB struct {
	*gorm.DB
	config Config
}

// Init 初始化数据库连接
func Init(cfg Config) (*DB, error) {
	gl := NewGormLogger(cfg.LogEnabled, time.Duration(cfg.SlowQueryThreshold)*time.Millisecond)

	gdb, err := gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{
		Logger: gl,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)

	if err := sqlDB.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info(context.Background(), "Database connected successfully")

	return &DB{DB: gdb, config: cfg}, nil
}

// Close 关闭数据库连接
func (d *DB) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// WithTx 在一个事务中执行 fn，事务句柄通过 context 传递给仓储；
// fn 返回错误时整个事务回滚，否则提交。
func (d *DB) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(WithTxContext(ctx, tx))
	})
}

type txContextKey struct{}

// WithTxContext 将事务句柄写入 context
func WithTxContext(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

// TxFromContext 从 context 中取出事务句柄，没有则返回 nil
func TxFromContext(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txContextKey{}).(*gorm.DB); ok {
		return tx
	}
	return nil
}

// GormLogger GORM 日志记录器，桥接到 slog
type GormLogger struct {
	enabled            bool
	slowQueryThreshold time.Duration
}

// NewGormLogger 创建 GORM 日志记录器
func NewGormLogger(enabled bool, slowQueryThreshold time.Duration) *GormLogger {
	return &GormLogger{
		enabled:            enabled,
		slowQueryThreshold: slowQueryThreshold,
	}
}

// LogMode 设置日志模式
func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	return l
}

// Info 记录信息日志
func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.enabled {
		logger.Info(ctx, msg, "data", data)
	}
}

// Warn 记录警告日志
func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	logger.Warn(ctx, msg, "data", data)
}

// Error 记录错误日志
func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	logger.Error(ctx, msg, "data", data)
}

// Trace 记录 SQL 执行日志
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if !l.enabled {
		return
	}

	elapsed := time.Since(begin)
	sqlStr, rows := fc()

	args := []interface{}{
		"duration", elapsed,
		"rows", rows,
		"sql", sqlStr,
	}

	if err != nil {
		args = append(args, "error", err)
		logger.Error(ctx, "SQL execution failed", args...)
	} else if elapsed > l.slowQueryThreshold {
		logger.Warn(ctx, "Slow query detected", args...)
	} else {
		logger.Debug(ctx, "SQL executed", args...)
	}
}
