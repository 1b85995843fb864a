package driver

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	// registered SQL drivers
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v4/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/biolingo/sync-engine/internal/infrastructure/logging"
	"go.uber.org/zap"
)

// SQLWrapper Wraps a *sql.DB object and provides the implementation of ITransactionalDB.
//
// it uses zap for default logging
type SQLWrapper struct {
	db     *sql.DB
	driver string
}

// SQLWrapperTx transaction wrapper
type SQLWrapperTx struct {
	tx     *sql.Tx
	driver string
}

// NewSQLConn Returns a connection pool on a registered database/sql driver
func NewSQLConn(driver, dsn string, cfg *DBConfig) (ITransactionalDB, error) {
	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(int(cfg.MaxConn))
	return &SQLWrapper{conn, driver}, err
}

// NewSQLiteConn Returns a sqlite connection, creating the parent directory if
// needed. The pool is capped at one connection, sqlite has a single writer.
func NewSQLiteConn(path string, cfg *DBConfig) (ITransactionalDB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	if cfg.Query != "" {
		dsn = dsn + "&" + cfg.Query
	}
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	return &SQLWrapper{conn, "sqlite3"}, nil
}

// BeginTx start a new transaction context
func (sw *SQLWrapper) BeginTx(ctx context.Context, opts *TxOptions) (ITransactionalDB, error) {
	logger := logging.ExtractLoggerFromContext(ctx)
	startTime := time.Now()

	tx, err := sw.db.BeginTx(ctx, txOptionAdapter(opts))
	if err != nil {
		if shouldLogError(err) {
			logger.Error(err.Error(), zap.String("db.method", "BeginTx"))
		}
	} else {
		logger.Debug("", zap.Duration("db.time", time.Since(startTime)),
			zap.String("db.method", "BeginTx"),
		)
	}
	return &SQLWrapperTx{tx, sw.driver}, err
}

func txOptionAdapter(opts *TxOptions) *sql.TxOptions {
	if opts == nil {
		return nil
	}
	return &sql.TxOptions{
		Isolation: opts.Isolation,
		ReadOnly:  opts.AccessMode == AccessReadOnly,
	}
}

func (sw *SQLWrapper) Commit(ctx context.Context) error {
	return nil
}

func (sw *SQLWrapper) Rollback(ctx context.Context) error {
	return nil
}

func (sw *SQLWrapper) Close(ctx context.Context) error {
	return sw.db.Close()
}

func (sw *SQLWrapper) Ping() error {
	return sw.db.Ping()
}

func (sw *SQLWrapper) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	logger := logging.ExtractLoggerFromContext(ctx)
	startTime := time.Now()

	query = placeholderAdapter(query, sw.driver)
	res, err := sw.db.ExecContext(ctx, query, args...)
	logQuery(logger, "Exec", query, args, startTime, err)
	return res, err
}

func (sw *SQLWrapper) QueryContext(ctx context.Context, query string, args ...interface{}) (ISQLRows, error) {
	logger := logging.ExtractLoggerFromContext(ctx)
	startTime := time.Now()

	query = placeholderAdapter(query, sw.driver)
	rows, err := sw.db.QueryContext(ctx, query, args...)
	logQuery(logger, "Query", query, args, startTime, err)
	return rows, err
}

func (swt *SQLWrapperTx) BeginTx(ctx context.Context, opts *TxOptions) (ITransactionalDB, error) {
	panic("create transaction inside a transaction")
}

func (swt *SQLWrapperTx) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	logger := logging.ExtractLoggerFromContext(ctx)
	startTime := time.Now()

	query = placeholderAdapter(query, swt.driver)
	res, err := swt.tx.ExecContext(ctx, query, args...)
	logQuery(logger, "Exec", query, args, startTime, err)
	return res, err
}

func (swt *SQLWrapperTx) QueryContext(ctx context.Context, query string, args ...interface{}) (ISQLRows, error) {
	logger := logging.ExtractLoggerFromContext(ctx)
	startTime := time.Now()

	query = placeholderAdapter(query, swt.driver)
	rows, err := swt.tx.QueryContext(ctx, query, args...)
	logQuery(logger, "Query", query, args, startTime, err)
	return rows, err
}

func (swt *SQLWrapperTx) Commit(ctx context.Context) error {
	logger := logging.ExtractLoggerFromContext(ctx)
	startTime := time.Now()
	err := swt.tx.Commit()
	if err != nil {
		if shouldLogError(err) {
			logger.Error(err.Error(), zap.String("db.method", "Commit"))
		}
	} else {
		logger.Debug("", zap.Duration("db.time", time.Since(startTime)),
			zap.String("db.method", "Commit"),
		)
	}
	return err
}

func (swt *SQLWrapperTx) Rollback(ctx context.Context) error {
	logger := logging.ExtractLoggerFromContext(ctx)
	startTime := time.Now()
	err := swt.tx.Rollback()
	if err != nil {
		if shouldLogError(err) {
			logger.Error(err.Error(), zap.String("db.method", "Rollback"))
		}
	} else {
		logger.Debug("", zap.Duration("db.time", time.Since(startTime)),
			zap.String("db.method", "Rollback"),
		)
	}
	return err
}

func (swt *SQLWrapperTx) Close(ctx context.Context) error {
	return nil
}

func (swt *SQLWrapperTx) Ping() error {
	return nil
}

func logQuery(logger *zap.Logger, method, query string, args []interface{}, startTime time.Time, err error) {
	if err != nil {
		if shouldLogError(err) {
			logger.Error(err.Error(), zap.String("db.sql", query),
				zap.String("db.method", method),
				zap.Any("db.args", logQueryArgs(args)))
		}
	} else {
		logger.Debug("", zap.String("db.sql", query),
			zap.Duration("db.time", time.Since(startTime)),
			zap.String("db.method", method),
			zap.Any("db.args", logQueryArgs(args)))
	}
}

// placeholderAdapter queries are written with postgres style $N placeholders,
// mysql and sqlite take positional '?'
func placeholderAdapter(query, driver string) string {
	if driver == "mysql" || driver == "sqlite3" {
		query = DollarPlaceholderPattern.ReplaceAllString(query, "?")
	}
	if driver == "mysql" {
		query = strings.Replace(query, "\"", "`", -1)
	}
	return SpacePattern.ReplaceAllString(query, " ")
}
