package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yukikurage/observation-record-api/internal/config"
	"golang.org/x/sync/singleflight"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	// ErrStorageInit is returned when the backing store cannot be created, opened or migrated.
	ErrStorageInit = errors.New("storage initialization failed")
	// ErrConnectivity is returned when no connection could be acquired or the connection broke mid-call.
	ErrConnectivity = errors.New("storage unavailable")
)

// Options configures an Engine.
type Options struct {
	Driver          string
	Path            string
	DSN             string
	MaxOpenConns    int
	MinIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
	AcquireTimeout  time.Duration
	LogLevel        logger.LogLevel
	Logger          logrus.FieldLogger
}

// OptionsFromConfig maps the process configuration onto engine options.
func OptionsFromConfig(cfg *config.Config, log logrus.FieldLogger) Options {
	return Options{
		Driver:          cfg.DBDriver,
		Path:            cfg.DBPath,
		DSN:             cfg.DBDSN,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MinIdleConns:    cfg.DBMinIdleConns,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		AcquireTimeout:  cfg.DBAcquireTimeout,
		LogLevel:        ParseLogLevel(cfg.DBLogLevel),
		Logger:          log,
	}
}

func (o Options) key() string {
	if o.Driver == "sqlite" {
		return "sqlite:" + o.Path
	}
	return o.Driver + ":" + o.DSN
}

func (o Options) withDefaults() Options {
	if o.Driver == "" {
		o.Driver = "sqlite"
	}
	if o.MaxOpenConns <= 0 {
		o.MaxOpenConns = 10
	}
	if o.MinIdleConns <= 0 || o.MinIdleConns > o.MaxOpenConns {
		o.MinIdleConns = o.MaxOpenConns / 2
	}
	if o.ConnMaxIdleTime <= 0 {
		o.ConnMaxIdleTime = 5 * time.Minute
	}
	if o.ConnMaxLifetime <= 0 {
		o.ConnMaxLifetime = 10 * time.Minute
	}
	if o.AcquireTimeout <= 0 {
		o.AcquireTimeout = 30 * time.Second
	}
	if o.LogLevel == 0 {
		o.LogLevel = logger.Warn
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	return o
}

// Engine owns the connection pool for one backing store. All reads and writes
// go through Run so every operation holds exactly one connection for its
// duration and gives it back on every exit path.
type Engine struct {
	db             *gorm.DB
	key            string
	acquireTimeout time.Duration
	log            logrus.FieldLogger
	closed         atomic.Bool
}

var (
	registryMu sync.Mutex
	engines    = map[string]*Engine{}
	initGroup  singleflight.Group
)

// Open returns the engine for the configured backing store, creating it on the
// first call. Concurrent first callers share a single initialization; later
// callers get the same engine until it is closed.
func Open(opts Options) (*Engine, error) {
	opts = opts.withDefaults()
	key := opts.key()

	if e := lookup(key); e != nil {
		return e, nil
	}

	v, err, _ := initGroup.Do(key, func() (interface{}, error) {
		if e := lookup(key); e != nil {
			return e, nil
		}
		e, err := open(opts)
		if err != nil {
			return nil, err
		}
		registryMu.Lock()
		engines[key] = e
		registryMu.Unlock()
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Engine), nil
}

func lookup(key string) *Engine {
	registryMu.Lock()
	defer registryMu.Unlock()
	return engines[key]
}

func open(opts Options) (*Engine, error) {
	dialector, err := dialectorFor(opts)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.New(opts.Logger, logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  opts.LogLevel,
			IgnoreRecordNotFoundError: true,
		}),
		TranslateError:         true,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrStorageInit, opts.Driver, err)
	}

	e := &Engine{
		db:             db,
		key:            opts.key(),
		acquireTimeout: opts.AcquireTimeout,
		log:            opts.Logger,
	}

	if err := e.configurePool(opts); err != nil {
		e.closeDB()
		return nil, fmt.Errorf("%w: configure pool: %v", ErrStorageInit, err)
	}

	if err := Migrate(db); err != nil {
		e.closeDB()
		return nil, fmt.Errorf("%w: %v", ErrStorageInit, err)
	}

	e.log.WithFields(logrus.Fields{
		"driver":         opts.Driver,
		"max_open_conns": opts.MaxOpenConns,
		"min_idle_conns": opts.MinIdleConns,
	}).Info("Storage engine initialized")

	return e, nil
}

func dialectorFor(opts Options) (gorm.Dialector, error) {
	switch opts.Driver {
	case "sqlite":
		if err := ensureFile(opts.Path); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageInit, err)
		}
		// Immediate transactions take the write lock up front so concurrent
		// writers wait on the busy timeout instead of failing a lock upgrade.
		dsn := opts.Path + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on&_txlock=immediate"
		return sqlite.Open(dsn), nil
	case "postgres":
		return postgres.Open(opts.DSN), nil
	case "mysql":
		return mysql.Open(opts.DSN), nil
	default:
		return nil, fmt.Errorf("%w: unsupported driver %q", ErrStorageInit, opts.Driver)
	}
}

func ensureFile(path string) error {
	if path == "" {
		return errors.New("database path is empty")
	}
	info, err := os.Stat(path)
	if err == nil {
		if info.IsDir() {
			return fmt.Errorf("database path %s is a directory", path)
		}
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat database file: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil
		}
		return fmt.Errorf("cannot create database file: %w", err)
	}
	return f.Close()
}

func (e *Engine) configurePool(opts Options) error {
	sqlDB, err := e.db.DB()
	if err != nil {
		return err
	}

	sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	sqlDB.SetMaxIdleConns(opts.MinIdleConns)
	sqlDB.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Warm the idle set: open MinIdleConns connections, then release them all
	// before pinging. MinIdleConns may equal MaxOpenConns, in which case the
	// ping needs one of them back.
	conns := make([]*sql.Conn, 0, opts.MinIdleConns)
	release := func() {
		for _, c := range conns {
			c.Close()
		}
		conns = conns[:0]
	}
	for i := 0; i < opts.MinIdleConns; i++ {
		c, err := sqlDB.Conn(ctx)
		if err != nil {
			release()
			return err
		}
		conns = append(conns, c)
	}
	release()

	return sqlDB.PingContext(ctx)
}

// NewEngine wraps an already opened gorm handle. It does not migrate and is
// not registered with Open; tests use it to drive the engine over mocks.
func NewEngine(db *gorm.DB, acquireTimeout time.Duration, log logrus.FieldLogger) *Engine {
	if acquireTimeout <= 0 {
		acquireTimeout = 30 * time.Second
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{db: db, acquireTimeout: acquireTimeout, log: log}
}

// Run reserves one pooled connection and calls fn with a handle bound to it.
// Waiting for a connection is bounded by the acquire timeout; once acquired,
// fn runs under the caller's context. The connection is released when fn
// returns, panics included.
func (e *Engine) Run(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if e.closed.Load() {
		return fmt.Errorf("%w: engine closed", ErrConnectivity)
	}

	acquireCtx, cancel := context.WithTimeout(ctx, e.acquireTimeout)
	defer cancel()

	acquired := false
	err := e.db.WithContext(acquireCtx).Connection(func(conn *gorm.DB) error {
		acquired = true
		return fn(conn.WithContext(ctx))
	})
	if err == nil {
		return nil
	}
	if !acquired {
		return fmt.Errorf("%w: acquire connection: %v", ErrConnectivity, err)
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %v", ErrConnectivity, err)
	}
	return err
}

// DB exposes the underlying gorm handle for migrations and tests.
func (e *Engine) DB() *gorm.DB {
	return e.db
}

// Stats reports connection pool statistics.
func (e *Engine) Stats() (map[string]interface{}, error) {
	sqlDB, err := e.db.DB()
	if err != nil {
		return nil, err
	}

	stats := sqlDB.Stats()
	return map[string]interface{}{
		"max_open_connections": stats.MaxOpenConnections,
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"wait_count":           stats.WaitCount,
		"wait_duration":        stats.WaitDuration.String(),
		"max_idle_time_closed": stats.MaxIdleTimeClosed,
		"max_lifetime_closed":  stats.MaxLifetimeClosed,
	}, nil
}

// HealthCheck pings the store.
func (e *Engine) HealthCheck(ctx context.Context) error {
	if e.closed.Load() {
		return fmt.Errorf("%w: engine closed", ErrConnectivity)
	}
	sqlDB, err := e.db.DB()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectivity, err)
	}
	return nil
}

// Close releases the pool. A later Open for the same store initializes a new engine.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	if e.key != "" {
		registryMu.Lock()
		if engines[e.key] == e {
			delete(engines, e.key)
		}
		registryMu.Unlock()
	}
	return e.closeDB()
}

func (e *Engine) closeDB() error {
	sqlDB, err := e.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ParseLogLevel maps a level name onto the gorm logger level, defaulting to warn.
func ParseLogLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}
