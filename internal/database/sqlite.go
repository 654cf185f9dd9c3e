package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// ErrStorageUnavailable indicates that the library store could not be opened or upgraded.
var ErrStorageUnavailable = errors.New("database: storage unavailable")

var errMissingPath = errors.New("database path is required")

const busyTimeoutMilliseconds = 5000

// Handle is an open, migrated library store shared by every caller in the process.
type Handle struct {
	db      *gorm.DB
	path    string
	version int
}

// DB exposes the underlying GORM connection.
func (h *Handle) DB() *gorm.DB {
	return h.db
}

// Path returns the location the store was opened from.
func (h *Handle) Path() string {
	return h.path
}

// Version returns the schema version the store was upgraded to at open time.
func (h *Handle) Version() int {
	return h.version
}

// Close releases the underlying connection.
func (h *Handle) Close() error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// OpenSQLite establishes a SQLite connection and upgrades the schema to CurrentSchemaVersion.
func OpenSQLite(ctx context.Context, path string, logger *zap.Logger) (*Handle, error) {
	return openSQLite(ctx, path, CurrentSchemaVersion, time.Now, logger)
}

func openSQLite(ctx context.Context, path string, targetVersion int, clock func() time.Time, logger *zap.Logger) (*Handle, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, errMissingPath)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	fail := func(cause error) (*Handle, error) {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, cause)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return fail(err)
	}
	if err := db.WithContext(ctx).Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeoutMilliseconds)).Error; err != nil {
		return fail(err)
	}

	version, err := applyMigrations(db.WithContext(ctx), targetVersion, clock, logger)
	if err != nil {
		return fail(err)
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path), zap.Int("schema_version", version))
	}

	return &Handle{db: db, path: path, version: version}, nil
}

// ManagerConfig describes the dependencies of the schema manager.
type ManagerConfig struct {
	Path   string
	Clock  func() time.Time
	Logger *zap.Logger
}

// Manager opens the library store lazily on first use and hands every caller the same handle.
type Manager struct {
	path   string
	clock  func() time.Time
	logger *zap.Logger

	group  singleflight.Group
	mu     sync.Mutex
	handle *Handle
}

// NewManager constructs a schema manager; nothing is opened until Open is called.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errMissingPath
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		path:   cfg.Path,
		clock:  clock,
		logger: logger,
	}, nil
}

// Open returns the shared handle, opening and migrating the store on the first call. Concurrent callers
// wait for the same attempt, which runs detached from the cancellation of whichever caller started it.
// A failed attempt is not cached, so a later call tries again.
func (m *Manager) Open(ctx context.Context) (*Handle, error) {
	if handle := m.current(); handle != nil {
		return handle, nil
	}

	openCtx := context.WithoutCancel(ctx)
	value, err, _ := m.group.Do("open", func() (interface{}, error) {
		if handle := m.current(); handle != nil {
			return handle, nil
		}
		handle, err := openSQLite(openCtx, m.path, CurrentSchemaVersion, m.clock, m.logger)
		if err != nil {
			m.logger.Error("library store unavailable", zap.String("path", m.path), zap.Error(err))
			return nil, err
		}
		m.mu.Lock()
		m.handle = handle
		m.mu.Unlock()
		return handle, nil
	})
	if err != nil {
		return nil, err
	}
	return value.(*Handle), nil
}

// Close releases the shared handle if one was opened.
func (m *Manager) Close() error {
	m.mu.Lock()
	handle := m.handle
	m.handle = nil
	m.mu.Unlock()
	if handle == nil {
		return nil
	}
	return handle.Close()
}

func (m *Manager) current() *Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handle
}
