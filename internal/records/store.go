// Package records provides transactional key-value persistence over the library's named stores.
package records

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/MarcoPoloResearchLab/shelf/internal/database"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrTransactionFailed indicates that a transaction aborted and none of its operations took effect.
	ErrTransactionFailed = errors.New("records: transaction failed")
	// ErrStorage indicates that a point operation outside a transaction failed.
	ErrStorage = errors.New("records: storage error")

	errMissingHandles = errors.New("handle provider is required")
	errUnknownStore   = errors.New("unknown store")
	errOutOfScope     = errors.New("store is not part of the transaction")
	errReadOnly       = errors.New("write attempted in a read-only transaction")
	errRecordType     = errors.New("record type does not match store")
	errUnknownIndex   = errors.New("unknown index")
	errMissingKey     = errors.New("record key is required")
	errMissingStores  = errors.New("transaction requires at least one store")
	noOpLogger        = zap.NewNop()
)

const (
	opPut            = "records.put"
	opGet            = "records.get"
	opGetAll         = "records.get_all"
	opDelete         = "records.delete"
	opRunTransaction = "records.run_transaction"
)

// Mode selects whether a transaction may write.
type Mode int

const (
	// ReadOnly transactions observe a consistent snapshot and reject writes.
	ReadOnly Mode = iota
	// ReadWrite transactions may put and delete records.
	ReadWrite
)

// String returns the mode label used in logs.
func (mode Mode) String() string {
	if mode == ReadWrite {
		return "readwrite"
	}
	return "readonly"
}

// HandleProvider yields the open library store, opening it on first use.
type HandleProvider interface {
	Open(ctx context.Context) (*database.Handle, error)
}

// StoreConfig describes the dependencies of the record store.
type StoreConfig struct {
	Handles HandleProvider
	Logger  *zap.Logger
}

// Store executes point operations and transactions against the library schema.
type Store struct {
	handles HandleProvider
	logger  *zap.Logger
}

// NewStore constructs a record store bound to the provided handle source.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Handles == nil {
		return nil, errMissingHandles
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Store{handles: cfg.Handles, logger: logger}, nil
}

// Put inserts or replaces a record by key.
func (s *Store) Put(ctx context.Context, store database.StoreName, record any) error {
	db, definition, err := s.pointTarget(ctx, store)
	if err != nil {
		return err
	}
	if err := putRecord(db, definition, record); err != nil {
		return s.storageError(opPut, store, err)
	}
	return nil
}

// Get loads the record stored under key into dest, reporting whether it exists.
func (s *Store) Get(ctx context.Context, store database.StoreName, key string, dest any) (bool, error) {
	db, definition, err := s.pointTarget(ctx, store)
	if err != nil {
		return false, err
	}
	found, err := getRecord(db, definition, key, dest)
	if err != nil {
		return false, s.storageError(opGet, store, err)
	}
	return found, nil
}

// GetAll loads every record of the store into dest, a pointer to a slice of the store's record type.
func (s *Store) GetAll(ctx context.Context, store database.StoreName, dest any) error {
	db, definition, err := s.pointTarget(ctx, store)
	if err != nil {
		return err
	}
	if err := getAllRecords(db, definition, dest); err != nil {
		return s.storageError(opGetAll, store, err)
	}
	return nil
}

// Delete removes the record stored under key. Deleting an absent key succeeds.
func (s *Store) Delete(ctx context.Context, store database.StoreName, key string) error {
	db, definition, err := s.pointTarget(ctx, store)
	if err != nil {
		return err
	}
	if err := deleteRecord(db, definition, key); err != nil {
		return s.storageError(opDelete, store, err)
	}
	return nil
}

// RunTransaction executes fn as one atomic unit scoped to stores. Every operation fn performs is applied
// at commit or not at all. Errors returned from fn, and failures of any operation, abort the transaction
// and are reported wrapped in ErrTransactionFailed. Schema manager errors are returned unmodified.
func (s *Store) RunTransaction(ctx context.Context, stores []database.StoreName, mode Mode, fn func(*Tx) error) error {
	handle, err := s.handles.Open(ctx)
	if err != nil {
		return err
	}

	scope, err := resolveScope(stores)
	if err != nil {
		s.logError(opRunTransaction, "invalid_scope", err, zap.String("mode", mode.String()))
		return fmt.Errorf("%w: %w", ErrTransactionFailed, err)
	}

	txErr := handle.DB().WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(&Tx{db: transaction, mode: mode, scope: scope})
	})
	if txErr != nil {
		s.logError(opRunTransaction, "aborted", txErr,
			zap.String("mode", mode.String()),
			zap.Strings("stores", storeLabels(stores)))
		return fmt.Errorf("%w: %w", ErrTransactionFailed, txErr)
	}
	return nil
}

func (s *Store) pointTarget(ctx context.Context, store database.StoreName) (*gorm.DB, database.StoreDefinition, error) {
	handle, err := s.handles.Open(ctx)
	if err != nil {
		return nil, database.StoreDefinition{}, err
	}
	definition, ok := database.LookupStore(store)
	if !ok {
		return nil, database.StoreDefinition{}, fmt.Errorf("%w: %w %q", ErrStorage, errUnknownStore, store)
	}
	return handle.DB().WithContext(ctx), definition, nil
}

func (s *Store) storageError(operation string, store database.StoreName, err error) error {
	s.logError(operation, "storage_failed", err, zap.String("store", string(store)))
	return fmt.Errorf("%w: %s: %w", ErrStorage, store, err)
}

func (s *Store) logError(operation, reason string, err error, fields ...zap.Field) {
	logger := noOpLogger
	if s != nil && s.logger != nil {
		logger = s.logger
	}
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	logger.Error("record store error", attrs...)
}

func resolveScope(stores []database.StoreName) (map[database.StoreName]database.StoreDefinition, error) {
	if len(stores) == 0 {
		return nil, errMissingStores
	}
	scope := make(map[database.StoreName]database.StoreDefinition, len(stores))
	for _, store := range stores {
		definition, ok := database.LookupStore(store)
		if !ok {
			return nil, fmt.Errorf("%w %q", errUnknownStore, store)
		}
		scope[store] = definition
	}
	return scope, nil
}

func storeLabels(stores []database.StoreName) []string {
	labels := make([]string, 0, len(stores))
	for _, store := range stores {
		labels = append(labels, string(store))
	}
	return labels
}

func putRecord(db *gorm.DB, definition database.StoreDefinition, record any) error {
	if err := checkRecordType(definition, record, reflect.PointerTo(definition.RecordType())); err != nil {
		return err
	}
	if recordKey(record) == "" {
		return errMissingKey
	}
	return db.Clauses(clause.OnConflict{UpdateAll: true}).Create(record).Error
}

func getRecord(db *gorm.DB, definition database.StoreDefinition, key string, dest any) (bool, error) {
	if err := checkRecordType(definition, dest, reflect.PointerTo(definition.RecordType())); err != nil {
		return false, err
	}
	err := db.Where(definition.KeyColumn+" = ?", key).Take(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func getAllRecords(db *gorm.DB, definition database.StoreDefinition, dest any) error {
	if err := checkRecordType(definition, dest, reflect.PointerTo(reflect.SliceOf(definition.RecordType()))); err != nil {
		return err
	}
	return db.Find(dest).Error
}

func lookupRecords(db *gorm.DB, definition database.StoreDefinition, index string, value *string, dest any) error {
	column, ok := definition.Indexes[index]
	if !ok {
		return fmt.Errorf("%w %q on store %s", errUnknownIndex, index, definition.Name)
	}
	if err := checkRecordType(definition, dest, reflect.PointerTo(reflect.SliceOf(definition.RecordType()))); err != nil {
		return err
	}
	if value == nil {
		return db.Where(column + " IS NULL").Find(dest).Error
	}
	return db.Where(column+" = ?", *value).Find(dest).Error
}

func deleteRecord(db *gorm.DB, definition database.StoreDefinition, key string) error {
	if key == "" {
		return errMissingKey
	}
	return db.Where(definition.KeyColumn+" = ?", key).Delete(definition.NewRecord()).Error
}

func checkRecordType(definition database.StoreDefinition, value any, expected reflect.Type) error {
	actual := reflect.TypeOf(value)
	if actual != expected || reflect.ValueOf(value).IsNil() {
		return fmt.Errorf("%w: store %s expects %s, got %v", errRecordType, definition.Name, expected, actual)
	}
	return nil
}

// recordKey reads the primary key field shared by every record type.
func recordKey(record any) string {
	value := reflect.Indirect(reflect.ValueOf(record))
	field := value.FieldByName("ID")
	if !field.IsValid() || field.Kind() != reflect.String {
		return ""
	}
	return field.String()
}
