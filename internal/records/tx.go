package records

import (
	"fmt"

	"github.com/MarcoPoloResearchLab/shelf/internal/database"
	"gorm.io/gorm"
)

// Tx is the view of one running transaction handed to RunTransaction callbacks. Operations run in the
// order they are issued and are visible to later operations of the same transaction only.
// A Tx must not be used after its callback returns.
type Tx struct {
	db    *gorm.DB
	mode  Mode
	scope map[database.StoreName]database.StoreDefinition
}

// Put inserts or replaces record in store.
func (tx *Tx) Put(store database.StoreName, record any) error {
	definition, err := tx.resolve(store, true)
	if err != nil {
		return err
	}
	return putRecord(tx.db, definition, record)
}

// Get loads the record stored under key into dest, reporting whether it exists.
func (tx *Tx) Get(store database.StoreName, key string, dest any) (bool, error) {
	definition, err := tx.resolve(store, false)
	if err != nil {
		return false, err
	}
	return getRecord(tx.db, definition, key, dest)
}

// GetAll loads every record of store into dest.
func (tx *Tx) GetAll(store database.StoreName, dest any) error {
	definition, err := tx.resolve(store, false)
	if err != nil {
		return err
	}
	return getAllRecords(tx.db, definition, dest)
}

// Lookup loads the records whose indexed column equals value into dest. A nil value matches records
// where the column is unset.
func (tx *Tx) Lookup(store database.StoreName, index string, value *string, dest any) error {
	definition, err := tx.resolve(store, false)
	if err != nil {
		return err
	}
	return lookupRecords(tx.db, definition, index, value, dest)
}

// Delete removes the record stored under key. Deleting an absent key succeeds.
func (tx *Tx) Delete(store database.StoreName, key string) error {
	definition, err := tx.resolve(store, true)
	if err != nil {
		return err
	}
	return deleteRecord(tx.db, definition, key)
}

func (tx *Tx) resolve(store database.StoreName, write bool) (database.StoreDefinition, error) {
	definition, ok := tx.scope[store]
	if !ok {
		return database.StoreDefinition{}, fmt.Errorf("%w: %s", errOutOfScope, store)
	}
	if write && tx.mode != ReadWrite {
		return database.StoreDefinition{}, fmt.Errorf("%w: %s", errReadOnly, store)
	}
	return definition, nil
}
