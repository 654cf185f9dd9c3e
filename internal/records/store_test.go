package records

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/MarcoPoloResearchLab/shelf/internal/database"
	"go.uber.org/zap"
)

var errForcedAbort = errors.New("forced abort")

func newTestStore(t *testing.T) (*Store, *database.Manager) {
	t.Helper()

	manager, err := database.NewManager(database.ManagerConfig{
		Path:   filepath.Join(t.TempDir(), "records.db"),
		Logger: zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to construct manager: %v", err)
	}
	t.Cleanup(func() {
		_ = manager.Close()
	})

	store, err := NewStore(StoreConfig{Handles: manager})
	if err != nil {
		t.Fatalf("failed to construct record store: %v", err)
	}
	return store, manager
}

func stringPointer(value string) *string {
	return &value
}

func TestStorePutGetReplaces(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, database.StoreFolders, &database.FolderRecord{ID: "folder-1", Name: "Math", CreatedAtMillis: 10}); err != nil {
		t.Fatalf("unexpected put error: %v", err)
	}
	if err := store.Put(ctx, database.StoreFolders, &database.FolderRecord{ID: "folder-1", Name: "Physics", CreatedAtMillis: 10}); err != nil {
		t.Fatalf("unexpected replace error: %v", err)
	}

	var folder database.FolderRecord
	found, err := store.Get(ctx, database.StoreFolders, "folder-1", &folder)
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if !found {
		t.Fatalf("expected folder to be found")
	}
	if folder.Name != "Physics" {
		t.Fatalf("expected replaced name, got %q", folder.Name)
	}

	var folders []database.FolderRecord
	if err := store.GetAll(ctx, database.StoreFolders, &folders); err != nil {
		t.Fatalf("unexpected get all error: %v", err)
	}
	if len(folders) != 1 {
		t.Fatalf("expected a single folder after replace, got %d", len(folders))
	}
}

func TestStorePutClearsOptionalColumns(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	filed := &database.DocumentRecord{ID: "doc-1", Title: "Notes", PageCount: 4, FolderID: stringPointer("folder-1")}
	if err := store.Put(ctx, database.StoreMetadata, filed); err != nil {
		t.Fatalf("unexpected put error: %v", err)
	}
	unfiled := &database.DocumentRecord{ID: "doc-1", Title: "Notes", PageCount: 0}
	if err := store.Put(ctx, database.StoreMetadata, unfiled); err != nil {
		t.Fatalf("unexpected replace error: %v", err)
	}

	var stored database.DocumentRecord
	if _, err := store.Get(ctx, database.StoreMetadata, "doc-1", &stored); err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if stored.FolderID != nil {
		t.Fatalf("expected folder id to be cleared, got %q", *stored.FolderID)
	}
	if stored.PageCount != 0 {
		t.Fatalf("expected page count to be replaced with zero, got %d", stored.PageCount)
	}
}

func TestStoreGetMissingIsNotAnError(t *testing.T) {
	store, _ := newTestStore(t)

	var binary database.BinaryRecord
	found, err := store.Get(context.Background(), database.StoreBinaries, "missing", &binary)
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if found {
		t.Fatalf("expected missing record to be reported as not found")
	}
}

func TestStoreDeleteIsIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, database.StoreBinaries, &database.BinaryRecord{ID: "doc-1", FileData: []byte("data")}); err != nil {
		t.Fatalf("unexpected put error: %v", err)
	}
	for attempt := 0; attempt < 2; attempt++ {
		if err := store.Delete(ctx, database.StoreBinaries, "doc-1"); err != nil {
			t.Fatalf("delete attempt %d failed: %v", attempt, err)
		}
	}
	if err := store.Delete(ctx, database.StoreBinaries, "never-existed"); err != nil {
		t.Fatalf("deleting an absent key failed: %v", err)
	}

	var binary database.BinaryRecord
	found, err := store.Get(ctx, database.StoreBinaries, "doc-1", &binary)
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if found {
		t.Fatalf("expected binary to be deleted")
	}
}

func TestStoreRejectsMismatchedRecordType(t *testing.T) {
	store, _ := newTestStore(t)

	err := store.Put(context.Background(), database.StoreFolders, &database.BinaryRecord{ID: "doc-1"})
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if !errors.Is(err, errRecordType) {
		t.Fatalf("expected record type error, got %v", err)
	}
}

func TestRunTransactionCommitsAcrossStores(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	err := store.RunTransaction(ctx, []database.StoreName{database.StoreBinaries, database.StoreMetadata}, ReadWrite, func(tx *Tx) error {
		if err := tx.Put(database.StoreBinaries, &database.BinaryRecord{ID: "doc-1", FileData: []byte("pdf")}); err != nil {
			return err
		}
		return tx.Put(database.StoreMetadata, &database.DocumentRecord{ID: "doc-1", Title: "Geometry"})
	})
	if err != nil {
		t.Fatalf("unexpected transaction error: %v", err)
	}

	var binary database.BinaryRecord
	if found, err := store.Get(ctx, database.StoreBinaries, "doc-1", &binary); err != nil || !found {
		t.Fatalf("expected committed binary, found=%v err=%v", found, err)
	}
	if !bytes.Equal(binary.FileData, []byte("pdf")) {
		t.Fatalf("unexpected binary content %q", binary.FileData)
	}
	var document database.DocumentRecord
	if found, err := store.Get(ctx, database.StoreMetadata, "doc-1", &document); err != nil || !found {
		t.Fatalf("expected committed metadata, found=%v err=%v", found, err)
	}
}

func TestRunTransactionRollsBackOnError(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	err := store.RunTransaction(ctx, []database.StoreName{database.StoreBinaries, database.StoreMetadata}, ReadWrite, func(tx *Tx) error {
		if err := tx.Put(database.StoreBinaries, &database.BinaryRecord{ID: "doc-1", FileData: []byte("pdf")}); err != nil {
			return err
		}
		var binary database.BinaryRecord
		found, err := tx.Get(database.StoreBinaries, "doc-1", &binary)
		if err != nil {
			return err
		}
		if !found {
			t.Errorf("expected uncommitted write to be visible inside the transaction")
		}
		return errForcedAbort
	})
	if !errors.Is(err, ErrTransactionFailed) {
		t.Fatalf("expected transaction failure, got %v", err)
	}
	if !errors.Is(err, errForcedAbort) {
		t.Fatalf("expected cause to be preserved, got %v", err)
	}

	var binary database.BinaryRecord
	found, err := store.Get(ctx, database.StoreBinaries, "doc-1", &binary)
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if found {
		t.Fatalf("expected aborted write to be discarded")
	}
}

func TestRunTransactionRejectsWritesInReadOnlyMode(t *testing.T) {
	store, _ := newTestStore(t)

	err := store.RunTransaction(context.Background(), []database.StoreName{database.StoreFolders}, ReadOnly, func(tx *Tx) error {
		return tx.Put(database.StoreFolders, &database.FolderRecord{ID: "folder-1", Name: "Math"})
	})
	if !errors.Is(err, ErrTransactionFailed) || !errors.Is(err, errReadOnly) {
		t.Fatalf("expected read-only violation, got %v", err)
	}
}

func TestRunTransactionRejectsStoresOutsideScope(t *testing.T) {
	store, _ := newTestStore(t)

	err := store.RunTransaction(context.Background(), []database.StoreName{database.StoreMetadata}, ReadWrite, func(tx *Tx) error {
		return tx.Delete(database.StoreFolders, "folder-1")
	})
	if !errors.Is(err, ErrTransactionFailed) || !errors.Is(err, errOutOfScope) {
		t.Fatalf("expected scope violation, got %v", err)
	}

	err = store.RunTransaction(context.Background(), []database.StoreName{"attachments"}, ReadOnly, func(tx *Tx) error {
		return nil
	})
	if !errors.Is(err, ErrTransactionFailed) || !errors.Is(err, errUnknownStore) {
		t.Fatalf("expected unknown store failure, got %v", err)
	}
}

func TestTxLookupUsesFolderIndex(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	seed := []*database.DocumentRecord{
		{ID: "doc-1", Title: "One", FolderID: stringPointer("folder-1")},
		{ID: "doc-2", Title: "Two", FolderID: stringPointer("folder-2")},
		{ID: "doc-3", Title: "Three"},
		{ID: "doc-4", Title: "Four", FolderID: stringPointer("folder-1")},
	}
	for _, record := range seed {
		if err := store.Put(ctx, database.StoreMetadata, record); err != nil {
			t.Fatalf("failed to seed %s: %v", record.ID, err)
		}
	}

	var filed, unfiled []database.DocumentRecord
	err := store.RunTransaction(ctx, []database.StoreName{database.StoreMetadata}, ReadOnly, func(tx *Tx) error {
		if err := tx.Lookup(database.StoreMetadata, database.IndexFolderID, stringPointer("folder-1"), &filed); err != nil {
			return err
		}
		return tx.Lookup(database.StoreMetadata, database.IndexFolderID, nil, &unfiled)
	})
	if err != nil {
		t.Fatalf("unexpected lookup error: %v", err)
	}
	if len(filed) != 2 {
		t.Fatalf("expected 2 documents in folder-1, got %d", len(filed))
	}
	if len(unfiled) != 1 || unfiled[0].ID != "doc-3" {
		t.Fatalf("expected doc-3 to be the only unfiled document, got %#v", unfiled)
	}

	err = store.RunTransaction(ctx, []database.StoreName{database.StoreFolders}, ReadOnly, func(tx *Tx) error {
		var folders []database.FolderRecord
		return tx.Lookup(database.StoreFolders, database.IndexFolderID, nil, &folders)
	})
	if !errors.Is(err, errUnknownIndex) {
		t.Fatalf("expected unknown index error, got %v", err)
	}
}

func TestStorePropagatesUnavailableStorage(t *testing.T) {
	manager, err := database.NewManager(database.ManagerConfig{Path: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to construct manager: %v", err)
	}
	store, err := NewStore(StoreConfig{Handles: manager})
	if err != nil {
		t.Fatalf("failed to construct record store: %v", err)
	}

	var folders []database.FolderRecord
	err = store.GetAll(context.Background(), database.StoreFolders, &folders)
	if !errors.Is(err, database.ErrStorageUnavailable) {
		t.Fatalf("expected storage unavailable, got %v", err)
	}
	if errors.Is(err, ErrStorage) {
		t.Fatalf("storage unavailable must propagate unmodified, got %v", err)
	}

	err = store.RunTransaction(context.Background(), []database.StoreName{database.StoreFolders}, ReadOnly, func(tx *Tx) error {
		return nil
	})
	if !errors.Is(err, database.ErrStorageUnavailable) || errors.Is(err, ErrTransactionFailed) {
		t.Fatalf("expected storage unavailable from transaction, got %v", err)
	}
}

func TestNewStoreRequiresHandles(t *testing.T) {
	if _, err := NewStore(StoreConfig{}); err == nil {
		t.Fatalf("expected error for missing handle provider")
	}
}
