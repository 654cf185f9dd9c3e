package library

import (
	"context"

	"github.com/MarcoPoloResearchLab/shelf/internal/database"
	"github.com/MarcoPoloResearchLab/shelf/internal/records"
	"go.uber.org/zap"
)

// CreateFolder assigns an id and creation time and stores the folder. The stored record is returned.
func (s *Service) CreateFolder(ctx context.Context, name string) (Folder, error) {
	normalized, err := normalizeName(name)
	if err != nil {
		return Folder{}, newServiceError(opCreateFolder, reasonInvalidName, err)
	}

	folderID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateFolder, reasonIDGeneration, err)
		return Folder{}, newServiceError(opCreateFolder, reasonIDGeneration, err)
	}

	folder := Folder{
		ID:        folderID,
		Name:      normalized,
		CreatedAt: s.clock().UTC(),
	}
	err = s.records.RunTransaction(ctx, folderStore, records.ReadWrite, func(tx *records.Tx) error {
		return tx.Put(database.StoreFolders, toFolderRecord(folder))
	})
	if err != nil {
		s.logError(opCreateFolder, reasonStoreFailed, err, zap.String(fieldFolderID, folderID))
		return Folder{}, err
	}
	return folder, nil
}

// ListFolders returns every folder. The order is unspecified.
func (s *Service) ListFolders(ctx context.Context) ([]Folder, error) {
	var stored []database.FolderRecord
	if err := s.records.GetAll(ctx, database.StoreFolders, &stored); err != nil {
		s.logError(opListFolders, reasonStoreFailed, err)
		return nil, err
	}
	return fromFolderRecords(stored), nil
}

// ListFolderDocuments returns the documents referencing folderID through the folder index.
func (s *Service) ListFolderDocuments(ctx context.Context, folderID string) ([]Document, error) {
	var stored []database.DocumentRecord
	err := s.records.RunTransaction(ctx, metadataStore, records.ReadOnly, func(tx *records.Tx) error {
		return tx.Lookup(database.StoreMetadata, database.IndexFolderID, &folderID, &stored)
	})
	if err != nil {
		s.logError(opListFolderDocuments, reasonStoreFailed, err, zap.String(fieldFolderID, folderID))
		return nil, err
	}
	return fromDocumentRecords(stored), nil
}

// RenameFolder replaces the folder name. A missing folder is not an error.
func (s *Service) RenameFolder(ctx context.Context, folderID, name string) error {
	normalized, err := normalizeName(name)
	if err != nil {
		return newServiceError(opRenameFolder, reasonInvalidName, err)
	}
	err = s.records.RunTransaction(ctx, folderStore, records.ReadWrite, func(tx *records.Tx) error {
		var stored database.FolderRecord
		found, err := tx.Get(database.StoreFolders, folderID, &stored)
		if err != nil || !found {
			return err
		}
		stored.Name = normalized
		return tx.Put(database.StoreFolders, &stored)
	})
	if err != nil {
		s.logError(opRenameFolder, reasonStoreFailed, err, zap.String(fieldFolderID, folderID))
		return err
	}
	return nil
}

// DeleteFolder removes the folder and moves every document that referenced it to the root. Both steps
// run in one transaction over metadata and folders, so no document is left pointing at the removed
// folder and no document is lost. Deleting a missing folder still clears dangling references to it.
func (s *Service) DeleteFolder(ctx context.Context, folderID string) error {
	released := 0
	err := s.records.RunTransaction(ctx, cascadeStores, records.ReadWrite, func(tx *records.Tx) error {
		var members []database.DocumentRecord
		if err := tx.Lookup(database.StoreMetadata, database.IndexFolderID, &folderID, &members); err != nil {
			return err
		}
		for index := range members {
			members[index].FolderID = nil
			if err := tx.Put(database.StoreMetadata, &members[index]); err != nil {
				return err
			}
		}
		released = len(members)
		return tx.Delete(database.StoreFolders, folderID)
	})
	if err != nil {
		s.logError(opDeleteFolder, reasonStoreFailed, err, zap.String(fieldFolderID, folderID))
		return err
	}
	s.loggerOrDefault().Debug("folder deleted",
		zap.String(fieldFolderID, folderID),
		zap.Int("released_documents", released))
	return nil
}
