package library

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MarcoPoloResearchLab/shelf/internal/database"
	"github.com/MarcoPoloResearchLab/shelf/internal/records"
	"go.uber.org/zap"
)

const maxNameLength = 512

const (
	opServiceNew          = "library.service.new"
	opSaveDocument        = "library.save_document"
	opListDocuments       = "library.list_documents"
	opGetDocument         = "library.get_document"
	opGetDocumentBinary   = "library.get_document_binary"
	opReassignFolder      = "library.reassign_folder"
	opRenameDocument      = "library.rename_document"
	opUpdateDocument      = "library.update_document"
	opDeleteDocument      = "library.delete_document"
	opCreateFolder        = "library.create_folder"
	opListFolders         = "library.list_folders"
	opListFolderDocuments = "library.list_folder_documents"
	opRenameFolder        = "library.rename_folder"
	opDeleteFolder        = "library.delete_folder"
	opImportDocument      = "library.import_document"
	opRenderPages         = "library.render_pages"
	opCatalog             = "library.catalog"
	reasonInvalidDocument = "invalid_document"
	reasonInvalidName     = "invalid_name"
	reasonStoreFailed     = "store_failed"
	reasonIDGeneration    = "id_generation_failed"
	reasonFileTooLarge    = "file_too_large"
	reasonContentMissing  = "content_unavailable"
	reasonRendererMissing = "missing_renderer"
	reasonRenderFailed    = "render_failed"
	reasonInspectFailed   = "inspect_failed"
	fieldDocumentID       = "document_id"
	fieldFolderID         = "folder_id"
)

var (
	documentStores = []database.StoreName{database.StoreBinaries, database.StoreMetadata}
	metadataStore  = []database.StoreName{database.StoreMetadata}
	folderStore    = []database.StoreName{database.StoreFolders}
	cascadeStores  = []database.StoreName{database.StoreMetadata, database.StoreFolders}
	noOpLogger     = zap.NewNop()
)

// RecordStore is the transactional persistence the service runs on.
type RecordStore interface {
	RunTransaction(ctx context.Context, stores []database.StoreName, mode records.Mode, fn func(*records.Tx) error) error
	Get(ctx context.Context, store database.StoreName, key string, dest any) (bool, error)
	GetAll(ctx context.Context, store database.StoreName, dest any) error
}

// ServiceConfig describes the dependencies of the library service.
type ServiceConfig struct {
	Records        RecordStore
	Clock          func() time.Time
	IDProvider     IDProvider
	Inspector      Inspector
	MaxUploadBytes int64
	Logger         *zap.Logger
}

// Service exposes document and folder operations. It holds no mutable state of its own; every mutation
// is a record store transaction, so a Service is safe for concurrent use.
type Service struct {
	records        RecordStore
	clock          func() time.Time
	idProvider     IDProvider
	inspector      Inspector
	maxUploadBytes int64
	logger         *zap.Logger
}

// NewService validates the configuration and constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Records == nil {
		return nil, newServiceError(opServiceNew, "missing_records", errMissingRecords)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		records:        cfg.Records,
		clock:          clock,
		idProvider:     cfg.IDProvider,
		inspector:      cfg.Inspector,
		maxUploadBytes: cfg.MaxUploadBytes,
		logger:         logger,
	}, nil
}

// SaveDocument stores the document metadata and its binary in one transaction. Readers observe both
// records or neither. An empty binary id takes the document id. The metadata is stored as given;
// titles are normalized by ImportDocument and RenameDocument.
func (s *Service) SaveDocument(ctx context.Context, document Document, binary Binary) error {
	if err := validateDocument(document); err != nil {
		return newServiceError(opSaveDocument, reasonInvalidDocument, err)
	}
	if binary.ID == "" {
		binary.ID = document.ID
	}
	if binary.ID != document.ID {
		return newServiceError(opSaveDocument, reasonInvalidDocument, ErrInvalidDocument)
	}

	err := s.records.RunTransaction(ctx, documentStores, records.ReadWrite, func(tx *records.Tx) error {
		if err := tx.Put(database.StoreBinaries, &database.BinaryRecord{ID: binary.ID, FileData: binary.Data}); err != nil {
			return err
		}
		return tx.Put(database.StoreMetadata, toDocumentRecord(document))
	})
	if err != nil {
		s.logError(opSaveDocument, reasonStoreFailed, err, zap.String(fieldDocumentID, document.ID))
		return err
	}
	return nil
}

// ListDocuments returns every document. The order is unspecified.
func (s *Service) ListDocuments(ctx context.Context) ([]Document, error) {
	var stored []database.DocumentRecord
	if err := s.records.GetAll(ctx, database.StoreMetadata, &stored); err != nil {
		s.logError(opListDocuments, reasonStoreFailed, err)
		return nil, err
	}
	return fromDocumentRecords(stored), nil
}

// GetDocument returns the metadata stored for id, or nil when there is none.
func (s *Service) GetDocument(ctx context.Context, id string) (*Document, error) {
	var stored database.DocumentRecord
	found, err := s.records.Get(ctx, database.StoreMetadata, id, &stored)
	if err != nil {
		s.logError(opGetDocument, reasonStoreFailed, err, zap.String(fieldDocumentID, id))
		return nil, err
	}
	if !found {
		return nil, nil
	}
	document := fromDocumentRecord(stored)
	return &document, nil
}

// GetDocumentBinary returns the stored content for id, or nil when the content is unavailable.
func (s *Service) GetDocumentBinary(ctx context.Context, id string) (*Binary, error) {
	var stored database.BinaryRecord
	found, err := s.records.Get(ctx, database.StoreBinaries, id, &stored)
	if err != nil {
		s.logError(opGetDocumentBinary, reasonStoreFailed, err, zap.String(fieldDocumentID, id))
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &Binary{ID: stored.ID, Data: stored.FileData}, nil
}

// ReassignFolder moves the document into folderID, or to the root when folderID is nil. A missing
// document is not an error and nothing is written. Concurrent reassignments of the same document are
// resolved last writer wins.
func (s *Service) ReassignFolder(ctx context.Context, documentID string, folderID *string) error {
	err := s.updateDocument(ctx, documentID, func(record *database.DocumentRecord) {
		record.FolderID = copyString(folderID)
	})
	if err != nil {
		s.logError(opReassignFolder, reasonStoreFailed, err, zap.String(fieldDocumentID, documentID))
		return err
	}
	return nil
}

// RenameDocument replaces the document title. A missing document is not an error.
func (s *Service) RenameDocument(ctx context.Context, documentID, title string) error {
	normalized, err := normalizeName(title)
	if err != nil {
		return newServiceError(opRenameDocument, reasonInvalidName, err)
	}
	err = s.updateDocument(ctx, documentID, func(record *database.DocumentRecord) {
		record.Title = normalized
	})
	if err != nil {
		s.logError(opRenameDocument, reasonStoreFailed, err, zap.String(fieldDocumentID, documentID))
		return err
	}
	return nil
}

// DocumentUpdate lists the changes applied by UpdateDocument. A nil Title keeps the current title.
// FolderID is applied only when MoveFolder is set; a nil FolderID then moves the document to the root.
type DocumentUpdate struct {
	Title      *string
	MoveFolder bool
	FolderID   *string
}

// UpdateDocument applies every change in update within one transaction and returns the stored result.
// Either all changes are committed or none are. A missing document yields nil and nothing is written.
func (s *Service) UpdateDocument(ctx context.Context, documentID string, update DocumentUpdate) (*Document, error) {
	var title string
	if update.Title != nil {
		normalized, err := normalizeName(*update.Title)
		if err != nil {
			return nil, newServiceError(opUpdateDocument, reasonInvalidName, err)
		}
		title = normalized
	}

	var updated *Document
	err := s.records.RunTransaction(ctx, metadataStore, records.ReadWrite, func(tx *records.Tx) error {
		var stored database.DocumentRecord
		found, err := tx.Get(database.StoreMetadata, documentID, &stored)
		if err != nil || !found {
			return err
		}
		if update.Title != nil {
			stored.Title = title
		}
		if update.MoveFolder {
			stored.FolderID = copyString(update.FolderID)
		}
		if err := tx.Put(database.StoreMetadata, &stored); err != nil {
			return err
		}
		document := fromDocumentRecord(stored)
		updated = &document
		return nil
	})
	if err != nil {
		s.logError(opUpdateDocument, reasonStoreFailed, err, zap.String(fieldDocumentID, documentID))
		return nil, err
	}
	return updated, nil
}

// DeleteDocument removes the document metadata and binary together. Deleting a missing document succeeds.
func (s *Service) DeleteDocument(ctx context.Context, id string) error {
	err := s.records.RunTransaction(ctx, documentStores, records.ReadWrite, func(tx *records.Tx) error {
		if err := tx.Delete(database.StoreBinaries, id); err != nil {
			return err
		}
		return tx.Delete(database.StoreMetadata, id)
	})
	if err != nil {
		s.logError(opDeleteDocument, reasonStoreFailed, err, zap.String(fieldDocumentID, id))
		return err
	}
	return nil
}

func (s *Service) updateDocument(ctx context.Context, documentID string, mutate func(*database.DocumentRecord)) error {
	return s.records.RunTransaction(ctx, metadataStore, records.ReadWrite, func(tx *records.Tx) error {
		var stored database.DocumentRecord
		found, err := tx.Get(database.StoreMetadata, documentID, &stored)
		if err != nil {
			return err
		}
		if !found {
			return nil
		}
		mutate(&stored)
		return tx.Put(database.StoreMetadata, &stored)
	})
}

func validateDocument(document Document) error {
	if strings.TrimSpace(document.ID) == "" {
		return ErrInvalidDocument
	}
	if document.PageCount < 0 {
		return ErrInvalidDocument
	}
	return nil
}

func normalizeName(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" || utf8.RuneCountInString(trimmed) > maxNameLength {
		return "", ErrInvalidName
	}
	return trimmed, nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("library service error", attrs...)
}
