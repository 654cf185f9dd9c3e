package database

import "reflect"

// StoreName identifies one logical record store of the library schema.
type StoreName string

const (
	// StoreBinaries holds raw document bytes keyed by document id.
	StoreBinaries StoreName = "binaries"
	// StoreMetadata holds document metadata keyed by document id.
	StoreMetadata StoreName = "metadata"
	// StoreFolders holds folder records keyed by folder id.
	StoreFolders StoreName = "folders"
)

const (
	// IndexFolderID is the secondary index on metadata.folder_id introduced by schema version 2.
	IndexFolderID = "idx_metadata_folder_id"

	columnID       = "id"
	columnFolderID = "folder_id"
)

// BinaryRecord stores the raw file content of a document.
type BinaryRecord struct {
	ID       string `gorm:"column:id;primaryKey;size:190;not null"`
	FileData []byte `gorm:"column:file_data"`
}

// TableName provides the explicit table binding for GORM.
func (BinaryRecord) TableName() string {
	return string(StoreBinaries)
}

// DocumentRecord stores the metadata of a library document. UploadedAtNanos is authoritative;
// UploadedAtMillis is kept for stores written before schema version 3.
type DocumentRecord struct {
	ID               string  `gorm:"column:id;primaryKey;size:190;not null"`
	Title            string  `gorm:"column:title;size:512;not null"`
	UploadedAtMillis int64   `gorm:"column:upload_timestamp_ms;not null"`
	UploadedAtNanos  int64   `gorm:"column:upload_timestamp_ns"`
	SizeLabel        string  `gorm:"column:size_label;size:64;not null"`
	CoverThumbnail   []byte  `gorm:"column:cover_thumbnail"`
	PageCount        int     `gorm:"column:page_count;not null"`
	FolderID         *string `gorm:"column:folder_id;size:190;index:idx_metadata_folder_id"`
}

// TableName provides the explicit table binding for GORM.
func (DocumentRecord) TableName() string {
	return string(StoreMetadata)
}

// FolderRecord stores a flat grouping of documents.
type FolderRecord struct {
	ID              string `gorm:"column:id;primaryKey;size:190;not null"`
	Name            string `gorm:"column:name;size:512;not null"`
	CreatedAtMillis int64  `gorm:"column:created_at_ms;not null"`
	CreatedAtNanos  int64  `gorm:"column:created_at_ns"`
}

// TableName provides the explicit table binding for GORM.
func (FolderRecord) TableName() string {
	return string(StoreFolders)
}

// documentRecordV1 is the metadata layout shipped before folders existed.
type documentRecordV1 struct {
	ID               string `gorm:"column:id;primaryKey;size:190;not null"`
	Title            string `gorm:"column:title;size:512;not null"`
	UploadedAtMillis int64  `gorm:"column:upload_timestamp_ms;not null"`
	SizeLabel        string `gorm:"column:size_label;size:64;not null"`
	CoverThumbnail   []byte `gorm:"column:cover_thumbnail"`
	PageCount        int    `gorm:"column:page_count;not null"`
}

func (documentRecordV1) TableName() string {
	return string(StoreMetadata)
}

// StoreDefinition describes the record type, key column and secondary indexes of a store.
type StoreDefinition struct {
	Name      StoreName
	KeyColumn string
	Indexes   map[string]string
	record    reflect.Type
}

// RecordType returns the struct type persisted in the store.
func (definition StoreDefinition) RecordType() reflect.Type {
	return definition.record
}

// NewRecord allocates a zero record for the store and returns a pointer to it.
func (definition StoreDefinition) NewRecord() any {
	return reflect.New(definition.record).Interface()
}

var storeDefinitions = map[StoreName]StoreDefinition{
	StoreBinaries: {
		Name:      StoreBinaries,
		KeyColumn: columnID,
		record:    reflect.TypeOf(BinaryRecord{}),
	},
	StoreMetadata: {
		Name:      StoreMetadata,
		KeyColumn: columnID,
		Indexes:   map[string]string{IndexFolderID: columnFolderID},
		record:    reflect.TypeOf(DocumentRecord{}),
	},
	StoreFolders: {
		Name:      StoreFolders,
		KeyColumn: columnID,
		record:    reflect.TypeOf(FolderRecord{}),
	},
}

// LookupStore returns the definition registered for the store name.
func LookupStore(name StoreName) (StoreDefinition, bool) {
	definition, ok := storeDefinitions[name]
	return definition, ok
}
