// Package library implements the domain operations of the local document library: documents with their
// binary content, flat folders, and the cascade applied when a folder is removed.
package library

import (
	"time"

	"github.com/MarcoPoloResearchLab/shelf/internal/database"
)

// Document is the metadata of a library entry.
type Document struct {
	ID             string
	Title          string
	UploadedAt     time.Time
	SizeLabel      string
	CoverThumbnail []byte
	PageCount      int
	FolderID       *string
}

// Binary is the raw file content of a document, keyed by the document id.
type Binary struct {
	ID   string
	Data []byte
}

// Folder groups documents. Folders do not nest.
type Folder struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Preview carries what the renderer derives from an uploaded file.
type Preview struct {
	CoverThumbnail []byte
	PageCount      int
}

func toDocumentRecord(document Document) *database.DocumentRecord {
	return &database.DocumentRecord{
		ID:               document.ID,
		Title:            document.Title,
		UploadedAtMillis: document.UploadedAt.UnixMilli(),
		UploadedAtNanos:  unixNanos(document.UploadedAt),
		SizeLabel:        document.SizeLabel,
		CoverThumbnail:   document.CoverThumbnail,
		PageCount:        document.PageCount,
		FolderID:         copyString(document.FolderID),
	}
}

func fromDocumentRecord(record database.DocumentRecord) Document {
	return Document{
		ID:             record.ID,
		Title:          record.Title,
		UploadedAt:     fromUnixNanos(record.UploadedAtNanos),
		SizeLabel:      record.SizeLabel,
		CoverThumbnail: record.CoverThumbnail,
		PageCount:      record.PageCount,
		FolderID:       copyString(record.FolderID),
	}
}

func fromDocumentRecords(records []database.DocumentRecord) []Document {
	documents := make([]Document, 0, len(records))
	for _, record := range records {
		documents = append(documents, fromDocumentRecord(record))
	}
	return documents
}

func toFolderRecord(folder Folder) *database.FolderRecord {
	return &database.FolderRecord{
		ID:              folder.ID,
		Name:            folder.Name,
		CreatedAtMillis: folder.CreatedAt.UnixMilli(),
		CreatedAtNanos:  unixNanos(folder.CreatedAt),
	}
}

func fromFolderRecord(record database.FolderRecord) Folder {
	return Folder{
		ID:        record.ID,
		Name:      record.Name,
		CreatedAt: fromUnixNanos(record.CreatedAtNanos),
	}
}

func fromFolderRecords(records []database.FolderRecord) []Folder {
	folders := make([]Folder, 0, len(records))
	for _, record := range records {
		folders = append(folders, fromFolderRecord(record))
	}
	return folders
}

// unixNanos maps the zero time to 0 so it survives a round trip.
func unixNanos(value time.Time) int64 {
	if value.IsZero() {
		return 0
	}
	return value.UnixNano()
}

func fromUnixNanos(nanos int64) time.Time {
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos).UTC()
}

func copyString(value *string) *string {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}
