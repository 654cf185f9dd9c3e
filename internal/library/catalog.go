package library

import (
	"context"
	"sort"

	"github.com/MarcoPoloResearchLab/shelf/internal/database"
	"github.com/MarcoPoloResearchLab/shelf/internal/records"
)

// FolderShelf is a folder together with the documents filed in it.
type FolderShelf struct {
	Folder    Folder
	Documents []Document
}

// Catalog is a display-ready view of the library. Documents whose folder no longer exists are listed
// as unfiled.
type Catalog struct {
	Folders  []FolderShelf
	Unfiled  []Document
	Dangling int
}

// Catalog reads folders and documents from one snapshot and groups them for display: folders by name,
// documents newest first.
func (s *Service) Catalog(ctx context.Context) (Catalog, error) {
	var storedFolders []database.FolderRecord
	var storedDocuments []database.DocumentRecord
	err := s.records.RunTransaction(ctx, cascadeStores, records.ReadOnly, func(tx *records.Tx) error {
		if err := tx.GetAll(database.StoreFolders, &storedFolders); err != nil {
			return err
		}
		return tx.GetAll(database.StoreMetadata, &storedDocuments)
	})
	if err != nil {
		s.logError(opCatalog, reasonStoreFailed, err)
		return Catalog{}, err
	}
	return BuildCatalog(fromFolderRecords(storedFolders), fromDocumentRecords(storedDocuments)), nil
}

// BuildCatalog groups documents under their folders, ordering folders by name and documents newest
// first. A reference to a missing folder counts as unfiled.
func BuildCatalog(folders []Folder, documents []Document) Catalog {
	shelves := make([]FolderShelf, 0, len(folders))
	positions := make(map[string]int, len(folders))
	for _, folder := range folders {
		positions[folder.ID] = len(shelves)
		shelves = append(shelves, FolderShelf{Folder: folder})
	}

	catalog := Catalog{}
	for _, document := range documents {
		if document.FolderID == nil {
			catalog.Unfiled = append(catalog.Unfiled, document)
			continue
		}
		position, ok := positions[*document.FolderID]
		if !ok {
			catalog.Dangling++
			catalog.Unfiled = append(catalog.Unfiled, document)
			continue
		}
		shelves[position].Documents = append(shelves[position].Documents, document)
	}

	sort.SliceStable(shelves, func(i, j int) bool {
		if shelves[i].Folder.Name != shelves[j].Folder.Name {
			return shelves[i].Folder.Name < shelves[j].Folder.Name
		}
		return shelves[i].Folder.ID < shelves[j].Folder.ID
	})
	for index := range shelves {
		sortNewestFirst(shelves[index].Documents)
	}
	sortNewestFirst(catalog.Unfiled)
	catalog.Folders = shelves
	return catalog
}

// ResolveFolder returns the folder the document is filed in, or nil for unfiled documents and
// documents referencing a folder that does not exist.
func ResolveFolder(document Document, folders []Folder) *Folder {
	if document.FolderID == nil {
		return nil
	}
	for index := range folders {
		if folders[index].ID == *document.FolderID {
			folder := folders[index]
			return &folder
		}
	}
	return nil
}

func sortNewestFirst(documents []Document) {
	sort.SliceStable(documents, func(i, j int) bool {
		return documents[i].UploadedAt.After(documents[j].UploadedAt)
	})
}
