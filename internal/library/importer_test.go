package library

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestImportDocumentBuildsMetadata(t *testing.T) {
	inspector := &stubInspector{preview: Preview{CoverThumbnail: []byte{1, 2, 3}, PageCount: 7}}
	service, _ := newTestService(t, testServiceOptions{ids: []string{"doc-generated"}, inspector: inspector})
	ctx := context.Background()
	data := bytes.Repeat([]byte("a"), 2048)

	imported, err := service.ImportDocument(ctx, ImportRequest{
		Title:    "  Geometry  ",
		Data:     data,
		FolderID: stringPointer("folder-1"),
	})
	if err != nil {
		t.Fatalf("unexpected import error: %v", err)
	}

	expected := Document{
		ID:             "doc-generated",
		Title:          "Geometry",
		UploadedAt:     testNow,
		SizeLabel:      "2.048kB",
		CoverThumbnail: []byte{1, 2, 3},
		PageCount:      7,
		FolderID:       stringPointer("folder-1"),
	}
	if diff := cmp.Diff(expected, imported, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("imported document mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(expected, mustListDocuments(t, service)["doc-generated"], cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("stored document mismatch (-want +got):\n%s", diff)
	}
	binary, err := service.GetDocumentBinary(ctx, "doc-generated")
	if err != nil || binary == nil {
		t.Fatalf("expected stored binary, got %v (err %v)", binary, err)
	}
	if !bytes.Equal(binary.Data, data) {
		t.Fatalf("stored binary differs from upload")
	}
	if inspector.calls != 1 {
		t.Fatalf("expected one inspection, got %d", inspector.calls)
	}
}

func TestImportDocumentStoresWithoutPreviewWhenInspectionFails(t *testing.T) {
	inspector := &stubInspector{err: errors.New("not a pdf")}
	service, _ := newTestService(t, testServiceOptions{ids: []string{"doc-1"}, inspector: inspector})

	imported, err := service.ImportDocument(context.Background(), ImportRequest{Title: "Notes", Data: []byte("plain text")})
	if err != nil {
		t.Fatalf("inspection failure must not fail the import, got %v", err)
	}
	if imported.PageCount != 0 || len(imported.CoverThumbnail) != 0 {
		t.Fatalf("expected empty preview, got %#v", imported)
	}
	if imported.SizeLabel != "10B" {
		t.Fatalf("unexpected size label %q", imported.SizeLabel)
	}
}

func TestImportDocumentRetryWithSuppliedIDOverwrites(t *testing.T) {
	service, _ := newTestService(t, testServiceOptions{})
	ctx := context.Background()

	for _, title := range []string{"First attempt", "Second attempt"} {
		if _, err := service.ImportDocument(ctx, ImportRequest{ID: "doc-retry", Title: title, Data: []byte(title)}); err != nil {
			t.Fatalf("unexpected import error: %v", err)
		}
	}

	listed := mustListDocuments(t, service)
	if len(listed) != 1 {
		t.Fatalf("expected retry to overwrite, found %d documents", len(listed))
	}
	if listed["doc-retry"].Title != "Second attempt" {
		t.Fatalf("expected latest title, got %q", listed["doc-retry"].Title)
	}
}

func TestImportDocumentRejectsInvalidUploads(t *testing.T) {
	service, _ := newTestService(t, testServiceOptions{ids: []string{"doc-1"}, maxUploadBytes: 8})
	ctx := context.Background()

	tests := []struct {
		name     string
		request  ImportRequest
		expected error
	}{
		{name: "blank-title", request: ImportRequest{Title: " ", Data: []byte("x")}, expected: ErrInvalidName},
		{name: "empty-file", request: ImportRequest{Title: "Empty"}, expected: ErrInvalidDocument},
		{name: "too-large", request: ImportRequest{Title: "Large", Data: []byte("123456789")}, expected: ErrFileTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := service.ImportDocument(ctx, tt.request); !errors.Is(err, tt.expected) {
				t.Fatalf("expected %v, got %v", tt.expected, err)
			}
		})
	}
	if listed := mustListDocuments(t, service); len(listed) != 0 {
		t.Fatalf("rejected imports must not write, found %d documents", len(listed))
	}
}

func TestRenderPagesUsesStoredContent(t *testing.T) {
	service, _ := newTestService(t, testServiceOptions{})
	ctx := context.Background()
	content := []byte("%PDF-1.7 pages")
	mustSaveDocument(t, service, newDocument("doc-1", "Atlas", testNow, nil), content)

	renderer := &stubRenderer{pages: [][]byte{[]byte("page-1"), []byte("page-2")}}
	pages, err := service.RenderPages(ctx, "doc-1", renderer)
	if err != nil {
		t.Fatalf("unexpected render error: %v", err)
	}
	if !bytes.Equal(renderer.received, content) {
		t.Fatalf("renderer received %q", renderer.received)
	}
	if diff := cmp.Diff(renderer.pages, pages); diff != "" {
		t.Fatalf("pages mismatch (-want +got):\n%s", diff)
	}

	if _, err := service.RenderPages(ctx, "missing", renderer); !errors.Is(err, ErrContentUnavailable) {
		t.Fatalf("expected content unavailable, got %v", err)
	}
	if _, err := service.RenderPages(ctx, "doc-1", nil); err == nil {
		t.Fatalf("expected error for missing renderer")
	}
	failing := &stubRenderer{err: errors.New("corrupt")}
	if _, err := service.RenderPages(ctx, "doc-1", failing); err == nil {
		t.Fatalf("expected renderer failure to propagate")
	}
}

func TestFormatSize(t *testing.T) {
	tests := map[int64]string{
		15:      "15B",
		2048:    "2.048kB",
		1500000: "1.5MB",
	}
	for size, expected := range tests {
		if got := FormatSize(size); got != expected {
			t.Fatalf("FormatSize(%d) = %q, want %q", size, got, expected)
		}
	}
}

func TestCatalogGroupsDocumentsAndTreatsDanglingAsUnfiled(t *testing.T) {
	service, _ := newTestService(t, testServiceOptions{ids: []string{"folder-1"}})
	folder := mustCreateFolder(t, service, "Math")

	older := newDocument("doc-1", "Older", testNow.Add(-time.Hour), &folder.ID)
	newer := newDocument("doc-2", "Newer", testNow, &folder.ID)
	loose := newDocument("doc-3", "Loose", testNow.Add(-2*time.Hour), nil)
	orphan := newDocument("doc-4", "Orphan", testNow.Add(time.Hour), stringPointer("ghost"))
	for _, document := range []Document{older, newer, loose, orphan} {
		mustSaveDocument(t, service, document, []byte(document.ID))
	}

	catalog, err := service.Catalog(context.Background())
	if err != nil {
		t.Fatalf("unexpected catalog error: %v", err)
	}

	expected := Catalog{
		Folders:  []FolderShelf{{Folder: folder, Documents: []Document{newer, older}}},
		Unfiled:  []Document{orphan, loose},
		Dangling: 1,
	}
	if diff := cmp.Diff(expected, catalog, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("catalog mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildCatalogOrdersFoldersByName(t *testing.T) {
	folders := []Folder{
		{ID: "folder-2", Name: "Zoology", CreatedAt: testNow.Add(time.Hour)},
		{ID: "folder-3", Name: "Geometry", CreatedAt: testNow.Add(2 * time.Hour)},
		{ID: "folder-1", Name: "Algebra", CreatedAt: testNow},
	}

	catalog := BuildCatalog(folders, nil)

	names := make([]string, 0, len(catalog.Folders))
	for _, shelf := range catalog.Folders {
		names = append(names, shelf.Folder.Name)
	}
	if diff := cmp.Diff([]string{"Algebra", "Geometry", "Zoology"}, names); diff != "" {
		t.Fatalf("folder order mismatch (-want +got):\n%s", diff)
	}
}

func TestCatalogListsCreatedFoldersByName(t *testing.T) {
	service, _ := newTestService(t, testServiceOptions{ids: []string{"folder-1", "folder-2"}})
	algebra := mustCreateFolder(t, service, "Algebra")
	zoology := mustCreateFolder(t, service, "Zoology")
	mustSaveDocument(t, service, newDocument("doc-1", "Cells", testNow, &zoology.ID), []byte("cells"))

	catalog, err := service.Catalog(context.Background())
	if err != nil {
		t.Fatalf("unexpected catalog error: %v", err)
	}
	if len(catalog.Folders) != 2 || catalog.Folders[0].Folder.ID != algebra.ID || catalog.Folders[1].Folder.ID != zoology.ID {
		t.Fatalf("expected Algebra before Zoology, got %#v", catalog.Folders)
	}
	if len(catalog.Folders[1].Documents) != 1 {
		t.Fatalf("expected Zoology to hold one document, got %d", len(catalog.Folders[1].Documents))
	}
}

func TestResolveFolder(t *testing.T) {
	folders := []Folder{{ID: "folder-1", Name: "Math"}}

	if resolved := ResolveFolder(Document{FolderID: stringPointer("folder-1")}, folders); resolved == nil || resolved.Name != "Math" {
		t.Fatalf("expected Math folder, got %#v", resolved)
	}
	if resolved := ResolveFolder(Document{FolderID: stringPointer("ghost")}, folders); resolved != nil {
		t.Fatalf("dangling reference must resolve to nil")
	}
	if resolved := ResolveFolder(Document{}, folders); resolved != nil {
		t.Fatalf("unfiled document must resolve to nil")
	}
}
