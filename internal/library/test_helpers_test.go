package library

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/shelf/internal/database"
	"github.com/MarcoPoloResearchLab/shelf/internal/records"
	"go.uber.org/zap"
)

type staticIDGenerator struct {
	mu    sync.Mutex
	ids   []string
	index int
}

func (g *staticIDGenerator) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.index >= len(g.ids) {
		return "", errors.New("exhausted ids")
	}
	id := g.ids[g.index]
	g.index++
	return id, nil
}

type stubInspector struct {
	preview Preview
	err     error
	calls   int
}

func (i *stubInspector) Inspect(_ context.Context, _ []byte) (Preview, error) {
	i.calls++
	return i.preview, i.err
}

type stubRenderer struct {
	received []byte
	pages    [][]byte
	err      error
}

func (r *stubRenderer) RenderPages(_ context.Context, data []byte) ([][]byte, error) {
	r.received = data
	return r.pages, r.err
}

var testNow = time.Unix(1700000600, 250123456).UTC()

type testServiceOptions struct {
	ids            []string
	inspector      Inspector
	maxUploadBytes int64
}

func newTestService(t *testing.T, options testServiceOptions) (*Service, *database.Manager) {
	t.Helper()

	manager, err := database.NewManager(database.ManagerConfig{
		Path:   filepath.Join(t.TempDir(), "library.db"),
		Logger: zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to construct schema manager: %v", err)
	}
	t.Cleanup(func() {
		_ = manager.Close()
	})

	store, err := records.NewStore(records.StoreConfig{Handles: manager})
	if err != nil {
		t.Fatalf("failed to construct record store: %v", err)
	}

	service, err := NewService(ServiceConfig{
		Records:        store,
		Clock:          func() time.Time { return testNow },
		IDProvider:     &staticIDGenerator{ids: options.ids},
		Inspector:      options.inspector,
		MaxUploadBytes: options.maxUploadBytes,
	})
	if err != nil {
		t.Fatalf("failed to construct library service: %v", err)
	}
	return service, manager
}

func newDocument(id, title string, uploadedAt time.Time, folderID *string) Document {
	return Document{
		ID:         id,
		Title:      title,
		UploadedAt: uploadedAt.UTC(),
		SizeLabel:  "1.2MB",
		PageCount:  12,
		FolderID:   folderID,
	}
}

func mustSaveDocument(t *testing.T, service *Service, document Document, data []byte) {
	t.Helper()
	if err := service.SaveDocument(context.Background(), document, Binary{ID: document.ID, Data: data}); err != nil {
		t.Fatalf("failed to save document %s: %v", document.ID, err)
	}
}

func mustCreateFolder(t *testing.T, service *Service, name string) Folder {
	t.Helper()
	folder, err := service.CreateFolder(context.Background(), name)
	if err != nil {
		t.Fatalf("failed to create folder %s: %v", name, err)
	}
	return folder
}

func mustListDocuments(t *testing.T, service *Service) map[string]Document {
	t.Helper()
	documents, err := service.ListDocuments(context.Background())
	if err != nil {
		t.Fatalf("failed to list documents: %v", err)
	}
	byID := make(map[string]Document, len(documents))
	for _, document := range documents {
		byID[document.ID] = document
	}
	return byID
}

func stringPointer(value string) *string {
	return &value
}
