package library

import (
	"context"
	"fmt"
	"strings"

	"github.com/docker/go-units"
	"go.uber.org/zap"
)

// Inspector derives the cover thumbnail and page count of an uploaded file.
type Inspector interface {
	Inspect(ctx context.Context, data []byte) (Preview, error)
}

// PageRenderer turns stored content into ordered page images.
type PageRenderer interface {
	RenderPages(ctx context.Context, data []byte) ([][]byte, error)
}

// ImportRequest describes an upload. ID may be set by callers retrying a failed import so the retry
// overwrites instead of duplicating.
type ImportRequest struct {
	ID       string
	Title    string
	Data     []byte
	FolderID *string
}

// ImportDocument inspects the upload, builds its metadata and saves it together with the content.
// Inspection failures are logged and the document is stored without a preview.
func (s *Service) ImportDocument(ctx context.Context, request ImportRequest) (Document, error) {
	title, err := normalizeName(request.Title)
	if err != nil {
		return Document{}, newServiceError(opImportDocument, reasonInvalidName, err)
	}
	if len(request.Data) == 0 {
		return Document{}, newServiceError(opImportDocument, reasonInvalidDocument, fmt.Errorf("%w: empty file", ErrInvalidDocument))
	}
	if s.maxUploadBytes > 0 && int64(len(request.Data)) > s.maxUploadBytes {
		return Document{}, newServiceError(opImportDocument, reasonFileTooLarge, ErrFileTooLarge)
	}

	documentID := strings.TrimSpace(request.ID)
	if documentID == "" {
		documentID, err = s.idProvider.NewID()
		if err != nil {
			s.logError(opImportDocument, reasonIDGeneration, err)
			return Document{}, newServiceError(opImportDocument, reasonIDGeneration, err)
		}
	}

	var preview Preview
	if s.inspector != nil {
		inspected, inspectErr := s.inspector.Inspect(ctx, request.Data)
		if inspectErr != nil {
			s.loggerOrDefault().Warn("document inspection failed",
				zap.String("operation", opImportDocument),
				zap.String("reason", reasonInspectFailed),
				zap.String(fieldDocumentID, documentID),
				zap.Error(inspectErr))
		} else {
			preview = inspected
		}
	}
	if preview.PageCount < 0 {
		preview.PageCount = 0
	}

	document := Document{
		ID:             documentID,
		Title:          title,
		UploadedAt:     s.clock().UTC(),
		SizeLabel:      FormatSize(int64(len(request.Data))),
		CoverThumbnail: preview.CoverThumbnail,
		PageCount:      preview.PageCount,
		FolderID:       copyString(request.FolderID),
	}
	if err := s.SaveDocument(ctx, document, Binary{ID: documentID, Data: request.Data}); err != nil {
		return Document{}, err
	}
	return document, nil
}

// RenderPages hands the stored content of documentID to renderer and returns its images unchanged.
func (s *Service) RenderPages(ctx context.Context, documentID string, renderer PageRenderer) ([][]byte, error) {
	if renderer == nil {
		return nil, newServiceError(opRenderPages, reasonRendererMissing, errMissingRenderer)
	}
	binary, err := s.GetDocumentBinary(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if binary == nil {
		return nil, newServiceError(opRenderPages, reasonContentMissing, ErrContentUnavailable)
	}
	pages, err := renderer.RenderPages(ctx, binary.Data)
	if err != nil {
		s.logError(opRenderPages, reasonRenderFailed, err, zap.String(fieldDocumentID, documentID))
		return nil, newServiceError(opRenderPages, reasonRenderFailed, err)
	}
	return pages, nil
}

// FormatSize renders a byte count as the human readable label stored on documents.
func FormatSize(size int64) string {
	return units.HumanSize(float64(size))
}
