// Package preview derives display metadata from uploaded documents.
package preview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/shelf/internal/library"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

const pdfContentType = "application/pdf"

var (
	// ErrUnsupportedContent indicates that the upload is not a PDF.
	ErrUnsupportedContent = errors.New("preview: unsupported content type")
	// ErrUnreadableDocument indicates that the PDF could not be parsed.
	ErrUnreadableDocument = errors.New("preview: unreadable document")
)

// PDFInspector reads the page count of PDF uploads. It leaves the cover thumbnail empty.
type PDFInspector struct {
	configuration *model.Configuration
}

// NewPDFInspector constructs an inspector with the default pdfcpu configuration.
func NewPDFInspector() *PDFInspector {
	return &PDFInspector{configuration: model.NewDefaultConfiguration()}
}

// Inspect satisfies library.Inspector.
func (i *PDFInspector) Inspect(ctx context.Context, data []byte) (library.Preview, error) {
	if err := ctx.Err(); err != nil {
		return library.Preview{}, err
	}
	if contentType := DetectContentType(data); contentType != pdfContentType {
		return library.Preview{}, fmt.Errorf("%w: %s", ErrUnsupportedContent, contentType)
	}
	count, err := api.PageCount(bytes.NewReader(data), i.config())
	if err != nil {
		return library.Preview{}, fmt.Errorf("%w: %w", ErrUnreadableDocument, err)
	}
	return library.Preview{PageCount: count}, nil
}

// DetectContentType sniffs the media type of data.
func DetectContentType(data []byte) string {
	contentType, _, _ := strings.Cut(http.DetectContentType(data), ";")
	return contentType
}

func (i *PDFInspector) config() *model.Configuration {
	if i == nil || i.configuration == nil {
		return model.NewDefaultConfiguration()
	}
	return i.configuration
}
