package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/shelf/internal/database"
	"github.com/MarcoPoloResearchLab/shelf/internal/library"
	"github.com/MarcoPoloResearchLab/shelf/internal/preview"
	"github.com/MarcoPoloResearchLab/shelf/internal/records"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultHeartbeatInterval = 30 * time.Second
	multipartOverheadBytes   = 1 << 20
	uploadFileField          = "file"
)

var (
	errMissingLibrary = errors.New("library service dependency required")
	errEmptyUpdate    = errors.New("update must set title or folder_id")
)

type Dependencies struct {
	Library           *library.Service
	Events            *EventDispatcher
	Logger            *zap.Logger
	MaxUploadBytes    int64
	AllowedOrigins    []string
	HeartbeatInterval time.Duration
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Library == nil {
		return nil, errMissingLibrary
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	events := deps.Events
	if events == nil {
		events = NewEventDispatcher()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	corsConfig := newCORSConfig(deps.AllowedOrigins)
	if err := corsConfig.Validate(); err != nil {
		return nil, err
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		library:           deps.Library,
		events:            events,
		logger:            logger,
		maxUploadBytes:    deps.MaxUploadBytes,
		heartbeatInterval: heartbeat,
	}

	router.GET("/documents", handler.handleListDocuments)
	router.POST("/documents", handler.handleUploadDocument)
	router.GET("/documents/:id", handler.handleGetDocument)
	router.GET("/documents/:id/content", handler.handleDocumentContent)
	router.PATCH("/documents/:id", handler.handleUpdateDocument)
	router.DELETE("/documents/:id", handler.handleDeleteDocument)

	router.GET("/folders", handler.handleListFolders)
	router.POST("/folders", handler.handleCreateFolder)
	router.GET("/folders/:id/documents", handler.handleListFolderDocuments)
	router.PATCH("/folders/:id", handler.handleRenameFolder)
	router.DELETE("/folders/:id", handler.handleDeleteFolder)

	router.GET("/catalog", handler.handleCatalog)
	router.GET("/events", handler.handleEvents)

	return router, nil
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	return cors.New(newCORSConfig(origins))
}

func newCORSConfig(origins []string) cors.Config {
	config := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Content-Type"},
		MaxAge:       12 * time.Hour,
	}
	for _, origin := range origins {
		if origin == "*" {
			config.AllowAllOrigins = true
			return config
		}
	}
	if len(origins) == 0 {
		config.AllowAllOrigins = true
		return config
	}
	config.AllowOrigins = origins
	return config
}

type httpHandler struct {
	library           *library.Service
	events            *EventDispatcher
	logger            *zap.Logger
	maxUploadBytes    int64
	heartbeatInterval time.Duration
}

type documentPayload struct {
	ID                string  `json:"id"`
	Title             string  `json:"title"`
	UploadTimestampMS int64   `json:"upload_timestamp_ms"`
	SizeLabel         string  `json:"size_label"`
	CoverThumbnail    []byte  `json:"cover_thumbnail,omitempty"`
	PageCount         int     `json:"page_count"`
	FolderID          *string `json:"folder_id"`
}

type folderPayload struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	CreatedAtMS int64  `json:"created_at_ms"`
}

type shelfPayload struct {
	Folder    folderPayload     `json:"folder"`
	Documents []documentPayload `json:"documents"`
}

type catalogPayload struct {
	Folders  []shelfPayload    `json:"folders"`
	Unfiled  []documentPayload `json:"unfiled"`
	Dangling int               `json:"dangling_references"`
}

type updateDocumentRequest struct {
	Title    *string        `json:"title"`
	FolderID optionalString `json:"folder_id"`
}

// optionalString distinguishes an absent field from an explicit null.
type optionalString struct {
	Set   bool
	Value *string
}

func (o *optionalString) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Value = nil
		return nil
	}
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	o.Value = &value
	return nil
}

type folderRequest struct {
	Name string `json:"name"`
}

func (h *httpHandler) handleListDocuments(c *gin.Context) {
	documents, err := h.library.ListDocuments(c.Request.Context())
	if err != nil {
		h.respondError(c, "failed to list documents", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": toDocumentPayloads(documents)})
}

func (h *httpHandler) handleGetDocument(c *gin.Context) {
	document, err := h.library.GetDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "failed to load document", err)
		return
	}
	if document == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "document_not_found"})
		return
	}
	c.JSON(http.StatusOK, toDocumentPayload(*document))
}

func (h *httpHandler) handleUploadDocument(c *gin.Context) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+multipartOverheadBytes)
	}
	header, err := c.FormFile(uploadFileField)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file_too_large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	title := strings.TrimSpace(c.PostForm("title"))
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(header.Filename), filepath.Ext(header.Filename))
	}
	request := library.ImportRequest{
		ID:    c.PostForm("id"),
		Title: title,
		Data:  data,
	}
	if folderID := strings.TrimSpace(c.PostForm("folder_id")); folderID != "" {
		request.FolderID = &folderID
	}

	document, err := h.library.ImportDocument(c.Request.Context(), request)
	if err != nil {
		h.respondError(c, "failed to import document", err)
		return
	}
	h.publishDocuments(document.ID)
	c.JSON(http.StatusCreated, toDocumentPayload(document))
}

func (h *httpHandler) handleDocumentContent(c *gin.Context) {
	binary, err := h.library.GetDocumentBinary(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "failed to load document content", err)
		return
	}
	if binary == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "content_unavailable"})
		return
	}
	c.Data(http.StatusOK, preview.DetectContentType(binary.Data), binary.Data)
}

func (h *httpHandler) handleUpdateDocument(c *gin.Context) {
	var request updateDocumentRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if request.Title == nil && !request.FolderID.Set {
		c.JSON(http.StatusBadRequest, gin.H{"error": errEmptyUpdate.Error()})
		return
	}

	documentID := c.Param("id")
	document, err := h.library.UpdateDocument(c.Request.Context(), documentID, library.DocumentUpdate{
		Title:      request.Title,
		MoveFolder: request.FolderID.Set,
		FolderID:   request.FolderID.Value,
	})
	if err != nil {
		h.respondError(c, "failed to update document", err)
		return
	}
	if document == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "document_not_found"})
		return
	}
	h.publishDocuments(documentID)
	c.JSON(http.StatusOK, toDocumentPayload(*document))
}

func (h *httpHandler) handleDeleteDocument(c *gin.Context) {
	documentID := c.Param("id")
	if err := h.library.DeleteDocument(c.Request.Context(), documentID); err != nil {
		h.respondError(c, "failed to delete document", err)
		return
	}
	h.publishDocuments(documentID)
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleListFolders(c *gin.Context) {
	folders, err := h.library.ListFolders(c.Request.Context())
	if err != nil {
		h.respondError(c, "failed to list folders", err)
		return
	}
	payloads := make([]folderPayload, 0, len(folders))
	for _, folder := range folders {
		payloads = append(payloads, toFolderPayload(folder))
	}
	c.JSON(http.StatusOK, gin.H{"folders": payloads})
}

func (h *httpHandler) handleCreateFolder(c *gin.Context) {
	var request folderRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	folder, err := h.library.CreateFolder(c.Request.Context(), request.Name)
	if err != nil {
		h.respondError(c, "failed to create folder", err)
		return
	}
	h.events.Publish(ChangeEvent{Type: EventFolderChanged, FolderIDs: []string{folder.ID}})
	c.JSON(http.StatusCreated, toFolderPayload(folder))
}

func (h *httpHandler) handleListFolderDocuments(c *gin.Context) {
	documents, err := h.library.ListFolderDocuments(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "failed to list folder documents", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": toDocumentPayloads(documents)})
}

func (h *httpHandler) handleRenameFolder(c *gin.Context) {
	var request folderRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	folderID := c.Param("id")
	if err := h.library.RenameFolder(c.Request.Context(), folderID, request.Name); err != nil {
		h.respondError(c, "failed to rename folder", err)
		return
	}
	h.events.Publish(ChangeEvent{Type: EventFolderChanged, FolderIDs: []string{folderID}})
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleDeleteFolder(c *gin.Context) {
	folderID := c.Param("id")
	if err := h.library.DeleteFolder(c.Request.Context(), folderID); err != nil {
		h.respondError(c, "failed to delete folder", err)
		return
	}
	h.events.Publish(ChangeEvent{Type: EventFolderChanged, FolderIDs: []string{folderID}})
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleCatalog(c *gin.Context) {
	catalog, err := h.library.Catalog(c.Request.Context())
	if err != nil {
		h.respondError(c, "failed to build catalog", err)
		return
	}
	payload := catalogPayload{
		Folders:  make([]shelfPayload, 0, len(catalog.Folders)),
		Unfiled:  toDocumentPayloads(catalog.Unfiled),
		Dangling: catalog.Dangling,
	}
	for _, shelf := range catalog.Folders {
		payload.Folders = append(payload.Folders, shelfPayload{
			Folder:    toFolderPayload(shelf.Folder),
			Documents: toDocumentPayloads(shelf.Documents),
		})
	}
	c.JSON(http.StatusOK, payload)
}

func (h *httpHandler) handleEvents(c *gin.Context) {
	ctx := c.Request.Context()
	stream, cleanup := h.events.Subscribe(ctx)
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-stream:
			if !ok {
				return
			}
			c.SSEvent(event.Type, gin.H{
				"documentIds": nonNil(event.DocumentIDs),
				"folderIds":   nonNil(event.FolderIDs),
				"timestamp":   event.Timestamp.UnixMilli(),
				"source":      eventSource,
			})
			c.Writer.Flush()
		case <-ticker.C:
			c.SSEvent(eventHeartbeat, gin.H{"source": eventSource})
			c.Writer.Flush()
		}
	}
}

func (h *httpHandler) publishDocuments(documentIDs ...string) {
	h.events.Publish(ChangeEvent{Type: EventDocumentChanged, DocumentIDs: documentIDs})
}

func (h *httpHandler) respondError(c *gin.Context, message string, err error) {
	status, code := statusForError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(message, zap.Error(err))
	} else {
		h.logger.Debug(message, zap.Error(err))
	}
	c.JSON(status, gin.H{"error": code})
}

func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, database.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, "library_unavailable"
	case errors.Is(err, library.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, "file_too_large"
	case errors.Is(err, library.ErrInvalidName):
		return http.StatusBadRequest, "invalid_name"
	case errors.Is(err, library.ErrInvalidDocument):
		return http.StatusBadRequest, "invalid_document"
	case errors.Is(err, library.ErrContentUnavailable):
		return http.StatusNotFound, "content_unavailable"
	case errors.Is(err, records.ErrTransactionFailed):
		return http.StatusInternalServerError, "transaction_failed"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func toDocumentPayloads(documents []library.Document) []documentPayload {
	payloads := make([]documentPayload, 0, len(documents))
	for _, document := range documents {
		payloads = append(payloads, toDocumentPayload(document))
	}
	return payloads
}

func toDocumentPayload(document library.Document) documentPayload {
	return documentPayload{
		ID:                document.ID,
		Title:             document.Title,
		UploadTimestampMS: document.UploadedAt.UnixMilli(),
		SizeLabel:         document.SizeLabel,
		CoverThumbnail:    document.CoverThumbnail,
		PageCount:         document.PageCount,
		FolderID:          document.FolderID,
	}
}

func toFolderPayload(folder library.Folder) folderPayload {
	return folderPayload{
		ID:          folder.ID,
		Name:        folder.Name,
		CreatedAtMS: folder.CreatedAt.UnixMilli(),
	}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
