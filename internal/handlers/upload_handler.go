package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/enrollment-service/internal/services"
	"github.com/SAP-F-2025/enrollment-service/internal/storage"
	"github.com/SAP-F-2025/enrollment-service/internal/utils"
	"github.com/SAP-F-2025/enrollment-service/internal/validator"
)

// uploadFormOverhead covers multipart boundaries and the non-file fields
const uploadFormOverhead = 64 << 10

type UploadRequest struct {
	Path string `form:"path" validate:"omitempty,max=255,storage_path"`
}

// UploadHandler stores course media in the object store
type UploadHandler struct {
	BaseHandler
	storage   storage.Storage
	validator *validator.Validator
	maxSize   int64
}

func NewUploadHandler(store storage.Storage, v *validator.Validator, maxSize int64, logger utils.Logger) *UploadHandler {
	return &UploadHandler{
		BaseHandler: NewBaseHandler(logger),
		storage:     store,
		validator:   v,
		maxSize:     maxSize,
	}
}

// BodyLimit is the request size the upload route accepts before parsing
func (h *UploadHandler) BodyLimit() int64 {
	return h.maxSize + uploadFormOverhead
}

// Upload accepts multipart fields "file" and "path" and returns {url, key}
// @Router /uploads [post]
func (h *UploadHandler) Upload(c *gin.Context) {
	if h.storage == nil {
		h.handleServiceError(c, services.ErrServiceUnavailable)
		return
	}

	req := UploadRequest{Path: c.PostForm("path")}
	if err := h.validator.Struct(&req); err != nil {
		h.handleServiceError(c, err)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		h.fail(c, http.StatusBadRequest, "File is required", err.Error())
		return
	}
	if h.maxSize > 0 && fileHeader.Size > h.maxSize {
		h.fail(c, http.StatusRequestEntityTooLarge, "File too large", fmt.Sprintf("max %d bytes", h.maxSize))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.fail(c, http.StatusBadRequest, "Failed to open file", err.Error())
		return
	}
	defer file.Close()

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	object, err := h.storage.Upload(c.Request.Context(), req.Path, fileHeader.Filename, file, fileHeader.Size, contentType)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.LogRequest(c, "File uploaded", "key", object.Key, "size", fileHeader.Size)

	h.respond(c, http.StatusCreated, object, "File uploaded")
}
