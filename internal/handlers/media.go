package handlers

import (
	stdErrors "errors"
	"mime"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/smartpost/internal/services"
	"github.com/charlesng35/smartpost/pkg/errors"
	"github.com/charlesng35/smartpost/pkg/response"
)

// multipartOverhead leaves room for form boundaries and headers around the file part.
const multipartOverhead = 1 << 20

// MediaHandler serves ephemeral media upload, listing and download.
type MediaHandler struct {
	media    *services.MediaService
	maxBytes int64
}

// NewMediaHandler constructs a MediaHandler. maxBytes caps the request body; zero uses
// services.DefaultMaxUploadSize.
func NewMediaHandler(media *services.MediaService, maxBytes int64) *MediaHandler {
	if maxBytes <= 0 {
		maxBytes = services.DefaultMaxUploadSize
	}
	return &MediaHandler{media: media, maxBytes: maxBytes}
}

// Upload handles POST /api/devices/:id/media with a multipart "file" field.
func (h *MediaHandler) Upload(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+multipartOverhead)

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stdErrors.As(err, &tooLarge) {
			response.Error(c, errors.NewBadRequest("file exceeds the maximum upload size"))
			return
		}
		response.Error(c, errors.NewBadRequest("file is required"))
		return
	}

	file, err := header.Open()
	if err != nil {
		response.Error(c, errors.NewBadRequest("file could not be read"))
		return
	}
	defer file.Close()

	upload, err := h.media.Register(requestContext(c), services.RegisterMediaInput{
		DeviceID:    c.Param("id"),
		UploadedBy:  userID,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Content:     file,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, upload)
}

// List handles GET /api/devices/:id/media and returns only live uploads.
func (h *MediaHandler) List(c *gin.Context) {
	if _, ok := currentUser(c); !ok {
		return
	}

	uploads, err := h.media.ListByDevice(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, uploads, &response.Meta{Count: len(uploads)})
}

// Download handles GET /api/media/:id/download and streams the stored bytes.
func (h *MediaHandler) Download(c *gin.Context) {
	if _, ok := currentUser(c); !ok {
		return
	}

	upload, reader, err := h.media.Open(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer reader.Close()

	disposition := mime.FormatMediaType("inline", map[string]string{"filename": upload.OriginalFilename})
	c.DataFromReader(http.StatusOK, upload.SizeBytes, upload.ContentType, reader, map[string]string{
		"Content-Disposition": disposition,
		"X-Expires-At":        upload.ExpiresAt.UTC().Format(http.TimeFormat),
		"X-TTL-Seconds":       strconv.Itoa(upload.TTLSeconds),
	})
}
