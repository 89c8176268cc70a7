package ingestion

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/healthtech/platform/internal/platform/fhir"
)

// validUploadContentTypes are the formats accepted for bulk uploads.
var validUploadContentTypes = map[string]string{
	"application/fhir+json":   ".json",
	"application/json":        ".json",
	"application/fhir+ndjson": ".ndjson",
	"application/x-ndjson":    ".ndjson",
}

type uploadURLRequest struct {
	ContentType string `json:"contentType"`
	Filename    string `json:"filename"`
}

// CreateUploadURL issues a presigned PUT URL so organizations can upload
// large FHIR files directly to the bucket, bypassing request size limits.
func (h *Handler) CreateUploadURL(c echo.Context) error {
	var req uploadURLRequest
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return fhir.Error(c, http.StatusBadRequest, "Unable to read request body")
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			return fhir.Error(c, http.StatusBadRequest, "Invalid JSON request body")
		}
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = "application/fhir+json"
	}
	ext, ok := validUploadContentTypes[contentType]
	if !ok {
		return fhir.Error(c, http.StatusBadRequest, "Unsupported content type: "+contentType)
	}

	now := time.Now().UTC()
	uploadID := "upload-" + now.Format("20060102150405") + "-" + strings.Split(uuid.NewString(), "-")[0]

	key := h.prefix + "/uploads/" + now.Format("2006/01/02") + "/" + uploadID + ext
	if req.Filename != "" {
		key = h.prefix + "/uploads/" + now.Format("2006/01/02") + "/" + uploadID + "-" + sanitizeFilename(req.Filename)
	}

	url, err := h.store.PresignPut(c.Request().Context(), key, contentType, h.presignExpiry)
	if err != nil {
		h.log.Error().Err(err).Str("upload_id", uploadID).Msg("presign failed")
		return fhir.Error(c, http.StatusInternalServerError, "Internal Server Error")
	}

	h.log.Info().
		Str("upload_id", uploadID).
		Str("key", key).
		Str("content_type", contentType).
		Msg("generated presigned upload url")

	return c.JSON(http.StatusOK, map[string]interface{}{
		"uploadId":  uploadID,
		"uploadUrl": url,
		"method":    http.MethodPut,
		"headers":   map[string]string{"Content-Type": contentType},
		"bucket":    h.bucket,
		"key":       key,
		"expiresIn": int(h.presignExpiry.Seconds()),
		"expiresAt": now.Add(h.presignExpiry).Format(time.RFC3339),
	})
}

// sanitizeFilename keeps uploads from steering the object key: everything
// outside [A-Za-z0-9._-] is replaced, and path separators never survive.
func sanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}
