// Package ingestion implements the intake surface for bulk FHIR data:
// webhook bundle receipt, presigned direct-to-bucket uploads, and the
// NDJSON processor that promotes validated files.
package ingestion

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/healthtech/platform/internal/platform/blobstore"
	"github.com/healthtech/platform/internal/platform/fhir"
	"github.com/healthtech/platform/internal/platform/queue"
)

// Handler serves the ingestion endpoints. Payloads are stored first, then a
// pointer message is queued; the search API never reads these objects.
type Handler struct {
	store         blobstore.Store
	queue         queue.Queue
	prefix        string
	bucket        string
	presignExpiry time.Duration
	log           zerolog.Logger
}

func NewHandler(store blobstore.Store, q queue.Queue, bucket, prefix string, presignExpiry time.Duration, log zerolog.Logger) *Handler {
	return &Handler{
		store:         store,
		queue:         q,
		prefix:        prefix,
		bucket:        bucket,
		presignExpiry: presignExpiry,
		log:           log,
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/fhir/Bundle", h.ReceiveBundle)
	g.GET("/jobs/:id", h.JobStatus)
	g.POST("/upload-url", h.CreateUploadURL)
}

// jobMessage is the queue payload pointing the processor at a stored bundle.
type jobMessage struct {
	JobID string `json:"jobId"`
	Key   string `json:"key"`
}

// ReceiveBundle accepts a FHIR Bundle, validates its shallow structure,
// stores the raw payload, and queues it for asynchronous processing.
func (h *Handler) ReceiveBundle(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return fhir.Error(c, http.StatusBadRequest, "Unable to read request body")
	}

	info, err := ValidateBundle(body)
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			h.log.Warn().Str("error", ve.Message).Msg("bundle rejected")
			return fhir.Error(c, http.StatusBadRequest, ve.Message)
		}
		return fhir.Error(c, http.StatusInternalServerError, "Internal Server Error")
	}

	now := time.Now().UTC()
	jobID := newJobID(now)
	key := fmt.Sprintf("%s/webhooks/%s/%s.json", h.prefix, now.Format("2006/01/02"), jobID)

	// Store the re-encoded (single line) form so downstream line-oriented
	// processing sees one record per line regardless of inbound formatting.
	stored, _ := json.Marshal(info.Raw)
	err = h.store.Put(c.Request().Context(), key, stored, fhir.MIMEFHIRJSON, map[string]string{
		"job_id":      jobID,
		"bundle_type": info.Type,
		"entry_count": fmt.Sprintf("%d", info.EntryCount),
		"source":      "webhook",
	})
	if err != nil {
		h.log.Error().Err(err).Str("job_id", jobID).Msg("store bundle failed")
		return fhir.Error(c, http.StatusInternalServerError, "Internal Server Error")
	}

	msg, _ := json.Marshal(jobMessage{JobID: jobID, Key: key})
	if err := h.queue.Send(c.Request().Context(), string(msg)); err != nil {
		h.log.Error().Err(err).Str("job_id", jobID).Msg("enqueue job failed")
		return fhir.Error(c, http.StatusInternalServerError, "Internal Server Error")
	}

	h.log.Info().
		Str("job_id", jobID).
		Str("key", key).
		Int("entry_count", info.EntryCount).
		Msg("bundle received and queued")

	c.Response().Header().Set("X-Job-Id", jobID)
	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"jobId":         jobID,
		"status":        "accepted",
		"message":       "Bundle accepted for processing",
		"resourceCount": info.EntryCount,
		"createdAt":     now.Format(time.RFC3339),
	})
}

// JobStatus reports a queued job. Job state is not yet persisted, so the
// endpoint acknowledges the id without progress detail.
// TODO: back this with a job table once the processor records completion.
func (h *Handler) JobStatus(c echo.Context) error {
	jobID := c.Param("id")
	if jobID == "" {
		return fhir.Error(c, http.StatusBadRequest, "Job ID required")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"jobId":  jobID,
		"status": "queued",
	})
}

func newJobID(now time.Time) string {
	return "job-" + now.Format("20060102150405") + "-" + strings.Split(uuid.NewString(), "-")[0]
}
