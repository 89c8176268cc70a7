package ingestion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/healthtech/platform/internal/platform/blobstore"
	"github.com/healthtech/platform/internal/platform/queue"
)

func newTestHandler() (*Handler, *blobstore.Memory, *queue.Memory) {
	store := blobstore.NewMemory()
	q := queue.NewMemory()
	h := NewHandler(store, q, "test-bucket", "incoming/fhir", time.Hour, zerolog.Nop())
	return h, store, q
}

func postBundle(t *testing.T, h *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/ingestion/fhir/Bundle", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h.ReceiveBundle(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	return rec
}

const validBundle = `{
	"resourceType": "Bundle",
	"type": "transaction",
	"entry": [
		{"resource": {"resourceType": "Patient", "id": "p1"}},
		{"resource": {"resourceType": "Observation", "id": "o1"}}
	]
}`

func TestReceiveBundle_Accepted(t *testing.T) {
	h, store, q := newTestHandler()

	rec := postBundle(t, h, validBundle)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	jobID, _ := resp["jobId"].(string)
	if !strings.HasPrefix(jobID, "job-") {
		t.Errorf("jobId = %q, want job- prefix", jobID)
	}
	if resp["status"] != "accepted" {
		t.Errorf("status = %v, want accepted", resp["status"])
	}
	if resp["resourceCount"] != float64(2) {
		t.Errorf("resourceCount = %v, want 2", resp["resourceCount"])
	}
	if rec.Header().Get("X-Job-Id") != jobID {
		t.Errorf("X-Job-Id header = %q, want %q", rec.Header().Get("X-Job-Id"), jobID)
	}

	// Stored under the date-partitioned webhook prefix.
	keys := store.Keys()
	if len(keys) != 1 {
		t.Fatalf("stored %d objects, want 1", len(keys))
	}
	wantPrefix := "incoming/fhir/webhooks/" + time.Now().UTC().Format("2006/01/02") + "/"
	if !strings.HasPrefix(keys[0], wantPrefix) {
		t.Errorf("key = %q, want prefix %q", keys[0], wantPrefix)
	}
	if !strings.HasSuffix(keys[0], ".json") {
		t.Errorf("key = %q, want .json suffix", keys[0])
	}

	// The stored form is single-line JSON so the processor can treat it as
	// one NDJSON record.
	stored, err := store.Get(context.Background(), keys[0])
	if err != nil {
		t.Fatalf("get stored object: %v", err)
	}
	if strings.Contains(strings.TrimSpace(string(stored)), "\n") {
		t.Error("stored bundle is not single-line JSON")
	}

	// One queue message pointing at the stored key.
	if q.Len() != 1 {
		t.Fatalf("queue depth = %d, want 1", q.Len())
	}
	msgs, _ := q.Receive(context.Background(), 1)
	var job jobMessage
	if err := json.Unmarshal([]byte(msgs[0].Body), &job); err != nil {
		t.Fatalf("decode queue message: %v", err)
	}
	if job.JobID != jobID {
		t.Errorf("queued jobId = %q, want %q", job.JobID, jobID)
	}
	if job.Key != keys[0] {
		t.Errorf("queued key = %q, want %q", job.Key, keys[0])
	}
}

func TestReceiveBundle_InvalidPayloads(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"empty body", "", "Request body is empty"},
		{"not a bundle", `{"resourceType":"Patient"}`, "Expected resourceType 'Bundle'"},
		{"no entries", `{"resourceType":"Bundle","type":"batch"}`, "Bundle contains no entries"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, store, q := newTestHandler()
			rec := postBundle(t, h, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.wantMsg) {
				t.Errorf("body = %s, want substring %q", rec.Body.String(), tt.wantMsg)
			}
			if len(store.Keys()) != 0 {
				t.Error("rejected bundle must not be stored")
			}
			if q.Len() != 0 {
				t.Error("rejected bundle must not be queued")
			}
		})
	}
}

func TestJobStatus(t *testing.T) {
	h, _, _ := newTestHandler()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/ingestion/jobs/job-123", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("job-123")

	if err := h.JobStatus(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "job-123") {
		t.Errorf("body missing job id: %s", rec.Body.String())
	}
}
