package ingestion

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/healthtech/platform/internal/platform/blobstore"
	"github.com/healthtech/platform/internal/platform/queue"
)

func TestProcessObject(t *testing.T) {
	store := blobstore.NewMemory()
	ctx := context.Background()

	content := `{"resourceType":"Patient","id":"p1"}
{"resourceType":"Observation","id":"o1"}
`
	if err := store.Put(ctx, "incoming/fhir/uploads/2024/01/01/upload-1.ndjson", []byte(content), "application/x-ndjson", nil); err != nil {
		t.Fatalf("seed object: %v", err)
	}

	p := NewProcessor(store, queue.NewMemory(), "processed/", zerolog.Nop())
	if err := p.ProcessObject(ctx, "incoming/fhir/uploads/2024/01/01/upload-1.ndjson"); err != nil {
		t.Fatalf("process: %v", err)
	}

	out, err := store.Get(ctx, "processed/upload-1.ndjson")
	if err != nil {
		t.Fatalf("get processed object: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	var first map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("decode first line: %v", err)
	}
	if first["id"] != "p1" {
		t.Errorf("first record id = %v, want p1", first["id"])
	}
	if ct := store.ContentType("processed/upload-1.ndjson"); ct != "application/x-ndjson" {
		t.Errorf("content type = %q", ct)
	}
}

func TestProcessObject_InvalidContentNotPromoted(t *testing.T) {
	store := blobstore.NewMemory()
	ctx := context.Background()

	if err := store.Put(ctx, "incoming/bad.ndjson", []byte("{\"resourceType\":\"Patient\"}\nnot json\n"), "application/x-ndjson", nil); err != nil {
		t.Fatalf("seed object: %v", err)
	}

	p := NewProcessor(store, queue.NewMemory(), "processed/", zerolog.Nop())
	err := p.ProcessObject(ctx, "incoming/bad.ndjson")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Errorf("error %q does not name the failing line", err)
	}
	if _, err := store.Get(ctx, "processed/bad.ndjson"); err == nil {
		t.Error("invalid object must not be promoted")
	}
}

func TestProcessObject_MissingObject(t *testing.T) {
	p := NewProcessor(blobstore.NewMemory(), queue.NewMemory(), "processed/", zerolog.Nop())
	if err := p.ProcessObject(context.Background(), "nope.ndjson"); err == nil {
		t.Fatal("expected error for missing object")
	}
}

func TestProcessor_DrainsQueue(t *testing.T) {
	store := blobstore.NewMemory()
	q := queue.NewMemory()
	ctx := context.Background()

	if err := store.Put(ctx, "incoming/a.json", []byte(`{"resourceType":"Bundle","type":"batch","entry":[{"resource":{"resourceType":"Patient"}}]}`), "application/fhir+json", nil); err != nil {
		t.Fatalf("seed object: %v", err)
	}
	msg, _ := json.Marshal(jobMessage{JobID: "job-1", Key: "incoming/a.json"})
	if err := q.Send(ctx, string(msg)); err != nil {
		t.Fatalf("send: %v", err)
	}
	// A poison message is deleted too, not retried forever.
	if err := q.Send(ctx, "not json"); err != nil {
		t.Fatalf("send: %v", err)
	}

	p := NewProcessor(store, q, "processed/", zerolog.Nop())
	msgs, err := q.Receive(ctx, 10)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	for _, m := range msgs {
		p.handle(ctx, m)
	}

	if q.Len() != 0 {
		t.Errorf("queue depth = %d, want 0", q.Len())
	}
	if _, err := store.Get(ctx, "processed/a.json"); err != nil {
		t.Errorf("processed object missing: %v", err)
	}
}

func TestProcessor_TransientFailureLeavesMessage(t *testing.T) {
	q := queue.NewMemory()
	ctx := context.Background()

	// The referenced object does not exist yet: the download fails, which
	// must keep the message on the queue for redelivery.
	msg, _ := json.Marshal(jobMessage{JobID: "j1", Key: "missing/key.ndjson"})
	if err := q.Send(ctx, string(msg)); err != nil {
		t.Fatalf("send: %v", err)
	}

	p := NewProcessor(blobstore.NewMemory(), q, "processed/", zerolog.Nop())
	msgs, err := q.Receive(ctx, 10)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	p.handle(ctx, msgs[0])

	if q.Len() != 1 {
		t.Fatalf("queue depth = %d, want 1 (message must survive a download failure)", q.Len())
	}
}

func TestProcessor_InvalidObjectDeletesMessage(t *testing.T) {
	store := blobstore.NewMemory()
	q := queue.NewMemory()
	ctx := context.Background()

	if err := store.Put(ctx, "incoming/bad.ndjson", []byte("not json\n"), "application/x-ndjson", nil); err != nil {
		t.Fatalf("seed object: %v", err)
	}
	msg, _ := json.Marshal(jobMessage{JobID: "j1", Key: "incoming/bad.ndjson"})
	if err := q.Send(ctx, string(msg)); err != nil {
		t.Fatalf("send: %v", err)
	}

	p := NewProcessor(store, q, "processed/", zerolog.Nop())
	msgs, err := q.Receive(ctx, 10)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	p.handle(ctx, msgs[0])

	// Invalid content never becomes valid; retrying would loop forever.
	if q.Len() != 0 {
		t.Errorf("queue depth = %d, want 0", q.Len())
	}
	if _, err := store.Get(ctx, "processed/bad.ndjson"); err == nil {
		t.Error("invalid object must not be promoted")
	}
}
