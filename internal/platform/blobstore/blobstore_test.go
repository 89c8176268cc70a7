package blobstore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemory_PutGet(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	body := []byte(`{"resourceType":"Bundle"}`)
	if err := store.Put(ctx, "incoming/a.json", body, "application/fhir+json", map[string]string{"source": "test"}); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := store.Get(ctx, "incoming/a.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != string(body) {
		t.Errorf("body = %s, want %s", got, body)
	}
	if ct := store.ContentType("incoming/a.json"); ct != "application/fhir+json" {
		t.Errorf("content type = %q", ct)
	}
}

func TestMemory_PutCopiesBody(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	body := []byte("original")
	if err := store.Put(ctx, "k", body, "text/plain", nil); err != nil {
		t.Fatalf("put: %v", err)
	}
	body[0] = 'X'

	got, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "original" {
		t.Errorf("stored body mutated through caller slice: %s", got)
	}
}

func TestMemory_GetMissing(t *testing.T) {
	store := NewMemory()
	_, err := store.Get(context.Background(), "nope")
	if !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestMemory_PresignPut(t *testing.T) {
	store := NewMemory()
	url, err := store.PresignPut(context.Background(), "incoming/b.ndjson", "application/x-ndjson", time.Hour)
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	if url != "memory://upload/incoming/b.ndjson" {
		t.Errorf("url = %q", url)
	}
}
