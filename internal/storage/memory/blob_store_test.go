package memory

import (
	"bytes"
	"context"
	"testing"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "runs/report.json", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	if uri != "memory://runs/report.json" {
		t.Fatalf("unexpected uri %s", uri)
	}
	payload[0] = 'C'
	stored, ok := store.Get("runs/report.json")
	if !ok || string(stored) != "content" {
		t.Fatalf("expected stored copy to be immutable, got %q", stored)
	}
	stored[0] = 'X'
	again, _ := store.Get("runs/report.json")
	if string(again) != "content" {
		t.Fatalf("Get() leaked internal buffer, got %q", again)
	}
}

func TestBlobStoreGetMissing(t *testing.T) {
	t.Parallel()

	if _, ok := NewBlobStore().Get("nope"); ok {
		t.Fatal("expected missing object")
	}
}
