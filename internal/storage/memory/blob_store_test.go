package memory

import (
	"bytes"
	"context"
	"testing"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("<EXPERIMENT_PACKAGE_SET/>")
	uri, err := store.PutObject(context.Background(), "efetch/abc.xml", "application/xml", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	if uri != "memory://efetch/abc.xml" {
		t.Fatalf("unexpected uri %s", uri)
	}
	payload[0] = 'X'
	got, ok := store.Get("efetch/abc.xml")
	if !ok || string(got) != "<EXPERIMENT_PACKAGE_SET/>" {
		t.Fatalf("expected stored copy to be immutable, got %q", got)
	}
	got[0] = 'Y'
	again, _ := store.Get("efetch/abc.xml")
	if again[0] != '<' {
		t.Fatal("Get() must return a copy")
	}
}

func TestBlobStoreExists(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	ok, err := store.Exists(context.Background(), "missing")
	if err != nil || ok {
		t.Fatalf("expected missing object, got %v %v", ok, err)
	}
	if _, err := store.PutObject(context.Background(), "k", "", bytes.NewReader(nil)); err != nil {
		t.Fatal(err)
	}
	ok, err = store.Exists(context.Background(), "k")
	if err != nil || !ok {
		t.Fatalf("expected object, got %v %v", ok, err)
	}
	if store.Len() != 1 {
		t.Fatalf("expected one object, got %d", store.Len())
	}
	if _, err := store.PutObject(context.Background(), "", "", bytes.NewReader(nil)); err == nil {
		t.Fatal("expected empty path error")
	}
}
