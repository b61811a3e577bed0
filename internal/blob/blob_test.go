package blob

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalStoreUpload(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStore(filepath.Join(dir, "photos"))
	if err != nil {
		t.Fatalf("NewLocalStore() error = %v", err)
	}

	ref, err := s.Upload(context.Background(), "abc.jpg", []byte{0xFF, 0xD8})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if !filepath.IsAbs(ref) {
		t.Errorf("reference %q is not absolute", ref)
	}
	data, err := os.ReadFile(ref)
	if err != nil || len(data) != 2 {
		t.Errorf("stored blob = %v, %v", data, err)
	}
}

func TestLocalStoreUploadStripsPathComponents(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	ref, err := s.Upload(context.Background(), "../../escape.jpg", []byte{1})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if filepath.Dir(ref) != s.dir {
		t.Errorf("blob escaped the store directory: %q", ref)
	}
}

func TestNewLocalStoreRejectsEmptyDir(t *testing.T) {
	if _, err := NewLocalStore(""); err == nil {
		t.Error("expected error for empty directory")
	}
}
