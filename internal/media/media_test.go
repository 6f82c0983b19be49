package media

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFetchLocal(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "rec.mp4")
	if err := os.WriteFile(src, []byte("video"), 0o644); err != nil {
		t.Fatal(err)
	}
	f := NewFetcher(nil)

	for _, in := range []string{src, "file://" + filepath.ToSlash(src)} {
		got, err := f.Fetch(context.Background(), in, t.TempDir())
		if err != nil {
			t.Fatalf("Fetch(%q): %v", in, err)
		}
		if got != src {
			t.Errorf("Fetch(%q) = %q, want in-place path", in, got)
		}
	}

	if _, err := f.Fetch(context.Background(), filepath.Join(dir, "missing.mp4"), dir); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := f.Fetch(context.Background(), dir, dir); err == nil {
		t.Error("expected error for a directory")
	}
}

func TestFetchHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rec.webm" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("webm-bytes"))
	}))
	defer srv.Close()

	f := &Fetcher{HTTP: srv.Client()}
	dir := t.TempDir()

	got, err := f.Fetch(context.Background(), srv.URL+"/rec.webm", dir)
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join(dir, "source.webm") {
		t.Errorf("path = %s", got)
	}
	data, _ := os.ReadFile(got)
	if string(data) != "webm-bytes" {
		t.Errorf("content = %q", data)
	}

	_, err = f.Fetch(context.Background(), srv.URL+"/missing", dir)
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("err = %v", err)
	}
}

func TestFetchUnsupported(t *testing.T) {
	f := NewFetcher(nil)
	for _, in := range []string{"", "ftp://host/rec.mp4", "s3://bucket/rec.mp4"} {
		_, err := f.Fetch(context.Background(), in, t.TempDir())
		if !errors.Is(err, ErrUnsupportedSource) {
			t.Errorf("Fetch(%q) err = %v", in, err)
		}
	}
}

func TestLocalStoreUpload(t *testing.T) {
	src := filepath.Join(t.TempDir(), "final.mp4")
	if err := os.WriteFile(src, []byte("mp4"), 0o644); err != nil {
		t.Fatal(err)
	}
	store := LocalStore{Dir: t.TempDir()}

	ref, err := store.Upload(context.Background(), RunKey("run-1", "demo.mp4"), src)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(ref, "file://") || !strings.HasSuffix(ref, "runs/run-1/demo.mp4") {
		t.Errorf("ref = %s", ref)
	}
	data, err := os.ReadFile(filepath.Join(store.Dir, "runs", "run-1", "demo.mp4"))
	if err != nil || string(data) != "mp4" {
		t.Errorf("stored file = %q, %v", data, err)
	}
}

func TestKeys(t *testing.T) {
	if got := RunKey("r", "demo.mp4"); got != "runs/r/demo.mp4" {
		t.Errorf("RunKey = %s", got)
	}
	if got := VersionKey("r", "v", "demo.mp4"); got != "runs/r/versions/v/demo.mp4" {
		t.Errorf("VersionKey = %s", got)
	}
	if contentType("a.vtt") != "text/vtt" || contentType("a.mp4") != "video/mp4" {
		t.Error("content types")
	}
}

func TestNewS3StoreRequiresBucket(t *testing.T) {
	if _, err := NewS3Store(context.Background(), S3Options{Region: "us-east-1"}); err == nil {
		t.Error("expected error without bucket")
	}
}
