// Package media moves source recordings in and finished artifacts out.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// ErrUnsupportedSource is returned for URLs no fetcher handles.
var ErrUnsupportedSource = errors.New("unsupported source url")

// Uploader stores a finished file under key and returns its reference.
type Uploader interface {
	Upload(ctx context.Context, key, localPath string) (string, error)
}

// Fetcher resolves a source URL to a local file.
type Fetcher struct {
	HTTP *http.Client
	// S3 serves s3://bucket/key sources; nil rejects them.
	S3 *S3Store
}

// NewFetcher returns a fetcher with a bounded HTTP client.
func NewFetcher(s3 *S3Store) *Fetcher {
	return &Fetcher{HTTP: &http.Client{Timeout: 10 * time.Minute}, S3: s3}
}

// Fetch makes rawURL available as a local file. Local paths and file://
// URLs are used in place; remote sources are downloaded into dir.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, dir string) (string, error) {
	if strings.TrimSpace(rawURL) == "" {
		return "", fmt.Errorf("%w: empty", ErrUnsupportedSource)
	}
	u, err := url.Parse(rawURL)
	if err != nil || len(u.Scheme) == 1 {
		// Unparseable or a Windows drive letter: treat as a path.
		return localFile(rawURL)
	}

	switch u.Scheme {
	case "":
		return localFile(rawURL)
	case "file":
		return localFile(u.Path)
	case "http", "https":
		return f.fetchHTTP(ctx, u, dir)
	case "s3":
		if f.S3 == nil {
			return "", fmt.Errorf("%w: s3 is not configured", ErrUnsupportedSource)
		}
		dst := filepath.Join(dir, "source"+sourceExt(u.Path))
		if err := f.S3.Download(ctx, u.Host, strings.TrimPrefix(u.Path, "/"), dst); err != nil {
			return "", err
		}
		return dst, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedSource, u.Scheme)
	}
}

func localFile(p string) (string, error) {
	fi, err := os.Stat(p)
	if err != nil {
		return "", fmt.Errorf("source %s: %w", p, err)
	}
	if fi.IsDir() {
		return "", fmt.Errorf("source %s is a directory", p)
	}
	return p, nil
}

func (f *Fetcher) fetchHTTP(ctx context.Context, u *url.URL, dir string) (string, error) {
	client := f.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download source: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download source: %s returned %s", u.Redacted(), resp.Status)
	}

	dst := filepath.Join(dir, "source"+sourceExt(u.Path))
	if err := writeFile(dst, resp.Body); err != nil {
		return "", fmt.Errorf("download source: %w", err)
	}
	return dst, nil
}

func sourceExt(p string) string {
	ext := strings.ToLower(path.Ext(p))
	switch ext {
	case ".mp4", ".webm", ".mov", ".mkv":
		return ext
	}
	return ".mp4"
}

func writeFile(dst string, r io.Reader) error {
	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LocalStore keeps artifacts in a directory.
type LocalStore struct {
	Dir string
}

// Upload copies localPath to Dir/key and returns a file:// reference.
func (s LocalStore) Upload(_ context.Context, key, localPath string) (string, error) {
	dst, err := filepath.Abs(filepath.Join(s.Dir, filepath.FromSlash(key)))
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	src, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer src.Close()
	if err := writeFile(dst, src); err != nil {
		return "", fmt.Errorf("store artifact: %w", err)
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(dst)}).String(), nil
}

// RunKey is the object key of a run's artifact.
func RunKey(runID, name string) string {
	return path.Join("runs", runID, name)
}

// VersionKey is the object key of an edit version's artifact.
func VersionKey(runID, versionID, name string) string {
	return path.Join("runs", runID, "versions", versionID, name)
}
