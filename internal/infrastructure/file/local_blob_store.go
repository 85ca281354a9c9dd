package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const uploadDir = "alumni_imports"

var ErrInvalidBlobURI = errors.New("invalid blob uri")

// LocalBlobStore keeps uploads on the local filesystem and addresses them with file:// URIs.
type LocalBlobStore struct {
	BaseDir string
	now     func() time.Time
}

func NewLocalBlobStore(baseDir string) (*LocalBlobStore, error) {
	if baseDir == "" {
		baseDir = "."
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve blob dir %s: %w", baseDir, err)
	}
	return &LocalBlobStore{BaseDir: abs, now: time.Now}, nil
}

func (s *LocalBlobStore) Store(ctx context.Context, name string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	base := filepath.Base(filepath.Clean("/" + name))
	if base == "/" || base == "." {
		return "", fmt.Errorf("%w: empty file name", ErrInvalidBlobURI)
	}

	dir := filepath.Join(s.BaseDir, uploadDir, strconv.Itoa(s.now().Year()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	path := filepath.Join(dir, base)
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create upload %s: %w", path, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write upload %s: %w", path, err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close upload %s: %w", path, err)
	}

	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String(), nil
}

func (s *LocalBlobStore) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := s.resolve(uri)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file %s: %w", path, err)
	}
	return file, nil
}

// resolve maps a file:// URI, or a path relative to BaseDir, to a file inside BaseDir.
func (s *LocalBlobStore) resolve(uri string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(uri))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidBlobURI, err)
	}

	var path string
	switch parsed.Scheme {
	case "file":
		if parsed.Host != "" && parsed.Host != "localhost" {
			return "", fmt.Errorf("%w: remote host %q", ErrInvalidBlobURI, parsed.Host)
		}
		path = filepath.FromSlash(parsed.Path)
	case "":
		path = filepath.FromSlash(parsed.Path)
		if !filepath.IsAbs(path) {
			path = filepath.Join(s.BaseDir, path)
		}
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidBlobURI, parsed.Scheme)
	}

	path = filepath.Clean(path)
	rel, err := filepath.Rel(s.BaseDir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s is outside the blob directory", ErrInvalidBlobURI, uri)
	}
	return path, nil
}
