package storage

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

	"Soundscape/config"
	"Soundscape/logger"
)

// ErrInvalidPath is returned for sound paths that escape the source root.
var ErrInvalidPath = errors.New("invalid sound path")

// FetchError reports that a sound file could not be retrieved.
// StatusCode is the HTTP status when the source answered, 0 otherwise.
type FetchError struct {
	Path       string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.Path, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.Path, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// NotFound reports whether the source said the file does not exist.
func (e *FetchError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound || errors.Is(e.Err, os.ErrNotExist)
}

// cleanPath rejects absolute paths and parent traversal.
func cleanPath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return "", ErrInvalidPath
	}
	c := path.Clean(p)
	if c == "." || c == ".." || strings.HasPrefix(c, "../") {
		return "", ErrInvalidPath
	}
	return c, nil
}

// FileFetcher reads sound files below a root directory.
type FileFetcher struct {
	Root string
}

func NewFileFetcher(root string) *FileFetcher {
	return &FileFetcher{Root: root}
}

func (f *FileFetcher) Fetch(ctx context.Context, p string) ([]byte, error) {
	c, err := cleanPath(p)
	if err != nil {
		return nil, &FetchError{Path: p, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, &FetchError{Path: p, Err: err}
	}
	data, err := os.ReadFile(filepath.Join(f.Root, filepath.FromSlash(c)))
	if err != nil {
		return nil, &FetchError{Path: p, Err: err}
	}
	return data, nil
}

// HTTPFetcher resolves sound paths against a base URL.
type HTTPFetcher struct {
	base   *url.URL
	client *http.Client
}

func NewHTTPFetcher(baseURL string, client *http.Client) (*HTTPFetcher, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse sound base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("sound base url %q: unsupported scheme", baseURL)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTPFetcher{base: u, client: client}, nil
}

func (f *HTTPFetcher) Fetch(ctx context.Context, p string) ([]byte, error) {
	c, err := cleanPath(p)
	if err != nil {
		return nil, &FetchError{Path: p, Err: err}
	}
	ref := &url.URL{Path: c}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.base.ResolveReference(ref).String(), nil)
	if err != nil {
		return nil, &FetchError{Path: p, Err: err}
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{Path: p, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &FetchError{Path: p, StatusCode: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Path: p, StatusCode: resp.StatusCode, Err: err}
	}
	return data, nil
}

// Fetcher is satisfied by every source in this package.
type Fetcher interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// NewFetcher builds the source selected by SOUND_SOURCE.
func NewFetcher(ctx context.Context, cfg *config.Config) (Fetcher, error) {
	switch cfg.SoundSource {
	case "", "file":
		logger.Info("Sound source: local files", logger.Path(cfg.SoundDir))
		return NewFileFetcher(cfg.SoundDir), nil
	case "http":
		logger.Info("Sound source: http", logger.String("baseUrl", cfg.SoundBaseURL))
		return NewHTTPFetcher(cfg.SoundBaseURL, nil)
	case "minio":
		client, err := InitMinio(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewMinioFetcher(client, cfg.MinioBucket, cfg.MinioPrefix), nil
	default:
		return nil, fmt.Errorf("unknown sound source %q", cfg.SoundSource)
	}
}
