package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// maxSnapshotBytes caps remote downloads.
const maxSnapshotBytes = 20 << 20

var ErrSnapshotUnavailable = errors.New("snapshot unavailable")

// Fetcher retrieves stored objects by URL: /uploads/ URLs are read from the
// local upload dir, http(s) URLs are downloaded.
type Fetcher struct {
	localDir string
	client   *http.Client
	maxBytes int64
}

func NewFetcher(localDir string, client *http.Client) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{localDir: localDir, client: client, maxBytes: maxSnapshotBytes}
}

func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	switch {
	case strings.HasPrefix(url, LocalURLPrefix):
		return f.readLocal(url)
	case strings.HasPrefix(url, "https://"), strings.HasPrefix(url, "http://"):
		return f.download(ctx, url)
	default:
		return nil, fmt.Errorf("%w: unsupported url %q", ErrSnapshotUnavailable, url)
	}
}

func (f *Fetcher) readLocal(url string) ([]byte, error) {
	full, ok := localPath(f.localDir, url)
	if !ok {
		return nil, fmt.Errorf("%w: invalid local url %q", ErrSnapshotUnavailable, url)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotUnavailable, err)
	}
	return data, nil
}

func (f *Fetcher) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotUnavailable, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %d", ErrSnapshotUnavailable, url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotUnavailable, err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrSnapshotUnavailable, url, f.maxBytes)
	}
	return data, nil
}
