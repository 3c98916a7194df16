// Package storage keeps photos and detection snapshots either on local disk
// (served under /uploads/) or on a remote SFTP host fronted by a public URL.
package storage

import (
	"BUREAU/config"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"
)

// LocalURLPrefix marks objects served by this process from the upload dir.
const LocalURLPrefix = "/uploads/"

var ErrInvalidName = errors.New("invalid object name")

// ObjectStore stores blobs and hands back the URL they are reachable at.
type ObjectStore interface {
	Put(ctx context.Context, data []byte, name, contentType string) (string, error)
	Delete(ctx context.Context, url string) error
	// Remote reports whether objects are hosted outside this process.
	Remote() bool
}

// New picks the SFTP store when it is configured, local disk otherwise.
func New(cfg *config.Config, log *zap.Logger) (ObjectStore, error) {
	if cfg.SFTP.Enabled() {
		log.Info("using remote object store", zap.String("host", cfg.SFTP.Host), zap.String("public_url", cfg.SFTP.PublicURL))
		return NewSFTPStore(cfg.SFTP, cfg.ExternalTimeout)
	}
	log.Info("using local object store", zap.String("dir", cfg.UploadDir))
	return NewLocalStore(cfg.UploadDir)
}

// cleanName normalizes a relative object name and rejects escapes.
func cleanName(name string) (string, error) {
	name = strings.TrimLeft(strings.ReplaceAll(name, "\\", "/"), "/")
	cleaned := path.Clean(name)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return cleaned, nil
}

// SnapshotName builds detections/<case>_<timestamp>_<suffix>.jpg.
func SnapshotName(caseID string, at time.Time, suffix string) string {
	if caseID == "" {
		caseID = "UNMATCHED"
	}
	return fmt.Sprintf("detections/%s_%s_%s.jpg", caseID, at.UTC().Format("20060102_150405"), suffix)
}
