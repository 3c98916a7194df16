package helper

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
)

var ErrUploadTooLarge = errors.New("upload too large")

// ReadUpload reads a multipart file of at most limit bytes.
func ReadUpload(file *multipart.FileHeader, limit int64) ([]byte, error) {
	if file.Size > limit {
		return nil, fmt.Errorf("%w: over %d MB", ErrUploadTooLarge, limit>>20)
	}
	f, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("cannot read upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, fmt.Errorf("cannot read upload: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: over %d MB", ErrUploadTooLarge, limit>>20)
	}
	return data, nil
}

// UploadContentType returns the declared content type, image/jpeg if none.
func UploadContentType(file *multipart.FileHeader) string {
	if ct := file.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return "image/jpeg"
}
