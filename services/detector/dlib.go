//go:build facerec

package detector

import (
	"BUREAU/models"
	"context"
	"fmt"
	"sync"

	face "github.com/Kagami/go-face"
)

// dlibDetector wraps go-face. The recognizer is not safe for concurrent use.
type dlibDetector struct {
	mu  sync.Mutex
	rec *face.Recognizer
}

func newDlib(modelsDir string) (Detector, error) {
	rec, err := face.NewRecognizer(modelsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load face models: %w", err)
	}
	return &dlibDetector{rec: rec}, nil
}

func (d *dlibDetector) Available() bool { return true }

func (d *dlibDetector) Encode(ctx context.Context, image []byte) (models.FaceEncoding, error) {
	type result struct {
		enc models.FaceEncoding
		err error
	}
	done := make(chan result, 1)

	go func() {
		d.mu.Lock()
		defer d.mu.Unlock()

		faces, err := d.rec.Recognize(image)
		if err != nil {
			done <- result{err: fmt.Errorf("face recognition failed: %w", err)}
			return
		}
		if len(faces) == 0 {
			done <- result{}
			return
		}

		// First detected face wins.
		desc := faces[0].Descriptor
		enc := make(models.FaceEncoding, len(desc))
		for i, v := range desc {
			enc[i] = float64(v)
		}
		done <- result{enc: enc}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		return r.enc, r.err
	}
}

func (d *dlibDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rec.Close()
	return nil
}
