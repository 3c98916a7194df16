// Package detector turns photos into face encodings.
package detector

import (
	"BUREAU/models"
	"context"
	"errors"

	"go.uber.org/zap"
)

var ErrUnavailable = errors.New("face detector is not available")

// Detector produces a face encoding from encoded image bytes (JPEG/PNG).
// Encode returns a nil encoding and a nil error when no face is found. When
// several faces are found the first one is used; it is not guaranteed to be
// the intended subject in a crowd photo.
type Detector interface {
	Available() bool
	Encode(ctx context.Context, image []byte) (models.FaceEncoding, error)
}

type unavailable struct{}

// Unavailable returns a Detector that reports itself as absent.
func Unavailable() Detector {
	return unavailable{}
}

func (unavailable) Available() bool { return false }

func (unavailable) Encode(context.Context, []byte) (models.FaceEncoding, error) {
	return nil, ErrUnavailable
}

// New builds the dlib detector from modelsDir. Any failure (no models dir,
// binary built without the facerec tag, broken models) degrades to an
// unavailable detector; registration and verification keep working without
// encodings.
func New(modelsDir string, log *zap.Logger) Detector {
	if modelsDir == "" {
		log.Info("face detector disabled: FACE_MODELS_DIR not set")
		return Unavailable()
	}

	d, err := newDlib(modelsDir)
	if err != nil {
		log.Warn("face detector unavailable", zap.String("models_dir", modelsDir), zap.Error(err))
		return Unavailable()
	}

	log.Info("face detector ready", zap.String("models_dir", modelsDir))
	return d
}

// EncodeOrNil runs the detector and swallows every failure into a nil
// encoding, logging the reason.
func EncodeOrNil(ctx context.Context, d Detector, image []byte, log *zap.Logger) models.FaceEncoding {
	if d == nil || !d.Available() || len(image) == 0 {
		return nil
	}

	enc, err := d.Encode(ctx, image)
	if err != nil {
		log.Warn("face encoding failed", zap.Error(err))
		return nil
	}
	if enc == nil {
		log.Info("no face found in image")
	}
	return enc
}
