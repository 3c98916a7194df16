// Package learning folds face encodings seen in verified detections back
// into the matched person's stored encoding.
package learning

import (
	"BUREAU/helper"
	"BUREAU/metrics"
	"BUREAU/models"
	"BUREAU/services/detector"
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Reasons a merge was skipped. None of them is fatal to the caller.
var (
	ErrNoPerson         = errors.New("detection is not linked to a person")
	ErrNoSnapshot       = errors.New("detection has no snapshot")
	ErrPersonNotFound   = errors.New("linked person no longer exists")
	ErrNoStoredEncoding = errors.New("person has no stored encoding")
	ErrNoFace           = errors.New("no face found in snapshot")
)

// SnapshotFetcher retrieves snapshot bytes by URL.
type SnapshotFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type Learner struct {
	db       *gorm.DB
	detector detector.Detector
	fetcher  SnapshotFetcher
	weight   float64
	timeout  time.Duration
	locks    *helper.KeyedMutex
	metrics  *metrics.Metrics
	log      *zap.Logger
}

type Options struct {
	// StoredWeight is the share the existing encoding keeps in each merge.
	// It is used as given; zero replaces the encoding with each observation.
	StoredWeight float64
	Timeout      time.Duration
	Metrics      *metrics.Metrics
}

func New(db *gorm.DB, d detector.Detector, fetcher SnapshotFetcher, opts Options, log *zap.Logger) *Learner {
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Learner{
		db:       db,
		detector: d,
		fetcher:  fetcher,
		weight:   opts.StoredWeight,
		timeout:  opts.Timeout,
		locks:    helper.NewKeyedMutex(),
		metrics:  opts.Metrics,
		log:      log,
	}
}

// Learn blends the face in det's snapshot into the linked person's encoding.
// The stored encoding is left untouched on every error path.
func (l *Learner) Learn(ctx context.Context, det models.Detection) (err error) {
	defer func() {
		if err != nil {
			l.metrics.ObserveMerge(metrics.ResultSkipped)
		} else {
			l.metrics.ObserveMerge(metrics.ResultMerged)
		}
	}()

	// 1. Cheap preconditions first.
	if det.PersonID == nil || *det.PersonID == "" {
		return ErrNoPerson
	}
	if det.SnapshotURL == nil || *det.SnapshotURL == "" {
		return ErrNoSnapshot
	}
	if l.detector == nil || !l.detector.Available() {
		return detector.ErrUnavailable
	}
	personID := *det.PersonID

	var person models.MissingPerson
	if err := l.db.WithContext(ctx).Select("id", "encoding").First(&person, "id = ?", personID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPersonNotFound
		}
		return fmt.Errorf("load person %s: %w", personID, err)
	}
	if !person.HasEncoding() {
		return ErrNoStoredEncoding
	}

	// 2. Slow collaborators run outside the lock, each with its own deadline.
	observed, err := l.observe(ctx, *det.SnapshotURL)
	if err != nil {
		return err
	}

	// 3. Read-modify-write of the encoding, serialized per person.
	unlock := l.locks.Lock(personID)
	defer unlock()

	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.MissingPerson
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "encoding").
			First(&current, "id = ?", personID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPersonNotFound
			}
			return err
		}
		if !current.HasEncoding() {
			return ErrNoStoredEncoding
		}

		merged, err := helper.MergeEncoding(current.Encoding, observed, l.weight)
		if err != nil {
			return err
		}

		return tx.Model(&models.MissingPerson{}).
			Where("id = ?", personID).
			Update("encoding", models.FaceEncoding(merged)).Error
	})
	if err != nil {
		return fmt.Errorf("merge encoding for person %s: %w", personID, err)
	}

	l.log.Info("face encoding updated from verified detection",
		zap.String("person_id", personID),
		zap.String("detection_id", det.ID))
	return nil
}

func (l *Learner) observe(ctx context.Context, url string) (models.FaceEncoding, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, l.timeout)
	image, err := l.fetcher.Fetch(fetchCtx, url)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot: %w", err)
	}

	encodeCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	observed, err := l.detector.Encode(encodeCtx, image)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	if observed == nil {
		return nil, ErrNoFace
	}
	return observed, nil
}
