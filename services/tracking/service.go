// Package tracking logs field detections and drives their review workflow:
// initial status from match confidence, alert dispatch and continuous
// learning when an operator verifies a sighting.
package tracking

import (
	"BUREAU/helper"
	"BUREAU/metrics"
	"BUREAU/models"
	"BUREAU/services/detector"
	"BUREAU/services/events"
	"BUREAU/services/notify"
	"BUREAU/services/storage"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultMatchThreshold is the confidence a tentative match must exceed to
// stay pending for review. config.Load applies it when MATCH_THRESHOLD is
// unset; Deps.MatchThreshold is used as given, zero included.
const DefaultMatchThreshold = 0.7

var (
	ErrDetectionNotFound = errors.New("detection not found")
	ErrUnknownCase       = errors.New("unknown case id")
	ErrEmptyStatus       = errors.New("status is required")
	ErrInvalidConfidence = errors.New("confidence must be between 0 and 1")
)

// Learner merges the encoding from a verified detection. Errors are
// informational only.
type Learner interface {
	Learn(ctx context.Context, det models.Detection) error
}

type Deps struct {
	DB       *gorm.DB
	Store    storage.ObjectStore
	Detector detector.Detector
	Notifier notify.Notifier
	Learner  Learner
	Sink     events.Sink
	Metrics  *metrics.Metrics
	Log      *zap.Logger

	MatchThreshold float64
	Timeout        time.Duration
}

type Service struct {
	Deps
	locks *helper.KeyedMutex
}

func New(deps Deps) *Service {
	if deps.Timeout == 0 {
		deps.Timeout = 10 * time.Second
	}
	if deps.Detector == nil {
		deps.Detector = detector.Unavailable()
	}
	if deps.Sink == nil {
		deps.Sink = events.Discard{}
	}
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	return &Service{Deps: deps, locks: helper.NewKeyedMutex()}
}

// InitialStatus maps a tentative match confidence to the status a new
// detection starts in. Without a confidence the detection waits for review.
func InitialStatus(confidence *float64, threshold float64) string {
	if confidence == nil || *confidence > threshold {
		return models.StatusPending
	}
	return models.StatusDismissed
}

type IngestInput struct {
	CameraID     string
	Location     string
	Latitude     *float64
	Longitude    *float64
	Snapshot     []byte
	SnapshotType string
	// CaseID and Confidence carry a match already made by the field unit.
	CaseID     *string
	Confidence *float64
}

// Ingest records a new detection.
func (s *Service) Ingest(ctx context.Context, in IngestInput) (*models.Detection, error) {
	if in.Confidence != nil && (*in.Confidence < 0 || *in.Confidence > 1) {
		return nil, ErrInvalidConfidence
	}

	now := time.Now().UTC()
	det := models.Detection{
		Latitude:   in.Latitude,
		Longitude:  in.Longitude,
		Timestamp:  now,
		Confidence: in.Confidence,
	}
	if in.CameraID != "" {
		det.CameraID = &in.CameraID
	}
	if in.Location != "" {
		det.Location = &in.Location
	}

	// 1. Resolve the tentative match.
	person, confidence, err := s.resolveMatch(ctx, in)
	if err != nil {
		return nil, err
	}
	if person != nil {
		det.PersonID = &person.ID
		det.PersonName = &person.Name
		det.CaseID = &person.CaseID
		det.Confidence = confidence
	}

	// 2. Store the snapshot. A failed upload does not lose the sighting.
	if len(in.Snapshot) > 0 && s.Store != nil {
		caseID := ""
		if det.CaseID != nil {
			caseID = *det.CaseID
		}
		name := storage.SnapshotName(caseID, now, strings.ReplaceAll(uuid.NewString(), "-", "")[:8])

		putCtx, cancel := context.WithTimeout(ctx, s.Timeout)
		url, err := s.Store.Put(putCtx, in.Snapshot, name, in.SnapshotType)
		cancel()
		if err != nil {
			s.Log.Error("snapshot upload failed, detection stored without snapshot", zap.Error(err))
		} else {
			det.SnapshotURL = &url
		}
	}

	// 3. Initial status.
	det.Status = InitialStatus(det.Confidence, s.MatchThreshold)

	if err := s.DB.WithContext(ctx).Create(&det).Error; err != nil {
		return nil, fmt.Errorf("create detection: %w", err)
	}

	s.Metrics.ObserveDetection(det.Status)
	s.Sink.Publish(ctx, events.DetectionEvent{Type: events.DetectionCreated, Detection: det})
	s.Log.Info("detection logged",
		zap.String("id", det.ID),
		zap.String("status", det.Status),
		zap.Stringp("case_id", det.CaseID))
	return &det, nil
}

func (s *Service) resolveMatch(ctx context.Context, in IngestInput) (*models.MissingPerson, *float64, error) {
	if in.CaseID != nil && *in.CaseID != "" {
		var person models.MissingPerson
		if err := s.DB.WithContext(ctx).Omit("encoding").First(&person, "case_id = ?", *in.CaseID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil, fmt.Errorf("%w: %s", ErrUnknownCase, *in.CaseID)
			}
			return nil, nil, err
		}
		return &person, in.Confidence, nil
	}

	if len(in.Snapshot) == 0 || !s.Detector.Available() {
		return nil, nil, nil
	}

	encodeCtx, cancel := context.WithTimeout(ctx, s.Timeout)
	observed := detector.EncodeOrNil(encodeCtx, s.Detector, in.Snapshot, s.Log)
	cancel()
	if observed == nil {
		return nil, nil, nil
	}
	return s.bestMatch(ctx, observed)
}

// bestMatch compares observed against every stored encoding of the same
// dimension and returns the most similar person.
func (s *Service) bestMatch(ctx context.Context, observed models.FaceEncoding) (*models.MissingPerson, *float64, error) {
	var candidates []models.MissingPerson
	if err := s.DB.WithContext(ctx).Where("encoding IS NOT NULL").Find(&candidates).Error; err != nil {
		return nil, nil, fmt.Errorf("load encodings: %w", err)
	}

	var (
		best      *models.MissingPerson
		bestScore float64
	)
	for i := range candidates {
		c := &candidates[i]
		if c.Encoding.Dim() != observed.Dim() {
			continue
		}
		if score := helper.CosineSimilarity(c.Encoding, observed); best == nil || score > bestScore {
			best, bestScore = c, score
		}
	}
	if best == nil {
		return nil, nil, nil
	}
	return best, &bestScore, nil
}

// UpdateStatus applies an operator decision. Moving a detection into
// verified dispatches the alert (once per detection) and then feeds the
// snapshot into continuous learning. Alert and learning failures are logged
// and never returned.
func (s *Service) UpdateStatus(ctx context.Context, id, status string) (*models.Detection, error) {
	status = strings.TrimSpace(status)
	if status == "" {
		return nil, ErrEmptyStatus
	}

	det, becameVerified, err := s.transition(ctx, id, status)
	if err != nil {
		return nil, err
	}

	if becameVerified && s.Learner != nil {
		if err := s.Learner.Learn(ctx, *det); err != nil {
			s.Log.Info("encoding not updated", zap.String("detection_id", det.ID), zap.Error(err))
		}
	}

	s.Sink.Publish(ctx, events.DetectionEvent{Type: events.DetectionUpdated, Detection: *det})
	return det, nil
}

func (s *Service) transition(ctx context.Context, id, status string) (*models.Detection, bool, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	var det models.Detection
	if err := s.DB.WithContext(ctx).Preload("Person").First(&det, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, ErrDetectionNotFound
		}
		return nil, false, err
	}

	becameVerified := status == models.StatusVerified && det.Status != models.StatusVerified
	if err := s.DB.WithContext(ctx).Model(&models.Detection{}).Where("id = ?", det.ID).Update("status", status).Error; err != nil {
		return nil, false, fmt.Errorf("update detection %s: %w", det.ID, err)
	}
	det.Status = status

	// The status is recorded before the alert goes out. If the sms_sent write
	// below fails the alert is not resent, because the detection is already
	// verified; the flag then under-reports a delivered alert.
	if becameVerified && !det.SMSSent && s.sendAlert(ctx, &det) {
		if err := s.DB.WithContext(ctx).Model(&models.Detection{}).Where("id = ?", det.ID).Update("sms_sent", true).Error; err != nil {
			s.Log.Error("alert sent but sms_sent not recorded", zap.String("detection_id", det.ID), zap.Error(err))
		} else {
			det.SMSSent = true
		}
	}
	return &det, becameVerified, nil
}

// sendAlert reports whether the alert was delivered.
func (s *Service) sendAlert(ctx context.Context, det *models.Detection) bool {
	if s.Notifier == nil || det.Person == nil || det.Person.Contact == nil || *det.Person.Contact == "" {
		return false
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	if err := s.Notifier.SendAlert(sendCtx, *det.Person.Contact, AlertMessage(*det)); err != nil {
		s.Metrics.ObserveAlert(metrics.ResultFailed)
		s.Log.Error("alert dispatch failed", zap.String("detection_id", det.ID), zap.Error(err))
		return false
	}
	s.Metrics.ObserveAlert(metrics.ResultSent)
	s.Log.Info("alert dispatched", zap.String("detection_id", det.ID))
	return true
}

// AlertMessage renders the text sent to a person's contact.
func AlertMessage(det models.Detection) string {
	name := "A missing person"
	if det.PersonName != nil {
		name = *det.PersonName
	}
	msg := fmt.Sprintf("ALERT: %s", name)
	if det.CaseID != nil {
		msg += fmt.Sprintf(" (case %s)", *det.CaseID)
	}
	msg += " has been sighted"
	if det.Location != nil && *det.Location != "" {
		msg += " at " + *det.Location
	}
	msg += " on " + det.Timestamp.UTC().Format("2006-01-02 15:04 MST") + "."
	if det.Confidence != nil {
		msg += fmt.Sprintf(" Match confidence %.0f%%.", *det.Confidence*100)
	}
	return msg
}

// Get returns one detection.
func (s *Service) Get(ctx context.Context, id string) (*models.Detection, error) {
	var det models.Detection
	if err := s.DB.WithContext(ctx).First(&det, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDetectionNotFound
		}
		return nil, err
	}
	return &det, nil
}

// List returns the newest detections, optionally ranked by distance to near.
func (s *Service) List(ctx context.Context, limit int, near *helper.Coordinate) ([]models.Detection, error) {
	if limit <= 0 {
		limit = 50
	}
	var dets []models.Detection
	if err := s.DB.WithContext(ctx).Order("timestamp DESC").Limit(limit).Find(&dets).Error; err != nil {
		return nil, err
	}
	if near != nil {
		dets = helper.RankByDistance(*near, dets, models.Detection.Position)
	}
	return dets, nil
}
