// Package importer periodically pulls missing-person records from external
// humanitarian feeds and inserts the ones not seen before.
package importer

import (
	"BUREAU/helper"
	"BUREAU/metrics"
	"BUREAU/models"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ExternalRecord struct {
	CaseID    string
	Name      string
	Age       string
	Priority  string
	Contact   string
	Latitude  *float64
	Longitude *float64
}

// Source is one external feed.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]ExternalRecord, error)
}

type Importer struct {
	db      *gorm.DB
	sources []Source
	timeout time.Duration
	metrics *metrics.Metrics
	log     *zap.Logger

	scheduler *gocron.Scheduler
}

func New(db *gorm.DB, sources []Source, timeout time.Duration, m *metrics.Metrics, log *zap.Logger) *Importer {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Importer{db: db, sources: sources, timeout: timeout, metrics: m, log: log}
}

// RunOnce polls every source and returns how many new persons were inserted.
// A failing source does not stop the others.
func (im *Importer) RunOnce(ctx context.Context) (int, error) {
	var (
		total int
		errs  []error
	)
	for _, src := range im.sources {
		n, err := im.importSource(ctx, src)
		total += n
		if err != nil {
			im.log.Error("external import failed", zap.String("source", src.Name()), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
		}
	}
	im.metrics.ObserveImported(total)
	return total, errors.Join(errs...)
}

func (im *Importer) importSource(ctx context.Context, src Source) (int, error) {
	im.log.Info("fetching external records", zap.String("source", src.Name()))

	fetchCtx, cancel := context.WithTimeout(ctx, im.timeout)
	records, err := src.Fetch(fetchCtx)
	cancel()
	if err != nil {
		return 0, err
	}

	inserted := 0
	for _, rec := range records {
		if rec.CaseID == "" || rec.Name == "" {
			im.log.Warn("skipping incomplete external record", zap.String("source", src.Name()), zap.String("case_id", rec.CaseID))
			continue
		}

		// Existing case ids are never updated.
		var count int64
		if err := im.db.WithContext(ctx).Model(&models.MissingPerson{}).Where("case_id = ?", rec.CaseID).Count(&count).Error; err != nil {
			return inserted, err
		}
		if count > 0 {
			continue
		}

		person := models.MissingPerson{
			CaseID:    rec.CaseID,
			Name:      rec.Name,
			Priority:  rec.Priority,
			Latitude:  rec.Latitude,
			Longitude: rec.Longitude,
		}
		if rec.Age != "" {
			person.Age = &rec.Age
		}
		if rec.Contact != "" {
			person.Contact = &rec.Contact
		}
		if err := im.db.WithContext(ctx).Create(&person).Error; err != nil {
			return inserted, fmt.Errorf("insert %s: %w", rec.CaseID, err)
		}
		inserted++
		im.log.Info("imported external record", zap.String("source", src.Name()), zap.String("case_id", rec.CaseID))
	}
	return inserted, nil
}

// Start schedules RunOnce every interval, first run immediately. Overlapping
// runs are skipped.
func (im *Importer) Start(ctx context.Context, interval time.Duration) error {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	if _, err := s.Every(interval).Do(func() {
		if _, err := im.RunOnce(ctx); err != nil {
			im.log.Warn("external import pass finished with errors", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule external import: %w", err)
	}

	s.StartAsync()
	im.scheduler = s
	im.log.Info("external import scheduled", zap.Duration("interval", interval))
	return nil
}

func (im *Importer) Stop() {
	if im.scheduler != nil {
		im.scheduler.Stop()
	}
}

// MockSource simulates a humanitarian feed: every fetch yields one new
// high-priority record somewhere around Los Angeles.
type MockSource struct {
	Delay time.Duration
}

func (MockSource) Name() string { return "mock-humanitarian" }

func (m MockSource) Fetch(ctx context.Context) ([]ExternalRecord, error) {
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	lat := 34.0522 + (rand.Float64()*2 - 1)
	lon := -118.2437 + (rand.Float64()*2 - 1)
	return []ExternalRecord{{
		CaseID:    helper.GenerateCaseID("EXT", 10000, 99999),
		Name:      "Jane Doe (External Database Match)",
		Age:       "20-30",
		Priority:  models.PriorityHigh,
		Contact:   "external_api@example.com",
		Latitude:  &lat,
		Longitude: &lon,
	}}, nil
}
