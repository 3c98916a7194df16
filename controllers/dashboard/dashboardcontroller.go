// Package dashboard serves the summary counters and system health.
package dashboard

import (
	"BUREAU/models"
	"BUREAU/services/storage"
	"context"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/shirou/gopsutil/v3/disk"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const statsKey = "stats"

type Stats struct {
	TotalRegistered  int64 `json:"total_registered"`
	ActiveMatches    int64 `json:"active_matches"`
	AlertsDispatched int64 `json:"alerts_dispatched"`
	DailyNewRecords  int64 `json:"daily_new_records"`
}

type Health struct {
	DBConnected      bool    `json:"db_connected"`
	StorageConnected bool    `json:"storage_connected"`
	APILatencyMs     float64 `json:"api_latency_ms"`
	StorageUsedPct   float64 `json:"storage_used_pct"`
}

type Controller struct {
	DB        *gorm.DB
	Store     storage.ObjectStore
	UploadDir string
	Log       *zap.Logger

	cache *cache.Cache
}

// New builds the controller. A ttl of zero or less disables the stats cache.
func New(db *gorm.DB, store storage.ObjectStore, uploadDir string, ttl time.Duration, log *zap.Logger) *Controller {
	ctl := &Controller{
		DB:        db,
		Store:     store,
		UploadDir: uploadDir,
		Log:       log,
	}
	if ttl > 0 {
		ctl.cache = cache.New(ttl, 2*ttl)
	}
	return ctl
}

func (ctl *Controller) StatsHandler(c *gin.Context) {
	if ctl.cache != nil {
		if cached, ok := ctl.cache.Get(statsKey); ok {
			c.JSON(http.StatusOK, cached)
			return
		}
	}

	stats, err := ctl.Stats(c.Request.Context(), time.Now())
	if err != nil {
		ctl.Log.Error("failed to compute dashboard stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load stats"})
		return
	}

	if ctl.cache != nil {
		ctl.cache.SetDefault(statsKey, stats)
	}
	c.JSON(http.StatusOK, stats)
}

// Stats runs the four counters concurrently.
func (ctl *Controller) Stats(ctx context.Context, now time.Time) (Stats, error) {
	var s Stats
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return ctl.DB.WithContext(ctx).Model(&models.MissingPerson{}).Count(&s.TotalRegistered).Error
	})
	g.Go(func() error {
		return ctl.DB.WithContext(ctx).Model(&models.Detection{}).
			Where("status = ?", models.StatusPending).Count(&s.ActiveMatches).Error
	})
	g.Go(func() error {
		return ctl.DB.WithContext(ctx).Model(&models.Detection{}).
			Where("sms_sent = ?", true).Count(&s.AlertsDispatched).Error
	})
	g.Go(func() error {
		return ctl.DB.WithContext(ctx).Model(&models.MissingPerson{}).
			Where("registered_at >= ?", now.Add(-24*time.Hour)).Count(&s.DailyNewRecords).Error
	})

	if err := g.Wait(); err != nil {
		return Stats{}, err
	}
	return s, nil
}

func (ctl *Controller) HealthHandler(c *gin.Context) {
	var h Health

	// 1. Database round trip
	start := time.Now()
	if sqlDB, err := ctl.DB.DB(); err == nil {
		h.DBConnected = sqlDB.PingContext(c.Request.Context()) == nil
	}
	h.APILatencyMs = math.Round(float64(time.Since(start).Microseconds())/100) / 10

	// 2. Object store and disk
	h.StorageConnected = ctl.Store != nil && ctl.Store.Remote()
	if usage, err := disk.UsageWithContext(c.Request.Context(), ctl.UploadDir); err == nil {
		h.StorageUsedPct = math.Round(usage.UsedPercent*10) / 10
	} else {
		ctl.Log.Debug("disk usage unavailable", zap.String("dir", ctl.UploadDir), zap.Error(err))
	}

	c.JSON(http.StatusOK, h)
}
