// Package detections serves the detection log, field ingestion, operator
// review and the live feed.
package detections

import (
	"BUREAU/helper"
	"BUREAU/services/live"
	"BUREAU/services/tracking"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultLimit     = 50
	maxLimit         = 500
	recentLimit      = 10
	maxSnapshotBytes = 10 << 20
)

type Controller struct {
	Tracking *tracking.Service
	Hub      *live.Hub
	Log      *zap.Logger
}

func (ctl *Controller) ListHandler(c *gin.Context) {
	limit := defaultLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxLimit)
	}

	ref, err := helper.ParseReference(c.Query("lat"), c.Query("lon"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	dets, err := ctl.Tracking.List(c.Request.Context(), limit, ref)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, dets)
}

func (ctl *Controller) RecentHandler(c *gin.Context) {
	dets, err := ctl.Tracking.List(c.Request.Context(), recentLimit, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, dets)
}

func (ctl *Controller) GetHandler(c *gin.Context) {
	det, err := ctl.Tracking.Get(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, tracking.ErrDetectionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Detection not found"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, det)
}

// IngestHandler logs a sighting reported by a field unit (multipart form).
func (ctl *Controller) IngestHandler(c *gin.Context) {
	// 1. Coordinates and match hints
	latitude, err := helper.ParseOptionalFloat(c.PostForm("latitude"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "latitude: " + err.Error()})
		return
	}
	longitude, err := helper.ParseOptionalFloat(c.PostForm("longitude"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "longitude: " + err.Error()})
		return
	}
	confidence, err := helper.ParseOptionalFloat(c.PostForm("confidence"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "confidence: " + err.Error()})
		return
	}

	in := tracking.IngestInput{
		CameraID:   c.PostForm("camera_id"),
		Location:   c.PostForm("location"),
		Latitude:   latitude,
		Longitude:  longitude,
		Confidence: confidence,
	}
	if caseID := c.PostForm("case_id"); caseID != "" {
		in.CaseID = &caseID
	}

	// 2. Optional snapshot
	if file, err := c.FormFile("snapshot"); err == nil {
		in.Snapshot, err = helper.ReadUpload(file, maxSnapshotBytes)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		in.SnapshotType = helper.UploadContentType(file)
	} else if !errors.Is(err, http.ErrMissingFile) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid snapshot upload"})
		return
	}

	// 3. Log it
	det, err := ctl.Tracking.Ingest(c.Request.Context(), in)
	switch {
	case errors.Is(err, tracking.ErrUnknownCase):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case errors.Is(err, tracking.ErrInvalidConfidence):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		ctl.Log.Error("detection ingest failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to log detection"})
		return
	}
	c.JSON(http.StatusCreated, det)
}

// UpdateStatusHandler applies ?status=<value>. Alert and learning outcomes
// never change the response.
func (ctl *Controller) UpdateStatusHandler(c *gin.Context) {
	det, err := ctl.Tracking.UpdateStatus(c.Request.Context(), c.Param("id"), c.Query("status"))
	switch {
	case errors.Is(err, tracking.ErrEmptyStatus):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, tracking.ErrDetectionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Detection not found"})
		return
	case err != nil:
		ctl.Log.Error("status update failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update status"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Status updated", "detection": det})
}

func (ctl *Controller) LiveHandler(c *gin.Context) {
	ctl.Hub.Serve(c.Writer, c.Request)
}
