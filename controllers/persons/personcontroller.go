// Package persons serves missing-person case registration and lookup.
package persons

import (
	"BUREAU/helper"
	"BUREAU/middleware"
	"BUREAU/models"
	"BUREAU/services/detector"
	"BUREAU/services/storage"
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	maxPhotoBytes      = 10 << 20
	caseIDAttempts     = 20
	caseIDLow          = 1000
	caseIDHigh         = 9999
	registrationPrefix = "ID"
)

var errNoUniqueCaseID = errors.New("could not generate unique case ID")

type Controller struct {
	DB       *gorm.DB
	Store    storage.ObjectStore
	Detector detector.Detector
	Log      *zap.Logger
	Timeout  time.Duration
}

func (ctl *Controller) ListHandler(c *gin.Context) {
	ref, err := helper.ParseReference(c.Query("lat"), c.Query("lon"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var persons []models.MissingPerson
	if err := ctl.DB.WithContext(c.Request.Context()).Order("registered_at desc").Find(&persons).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if ref != nil {
		persons = helper.RankByDistance(*ref, persons, models.MissingPerson.Position)
	}
	c.JSON(http.StatusOK, persons)
}

func (ctl *Controller) GetHandler(c *gin.Context) {
	person, ok := ctl.find(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, person)
}

func (ctl *Controller) RegisterHandler(c *gin.Context) {
	// 1. Who is registering
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid user session"})
		return
	}

	// 2. Validate the form
	name := strings.TrimSpace(c.PostForm("name"))
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}
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

	person := models.MissingPerson{
		Name:           name,
		Age:            optional(c.PostForm("age")),
		Contact:        optional(c.PostForm("contact")),
		Priority:       c.DefaultPostForm("priority", models.PriorityNormal),
		Latitude:       latitude,
		Longitude:      longitude,
		RegisteredByID: &user.ID,
	}

	// 3. Allocate a case id
	ctx := c.Request.Context()
	caseID, err := ctl.uniqueCaseID(ctx)
	if err != nil {
		ctl.Log.Error("case id allocation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not generate unique case ID"})
		return
	}
	person.CaseID = caseID

	// 4. Photo: store it and try to derive the first encoding
	if file, err := c.FormFile("photo"); err == nil {
		image, err := helper.ReadUpload(file, maxPhotoBytes)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		putCtx, cancel := context.WithTimeout(ctx, ctl.Timeout)
		url, err := ctl.Store.Put(putCtx, image, photoName(caseID, file.Filename), helper.UploadContentType(file))
		cancel()
		if err != nil {
			ctl.Log.Error("photo upload failed", zap.String("case_id", caseID), zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to store photo"})
			return
		}
		person.PhotoURL = &url

		encodeCtx, cancel := context.WithTimeout(ctx, ctl.Timeout)
		person.Encoding = detector.EncodeOrNil(encodeCtx, ctl.Detector, image, ctl.Log)
		cancel()
	} else if !errors.Is(err, http.ErrMissingFile) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid photo upload"})
		return
	}

	// 5. Save
	if err := ctl.DB.WithContext(ctx).Create(&person).Error; err != nil {
		ctl.Log.Error("failed to save person", zap.String("case_id", caseID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register person"})
		return
	}

	ctl.Log.Info("person registered",
		zap.String("case_id", person.CaseID),
		zap.Bool("has_encoding", person.HasEncoding()),
		zap.String("registered_by", user.Username))
	c.JSON(http.StatusCreated, person)
}

func (ctl *Controller) DeleteHandler(c *gin.Context) {
	person, ok := ctl.find(c)
	if !ok {
		return
	}

	// The photo is released first; a failure there is logged, not fatal.
	if person.PhotoURL != nil {
		delCtx, cancel := context.WithTimeout(c.Request.Context(), ctl.Timeout)
		if err := ctl.Store.Delete(delCtx, *person.PhotoURL); err != nil {
			ctl.Log.Warn("failed to delete photo", zap.String("url", *person.PhotoURL), zap.Error(err))
		}
		cancel()
	}

	if err := ctl.DB.WithContext(c.Request.Context()).Delete(&person).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Person deleted"})
}

func (ctl *Controller) UpdatePriorityHandler(c *gin.Context) {
	priority := strings.TrimSpace(c.PostForm("priority"))
	if priority == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "priority is required"})
		return
	}

	person, ok := ctl.find(c)
	if !ok {
		return
	}

	if err := ctl.DB.WithContext(c.Request.Context()).Model(&person).Update("priority", priority).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	person.Priority = priority
	c.JSON(http.StatusOK, person)
}

// find loads the :id person and writes the error response itself.
func (ctl *Controller) find(c *gin.Context) (models.MissingPerson, bool) {
	var person models.MissingPerson
	err := ctl.DB.WithContext(c.Request.Context()).First(&person, "id = ?", c.Param("id")).Error
	switch {
	case err == nil:
		return person, true
	case models.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": "Person not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
	return person, false
}

func (ctl *Controller) uniqueCaseID(ctx context.Context) (string, error) {
	for i := 0; i < caseIDAttempts; i++ {
		candidate := helper.GenerateCaseID(registrationPrefix, caseIDLow, caseIDHigh)
		var count int64
		if err := ctl.DB.WithContext(ctx).Model(&models.MissingPerson{}).Where("case_id = ?", candidate).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return candidate, nil
		}
	}
	return "", errNoUniqueCaseID
}

// photoName is <case>.<ext> with the extension taken from the upload.
func photoName(caseID, filename string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if ext == "" {
		ext = "jpg"
	}
	return caseID + "." + ext
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
