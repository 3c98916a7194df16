// Package routes wires handlers to URLs.
package routes

import (
	"BUREAU/auth"
	"BUREAU/controllers/authctl"
	"BUREAU/controllers/dashboard"
	"BUREAU/controllers/detections"
	"BUREAU/controllers/persons"
	"BUREAU/logger"
	"BUREAU/metrics"
	"BUREAU/middleware"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	ServiceName = "Bureau of Identification API"
	Version     = "2.0.0"
)

type Deps struct {
	DB          *gorm.DB
	Issuer      *auth.TokenIssuer
	Metrics     *metrics.Metrics
	Log         *zap.Logger
	FrontendURL string
	// UploadDir is served under /uploads when objects are kept locally.
	UploadDir          string
	LoginRatePerMinute int

	Auth       *authctl.Controller
	Persons    *persons.Controller
	Detections *detections.Controller
	Dashboard  *dashboard.Controller
}

func Setup(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logger.GinLogger(d.Log))

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{d.FrontendURL, "http://localhost:5173", "http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	if d.UploadDir != "" {
		r.Static("/uploads", d.UploadDir)
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"service": ServiceName, "version": Version, "status": "online"})
	})
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	requireUser := middleware.JWT(d.Issuer, d.DB)
	requireAdmin := middleware.RequireAdmin()

	// 1. Auth
	authGroup := r.Group("/auth")
	{
		authGroup.POST("/login", middleware.RateLimit(d.LoginRatePerMinute), d.Auth.LoginHandler)
		authGroup.POST("/refresh", d.Auth.RefreshHandler)
		authGroup.GET("/me", requireUser, d.Auth.MeHandler)
		authGroup.POST("/users", requireUser, requireAdmin, d.Auth.CreateUserHandler)
		authGroup.GET("/users", requireUser, requireAdmin, d.Auth.ListUsersHandler)
		authGroup.DELETE("/users/:id", requireUser, requireAdmin, d.Auth.DeleteUserHandler)
	}

	// 2. Persons
	personGroup := r.Group("/persons", requireUser)
	{
		personGroup.GET("", d.Persons.ListHandler)
		personGroup.POST("", d.Persons.RegisterHandler)
		personGroup.GET("/:id", d.Persons.GetHandler)
		personGroup.DELETE("/:id", requireAdmin, d.Persons.DeleteHandler)
		personGroup.PATCH("/:id/priority", d.Persons.UpdatePriorityHandler)
	}

	// 3. Detections
	detectionGroup := r.Group("/detections", requireUser)
	{
		detectionGroup.GET("", d.Detections.ListHandler)
		detectionGroup.POST("", d.Detections.IngestHandler)
		detectionGroup.GET("/recent", d.Detections.RecentHandler)
		detectionGroup.GET("/live", d.Detections.LiveHandler)
		detectionGroup.GET("/:id", d.Detections.GetHandler)
		detectionGroup.PATCH("/:id/status", d.Detections.UpdateStatusHandler)
	}

	// 4. Dashboard
	dashboardGroup := r.Group("/dashboard", requireUser)
	{
		dashboardGroup.GET("/stats", d.Dashboard.StatsHandler)
		dashboardGroup.GET("/health", d.Dashboard.HealthHandler)
	}

	return r
}
