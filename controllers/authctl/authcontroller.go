// Package authctl serves login, token refresh and user administration.
package authctl

import (
	"BUREAU/auth"
	"BUREAU/config"
	"BUREAU/middleware"
	"BUREAU/models"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Controller struct {
	DB     *gorm.DB
	Issuer *auth.TokenIssuer
	Log    *zap.Logger
}

type LoginPayload struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type CreateUserPayload struct {
	Username       string `json:"username" binding:"required"`
	Password       string `json:"password" binding:"required,min=6"`
	Role           string `json:"role"`
	ClearanceLevel int    `json:"clearance_level"`
}

func (ctl *Controller) LoginHandler(c *gin.Context) {
	// 1. Validate input
	var payload LoginPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}

	// 2. Look up the user; unknown user and wrong password look the same
	var user models.User
	err := ctl.DB.WithContext(c.Request.Context()).Where("username = ?", payload.Username).First(&user).Error
	if err != nil || !auth.CheckPassword(user.PasswordHash, payload.Password) {
		if err != nil && !models.IsNotFound(err) {
			ctl.Log.Error("login lookup failed", zap.Error(err))
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	// 3. Issue tokens
	ctl.respondWithTokens(c, user)
}

func (ctl *Controller) RefreshHandler(c *gin.Context) {
	refreshToken := c.Query("refresh_token")
	if refreshToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "refresh_token is required"})
		return
	}

	claims, err := ctl.Issuer.Parse(refreshToken, config.TokenTypeRefresh)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid refresh token"})
		return
	}

	var user models.User
	if err := ctl.DB.WithContext(c.Request.Context()).First(&user, "id = ?", claims.Subject).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not found"})
		return
	}

	ctl.respondWithTokens(c, user)
}

func (ctl *Controller) respondWithTokens(c *gin.Context, user models.User) {
	pair, err := ctl.Issuer.Issue(user)
	if err != nil {
		ctl.Log.Error("failed to issue tokens", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not issue token"})
		return
	}
	c.JSON(http.StatusOK, pair)
}

func (ctl *Controller) MeHandler(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid user session"})
		return
	}
	c.JSON(http.StatusOK, user)
}

func (ctl *Controller) CreateUserHandler(c *gin.Context) {
	// 1. Validate input
	var payload CreateUserPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}

	// 2. Create
	user, err := CreateUser(ctl.DB.WithContext(c.Request.Context()), payload)
	switch {
	case errors.Is(err, ErrUsernameTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "Username already exists"})
		return
	case errors.Is(err, ErrInvalidRole):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		ctl.Log.Error("failed to create user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}

	c.JSON(http.StatusCreated, user)
}

func (ctl *Controller) ListUsersHandler(c *gin.Context) {
	var users []models.User
	if err := ctl.DB.WithContext(c.Request.Context()).Order("created_at").Find(&users).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, users)
}

func (ctl *Controller) DeleteUserHandler(c *gin.Context) {
	current, _ := middleware.CurrentUser(c)
	id := c.Param("id")
	if id == current.ID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot delete your own account"})
		return
	}

	result := ctl.DB.WithContext(c.Request.Context()).Delete(&models.User{}, "id = ?", id)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": result.Error.Error()})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User deleted"})
}

var (
	ErrUsernameTaken = errors.New("username already exists")
	ErrInvalidRole   = errors.New("role must be admin or operator")
)

// CreateUser hashes the password and inserts the user. Shared by the admin
// endpoint and the "user create" command.
func CreateUser(db *gorm.DB, payload CreateUserPayload) (*models.User, error) {
	payload.Username = strings.TrimSpace(payload.Username)
	switch payload.Role {
	case "":
		payload.Role = models.RoleOperator
	case models.RoleAdmin, models.RoleOperator:
	default:
		return nil, ErrInvalidRole
	}

	var count int64
	if err := db.Model(&models.User{}).Where("username = ?", payload.Username).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrUsernameTaken
	}

	hash, err := auth.HashPassword(payload.Password)
	if err != nil {
		return nil, err
	}

	user := models.User{
		Username:       payload.Username,
		PasswordHash:   hash,
		Role:           payload.Role,
		ClearanceLevel: payload.ClearanceLevel,
	}
	if err := db.Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// SeedAdmin creates the "admin" account when it does not exist yet.
func SeedAdmin(db *gorm.DB, password string, log *zap.Logger) error {
	if password == "" {
		return nil
	}
	_, err := CreateUser(db, CreateUserPayload{
		Username:       "admin",
		Password:       password,
		Role:           models.RoleAdmin,
		ClearanceLevel: 5,
	})
	if errors.Is(err, ErrUsernameTaken) {
		return nil
	}
	if err == nil {
		log.Info("seeded default admin account")
	}
	return err
}
