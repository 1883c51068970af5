package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"campus_shuttle/internal/backend"
	"campus_shuttle/internal/middleware"
	"campus_shuttle/internal/models"
)

type AuthController struct {
	accounts AccountStore
	tokens   *middleware.Tokens
	log      *logrus.Entry
}

func NewAuthController(accounts AccountStore, tokens *middleware.Tokens, log *logrus.Entry) *AuthController {
	if log == nil {
		log = logrus.WithField("component", "auth")
	}
	return &AuthController{accounts: accounts, tokens: tokens, log: log}
}

type signupInput struct {
	Email    string            `json:"email" binding:"required,email"`
	Password string            `json:"password" binding:"required,min=6"`
	Data     map[string]string `json:"data"`
}

type loginInput struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// SignupUser creates an account and signs it in.
func (a *AuthController) SignupUser(c *gin.Context) {
	var input signupInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	role := models.RoleStudent
	if raw := input.Data["user_type"]; raw != "" {
		parsed, ok := models.ParseRole(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_type"})
			return
		}
		role = parsed
	}

	hashedPassword, err := hashPassword(input.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not hash password"})
		return
	}

	user := models.User{
		Email:         input.Email,
		Password:      hashedPassword,
		UserType:      role,
		FullName:      strings.TrimSpace(input.Data["full_name"]),
		Phone:         strings.TrimSpace(input.Data["phone"]),
		LicenseNumber: strings.TrimSpace(input.Data["license_number"]),
	}
	if err := a.accounts.CreateAccount(c.Request.Context(), &user); err != nil {
		if errors.Is(err, backend.ErrConflict) {
			c.JSON(http.StatusConflict, gin.H{"error": "email already in use"})
			return
		}
		respondError(c, a.log, err)
		return
	}

	a.log.WithFields(logrus.Fields{"user_id": user.ID, "user_type": role}).Info("Account created")
	a.respondSession(c, http.StatusCreated, &user)
}

func (a *AuthController) LoginUser(c *gin.Context) {
	var body loginInput
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := a.accounts.AccountByEmail(c.Request.Context(), body.Email)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid login credentials"})
			return
		}
		respondError(c, a.log, err)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(body.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid login credentials"})
		return
	}
	a.respondSession(c, http.StatusOK, user)
}

// RefreshToken issues a fresh token for a still valid one.
func (a *AuthController) RefreshToken(c *gin.Context) {
	user, ok := a.currentUser(c)
	if !ok {
		return
	}
	a.respondSession(c, http.StatusOK, user)
}

// CurrentUser returns the signed-in user.
func (a *AuthController) CurrentUser(c *gin.Context) {
	user, ok := a.currentUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sessionUser(user))
}

func (a *AuthController) currentUser(c *gin.Context) (*models.User, bool) {
	user, err := a.accounts.AccountByID(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "account no longer exists"})
		} else {
			respondError(c, a.log, err)
		}
		return nil, false
	}
	return user, true
}

func (a *AuthController) respondSession(c *gin.Context, status int, user *models.User) {
	token, expires, err := a.tokens.GenerateToken(user.ID, user.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not generate token"})
		return
	}
	c.JSON(status, backend.Session{
		AccessToken: token,
		ExpiresAt:   expires,
		User:        sessionUser(user),
	})
}

func sessionUser(u *models.User) backend.User {
	return backend.User{ID: u.ID, Email: u.Email, Metadata: u.Metadata()}
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
