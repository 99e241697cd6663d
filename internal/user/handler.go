package user

import (
	"net/http"
	"strconv"

	"second-brain/internal/domain"
	"second-brain/internal/errors"
	"second-brain/internal/middleware"
	"second-brain/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Handler handles HTTP requests for users
type Handler struct {
	service Service
	log     zerolog.Logger
}

// NewHandler creates a new user handler
func NewHandler(service Service, log zerolog.Logger) *Handler {
	return &Handler{service: service, log: log}
}

// FormLogin represents login form data
type FormLogin struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// FormRegister represents registration form data
type FormRegister struct {
	Username string `json:"username" binding:"required,max=64"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type FormRefresh struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type FormGoogleCallback struct {
	Code string `json:"code" binding:"required"`
}

// RegisterRoutes mounts the auth endpoints on group; protected is the
// middleware guarding the session endpoints.
func (h *Handler) RegisterRoutes(group *gin.RouterGroup, protected gin.HandlerFunc) {
	group.POST("/register", h.Register)
	group.POST("/login", h.Login)
	group.POST("/refresh", h.RefreshToken)
	group.GET("/google", h.GoogleURL)
	group.POST("/google/callback", h.GoogleCallback)

	group.GET("/me", protected, h.GetProfile)
	group.POST("/logout", protected, h.Logout)
	group.POST("/logout-all", protected, h.LogoutAll)
}

// Register handles user registration
func (h *Handler) Register(c *gin.Context) {
	var form FormRegister
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	user := &User{
		Username: form.Username,
		Email:    form.Email,
		Password: form.Password,
	}
	if err := h.service.Register(c.Request.Context(), user); err != nil {
		c.Error(err)
		return
	}

	h.respondWithSession(c, http.StatusCreated, user, "Account created")
}

// Login handles user login
func (h *Handler) Login(c *gin.Context) {
	var form FormLogin
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	user, err := h.service.Login(c.Request.Context(), form.Email, form.Password)
	if err != nil {
		c.Error(err)
		return
	}

	h.respondWithSession(c, http.StatusOK, user, "")
}

func (h *Handler) RefreshToken(c *gin.Context) {
	var form FormRefresh
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(errors.Unauthorized("Refresh token is missing", err))
		return
	}

	_, pair, err := h.service.Refresh(c.Request.Context(), form.RefreshToken)
	if err != nil {
		c.Error(err)
		return
	}

	utils.Respond(c, http.StatusOK, pair, "")
}

// GetProfile handles getting the current user's profile
func (h *Handler) GetProfile(c *gin.Context) {
	user, err := h.service.GetUserByID(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		c.Error(err)
		return
	}

	utils.Respond(c, http.StatusOK, gin.H{"user": user.ToDomain()}, "")
}

// Logout ends the caller's session. Tokens are stateless, so only the
// client's copy is discarded.
func (h *Handler) Logout(c *gin.Context) {
	h.log.Debug().Str("user_id", middleware.UserID(c)).Msg("logout")
	utils.Message(c, http.StatusOK, "Logged out")
}

// LogoutAll revokes every token of the user by bumping the token version.
func (h *Handler) LogoutAll(c *gin.Context) {
	if err := h.service.IncreaseTokenVersion(c.Request.Context(), middleware.UserID(c)); err != nil {
		c.Error(err)
		return
	}
	utils.Message(c, http.StatusOK, "Logged out from all devices")
}

func (h *Handler) GoogleURL(c *gin.Context) {
	state := "redirect"
	if popup, _ := strconv.ParseBool(c.Query("popup")); popup {
		state = "popup"
	}

	url, err := h.service.GoogleAuthURL(state)
	if err != nil {
		c.Error(err)
		return
	}

	if c.Query("response_type") == "json" {
		utils.Respond(c, http.StatusOK, gin.H{"url": url}, "")
		return
	}
	c.Redirect(http.StatusFound, url)
}

func (h *Handler) GoogleCallback(c *gin.Context) {
	var form FormGoogleCallback
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	user, err := h.service.LoginWithGoogle(c.Request.Context(), form.Code)
	if err != nil {
		c.Error(err)
		return
	}

	h.respondWithSession(c, http.StatusOK, user, "")
}

func (h *Handler) respondWithSession(c *gin.Context, status int, user *User, message string) {
	pair, err := h.service.IssueTokens(user)
	if err != nil {
		c.Error(err)
		return
	}

	utils.Respond(c, status, domain.AuthResponse{
		User:         user.ToDomain(),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, message)
}
