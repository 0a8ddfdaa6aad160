package accounts

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/auth"
	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/logging"
)

// KeyIssuer issues and revokes API keys for accounts.
type KeyIssuer interface {
	Issue(ctx context.Context, accountNumber, role string) (string, error)
	Revoke(ctx context.Context, accountNumber string) error
}

// Handler provides HTTP endpoints for account holders
type Handler struct {
	service *Service
	keys    KeyIssuer
}

// NewHandler creates a new account handler
func NewHandler(service *Service, keys KeyIssuer) *Handler {
	return &Handler{service: service, keys: keys}
}

// RegisterPublicRoutes sets up unauthenticated account routes
func (h *Handler) RegisterPublicRoutes(r *gin.RouterGroup) {
	r.POST("/users/register", h.Register)
	r.POST("/users/login", h.Login)
}

// RegisterRoutes sets up routes that need an authenticated account
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/users/current", h.Current)
	r.POST("/users/logout", h.Logout)
	r.POST("/users/contacts", h.AddContact)
}

// Register handles POST /users/register
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Invalid JSON body"})
		return
	}
	req.Role = RoleUser

	a, err := h.service.Register(c.Request.Context(), req)
	if err != nil {
		WriteError(c, err)
		return
	}
	key, err := h.keys.Issue(c.Request.Context(), a.AccountNumber, string(a.Role))
	if err != nil {
		logging.L(c.Request.Context()).Error("failed to issue API key", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "Account created but key issuance failed"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"user":    a,
		"apiKey":  key,
		"warning": "Store this key securely. It will not be shown again.",
	})
}

// LoginRequest is the body of POST /users/login
type LoginRequest struct {
	AccountNumber string `json:"accountNumber" binding:"required"`
	PIN           string `json:"pin" binding:"required"`
}

// Login handles POST /users/login
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Account number and PIN are required"})
		return
	}

	a, err := h.service.Authenticate(c.Request.Context(), req.AccountNumber, req.PIN)
	if err != nil {
		WriteError(c, err)
		return
	}
	key, err := h.keys.Issue(c.Request.Context(), a.AccountNumber, string(a.Role))
	if err != nil {
		logging.L(c.Request.Context()).Error("failed to issue API key", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "Login failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": a, "apiKey": key})
}

// Logout handles POST /users/logout
func (h *Handler) Logout(c *gin.Context) {
	if err := h.keys.Revoke(c.Request.Context(), Caller(c)); err != nil {
		logging.L(c.Request.Context()).Error("failed to revoke keys", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "Logout failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// Current handles GET /users/current
func (h *Handler) Current(c *gin.Context) {
	a, err := h.service.Get(c.Request.Context(), Caller(c))
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": a})
}

// AddContact handles POST /users/contacts
func (h *Handler) AddContact(c *gin.Context) {
	var req Contact
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Invalid JSON body"})
		return
	}

	a, err := h.service.AddContact(c.Request.Context(), Caller(c), req)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"savedContacts": a.SavedContacts})
}

// Caller returns the authenticated account number set by the auth middleware.
func Caller(c *gin.Context) string {
	return auth.GetAuthenticatedAccount(c)
}

// WriteError maps account errors onto HTTP responses.
func WriteError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": err.Error()})
	case errors.Is(err, ErrIncorrectPIN):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "incorrect_pin", "message": "Incorrect PIN"})
	case errors.Is(err, ErrAccountBlocked):
		c.JSON(http.StatusForbidden, gin.H{"error": "account_blocked", "message": "Account is blocked"})
	case errors.Is(err, ErrAccountNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Account not found"})
	case errors.Is(err, ErrAccountExists):
		c.JSON(http.StatusConflict, gin.H{"error": "account_exists", "message": "Account number already in use"})
	case errors.Is(err, ErrEmailExists):
		c.JSON(http.StatusConflict, gin.H{"error": "email_exists", "message": "Email already registered"})
	case errors.Is(err, ErrContactExists):
		c.JSON(http.StatusConflict, gin.H{"error": "contact_exists", "message": "Contact already saved"})
	default:
		logging.L(c.Request.Context()).Error("account operation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "Internal server error"})
	}
}
