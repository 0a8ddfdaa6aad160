package admin

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/accounts"
	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/auth"
	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/logging"
	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/pagination"
	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/transactions"
	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/validation"
)

// Handler provides admin HTTP endpoints.
type Handler struct {
	accounts AccountService
	stats    StatsService
	ledger   LedgerService
	feed     FeedHandler
}

// NewHandler creates a new admin handler.
func NewHandler(accts AccountService, stats StatsService, ledger LedgerService) *Handler {
	return &Handler{accounts: accts, stats: stats, ledger: ledger}
}

// WithFeed enables the live WebSocket feed.
func (h *Handler) WithFeed(feed FeedHandler) *Handler {
	h.feed = feed
	return h
}

// RegisterRoutes sets up admin routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/admin/stats/region", h.regionStats)
	r.GET("/admin/stats/user/:id", validation.AccountParamMiddleware("id"), h.userStats)
	r.GET("/admin/transactions", h.listTransactions)
	r.POST("/admin/transactions/:id/reverse", h.reverseTransaction)
	r.GET("/admin/users", h.listUsers)
	r.POST("/admin/toggle-block-user/:id", validation.AccountParamMiddleware("id"), h.toggleBlock)
	r.POST("/admin/register-employee", h.registerEmployee)
	if h.feed != nil {
		r.GET("/admin/feed", h.liveFeed)
	}
}

// regionStats returns the risk rollup for one region.
func (h *Handler) regionStats(c *gin.Context) {
	region := strings.TrimSpace(c.Query("region"))
	if region == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": "region is required"})
		return
	}

	s, err := h.stats.RegionStats(c.Request.Context(), region)
	if err != nil {
		logging.L(c.Request.Context()).Error("region stats failed", "region", region, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "Failed to compute region stats"})
		return
	}
	c.JSON(http.StatusOK, s)
}

// userStats returns the risk rollup for one account.
func (h *Handler) userStats(c *gin.Context) {
	s, err := h.stats.UserStats(c.Request.Context(), c.Param("id"))
	if err != nil {
		accounts.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// listTransactions returns one page of the log, newest first.
func (h *Handler) listTransactions(c *gin.Context) {
	page, err := pagination.Parse(c.Query("page"), c.Query("limit"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": err.Error()})
		return
	}

	txs, total, err := h.ledger.List(c.Request.Context(), page)
	if err != nil {
		transactions.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"transactions": txs,
		"pagination": PageInfo{
			TotalTransactions: total,
			CurrentPage:       page.Number,
			TotalPages:        page.TotalPages(total),
			Limit:             page.Limit,
		},
	})
}

// reverseTransaction appends a compensating entry for a transaction.
func (h *Handler) reverseTransaction(c *gin.Context) {
	var req transactions.ReverseRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Invalid JSON body"})
			return
		}
	}
	req.TransactionID = c.Param("id")

	tx, err := h.ledger.Reverse(c.Request.Context(), req)
	if err != nil {
		transactions.WriteError(c, err)
		return
	}
	logging.L(c.Request.Context()).Warn("reversal issued by admin",
		"admin", auth.GetAuthenticatedAccount(c), "reversal_of", tx.ReversalOf)
	c.JSON(http.StatusCreated, gin.H{"transaction": tx})
}

// listUsers returns every account.
func (h *Handler) listUsers(c *gin.Context) {
	users, err := h.accounts.List(c.Request.Context())
	if err != nil {
		accounts.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "count": len(users)})
}

// toggleBlock flips an account's blocked flag.
func (h *Handler) toggleBlock(c *gin.Context) {
	target := c.Param("id")
	if target == auth.GetAuthenticatedAccount(c) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": "Admins cannot block themselves"})
		return
	}

	a, err := h.accounts.ToggleBlock(c.Request.Context(), target)
	if err != nil {
		accounts.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": a})
}

// registerEmployee creates an employee account.
func (h *Handler) registerEmployee(c *gin.Context) {
	var req EmployeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Invalid JSON body"})
		return
	}

	a, err := h.accounts.Register(c.Request.Context(), accounts.RegisterRequest{
		AccountNumber: req.AccountNumber,
		Name:          req.Name,
		Email:         req.Email,
		Contact:       req.Contact,
		Region:        req.Region,
		PIN:           req.PIN,
		Role:          accounts.RoleEmployee,
	})
	if err != nil {
		accounts.WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"employee": a})
}

// liveFeed upgrades to the WebSocket transaction feed.
func (h *Handler) liveFeed(c *gin.Context) {
	h.feed.HandleWebSocket(c.Writer, c.Request)
}
