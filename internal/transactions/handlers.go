package transactions

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/accounts"
	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/auth"
	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/logging"
)

// IdempotencyHeader carries the client's idempotency key on transfers.
const IdempotencyHeader = "Idempotency-Key"

// ReplayedHeader is set on responses that replay an earlier transfer.
const ReplayedHeader = "X-Idempotency-Replayed"

// Handler provides HTTP endpoints for transfers and top-ups
type Handler struct {
	engine *Engine
}

// NewHandler creates a new transaction handler
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

// RegisterRoutes sets up routes for authenticated account holders
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/transaction/create", h.Create)
	r.GET("/transaction/history", h.History)
}

// RegisterEmployeeRoutes sets up routes for employees
func (h *Handler) RegisterEmployeeRoutes(r *gin.RouterGroup) {
	r.POST("/employee/add-money", h.AddMoney)
}

// Create handles POST /transaction/create
func (h *Handler) Create(c *gin.Context) {
	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Invalid JSON body"})
		return
	}
	req.SenderAccountNumber = auth.GetAuthenticatedAccount(c)
	req.IdempotencyKey = c.GetHeader(IdempotencyHeader)

	tx, replayed, err := h.engine.Transfer(c.Request.Context(), req)
	if err != nil {
		WriteError(c, err)
		return
	}
	if replayed {
		c.Header(ReplayedHeader, "true")
		c.JSON(http.StatusOK, gin.H{"transaction": tx})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"transaction": tx})
}

// History handles GET /transaction/history
func (h *Handler) History(c *gin.Context) {
	txs, err := h.engine.History(c.Request.Context(), auth.GetAuthenticatedAccount(c))
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs, "count": len(txs)})
}

// AddMoney handles POST /employee/add-money
func (h *Handler) AddMoney(c *gin.Context) {
	var req TopUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Invalid JSON body"})
		return
	}

	tx, err := h.engine.TopUp(c.Request.Context(), req)
	if err != nil {
		WriteError(c, err)
		return
	}
	logging.L(c.Request.Context()).Info("top-up issued by employee",
		"employee", auth.GetAuthenticatedAccount(c), "transaction_id", tx.ID)
	c.JSON(http.StatusCreated, gin.H{"transaction": tx})
}

// WriteError maps transaction errors onto HTTP responses.
func WriteError(c *gin.Context, err error) {
	var (
		status int
		code   string
	)
	switch {
	case errors.Is(err, ErrMissingField):
		status, code = http.StatusBadRequest, "missing_fields"
	case errors.Is(err, ErrInvalidType):
		status, code = http.StatusBadRequest, "invalid_type"
	case errors.Is(err, ErrNonPositiveAmount), errors.Is(err, ErrAmountPrecision):
		status, code = http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, ErrSelfTransfer):
		status, code = http.StatusBadRequest, "self_transfer"
	case errors.Is(err, ErrInsufficientBalance):
		status, code = http.StatusBadRequest, "insufficient_balance"
	case errors.Is(err, ErrReversalOfReversal):
		status, code = http.StatusBadRequest, "reversal_of_reversal"
	case errors.Is(err, ErrIncorrectPIN):
		status, code = http.StatusUnauthorized, "incorrect_pin"
	case errors.Is(err, ErrAccountBlocked):
		status, code = http.StatusForbidden, "account_blocked"
	case errors.Is(err, ErrSenderNotFound):
		status, code = http.StatusNotFound, "sender_not_found"
	case errors.Is(err, ErrReceiverNotFound):
		status, code = http.StatusNotFound, "receiver_not_found"
	case errors.Is(err, ErrTransactionNotFound):
		status, code = http.StatusNotFound, "transaction_not_found"
	case errors.Is(err, ErrAlreadyReversed):
		status, code = http.StatusConflict, "already_reversed"
	case errors.Is(err, ErrIdempotencyMismatch):
		status, code = http.StatusUnprocessableEntity, "idempotency_mismatch"
	case errors.Is(err, accounts.ErrAccountNotFound):
		status, code = http.StatusNotFound, "not_found"
	default:
		logging.L(c.Request.Context()).Error("transaction operation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "Internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}
