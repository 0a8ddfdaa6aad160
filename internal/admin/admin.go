// Package admin provides the admin-only endpoints: risk statistics, the
// paginated transaction log, account moderation and reversals.
package admin

import (
	"context"
	"net/http"

	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/accounts"
	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/pagination"
	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/stats"
	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/transactions"
)

// AccountService abstracts account operations for admin handlers.
type AccountService interface {
	List(ctx context.Context) ([]*accounts.Account, error)
	ToggleBlock(ctx context.Context, accountNumber string) (*accounts.Account, error)
	Register(ctx context.Context, req accounts.RegisterRequest) (*accounts.Account, error)
}

// StatsService abstracts the statistics aggregator.
type StatsService interface {
	RegionStats(ctx context.Context, region string) (*stats.RegionStats, error)
	UserStats(ctx context.Context, accountNumber string) (*stats.UserStats, error)
}

// LedgerService abstracts the transaction engine operations admins use.
type LedgerService interface {
	List(ctx context.Context, page pagination.Page) ([]*transactions.Transaction, int, error)
	Reverse(ctx context.Context, req transactions.ReverseRequest) (*transactions.Transaction, error)
}

// PageInfo is the pagination metadata on the admin transaction listing.
type PageInfo struct {
	TotalTransactions int `json:"totalTransactions"`
	CurrentPage       int `json:"currentPage"`
	TotalPages        int `json:"totalPages"`
	Limit             int `json:"limit"`
}

// EmployeeRequest is the body of POST /admin/register-employee.
type EmployeeRequest struct {
	AccountNumber string `json:"accountNumber"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	Contact       string `json:"contact"`
	Region        string `json:"region"`
	PIN           string `json:"pin"`
}

// FeedHandler serves the live transaction feed.
type FeedHandler interface {
	HandleWebSocket(w http.ResponseWriter, r *http.Request)
}
