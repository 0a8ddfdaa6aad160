// Package stats computes read-only risk rollups over the transaction log.
package stats

import (
	"context"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/accounts"
	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/transactions"
)

const (
	// HighRiskThreshold is the fraud percentage above which a transaction
	// counts as high risk.
	HighRiskThreshold = 80.0
	// SuspiciousCount is how many high-risk transactions flag an account.
	SuspiciousCount = 3

	dayLayout    = "2006-01-02"
	averageScale = 6
)

// AccountReader is the account lookup the aggregator needs.
type AccountReader interface {
	Get(ctx context.Context, accountNumber string) (*accounts.Account, error)
	ListByRegion(ctx context.Context, region string) ([]*accounts.Account, error)
}

// TransactionReader is the log query surface the aggregator needs.
type TransactionReader interface {
	ListByAccount(ctx context.Context, accountNumber string) ([]*transactions.Transaction, error)
	ListByLocation(ctx context.Context, location string) ([]*transactions.Transaction, error)
}

// RegionStats is the rollup for one region.
type RegionStats struct {
	Region                   string          `json:"region"`
	TotalUsers               int             `json:"totalUsers"`
	TotalTransactions        int             `json:"totalTransactions"`
	TotalAmountTransacted    decimal.Decimal `json:"totalAmountTransacted"`
	AverageAmountTransacted  decimal.Decimal `json:"averageAmountTransacted"`
	AverageFraudPercentage   float64         `json:"averageFraudPercentage"`
	TotalTransactionsDaywise map[string]int  `json:"totalTransactionsDaywise"`
	SuspiciousAccounts       []string        `json:"suspiciousAccounts"`
}

// UserStats is the rollup for one account.
type UserStats struct {
	Account                  *accounts.Account `json:"user"`
	TotalTransactions        int               `json:"totalTransactions"`
	TotalAmountSent          decimal.Decimal   `json:"totalAmountSent"`
	TotalAmountReceived      decimal.Decimal   `json:"totalAmountReceived"`
	TotalAmountTransacted    decimal.Decimal   `json:"totalAmountTransacted"`
	AverageTransactionAmount decimal.Decimal   `json:"averageTransactionAmount"`
	AverageFraudPercentage   float64           `json:"averageFraudPercentage"`
	HighRiskTransactions     int               `json:"highRiskTransactions"`
	TransactionsDaywise      map[string]int    `json:"transactionsDaywise"`
	Suspicious               bool              `json:"suspicious"`
}

// Aggregator answers rollup queries. It never writes.
type Aggregator struct {
	accounts AccountReader
	txns     TransactionReader
}

// NewAggregator creates an aggregator over the given stores.
func NewAggregator(accts AccountReader, txns TransactionReader) *Aggregator {
	return &Aggregator{accounts: accts, txns: txns}
}

// RegionStats rolls up the accounts registered in region and the
// transactions recorded at that location.
func (a *Aggregator) RegionStats(ctx context.Context, region string) (*RegionStats, error) {
	users, err := a.accounts.ListByRegion(ctx, region)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	txs, err := a.txns.ListByLocation(ctx, region)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return SummarizeRegion(region, len(users), txs), nil
}

// UserStats rolls up every transaction the account sent or received.
// Unknown accounts fail with accounts.ErrAccountNotFound.
func (a *Aggregator) UserStats(ctx context.Context, accountNumber string) (*UserStats, error) {
	acct, err := a.accounts.Get(ctx, accountNumber)
	if err != nil {
		return nil, err
	}
	txs, err := a.txns.ListByAccount(ctx, accountNumber)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return SummarizeUser(acct, txs), nil
}

// SummarizeRegion computes a region rollup from already-fetched data.
func SummarizeRegion(region string, users int, txs []*transactions.Transaction) *RegionStats {
	s := &RegionStats{
		Region:                   region,
		TotalUsers:               users,
		TotalTransactions:        len(txs),
		TotalAmountTransacted:    decimal.Zero,
		TotalTransactionsDaywise: map[string]int{},
		SuspiciousAccounts:       []string{},
	}

	var fraudSum float64
	highRisk := map[string]int{}
	for _, tx := range txs {
		s.TotalAmountTransacted = s.TotalAmountTransacted.Add(tx.Amount)
		fraudSum += tx.FraudPercentage
		s.TotalTransactionsDaywise[day(tx)]++
		if IsHighRisk(tx) {
			highRisk[tx.SenderAccountNumber]++
		}
	}

	for sender, n := range highRisk {
		if n >= SuspiciousCount {
			s.SuspiciousAccounts = append(s.SuspiciousAccounts, sender)
		}
	}
	slices.Sort(s.SuspiciousAccounts)

	s.AverageAmountTransacted = average(s.TotalAmountTransacted, len(txs))
	s.AverageFraudPercentage = averageFloat(fraudSum, len(txs))
	return s
}

// SummarizeUser computes a per-account rollup from already-fetched data.
func SummarizeUser(acct *accounts.Account, txs []*transactions.Transaction) *UserStats {
	s := &UserStats{
		Account:             acct,
		TotalTransactions:   len(txs),
		TotalAmountSent:     decimal.Zero,
		TotalAmountReceived: decimal.Zero,
		TransactionsDaywise: map[string]int{},
	}

	var fraudSum float64
	for _, tx := range txs {
		if tx.SenderAccountNumber == acct.AccountNumber {
			s.TotalAmountSent = s.TotalAmountSent.Add(tx.Amount)
		}
		if tx.ReceiverAccountNumber == acct.AccountNumber {
			s.TotalAmountReceived = s.TotalAmountReceived.Add(tx.Amount)
		}
		fraudSum += tx.FraudPercentage
		if IsHighRisk(tx) {
			s.HighRiskTransactions++
		}
		s.TransactionsDaywise[day(tx)]++
	}

	s.TotalAmountTransacted = s.TotalAmountSent.Add(s.TotalAmountReceived)
	s.AverageTransactionAmount = average(s.TotalAmountTransacted, len(txs))
	s.AverageFraudPercentage = averageFloat(fraudSum, len(txs))
	s.Suspicious = s.HighRiskTransactions >= SuspiciousCount
	return s
}

// IsHighRisk reports whether tx scored above HighRiskThreshold.
func IsHighRisk(tx *transactions.Transaction) bool {
	return tx.FraudPercentage > HighRiskThreshold
}

func day(tx *transactions.Transaction) string {
	return tx.CreatedAt.UTC().Format(dayLayout)
}

func average(total decimal.Decimal, n int) decimal.Decimal {
	if n == 0 {
		return decimal.Zero
	}
	return total.DivRound(decimal.NewFromInt(int64(n)), averageScale)
}

func averageFloat(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
