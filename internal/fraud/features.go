// Package fraud derives the feature vector the risk oracle scores.
//
// Build is pure: it reads only its Input and never touches storage or the
// clock, so the same input always yields the same features.
package fraud

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Features is the scoring request body. Field names follow the risk model's
// input schema and must not be renamed.
type Features struct {
	TransactionAmount        float64 `json:"TransactionAmount"`
	TransactionType          string  `json:"TransactionType"`
	CustomerOccupation       string  `json:"CustomerOccupation"`
	AccountBalance           float64 `json:"AccountBalance"`
	DayOfWeek                string  `json:"DayOfWeek"`
	Hour                     int     `json:"Hour"`
	TimeGap                  float64 `json:"Time_Gap"`
	HourOfTransaction        int     `json:"Hour_of_Transaction"`
	AgeGroup                 *string `json:"AgeGroup"`
	DaysSinceLastTransaction int     `json:"Days_Since_Last_Transaction"`

	Amount           float64 `json:"amount"`
	OldBalanceOrig   float64 `json:"oldBalanceOrig"`
	NewBalanceOrig   float64 `json:"newBalanceOrig"`
	OldBalanceDest   float64 `json:"oldBalanceDest"`
	NewBalanceDest   float64 `json:"newBalanceDest"`
	ErrorBalanceOrig float64 `json:"errorBalanceOrig"`
	ErrorBalanceDest float64 `json:"errorBalanceDest"`
}

// Input is everything Build needs. Balances are the pre-transfer values;
// PreviousAt is the time of the sender's latest prior transaction, zero if
// the sender has none.
type Input struct {
	Amount             decimal.Decimal
	Type               string
	SenderOccupation   string
	SenderAge          int
	SenderBalance      decimal.Decimal
	ReceiverBalance    decimal.Decimal
	NewSenderBalance   decimal.Decimal
	NewReceiverBalance decimal.Decimal
	PreviousAt         time.Time
	Now                time.Time
}

// Build derives the feature vector for one transfer.
func Build(in Input) *Features {
	now := in.Now
	prev := in.PreviousAt
	if prev.IsZero() || prev.After(now) {
		prev = now
	}
	gap := now.Sub(prev)

	residualOrig := in.SenderBalance.Sub(in.NewSenderBalance).Sub(in.Amount)
	residualDest := in.NewReceiverBalance.Sub(in.ReceiverBalance).Sub(in.Amount)

	return &Features{
		TransactionAmount:        in.Amount.InexactFloat64(),
		TransactionType:          in.Type,
		CustomerOccupation:       in.SenderOccupation,
		AccountBalance:           in.SenderBalance.InexactFloat64(),
		DayOfWeek:                now.Weekday().String(),
		Hour:                     now.Hour(),
		TimeGap:                  gap.Minutes(),
		HourOfTransaction:        now.Hour(),
		AgeGroup:                 AgeGroup(in.SenderAge),
		DaysSinceLastTransaction: int(math.Ceil(gap.Hours() / 24)),

		Amount:           in.Amount.InexactFloat64(),
		OldBalanceOrig:   in.SenderBalance.InexactFloat64(),
		NewBalanceOrig:   in.NewSenderBalance.InexactFloat64(),
		OldBalanceDest:   in.ReceiverBalance.InexactFloat64(),
		NewBalanceDest:   in.NewReceiverBalance.InexactFloat64(),
		ErrorBalanceOrig: residualOrig.InexactFloat64(),
		ErrorBalanceDest: residualDest.InexactFloat64(),
	}
}

// Consistent reports whether both balance residuals are exactly zero.
func (f *Features) Consistent() bool {
	return f.ErrorBalanceOrig == 0 && f.ErrorBalanceDest == 0
}

// AgeGroup buckets an age; ages outside every bucket map to nil.
func AgeGroup(age int) *string {
	var g string
	switch {
	case age >= 18 && age <= 25:
		g = "18-25"
	case age >= 26 && age <= 35:
		g = "26-35"
	case age >= 36 && age <= 50:
		g = "36-50"
	case age >= 51:
		g = "51+"
	default:
		return nil
	}
	return &g
}
