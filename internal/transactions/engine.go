package transactions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/accounts"
	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/fraud"
	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/idgen"
	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/logging"
	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/metrics"
	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/oracle"
	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/pagination"
	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/traces"
	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/validation"
)

// unknownValue fills location and device when a top-up omits them.
const unknownValue = "Unknown"

// TransferRequest is a user-initiated transfer. SenderAccountNumber comes
// from the authenticated caller, never from the body.
type TransferRequest struct {
	SenderAccountNumber   string           `json:"-"`
	ReceiverAccountNumber string           `json:"receiverAccountNumber"`
	Amount                *decimal.Decimal `json:"amount"`
	Type                  Type             `json:"type"`
	Location              string           `json:"location"`
	DeviceID              string           `json:"deviceId"`
	PIN                   string           `json:"pin"`
	IdempotencyKey        string           `json:"-"`
}

// TopUpRequest credits an account from the System account.
type TopUpRequest struct {
	ReceiverAccountNumber string           `json:"receiverAccountNumber"`
	Amount                *decimal.Decimal `json:"amount"`
	Location              string           `json:"location"`
	DeviceID              string           `json:"deviceId"`
}

// ReverseRequest compensates a committed transaction.
type ReverseRequest struct {
	TransactionID string `json:"-"`
	Reason        string `json:"reason"`
}

// Engine runs transfers, top-ups and reversals.
type Engine struct {
	accounts  accounts.Store
	store     Store
	scorer    oracle.Scorer
	notifiers []Notifier
	now       func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithNotifiers registers listeners for committed transactions.
func WithNotifiers(n ...Notifier) EngineOption {
	return func(e *Engine) { e.notifiers = append(e.notifiers, n...) }
}

// WithClock overrides the clock used for fraud features.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine. A nil scorer scores everything 0.
func NewEngine(accts accounts.Store, store Store, scorer oracle.Scorer, opts ...EngineOption) *Engine {
	if scorer == nil {
		scorer = oracle.Disabled{}
	}
	e := &Engine{
		accounts: accts,
		store:    store,
		scorer:   scorer,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Transfer validates, authenticates, scores and commits a transfer. The
// returned flag is true when the request replayed an earlier transfer with
// the same idempotency key; no funds moved in that case.
func (e *Engine) Transfer(ctx context.Context, req TransferRequest) (*Transaction, bool, error) {
	ctx, span := traces.StartSpan(ctx, "transactions.Transfer",
		traces.Sender(req.SenderAccountNumber),
		traces.Receiver(req.ReceiverAccountNumber),
	)
	defer span.End()
	if req.Amount != nil {
		span.SetAttributes(traces.Amount(req.Amount.String()))
	}

	tx, replayed, err := e.transfer(ctx, req)
	switch {
	case err != nil:
		traces.Fail(span, err)
		metrics.TransfersTotal.WithLabelValues("transfer", outcome(err)).Inc()
	case replayed:
		metrics.TransfersTotal.WithLabelValues("transfer", "replayed").Inc()
	default:
		span.SetAttributes(traces.TransactionID(tx.ID), traces.FraudPercentage(tx.FraudPercentage))
		metrics.TransfersTotal.WithLabelValues("transfer", "committed").Inc()
		metrics.FraudScore.Observe(tx.FraudPercentage)
	}
	return tx, replayed, err
}

func (e *Engine) transfer(ctx context.Context, req TransferRequest) (*Transaction, bool, error) {
	log := logging.L(ctx)

	req.ReceiverAccountNumber = strings.TrimSpace(req.ReceiverAccountNumber)
	req.Location = validation.SanitizeString(req.Location, validation.MaxStringLength)
	req.DeviceID = validation.SanitizeString(req.DeviceID, validation.MaxStringLength)
	req.IdempotencyKey = validation.SanitizeString(req.IdempotencyKey, validation.MaxStringLength)

	if req.SenderAccountNumber == "" || req.ReceiverAccountNumber == "" || req.Amount == nil ||
		req.Type == "" || req.Location == "" || req.DeviceID == "" || req.PIN == "" {
		return nil, false, ErrMissingField
	}
	if !req.Type.Valid() {
		return nil, false, ErrInvalidType
	}
	amount := *req.Amount
	if err := checkAmount(amount); err != nil {
		return nil, false, err
	}
	if req.SenderAccountNumber == req.ReceiverAccountNumber {
		return nil, false, ErrSelfTransfer
	}

	// A replay answers with the stored transfer without re-checking the
	// accounts or PIN; the request must still describe the same transfer.
	if req.IdempotencyKey != "" {
		prev, err := e.store.FindByIdempotencyKey(ctx, req.SenderAccountNumber, req.IdempotencyKey)
		if err == nil {
			return replay(ctx, prev, req, amount)
		}
		if !errors.Is(err, ErrTransactionNotFound) {
			return nil, false, fmt.Errorf("idempotency lookup: %w", err)
		}
	}

	sender, err := e.lookup(ctx, req.SenderAccountNumber, ErrSenderNotFound)
	if err != nil {
		return nil, false, err
	}
	receiver, err := e.lookup(ctx, req.ReceiverAccountNumber, ErrReceiverNotFound)
	if err != nil {
		return nil, false, err
	}
	if sender.Blocked || receiver.Blocked {
		return nil, false, ErrAccountBlocked
	}
	if err := accounts.CheckPIN(sender, req.PIN); err != nil {
		return nil, false, ErrIncorrectPIN
	}
	if sender.Balance.LessThan(amount) {
		return nil, false, ErrInsufficientBalance
	}

	now := e.now()
	features, err := e.features(ctx, sender, receiver, amount, req.Type, now)
	if err != nil {
		return nil, false, err
	}
	score := e.scorer.Score(ctx, features)

	tx, replayed, err := e.store.Commit(ctx, &Transaction{
		ID:                    idgen.New(),
		SenderAccountNumber:   sender.AccountNumber,
		ReceiverAccountNumber: receiver.AccountNumber,
		Amount:                amount,
		Type:                  req.Type,
		Location:              req.Location,
		DeviceID:              req.DeviceID,
		FraudPercentage:       score,
		IdempotencyKey:        req.IdempotencyKey,
	})
	if err != nil {
		return nil, false, err
	}
	if replayed {
		return replay(ctx, tx, req, amount)
	}

	log.Info("transfer committed",
		"transaction_id", tx.ID,
		"sender", tx.SenderAccountNumber,
		"receiver", tx.ReceiverAccountNumber,
		"amount", tx.Amount.String(),
		"fraud_percentage", tx.FraudPercentage,
	)
	e.notify(ctx, tx)
	return tx, false, nil
}

func replay(ctx context.Context, prev *Transaction, req TransferRequest, amount decimal.Decimal) (*Transaction, bool, error) {
	if prev.ReceiverAccountNumber != req.ReceiverAccountNumber || !prev.Amount.Equal(amount) || prev.Type != req.Type {
		logging.L(ctx).Warn("idempotency key reused for a different transfer",
			"transaction_id", prev.ID, "idempotency_key", req.IdempotencyKey)
		return nil, false, ErrIdempotencyMismatch
	}
	logging.L(ctx).Info("transfer replayed", "transaction_id", prev.ID, "idempotency_key", req.IdempotencyKey)
	return prev, true, nil
}

// features builds the scoring input from the pre-transfer snapshot and the
// sender's most recent transaction.
func (e *Engine) features(ctx context.Context, sender, receiver *accounts.Account, amount decimal.Decimal, typ Type, now time.Time) (*fraud.Features, error) {
	recent, err := e.store.RecentBySender(ctx, sender.AccountNumber, 1)
	if err != nil {
		return nil, fmt.Errorf("load sender history: %w", err)
	}
	var previousAt time.Time
	if len(recent) > 0 {
		previousAt = recent[0].CreatedAt
	}

	f := fraud.Build(fraud.Input{
		Amount:             amount,
		Type:               string(typ),
		SenderOccupation:   sender.Occupation,
		SenderAge:          sender.Age,
		SenderBalance:      sender.Balance,
		ReceiverBalance:    receiver.Balance,
		NewSenderBalance:   sender.Balance.Sub(amount),
		NewReceiverBalance: receiver.Balance.Add(amount),
		PreviousAt:         previousAt,
		Now:                now,
	})
	if !f.Consistent() {
		logging.L(ctx).Warn("balance residuals non-zero",
			"sender", sender.AccountNumber,
			"error_balance_orig", f.ErrorBalanceOrig,
			"error_balance_dest", f.ErrorBalanceDest,
		)
	}
	return f, nil
}

// TopUp credits the receiver from the System account. Top-ups are not scored.
func (e *Engine) TopUp(ctx context.Context, req TopUpRequest) (*Transaction, error) {
	ctx, span := traces.StartSpan(ctx, "transactions.TopUp", traces.Receiver(req.ReceiverAccountNumber))
	defer span.End()
	if req.Amount != nil {
		span.SetAttributes(traces.Amount(req.Amount.String()))
	}

	tx, err := e.topUp(ctx, req)
	if err != nil {
		traces.Fail(span, err)
		metrics.TransfersTotal.WithLabelValues("topup", outcome(err)).Inc()
		return nil, err
	}
	metrics.TransfersTotal.WithLabelValues("topup", "committed").Inc()
	return tx, nil
}

func (e *Engine) topUp(ctx context.Context, req TopUpRequest) (*Transaction, error) {
	req.ReceiverAccountNumber = strings.TrimSpace(req.ReceiverAccountNumber)
	if req.ReceiverAccountNumber == "" || req.Amount == nil {
		return nil, ErrMissingField
	}
	amount := *req.Amount
	if err := checkAmount(amount); err != nil {
		return nil, err
	}
	location := validation.SanitizeString(req.Location, validation.MaxStringLength)
	if location == "" {
		location = unknownValue
	}
	device := validation.SanitizeString(req.DeviceID, validation.MaxStringLength)
	if device == "" {
		device = unknownValue
	}

	receiver, err := e.lookup(ctx, req.ReceiverAccountNumber, ErrReceiverNotFound)
	if err != nil {
		return nil, err
	}
	if receiver.Blocked {
		return nil, ErrAccountBlocked
	}

	tx, _, err := e.store.Commit(ctx, &Transaction{
		ID:                    idgen.New(),
		SenderAccountNumber:   accounts.SystemAccount,
		ReceiverAccountNumber: receiver.AccountNumber,
		Amount:                amount,
		Type:                  TypeCredit,
		Location:              location,
		DeviceID:              device,
	})
	if err != nil {
		return nil, err
	}

	logging.L(ctx).Info("account topped up",
		"transaction_id", tx.ID, "receiver", tx.ReceiverAccountNumber, "amount", tx.Amount.String())
	e.notify(ctx, tx)
	return tx, nil
}

// Reverse appends a compensating transaction moving the original amount
// back from its receiver to its sender. The original is left untouched.
func (e *Engine) Reverse(ctx context.Context, req ReverseRequest) (*Transaction, error) {
	ctx, span := traces.StartSpan(ctx, "transactions.Reverse", traces.TransactionID(req.TransactionID))
	defer span.End()

	tx, err := e.reverse(ctx, req)
	if err != nil {
		traces.Fail(span, err)
		metrics.TransfersTotal.WithLabelValues("reversal", outcome(err)).Inc()
		return nil, err
	}
	metrics.TransfersTotal.WithLabelValues("reversal", "committed").Inc()
	return tx, nil
}

func (e *Engine) reverse(ctx context.Context, req ReverseRequest) (*Transaction, error) {
	if strings.TrimSpace(req.TransactionID) == "" {
		return nil, ErrMissingField
	}
	orig, err := e.store.Get(ctx, req.TransactionID)
	if err != nil {
		return nil, err
	}
	if orig.ReversalOf != "" {
		return nil, ErrReversalOfReversal
	}

	tx, _, err := e.store.Commit(ctx, &Transaction{
		ID:                    idgen.New(),
		SenderAccountNumber:   orig.ReceiverAccountNumber,
		ReceiverAccountNumber: orig.SenderAccountNumber,
		Amount:                orig.Amount,
		Type:                  TypeCredit,
		Location:              orig.Location,
		DeviceID:              orig.DeviceID,
		ReversalOf:            orig.ID,
	})
	if err != nil {
		return nil, err
	}

	logging.L(ctx).Warn("transaction reversed",
		"transaction_id", tx.ID,
		"reversal_of", orig.ID,
		"amount", tx.Amount.String(),
		"reason", validation.SanitizeString(req.Reason, validation.MaxStringLength),
	)
	e.notify(ctx, tx)
	return tx, nil
}

// History returns every transaction involving the account, newest first.
func (e *Engine) History(ctx context.Context, accountNumber string) ([]*Transaction, error) {
	if _, err := e.accounts.Get(ctx, accountNumber); err != nil {
		return nil, err
	}
	return e.store.ListByAccount(ctx, accountNumber)
}

// List returns one page of the whole log, newest first, and the total count.
func (e *Engine) List(ctx context.Context, page pagination.Page) ([]*Transaction, int, error) {
	return e.store.List(ctx, page)
}

func (e *Engine) lookup(ctx context.Context, accountNumber string, notFound error) (*accounts.Account, error) {
	a, err := e.accounts.Get(ctx, accountNumber)
	if errors.Is(err, accounts.ErrAccountNotFound) {
		return nil, notFound
	}
	return a, err
}

func (e *Engine) notify(ctx context.Context, tx *Transaction) {
	for _, n := range e.notifiers {
		n.Notify(ctx, tx)
	}
}

func checkAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrNonPositiveAmount
	}
	if -amount.Exponent() > MaxAmountScale && !amount.Equal(amount.Truncate(MaxAmountScale)) {
		return ErrAmountPrecision
	}
	return nil
}

// outcome labels a failed operation for metrics.
func outcome(err error) string {
	switch {
	case errors.Is(err, ErrMissingField), errors.Is(err, ErrInvalidType),
		errors.Is(err, ErrNonPositiveAmount), errors.Is(err, ErrAmountPrecision),
		errors.Is(err, ErrSelfTransfer), errors.Is(err, ErrSenderNotFound),
		errors.Is(err, ErrReceiverNotFound), errors.Is(err, ErrAccountBlocked),
		errors.Is(err, ErrIncorrectPIN), errors.Is(err, ErrInsufficientBalance),
		errors.Is(err, ErrTransactionNotFound), errors.Is(err, ErrAlreadyReversed),
		errors.Is(err, ErrReversalOfReversal), errors.Is(err, ErrIdempotencyMismatch):
		return "rejected"
	default:
		return "failed"
	}
}
