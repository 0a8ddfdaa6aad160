package transactions

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/accounts"
	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/fraud"
	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/oracle"
	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/pagination"
)

const testPIN = "1234"

// stubScorer records the features it was asked to score.
type stubScorer struct {
	mu    sync.Mutex
	score float64
	seen  []*fraud.Features
}

func (s *stubScorer) Score(_ context.Context, f *fraud.Features) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, f)
	return s.score
}

type recordingNotifier struct {
	mu  sync.Mutex
	txs []*Transaction
}

func (r *recordingNotifier) Notify(_ context.Context, tx *Transaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txs = append(r.txs, tx)
}

type fixture struct {
	accts    *accounts.MemoryStore
	svc      *accounts.Service
	store    *MemoryStore
	scorer   *stubScorer
	notifier *recordingNotifier
	engine   *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	accts := accounts.NewMemoryStore()
	store := NewMemoryStore(accts)
	scorer := &stubScorer{}
	notifier := &recordingNotifier{}
	clock := time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC)
	return &fixture{
		accts:    accts,
		svc:      accounts.NewService(accts, bcrypt.MinCost),
		store:    store,
		scorer:   scorer,
		notifier: notifier,
		engine: NewEngine(accts, store, scorer,
			WithNotifiers(notifier),
			WithClock(func() time.Time { return clock }),
		),
	}
}

// seed registers an account and sets its opening balance directly.
func (f *fixture) seed(t *testing.T, number string, balance int64) {
	t.Helper()
	_, err := f.svc.Register(context.Background(), accounts.RegisterRequest{
		AccountNumber: number,
		Name:          "Holder " + number,
		Email:         number + "@example.com",
		Age:           30,
		Occupation:    "Engineer",
		Region:        "North",
		PIN:           testPIN,
	})
	require.NoError(t, err)
	err = f.accts.Mutate(context.Background(), []string{number}, func(m map[string]*accounts.Account) error {
		m[number].Balance = decimal.NewFromInt(balance)
		return nil
	})
	require.NoError(t, err)
}

func (f *fixture) balance(t *testing.T, number string) decimal.Decimal {
	t.Helper()
	a, err := f.accts.Get(context.Background(), number)
	require.NoError(t, err)
	return a.Balance
}

func (f *fixture) logSize(t *testing.T) int {
	t.Helper()
	_, total, err := f.store.List(context.Background(), pagination.Page{Number: 1, Limit: 1})
	require.NoError(t, err)
	return total
}

func amt(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func transfer(from, to, amount string) TransferRequest {
	return TransferRequest{
		SenderAccountNumber:   from,
		ReceiverAccountNumber: to,
		Amount:                amt(amount),
		Type:                  TypeDebit,
		Location:              "North",
		DeviceID:              "device-1",
		PIN:                   testPIN,
	}
}

func TestTransfer_EndToEnd(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "SENDER01", 500)
	f.seed(t, "RECEIVER1", 100)

	tx, replayed, err := f.engine.Transfer(context.Background(), transfer("SENDER01", "RECEIVER1", "200"))
	require.NoError(t, err)
	assert.False(t, replayed)

	assert.True(t, f.balance(t, "SENDER01").Equal(decimal.NewFromInt(300)))
	assert.True(t, f.balance(t, "RECEIVER1").Equal(decimal.NewFromInt(300)))
	assert.Equal(t, TypeDebit, tx.Type)
	assert.True(t, tx.Amount.Equal(decimal.NewFromInt(200)))
	assert.Equal(t, 1, f.logSize(t))
	assert.NotEmpty(t, tx.ID)
	assert.False(t, tx.CreatedAt.IsZero())

	require.Len(t, f.notifier.txs, 1)
	assert.Equal(t, tx.ID, f.notifier.txs[0].ID)
}

func TestTransfer_ExactDecimalArithmetic(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "SENDER01", 1)
	f.seed(t, "RECEIVER1", 0)

	for range 10 {
		_, _, err := f.engine.Transfer(context.Background(), transfer("SENDER01", "RECEIVER1", "0.1"))
		require.NoError(t, err)
	}

	assert.True(t, f.balance(t, "SENDER01").IsZero(), f.balance(t, "SENDER01").String())
	assert.True(t, f.balance(t, "RECEIVER1").Equal(decimal.NewFromInt(1)))
}

func TestTransfer_FeaturesHaveZeroResiduals(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "SENDER01", 500)
	f.seed(t, "RECEIVER1", 100)

	_, _, err := f.engine.Transfer(context.Background(), transfer("SENDER01", "RECEIVER1", "123.45"))
	require.NoError(t, err)

	require.Len(t, f.scorer.seen, 1)
	feat := f.scorer.seen[0]
	assert.True(t, feat.Consistent())
	assert.Zero(t, feat.ErrorBalanceOrig)
	assert.Zero(t, feat.ErrorBalanceDest)
	assert.InDelta(t, 500, feat.OldBalanceOrig, 1e-9)
	assert.InDelta(t, 376.55, feat.NewBalanceOrig, 1e-9)
	assert.InDelta(t, 100, feat.OldBalanceDest, 1e-9)
	assert.InDelta(t, 223.45, feat.NewBalanceDest, 1e-9)
	assert.Equal(t, "Debit", feat.TransactionType)
	assert.Equal(t, "Engineer", feat.CustomerOccupation)
	assert.Equal(t, "Wednesday", feat.DayOfWeek)
	assert.Equal(t, 10, feat.Hour)
	require.NotNil(t, feat.AgeGroup)
	assert.Equal(t, "26-35", *feat.AgeGroup)
	assert.Zero(t, feat.TimeGap)
	assert.Zero(t, feat.DaysSinceLastTransaction)
}

func TestTransfer_RecordsOracleScore(t *testing.T) {
	f := newFixture(t)
	f.scorer.score = 87.5
	f.seed(t, "SENDER01", 500)
	f.seed(t, "RECEIVER1", 0)

	tx, _, err := f.engine.Transfer(context.Background(), transfer("SENDER01", "RECEIVER1", "10"))
	require.NoError(t, err)
	assert.Equal(t, 87.5, tx.FraudPercentage)
}

func TestTransfer_NilScorerScoresZero(t *testing.T) {
	accts := accounts.NewMemoryStore()
	store := NewMemoryStore(accts)
	svc := accounts.NewService(accts, bcrypt.MinCost)
	engine := NewEngine(accts, store, nil)

	for _, n := range []string{"SENDER01", "RECEIVER1"} {
		_, err := svc.Register(context.Background(), accounts.RegisterRequest{
			AccountNumber: n, Name: n, Email: n + "@example.com", PIN: testPIN,
		})
		require.NoError(t, err)
	}
	_, err := engine.TopUp(context.Background(), TopUpRequest{ReceiverAccountNumber: "SENDER01", Amount: amt("50")})
	require.NoError(t, err)

	tx, _, err := engine.Transfer(context.Background(), transfer("SENDER01", "RECEIVER1", "20"))
	require.NoError(t, err)
	assert.Zero(t, tx.FraudPercentage)
}

func TestTransfer_UnreachableOracleStillCommits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	accts := accounts.NewMemoryStore()
	store := NewMemoryStore(accts)
	svc := accounts.NewService(accts, bcrypt.MinCost)
	engine := NewEngine(accts, store, oracle.New(url, 200*time.Millisecond))

	for _, n := range []string{"SENDER01", "RECEIVER1"} {
		_, err := svc.Register(context.Background(), accounts.RegisterRequest{
			AccountNumber: n, Name: n, Email: n + "@example.com", Age: 40, Occupation: "Doctor", PIN: testPIN,
		})
		require.NoError(t, err)
	}
	_, err := engine.TopUp(context.Background(), TopUpRequest{ReceiverAccountNumber: "SENDER01", Amount: amt("50")})
	require.NoError(t, err)

	tx, replayed, err := engine.Transfer(context.Background(), transfer("SENDER01", "RECEIVER1", "20"))
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Zero(t, tx.FraudPercentage)

	receiver, err := accts.Get(context.Background(), "RECEIVER1")
	require.NoError(t, err)
	assert.True(t, receiver.Balance.Equal(decimal.NewFromInt(20)))
}

func TestTransfer_ValidationOrder(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "SENDER01", 100)
	f.seed(t, "RECEIVER1", 0)

	tests := []struct {
		name    string
		mutate  func(*TransferRequest)
		wantErr error
	}{
		{"missing pin", func(r *TransferRequest) { r.PIN = "" }, ErrMissingField},
		{"missing amount", func(r *TransferRequest) { r.Amount = nil }, ErrMissingField},
		{"missing device", func(r *TransferRequest) { r.DeviceID = "  " }, ErrMissingField},
		{"missing before type", func(r *TransferRequest) { r.Location = ""; r.Type = "Wire" }, ErrMissingField},
		{"bad type", func(r *TransferRequest) { r.Type = "Wire" }, ErrInvalidType},
		{"bad type before amount", func(r *TransferRequest) { r.Type = "Wire"; r.Amount = amt("-1") }, ErrInvalidType},
		{"zero amount", func(r *TransferRequest) { r.Amount = amt("0") }, ErrNonPositiveAmount},
		{"negative amount", func(r *TransferRequest) { r.Amount = amt("-5") }, ErrNonPositiveAmount},
		{"too precise", func(r *TransferRequest) { r.Amount = amt("0.0000001") }, ErrAmountPrecision},
		{"self transfer", func(r *TransferRequest) { r.ReceiverAccountNumber = "SENDER01" }, ErrSelfTransfer},
		{"unknown sender", func(r *TransferRequest) { r.SenderAccountNumber = "NOBODY01" }, ErrSenderNotFound},
		{"unknown receiver", func(r *TransferRequest) { r.ReceiverAccountNumber = "NOBODY01" }, ErrReceiverNotFound},
		{"wrong pin", func(r *TransferRequest) { r.PIN = "9999" }, ErrIncorrectPIN},
		{"wrong pin before funds", func(r *TransferRequest) { r.PIN = "9999"; r.Amount = amt("1000") }, ErrIncorrectPIN},
		{"insufficient funds", func(r *TransferRequest) { r.Amount = amt("100.01") }, ErrInsufficientBalance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := transfer("SENDER01", "RECEIVER1", "10")
			tt.mutate(&req)
			_, _, err := f.engine.Transfer(context.Background(), req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	assert.True(t, f.balance(t, "SENDER01").Equal(decimal.NewFromInt(100)))
	assert.True(t, f.balance(t, "RECEIVER1").IsZero())
	assert.Zero(t, f.logSize(t))
	assert.Empty(t, f.scorer.seen)
	assert.Empty(t, f.notifier.txs)
}

func TestTransfer_WholeBalanceAllowed(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "SENDER01", 100)
	f.seed(t, "RECEIVER1", 0)

	_, _, err := f.engine.Transfer(context.Background(), transfer("SENDER01", "RECEIVER1", "100"))
	require.NoError(t, err)
	assert.True(t, f.balance(t, "SENDER01").IsZero())
}

func TestTransfer_CreditTypeAlsoDebitsSender(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "SENDER01", 100)
	f.seed(t, "RECEIVER1", 0)

	req := transfer("SENDER01", "RECEIVER1", "150")
	req.Type = TypeCredit
	_, _, err := f.engine.Transfer(context.Background(), req)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	req.Amount = amt("40")
	tx, _, err := f.engine.Transfer(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, TypeCredit, tx.Type)
	assert.True(t, f.balance(t, "SENDER01").Equal(decimal.NewFromInt(60)))
}

func TestTransfer_BlockedAccounts(t *testing.T) {
	for _, blocked := range []string{"SENDER01", "RECEIVER1"} {
		t.Run(blocked, func(t *testing.T) {
			f := newFixture(t)
			f.seed(t, "SENDER01", 100)
			f.seed(t, "RECEIVER1", 0)
			_, err := f.svc.ToggleBlock(context.Background(), blocked)
			require.NoError(t, err)

			_, _, err = f.engine.Transfer(context.Background(), transfer("SENDER01", "RECEIVER1", "10"))
			assert.ErrorIs(t, err, ErrAccountBlocked)
			assert.True(t, f.balance(t, "SENDER01").Equal(decimal.NewFromInt(100)))
			assert.True(t, f.balance(t, "RECEIVER1").IsZero())
			assert.Zero(t, f.logSize(t))
		})
	}
}

// blockingScorer blocks the receiver while the transfer is being scored.
type blockingScorer struct {
	svc     *accounts.Service
	account string
}

func (b *blockingScorer) Score(ctx context.Context, _ *fraud.Features) float64 {
	_, _ = b.svc.ToggleBlock(ctx, b.account)
	return 0
}

func TestTransfer_CommitRechecksBlockedState(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "SENDER01", 100)
	f.seed(t, "RECEIVER1", 0)
	f.engine.scorer = &blockingScorer{svc: f.svc, account: "RECEIVER1"}

	_, _, err := f.engine.Transfer(context.Background(), transfer("SENDER01", "RECEIVER1", "10"))
	assert.ErrorIs(t, err, ErrAccountBlocked)
	assert.True(t, f.balance(t, "SENDER01").Equal(decimal.NewFromInt(100)))
	assert.Zero(t, f.logSize(t))
}

func TestTransfer_ParallelWithinBalance(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "SENDER01", 100)
	f.seed(t, "RECEIVER1", 0)

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := f.engine.Transfer(context.Background(), transfer("SENDER01", "RECEIVER1", "5"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.True(t, f.balance(t, "SENDER01").IsZero())
	assert.True(t, f.balance(t, "RECEIVER1").Equal(decimal.NewFromInt(100)))
	assert.Equal(t, n, f.logSize(t))
}

func TestTransfer_ParallelExhaustsFunds(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "SENDER01", 100)
	f.seed(t, "RECEIVER1", 0)

	const n = 25
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		rejected  atomic.Int32
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := f.engine.Transfer(context.Background(), transfer("SENDER01", "RECEIVER1", "10"))
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, ErrInsufficientBalance):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), succeeded.Load())
	assert.Equal(t, int32(n-10), rejected.Load())
	assert.True(t, f.balance(t, "SENDER01").IsZero())
	assert.True(t, f.balance(t, "RECEIVER1").Equal(decimal.NewFromInt(100)))
	assert.Equal(t, 10, f.logSize(t))
}

func TestTransfer_CrossingTransfersDoNotDeadlock(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "ALPHA001", 1000)
	f.seed(t, "BRAVO001", 1000)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			from, to := "ALPHA001", "BRAVO001"
			if i%2 == 1 {
				from, to = to, from
			}
			_, _, err := f.engine.Transfer(context.Background(), transfer(from, to, "3"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	total := f.balance(t, "ALPHA001").Add(f.balance(t, "BRAVO001"))
	assert.True(t, total.Equal(decimal.NewFromInt(2000)), total.String())
}

func TestTransfer_IdempotentReplay(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "SENDER01", 100)
	f.seed(t, "RECEIVER1", 0)

	req := transfer("SENDER01", "RECEIVER1", "30")
	req.IdempotencyKey = "key-123"

	first, replayed, err := f.engine.Transfer(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, replayed)

	second, replayed, err := f.engine.Transfer(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, first.ID, second.ID)

	assert.True(t, f.balance(t, "SENDER01").Equal(decimal.NewFromInt(70)))
	assert.Equal(t, 1, f.logSize(t))
	assert.Len(t, f.notifier.txs, 1)
}

func TestTransfer_IdempotencyKeyReusedForDifferentTransfer(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "SENDER01", 100)
	f.seed(t, "RECEIVER1", 0)
	f.seed(t, "OTHER001", 0)

	req := transfer("SENDER01", "RECEIVER1", "30")
	req.IdempotencyKey = "key-123"
	_, _, err := f.engine.Transfer(context.Background(), req)
	require.NoError(t, err)

	for name, mutate := range map[string]func(*TransferRequest){
		"amount":   func(r *TransferRequest) { r.Amount = amt("31") },
		"receiver": func(r *TransferRequest) { r.ReceiverAccountNumber = "OTHER001" },
		"type":     func(r *TransferRequest) { r.Type = TypeCredit },
	} {
		t.Run(name, func(t *testing.T) {
			r := req
			mutate(&r)
			_, replayed, err := f.engine.Transfer(context.Background(), r)
			assert.ErrorIs(t, err, ErrIdempotencyMismatch)
			assert.False(t, replayed)
		})
	}

	// Equal amounts in a different notation still replay.
	same := req
	same.Amount = amt("30.00")
	_, replayed, err := f.engine.Transfer(context.Background(), same)
	require.NoError(t, err)
	assert.True(t, replayed)

	assert.True(t, f.balance(t, "SENDER01").Equal(decimal.NewFromInt(70)))
	assert.Equal(t, 1, f.logSize(t))
}

func TestTransfer_LogNeverAheadOfBalances(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "SENDER01", 1000)
	f.seed(t, "RECEIVER1", 0)

	const n = 50
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range n {
			_, _, err := f.engine.Transfer(context.Background(), transfer("SENDER01", "RECEIVER1", "1"))
			assert.NoError(t, err)
		}
	}()

	for {
		select {
		case <-done:
			assert.True(t, f.balance(t, "SENDER01").Equal(decimal.NewFromInt(1000-n)))
			return
		default:
		}
		history, err := f.engine.History(context.Background(), "SENDER01")
		require.NoError(t, err)
		bal := f.balance(t, "SENDER01")
		limit := decimal.NewFromInt(int64(1000 - len(history)))
		assert.True(t, bal.LessThanOrEqual(limit), "history shows %d transfers but balance is %s", len(history), bal)
	}
}

func TestTransfer_IdempotentReplayUnderConcurrency(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "SENDER01", 100)
	f.seed(t, "RECEIVER1", 0)

	var (
		wg       sync.WaitGroup
		replays  atomic.Int32
		commits  atomic.Int32
		firstIDs sync.Map
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := transfer("SENDER01", "RECEIVER1", "30")
			req.IdempotencyKey = "same-key"
			tx, replayed, err := f.engine.Transfer(context.Background(), req)
			if !assert.NoError(t, err) {
				return
			}
			firstIDs.Store(tx.ID, true)
			if replayed {
				replays.Add(1)
			} else {
				commits.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), commits.Load())
	assert.Equal(t, int32(9), replays.Load())
	assert.True(t, f.balance(t, "SENDER01").Equal(decimal.NewFromInt(70)))
	ids := 0
	firstIDs.Range(func(any, any) bool { ids++; return true })
	assert.Equal(t, 1, ids)
}

func TestTransfer_IdempotencyKeyScopedToSender(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "ALPHA001", 100)
	f.seed(t, "BRAVO001", 100)

	a := transfer("ALPHA001", "BRAVO001", "10")
	a.IdempotencyKey = "shared"
	b := transfer("BRAVO001", "ALPHA001", "10")
	b.IdempotencyKey = "shared"

	_, replayed, err := f.engine.Transfer(context.Background(), a)
	require.NoError(t, err)
	assert.False(t, replayed)
	_, replayed, err = f.engine.Transfer(context.Background(), b)
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, 2, f.logSize(t))
}

func TestTopUp(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "RECEIVER1", 0)

	tx, err := f.engine.TopUp(context.Background(), TopUpRequest{
		ReceiverAccountNumber: "RECEIVER1",
		Amount:                amt("250.50"),
	})
	require.NoError(t, err)

	assert.Equal(t, accounts.SystemAccount, tx.SenderAccountNumber)
	assert.Equal(t, TypeCredit, tx.Type)
	assert.Equal(t, "Unknown", tx.Location)
	assert.Equal(t, "Unknown", tx.DeviceID)
	assert.Zero(t, tx.FraudPercentage)
	assert.True(t, f.balance(t, "RECEIVER1").Equal(decimal.RequireFromString("250.5")))
	assert.Empty(t, f.scorer.seen)
}

func TestTopUp_Rejections(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "RECEIVER1", 0)

	_, err := f.engine.TopUp(context.Background(), TopUpRequest{ReceiverAccountNumber: "RECEIVER1"})
	assert.ErrorIs(t, err, ErrMissingField)

	_, err = f.engine.TopUp(context.Background(), TopUpRequest{ReceiverAccountNumber: "RECEIVER1", Amount: amt("0")})
	assert.ErrorIs(t, err, ErrNonPositiveAmount)

	_, err = f.engine.TopUp(context.Background(), TopUpRequest{ReceiverAccountNumber: "NOBODY01", Amount: amt("5")})
	assert.ErrorIs(t, err, ErrReceiverNotFound)

	_, err = f.svc.ToggleBlock(context.Background(), "RECEIVER1")
	require.NoError(t, err)
	_, err = f.engine.TopUp(context.Background(), TopUpRequest{ReceiverAccountNumber: "RECEIVER1", Amount: amt("5")})
	assert.ErrorIs(t, err, ErrAccountBlocked)

	assert.Zero(t, f.logSize(t))
}

func TestReverse(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "SENDER01", 100)
	f.seed(t, "RECEIVER1", 0)

	orig, _, err := f.engine.Transfer(context.Background(), transfer("SENDER01", "RECEIVER1", "40"))
	require.NoError(t, err)

	rev, err := f.engine.Reverse(context.Background(), ReverseRequest{TransactionID: orig.ID, Reason: "disputed"})
	require.NoError(t, err)
	assert.Equal(t, orig.ID, rev.ReversalOf)
	assert.Equal(t, "RECEIVER1", rev.SenderAccountNumber)
	assert.Equal(t, "SENDER01", rev.ReceiverAccountNumber)
	assert.Equal(t, TypeCredit, rev.Type)
	assert.True(t, rev.Amount.Equal(orig.Amount))

	assert.True(t, f.balance(t, "SENDER01").Equal(decimal.NewFromInt(100)))
	assert.True(t, f.balance(t, "RECEIVER1").IsZero())

	stored, err := f.store.Get(context.Background(), orig.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.ReversalOf)
	assert.True(t, stored.Amount.Equal(decimal.NewFromInt(40)))

	_, err = f.engine.Reverse(context.Background(), ReverseRequest{TransactionID: orig.ID})
	assert.ErrorIs(t, err, ErrAlreadyReversed)

	_, err = f.engine.Reverse(context.Background(), ReverseRequest{TransactionID: rev.ID})
	assert.ErrorIs(t, err, ErrReversalOfReversal)

	_, err = f.engine.Reverse(context.Background(), ReverseRequest{TransactionID: "missing"})
	assert.ErrorIs(t, err, ErrTransactionNotFound)

	assert.Equal(t, 2, f.logSize(t))
}

func TestReverse_ReceiverMustStillHoldFunds(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "SENDER01", 100)
	f.seed(t, "RECEIVER1", 0)
	f.seed(t, "OTHER001", 0)

	orig, _, err := f.engine.Transfer(context.Background(), transfer("SENDER01", "RECEIVER1", "40"))
	require.NoError(t, err)
	_, _, err = f.engine.Transfer(context.Background(), transfer("RECEIVER1", "OTHER001", "40"))
	require.NoError(t, err)

	_, err = f.engine.Reverse(context.Background(), ReverseRequest{TransactionID: orig.ID})
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestReverse_TopUpReturnsToSystem(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "RECEIVER1", 0)

	top, err := f.engine.TopUp(context.Background(), TopUpRequest{ReceiverAccountNumber: "RECEIVER1", Amount: amt("25")})
	require.NoError(t, err)

	rev, err := f.engine.Reverse(context.Background(), ReverseRequest{TransactionID: top.ID})
	require.NoError(t, err)
	assert.Equal(t, accounts.SystemAccount, rev.ReceiverAccountNumber)
	assert.True(t, f.balance(t, "RECEIVER1").IsZero())
}

func TestHistory_NewestFirst(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "ALPHA001", 100)
	f.seed(t, "BRAVO001", 100)
	f.seed(t, "CHARLIE1", 100)

	t1, _, err := f.engine.Transfer(context.Background(), transfer("ALPHA001", "BRAVO001", "1"))
	require.NoError(t, err)
	_, _, err = f.engine.Transfer(context.Background(), transfer("BRAVO001", "CHARLIE1", "2"))
	require.NoError(t, err)
	t3, _, err := f.engine.Transfer(context.Background(), transfer("CHARLIE1", "ALPHA001", "3"))
	require.NoError(t, err)

	hist, err := f.engine.History(context.Background(), "ALPHA001")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, t3.ID, hist[0].ID)
	assert.Equal(t, t1.ID, hist[1].ID)

	empty := newFixture(t)
	empty.seed(t, "LONELY01", 0)
	hist, err = empty.engine.History(context.Background(), "LONELY01")
	require.NoError(t, err)
	assert.Empty(t, hist)

	_, err = f.engine.History(context.Background(), "NOBODY01")
	assert.ErrorIs(t, err, accounts.ErrAccountNotFound)
}

func TestList_Paginates(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "SENDER01", 100)
	f.seed(t, "RECEIVER1", 0)

	var ids []string
	for range 5 {
		tx, _, err := f.engine.Transfer(context.Background(), transfer("SENDER01", "RECEIVER1", "1"))
		require.NoError(t, err)
		ids = append(ids, tx.ID)
	}

	page, total, err := f.engine.List(context.Background(), pagination.Page{Number: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page, 2)
	assert.Equal(t, ids[2], page[0].ID)
	assert.Equal(t, ids[1], page[1].ID)

	page, _, err = f.engine.List(context.Background(), pagination.Page{Number: 4, Limit: 2})
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestTransfer_TimeGapFromPreviousTransfer(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "SENDER01", 100)
	f.seed(t, "RECEIVER1", 0)

	now := time.Now().UTC()
	f.engine.now = func() time.Time { return now }
	_, _, err := f.engine.Transfer(context.Background(), transfer("SENDER01", "RECEIVER1", "1"))
	require.NoError(t, err)

	now = now.Add(49 * time.Hour)
	_, _, err = f.engine.Transfer(context.Background(), transfer("SENDER01", "RECEIVER1", "1"))
	require.NoError(t, err)

	require.Len(t, f.scorer.seen, 2)
	second := f.scorer.seen[1]
	assert.InDelta(t, 49*60, second.TimeGap, 1)
	assert.Equal(t, 3, second.DaysSinceLastTransaction)
}
