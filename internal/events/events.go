// Package events publishes committed transactions to NATS for downstream
// consumers such as notification and reconciliation services.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/accounts"
	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/logging"
	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/metrics"
	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/transactions"
)

// Message kinds, appended to the base subject.
const (
	KindTransfer = "transfer"
	KindTopUp    = "top_up"
	KindReversal = "reversal"
)

var errNotConnected = errors.New("nats connection not established")

// Conn is the part of *nats.Conn the publisher uses.
type Conn interface {
	PublishMsg(m *nats.Msg) error
}

// Message is the published payload.
type Message struct {
	Kind        string                    `json:"kind"`
	PublishedAt time.Time                 `json:"publishedAt"`
	Transaction *transactions.Transaction `json:"transaction"`
}

// Publisher sends one message per committed transaction to
// <subject>.<kind>. Publishing is fire-and-forget: failures are logged and
// counted, never returned to the transfer.
type Publisher struct {
	conn    Conn
	subject string
}

// NewPublisher creates a publisher on the given base subject.
func NewPublisher(conn Conn, subject string) *Publisher {
	return &Publisher{conn: conn, subject: subject}
}

// Connect dials NATS with reconnect logging.
func Connect(url string, logger *slog.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("wallet"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return nc, nil
}

// Ping reports whether nc is connected; it backs the readiness check.
func Ping(nc *nats.Conn) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if nc == nil || !nc.IsConnected() {
			return errNotConnected
		}
		timeout := 2 * time.Second
		if dl, ok := ctx.Deadline(); ok {
			timeout = time.Until(dl)
		}
		return nc.FlushTimeout(timeout)
	}
}

// Notify implements transactions.Notifier.
func (p *Publisher) Notify(ctx context.Context, tx *transactions.Transaction) {
	kind := KindOf(tx)
	data, err := json.Marshal(Message{Kind: kind, PublishedAt: time.Now().UTC(), Transaction: tx})
	if err != nil {
		metrics.EventsPublishedTotal.WithLabelValues("error").Inc()
		logging.L(ctx).Error("failed to encode transaction event", "transaction_id", tx.ID, "error", err)
		return
	}

	msg := nats.NewMsg(p.subject + "." + kind)
	msg.Data = data
	// JetStream streams use Nats-Msg-Id to drop duplicate publishes.
	msg.Header.Set(nats.MsgIdHdr, tx.ID)

	if err := p.conn.PublishMsg(msg); err != nil {
		metrics.EventsPublishedTotal.WithLabelValues("error").Inc()
		logging.L(ctx).Warn("failed to publish transaction event",
			"transaction_id", tx.ID, "subject", msg.Subject, "error", err)
		return
	}
	metrics.EventsPublishedTotal.WithLabelValues("ok").Inc()
}

// KindOf classifies a committed transaction.
func KindOf(tx *transactions.Transaction) string {
	switch {
	case tx.ReversalOf != "":
		return KindReversal
	case tx.SenderAccountNumber == accounts.SystemAccount:
		return KindTopUp
	default:
		return KindTransfer
	}
}
