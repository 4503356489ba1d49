package ingest

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sync/internal/domain"
	"github.com/spec-kit/ticket-sync/internal/mailbox"
	"github.com/spec-kit/ticket-sync/internal/provision"
	ticketsync "github.com/spec-kit/ticket-sync/internal/sync"
)

// Ingestor turns a parsed email into a ticket, deduplicating on the
// mailbox UID.
type Ingestor interface {
	IngestEmail(ctx context.Context, input ticketsync.EmailInput) (*domain.Ticket, bool, error)
}

// Gateway polls the support mailbox and turns unseen messages into
// tickets. Messages are marked seen only after local persistence, so a
// crash mid-cycle re-delivers the message and the UID dedup in the
// engine absorbs the repeat.
type Gateway struct {
	client      mailbox.Client
	engine      Ingestor
	provisioner provision.Provisioner
	logger      *zap.Logger

	folder       string
	pollInterval time.Duration
	backoffCap   time.Duration
	accountKey   string
}

// Config tunes the polling loop.
type Config struct {
	Folder       string
	PollInterval time.Duration
	BackoffCap   time.Duration

	// AccountKey selects the outbound mail account for welcome mails sent
	// to newly provisioned requesters.
	AccountKey string
}

// NewGateway constructs the gateway.
func NewGateway(client mailbox.Client, engine Ingestor, provisioner provision.Provisioner, cfg Config, logger *zap.Logger) *Gateway {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = time.Minute
	}
	cap := cfg.BackoffCap
	if cap < interval {
		cap = interval
	}
	return &Gateway{
		client:       client,
		engine:       engine,
		provisioner:  provisioner,
		logger:       logger,
		folder:       cfg.Folder,
		pollInterval: interval,
		backoffCap:   cap,
		accountKey:   cfg.AccountKey,
	}
}

// Run polls until ctx is cancelled. Connection failures back off
// exponentially up to the cap; a successful cycle resets the backoff.
func (g *Gateway) Run(ctx context.Context) {
	delay := g.pollInterval
	for {
		if err := g.pollOnce(ctx); err != nil {
			g.logger.Warn("mailbox poll failed", zap.Duration("retry_in", delay), zap.Error(err))
			if !sleep(ctx, delay) {
				return
			}
			delay = minDuration(delay*2, g.backoffCap)
			continue
		}
		delay = g.pollInterval
		if !sleep(ctx, g.pollInterval) {
			return
		}
	}
}

// pollOnce runs a single fetch cycle. Message-level failures are logged
// and skipped so one malformed mail cannot stall the rest of the batch;
// only connection-level failures propagate to the backoff loop.
func (g *Gateway) pollOnce(ctx context.Context) error {
	session, err := g.client.Connect(ctx)
	if err != nil {
		return fmt.Errorf("connect mailbox: %w", err)
	}
	defer session.Close()

	if err := session.SelectFolder(g.folder); err != nil {
		return fmt.Errorf("select folder %s: %w", g.folder, err)
	}
	uids, err := session.SearchUnseen()
	if err != nil {
		return fmt.Errorf("search unseen: %w", err)
	}
	if len(uids) == 0 {
		return nil
	}
	g.logger.Info("unseen messages found", zap.Int("count", len(uids)))

	for _, uid := range uids {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := g.processMessage(ctx, session, uid); err != nil {
			g.logger.Error("message processing failed",
				zap.Uint32("uid", uid), zap.Error(err))
			continue
		}
	}
	return nil
}

func (g *Gateway) processMessage(ctx context.Context, session mailbox.Session, uid uint32) error {
	raw, err := session.Fetch(uid)
	if err != nil {
		return fmt.Errorf("fetch message: %w", err)
	}
	parsed, err := mailbox.ParseMessage(raw)
	if err != nil {
		return fmt.Errorf("parse message: %w", err)
	}
	if parsed.Sender == "" {
		// Unattributable mail stays unseen for inspection.
		return fmt.Errorf("message has no sender address")
	}

	user, _, err := g.provisioner.GetOrCreateUserByEmail(ctx, parsed.Sender, true, g.accountKey)
	if err != nil {
		return fmt.Errorf("provision requester %s: %w", parsed.Sender, err)
	}

	ticket, created, err := g.engine.IngestEmail(ctx, ticketsync.EmailInput{
		UID:        strconv.FormatUint(uint64(uid), 10),
		Sender:     parsed.Sender,
		Subject:    parsed.Subject,
		Body:       parsed.Body,
		RawMessage: string(raw),
		CreatedBy:  &user.ID,
	})
	if err != nil {
		return fmt.Errorf("ingest email: %w", err)
	}
	if created {
		g.logger.Info("ticket created from email",
			zap.Uint32("uid", uid),
			zap.String("ticket_id", ticket.ID.String()),
			zap.String("sender", parsed.Sender))
	}

	if err := session.MarkSeen(uid); err != nil {
		// The ticket is persisted; the next cycle re-fetches the message
		// and dedup keeps it a no-op.
		return fmt.Errorf("mark message seen: %w", err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
