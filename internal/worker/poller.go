package worker

import (
	"context"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kmswo146/pipl-cs/internal/intercom"
	"github.com/kmswo146/pipl-cs/internal/observability/metrics"
	"github.com/kmswo146/pipl-cs/internal/reply"
	"github.com/kmswo146/pipl-cs/internal/store"
	"github.com/kmswo146/pipl-cs/pkg/logging"
)

var workerTracer = otel.Tracer("pipl.internal.worker")

type conversationStore interface {
	ListPending(ctx context.Context, cutoff time.Time) ([]store.ConversationRecord, error)
	MarkReplied(ctx context.Context, conversationID string) error
}

type platformClient interface {
	GetConversation(ctx context.Context, conversationID string) (*intercom.Conversation, error)
	Reply(ctx context.Context, conversationID, body, adminID string) error
}

type decider interface {
	Decide(ctx context.Context, conv *intercom.Conversation, rec *store.ConversationRecord) reply.Outcome
}

// Options tunes the poll loop. The randomized eligibility delay keeps bot
// replies from landing a fixed number of seconds after every message.
type Options struct {
	BotAdminID         string
	PollInterval       time.Duration
	DelayMin           time.Duration
	DelayMax           time.Duration
	InterItemPause     time.Duration
	StalenessTolerance time.Duration
}

// Poller is the single-threaded scheduling loop: it scans the store for aged
// pending conversations, re-fetches each transcript, guards against stale
// reads, and dispatches whatever the reply engine decides.
type Poller struct {
	store    conversationStore
	platform platformClient
	engine   decider
	metrics  *metrics.BotMetrics
	logger   *logging.Logger
	opts     Options

	now   func() time.Time
	delay func() time.Duration
	sleep func(ctx context.Context, d time.Duration) bool
}

// NewPoller builds the dispatcher loop.
func NewPoller(convs conversationStore, platform platformClient, engine decider, botMetrics *metrics.BotMetrics, logger *logging.Logger, opts Options) *Poller {
	if convs == nil {
		panic("worker: conversation store cannot be nil")
	}
	if platform == nil {
		panic("worker: platform client cannot be nil")
	}
	if engine == nil {
		panic("worker: reply engine cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 10 * time.Second
	}
	if opts.StalenessTolerance <= 0 {
		opts.StalenessTolerance = 5 * time.Minute
	}
	if opts.DelayMax < opts.DelayMin {
		opts.DelayMax = opts.DelayMin
	}

	p := &Poller{
		store:    convs,
		platform: platform,
		engine:   engine,
		metrics:  botMetrics,
		logger:   logger,
		opts:     opts,
		now:      time.Now,
		sleep:    sleepCtx,
	}
	p.delay = p.eligibilityDelay
	return p
}

// Run polls until the context is cancelled. A failing cycle is logged and
// retried after the regular interval; nothing short of cancellation stops
// the loop.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("starting conversation poller",
		"poll_interval", p.opts.PollInterval,
		"delay_min", p.opts.DelayMin,
		"delay_max", p.opts.DelayMax)

	for {
		p.runCycle(ctx)
		if !p.sleep(ctx, p.opts.PollInterval) {
			p.logger.Info("conversation poller stopped")
			return ctx.Err()
		}
	}
}

// runCycle processes one scan of the store. Panics and errors are contained
// here so the outer loop survives anything a cycle throws.
func (p *Poller) runCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("poll cycle panicked", "panic", r)
		}
	}()

	ctx, span := workerTracer.Start(ctx, "worker.PollCycle")
	defer span.End()

	cutoff := p.now().Add(-p.delay())
	records, err := p.store.ListPending(ctx, cutoff)
	if err != nil {
		p.logger.Error("failed to list pending conversations", "error", err)
		return
	}
	if len(records) == 0 {
		return
	}

	p.logger.Info("found pending conversations", "count", len(records))
	span.SetAttributes(attribute.Int("worker.pending", len(records)))

	for i, rec := range records {
		if ctx.Err() != nil {
			return
		}
		p.handle(ctx, rec)
		if i < len(records)-1 && !p.sleep(ctx, p.opts.InterItemPause) {
			return
		}
	}
}

func (p *Poller) handle(ctx context.Context, rec store.ConversationRecord) {
	ctx, span := workerTracer.Start(ctx, "worker.HandleConversation")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.id", rec.ConversationID))

	logger := p.logger.With("conversation_id", rec.ConversationID)

	conv, err := p.platform.GetConversation(ctx, rec.ConversationID)
	if err != nil || conv == nil {
		logger.Error("failed to fetch conversation, retrying next cycle", "error", err)
		p.metrics.ObserveSkip("fetch_failed")
		return
	}

	if reason, stale := p.staleness(conv, rec); stale {
		logger.Warn("stale transcript, retrying next cycle", "reason", reason)
		p.metrics.ObserveSkip(reason)
		return
	}

	started := p.now()
	outcome := p.engine.Decide(ctx, conv, &rec)
	p.metrics.ObserveDecideLatency(outcome.String(), p.now().Sub(started).Seconds())
	p.metrics.ObserveOutcome(outcome.String())

	switch outcome.Kind {
	case reply.OutcomeInactive:
		// Leave pending set so the conversation is revisited once the bot
		// is switched back on.
		logger.Info("bot inactive, leaving conversation pending")
	case reply.OutcomeReply:
		if err := p.platform.Reply(ctx, rec.ConversationID, outcome.Text, p.opts.BotAdminID); err != nil {
			logger.Error("failed to send reply, leaving conversation pending", "error", err)
			return
		}
		if err := p.store.MarkReplied(ctx, rec.ConversationID); err != nil {
			logger.Error("reply sent but failed to mark conversation processed", "error", err)
			return
		}
		logger.Info("reply sent", "length", len(outcome.Text))
	case reply.OutcomeSilence:
		// A triaged no-reply still counts as handled, otherwise the same
		// message would be reprocessed forever.
		if err := p.store.MarkReplied(ctx, rec.ConversationID); err != nil {
			logger.Error("failed to mark silent conversation processed", "error", err)
			return
		}
		logger.Info("resolved silently")
	}
}

// staleness rejects transcripts that predate the write that triggered this
// cycle. The store's last_user_ts is the known write; if the platform's
// conversation is older, or its final turn disagrees with the store beyond
// the tolerance, the fetch raced the webhook and the cycle is skipped.
func (p *Poller) staleness(conv *intercom.Conversation, rec store.ConversationRecord) (string, bool) {
	if !conv.UpdatedAt.IsZero() && rec.LastUserTS.After(conv.UpdatedAt) {
		return "stale_conversation", true
	}

	if len(conv.Messages) > 0 {
		lastTurn := conv.Messages[len(conv.Messages)-1].Timestamp
		if !lastTurn.IsZero() && !rec.LastUserTS.IsZero() {
			diff := rec.LastUserTS.Sub(lastTurn)
			if diff < 0 {
				diff = -diff
			}
			if diff > p.opts.StalenessTolerance {
				return "stale_last_turn", true
			}
		}
	}
	return "", false
}

func (p *Poller) eligibilityDelay() time.Duration {
	if p.opts.DelayMax <= p.opts.DelayMin {
		return p.opts.DelayMin
	}
	return p.opts.DelayMin + rand.N(p.opts.DelayMax-p.opts.DelayMin)
}

// sleepCtx waits for d, returning false if the context is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
