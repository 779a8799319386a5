package reply

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kmswo146/pipl-cs/internal/intercom"
	"github.com/kmswo146/pipl-cs/internal/store"
	"github.com/kmswo146/pipl-cs/pkg/logging"
)

type settingsStore interface {
	BotActive(ctx context.Context) (bool, error)
}

// EngineOption configures the orchestrator.
type EngineOption func(*Engine)

// WithTestingGate restricts stages beyond the classifier and matcher to the
// single test identity while the gate is enabled.
func WithTestingGate(enabled bool, testEmail string) EngineOption {
	return func(e *Engine) {
		e.testingGate = enabled
		e.testEmail = strings.ToLower(strings.TrimSpace(testEmail))
	}
}

// Engine runs the reply waterfall for one inbound customer message: global
// switch first, then triage, then the strict knowledge-base match, then the
// terminal silent fallback.
type Engine struct {
	settings  settingsStore
	triage    *Classifier
	matcher   *Matcher
	templates *Templates
	logger    *logging.Logger

	testingGate bool
	testEmail   string
}

// NewEngine builds the reply orchestrator.
func NewEngine(settings settingsStore, triage *Classifier, matcher *Matcher, templates *Templates, logger *logging.Logger, opts ...EngineOption) *Engine {
	if settings == nil {
		panic("reply: settings store cannot be nil")
	}
	if triage == nil {
		panic("reply: classifier cannot be nil")
	}
	if matcher == nil {
		panic("reply: matcher cannot be nil")
	}
	if templates == nil {
		templates = DefaultTemplates()
	}
	if logger == nil {
		logger = logging.Default()
	}

	e := &Engine{
		settings:  settings,
		triage:    triage,
		matcher:   matcher,
		templates: templates,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Decide runs the waterfall over the fetched transcript. It never panics or
// errors toward the caller: an unexpected failure inside any stage becomes a
// generic apology, the one reply path no classifier approved.
func (e *Engine) Decide(ctx context.Context, conv *intercom.Conversation, rec *store.ConversationRecord) (out Outcome) {
	ctx, span := replyTracer.Start(ctx, "reply.Decide")
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("reply waterfall panicked", "conversation_id", rec.ConversationID, "panic", r)
			out = ReplyWith(e.templates.Apology)
		}
		span.SetAttributes(attribute.String("reply.outcome", out.String()))
	}()

	active, err := e.settings.BotActive(ctx)
	if err != nil {
		e.logger.Error("failed to read bot status, treating as inactive", "error", err)
		return Inactive()
	}
	if !active {
		return Inactive()
	}

	message, history, ok := lastCustomerMessage(conv)
	if message == "" {
		if ok {
			// An image-only message carries nothing to answer.
			return Silence()
		}
		return ReplyWith(e.templates.Clarify)
	}

	decision := e.triage.Classify(ctx, message, history)
	e.logger.Info("triage decision",
		"conversation_id", rec.ConversationID,
		"category", decision.Category,
		"confidence", decision.Confidence,
		"next_stage", decision.NextStage)

	switch decision.Action {
	case ActionSilence:
		return diag(Silence(), decision.Category, 0)
	case ActionReply, ActionResolution:
		return diag(ReplyWith(decision.ReplyText), decision.Category, 0)
	case ActionReplyThenEscalate:
		// Deeper bug-report stages are not implemented; whether or not the
		// gate would allow them, the acknowledgment is what gets sent.
		if !e.stageAllowed(2, rec) {
			e.logger.Debug("deep stage blocked by testing gate", "conversation_id", rec.ConversationID)
		}
		return diag(ReplyWith(decision.ReplyText), decision.Category, 0)
	case ActionHandOff:
		confidence, answer := e.matcher.Match(ctx, message, history)
		if answer != "" {
			return diag(ReplyWith(answer), decision.Category, 1)
		}
		e.logger.Debug("no knowledge base match", "conversation_id", rec.ConversationID, "confidence", confidence)
		if !e.stageAllowed(2, rec) {
			return diag(Silence(), decision.Category, 1)
		}
		// No fallback stage exists yet.
		return diag(Silence(), decision.Category, 1)
	}

	return diag(Silence(), decision.Category, 0)
}

// diag attaches category and stage diagnostics to an outcome.
func diag(o Outcome, cat Category, stage int) Outcome {
	o.Category = cat
	o.Stage = stage
	return o
}

// stageAllowed gates stages beyond the matcher: they always run when the
// gate is off, and only for the configured test identity when it is on.
func (e *Engine) stageAllowed(stage int, rec *store.ConversationRecord) bool {
	if stage < 2 || !e.testingGate {
		return true
	}
	return e.testEmail != "" && strings.EqualFold(rec.UserEmail, e.testEmail)
}

// lastCustomerMessage walks the transcript backward to the nearest customer
// turn and returns its cleaned text plus the turns before it as history.
// ok reports whether a customer turn was found at all; a found turn with an
// empty message means it carried only images.
func lastCustomerMessage(conv *intercom.Conversation) (message string, history []intercom.Message, ok bool) {
	if conv == nil {
		return "", nil, false
	}
	for i := len(conv.Messages) - 1; i >= 0; i-- {
		msg := conv.Messages[i]
		if msg.Role != intercom.RoleUser {
			continue
		}

		text := intercom.CleanHTML(msg.Body)
		if text == "" {
			if placeholder := nonImagePlaceholder(msg.Attachments); placeholder != "" {
				text = placeholder
			}
		}
		return text, conv.Messages[:i], true
	}
	return "", nil, false
}

// nonImagePlaceholder renders attachment descriptions when at least one
// attachment is not an image. Image-only turns yield "" so they are treated
// as having no message.
func nonImagePlaceholder(attachments []intercom.Attachment) string {
	hasOther := false
	for _, a := range attachments {
		if !a.IsImage() {
			hasOther = true
			break
		}
	}
	if !hasOther {
		return ""
	}
	return intercom.FormatAttachments(attachments)
}
