package reply

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kmswo146/pipl-cs/internal/intercom"
	"github.com/kmswo146/pipl-cs/internal/llm"
	"github.com/kmswo146/pipl-cs/pkg/logging"
)

var replyTracer = otel.Tracer("pipl.internal.reply")

// Category is the closed set of triage intents.
type Category string

const (
	CategoryBugReport        Category = "BUG_REPORT"
	CategoryNoFollowupReply  Category = "NO_FOLLOWUP_REPLY"
	CategoryProperQuestion   Category = "PROPER_QUESTION"
	CategoryNonEnglish       Category = "NON_ENGLISH"
	CategoryGreetingOnly     Category = "GREETING_ONLY"
	CategoryUnhappyWithAdmin Category = "UNHAPPY_WITH_ADMIN"
	CategoryPromotionalEmail Category = "PROMOTIONAL_EMAIL"
	CategoryIssueResolved    Category = "ISSUE_RESOLVED"
)

// Action is the primitive a category maps to.
type Action int

const (
	// ActionHandOff passes the message to the strict knowledge-base matcher.
	ActionHandOff Action = iota
	// ActionSilence ends the waterfall with no reply.
	ActionSilence
	// ActionReply sends one canned reply and terminates.
	ActionReply
	// ActionReplyThenEscalate sends an acknowledgment and signals a deeper
	// stage. No deeper stage is implemented, so the acknowledgment is
	// effectively terminal.
	ActionReplyThenEscalate
	// ActionResolution runs the deterministic resolution sub-rule.
	ActionResolution
)

const (
	minConfidence            = 0.7
	minPromotionalConfidence = 0.9
	triageHistoryLimit       = 15
)

// Decision is the outcome of one triage pass.
type Decision struct {
	Category   Category
	Action     Action
	ReplyText  string
	Confidence float64
	// NextStage is 1 for a knowledge-base hand-off, 2 for a bug-report
	// escalation, 0 when the decision is terminal.
	NextStage int
}

const triageSystemPrompt = `You are a message categorizer for PlusVibe.ai (formely call pipl.ai) customer support. Analyze the ENTIRE conversation context and categorize the customer's intent into one of these types:

1. BUG_REPORT - Customer is reporting a bug, issue, or problem with the service
2. NO_FOLLOWUP_REPLY - Simple acknowledgments like "ok", "thanks", "got it" that don't expect a response
3. PROPER_QUESTION - A genuine question or request that needs a detailed answer
4. NON_ENGLISH - Message is not in English
5. GREETING_ONLY - Just a greeting without any specific question or context
6. UNHAPPY_WITH_ADMIN - Customer is expressing dissatisfaction with a previous admin response OR asking the same/similar question again after receiving an admin response (indicating they weren't satisfied with the previous answer)
7. PROMOTIONAL_EMAIL - Marketing or promotional content, advertisements, spam, or unsolicited commercial messages. Only categorize as this if you are highly confident (>0.9) it's promotional content.
8. ISSUE_RESOLVED - Customer is indicating their issue has been resolved or expressing satisfaction/gratitude after receiving help. Look at the conversation context to determine if this is a resolution response.

Return JSON format:
{"category": "[CATEGORY_NAME]", "confidence": [0.0 to 1.0]}

CRITICAL INSTRUCTIONS:
1. ANALYZE THE ENTIRE CONVERSATION CONTEXT, not just the last message
2. When the current message is vague or general (like "I expect an answer", "please help", "any update?", "hi"), look at the FULL conversation history to understand what the customer is actually asking about
3. If they have asked specific questions earlier in the conversation, treat the current message as a PROPER_QUESTION that should trigger answering those previous questions
4. Consider the conversation flow: if a customer asked a detailed question earlier and now sends a brief follow-up, it's still about their original question
5. For images/attachments, consider them as part of the customer's question or issue

IMPORTANT: For ISSUE_RESOLVED category, consider the conversation context - this should be used when the customer is responding positively after receiving help or indicating their problem is solved.
IMPORTANT: For UNHAPPY_WITH_ADMIN category, look for:
- Direct expressions of dissatisfaction ("this doesn't work", "that's not helpful", "I already tried that")
- Escalation language ("I need to speak to someone else", "this isn't working")
- Repeated questions after receiving admin responses (indicates dissatisfaction with previous answers)`

// Classifier is the first triage stage over an inbound customer message.
type Classifier struct {
	gateway   llm.Gateway
	templates *Templates
	model     string
	logger    *logging.Logger
	randIndex func(n int) int
}

// NewClassifier builds the triage classifier. An empty model uses the
// gateway's default.
func NewClassifier(gateway llm.Gateway, templates *Templates, model string, logger *logging.Logger) *Classifier {
	if gateway == nil {
		panic("reply: gateway cannot be nil")
	}
	if templates == nil {
		templates = DefaultTemplates()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Classifier{
		gateway:   gateway,
		templates: templates,
		model:     model,
		logger:    logger,
		randIndex: rand.IntN,
	}
}

// Classify categorizes the message and maps the category to an action.
// It never fails: any gateway or parse failure collapses to the
// PROPER_QUESTION hand-off so real questions are never dropped.
func (c *Classifier) Classify(ctx context.Context, message string, history []intercom.Message) Decision {
	ctx, span := replyTracer.Start(ctx, "reply.Classify")
	defer span.End()

	category, confidence := c.categorize(ctx, message, history)

	if category == CategoryPromotionalEmail && confidence < minPromotionalConfidence {
		c.logger.Debug("promotional confidence below bar, reclassifying",
			"confidence", confidence)
		category = CategoryProperQuestion
	} else if confidence < minConfidence {
		c.logger.Debug("low triage confidence, defaulting to proper question",
			"category", category, "confidence", confidence)
		category = CategoryProperQuestion
	}
	if _, known := categoryActions[category]; !known {
		c.logger.Warn("unknown triage category, defaulting to proper question",
			"category", category)
		category = CategoryProperQuestion
	}

	span.SetAttributes(
		attribute.String("triage.category", string(category)),
		attribute.Float64("triage.confidence", confidence),
	)

	return c.decide(category, confidence, message)
}

var categoryActions = map[Category]Action{
	CategoryBugReport:        ActionReplyThenEscalate,
	CategoryNoFollowupReply:  ActionSilence,
	CategoryProperQuestion:   ActionHandOff,
	CategoryNonEnglish:       ActionReply,
	CategoryGreetingOnly:     ActionReply,
	CategoryUnhappyWithAdmin: ActionSilence,
	CategoryPromotionalEmail: ActionSilence,
	CategoryIssueResolved:    ActionResolution,
}

func (c *Classifier) decide(category Category, confidence float64, message string) Decision {
	d := Decision{Category: category, Action: categoryActions[category], Confidence: confidence}

	switch d.Action {
	case ActionHandOff:
		d.NextStage = 1
	case ActionReplyThenEscalate:
		d.ReplyText = pick(c.randIndex, c.templates.BugAck)
		d.NextStage = 2
	case ActionReply:
		d.ReplyText = pick(c.randIndex, c.templates.Greeting)
	case ActionResolution:
		d.ReplyText = resolutionReply(message, c.templates, c.randIndex)
	}
	return d
}

func (c *Classifier) categorize(ctx context.Context, message string, history []intercom.Message) (Category, float64) {
	userContent := fmt.Sprintf("Customer message: %q\n\nCategorize this message and return JSON with category and confidence.", message)
	if histContext := buildHistoryContext(history, triageHistoryLimit); histContext != "" {
		userContent = fmt.Sprintf(`%s

CURRENT MESSAGE: %q

Based on the ENTIRE conversation above, categorize the customer's intent. Pay special attention to any previous questions or issues that may not be resolved, and consider how the current message relates to the overall conversation flow.`, histContext, message)
	}

	resp, err := c.gateway.Complete(ctx, llm.Request{
		Model: c.model,
		Messages: []llm.ChatMessage{
			{Role: llm.ChatRoleSystem, Content: triageSystemPrompt},
			{Role: llm.ChatRoleUser, Content: userContent},
		},
		MaxTokens:      150,
		Temperature:    0.1,
		ResponseFormat: llm.ResponseFormatJSON,
	})
	if err != nil {
		c.logger.Error("triage call failed, failing open", "error", err)
		return CategoryProperQuestion, 0
	}

	var parsed struct {
		Category   string  `json:"category"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(resp.Text), &parsed); err != nil {
		c.logger.Error("failed to parse triage response", "error", err, "raw", resp.Text)
		return CategoryProperQuestion, 0
	}

	return Category(strings.ToUpper(strings.TrimSpace(parsed.Category))), clampConfidence(parsed.Confidence)
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// buildHistoryContext renders up to limit prior turns, oldest first, in the
// Customer:/Support: transcript form both stages feed the model.
func buildHistoryContext(history []intercom.Message, limit int) string {
	if len(history) == 0 {
		return ""
	}
	if len(history) > limit {
		history = history[len(history)-limit:]
	}

	var b strings.Builder
	b.WriteString("Recent conversation history:\n")
	lines := 0
	for _, msg := range history {
		text := intercom.CleanHTML(msg.Body)
		if text == "" {
			text = intercom.FormatAttachments(msg.Attachments)
		}
		if text == "" {
			continue
		}
		role := "Support"
		if msg.Role == intercom.RoleUser {
			role = "Customer"
		}
		b.WriteString(role)
		b.WriteString(": ")
		b.WriteString(text)
		b.WriteByte('\n')
		lines++
	}
	if lines == 0 {
		return ""
	}
	return b.String()
}
