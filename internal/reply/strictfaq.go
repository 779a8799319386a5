package reply

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kmswo146/pipl-cs/internal/intercom"
	"github.com/kmswo146/pipl-cs/internal/llm"
	"github.com/kmswo146/pipl-cs/internal/store"
	"github.com/kmswo146/pipl-cs/pkg/logging"
)

const (
	matchThreshold    = 0.95
	faqHistoryLimit   = 20
	faqResponseTokens = 150
)

const faqSystemPrompt = `You are a human customer support that follows strict rule (never disclose that you're an AI) for PlusVibe.ai (a cold email automation SaaS). Determine if the customer question EXACTLY matches one of the predefined FAQ questions.

Be EXTREMELY strict - only return a match if you are 100% confident the customer is asking the exact same thing.

Return JSON format:
{"num": [FAQ number if confident, otherwise 0], "confidence": [0.0 to 1.0]}`

type knowledgeBase interface {
	LoadAll(ctx context.Context) ([]store.QAEntry, error)
}

// Matcher is the strict canned-answer lookup stage. It only speaks when the
// model is nearly certain the question is one it has seen before; a wrong
// canned answer costs more than falling through to silence.
type Matcher struct {
	gateway llm.Gateway
	kb      knowledgeBase
	model   string
	logger  *logging.Logger
}

// NewMatcher builds the knowledge-base matcher.
func NewMatcher(gateway llm.Gateway, kb knowledgeBase, model string, logger *logging.Logger) *Matcher {
	if gateway == nil {
		panic("reply: gateway cannot be nil")
	}
	if kb == nil {
		panic("reply: knowledge base cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Matcher{gateway: gateway, kb: kb, model: model, logger: logger}
}

// Match returns the model's confidence and, only above the acceptance bar,
// the decoded answer. Every failure path yields an empty answer, never an
// error: the waterfall treats a miss and a failure identically.
func (m *Matcher) Match(ctx context.Context, message string, history []intercom.Message) (float64, string) {
	ctx, span := replyTracer.Start(ctx, "reply.Match")
	defer span.End()

	entries, err := m.kb.LoadAll(ctx)
	if err != nil {
		m.logger.Error("failed to load knowledge base", "error", err)
		return 0, ""
	}
	if len(entries) == 0 {
		m.logger.Debug("knowledge base empty, skipping match")
		return 0, ""
	}

	confidence, num := m.query(ctx, message, history, entries)
	span.SetAttributes(
		attribute.Float64("faq.confidence", confidence),
		attribute.Int("faq.num", num),
	)

	if confidence < matchThreshold || num < 1 || num > len(entries) {
		return confidence, ""
	}

	m.logger.Info("knowledge base match", "num", num, "confidence", confidence)
	return confidence, DecodeAnswer(entries[num-1].Answer)
}

func (m *Matcher) query(ctx context.Context, message string, history []intercom.Message, entries []store.QAEntry) (float64, int) {
	var catalogue strings.Builder
	catalogue.WriteString("Available FAQ questions:\n")
	for i, entry := range entries {
		fmt.Fprintf(&catalogue, "%d. %s\n", i+1, entry.Question)
	}

	var histContext string
	if h := buildHistoryContext(history, faqHistoryLimit); h != "" {
		histContext = "\nConversation history: (oldest on top)\n" + strings.TrimPrefix(h, "Recent conversation history:\n")
	}

	userContent := fmt.Sprintf("Customer question: %q\n%s\n%s\n\nReturn JSON with FAQ number and confidence.",
		message, histContext, catalogue.String())

	resp, err := m.gateway.Complete(ctx, llm.Request{
		Model: m.model,
		Messages: []llm.ChatMessage{
			{Role: llm.ChatRoleSystem, Content: faqSystemPrompt},
			{Role: llm.ChatRoleUser, Content: userContent},
		},
		MaxTokens:      faqResponseTokens,
		Temperature:    0.1,
		ResponseFormat: llm.ResponseFormatJSON,
	})
	if err != nil {
		m.logger.Error("knowledge base match call failed", "error", err)
		return 0, 0
	}

	var parsed struct {
		Num        int     `json:"num"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(resp.Text), &parsed); err != nil {
		m.logger.Error("failed to parse match response", "error", err, "raw", resp.Text)
		return 0, 0
	}

	return clampConfidence(parsed.Confidence), parsed.Num
}

// DecodeAnswer normalizes a stored answer for outbound delivery. Answers
// arrive single- or occasionally double-URL-encoded from the ingest
// pipeline; a second decode pass runs only when the first changed the
// string. Braces, ampersands, and quotes are then rewritten as numeric
// character references so template-like tokens ({{...}}) survive the
// outbound transport. Applying the transform to its own output is a no-op.
func DecodeAnswer(raw string) string {
	decoded := raw
	if once, err := url.PathUnescape(raw); err == nil {
		decoded = once
		if decoded != raw {
			if twice, err := url.PathUnescape(decoded); err == nil {
				decoded = twice
			}
		}
	}
	return escapeCharRefs(decoded)
}

// escapeCharRefs rewrites { } " and & as numeric character references,
// leaving existing &#NNN; references untouched so repeated application is
// stable.
func escapeCharRefs(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			b.WriteString("&#123;")
		case '}':
			b.WriteString("&#125;")
		case '"':
			b.WriteString("&#34;")
		case '&':
			if end := charRefEnd(s, i); end > 0 {
				b.WriteString(s[i:end])
				i = end - 1
			} else {
				b.WriteString("&#38;")
			}
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// charRefEnd returns the index just past a numeric character reference
// starting at i, or 0 if s[i:] is not one.
func charRefEnd(s string, i int) int {
	j := i + 1
	if j >= len(s) || s[j] != '#' {
		return 0
	}
	j++
	digits := 0
	for j < len(s) && s[j] >= '0' && s[j] <= '9' {
		j++
		digits++
	}
	if digits == 0 || j >= len(s) || s[j] != ';' {
		return 0
	}
	return j + 1
}
