package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/kmswo146/pipl-cs/internal/intercom"
	"github.com/kmswo146/pipl-cs/pkg/logging"
)

type platformClient interface {
	GetConversation(ctx context.Context, conversationID string) (*intercom.Conversation, error)
	Note(ctx context.Context, conversationID, body, adminID string) error
}

// NoteProcessor turns admin notes addressed to the assistant into reasoning
// runs and posts the answer back as a note. Customer-visible replies never
// originate here.
type NoteProcessor struct {
	engine     *Engine
	platform   platformClient
	name       string
	botAdminID string
	logger     *logging.Logger
}

// NewNoteProcessor builds the admin-note handler.
func NewNoteProcessor(engine *Engine, platform platformClient, assistantName, botAdminID string, logger *logging.Logger) *NoteProcessor {
	if engine == nil {
		panic("assistant: engine cannot be nil")
	}
	if platform == nil {
		panic("assistant: platform client cannot be nil")
	}
	if assistantName == "" {
		assistantName = "Assistant"
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &NoteProcessor{
		engine:     engine,
		platform:   platform,
		name:       assistantName,
		botAdminID: botAdminID,
		logger:     logger,
	}
}

// IsCommand reports whether a note is addressed to the assistant: its
// cleaned text starts with the assistant's name, case-insensitively.
func (p *NoteProcessor) IsCommand(noteText string) bool {
	clean := strings.TrimSpace(intercom.CleanHTML(noteText))
	return len(clean) > 0 && strings.HasPrefix(strings.ToLower(clean), strings.ToLower(p.name))
}

// Process runs the assistant for one note and returns the response text.
func (p *NoteProcessor) Process(ctx context.Context, conversationID, noteText string) string {
	clean := strings.TrimSpace(intercom.CleanHTML(noteText))
	command := clean
	if len(clean) >= len(p.name) && strings.EqualFold(clean[:len(p.name)], p.name) {
		command = strings.TrimSpace(clean[len(p.name):])
	}
	if command == "" {
		return fmt.Sprintf("Hi! I'm %s, your AI assistant. What would you like me to help with?", titleCase(p.name))
	}

	contextData := p.conversationContext(ctx, conversationID)

	result := p.engine.Execute(ctx, command, contextData, nil, ModeSelfThinking)
	p.logger.Info("assistant note processed",
		"conversation_id", conversationID,
		"run_id", result.RunID,
		"iterations", result.Iterations,
		"success", result.Success)
	return result.Answer
}

// Respond posts the assistant's answer back into the thread as a note.
func (p *NoteProcessor) Respond(ctx context.Context, conversationID, response string) error {
	formatted := fmt.Sprintf("🤖 **%s's Response:**\n\n%s", titleCase(p.name), response)
	if err := p.platform.Note(ctx, conversationID, formatted, p.botAdminID); err != nil {
		return fmt.Errorf("assistant: failed to post note: %w", err)
	}
	return nil
}

// conversationContext renders the last few transcript turns as situational
// context. A fetch failure degrades to no context rather than failing the
// command.
func (p *NoteProcessor) conversationContext(ctx context.Context, conversationID string) string {
	conv, err := p.platform.GetConversation(ctx, conversationID)
	if err != nil || conv == nil {
		p.logger.Warn("failed to fetch conversation for assistant context", "conversation_id", conversationID, "error", err)
		return ""
	}

	var lines []string
	for _, msg := range conv.History(5) {
		text := intercom.CleanHTML(msg.Body)
		if text == "" {
			text = intercom.FormatAttachments(msg.Attachments)
		}
		if text == "" {
			continue
		}
		if len(text) > 200 {
			text = text[:200] + "..."
		}
		lines = append(lines, fmt.Sprintf("%s: %s", strings.ToUpper(string(msg.Role)), text))
	}
	if len(lines) == 0 {
		return ""
	}
	return fmt.Sprintf("Conversation ID: %s\n%s", conversationID, strings.Join(lines, "\n"))
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
