package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/kmswo146/pipl-cs/internal/observability/metrics"
	"github.com/kmswo146/pipl-cs/internal/store"
	"github.com/kmswo146/pipl-cs/pkg/logging"
)

type conversationStore interface {
	Get(ctx context.Context, conversationID string) (*store.ConversationRecord, error)
	Upsert(ctx context.Context, conversationID, userID, userEmail string) error
	PauseBot(ctx context.Context, conversationID string) error
	ResetFlags(ctx context.Context, conversationID string) error
}

// NoteProcessor handles admin notes addressed to the assistant. A nil
// processor disables note handling.
type NoteProcessor interface {
	IsCommand(noteText string) bool
	Process(ctx context.Context, conversationID, noteText string) string
	Respond(ctx context.Context, conversationID, response string) error
}

// Handler receives platform webhook deliveries and updates conversation
// state. The sender is trusted; every delivery is acknowledged with 200 so
// the platform never retries into a processing bug.
type Handler struct {
	store   conversationStore
	notes   NoteProcessor
	admin   string
	metrics *metrics.BotMetrics
	logger  *logging.Logger
}

func NewHandler(convs conversationStore, notes NoteProcessor, botAdminID string, m *metrics.BotMetrics, logger *logging.Logger) *Handler {
	if convs == nil {
		panic("webhook: conversation store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: convs, notes: notes, admin: botAdminID, metrics: m, logger: logger}
}

// flexID tolerates numeric and string ids in the same field. The platform is
// inconsistent about which it sends for authors.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*f = ""
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

type author struct {
	ID    flexID `json:"id"`
	Email string `json:"email"`
}

type conversationPart struct {
	Author author `json:"author"`
	Body   string `json:"body"`
}

type event struct {
	Topic string `json:"topic"`
	Data  struct {
		Item struct {
			ID     flexID `json:"id"`
			Source struct {
				Author author `json:"author"`
			} `json:"source"`
			ConversationParts struct {
				ConversationParts []conversationPart `json:"conversation_parts"`
			} `json:"conversation_parts"`
		} `json:"item"`
	} `json:"data"`
}

// Handle processes one webhook delivery. Processing errors are logged and
// counted but never surfaced to the sender.
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	var evt event
	if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
		h.logger.Warn("failed to decode webhook payload", "error", err)
		h.metrics.ObserveWebhook("unknown", "bad_payload")
		writeOK(w)
		return
	}

	topic := evt.Topic
	if topic == "" {
		topic = "unknown"
	}
	h.logger.Info("received webhook", "topic", topic)

	var err error
	status := "ok"
	switch topic {
	case "conversation.user.created", "conversation.user.replied":
		err = h.handleUserMessage(r.Context(), evt)
	case "conversation.admin.replied":
		err = h.handleAdminReply(r.Context(), evt)
	case "conversation.admin.noted", "conversation.admin.note.created":
		err = h.handleAdminNote(r.Context(), evt)
	case "conversation.admin.closed":
		err = h.handleClosed(r.Context(), evt)
	default:
		h.logger.Info("unhandled webhook topic", "topic", topic)
		status = "ignored"
	}
	if err != nil {
		h.logger.Error("failed to process webhook", "topic", topic, "error", err)
		status = "error"
	}
	h.metrics.ObserveWebhook(topic, status)
	writeOK(w)
}

// handleUserMessage marks the conversation as waiting for a bot reply. A
// paused conversation is left alone so a human keeps the thread.
func (h *Handler) handleUserMessage(ctx context.Context, evt event) error {
	conversationID := string(evt.Data.Item.ID)
	if conversationID == "" {
		return errors.New("webhook: user message without conversation id")
	}
	userID := string(evt.Data.Item.Source.Author.ID)
	email := evt.Data.Item.Source.Author.Email

	rec, err := h.store.Get(ctx, conversationID)
	if err != nil && !errors.Is(err, store.ErrConversationNotFound) {
		return fmt.Errorf("webhook: failed to load conversation %s: %w", conversationID, err)
	}
	if rec != nil && rec.BotPaused {
		h.logger.Info("bot paused, ignoring user message", "conversation_id", conversationID)
		return nil
	}

	if err := h.store.Upsert(ctx, conversationID, userID, email); err != nil {
		return fmt.Errorf("webhook: failed to upsert conversation %s: %w", conversationID, err)
	}
	h.logger.Info("conversation marked pending", "conversation_id", conversationID, "user_email", email)
	return nil
}

// handleAdminReply pauses the bot when a human teammate takes over. Replies
// posted by the bot's own admin account change nothing.
func (h *Handler) handleAdminReply(ctx context.Context, evt event) error {
	conversationID := string(evt.Data.Item.ID)
	if conversationID == "" {
		return errors.New("webhook: admin reply without conversation id")
	}
	parts := evt.Data.Item.ConversationParts.ConversationParts
	if len(parts) == 0 {
		return errors.New("webhook: admin reply without conversation parts")
	}
	adminID := string(parts[0].Author.ID)

	if adminID == h.admin {
		h.logger.Info("bot admin replied, no action", "conversation_id", conversationID)
		return nil
	}
	if err := h.store.PauseBot(ctx, conversationID); err != nil {
		return fmt.Errorf("webhook: failed to pause conversation %s: %w", conversationID, err)
	}
	h.logger.Info("human admin replied, bot paused", "conversation_id", conversationID, "admin_id", adminID)
	return nil
}

// handleAdminNote runs the assistant when a note is addressed to it.
func (h *Handler) handleAdminNote(ctx context.Context, evt event) error {
	if h.notes == nil {
		return nil
	}
	conversationID := string(evt.Data.Item.ID)
	parts := evt.Data.Item.ConversationParts.ConversationParts
	if conversationID == "" || len(parts) == 0 {
		return nil
	}
	noteText := parts[0].Body
	if string(parts[0].Author.ID) == h.admin {
		return nil
	}
	if !h.notes.IsCommand(noteText) {
		return nil
	}

	response := h.notes.Process(ctx, conversationID, noteText)
	if err := h.notes.Respond(ctx, conversationID, response); err != nil {
		return fmt.Errorf("webhook: assistant response for %s: %w", conversationID, err)
	}
	return nil
}

func (h *Handler) handleClosed(ctx context.Context, evt event) error {
	conversationID := string(evt.Data.Item.ID)
	if conversationID == "" {
		return errors.New("webhook: close event without conversation id")
	}
	if err := h.store.ResetFlags(ctx, conversationID); err != nil {
		return fmt.Errorf("webhook: failed to reset conversation %s: %w", conversationID, err)
	}
	h.logger.Info("conversation closed, flags reset", "conversation_id", conversationID)
	return nil
}

func writeOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
