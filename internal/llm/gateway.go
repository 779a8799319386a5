package llm

import "context"

const (
	ChatRoleSystem    = "system"
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// ChatMessage is the internal message representation passed to the gateway.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResponseFormat constrains the shape of the completion output.
type ResponseFormat string

const (
	// ResponseFormatText is the default free-form output.
	ResponseFormatText ResponseFormat = "text"
	// ResponseFormatJSON forces a single JSON object.
	ResponseFormatJSON ResponseFormat = "json_object"
)

// Request describes one completion call.
type Request struct {
	Model          string
	Messages       []ChatMessage
	MaxTokens      int
	Temperature    float32
	ResponseFormat ResponseFormat
}

// Response is the completion result.
type Response struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Gateway is the text-completion collaborator. Implementations own all
// retry behavior: an error return means retries are exhausted and callers
// must apply their documented fail-open or fail-safe default.
type Gateway interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}
