package intercom

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kmswo146/pipl-cs/pkg/logging"
)

// Config describes how to reach the Intercom REST API.
type Config struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
}

// Client is a narrow Intercom REST client: fetch one conversation, post a
// reply, post an internal note. Everything else the platform offers is out
// of scope.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *logging.Logger
}

// NewClient validates the configuration and returns a ready-to-use client.
func NewClient(cfg Config, logger *logging.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("intercom: base URL required")
	}
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return nil, errors.New("intercom: access token required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.AccessToken,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}, nil
}

// GetConversation fetches the full conversation. A nil conversation with an
// error means the caller cannot proceed this cycle; it must never be treated
// as an empty conversation.
func (c *Client) GetConversation(ctx context.Context, conversationID string) (*Conversation, error) {
	if strings.TrimSpace(conversationID) == "" {
		return nil, errors.New("intercom: conversation id required")
	}

	data, err := c.doRequest(ctx, http.MethodGet, "/conversations/"+conversationID, nil)
	if err != nil {
		return nil, err
	}

	var wire wireConversation
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("intercom: decode conversation %s: %w", conversationID, err)
	}
	return wire.toConversation(), nil
}

// Reply posts a public admin comment into the conversation. A non-2xx status
// is a failure: callers must not mark the conversation processed.
func (c *Client) Reply(ctx context.Context, conversationID, body, adminID string) error {
	return c.post(ctx, conversationID, body, adminID, "comment")
}

// Note posts an internal admin note, invisible to the customer.
func (c *Client) Note(ctx context.Context, conversationID, body, adminID string) error {
	return c.post(ctx, conversationID, body, adminID, "note")
}

func (c *Client) post(ctx context.Context, conversationID, body, adminID, messageType string) error {
	if strings.TrimSpace(conversationID) == "" {
		return errors.New("intercom: conversation id required")
	}
	if strings.TrimSpace(body) == "" {
		return errors.New("intercom: message body required")
	}

	payload := map[string]any{
		"type":         "admin",
		"admin_id":     adminID,
		"message_type": messageType,
		"body":         body,
	}
	_, err := c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/conversations/%s/reply", conversationID), payload)
	return err
}

func (c *Client) doRequest(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body *bytes.Buffer
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("intercom: failed to encode payload: %w", err)
		}
		body = bytes.NewBuffer(data)
	} else {
		body = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("intercom: request build failed: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("intercom: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("intercom: read response failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("intercom: %s %s returned %d: %s", method, path, resp.StatusCode, truncateBody(data))
	}
	return data, nil
}

func truncateBody(data []byte) string {
	const limit = 200
	s := string(data)
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
