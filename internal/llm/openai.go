package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kmswo146/pipl-cs/pkg/logging"
)

var llmTracer = otel.Tracer("pipl.internal.llm")

type chatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIConfig describes how to reach the Azure OpenAI deployment.
type OpenAIConfig struct {
	Endpoint     string
	APIKey       string
	APIVersion   string
	DefaultModel string
	Timeout      time.Duration
}

// OpenAIGateway implements Gateway against Azure OpenAI with collaborator-owned
// retry behavior.
type OpenAIGateway struct {
	client       chatClient
	defaultModel string
	policy       RetryPolicy
	callTimeout  time.Duration
	logger       *logging.Logger
}

var _ Gateway = (*OpenAIGateway)(nil)

// NewOpenAIGateway validates the configuration and returns a ready gateway.
func NewOpenAIGateway(cfg OpenAIConfig, policy RetryPolicy, logger *logging.Logger) (*OpenAIGateway, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("llm: endpoint required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("llm: api key required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	clientCfg := openai.DefaultAzureConfig(cfg.APIKey, cfg.Endpoint)
	if cfg.APIVersion != "" {
		clientCfg.APIVersion = cfg.APIVersion
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &OpenAIGateway{
		client:       openai.NewClientWithConfig(clientCfg),
		defaultModel: cfg.DefaultModel,
		policy:       policy.normalized(),
		callTimeout:  timeout,
		logger:       logger,
	}, nil
}

// newGatewayWithClient is used by tests to substitute the transport.
func newGatewayWithClient(client chatClient, defaultModel string, policy RetryPolicy, logger *logging.Logger) *OpenAIGateway {
	if logger == nil {
		logger = logging.Default()
	}
	return &OpenAIGateway{
		client:       client,
		defaultModel: defaultModel,
		policy:       policy.normalized(),
		callTimeout:  30 * time.Second,
		logger:       logger,
	}
}

// Complete runs one completion with the configured retry policy. A nil
// response with an error means retries are exhausted.
func (g *OpenAIGateway) Complete(ctx context.Context, req Request) (*Response, error) {
	ctx, span := llmTracer.Start(ctx, "llm.complete")
	defer span.End()

	model := req.Model
	if model == "" {
		model = g.defaultModel
	}
	span.SetAttributes(attribute.String("llm.model", model))

	apiReq := openai.ChatCompletionRequest{
		Model:     model,
		Messages:  toWireMessages(req.Messages),
		MaxTokens: req.MaxTokens,
	}
	if req.Temperature > 0 {
		apiReq.Temperature = req.Temperature
	}
	if req.ResponseFormat == ResponseFormatJSON {
		apiReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	var lastErr error
	for attempt := 0; attempt < g.policy.MaxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
		resp, err := g.client.CreateChatCompletion(callCtx, apiReq)
		cancel()

		if err == nil {
			if len(resp.Choices) == 0 {
				lastErr = errors.New("llm: completion returned no choices")
				span.RecordError(lastErr)
				return nil, lastErr
			}
			span.SetAttributes(attribute.Int("llm.attempts", attempt+1))
			return &Response{
				Text:         strings.TrimSpace(resp.Choices[0].Message.Content),
				InputTokens:  resp.Usage.PromptTokens,
				OutputTokens: resp.Usage.CompletionTokens,
			}, nil
		}

		lastErr = err
		class := classifyError(err)
		delay, retryable := g.policy.delayFor(class, attempt)
		if !retryable {
			span.RecordError(err)
			return nil, fmt.Errorf("llm: completion failed permanently: %w", err)
		}
		if attempt == g.policy.MaxAttempts-1 {
			break
		}

		g.logger.Warn("llm completion failed, retrying",
			"error", err,
			"attempt", attempt+1,
			"max_attempts", g.policy.MaxAttempts,
			"wait", delay.String(),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	span.RecordError(lastErr)
	return nil, fmt.Errorf("llm: completion failed after %d attempts: %w", g.policy.MaxAttempts, lastErr)
}

func toWireMessages(messages []ChatMessage) []openai.ChatCompletionMessage {
	wire := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		wire = append(wire, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}
	return wire
}
