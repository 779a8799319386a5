package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kmswo146/pipl-cs/internal/llm"
	"github.com/kmswo146/pipl-cs/pkg/logging"
)

var assistantTracer = otel.Tracer("pipl.internal.assistant")

// Mode selects how the reasoning loop is steered.
type Mode string

const (
	// ModeSelfThinking lets the model propose its own steps.
	ModeSelfThinking Mode = "self_thinking"
	// ModePlaybook follows externally supplied steps in order.
	ModePlaybook Mode = "playbook"
)

const (
	defaultMaxIterations = 5
	// Function results other than check_user_plan are trimmed to keep the
	// prompt small. The user-plan lookup must stay complete because its
	// value is the full cross-workspace listing.
	resultTruncateLimit = 1500
)

// Result is the outcome of one reasoning run. RunID correlates the run's
// log lines and trace span.
type Result struct {
	RunID      string
	Answer     string
	Trace      []string
	Success    bool
	Iterations int
}

// Engine is the bounded reasoning loop behind the admin-note assistant: it
// anchors a goal, lets the model request registry lookups, and self-checks
// completion each quiet turn.
type Engine struct {
	gateway   llm.Gateway
	registry  *Registry
	name      string
	model     string
	fastModel string
	maxIter   int
	logger    *logging.Logger
}

// EngineOption configures the reasoning engine.
type EngineOption func(*Engine)

// WithModels overrides the main and fast model tiers.
func WithModels(model, fastModel string) EngineOption {
	return func(e *Engine) {
		e.model = model
		e.fastModel = fastModel
	}
}

// WithMaxIterations bounds the reasoning loop.
func WithMaxIterations(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxIter = n
		}
	}
}

// NewEngine builds the reasoning engine around a gateway and a function
// registry.
func NewEngine(gateway llm.Gateway, registry *Registry, assistantName string, logger *logging.Logger, opts ...EngineOption) *Engine {
	if gateway == nil {
		panic("assistant: gateway cannot be nil")
	}
	if registry == nil {
		panic("assistant: registry cannot be nil")
	}
	if assistantName == "" {
		assistantName = "Assistant"
	}
	if logger == nil {
		logger = logging.Default()
	}

	e := &Engine{
		gateway:  gateway,
		registry: registry,
		name:     assistantName,
		maxIter:  defaultMaxIterations,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs the reasoning loop for one query. contextData is free-form
// situational context (conversation excerpt, user email); playbook is only
// consulted in ModePlaybook.
func (e *Engine) Execute(ctx context.Context, query, contextData string, playbook *Playbook, mode Mode) Result {
	ctx, span := assistantTracer.Start(ctx, "assistant.Execute")
	defer span.End()

	runID := uuid.NewString()
	span.SetAttributes(
		attribute.String("assistant.mode", string(mode)),
		attribute.String("assistant.run_id", runID),
	)

	goal := e.extractGoal(ctx, query)

	var systemPrompt string
	if mode == ModePlaybook && playbook != nil {
		systemPrompt = e.playbookPrompt(playbook, contextData)
	} else {
		systemPrompt = e.selfThinkingPrompt(contextData)
	}

	result := e.loop(ctx, query, systemPrompt, goal)
	result.RunID = runID
	return result
}

func (e *Engine) selfThinkingPrompt(contextData string) string {
	return fmt.Sprintf(`You are %s, solving problems step-by-step with immediate action.

CRITICAL RULES:
- When you need data, call a function IMMEDIATELY by replying with a single JSON object: {"call": {"name": "function_name", "args": {"param": "value"}}}
- Don't just talk about calling functions - ACTUALLY CALL THEM
- Be concise - take action, don't write essays
- Stop when you have the answer

AVAILABLE FUNCTIONS:
%s

Context: %s

Example of CORRECT behavior:
User: "What's the workspace ID?"
You: {"call": {"name": "check_user_plan", "args": {"user_email": "user@example.com"}}}
[After getting results]: "The workspace ID is 12345."`,
		e.name, e.registry.Documentation(), orNone(contextData))
}

func (e *Engine) playbookPrompt(pb *Playbook, contextData string) string {
	var steps strings.Builder
	for i, step := range pb.Steps {
		fmt.Fprintf(&steps, "STEP %d: %s\n", i+1, step)
	}

	return fmt.Sprintf(`You are %s, following a step-by-step playbook to solve problems.

PLAYBOOK STEPS:
%s
INSTRUCTIONS:
- Follow the playbook steps in order
- For each step, determine what information you need
- To gather data, reply with a single JSON object: {"call": {"name": "function_name", "args": {"param": "value"}}}
- Mark each step as COMPLETED when done
- If a step reveals the problem, you can stop early

AVAILABLE FUNCTIONS:
%s

Context: %s`,
		e.name, steps.String(), e.registry.Documentation(), orNone(contextData))
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "None"
	}
	return s
}

func (e *Engine) loop(ctx context.Context, query, systemPrompt, goal string) Result {
	transcript := []llm.ChatMessage{
		{Role: llm.ChatRoleSystem, Content: systemPrompt},
		{Role: llm.ChatRoleUser, Content: fmt.Sprintf("Task: %s\n\nBegin your step-by-step reasoning.", query)},
	}

	result := Result{}
	lastResponse := ""

	for iteration := 1; iteration <= e.maxIter; iteration++ {
		result.Iterations = iteration

		resp, err := e.gateway.Complete(ctx, llm.Request{
			Model:       e.model,
			Messages:    transcript,
			MaxTokens:   1000,
			Temperature: 0.7,
		})
		if err != nil {
			e.logger.Error("reasoning turn failed", "iteration", iteration, "error", err)
			result.Answer = "I'm having trouble connecting to the AI service."
			return result
		}

		lastResponse = resp.Text
		result.Trace = append(result.Trace, fmt.Sprintf("Iteration %d: %s", iteration, resp.Text))

		calls := ParseCalls(resp.Text)
		if len(calls) > 0 {
			transcript = append(transcript,
				llm.ChatMessage{Role: llm.ChatRoleAssistant, Content: resp.Text},
				llm.ChatMessage{Role: llm.ChatRoleUser, Content: e.runCalls(ctx, calls)},
			)
			continue
		}

		if e.goalCompleted(ctx, goal, resp.Text, transcript) {
			result.Answer = resp.Text
			result.Success = true
			return result
		}

		transcript = append(transcript,
			llm.ChatMessage{Role: llm.ChatRoleAssistant, Content: resp.Text},
			llm.ChatMessage{Role: llm.ChatRoleUser, Content: "Continue with your next step."},
		)
	}

	result.Answer = fmt.Sprintf("Reasoning completed after %d steps. Current conclusion: %s", e.maxIter, lastResponse)
	return result
}

// runCalls executes every requested function and renders the results block
// fed back into the transcript. Failures become inline error strings, never
// aborted runs.
func (e *Engine) runCalls(ctx context.Context, calls []Call) string {
	var b strings.Builder
	b.WriteString("Function results:\n")
	for _, call := range calls {
		e.logger.Info("executing assistant function", "function", call.Name)
		result, err := e.registry.Execute(ctx, call.Name, call.Args)
		if err != nil {
			fmt.Fprintf(&b, "%s: Error: %s\n", call.Name, err)
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", call.Name, formatResult(call.Name, result))
	}
	b.WriteString("\nContinue with next step or provide final answer.")
	return b.String()
}

func formatResult(name string, result any) string {
	text := ""
	switch v := result.(type) {
	case string:
		text = v
	default:
		encoded, err := json.Marshal(result)
		if err != nil {
			text = fmt.Sprintf("%v", result)
		} else {
			text = string(encoded)
		}
	}
	if name != "check_user_plan" && len(text) > resultTruncateLimit {
		text = text[:resultTruncateLimit] + "..."
	}
	return text
}

// extractGoal anchors the completion check to intent rather than surface
// text. Any failure falls back to the raw query.
func (e *Engine) extractGoal(ctx context.Context, query string) string {
	prompt := fmt.Sprintf(`Extract the specific goal/objective from this query in a clear, measurable format.

Query: %q

Return ONLY the goal definition as a short sentence. Examples:
- "Find the workspace ID for a specific workspace name"
- "Get all workspace IDs that a user has access to"
- "Diagnose why a campaign is not sending emails"

Goal:`, query)

	resp, err := e.gateway.Complete(ctx, llm.Request{
		Model:       e.fastModel,
		Messages:    []llm.ChatMessage{{Role: llm.ChatRoleUser, Content: prompt}},
		MaxTokens:   100,
		Temperature: 0.1,
	})
	if err != nil {
		e.logger.Warn("goal extraction failed, using raw query", "error", err)
		return query
	}
	if goal := strings.TrimSpace(resp.Text); goal != "" {
		return goal
	}
	return query
}

// goalCompleted asks the fast model for a YES/NO verdict on the stated goal.
// Failures count as not complete so the loop keeps working.
func (e *Engine) goalCompleted(ctx context.Context, goal, currentResponse string, transcript []llm.ChatMessage) bool {
	var recent []string
	if len(transcript) > 2 {
		tail := transcript
		if len(tail) > 4 {
			tail = tail[len(tail)-4:]
		}
		for _, msg := range tail {
			content := msg.Content
			if len(content) > 200 {
				content = content[:200] + "..."
			}
			recent = append(recent, fmt.Sprintf("%s: %s", strings.ToUpper(msg.Role), content))
		}
	}

	prompt := fmt.Sprintf(`Determine if the goal has been fully achieved based on the current response and context.

GOAL: %s

RECENT CONTEXT:
%s

CURRENT RESPONSE: %s

Has the goal been fully achieved? Answer ONLY "YES" or "NO" with brief reasoning.

Answer:`, goal, strings.Join(recent, "\n"), currentResponse)

	resp, err := e.gateway.Complete(ctx, llm.Request{
		Model:       e.fastModel,
		Messages:    []llm.ChatMessage{{Role: llm.ChatRoleUser, Content: prompt}},
		MaxTokens:   50,
		Temperature: 0.1,
	})
	if err != nil {
		e.logger.Warn("goal completion check failed", "error", err)
		return false
	}
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(resp.Text)), "yes")
}
