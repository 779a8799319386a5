package assistant

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kmswo146/pipl-cs/internal/llm"
	"github.com/kmswo146/pipl-cs/pkg/logging"
)

// scriptedGateway returns canned completions in order and records requests.
type scriptedGateway struct {
	responses []string
	errs      []error
	requests  []llm.Request
}

func (g *scriptedGateway) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	g.requests = append(g.requests, req)
	idx := len(g.requests) - 1
	if idx < len(g.errs) && g.errs[idx] != nil {
		return nil, g.errs[idx]
	}
	if idx < len(g.responses) {
		return &llm.Response{Text: g.responses[idx]}, nil
	}
	return nil, errors.New("scripted gateway exhausted")
}

func echoRegistry() *Registry {
	reg := NewRegistry()
	reg.RegisterSection("test", "test lookups")
	reg.Register(Definition{
		Name:        "lookup",
		Description: "returns a fixed record",
		Section:     "test",
		Handler: func(_ context.Context, args map[string]string) (any, error) {
			return map[string]string{"key": args["key"], "value": "record-42"}, nil
		},
	})
	reg.Register(Definition{
		Name:        "check_user_plan",
		Description: "returns a long plan listing",
		Section:     "test",
		Handler: func(context.Context, map[string]string) (any, error) {
			return strings.Repeat("w", resultTruncateLimit+500), nil
		},
	})
	reg.Register(Definition{
		Name:        "broken",
		Description: "always fails",
		Section:     "test",
		Handler: func(context.Context, map[string]string) (any, error) {
			return nil, errors.New("backend unavailable")
		},
	})
	return reg
}

func newTestAssistant(gw llm.Gateway, opts ...EngineOption) *Engine {
	return NewEngine(gw, echoRegistry(), "katie", logging.New("error"), opts...)
}

func TestExecuteDirectAnswerSucceedsInOneIteration(t *testing.T) {
	gw := &scriptedGateway{responses: []string{
		"Find the answer to the admin question", // goal extraction
		"The workspace ID is 12345.",            // reasoning turn, no calls
		"YES - the workspace ID was provided",   // goal completion
	}}
	engine := newTestAssistant(gw)

	result := engine.Execute(context.Background(), "what's the workspace id?", "", nil, ModeSelfThinking)
	require.True(t, result.Success)
	require.Equal(t, 1, result.Iterations)
	require.Equal(t, "The workspace ID is 12345.", result.Answer)
	require.Len(t, result.Trace, 1)
}

func TestExecuteRunsFunctionCallsThenConcludes(t *testing.T) {
	gw := &scriptedGateway{responses: []string{
		"Look up record 42",
		`{"call": {"name": "lookup", "args": {"key": "42"}}}`,
		"The value is record-42.",
		"YES",
	}}
	engine := newTestAssistant(gw)

	result := engine.Execute(context.Background(), "look up record 42", "", nil, ModeSelfThinking)
	require.True(t, result.Success)
	require.Equal(t, 2, result.Iterations)
	require.Equal(t, "The value is record-42.", result.Answer)

	// The function results turn is fed back as a user message.
	resultsTurn := gw.requests[2].Messages[len(gw.requests[2].Messages)-1]
	require.Equal(t, llm.ChatRoleUser, resultsTurn.Role)
	require.Contains(t, resultsTurn.Content, "Function results:")
	require.Contains(t, resultsTurn.Content, "record-42")
}

func TestExecuteFunctionFailureBecomesInlineError(t *testing.T) {
	gw := &scriptedGateway{responses: []string{
		"Diagnose the backend",
		`{"call": {"name": "broken", "args": {}}}`,
		"The backend is unavailable.",
		"YES",
	}}
	engine := newTestAssistant(gw)

	result := engine.Execute(context.Background(), "diagnose", "", nil, ModeSelfThinking)
	require.True(t, result.Success)

	resultsTurn := gw.requests[2].Messages[len(gw.requests[2].Messages)-1].Content
	require.Contains(t, resultsTurn, "broken: Error:")
	require.Contains(t, resultsTurn, "backend unavailable")
}

func TestExecuteUnknownFunctionReportedNotIgnored(t *testing.T) {
	gw := &scriptedGateway{responses: []string{
		"Goal",
		`{"call": {"name": "does_not_exist", "args": {}}}`,
		"I cannot find that function.",
		"YES",
	}}
	engine := newTestAssistant(gw)

	engine.Execute(context.Background(), "query", "", nil, ModeSelfThinking)
	resultsTurn := gw.requests[2].Messages[len(gw.requests[2].Messages)-1].Content
	require.Contains(t, resultsTurn, "does_not_exist: Error:")
	require.Contains(t, resultsTurn, "not found")
}

func TestExecuteUserPlanResultsNeverTruncated(t *testing.T) {
	gw := &scriptedGateway{responses: []string{
		"Goal",
		`{"call": {"name": "check_user_plan", "args": {}}}`,
		"Here are all workspaces.",
		"YES",
	}}
	engine := newTestAssistant(gw)

	engine.Execute(context.Background(), "list workspaces", "", nil, ModeSelfThinking)
	resultsTurn := gw.requests[2].Messages[len(gw.requests[2].Messages)-1].Content
	require.Contains(t, resultsTurn, strings.Repeat("w", resultTruncateLimit+500))
	require.NotContains(t, resultsTurn, "www...")
}

func TestExecuteOtherResultsTruncated(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterSection("test", "test")
	reg.Register(Definition{
		Name:        "big_dump",
		Description: "returns a huge blob",
		Section:     "test",
		Handler: func(context.Context, map[string]string) (any, error) {
			return strings.Repeat("x", resultTruncateLimit+500), nil
		},
	})
	gw := &scriptedGateway{responses: []string{
		"Goal",
		`{"call": {"name": "big_dump", "args": {}}}`,
		"Done.",
		"YES",
	}}
	engine := NewEngine(gw, reg, "katie", logging.New("error"))

	engine.Execute(context.Background(), "dump", "", nil, ModeSelfThinking)
	resultsTurn := gw.requests[2].Messages[len(gw.requests[2].Messages)-1].Content
	require.Contains(t, resultsTurn, strings.Repeat("x", resultTruncateLimit)+"...")
	require.NotContains(t, resultsTurn, strings.Repeat("x", resultTruncateLimit+1))
}

func TestExecuteGoalNotCompleteNudgesContinue(t *testing.T) {
	gw := &scriptedGateway{responses: []string{
		"Goal",
		"Partial progress.",
		"NO - still missing data",
		"Full answer.",
		"YES",
	}}
	engine := newTestAssistant(gw)

	result := engine.Execute(context.Background(), "query", "", nil, ModeSelfThinking)
	require.True(t, result.Success)
	require.Equal(t, 2, result.Iterations)
	require.Equal(t, "Full answer.", result.Answer)

	nudge := gw.requests[3].Messages[len(gw.requests[3].Messages)-1]
	require.Equal(t, "Continue with your next step.", nudge.Content)
}

func TestExecuteMaxIterationsBestEffort(t *testing.T) {
	gw := &scriptedGateway{responses: []string{
		"Goal",
		"Attempt 1.", "NO",
		"Attempt 2.", "NO",
	}}
	engine := newTestAssistant(gw, WithMaxIterations(2))

	result := engine.Execute(context.Background(), "query", "", nil, ModeSelfThinking)
	require.False(t, result.Success)
	require.Equal(t, 2, result.Iterations)
	require.Contains(t, result.Answer, "Attempt 2.")
	require.Len(t, result.Trace, 2)
}

func TestExecuteGatewayFailureReturnsFallbackAnswer(t *testing.T) {
	gw := &scriptedGateway{
		responses: []string{"Goal"},
		errs:      []error{nil, errors.New("unreachable")},
	}
	engine := newTestAssistant(gw)

	result := engine.Execute(context.Background(), "query", "", nil, ModeSelfThinking)
	require.False(t, result.Success)
	require.Equal(t, "I'm having trouble connecting to the AI service.", result.Answer)
}

func TestExecuteGoalExtractionFailureFallsBackToQuery(t *testing.T) {
	gw := &scriptedGateway{
		errs:      []error{errors.New("down"), nil, nil},
		responses: []string{"", "Answer.", "YES"},
	}
	engine := newTestAssistant(gw)

	result := engine.Execute(context.Background(), "my literal query", "", nil, ModeSelfThinking)
	require.True(t, result.Success)

	// Goal completion prompt must carry the raw query as the goal.
	completionPrompt := gw.requests[2].Messages[0].Content
	require.Contains(t, completionPrompt, "GOAL: my literal query")
}

func TestExecutePlaybookModeIncludesSteps(t *testing.T) {
	gw := &scriptedGateway{responses: []string{
		"Goal",
		"Following the steps.",
		"YES",
	}}
	engine := newTestAssistant(gw)

	pb, ok := GetPlaybook("campaign_diagnosis")
	require.True(t, ok)

	engine.Execute(context.Background(), "campaign stuck", "user: a@b.com", &pb, ModePlaybook)
	systemPrompt := gw.requests[1].Messages[0].Content
	require.Contains(t, systemPrompt, "PLAYBOOK STEPS:")
	require.Contains(t, systemPrompt, "STEP 1: Check campaign status and configuration")
	require.Contains(t, systemPrompt, "user: a@b.com")
}

func TestExecuteFastModelUsedForGoalCalls(t *testing.T) {
	gw := &scriptedGateway{responses: []string{"Goal", "Answer.", "YES"}}
	engine := newTestAssistant(gw, WithModels("gpt-4.1", "gpt-4o-mini"))

	engine.Execute(context.Background(), "query", "", nil, ModeSelfThinking)
	require.Equal(t, "gpt-4o-mini", gw.requests[0].Model)
	require.Equal(t, "gpt-4.1", gw.requests[1].Model)
	require.Equal(t, "gpt-4o-mini", gw.requests[2].Model)
}
