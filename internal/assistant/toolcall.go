package assistant

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Call is one function invocation requested by the model.
type Call struct {
	Name string            `json:"name"`
	Args map[string]string `json:"args"`
}

// The primary tool-call contract is structured: the model emits a single
// JSON object {"call": {"name": "...", "args": {"k": "v"}}}, either as the
// whole reply or embedded in surrounding prose. The legacy
// FUNCTION_CALL: name(k="v") text protocol is kept only as a fallback shim
// for replies that ignore the contract.

type callEnvelope struct {
	Call  *Call  `json:"call"`
	Calls []Call `json:"calls"`
}

// ParseCalls extracts every function call from a model reply. Structured
// JSON wins; the regex shim only runs when no structured call was found.
func ParseCalls(response string) []Call {
	if calls := parseStructuredCalls(response); len(calls) > 0 {
		return calls
	}
	return parseLegacyCalls(response)
}

func parseStructuredCalls(response string) []Call {
	var calls []Call
	for _, candidate := range jsonCandidates(response) {
		var env callEnvelope
		if err := json.Unmarshal([]byte(candidate), &env); err != nil {
			continue
		}
		if env.Call != nil && env.Call.Name != "" {
			calls = append(calls, normalizeCall(*env.Call))
		}
		for _, c := range env.Calls {
			if c.Name != "" {
				calls = append(calls, normalizeCall(c))
			}
		}
	}
	return calls
}

func normalizeCall(c Call) Call {
	c.Name = strings.TrimSpace(c.Name)
	if c.Args == nil {
		c.Args = map[string]string{}
	}
	return c
}

// jsonCandidates yields balanced top-level {...} snippets from the reply,
// so a call object embedded in prose is still found.
func jsonCandidates(s string) []string {
	var candidates []string
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					candidates = append(candidates, s[start:i+1])
					start = -1
				}
			}
		}
	}
	return candidates
}

var (
	legacyCallRe = regexp.MustCompile(`FUNCTION_CALL:\s*(\w+)\((.*?)\)`)
	legacyArgRe  = regexp.MustCompile(`(\w+)="([^"]*)"`)
)

func parseLegacyCalls(response string) []Call {
	var calls []Call
	for _, match := range legacyCallRe.FindAllStringSubmatch(response, -1) {
		args := map[string]string{}
		for _, pair := range legacyArgRe.FindAllStringSubmatch(match[2], -1) {
			args[pair[1]] = pair[2]
		}
		calls = append(calls, Call{Name: match[1], Args: args})
	}
	return calls
}
