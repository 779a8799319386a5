package reply

import (
	"encoding/json"
	"fmt"
	"os"
)

// Templates holds the canned reply sets the waterfall draws from. They are
// data, not code, so operators can swap wording without a redeploy.
type Templates struct {
	BugAck    []string `json:"bug_ack"`
	Greeting  []string `json:"greeting"`
	Gratitude []string `json:"gratitude"`
	Clarify   string   `json:"clarify"`
	Apology   string   `json:"apology"`
}

// DefaultTemplates returns the built-in reply sets.
func DefaultTemplates() *Templates {
	return &Templates{
		BugAck: []string{
			"Let us check",
			"let us check",
			"checking",
			"let us look into this",
		},
		Greeting: []string{
			"How can we help?",
			"Hi, how can we help?",
			"hi",
		},
		Gratitude: []string{
			"You're welcome",
			"you're welcome",
			"Welcome!",
			"Welcome",
			"sure, anytime",
			"Glad we could help",
			"Happy to help",
		},
		Clarify: "I didn't receive your message clearly. Could you please try again?",
		Apology: "I'm having trouble processing your request right now. Please try again in a moment.",
	}
}

// LoadTemplates reads a JSON override file. Missing fields keep their
// defaults so a partial override file is valid.
func LoadTemplates(path string) (*Templates, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reply: failed to read templates file: %w", err)
	}

	t := DefaultTemplates()
	if err := json.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("reply: failed to parse templates file: %w", err)
	}
	if t.Clarify == "" || t.Apology == "" {
		return nil, fmt.Errorf("reply: templates file %s must keep clarify and apology replies", path)
	}
	return t, nil
}

// pick selects one entry uniformly. Empty lists yield "" so callers fall
// through to silence.
func pick(randIndex func(n int) int, replies []string) string {
	if len(replies) == 0 {
		return ""
	}
	return replies[randIndex(len(replies))]
}
