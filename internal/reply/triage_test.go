package reply

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kmswo146/pipl-cs/internal/intercom"
	"github.com/kmswo146/pipl-cs/pkg/logging"
)

func newTestClassifier(gw *scriptedGateway) *Classifier {
	c := NewClassifier(gw, DefaultTemplates(), "", logging.New("error"))
	c.randIndex = func(int) int { return 0 }
	return c
}

func TestClassifyActionMapping(t *testing.T) {
	tests := []struct {
		name      string
		response  string
		category  Category
		action    Action
		nextStage int
		hasReply  bool
	}{
		{
			name:      "proper question hands off",
			response:  `{"category": "PROPER_QUESTION", "confidence": 0.85}`,
			category:  CategoryProperQuestion,
			action:    ActionHandOff,
			nextStage: 1,
		},
		{
			name:      "bug report acknowledges then escalates",
			response:  `{"category": "BUG_REPORT", "confidence": 0.9}`,
			category:  CategoryBugReport,
			action:    ActionReplyThenEscalate,
			nextStage: 2,
			hasReply:  true,
		},
		{
			name:     "greeting replies terminally",
			response: `{"category": "GREETING_ONLY", "confidence": 0.95}`,
			category: CategoryGreetingOnly,
			action:   ActionReply,
			hasReply: true,
		},
		{
			name:     "non english replies terminally",
			response: `{"category": "NON_ENGLISH", "confidence": 0.92}`,
			category: CategoryNonEnglish,
			action:   ActionReply,
			hasReply: true,
		},
		{
			name:     "no followup stays silent",
			response: `{"category": "NO_FOLLOWUP_REPLY", "confidence": 0.88}`,
			category: CategoryNoFollowupReply,
			action:   ActionSilence,
		},
		{
			name:     "unhappy with admin stays silent",
			response: `{"category": "UNHAPPY_WITH_ADMIN", "confidence": 0.8}`,
			category: CategoryUnhappyWithAdmin,
			action:   ActionSilence,
		},
		{
			name:     "promotional above bar stays silent",
			response: `{"category": "PROMOTIONAL_EMAIL", "confidence": 0.95}`,
			category: CategoryPromotionalEmail,
			action:   ActionSilence,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClassifier(&scriptedGateway{responses: []string{tt.response}})

			d := c.Classify(context.Background(), "some message", nil)
			require.Equal(t, tt.category, d.Category)
			require.Equal(t, tt.action, d.Action)
			require.Equal(t, tt.nextStage, d.NextStage)
			if tt.hasReply {
				require.NotEmpty(t, d.ReplyText)
			} else {
				require.Empty(t, d.ReplyText)
			}
		})
	}
}

func TestClassifyLowConfidenceDefaultsToProperQuestion(t *testing.T) {
	for _, response := range []string{
		`{"category": "BUG_REPORT", "confidence": 0.6}`,
		`{"category": "GREETING_ONLY", "confidence": 0.5}`,
		`{"category": "ISSUE_RESOLVED", "confidence": 0.69}`,
	} {
		c := newTestClassifier(&scriptedGateway{responses: []string{response}})

		d := c.Classify(context.Background(), "ambiguous", nil)
		require.Equal(t, CategoryProperQuestion, d.Category, response)
		require.Equal(t, ActionHandOff, d.Action)
		require.Equal(t, 1, d.NextStage)
	}
}

func TestClassifyPromotionalBelowStrictBar(t *testing.T) {
	// 0.85 clears the general 0.7 bar but not the promotional 0.9 bar.
	c := newTestClassifier(&scriptedGateway{responses: []string{`{"category": "PROMOTIONAL_EMAIL", "confidence": 0.85}`}})

	d := c.Classify(context.Background(), "special offer inside", nil)
	require.Equal(t, CategoryProperQuestion, d.Category)
	require.Equal(t, ActionHandOff, d.Action)
}

func TestClassifyUnknownCategoryFailsOpen(t *testing.T) {
	c := newTestClassifier(&scriptedGateway{responses: []string{`{"category": "SOMETHING_NEW", "confidence": 0.99}`}})

	d := c.Classify(context.Background(), "hello", nil)
	require.Equal(t, CategoryProperQuestion, d.Category)
}

func TestClassifyGatewayFailureFailsOpen(t *testing.T) {
	c := newTestClassifier(&scriptedGateway{errs: []error{errors.New("down")}})

	d := c.Classify(context.Background(), "hello", nil)
	require.Equal(t, CategoryProperQuestion, d.Category)
	require.Equal(t, ActionHandOff, d.Action)
}

func TestClassifyMalformedResponseFailsOpen(t *testing.T) {
	c := newTestClassifier(&scriptedGateway{responses: []string{"certainly! the category is BUG_REPORT"}})

	d := c.Classify(context.Background(), "hello", nil)
	require.Equal(t, CategoryProperQuestion, d.Category)
}

func TestClassifyIncludesHistoryContext(t *testing.T) {
	gw := &scriptedGateway{responses: []string{`{"category": "PROPER_QUESTION", "confidence": 0.9}`}}
	c := newTestClassifier(gw)

	history := []intercom.Message{
		{Role: intercom.RoleUser, Body: "<p>my campaign stopped sending</p>"},
		{Role: intercom.RoleAdmin, Body: "<p>which campaign is it?</p>"},
	}
	c.Classify(context.Background(), "any update?", history)

	require.Len(t, gw.requests, 1)
	content := gw.requests[0].Messages[1].Content
	require.Contains(t, content, "Customer: my campaign stopped sending")
	require.Contains(t, content, "Support: which campaign is it?")
	require.Contains(t, content, `CURRENT MESSAGE: "any update?"`)
}

func TestClassifyHistoryTruncatedToLimit(t *testing.T) {
	gw := &scriptedGateway{responses: []string{`{"category": "PROPER_QUESTION", "confidence": 0.9}`}}
	c := newTestClassifier(gw)

	var history []intercom.Message
	for i := 0; i < 30; i++ {
		history = append(history, intercom.Message{Role: intercom.RoleUser, Body: "turn"})
	}
	history[len(history)-triageHistoryLimit].Body = "oldest kept turn"
	history[0].Body = "dropped turn"

	c.Classify(context.Background(), "question", history)

	content := gw.requests[0].Messages[1].Content
	require.Contains(t, content, "oldest kept turn")
	require.NotContains(t, content, "dropped turn")
}
