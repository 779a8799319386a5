package reply

// OutcomeKind discriminates the three possible results of a reply decision.
type OutcomeKind int

const (
	// OutcomeInactive means the bot is globally off. The caller must leave
	// the conversation untouched so it is retried once the bot is back on.
	OutcomeInactive OutcomeKind = iota
	// OutcomeSilence means the message was triaged and deliberately gets no
	// reply. The conversation is still marked processed.
	OutcomeSilence
	// OutcomeReply carries text to send.
	OutcomeReply
)

// Outcome is the tagged result of running the reply waterfall, so callers
// cannot confuse "bot off" with "chose silence". Category and Stage are
// diagnostics for logs and metrics; they carry no dispatch semantics.
type Outcome struct {
	Kind     OutcomeKind
	Text     string
	Category Category
	Stage    int
}

// Inactive reports that the bot is globally disabled.
func Inactive() Outcome { return Outcome{Kind: OutcomeInactive} }

// Silence reports a deliberate no-reply resolution.
func Silence() Outcome { return Outcome{Kind: OutcomeSilence} }

// ReplyWith wraps text to be sent. Empty text collapses to Silence.
func ReplyWith(text string) Outcome {
	if text == "" {
		return Silence()
	}
	return Outcome{Kind: OutcomeReply, Text: text}
}

func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeInactive:
		return "inactive"
	case OutcomeSilence:
		return "silence"
	default:
		return "reply"
	}
}
