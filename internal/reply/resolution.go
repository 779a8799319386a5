package reply

import (
	"regexp"
	"strings"

	"github.com/kmswo146/pipl-cs/internal/intercom"
)

// Resolution handling is deterministic: no model call decides whether a
// "my issue is fixed" message deserves a reply, only these patterns do.

// simpleAckRe matches when the entire message is a bare acknowledgment.
var simpleAckRe = regexp.MustCompile(`^(ok|okay|k|got it|understood|alright|sure)$`)

var gratitudeRes = []*regexp.Regexp{
	regexp.MustCompile(`\bthank you\b`),
	regexp.MustCompile(`\bthanks?\b`),
	regexp.MustCompile(`\bthx\b`),
	regexp.MustCompile(`\bty\b`),
	regexp.MustCompile(`\bappreciate\b`),
	regexp.MustCompile(`\bawesome\b`),
	regexp.MustCompile(`\bgreat\b`),
	regexp.MustCompile(`\bperfect\b`),
	regexp.MustCompile(`\bexcellent\b`),
	regexp.MustCompile(`\bwonderful\b`),
	regexp.MustCompile(`\bfantastic\b`),
	regexp.MustCompile(`\bamazing\b`),
	regexp.MustCompile(`\bhelpful\b`),
	regexp.MustCompile(`\bthat works\b`),
	regexp.MustCompile(`\bthat worked\b`),
	regexp.MustCompile(`\bsolved\b`),
	regexp.MustCompile(`\bfixed\b`),
	regexp.MustCompile(`\bresolved\b`),
}

// resolutionReply decides the reply for an ISSUE_RESOLVED message. Bare
// acknowledgments short-circuit to silence before the gratitude scan; a
// gratitude match draws one canned reply; anything else stays silent.
func resolutionReply(message string, templates *Templates, randIndex func(n int) int) string {
	cleaned := strings.ToLower(strings.TrimSpace(intercom.CleanHTML(message)))

	if simpleAckRe.MatchString(cleaned) {
		return ""
	}
	for _, re := range gratitudeRes {
		if re.MatchString(cleaned) {
			return pick(randIndex, templates.Gratitude)
		}
	}
	return ""
}
