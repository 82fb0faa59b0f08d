package debate

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"roundtable/internal/domain"
)

const engageInstruction = "Please respond to the other participants. Engage directly with their arguments — agree where you do, push back where you don't. Be direct and specific."

// BuildContext renders the user prompt a participant sees in the given round.
//
// Round 1 (or a transcript with nothing from the previous round) shows only
// the question. Later rounds quote, by display name, every other
// participant's record from the previous round. The participant's own
// record is left out, and a participant that failed or has no record there
// is absent.
func BuildContext(question string, transcript domain.Transcript, round int, selfID string) string {
	if round <= 1 || len(transcript) == 0 {
		return firstRoundContext(question)
	}

	others := lo.Filter(transcript.Round(round-1), func(r domain.TurnRecord, _ int) bool {
		return r.ParticipantID != selfID && !r.Failed
	})
	if len(others) == 0 {
		return firstRoundContext(question)
	}

	quoted := lo.Map(others, func(r domain.TurnRecord, _ int) string {
		return fmt.Sprintf("**%s:** %s", r.ParticipantName, r.Content)
	})

	var b strings.Builder
	fmt.Fprintf(&b, "Roundtable question: %s\n\n", question)
	fmt.Fprintf(&b, "Here is what the other participants said in round %d:\n\n", round-1)
	b.WriteString(strings.Join(quoted, "\n\n"))
	b.WriteString("\n\n")
	b.WriteString(engageInstruction)
	return b.String()
}

func firstRoundContext(question string) string {
	return "Question for the roundtable:\n\n" + question
}
