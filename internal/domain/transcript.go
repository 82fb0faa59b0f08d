package domain

import "fmt"

// TurnRecord is one participant's finalized output for one round.
type TurnRecord struct {
	ParticipantID   string `json:"model_id"`
	ParticipantName string `json:"model_name"`
	Content         string `json:"content"`
	Round           int    `json:"round"`
	Failed          bool   `json:"failed,omitempty"`
}

// FailedTurnContent is the placeholder content recorded for a participant
// whose stream faulted.
func FailedTurnContent(msg string) string {
	return fmt.Sprintf("[Error: %s]", msg)
}

// Transcript is the ordered history of TurnRecords across completed rounds.
type Transcript []TurnRecord

// Round returns the records for round n in insertion order.
func (t Transcript) Round(n int) []TurnRecord {
	var out []TurnRecord
	for _, r := range t {
		if r.Round == n {
			out = append(out, r)
		}
	}
	return out
}
