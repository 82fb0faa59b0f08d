package gateway

// MessageType is the "type" discriminator of a wire message.
type MessageType string

const (
	TypeRoundStart    MessageType = "round_start"
	TypeModelStart    MessageType = "model_start"
	TypeThinkingStart MessageType = "thinking_start"
	TypeTextStart     MessageType = "text_start"
	TypeThinkingToken MessageType = "thinking_token"
	TypeToken         MessageType = "token"
	TypeModelDone     MessageType = "model_done"
	TypeError         MessageType = "error"
	TypeRoundDone     MessageType = "round_done"
	TypeDebateDone    MessageType = "debate_done"
)

// Wire messages. Field order is the JSON key order on the wire.

type roundStartMsg struct {
	Type        MessageType `json:"type"`
	Round       int         `json:"round"`
	TotalRounds int         `json:"total_rounds"`
	Parallel    bool        `json:"parallel"`
}

type modelStartMsg struct {
	Type      MessageType `json:"type"`
	ModelID   string      `json:"model_id"`
	ModelName string      `json:"model_name"`
	Color     string      `json:"color"`
	Avatar    string      `json:"avatar"`
	Round     int         `json:"round"`
}

type modelMarkerMsg struct {
	Type    MessageType `json:"type"`
	ModelID string      `json:"model_id"`
}

type tokenMsg struct {
	Type    MessageType `json:"type"`
	ModelID string      `json:"model_id"`
	Token   string      `json:"token"`
}

type modelDoneMsg struct {
	Type    MessageType `json:"type"`
	ModelID string      `json:"model_id"`
	Round   int         `json:"round"`
}

type errorMsg struct {
	Type    MessageType `json:"type"`
	ModelID string      `json:"model_id"`
	Message string      `json:"message"`
}

type roundDoneMsg struct {
	Type  MessageType `json:"type"`
	Round int         `json:"round"`
}

type debateDoneMsg struct {
	Type MessageType `json:"type"`
}
