package domain

// Provider kinds understood by the participant factory.
const (
	ProviderAnthropic  = "anthropic"
	ProviderOpenAI     = "openai"
	ProviderGoogle     = "google"
	ProviderXAI        = "xai"
	ProviderGroq       = "groq"
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
	ProviderBedrock    = "bedrock"
)

// ParticipantDescriptor is the immutable display and backend metadata for
// one debate participant.
type ParticipantDescriptor struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Model    string `json:"model"`
	Color    string `json:"color"`
	Avatar   string `json:"avatar"`
	Provider string `json:"provider"`
}
