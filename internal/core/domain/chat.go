package domain

type ChatRole string

const (
	RoleSystem    ChatRole = "system"
	RoleAssistant ChatRole = "assistant"
	RoleUser      ChatRole = "user"
)

type ChatMessage struct {
	Role    ChatRole
	Content string
}

// ChatRequest is one completion call. JSON asks the backend for a JSON object response.
type ChatRequest struct {
	Operation   string
	Messages    []ChatMessage
	Temperature float32
	MaxTokens   int
	JSON        bool
}
