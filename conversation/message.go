package conversation

// Role identifies the author of a transcript message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single entry of a conversation transcript.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
