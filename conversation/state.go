package conversation

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcphost/chatmodel"
	"github.com/effective-security/mcphost/mcp"
)

// Tool describes a tool the model may invoke, together with the name of the
// server that provides it.
type Tool struct {
	Server      string          `json:"server"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// State is the transcript and tool table of one conversation.
// It is not safe for concurrent use.
type State struct {
	// ID identifies the conversation, generated when the state is created.
	ID string `json:"id"`
	// SystemPrompt is sent ahead of the transcript on every generation.
	SystemPrompt string `json:"system_prompt,omitempty"`
	// Messages is the append-only transcript.
	Messages []Message `json:"messages"`
	// Tools lists the tools the model was told about.
	Tools []Tool `json:"tools,omitempty"`
	// Rounds counts completed tool rounds across all resolutions.
	Rounds int `json:"rounds"`
}

// NewState creates an empty conversation with a generated ID.
func NewState(systemPrompt string) *State {
	return &State{
		ID:           chatmodel.NewChatID(),
		SystemPrompt: systemPrompt,
	}
}

// Append adds a message to the transcript.
func (s *State) Append(msg Message) {
	s.Messages = append(s.Messages, msg)
}

// AddUserMessage appends a user message.
func (s *State) AddUserMessage(content string) {
	s.Append(Message{Role: RoleUser, Content: content})
}

// AddAssistantMessage appends an assistant message.
func (s *State) AddAssistantMessage(content string) {
	s.Append(Message{Role: RoleAssistant, Content: content})
}

// AddSystemMessage appends a system message.
func (s *State) AddSystemMessage(content string) {
	s.Append(Message{Role: RoleSystem, Content: content})
}

// AddTools registers tools provided by the named server.
func (s *State) AddTools(server string, tools ...mcp.Tool) {
	for _, t := range tools {
		s.Tools = append(s.Tools, Tool{
			Server:      server,
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}
}

// ToolNames returns the registered tool names in registration order.
func (s *State) ToolNames() []string {
	names := make([]string, len(s.Tools))
	for i, t := range s.Tools {
		names[i] = t.Name
	}
	return names
}

// ToolServer returns the server that provides the named tool.
func (s *State) ToolServer(name string) (string, bool) {
	for _, t := range s.Tools {
		if t.Name == name {
			return t.Server, true
		}
	}
	return "", false
}

// SaveFile writes the state as indented JSON, creating parent directories
// as needed.
func (s *State) SaveFile(path string) error {
	bs, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return errors.WithMessage(err, "failed to marshal state")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.WithMessage(err, "failed to create directory")
		}
	}
	if err := os.WriteFile(path, bs, 0o644); err != nil {
		return errors.WithMessage(err, "failed to write state")
	}
	return nil
}

// LoadState reads a state previously written by SaveFile.
func LoadState(path string) (*State, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to read state")
	}
	var s State
	if err := json.Unmarshal(bs, &s); err != nil {
		return nil, errors.WithMessage(err, "failed to unmarshal state")
	}
	return &s, nil
}
