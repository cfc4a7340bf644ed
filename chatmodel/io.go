package chatmodel

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/invopop/jsonschema"
)

// ContentProvider provides the text content of a message.
type ContentProvider interface {
	GetContent() string
}

// InputRequest is the default request envelope with a single user message.
type InputRequest struct {
	Input string `json:"input" jsonschema:"title=Input,description=The message sent by the user to the assistant."`
}

func NewInputRequest(input string) *InputRequest {
	return &InputRequest{Input: input}
}

func (r *InputRequest) ParseInput(raw string) error {
	err := json.Unmarshal([]byte(raw), r)
	if err != nil {
		return errors.WithMessage(ErrFailedUnmarshalInput, err.Error())
	}
	return nil
}

// GetContent gets the content of the message for the chat history
func (r InputRequest) GetContent() string {
	return r.Input
}

func (InputRequest) JSONSchemaExtend(schema *jsonschema.Schema) {
	schema.Title = "Input Request"
}

// MCPInputRequest is the request envelope for chats resumed over MCP,
// the chat ID pins the conversation the message belongs to.
type MCPInputRequest struct {
	ChatID string `json:"chatID,omitempty" jsonschema:"title=Chat ID,description=The unique identifier of the chat session\\, omit to start a new chat."`
	Input  string `json:"input" jsonschema:"title=Input,description=The message sent by the user to the assistant."`
}

func (r *MCPInputRequest) ParseInput(raw string) error {
	err := json.Unmarshal([]byte(raw), r)
	if err != nil {
		return errors.WithMessage(ErrFailedUnmarshalInput, err.Error())
	}
	return nil
}

// GetContent gets the content of the message for the chat history
func (r MCPInputRequest) GetContent() string {
	return r.Input
}

func (MCPInputRequest) JSONSchemaExtend(schema *jsonschema.Schema) {
	schema.Title = "MCP Input Request"
}

// OutputResult is the default response envelope.
type OutputResult struct {
	Content string `json:"content" jsonschema:"title=Response Content,description=The content returned by agent or tool."`
}

func NewOutputResult(content string) *OutputResult {
	return &OutputResult{Content: content}
}

// GetContent gets the content of the message for the chat history
func (r OutputResult) GetContent() string {
	return r.Content
}
