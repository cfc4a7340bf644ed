// Package mcp implements the Model Context Protocol: a Client used by
// the host to drive external tool servers, and a Server for exposing
// tools in-process or over a transport.
package mcp

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// LatestProtocolVersion is the protocol revision this package speaks.
const LatestProtocolVersion = "2025-03-26"

// supportedProtocolVersions lists revisions the client accepts from a
// server during the handshake, newest first.
var supportedProtocolVersions = []string{
	LatestProtocolVersion,
	"2024-11-05",
}

// Implementation identifies a client or server implementation.
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// RootsCapability advertises filesystem roots support.
type RootsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ClientCapabilities advertises what the client supports.
type ClientCapabilities struct {
	Experimental map[string]any   `json:"experimental,omitempty"`
	Roots        *RootsCapability `json:"roots,omitempty"`
	Sampling     map[string]any   `json:"sampling,omitempty"`
}

// ToolsCapability advertises tool support.
type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// PromptsCapability advertises prompt support.
type PromptsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ResourcesCapability advertises resource support.
type ResourcesCapability struct {
	Subscribe   bool `json:"subscribe,omitempty"`
	ListChanged bool `json:"listChanged,omitempty"`
}

// ServerCapabilities advertises what the server supports.
type ServerCapabilities struct {
	Experimental map[string]any       `json:"experimental,omitempty"`
	Logging      map[string]any       `json:"logging,omitempty"`
	Prompts      *PromptsCapability   `json:"prompts,omitempty"`
	Resources    *ResourcesCapability `json:"resources,omitempty"`
	Tools        *ToolsCapability     `json:"tools,omitempty"`
}

// InitializeParams is the request body of the initialize handshake.
type InitializeParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ClientCapabilities `json:"capabilities"`
	ClientInfo      Implementation     `json:"clientInfo"`
}

// InitializeResponse is the result body of the initialize handshake.
type InitializeResponse struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      Implementation     `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitempty"`
}

// Tool describes one callable tool as advertised by a server.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ToolsResponse is the result body of tools/list.
type ToolsResponse struct {
	Tools      []Tool  `json:"tools"`
	NextCursor *string `json:"nextCursor,omitempty"`
}

// CallToolParams is the request body of tools/call.
type CallToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ContentType discriminates tool result content blocks.
type ContentType string

const (
	ContentTypeText             ContentType = "text"
	ContentTypeImage            ContentType = "image"
	ContentTypeEmbeddedResource ContentType = "resource"
)

// TextContent is a plain text block.
type TextContent struct {
	Text string `json:"text"`
}

// ImageContent is a base64-encoded image block.
type ImageContent struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
}

// ResourceContent is the payload of an embedded resource block.
type ResourceContent struct {
	Uri      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"`
}

// EmbeddedResource is a resource block embedded in a tool result.
type EmbeddedResource struct {
	Resource ResourceContent `json:"resource"`
}

// Content is one block of a tool result. Exactly one of the typed
// members is set, matching Type.
type Content struct {
	Type             ContentType
	TextContent      *TextContent
	ImageContent     *ImageContent
	EmbeddedResource *EmbeddedResource
}

// NewTextContent creates a text content block.
func NewTextContent(text string) *Content {
	return &Content{
		Type:        ContentTypeText,
		TextContent: &TextContent{Text: text},
	}
}

// NewImageContent creates an image content block.
func NewImageContent(data, mimeType string) *Content {
	return &Content{
		Type:         ContentTypeImage,
		ImageContent: &ImageContent{Data: data, MimeType: mimeType},
	}
}

// NewEmbeddedResourceContent creates an embedded resource block.
func NewEmbeddedResourceContent(resource ResourceContent) *Content {
	return &Content{
		Type:             ContentTypeEmbeddedResource,
		EmbeddedResource: &EmbeddedResource{Resource: resource},
	}
}

// MarshalJSON flattens the active member next to the type tag.
func (c Content) MarshalJSON() ([]byte, error) {
	switch c.Type {
	case ContentTypeText:
		if c.TextContent == nil {
			return nil, errors.New("text content is not set")
		}
		return json.Marshal(struct {
			Type ContentType `json:"type"`
			Text string      `json:"text"`
		}{c.Type, c.TextContent.Text})
	case ContentTypeImage:
		if c.ImageContent == nil {
			return nil, errors.New("image content is not set")
		}
		return json.Marshal(struct {
			Type     ContentType `json:"type"`
			Data     string      `json:"data"`
			MimeType string      `json:"mimeType"`
		}{c.Type, c.ImageContent.Data, c.ImageContent.MimeType})
	case ContentTypeEmbeddedResource:
		if c.EmbeddedResource == nil {
			return nil, errors.New("resource content is not set")
		}
		return json.Marshal(struct {
			Type     ContentType     `json:"type"`
			Resource ResourceContent `json:"resource"`
		}{c.Type, c.EmbeddedResource.Resource})
	}
	return nil, errors.Newf("unknown content type: %q", c.Type)
}

// UnmarshalJSON restores the union from its flattened wire form.
func (c *Content) UnmarshalJSON(data []byte) error {
	var probe struct {
		Type     ContentType     `json:"type"`
		Text     string          `json:"text"`
		Data     string          `json:"data"`
		MimeType string          `json:"mimeType"`
		Resource json.RawMessage `json:"resource"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return errors.Wrap(err, "failed to unmarshal content")
	}

	c.Type = probe.Type
	c.TextContent = nil
	c.ImageContent = nil
	c.EmbeddedResource = nil

	switch probe.Type {
	case ContentTypeText:
		c.TextContent = &TextContent{Text: probe.Text}
	case ContentTypeImage:
		c.ImageContent = &ImageContent{Data: probe.Data, MimeType: probe.MimeType}
	case ContentTypeEmbeddedResource:
		var resource ResourceContent
		if len(probe.Resource) > 0 {
			if err := json.Unmarshal(probe.Resource, &resource); err != nil {
				return errors.Wrap(err, "failed to unmarshal resource content")
			}
		}
		c.EmbeddedResource = &EmbeddedResource{Resource: resource}
	default:
		return errors.Newf("unknown content type: %q", probe.Type)
	}
	return nil
}

// ToolResponse is the result body of tools/call. IsError marks a tool
// level failure whose details are carried in Content.
type ToolResponse struct {
	Content []*Content `json:"content"`
	IsError bool       `json:"isError,omitempty"`
}

// NewToolResponse creates a successful tool response.
func NewToolResponse(content ...*Content) *ToolResponse {
	return &ToolResponse{Content: content}
}

// NewToolErrorResponse creates a failed tool response carrying the
// error text.
func NewToolErrorResponse(text string) *ToolResponse {
	return &ToolResponse{
		Content: []*Content{NewTextContent(text)},
		IsError: true,
	}
}
