package registry

import (
	"encoding/json"
	"strings"
	"unicode"

	"github.com/effective-security/mcphost/mcp"
	"github.com/effective-security/mcphost/pkg/llmutils"
)

// FormatResult flattens a tool response into display text. Text content
// that parses as JSON is pretty-printed inside a fenced block; non-text
// content becomes a placeholder. A tool-level error is flagged with a
// TOOL ERROR header so the model sees the failure alongside any output.
func FormatResult(res *mcp.ToolResponse) string {
	if res == nil {
		return ""
	}

	var b strings.Builder
	if res.IsError {
		b.WriteString("TOOL ERROR:\n")
	}
	for _, content := range res.Content {
		if content == nil {
			continue
		}
		switch content.Type {
		case mcp.ContentTypeText:
			text := content.TextContent.Text
			if json.Valid([]byte(text)) {
				b.WriteString("```json\n")
				b.WriteString(strings.TrimSpace(llmutils.JSONIndent(text)))
				b.WriteString("\n```")
			} else {
				b.WriteString(text)
			}
		case mcp.ContentTypeImage:
			b.WriteString("[Image content - display not supported]")
		case mcp.ContentTypeEmbeddedResource:
			b.WriteString("[Resource content - display not supported]")
		}
		b.WriteByte('\n')
	}
	return strings.TrimRightFunc(b.String(), unicode.IsSpace)
}
