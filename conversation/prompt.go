package conversation

import (
	"fmt"
	"strings"

	"github.com/effective-security/mcphost/pkg/llmutils"
	"github.com/effective-security/mcphost/pkg/prompts"
	"github.com/effective-security/mcphost/toolcall"
	"github.com/effective-security/x/values"
)

const toolSystemPromptTemplate = "You are a helpful assistant with access to tools. Use tools EXACTLY according to their descriptions and required format.\n" +
	"\n" +
	"**Core Instructions for Tool Use:**\n" +
	"\n" +
	"1.  **Address the Full Request:** Plan and execute all necessary steps sequentially using tools. If generating information *and* performing an action (like saving), **include the key information/summary in your response** along with action confirmation.\n" +
	"2.  **Execution Model & Reacting to Results:**\n" +
	"    *   **Dispatch:** All tools you call in a single response turn are dispatched *before* you receive results for *any* of them.\n" +
	"    *   **Results:** You *will* receive the results for all dispatched tools in the *next* conversation turn.\n" +
	"    *   **No Same-Turn Chaining:** Because of the dispatch timing, **you cannot use the result of one tool as input for another tool within the *same* response turn.** Plan sequential, dependent calls across multiple turns.\n" +
	"    *   **Verification & Adaptation:** Carefully review tool results when you receive them. Verify success/failure, extract data, and **change your plan or response if the results require it.**\n" +
	"3.  **Be Truthful & Cautious:** Only confirm actions (e.g., \"file saved\") if the tool result explicitly confirms success. Report errors. Be careful with tools that modify external systems.\n" +
	"4.  **Use Correct Format:** Use the precise `{{.delimiter}}...{{.delimiter}}` format with valid JSON (`name`, `arguments`) for all tool calls.\n" +
	"\n" +
	"# Tool Descriptions...\n" +
	"{{.tools_info}}\n" +
	"\n" +
	"When you need to use a tool, you MUST format your request exactly as follows, including the delimiters:\n" +
	"{{.delimiter}}\n" +
	"{\n" +
	"  \"name\": \"tool_name\",\n" +
	"  \"arguments\": {\n" +
	"    \"arg1\": \"value1\",\n" +
	"    \"arg2\": \"value2\"\n" +
	"  }\n" +
	"}\n" +
	"{{.delimiter}}\n" +
	"\n" +
	"Important:\n" +
	"- Only include ONE tool call JSON block per delimiter section. Use multiple sections for multiple parallel calls in one turn.\n" +
	"- You can include explanatory text before or after the tool call block.\n" +
	"- If no tool is needed, just respond normally."

// ToolSystemPrompt renders the system prompt that describes the available
// tools and the delimited invocation format the model must use.
func ToolSystemPrompt(tools []Tool) (string, error) {
	var sb strings.Builder
	for i, t := range tools {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		schema := "{}"
		if len(t.InputSchema) > 0 {
			schema = values.StringsCoalesce(llmutils.JSONIndent(string(t.InputSchema)), "{}")
		}
		fmt.Fprintf(&sb, "- Name: %s\n  Description: %s\n  Schema: %s", t.Name, t.Description, schema)
	}
	return prompts.RenderTemplate(toolSystemPromptTemplate, prompts.TemplateFormatGoTemplate, map[string]any{
		"tools_info": sb.String(),
		"delimiter":  toolcall.Delimiter,
	})
}

// toolResultsDirective nudges the model to act on the tool results just
// appended to the transcript. It is sent with the request, never stored.
func toolResultsDirective() string {
	return fmt.Sprintf("Analyze the tool results provided immediately above. "+
		"Based on those results and the user's original request, decide the next step:\n"+
		"1. Call another tool if necessary (using the %s...%s format).\n"+
		"2. Provide a final response to the user.", toolcall.Delimiter, toolcall.Delimiter)
}
