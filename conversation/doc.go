// Package conversation runs multi-turn chats that interleave language model
// generations with tool executions. The engine extracts tool invocations from
// model output, dispatches them to MCP servers, feeds the results back, and
// optionally verifies the final response against success criteria.
package conversation
