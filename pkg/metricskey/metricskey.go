package metricskey

import "github.com/effective-security/metrics"

// Stats
var (
	// StatsRPCRequestsSent is base for counter metric for total RPC requests sent to tool servers
	StatsRPCRequestsSent = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_mcp_rpc_requests_sent",
		Help:         "stats_mcp_rpc_requests_sent provides total RPC requests sent to tool servers",
		RequiredTags: []string{"method"},
	}

	StatsRPCRequestsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_mcp_rpc_requests_failed",
		Help:         "stats_mcp_rpc_requests_failed provides total RPC requests failed",
		RequiredTags: []string{"method"},
	}

	StatsRPCTimeouts = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_mcp_rpc_timeouts",
		Help:         "stats_mcp_rpc_timeouts provides total RPC requests timed out",
		RequiredTags: []string{"method"},
	}

	StatsServersStarted = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_mcp_servers_started",
		Help:         "stats_mcp_servers_started provides total tool servers started",
		RequiredTags: []string{"server"},
	}

	StatsServersStartFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_mcp_servers_start_failed",
		Help:         "stats_mcp_servers_start_failed provides total tool server starts failed",
		RequiredTags: []string{"server"},
	}

	StatsServersStopped = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_mcp_servers_stopped",
		Help:         "stats_mcp_servers_stopped provides total tool servers stopped",
		RequiredTags: []string{"server"},
	}

	StatsToolCallsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_succeeded",
		Help:         "stats_tool_calls_succeeded provides total tool calls succeeded",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_failed",
		Help:         "stats_tool_calls_failed provides total tool calls failed",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsNotFound = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_not_found",
		Help:         "stats_tool_calls_not_found provides total tool calls not found",
		RequiredTags: []string{"tool"},
	}

	StatsGenerationsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_generations_succeeded",
		Help:         "stats_generations_succeeded provides total generator calls succeeded",
		RequiredTags: []string{"generator"},
	}

	StatsGenerationsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_generations_failed",
		Help:         "stats_generations_failed provides total generator calls failed",
		RequiredTags: []string{"generator"},
	}

	StatsConversationRounds = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_conversation_rounds",
		Help:         "stats_conversation_rounds provides total tool rounds executed",
		RequiredTags: []string{"generator"},
	}
)

// Perf
var (
	PerfConversationResolve = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_conversation_resolve",
		Help:         "perf_conversation_resolve provides duration of conversation resolution",
		RequiredTags: []string{"generator"},
	}

	PerfGenerationCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_generation_call",
		Help:         "perf_generation_call provides duration of generator call",
		RequiredTags: []string{"generator"},
	}

	PerfRPCRequest = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_mcp_rpc_request",
		Help:         "perf_mcp_rpc_request provides duration of RPC request",
		RequiredTags: []string{"method"},
	}

	PerfToolCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_tool_call",
		Help:         "perf_tool_call provides duration of tool call",
		RequiredTags: []string{"tool"},
	}
)

// Metrics returns slice of metrics from this repo
// keep sorted by name
var Metrics = []*metrics.Describe{
	&PerfConversationResolve,
	&PerfGenerationCall,
	&PerfRPCRequest,
	&PerfToolCall,
	&StatsConversationRounds,
	&StatsGenerationsFailed,
	&StatsGenerationsSucceeded,
	&StatsRPCRequestsFailed,
	&StatsRPCRequestsSent,
	&StatsRPCTimeouts,
	&StatsServersStartFailed,
	&StatsServersStarted,
	&StatsServersStopped,
	&StatsToolCallsFailed,
	&StatsToolCallsNotFound,
	&StatsToolCallsSucceeded,
}
