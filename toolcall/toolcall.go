// Package toolcall recovers tool invocations embedded in free-form
// generator text. Three formats compete, in precedence order: the whole
// text as one JSON invocation object, delimiter-bracketed JSON blocks,
// and a known tool name followed by a fenced JSON argument block.
package toolcall

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcphost", "toolcall")

// Delimiter brackets a tool-call block on both sides.
// Exactly fourteen glyphs; anything else is plain text.
const Delimiter = "😊😊😊😊😊😊😊😊😊😊😊😊😊😊"

// Invocation is one parsed (tool, arguments) pair.
type Invocation struct {
	Name      string
	Arguments map[string]any
}

// Extract returns the invocations found in text, in order. The first
// format that yields anything wins; only the delimited format can yield
// more than one invocation. A name not in knownTools is still returned
// by the first two formats: unknown tools are an execution concern, not
// a parse error.
func Extract(text string, knownTools []string) []Invocation {
	if inv, ok := wholeTextInvocation(text); ok {
		return []Invocation{inv}
	}
	if list := delimitedInvocations(text); len(list) > 0 {
		return list
	}
	if inv, ok := taggedInvocation(text, knownTools); ok {
		return []Invocation{inv}
	}
	return nil
}

// wholeTextInvocation matches a response that is nothing but a single
// JSON object of the form {"tool": name, "arguments": object}.
func wholeTextInvocation(text string) (Invocation, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") {
		return Invocation{}, false
	}
	var probe struct {
		Tool      string          `json:"tool"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(trimmed), &probe); err != nil || probe.Tool == "" {
		return Invocation{}, false
	}
	args, ok := decodeArguments(probe.Arguments)
	if !ok {
		return Invocation{}, false
	}
	return Invocation{Name: probe.Tool, Arguments: args}, true
}

// delimitedInvocations scans for Delimiter pairs left to right. A pair
// whose content is not a valid {"name", "arguments"} object is skipped
// and scanning resumes after it.
func delimitedInvocations(text string) []Invocation {
	var out []Invocation
	rest := text
	for {
		start := strings.Index(rest, Delimiter)
		if start < 0 {
			return out
		}
		afterStart := rest[start+len(Delimiter):]
		end := strings.Index(afterStart, Delimiter)
		if end < 0 {
			// Opening delimiter without a closing one.
			return out
		}

		body := strings.TrimSpace(afterStart[:end])
		var probe struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := json.Unmarshal([]byte(body), &probe); err != nil || probe.Name == "" {
			logger.KV(xlog.DEBUG, "reason", "malformed_block", "body_len", len(body))
		} else if args, ok := decodeArguments(probe.Arguments); ok {
			out = append(out, Invocation{Name: probe.Name, Arguments: args})
		} else {
			logger.KV(xlog.DEBUG, "reason", "bad_arguments", "tool", probe.Name)
		}

		rest = afterStart[end+len(Delimiter):]
	}
}

// taggedInvocation matches a mention of a known tool name shortly
// followed by a fenced JSON block holding the argument object. The
// pattern is built from the current tool-name set, so unregistered
// names never match. Only the first match is used.
func taggedInvocation(text string, knownTools []string) (Invocation, bool) {
	if len(knownTools) == 0 || !strings.Contains(text, "```") {
		return Invocation{}, false
	}

	re, err := regexp.Compile(toolNamePattern(knownTools))
	if err != nil {
		return Invocation{}, false
	}
	m := re.FindStringSubmatch(text)
	if m == nil {
		return Invocation{}, false
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(m[2]), &args); err != nil {
		return Invocation{}, false
	}
	if args == nil {
		args = map[string]any{}
	}
	return Invocation{Name: canonicalName(m[1], knownTools), Arguments: args}, true
}

// toolNamePattern builds the alternation longest name first, so a name
// that is a prefix of another cannot shadow it.
func toolNamePattern(knownTools []string) string {
	names := make([]string, len(knownTools))
	copy(names, knownTools)
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	for i, name := range names {
		names[i] = regexp.QuoteMeta(name)
	}
	return `(?is)\b(` + strings.Join(names, "|") + `)\b[^` + "`" + `]{0,120}?` +
		"```(?:json)?\\s*(\\{.*?\\})\\s*```"
}

// canonicalName maps a case-insensitive match back to the registered name.
func canonicalName(matched string, knownTools []string) string {
	for _, name := range knownTools {
		if strings.EqualFold(name, matched) {
			return name
		}
	}
	return matched
}

// decodeArguments enforces the arguments contract: the key must be
// present; null means no arguments; anything else must be an object.
func decodeArguments(raw json.RawMessage) (map[string]any, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	if string(raw) == "null" {
		return map[string]any{}, true
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, false
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, true
}
