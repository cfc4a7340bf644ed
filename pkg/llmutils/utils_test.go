package llmutils_test

import (
	"strings"
	"testing"

	"github.com/effective-security/mcphost/pkg/llmutils"
	"github.com/stretchr/testify/assert"
)

func Test_CleanJSON(t *testing.T) {
	llmOutput := "\n```json\n\n{\"city\": \"Paris\", \"country\": \"France\"}\n\n```\n\n"
	clean := llmutils.CleanJSON([]byte(llmOutput))

	expected := "{\"city\": \"Paris\", \"country\": \"France\"}"
	assert.Equal(t, expected, string(clean))

	llmOutput = "Here you go:\n```json\n\n[{\"city\": \"Paris\", \"country\": \"France\"}]\n```\n\n"
	clean = llmutils.CleanJSON([]byte(llmOutput))

	expected = "[{\"city\": \"Paris\", \"country\": \"France\"}]"
	assert.Equal(t, expected, string(clean))

	resp := "{\n\t\"passes\": false,\n\t\"feedback\": \"The answer omits the `limit` argument:\\n\\n```json\\n{\\n  \\\"limit\\\": 5\\n}\\n```\"\n}"
	assert.Equal(t, resp, string(llmutils.CleanJSON([]byte(resp))))
}

func Test_TrimBackticks(t *testing.T) {
	expected := "{\"city\": \"Paris\", \"country\": \"France\"}"

	assert.Equal(t, expected, llmutils.TrimBackticks("\n```json\n\n{\"city\": \"Paris\", \"country\": \"France\"}\n\n```\n\n"))
	// the same
	assert.Equal(t, expected, llmutils.TrimBackticks(expected))
	assert.Equal(t, expected, llmutils.TrimBackticks("\n```\n\n{\"city\": \"Paris\", \"country\": \"France\"}\n\n```\n\n"))
	assert.Equal(t, expected, llmutils.TrimBackticks("\n```{\"city\": \"Paris\", \"country\": \"France\"}\n\n```\n\n"))
}

func Test_TruncateLines(t *testing.T) {
	short := "one\ntwo\nthree"
	assert.Equal(t, short, llmutils.TruncateLines(short, 3))
	assert.Equal(t, short, llmutils.TruncateLines(short, 10))
	assert.Equal(t, short, llmutils.TruncateLines(short, 0))

	assert.Equal(t, "one\ntwo\n... (output truncated)", llmutils.TruncateLines(short, 2))

	long := strings.Repeat("line\n", 200)
	truncated := llmutils.TruncateLines(long, 150)
	assert.Equal(t, 150, strings.Count(truncated, "\n"))
	assert.True(t, strings.HasSuffix(truncated, "... (output truncated)"))
}

func Test_BackticksJSON(t *testing.T) {
	json := "{\"city\": \"Paris\", \"country\": \"France\"}"
	wrapped := llmutils.BackticksJSON(json)

	expected := "\n```json\n{\"city\": \"Paris\", \"country\": \"France\"}\n```\n"
	assert.Equal(t, expected, wrapped)
}

func Test_EnsureNewline(t *testing.T) {
	assert.Equal(t, "", llmutils.EnsureEndsWithNewline(" \n"))
	assert.Equal(t, "Hello\n", llmutils.EnsureEndsWithNewline(" \nHello"))
	assert.Equal(t, "Hello\n", llmutils.EnsureEndsWithNewline("\nHello\n"))
	assert.Equal(t, "Hello\n", llmutils.EnsureEndsWithNewline("Hello\n\n"))
}

func Test_JSONIndent(t *testing.T) {
	input := `{"name":"John","age":30}`
	expected := "{\n\t\"name\": \"John\",\n\t\"age\": 30\n}"
	assert.Equal(t, expected, llmutils.JSONIndent(input))
}

func Test_ToJSON(t *testing.T) {
	type Person struct {
		Name string `json:"name"`
		Age  int    `json:"age"`
	}
	p := Person{Name: "John", Age: 30}
	expected := `{"name":"John","age":30}`
	assert.Equal(t, expected, llmutils.ToJSON(p))
}

func Test_ToJSONIndent(t *testing.T) {
	type Person struct {
		Name string `json:"name"`
		Age  int    `json:"age"`
	}
	p := Person{Name: "John", Age: 30}
	expected := "{\n\t\"name\": \"John\",\n\t\"age\": 30\n}"
	assert.Equal(t, expected, llmutils.ToJSONIndent(p))
}

func Test_ToYAML(t *testing.T) {
	type Person struct {
		Name string `yaml:"name"`
		Age  int    `yaml:"age"`
	}
	p := Person{Name: "John", Age: 30}
	expected := "name: John\nage: 30\n"
	assert.Equal(t, expected, llmutils.ToYAML(p))
}

func Test_BackticksYAM(t *testing.T) {
	yaml := "name: John\nage: 30"
	expected := "\n```yaml\nname: John\nage: 30\n```\n"
	assert.Equal(t, expected, llmutils.BackticksYAM(yaml))
}

type CustomString struct{}

func (c CustomString) String() string { return "custom string" }

func Test_Stringify(t *testing.T) {
	// Test with string
	assert.Equal(t, "hello", llmutils.Stringify("hello"))

	// Test with struct
	type Person struct {
		Name string `json:"name"`
		Age  int    `json:"age"`
	}
	p := Person{Name: "John", Age: 30}
	expected := "\n```json\n{\n\t\"name\": \"John\",\n\t\"age\": 30\n}\n```\n"
	assert.Equal(t, expected, llmutils.Stringify(p))

	// Test with Stringer interface
	assert.Equal(t, "custom string", llmutils.Stringify(CustomString{}))
}

func Test_MergeInputs(t *testing.T) {
	configInputs := map[string]any{
		"name": "John",
		"age":  30,
	}
	userInputs := map[string]any{
		"age":  35,
		"city": "New York",
	}
	expected := map[string]any{
		"name": "John",
		"age":  35,
		"city": "New York",
	}
	assert.Equal(t, expected, llmutils.MergeInputs(configInputs, userInputs))
}
