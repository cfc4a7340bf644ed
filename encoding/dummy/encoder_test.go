package dummy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Details struct {
	Location string `json:"location"`
	Gender   string `json:"gender"`
}

type Person struct {
	Name    string   `json:"name"`
	Age     *int     `json:"age,omitempty"`
	Details *Details `json:"details,omitempty"`
}

func (p Person) String() string {
	return `Person information`
}

func TestMarshal(t *testing.T) {
	var p Person
	enc := NewEncoder()
	assert.Empty(t, enc.GetFormatInstructions())

	js, err := enc.Marshal(&p)
	require.NoError(t, err)
	assert.Equal(t, "Person information", string(js))

	js, err = enc.Marshal("plain text")
	require.NoError(t, err)
	assert.Equal(t, "plain text", string(js))

	js, err = enc.Marshal([]byte("raw bytes"))
	require.NoError(t, err)
	assert.Equal(t, "raw bytes", string(js))

	// Values without a string form fall back to JSON
	js, err = enc.Marshal(&Details{Location: "Beijing", Gender: "male"})
	require.NoError(t, err)
	assert.Equal(t, `{"location":"Beijing","gender":"male"}`, string(js))
}

func TestUnmarshal(t *testing.T) {
	enc := NewEncoder()

	var s string
	require.NoError(t, enc.Unmarshal([]byte("hello"), &s))
	assert.Equal(t, "hello", s)

	var bs []byte
	require.NoError(t, enc.Unmarshal([]byte("raw"), &bs))
	assert.Equal(t, []byte("raw"), bs)

	var d Details
	require.NoError(t, enc.Unmarshal([]byte(`{"location":"Beijing"}`), &d))
	assert.Equal(t, "Beijing", d.Location)

	require.NoError(t, enc.Validate(&d))
}
