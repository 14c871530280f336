package expand

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestText(t *testing.T) {
	values := map[string]string{
		"env.HOME": "/home/mu",
		"output":   "out.csv",
		"pos":      "3",
	}
	lookup := func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "no placeholders", input: "plain text", expected: "plain text"},
		{name: "single", input: "${output}", expected: "out.csv"},
		{name: "embedded", input: "mu kill --pos ${pos} --output ${output}", expected: "mu kill --pos 3 --output out.csv"},
		{name: "dotted key", input: "${env.HOME}/data", expected: "/home/mu/data"},
		{name: "unresolved kept", input: "a ${missing} b", expected: "a ${missing} b"},
		{name: "unterminated", input: "a ${output", expected: "a ${output"},
		{name: "invalid key rescans", input: "${a b ${pos}}", expected: "${a b 3}"},
		{name: "shell dollar untouched", input: "echo $HOME ${pos}", expected: "echo $HOME 3"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Text(tc.input, lookup))
		})
	}
}
