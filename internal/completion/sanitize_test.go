package completion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripFences(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"```\ncode\n```", "code"},
		{"```json\n{\"a\":1}\n```", "{\"a\":1}"},
		{"before\n```go\nx := 1\n```\nafter", "before\nx := 1\nafter"},
		{"  spaced  ", "spaced"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StripFences(tt.in), tt.in)
	}
}

func TestStripQuotes(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`"quoted"`, "quoted"},
		{`'single'`, "single"},
		{"“curly”", "curly"},
		{`"'nested'"`, "nested"},
		{`"unbalanced`, `"unbalanced`},
		{`say "hi"`, `say "hi"`},
		{`"`, `"`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StripQuotes(tt.in), tt.in)
	}
}

func TestSanitizeSummary(t *testing.T) {
	assert.Equal(t, "A dream about water.", SanitizeSummary("```\n\"A dream about water.\"\n```"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab", Truncate("abc", 2))
	assert.Equal(t, "夢夢", Truncate("夢夢夢", 2))
}
