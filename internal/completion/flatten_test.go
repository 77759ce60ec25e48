package completion

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, s string) []any {
	t.Helper()
	var out []any
	require.NoError(t, json.Unmarshal([]byte(s), &out))
	return out
}

func asJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func TestFlattenSimilar_MotifGroups(t *testing.T) {
	in := parse(t, `[{"motif":"water","works":[{"title":"A","author":"B"},{"title":"C","author":"D"}]}]`)

	out := FlattenSimilar(in)
	assert.JSONEq(t,
		`[{"title":"A","author":"B","desc":"","value":""},{"title":"C","author":"D","desc":"","value":""}]`,
		asJSON(t, out))
}

func TestFlattenSimilar_CapsAcrossMotifs(t *testing.T) {
	in := parse(t, `[
		{"motif":"water","works":[{"title":"1","author":"a"},{"title":"2","author":"a"},{"title":"3","author":"a"}]},
		{"motif":"flight","works":[{"title":"4","author":"a"},{"title":"5","author":"a"},{"title":"6","author":"a"}]}
	]`)

	out := FlattenSimilar(in)
	require.Len(t, out, 5)
	assert.Contains(t, asJSON(t, out[4]), `"title":"5"`)
}

func TestFlattenSimilar_Deduplicates(t *testing.T) {
	in := parse(t, `[
		{"motif":"water","works":[{"title":"Ophelia","author":"Millais","type":"painting","description":"drowning"}]},
		{"motif":"death","works":[{"title":"ophelia","author":"MILLAIS"},{"title":"The Waves","author":"Woolf"}]}
	]`)

	out := FlattenSimilar(in)
	assert.JSONEq(t, `[
		{"title":"Ophelia","type":"painting","author":"Millais","desc":"drowning","value":""},
		{"title":"The Waves","author":"Woolf","desc":"","value":""}
	]`, asJSON(t, out))
}

func TestFlattenSimilar_FlatPassesThrough(t *testing.T) {
	in := parse(t, `[{"title":"A","author":"B","extra":1},{"title":"C","author":"D"}]`)
	assert.Equal(t, in, FlattenSimilar(in))
}

func TestFlattenSimilar_UnknownShapePassesThrough(t *testing.T) {
	for _, s := range []string{`[]`, `["a","b"]`, `[{"name":"x"}]`, `[{"works":"not a list"}]`} {
		in := parse(t, s)
		assert.Equal(t, in, FlattenSimilar(in), s)
	}
}

func TestParseSimilar(t *testing.T) {
	out := ParseSimilar("```json\n[{\"title\":\"A\",\"author\":\"B\"}]\n```")
	assert.JSONEq(t, `[{"title":"A","author":"B"}]`, asJSON(t, out))

	out = ParseSimilar(`{"similar":[{"title":"A","author":"B"}]}`)
	assert.JSONEq(t, `[{"title":"A","author":"B"}]`, asJSON(t, out))

	out = ParseSimilar("Sorry, I cannot think of anything.")
	assert.JSONEq(t,
		`[{"title":"","type":"text","author":"","desc":"Sorry, I cannot think of anything.","value":""}]`,
		asJSON(t, out))
}
