package extract

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFencedCharacter(t *testing.T) {
	raw := "Sure! ```json\n{\"name\":\"Ada\",\"description\":\"A scientist.\",\"first_mes\":\"Hello.\",\"mes_example\":\"Hi!\"}\n```"

	var got map[string]string
	require.NoError(t, Decode(raw, &got))
	assert.Equal(t, map[string]string{
		"name":        "Ada",
		"description": "A scientist.",
		"first_mes":   "Hello.",
		"mes_example": "Hi!",
	}, got)
}

func TestFind(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"prose around", "Here you go: {\"a\":1} hope it helps", `{"a":1}`},
		{"generic fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"json fence wins", "```\n{\"b\":2}\n```\n```json\n{\"a\":1}\n```", `{"a":1}`},
		{"brace in string", `{"a":"}{","b":{"c":"\"}"}} trailing }`, `{"a":"}{","b":{"c":"\"}"}}`},
		{"nested", `x {"a":{"b":{"c":[1,{"d":2}]}}} y`, `{"a":{"b":{"c":[1,{"d":2}]}}}`},
		{"unterminated", `{"a":"b"`, `{"a":"b"`},
		{"fence inside string", "```json\n{\"a\":\"x ``` y\",\"b\":1}\n```", "{\"a\":\"x ``` y\",\"b\":1}"},
		{"unclosed fence body", "```json\n{\"a\":\"b\"\n```", `{"a":"b"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Find(tt.in)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	_, ok := Find("no json here")
	assert.False(t, ok)
}

func TestDecodeFenceInsideString(t *testing.T) {
	var v struct {
		A string `json:"a"`
		B int    `json:"b"`
	}
	require.NoError(t, Decode("```json\n{\"a\":\"x ``` y\",\"b\":1}\n```", &v))
	assert.Equal(t, "x ``` y", v.A)
	assert.Equal(t, 1, v.B)
}

func TestRepair(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"newline in string", "{\"a\":\"x\ny\"}", `{"a":"x\ny"}`},
		{"crlf and tab in string", "{\"a\":\"x\r\n\ty\"}", `{"a":"x\r\n\ty"}`},
		{"escaped quote kept", "{\"a\":\"say \\\"hi\\\"\nnow\"}", `{"a":"say \"hi\"\nnow"}`},
		{"formatting newline kept", "{\n\"a\": 1\n}", "{\n\"a\": 1\n}"},
		{"trailing comma object", `{"a":1,}`, `{"a":1}`},
		{"trailing comma array", "{\"a\":[1,2,\n]}", "{\"a\":[1,2\n]}"},
		{"comma in string kept", `{"a":",}"}`, `{"a":",}"}`},
		{"control outside dropped", "{\x01\"a\":1\x7f}", `{"a":1}`},
		{"control inside escaped", "{\"a\":\"x\x02\"}", `{"a":"x\u0002"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Repair(tt.in))
		})
	}
}

func TestDecodeRecoversLiteralNewlines(t *testing.T) {
	values := []string{
		"line one\nline two",
		"tabs\tand\r\ncarriage returns",
		"\n\nleading and trailing\n",
		"quotes \" and braces {} with\nnewline",
	}
	for _, v := range values {
		escaped, err := json.Marshal(v)
		require.NoError(t, err)
		// Undo the escaping of whitespace only, mimicking a sloppy model.
		sloppy := strings.NewReplacer(`\n`, "\n", `\r`, "\r", `\t`, "\t").Replace(string(escaped))

		var want, got map[string]string
		require.NoError(t, json.Unmarshal([]byte(`{"k":`+string(escaped)+`}`), &want))
		require.NoError(t, Decode("Result:\n{\"k\":"+sloppy+"}\n", &got))
		assert.Equal(t, want, got)
	}
}

func TestDecodeTrailingCommas(t *testing.T) {
	var got struct {
		Lorebook []struct {
			Keys []string `json:"keys"`
		} `json:"lorebook"`
	}
	raw := "```json\n{\"lorebook\":[{\"keys\":[\"a\",\"b\",],},],}\n```"
	require.NoError(t, Decode(raw, &got))
	require.Len(t, got.Lorebook, 1)
	assert.Equal(t, []string{"a", "b"}, got.Lorebook[0].Keys)
}

func TestDecodeFailureCarriesRaw(t *testing.T) {
	raw := "I cannot help with that."
	var v map[string]any
	err := Decode(raw, &v)

	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, raw, pe.Raw)
	assert.True(t, errors.Is(err, ErrNoJSON))

	err = Decode(`{"a": nope}`, &v)
	require.ErrorAs(t, err, &pe)
	assert.False(t, errors.Is(err, ErrNoJSON))
}

func TestDecodeArray(t *testing.T) {
	var got []map[string]any
	require.NoError(t, DecodeArray("```json\n[{\"name\":\"x\",},]\n```", &got))
	assert.Len(t, got, 1)
}

func TestSections(t *testing.T) {
	text := "## Origins\nAda grew up in a small coastal town and learned mathematics from her mother.\n\n" +
		"short\n\n" +
		"   \n\n" +
		"**Laboratory** -\nHer laboratory sits beneath the old observatory, full of brass instruments."

	got := Sections(text)
	require.Len(t, got, 2)
	assert.Equal(t, "Origins", got[0].Title)
	assert.True(t, strings.HasPrefix(got[0].Content, "## Origins"))
	assert.Equal(t, "Laboratory", got[1].Title)
}
