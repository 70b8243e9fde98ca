package lorebook

import (
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardforge/pkg/extract"
	"cardforge/pkg/schema"
)

func TestBand(t *testing.T) {
	tests := []struct {
		title, content string
		want           int
	}{
		{"Personality", "", BandIdentity},
		{"The World", "", BandWorld},
		{"Hometown", "", BandLocation},
		{"Family ties", "", BandRelationship},
		{"Local Customs", "", BandCulture},
		{"Magic", "", BandAbility},
		{"가족", "", BandRelationship},
		{"Misc", "She can use magic.", BandAbility},
		{"Misc", "Nothing in particular.", BandDefault},
		{"Personality", "magic", BandIdentity},
	}
	for _, tt := range tests {
		t.Run(tt.title+"/"+tt.content, func(t *testing.T) {
			assert.Equal(t, tt.want, Band(tt.title, tt.content))
		})
	}
}

func TestParseJSON(t *testing.T) {
	raw := "```json\n{\"lorebook\":[" +
		"{\"keys\":\"lab, Lab , observatory\",\"content\":\"Her lab.\",\"name\":\"Lab\",\"insertion_order\":\"40\"}," +
		"{\"keys\":[],\"content\":\"Ada is curious.\",\"name\":\"Personality\",\"enabled\":false,\"insertion_order\":500}," +
		"{\"keys\":[\"empty\"],\"content\":\"  \"}" +
		"]}\n```"

	res, err := Parse(raw)
	require.NoError(t, err)
	assert.False(t, res.Heuristic)
	require.Len(t, res.Entries, 2)

	lab := res.Entries[0]
	assert.Equal(t, 0, lab.ID)
	assert.Equal(t, []string{"lab", "observatory"}, lab.Keys)
	assert.Equal(t, 40, lab.InsertionOrder)
	assert.True(t, lab.Enabled)

	p := res.Entries[1]
	assert.Equal(t, 1, p.ID)
	assert.Equal(t, []string{"Personality"}, p.Keys)
	assert.Equal(t, BandIdentity, p.InsertionOrder)
	assert.False(t, p.Enabled)
}

func TestParseBareArray(t *testing.T) {
	res, err := Parse(`[{"keys":["sword"],"content":"An old sword.","name":"Sword"}]`)
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, "Sword", res.Entries[0].Name)
}

func TestParseHeuristic(t *testing.T) {
	raw := "Here are some facts about Ada.\n\n" +
		"## Family\nAda lives with her younger brother and their grandmother near the harbor.\n\n" +
		"Magic Studies\nShe secretly studies forbidden magic in the observatory at night."

	res, err := Parse(raw)
	require.NoError(t, err)
	assert.True(t, res.Heuristic)
	require.Len(t, res.Entries, 2)

	for _, e := range res.Entries {
		assert.True(t, slices.Contains(Bands, e.InsertionOrder), e.InsertionOrder)
		firstLine := strings.Trim(strings.SplitN(e.Content, "\n", 2)[0], "#*-: \t")
		assert.Equal(t, firstLine, e.Name)
		assert.Equal(t, []string{firstLine}, e.Keys)
		assert.True(t, e.Constant)
		assert.True(t, e.Enabled)
	}
	assert.Equal(t, BandRelationship, res.Entries[0].InsertionOrder)
	assert.Equal(t, BandAbility, res.Entries[1].InsertionOrder)
}

func TestParseHeuristicDespiteEmptyJSON(t *testing.T) {
	raw := "Sure, here you go {}\n\n" +
		"Family Ties\nAda lives with her younger brother and their grandmother near the harbor.\n\n" +
		"Magic Studies\nShe secretly studies forbidden magic in the observatory at night."

	res, err := Parse(raw)
	require.NoError(t, err)
	assert.True(t, res.Heuristic)
	require.Len(t, res.Entries, 2)
	assert.Equal(t, "Family Ties", res.Entries[0].Name)
	assert.Equal(t, "Magic Studies", res.Entries[1].Name)
}

func TestParseSkipsJSONSections(t *testing.T) {
	_, err := Parse(`{"lorebook": [], "note": "the world has no notable places or people worth recording"}`)
	var pe *extract.ParseError
	require.ErrorAs(t, err, &pe)
}

func TestParseFailure(t *testing.T) {
	_, err := Parse("no.")
	var pe *extract.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "no.", pe.Raw)

	_, err = Parse(`{"lorebook": []}`)
	require.ErrorAs(t, err, &pe)
}

func TestNormalize(t *testing.T) {
	_, ok := Normalize(schema.LorebookEntry{Name: "x"})
	assert.False(t, ok)

	e, ok := Normalize(schema.LorebookEntry{Content: "The capital city of the empire.\nMore."})
	require.True(t, ok)
	assert.Equal(t, "The capital city of the empire.", e.Name)
	assert.Equal(t, []string{e.Name}, e.Keys)
	assert.Equal(t, BandLocation, e.InsertionOrder)
}

func TestSharedKeys(t *testing.T) {
	entries := []schema.LorebookEntry{
		{Name: "Tower", Keys: []string{"tower", "Clock"}},
		{Name: "Town", Keys: []string{"town", "clock"}},
		{Name: "Ada", Keys: []string{"ada", "ADA"}},
	}
	assert.Equal(t, map[string][]string{"clock": {"Tower", "Town"}}, SharedKeys(entries))
	assert.Empty(t, SharedKeys(entries[2:]))
}
