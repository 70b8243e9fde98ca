package schema

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtensionsKeepsUnknownVendors(t *testing.T) {
	in := `{"depth_prompt":{"depth":4,"prompt":"x"},"risuai":{"bias":[1],"dynamicAssets":{"enabled":true,"assetList":["a"],"emotionAssets":["a"],"adultAssets":[],"profileAssets":[],"etcAssets":[]}}}`

	var ext Extensions
	require.NoError(t, json.Unmarshal([]byte(in), &ext))
	require.NotNil(t, ext.Risu)
	require.NotNil(t, ext.Risu.DynamicAssets)
	assert.Equal(t, []string{"a"}, ext.Risu.DynamicAssets.EmotionAssets)
	assert.Contains(t, ext.Risu.Other, "bias")
	assert.Contains(t, ext.Other, "depth_prompt")
	assert.Nil(t, ext.Workflow)

	out, err := json.Marshal(ext)
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out))
}

func TestExtensionsZeroValueMarshalsToObject(t *testing.T) {
	out, err := json.Marshal(CharacterRecord{}.Extensions)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(out))
}

func TestCloneIsDeep(t *testing.T) {
	r := CharacterRecord{
		AlternateGreetings: []string{"hi"},
		Extensions: Extensions{Risu: &RisuExtension{DynamicAssets: &DynamicAssets{AssetList: []string{"a"}}}},
	}
	c := r.Clone()
	c.AlternateGreetings[0] = "changed"
	c.Extensions.Risu.DynamicAssets.AssetList[0] = "changed"

	assert.Equal(t, "hi", r.AlternateGreetings[0])
	assert.Equal(t, "a", r.Extensions.Risu.DynamicAssets.AssetList[0])
}

func TestFieldAliases(t *testing.T) {
	var r CharacterRecord
	for _, name := range []string{"first_mes", "firstMessage", "FIRSTMESSAGE"} {
		p, ok := r.Field(name)
		require.True(t, ok, name)
		*p = name
		assert.Equal(t, name, r.FirstMessage)
	}

	_, ok := r.Field("alternateGreetings")
	assert.False(t, ok)
	_, ok = r.Field("age")
	assert.False(t, ok)

	assert.Contains(t, ScalarFields(), "postHistoryInstructions")
}

func TestTouchIsMonotonic(t *testing.T) {
	now := time.Now()
	r := CharacterRecord{ModificationDate: now}
	r.Touch(now.Add(-time.Hour))
	assert.Equal(t, now, r.ModificationDate)
	r.Touch(now.Add(time.Hour))
	assert.Equal(t, now.Add(time.Hour), r.ModificationDate)
}

func TestCardRoundTrip(t *testing.T) {
	rec := CharacterRecord{
		Name:             "Ada",
		Description:      "A scientist.",
		FirstMessage:     "Hello.",
		DialogueExample:  "Hi!",
		CreationDate:     time.Unix(1700000000, 0).UTC(),
		ModificationDate: time.Unix(1700000100, 0).UTC(),
	}
	entries := []LorebookEntry{{ID: 7, Keys: []string{"lab"}, Content: "Her lab.", Enabled: true, InsertionOrder: 40}}

	card := NewCard(rec, entries)
	require.NotNil(t, card.CharacterBook)
	assert.Equal(t, 0, card.CharacterBook.Entries[0].ID)
	assert.NotNil(t, card.AlternateGreetings)

	back := card.Record()
	assert.Equal(t, rec.Name, back.Name)
	assert.Equal(t, rec.FirstMessage, back.FirstMessage)
	assert.Equal(t, rec.CreationDate, back.CreationDate)
	assert.Len(t, card.Entries(), 1)
}

func TestFormatsRenderSchema(t *testing.T) {
	for _, f := range []Format{CharacterFormat, LorebookFormat, ModificationFormat, ClassificationFormat} {
		s := f.JSON()
		assert.True(t, strings.HasPrefix(s, "{"), f.Name)
		assert.Contains(t, s, "properties", f.Name)
	}
	assert.Contains(t, CharacterFormat.JSON(), "first_mes")
}

func TestParseCategory(t *testing.T) {
	assert.Equal(t, CategoryEmotion, ParseCategory(" Emotion "))
	assert.Equal(t, CategoryEtc, ParseCategory("background"))
}
