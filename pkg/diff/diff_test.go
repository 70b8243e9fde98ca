package diff

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardforge/pkg/schema"
)

func TestFieldRender(t *testing.T) {
	f := Field("description", "A quiet scientist.", "A loud scientist.")
	out := Render(f.Str)
	assert.Contains(t, out, "[-quiet-]")
	assert.Contains(t, out, "{+loud")
	ins, del := f.Str.Stats()
	assert.Equal(t, 1, ins)
	assert.Equal(t, 1, del)

	same := Field("x", "abc", "abc")
	assert.Equal(t, "abc", Render(same.Str))
}

func TestRecords(t *testing.T) {
	o := schema.CharacterRecord{Name: "Ada", Description: "A scientist.", AlternateGreetings: []string{"Hello there, friend."}}
	n := o.Clone()
	n.Description = "A brilliant scientist."
	n.AlternateGreetings = []string{"Hello there, my friend.", "Good morning!"}
	n.Extensions.Risu = &schema.RisuExtension{DynamicAssets: &schema.DynamicAssets{AssetList: []string{"smile"}}}

	d := Records(o, n)
	require.Len(t, d.Fields, 1)
	assert.Equal(t, "description", d.Fields[0].Path)
	assert.Equal(t, []string{"Good morning!"}, d.GreetingsAdd)
	assert.Len(t, d.GreetingsEdit, 1)
	assert.True(t, d.AssetsChanged)
	assert.False(t, d.Empty())

	var buf bytes.Buffer
	d.Print(&buf)
	assert.Contains(t, buf.String(), "description: A {+brilliant")

	assert.True(t, Records(o, o.Clone()).Empty())
}

func TestLorebooks(t *testing.T) {
	o := []schema.LorebookEntry{
		{Name: "Lab", Keys: []string{"lab"}, Content: "Her lab is underground.", InsertionOrder: 40},
		{Name: "Brother", Keys: []string{"brother"}, Content: "She has a younger brother."},
		{Name: "Gone", Content: "Something removed entirely from the book."},
	}
	n := []schema.LorebookEntry{
		{Name: "lab", Keys: []string{"lab", "basement"}, Content: "Her lab is underground.", InsertionOrder: 40},
		{Name: "Sibling", Keys: []string{"brother"}, Content: "She has a younger brother!"},
		{Name: "Magic", Content: "She studies magic."},
	}
	d := Lorebooks(o, n)
	require.Len(t, d, 4)

	byName := map[string]EntryDiff{}
	for _, e := range d {
		byName[e.Name] = e
	}
	assert.Equal(t, Modified, byName["lab"].State)
	assert.Equal(t, []string{"basement"}, byName["lab"].KeysAdd)
	assert.Equal(t, Modified, byName["Sibling"].State)
	assert.Equal(t, Removed, byName["Gone"].State)
	assert.Equal(t, Added, byName["Magic"].State)

	var buf bytes.Buffer
	PrintEntries(&buf, d)
	assert.Contains(t, buf.String(), "[+] Magic")
}
