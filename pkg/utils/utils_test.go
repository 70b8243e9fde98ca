package utils

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevenshtein(t *testing.T) {
	assert.Equal(t, 0, Levenshtein("", ""))
	assert.Equal(t, 3, Levenshtein("", "abc"))
	assert.Equal(t, 3, Levenshtein("kitten", "sitting"))
	assert.Equal(t, 1, Levenshtein("웃는", "웃음"))
	assert.InDelta(t, 1.0, Similarity(" Happy ", "happy"), 1e-9)
	assert.InDelta(t, 0.5, Similarity("abcd", "abzz"), 1e-9)
}

func TestStringContains(t *testing.T) {
	assert.True(t, StringContains("Happy_Face", false, "sad", "happy"))
	assert.False(t, StringContains("Happy_Face", true, "happy"))
	assert.False(t, StringContains("abc", false, ""))
	assert.True(t, StringContains("", false, ""))
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "a_b_c_d", SanitizeFilename(" a/b\\c:d "))
	assert.Equal(t, "what_", SanitizeFilename("what?"))
}

func TestLimitStr(t *testing.T) {
	assert.Equal(t, "abc", LimitStr("abc", 3))
	assert.Equal(t, "가나...", LimitStr("가나다라", 2))
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "v.json")
	require.NoError(t, Save(path, map[string]int{"a": 1}))
	assert.FileExists(t, path)

	got, err := Load[map[string]int](path)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 1}, got)

	_, err = Load[map[string]int](filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestTokenizeWords(t *testing.T) {
	assert.Equal(t, []string{"Hello", ",", " ", "world", "!"}, TokenizeWords("Hello, world!"))
}
