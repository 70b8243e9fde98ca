package charx

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardforge/pkg/assets"
	"cardforge/pkg/schema"
)

var fixed = time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)

func card() schema.CardData {
	r := schema.CharacterRecord{
		Name:         "Ada Lovelace",
		Description:  "A curious inventor",
		FirstMessage: "Hello.",
		CreationDate: fixed,
	}
	return schema.NewCard(r, []schema.LorebookEntry{{Keys: []string{"tower"}, Content: "The tower.", Enabled: true, InsertionOrder: 40}})
}

func entry(name, suggested string, c schema.Category, data string) assets.Entry {
	return assets.Entry{
		File:   schema.AssetFile{Name: name, Data: []byte(data)},
		Result: schema.AssetRenameResult{OriginalFileName: name, SuggestedFileName: suggested, Category: c, Confidence: 100},
	}
}

func export(t *testing.T, entries ...assets.Entry) *Archive {
	t.Helper()
	a, err := Export(ExportOptions{Card: card(), Assets: entries, Now: func() time.Time { return fixed }})
	require.NoError(t, err)
	return a
}

func TestCardAsset(t *testing.T) {
	tests := []struct {
		e    assets.Entry
		want schema.CardAsset
	}{
		{
			entry("me.png", "portrait.png", schema.CategoryProfile, ""),
			schema.CardAsset{Type: "icon", URI: "embeded://assets/icon/image/portrait.png", Name: "iconx", Ext: "png"},
		},
		{
			entry("s.webp", "smile.webp", schema.CategoryEmotion, ""),
			schema.CardAsset{Type: "x-risu-asset", URI: "embeded://assets/other/image/smile.webp", Name: "smile", Ext: "webp"},
		},
		{
			entry("theme.mp3", "theme.mp3", schema.CategoryEtc, ""),
			schema.CardAsset{Type: "x-risu-asset", URI: "embeded://assets/other/audio/theme.mp3", Name: "theme", Ext: "mp3"},
		},
		{
			entry("notes.xyz", "", schema.CategoryAdult, ""),
			schema.CardAsset{Type: "x-risu-asset", URI: "embeded://assets/other/other/notes.xyz", Name: "notes", Ext: "xyz"},
		},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CardAsset(tt.e))
	}
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "ada_lovelace_2024-03-09.charx", FileName("Ada Lovelace!", fixed))
	assert.Equal(t, "character_2024-03-09.charx", FileName("???", fixed))
	assert.Equal(t, "ada_lovelace_fallback.json", FallbackName("Ada  Lovelace"))
}

func TestRoundTrip(t *testing.T) {
	tests := map[string][]assets.Entry{
		"no assets": nil,
		"one asset": {entry("me.png", "portrait.png", schema.CategoryProfile, "icon-bytes")},
		"many assets": {
			entry("me.png", "portrait.png", schema.CategoryProfile, "icon-bytes"),
			entry("a.png", "smile.png", schema.CategoryEmotion, "smile-bytes"),
			entry("b.png", "nsfw.png", schema.CategoryAdult, "adult-bytes"),
			entry("song.ogg", "song.ogg", schema.CategoryEtc, "ogg-bytes"),
		},
	}
	for name, entries := range tests {
		t.Run(name, func(t *testing.T) {
			a := export(t, entries...)
			assert.Equal(t, "ada_lovelace_2024-03-09.charx", a.FileName)

			got, err := Import(a.Data)
			require.NoError(t, err)

			assert.Equal(t, a.Manifest.Data.Assets, got.Card.Data.Assets)
			assert.Equal(t, schema.SpecVersionV3, got.Card.SpecVersion)
			assert.Equal(t, "Ada Lovelace", got.Card.Data.Name)
			assert.Equal(t, "Hello.", got.Card.Data.FirstMes)
			require.NotNil(t, got.Card.Data.CharacterBook)
			assert.Len(t, got.Card.Data.CharacterBook.Entries, 1)

			want := make(map[string]string, len(entries))
			for _, e := range entries {
				want[e.Result.SuggestedFileName] = string(e.File.Data)
			}
			files := make(map[string]string, len(got.Files))
			for _, f := range got.Files {
				files[f.Name] = string(f.Data)
			}
			assert.Equal(t, want, files)
			assert.Len(t, got.Card.Data.Assets, len(entries))
		})
	}
}

func TestImportDetectsMIME(t *testing.T) {
	a := export(t, entry("a.png", "smile.png", schema.CategoryEmotion, "x"))
	got, err := Import(a.Data)
	require.NoError(t, err)
	require.Len(t, got.Files, 1)
	assert.Equal(t, "image/png", got.Files[0].MIME)
}

func TestExportLayout(t *testing.T) {
	a := export(t,
		entry("me.png", "portrait.png", schema.CategoryProfile, "1"),
		entry("a.png", "smile.png", schema.CategoryEmotion, "2"),
	)
	zr, err := zip.NewReader(bytes.NewReader(a.Data), int64(len(a.Data)))
	require.NoError(t, err)

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"card.json", "assets/icon/image/portrait.png", "assets/other/image/smile.png"}, names)
	assert.Equal(t, 2, a.Metadata.AssetCount)
	assert.EqualValues(t, 2, a.Metadata.AssetBytes)
	assert.Equal(t, 2, a.Metadata.Extensions["png"])
}

func TestExportRejectsDuplicatePaths(t *testing.T) {
	_, err := Export(ExportOptions{Card: card(), Assets: []assets.Entry{
		entry("a.png", "same.png", schema.CategoryEmotion, "1"),
		entry("b.png", "same.png", schema.CategoryAdult, "2"),
	}})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestCompressionLevels(t *testing.T) {
	payload := bytes.Repeat([]byte("abcdefgh"), 4096)
	sizes := map[Compression]int{}
	for _, c := range []Compression{CompressionNone, CompressionFast, CompressionDefault, CompressionBest} {
		a, err := Export(ExportOptions{Card: card(), Compression: c, Assets: []assets.Entry{entry("x.bin", "x.bin", schema.CategoryEtc, string(payload))}})
		require.NoError(t, err)
		sizes[c] = len(a.Data)

		got, err := Import(a.Data)
		require.NoError(t, err)
		assert.Equal(t, payload, got.Files[0].Data)
	}
	assert.Greater(t, sizes[CompressionNone], sizes[CompressionBest])

	_, err := Export(ExportOptions{Card: card(), Compression: "ultra"})
	assert.Error(t, err)
}

func zipWith(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = io.WriteString(w, body)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestImportLegacyManifest(t *testing.T) {
	data := zipWith(t, map[string]string{
		"character.json":                  `{"spec":"chara_card_v3","spec_version":"3.0","data":{"name":"Old"}}`,
		"assets/other/image/deep/x/a.png": "a",
	})
	got, err := Import(data)
	require.NoError(t, err)
	assert.Equal(t, "Old", got.Card.Data.Name)
	require.Len(t, got.Files, 1)
	assert.Equal(t, "a.png", got.Files[0].Name)
}

func TestImportRejects(t *testing.T) {
	_, err := Import(zipWith(t, map[string]string{"readme.txt": "hi"}))
	assert.ErrorIs(t, err, ErrNoManifest)

	_, err = Import(zipWith(t, map[string]string{"card.json": `{"spec":"chara_card_v2","data":{"name":""}}`}))
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Problems, 2)

	_, err = Import([]byte("not a zip"))
	assert.Error(t, err)
}

func TestValidateAndInspect(t *testing.T) {
	a, err := Export(ExportOptions{Card: card(), IncludeMetadata: true, Assets: []assets.Entry{entry("a.png", "a.png", schema.CategoryEtc, "1")}})
	require.NoError(t, err)

	r := Validate(a.Data)
	assert.True(t, r.Valid)
	assert.Equal(t, "Ada Lovelace", r.CharacterName)
	assert.Equal(t, 1, r.AssetCount)

	info, err := Inspect(a.Data)
	require.NoError(t, err)
	assert.True(t, info.HasMetadata)
	assert.Equal(t, int64(len(a.Data)), info.Size)

	bad := Validate(zipWith(t, map[string]string{"card.json": `{"spec":"x","data":{}}`}))
	assert.False(t, bad.Valid)
	assert.Len(t, bad.Errors, 2)

	assert.Equal(t, []string{"failed to read archive"}, Validate(nil).Errors)
}

func TestDirSink(t *testing.T) {
	dir := t.TempDir()
	where, err := DirSink{Dirs: []string{filepath.Join(dir, "missing"), dir}}.Save(context.Background(), "a.charx", MIME, []byte("zip"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a.charx"), where)

	b, err := os.ReadFile(where)
	require.NoError(t, err)
	assert.Equal(t, "zip", string(b))

	_, err = DirSink{Dirs: []string{filepath.Join(dir, "missing")}}.Save(context.Background(), "a.charx", MIME, nil)
	assert.Error(t, err)
}

func TestHTTPSink(t *testing.T) {
	rec := httptest.NewRecorder()
	_, err := HTTPSink{W: rec}.Save(context.Background(), "ada.charx", MIME, []byte("zip"))
	require.NoError(t, err)
	assert.Equal(t, `attachment; filename=ada.charx`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, MIME, rec.Header().Get("Content-Type"))
	assert.Equal(t, "zip", rec.Body.String())
}

// flaky refuses archives and accepts everything else.
type flaky struct{ saved map[string][]byte }

func (f *flaky) Save(_ context.Context, name, contentType string, data []byte) (string, error) {
	if contentType == MIME {
		return "", errors.New("disk full")
	}
	f.saved[name] = data
	return name, nil
}

func TestDeliverFallsBackToJSON(t *testing.T) {
	f := &flaky{saved: map[string][]byte{}}
	where, err := Deliver(context.Background(), f, ExportOptions{Card: card()}, log.New(io.Discard))

	var fe *FallbackError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "ada_lovelace_fallback.json", where)

	var got schema.CardV3
	require.NoError(t, json.Unmarshal(f.saved[where], &got))
	assert.Equal(t, "Ada Lovelace", got.Data.Name)
}

// brokenConn drops every body write after the header went out.
type brokenConn struct {
	*httptest.ResponseRecorder
	writes int
}

func (b *brokenConn) Write([]byte) (int, error) {
	b.writes++
	return 0, errors.New("connection reset")
}

func TestDeliverSkipsFallbackOnCommittedResponse(t *testing.T) {
	w := &brokenConn{ResponseRecorder: httptest.NewRecorder()}
	_, err := Deliver(context.Background(), HTTPSink{W: w}, ExportOptions{Card: card()}, log.New(io.Discard))

	require.ErrorIs(t, err, ErrCommitted)
	var fe *FallbackError
	assert.False(t, errors.As(err, &fe))
	assert.Equal(t, 1, w.writes)
	assert.Equal(t, MIME, w.Header().Get("Content-Type"))
}

func TestDeliver(t *testing.T) {
	dir := t.TempDir()
	where, err := Deliver(context.Background(), DirSink{Dirs: []string{dir}}, ExportOptions{Card: card(), Now: func() time.Time { return fixed }}, log.New(io.Discard))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "ada_lovelace_2024-03-09.charx"), where)
}
