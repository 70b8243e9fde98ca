// Package charx reads and writes character archives: a zip container with a
// card manifest at the root and asset files under assets/.
package charx

import (
	"archive/zip"
	"bytes"
	"cmp"
	"compress/flate"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
	"time"

	"cardforge/pkg/assets"
	"cardforge/pkg/schema"
)

const (
	ManifestName       = "card.json"
	LegacyManifestName = "character.json"
	MetadataName       = "metadata.json"
	AssetsDir          = "assets"

	Scheme        = "embeded://"
	TypeIcon      = "icon"
	TypeRisuAsset = "x-risu-asset"
	IconName      = "iconx"

	Ext  = ".charx"
	MIME = "application/zip"
)

var (
	ErrNoManifest = errors.New("archive has no card.json or character.json")
	ErrDuplicate  = errors.New("duplicate asset path")
)

// ValidationError lists everything wrong with an archive manifest.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid character archive: " + strings.Join(e.Problems, "; ")
}

type Compression string

const (
	CompressionNone    Compression = "none"
	CompressionFast    Compression = "fast"
	CompressionDefault Compression = "default"
	CompressionBest    Compression = "best"
)

func (c Compression) level() int {
	switch c {
	case CompressionFast:
		return flate.BestSpeed
	case CompressionBest:
		return flate.BestCompression
	case CompressionNone:
		return flate.NoCompression
	}
	return flate.DefaultCompression
}

func (c Compression) Valid() bool {
	switch c {
	case CompressionNone, CompressionFast, CompressionDefault, CompressionBest, "":
		return true
	}
	return false
}

// AssetType maps a rename category to the card asset type.
func AssetType(c schema.Category) string {
	if c == schema.CategoryProfile {
		return TypeIcon
	}
	return TypeRisuAsset
}

func storageDir(assetType string) string {
	if assetType == TypeIcon {
		return "icon"
	}
	return "other"
}

// AssetPath is the location of a file inside the archive.
func AssetPath(assetType, fileName string) string {
	return path.Join(AssetsDir, storageDir(assetType), assets.MediaCategory(fileName), fileName)
}

// CardAsset builds the manifest entry of a processed file.
func CardAsset(e assets.Entry) schema.CardAsset {
	name := finalName(e)
	typ := AssetType(e.Result.Category)
	a := schema.CardAsset{
		Type: typ,
		URI:  Scheme + AssetPath(typ, name),
		Name: assets.Token(name),
		Ext:  cmp.Or(assets.Ext(name), "unknown"),
	}
	if typ == TypeIcon {
		a.Name = IconName
	}
	return a
}

func finalName(e assets.Entry) string {
	return cmp.Or(e.Result.SuggestedFileName, e.File.Name)
}

var unsafeName = regexp.MustCompile(`[^\w\s-]`)
var spaces = regexp.MustCompile(`\s+`)

// FileName is the suggested archive name: <safe_name>_<YYYY-MM-DD>.charx.
func FileName(characterName string, t time.Time) string {
	return fmt.Sprintf("%s_%s%s", safeName(characterName), t.Format(time.DateOnly), Ext)
}

func safeName(characterName string) string {
	safe := unsafeName.ReplaceAllString(characterName, "")
	safe = strings.ToLower(spaces.ReplaceAllString(strings.TrimSpace(safe), "_"))
	return cmp.Or(safe, "character")
}

// Manifest wraps card data in the v3 envelope with the asset list filled in.
func Manifest(card schema.CardData, entries []assets.Entry) schema.CardV3 {
	card.Assets = make([]schema.CardAsset, len(entries))
	for i, e := range entries {
		card.Assets[i] = CardAsset(e)
	}
	return schema.CardV3{Spec: schema.SpecV3, SpecVersion: schema.SpecVersionV3, Data: card}
}

func validate(card schema.CardV3) error {
	var problems []string
	if card.Spec != schema.SpecV3 {
		problems = append(problems, fmt.Sprintf("unsupported spec %q", card.Spec))
	}
	if strings.TrimSpace(card.Data.Name) == "" {
		problems = append(problems, "character name is required")
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func readManifest(zr *zip.Reader) (schema.CardV3, error) {
	var card schema.CardV3
	f := lookup(zr, ManifestName)
	if f == nil {
		f = lookup(zr, LegacyManifestName)
	}
	if f == nil {
		return card, ErrNoManifest
	}
	rc, err := f.Open()
	if err != nil {
		return card, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()
	if err := json.NewDecoder(rc).Decode(&card); err != nil {
		return card, &ValidationError{Problems: []string{fmt.Sprintf("%s is not valid JSON: %v", f.Name, err)}}
	}
	return card, nil
}

func lookup(zr *zip.Reader, name string) *zip.File {
	for _, f := range zr.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// assetFiles lists the leaf files under assets/ in archive order.
func assetFiles(zr *zip.Reader) []*zip.File {
	var out []*zip.File
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !strings.HasPrefix(f.Name, AssetsDir+"/") {
			continue
		}
		out = append(out, f)
	}
	return out
}

func readAll(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func newReader(data []byte) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}
	return zr, nil
}
