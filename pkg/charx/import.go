package charx

import (
	"encoding/json"
	"errors"
	"fmt"
	"path"

	"cardforge/pkg/assets"
	"cardforge/pkg/schema"
)

type Imported struct {
	Card     schema.CardV3
	Files    []schema.AssetFile
	Metadata *Metadata
}

// Import opens an archive, validates its manifest and loads every asset.
// Asset names keep only their base name.
func Import(data []byte) (*Imported, error) {
	zr, err := newReader(data)
	if err != nil {
		return nil, err
	}
	card, err := readManifest(zr)
	if err != nil {
		return nil, err
	}
	if err := validate(card); err != nil {
		return nil, err
	}

	out := &Imported{Card: card, Files: []schema.AssetFile{}}
	for _, f := range assetFiles(zr) {
		b, err := readAll(f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
		file := schema.AssetFile{Name: path.Base(f.Name), Data: b}
		file.MIME = assets.MIME(file)
		out.Files = append(out.Files, file)
	}

	if f := lookup(zr, MetadataName); f != nil {
		if b, err := readAll(f); err == nil {
			var m Metadata
			if json.Unmarshal(b, &m) == nil {
				out.Metadata = &m
			}
		}
	}
	return out, nil
}

// Report is the outcome of Validate.
type Report struct {
	Valid         bool     `json:"valid"`
	CharacterName string   `json:"characterName,omitzero"`
	AssetCount    int      `json:"assetCount"`
	Errors        []string `json:"errors"`
}

// Validate checks an archive without loading its assets.
func Validate(data []byte) Report {
	r := Report{Errors: []string{}}
	zr, err := newReader(data)
	if err != nil {
		r.Errors = append(r.Errors, "failed to read archive")
		return r
	}
	card, err := readManifest(zr)
	if err != nil {
		r.Errors = append(r.Errors, problems(err)...)
		return r
	}
	r.CharacterName = card.Data.Name
	r.AssetCount = len(assetFiles(zr))
	if err := validate(card); err != nil {
		r.Errors = append(r.Errors, problems(err)...)
	}
	r.Valid = len(r.Errors) == 0
	return r
}

func problems(err error) []string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Problems
	}
	return []string{err.Error()}
}

type Info struct {
	CharacterName string `json:"characterName"`
	AssetCount    int    `json:"assetCount"`
	Size          int64  `json:"size"`
	HasMetadata   bool   `json:"hasMetadata"`
}

// Inspect summarizes an archive without extracting it.
func Inspect(data []byte) (Info, error) {
	zr, err := newReader(data)
	if err != nil {
		return Info{}, err
	}
	card, err := readManifest(zr)
	if err != nil {
		return Info{}, err
	}
	name := card.Data.Name
	if name == "" {
		name = "Unknown"
	}
	return Info{
		CharacterName: name,
		AssetCount:    len(assetFiles(zr)),
		Size:          int64(len(data)),
		HasMetadata:   lookup(zr, MetadataName) != nil,
	}, nil
}
