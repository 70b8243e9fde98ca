package schema

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// Format names a structured reply the model is asked to produce.
type Format struct {
	Name        string
	Description string
	Schema      any
}

// JSON renders the schema for inclusion in a prompt.
func (f Format) JSON() string {
	if f.Schema == nil {
		return "{}"
	}
	b, err := json.MarshalIndent(f.Schema, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}

func generateSchema[T any]() any {
	r := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return r.Reflect(v)
}

var (
	CharacterFormat = Format{
		Name:        "character_card",
		Description: "Core fields of a roleplay character card",
		Schema:      generateSchema[CharacterReply](),
	}
	LorebookFormat = Format{
		Name:        "character_lorebook",
		Description: "Lorebook entries describing the character's world",
		Schema:      generateSchema[LorebookReply](),
	}
	ModificationFormat = Format{
		Name:        "field_modification",
		Description: "A rewritten character field",
		Schema:      generateSchema[ModificationReply](),
	}
	ClassificationFormat = Format{
		Name:        "asset_classification",
		Description: "Category and new name for an uploaded asset",
		Schema:      generateSchema[ClassificationReply](),
	}
)
