package schema

// Reply shapes requested from the model. They double as the source of the
// JSON schemas embedded in prompts.

type CharacterReply struct {
	Name        string `json:"name" jsonschema_description:"The character's full name"`
	Description string `json:"description" jsonschema_description:"Appearance, personality and background of the character"`
	FirstMes    string `json:"first_mes" jsonschema_description:"The character's first message when a chat starts"`
	MesExample  string `json:"mes_example" jsonschema_description:"Example dialogue using {{user}} and {{char}} markers"`
}

type LorebookReply struct {
	Lorebook []LorebookReplyEntry `json:"lorebook" jsonschema_description:"World and background facts about the character"`
}

type LorebookReplyEntry struct {
	Keys           []string `json:"keys" jsonschema_description:"Trigger keywords for the entry"`
	Content        string   `json:"content" jsonschema_description:"The fact injected into context when a key matches"`
	Name           string   `json:"name" jsonschema_description:"Short display title"`
	Comment        string   `json:"comment" jsonschema_description:"Note for the card author"`
	Enabled        bool     `json:"enabled"`
	InsertionOrder int      `json:"insertion_order" jsonschema:"minimum=1,maximum=100" jsonschema_description:"Priority band, lower is more important"`
	Constant       bool     `json:"constant"`
	Selective      bool     `json:"selective"`
	CaseSensitive  bool     `json:"case_sensitive"`
	UseRegex       bool     `json:"use_regex"`
}

type ModificationReply struct {
	ModifiedValue    string `json:"modifiedValue" jsonschema_description:"The complete new value of the field"`
	Explanation      string `json:"explanation" jsonschema_description:"What was changed and why"`
	ConsistencyCheck string `json:"consistencyCheck" jsonschema_description:"How the change stays consistent with the rest of the character"`
}

type ClassificationReply struct {
	Category          string  `json:"category" jsonschema:"enum=profile,enum=emotion,enum=adult,enum=etc"`
	ExtractedKeyword  string  `json:"extractedKeyword" jsonschema_description:"The key word taken from the file name"`
	SuggestedFileName string  `json:"suggestedFileName" jsonschema_description:"New file name without extension"`
	Confidence        float64 `json:"confidence" jsonschema:"minimum=0,maximum=100"`
	Reasoning         string  `json:"reasoning"`
}
