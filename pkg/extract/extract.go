// Package extract recovers structured JSON from free-form model output.
package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"cardforge/pkg/utils"
)

var ErrNoJSON = errors.New("no JSON value found in response")

// ParseError is returned when a response cannot be turned into structured
// data. Raw keeps the full model output for diagnostics.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse model response: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

var (
	jsonFence    = regexp.MustCompile("(?s)```(?:json|JSON)[ \t]*\\r?\\n?(.*?)```")
	genericFence = regexp.MustCompile("(?s)```[a-zA-Z]*[ \t]*\\r?\\n?(.*?)```")
)

// Find locates the JSON object in text. A ```json fence wins over a generic
// fence, which wins over a bare balanced {...} span.
func Find(text string) (string, bool) {
	return find(text, '{', '}')
}

// FindArray is Find for a top-level [...] value.
func FindArray(text string) (string, bool) {
	return find(text, '[', ']')
}

func find(text string, open, close byte) (string, bool) {
	var partial string
	for _, rx := range []*regexp.Regexp{jsonFence, genericFence} {
		m := rx.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		span, found, closed := balanced(m[1], open, close)
		if closed {
			return span, true
		}
		// A fence inside a string value ends the match early; the full text
		// is scanned below.
		if found && partial == "" {
			partial = span
		}
	}
	span, found, closed := balanced(text, open, close)
	switch {
	case closed:
		return span, true
	case partial != "":
		return partial, true
	}
	return span, found
}

// balanced returns the first span starting at open whose nesting depth
// returns to zero. Delimiters inside string literals are ignored. An
// unterminated span is returned with closed unset so repair can still have
// a go.
func balanced(s string, open, close byte) (span string, found, closed bool) {
	start := strings.IndexByte(s, open)
	if start < 0 {
		return "", false, false
	}

	depth := 0
	st := normal
	for i := start; i < len(s); i++ {
		c := s[i]
		switch st {
		case afterEscape:
			st = inString
		case inString:
			switch c {
			case '\\':
				st = afterEscape
			case '"':
				st = normal
			}
		default:
			switch c {
			case '"':
				st = inString
			case open:
				depth++
			case close:
				depth--
				if depth == 0 {
					return s[start : i+1], true, true
				}
			}
		}
	}
	return strings.TrimSpace(s[start:]), true, false
}

// Decode finds the JSON object in text and unmarshals it into v, repairing
// it once if the first attempt fails. v may be partially written on error.
func Decode(text string, v any) error {
	span, ok := Find(text)
	if !ok {
		return &ParseError{Raw: text, Err: ErrNoJSON}
	}
	return decodeSpan(text, span, v)
}

// DecodeArray is Decode for a top-level JSON array.
func DecodeArray(text string, v any) error {
	span, ok := FindArray(text)
	if !ok {
		return &ParseError{Raw: text, Err: ErrNoJSON}
	}
	return decodeSpan(text, span, v)
}

func decodeSpan(text, span string, v any) error {
	if err := json.Unmarshal([]byte(span), v); err == nil {
		return nil
	}
	if err := json.Unmarshal([]byte(Repair(span)), v); err != nil {
		return &ParseError{Raw: text, Err: err}
	}
	return nil
}

// Section is a blank-line separated block of prose.
type Section struct {
	Title   string
	Content string
}

var blankLines = regexp.MustCompile(`\n\s*\n`)

const minSectionLength = 50

// Sections splits text on blank lines and keeps the blocks longer than 50
// characters. The first non-empty line of a block becomes its title.
func Sections(text string) []Section {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var out []Section
	for _, part := range blankLines.Split(text, -1) {
		part = strings.TrimSpace(part)
		if len([]rune(part)) <= minSectionLength {
			continue
		}
		title := ""
		for line := range strings.SplitSeq(part, "\n") {
			if t := strings.Trim(line, "#*-: \t"); t != "" {
				title = t
				break
			}
		}
		if title == "" {
			continue
		}
		out = append(out, Section{Title: utils.LimitStr(title, 80), Content: part})
	}
	return out
}
