package extract

import (
	"fmt"
	"strings"
)

type scanState int

const (
	normal scanState = iota
	inString
	afterEscape
)

// Repair fixes the usual ways models break JSON. Raw newlines, carriage
// returns and tabs inside string literals are escaped, control characters
// outside literals are dropped, and trailing commas before } or ] are removed.
func Repair(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)

	st := normal
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch st {
		case afterEscape:
			switch c {
			case '\n':
				b.WriteByte('n')
			case '\r':
				b.WriteByte('r')
			case '\t':
				b.WriteByte('t')
			default:
				b.WriteByte(c)
			}
			st = inString
		case inString:
			switch {
			case c == '\\':
				b.WriteByte(c)
				st = afterEscape
			case c == '"':
				b.WriteByte(c)
				st = normal
			case c == '\n':
				b.WriteString(`\n`)
			case c == '\r':
				b.WriteString(`\r`)
			case c == '\t':
				b.WriteString(`\t`)
			case c < 0x20:
				fmt.Fprintf(&b, `\u%04x`, c)
			default:
				b.WriteByte(c)
			}
		default:
			switch {
			case c == '"':
				b.WriteByte(c)
				st = inString
			case c == ',' && closesNext(s[i+1:]):
				// trailing comma
			case c == '\n' || c == '\r' || c == '\t':
				b.WriteByte(c)
			case c < 0x20 || c == 0x7f:
				// dropped
			default:
				b.WriteByte(c)
			}
		}
	}
	return b.String()
}

func closesNext(rest string) bool {
	rest = strings.TrimLeft(rest, " \t\r\n")
	return rest != "" && (rest[0] == '}' || rest[0] == ']')
}
