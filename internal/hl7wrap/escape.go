package hl7wrap

import "strings"

// escapeReplacer and unescapeReplacer implement the bidirectional HL7
// escape policy of spec.md §4.1: structural delimiters are encoded as
// \Xn\ sequences when they appear in free text, and decoded back on read.
// strings.Replacer makes a single pass over its input, so the escape
// character inside an inserted sequence is never itself re-escaped and a
// round trip doesn't double-escape.
var escapeReplacer = strings.NewReplacer(
	"\\", "\\E\\",
	"|", "\\F\\",
	"~", "\\R\\",
	"^", "\\S\\",
	"&", "\\T\\",
)

var unescapeReplacer = strings.NewReplacer(
	"\\F\\", "|",
	"\\R\\", "~",
	"\\S\\", "^",
	"\\T\\", "&",
	"\\E\\", "\\",
)

// Escape renders free text safe for embedding in an outgoing field: any
// structural delimiter or the escape character itself is replaced with its
// HL7 escape sequence.
func Escape(s string) string {
	return escapeReplacer.Replace(s)
}

// Unescape reverses Escape, restoring the original delimiters from their
// escape sequences.
func Unescape(s string) string {
	return unescapeReplacer.Replace(s)
}
