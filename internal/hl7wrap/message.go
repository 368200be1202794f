package hl7wrap

import (
	"fmt"
	"strings"
)

// Segment is one CR-delimited line of an HL7 message, split into fields on
// the message's field separator. Fields[0] is always the 3-character
// segment ID literal (e.g. "MSH", "PID").
type Segment struct {
	Fields []string
}

func (s Segment) ID() string {
	if len(s.Fields) == 0 {
		return ""
	}
	return s.Fields[0]
}

// Message is a parsed, addressable HL7 v2.x message.
type Message struct {
	Raw      string
	Delim    Delimiters
	Segments []Segment
}

// Parse normalizes line endings to the HL7 segment terminator and parses
// raw into an addressable Message. A message lacking MSH is a hard failure;
// every other malformed segment is tolerated (kept as a verbatim field
// split) so that field access on the rest of the message still works.
func Parse(raw string) (*Message, error) {
	text := normalizeLineEndings(raw)

	lines := strings.Split(text, SegmentTerminator)
	var mshLine string
	mshIdx := -1
	for i, l := range lines {
		if strings.HasPrefix(l, "MSH") {
			mshLine = l
			mshIdx = i
			break
		}
	}
	if mshIdx == -1 {
		return nil, fmt.Errorf("hl7wrap: message has no MSH segment")
	}
	if len(mshLine) < 8 {
		return nil, fmt.Errorf("hl7wrap: MSH segment too short")
	}

	delim := Delimiters{
		Field:        string(mshLine[3]),
		Component:    string(mshLine[4]),
		Repetition:   string(mshLine[5]),
		Escape:       string(mshLine[6]),
		Subcomponent: string(mshLine[7]),
	}

	msg := &Message{Raw: raw, Delim: delim}
	for i, l := range lines {
		if l == "" {
			continue
		}
		if i < mshIdx {
			continue
		}
		msg.Segments = append(msg.Segments, parseSegment(l, delim))
	}
	return msg, nil
}

func normalizeLineEndings(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\r")
	s = strings.ReplaceAll(s, "\n", "\r")
	return s
}

// parseSegment splits a segment line on the field separator. The MSH
// segment is special-cased: its own field separator is not itself a field
// in the split array, so Fields[1] below is MSH-2 (the encoding
// characters), not MSH-1; Field() compensates for this when addressing MSH.
func parseSegment(line string, delim Delimiters) Segment {
	id := line
	if len(id) > 3 {
		id = line[:3]
	}
	if id == "MSH" {
		rest := line[4:] // after "MSH" + its field separator
		fields := append([]string{"MSH"}, strings.Split(rest, delim.Field)...)
		return Segment{Fields: fields}
	}
	return Segment{Fields: strings.Split(line, delim.Field)}
}

// Contains reports whether the message has at least one segment with the
// given 3-character identifier.
func (m *Message) Contains(segmentID string) bool {
	_, ok := m.firstSegment(segmentID)
	return ok
}

func (m *Message) firstSegment(segmentID string) (Segment, bool) {
	for _, s := range m.Segments {
		if s.ID() == segmentID {
			return s, true
		}
	}
	return Segment{}, false
}

func (m *Message) allSegments(segmentID string) []Segment {
	var out []Segment
	for _, s := range m.Segments {
		if s.ID() == segmentID {
			out = append(out, s)
		}
	}
	return out
}

// Field returns the field text addressed by path, or def if the segment is
// missing, the index is out of range, the path is malformed, or the value
// is the HL7 null representation.
func (m *Message) Field(path string, def string) string {
	p := ParsePath(path)
	if p.Field == 0 {
		return def
	}
	seg, ok := m.firstSegment(p.Segment)
	if !ok {
		return def
	}
	raw, ok := fieldRaw(seg, p.Field, p.Segment == "MSH", m.Delim)
	if !ok {
		return def
	}

	value := raw
	if p.Rep != nil {
		v, ok := splitIndex(value, m.Delim.Repetition, *p.Rep)
		if !ok {
			return def
		}
		value = v
	}
	if p.Comp != nil {
		v, ok := splitIndex(value, m.Delim.Component, *p.Comp)
		if !ok {
			return def
		}
		value = v
	}
	if p.Sub != nil {
		v, ok := splitIndex(value, m.Delim.Subcomponent, *p.Sub)
		if !ok {
			return def
		}
		value = v
	}

	if value == "" || value == NullValue {
		return def
	}
	return Unescape(value)
}

// fieldRaw returns the unsplit field text for a 1-based field number,
// honoring the MSH convention that F1 is the field separator literal.
func fieldRaw(seg Segment, n int, isMSH bool, delim Delimiters) (string, bool) {
	if isMSH {
		if n == 1 {
			return delim.Field, true
		}
		idx := n - 1 // Fields[1] holds MSH-2
		if idx < 0 || idx >= len(seg.Fields) {
			return "", false
		}
		return seg.Fields[idx], true
	}
	if n < 0 || n >= len(seg.Fields) {
		return "", false
	}
	return seg.Fields[n], true
}

// MessageType returns the raw text of MSH-9 (may contain components, e.g.
// "ADT^A01").
func (m *Message) MessageType() string {
	return m.Field("MSH.F9", "")
}

// MessageControlID returns MSH-10.
func (m *Message) MessageControlID() string {
	return m.Field("MSH.F10", "")
}
