package hl7wrap

import (
	"strconv"
	"strings"
)

// Path is a parsed field address of the form SEG.Fn[.Rr][.Cc][.Ss], using
// 1-based indices. A nil component means "not specified": the accessor
// returns the full (unsplit) text at that level.
type Path struct {
	Segment string
	Field   int
	Rep     *int
	Comp    *int
	Sub     *int
}

// ParsePath parses a dotted HL7 field path such as "PID.F3.R1.C5". It never
// errors: a malformed path yields a Path with Field == 0, which callers
// treat as "address not found" and fall back to the caller-supplied default.
func ParsePath(path string) Path {
	parts := strings.Split(path, ".")
	if len(parts) < 2 {
		return Path{}
	}

	p := Path{Segment: parts[0]}

	fieldPart := parts[1]
	if !strings.HasPrefix(fieldPart, "F") {
		return Path{}
	}
	n, err := strconv.Atoi(fieldPart[1:])
	if err != nil || n < 1 {
		return Path{}
	}
	p.Field = n

	for _, seg := range parts[2:] {
		if len(seg) < 2 {
			return Path{}
		}
		n, err := strconv.Atoi(seg[1:])
		if err != nil || n < 1 {
			return Path{}
		}
		switch seg[0] {
		case 'R':
			p.Rep = &n
		case 'C':
			p.Comp = &n
		case 'S':
			p.Sub = &n
		default:
			return Path{}
		}
	}
	return p
}

func splitIndex(s, sep string, idx int) (string, bool) {
	if idx < 1 {
		return "", false
	}
	parts := strings.Split(s, sep)
	if idx > len(parts) {
		return "", false
	}
	return parts[idx-1], true
}
