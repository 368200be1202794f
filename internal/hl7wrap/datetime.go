package hl7wrap

import (
	"fmt"
	"strings"
	"time"
)

// hl7DateTimeLayouts are tried in order of decreasing precision. HL7 permits
// an optional fractional-second component and an optional numeric zone
// offset appended directly to the value.
var hl7DateTimeLayouts = []string{
	"20060102150405.000-0700",
	"20060102150405-0700",
	"20060102150405.000",
	"20060102150405",
	"200601021504",
	"20060102",
}

// parseHL7DateTime parses an HL7 TS value, attaching defaultTZ when the
// value carries no zone offset of its own. It returns the zero time and
// false if nothing matches.
func parseHL7DateTime(value string, defaultTZ *time.Location) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	hasZone := strings.ContainsAny(value[max(0, len(value)-5):], "+-") && len(value) > 8

	for _, layout := range hl7DateTimeLayouts {
		if strings.Contains(layout, "-0700") && !hasZone {
			continue
		}
		if !strings.Contains(layout, "-0700") && hasZone {
			continue
		}
		if t, err := time.Parse(layout, value); err == nil {
			if !hasZone {
				t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), defaultTZ)
			}
			return t, true
		}
	}
	return time.Time{}, false
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// MessageDatetimeISO8601 parses MSH-7 into an RFC3339 instant, attaching
// defaultTZ when MSH-7 carries no zone of its own.
func (m *Message) MessageDatetimeISO8601(defaultTZ *time.Location) (time.Time, bool) {
	return m.IsoDatetime("MSH.F7", defaultTZ)
}

// IsoDate converts an HL7 date value (YYYYMMDD) at path into a calendar
// date. Time-of-day components, if present, are discarded.
func (m *Message) IsoDate(path string) (time.Time, bool) {
	raw := m.Field(path, "")
	t, ok := parseHL7DateTime(raw, time.UTC)
	if !ok {
		return time.Time{}, false
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
}

// IsoDatetime converts an HL7 datetime value at path, accepting
// YYYYMMDD, YYYYMMDDhhmm, and YYYYMMDDhhmmss[.fff][±zzzz], attaching
// defaultTZ when the value has no zone of its own.
func (m *Message) IsoDatetime(path string, defaultTZ *time.Location) (time.Time, bool) {
	raw := m.Field(path, "")
	return parseHL7DateTime(raw, defaultTZ)
}

// FormatOutgoing renders t using the trustomer-configured outgoing format.
// The non-standard "%L" directive means "three-digit millisecond
// fraction"; it is substituted for the zero-padded millisecond value
// before the remainder of the format string is treated as a standard Go
// time layout.
func FormatOutgoing(t time.Time, format string) string {
	ms := t.Nanosecond() / 1_000_000
	parts := strings.Split(format, "%L")
	for i, p := range parts {
		parts[i] = t.Format(p)
	}
	return strings.Join(parts, fmt.Sprintf("%03d", ms))
}
