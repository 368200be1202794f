package hl7wrap

import "strings"

// Identifier kind codes recognised in PID-3 / MRG-1 component 5.
const (
	KindNHS = "NHS"
	KindMRN = "MRN"
)

// nhsAliases lists the component-5 values that are treated as NHS number
// even though they don't spell "NHS", per spec.md §4.1.
var nhsAliases = map[string]bool{
	"NHS":    true,
	"NHSNBR": true,
	"NHSNMBR": true,
}

// PatientIdentifier scans PID-3 repetitions and returns the identifier
// (component 1) whose component 5 matches kind, or "" if none does.
func (m *Message) PatientIdentifier(kind string) string {
	return scanIdentifierField(m.Field("PID.F3", ""), m.Delim, kind)
}

// MergedPatientIdentifier is the same scan over MRG-1.
func (m *Message) MergedPatientIdentifier(kind string) string {
	return scanIdentifierField(m.Field("MRG.F1", ""), m.Delim, kind)
}

func scanIdentifierField(raw string, delim Delimiters, kind string) string {
	if raw == "" {
		return ""
	}
	for _, rep := range strings.Split(raw, delim.Repetition) {
		comps := strings.Split(rep, delim.Component)
		if len(comps) < 5 {
			continue
		}
		if matchesKind(comps[4], kind) {
			return Unescape(comps[0])
		}
	}
	return ""
}

func matchesKind(component5, kind string) bool {
	if kind == KindNHS {
		return nhsAliases[component5]
	}
	return component5 == kind
}

// PatientIdentifiersAsMap returns the {NHS number, MRN, Visit ID} map used
// for persisted lookup, drawing Visit ID from PV1-19.
func (m *Message) PatientIdentifiersAsMap() map[string]string {
	out := map[string]string{}
	if v := m.PatientIdentifier(KindNHS); v != "" {
		out["NHS number"] = v
	}
	if v := m.PatientIdentifier(KindMRN); v != "" {
		out["MRN"] = v
	}
	if v := m.Field("PV1.F19", ""); v != "" {
		out["Visit ID"] = v
	}
	return out
}
