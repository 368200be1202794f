// Package validate implements the ADT inbound validator (C3): message-type
// whitelist, required-segment checks, identifier checks, and the
// encounter-type blacklist of spec.md §4.3.
package validate

import (
	"fmt"

	"github.com/savegress/dhosconnector/internal/hl7wrap"
)

// adtWhitelist is the set of ADT trigger events this connector accepts.
var adtWhitelist = map[string]bool{
	"A01": true, "A02": true, "A03": true, "A04": true, "A05": true,
	"A08": true, "A11": true, "A12": true, "A13": true, "A14": true,
	"A15": true, "A21": true, "A22": true, "A23": true, "A26": true,
	"A27": true, "A28": true, "A31": true, "A34": true, "A35": true,
	"A38": true, "A40": true, "A44": true, "A52": true, "A53": true,
}

// encounterTypeBlacklist lists PV1-2 values that are never accepted.
var encounterTypeBlacklist = map[string]bool{
	"WAITLIST": true, "PREADMIT": true, "RECURRING": true,
}

// Validate enforces spec.md §4.3 in order, returning the first violation
// as a *hl7wrap.Hl7Error tagged Reject (AR) or Error (AE). A nil error
// means the message is valid.
func Validate(msg *hl7wrap.Message) error {
	category := msg.Field("MSH.F9.R1.C1", "")
	if category != "ADT" {
		return hl7wrap.NewReject(msg, "unexpected message category")
	}

	trigger := msg.Field("MSH.F9.R1.C2", "")
	if !adtWhitelist[trigger] {
		return hl7wrap.NewReject(msg, fmt.Sprintf("unsupported ADT trigger event %q", trigger))
	}

	if !msg.Contains("PID") {
		return hl7wrap.NewApplicationError(msg, "message has no PID segment")
	}

	if msg.PatientIdentifier(hl7wrap.KindNHS) == "" && msg.PatientIdentifier(hl7wrap.KindMRN) == "" {
		return hl7wrap.NewReject(msg, "neither NHS number nor MRN present")
	}

	if msg.Contains("PV1") {
		encounterType := msg.Field("PV1.F2", "")
		if encounterTypeBlacklist[encounterType] {
			return hl7wrap.NewApplicationError(msg, fmt.Sprintf("encounter type %q not accepted", encounterType))
		}
		if msg.Field("PV1.F3.R1.C1", "") == "" {
			return hl7wrap.NewApplicationError(msg, "ward code missing from PV1-3")
		}
	}

	return nil
}
