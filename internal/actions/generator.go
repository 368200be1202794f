// Package actions implements the ADT action generator (C4): it transforms a
// wrapped ADT message into the structured patient/location/encounter
// actions that get published to the event bus, per spec.md §4.4.
package actions

import (
	"time"

	"github.com/savegress/dhosconnector/internal/hl7wrap"
)

// Action is one structured domain event emitted for a processed ADT
// message, shaped {name, data} per spec.md §4.4.
type Action struct {
	Name string         `json:"name"`
	Data map[string]any `json:"data"`
}

const (
	NameProcessPatient   = "process_patient"
	NameProcessLocation  = "process_location"
	NameProcessEncounter = "process_encounter"
)

// sexMap converts the HL7/EPR sex code (PID-8) to the SNOMED CT concept id
// used internally, per the Glossary's sex-code map.
var sexMap = map[string]string{
	"1": "248153007", "M": "248153007", // male
	"2": "248152002", "F": "248152002", // female
	"3": "184115007", "U": "184115007", // unknown
	"4": "32570681000036106", "I": "32570681000036106", // indeterminate
}

func mapSex(code string) string {
	if v, ok := sexMap[code]; ok {
		return v
	}
	return "unknown"
}

// admissionCancelledTriggers etc. are the sub-event sets of spec.md §4.4.
var admissionCancelledTriggers = map[string]bool{"A11": true, "A23": true, "A27": true, "A38": true}

func subType(msg *hl7wrap.Message) string {
	return msg.Field("MSH.F9.R1.C2", "")
}

// Generate builds the action list for msg. defaultTZ is used to resolve
// zoneless HL7 datetimes in PV1-44/PV1-45.
func Generate(msg *hl7wrap.Message, defaultTZ *time.Location) ([]Action, error) {
	actions := []Action{generatePatient(msg)}

	if err := requireIdentifier(actions[0]); err != nil {
		return nil, err
	}

	if msg.Contains("PV1") && msg.Field("PV1.F44", "") != "" {
		actions = append(actions, generateLocation(msg), generateEncounter(msg, defaultTZ))
	}

	return actions, nil
}

func requireIdentifier(patientAction Action) error {
	_, hasMRN := patientAction.Data["mrn"]
	_, hasNHS := patientAction.Data["nhs_number"]
	if !hasMRN && !hasNHS {
		return hl7wrap.NewApplicationError(nil, "patient action has neither MRN nor NHS number")
	}
	return nil
}

func generatePatient(msg *hl7wrap.Message) Action {
	data := map[string]any{
		"first_name": msg.Field("PID.F5.R1.C2", ""),
		"last_name":  msg.Field("PID.F5.R1.C1", ""),
		"sex":        mapSex(msg.Field("PID.F8", "")),
	}
	if v := msg.PatientIdentifier(hl7wrap.KindNHS); v != "" {
		data["nhs_number"] = v
	}
	if v := msg.PatientIdentifier(hl7wrap.KindMRN); v != "" {
		data["mrn"] = v
	}
	if v := msg.Field("PID.F7", ""); v != "" {
		data["date_of_birth"] = v
	}
	if v := msg.Field("PID.F29", ""); v != "" {
		data["date_of_death"] = v
	}

	switch subType(msg) {
	case "A34", "A40":
		if v := msg.MergedPatientIdentifier(hl7wrap.KindNHS); v != "" {
			data["previous_nhs_number"] = v
		}
		if v := msg.MergedPatientIdentifier(hl7wrap.KindMRN); v != "" {
			data["previous_mrn"] = v
		}
	}

	return Action{Name: NameProcessPatient, Data: data}
}

func location(ward, bay, bed string) map[string]any {
	return map[string]any{
		"epr_ward_code": ward,
		"epr_bay_code":  bay,
		"epr_bed_code":  bed,
	}
}

func generateLocation(msg *hl7wrap.Message) Action {
	data := map[string]any{
		"location": location(
			msg.Field("PV1.F3.R1.C1", ""),
			msg.Field("PV1.F3.R1.C2", ""),
			msg.Field("PV1.F3.R1.C3", ""),
		),
	}
	if msg.Field("PV1.F6.R1.C1", "") != "" {
		data["previous_location"] = location(
			msg.Field("PV1.F6.R1.C1", ""),
			msg.Field("PV1.F6.R1.C2", ""),
			msg.Field("PV1.F6.R1.C3", ""),
		)
	}
	return Action{Name: NameProcessLocation, Data: data}
}

func generateEncounter(msg *hl7wrap.Message, defaultTZ *time.Location) Action {
	data := map[string]any{
		"epr_encounter_id": msg.Field("PV1.F19", ""),
		"location": location(
			msg.Field("PV1.F3.R1.C1", ""),
			msg.Field("PV1.F3.R1.C2", ""),
			msg.Field("PV1.F3.R1.C3", ""),
		),
		"encounter_type": msg.Field("PV1.F2", ""),
	}

	if admitted, ok := msg.IsoDatetime("PV1.F44", defaultTZ); ok {
		data["admitted_at"] = admitted
	}
	if msg.Field("PV1.F45", "") != "" {
		if discharged, ok := msg.IsoDatetime("PV1.F45", defaultTZ); ok {
			data["discharged_at"] = discharged
		}
	}

	st := subType(msg)
	data["admission_cancelled"] = admissionCancelledTriggers[st]
	data["transfer_cancelled"] = st == "A12"
	data["discharge_cancelled"] = st == "A13"
	data["encounter_moved"] = st == "A44"
	data["patient_deceased"] = msg.Field("PID.F29", "") != ""

	if msg.Contains("MRG") {
		data["parent_encounter_id"] = msg.Field("MRG.F5.R1.C1", "")
		data["epr_previous_location_code"] = msg.Field("MRG.F6.R1.C1", "")
	}

	return Action{Name: NameProcessEncounter, Data: data}
}
