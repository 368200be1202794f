// Package oru implements the ORU^R01 generator (C5): it assembles an
// HL7 v2.6 observation-result message from a patient, an optional
// encounter, an observation set, and an optional clinician, per
// spec.md §4.5.
package oru

import "time"

// Patient carries the fields the ORU PID segment needs.
type Patient struct {
	UUID        string
	FirstName   string
	LastName    string
	DateOfBirth time.Time
	HasDOB      bool
	Sex         string // canonical sex ("male", "female", "unknown", "indeterminate")
	MRN         string
	NHS         string
}

// Encounter carries the fields the ORU PV1 segment needs. PV1 is emitted
// only when EprEncounterID is non-empty.
type Encounter struct {
	EprEncounterID  string
	LocationOdsCode string
	AdmittedAt      time.Time
	HasAdmittedAt   bool
}

// Clinician is the OBR-10 collector.
type Clinician struct {
	SendEntryIdentifier string
	FirstName           string
	LastName            string
}

// Observation is a single numeric/string vital sign reading.
type Observation struct {
	HasValue       bool
	Value          float64
	StringValue    string
	PatientRefused bool
	HasScore       bool
	ScoreValue     float64
	ObservedAt     time.Time
	PatientPosition string // carried on SBP/DBP for the shared BPPOS segment
}

// Present reports whether this observation carries enough to emit an OBX:
// a value, a string, or a refusal flag.
func (o *Observation) Present() bool {
	if o == nil {
		return false
	}
	return o.HasValue || o.StringValue != "" || o.PatientRefused
}

// O2Therapy is the oxygen-delivery observation group.
type O2Therapy struct {
	HasRate        bool
	Rate           float64
	MaskCode       string
	HasMaskPercent bool
	MaskPercent    int
	PatientRefused bool
	HasScore       bool
	ScoreValue     float64
	ObservedAt     time.Time
}

func (o *O2Therapy) Present() bool {
	if o == nil {
		return false
	}
	return o.HasRate || o.MaskCode != "" || o.PatientRefused
}

// ACVPU is the consciousness-level observation.
type ACVPU struct {
	Code           string // one of A, C, V, P, U
	PatientRefused bool
	HasScore       bool
	ScoreValue     float64
	ObservedAt     time.Time
}

func (a *ACVPU) Present() bool {
	if a == nil {
		return false
	}
	return a.Code != "" || a.PatientRefused
}

// GCSComponent is one sub-score of the Glasgow Coma Scale.
type GCSComponent struct {
	HasValue    bool
	Value       int
	Description string
}

// present reports whether both a value and a description are available;
// per spec.md §4.5, a sub-component lacking either is skipped.
func (c *GCSComponent) present() bool {
	return c != nil && c.HasValue && c.Description != ""
}

// GCS is the Glasgow Coma Scale observation group.
type GCS struct {
	Eyes       *GCSComponent
	Verbal     *GCSComponent
	Motor      *GCSComponent
	HasTotal   bool
	Total      int
	ObservedAt time.Time
}

func (g *GCS) Present() bool {
	return g != nil && (g.Eyes.present() || g.Verbal.present() || g.Motor.present() || g.HasTotal)
}

// NurseConcern carries the comma-separated concern list.
type NurseConcern struct {
	ConcernsCSV string
	ObservedAt  time.Time
}

func (n *NurseConcern) Present() bool {
	return n != nil && n.ConcernsCSV != ""
}

// ObservationSet is the full set of vitals for one round of observations.
type ObservationSet struct {
	UUID                    string
	ObservationSetDatetime  time.Time
	ScoreSystem             string // "NEWS2" or "MEOWS"; empty means no overall score
	HasSpo2Scale            bool
	Spo2Scale               int
	HasTotalScore           bool
	TotalScoreValue         float64
	TotalScoreReferenceRange string
	TotalScoreAbnormalFlags string
	Severity                string
	TimeNextObsSetDue       time.Time
	HasTimeNextObsSetDue    bool
	MinutesLate             int

	HeartRate       *Observation
	RespiratoryRate *Observation
	DBP             *Observation
	SBP             *Observation
	SpO2            *Observation
	Temperature     *Observation
	O2Therapy       *O2Therapy
	ACVPU           *ACVPU
	GCS             *GCS
	NurseConcern    *NurseConcern
}

// OxygenMask maps a mask code (possibly containing the literal
// "{mask_percent}" placeholder) to its display name, per trustomer config.
type OxygenMask struct {
	Code string
	Name string
}

// Config is the subset of trustomer configuration the ORU generator reads.
type Config struct {
	OutgoingSendingApplication   string
	OutgoingSendingFacility      string
	OutgoingReceivingApplication string
	OutgoingReceivingFacility    string
	OutgoingProcessingID         string
	OutgoingDateTimeFormat       string
	GenerateORUMessages          bool
	OxygenMasks                  []OxygenMask
}
