package api

import (
	"time"

	"github.com/savegress/dhosconnector/internal/oru"
	"github.com/savegress/dhosconnector/internal/store"
)

func parseTime(s string) (time.Time, bool, error) {
	if s == "" {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

type patientDTO struct {
	UUID        string `json:"uuid"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DateOfBirth string `json:"date_of_birth"`
	Sex         string `json:"sex"`
	MRN         string `json:"mrn"`
	NHSNumber   string `json:"nhs_number"`
}

func (d patientDTO) toPatient() (oru.Patient, error) {
	p := oru.Patient{UUID: d.UUID, FirstName: d.FirstName, LastName: d.LastName, Sex: d.Sex, MRN: d.MRN, NHS: d.NHSNumber}
	dob, ok, err := parseTime(d.DateOfBirth)
	if err != nil {
		return p, err
	}
	p.DateOfBirth, p.HasDOB = dob, ok
	return p, nil
}

type encounterDTO struct {
	EprEncounterID  string `json:"epr_encounter_id"`
	LocationOdsCode string `json:"location_ods_code"`
	AdmittedAt      string `json:"admitted_at"`
}

func (d *encounterDTO) toEncounter() (*oru.Encounter, error) {
	if d == nil || d.EprEncounterID == "" {
		return nil, nil
	}
	e := &oru.Encounter{EprEncounterID: d.EprEncounterID, LocationOdsCode: d.LocationOdsCode}
	admitted, ok, err := parseTime(d.AdmittedAt)
	if err != nil {
		return nil, err
	}
	e.AdmittedAt, e.HasAdmittedAt = admitted, ok
	return e, nil
}

type clinicianDTO struct {
	SendEntryIdentifier string `json:"send_entry_identifier"`
	FirstName           string `json:"first_name"`
	LastName            string `json:"last_name"`
}

func (d *clinicianDTO) toClinician() *oru.Clinician {
	if d == nil {
		return nil
	}
	return &oru.Clinician{SendEntryIdentifier: d.SendEntryIdentifier, FirstName: d.FirstName, LastName: d.LastName}
}

type observationDTO struct {
	Value           *float64 `json:"value"`
	StringValue     string   `json:"string_value"`
	PatientRefused  bool     `json:"patient_refused"`
	Score           *float64 `json:"score"`
	ObservedAt      string   `json:"observed_at"`
	PatientPosition string   `json:"patient_position"`
}

func (d *observationDTO) toObservation() (*oru.Observation, error) {
	if d == nil {
		return nil, nil
	}
	o := &oru.Observation{StringValue: d.StringValue, PatientRefused: d.PatientRefused, PatientPosition: d.PatientPosition}
	if d.Value != nil {
		o.HasValue, o.Value = true, *d.Value
	}
	if d.Score != nil {
		o.HasScore, o.ScoreValue = true, *d.Score
	}
	observedAt, _, err := parseTime(d.ObservedAt)
	if err != nil {
		return nil, err
	}
	o.ObservedAt = observedAt
	return o, nil
}

type o2TherapyDTO struct {
	Rate           *float64 `json:"rate"`
	MaskCode       string   `json:"mask_code"`
	MaskPercent    *int     `json:"mask_percent"`
	PatientRefused bool     `json:"patient_refused"`
	Score          *float64 `json:"score"`
	ObservedAt     string   `json:"observed_at"`
}

func (d *o2TherapyDTO) toO2Therapy() (*oru.O2Therapy, error) {
	if d == nil {
		return nil, nil
	}
	o := &oru.O2Therapy{MaskCode: d.MaskCode, PatientRefused: d.PatientRefused}
	if d.Rate != nil {
		o.HasRate, o.Rate = true, *d.Rate
	}
	if d.MaskPercent != nil {
		o.HasMaskPercent, o.MaskPercent = true, *d.MaskPercent
	}
	if d.Score != nil {
		o.HasScore, o.ScoreValue = true, *d.Score
	}
	observedAt, _, err := parseTime(d.ObservedAt)
	if err != nil {
		return nil, err
	}
	o.ObservedAt = observedAt
	return o, nil
}

type acvpuDTO struct {
	Code           string   `json:"code"`
	PatientRefused bool     `json:"patient_refused"`
	Score          *float64 `json:"score"`
	ObservedAt     string   `json:"observed_at"`
}

func (d *acvpuDTO) toACVPU() (*oru.ACVPU, error) {
	if d == nil {
		return nil, nil
	}
	a := &oru.ACVPU{Code: d.Code, PatientRefused: d.PatientRefused}
	if d.Score != nil {
		a.HasScore, a.ScoreValue = true, *d.Score
	}
	observedAt, _, err := parseTime(d.ObservedAt)
	if err != nil {
		return nil, err
	}
	a.ObservedAt = observedAt
	return a, nil
}

type gcsComponentDTO struct {
	Value       *int   `json:"value"`
	Description string `json:"description"`
}

// toComponent builds a GCSComponent, falling back to the standard
// description for the sub-scale's numeric value when the caller didn't
// supply a site-specific one.
func (d *gcsComponentDTO) toComponent(subscale string) *oru.GCSComponent {
	if d == nil {
		return nil
	}
	c := &oru.GCSComponent{Description: d.Description}
	if d.Value != nil {
		c.HasValue, c.Value = true, *d.Value
		if c.Description == "" {
			c.Description = oru.GCSDescription(subscale, *d.Value)
		}
	}
	return c
}

type gcsDTO struct {
	Eyes       *gcsComponentDTO `json:"eyes"`
	Verbal     *gcsComponentDTO `json:"verbal"`
	Motor      *gcsComponentDTO `json:"motor"`
	Total      *int             `json:"total"`
	ObservedAt string           `json:"observed_at"`
}

func (d *gcsDTO) toGCS() (*oru.GCS, error) {
	if d == nil {
		return nil, nil
	}
	g := &oru.GCS{
		Eyes:   d.Eyes.toComponent("eyes"),
		Verbal: d.Verbal.toComponent("verbal"),
		Motor:  d.Motor.toComponent("motor"),
	}
	if d.Total != nil {
		g.HasTotal, g.Total = true, *d.Total
	}
	observedAt, _, err := parseTime(d.ObservedAt)
	if err != nil {
		return nil, err
	}
	g.ObservedAt = observedAt
	return g, nil
}

type nurseConcernDTO struct {
	Concerns   string `json:"concerns"`
	ObservedAt string `json:"observed_at"`
}

func (d *nurseConcernDTO) toNurseConcern() (*oru.NurseConcern, error) {
	if d == nil || d.Concerns == "" {
		return nil, nil
	}
	n := &oru.NurseConcern{ConcernsCSV: d.Concerns}
	observedAt, _, err := parseTime(d.ObservedAt)
	if err != nil {
		return nil, err
	}
	n.ObservedAt = observedAt
	return n, nil
}

type observationSetDTO struct {
	UUID                     string           `json:"uuid"`
	ObservationSetDatetime   string           `json:"observation_set_datetime"`
	ScoreSystem              string           `json:"score_system"`
	Spo2Scale                *int             `json:"spo2_scale"`
	TotalScore               *float64         `json:"total_score"`
	TotalScoreReferenceRange string           `json:"total_score_reference_range"`
	TotalScoreAbnormalFlags  string           `json:"total_score_abnormal_flags"`
	Severity                 string           `json:"severity"`
	TimeNextObsSetDue        string           `json:"time_next_obs_set_due"`
	MinutesLate              int              `json:"minutes_late"`
	HeartRate                *observationDTO  `json:"heart_rate"`
	RespiratoryRate          *observationDTO  `json:"respiratory_rate"`
	DBP                      *observationDTO  `json:"dbp"`
	SBP                      *observationDTO  `json:"sbp"`
	SpO2                     *observationDTO  `json:"spo2"`
	Temperature              *observationDTO  `json:"temperature"`
	O2Therapy                *o2TherapyDTO    `json:"o2_therapy"`
	ACVPU                    *acvpuDTO        `json:"acvpu"`
	GCS                      *gcsDTO          `json:"gcs"`
	NurseConcern             *nurseConcernDTO `json:"nurse_concern"`
}

func (d *observationSetDTO) toObservationSet() (oru.ObservationSet, error) {
	var set oru.ObservationSet
	set.UUID = d.UUID
	set.ScoreSystem = d.ScoreSystem
	set.TotalScoreReferenceRange = d.TotalScoreReferenceRange
	set.TotalScoreAbnormalFlags = d.TotalScoreAbnormalFlags
	set.Severity = d.Severity
	set.MinutesLate = d.MinutesLate

	datetime, _, err := parseTime(d.ObservationSetDatetime)
	if err != nil {
		return set, err
	}
	set.ObservationSetDatetime = datetime

	if d.Spo2Scale != nil {
		set.HasSpo2Scale, set.Spo2Scale = true, *d.Spo2Scale
	}
	if d.TotalScore != nil {
		set.HasTotalScore, set.TotalScoreValue = true, *d.TotalScore
	}
	nextDue, ok, err := parseTime(d.TimeNextObsSetDue)
	if err != nil {
		return set, err
	}
	set.TimeNextObsSetDue, set.HasTimeNextObsSetDue = nextDue, ok

	if set.HeartRate, err = d.HeartRate.toObservation(); err != nil {
		return set, err
	}
	if set.RespiratoryRate, err = d.RespiratoryRate.toObservation(); err != nil {
		return set, err
	}
	if set.DBP, err = d.DBP.toObservation(); err != nil {
		return set, err
	}
	if set.SBP, err = d.SBP.toObservation(); err != nil {
		return set, err
	}
	if set.SpO2, err = d.SpO2.toObservation(); err != nil {
		return set, err
	}
	if set.Temperature, err = d.Temperature.toObservation(); err != nil {
		return set, err
	}
	if set.O2Therapy, err = d.O2Therapy.toO2Therapy(); err != nil {
		return set, err
	}
	if set.ACVPU, err = d.ACVPU.toACVPU(); err != nil {
		return set, err
	}
	if set.GCS, err = d.GCS.toGCS(); err != nil {
		return set, err
	}
	if set.NurseConcern, err = d.NurseConcern.toNurseConcern(); err != nil {
		return set, err
	}
	return set, nil
}

// oruActionRequest mirrors the internal action envelope the outbound ORU
// endpoint accepts: {actions:[{name:"process_observation_set", data:{...}}]}.
type oruActionRequest struct {
	Actions []struct {
		Name string `json:"name"`
		Data struct {
			Patient        patientDTO        `json:"patient"`
			Encounter      *encounterDTO     `json:"encounter"`
			Clinician      *clinicianDTO     `json:"clinician"`
			ObservationSet observationSetDTO `json:"observation_set"`
		} `json:"data"`
	} `json:"actions"`
}

// recordDTO is the JSON shape returned by the message read endpoints.
type recordDTO struct {
	UUID               string            `json:"uuid"`
	MessageType        string            `json:"message_type"`
	IsProcessed        bool              `json:"is_processed"`
	SrcDescription     string            `json:"src_description"`
	DstDescription     string            `json:"dst_description"`
	MessageControlID   *string           `json:"message_control_id"`
	Ack                *string           `json:"ack"`
	Content            string            `json:"content"`
	PatientIdentifiers map[string]string `json:"patient_identifiers,omitempty"`
}

func toRecordDTO(r *store.Record) recordDTO {
	return recordDTO{
		UUID:               r.UUID,
		MessageType:        r.MessageType,
		IsProcessed:        r.IsProcessed,
		SrcDescription:     r.SrcDescription,
		DstDescription:     r.DstDescription,
		MessageControlID:   r.MessageControlID,
		Ack:                r.Ack,
		Content:             r.Content,
		PatientIdentifiers: r.PatientIdentifiers,
	}
}
