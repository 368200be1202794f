package oru

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/savegress/dhosconnector/internal/hl7wrap"
)

const hl7Version = "2.6"

// reverseSexMap converts a canonical sex value back to the numeric PID-8
// code EPR expects. Anything unrecognised maps to 3 (unknown), per
// spec.md §4.5.
var reverseSexMap = map[string]string{
	"male":           "1",
	"female":         "2",
	"unknown":        "3",
	"indeterminate":  "4",
}

func reverseSex(canonical string) string {
	if v, ok := reverseSexMap[canonical]; ok {
		return v
	}
	return "3"
}

// gcsEyesDescriptions, gcsVerbalDescriptions, and gcsMotorDescriptions are
// the standard Glasgow Coma Scale sub-score descriptions.
var gcsEyesDescriptions = map[int]string{
	4: "Spontaneous", 3: "To speech", 2: "To pain", 1: "None",
}
var gcsVerbalDescriptions = map[int]string{
	5: "Orientated", 4: "Confused", 3: "Inappropriate words", 2: "Incomprehensible sounds", 1: "None",
}
var gcsMotorDescriptions = map[int]string{
	6: "Obeys commands", 5: "Localises pain", 4: "Normal flexion", 3: "Abnormal flexion", 2: "Extension", 1: "None",
}

// GCSDescription resolves the standard Glasgow Coma Scale sub-score
// description for component ("eyes", "verbal", or "motor") and value.
// Unrecognised components or values return "". Callers that already have
// a site-specific description should prefer it over this lookup.
func GCSDescription(component string, value int) string {
	switch component {
	case "eyes":
		return gcsEyesDescriptions[value]
	case "verbal":
		return gcsVerbalDescriptions[value]
	case "motor":
		return gcsMotorDescriptions[value]
	}
	return ""
}

var acvpuWords = map[string]string{
	"A": "Alert", "C": "Confused", "V": "Voice", "P": "Pain", "U": "Unresponsive",
}

// builder accumulates OBX segments, tracking the monotonic OBX-1 set ID.
type builder struct {
	segments []string
	next     int
}

// obxFields lays out OBX-1 through OBX-14 by index (fields[0] unused):
// 1 set ID, 2 value type, 3 observation identifier, 5 value, 7 reference
// range, 8 abnormal flags, 11 result status, 14 date/time of observation.
func obxFields(setID int, valueType, identifier, value, referenceRange, abnormalFlags string, observedAt time.Time, cfg Config) []string {
	fields := make([]string, 15)
	fields[1] = strconv.Itoa(setID)
	fields[2] = valueType
	fields[3] = identifier
	fields[5] = value
	fields[7] = referenceRange
	fields[8] = abnormalFlags
	fields[11] = "F"
	fields[14] = hl7wrap.FormatOutgoing(observedAt, cfg.OutgoingDateTimeFormat)
	return fields
}

func (b *builder) obx(valueType, identifier, value string, observedAt time.Time, cfg Config) {
	b.next++
	b.segments = append(b.segments, "OBX|"+strings.Join(obxFields(b.next, valueType, identifier, value, "", "", observedAt, cfg)[1:], "|"))
}

func (b *builder) obxWithFlags(valueType, identifier, value, referenceRange, abnormalFlags string, observedAt time.Time, cfg Config) {
	b.next++
	b.segments = append(b.segments, "OBX|"+strings.Join(obxFields(b.next, valueType, identifier, value, referenceRange, abnormalFlags, observedAt, cfg)[1:], "|"))
}

// formatRounded renders v rounded to the nearest integer, per spec.md §4.5's
// rule that HR/RR/DBP/SBP/SpO2 never carry decimals on the wire.
func formatRounded(v float64) string {
	return strconv.FormatFloat(math.Round(v), 'f', 0, 64)
}

// formatVerbatim renders v with no rounding, for vitals (temperature, O2
// flow rate) the original source records to fractional precision.
func formatVerbatim(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func valueOrRefused(o *Observation, numeric string) string {
	if o.PatientRefused {
		return "patient_refused"
	}
	if o.StringValue != "" {
		return hl7wrap.Escape(o.StringValue)
	}
	return numeric
}

// MessageControlID derives an outgoing MSH-10 from the observation set
// identifier when the caller doesn't supply one explicitly: the first 20
// hex characters of MD5(observationSetUUID), per spec.md §4.5.
func MessageControlID(observationSetUUID string) string {
	sum := md5.Sum([]byte(observationSetUUID))
	return hex.EncodeToString(sum[:])[:20]
}

// Generate assembles the ORU^R01 message for one observation set. now is the
// message timestamp (MSH-7). Score, vital, O2 and ACVPU segments whose own
// observation time is zero fall back to the observation set datetime; GCS
// and nurse-concern segments use their own time as given.
// messageControlID, if empty, is derived from the observation set UUID.
func Generate(set ObservationSet, patient Patient, encounter *Encounter, clinician *Clinician, cfg Config, messageControlID string, now time.Time) (string, error) {
	if set.ScoreSystem != "" && set.ScoreSystem != "NEWS2" && set.ScoreSystem != "MEOWS" {
		return "", fmt.Errorf("oru: unsupported score system %q", set.ScoreSystem)
	}

	controlID := messageControlID
	if controlID == "" {
		controlID = MessageControlID(set.UUID)
	}

	msh := strings.Join([]string{
		"MSH", "^~\\&",
		cfg.OutgoingSendingApplication, cfg.OutgoingSendingFacility,
		cfg.OutgoingReceivingApplication, cfg.OutgoingReceivingFacility,
		hl7wrap.FormatOutgoing(now, cfg.OutgoingDateTimeFormat),
		"",
		"ORU^R01^ORU_R01",
		controlID,
		cfg.OutgoingProcessingID,
		hl7Version,
	}, "|")

	pid := strings.Join([]string{
		"PID", "1", patient.UUID,
		patientIdentifierField(patient),
		"",
		hl7wrap.Escape(patient.LastName) + "^" + hl7wrap.Escape(patient.FirstName),
		"",
		dobField(patient),
		reverseSex(patient.Sex),
	}, "|")

	segments := []string{msh, pid}

	if encounter != nil && encounter.EprEncounterID != "" {
		admitted := ""
		if encounter.HasAdmittedAt {
			admitted = hl7wrap.FormatOutgoing(encounter.AdmittedAt, cfg.OutgoingDateTimeFormat)
		}
		// PV1 fields are positional; build by index (1-based, fields[0]
		// unused) rather than counting pipes by hand. F3 is the
		// unescaped location ods code, F19 the escaped encounter id, F44
		// the admission datetime.
		fields := make([]string, 45)
		fields[1] = "1"
		fields[2] = "I"
		fields[3] = encounter.LocationOdsCode
		fields[19] = hl7wrap.Escape(encounter.EprEncounterID)
		fields[44] = admitted
		segments = append(segments, "PV1|"+strings.Join(fields[1:], "|"))
	}

	// OBR literal shape, per spec.md §4.5:
	// OBR|1||<obs_set_uuid>|EWS|||<obs_set_datetime>|||<collector>|||||||||||||||F
	obr := "OBR|1||" + set.UUID + "|EWS|||" +
		hl7wrap.FormatOutgoing(set.ObservationSetDatetime, cfg.OutgoingDateTimeFormat) +
		"|||" + collectorField(clinician) + strings.Repeat("|", 15) + "F"
	segments = append(segments, obr)

	b := &builder{}
	obsTime := set.ObservationSetDatetime

	appendOverallScore(b, set, cfg, obsTime)
	appendNextDue(b, set, cfg)
	appendMinutesLate(b, set, cfg, obsTime)
	appendVital(b, "HR", set.HeartRate, cfg, obsTime, formatRounded)
	appendVital(b, "RR", set.RespiratoryRate, cfg, obsTime, formatRounded)
	appendBloodPressure(b, set, cfg, obsTime)
	appendVital(b, "SpO2", set.SpO2, cfg, obsTime, formatRounded)
	appendO2Therapy(b, set.O2Therapy, cfg, obsTime)
	appendVital(b, "Temperature", set.Temperature, cfg, obsTime, formatVerbatim)
	appendACVPU(b, set.ACVPU, cfg, obsTime)
	appendGCS(b, set.GCS, cfg)
	appendNurseConcern(b, set.NurseConcern, cfg)

	segments = append(segments, b.segments...)

	return strings.Join(segments, "\r") + "\r", nil
}

func patientIdentifierField(p Patient) string {
	var reps []string
	if p.MRN != "" {
		reps = append(reps, hl7wrap.Escape(p.MRN)+"^^^^MRN")
	}
	if p.NHS != "" {
		reps = append(reps, hl7wrap.Escape(p.NHS)+"^^^^NHS")
	}
	return strings.Join(reps, "~")
}

func dobField(p Patient) string {
	if !p.HasDOB {
		return ""
	}
	return p.DateOfBirth.Format("20060102")
}

func collectorField(c *Clinician) string {
	if c == nil {
		return ""
	}
	return strings.Join([]string{c.SendEntryIdentifier, c.LastName, c.FirstName}, "^")
}

func appendOverallScore(b *builder, set ObservationSet, cfg Config, obsTime time.Time) {
	if set.ScoreSystem == "" {
		return
	}
	b.obx("ST", "ScoringSystem", set.ScoreSystem, obsTime, cfg)

	if set.ScoreSystem == "NEWS2" && set.HasSpo2Scale {
		b.obx("ST", "SpO2Scale", fmt.Sprintf("Scale %d", set.Spo2Scale), obsTime, cfg)
	}

	if set.HasTotalScore {
		b.obxWithFlags("NM", "TotalScore", formatRounded(set.TotalScoreValue),
			set.TotalScoreReferenceRange, hl7wrap.Escape(set.TotalScoreAbnormalFlags), obsTime, cfg)
	}

	if set.Severity != "" {
		b.obx("ST", "Severity", hl7wrap.Escape(set.Severity), obsTime, cfg)
	}
}

func appendNextDue(b *builder, set ObservationSet, cfg Config) {
	if !set.HasTimeNextObsSetDue {
		return
	}
	b.obx("TS", "TimeNextObsSetDue", hl7wrap.FormatOutgoing(set.TimeNextObsSetDue, cfg.OutgoingDateTimeFormat), set.TimeNextObsSetDue, cfg)
}

func appendMinutesLate(b *builder, set ObservationSet, cfg Config, obsTime time.Time) {
	if set.MinutesLate == 0 {
		return
	}
	b.obx("NM", "MinutesLate", strconv.Itoa(set.MinutesLate), obsTime, cfg)
}

func appendVital(b *builder, identifier string, o *Observation, cfg Config, defaultTime time.Time, format func(float64) string) {
	if !o.Present() {
		return
	}
	at := o.ObservedAt
	if at.IsZero() {
		at = defaultTime
	}
	numeric := ""
	if o.HasValue {
		numeric = format(o.Value)
	}
	b.obx("NM", identifier, valueOrRefused(o, numeric), at, cfg)
	if o.HasScore {
		b.obx("NM", identifier+"Score", formatRounded(o.ScoreValue), at, cfg)
	}
}

func appendBloodPressure(b *builder, set ObservationSet, cfg Config, defaultTime time.Time) {
	sbp, dbp := set.SBP, set.DBP
	if !sbp.Present() && !dbp.Present() {
		return
	}

	position := ""
	at := defaultTime
	if sbp.Present() {
		position = sbp.PatientPosition
		if !sbp.ObservedAt.IsZero() {
			at = sbp.ObservedAt
		}
	} else if dbp.Present() {
		position = dbp.PatientPosition
		if !dbp.ObservedAt.IsZero() {
			at = dbp.ObservedAt
		}
	}
	if position != "" {
		b.obx("ST", "BPPOS", hl7wrap.Escape(position), at, cfg)
	}

	appendVital(b, "SBP", sbp, cfg, defaultTime, formatRounded)
	appendVital(b, "DBP", dbp, cfg, defaultTime, formatRounded)
}

func appendO2Therapy(b *builder, o *O2Therapy, cfg Config, defaultTime time.Time) {
	if !o.Present() {
		return
	}
	at := o.ObservedAt
	if at.IsZero() {
		at = defaultTime
	}

	if o.PatientRefused {
		b.obx("NM", "O2Rate", "patient_refused", at, cfg)
		return
	}
	if o.HasRate {
		b.obx("NM", "O2Rate", formatVerbatim(o.Rate), at, cfg)
	}
	if o.MaskCode != "" {
		b.obx("CE", "O2Delivery", resolveMask(o, cfg), at, cfg)
	}
	if o.HasScore {
		b.obx("NM", "O2Score", formatRounded(o.ScoreValue), at, cfg)
	}
}

// resolveMask looks up the configured display name for a mask code,
// substituting the literal "{mask_percent}" placeholder (both code and
// name may carry it) with the observed percentage, defaulting to 21 (room
// air) when none was recorded.
func resolveMask(o *O2Therapy, cfg Config) string {
	percent := 21
	if o.HasMaskPercent {
		percent = o.MaskPercent
	}
	percentStr := strconv.Itoa(percent)

	for _, mask := range cfg.OxygenMasks {
		if strings.ReplaceAll(mask.Code, "{mask_percent}", percentStr) == o.MaskCode ||
			mask.Code == o.MaskCode {
			code := strings.ReplaceAll(mask.Code, "{mask_percent}", percentStr)
			name := strings.ReplaceAll(mask.Name, "{mask_percent}", percentStr)
			return hl7wrap.Escape(code) + "^" + hl7wrap.Escape(name)
		}
	}
	return hl7wrap.Escape(o.MaskCode)
}

func appendACVPU(b *builder, a *ACVPU, cfg Config, defaultTime time.Time) {
	if !a.Present() {
		return
	}
	at := a.ObservedAt
	if at.IsZero() {
		at = defaultTime
	}
	if a.PatientRefused {
		b.obx("CE", "ACVPU", "patient_refused", at, cfg)
		return
	}
	word := acvpuWords[a.Code]
	b.obx("CE", "ACVPU", a.Code+"^"+word, at, cfg)
	if a.HasScore {
		b.obx("NM", "ACVPUScore", formatRounded(a.ScoreValue), at, cfg)
	}
}

func appendGCS(b *builder, g *GCS, cfg Config) {
	if !g.Present() {
		return
	}
	at := g.ObservedAt

	appendGCSComponent(b, "GCS-Eyes", g.Eyes, at, cfg)
	appendGCSComponent(b, "GCS-Verbal", g.Verbal, at, cfg)
	appendGCSComponent(b, "GCS-Motor", g.Motor, at, cfg)

	if g.HasTotal {
		b.obx("NM", "GCS", strconv.Itoa(g.Total), at, cfg)
	}
}

func appendGCSComponent(b *builder, identifier string, c *GCSComponent, at time.Time, cfg Config) {
	if !c.present() {
		return
	}
	b.obx("CE", identifier, strconv.Itoa(c.Value)+"^"+hl7wrap.Escape(c.Description), at, cfg)
}

func appendNurseConcern(b *builder, n *NurseConcern, cfg Config) {
	if !n.Present() {
		return
	}
	for _, concern := range strings.Split(n.ConcernsCSV, ",") {
		concern = strings.TrimSpace(concern)
		if concern == "" {
			continue
		}
		b.obx("ST", "NC", hl7wrap.Escape(concern), n.ObservedAt, cfg)
	}
}
