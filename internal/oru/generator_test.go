package oru

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/savegress/dhosconnector/internal/hl7wrap"
)

func testConfig() Config {
	return Config{
		OutgoingSendingApplication:   "DHOS",
		OutgoingSendingFacility:      "NOC",
		OutgoingReceivingApplication: "TIE",
		OutgoingReceivingFacility:    "NOC",
		OutgoingProcessingID:         "P",
		OutgoingDateTimeFormat:      "20060102150405",
		GenerateORUMessages:          true,
		OxygenMasks: []OxygenMask{
			{Code: "Humidified {mask_percent}%", Name: "Humidified {mask_percent}% mask"},
		},
	}
}

func sampleSet() ObservationSet {
	at := time.Date(2017, 7, 31, 14, 13, 0, 0, time.UTC)
	return ObservationSet{
		UUID:                    "obs-set-uuid-1",
		ObservationSetDatetime:  at,
		ScoreSystem:             "NEWS2",
		HasSpo2Scale:            true,
		Spo2Scale:               1,
		HasTotalScore:           true,
		TotalScoreValue:         2,
		TotalScoreReferenceRange: "0-4",
		TotalScoreAbnormalFlags: "",
		Severity:                "low",
		HeartRate:               &Observation{PatientRefused: true, ObservedAt: at},
		SBP:                     &Observation{HasValue: true, Value: 212, PatientPosition: "sitting", ObservedAt: at},
		SpO2:                    &Observation{HasValue: true, Value: 94, ObservedAt: at},
		O2Therapy: &O2Therapy{
			HasRate:        true,
			Rate:           6.6,
			MaskCode:       "Humidified 35%",
			HasMaskPercent: true,
			MaskPercent:    35,
			ObservedAt:     at,
		},
		NurseConcern: &NurseConcern{ConcernsCSV: "Pallor or Cyanosis", ObservedAt: at},
	}
}

func TestGenerateProducesStrictlyIncreasingOBXIndices(t *testing.T) {
	msg := generateAndParse(t)

	var indices []int
	for _, seg := range msg.Segments {
		if seg.ID() != "OBX" {
			continue
		}
		n, err := strconv.Atoi(seg.Fields[1])
		if err != nil {
			t.Fatalf("OBX-1 not numeric: %v", seg.Fields)
		}
		indices = append(indices, n)
	}
	if len(indices) == 0 {
		t.Fatal("expected at least one OBX segment")
	}
	for i, n := range indices {
		if n != i+1 {
			t.Fatalf("OBX-1 sequence not strictly increasing from 1: %v", indices)
		}
	}
}

func TestGenerateMessageTypeAndControlID(t *testing.T) {
	msg := generateAndParse(t)
	if got := msg.MessageType(); got != "ORU^R01^ORU_R01" {
		t.Errorf("message type = %q", got)
	}

	sum := md5.Sum([]byte(sampleSet().UUID))
	want := hex.EncodeToString(sum[:])[:20]
	if got := msg.MessageControlID(); got != want {
		t.Errorf("control id = %q, want %q", got, want)
	}
}

func TestGenerateRefusedHeartRateLiteral(t *testing.T) {
	msg := generateAndParse(t)
	found := false
	for _, seg := range msg.Segments {
		if seg.ID() == "OBX" && seg.Fields[3] == "HR" {
			found = true
			if seg.Fields[5] != "patient_refused" {
				t.Errorf("HR value = %q, want patient_refused", seg.Fields[5])
			}
		}
	}
	if !found {
		t.Fatal("no HR OBX emitted")
	}
}

func TestGenerateO2DeliveryResolvesMaskPercent(t *testing.T) {
	msg := generateAndParse(t)
	for _, seg := range msg.Segments {
		if seg.ID() == "OBX" && seg.Fields[3] == "O2Delivery" {
			if !strings.Contains(seg.Fields[5], "35") {
				t.Errorf("O2Delivery = %q, want mask_percent substituted", seg.Fields[5])
			}
			return
		}
	}
	t.Fatal("no O2Delivery OBX emitted")
}

func TestGenerateNurseConcernSplitsCSV(t *testing.T) {
	set := sampleSet()
	set.NurseConcern = &NurseConcern{ConcernsCSV: "Pallor or Cyanosis, Agitated", ObservedAt: set.ObservationSetDatetime}
	text, err := Generate(set, Patient{UUID: "p1", MRN: "654321"}, nil, nil, testConfig(), "", set.ObservationSetDatetime)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if strings.Count(text, "|NC||") != 2 {
		t.Fatalf("expected two NC segments, got:\n%s", text)
	}
}

func TestGenerateRejectsUnknownScoreSystem(t *testing.T) {
	set := sampleSet()
	set.ScoreSystem = "ARBITRARY"
	_, err := Generate(set, Patient{UUID: "p1"}, nil, nil, testConfig(), "", set.ObservationSetDatetime)
	if err == nil {
		t.Fatal("expected error for unsupported score system")
	}
}

func TestGeneratePV1OmittedWithoutEncounter(t *testing.T) {
	msg := generateAndParse(t)
	if msg.Contains("PV1") {
		t.Error("PV1 should be absent when no encounter is supplied")
	}
}

func TestGeneratePV1EmittedWithEncounter(t *testing.T) {
	set := sampleSet()
	enc := &Encounter{EprEncounterID: "909127805", LocationOdsCode: "NOC-Ward B", HasAdmittedAt: true, AdmittedAt: set.ObservationSetDatetime}
	text, err := Generate(set, Patient{UUID: "p1", MRN: "654321"}, enc, nil, testConfig(), "", set.ObservationSetDatetime)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	msg, err := hl7wrap.Parse(text)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if msg.Field("PV1.F19", "") != "909127805" {
		t.Errorf("PV1-19 = %q", msg.Field("PV1.F19", ""))
	}
	if msg.Field("PV1.F3", "") != "NOC-Ward B" {
		t.Errorf("PV1-3 = %q", msg.Field("PV1.F3", ""))
	}
}

func TestGCSDescriptionKnownAndUnknownValues(t *testing.T) {
	if got := GCSDescription("eyes", 4); got != "Spontaneous" {
		t.Errorf("eyes/4 = %q, want Spontaneous", got)
	}
	if got := GCSDescription("motor", 6); got != "Obeys commands" {
		t.Errorf("motor/6 = %q, want Obeys commands", got)
	}
	if got := GCSDescription("verbal", 99); got != "" {
		t.Errorf("verbal/99 = %q, want empty", got)
	}
	if got := GCSDescription("unknown-scale", 1); got != "" {
		t.Errorf("unknown-scale/1 = %q, want empty", got)
	}
}

func generateAndParse(t *testing.T) *hl7wrap.Message {
	t.Helper()
	set := sampleSet()
	text, err := Generate(set, Patient{UUID: "p1", MRN: "654321", FirstName: "Stephen", LastName: "ZZZEDUCATION", Sex: "male"}, nil, nil, testConfig(), "", set.ObservationSetDatetime)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	msg, err := hl7wrap.Parse(text)
	if err != nil {
		t.Fatalf("reparse generated ORU: %v\n%s", err, text)
	}
	return msg
}
