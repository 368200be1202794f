package outbound

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/savegress/dhosconnector/internal/oru"
	"github.com/savegress/dhosconnector/internal/store"
	"github.com/savegress/dhosconnector/internal/transform"
	"github.com/savegress/dhosconnector/internal/trustomer"
)

func timeMustParse(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

type stubTrustomer struct {
	cfg trustomer.Config
	err error
}

func (s *stubTrustomer) Get(ctx context.Context, product, name string) (trustomer.Config, error) {
	return s.cfg, s.err
}

type fakeOutboundStore struct {
	created []*store.Record
	patched map[string]store.Patch
}

func (f *fakeOutboundStore) Create(ctx context.Context, record *store.Record) error {
	if record.UUID == "" {
		record.UUID = "rec-uuid"
	}
	f.created = append(f.created, record)
	return nil
}

func (f *fakeOutboundStore) Update(ctx context.Context, id string, patch store.Patch) error {
	if f.patched == nil {
		f.patched = map[string]store.Patch{}
	}
	f.patched[id] = patch
	return nil
}

type fakeEPR struct {
	ack string
	err error
}

func (f *fakeEPR) Send(ctx context.Context, content string) (string, error) {
	return f.ack, f.err
}

func enabledConfig() trustomer.Config {
	return trustomer.Config{
		OutgoingSendingApplication:   "DHOS",
		OutgoingSendingFacility:      "NOC",
		OutgoingReceivingApplication: "TIE",
		OutgoingReceivingFacility:    "NOC",
		OutgoingProcessingID:         "P",
		OutgoingDateTimeFormat:       "20060102150405",
		GenerateORUMessages:          true,
	}
}

func sampleORUInput() ORUInput {
	return ORUInput{
		Patient: oru.Patient{UUID: "patient-uuid", LastName: "Smith", FirstName: "Jo", Sex: "female"},
		ObservationSet: oru.ObservationSet{
			UUID:                   "obs-set-uuid",
			ObservationSetDatetime: timeMustParse("2017-07-31T14:13:00Z"),
			ScoreSystem:            "NEWS2",
			HasTotalScore:          true,
			TotalScoreValue:        2,
			HeartRate:              &oru.Observation{PatientRefused: true, ObservedAt: timeMustParse("2017-07-31T14:13:00Z")},
		},
	}
}

func TestSendORUSkipsWhenDisabled(t *testing.T) {
	cfg := enabledConfig()
	cfg.GenerateORUMessages = false
	p := &Pipeline{
		Trustomer:  &stubTrustomer{cfg: cfg},
		EPR:        &fakeEPR{ack: "ack"},
		Store:      &fakeOutboundStore{},
		Transforms: transform.NewRegistry(),
	}
	_, err := p.SendORU(context.Background(), sampleORUInput())
	if !errors.Is(err, ErrGenerationDisabled) {
		t.Fatalf("expected ErrGenerationDisabled, got %v", err)
	}
	if s := p.Store.(*fakeOutboundStore); len(s.created) != 0 {
		t.Error("expected no record persisted when generation is disabled")
	}
}

func TestSendORUPersistsAndMarksProcessed(t *testing.T) {
	s := &fakeOutboundStore{}
	p := &Pipeline{
		Trustomer:  &stubTrustomer{cfg: enabledConfig()},
		EPR:        &fakeEPR{ack: "MSA|AA|123"},
		Store:      s,
		Transforms: transform.NewRegistry(),
	}
	record, err := p.SendORU(context.Background(), sampleORUInput())
	if err != nil {
		t.Fatalf("SendORU: %v", err)
	}
	if !record.IsProcessed {
		t.Error("expected record to be marked processed")
	}
	if len(s.created) != 1 {
		t.Fatalf("expected 1 persisted record, got %d", len(s.created))
	}
	patch, ok := s.patched[record.UUID]
	if !ok || patch.IsProcessed == nil || !*patch.IsProcessed {
		t.Error("expected store.Update to set is_processed=true")
	}
}

func TestSendORULeavesRecordUnprocessedOnEPRFailure(t *testing.T) {
	s := &fakeOutboundStore{}
	p := &Pipeline{
		Trustomer:  &stubTrustomer{cfg: enabledConfig()},
		EPR:        &fakeEPR{err: errors.New("connection refused")},
		Store:      s,
		Transforms: transform.NewRegistry(),
	}
	record, err := p.SendORU(context.Background(), sampleORUInput())
	if err == nil {
		t.Fatal("expected error from EPR failure")
	}
	if record == nil || record.IsProcessed {
		t.Error("expected a persisted but unprocessed record")
	}
	if _, ok := s.patched[record.UUID]; ok {
		t.Error("expected no Update call when EPR send fails")
	}
}

type fakeSOAP struct {
	err error
}

func (f *fakeSOAP) AcceptMessage(ctx context.Context, endpoint, cdaXML string) (string, error) {
	return "ok", f.err
}

func TestSendCDADisabledWithoutEndpoint(t *testing.T) {
	p := &CDAPipeline{SOAP: &fakeSOAP{}, Store: &fakeOutboundStore{}}
	_, err := p.SendCDA(context.Background(), "<ClinicalDocument/>")
	if !errors.Is(err, ErrCDADisabled) {
		t.Fatalf("expected ErrCDADisabled, got %v", err)
	}
}

func TestSendCDAMarksProcessedOnSuccess(t *testing.T) {
	s := &fakeOutboundStore{}
	p := &CDAPipeline{SOAP: &fakeSOAP{}, Store: s, Endpoint: "https://mirth.example/ws"}
	record, err := p.SendCDA(context.Background(), "<ClinicalDocument/>")
	if err != nil {
		t.Fatalf("SendCDA: %v", err)
	}
	if !record.IsProcessed {
		t.Error("expected record marked processed")
	}
}
