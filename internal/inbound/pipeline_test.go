package inbound

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/savegress/dhosconnector/internal/bus"
	"github.com/savegress/dhosconnector/internal/hl7wrap"
	"github.com/savegress/dhosconnector/internal/store"
	"github.com/savegress/dhosconnector/internal/transform"
)

const sampleA01 = "MSH|^~\\&|TIE|NOC|DHOS|NOC|20170731141300||ADT^A01|1|P|2.5\r" +
	"PID|1||654321^^^^MRN~1239874560^^^^NHS||ZZZEDUCATION^STEPHEN||19800101|1\r" +
	"PV1|1|I|NOC-Ward B^Bay1^Bed1||||||||||||||||909127805|||||||||||||||||||||||||20170731141300\r"

const sampleA05Waitlist = "MSH|^~\\&|TIE|NOC|DHOS|NOC|20170731141300||ADT^A05|1|P|2.5\r" +
	"PID|1||654321^^^^MRN\r" +
	"PV1|1|WAITLIST|NOC-Ward B\r"

type fakeStore struct {
	records        []*store.Record
	duplicateAfter int // index after which a matching control id collides
}

func (f *fakeStore) Create(ctx context.Context, record *store.Record) error {
	if record.UUID == "" {
		record.UUID = "generated-uuid"
	}
	if record.MessageControlID != nil {
		for _, r := range f.records {
			if r.MessageControlID != nil && *r.MessageControlID == *record.MessageControlID {
				return store.ErrDuplicateControlID
			}
		}
	}
	cp := *record
	f.records = append(f.records, &cp)
	return nil
}

type fakePublisher struct {
	events []bus.Event
}

func (f *fakePublisher) Publish(ctx context.Context, evt bus.Event) error {
	f.events = append(f.events, evt)
	return nil
}

func newTestPipeline() (*Pipeline, *fakeStore, *fakePublisher) {
	s := &fakeStore{}
	p := &fakePublisher{}
	pl := &Pipeline{
		Store:       s,
		Publisher:   p,
		Transforms:  transform.NewRegistry(),
		DefaultTZ:   time.UTC,
		TimestampFmt: "20060102150405",
	}
	return pl, s, p
}

func TestSubmitA01ProducesAAAndPublishes(t *testing.T) {
	pl, s, pub := newTestPipeline()
	content := base64.StdEncoding.EncodeToString([]byte(sampleA01))

	res, err := pl.Submit(context.Background(), content)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	ackBytes, err := base64.StdEncoding.DecodeString(string(res.Body))
	if err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	ack, err := hl7wrap.Parse(string(ackBytes))
	if err != nil {
		t.Fatalf("parse ack: %v", err)
	}
	if code := ack.Field("MSA.F1", ""); code != "AA" {
		t.Errorf("MSA-1 = %q, want AA", code)
	}

	if len(s.records) != 1 {
		t.Fatalf("expected 1 persisted record, got %d", len(s.records))
	}
	if len(pub.events) != 1 {
		t.Fatalf("expected 1 published event, got %d", len(pub.events))
	}
}

func TestSubmitWaitlistProducesAEAndDoesNotPublish(t *testing.T) {
	pl, _, pub := newTestPipeline()
	content := base64.StdEncoding.EncodeToString([]byte(sampleA05Waitlist))

	res, err := pl.Submit(context.Background(), content)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	ackBytes, _ := base64.StdEncoding.DecodeString(string(res.Body))
	ack, _ := hl7wrap.Parse(string(ackBytes))
	if code := ack.Field("MSA.F1", ""); code != "AE" {
		t.Errorf("MSA-1 = %q, want AE", code)
	}
	if len(pub.events) != 0 {
		t.Error("expected no event published for a rejected message")
	}
}

func TestSubmitDuplicateRewritesToARWithNilControlID(t *testing.T) {
	pl, s, _ := newTestPipeline()
	content := base64.StdEncoding.EncodeToString([]byte(sampleA01))

	if _, err := pl.Submit(context.Background(), content); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	res2, err := pl.Submit(context.Background(), content)
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}

	ackBytes, _ := base64.StdEncoding.DecodeString(string(res2.Body))
	ack, _ := hl7wrap.Parse(string(ackBytes))
	if code := ack.Field("MSA.F1", ""); code != "AR" {
		t.Errorf("second MSA-1 = %q, want AR", code)
	}

	if len(s.records) != 2 {
		t.Fatalf("expected 2 persisted records, got %d", len(s.records))
	}
	if s.records[1].MessageControlID != nil {
		t.Errorf("duplicate record's message_control_id should be nil, got %v", *s.records[1].MessageControlID)
	}
}

func TestSubmitBadBase64IsParseError(t *testing.T) {
	pl, _, _ := newTestPipeline()
	_, err := pl.Submit(context.Background(), "not-valid-base64!!")
	if _, ok := err.(*ParseError); !ok {
		t.Fatalf("expected *ParseError, got %v (%T)", err, err)
	}
}
