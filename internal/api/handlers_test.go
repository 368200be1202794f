package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/savegress/dhosconnector/internal/bus"
	"github.com/savegress/dhosconnector/internal/inbound"
	"github.com/savegress/dhosconnector/internal/outbound"
	"github.com/savegress/dhosconnector/internal/store"
	"github.com/savegress/dhosconnector/internal/transform"
	"github.com/savegress/dhosconnector/internal/trustomer"
)

const a01Sample = "MSH|^~\\&|TIE|NOC|DHOS|NOC|20170731141300||ADT^A01|1|P|2.5\r" +
	"PID|1||654321^^^^MRN~1239874560^^^^NHS||ZZZEDUCATION^STEPHEN||19800101|1\r"

type fakeStore struct {
	records []*store.Record
}

func (f *fakeStore) Create(ctx context.Context, record *store.Record) error {
	if record.UUID == "" {
		record.UUID = "generated-uuid"
	}
	f.records = append(f.records, record)
	return nil
}

func (f *fakeStore) Update(ctx context.Context, id string, patch store.Patch) error { return nil }

type fakePublisher struct{}

func (f *fakePublisher) Publish(ctx context.Context, evt bus.Event) error { return nil }

func TestSubmitMessageReturnsAckEnvelope(t *testing.T) {
	pipeline := &inbound.Pipeline{
		Store:        &fakeStore{},
		Publisher:    &fakePublisher{},
		Transforms:   transform.NewRegistry(),
		DefaultTZ:    time.UTC,
		TimestampFmt: "20060102150405",
	}
	h := NewHandlers(pipeline, nil, nil, nil)

	body, _ := json.Marshal(map[string]string{"content": base64.StdEncoding.EncodeToString([]byte(a01Sample))})
	req := httptest.NewRequest(http.MethodPost, "/dhos/v1/message", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.SubmitMessage(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["type"] != "HL7v2" {
		t.Errorf("type = %q, want HL7v2", resp["type"])
	}
	if resp["uuid"] == "" {
		t.Error("expected non-empty uuid")
	}
}

func TestSubmitMessageBadBase64Returns400(t *testing.T) {
	pipeline := &inbound.Pipeline{
		Store:        &fakeStore{},
		Publisher:    &fakePublisher{},
		Transforms:   transform.NewRegistry(),
		DefaultTZ:    time.UTC,
		TimestampFmt: "20060102150405",
	}
	h := NewHandlers(pipeline, nil, nil, nil)

	body, _ := json.Marshal(map[string]string{"content": "not-valid-base64!!"})
	req := httptest.NewRequest(http.MethodPost, "/dhos/v1/message", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.SubmitMessage(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

type stubTrustomer struct{ cfg trustomer.Config }

func (s *stubTrustomer) Get(ctx context.Context, product, name string) (trustomer.Config, error) {
	return s.cfg, nil
}

type stubEPR struct{}

func (s *stubEPR) Send(ctx context.Context, content string) (string, error) { return "MSA|AA|1", nil }

func TestSubmitORUDisabledReturns204NoRecord(t *testing.T) {
	st := &fakeStore{}
	outPipeline := &outbound.Pipeline{
		Trustomer:  &stubTrustomer{cfg: trustomer.Config{GenerateORUMessages: false}},
		EPR:        &stubEPR{},
		Store:      st,
		Transforms: transform.NewRegistry(),
	}
	h := NewHandlers(nil, outPipeline, nil, nil)

	payload := `{"actions":[{"name":"process_observation_set","data":{"patient":{"uuid":"p1"},"observation_set":{"uuid":"obs1","score_system":"NEWS2"}}}]}`
	req := httptest.NewRequest(http.MethodPost, "/dhos/v1/oru_message", bytes.NewReader([]byte(payload)))
	rec := httptest.NewRecorder()

	h.SubmitORU(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204, body=%s", rec.Code, rec.Body.String())
	}
	if len(st.records) != 0 {
		t.Error("expected no record persisted when generation disabled")
	}
}

func TestSubmitCDADisabledReturns501(t *testing.T) {
	cdaPipeline := &outbound.CDAPipeline{Store: &fakeStore{}}
	h := NewHandlers(nil, nil, cdaPipeline, nil)

	body, _ := json.Marshal(map[string]string{"content": "<ClinicalDocument/>", "type": "HL7v3CDA"})
	req := httptest.NewRequest(http.MethodPost, "/dhos/v1/cda_message", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.SubmitCDA(rec, req)

	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, want 501", rec.Code)
	}
}
