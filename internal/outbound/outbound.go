// Package outbound implements the outbound pipeline (C8): the ORU path
// (generate, post-transform, persist, POST to the EPR service adapter,
// mark processed) and the CDA path (persist, SOAP acceptMessage, mark
// processed), per spec.md §4.8.
package outbound

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/savegress/dhosconnector/internal/oru"
	"github.com/savegress/dhosconnector/internal/store"
	"github.com/savegress/dhosconnector/internal/transform"
	"github.com/savegress/dhosconnector/internal/trustomer"
)

// ErrGenerationDisabled signals that trustomer config has
// generate_oru_messages=false: the caller treats this as a no-op success,
// not an error response.
var ErrGenerationDisabled = errors.New("outbound: oru generation disabled for this trustomer")

// MessageStore is the subset of *store.Store the outbound pipeline needs.
type MessageStore interface {
	Create(ctx context.Context, record *store.Record) error
	Update(ctx context.Context, id string, patch store.Patch) error
}

// TrustomerSource resolves per-tenant configuration.
type TrustomerSource interface {
	Get(ctx context.Context, product, trustomerName string) (trustomer.Config, error)
}

// EPRSender is the subset of *epr.Client the outbound pipeline needs.
type EPRSender interface {
	Send(ctx context.Context, content string) (string, error)
}

// ORUInput is the internal action payload the oru_message endpoint hands
// to the pipeline.
type ORUInput struct {
	Patient        oru.Patient
	Encounter      *oru.Encounter
	Clinician      *oru.Clinician
	ObservationSet oru.ObservationSet
}

// Pipeline runs the ORU outbound path.
type Pipeline struct {
	Trustomer         TrustomerSource
	EPR               EPRSender
	Store             MessageStore
	Transforms        *transform.Registry
	PostTransformName string
	Product           string
	TrustomerName     string
}

// SendORU runs the ORU path of spec.md §4.8. On ErrGenerationDisabled no
// record is persisted and no HTTP call is made (P8). Any error returned
// alongside a non-nil *store.Record means the record was persisted but
// left unprocessed for external retry or inspection.
func (p *Pipeline) SendORU(ctx context.Context, in ORUInput) (*store.Record, error) {
	cfg, err := p.Trustomer.Get(ctx, p.Product, p.TrustomerName)
	if err != nil {
		return nil, fmt.Errorf("outbound: trustomer config: %w", err)
	}
	if !cfg.GenerateORUMessages {
		return nil, ErrGenerationDisabled
	}
	oruCfg := toORUConfig(cfg)

	messageControlID := oru.MessageControlID(in.ObservationSet.UUID)
	content, err := oru.Generate(in.ObservationSet, in.Patient, in.Encounter, in.Clinician, oruCfg, messageControlID, time.Now())
	if err != nil {
		return nil, fmt.Errorf("outbound: generate: %w", err)
	}

	content, err = p.Transforms.Apply(p.PostTransformName, content)
	if err != nil {
		return nil, fmt.Errorf("outbound: post-transform: %w", err)
	}

	record := &store.Record{
		Content:          base64.StdEncoding.EncodeToString([]byte(content)),
		MessageType:      "ORU^R01^ORU_R01",
		SrcDescription:   "dhos",
		DstDescription:   "tie",
		MessageControlID: &messageControlID,
	}
	if err := p.Store.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("outbound: persist: %w", err)
	}

	ack, err := p.EPR.Send(ctx, content)
	if err != nil {
		// Network/timeout or a downstream rejection: the record stays
		// unprocessed, eligible for external re-drive.
		return record, err
	}

	processed := true
	if err := p.Store.Update(ctx, record.UUID, store.Patch{IsProcessed: &processed, Ack: &ack}); err != nil {
		return record, fmt.Errorf("outbound: mark processed: %w", err)
	}
	record.IsProcessed = true
	record.Ack = &ack
	return record, nil
}

func toORUConfig(cfg trustomer.Config) oru.Config {
	masks := make([]oru.OxygenMask, 0, len(cfg.OxygenMasks))
	for _, m := range cfg.OxygenMasks {
		masks = append(masks, oru.OxygenMask{Code: m.Code, Name: m.Name})
	}
	return oru.Config{
		OutgoingSendingApplication:   cfg.OutgoingSendingApplication,
		OutgoingSendingFacility:      cfg.OutgoingSendingFacility,
		OutgoingReceivingApplication: cfg.OutgoingReceivingApplication,
		OutgoingReceivingFacility:    cfg.OutgoingReceivingFacility,
		OutgoingProcessingID:         cfg.OutgoingProcessingID,
		OutgoingDateTimeFormat:       cfg.OutgoingDateTimeFormat,
		GenerateORUMessages:          cfg.GenerateORUMessages,
		OxygenMasks:                  masks,
	}
}
