package outbound

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/savegress/dhosconnector/internal/store"
)

// ErrCDADisabled signals that MIRTH_HOST_URL_BASE is unset: the caller
// maps this to HTTP 501 per spec.md §6.
var ErrCDADisabled = errors.New("outbound: cda transport disabled")

// CDASender is the subset of *soapclient.Client the CDA path needs.
type CDASender interface {
	AcceptMessage(ctx context.Context, endpoint, cdaXML string) (string, error)
}

// CDAPipeline runs the CDA outbound path: persist, SOAP acceptMessage,
// mark processed.
type CDAPipeline struct {
	SOAP     CDASender
	Store    MessageStore
	Endpoint string // empty disables the path
}

// SendCDA forwards content (raw CDA XML) to the configured Mirth
// endpoint. An empty Endpoint returns ErrCDADisabled without touching
// the store.
func (p *CDAPipeline) SendCDA(ctx context.Context, content string) (*store.Record, error) {
	if p.Endpoint == "" {
		return nil, ErrCDADisabled
	}

	record := &store.Record{
		Content:        base64.StdEncoding.EncodeToString([]byte(content)),
		MessageType:    "HL7v3CDA",
		SrcDescription: "dhos",
		DstDescription: "mirth",
	}
	if err := p.Store.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("outbound: persist: %w", err)
	}

	if _, err := p.SOAP.AcceptMessage(ctx, p.Endpoint, content); err != nil {
		return record, fmt.Errorf("outbound: cda send: %w", err)
	}

	processed := true
	if err := p.Store.Update(ctx, record.UUID, store.Patch{IsProcessed: &processed}); err != nil {
		return record, fmt.Errorf("outbound: mark processed: %w", err)
	}
	record.IsProcessed = true
	return record, nil
}
