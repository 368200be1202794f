// Package inbound implements the ADT inbound pipeline (C7): decode,
// pre-transform, parse, validate, action-generate, persist, publish, and
// ACK, in the strict order of spec.md §4.7. Once a wrapper has been built,
// validation and action-generation failures become an HL7-level ACK/NACK
// rather than an error. Failures before that point (base64 decode,
// pre-transform, parse) return a *ParseError. A storage error other than a
// duplicate control id, and a failed publish after a successful commit,
// are returned to the caller as errors and produce no ACK.
package inbound

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/savegress/dhosconnector/internal/actions"
	"github.com/savegress/dhosconnector/internal/bus"
	"github.com/savegress/dhosconnector/internal/hl7wrap"
	"github.com/savegress/dhosconnector/internal/store"
	"github.com/savegress/dhosconnector/internal/transform"
	"github.com/savegress/dhosconnector/internal/validate"
)

// ParseError signals a failure before an HL7 wrapper could be built
// (base64 decode, pre-transform, or parse): no ACK is possible, so the
// HTTP layer returns a 4xx instead.
type ParseError struct{ Err error }

func (e *ParseError) Error() string { return "inbound: parse error: " + e.Err.Error() }
func (e *ParseError) Unwrap() error { return e.Err }

// Result is what the pipeline returns to the REST layer on success,
// shaped {uuid, body, type} per spec.md §6.
type Result struct {
	UUID string
	Body []byte // base64(ack)
	Type string
}

// MessageStore is the subset of *store.Store the inbound pipeline needs;
// narrowed to an interface so tests can substitute a fake.
type MessageStore interface {
	Create(ctx context.Context, record *store.Record) error
}

// EventPublisher is the subset of *bus.Publisher the inbound pipeline
// needs.
type EventPublisher interface {
	Publish(ctx context.Context, evt bus.Event) error
}

// Pipeline wires C1 (hl7wrap), C3 (validate), C4 (actions), C6 (store),
// and the bus publisher together.
type Pipeline struct {
	Store       MessageStore
	Publisher   EventPublisher
	Transforms  *transform.Registry
	DefaultTZ   *time.Location
	TimestampFmt string

	// PreTransformName names the registered transform.Func applied to the
	// raw decoded text before parsing, per HL7_TRANSFORMER_MODULE.
	PreTransformName string
}

// Submit runs the nine-step inbound flow of spec.md §4.7 against
// base64Content (the raw request body).
func (p *Pipeline) Submit(ctx context.Context, base64Content string) (*Result, error) {
	record := &store.Record{
		Content:        base64Content,
		SrcDescription: "tie",
		DstDescription: "dhos",
		IsProcessed:    false,
	}

	decoded, err := base64.StdEncoding.DecodeString(base64Content)
	if err != nil {
		_ = p.Store.Create(ctx, record)
		return nil, &ParseError{Err: fmt.Errorf("base64 decode: %w", err)}
	}

	text, err := p.Transforms.Apply(p.PreTransformName, string(decoded))
	if err != nil {
		_ = p.Store.Create(ctx, record)
		return nil, &ParseError{Err: err}
	}

	msg, err := hl7wrap.Parse(text)
	if err != nil {
		record.Content = text
		_ = p.Store.Create(ctx, record)
		return nil, &ParseError{Err: err}
	}
	record.Content = text

	var acts []actions.Action
	valid := true

	if vErr := validate.Validate(msg); vErr != nil {
		valid = false
		record.Ack = ackForError(msg, vErr, p.TimestampFmt)
	} else {
		as, genErr := actions.Generate(msg, p.DefaultTZ)
		if genErr != nil {
			valid = false
			record.Ack = ackForError(msg, genErr, p.TimestampFmt)
		} else {
			acts = as
			record.MessageType = msg.MessageType()
			if sentAt, ok := msg.MessageDatetimeISO8601(p.DefaultTZ); ok {
				record.SentAt = &sentAt
			}
			controlID := msg.MessageControlID()
			record.MessageControlID = &controlID
			record.PatientIdentifiers = msg.PatientIdentifiersAsMap()
			ack := msg.GenerateAck(hl7wrap.AckOptions{Code: "AA", Now: time.Now(), TimestampFormat: p.TimestampFmt})
			record.Ack = &ack
		}
	}

	if err := p.commit(ctx, record, msg, p.TimestampFmt); err != nil {
		return nil, fmt.Errorf("inbound: commit: %w", err)
	}

	if valid && record.MessageControlID != nil {
		if pubErr := p.Publisher.Publish(ctx, bus.Event{MessageUUID: record.UUID, Actions: acts}); pubErr != nil {
			return nil, fmt.Errorf("inbound: publish: %w", pubErr)
		}
	}

	return &Result{
		UUID: record.UUID,
		Body: []byte(base64.StdEncoding.EncodeToString([]byte(*record.Ack))),
		Type: "HL7v2",
	}, nil
}

// commit persists record, rewriting the ack to an AR-duplicate and
// nulling message_control_id when the storage layer reports a unique
// violation, per spec.md §4.7 step 7.
func (p *Pipeline) commit(ctx context.Context, record *store.Record, msg *hl7wrap.Message, timestampFmt string) error {
	err := p.Store.Create(ctx, record)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrDuplicateControlID) {
		return err
	}

	ack := msg.GenerateAck(hl7wrap.AckOptions{
		Code:         "AR",
		ErrorCode:    "Hl7ApplicationRejectException",
		ErrorMessage: "HL7 message appears to be duplicate",
		Now:          time.Now(),
		TimestampFormat: timestampFmt,
	})
	record.Ack = &ack
	record.MessageControlID = nil
	return p.Store.Create(ctx, record)
}

// ackForError renders msg's rejection/error ack from a *hl7wrap.Hl7Error,
// or (for anything unexpected between validate and commit) an AE whose
// reason names the underlying Go error type, matching the source's
// "exception class name in the reason" behavior.
func ackForError(msg *hl7wrap.Message, err error, timestampFmt string) *string {
	var hErr *hl7wrap.Hl7Error
	code, reason, errCode := "AE", fmt.Sprintf("%T: %s", err, err.Error()), "Hl7ApplicationErrorException"
	if errors.As(err, &hErr) {
		reason, errCode = hErr.Reason, hErr.Code
		if hErr.Kind == hl7wrap.KindReject {
			code = "AR"
		}
	}
	ack := msg.GenerateAck(hl7wrap.AckOptions{
		Code:            code,
		ErrorCode:       errCode,
		ErrorMessage:    reason,
		Now:             time.Now(),
		TimestampFormat: timestampFmt,
	})
	return &ack
}
