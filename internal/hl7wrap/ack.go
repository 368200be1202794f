package hl7wrap

import (
	"strings"
	"time"
)

const defaultTimestampFormat = "20060102150405"

// AckOptions parameterizes GenerateAck.
type AckOptions struct {
	Code            string // AA, AE, or AR
	ErrorCode       string // exception-class-shaped code for ERR-3
	ErrorMessage    string // human-readable reason for ERR-8
	Now             time.Time
	TimestampFormat string // trustomer outgoing format; defaults to "20060102150405"
	AckControlID    string // MSH-10 of the ACK itself; defaults to the original MSH-10
}

// GenerateAck builds a conforming ACK/NACK for the receiving message: MSH
// with sending/receiving application and facility swapped, an MSA segment
// carrying code and the original MSH-10, and (when either error field is
// supplied) an ERR segment per spec.md §4.1 and §4.7.
//
// Open question, resolved per spec.md Design Notes: the ACK always carries
// the *original* inbound MSH-10, even when the store later nulls out the
// persisted message_control_id for a duplicate.
func (m *Message) GenerateAck(opts AckOptions) string {
	format := opts.TimestampFormat
	if format == "" {
		format = defaultTimestampFormat
	}
	ackControlID := opts.AckControlID
	if ackControlID == "" {
		ackControlID = m.MessageControlID()
	}

	sendingApp := m.Field("MSH.F3", "")
	sendingFac := m.Field("MSH.F4", "")
	receivingApp := m.Field("MSH.F5", "")
	receivingFac := m.Field("MSH.F6", "")
	processingID := m.Field("MSH.F11", "")
	version := m.Field("MSH.F12", "2.5")

	fieldSep := m.Delim.Field
	if fieldSep == "" {
		fieldSep = FieldSeparator
	}
	encodingChars := m.Delim.Component + m.Delim.Repetition + m.Delim.Escape + m.Delim.Subcomponent
	if encodingChars == "" {
		encodingChars = ComponentSeparator + RepetitionSeparator + EscapeCharacter + SubcomponentSeparator
	}

	msh := strings.Join([]string{
		"MSH",
		encodingChars,
		receivingApp,
		receivingFac,
		sendingApp,
		sendingFac,
		FormatOutgoing(opts.Now, format),
		"",
		"ACK",
		ackControlID,
		processingID,
		version,
	}, fieldSep)

	msa := strings.Join([]string{"MSA", opts.Code, m.MessageControlID()}, fieldSep)

	segments := []string{msh, msa}
	if opts.ErrorCode != "" || opts.ErrorMessage != "" {
		err := strings.Join([]string{"ERR", "", "", opts.ErrorCode, "E", "", "", "", opts.ErrorMessage}, fieldSep)
		segments = append(segments, err)
	}

	return strings.Join(segments, SegmentTerminator) + SegmentTerminator
}

// AckStatus parses a stored ACK's MSA-1 code, returning ("", false) if the
// text doesn't parse as an HL7 message or carries no MSA segment.
func AckStatus(ackText string) (string, bool) {
	msg, err := Parse(ackText)
	if err != nil {
		return "", false
	}
	code := msg.Field("MSA.F1", "")
	if code == "" {
		return "", false
	}
	return code, true
}
