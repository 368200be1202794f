package validate

import (
	"errors"
	"testing"

	"github.com/savegress/dhosconnector/internal/hl7wrap"
)

func parse(t *testing.T, raw string) *hl7wrap.Message {
	t.Helper()
	msg, err := hl7wrap.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return msg
}

func TestValidateA01Accepted(t *testing.T) {
	msg := parse(t, "MSH|^~\\&|TIE|NOC|DHOS|NOC|20170731141300||ADT^A01|1|P|2.5\r"+
		"PID|1||654321^^^^MRN\r"+
		"PV1|1|I|NOC-Ward B^Bay1^Bed1\r")
	if err := Validate(msg); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateWrongCategoryRejected(t *testing.T) {
	msg := parse(t, "MSH|^~\\&|TIE|NOC|DHOS|NOC|20170731141300||ORU^R01|1|P|2.5\r")
	err := Validate(msg)
	var hErr *hl7wrap.Hl7Error
	if !errors.As(err, &hErr) || hErr.Kind != hl7wrap.KindReject {
		t.Fatalf("expected Reject, got %v", err)
	}
}

func TestValidateWaitlistRejectedAsError(t *testing.T) {
	msg := parse(t, "MSH|^~\\&|TIE|NOC|DHOS|NOC|20170731141300||ADT^A05|1|P|2.5\r"+
		"PID|1||654321^^^^MRN\r"+
		"PV1|1|WAITLIST|NOC-Ward B\r")
	err := Validate(msg)
	var hErr *hl7wrap.Hl7Error
	if !errors.As(err, &hErr) || hErr.Kind != hl7wrap.KindError {
		t.Fatalf("expected Error, got %v", err)
	}
}

func TestValidateMissingPID(t *testing.T) {
	msg := parse(t, "MSH|^~\\&|TIE|NOC|DHOS|NOC|20170731141300||ADT^A01|1|P|2.5\r")
	err := Validate(msg)
	var hErr *hl7wrap.Hl7Error
	if !errors.As(err, &hErr) || hErr.Kind != hl7wrap.KindError {
		t.Fatalf("expected Error for missing PID, got %v", err)
	}
}

func TestValidateNoIdentifierRejected(t *testing.T) {
	msg := parse(t, "MSH|^~\\&|TIE|NOC|DHOS|NOC|20170731141300||ADT^A01|1|P|2.5\r"+
		"PID|1||\r")
	err := Validate(msg)
	var hErr *hl7wrap.Hl7Error
	if !errors.As(err, &hErr) || hErr.Kind != hl7wrap.KindReject {
		t.Fatalf("expected Reject for missing identifier, got %v", err)
	}
}
