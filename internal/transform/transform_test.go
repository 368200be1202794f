package transform

import "testing"

func TestNoopIsDefaultAndIdentity(t *testing.T) {
	r := NewRegistry()
	out, err := r.Apply("", "MSH|^~\\&|...")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if out != "MSH|^~\\&|..." {
		t.Errorf("noop changed input: %q", out)
	}
}

func TestUnknownNameErrors(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Apply("does_not_exist", "x"); err == nil {
		t.Fatal("expected error for unknown transformer name")
	}
}

func TestRegisteredTransformRuns(t *testing.T) {
	r := NewRegistry()
	r.Register("upper_msh", func(raw string) (string, error) { return raw + "!", nil })
	out, err := r.Apply("upper_msh", "x")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if out != "x!" {
		t.Errorf("got %q", out)
	}
}
