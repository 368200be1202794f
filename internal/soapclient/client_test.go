package soapclient

import "testing"

func TestRewriteEndpointKeepsPathAndQuery(t *testing.T) {
	c := NewClient("https://mirth.example.nhs.uk", "user", "pass")
	got, err := c.RewriteEndpoint("http://internal-host:8080/PmsInterface/WebService?wsdl=1")
	if err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	want := "https://mirth.example.nhs.uk/PmsInterface/WebService?wsdl=1"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRewriteEndpointRejectsInvalidConfiguredBase(t *testing.T) {
	c := NewClient("://not-a-url", "user", "pass")
	if _, err := c.RewriteEndpoint("http://host/path"); err == nil {
		t.Fatal("expected error for invalid configured endpoint")
	}
}
