// Package soapclient implements the CDA SOAP transport (C8's CDA path):
// a manual SOAP 1.1 envelope around acceptMessage(arg0=<xml>), with HTTP
// Basic auth and endpoint-URL rewriting, per spec.md §4.8/§6.
package soapclient

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const soapTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/" xmlns:web="http://webservice.mirth.com">
  <soapenv:Header/>
  <soapenv:Body>
    <web:acceptMessage>
      <arg0><![CDATA[%s]]></arg0>
    </web:acceptMessage>
  </soapenv:Body>
</soapenv:Envelope>`

// envelope unmarshals the SOAP response body far enough to extract the
// acceptMessage return value (the CDA endpoint's ACK-equivalent text).
type envelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    struct {
		Response struct {
			Return string `xml:"return"`
		} `xml:"acceptMessageResponse"`
	} `xml:"Body"`
}

// Client sends CDA documents to a configured Mirth endpoint over SOAP.
type Client struct {
	// Endpoint is the configured base (scheme+host) that overrides
	// whatever address the WSDL advertises; vendors often publish
	// internal addresses that aren't reachable from here.
	Endpoint string
	Username string
	Password string
	HTTP     *http.Client
}

func NewClient(endpoint, username, password string) *Client {
	return &Client{Endpoint: endpoint, Username: username, Password: password, HTTP: &http.Client{Timeout: 15 * time.Second}}
}

// RewriteEndpoint replaces discovered's scheme and host with the
// configured base, keeping its path and query untouched.
func (c *Client) RewriteEndpoint(discovered string) (string, error) {
	base, err := url.Parse(c.Endpoint)
	if err != nil {
		return "", fmt.Errorf("soapclient: invalid configured endpoint: %w", err)
	}
	d, err := url.Parse(discovered)
	if err != nil {
		return "", fmt.Errorf("soapclient: invalid discovered endpoint: %w", err)
	}
	d.Scheme = base.Scheme
	d.Host = base.Host
	return d.String(), nil
}

// AcceptMessage POSTs the CDA document cdaXML to endpoint as a SOAP
// acceptMessage call and returns the decoded return value.
func (c *Client) AcceptMessage(ctx context.Context, endpoint, cdaXML string) (string, error) {
	body := fmt.Sprintf(soapTemplate, cdaXML)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBufferString(body))
	if err != nil {
		return "", fmt.Errorf("soapclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", "acceptMessage")
	req.SetBasicAuth(c.Username, c.Password)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("soapclient: request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("soapclient: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("soapclient: non-2xx response %d: %s", resp.StatusCode, raw)
	}

	var env envelope
	if err := xml.Unmarshal(raw, &env); err != nil {
		return "", fmt.Errorf("soapclient: decode response: %w", err)
	}
	return env.Body.Response.Return, nil
}
