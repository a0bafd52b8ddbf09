package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"kila/internal"
	"kila/internal/config"
)

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func testClient(responses ...*http.Response) (*Client, *int) {
	calls := 0
	cfg := config.Config{
		RemoteValidatorURL: "http://validator.test/api/validate",
		RemoteTimeoutMs:    2000,
		RemoteRateLimitRPS: 1000,
	}
	c := NewClient(cfg)
	c.httpClient.Transport = roundTripFunc(func(req *http.Request) (*http.Response, error) {
		resp := responses[calls]
		if calls < len(responses)-1 {
			calls++
		}
		return resp, nil
	})
	return c, &calls
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func TestValidateDisabled(t *testing.T) {
	c := NewClient(config.Config{})
	res, err := c.Validate(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success {
		t.Error("expected Success=false when no endpoint is configured")
	}
}

func TestValidateSuccess(t *testing.T) {
	body := `{
		"validation_id": "abc-123",
		"errors": [],
		"warnings": [{"field": "currency", "message": "check currency", "section": "Invoice", "severity": "warning"}],
		"status": "warning",
		"message": "ok"
	}`
	c, _ := testClient(jsonResponse(200, body))

	res, err := c.Validate(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success {
		t.Fatal("expected Success=true")
	}
	if res.ValidationID != "abc-123" {
		t.Errorf("validation id = %q", res.ValidationID)
	}
	if len(res.Warnings) != 1 || res.Warnings[0].Field != "currency" {
		t.Errorf("warnings = %+v", res.Warnings)
	}
	if res.Status != internal.StatusWarning {
		t.Errorf("status = %q", res.Status)
	}
}

func TestValidateDerivesMissingStatus(t *testing.T) {
	c, _ := testClient(jsonResponse(200, `{"errors": [], "warnings": []}`))

	res, err := c.Validate(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != internal.StatusApproved {
		t.Errorf("status = %q, want approved", res.Status)
	}
	if res.Errors == nil || res.Warnings == nil {
		t.Error("findings slices must be non-nil")
	}
}

func TestValidateParsesServerError(t *testing.T) {
	body := `{"error": "Invalid Incoterm: must be one of ['FOB', 'CIF']"}`
	c, _ := testClient(jsonResponse(422, body))

	res, err := c.Validate(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success {
		t.Fatal("parsed server errors should produce Success=true")
	}
	if res.Status != internal.StatusRejected {
		t.Errorf("status = %q, want rejected", res.Status)
	}
	if len(res.Errors) != 1 || res.Errors[0].Field != "Incoterm" {
		t.Errorf("errors = %+v", res.Errors)
	}
}

func TestValidateStructuralServerError(t *testing.T) {
	body := `{"error": "upstream exploded in an unrecognized way"}`
	c, _ := testClient(jsonResponse(400, body))

	res, err := c.Validate(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success {
		t.Error("unparseable error text should produce Success=false")
	}
	if res.Message != "upstream exploded in an unrecognized way" {
		t.Errorf("message = %q", res.Message)
	}
}

func TestValidateRetriesOnServerError(t *testing.T) {
	c, calls := testClient(
		jsonResponse(503, `{}`),
		jsonResponse(200, `{"errors": [], "warnings": [], "status": "approved"}`),
	)

	res, err := c.Validate(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success {
		t.Fatal("expected success after retry")
	}
	if *calls != 1 {
		t.Errorf("expected one retry, transport advanced %d times", *calls)
	}
}

func TestValidateNonJSONBody(t *testing.T) {
	c, _ := testClient(jsonResponse(200, `<html>gateway</html>`))

	res, err := c.Validate(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success {
		t.Error("non-JSON bodies should produce Success=false")
	}
}
