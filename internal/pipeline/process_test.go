package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"kila/internal"
	"kila/internal/config"
	"kila/internal/dian"
	"kila/internal/remote"
	"kila/internal/storage"
)

const validInvoice = `{
	"invoice_number": "INV-2024-001",
	"issue_date": "2024-03-05",
	"issue_city": "Miami",
	"issue_country": "USA",
	"supplier": {"name": "Acme Trading LLC", "address": "123 Main St", "city": "Miami", "country": "USA"},
	"customer": {"name": "Importadora Andina SAS", "address": "Cra 7 # 71-21", "city": "Bogotá", "country": "Colombia"},
	"items": [{"description": "Tornillos de acero inoxidable M8", "quantity": 100, "unit_price": 0.5, "total_price": 50}],
	"currency": "USD",
	"total_amount": 50,
	"incoterm": "FOB",
	"payment_method": "wire transfer 30 days"
}`

func newTestService(t *testing.T, remoteURL string) (*ValidationService, *storage.DB) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	cfg := config.Config{
		HistoryLimit:       50,
		RemoteValidatorURL: remoteURL,
		RemoteTimeoutMs:    2000,
		RemoteRateLimitRPS: 1000,
		Rules:              dian.DefaultRuleConfig(),
	}
	return NewValidationService(db, cfg, remote.NewClient(cfg), zerolog.Nop()), db
}

func TestValidateLocalOnly(t *testing.T) {
	svc, db := newTestService(t, "")

	res, err := svc.Validate(context.Background(), ValidateInput{
		Raw:      json.RawMessage(validInvoice),
		Filename: "invoice.json",
	})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if res.Status != internal.StatusApproved {
		t.Errorf("status = %q, errors = %+v", res.Status, res.Errors)
	}
	if res.Source != internal.SourceLocal {
		t.Errorf("source = %q, want frontend", res.Source)
	}
	if res.ValidationID == "" {
		t.Error("expected a generated validation id")
	}

	stored, err := db.GetValidation(res.ValidationID)
	if err != nil {
		t.Fatalf("stored row: %v", err)
	}
	if stored.InvoiceNumber != "INV-2024-001" || !stored.Passed {
		t.Errorf("stored = %+v", stored)
	}
}

func TestValidateRejectsNonObject(t *testing.T) {
	svc, _ := newTestService(t, "")

	for _, raw := range []string{`[1,2,3]`, `"text"`, `not json`, `{}`} {
		_, err := svc.Validate(context.Background(), ValidateInput{Raw: json.RawMessage(raw)})
		var bad *ErrBadDocument
		if !errors.As(err, &bad) {
			t.Errorf("input %q: expected ErrBadDocument, got %v", raw, err)
		}
	}
}

func TestValidateMergesRemoteFindings(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"validation_id": "remote-77",
			"errors":        []any{},
			"warnings": []any{
				map[string]any{"field": "freight_terms", "message": "revisar flete", "section": "Transporte", "severity": "warning"},
			},
			"status": "warning",
		})
	}))
	defer ts.Close()

	svc, _ := newTestService(t, ts.URL)

	res, err := svc.Validate(context.Background(), ValidateInput{Raw: json.RawMessage(validInvoice)})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if res.Source != internal.SourceMerged {
		t.Errorf("source = %q, want merged", res.Source)
	}
	if res.ValidationID != "remote-77" {
		t.Errorf("validation id = %q", res.ValidationID)
	}
	found := false
	for _, w := range res.Warnings {
		if w.Field == "freight_terms" {
			found = true
			if w.Origin != internal.SourceRemote {
				t.Errorf("remote warning origin = %q", w.Origin)
			}
			if w.Message != "[Backend] revisar flete" {
				t.Errorf("remote warning message = %q", w.Message)
			}
		}
	}
	if !found {
		t.Error("remote warning missing from merged result")
	}
}

func TestValidateSurvivesRemoteOutage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	ts.Close() // connection refused from the first attempt

	svc, _ := newTestService(t, ts.URL)

	res, err := svc.Validate(context.Background(), ValidateInput{Raw: json.RawMessage(validInvoice)})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if res.Source != internal.SourceLocal {
		t.Errorf("source = %q, want frontend fallback", res.Source)
	}
	if res.Status != internal.StatusApproved {
		t.Errorf("status = %q", res.Status)
	}
}

func TestValidateHistoryPruned(t *testing.T) {
	svc, db := newTestService(t, "")
	svc.cfg.HistoryLimit = 3

	for i := 0; i < 5; i++ {
		if _, err := svc.Validate(context.Background(), ValidateInput{Raw: json.RawMessage(validInvoice)}); err != nil {
			t.Fatal(err)
		}
	}

	rows, err := db.ListValidations(nil, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Errorf("expected history pruned to 3 rows, got %d", len(rows))
	}
}
