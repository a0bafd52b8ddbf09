package dian

import (
	"strings"
	"testing"

	"kila/internal"
)

func localResult() internal.ValidationResult {
	return internal.ValidationResult{
		IsValid: false,
		Errors: []internal.Finding{
			finding("Currency", "La moneda de la transacción es obligatoria",
				sectionInvoice, internal.SeverityError, 9, false),
		},
		Warnings: []internal.Finding{
			finding("PaymentTerms", "No se especifica forma de pago (directa o indirecta)",
				sectionInvoice, internal.SeverityWarning, 11, true),
		},
		Source: internal.SourceLocal,
	}
}

func TestMergeWithoutRemote(t *testing.T) {
	local := localResult()

	for _, remote := range []*internal.RemoteResult{nil, {Success: false, Message: "timeout"}} {
		combined := Merge(local, remote)
		if combined.Source != internal.SourceLocal {
			t.Fatalf("source = %q", combined.Source)
		}
		if len(combined.Errors) != 1 || len(combined.Warnings) != 1 {
			t.Fatalf("findings not carried verbatim: %+v", combined)
		}
		if combined.Status != internal.StatusRejected {
			t.Fatalf("status = %q", combined.Status)
		}
		if combined.ConflictResolution != nil {
			t.Fatal("conflict resolution should be absent without a remote result")
		}
	}
}

func TestMergeLocalWins(t *testing.T) {
	local := localResult()
	remote := &internal.RemoteResult{
		Success: true,
		Warnings: []internal.Finding{
			// Normalized-equal to the local Currency error.
			{Field: "currency", Message: "currency code not recognized", Severity: internal.SeverityWarning},
		},
		Errors: []internal.Finding{
			{Field: "Incoterm", Message: "Invalid Incoterm", Severity: internal.SeverityError},
		},
	}

	combined := Merge(local, remote)
	if combined.Source != internal.SourceMerged {
		t.Fatalf("source = %q", combined.Source)
	}
	if combined.ConflictResolution == nil || combined.ConflictResolution.ConflictsFound != 1 {
		t.Fatalf("conflict resolution = %+v", combined.ConflictResolution)
	}

	// The remote Currency warning is dropped; the Incoterm error survives.
	if len(combined.Warnings) != 1 || combined.Warnings[0].Field != "PaymentTerms" {
		t.Fatalf("warnings = %+v", combined.Warnings)
	}
	if len(combined.Errors) != 2 {
		t.Fatalf("errors = %+v", combined.Errors)
	}
	kept := combined.Errors[1]
	if kept.Origin != internal.SourceRemote || !strings.HasPrefix(kept.Message, "[Backend] ") {
		t.Fatalf("remote finding not marked: %+v", kept)
	}
	if combined.Errors[0].Origin != internal.SourceLocal {
		t.Fatalf("local finding not marked: %+v", combined.Errors[0])
	}
}

func TestMergeRemoteErrorDroppedOnLocalWarning(t *testing.T) {
	// A remote error also collides with local *warnings*, not just errors.
	local := localResult()
	remote := &internal.RemoteResult{
		Success: true,
		Errors: []internal.Finding{
			{Field: "payment_terms", Message: "payment terms unclear", Severity: internal.SeverityError},
		},
	}

	combined := Merge(local, remote)
	if combined.ConflictResolution.ConflictsFound != 1 {
		t.Fatalf("conflicts = %d", combined.ConflictResolution.ConflictsFound)
	}
	if len(combined.Errors) != 1 {
		t.Fatalf("errors = %+v", combined.Errors)
	}
}

func TestMergeStatusDerivation(t *testing.T) {
	clean := internal.ValidationResult{IsValid: true, Errors: []internal.Finding{}, Warnings: []internal.Finding{}, Source: internal.SourceLocal}

	combined := Merge(clean, &internal.RemoteResult{Success: true})
	if combined.Status != internal.StatusApproved {
		t.Fatalf("status = %q", combined.Status)
	}

	warned := clean
	warned.Warnings = []internal.Finding{{Field: "PaymentTerms", Severity: internal.SeverityWarning}}
	combined = Merge(warned, &internal.RemoteResult{Success: true})
	if combined.Status != internal.StatusWarning {
		t.Fatalf("status = %q", combined.Status)
	}
}
