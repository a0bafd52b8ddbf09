package dian

import (
	"fmt"
	"strings"
	"time"

	"kila/internal"
)

// RuleConfig carries every tunable the eleven checks consult. The zero
// value is not usable; start from DefaultRuleConfig.
type RuleConfig struct {
	ValidIncoterms        []string
	ValidCurrencies       []string
	GenericTerms          []string
	MinDescriptionLength  int
	PriceTolerancePercent float64
	// StrictMode escalates every warning to an error.
	StrictMode bool
	// DisabledRequirements lists requirement numbers (1-11) to skip.
	DisabledRequirements []int
}

func DefaultRuleConfig() RuleConfig {
	return RuleConfig{
		ValidIncoterms: []string{
			"FOB", "CIF", "EXW", "FCA", "CPT", "CIP",
			"DAP", "DPU", "DDP", "FAS", "CFR",
		},
		ValidCurrencies: []string{
			"USD", "EUR", "COP", "GBP", "JPY",
			"CNY", "CAD", "AUD", "CHF", "MXN",
		},
		GenericTerms: []string{
			"producto", "product", "item", "mercancía", "merchandise",
			"goods", "artículo", "article", "material", "componente", "component",
		},
		MinDescriptionLength:  10,
		PriceTolerancePercent: 1.0,
	}
}

// Keywords that make a payment method unambiguous about direct vs indirect
// payment. "bl" covers bill-of-lading references.
var paymentKeywords = []string{
	"direct", "indirect", "carta de crédito", "letter of credit",
	"transferencia", "wire transfer", "contado", "cash", "days", "net", "bl",
}

const (
	sectionInvoice   = "Información de Factura"
	sectionSupplier  = "Datos del Proveedor"
	sectionCustomer  = "Datos del Importador"
	sectionItems     = "Detalle de Items"
	sectionTransport = "Información de Transporte"
)

// Validator runs the eleven DIAN requirements against an invoice document.
// It is stateless and safe for concurrent use.
type Validator struct {
	cfg RuleConfig
}

func NewValidator(cfg RuleConfig) *Validator {
	return &Validator{cfg: cfg}
}

// Validate auto-detects the raw shape, normalizes if needed and runs every
// enabled check. Checks never short-circuit each other; each appends zero or
// more findings.
func (v *Validator) Validate(raw Document) internal.ValidationResult {
	doc, _ := Normalize(raw)

	errs := []internal.Finding{}
	warns := []internal.Finding{}

	checks := []struct {
		requirement int
		run         func(Document, *[]internal.Finding, *[]internal.Finding)
	}{
		{1, v.checkInvoiceNumber},
		{2, v.checkIssueDate},
		{3, v.checkIssuePlace},
		{4, v.checkSupplier},
		{5, v.checkCustomer},
		{6, v.checkItemDescriptions},
		{7, v.checkQuantities},
		{8, v.checkPrices},
		{9, v.checkCurrency},
		{10, v.checkIncoterm},
		{11, v.checkPaymentMethod},
	}

	for _, c := range checks {
		if v.disabled(c.requirement) {
			continue
		}
		c.run(doc, &errs, &warns)
	}

	if v.cfg.StrictMode {
		for _, w := range warns {
			w.Severity = internal.SeverityError
			errs = append(errs, w)
		}
		warns = []internal.Finding{}
	}

	return internal.ValidationResult{
		IsValid:  len(errs) == 0,
		Errors:   errs,
		Warnings: warns,
		Source:   internal.SourceLocal,
	}
}

func (v *Validator) disabled(requirement int) bool {
	for _, n := range v.cfg.DisabledRequirements {
		if n == requirement {
			return true
		}
	}
	return false
}

// 1. Invoice number. No partial compliance.
func (v *Validator) checkInvoiceNumber(doc Document, errs, _ *[]internal.Finding) {
	if strings.TrimSpace(lookupString(doc, "invoice_number")) == "" {
		*errs = append(*errs, finding("InvoiceNumber",
			"El número de factura es obligatorio y debe estar presente",
			sectionInvoice, internal.SeverityError, 1, false))
	}
}

// 2. Issue date, present and a real YYYY-MM-DD calendar date.
func (v *Validator) checkIssueDate(doc Document, errs, warns *[]internal.Finding) {
	issueDate := lookupString(doc, "issue_date")
	if issueDate == "" {
		*errs = append(*errs, finding("InvoiceDate",
			"La fecha de expedición es obligatoria",
			sectionInvoice, internal.SeverityError, 2, true))
		return
	}

	if !isISODate(issueDate) {
		*warns = append(*warns, finding("InvoiceDate",
			"La fecha de expedición no tiene un formato válido (esperado: YYYY-MM-DD)",
			sectionInvoice, internal.SeverityWarning, 2, true))
		return
	}
	if _, err := time.Parse("2006-01-02", issueDate); err != nil {
		*warns = append(*warns, finding("InvoiceDate",
			"La fecha de expedición no es una fecha válida",
			sectionInvoice, internal.SeverityWarning, 2, true))
	}
}

// 3. Issue place: city and country.
func (v *Validator) checkIssuePlace(doc Document, errs, warns *[]internal.Finding) {
	city := lookupString(doc, "issue_city")
	country := lookupString(doc, "issue_country")

	switch {
	case city == "" && country == "":
		*errs = append(*errs, finding("OriginCountryAddress",
			"El lugar de expedición (ciudad y país) es obligatorio",
			sectionInvoice, internal.SeverityError, 3, true))
	case city == "":
		*warns = append(*warns, finding("OriginCountryAddress",
			"Falta la ciudad de expedición",
			sectionInvoice, internal.SeverityWarning, 3, true))
	case country == "":
		*warns = append(*warns, finding("OriginCountryAddress",
			"Falta el país de expedición",
			sectionInvoice, internal.SeverityWarning, 3, true))
	}
}

// 4. Supplier identity.
func (v *Validator) checkSupplier(doc Document, errs, warns *[]internal.Finding) {
	v.checkParty(doc, "supplier", partyFields{
		nameField:    "Supplier",
		addressField: "SupplierAddress",
		section:      sectionSupplier,
		requirement:  4,
		missingMsg:   "La información del vendedor es obligatoria",
		nameMsg:      "El nombre del vendedor es obligatorio",
		addressMsg:   "Falta la dirección del vendedor",
		cityMsg:      "Falta la ciudad del vendedor",
		countryMsg:   "Falta el país del vendedor",
	}, errs, warns)
}

// 5. Customer identity.
func (v *Validator) checkCustomer(doc Document, errs, warns *[]internal.Finding) {
	v.checkParty(doc, "customer", partyFields{
		nameField:    "Customer",
		addressField: "CustomerAddress",
		section:      sectionCustomer,
		requirement:  5,
		missingMsg:   "La información del comprador es obligatoria",
		nameMsg:      "El nombre del comprador es obligatorio",
		addressMsg:   "Falta la dirección del comprador",
		cityMsg:      "Falta la ciudad del comprador",
		countryMsg:   "Falta el país del comprador",
	}, errs, warns)
}

type partyFields struct {
	nameField    string
	addressField string
	section      string
	requirement  int
	missingMsg   string
	nameMsg      string
	addressMsg   string
	cityMsg      string
	countryMsg   string
}

func (v *Validator) checkParty(doc Document, canonical string, pf partyFields, errs, warns *[]internal.Finding) {
	party, ok := lookupObject(doc, canonical)
	if !ok {
		*errs = append(*errs, finding(pf.nameField, pf.missingMsg,
			pf.section, internal.SeverityError, pf.requirement, true))
		return
	}

	if strings.TrimSpace(lookupString(party, "name")) == "" {
		*errs = append(*errs, finding(pf.nameField, pf.nameMsg,
			pf.section, internal.SeverityError, pf.requirement, true))
	}
	for _, sub := range []struct {
		key string
		msg string
	}{
		{"address", pf.addressMsg},
		{"city", pf.cityMsg},
		{"country", pf.countryMsg},
	} {
		if strings.TrimSpace(asString(party[sub.key])) == "" {
			*warns = append(*warns, finding(pf.addressField, sub.msg,
				pf.section, internal.SeverityWarning, pf.requirement, true))
		}
	}
}

// 6. Item descriptions: present, specific, long enough.
func (v *Validator) checkItemDescriptions(doc Document, errs, warns *[]internal.Finding) {
	items, ok := lookupItems(doc)
	if !ok || len(items) == 0 {
		*errs = append(*errs, finding("Table.Description",
			"Debe haber al menos un item en la factura",
			sectionItems, internal.SeverityError, 6, true))
		return
	}

	for i, raw := range items {
		item, _ := raw.(map[string]any)
		description := lookupString(item, "description")

		switch {
		case strings.TrimSpace(description) == "":
			*errs = append(*errs, finding("Table.Description",
				fmt.Sprintf("El item #%d no tiene descripción", i+1),
				sectionItems, internal.SeverityError, 6, true))
		case len([]rune(description)) < v.cfg.MinDescriptionLength:
			*warns = append(*warns, finding("Table.Description",
				fmt.Sprintf("La descripción del item #%d es muy genérica o ambigua (menos de %d caracteres)", i+1, v.cfg.MinDescriptionLength),
				sectionItems, internal.SeverityWarning, 6, true))
		case v.isGenericDescription(description):
			*warns = append(*warns, finding("Table.Description",
				fmt.Sprintf("La descripción del item #%d parece ser genérica: %q", i+1, description),
				sectionItems, internal.SeverityWarning, 6, true))
		}
	}
}

// 7. Quantities, cross-checked against line totals within tolerance.
func (v *Validator) checkQuantities(doc Document, errs, warns *[]internal.Finding) {
	items, ok := lookupItems(doc)
	if !ok || len(items) == 0 {
		return // absence already reported by the description check
	}

	for i, raw := range items {
		item, _ := raw.(map[string]any)
		quantity, ok := lookupNumber(item, "quantity")
		if !ok || quantity <= 0 {
			*errs = append(*errs, finding("Table.Quantity",
				fmt.Sprintf("El item #%d no tiene una cantidad válida", i+1),
				sectionItems, internal.SeverityError, 7, true))
			continue
		}

		unitPrice, _ := lookupNumber(item, "unit_price")
		totalPrice, _ := lookupNumber(item, "total_price")
		expected := quantity * unitPrice

		// 1% of the line total, floored at one cent.
		tolerance := totalPrice * v.cfg.PriceTolerancePercent / 100
		if tolerance < 0.01 {
			tolerance = 0.01
		}
		if totalPrice > 0 && abs(expected-totalPrice) > tolerance {
			*warns = append(*warns, finding("Table.Quantity",
				fmt.Sprintf("El item #%d: la cantidad (%v) × precio unitario (%v) no coincide con el total (%v)", i+1, quantity, unitPrice, totalPrice),
				sectionItems, internal.SeverityWarning, 7, true))
		}
	}
}

// 8. Unit and total prices per item, plus the invoice-level total.
func (v *Validator) checkPrices(doc Document, errs, warns *[]internal.Finding) {
	items, ok := lookupItems(doc)
	if ok && len(items) > 0 {
		for i, raw := range items {
			item, _ := raw.(map[string]any)
			_, hasUnit := lookup(item, "unit_price")
			_, hasTotal := lookup(item, "total_price")

			if !hasUnit {
				*warns = append(*warns, finding("Table.UnitPrice",
					fmt.Sprintf("El item #%d no tiene precio unitario especificado", i+1),
					sectionItems, internal.SeverityWarning, 8, true))
			}
			if !hasTotal {
				*warns = append(*warns, finding("Table.NetValuePerItem",
					fmt.Sprintf("El item #%d no tiene precio total especificado", i+1),
					sectionItems, internal.SeverityWarning, 8, true))
			}
			if !hasUnit && !hasTotal {
				*errs = append(*errs, finding("Table.UnitPrice",
					fmt.Sprintf("El item #%d no tiene información de precios", i+1),
					sectionItems, internal.SeverityError, 8, true))
			}
		}
	}

	totalAmount, ok := lookupNumber(doc, "total_amount")
	if !ok || totalAmount <= 0 {
		*errs = append(*errs, finding("TotalInvoiceValue",
			"El monto total de la factura es obligatorio y debe ser mayor a 0",
			sectionInvoice, internal.SeverityError, 8, true))
	}
}

// 9. Currency, case-insensitive against the valid list. No partial
// compliance.
func (v *Validator) checkCurrency(doc Document, errs, _ *[]internal.Finding) {
	currency := lookupString(doc, "currency")
	if strings.TrimSpace(currency) == "" {
		*errs = append(*errs, finding("Currency",
			"La moneda de la transacción es obligatoria",
			sectionInvoice, internal.SeverityError, 9, false))
		return
	}
	if !containsFold(v.cfg.ValidCurrencies, currency) {
		*errs = append(*errs, finding("Currency",
			fmt.Sprintf("La moneda %q no es válida. Monedas permitidas: %s", currency, strings.Join(v.cfg.ValidCurrencies, ", ")),
			sectionInvoice, internal.SeverityError, 9, false))
	}
}

// 10. Incoterm, case-insensitive against the valid list. No partial
// compliance.
func (v *Validator) checkIncoterm(doc Document, errs, _ *[]internal.Finding) {
	incoterm := lookupString(doc, "incoterm")
	if strings.TrimSpace(incoterm) == "" {
		*errs = append(*errs, finding("Incoterm",
			"El Incoterm (condiciones de entrega) es obligatorio",
			sectionTransport, internal.SeverityError, 10, false))
		return
	}
	if !containsFold(v.cfg.ValidIncoterms, incoterm) {
		*errs = append(*errs, finding("Incoterm",
			fmt.Sprintf("El Incoterm %q no es válido. Incoterms permitidos: %s", incoterm, strings.Join(v.cfg.ValidIncoterms, ", ")),
			sectionTransport, internal.SeverityError, 10, false))
	}
}

// 11. Payment method, textually unambiguous about direct vs indirect.
func (v *Validator) checkPaymentMethod(doc Document, _, warns *[]internal.Finding) {
	method := lookupString(doc, "payment_method")
	if strings.TrimSpace(method) == "" {
		*warns = append(*warns, finding("PaymentTerms",
			"No se especifica forma de pago (directa o indirecta)",
			sectionInvoice, internal.SeverityWarning, 11, true))
		return
	}

	lower := strings.ToLower(method)
	for _, kw := range paymentKeywords {
		if strings.Contains(lower, kw) {
			return
		}
	}
	*warns = append(*warns, finding("PaymentTerms",
		fmt.Sprintf("La forma de pago %q no especifica claramente si es directa o indirecta", method),
		sectionInvoice, internal.SeverityWarning, 11, true))
}

func (v *Validator) isGenericDescription(description string) bool {
	desc := strings.ToLower(strings.TrimSpace(description))
	for _, term := range v.cfg.GenericTerms {
		if desc == term || desc == term+"s" {
			return true
		}
	}
	return false
}

func finding(field, message, section string, severity internal.Severity, requirement int, partial bool) internal.Finding {
	return internal.Finding{
		Field:                   field,
		Message:                 message,
		Section:                 section,
		Severity:                severity,
		RequirementNumber:       requirement,
		AllowsPartialCompliance: partial,
	}
}

func containsFold(list []string, value string) bool {
	for _, item := range list {
		if strings.EqualFold(item, value) {
			return true
		}
	}
	return false
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
