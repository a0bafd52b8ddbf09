package dian

import (
	"strconv"
	"strings"

	"kila/internal/util"
)

// Document is a parsed invoice JSON object. Rule checks read it exclusively
// through the alias table below, so supporting a new field spelling means
// adding one entry here rather than touching every check.
type Document = map[string]any

var fieldAliases = map[string][]string{
	"invoice_number": {"invoice_number", "invoiceNumber"},
	"issue_date":     {"issue_date", "issueDate", "date"},
	"issue_city":     {"issue_city", "issueCity"},
	"issue_country":  {"issue_country", "issueCountry"},
	"supplier":       {"supplier", "seller", "vendor"},
	"customer":       {"customer", "buyer", "importer"},
	"items":          {"items", "line_items", "products"},
	"currency":       {"currency", "currency_code"},
	"total_amount":   {"total_amount", "totalAmount", "grand_total"},
	"incoterm":       {"incoterm", "delivery_terms", "deliveryTerms"},
	"payment_method": {"payment_method", "paymentMethod", "payment_terms"},

	// party sub-objects
	"name": {"name", "business_name", "businessName"},

	// line items
	"description": {"description", "name", "product_description"},
	"quantity":    {"quantity", "qty"},
	"unit_price":  {"unit_price", "price"},
	"total_price": {"total_price", "total"},
}

// lookup returns the first alias whose value is present. Presence follows
// the semantics the alias chains were written against: empty strings, zero
// numbers, false and null all fall through to the next alias.
func lookup(doc Document, canonical string) (any, bool) {
	aliases, ok := fieldAliases[canonical]
	if !ok {
		aliases = []string{canonical}
	}
	for _, alias := range aliases {
		v, ok := doc[alias]
		if !ok || v == nil {
			continue
		}
		if present(v) {
			return v, true
		}
	}
	return nil, false
}

func present(v any) bool {
	switch t := v.(type) {
	case string:
		return t != ""
	case float64:
		return t != 0
	case int:
		return t != 0
	case bool:
		return t
	default:
		return true
	}
}

func lookupString(doc Document, canonical string) string {
	v, ok := lookup(doc, canonical)
	if !ok {
		return ""
	}
	return asString(v)
}

func lookupNumber(doc Document, canonical string) (float64, bool) {
	v, ok := lookup(doc, canonical)
	if !ok {
		return 0, false
	}
	return asNumber(v)
}

func lookupObject(doc Document, canonical string) (Document, bool) {
	v, ok := lookup(doc, canonical)
	if !ok {
		return nil, false
	}
	obj, ok := v.(map[string]any)
	return obj, ok
}

func lookupItems(doc Document) ([]any, bool) {
	v, ok := lookup(doc, "items")
	if !ok {
		return nil, false
	}
	arr, ok := v.([]any)
	return arr, ok
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	default:
		return ""
	}
}

// InvoiceNumber resolves the invoice number through the alias chain, for
// callers that only need to label a document.
func InvoiceNumber(doc Document) string {
	return lookupString(doc, "invoice_number")
}

func asNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		return util.ParseAmount(s), true
	default:
		return 0, false
	}
}
