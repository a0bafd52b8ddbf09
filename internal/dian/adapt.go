package dian

import (
	"fmt"
	"strings"

	"kila/internal"
	"kila/internal/util"
)

type Shape int

const (
	ShapeA Shape = iota // flat object, already close to canonical names
	ShapeB              // Fields/Table key-value-list layout
)

// Countries the address heuristic recognizes on a line of their own. The
// list is deliberately short; anything else goes through the comma split.
var knownCountries = []string{"USA", "COLOMBIA", "MEXICO", "CANADA", "CHINA", "JAPAN"}

// DetectShape reports ShapeB only when the document carries a Fields array
// of {Fields, Value} pairs together with a Table array.
func DetectShape(doc Document) Shape {
	fields, ok := doc["Fields"].([]any)
	if !ok || len(fields) == 0 {
		return ShapeA
	}
	if _, ok := doc["Table"].([]any); !ok {
		return ShapeA
	}
	for _, f := range fields {
		pair, ok := f.(map[string]any)
		if !ok {
			return ShapeA
		}
		if _, ok := pair["Fields"]; !ok {
			return ShapeA
		}
	}
	return ShapeB
}

// Normalize resolves the shape once at the boundary. Shape-A documents pass
// through untouched; shape-B documents are adapted to the canonical layout.
// The rule checks never branch on shape themselves.
func Normalize(doc Document) (Document, Shape) {
	if DetectShape(doc) == ShapeA {
		return doc, ShapeA
	}
	return toDocument(Adapt(doc)), ShapeB
}

// toDocument lowers the canonical invoice back into document form so the
// rule checks consume shape-A and adapted shape-B input identically.
func toDocument(inv internal.NormalizedInvoice) Document {
	items := make([]any, 0, len(inv.Items))
	for _, item := range inv.Items {
		items = append(items, map[string]any{
			"description":         item.Description,
			"quantity":            item.Quantity,
			"unit_price":          item.UnitPrice,
			"total_price":         item.TotalPrice,
			"unit_of_measurement": item.UnitOfMeasurement,
		})
	}
	return Document{
		"invoice_number": inv.InvoiceNumber,
		"issue_date":     inv.IssueDate,
		"issue_city":     inv.IssueCity,
		"issue_country":  inv.IssueCountry,
		"supplier":       partyDocument(inv.Supplier),
		"customer":       partyDocument(inv.Customer),
		"items":          items,
		"currency":       inv.Currency,
		"total_amount":   inv.TotalAmount,
		"incoterm":       inv.Incoterm,
		"payment_method": inv.PaymentMethod,
		"original_data":  inv.OriginalData,
	}
}

func partyDocument(p internal.Party) map[string]any {
	return map[string]any{
		"name":    p.Name,
		"address": p.Address,
		"city":    p.City,
		"country": p.Country,
	}
}

// Adapt converts a shape-B document into the canonical invoice.
func Adapt(doc Document) internal.NormalizedInvoice {
	fields, _ := doc["Fields"].([]any)
	table, _ := doc["Table"].([]any)

	supplierAddress := fieldValue(fields, "SupplierAddress")
	supplierCity, supplierCountry, supplierConf := parseAddress(supplierAddress)

	customerAddress := fieldValue(fields, "CustomerAddress")
	customerCity, customerCountry, customerConf := parseAddress(customerAddress)

	originAddress := fieldValue(fields, "OriginCountryAddress")
	if originAddress == "" {
		originAddress = supplierAddress
	}
	issueCity, issueCountry, _ := parseAddress(originAddress)

	items := make([]internal.LineItem, 0, len(table))
	for _, raw := range table {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		items = append(items, internal.LineItem{
			Description:       asString(entry["Description"]),
			Quantity:          clampAmount(entry["Quantity"]),
			UnitPrice:         clampAmount(entry["UnitPrice"]),
			TotalPrice:        clampAmount(entry["NetValuePerItem"]),
			UnitOfMeasurement: asString(entry["UnitOfMeasurement"]),
		})
	}

	currency := fieldValue(fields, "Currency")
	if currency == "" && len(table) > 0 {
		if first, ok := table[0].(map[string]any); ok {
			currency = asString(first["Currency"])
		}
	}

	return internal.NormalizedInvoice{
		InvoiceNumber: fieldValue(fields, "InvoiceNumber"),
		IssueDate:     NormalizeDate(fieldValue(fields, "InvoiceDate")),
		IssueCity:     issueCity,
		IssueCountry:  issueCountry,
		Supplier: internal.Party{
			Name:              fieldValue(fields, "Supplier"),
			Address:           supplierAddress,
			City:              supplierCity,
			Country:           supplierCountry,
			AddressConfidence: supplierConf,
		},
		Customer: internal.Party{
			Name:              fieldValue(fields, "Customer"),
			Address:           customerAddress,
			City:              customerCity,
			Country:           customerCountry,
			AddressConfidence: customerConf,
		},
		Items:         items,
		Currency:      currency,
		TotalAmount:   util.ParseAmount(fieldValue(fields, "TotalInvoiceValue")),
		Incoterm:      fieldValue(fields, "Incoterm"),
		PaymentMethod: fieldValue(fields, "PaymentTerms"),
		OriginalData:  doc,
	}
}

// fieldValue scans the Fields list for an exact name match. Absent fields
// yield the empty string, never an error.
func fieldValue(fields []any, name string) string {
	for _, f := range fields {
		pair, ok := f.(map[string]any)
		if !ok {
			continue
		}
		if asString(pair["Fields"]) == name {
			return asString(pair["Value"])
		}
	}
	return ""
}

// parseAddress splits an address block into city and country. The last
// non-empty line is the candidate: a recognized country name promotes the
// prior line to city; otherwise a comma split takes first token as city and
// last as country; with no comma the whole line is the city. Lossy by
// design; the confidence value tells the caller which branch fired.
func parseAddress(address string) (city, country string, conf internal.AddressConfidence) {
	var lines []string
	for _, l := range strings.Split(address, "\n") {
		if t := strings.TrimSpace(l); t != "" {
			lines = append(lines, t)
		}
	}
	if len(lines) == 0 {
		return "", "", internal.AddressEmpty
	}

	lastLine := lines[len(lines)-1]
	secondLast := ""
	if len(lines) >= 2 {
		secondLast = lines[len(lines)-2]
	}

	upper := strings.ToUpper(lastLine)
	matched := false
	for _, c := range knownCountries {
		if strings.Contains(upper, c) {
			matched = true
			break
		}
	}

	if matched {
		country = lastLine
		city = secondLast
		conf = internal.AddressByCountryLine
	} else if parts := splitTrim(lastLine, ","); len(parts) >= 2 {
		city = parts[0]
		country = parts[len(parts)-1]
		conf = internal.AddressByCommaSplit
	} else {
		city = lastLine
		conf = internal.AddressCityOnly
	}

	if city == "" {
		city = lines[0]
	}
	return city, country, conf
}

func splitTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// NormalizeDate re-emits MM/DD/YYYY as YYYY-MM-DD and passes everything else
// through for the validator to flag.
func NormalizeDate(dateStr string) string {
	if dateStr == "" {
		return ""
	}
	if parts := strings.Split(dateStr, "/"); len(parts) == 3 {
		return fmt.Sprintf("%s-%s-%s", parts[2], pad2(parts[0]), pad2(parts[1]))
	}
	return dateStr
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}

func isISODate(s string) bool {
	if len(s) != 10 || s[4] != '-' || s[7] != '-' {
		return false
	}
	for i, r := range s {
		if i == 4 || i == 7 {
			continue
		}
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func clampAmount(v any) float64 {
	amount := util.ParseAmount(asString(v))
	if amount < 0 {
		return 0
	}
	return amount
}
