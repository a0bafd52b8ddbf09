package internal

import "encoding/json"

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Source identifies which validator produced a result. The wire values are
// fixed: the local synchronous validator reports as "frontend", the external
// service as "backend".
type Source string

const (
	SourceLocal  Source = "frontend"
	SourceRemote Source = "backend"
	SourceMerged Source = "merged"
)

type Status string

const (
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusWarning  Status = "warning"
)

// Finding is a single validator output tied to one field and one DIAN
// requirement (1-11). Requirements 1, 9 and 10 never allow partial
// compliance.
type Finding struct {
	Field                   string   `json:"field"`
	Message                 string   `json:"message"`
	Section                 string   `json:"section"`
	Severity                Severity `json:"severity"`
	RequirementNumber       int      `json:"requirementNumber,omitempty"`
	AllowsPartialCompliance bool     `json:"allowsPartialCompliance,omitempty"`
	Origin                  Source   `json:"source,omitempty"`
}

type ValidationResult struct {
	IsValid  bool      `json:"isValid"`
	Errors   []Finding `json:"errors"`
	Warnings []Finding `json:"warnings"`
	Source   Source    `json:"source"`
}

// RemoteResult is the outcome of the external validation call. Success=false
// means the call failed or returned nothing usable; the pipeline then falls
// back to the local result alone.
type RemoteResult struct {
	Success      bool      `json:"success"`
	ValidationID string    `json:"validation_id,omitempty"`
	Errors       []Finding `json:"errors,omitempty"`
	Warnings     []Finding `json:"warnings,omitempty"`
	Status       Status    `json:"status,omitempty"`
	Message      string    `json:"message,omitempty"`
}

type ConflictResolution struct {
	LocalPrioritized bool `json:"local_prioritized"`
	ConflictsFound   int  `json:"conflicts_found"`
}

// CombinedResult wraps both source results plus the merged finding lists.
type CombinedResult struct {
	Success            bool                `json:"success"`
	ValidationID       string              `json:"validation_id"`
	InvoiceData        json.RawMessage     `json:"invoice_data,omitempty"`
	Errors             []Finding           `json:"errors"`
	Warnings           []Finding           `json:"warnings"`
	Status             Status              `json:"status"`
	Message            string              `json:"message,omitempty"`
	Local              ValidationResult    `json:"frontend_validation"`
	Remote             *RemoteResult       `json:"backend_validation,omitempty"`
	Source             Source              `json:"source"`
	ConflictResolution *ConflictResolution `json:"conflict_resolution,omitempty"`
}

// AddressConfidence records which branch of the address heuristic produced
// the city/country split.
type AddressConfidence string

const (
	AddressByCountryLine AddressConfidence = "country_line"
	AddressByCommaSplit  AddressConfidence = "comma_split"
	AddressCityOnly      AddressConfidence = "city_only"
	AddressEmpty         AddressConfidence = "empty"
)

type Party struct {
	Name              string            `json:"name"`
	Address           string            `json:"address"`
	City              string            `json:"city"`
	Country           string            `json:"country"`
	AddressConfidence AddressConfidence `json:"address_confidence,omitempty"`
}

type LineItem struct {
	Description       string  `json:"description"`
	Quantity          float64 `json:"quantity"`
	UnitPrice         float64 `json:"unit_price"`
	TotalPrice        float64 `json:"total_price"`
	UnitOfMeasurement string  `json:"unit_of_measurement,omitempty"`
}

// NormalizedInvoice is the canonical invoice shape the rule checks consume.
// Quantities and prices are always non-negative; unparsable values coerce
// to zero at adaptation time.
type NormalizedInvoice struct {
	InvoiceNumber string         `json:"invoice_number"`
	IssueDate     string         `json:"issue_date"`
	IssueCity     string         `json:"issue_city"`
	IssueCountry  string         `json:"issue_country"`
	Supplier      Party          `json:"supplier"`
	Customer      Party          `json:"customer"`
	Items         []LineItem     `json:"items"`
	Currency      string         `json:"currency"`
	TotalAmount   float64        `json:"total_amount"`
	Incoterm      string         `json:"incoterm"`
	PaymentMethod string         `json:"payment_method"`
	OriginalData  map[string]any `json:"original_data,omitempty"`
}

type UserRow struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    string
}

type ValidationRow struct {
	ID            int64
	ValidationID  string
	InvoiceNumber string
	Filename      string
	UserID        *int64
	Passed        bool
	Status        string
	Source        string
	ConflictCount int
	Errors        []Finding
	Warnings      []Finding
	InvoiceJSON   string
	CreatedAt     string
}

type DayCount struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}

type Stats struct {
	Total    int        `json:"total"`
	Approved int        `json:"approved"`
	Rejected int        `json:"rejected"`
	Warning  int        `json:"warning"`
	PerDay   []DayCount `json:"per_day"`
}
