package domain

// Severity grades a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue codes reported by the business rule validator.
const (
	IssueSubtotalMismatch   = "SUBTOTAL_MISMATCH"
	IssueGrandTotalMismatch = "GRAND_TOTAL_MISMATCH"
	IssueLineTotalMismatch  = "LINE_TOTAL_MISMATCH"
	IssueDateOrder          = "DATE_ORDER"
	IssueDateInFuture       = "DATE_IN_FUTURE"
	IssueDuplicateLineItem  = "DUPLICATE_LINE_ITEM"
	IssueNegativeAmount     = "NEGATIVE_AMOUNT"
	IssueMissingField       = "MISSING_FIELD"
)

// Issue is one independently reportable validation finding.
type Issue struct {
	Code         string   `json:"code"`
	Message      string   `json:"message"`
	Severity     Severity `json:"severity"`
	RelatedField string   `json:"related_field,omitempty"`
}

// ValidationResult scores a structured document without ever mutating it.
// Business-rule violations never abort the pipeline; downstream consumers
// decide whether to block on them.
type ValidationResult struct {
	IsValid           bool               `json:"is_valid"`
	Errors            []Issue            `json:"errors"`
	Warnings          []Issue            `json:"warnings"`
	SectionConfidence map[string]float64 `json:"confidence_scores"`
	OverallConfidence float64            `json:"overall_confidence"`
}
