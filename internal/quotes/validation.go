package quotes

import (
	"fmt"
	"math"
	"strings"
)

// storedDecimals is the scale prices and percentages are stored at. Finer
// input would be rounded on write and drift from the total derived here.
const storedDecimals = 4

// Field names reported by ValidateForm.
const (
	FieldContact    = "contact_id"
	FieldFreelancer = "freelancer_id"
	FieldValidUntil = "valid_until"
	FieldItems      = "items"
)

// ValidationResult is the outcome of a form check.
type ValidationResult struct {
	IsValid      bool   `json:"is_valid"`
	ErrorMessage string `json:"error_message,omitempty"`
	Field        string `json:"field,omitempty"`
}

// ValidationError carries a failed ValidationResult through error returns.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Err returns nil for a valid result and a *ValidationError otherwise.
func (r ValidationResult) Err() error {
	if r.IsValid {
		return nil
	}
	return &ValidationError{Field: r.Field, Message: r.ErrorMessage}
}

func invalid(field, msg string) ValidationResult {
	return ValidationResult{IsValid: false, ErrorMessage: msg, Field: field}
}

// ValidateForm checks a quote form in a fixed order and stops at the first
// failure. Items flagged for deletion are ignored.
func ValidateForm(form Form) ValidationResult {
	if form.ContactID <= 0 {
		return invalid(FieldContact, "client required")
	}
	if form.FreelancerID <= 0 {
		return invalid(FieldFreelancer, "freelancer required")
	}
	if form.ValidUntil == nil || form.ValidUntil.IsZero() {
		return invalid(FieldValidUntil, "validity date required")
	}
	return ValidateItems(form.Items)
}

// ValidateItems applies the item rules of ValidateForm on their own.
func ValidateItems(items []Item) ValidationResult {
	kept := 0
	for _, item := range items {
		if !item.ToDelete {
			kept++
		}
	}
	if kept == 0 {
		return invalid(FieldItems, "at least one item required")
	}
	for i, item := range items {
		if item.ToDelete {
			continue
		}
		pos := i + 1
		switch {
		case strings.TrimSpace(item.Description) == "":
			return invalid(itemField(i, "description"), fmt.Sprintf("item %d: description required", pos))
		case item.Quantity == nil || *item.Quantity <= 0:
			return invalid(itemField(i, "quantity"), fmt.Sprintf("item %d: quantity must be greater than zero", pos))
		case item.UnitPrice == nil || *item.UnitPrice <= 0:
			return invalid(itemField(i, "unit_price"), fmt.Sprintf("item %d: unit price must be greater than zero", pos))
		case !percentInRange(item.DiscountPercent):
			return invalid(itemField(i, "discount_percent"), fmt.Sprintf("item %d: discount must be between 0 and 100", pos))
		case !percentInRange(item.TaxPercent):
			return invalid(itemField(i, "tax_percent"), fmt.Sprintf("item %d: tax must be between 0 and 100", pos))
		case !fitsStoredScale(item.UnitPrice):
			return invalid(itemField(i, "unit_price"), fmt.Sprintf("item %d: unit price allows at most %d decimal places", pos, storedDecimals))
		case !fitsStoredScale(item.DiscountPercent):
			return invalid(itemField(i, "discount_percent"), fmt.Sprintf("item %d: discount allows at most %d decimal places", pos, storedDecimals))
		case !fitsStoredScale(item.TaxPercent):
			return invalid(itemField(i, "tax_percent"), fmt.Sprintf("item %d: tax allows at most %d decimal places", pos, storedDecimals))
		}
	}
	return ValidationResult{IsValid: true}
}

func percentInRange(p *float64) bool {
	return p == nil || (*p >= 0 && *p <= 100)
}

func fitsStoredScale(v *float64) bool {
	if v == nil {
		return true
	}
	scaled := *v * math.Pow10(storedDecimals)
	return math.Abs(scaled-math.Round(scaled)) < 1e-6
}

func itemField(i int, name string) string {
	return fmt.Sprintf("items[%d].%s", i, name)
}
