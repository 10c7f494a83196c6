package quotes

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validForm() Form {
	validUntil := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)
	return Form{
		ContactID:    10,
		FreelancerID: 20,
		ValidUntil:   &validUntil,
		Items: []Item{
			{Description: "audit", Quantity: intp(1), UnitPrice: floatp(300)},
		},
	}
}

func TestValidateFormAccepts(t *testing.T) {
	res := ValidateForm(validForm())
	assert.True(t, res.IsValid)
	assert.Empty(t, res.ErrorMessage)
	assert.NoError(t, res.Err())
}

func TestValidateFormOrderedChecks(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Form)
		field  string
		msg    string
	}{
		{"missing contact", func(f *Form) { f.ContactID = 0 }, FieldContact, "client required"},
		{"missing freelancer", func(f *Form) { f.FreelancerID = 0 }, FieldFreelancer, "freelancer required"},
		{"missing validity", func(f *Form) { f.ValidUntil = nil }, FieldValidUntil, "validity date required"},
		{"zero validity", func(f *Form) { f.ValidUntil = &time.Time{} }, FieldValidUntil, "validity date required"},
		{"no items", func(f *Form) { f.Items = nil }, FieldItems, "at least one item required"},
		{"only deleted items", func(f *Form) { f.Items[0].ToDelete = true }, FieldItems, "at least one item required"},
		{"blank description", func(f *Form) { f.Items[0].Description = "  " }, "items[0].description", "item 1: description required"},
		{"zero quantity", func(f *Form) { f.Items[0].Quantity = intp(0) }, "items[0].quantity", "item 1: quantity must be greater than zero"},
		{"missing quantity", func(f *Form) { f.Items[0].Quantity = nil }, "items[0].quantity", "item 1: quantity must be greater than zero"},
		{"zero price", func(f *Form) { f.Items[0].UnitPrice = floatp(0) }, "items[0].unit_price", "item 1: unit price must be greater than zero"},
		{"discount over 100", func(f *Form) { f.Items[0].DiscountPercent = floatp(120) }, "items[0].discount_percent", "item 1: discount must be between 0 and 100"},
		{"negative tax", func(f *Form) { f.Items[0].TaxPercent = floatp(-1) }, "items[0].tax_percent", "item 1: tax must be between 0 and 100"},
		{"price finer than stored", func(f *Form) { f.Items[0].UnitPrice = floatp(10.00005) }, "items[0].unit_price", "item 1: unit price allows at most 4 decimal places"},
		{"discount finer than stored", func(f *Form) { f.Items[0].DiscountPercent = floatp(12.12345) }, "items[0].discount_percent", "item 1: discount allows at most 4 decimal places"},
		{"tax finer than stored", func(f *Form) { f.Items[0].TaxPercent = floatp(5.55555) }, "items[0].tax_percent", "item 1: tax allows at most 4 decimal places"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			form := validForm()
			tc.mutate(&form)
			res := ValidateForm(form)
			assert.False(t, res.IsValid)
			assert.Equal(t, tc.field, res.Field)
			assert.Equal(t, tc.msg, res.ErrorMessage)
		})
	}
}

func TestValidateFormFirstFailureWins(t *testing.T) {
	form := validForm()
	form.FreelancerID = 0
	form.Items = nil
	res := ValidateForm(form)
	assert.Equal(t, "freelancer required", res.ErrorMessage)
}

func TestValidateItemsSkipsDeletedInvalidItems(t *testing.T) {
	form := validForm()
	form.Items = append([]Item{{Description: "", ToDelete: true}}, form.Items...)
	assert.True(t, ValidateForm(form).IsValid)

	form.Items = append(form.Items, Item{Description: "bad", Quantity: intp(1)})
	res := ValidateForm(form)
	assert.Equal(t, "item 3: unit price must be greater than zero", res.ErrorMessage)
}

func TestValidationResultErr(t *testing.T) {
	form := validForm()
	form.ContactID = 0
	err := ValidateForm(form).Err()
	require.Error(t, err)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, FieldContact, verr.Field)
	assert.Equal(t, "client required", err.Error())
}

func TestValidateItemsAcceptsStoredScale(t *testing.T) {
	items := []Item{{Description: "hours", Quantity: intp(3), UnitPrice: floatp(19.9999), DiscountPercent: floatp(12.5), TaxPercent: floatp(8.1234)}}
	assert.True(t, ValidateItems(items).IsValid)
}

func TestFormDecodesValidUntil(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want time.Time
	}{
		{"date", `"2026-01-31"`, time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)},
		{"timestamp", `"2026-01-31T00:00:00Z"`, time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var form Form
			require.NoError(t, json.Unmarshal([]byte(`{"contact_id":1,"valid_until":`+tc.raw+`}`), &form))
			require.NotNil(t, form.ValidUntil)
			assert.True(t, tc.want.Equal(*form.ValidUntil))
			assert.Equal(t, int64(1), form.ContactID)
		})
	}

	var form Form
	require.NoError(t, json.Unmarshal([]byte(`{"valid_until":null}`), &form))
	assert.Nil(t, form.ValidUntil)

	err := json.Unmarshal([]byte(`{"contact_id":1,"valid_until":"31/01/2026"}`), &form)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, FieldValidUntil, verr.Field)
	assert.Equal(t, int64(1), form.ContactID)

	err = json.NewDecoder(strings.NewReader(`{"surprise":1}`)).Decode(&form)
	assert.Error(t, err)
	assert.False(t, errors.As(err, &verr))
}
