package domain

import "strings"

// Address is a postal destination attached to an order.
type Address struct {
	Recipient  string
	PostalCode string
	Prefecture string
	City       string
	Line1      string
	Line2      string
	Phone      string
}

// Normalise trims every field and checks the required ones.
func (a Address) Normalise() (Address, error) {
	out := Address{
		Recipient:  strings.TrimSpace(a.Recipient),
		PostalCode: strings.TrimSpace(a.PostalCode),
		Prefecture: strings.TrimSpace(a.Prefecture),
		City:       strings.TrimSpace(a.City),
		Line1:      strings.TrimSpace(a.Line1),
		Line2:      strings.TrimSpace(a.Line2),
		Phone:      strings.TrimSpace(a.Phone),
	}
	required := []struct {
		field string
		value string
	}{
		{"recipient", out.Recipient},
		{"postalCode", out.PostalCode},
		{"prefecture", out.Prefecture},
		{"city", out.City},
		{"line1", out.Line1},
	}
	for _, r := range required {
		if r.value == "" {
			return Address{}, validationError(CodeEmptyValue, "address."+r.field, "is required")
		}
	}
	return out, nil
}
