package types

// Address represents a physical address
type Address struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"` // USPS two-letter code
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"` // ISO 3166-1 alpha-2, default "US"
}

// NewAddress creates a new address with US as default country
func NewAddress(street, city, state, postalCode string) Address {
	return Address{
		Street:     street,
		City:       city,
		State:      state,
		PostalCode: postalCode,
		Country:    "US",
	}
}

// ContactInfo represents contact information
type ContactInfo struct {
	Email  string `json:"email,omitempty"`
	Phone  string `json:"phone,omitempty"`
	Mobile string `json:"mobile,omitempty"`
}
