package geocode

import "strings"

// Address is the addressdetails block Nominatim attaches to every place.
type Address struct {
	City          string `json:"city,omitempty"`
	Town          string `json:"town,omitempty"`
	Village       string `json:"village,omitempty"`
	Municipality  string `json:"municipality,omitempty"`
	Hamlet        string `json:"hamlet,omitempty"`
	Suburb        string `json:"suburb,omitempty"`
	Neighbourhood string `json:"neighbourhood,omitempty"`
	Locality      string `json:"locality,omitempty"`
	State         string `json:"state,omitempty"`
	Province      string `json:"province,omitempty"`
	Region        string `json:"region,omitempty"`
	Country       string `json:"country,omitempty"`
	CountryCode   string `json:"country_code,omitempty"`
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// CityName picks the most specific settlement name available.
func (a Address) CityName() string {
	return firstNonEmpty(a.City, a.Town, a.Village, a.Municipality,
		a.Hamlet, a.Suburb, a.Neighbourhood, a.Locality)
}

func (a Address) StateName() string {
	return firstNonEmpty(a.State, a.Province, a.Region)
}

// Label renders "City, State, Country", skipping missing parts.
func (a Address) Label() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{a.CityName(), a.StateName(), strings.TrimSpace(a.Country)} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// Locatable reports whether the address names a city, state or country.
func (a Address) Locatable() bool {
	return a.City != "" || a.State != "" || a.Country != ""
}
