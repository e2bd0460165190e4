package model

// Industry sentinel values delivered by the accounting-platform
// collaborator when the company profile is incomplete.
const (
	IndustryNone  = "None"
	IndustryError = "Error"
)

// Tax-code classification is currently limited to Canadian companies
// with a resolvable province or territory.
const taxCodeCountry = "CA"

// Location is a company's registered jurisdiction.
type Location struct {
	Country   string
	SubRegion string
}

// CompanyInfo carries the company profile used as LLM context.
type CompanyInfo struct {
	Industry string
	Location Location
}

// IndustryKnown reports whether the profile carries a usable industry.
func (c CompanyInfo) IndustryKnown() bool {
	return c.Industry != "" && c.Industry != IndustryNone && c.Industry != IndustryError
}

// TaxCodeEligible reports whether tax-code classification applies to
// this company's jurisdiction.
func (c CompanyInfo) TaxCodeEligible() bool {
	return c.Location.Country == taxCodeCountry && c.Location.SubRegion != ""
}
