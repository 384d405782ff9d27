package model

// Claim is a normalized, independently verifiable assertion extracted from a
// content unit. UnitID links the claim back to its source unit for lineage.
type Claim struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Entities []string `json:"entities,omitempty"`
	Note     string   `json:"note,omitempty"` // extractor's commentary, if any
	UnitID   string   `json:"unit_id"`
}

// Citation is one evidence record retrieved for or against a claim.
// Source names the evidence capability that produced it.
type Citation struct {
	URL       string `json:"url"`
	Title     string `json:"title"`
	Publisher string `json:"publisher,omitempty"`
	Snippet   string `json:"snippet,omitempty"`
	Source    string `json:"source"`
	Rating    string `json:"rating,omitempty"` // prior rating from fact-check databases
	Date      string `json:"date,omitempty"`
}

// EnrichedClaim pairs a claim with the citations gathered for it.
type EnrichedClaim struct {
	Claim
	Citations []Citation `json:"citations"`
}
