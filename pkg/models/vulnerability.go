package models

// VulnerabilityRecord is the persisted unit. ID is the CVE-style identifier
// and the natural key: storing a record with an existing ID replaces it.
type VulnerabilityRecord struct {
	ID          string `json:"id" bson:"_id"`
	Name        string `json:"name" bson:"name"`
	Description string `json:"description" bson:"description"`
}

// EntryReference is a link found on a listing page pointing to one detail page.
type EntryReference struct {
	Href string
	Page int
}
