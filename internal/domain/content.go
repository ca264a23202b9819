// Package domain defines the core types shared across the enhancement service.
package domain

// CompanyContext carries optional structured information about the company a
// story is about. It is owned by the surrounding platform; the enhancement
// core only forwards it to the scoring service.
type CompanyContext struct {
	Name     string `json:"name"`
	Industry string `json:"industry,omitempty"`
	Website  string `json:"website,omitempty"`
}

// ContentItem is a story as read from the platform's content store.
// The enhancement core never mutates content; it only reads it by ID.
type ContentItem struct {
	ID             string          `db:"id"         json:"id"`
	Title          string          `db:"title"      json:"title"`
	Body           string          `db:"body"       json:"body"`
	SourceURL      string          `db:"source_url" json:"source_url,omitempty"`
	CompanyContext *CompanyContext `db:"-"          json:"company_context,omitempty"`
}
