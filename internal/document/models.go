package document

import "time"

// Document is a knowledge-base entry. Entries arrive from connector syncs
// (gmail, slack, notion and so on) or direct creation, and are always scoped
// to a tenant.
type Document struct {
	ID        string    `json:"id" bson:"id"`
	TenantID  string    `json:"tenant_id" bson:"tenantId"`
	Title     string    `json:"title" bson:"title"`
	Content   string    `json:"content,omitempty" bson:"content,omitempty"`
	Source    string    `json:"source" bson:"source"`
	SourceRef string    `json:"source_ref,omitempty" bson:"sourceRef,omitempty"`
	Tags      []string  `json:"tags,omitempty" bson:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at" bson:"createdAt"`
	UpdatedAt time.Time `json:"updated_at" bson:"updatedAt"`
}

// Update carries the mutable fields for a document update. Nil pointers
// leave the stored value untouched.
type Update struct {
	Title   *string
	Content *string
	Tags    *[]string
}
