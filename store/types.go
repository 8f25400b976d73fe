// Package store talks to the remote entity and attachment store that hosts
// uploaded bundles.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by DownloadAttachment when the attachment does
// not exist.
var ErrNotFound = errors.New("not found")

// Store is the remote collaborator used by attachment-backed descriptors.
type Store interface {
	// DownloadAttachment returns the raw bytes of an attachment.
	DownloadAttachment(ctx context.Context, attachmentID int) ([]byte, error)

	// FindOne returns the first entity of entityType matching all filters,
	// with the requested fields populated. A nil Record and nil error means
	// no entity matched.
	FindOne(ctx context.Context, entityType string, filters []Filter, fields []string) (Record, error)
}

// Filter is a single field predicate, e.g. {"code", "is", "primary"}.
type Filter struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// Is builds an equality filter.
func Is(field string, value any) Filter {
	return Filter{Field: field, Operator: "is", Value: value}
}

// EntityRef is a link to another entity.
type EntityRef struct {
	Type string `json:"type"`
	ID   int    `json:"id"`
}

// Record is an entity as returned by FindOne.
type Record map[string]any

// Link returns a field holding a nested mapping, such as an attachment:
//
//	{"type": "Attachment", "id": 139, "link_type": "upload", "name": "v1.2.3.zip"}
func (r Record) Link(field string) (map[string]any, bool) {
	v, ok := r[field]
	if !ok || v == nil {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}
