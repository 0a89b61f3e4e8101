// Package search provides an in-process full-text index over test items.
package search

import (
	"strings"

	"github.com/specvital/explorer/pkg/domain"
)

// Indexed field names.
const (
	FieldFunction = "function"
	FieldParent   = "parent"
	FieldModule   = "module"
	FieldFile     = "file"
	FieldDoc      = "doc"
	FieldName     = "name"
	FieldMarkers  = "markers"
	FieldNodeID   = "node_id"
)

// SearchFields lists the fields indexed for full-text search.
var SearchFields = []string{
	FieldFunction,
	FieldParent,
	FieldModule,
	FieldFile,
	FieldDoc,
	FieldName,
	FieldMarkers,
	FieldNodeID,
}

// Document is a test item keyed by its node id.
type Document struct {
	ID string `json:"id"`
	domain.TestItem
}

// Sanitize turns an item into a searchable document.
func Sanitize(item domain.TestItem) Document {
	return Document{ID: item.NodeID, TestItem: item}
}

// SanitizeAll sanitizes every item, preserving order.
func SanitizeAll(items []domain.TestItem) []Document {
	docs := make([]Document, len(items))
	for i, item := range items {
		docs[i] = Sanitize(item)
	}
	return docs
}

func (d Document) field(name string) string {
	switch name {
	case FieldFunction:
		return d.Function
	case FieldParent:
		return d.Parent
	case FieldModule:
		return d.Module
	case FieldFile:
		return d.File
	case FieldDoc:
		return d.Doc
	case FieldName:
		return d.Name
	case FieldMarkers:
		return strings.Join(d.Markers, " ")
	case FieldNodeID:
		return d.NodeID
	}
	return ""
}
