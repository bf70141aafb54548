package graph

import (
	"regexp"
	"strconv"
	"strings"
)

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)

// Normalize lower-cases s, folds every run of characters outside [a-z0-9]
// into a single underscore and trims underscores at both ends.
// "New York", "new-york " and "NEW_YORK" all become "new_york".
func Normalize(s string) string {
	return strings.Trim(nonAlphanumeric.ReplaceAllString(strings.ToLower(s), "_"), "_")
}

// NormalizeRelationType turns "works for" or "Works-For" into "WORKS_FOR".
func NormalizeRelationType(s string) string {
	return strings.ToUpper(Normalize(s))
}

// DocumentID returns "workspace:collection:sourceDocId".
func DocumentID(workspaceID, collectionID, sourceDocID string) string {
	return workspaceID + ":" + collectionID + ":" + sourceDocID
}

// ChunkID returns "documentId:chunk:index".
func ChunkID(documentID string, index int) string {
	return documentID + ":chunk:" + strconv.Itoa(index)
}

// EntityID returns "workspace:collection:normalize(name):normalize(type)".
func EntityID(workspaceID, collectionID, name, entityType string) string {
	return workspaceID + ":" + collectionID + ":" + Normalize(name) + ":" + Normalize(entityType)
}
