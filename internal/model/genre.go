package model

import "strings"

// DefaultGenreColor is the UI colour used when none is supplied.
const DefaultGenreColor = "#3B82F6"

// Genre mirrors the `genres` table. MovieCount is computed on read.
type Genre struct {
	ID          uint64 `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Color       string `json:"color"`
	IsActive    bool   `json:"isActive"`
	MovieCount  int64  `json:"movieCount"`
}

// GenrePatch lists the mutable genre fields.
type GenrePatch struct {
	Name        *string
	Description *string
	Color       *string
	IsActive    *bool
}

// GenreBulkItem is one entry of a bulk update. Unlike GenrePatch every field
// is written.
type GenreBulkItem struct {
	ID          uint64
	Name        string
	Description string
	Color       string
	IsActive    bool
}

// GenreSummary counts genres by activity.
type GenreSummary struct {
	Total    int64 `json:"total"`
	Active   int64 `json:"active"`
	Inactive int64 `json:"inactive"`
}

// RenameGenre replaces oldName with newName in a movie's genre set. The
// result keeps the original order and never contains newName twice. The
// second return value is false when oldName was not present.
func RenameGenre(genres []string, oldName, newName string) ([]string, bool) {
	found := false
	out := make([]string, 0, len(genres))
	seen := make(map[string]bool, len(genres))
	for _, g := range genres {
		if g == oldName {
			found = true
			g = newName
		}
		if seen[g] {
			continue
		}
		seen[g] = true
		out = append(out, g)
	}
	if !found {
		return genres, false
	}
	return out, true
}

// SameGenreName compares genre names case-insensitively.
func SameGenreName(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
