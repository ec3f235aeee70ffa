package notion

import (
	"regexp"
	"strings"
)

var (
	hexRunPattern   = regexp.MustCompile(`[0-9a-fA-F]+`)
	dashedIDPattern = regexp.MustCompile(`(?:^|[^0-9a-fA-F])([0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12})(?:$|[^0-9a-fA-F])`)
	compactIDLength = 32
)

// ExtractDatabaseID returns the first Notion id found in a database URL,
// normalized. Share links carry the view id after "?v=", so the first match
// is the database. A compact id must be a hex run of exactly 32 characters;
// the dashed form is only tried when no such run exists.
func ExtractDatabaseID(url string) (string, error) {
	for _, run := range hexRunPattern.FindAllString(url, -1) {
		if len(run) == compactIDLength {
			return NormalizeID(run), nil
		}
	}
	if m := dashedIDPattern.FindStringSubmatch(url); m != nil {
		return NormalizeID(m[1]), nil
	}
	return "", ErrInvalidDatabaseURL
}

// NormalizeID lowercases an id and strips dashes so dashed and compact
// forms compare equal.
func NormalizeID(id string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(id), "-", ""))
}
