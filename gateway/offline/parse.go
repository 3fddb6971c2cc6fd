package offline

import (
	"regexp"
	"strings"
)

// parsedQuery is the decomposed form of a unified text query: bare terms plus
// the "location:" and "objects:" filter segments.
type parsedQuery struct {
	Terms    []string
	Location string
	Objects  []string
}

func (p parsedQuery) hasFilters() bool {
	return len(p.Terms) > 0 || len(p.Objects) > 0 || p.Location != ""
}

var (
	locationRe = regexp.MustCompile(`location\s*:\s*([^,;\n]+)`)
	objectsRe  = regexp.MustCompile(`objects?\s*:\s*([^\n]+)`)
)

// parseQuery lowercases the input, pulls out the filter segments, and keeps
// the remaining words (longer than one rune, no filter punctuation) as terms.
func parseQuery(text string) parsedQuery {
	q := strings.ToLower(text)
	var p parsedQuery

	if m := locationRe.FindStringSubmatch(q); m != nil {
		p.Location = strings.TrimSpace(m[1])
	}
	if m := objectsRe.FindStringSubmatch(q); m != nil {
		for _, o := range strings.FieldsFunc(m[1], func(r rune) bool { return r == ',' || r == ';' }) {
			if t := strings.TrimSpace(o); t != "" {
				p.Objects = append(p.Objects, t)
			}
		}
	}

	rest := locationRe.ReplaceAllString(q, " ")
	rest = objectsRe.ReplaceAllString(rest, " ")
	for _, t := range strings.Fields(rest) {
		if len([]rune(t)) > 1 && !strings.ContainsAny(t, ":,;") {
			p.Terms = append(p.Terms, t)
		}
	}
	return p
}
