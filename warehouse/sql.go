package warehouse

import (
	"regexp"
	"strings"
	"unicode"
)

var fencedSQL = regexp.MustCompile("(?s)```sql\\s*(.*?)\\s*```")

// ExtractSQL returns the trimmed body of the first ```sql fenced block in
// text.
func ExtractSQL(text string) (string, bool) {
	m := fencedSQL.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	query := strings.TrimSpace(m[1])
	return query, query != ""
}

var readOnlyVerbs = map[string]struct{}{
	"select":   {},
	"with":     {},
	"show":     {},
	"explain":  {},
	"describe": {},
	"values":   {},
}

// IsReadOnly reports whether query starts with a statement keyword that
// cannot modify data. Leading comments are skipped.
func IsReadOnly(query string) bool {
	q := strings.TrimSpace(query)
	for {
		switch {
		case strings.HasPrefix(q, "--"):
			if i := strings.IndexByte(q, '\n'); i >= 0 {
				q = strings.TrimSpace(q[i+1:])
				continue
			}
			return false
		case strings.HasPrefix(q, "/*"):
			if i := strings.Index(q, "*/"); i >= 0 {
				q = strings.TrimSpace(q[i+2:])
				continue
			}
			return false
		}
		break
	}

	fields := strings.FieldsFunc(strings.TrimLeft(q, "("), func(r rune) bool {
		return unicode.IsSpace(r) || r == '(' || r == ';'
	})
	if len(fields) == 0 {
		return false
	}
	_, ok := readOnlyVerbs[strings.ToLower(fields[0])]
	return ok
}
