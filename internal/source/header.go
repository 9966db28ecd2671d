package source

import (
	"fmt"
	"strings"
)

// CleanCell strips common spreadsheet artifacts from a cell value:
// surrounding whitespace, Excel formula prefixes (="value"), and stray
// quote characters.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, `="`) && strings.HasSuffix(s, `"`) {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	return strings.Trim(s, `"'`)
}

// ColumnName converts a header cell into a database-safe column name:
// lowercase, spaces and punctuation collapsed to underscores, leading
// digits prefixed. An empty result becomes "column".
func ColumnName(header string) string {
	header = CleanCell(header)

	var b strings.Builder
	lastUnderscore := true // suppress a leading underscore
	for _, r := range strings.ToLower(header) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		case r == '_':
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}

	name := strings.Trim(b.String(), "_")
	if name == "" {
		return "column"
	}
	if name[0] >= '0' && name[0] <= '9' {
		name = "col_" + name
	}
	return name
}

// NormalizeHeader maps raw header cells to unique column names. Collisions
// (including those introduced by normalization or by the suffixing itself)
// are disambiguated with a numeric suffix: name, name_2, name_3, ...
func NormalizeHeader(raw []string) []string {
	names := make([]string, len(raw))
	used := make(map[string]bool, len(raw))
	next := make(map[string]int, len(raw))

	for i, h := range raw {
		base := ColumnName(h)
		if base == "column" {
			base = fmt.Sprintf("column_%d", i+1)
		}

		name := base
		for used[name] {
			next[base]++
			name = fmt.Sprintf("%s_%d", base, next[base]+1)
		}
		used[name] = true
		names[i] = name
	}

	return names
}
