// Package infer decides a storage type for each source column by
// inspecting a sample of raw cell values. Inference is a deterministic
// single pass: every non-empty sample value is classified against an
// ordered list of patterns, and the column takes the narrowest type that
// accommodates all of them.
package infer

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/mkrogh/sheetpipe/internal/source"
)

// Type is the semantic type of a column, independent of any target store's
// native type names.
type Type uint8

const (
	TypeBool Type = iota
	TypeInteger
	TypeFloat
	TypeDecimal
	TypeDate
	TypeDateTime
	TypeText
)

var typeNames = map[Type]string{
	TypeBool:     "bool",
	TypeInteger:  "integer",
	TypeFloat:    "float",
	TypeDecimal:  "decimal",
	TypeDate:     "date",
	TypeDateTime: "datetime",
	TypeText:     "text",
}

func (t Type) String() string { return typeNames[t] }

// MarshalJSON renders the type by name so API payloads stay readable.
func (t Type) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// Column pairs a normalized column name with its inferred type.
type Column struct {
	Name string `json:"name"`
	Type Type   `json:"type"`
}

// Schema is the ordered column layout for an import run. Once computed it
// is immutable: later chunks coerce or reject against it, never widen it.
type Schema []Column

// Lookup returns the type for a column name, defaulting to text.
func (s Schema) Lookup(name string) Type {
	for _, c := range s {
		if c.Name == name {
			return c.Type
		}
	}
	return TypeText
}

var (
	// intPattern also accepts well-formed thousands grouping so "1,000"
	// lands in the same column type as "1000".
	intPattern = regexp.MustCompile(`^[+-]?(\d+|\d{1,3}(,\d{3})+)$`)

	// floatPattern requires at least one mantissa digit so every match is
	// parseable by strconv.ParseFloat once grouping commas are stripped.
	floatPattern = regexp.MustCompile(`^[+-]?((\d+|\d{1,3}(,\d{3})+)(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)
)

// boolLiterals is the accepted boolean vocabulary. "1" and "0" are valid
// booleans too, but the integer pattern claims them first.
var boolLiterals = map[string]bool{
	"true": true, "t": true, "yes": true, "y": true,
	"false": false, "f": false, "no": false, "n": false,
	"1": true, "0": false,
}

// Date layouts are fixed and ordered; four-digit years are tried before the
// ambiguous two-digit forms.
var (
	dateTimeLayouts = []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		"1/2/2006 15:04:05",
		"1/2/2006 15:04",
		"01/02/2006 15:04",
	}
	dateLayouts = []string{
		"2006-01-02", "2006/01/02", "2006.01.02",
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006",
		"1.2.2006", "01.02.2006",
		"Jan 2, 2006", "2 Jan 2006",
		"1/2/06", "01/02/06",
	}
)

// classifiers is the ordered classification table. The first matching
// predicate wins; values matching nothing are text.
var classifiers = []struct {
	match func(string) bool
	typ   Type
}{
	{isInteger, TypeInteger},
	{isFloat, TypeFloat},
	{isDecimal, TypeDecimal},
	{isBool, TypeBool},
	{isDateTime, TypeDateTime},
	{isDate, TypeDate},
}

// Classify returns the most specific type accommodating a single value.
// Empty values classify as text; callers skip them during inference.
func Classify(v source.Value) Type {
	switch v.Kind {
	case source.KindNumber:
		if v.Num == float64(int64(v.Num)) {
			return TypeInteger
		}
		return TypeFloat
	case source.KindBool:
		return TypeBool
	case source.KindTime:
		if h, m, s := v.Time.Clock(); h == 0 && m == 0 && s == 0 {
			return TypeDate
		}
		return TypeDateTime
	case source.KindString:
		s := strings.TrimSpace(v.Str)
		for _, c := range classifiers {
			if c.match(s) {
				return c.typ
			}
		}
	}
	return TypeText
}

// widenings is the explicit widening table: a pair of distinct types
// resolves to the listed type, and any pair not listed resolves to text.
// Notably, mixing numeric and date-like values in one column resolves to
// text so no value is ever lost to a lossy coercion.
var widenings = map[[2]Type]Type{
	{TypeInteger, TypeFloat}:   TypeFloat,
	{TypeInteger, TypeDecimal}: TypeDecimal,
	{TypeFloat, TypeDecimal}:   TypeDecimal,
	{TypeDate, TypeDateTime}:   TypeDateTime,
}

// Widen returns the narrowest type accommodating both a and b.
func Widen(a, b Type) Type {
	if a == b {
		return a
	}
	if a == TypeText || b == TypeText {
		return TypeText
	}
	if w, ok := widenings[[2]Type{a, b}]; ok {
		return w
	}
	if w, ok := widenings[[2]Type{b, a}]; ok {
		return w
	}
	return TypeText
}

// Infer computes the schema for a set of columns from sampled rows. At most
// maxSample values are examined per column (0 means all). A column with no
// non-empty samples defaults to text.
//
// Inference is deterministic for identical input, so repeated runs over the
// same file always yield the same schema.
func Infer(columns []string, rows []source.Row, maxSample int) Schema {
	schema := make(Schema, len(columns))

	for i, name := range columns {
		seen := 0
		var acc Type
		empty := true

		for _, row := range rows {
			if maxSample > 0 && seen >= maxSample {
				break
			}
			if i >= len(row.Cells) || row.Cells[i].IsEmpty() {
				continue
			}
			t := Classify(row.Cells[i])
			if empty {
				acc = t
				empty = false
			} else {
				acc = Widen(acc, t)
			}
			seen++
			if acc == TypeText {
				break
			}
		}

		if empty {
			acc = TypeText
		}
		schema[i] = Column{Name: name, Type: acc}
	}

	return schema
}

func isInteger(s string) bool { return s != "" && intPattern.MatchString(s) }

func isFloat(s string) bool {
	if s == "" || !strings.ContainsAny(s, ".eE") {
		return false
	}
	if s == "." || s == "+" || s == "-" {
		return false
	}
	return floatPattern.MatchString(s)
}

// isDecimal accepts currency-marked or accounting-format numbers:
// "$1,234.56", "(99.95)", "€10".
func isDecimal(s string) bool {
	marked := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = strings.TrimSpace(s[1 : len(s)-1])
		marked = true
	}
	for _, sym := range []string{"$", "€", "£"} {
		if strings.HasPrefix(s, sym) {
			s = strings.TrimSpace(strings.TrimPrefix(s, sym))
			marked = true
			break
		}
	}
	if !marked {
		return false
	}
	return isInteger(s) || isFloat(s)
}

func isBool(s string) bool {
	_, ok := boolLiterals[strings.ToLower(s)]
	return ok
}

func isDateTime(s string) bool {
	for _, layout := range dateTimeLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

func isDate(s string) bool {
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}
