package importer

// coerce.go normalizes raw cell values to a column's declared type before
// they reach the batch writer. It handles the messy reality of
// user-provided spreadsheets:
//
//   - multiple date formats (US, EU, ISO) with a two-digit-year pivot
//   - currency symbols, thousands separators, accounting negatives
//   - boolean vocabulary (true/false, yes/no, t/f, 1/0)
//
// Every coercer maps an empty value to nil so the store writes NULL.

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/mkrogh/sheetpipe/internal/infer"
	"github.com/mkrogh/sheetpipe/internal/source"
)

// TwoDigitYearPivot controls how two-digit years are read: parsed years
// more than this many years in the future roll back a century.
var TwoDigitYearPivot = 20

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
	fourDigitDateLayouts = []string{
		"2006-01-02", "2006/01/02", "2006.01.02",
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006",
		"1.2.2006", "01.02.2006",
		"Jan 2, 2006", "2 Jan 2006",
	}
	twoDigitDateLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
	}
)

// Coerce converts a value to the Go representation matching the column's
// semantic type: string, int64, float64, bool, or time.Time. Empty values
// coerce to nil regardless of type.
func Coerce(v source.Value, t infer.Type) (any, error) {
	if v.IsEmpty() {
		return nil, nil
	}

	switch t {
	case infer.TypeText:
		return v.Text(), nil
	case infer.TypeInteger:
		return coerceInt(v)
	case infer.TypeFloat:
		return coerceFloat(v)
	case infer.TypeDecimal:
		return coerceDecimal(v)
	case infer.TypeBool:
		return coerceBool(v)
	case infer.TypeDate:
		return coerceDate(v)
	case infer.TypeDateTime:
		return coerceDateTime(v)
	default:
		return v.Text(), nil
	}
}

func coerceInt(v source.Value) (any, error) {
	switch v.Kind {
	case source.KindNumber:
		if v.Num != math.Trunc(v.Num) {
			return nil, fmt.Errorf("not an integer: %v", v.Num)
		}
		return int64(v.Num), nil
	case source.KindBool:
		if v.Bool {
			return int64(1), nil
		}
		return int64(0), nil
	case source.KindString:
		s := cleanNumeric(v.Str)
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("not an integer: %q", strings.TrimSpace(v.Str))
		}
		return n, nil
	}
	return nil, fmt.Errorf("cannot coerce %s to integer", v.Text())
}

func coerceFloat(v source.Value) (any, error) {
	switch v.Kind {
	case source.KindNumber:
		return v.Num, nil
	case source.KindString:
		s := cleanNumeric(v.Str)
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("not a number: %q", strings.TrimSpace(v.Str))
		}
		return f, nil
	}
	return nil, fmt.Errorf("cannot coerce %s to float", v.Text())
}

// coerceDecimal keeps the cleaned textual form so the store's exact
// numeric type receives full precision, not a float round-trip.
func coerceDecimal(v source.Value) (any, error) {
	switch v.Kind {
	case source.KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64), nil
	case source.KindString:
		s := cleanNumeric(v.Str)
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			return nil, fmt.Errorf("not a decimal: %q", strings.TrimSpace(v.Str))
		}
		return s, nil
	}
	return nil, fmt.Errorf("cannot coerce %s to decimal", v.Text())
}

func coerceBool(v source.Value) (any, error) {
	switch v.Kind {
	case source.KindBool:
		return v.Bool, nil
	case source.KindNumber:
		switch v.Num {
		case 0:
			return false, nil
		case 1:
			return true, nil
		}
	case source.KindString:
		switch strings.ToLower(strings.TrimSpace(v.Str)) {
		case "true", "t", "yes", "y", "1":
			return true, nil
		case "false", "f", "no", "n", "0":
			return false, nil
		}
	}
	return nil, fmt.Errorf("not a boolean: %q", v.Text())
}

func coerceDate(v source.Value) (any, error) {
	if v.Kind == source.KindTime {
		return v.Time.Truncate(24 * time.Hour), nil
	}
	if v.Kind != source.KindString {
		return nil, fmt.Errorf("not a date: %q", v.Text())
	}

	s := strings.TrimSpace(v.Str)
	for _, layout := range fourDigitDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}

	pivot := time.Now().Year() + TwoDigitYearPivot
	for _, layout := range twoDigitDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivot {
				t = t.AddDate(-100, 0, 0)
			}
			return t, nil
		}
	}

	return nil, fmt.Errorf("not a date: %q", s)
}

func coerceDateTime(v source.Value) (any, error) {
	if v.Kind == source.KindTime {
		return v.Time, nil
	}
	if v.Kind != source.KindString {
		return nil, fmt.Errorf("not a datetime: %q", v.Text())
	}

	s := strings.TrimSpace(v.Str)
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	// A bare date is a valid datetime at midnight.
	if t, err := coerceDate(v); err == nil {
		return t, nil
	}
	return nil, fmt.Errorf("not a datetime: %q", s)
}

// cleanNumeric strips currency symbols, thousands separators, and
// accounting parentheses: "($1,234.56)" becomes "-1234.56".
func cleanNumeric(s string) string {
	s = strings.TrimSpace(s)

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	for _, sym := range []string{"$", "€", "£"} {
		s = strings.ReplaceAll(s, sym, "")
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	if negative && !strings.HasPrefix(s, "-") {
		s = "-" + s
	}
	return s
}
